package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-pipeline/internal/enrichment"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich prospects from the people-data provider",
}

// -- enrich run --

var enrichRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Enrich stale prospects, oldest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "enrich", true)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Scheduler.RunScheduled(ctx)
		if summary != nil {
			formatBatchSummary(os.Stdout, summary)
		}
		return err
	},
}

// -- enrich batch --

var enrichForce bool

var enrichBatchCmd = &cobra.Command{
	Use:   "batch <prospect-id>...",
	Short: "Enrich specific prospects",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "enrich", true)
		if err != nil {
			return err
		}
		defer env.Close()

		if enrichForce {
			summary := &enrichment.BatchSummary{}
			for _, id := range args {
				res, err := env.Scheduler.EnrichProspect(ctx, id, true)
				if err != nil {
					return err
				}
				summary.Total++
				if res.Success {
					summary.Successful++
				} else {
					summary.Failed++
				}
				summary.Details = append(summary.Details, *res)
			}
			formatBatchSummary(os.Stdout, summary)
			return nil
		}

		summary, err := env.Scheduler.EnrichBatch(ctx, args)
		if summary != nil {
			formatBatchSummary(os.Stdout, summary)
		}
		return err
	},
}

// -- enrich health --

var enrichHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report whether enrichment has produced data recently",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "enrich", true)
		if err != nil {
			return err
		}
		defer env.Close()

		h, err := env.Scheduler.CheckHealth(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(h)
	},
}

func init() {
	enrichBatchCmd.Flags().BoolVar(&enrichForce, "force", false, "enrich even when the prospect is fresh")

	enrichCmd.AddCommand(enrichRunCmd, enrichBatchCmd, enrichHealthCmd)
	rootCmd.AddCommand(enrichCmd)
}

// formatBatchSummary writes enrichment totals and per-prospect outcomes to out.
func formatBatchSummary(out io.Writer, s *enrichment.BatchSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Successful:\t%d\n", s.Successful)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", s.Skipped)
	_ = w.Flush()

	if len(s.Details) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROSPECT\tRESULT\tDURATION\tDETAIL")
	for _, d := range s.Details {
		result, detail := "failed", d.Error
		switch {
		case d.Skipped:
			result, detail = "skipped", "fresh"
		case d.Success:
			result, detail = "success", fmt.Sprint(d.Sources)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			truncateID(d.ProspectID),
			result,
			d.Duration.Round(time.Millisecond),
			detail,
		)
	}
	_ = w.Flush()
}

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/pipeline"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show staging and quarantine counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "stats")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := pipeline.NewDispatcher(st, nil).PipelineStats(ctx)
		if err != nil {
			return err
		}
		formatStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

var (
	stagingOrder = []model.StagingStatus{
		model.StagingPending, model.StagingProcessing, model.StagingProcessed,
		model.StagingQuarantined, model.StagingError,
	}
	reviewOrder = []model.ReviewStatus{
		model.ReviewPending, model.ReviewApproved, model.ReviewRejected, model.ReviewFixed,
	}
)

// formatStats writes staging and quarantine counts to out.
func formatStats(out io.Writer, s *pipeline.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "Staging:")
	for _, status := range stagingOrder {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", status, s.Staging[status])
	}
	_, _ = fmt.Fprintln(w, "Quarantine:")
	for _, status := range reviewOrder {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", status, s.Quarantine[status])
	}
	if s.LastRun != nil {
		_, _ = fmt.Fprintf(w, "Last run:\t%s (%d processed, %s)\n",
			s.LastRun.StartedAt.Format(time.RFC3339), s.LastRun.Processed, s.LastRun.RunID)
	}
	_ = w.Flush()
}

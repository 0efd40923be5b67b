package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-pipeline/internal/pipeline"
)

var (
	processBatchSize int
	processJSON      bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process one batch of pending staging records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "process", false)
		if err != nil {
			return err
		}
		defer env.Close()

		size := processBatchSize
		if size <= 0 {
			size = cfg.Pipeline.BatchSize
		}
		res, err := env.Dispatcher.ProcessStagingTable(ctx, size)
		if err != nil {
			return err
		}

		if processJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		formatBatchResult(os.Stdout, res)
		return nil
	},
}

func init() {
	processCmd.Flags().IntVar(&processBatchSize, "batch-size", 0, "records to claim (default: pipeline.batch_size)")
	processCmd.Flags().BoolVar(&processJSON, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(processCmd)
}

// formatBatchResult writes a run summary followed by one line per record.
func formatBatchResult(out io.Writer, res *pipeline.BatchResult) {
	if res.Skipped {
		_, _ = fmt.Fprintln(out, "Skipped: another staging run is active")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", res.RunID)
	_, _ = fmt.Fprintf(w, "Processed:\t%d\n", res.Processed)
	_, _ = fmt.Fprintf(w, "Successful:\t%d\n", res.Successful)
	_, _ = fmt.Fprintf(w, "Quarantined:\t%d\n", res.Quarantined)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", res.Failed)
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", res.Duration.Round(time.Millisecond))
	_ = w.Flush()

	if len(res.Details) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGING\tOUTCOME\tACTION\tPROSPECT\tERROR")
	for _, d := range res.Details {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(d.StagingID),
			d.Outcome,
			d.Action,
			truncateID(d.ProspectID),
			d.Error,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/quarantine"
	"github.com/sells-group/prospect-pipeline/internal/store"
)

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Review and reprocess quarantined records",
}

// -- quarantine list --

var (
	quarantineListStatus string
	quarantineListSource string
	quarantineListLimit  int
	quarantineListOffset int
)

var quarantineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quarantined records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter := store.QuarantineFilter{
			Status: model.ReviewStatus(quarantineListStatus),
			Source: quarantineListSource,
			Limit:  quarantineListLimit,
			Offset: quarantineListOffset,
		}
		if filter.Status != "" && !filter.Status.Valid() {
			return eris.Errorf("quarantine list: unknown status %q", quarantineListStatus)
		}

		st, err := openStore(ctx, "quarantine")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := quarantine.NewManager(st.Staging(), st.Quarantine()).List(ctx, filter)
		if err != nil {
			return err
		}
		formatQuarantineList(os.Stdout, recs)
		return nil
	},
}

// -- quarantine review --

var (
	quarantineReviewStatus string
	quarantineReviewNote   string
	quarantineReviewRaw    string
)

var quarantineReviewCmd = &cobra.Command{
	Use:   "review <quarantine-id>",
	Short: "Approve or reject a quarantined record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		status := model.ReviewStatus(quarantineReviewStatus)
		if status != model.ReviewApproved && status != model.ReviewRejected {
			return eris.Errorf("quarantine review: status must be approved or rejected, got %q", quarantineReviewStatus)
		}

		decision := quarantine.Decision{Status: status, Note: quarantineReviewNote}
		if quarantineReviewRaw != "" {
			if err := json.Unmarshal([]byte(quarantineReviewRaw), &decision.RawData); err != nil {
				return eris.Wrap(err, "quarantine review: --raw-data must be a JSON object")
			}
		}

		st, err := openStore(ctx, "quarantine")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := quarantine.NewManager(st.Staging(), st.Quarantine()).Review(ctx, args[0], decision)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// -- quarantine reprocess --

var quarantineReprocessLimit int

var quarantineReprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Re-stage approved quarantine records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "quarantine")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit := quarantineReprocessLimit
		if limit <= 0 {
			limit = cfg.Quarantine.ReprocessLimit
		}
		out, err := quarantine.NewManager(st.Staging(), st.Quarantine()).ReprocessApproved(ctx, limit)
		if err != nil {
			return err
		}

		zap.L().Info("quarantine reprocess complete", zap.Int("restaged", len(out)))
		for _, r := range out {
			_, _ = fmt.Fprintf(os.Stdout, "%s -> %s (%s)\n", truncateID(r.QuarantineID), truncateID(r.StagingID), r.Source)
		}
		return nil
	},
}

func init() {
	quarantineListCmd.Flags().StringVar(&quarantineListStatus, "status", "", "filter by review status")
	quarantineListCmd.Flags().StringVar(&quarantineListSource, "source", "", "filter by source")
	quarantineListCmd.Flags().IntVar(&quarantineListLimit, "limit", 50, "max records to show")
	quarantineListCmd.Flags().IntVar(&quarantineListOffset, "offset", 0, "records to skip")

	quarantineReviewCmd.Flags().StringVar(&quarantineReviewStatus, "status", "", "approved or rejected (required)")
	quarantineReviewCmd.Flags().StringVar(&quarantineReviewNote, "note", "", "review note")
	quarantineReviewCmd.Flags().StringVar(&quarantineReviewRaw, "raw-data", "", "corrected raw data as a JSON object (approved only)")
	_ = quarantineReviewCmd.MarkFlagRequired("status")

	quarantineReprocessCmd.Flags().IntVar(&quarantineReprocessLimit, "limit", 0, "max records to re-stage (default: quarantine.reprocess_limit)")

	quarantineCmd.AddCommand(quarantineListCmd, quarantineReviewCmd, quarantineReprocessCmd)
	rootCmd.AddCommand(quarantineCmd)
}

// formatQuarantineList writes a tabular list of quarantine records to out.
func formatQuarantineList(out io.Writer, recs []model.QuarantineRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tSCORE\tCREATED\tERRORS")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-----\t-------\t------")

	for _, r := range recs {
		errs := strings.Join(r.Errors, "; ")
		if len(errs) > 60 {
			errs = errs[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			truncateID(r.ID),
			r.Source,
			r.ReviewStatus,
			r.CompletenessScore,
			r.CreatedAt.Format("2006-01-02 15:04"),
			errs,
		)
	}
	_ = w.Flush()
}

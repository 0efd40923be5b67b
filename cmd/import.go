package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-pipeline/internal/intake"
)

var (
	importFile      string
	importSource    string
	importSheet     string
	importDelimiter string
	importChunk     int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Stage prospect records from a CSV, TSV, XLSX, or JSON file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		opts := intake.Options{Source: importSource, SheetName: importSheet}
		if importDelimiter != "" {
			if importDelimiter == `\t` {
				importDelimiter = "\t"
			}
			r := []rune(importDelimiter)
			if len(r) != 1 {
				return eris.Errorf("import: delimiter must be one character, got %q", importDelimiter)
			}
			opts.Delimiter = r[0]
		}

		recs, err := intake.ReadFile(ctx, importFile, opts)
		if err != nil {
			return err
		}

		st, err := openStore(ctx, "import")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		staged, err := intake.Load(ctx, st.Staging(), recs, importChunk)
		if err != nil {
			return eris.Wrap(err, "import: stage records")
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int("rows", len(recs)),
			zap.Int64("staged", staged),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to the input file (required)")
	importCmd.Flags().StringVar(&importSource, "source", "", "source tag for staged records (default: file name)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "worksheet name for XLSX input (default: first sheet)")
	importCmd.Flags().StringVar(&importDelimiter, "delimiter", "", "field delimiter for delimited input")
	importCmd.Flags().IntVar(&importChunk, "chunk-size", 1000, "records per staging insert")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

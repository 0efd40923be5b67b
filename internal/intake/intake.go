// Package intake reads prospect files (CSV, XLSX, JSON) into staging records.
package intake

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/store"
)

// DefaultSource tags records when neither Options nor the file name supply one.
const DefaultSource = "import"

// Options configures file intake.
type Options struct {
	Source     string // provenance tag; defaults to the file name without extension
	Delimiter  rune   // CSV delimiter; default ',' (tab for .tsv)
	SheetName  string // XLSX sheet; overrides SheetIndex
	SheetIndex int
}

// ReadFile reads path according to its extension.
func ReadFile(ctx context.Context, path string, opts Options) ([]model.StagingRecord, error) {
	if opts.Source == "" {
		opts.Source = sourceFromPath(path)
	}
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".xlsx" {
		return ReadXLSX(path, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "intake: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	switch ext {
	case ".csv":
		return ReadCSV(ctx, f, opts)
	case ".tsv":
		if opts.Delimiter == 0 {
			opts.Delimiter = '\t'
		}
		return ReadCSV(ctx, f, opts)
	case ".json", ".jsonl", ".ndjson":
		return ReadJSON(ctx, f, opts)
	default:
		return nil, eris.Errorf("intake: unsupported file type %q", ext)
	}
}

func sourceFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.ToLower(strings.TrimSpace(base))
	if base == "" || base == "." {
		return DefaultSource
	}
	return base
}

// rowsToRecords pairs each row with the header. Empty cells are omitted
// and rows with no values are dropped.
func rowsToRecords(header []string, rows [][]string, source string) []model.StagingRecord {
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	recs := make([]model.StagingRecord, 0, len(rows))
	for _, row := range rows {
		raw := make(map[string]any, len(row))
		for i, cell := range row {
			if i >= len(keys) || keys[i] == "" {
				continue
			}
			if v := strings.TrimSpace(cell); v != "" {
				raw[keys[i]] = v
			}
		}
		if len(raw) == 0 {
			continue
		}
		recs = append(recs, model.StagingRecord{RawData: raw, Source: source})
	}
	return recs
}

// Load inserts records into staging in chunks and returns how many were written.
func Load(ctx context.Context, staging store.StagingStore, recs []model.StagingRecord, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	var total int64
	for start := 0; start < len(recs); start += chunkSize {
		end := min(start+chunkSize, len(recs))
		n, err := staging.InsertBatch(ctx, recs[start:end])
		if err != nil {
			return total, eris.Wrapf(err, "intake: insert rows %d-%d", start, end)
		}
		total += n
	}
	zap.L().Info("intake: staged records", zap.Int64("count", total))
	return total, nil
}

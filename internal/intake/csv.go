package intake

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/model"
)

// ReadCSV reads a CSV document whose first row is the header.
func ReadCSV(ctx context.Context, r io.Reader, opts Options) ([]model.StagingRecord, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}

	var rows [][]string
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "csv: context cancelled")
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: read row %d", len(rows)+2)
		}
		rows = append(rows, row)
	}
	return rowsToRecords(header, rows, sourceOrDefault(opts.Source)), nil
}

func sourceOrDefault(s string) string {
	if s == "" {
		return DefaultSource
	}
	return s
}

package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyRows streams items into table over the COPY protocol, encoding each
// one into a row of values matching columns. An encode error aborts the copy.
func CopyRows[T any](ctx context.Context, pool Pool, table string, columns []string, items []T, encode func(T) ([]any, error)) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	src := pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
		row, err := encode(items[i])
		if err != nil {
			return nil, eris.Wrapf(err, "db: encode row %d for %s", i, table)
		}
		if len(row) != len(columns) {
			return nil, eris.Errorf("db: row %d for %s has %d values, want %d", i, table, len(row), len(columns))
		}
		return row, nil
	})

	n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, src)
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", table)
	}
	return n, nil
}

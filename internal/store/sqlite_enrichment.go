package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/model"
)

type sqliteEnrichment struct {
	db *sql.DB
}

func (s *sqliteEnrichment) Insert(ctx context.Context, e *model.EnrichmentData) error {
	prepareEnrichment(e, time.Now().UTC())
	data, err := encodeJSON(e.Data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_data (`+enrichmentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProspectID, e.Source, string(data), formatTime(e.FetchedAt), formatTime(e.ExpiresAt),
	)
	return eris.Wrap(err, "sqlite: insert enrichment data")
}

func (s *sqliteEnrichment) QueryRecent(ctx context.Context, since time.Time) ([]model.EnrichmentData, error) {
	return s.many(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichment_data WHERE fetched_at >= ? ORDER BY fetched_at DESC`,
		formatTime(since),
	)
}

func (s *sqliteEnrichment) LatestBySource(ctx context.Context, prospectID string) (map[string]model.EnrichmentData, error) {
	list, err := s.many(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichment_data
		 WHERE prospect_id = ?
		 ORDER BY source, fetched_at DESC`,
		prospectID,
	)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.EnrichmentData)
	for _, e := range list {
		if _, ok := out[e.Source]; !ok {
			out[e.Source] = e
		}
	}
	return out, nil
}

func (s *sqliteEnrichment) Current(ctx context.Context, prospectID, source string) (*model.EnrichmentData, error) {
	e, err := scanSQLiteEnrichment(s.db.QueryRowContext(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichment_data
		 WHERE prospect_id = ? AND source = ? AND expires_at > ?
		 ORDER BY fetched_at DESC LIMIT 1`,
		prospectID, source, formatTime(time.Now().UTC()),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (s *sqliteEnrichment) many(ctx context.Context, query string, args ...any) ([]model.EnrichmentData, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query enrichment data")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.EnrichmentData
	for rows.Next() {
		e, err := scanSQLiteEnrichment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query enrichment iterate")
}

func scanSQLiteEnrichment(row scannable) (*model.EnrichmentData, error) {
	var e model.EnrichmentData
	var data, fetched, expires string
	err := row.Scan(&e.ID, &e.ProspectID, &e.Source, &data, &fetched, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan enrichment data")
	}
	if e.Data, err = decodePayload([]byte(data)); err != nil {
		return nil, err
	}
	if e.FetchedAt, err = parseTime(fetched); err != nil {
		return nil, err
	}
	if e.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	return &e, nil
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/db"
	"github.com/sells-group/prospect-pipeline/internal/model"
)

type pgEnrichment struct {
	pool db.Pool
}

const enrichmentColumns = `id, prospect_id, source, data, fetched_at, expires_at`

func prepareEnrichment(e *model.EnrichmentData, now time.Time) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.FetchedAt.IsZero() {
		e.FetchedAt = now
	}
}

func (s *pgEnrichment) Insert(ctx context.Context, e *model.EnrichmentData) error {
	prepareEnrichment(e, time.Now().UTC())
	data, err := encodeJSON(e.Data)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichment_data (`+enrichmentColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.ProspectID, e.Source, data, e.FetchedAt, e.ExpiresAt,
	)
	return eris.Wrap(err, "postgres: insert enrichment data")
}

func (s *pgEnrichment) QueryRecent(ctx context.Context, since time.Time) ([]model.EnrichmentData, error) {
	return s.many(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichment_data WHERE fetched_at >= $1 ORDER BY fetched_at DESC`,
		since,
	)
}

func (s *pgEnrichment) LatestBySource(ctx context.Context, prospectID string) (map[string]model.EnrichmentData, error) {
	list, err := s.many(ctx,
		`SELECT DISTINCT ON (source) `+enrichmentColumns+` FROM enrichment_data
		 WHERE prospect_id = $1
		 ORDER BY source, fetched_at DESC`,
		prospectID,
	)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.EnrichmentData, len(list))
	for _, e := range list {
		out[e.Source] = e
	}
	return out, nil
}

func (s *pgEnrichment) Current(ctx context.Context, prospectID, source string) (*model.EnrichmentData, error) {
	e, err := scanPgEnrichment(s.pool.QueryRow(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichment_data
		 WHERE prospect_id = $1 AND source = $2 AND expires_at > now()
		 ORDER BY fetched_at DESC LIMIT 1`,
		prospectID, source,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (s *pgEnrichment) many(ctx context.Context, query string, args ...any) ([]model.EnrichmentData, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query enrichment data")
	}
	defer rows.Close()

	var out []model.EnrichmentData
	for rows.Next() {
		e, err := scanPgEnrichment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query enrichment iterate")
}

func scanPgEnrichment(row pgx.Row) (*model.EnrichmentData, error) {
	var e model.EnrichmentData
	var data []byte
	err := row.Scan(&e.ID, &e.ProspectID, &e.Source, &data, &e.FetchedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan enrichment data")
	}
	if e.Data, err = decodePayload(data); err != nil {
		return nil, err
	}
	return &e, nil
}

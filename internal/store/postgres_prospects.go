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

type pgProspects struct {
	pool db.Pool
}

const prospectColumns = `id, email, first_name, last_name, job_title, company_name, company_domain,
	linkedin_url, phone, location, timezone, source, enrichment_data, last_enriched_at, created_at, updated_at`

// fuzzyCandidateLimit caps the rows returned for fuzzy matching. Exact
// name and company hits sort ahead of the cap.
const fuzzyCandidateLimit = 200

func (s *pgProspects) FindByEmail(ctx context.Context, email string) (*model.Prospect, error) {
	return s.one(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE email <> '' AND lower(email) = lower($1) LIMIT 1`, email)
}

func (s *pgProspects) FindByLinkedInURL(ctx context.Context, url string) (*model.Prospect, error) {
	return s.one(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE linkedin_url <> '' AND linkedin_url = $1 LIMIT 1`, url)
}

func (s *pgProspects) FindByNameAndCompany(ctx context.Context, firstName, lastName, company string) ([]model.Prospect, error) {
	return s.many(ctx,
		`SELECT `+prospectColumns+` FROM prospects
		 WHERE lower(left(company_name, 1)) = lower(left($3, 1))
		   AND (lower(left(last_name, 1)) = lower(left($2, 1)) OR lower(left(first_name, 1)) = lower(left($1, 1)))
		 ORDER BY (lower(first_name) = lower($1) AND lower(last_name) = lower($2)) DESC,
			lower(company_name) = lower($3) DESC,
			lower(last_name) = lower($2) DESC,
			created_at
		 LIMIT $4`,
		firstName, lastName, company, fuzzyCandidateLimit,
	)
}

func (s *pgProspects) Insert(ctx context.Context, p *model.Prospect) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	p.CreatedAt, p.UpdatedAt = now, now

	enrichment, err := encodePayload(p.Enrichment)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO prospects (`+prospectColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.Email, p.FirstName, p.LastName, p.JobTitle, p.CompanyName, p.CompanyDomain,
		p.LinkedInURL, p.Phone, p.Location, p.Timezone, p.Source, enrichment, p.LastEnrichedAt,
		p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert prospect")
}

func (s *pgProspects) Update(ctx context.Context, p *model.Prospect) error {
	read := p.UpdatedAt
	next := nextVersion(read)
	enrichment, err := encodePayload(p.Enrichment)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE prospects SET email = $2, first_name = $3, last_name = $4, job_title = $5,
			company_name = $6, company_domain = $7, linkedin_url = $8, phone = $9, location = $10,
			timezone = $11, source = $12, enrichment_data = $13, last_enriched_at = $14, updated_at = $15
		 WHERE id = $1 AND updated_at = $16`,
		p.ID, p.Email, p.FirstName, p.LastName, p.JobTitle, p.CompanyName, p.CompanyDomain,
		p.LinkedInURL, p.Phone, p.Location, p.Timezone, p.Source, enrichment, p.LastEnrichedAt,
		next, read,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update prospect %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, p.ID)
	}
	p.UpdatedAt = next
	return nil
}

func (s *pgProspects) missOrConflict(ctx context.Context, id string) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM prospects WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Errorf("prospect not found: %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: check prospect %s", id)
	}
	return ErrConflict
}

func (s *pgProspects) Get(ctx context.Context, id string) (*model.Prospect, error) {
	return s.one(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE id = $1`, id)
}

func (s *pgProspects) BulkQuery(ctx context.Context, ids []string) ([]model.Prospect, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.many(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE id = ANY($1) ORDER BY created_at`, ids)
}

func (s *pgProspects) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]model.Prospect, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.many(ctx,
		`SELECT `+prospectColumns+` FROM prospects
		 WHERE last_enriched_at IS NULL OR last_enriched_at < $1
		 ORDER BY last_enriched_at NULLS FIRST, created_at
		 LIMIT $2`,
		cutoff, limit,
	)
}

func (s *pgProspects) CountStale(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM prospects WHERE last_enriched_at IS NULL OR last_enriched_at < $1`,
		cutoff,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count stale prospects")
}

func (s *pgProspects) one(ctx context.Context, query string, args ...any) (*model.Prospect, error) {
	p, err := scanPgProspect(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *pgProspects) many(ctx context.Context, query string, args ...any) ([]model.Prospect, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query prospects")
	}
	defer rows.Close()

	var out []model.Prospect
	for rows.Next() {
		p, err := scanPgProspect(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query prospects iterate")
}

func scanPgProspect(row pgx.Row) (*model.Prospect, error) {
	var p model.Prospect
	var enrichment []byte
	err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.JobTitle, &p.CompanyName,
		&p.CompanyDomain, &p.LinkedInURL, &p.Phone, &p.Location, &p.Timezone, &p.Source,
		&enrichment, &p.LastEnrichedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan prospect")
	}
	if p.Enrichment, err = decodePayload(enrichment); err != nil {
		return nil, err
	}
	return &p, nil
}

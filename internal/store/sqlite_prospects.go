package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/model"
)

type sqliteProspects struct {
	db *sql.DB
}

func (s *sqliteProspects) FindByEmail(ctx context.Context, email string) (*model.Prospect, error) {
	return s.one(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE email <> '' AND lower(email) = lower(?) LIMIT 1`, email)
}

func (s *sqliteProspects) FindByLinkedInURL(ctx context.Context, url string) (*model.Prospect, error) {
	return s.one(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE linkedin_url <> '' AND linkedin_url = ? LIMIT 1`, url)
}

func (s *sqliteProspects) FindByNameAndCompany(ctx context.Context, firstName, lastName, company string) ([]model.Prospect, error) {
	return s.many(ctx,
		`SELECT `+prospectColumns+` FROM prospects
		 WHERE lower(substr(company_name, 1, 1)) = lower(substr(?, 1, 1))
		   AND (lower(substr(last_name, 1, 1)) = lower(substr(?, 1, 1)) OR lower(substr(first_name, 1, 1)) = lower(substr(?, 1, 1)))
		 ORDER BY (lower(first_name) = lower(?) AND lower(last_name) = lower(?)) DESC,
			lower(company_name) = lower(?) DESC,
			lower(last_name) = lower(?) DESC,
			created_at
		 LIMIT ?`,
		company, lastName, firstName,
		firstName, lastName, company, lastName,
		fuzzyCandidateLimit,
	)
}

func (s *sqliteProspects) Insert(ctx context.Context, p *model.Prospect) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	p.CreatedAt, p.UpdatedAt = now, now

	enrichment, err := encodePayload(p.Enrichment)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO prospects (`+prospectColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Email, p.FirstName, p.LastName, p.JobTitle, p.CompanyName, p.CompanyDomain,
		p.LinkedInURL, p.Phone, p.Location, p.Timezone, p.Source, nullableText(enrichment),
		formatTimePtr(p.LastEnrichedAt), formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	return eris.Wrap(err, "sqlite: insert prospect")
}

func (s *sqliteProspects) Update(ctx context.Context, p *model.Prospect) error {
	read := p.UpdatedAt
	next := nextVersion(read)
	enrichment, err := encodePayload(p.Enrichment)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET email = ?, first_name = ?, last_name = ?, job_title = ?,
			company_name = ?, company_domain = ?, linkedin_url = ?, phone = ?, location = ?,
			timezone = ?, source = ?, enrichment_data = ?, last_enriched_at = ?, updated_at = ?
		 WHERE id = ? AND updated_at = ?`,
		p.Email, p.FirstName, p.LastName, p.JobTitle, p.CompanyName, p.CompanyDomain,
		p.LinkedInURL, p.Phone, p.Location, p.Timezone, p.Source, nullableText(enrichment),
		formatTimePtr(p.LastEnrichedAt), formatTime(next), p.ID, formatTime(read),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update prospect %s", p.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return s.missOrConflict(ctx, p.ID)
	}
	p.UpdatedAt = next
	return nil
}

func (s *sqliteProspects) missOrConflict(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM prospects WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Errorf("prospect not found: %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: check prospect %s", id)
	}
	return ErrConflict
}

func (s *sqliteProspects) Get(ctx context.Context, id string) (*model.Prospect, error) {
	return s.one(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE id = ?`, id)
}

func (s *sqliteProspects) BulkQuery(ctx context.Context, ids []string) ([]model.Prospect, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return s.many(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE id IN (`+placeholders+`) ORDER BY created_at`, args...)
}

func (s *sqliteProspects) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]model.Prospect, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.many(ctx,
		`SELECT `+prospectColumns+` FROM prospects
		 WHERE last_enriched_at IS NULL OR last_enriched_at < ?
		 ORDER BY last_enriched_at IS NOT NULL, last_enriched_at, created_at
		 LIMIT ?`,
		formatTime(cutoff), limit,
	)
}

func (s *sqliteProspects) CountStale(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM prospects WHERE last_enriched_at IS NULL OR last_enriched_at < ?`,
		formatTime(cutoff),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count stale prospects")
}

func (s *sqliteProspects) one(ctx context.Context, query string, args ...any) (*model.Prospect, error) {
	p, err := scanSQLiteProspect(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *sqliteProspects) many(ctx context.Context, query string, args ...any) ([]model.Prospect, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query prospects")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Prospect
	for rows.Next() {
		p, err := scanSQLiteProspect(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query prospects iterate")
}

func scanSQLiteProspect(row scannable) (*model.Prospect, error) {
	var p model.Prospect
	var enrichment, lastEnriched *string
	var created, updated string
	err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.JobTitle, &p.CompanyName,
		&p.CompanyDomain, &p.LinkedInURL, &p.Phone, &p.Location, &p.Timezone, &p.Source,
		&enrichment, &lastEnriched, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan prospect")
	}
	if enrichment != nil {
		if p.Enrichment, err = decodePayload([]byte(*enrichment)); err != nil {
			return nil, err
		}
	}
	if p.LastEnrichedAt, err = parseTimePtr(lastEnriched); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &p, nil
}

func nullableText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

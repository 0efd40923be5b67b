package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/db"
	"github.com/sells-group/prospect-pipeline/internal/model"
)

type pgQuarantine struct {
	pool db.Pool
}

const quarantineColumns = `id, staging_id, raw_data, errors, warnings, source, completeness_score,
	review_status, review_note, created_at, reviewed_at`

func prepareQuarantine(q *model.QuarantineRecord, now time.Time) {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.ReviewStatus == "" {
		q.ReviewStatus = model.ReviewPending
	}
	if q.RawData == nil {
		q.RawData = map[string]any{}
	}
	q.Errors = orEmpty(q.Errors)
	q.Warnings = orEmpty(q.Warnings)
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
}

func (s *pgQuarantine) Insert(ctx context.Context, q *model.QuarantineRecord) error {
	prepareQuarantine(q, time.Now().UTC())
	raw, err := encodeJSON(q.RawData)
	if err != nil {
		return err
	}
	errs, err := encodeJSON(q.Errors)
	if err != nil {
		return err
	}
	warns, err := encodeJSON(q.Warnings)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO quarantine_records (`+quarantineColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		q.ID, q.StagingID, raw, errs, warns, q.Source, q.CompletenessScore,
		string(q.ReviewStatus), q.ReviewNote, q.CreatedAt, q.ReviewedAt,
	)
	return eris.Wrap(err, "postgres: insert quarantine record")
}

func (s *pgQuarantine) ListApproved(ctx context.Context, limit int) ([]model.QuarantineRecord, error) {
	return s.List(ctx, QuarantineFilter{Status: model.ReviewApproved, Limit: limit})
}

func (s *pgQuarantine) UpdateReviewStatus(ctx context.Context, id string, status model.ReviewStatus, note string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quarantine_records SET review_status = $1, review_note = $2, reviewed_at = $3 WHERE id = $4`,
		string(status), note, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update review status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("quarantine record not found: %s", id)
	}
	return nil
}

func (s *pgQuarantine) CorrectRawData(ctx context.Context, id string, raw map[string]any) error {
	data, err := encodeJSON(raw)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE quarantine_records SET raw_data = $1 WHERE id = $2`, data, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: correct raw data %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("quarantine record not found: %s", id)
	}
	return nil
}

func (s *pgQuarantine) Get(ctx context.Context, id string) (*model.QuarantineRecord, error) {
	q, err := scanPgQuarantine(s.pool.QueryRow(ctx, `SELECT `+quarantineColumns+` FROM quarantine_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return q, err
}

func (s *pgQuarantine) List(ctx context.Context, filter QuarantineFilter) ([]model.QuarantineRecord, error) {
	query := `SELECT ` + quarantineColumns + ` FROM quarantine_records WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND review_status = $%d`, len(args))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		query += fmt.Sprintf(` AND source = $%d`, len(args))
	}
	query += ` ORDER BY created_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list quarantine")
	}
	defer rows.Close()

	var out []model.QuarantineRecord
	for rows.Next() {
		q, err := scanPgQuarantine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list quarantine iterate")
}

func (s *pgQuarantine) CountByReviewStatus(ctx context.Context) (map[model.ReviewStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT review_status, count(*) FROM quarantine_records GROUP BY review_status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count quarantine by status")
	}
	defer rows.Close()

	counts := make(map[model.ReviewStatus]int, len(model.ReviewStatuses))
	for _, st := range model.ReviewStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan quarantine count")
		}
		counts[model.ReviewStatus(st)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count quarantine iterate")
}

func scanPgQuarantine(row pgx.Row) (*model.QuarantineRecord, error) {
	var q model.QuarantineRecord
	var raw, errs, warns []byte
	var status string
	err := row.Scan(&q.ID, &q.StagingID, &raw, &errs, &warns, &q.Source, &q.CompletenessScore,
		&status, &q.ReviewNote, &q.CreatedAt, &q.ReviewedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan quarantine record")
	}
	q.ReviewStatus = model.ReviewStatus(status)
	if q.RawData, err = decodeMap(raw); err != nil {
		return nil, err
	}
	if q.Errors, err = decodeStrings(errs); err != nil {
		return nil, err
	}
	if q.Warnings, err = decodeStrings(warns); err != nil {
		return nil, err
	}
	return &q, nil
}

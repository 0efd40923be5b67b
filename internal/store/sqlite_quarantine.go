package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/model"
)

type sqliteQuarantine struct {
	db *sql.DB
}

func (s *sqliteQuarantine) Insert(ctx context.Context, q *model.QuarantineRecord) error {
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
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quarantine_records (`+quarantineColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.StagingID, string(raw), string(errs), string(warns), q.Source, q.CompletenessScore,
		string(q.ReviewStatus), q.ReviewNote, formatTime(q.CreatedAt), formatTimePtr(q.ReviewedAt),
	)
	return eris.Wrap(err, "sqlite: insert quarantine record")
}

func (s *sqliteQuarantine) ListApproved(ctx context.Context, limit int) ([]model.QuarantineRecord, error) {
	return s.List(ctx, QuarantineFilter{Status: model.ReviewApproved, Limit: limit})
}

func (s *sqliteQuarantine) UpdateReviewStatus(ctx context.Context, id string, status model.ReviewStatus, note string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quarantine_records SET review_status = ?, review_note = ?, reviewed_at = ? WHERE id = ?`,
		string(status), note, formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update review status %s", id)
	}
	return checkRowsAffected(res, "quarantine record", id)
}

func (s *sqliteQuarantine) CorrectRawData(ctx context.Context, id string, raw map[string]any) error {
	data, err := encodeJSON(raw)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE quarantine_records SET raw_data = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: correct raw data %s", id)
	}
	return checkRowsAffected(res, "quarantine record", id)
}

func (s *sqliteQuarantine) Get(ctx context.Context, id string) (*model.QuarantineRecord, error) {
	q, err := scanSQLiteQuarantine(s.db.QueryRowContext(ctx, `SELECT `+quarantineColumns+` FROM quarantine_records WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return q, err
}

func (s *sqliteQuarantine) List(ctx context.Context, filter QuarantineFilter) ([]model.QuarantineRecord, error) {
	query := `SELECT ` + quarantineColumns + ` FROM quarantine_records WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND review_status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	query += ` ORDER BY created_at`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list quarantine")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.QuarantineRecord
	for rows.Next() {
		q, err := scanSQLiteQuarantine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list quarantine iterate")
}

func (s *sqliteQuarantine) CountByReviewStatus(ctx context.Context) (map[model.ReviewStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT review_status, count(*) FROM quarantine_records GROUP BY review_status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count quarantine by status")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[model.ReviewStatus]int, len(model.ReviewStatuses))
	for _, st := range model.ReviewStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quarantine count")
		}
		counts[model.ReviewStatus(st)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count quarantine iterate")
}

func scanSQLiteQuarantine(row scannable) (*model.QuarantineRecord, error) {
	var q model.QuarantineRecord
	var raw, errs, warns, status, created string
	var reviewed *string
	err := row.Scan(&q.ID, &q.StagingID, &raw, &errs, &warns, &q.Source, &q.CompletenessScore,
		&status, &q.ReviewNote, &created, &reviewed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan quarantine record")
	}
	q.ReviewStatus = model.ReviewStatus(status)
	if q.RawData, err = decodeMap([]byte(raw)); err != nil {
		return nil, err
	}
	if q.Errors, err = decodeStrings([]byte(errs)); err != nil {
		return nil, err
	}
	if q.Warnings, err = decodeStrings([]byte(warns)); err != nil {
		return nil, err
	}
	if q.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if q.ReviewedAt, err = parseTimePtr(reviewed); err != nil {
		return nil, err
	}
	return &q, nil
}

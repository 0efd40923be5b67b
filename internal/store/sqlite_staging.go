package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/model"
)

type sqliteStaging struct {
	db *sql.DB
}

const insertStagingSQLite = `INSERT INTO staging_records (id, raw_data, source, status, processing_log, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

func (s *sqliteStaging) Insert(ctx context.Context, rec *model.StagingRecord) error {
	prepareStaging(rec, time.Now().UTC())
	args, err := stagingArgs(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertStagingSQLite, args...)
	return eris.Wrap(err, "sqlite: insert staging record")
}

func (s *sqliteStaging) InsertBatch(ctx context.Context, recs []model.StagingRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin staging batch")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, insertStagingSQLite)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare staging batch")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for i := range recs {
		prepareStaging(&recs[i], now)
		args, err := stagingArgs(&recs[i])
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert staging record %d", i)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit staging batch")
	}
	return int64(len(recs)), nil
}

func stagingArgs(rec *model.StagingRecord) ([]any, error) {
	raw, err := encodeJSON(rec.RawData)
	if err != nil {
		return nil, err
	}
	logJSON, err := encodeJSON(rec.ProcessingLog)
	if err != nil {
		return nil, err
	}
	return []any{rec.ID, string(raw), rec.Source, string(rec.Status), string(logJSON),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt)}, nil
}

// ClaimPending marks and returns the oldest pending rows in one UPDATE.
func (s *sqliteStaging) ClaimPending(ctx context.Context, limit int) ([]model.StagingRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`UPDATE staging_records SET status = 'processing', updated_at = ?
		 WHERE id IN (
			SELECT id FROM staging_records WHERE status = 'pending'
			ORDER BY created_at, rowid LIMIT ?
		 )
		 RETURNING `+stagingColumns,
		formatTime(time.Now().UTC()), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim pending")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.StagingRecord
	for rows.Next() {
		rec, err := scanSQLiteStaging(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: claim pending iterate")
	}
	sortStagingByCreated(out)
	return out, nil
}

func (s *sqliteStaging) UpdateStatus(ctx context.Context, id string, status model.StagingStatus, log []string) error {
	logJSON, err := encodeJSON(orEmpty(log))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	var processedAt any
	if status.Terminal() {
		processedAt = formatTime(now)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE staging_records SET status = ?, processing_log = ?, updated_at = ?, processed_at = ? WHERE id = ?`,
		string(status), string(logJSON), formatTime(now), processedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update staging status %s", id)
	}
	return checkRowsAffected(res, "staging record", id)
}

func (s *sqliteStaging) Get(ctx context.Context, id string) (*model.StagingRecord, error) {
	rec, err := scanSQLiteStaging(s.db.QueryRowContext(ctx, `SELECT `+stagingColumns+` FROM staging_records WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *sqliteStaging) CountByStatus(ctx context.Context) (map[model.StagingStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM staging_records GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count staging by status")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[model.StagingStatus]int, len(model.StagingStatuses))
	for _, st := range model.StagingStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan staging count")
		}
		counts[model.StagingStatus(st)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count staging iterate")
}

func scanSQLiteStaging(row scannable) (*model.StagingRecord, error) {
	var rec model.StagingRecord
	var raw, logJSON, status, created, updated string
	var processed *string
	err := row.Scan(&rec.ID, &raw, &rec.Source, &status, &logJSON, &created, &updated, &processed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan staging record")
	}
	rec.Status = model.StagingStatus(status)
	if rec.RawData, err = decodeMap([]byte(raw)); err != nil {
		return nil, err
	}
	if rec.ProcessingLog, err = decodeStrings([]byte(logJSON)); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if rec.ProcessedAt, err = parseTimePtr(processed); err != nil {
		return nil, err
	}
	return &rec, nil
}

package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/db"
	"github.com/sells-group/prospect-pipeline/internal/model"
)

type pgStaging struct {
	pool db.Pool
}

const stagingColumns = `id, raw_data, source, status, processing_log, created_at, updated_at, processed_at`

var stagingCopyColumns = []string{"id", "raw_data", "source", "status", "processing_log", "created_at", "updated_at"}

// prepareStaging fills defaults for a new staging record.
func prepareStaging(rec *model.StagingRecord, now time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = model.StagingPending
	}
	if rec.RawData == nil {
		rec.RawData = map[string]any{}
	}
	rec.ProcessingLog = orEmpty(rec.ProcessingLog)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
}

func (s *pgStaging) Insert(ctx context.Context, rec *model.StagingRecord) error {
	prepareStaging(rec, time.Now().UTC())

	raw, err := encodeJSON(rec.RawData)
	if err != nil {
		return err
	}
	logJSON, err := encodeJSON(rec.ProcessingLog)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO staging_records (id, raw_data, source, status, processing_log, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, raw, rec.Source, string(rec.Status), logJSON, rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert staging record")
}

// InsertBatch bulk-loads records with COPY.
func (s *pgStaging) InsertBatch(ctx context.Context, recs []model.StagingRecord) (int64, error) {
	now := time.Now().UTC()
	for i := range recs {
		prepareStaging(&recs[i], now)
	}
	n, err := db.CopyRows(ctx, s.pool, "staging_records", stagingCopyColumns, recs,
		func(rec model.StagingRecord) ([]any, error) {
			raw, err := encodeJSON(rec.RawData)
			if err != nil {
				return nil, err
			}
			logJSON, err := encodeJSON(rec.ProcessingLog)
			if err != nil {
				return nil, err
			}
			return []any{rec.ID, raw, rec.Source, string(rec.Status), logJSON, rec.CreatedAt, rec.UpdatedAt}, nil
		})
	return n, eris.Wrap(err, "postgres: insert staging batch")
}

// ClaimPending marks and returns the oldest pending rows in one statement.
// SKIP LOCKED keeps concurrent claimants from receiving the same rows.
func (s *pgStaging) ClaimPending(ctx context.Context, limit int) ([]model.StagingRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`UPDATE staging_records SET status = 'processing', updated_at = now()
		 WHERE id IN (
			SELECT id FROM staging_records
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+stagingColumns,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim pending")
	}
	defer rows.Close()

	var out []model.StagingRecord
	for rows.Next() {
		rec, err := scanPgStaging(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: claim pending iterate")
	}
	sortStagingByCreated(out)
	return out, nil
}

// sortStagingByCreated restores oldest-first order; RETURNING order is unspecified.
func sortStagingByCreated(recs []model.StagingRecord) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
}

func (s *pgStaging) UpdateStatus(ctx context.Context, id string, status model.StagingStatus, log []string) error {
	logJSON, err := encodeJSON(orEmpty(log))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	var processedAt *time.Time
	if status.Terminal() {
		processedAt = &now
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE staging_records SET status = $1, processing_log = $2, updated_at = $3, processed_at = $4 WHERE id = $5`,
		string(status), logJSON, now, processedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update staging status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("staging record not found: %s", id)
	}
	return nil
}

func (s *pgStaging) Get(ctx context.Context, id string) (*model.StagingRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+stagingColumns+` FROM staging_records WHERE id = $1`, id)
	rec, err := scanPgStaging(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *pgStaging) CountByStatus(ctx context.Context) (map[model.StagingStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM staging_records GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count staging by status")
	}
	defer rows.Close()

	counts := make(map[model.StagingStatus]int, len(model.StagingStatuses))
	for _, st := range model.StagingStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan staging count")
		}
		counts[model.StagingStatus(st)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count staging iterate")
}

func scanPgStaging(row pgx.Row) (*model.StagingRecord, error) {
	var rec model.StagingRecord
	var raw, logJSON []byte
	var status string
	err := row.Scan(&rec.ID, &raw, &rec.Source, &status, &logJSON, &rec.CreatedAt, &rec.UpdatedAt, &rec.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan staging record")
	}
	rec.Status = model.StagingStatus(status)
	if rec.RawData, err = decodeMap(raw); err != nil {
		return nil, err
	}
	if rec.ProcessingLog, err = decodeStrings(logJSON); err != nil {
		return nil, err
	}
	return &rec, nil
}

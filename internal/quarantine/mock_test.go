package quarantine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/store"
)

// memStaging is an in-memory StagingStore.
type memStaging struct {
	recs      map[string]model.StagingRecord
	seq       int
	insertErr error
}

func newMemStaging() *memStaging {
	return &memStaging{recs: make(map[string]model.StagingRecord)}
}

func (m *memStaging) Insert(_ context.Context, rec *model.StagingRecord) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.seq++
	rec.ID = fmt.Sprintf("stg-%d", m.seq)
	if rec.Status == "" {
		rec.Status = model.StagingPending
	}
	m.recs[rec.ID] = *rec
	return nil
}

func (m *memStaging) InsertBatch(ctx context.Context, recs []model.StagingRecord) (int64, error) {
	for i := range recs {
		if err := m.Insert(ctx, &recs[i]); err != nil {
			return 0, err
		}
	}
	return int64(len(recs)), nil
}

func (m *memStaging) ClaimPending(context.Context, int) ([]model.StagingRecord, error) {
	return nil, errors.New("not implemented")
}

func (m *memStaging) UpdateStatus(_ context.Context, id string, status model.StagingStatus, log []string) error {
	rec, ok := m.recs[id]
	if !ok {
		return fmt.Errorf("staging record not found: %s", id)
	}
	rec.Status = status
	rec.ProcessingLog = log
	m.recs[id] = rec
	return nil
}

func (m *memStaging) Get(_ context.Context, id string) (*model.StagingRecord, error) {
	rec, ok := m.recs[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memStaging) CountByStatus(context.Context) (map[model.StagingStatus]int, error) {
	counts := make(map[model.StagingStatus]int)
	for _, r := range m.recs {
		counts[r.Status]++
	}
	return counts, nil
}

// memQuarantine is an in-memory QuarantineStore.
type memQuarantine struct {
	recs      map[string]model.QuarantineRecord
	order     []string
	updateErr map[string]error
}

func newMemQuarantine() *memQuarantine {
	return &memQuarantine{recs: make(map[string]model.QuarantineRecord), updateErr: make(map[string]error)}
}

func (m *memQuarantine) Insert(_ context.Context, q *model.QuarantineRecord) error {
	if q.ID == "" {
		q.ID = fmt.Sprintf("q-%d", len(m.order)+1)
	}
	if q.ReviewStatus == "" {
		q.ReviewStatus = model.ReviewPending
	}
	m.recs[q.ID] = *q
	m.order = append(m.order, q.ID)
	return nil
}

func (m *memQuarantine) ListApproved(ctx context.Context, limit int) ([]model.QuarantineRecord, error) {
	return m.List(ctx, store.QuarantineFilter{Status: model.ReviewApproved, Limit: limit})
}

func (m *memQuarantine) UpdateReviewStatus(_ context.Context, id string, status model.ReviewStatus, note string) error {
	if err := m.updateErr[id]; err != nil {
		return err
	}
	q, ok := m.recs[id]
	if !ok {
		return fmt.Errorf("quarantine record not found: %s", id)
	}
	now := time.Now().UTC()
	q.ReviewStatus, q.ReviewNote, q.ReviewedAt = status, note, &now
	m.recs[id] = q
	return nil
}

func (m *memQuarantine) CorrectRawData(_ context.Context, id string, raw map[string]any) error {
	q, ok := m.recs[id]
	if !ok {
		return fmt.Errorf("quarantine record not found: %s", id)
	}
	q.RawData = raw
	m.recs[id] = q
	return nil
}

func (m *memQuarantine) Get(_ context.Context, id string) (*model.QuarantineRecord, error) {
	q, ok := m.recs[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (m *memQuarantine) List(_ context.Context, f store.QuarantineFilter) ([]model.QuarantineRecord, error) {
	var out []model.QuarantineRecord
	for _, id := range m.order {
		q := m.recs[id]
		if f.Status != "" && q.ReviewStatus != f.Status {
			continue
		}
		if f.Source != "" && q.Source != f.Source {
			continue
		}
		out = append(out, q)
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memQuarantine) CountByReviewStatus(context.Context) (map[model.ReviewStatus]int, error) {
	counts := make(map[model.ReviewStatus]int)
	for _, s := range model.ReviewStatuses {
		counts[s] = 0
	}
	for _, q := range m.recs {
		counts[q.ReviewStatus]++
	}
	return counts, nil
}

func (m *memStaging) sources() []string {
	var out []string
	for _, r := range m.recs {
		out = append(out, r.Source)
	}
	sort.Strings(out)
	return out
}

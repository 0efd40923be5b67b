// Package quarantine holds records that failed validation for human review
// and feeds approved ones back into staging.
package quarantine

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/store"
)

// ReprocessedSuffix is appended to the source of records re-staged after review.
const ReprocessedSuffix = "_reprocessed"

var (
	// ErrNotFound is returned when a quarantine record does not exist.
	ErrNotFound = eris.New("quarantine: record not found")
	// ErrInvalidTransition is returned for a review decision the record's status does not allow.
	ErrInvalidTransition = eris.New("quarantine: invalid review transition")
)

// Manager writes quarantine records, applies review decisions, and
// re-stages approved records.
type Manager struct {
	staging    store.StagingStore
	quarantine store.QuarantineStore
}

// NewManager creates a Manager.
func NewManager(staging store.StagingStore, quarantine store.QuarantineStore) *Manager {
	return &Manager{staging: staging, quarantine: quarantine}
}

// Reprocessed links an approved quarantine record to its new staging record.
type Reprocessed struct {
	QuarantineID string `json:"quarantine_id"`
	StagingID    string `json:"staging_id"`
	Source       string `json:"source"`
}

// Quarantine stores the raw data of a failed staging record with every
// validation error and warning.
func (m *Manager) Quarantine(ctx context.Context, rec model.StagingRecord, result model.ValidationResult) (*model.QuarantineRecord, error) {
	q := &model.QuarantineRecord{
		StagingID:         rec.ID,
		RawData:           rec.RawData,
		Errors:            append([]string(nil), result.Errors...),
		Warnings:          append([]string(nil), result.Warnings...),
		Source:            rec.Source,
		CompletenessScore: result.CompletenessScore,
		ReviewStatus:      model.ReviewPending,
	}
	if err := m.quarantine.Insert(ctx, q); err != nil {
		return nil, eris.Wrapf(err, "quarantine: insert for staging record %s", rec.ID)
	}
	zap.L().Info("quarantine: record quarantined",
		zap.String("staging_id", rec.ID),
		zap.String("quarantine_id", q.ID),
		zap.Strings("errors", q.Errors),
	)
	return q, nil
}

// Decision is a reviewer's verdict on a quarantine record. RawData is an
// optional correction, accepted only with an approval; it replaces the
// stored raw data so the re-staged record carries the fix.
type Decision struct {
	Status  model.ReviewStatus `json:"status"`
	Note    string             `json:"note"`
	RawData map[string]any     `json:"raw_data,omitempty"`
}

// Review records a reviewer decision. Only pending records may be approved
// or rejected. Approving without RawData re-stages the original data,
// which quarantines again unless the problem was fixed elsewhere.
func (m *Manager) Review(ctx context.Context, id string, d Decision) (*model.QuarantineRecord, error) {
	q, err := m.quarantine.Get(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "quarantine: get %s", id)
	}
	if q == nil {
		return nil, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	if d.Status != model.ReviewApproved && d.Status != model.ReviewRejected {
		return nil, eris.Wrapf(ErrInvalidTransition, "reviewers may only approve or reject, got %q", d.Status)
	}
	if d.RawData != nil && d.Status != model.ReviewApproved {
		return nil, eris.Wrap(ErrInvalidTransition, "corrected raw data requires approval")
	}
	if !q.ReviewStatus.CanTransition(d.Status) {
		return nil, eris.Wrapf(ErrInvalidTransition, "%s -> %s", q.ReviewStatus, d.Status)
	}
	if d.RawData != nil {
		if err := m.quarantine.CorrectRawData(ctx, id, d.RawData); err != nil {
			return nil, eris.Wrapf(err, "quarantine: correct %s", id)
		}
	}
	if err := m.quarantine.UpdateReviewStatus(ctx, id, d.Status, d.Note); err != nil {
		return nil, eris.Wrapf(err, "quarantine: review %s", id)
	}
	return m.quarantine.Get(ctx, id)
}

// ReprocessApproved re-stages up to limit approved records as pending with
// a "<source>_reprocessed" source. Each record is marked fixed before its
// staging row is written and returned to approved if that write fails, so
// a record is never staged twice. Failures on one record are logged and
// skipped.
func (m *Manager) ReprocessApproved(ctx context.Context, limit int) ([]Reprocessed, error) {
	log := zap.L().With(zap.String("component", "quarantine"))

	approved, err := m.quarantine.ListApproved(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "quarantine: list approved")
	}

	out := make([]Reprocessed, 0, len(approved))
	for _, q := range approved {
		qlog := log.With(zap.String("quarantine_id", q.ID))
		if err := m.quarantine.UpdateReviewStatus(ctx, q.ID, model.ReviewFixed, q.ReviewNote); err != nil {
			qlog.Error("reprocess: mark fixed failed", zap.Error(err))
			continue
		}

		rec := &model.StagingRecord{
			RawData: q.RawData,
			Source:  ReprocessedSource(q.Source),
			Status:  model.StagingPending,
		}
		if err := m.staging.Insert(ctx, rec); err != nil {
			qlog.Error("reprocess: insert staging record failed", zap.Error(err))
			if rerr := m.quarantine.UpdateReviewStatus(context.WithoutCancel(ctx), q.ID, model.ReviewApproved, q.ReviewNote); rerr != nil {
				qlog.Error("reprocess: restore approved failed, record is fixed without a staging row", zap.Error(rerr))
			}
			continue
		}
		out = append(out, Reprocessed{QuarantineID: q.ID, StagingID: rec.ID, Source: rec.Source})
	}

	log.Info("reprocess: complete", zap.Int("approved", len(approved)), zap.Int("restaged", len(out)))
	return out, nil
}

// List returns quarantine records for review tooling.
func (m *Manager) List(ctx context.Context, filter store.QuarantineFilter) ([]model.QuarantineRecord, error) {
	list, err := m.quarantine.List(ctx, filter)
	return list, eris.Wrap(err, "quarantine: list")
}

// Counts returns the number of quarantine records per review status.
func (m *Manager) Counts(ctx context.Context) (map[model.ReviewStatus]int, error) {
	counts, err := m.quarantine.CountByReviewStatus(ctx)
	return counts, eris.Wrap(err, "quarantine: count")
}

// ReprocessedSource tags source as reprocessed once; repeated passes keep a single suffix.
func ReprocessedSource(source string) string {
	if strings.HasSuffix(source, ReprocessedSuffix) {
		return source
	}
	if source == "" {
		return strings.TrimPrefix(ReprocessedSuffix, "_")
	}
	return source + ReprocessedSuffix
}

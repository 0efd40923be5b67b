package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/store"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Staging and quarantine depth.
	Staging    map[model.StagingStatus]int `json:"staging"`
	Quarantine map[model.ReviewStatus]int  `json:"quarantine"`

	// StagingBacklog counts records not yet finished (pending + processing).
	StagingBacklog int `json:"staging_backlog"`
	// StagingFinished counts records in a terminal status.
	StagingFinished int `json:"staging_finished"`
	// QuarantineRate is quarantined / finished.
	QuarantineRate float64 `json:"quarantine_rate"`

	// Enrichment activity within the lookback window.
	EnrichmentRecent int            `json:"enrichment_recent"`
	EnrichmentBySrc  map[string]int `json:"enrichment_by_source"`
	StaleProspects   int            `json:"stale_prospects"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the stores.
type Collector struct {
	store      store.Store
	staleAfter time.Duration
}

// NewCollector creates a new metrics collector. staleAfter matches the
// enrichment scheduler's re-enrichment cutoff.
func NewCollector(st store.Store, staleAfter time.Duration) *Collector {
	if staleAfter <= 0 {
		staleAfter = 7 * 24 * time.Hour
	}
	return &Collector{store: st, staleAfter: staleAfter}
}

// Collect gathers a snapshot of pipeline metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours:   lookbackHours,
		CollectedAt:     now,
		EnrichmentBySrc: make(map[string]int),
	}

	staging, err := c.store.Staging().CountByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count staging")
	}
	snap.Staging = staging
	snap.StagingBacklog = staging[model.StagingPending] + staging[model.StagingProcessing]
	for status, n := range staging {
		if status.Terminal() {
			snap.StagingFinished += n
		}
	}
	if snap.StagingFinished > 0 {
		snap.QuarantineRate = float64(staging[model.StagingQuarantined]) / float64(snap.StagingFinished)
	}

	quarantine, err := c.store.Quarantine().CountByReviewStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count quarantine")
	}
	snap.Quarantine = quarantine

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	recent, err := c.store.Enrichment().QueryRecent(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: query recent enrichment")
	}
	snap.EnrichmentRecent = len(recent)
	for _, e := range recent {
		snap.EnrichmentBySrc[e.Source]++
	}

	stale, err := c.store.Prospects().CountStale(ctx, now.Add(-c.staleAfter))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count stale prospects")
	}
	snap.StaleProspects = stale

	return snap, nil
}

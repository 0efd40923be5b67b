package model

import (
	"time"

	"github.com/sells-group/prospect-pipeline/internal/payload"
)

// EnrichmentData is one append-only enrichment observation for a prospect.
type EnrichmentData struct {
	ID         string        `json:"id"`
	ProspectID string        `json:"prospect_id"`
	Source     string        `json:"source"`
	Data       payload.Value `json:"data"`
	FetchedAt  time.Time     `json:"fetched_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

// Expired reports whether the observation is past its TTL at now.
func (e EnrichmentData) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

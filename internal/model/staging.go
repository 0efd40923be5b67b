package model

import "time"

// StagingStatus is the lifecycle state of a staged record.
type StagingStatus string

const (
	StagingPending     StagingStatus = "pending"
	StagingProcessing  StagingStatus = "processing"
	StagingProcessed   StagingStatus = "processed"
	StagingQuarantined StagingStatus = "quarantined"
	StagingError       StagingStatus = "error"
)

// StagingStatuses lists every status in lifecycle order.
var StagingStatuses = []StagingStatus{
	StagingPending, StagingProcessing, StagingProcessed, StagingQuarantined, StagingError,
}

// Terminal reports whether the pipeline will never touch a record in this status again.
func (s StagingStatus) Terminal() bool {
	return s == StagingProcessed || s == StagingQuarantined || s == StagingError
}

// CanTransition reports whether moving from s to next respects the
// one-directional lifecycle: pending -> processing -> {processed, quarantined, error}.
func (s StagingStatus) CanTransition(next StagingStatus) bool {
	switch s {
	case StagingPending:
		return next == StagingProcessing
	case StagingProcessing:
		return next.Terminal()
	default:
		return false
	}
}

// StagingRecord is a raw observation awaiting pipeline processing.
type StagingRecord struct {
	ID            string         `json:"id"`
	RawData       map[string]any `json:"raw_data"`
	Source        string         `json:"source"`
	Status        StagingStatus  `json:"status"`
	ProcessingLog []string       `json:"processing_log,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
}

package model

import "time"

// ReviewStatus is the human-review state of a quarantined record.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
	ReviewFixed    ReviewStatus = "fixed"
)

// ReviewStatuses lists every review status.
var ReviewStatuses = []ReviewStatus{ReviewPending, ReviewApproved, ReviewRejected, ReviewFixed}

// CanTransition reports whether a quarantine record may move from s to next.
// Reviewers decide pending -> {approved, rejected}; the reprocessor moves approved -> fixed.
func (s ReviewStatus) CanTransition(next ReviewStatus) bool {
	switch s {
	case ReviewPending:
		return next == ReviewApproved || next == ReviewRejected
	case ReviewApproved:
		return next == ReviewFixed
	default:
		return false
	}
}

// Valid reports whether s is a known review status.
func (s ReviewStatus) Valid() bool {
	for _, rs := range ReviewStatuses {
		if s == rs {
			return true
		}
	}
	return false
}

// QuarantineRecord holds a staged record that failed validation.
type QuarantineRecord struct {
	ID                string         `json:"id"`
	StagingID         string         `json:"staging_id,omitempty"`
	RawData           map[string]any `json:"raw_data"`
	Errors            []string       `json:"errors"`
	Warnings          []string       `json:"warnings,omitempty"`
	Source            string         `json:"source"`
	CompletenessScore float64        `json:"completeness_score"`
	ReviewStatus      ReviewStatus   `json:"review_status"`
	ReviewNote        string         `json:"review_note,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	ReviewedAt        *time.Time     `json:"reviewed_at,omitempty"`
}

// ValidationResult is the validator's verdict on one record.
type ValidationResult struct {
	IsValid           bool     `json:"is_valid"`
	Errors            []string `json:"errors"`
	Warnings          []string `json:"warnings"`
	CompletenessScore float64  `json:"completeness_score"`
}

// Package store persists staging, prospect, quarantine, and enrichment
// records in Postgres or SQLite.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-pipeline/internal/model"
)

// StagingStore holds raw intake records awaiting the pipeline.
type StagingStore interface {
	Insert(ctx context.Context, rec *model.StagingRecord) error
	InsertBatch(ctx context.Context, recs []model.StagingRecord) (int64, error)
	// ClaimPending atomically moves up to limit of the oldest pending
	// records to processing and returns them oldest-first.
	ClaimPending(ctx context.Context, limit int) ([]model.StagingRecord, error)
	UpdateStatus(ctx context.Context, id string, status model.StagingStatus, log []string) error
	Get(ctx context.Context, id string) (*model.StagingRecord, error)
	CountByStatus(ctx context.Context) (map[model.StagingStatus]int, error)
}

// ProspectStore holds canonical prospects. Find methods return (nil, nil)
// when nothing matches.
type ProspectStore interface {
	FindByEmail(ctx context.Context, email string) (*model.Prospect, error)
	FindByLinkedInURL(ctx context.Context, url string) (*model.Prospect, error)
	// FindByNameAndCompany returns fuzzy-match candidates blocked on the
	// first letter of the company and of either name. Exact full-name
	// hits come first, then exact company, then exact last name.
	FindByNameAndCompany(ctx context.Context, firstName, lastName, company string) ([]model.Prospect, error)
	Insert(ctx context.Context, p *model.Prospect) error
	// Update writes p only while the stored updated_at still equals
	// p.UpdatedAt, then advances p.UpdatedAt. A row changed since it was
	// read yields ErrConflict.
	Update(ctx context.Context, p *model.Prospect) error
	Get(ctx context.Context, id string) (*model.Prospect, error)
	BulkQuery(ctx context.Context, ids []string) ([]model.Prospect, error)
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]model.Prospect, error)
	CountStale(ctx context.Context, cutoff time.Time) (int, error)
}

// QuarantineFilter narrows quarantine listings.
type QuarantineFilter struct {
	Status model.ReviewStatus `json:"status,omitempty"`
	Source string             `json:"source,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// QuarantineStore holds records that failed validation.
type QuarantineStore interface {
	Insert(ctx context.Context, q *model.QuarantineRecord) error
	ListApproved(ctx context.Context, limit int) ([]model.QuarantineRecord, error)
	UpdateReviewStatus(ctx context.Context, id string, status model.ReviewStatus, note string) error
	// CorrectRawData replaces the stored raw data with a reviewer's correction.
	CorrectRawData(ctx context.Context, id string, raw map[string]any) error
	Get(ctx context.Context, id string) (*model.QuarantineRecord, error)
	List(ctx context.Context, filter QuarantineFilter) ([]model.QuarantineRecord, error)
	CountByReviewStatus(ctx context.Context) (map[model.ReviewStatus]int, error)
}

// EnrichmentStore is an append-only log of enrichment observations.
type EnrichmentStore interface {
	Insert(ctx context.Context, e *model.EnrichmentData) error
	QueryRecent(ctx context.Context, since time.Time) ([]model.EnrichmentData, error)
	// LatestBySource returns the newest record per source for a prospect.
	LatestBySource(ctx context.Context, prospectID string) (map[string]model.EnrichmentData, error)
	// Current returns the newest non-expired record for a prospect and source.
	Current(ctx context.Context, prospectID, source string) (*model.EnrichmentData, error)
}

// Store bundles the four record stores behind one connection.
type Store interface {
	Staging() StagingStore
	Prospects() ProspectStore
	Quarantine() QuarantineStore
	Enrichment() EnrichmentStore

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the configured backend.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case DriverPostgres:
		return NewPostgres(ctx, dsn, poolCfg)
	case DriverSQLite, "":
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

const defaultListLimit = 100

// ErrConflict reports a prospect write against a stale read.
var ErrConflict = eris.New("store: prospect changed since read")

// ConflictAttempts bounds how often a read-modify-write is retried on ErrConflict.
const ConflictAttempts = 5

// RetryConflicts runs fn until it returns something other than ErrConflict
// or ConflictAttempts runs are used up. fn must re-read what it writes.
func RetryConflicts(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for range ConflictAttempts {
		if err = fn(ctx); !eris.Is(err, ErrConflict) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

// nextVersion is the updated_at written over prev. It is truncated to the
// microsecond precision Postgres keeps and always moves forward.
func nextVersion(prev time.Time) time.Time {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/payload"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Staging ---

func TestSQLite_Staging_InsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := &model.StagingRecord{RawData: map[string]any{"email": "a@b.com", "score": 3}, Source: "csv"}
	require.NoError(t, st.Staging().Insert(ctx, rec))
	require.NotEmpty(t, rec.ID)

	got, err := st.Staging().Get(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StagingPending, got.Status)
	assert.Equal(t, "csv", got.Source)
	assert.Equal(t, "a@b.com", got.RawData["email"])
	assert.Equal(t, float64(3), got.RawData["score"])
	assert.Empty(t, got.ProcessingLog)
	assert.Nil(t, got.ProcessedAt)
}

func TestSQLite_Staging_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)
	got, err := st.Staging().Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Staging_ClaimPendingOldestFirst(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	recs := []model.StagingRecord{
		{ID: "c", RawData: map[string]any{}, CreatedAt: base.Add(3 * time.Minute)},
		{ID: "a", RawData: map[string]any{}, CreatedAt: base.Add(1 * time.Minute)},
		{ID: "b", RawData: map[string]any{}, CreatedAt: base.Add(2 * time.Minute)},
	}
	n, err := st.Staging().InsertBatch(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	claimed, err := st.Staging().ClaimPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, "a", claimed[0].ID)
	assert.Equal(t, "b", claimed[1].ID)
	assert.Equal(t, model.StagingProcessing, claimed[0].Status)

	again, err := st.Staging().ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "c", again[0].ID)

	none, err := st.Staging().ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_Staging_UpdateStatusAndCounts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := &model.StagingRecord{RawData: map[string]any{}}
	require.NoError(t, st.Staging().Insert(ctx, rec))
	require.NoError(t, st.Staging().UpdateStatus(ctx, rec.ID, model.StagingQuarantined, []string{"normalized", "quarantined"}))

	got, err := st.Staging().Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StagingQuarantined, got.Status)
	assert.Equal(t, []string{"normalized", "quarantined"}, got.ProcessingLog)
	assert.NotNil(t, got.ProcessedAt)

	counts, err := st.Staging().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.StagingQuarantined])
	assert.Equal(t, 0, counts[model.StagingPending])

	err = st.Staging().UpdateStatus(ctx, "missing", model.StagingError, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging record not found")
}

// --- Prospects ---

func TestSQLite_Prospects_FindAndUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	ps := st.Prospects()

	p := &model.Prospect{Identity: model.Identity{
		Email: "J.Doe@example.com", FirstName: "John", LastName: "Doe", CompanyName: "Example Corp",
		LinkedInURL: "https://www.linkedin.com/in/john-doe", Timezone: "UTC",
		Enrichment: payload.FromAny(map[string]any{"seniority": "vp"}),
	}}
	require.NoError(t, ps.Insert(ctx, p))

	byEmail, err := ps.FindByEmail(ctx, "j.doe@EXAMPLE.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, p.ID, byEmail.ID)
	assert.True(t, p.Enrichment.Equal(byEmail.Enrichment))

	byURL, err := ps.FindByLinkedInURL(ctx, "https://www.linkedin.com/in/john-doe")
	require.NoError(t, err)
	require.NotNil(t, byURL)

	missing, err := ps.FindByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	candidates, err := ps.FindByNameAndCompany(ctx, "Jon", "Doe", "example corp")
	require.NoError(t, err)
	assert.Len(t, candidates, 1)

	byEmail.JobTitle = "VP of Sales"
	require.NoError(t, ps.Update(ctx, byEmail))
	got, err := ps.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "VP of Sales", got.JobTitle)

	list, err := ps.BulkQuery(ctx, []string{p.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLite_Prospects_UniqueEmail(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.Prospects().Insert(ctx, &model.Prospect{Identity: model.Identity{Email: "a@b.com"}}))
	err := st.Prospects().Insert(ctx, &model.Prospect{Identity: model.Identity{Email: "A@B.com"}})
	assert.Error(t, err)

	require.NoError(t, st.Prospects().Insert(ctx, &model.Prospect{Identity: model.Identity{FirstName: "No", LastName: "Email"}}))
	require.NoError(t, st.Prospects().Insert(ctx, &model.Prospect{Identity: model.Identity{FirstName: "Also", LastName: "None"}}))
}

func TestSQLite_Prospects_Stale(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-10 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	for _, p := range []*model.Prospect{
		{ID: "never", Identity: model.Identity{Email: "n@x.com"}},
		{ID: "old", Identity: model.Identity{Email: "o@x.com", LastEnrichedAt: &old}},
		{ID: "fresh", Identity: model.Identity{Email: "f@x.com", LastEnrichedAt: &recent}},
	} {
		require.NoError(t, st.Prospects().Insert(ctx, p))
	}

	cutoff := now.Add(-7 * 24 * time.Hour)
	stale, err := st.Prospects().ListStale(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "never", stale[0].ID)
	assert.Equal(t, "old", stale[1].ID)

	n, err := st.Prospects().CountStale(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// --- Quarantine ---

func TestSQLite_Quarantine_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	qs := st.Quarantine()

	q := &model.QuarantineRecord{
		StagingID: "s-1",
		RawData:   map[string]any{"firstName": "Jane"},
		Errors:    []string{"email: Required"},
		Source:    "csv",
	}
	require.NoError(t, qs.Insert(ctx, q))
	assert.Equal(t, model.ReviewPending, q.ReviewStatus)

	got, err := qs.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"email: Required"}, got.Errors)
	assert.Empty(t, got.Warnings)
	assert.Nil(t, got.ReviewedAt)

	approved, err := qs.ListApproved(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, approved)

	require.NoError(t, qs.UpdateReviewStatus(ctx, q.ID, model.ReviewApproved, "fixed email upstream"))
	approved, err = qs.ListApproved(ctx, 10)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "fixed email upstream", approved[0].ReviewNote)
	assert.NotNil(t, approved[0].ReviewedAt)

	bySource, err := qs.List(ctx, QuarantineFilter{Source: "other"})
	require.NoError(t, err)
	assert.Empty(t, bySource)

	counts, err := qs.CountByReviewStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.ReviewApproved])
	assert.Equal(t, 0, counts[model.ReviewPending])
}

// --- Enrichment ---

func TestSQLite_Enrichment_LatestAndCurrent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := &model.Prospect{Identity: model.Identity{Email: "a@b.com"}}
	require.NoError(t, st.Prospects().Insert(ctx, p))

	es := st.Enrichment()
	require.NoError(t, es.Insert(ctx, &model.EnrichmentData{
		ProspectID: p.ID, Source: "people", Data: payload.FromAny(map[string]any{"v": 1}),
		FetchedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}))
	require.NoError(t, es.Insert(ctx, &model.EnrichmentData{
		ProspectID: p.ID, Source: "people", Data: payload.FromAny(map[string]any{"v": 2}),
		FetchedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, es.Insert(ctx, &model.EnrichmentData{
		ProspectID: p.ID, Source: "site", Data: payload.FromAny(map[string]any{"title": "x"}),
		FetchedAt: now.Add(-30 * time.Hour), ExpiresAt: now.Add(-time.Minute),
	}))

	latest, err := es.LatestBySource(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.WithinDuration(t, now.Add(-2*time.Hour), latest["people"].FetchedAt, time.Millisecond)

	cur, err := es.Current(ctx, p.ID, "people")
	require.NoError(t, err)
	require.NotNil(t, cur)
	v, ok := cur.Data.Get("v")
	require.True(t, ok)
	n, _ := v.Scalar()
	assert.Equal(t, float64(2), n)

	expired, err := es.Current(ctx, p.ID, "site")
	require.NoError(t, err)
	assert.Nil(t, expired)

	recent, err := es.QueryRecent(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestSQLiteDSN(t *testing.T) {
	assert.Contains(t, sqliteDSN("/tmp/p.db"), "/tmp/p.db?_pragma=")
	assert.Contains(t, sqliteDSN("file:p.db?mode=rwc"), "file:p.db?mode=rwc&_pragma=")
	assert.Contains(t, sqliteDSN("p.db"), "busy_timeout%285000%29")
}

func TestNewSQLite_PragmasOnEveryConnection(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var fk int
	require.NoError(t, st.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var mode string
	require.NoError(t, st.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestNewSQLite_EmptyDSN(t *testing.T) {
	_, err := NewSQLite("")
	assert.Error(t, err)
}

func TestSQLite_Prospects_UpdateRejectsStaleRead(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	ps := st.Prospects()
	require.NoError(t, ps.Insert(ctx, &model.Prospect{ID: "p1", Identity: model.Identity{Email: "a@x.com"}}))

	first, err := ps.Get(ctx, "p1")
	require.NoError(t, err)
	second, err := ps.Get(ctx, "p1")
	require.NoError(t, err)

	first.JobTitle = "CTO"
	require.NoError(t, ps.Update(ctx, first))
	require.NoError(t, ps.Update(ctx, first), "a writer may update again from its own result")

	second.Phone = "+1 (555) 000-0000"
	err = ps.Update(ctx, second)
	assert.True(t, eris.Is(err, ErrConflict))

	got, err := ps.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "CTO", got.JobTitle)
	assert.Empty(t, got.Phone)

	err = ps.Update(ctx, &model.Prospect{ID: "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prospect not found")
}

func TestRetryConflicts(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := RetryConflicts(ctx, func(context.Context) error {
		calls++
		if calls < 3 {
			return ErrConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryConflicts(ctx, func(context.Context) error {
		calls++
		return ErrConflict
	})
	assert.True(t, eris.Is(err, ErrConflict))
	assert.Equal(t, ConflictAttempts, calls)

	calls = 0
	err = RetryConflicts(ctx, func(context.Context) error {
		calls++
		return eris.New("disk full")
	})
	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 1, calls)
}

func TestSQLite_Prospects_FindByNameAndCompany_ExactBeyondLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	ps := st.Prospects()

	for i := range fuzzyCandidateLimit {
		require.NoError(t, ps.Insert(ctx, &model.Prospect{Identity: model.Identity{
			FirstName: "Sam", LastName: fmt.Sprintf("Smith%d", i), CompanyName: "Acme Widgets",
		}}))
	}
	jane := &model.Prospect{Identity: model.Identity{FirstName: "Jane", LastName: "Smith", CompanyName: "Acme"}}
	require.NoError(t, ps.Insert(ctx, jane))

	candidates, err := ps.FindByNameAndCompany(ctx, "jane", "SMITH", "acme")
	require.NoError(t, err)
	assert.Len(t, candidates, fuzzyCandidateLimit)
	assert.Equal(t, jane.ID, candidates[0].ID)
}

package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/payload"
	"github.com/sells-group/prospect-pipeline/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "monitoring.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestCollector_Collect(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, st.Staging().Insert(ctx, &model.StagingRecord{RawData: map[string]any{}}))
	}
	done := &model.StagingRecord{RawData: map[string]any{}}
	require.NoError(t, st.Staging().Insert(ctx, done))
	require.NoError(t, st.Staging().UpdateStatus(ctx, done.ID, model.StagingQuarantined, nil))

	require.NoError(t, st.Quarantine().Insert(ctx, &model.QuarantineRecord{StagingID: done.ID, Errors: []string{"email: Required"}}))

	fresh := time.Now().UTC().Add(-time.Hour)
	p := &model.Prospect{Identity: model.Identity{Email: "a@b.com", LastEnrichedAt: &fresh}}
	require.NoError(t, st.Prospects().Insert(ctx, p))
	require.NoError(t, st.Prospects().Insert(ctx, &model.Prospect{Identity: model.Identity{Email: "c@d.com"}}))
	require.NoError(t, st.Enrichment().Insert(ctx, &model.EnrichmentData{
		ProspectID: p.ID, Source: "peopledata_person", Data: payload.FromAny(map[string]any{"k": "v"}),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}))

	snap, err := NewCollector(st, 7*24*time.Hour).Collect(ctx, 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.Staging[model.StagingPending])
	assert.Equal(t, 3, snap.StagingBacklog)
	assert.Equal(t, 1, snap.StagingFinished)
	assert.InDelta(t, 1.0, snap.QuarantineRate, 0.001)
	assert.Equal(t, 1, snap.Quarantine[model.ReviewPending])
	assert.Equal(t, 1, snap.EnrichmentRecent)
	assert.Equal(t, 1, snap.EnrichmentBySrc["peopledata_person"])
	assert.Equal(t, 1, snap.StaleProspects)
	assert.Equal(t, 24, snap.LookbackHours)
}

func TestCollector_EmptyStore(t *testing.T) {
	st := newTestStore(t)

	snap, err := NewCollector(st, 0).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.StagingBacklog)
	assert.Zero(t, snap.QuarantineRate)
	assert.Zero(t, snap.EnrichmentRecent)
}

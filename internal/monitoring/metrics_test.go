package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/prospect-pipeline/internal/model"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.StagingOutcome("processed")
	m.RunSkipped()
	m.RunActive(true)
	m.EnrichmentResult("success")
	m.ProviderRetry("request")
	m.Observe(&MetricsSnapshot{})
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.StagingOutcome("processed")
	m.StagingOutcome("processed")
	m.StagingOutcome("quarantined")
	m.RunSkipped()
	m.RunActive(true)
	m.EnrichmentResult("failed")
	m.ProviderRetry("request")

	assert.InDelta(t, 2, testutil.ToFloat64(m.stagingOutcomes.WithLabelValues("processed")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.stagingOutcomes.WithLabelValues("quarantined")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.skippedRuns), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runInProgress), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.enrichmentResults.WithLabelValues("failed")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.providerRetries.WithLabelValues("request")), 0.001)

	m.RunActive(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.runInProgress), 0.001)
}

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Observe(&MetricsSnapshot{
		Staging:        map[model.StagingStatus]int{model.StagingPending: 7},
		Quarantine:     map[model.ReviewStatus]int{model.ReviewApproved: 2},
		StaleProspects: 11,
	})

	assert.InDelta(t, 7, testutil.ToFloat64(m.stagingDepth.WithLabelValues("pending")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.quarantineDepth.WithLabelValues("approved")), 0.001)
	assert.InDelta(t, 11, testutil.ToFloat64(m.staleProspects), 0.001)
}

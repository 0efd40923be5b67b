package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "prospect_pipeline"

// Metrics holds the pipeline's Prometheus instruments. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	stagingOutcomes   *prometheus.CounterVec
	skippedRuns       prometheus.Counter
	runInProgress     prometheus.Gauge
	enrichmentResults *prometheus.CounterVec
	providerRetries   *prometheus.CounterVec
	stagingDepth      *prometheus.GaugeVec
	quarantineDepth   *prometheus.GaugeVec
	staleProspects    prometheus.Gauge
}

// NewMetrics creates the instruments and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stagingOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staging_records_total",
			Help:      "Staging records processed, by outcome.",
		}, []string{"outcome"}),
		skippedRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_runs_total",
			Help:      "Batch runs rejected because another run was active.",
		}),
		runInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a staging batch run is active.",
		}),
		enrichmentResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_results_total",
			Help:      "Prospect enrichment attempts, by result.",
		}, []string{"result"}),
		providerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Retried provider calls, by operation.",
		}, []string{"operation"}),
		stagingDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staging_records",
			Help:      "Staging records by status at the last check.",
		}, []string{"status"}),
		quarantineDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quarantine_records",
			Help:      "Quarantine records by review status at the last check.",
		}, []string{"review_status"}),
		staleProspects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_prospects",
			Help:      "Prospects due for re-enrichment at the last check.",
		}),
	}
	reg.MustRegister(
		m.stagingOutcomes, m.skippedRuns, m.runInProgress, m.enrichmentResults,
		m.providerRetries, m.stagingDepth, m.quarantineDepth, m.staleProspects,
	)
	return m
}

// StagingOutcome counts one staging record by outcome: a terminal status,
// or unrecorded when the status write failed.
func (m *Metrics) StagingOutcome(outcome string) {
	if m == nil {
		return
	}
	m.stagingOutcomes.WithLabelValues(outcome).Inc()
}

// RunSkipped counts a rejected reentrant run.
func (m *Metrics) RunSkipped() {
	if m == nil {
		return
	}
	m.skippedRuns.Inc()
}

// RunActive sets the run-in-progress gauge.
func (m *Metrics) RunActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.runInProgress.Set(1)
		return
	}
	m.runInProgress.Set(0)
}

// EnrichmentResult counts one enrichment attempt (success, failed, skipped).
func (m *Metrics) EnrichmentResult(result string) {
	if m == nil {
		return
	}
	m.enrichmentResults.WithLabelValues(result).Inc()
}

// ProviderRetry counts one provider retry.
func (m *Metrics) ProviderRetry(operation string) {
	if m == nil {
		return
	}
	m.providerRetries.WithLabelValues(operation).Inc()
}

// Observe publishes a snapshot to the depth gauges.
func (m *Metrics) Observe(snap *MetricsSnapshot) {
	if m == nil || snap == nil {
		return
	}
	for status, n := range snap.Staging {
		m.stagingDepth.WithLabelValues(string(status)).Set(float64(n))
	}
	for status, n := range snap.Quarantine {
		m.quarantineDepth.WithLabelValues(string(status)).Set(float64(n))
	}
	m.staleProspects.Set(float64(snap.StaleProspects))
}

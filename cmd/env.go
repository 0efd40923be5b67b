package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-pipeline/internal/config"
	"github.com/sells-group/prospect-pipeline/internal/db"
	"github.com/sells-group/prospect-pipeline/internal/enrichment"
	"github.com/sells-group/prospect-pipeline/internal/monitoring"
	"github.com/sells-group/prospect-pipeline/internal/normalize"
	"github.com/sells-group/prospect-pipeline/internal/pipeline"
	"github.com/sells-group/prospect-pipeline/internal/resilience"
	"github.com/sells-group/prospect-pipeline/internal/store"
	"github.com/sells-group/prospect-pipeline/internal/validate"
	"github.com/sells-group/prospect-pipeline/pkg/peopledata"
)

// pipelineEnv holds the store and the components built on it for the
// process, enrich, work, and serve commands.
type pipelineEnv struct {
	Store      store.Store
	Registry   *prometheus.Registry
	Metrics    *monitoring.Metrics
	Dispatcher *pipeline.Dispatcher
	Scheduler  *enrichment.Scheduler // nil unless enrichment was requested
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
}

// openStore validates cfg for mode, opens the store, and applies migrations.
// Callers should defer st.Close().
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initPipeline builds the dispatcher and, when withEnrichment is set, the
// enrichment scheduler. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string, withEnrichment bool) (*pipelineEnv, error) {
	st, err := openStore(ctx, mode)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	guard, err := pipeline.NewGuard(cfg.Pipeline.Guard, poolOf(st), cfg.Pipeline.LockFile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	dispatcher := pipeline.NewDispatcher(st, pipeline.NewRunState(guard),
		pipeline.WithNormalizer(normalize.New(normalize.DefaultTables())),
		pipeline.WithValidator(validate.New(cfg.Pipeline.FreeProviders)),
		pipeline.WithFuzzyThreshold(cfg.Pipeline.FuzzyThreshold),
		pipeline.WithEnrichmentTTL(time.Duration(cfg.Enrichment.DefaultTTLHours)*time.Hour),
		pipeline.WithMetrics(metrics),
	)

	env := &pipelineEnv{
		Store:      st,
		Registry:   reg,
		Metrics:    metrics,
		Dispatcher: dispatcher,
	}
	if withEnrichment {
		client := initPeopleData(cfg.Provider, metrics)
		agent := enrichment.NewProviderAgent(st.Prospects(), client)
		env.Scheduler = enrichment.NewScheduler(st.Prospects(), st.Enrichment(), agent,
			enrichment.NewConfig(cfg.Enrichment),
			enrichment.WithMetrics(metrics),
		)
	}
	return env, nil
}

// poolOf returns the Postgres pool behind st, or nil for other backends.
func poolOf(st store.Store) db.Pool {
	if pg, ok := st.(*store.PostgresStore); ok {
		return pg.Pool()
	}
	return nil
}

// initPeopleData builds the provider client with the configured retry
// schedule. Each retry is logged and counted.
func initPeopleData(pc config.ProviderConfig, metrics *monitoring.Metrics) peopledata.Client {
	retry := resilience.FromSettings(
		pc.MaxAttempts,
		time.Duration(pc.InitialBackoffMs)*time.Millisecond,
		time.Duration(pc.MaxBackoffMs)*time.Millisecond,
		pc.Multiplier,
	)
	logRetry := resilience.RetryLogger("peopledata", "request")
	retry.OnRetry = func(attempt int, err error) {
		metrics.ProviderRetry("request")
		logRetry(attempt, err)
	}

	opts := []peopledata.Option{
		peopledata.WithRetryConfig(retry),
		peopledata.WithHTTPClient(&http.Client{
			Timeout: time.Duration(pc.TimeoutSecs) * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}),
	}
	if pc.BaseURL != "" {
		opts = append(opts, peopledata.WithBaseURL(pc.BaseURL))
	}
	zap.L().Debug("people-data client configured",
		zap.String("base_url", pc.BaseURL),
		zap.Int("max_attempts", retry.MaxAttempts),
	)
	return peopledata.NewClient(pc.Key, opts...)
}

// newChecker wires the periodic health checker over env.
func newChecker(env *pipelineEnv) *monitoring.Checker {
	collector := monitoring.NewCollector(env.Store, cfg.Enrichment.StaleAfter())
	return monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), env.Metrics, cfg.Monitoring)
}

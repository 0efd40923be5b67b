package enrichment

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-pipeline/internal/config"
	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/monitoring"
	"github.com/sells-group/prospect-pipeline/internal/payload"
	"github.com/sells-group/prospect-pipeline/internal/store"
)

// Config controls selection, pacing, and freshness.
type Config struct {
	StaleAfter      time.Duration
	BatchLimit      int
	Delay           time.Duration
	ItemTimeout     time.Duration
	FreshWindow     time.Duration
	HealthWindow    time.Duration
	RequiredSources []string
	DefaultTTL      time.Duration
	SourceTTL       map[string]time.Duration
}

// NewConfig builds a scheduler Config from application settings.
func NewConfig(c config.EnrichmentConfig) Config {
	return Config{
		StaleAfter:      c.StaleAfter(),
		BatchLimit:      c.BatchLimit,
		Delay:           c.Delay(),
		ItemTimeout:     c.ItemTimeout(),
		FreshWindow:     c.FreshWindow(),
		HealthWindow:    c.HealthWindow(),
		RequiredSources: c.RequiredSources,
		DefaultTTL:      time.Duration(c.DefaultTTLHours) * time.Hour,
		SourceTTL:       c.SourceTTLs(),
	}
}

func (c Config) withDefaults() Config {
	if c.StaleAfter <= 0 {
		c.StaleAfter = 7 * 24 * time.Hour
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 100
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = 30 * time.Second
	}
	if c.FreshWindow <= 0 {
		c.FreshWindow = 24 * time.Hour
	}
	if c.HealthWindow <= 0 {
		c.HealthWindow = 24 * time.Hour
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 7 * 24 * time.Hour
	}
	return c
}

func (c Config) ttl(source string) time.Duration {
	if d, ok := c.SourceTTL[source]; ok && d > 0 {
		return d
	}
	return c.DefaultTTL
}

// ItemResult is the outcome of enriching one prospect.
type ItemResult struct {
	ProspectID string        `json:"prospect_id"`
	Success    bool          `json:"success"`
	Skipped    bool          `json:"skipped,omitempty"`
	Sources    []string      `json:"sources,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// BatchSummary aggregates a batch of enrichment attempts.
type BatchSummary struct {
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Details    []ItemResult `json:"details"`
}

// Health reports whether enrichment is producing data.
type Health struct {
	Healthy        bool           `json:"healthy"`
	Window         time.Duration  `json:"window"`
	RecentRecords  int            `json:"recent_records"`
	BySource       map[string]int `json:"by_source"`
	LastFetchedAt  *time.Time     `json:"last_fetched_at,omitempty"`
	StaleProspects int            `json:"stale_prospects"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics records enrichment outcomes on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler finds stale prospects and enriches them one at a time.
type Scheduler struct {
	prospects   store.ProspectStore
	enrichments store.EnrichmentStore
	agent       Agent
	cfg         Config
	limiter     *rate.Limiter
	metrics     *monitoring.Metrics
	now         func() time.Time
	log         *zap.Logger
}

// NewScheduler creates a Scheduler. Calls to the agent are spaced at
// least cfg.Delay apart.
func NewScheduler(prospects store.ProspectStore, enrichments store.EnrichmentStore, agent Agent, cfg Config, opts ...Option) *Scheduler {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	s := &Scheduler{
		prospects:   prospects,
		enrichments: enrichments,
		agent:       agent,
		cfg:         cfg,
		limiter:     rate.NewLimiter(limit, 1),
		now:         func() time.Time { return time.Now().UTC() },
		log:         zap.L().With(zap.String("component", "enrichment")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RunScheduled enriches up to BatchLimit prospects that were never
// enriched or were last enriched before the staleness cutoff, oldest first.
func (s *Scheduler) RunScheduled(ctx context.Context) (*BatchSummary, error) {
	cutoff := s.now().Add(-s.cfg.StaleAfter)
	stale, err := s.prospects.ListStale(ctx, cutoff, s.cfg.BatchLimit)
	if err != nil {
		return nil, eris.Wrap(err, "enrichment: list stale prospects")
	}
	ids := make([]string, len(stale))
	for i, p := range stale {
		ids[i] = p.ID
	}
	s.log.Info("scheduled enrichment starting",
		zap.Int("prospects", len(ids)),
		zap.Time("cutoff", cutoff),
	)
	return s.EnrichBatch(ctx, ids)
}

// EnrichBatch enriches the given prospects sequentially. A failure on one
// prospect is recorded in its ItemResult and the batch continues. The
// returned error is non-nil only when ctx ends the batch early.
func (s *Scheduler) EnrichBatch(ctx context.Context, ids []string) (*BatchSummary, error) {
	summary := &BatchSummary{Details: make([]ItemResult, 0, len(ids))}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, eris.Wrap(err, "enrichment: batch cancelled")
		}
		res := s.enrichOne(ctx, id, false)
		summary.Total++
		switch {
		case res.Skipped:
			summary.Skipped++
		case res.Success:
			summary.Successful++
		default:
			summary.Failed++
		}
		summary.Details = append(summary.Details, *res)
	}
	s.log.Info("enrichment batch complete",
		zap.Int("total", summary.Total),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// EnrichProspect enriches one prospect on demand. Fresh prospects are
// skipped unless force is set.
func (s *Scheduler) EnrichProspect(ctx context.Context, id string, force bool) (*ItemResult, error) {
	if id == "" {
		return nil, eris.New("enrichment: prospect id is required")
	}
	return s.enrichOne(ctx, id, force), nil
}

func (s *Scheduler) enrichOne(ctx context.Context, id string, force bool) *ItemResult {
	start := s.now()
	res := &ItemResult{ProspectID: id}
	log := s.log.With(zap.String("prospect_id", id))

	finish := func(err error) *ItemResult {
		res.Duration = s.now().Sub(start)
		switch {
		case err != nil:
			res.Error = err.Error()
			s.metrics.EnrichmentResult("failed")
			log.Warn("enrichment failed", zap.Error(err))
		case res.Skipped:
			s.metrics.EnrichmentResult("skipped")
			log.Debug("enrichment skipped, prospect is fresh")
		default:
			res.Success = true
			s.metrics.EnrichmentResult("success")
			log.Debug("prospect enriched", zap.Strings("sources", res.Sources))
		}
		return res
	}

	if !force {
		fresh, err := s.IsFresh(ctx, id)
		if err != nil {
			return finish(err)
		}
		if fresh {
			res.Skipped = true
			return finish(nil)
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return finish(eris.Wrap(err, "enrichment: wait for provider slot"))
	}

	itemCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
	defer cancel()

	payloads, err := s.agent.EnrichProspect(itemCtx, id)
	if err != nil {
		return finish(err)
	}
	if err := s.write(itemCtx, id, payloads); err != nil {
		return finish(err)
	}
	for _, p := range payloads {
		res.Sources = append(res.Sources, p.Source)
	}
	return finish(nil)
}

// write appends each payload to the enrichment log, merges it into the
// prospect's enrichment data, and stamps last_enriched_at.
func (s *Scheduler) write(ctx context.Context, id string, payloads []SourcePayload) error {
	now := s.now()
	merged := make(map[string]payload.Value, len(payloads))
	for _, p := range payloads {
		rec := &model.EnrichmentData{
			ProspectID: id,
			Source:     p.Source,
			Data:       p.Data,
			FetchedAt:  now,
			ExpiresAt:  now.Add(s.cfg.ttl(p.Source)),
		}
		if err := s.enrichments.Insert(ctx, rec); err != nil {
			return eris.Wrapf(err, "enrichment: record %s", p.Source)
		}
		merged[p.Source] = p.Data
	}

	err := store.RetryConflicts(ctx, func(ctx context.Context) error {
		prospect, err := s.prospects.Get(ctx, id)
		if err != nil {
			return eris.Wrapf(err, "enrichment: load prospect %s", id)
		}
		if prospect == nil {
			return eris.Errorf("enrichment: prospect not found: %s", id)
		}
		prospect.Enrichment = payload.Merge(prospect.Enrichment, payload.Map(merged))
		prospect.LastEnrichedAt = &now
		return s.prospects.Update(ctx, prospect)
	})
	return eris.Wrapf(err, "enrichment: update prospect %s", id)
}

// IsFresh reports whether every required source has a record for the
// prospect fetched within the fresh window. With no required sources
// configured, any source within the window counts.
func (s *Scheduler) IsFresh(ctx context.Context, id string) (bool, error) {
	latest, err := s.enrichments.LatestBySource(ctx, id)
	if err != nil {
		return false, eris.Wrapf(err, "enrichment: latest sources for %s", id)
	}
	cutoff := s.now().Add(-s.cfg.FreshWindow)
	within := func(e model.EnrichmentData) bool { return e.FetchedAt.After(cutoff) }

	if len(s.cfg.RequiredSources) == 0 {
		for _, e := range latest {
			if within(e) {
				return true, nil
			}
		}
		return false, nil
	}
	for _, src := range s.cfg.RequiredSources {
		e, ok := latest[src]
		if !ok || !within(e) {
			return false, nil
		}
	}
	return true, nil
}

// CheckHealth reports healthy when at least one enrichment record was
// written within the health window.
func (s *Scheduler) CheckHealth(ctx context.Context) (*Health, error) {
	now := s.now()
	recent, err := s.enrichments.QueryRecent(ctx, now.Add(-s.cfg.HealthWindow))
	if err != nil {
		return nil, eris.Wrap(err, "enrichment: query recent")
	}
	stale, err := s.prospects.CountStale(ctx, now.Add(-s.cfg.StaleAfter))
	if err != nil {
		return nil, eris.Wrap(err, "enrichment: count stale")
	}

	h := &Health{
		Healthy:        len(recent) > 0,
		Window:         s.cfg.HealthWindow,
		RecentRecords:  len(recent),
		BySource:       make(map[string]int),
		StaleProspects: stale,
	}
	for _, e := range recent {
		h.BySource[e.Source]++
		if h.LastFetchedAt == nil || e.FetchedAt.After(*h.LastFetchedAt) {
			t := e.FetchedAt
			h.LastFetchedAt = &t
		}
	}
	return h, nil
}

// Sources returns the sources seen in a health report, sorted.
func (h *Health) Sources() []string {
	out := make([]string, 0, len(h.BySource))
	for src := range h.BySource {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

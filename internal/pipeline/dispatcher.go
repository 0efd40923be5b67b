// Package pipeline claims staged records and drives them through
// normalization, validation, deduplication, and loading.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-pipeline/internal/dedup"
	"github.com/sells-group/prospect-pipeline/internal/model"
	"github.com/sells-group/prospect-pipeline/internal/monitoring"
	"github.com/sells-group/prospect-pipeline/internal/normalize"
	"github.com/sells-group/prospect-pipeline/internal/quarantine"
	"github.com/sells-group/prospect-pipeline/internal/store"
	"github.com/sells-group/prospect-pipeline/internal/validate"
)

// DefaultBatchSize is used when ProcessStagingTable gets a non-positive size.
const DefaultBatchSize = 100

// outcomeUnrecorded is the metrics outcome for a record whose terminal
// status could not be written.
const outcomeUnrecorded = "unrecorded"

// bundledSource labels enrichment carried on a staged record with no source tag.
const bundledSource = "staging"

// RecordDetail is the per-record outcome of a batch run.
type RecordDetail struct {
	StagingID  string              `json:"staging_id"`
	Outcome    model.StagingStatus `json:"outcome"`
	ProspectID string              `json:"prospect_id,omitempty"`
	Action     model.DedupAction   `json:"action,omitempty"`
	Log        []string            `json:"log"`
	Error      string              `json:"error,omitempty"`
}

func (d *RecordDetail) logf(format string, args ...any) {
	d.Log = append(d.Log, fmt.Sprintf(format, args...))
}

// BatchResult summarizes one staging batch run.
type BatchResult struct {
	RunID       string         `json:"run_id,omitempty"`
	Skipped     bool           `json:"skipped"`
	Processed   int            `json:"processed"`
	Successful  int            `json:"successful"`
	Quarantined int            `json:"quarantined"`
	Failed      int            `json:"failed"`
	Duration    time.Duration  `json:"duration"`
	Details     []RecordDetail `json:"details"`
}

// Stats is a point-in-time view of the pipeline.
type Stats struct {
	Staging    map[model.StagingStatus]int `json:"staging"`
	Quarantine map[model.ReviewStatus]int  `json:"quarantine"`
	Running    bool                        `json:"running"`
	ActiveRun  *RunInfo                    `json:"active_run,omitempty"`
	LastRun    *RunInfo                    `json:"last_run,omitempty"`
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(d *Dispatcher) { d.normalizer = n }
}

// WithValidator replaces the default validator.
func WithValidator(v *validate.Validator) Option {
	return func(d *Dispatcher) { d.validator = v }
}

// WithFuzzyThreshold sets the resolver's fuzzy-match threshold.
func WithFuzzyThreshold(threshold float64) Option {
	return func(d *Dispatcher) { d.threshold = threshold }
}

// WithMetrics records run and record outcomes on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithEnrichmentTTL sets the lifetime of enrichment carried on staged records.
func WithEnrichmentTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) { d.enrichmentTTL = ttl }
}

// Dispatcher runs staging batches. Records in a batch are resolved and
// loaded one at a time so each lookup sees every earlier write.
type Dispatcher struct {
	staging    store.StagingStore
	prospects  store.ProspectStore
	enrichment store.EnrichmentStore
	quarantine *quarantine.Manager
	resolver   *dedup.Resolver

	normalizer    *normalize.Normalizer
	validator     *validate.Validator
	threshold     float64
	enrichmentTTL time.Duration
	state         *RunState
	metrics       *monitoring.Metrics
	log           *zap.Logger
}

// NewDispatcher creates a Dispatcher over st. A nil state uses a
// process-local guard.
func NewDispatcher(st store.Store, state *RunState, opts ...Option) *Dispatcher {
	if state == nil {
		state = NewRunState(nil)
	}
	d := &Dispatcher{
		staging:       st.Staging(),
		prospects:     st.Prospects(),
		enrichment:    st.Enrichment(),
		quarantine:    quarantine.NewManager(st.Staging(), st.Quarantine()),
		threshold:     dedup.DefaultThreshold,
		enrichmentTTL: 7 * 24 * time.Hour,
		state:         state,
		log:           zap.L().With(zap.String("component", "dispatcher")),
	}
	for _, o := range opts {
		o(d)
	}
	if d.normalizer == nil {
		d.normalizer = normalize.New(normalize.DefaultTables())
	}
	if d.validator == nil {
		d.validator = validate.New(nil)
	}
	d.resolver = dedup.NewResolver(d.prospects, d.threshold)
	return d
}

// Quarantine returns the quarantine manager the dispatcher writes to.
func (d *Dispatcher) Quarantine() *quarantine.Manager {
	return d.quarantine
}

// State returns the dispatcher's run state.
func (d *Dispatcher) State() *RunState {
	return d.state
}

// ProcessStagingTable claims up to batchSize pending records and processes
// them. When another run is active it returns a skipped result without
// touching staging rows. Every claimed record ends processed, quarantined,
// or error; one whose status write fails is reported failed.
func (d *Dispatcher) ProcessStagingTable(ctx context.Context, batchSize int) (*BatchResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	start := time.Now()

	info, finish, ok, err := d.state.begin(ctx, start.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: acquire run guard")
	}
	if !ok {
		d.metrics.RunSkipped()
		d.log.Info("staging run already active, skipping")
		return &BatchResult{Skipped: true, Details: []RecordDetail{}}, nil
	}
	d.metrics.RunActive(true)
	defer d.metrics.RunActive(false)

	log := d.log.With(zap.String("run_id", info.RunID))

	recs, err := d.staging.ClaimPending(ctx, batchSize)
	if err != nil {
		err = eris.Wrap(err, "pipeline: claim pending")
		finish(nil, err)
		return nil, err
	}
	log.Info("staging run started", zap.Int("claimed", len(recs)))

	res := d.processBatch(ctx, recs)
	res.RunID = info.RunID
	res.Duration = time.Since(start)
	finish(res, nil)

	log.Info("staging run complete",
		zap.Int("processed", res.Processed),
		zap.Int("successful", res.Successful),
		zap.Int("quarantined", res.Quarantined),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// processBatch validates every record, quarantines the invalid ones,
// folds valid records that share an identity, and loads each group.
func (d *Dispatcher) processBatch(ctx context.Context, recs []model.StagingRecord) *BatchResult {
	details := make([]RecordDetail, len(recs))
	pos := make(map[string]int, len(recs))
	items := make([]dedup.Item, 0, len(recs))

	for i, rec := range recs {
		det := &details[i]
		det.StagingID = rec.ID
		det.Log = []string{}

		norm := d.normalizer.Normalize(rec.RawData)
		if norm.Source == "" {
			norm.Source = rec.Source
		}
		det.logf("normalized")

		result := d.validator.Validate(norm.Identity)
		det.logf("validated: completeness %.2f", result.CompletenessScore)
		if len(result.Warnings) > 0 {
			det.logf("warnings: %s", strings.Join(result.Warnings, "; "))
		}
		if !result.IsValid {
			if _, err := d.quarantine.Quarantine(ctx, rec, result); err != nil {
				d.fail(ctx, det, err)
				continue
			}
			det.logf("quarantined: %s", strings.Join(result.Errors, "; "))
			d.mark(ctx, det, model.StagingQuarantined)
			continue
		}

		pos[rec.ID] = i
		items = append(items, dedup.Item{Ref: rec.ID, Identity: norm.Identity})
	}

	for _, g := range dedup.PreMerge(items) {
		p, dr, err := d.load(ctx, g.Identity)
		for _, ref := range g.Refs {
			det := &details[pos[ref]]
			if len(g.Refs) > 1 {
				det.logf("folded with %d records sharing %s", len(g.Refs)-1, g.Key)
			}
			if err != nil {
				d.fail(ctx, det, err)
				continue
			}
			det.ProspectID = p.ID
			det.Action = dr.Action
			if dr.Metadata.DuplicateFound {
				det.logf("merged into %s via %s", p.ID, dr.Metadata.MatchedBy)
			} else {
				det.logf("inserted %s", p.ID)
			}
			d.mark(ctx, det, model.StagingProcessed)
		}
	}

	res := &BatchResult{Processed: len(recs), Details: details}
	for _, det := range details {
		switch det.Outcome {
		case model.StagingProcessed:
			res.Successful++
		case model.StagingQuarantined:
			res.Quarantined++
		default:
			res.Failed++
		}
	}
	return res
}

// load resolves id against stored prospects, writes the insert or update,
// and records any enrichment payload it carries.
func (d *Dispatcher) load(ctx context.Context, id model.Identity) (*model.Prospect, *model.DeduplicationResult, error) {
	var (
		dr *model.DeduplicationResult
		p  model.Prospect
	)
	// The enrichment scheduler may write the matched prospect between
	// resolve and update; resolve again on conflict.
	err := store.RetryConflicts(ctx, func(ctx context.Context) error {
		var err error
		if dr, err = d.resolver.Resolve(ctx, id); err != nil {
			return eris.Wrap(err, "pipeline: resolve")
		}
		p = dr.Prospect
		if dr.Action == model.ActionInsert {
			return d.prospects.Insert(ctx, &p)
		}
		return d.prospects.Update(ctx, &p)
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: load prospect")
	}

	if !id.Enrichment.IsNull() {
		now := time.Now().UTC()
		source := bundledSource
		if tags := id.SourceTags(); len(tags) > 0 {
			source = tags[0]
		}
		rec := &model.EnrichmentData{
			ProspectID: p.ID,
			Source:     source,
			Data:       id.Enrichment,
			FetchedAt:  now,
			ExpiresAt:  now.Add(d.enrichmentTTL),
		}
		if err := d.enrichment.Insert(ctx, rec); err != nil {
			return nil, nil, eris.Wrapf(err, "pipeline: persist enrichment for %s", p.ID)
		}
	}
	return &p, dr, nil
}

func (d *Dispatcher) fail(ctx context.Context, det *RecordDetail, err error) {
	det.Error = err.Error()
	det.logf("error: %s", err)
	d.log.Warn("staging record failed", zap.String("staging_id", det.StagingID), zap.Error(err))
	d.mark(ctx, det, model.StagingError)
}

// mark writes the record's terminal status. It runs even after ctx is
// cancelled so claimed records never stay in processing. When the write
// fails the row is still processing, so the detail reports that and the
// record counts as failed.
func (d *Dispatcher) mark(ctx context.Context, det *RecordDetail, status model.StagingStatus) {
	err := d.staging.UpdateStatus(context.WithoutCancel(ctx), det.StagingID, status, det.Log)
	if err == nil {
		det.Outcome = status
		d.metrics.StagingOutcome(string(status))
		return
	}

	det.Outcome = model.StagingProcessing
	det.logf("status %s not recorded: %s", status, err)
	if det.Error == "" {
		det.Error = err.Error()
	}
	d.metrics.StagingOutcome(outcomeUnrecorded)
	d.log.Error("staging status not recorded, record left in processing and needs manual recovery",
		zap.String("staging_id", det.StagingID),
		zap.String("status", string(status)),
		zap.Error(err),
	)
}

// ProcessQuarantinedRecords re-stages approved quarantine records.
func (d *Dispatcher) ProcessQuarantinedRecords(ctx context.Context, limit int) ([]quarantine.Reprocessed, error) {
	return d.quarantine.ReprocessApproved(ctx, limit)
}

// PipelineStats reports staging and quarantine counts and run state.
func (d *Dispatcher) PipelineStats(ctx context.Context) (*Stats, error) {
	staging, err := d.staging.CountByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: count staging")
	}
	quarantined, err := d.quarantine.Counts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: count quarantine")
	}
	return &Stats{
		Staging:    staging,
		Quarantine: quarantined,
		Running:    d.state.Running(),
		ActiveRun:  d.state.Active(),
		LastRun:    d.state.Last(),
	}, nil
}

package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-pipeline/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// CheckReport is the outcome of a single health check.
type CheckReport struct {
	Snapshot *MetricsSnapshot
	Alerts   []Alert
	Sent     int
}

// Checker snapshots pipeline health on an interval, feeds the depth gauges
// and forwards breached thresholds to the alerter.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	metrics   *Metrics
	interval  time.Duration
	lookback  int
	log       *zap.Logger
}

// NewChecker wires a checker. metrics may be nil.
func NewChecker(collector *Collector, alerter *Alerter, metrics *Metrics, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		metrics:   metrics,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
	}
}

// Check collects one snapshot, publishes it and sends any alerts.
func (c *Checker) Check(ctx context.Context) (*CheckReport, error) {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: check")
	}
	c.metrics.Observe(snap)

	report := &CheckReport{Snapshot: snap, Alerts: c.alerter.Evaluate(snap)}
	if len(report.Alerts) > 0 {
		report.Sent = c.alerter.SendAlerts(ctx, report.Alerts)
	}
	return report, nil
}

// Run checks immediately and then on every interval until ctx ends.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("health checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.runOnce(ctx)
		select {
		case <-ctx.Done():
			c.log.Info("health checker stopped")
			return
		case <-ticker.C:
		}
	}
}

func (c *Checker) runOnce(ctx context.Context) {
	report, err := c.Check(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error("health check failed", zap.Error(err))
		}
		return
	}
	if len(report.Alerts) == 0 {
		c.log.Debug("health check clean",
			zap.Int("staging_backlog", report.Snapshot.StagingBacklog),
		)
		return
	}
	c.log.Warn("health check raised alerts",
		zap.Int("alerts", len(report.Alerts)),
		zap.Int("sent", report.Sent),
	)
}

package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-pipeline/internal/config"
	"github.com/sells-group/prospect-pipeline/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertQuarantineRate    AlertType = "quarantine_rate"
	AlertStagingBacklog    AlertType = "staging_backlog"
	AlertEnrichmentStalled AlertType = "enrichment_stalled"
)

// minFinishedForRate is the number of finished staging records required
// before the quarantine rate is evaluated.
const minFinishedForRate = 20

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns snapshots into alerts and posts them to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// rule inspects a snapshot and returns an alert when its threshold is breached.
type rule func(cfg config.MonitoringConfig, snap *MetricsSnapshot) *Alert

var rules = []rule{quarantineRateRule, backlogRule, stalledRule}

// Evaluate runs every rule against the snapshot.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	now := time.Now().UTC()
	var alerts []Alert
	for _, r := range rules {
		if alert := r(a.cfg, snap); alert != nil {
			alert.Timestamp = now
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

func quarantineRateRule(cfg config.MonitoringConfig, snap *MetricsSnapshot) *Alert {
	limit := cfg.QuarantineRateThreshold
	if limit <= 0 || snap.StagingFinished < minFinishedForRate || snap.QuarantineRate <= limit {
		return nil
	}
	return &Alert{
		Type:     AlertQuarantineRate,
		Severity: "high",
		Message: fmt.Sprintf("quarantine rate %.1f%% above limit %.1f%% (%d quarantined / %d finished)",
			snap.QuarantineRate*100, limit*100, snap.Staging[model.StagingQuarantined], snap.StagingFinished),
		Details: map[string]any{
			"quarantined": snap.Staging[model.StagingQuarantined],
			"finished":    snap.StagingFinished,
			"rate":        snap.QuarantineRate,
			"threshold":   limit,
		},
	}
}

func backlogRule(cfg config.MonitoringConfig, snap *MetricsSnapshot) *Alert {
	limit := cfg.StagingBacklogThreshold
	if limit <= 0 || snap.StagingBacklog <= limit {
		return nil
	}
	return &Alert{
		Type:     AlertStagingBacklog,
		Severity: "medium",
		Message:  fmt.Sprintf("%d staging records waiting (limit %d)", snap.StagingBacklog, limit),
		Details: map[string]any{
			"backlog":   snap.StagingBacklog,
			"threshold": limit,
		},
	}
}

// stalledRule fires when prospects are due for enrichment but nothing was
// written during the lookback window.
func stalledRule(_ config.MonitoringConfig, snap *MetricsSnapshot) *Alert {
	if snap.EnrichmentRecent > 0 || snap.StaleProspects == 0 {
		return nil
	}
	return &Alert{
		Type:     AlertEnrichmentStalled,
		Severity: "high",
		Message: fmt.Sprintf("no enrichment written in %dh (%d stale prospects)",
			snap.LookbackHours, snap.StaleProspects),
		Details: map[string]any{
			"stale_prospects": snap.StaleProspects,
			"lookback_hours":  snap.LookbackHours,
		},
	}
}

// SendAlerts posts each alert to the webhook and returns how many were
// accepted. Without a webhook URL nothing is sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	log := zap.L().With(zap.String("component", "monitoring.alerter"))
	sent := 0
	for _, alert := range alerts {
		err := a.sendWebhook(ctx, alert)
		if err != nil {
			log.Error("alert delivery failed", zap.String("type", string(alert.Type)), zap.Error(err))
			continue
		}
		log.Info("alert delivered",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

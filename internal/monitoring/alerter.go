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

	"github.com/sells-group/citation-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertStaleAuditRuns   AlertType = "stale_audit_runs"
	AlertAuditFailureRate AlertType = "audit_failure_rate"
)

// minFinishedForRate avoids alerting on a failure rate computed from a
// handful of runs.
const minFinishedForRate = 5

// maxListedRunIDs caps the run IDs included in an alert payload.
const maxListedRunIDs = 20

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
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

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// A zero threshold disables the stale check.
	if a.cfg.StaleThreshold > 0 && snap.StaleRuns >= a.cfg.StaleThreshold {
		ids := snap.StaleRunIDs
		if len(ids) > maxListedRunIDs {
			ids = ids[:maxListedRunIDs]
		}
		alerts = append(alerts, Alert{
			Type:     AlertStaleAuditRuns,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d audit run(s) still pending after %dh",
				snap.StaleRuns, snap.StaleAfterHours,
			),
			Details: map[string]any{
				"stale_runs":        snap.StaleRuns,
				"stale_after_hours": snap.StaleAfterHours,
				"threshold":         a.cfg.StaleThreshold,
				"run_ids":           ids,
			},
			Timestamp: now,
		})
	}

	finished := snap.AuditCompleted + snap.AuditFailed
	if finished >= minFinishedForRate && snap.AuditFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertAuditFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Audit failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.AuditFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.AuditFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.AuditFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.AuditFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
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

package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertDocumentFailureRate AlertType = "document_failure_rate"
	AlertEventFailure        AlertType = "event_failure"
	AlertCircuitOpen         AlertType = "circuit_open"
	AlertCostOverrun         AlertType = "cost_overrun"
)

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

	minDocs := a.cfg.MinDocuments
	if minDocs <= 0 {
		minDocs = 5
	}
	if snap.Documents >= minDocs && snap.DocumentFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDocumentFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Document failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d documents)",
				snap.DocumentFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.DocumentsFailed, snap.Documents,
			),
			Details: map[string]any{
				"failure_rate": snap.DocumentFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.DocumentsFailed,
				"documents":    snap.Documents,
			},
			Timestamp: now,
		})
	}

	if snap.EventsFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertEventFailure,
			Severity: "high",
			Message:  fmt.Sprintf("%d of %d event(s) failed", snap.EventsFailed, snap.Events),
			Details: map[string]any{
				"failed": snap.FailedEvents,
				"events": snap.Events,
			},
			Timestamp: now,
		})
	}

	if len(snap.OpenBreakers) > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertCircuitOpen,
			Severity:  "critical",
			Message:   fmt.Sprintf("circuit open for %s", strings.Join(snap.OpenBreakers, ", ")),
			Details:   map[string]any{"services": snap.OpenBreakers},
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && snap.CostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Analysis cost $%.2f exceeds threshold $%.2f",
				snap.CostUSD, a.cfg.CostThresholdUSD,
			),
			Details: map[string]any{
				"cost_usd":      snap.CostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"analyses":      snap.Analyses,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// Notification is the webhook payload: every alert raised by one
// evaluation, posted together.
type Notification struct {
	Source string    `json:"source"`
	SentAt time.Time `json:"sent_at"`
	Alerts []Alert   `json:"alerts"`
}

// SendAlerts posts alerts to the configured webhook as one Notification and
// returns how many were delivered: all of them or none.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	types := make([]string, len(alerts))
	for i, al := range alerts {
		types[i] = string(al.Type)
	}
	if err := a.post(ctx, Notification{Source: "claims-cli", SentAt: time.Now().UTC(), Alerts: alerts}); err != nil {
		zap.L().Error("monitoring: alert delivery failed", zap.Strings("types", types), zap.Error(err))
		return 0
	}
	zap.L().Info("monitoring: alerts delivered", zap.Strings("types", types))
	return len(alerts)
}

func (a *Alerter) post(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return eris.Wrap(err, "monitoring: encode notification")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= http.StatusBadRequest {
		return eris.Errorf("monitoring: webhook answered %d", resp.StatusCode)
	}
	return nil
}

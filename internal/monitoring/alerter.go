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

	"github.com/sells-group/promo-scout/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertReviewBacklog  AlertType = "review_backlog"
	AlertFailureBacklog AlertType = "failure_backlog"
	AlertBreakerOpen    AlertType = "breaker_open"
)

// minResultsForRate keeps the review rate alert quiet on tiny samples.
const minResultsForRate = 20

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

	if a.cfg.ReviewRateThreshold > 0 && snap.ResultsTotal >= minResultsForRate &&
		snap.ReviewRate > a.cfg.ReviewRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertReviewBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Review rate %.1f%% exceeds threshold %.1f%% (%d of %d results need review)",
				snap.ReviewRate*100, a.cfg.ReviewRateThreshold*100,
				snap.NeedsReview, snap.ResultsTotal,
			),
			Details: map[string]any{
				"review_rate":  snap.ReviewRate,
				"threshold":    a.cfg.ReviewRateThreshold,
				"needs_review": snap.NeedsReview,
				"total":        snap.ResultsTotal,
			},
			Timestamp: now,
		})
	}

	if a.cfg.FailureBacklogThreshold > 0 && snap.FailureDepth > a.cfg.FailureBacklogThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureBacklog,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d escalation failures pending (%d due), threshold %d",
				snap.FailureDepth, snap.FailuresDue, a.cfg.FailureBacklogThreshold,
			),
			Details: map[string]any{
				"depth":     snap.FailureDepth,
				"due":       snap.FailuresDue,
				"threshold": a.cfg.FailureBacklogThreshold,
			},
			Timestamp: now,
		})
	}

	if snap.BreakerState == "open" {
		alerts = append(alerts, Alert{
			Type:      AlertBreakerOpen,
			Severity:  "high",
			Message:   "Secondary scorer circuit breaker is open; escalations fall back to heuristic results",
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

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

	"github.com/sells-group/listing-intel/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate  AlertType = "failure_rate"
	AlertScrapeBlocks AlertType = "scrape_blocked"
	AlertCostOverrun  AlertType = "cost_overrun"
)

// minFinished is the number of finished analyses required before a
// failure rate alert can fire.
const minFinished = 5

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
	window := snap.CollectedAt.Sub(snap.Since).Round(time.Second)

	finished := snap.Finished()
	if a.cfg.FailureRateThreshold > 0 && finished >= minFinished && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Analysis failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %s)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.AnalysesFailed, finished, window,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.AnalysesFailed,
				"finished":     finished,
				"failures":     snap.Failures,
			},
			Timestamp: now,
		})
	}

	// Sustained blocks usually mean a portal has started rejecting our
	// fetcher and a different scrape provider is needed.
	if blocked := snap.Causes["blocked"]; a.cfg.BlockedThreshold > 0 && blocked >= int64(a.cfg.BlockedThreshold) {
		alerts = append(alerts, Alert{
			Type:     AlertScrapeBlocks,
			Severity: "medium",
			Message:  fmt.Sprintf("%d analyses failed on blocked scrapes in last %s", blocked, window),
			Details: map[string]any{
				"blocked":   blocked,
				"threshold": a.cfg.BlockedThreshold,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && snap.ModelCostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Model cost $%.2f exceeds threshold $%.2f in last %s",
				snap.ModelCostUSD, a.cfg.CostThresholdUSD, window,
			),
			Details: map[string]any{
				"cost_usd":       snap.ModelCostUSD,
				"threshold_usd":  a.cfg.CostThresholdUSD,
				"analyses_total": snap.AnalysesStarted,
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

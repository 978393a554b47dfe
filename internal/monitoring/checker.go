package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/listing-intel/internal/config"
)

// Checker runs periodic alert checks in the background. Each check looks
// only at activity since the previous one.
type Checker struct {
	stats   *Stats
	alerter *Alerter
	cfg     config.MonitoringConfig
	prev    *MetricsSnapshot
}

// NewChecker creates a background alert checker.
func NewChecker(stats *Stats, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		stats:   stats,
		alerter: alerter,
		cfg:     cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", interval))

	c.prev = c.stats.Snapshot()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check evaluates the window since the previous check and returns the
// number of alerts sent.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	cur := c.stats.Snapshot()
	window := cur.Sub(c.prev)
	c.prev = cur

	alerts := c.alerter.Evaluate(window)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return sent
}

package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/claims-cli/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker evaluates the collector's window on a fixed interval, delivers
// the resulting alerts and opens a fresh window.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
}

// NewChecker creates a checker; a non-positive check_interval_secs falls back
// to five minutes.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{collector: collector, alerter: alerter, interval: interval}
}

// Run blocks until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("alert checker started", zap.Duration("interval", c.interval))

	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}

// Check drains the current window and returns the alerts it raised.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap := c.collector.Drain()
	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		zap.L().Debug("monitoring: window clean",
			zap.Int("events", snap.Events),
			zap.Int("documents", snap.Documents),
		)
		return nil
	}

	for _, a := range alerts {
		zap.L().Warn("monitoring: alert", zap.String("type", string(a.Type)), zap.String("message", a.Message))
	}
	delivered := c.alerter.SendAlerts(ctx, alerts)
	zap.L().Info("monitoring: window checked",
		zap.Int("events", snap.Events),
		zap.Int("alerts", len(alerts)),
		zap.Int("delivered", delivered),
	)
	return alerts
}

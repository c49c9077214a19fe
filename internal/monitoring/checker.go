package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/citation-cli/internal/config"
)

// Checker runs alert checks, once or periodically in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates an alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// CheckResult summarizes one check.
type CheckResult struct {
	Snapshot *MetricsSnapshot `json:"snapshot"`
	Alerts   []Alert          `json:"alerts"`
	Sent     int              `json:"sent"`
}

// CheckOnce collects a snapshot, evaluates it and sends any alerts.
func (c *Checker) CheckOnce(ctx context.Context) (*CheckResult, error) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackHours, c.cfg.StaleAfterHours)
	if err != nil {
		return nil, err
	}
	alerts := c.alerter.Evaluate(snap)
	return &CheckResult{
		Snapshot: snap,
		Alerts:   alerts,
		Sent:     c.alerter.SendAlerts(ctx, alerts),
	}, nil
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackHours),
		zap.Int("stale_after_hours", c.cfg.StaleAfterHours),
	)

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

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	res, err := c.CheckOnce(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return
	}
	if len(res.Alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return
	}
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(res.Alerts)),
		zap.Int("alerts_sent", res.Sent),
	)
}

package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
)

// Checker runs health checks once or periodically.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates a checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Check collects one snapshot, evaluates it and sends any alerts.
func (c *Checker) Check(ctx context.Context) (*Snapshot, []Alert, error) {
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		return nil, nil, err
	}
	alerts := c.alerter.Evaluate(snap)
	if sent := c.alerter.SendAlerts(ctx, alerts); sent > 0 {
		zap.L().Info("monitoring: alerts sent", zap.Int("sent", sent))
	}
	return snap, alerts, nil
}

// Run checks on every tick until ctx is cancelled, calling report after
// each check.
func (c *Checker) Run(ctx context.Context, report func(*Snapshot, []Alert)) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting health checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap, alerts, err := c.Check(ctx)
		if err != nil {
			log.Error("monitoring: check failed", zap.Error(err))
		} else if report != nil {
			report(snap, alerts)
		}

		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
		}
	}
}

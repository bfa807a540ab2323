package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/journal-harness/internal/config"
)

// Checker evaluates health on an interval. An alert is sent when its
// condition starts and again only after it has cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	firing map[AlertType]bool
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		firing:    make(map[AlertType]bool),
	}
}

// Run checks once immediately and then on every tick. It blocks until ctx
// is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if ctx.Err() == nil {
			c.Check(ctx, log)
		}
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check runs one evaluation and returns the alerts that were newly raised.
func (c *Checker) Check(ctx context.Context, log *zap.Logger) []Alert {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil
	}

	current := make(map[AlertType]bool)
	var raised []Alert
	for _, a := range c.alerter.Evaluate(snap) {
		current[a.Type] = true
		if !c.firing[a.Type] {
			raised = append(raised, a)
		}
	}
	for t := range c.firing {
		if !current[t] {
			log.Info("monitoring: alert cleared", zap.String("type", string(t)))
		}
	}
	c.firing = current

	if len(raised) == 0 {
		log.Debug("monitoring: no new alerts", zap.Int("firing", len(current)))
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, raised)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_raised", len(raised)),
		zap.Int("alerts_sent", sent),
	)
	return raised
}

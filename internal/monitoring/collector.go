package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/resilience"
	"github.com/sells-group/journal-harness/internal/store"
)

// MetricsSnapshot holds a point-in-time view of experiment health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal     int     `json:"runs_total"`
	RunsCompleted int     `json:"runs_completed"`
	RunsFailed    int     `json:"runs_failed"`
	RunsActive    int     `json:"runs_active"`
	FailRate      float64 `json:"fail_rate"`
	CostUSD       float64 `json:"cost_usd"`
	AvgTokens     int     `json:"avg_tokens"`

	// FailedByProvider counts failed runs per provider:model label.
	FailedByProvider map[string]int `json:"failed_by_provider,omitempty"`

	// OpenCircuits lists providers whose breaker is not closed.
	OpenCircuits []string `json:"open_circuits,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the store method the collector reads runs through.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.ExperimentRun, error)
}

// CircuitReporter exposes provider breaker states.
type CircuitReporter interface {
	States() map[string]resilience.BreakerState
}

// Collector gathers metrics from the store and the provider breakers.
type Collector struct {
	runs     RunLister
	circuits CircuitReporter
	now      func() time.Time
}

// NewCollector creates a new metrics collector. circuits may be nil.
func NewCollector(runs RunLister, circuits CircuitReporter) *Collector {
	return &Collector{runs: runs, circuits: circuits, now: time.Now}
}

// Collect gathers a snapshot of experiment metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// Soft-deleted runs still count toward health.
	runs, err := c.runs.ListRuns(ctx, store.RunFilter{IncludeDeleted: true, Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var totalTokens int
	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		snap.CostUSD += r.EstimatedCost
		totalTokens += r.TokensUsed
		switch r.Status {
		case model.StatusCompleted:
			snap.RunsCompleted++
		case model.StatusFailed:
			snap.RunsFailed++
			if snap.FailedByProvider == nil {
				snap.FailedByProvider = make(map[string]int)
			}
			snap.FailedByProvider[r.Label()]++
		default:
			snap.RunsActive++
		}
	}

	if snap.RunsTotal > 0 {
		finished := snap.RunsCompleted + snap.RunsFailed
		if finished > 0 {
			snap.FailRate = float64(snap.RunsFailed) / float64(finished)
		}
		snap.AvgTokens = totalTokens / snap.RunsTotal
	}

	if c.circuits != nil {
		for name, state := range c.circuits.States() {
			if state != resilience.BreakerClosed {
				snap.OpenCircuits = append(snap.OpenCircuits, name)
			}
		}
		sort.Strings(snap.OpenCircuits)
	}

	return snap, nil
}

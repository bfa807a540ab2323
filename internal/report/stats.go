package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/journal-harness/internal/model"
)

// ProviderStats aggregates the runs of one provider.
type ProviderStats struct {
	Runs      int     `json:"runs"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Tokens    int     `json:"tokens"`
	Cost      float64 `json:"cost"`
}

// Stats summarises a set of runs.
type Stats struct {
	Total       int                            `json:"total"`
	ByStatus    map[model.ExperimentStatus]int `json:"by_status"`
	ByType      map[model.ExperimentType]int   `json:"by_type"`
	ByProvider  map[string]*ProviderStats      `json:"by_provider"`
	AvgDuration time.Duration                  `json:"avg_duration_ns"`
	TotalCost   float64                        `json:"total_cost"`
	TotalTokens int                            `json:"total_tokens"`
}

// ComputeStats aggregates runs. The average duration covers finished runs
// that recorded a start time.
func ComputeStats(runs []model.ExperimentRun) Stats {
	s := Stats{
		ByStatus:   make(map[model.ExperimentStatus]int),
		ByType:     make(map[model.ExperimentType]int),
		ByProvider: make(map[string]*ProviderStats),
	}

	var total time.Duration
	var timed int
	for _, run := range runs {
		s.Total++
		s.ByStatus[run.Status]++
		s.ByType[run.Type]++
		s.TotalCost += run.EstimatedCost
		s.TotalTokens += run.TokensUsed

		ps, ok := s.ByProvider[run.Provider]
		if !ok {
			ps = &ProviderStats{}
			s.ByProvider[run.Provider] = ps
		}
		ps.Runs++
		ps.Tokens += run.TokensUsed
		ps.Cost += run.EstimatedCost
		switch run.Status {
		case model.StatusCompleted:
			ps.Completed++
		case model.StatusFailed:
			ps.Failed++
		}

		if run.Status.Terminal() && run.StartedAt != nil && run.CompletedAt != nil {
			total += run.Duration()
			timed++
		}
	}
	if timed > 0 {
		s.AvgDuration = total / time.Duration(timed)
	}
	return s
}

// StatsMarkdown renders Stats as a short Markdown document.
func StatsMarkdown(s Stats) string {
	var b strings.Builder
	b.WriteString("# Run statistics\n\n")
	fmt.Fprintf(&b, "- Runs: %d\n", s.Total)
	for _, st := range []model.ExperimentStatus{model.StatusPending, model.StatusRunning, model.StatusCompleted, model.StatusFailed} {
		if n := s.ByStatus[st]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", title.String(string(st)), n)
		}
	}
	fmt.Fprintf(&b, "- Average duration: %s\n", s.AvgDuration.Round(time.Millisecond))
	fmt.Fprintf(&b, "- Total tokens: %d\n", s.TotalTokens)
	fmt.Fprintf(&b, "- Total cost: %s\n\n", formatCost(s.TotalCost))

	if len(s.ByProvider) == 0 {
		return b.String()
	}
	b.WriteString("| Provider | Runs | Completed | Failed | Tokens | Cost (USD) |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|\n")
	for _, name := range sortedKeys(s.ByProvider) {
		ps := s.ByProvider[name]
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %s |\n", name, ps.Runs, ps.Completed, ps.Failed, ps.Tokens, formatCost(ps.Cost))
	}
	return b.String()
}

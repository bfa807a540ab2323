package model

import "time"

// BatchStatus is the computed state of a batch; it is never stored.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchPartial   BatchStatus = "partial"
	BatchFailed    BatchStatus = "failed"
)

// ComputeBatchStatus derives a batch status from its member runs. A batch with
// no members is reported as failed since it produced no coverage.
func ComputeBatchStatus(statuses []ExperimentStatus) BatchStatus {
	if len(statuses) == 0 {
		return BatchFailed
	}
	var completed, failed int
	for _, s := range statuses {
		switch s {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		default:
			return BatchRunning
		}
	}
	switch {
	case completed == len(statuses):
		return BatchCompleted
	case failed == len(statuses):
		return BatchFailed
	default:
		return BatchPartial
	}
}

// FailedProvider describes one member run that ended in failure.
type FailedProvider struct {
	Label string `json:"label"`
	RunID string `json:"run_id"`
	Error string `json:"error"`
}

// BatchComparison is the cross-provider aggregate emitted with batch_complete.
type BatchComparison struct {
	BatchID            string                             `json:"batch_id"`
	Status             BatchStatus                        `json:"status"`
	CheapestProvider   string                             `json:"cheapest_provider,omitempty"`
	FastestProvider    string                             `json:"fastest_provider,omitempty"`
	CostByProvider     map[string]float64                 `json:"cost_by_provider"`
	DurationByProvider map[string]int64                   `json:"duration_ms_by_provider"`
	TokensByProvider   map[string]int                     `json:"tokens_by_provider"`
	PositionMatrix     map[string]map[NeedlePosition]bool `json:"position_matrix,omitempty"`
	SupportedRatio     map[string]float64                 `json:"supported_ratio,omitempty"`
	Failed             []FailedProvider                   `json:"failed,omitempty"`
}

// EventType enumerates progress stream event kinds.
type EventType string

const (
	EventBatchStarted     EventType = "batch_started"
	EventProgress         EventType = "progress"
	EventProviderStarted  EventType = "provider_started"
	EventProviderComplete EventType = "provider_complete"
	EventProviderError    EventType = "provider_error"
	EventBatchComplete    EventType = "batch_complete"
	EventRunComplete      EventType = "run_complete"
)

// Terminal reports whether the event closes its stream.
func (t EventType) Terminal() bool {
	return t == EventBatchComplete || t == EventRunComplete
}

// ProgressEvent is one entry on a batch- or run-scoped progress stream.
type ProgressEvent struct {
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	RunID     string    `json:"run_id,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

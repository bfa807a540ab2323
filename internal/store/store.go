package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/journal-harness/internal/model"
)

// ErrNotFound is returned for unknown run, preset or batch ids.
var ErrNotFound = eris.New("not found")

// ErrInvalidTransition is returned when a run is not in a status that allows
// the requested change, e.g. finishing a run twice.
var ErrInvalidTransition = eris.New("invalid run status transition")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status         model.ExperimentStatus `json:"status,omitempty"`
	Type           model.ExperimentType   `json:"experiment_type,omitempty"`
	Provider       string                 `json:"provider,omitempty"`
	AthleteID      string                 `json:"athlete_id,omitempty"`
	BatchID        string                 `json:"batch_id,omitempty"`
	IncludeDeleted bool                   `json:"include_deleted,omitempty"`
	Limit          int                    `json:"limit,omitempty"`
	Offset         int                    `json:"offset,omitempty"`
}

// RunUsage is the running token and cost total of a run.
type RunUsage struct {
	InputTokens   int
	OutputTokens  int
	EstimatedCost float64
}

// Store defines the persistence interface for the experiment harness.
// Claims, receipts and position tests cascade with their run.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.ExperimentRun) error
	StartRun(ctx context.Context, runID string, entriesUsed int) error
	UpdateRunUsage(ctx context.Context, runID string, usage RunUsage) error
	FinishRun(ctx context.Context, runID string, status model.ExperimentStatus, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.ExperimentRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.ExperimentRun, error)
	SoftDeleteRun(ctx context.Context, runID string) error
	DeleteRun(ctx context.Context, runID string) error

	// Claims and receipts
	SaveClaims(ctx context.Context, runID string, claims []model.ClaimWithReceipts) error
	ListClaims(ctx context.Context, runID string) ([]model.ClaimWithReceipts, error)

	// Position tests
	SavePositionTest(ctx context.Context, pt *model.PositionTest) error
	ListPositionTests(ctx context.Context, runID string) ([]model.PositionTest, error)

	// Presets
	SavePreset(ctx context.Context, p *model.ExperimentPreset) error
	GetPreset(ctx context.Context, idOrName string) (*model.ExperimentPreset, error)
	ListPresets(ctx context.Context) ([]model.ExperimentPreset, error)
	DeletePreset(ctx context.Context, id string) error

	// Journal
	ImportJournal(ctx context.Context, entries []model.JournalEntry) (int, error)
	ListJournal(ctx context.Context, athleteID string) ([]model.JournalEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

// Package report turns persisted runs into comparisons and Markdown
// documents. It only reads; no experiment state is created here.
package report

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/store"
)

// Reader is the part of the store reports need.
type Reader interface {
	GetRun(ctx context.Context, runID string) (*model.ExperimentRun, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.ExperimentRun, error)
	ListClaims(ctx context.Context, runID string) ([]model.ClaimWithReceipts, error)
	ListPositionTests(ctx context.Context, runID string) ([]model.PositionTest, error)
}

// Member is one run with everything it produced.
type Member struct {
	Run           model.ExperimentRun       `json:"run"`
	Claims        []model.ClaimWithReceipts `json:"claims"`
	PositionTests []model.PositionTest      `json:"position_tests"`
}

// Batch is every member of a batch plus the cross-provider comparison.
type Batch struct {
	ID         string                `json:"batch_id"`
	Status     model.BatchStatus     `json:"status"`
	Members    []Member              `json:"members"`
	Comparison model.BatchComparison `json:"comparison"`
}

// maxBatchMembers bounds one batch listing.
const maxBatchMembers = 500

// LoadRun reads a run with its claims and position tests.
func LoadRun(ctx context.Context, r Reader, runID string) (*Member, error) {
	run, err := r.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return loadMember(ctx, r, *run)
}

// LoadBatch reads every member of a batch in submission order. An unknown
// batch id is store.ErrNotFound.
func LoadBatch(ctx context.Context, r Reader, batchID string) (*Batch, error) {
	runs, err := r.ListRuns(ctx, store.RunFilter{BatchID: batchID, IncludeDeleted: true, Limit: maxBatchMembers})
	if err != nil {
		return nil, eris.Wrapf(err, "report: list batch %s", batchID)
	}
	if len(runs) == 0 {
		return nil, eris.Wrapf(store.ErrNotFound, "batch %s", batchID)
	}

	b := &Batch{ID: batchID, Members: make([]Member, 0, len(runs))}
	for _, run := range runs {
		m, err := loadMember(ctx, r, run)
		if err != nil {
			return nil, err
		}
		b.Members = append(b.Members, *m)
	}
	b.Comparison = Compare(batchID, b.Members)
	b.Status = b.Comparison.Status
	return b, nil
}

func loadMember(ctx context.Context, r Reader, run model.ExperimentRun) (*Member, error) {
	claims, err := r.ListClaims(ctx, run.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "report: claims of run %s", run.ID)
	}
	tests, err := r.ListPositionTests(ctx, run.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "report: position tests of run %s", run.ID)
	}
	if claims == nil {
		claims = []model.ClaimWithReceipts{}
	}
	if tests == nil {
		tests = []model.PositionTest{}
	}
	return &Member{Run: run, Claims: claims, PositionTests: tests}, nil
}

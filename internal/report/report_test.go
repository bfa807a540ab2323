package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/store"
)

func ptr(t time.Time) *time.Time { return &t }

func finished(id, prov, mdl string, status model.ExperimentStatus, cost float64, d time.Duration) model.ExperimentRun {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return model.ExperimentRun{
		ID:            id,
		Provider:      prov,
		Model:         mdl,
		Type:          model.ExperimentPersona,
		Persona:       model.PersonaIntense,
		Status:        status,
		EstimatedCost: cost,
		TokensUsed:    100,
		StartedAt:     ptr(start),
		CompletedAt:   ptr(start.Add(d)),
	}
}

func claim(persona model.Persona, variant, text string, supported bool) model.ClaimWithReceipts {
	c := model.ClaimWithReceipts{
		Claim:    model.ExperimentClaim{Text: text, Supported: supported, Persona: persona, Variant: variant},
		Receipts: []model.ClaimReceipt{},
	}
	if supported {
		c.Claim.Confidence = 0.9
		c.Receipts = append(c.Receipts, model.ClaimReceipt{
			Field:      model.FieldEmotionalState,
			Snippet:    text,
			EntryDate:  time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC),
			Confidence: 0.9,
		})
	}
	return c
}

func TestCompare_PartialBatch(t *testing.T) {
	members := []Member{
		{Run: finished("r1", "anthropic", "haiku", model.StatusCompleted, 0.02, 3*time.Second),
			Claims: []model.ClaimWithReceipts{
				claim(model.PersonaIntense, model.VariantFull, "a", true),
				claim(model.PersonaIntense, model.VariantFull, "b", false),
			}},
		{Run: finished("r2", "openai", "gpt-4o-mini", model.StatusCompleted, 0.01, 5*time.Second)},
		{Run: model.ExperimentRun{ID: "r3", Provider: "gemini", Model: "flash", Status: model.StatusFailed, Error: "gemini call failed: 401"}},
	}

	cmp := Compare("b1", members)
	assert.Equal(t, model.BatchPartial, cmp.Status)
	assert.Equal(t, "openai:gpt-4o-mini", cmp.CheapestProvider)
	assert.Equal(t, "anthropic:haiku", cmp.FastestProvider)
	assert.Equal(t, int64(3000), cmp.DurationByProvider["anthropic:haiku"])
	assert.InDelta(t, 0.5, cmp.SupportedRatio["anthropic:haiku"], 1e-9)
	assert.NotContains(t, cmp.CostByProvider, "gemini:flash")
	require.Len(t, cmp.Failed, 1)
	assert.Equal(t, "r3", cmp.Failed[0].RunID)
	assert.Equal(t, "gemini call failed: 401", cmp.Failed[0].Error)
}

func TestCompare_PositionMatrixAndDuplicateLabels(t *testing.T) {
	a := finished("r1", "stub", "edges", model.StatusCompleted, 0, time.Second)
	a.Type = model.ExperimentPosition
	b := a
	b.ID = "r2"
	tests := []model.PositionTest{
		{Position: model.PositionStart, Found: true},
		{Position: model.PositionMiddle, Found: false},
		{Position: model.PositionEnd, Found: true},
	}

	cmp := Compare("b1", []Member{{Run: a, PositionTests: tests}, {Run: b, PositionTests: tests}})
	assert.Equal(t, model.BatchCompleted, cmp.Status)
	require.Contains(t, cmp.PositionMatrix, "stub:edges")
	require.Contains(t, cmp.PositionMatrix, "stub:edges#2")
	assert.False(t, cmp.PositionMatrix["stub:edges"][model.PositionMiddle])
	assert.True(t, cmp.PositionMatrix["stub:edges#2"][model.PositionEnd])
	assert.Nil(t, cmp.SupportedRatio)
}

func TestCompare_RunningMemberKeepsBatchRunning(t *testing.T) {
	cmp := Compare("b1", []Member{
		{Run: finished("r1", "stub", "echo", model.StatusCompleted, 0, time.Second)},
		{Run: model.ExperimentRun{ID: "r2", Provider: "stub", Model: "fail", Status: model.StatusRunning}},
	})
	assert.Equal(t, model.BatchRunning, cmp.Status)
	assert.Empty(t, cmp.Failed)
}

func TestRunMarkdown_MarksIncompleteRun(t *testing.T) {
	run := model.ExperimentRun{ID: "r1", Provider: "stub", Model: "echo", Type: model.ExperimentPersona, Status: model.StatusRunning}
	md := RunMarkdown(Member{Run: run})
	assert.Contains(t, md, "# Experiment run r1")
	assert.Contains(t, md, "**Incomplete:** this run is running")
	assert.Contains(t, md, "_No claims extracted._")
}

func TestRunMarkdown_GroupsClaimsByPersonaAndVariant(t *testing.T) {
	run := finished("r1", "stub", "echo", model.StatusCompleted, 0, time.Second)
	run.Type = model.ExperimentCompression
	md := RunMarkdown(Member{Run: run, Claims: []model.ClaimWithReceipts{
		claim(model.PersonaIntense, model.VariantFull, "felt nervous before the race", true),
		claim(model.PersonaIntense, model.VariantTruncated, "legs were heavy", false),
	}})

	assert.Contains(t, md, "1 of 2 claims supported")
	assert.Contains(t, md, "### Intense (full)")
	assert.Contains(t, md, "### Intense (truncated)")
	assert.Contains(t, md, `2026-02-20 emotional_state: "felt nervous before the race"`)
	assert.NotContains(t, md, "Incomplete")
}

func TestRunMarkdown_FailedRunShowsError(t *testing.T) {
	run := finished("r1", "stub", "fail", model.StatusFailed, 0, time.Second)
	run.Error = "persona intense call failed: boom"
	md := RunMarkdown(Member{Run: run})
	assert.Contains(t, md, "> **Failed:** persona intense call failed: boom")
}

func TestBatchMarkdown_ListsFailedProviders(t *testing.T) {
	ok := finished("r1", "stub", "echo", model.StatusCompleted, 0, time.Second)
	bad := finished("r2", "stub", "fail", model.StatusFailed, 0, time.Second)
	bad.Error = "permanent failure"
	members := []Member{
		{Run: ok, Claims: []model.ClaimWithReceipts{claim(model.PersonaIntense, model.VariantFull, "x", true)}},
		{Run: bad},
	}
	b := Batch{ID: "b1", Members: members, Comparison: Compare("b1", members)}
	b.Status = b.Comparison.Status

	md := BatchMarkdown(b)
	assert.Contains(t, md, "**Status:** partial")
	assert.Contains(t, md, "## Failed providers")
	assert.Contains(t, md, "- **stub:fail** (`r2`): permanent failure")
	assert.Contains(t, md, "## stub:echo")
	assert.NotContains(t, md, "## stub:fail\n")
	assert.Contains(t, md, "| stub:echo | completed | 100 | $0.0000 | 1s | 100% |")
}

func TestComputeStats(t *testing.T) {
	runs := []model.ExperimentRun{
		finished("r1", "anthropic", "haiku", model.StatusCompleted, 0.02, 2*time.Second),
		finished("r2", "anthropic", "haiku", model.StatusFailed, 0.01, 4*time.Second),
		{ID: "r3", Provider: "stub", Model: "echo", Type: model.ExperimentPosition, Status: model.StatusPending},
	}
	s := ComputeStats(runs)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.ByStatus[model.StatusPending])
	assert.Equal(t, 3*time.Second, s.AvgDuration)
	assert.InDelta(t, 0.03, s.TotalCost, 1e-9)
	require.Contains(t, s.ByProvider, "anthropic")
	assert.Equal(t, 1, s.ByProvider["anthropic"].Failed)

	md := StatsMarkdown(s)
	assert.Contains(t, md, "- Runs: 3")
	assert.Contains(t, md, "| anthropic | 2 | 1 | 1 | 200 | $0.0300 |")
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "report.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestLoadBatch(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	_, err := LoadBatch(ctx, st, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	for _, mdl := range []string{"echo", "fail"} {
		run := &model.ExperimentRun{
			BatchID: "b1", Provider: "stub", Model: mdl, AthleteID: "a1",
			Persona: model.PersonaIntense, Type: model.ExperimentPersona, EntryOrder: model.OrderReverse,
		}
		require.NoError(t, st.CreateRun(ctx, run))
		require.NoError(t, st.StartRun(ctx, run.ID, 0))
		if mdl == "fail" {
			require.NoError(t, st.FinishRun(ctx, run.ID, model.StatusFailed, "boom"))
			continue
		}
		require.NoError(t, st.SaveClaims(ctx, run.ID, []model.ClaimWithReceipts{
			claim(model.PersonaIntense, model.VariantFull, "slept badly", false),
		}))
		require.NoError(t, st.FinishRun(ctx, run.ID, model.StatusCompleted, ""))
	}

	b, err := LoadBatch(ctx, st, "b1")
	require.NoError(t, err)
	require.Len(t, b.Members, 2)
	assert.Equal(t, "echo", b.Members[0].Run.Model)
	assert.Len(t, b.Members[0].Claims, 1)
	assert.NotNil(t, b.Members[1].PositionTests)
	assert.Equal(t, model.BatchPartial, b.Status)

	m, err := LoadRun(ctx, st, b.Members[0].Run.ID)
	require.NoError(t, err)
	assert.Equal(t, "slept badly", m.Claims[0].Claim.Text)
}

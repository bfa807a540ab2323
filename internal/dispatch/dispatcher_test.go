package dispatch_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sells-group/journal-harness/internal/cost"
	"github.com/sells-group/journal-harness/internal/dispatch"
	"github.com/sells-group/journal-harness/internal/experiment"
	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/progress"
	"github.com/sells-group/journal-harness/internal/provider"
	"github.com/sells-group/journal-harness/internal/provider/mocks"
	"github.com/sells-group/journal-harness/internal/resilience"
	"github.com/sells-group/journal-harness/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// The genai client's opencensus dependency starts its stats worker at init.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

type harness struct {
	store      store.Store
	registry   *provider.Registry
	dispatcher *dispatch.Dispatcher
}

func newHarness(t *testing.T, maxInFlight int) *harness {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "dispatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	_, err = st.ImportJournal(context.Background(), []model.JournalEntry{
		{ID: "e1", AthleteID: "ath-1", EntryDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), EmotionalState: "Nervous about the regional championship"},
		{ID: "e2", AthleteID: "ath-1", EntryDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), SessionReflection: "Legs were heavy on the hill repeats"},
	})
	require.NoError(t, err)

	reg := provider.NewRegistry()
	reg.RegisterStub(provider.StubName, provider.NewStub(provider.StubEcho, ""))
	runner := experiment.NewRunner(st, experiment.StoreJournal{Store: st}, reg, cost.NewCalculator(cost.DefaultRates()), experiment.Options{})

	hub := progress.NewHub(time.Minute, 0)
	t.Cleanup(hub.Close)

	d := dispatch.New(runner, hub, st, dispatch.Options{
		MaxInFlight: maxInFlight,
		Retry:       resilience.RetryPolicy{MaxAttempts: 1},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, d.Shutdown(ctx))
	})
	return &harness{store: st, registry: reg, dispatcher: d}
}

func batchRequest(pairs ...model.ProviderModel) model.BatchRequest {
	return model.BatchRequest{
		AthleteID:   "ath-1",
		Type:        model.ExperimentPersona,
		Providers:   pairs,
		Persona:     model.PersonaSupportive,
		Temperature: 0.5,
		EntryOrder:  model.OrderChronological,
	}
}

func drain(t *testing.T, d *dispatch.Dispatcher, id string) []model.ProgressEvent {
	t.Helper()
	sub, err := d.Subscribe(id)
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out []model.ProgressEvent
	for {
		ev, ok, err := sub.Next(ctx)
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func ofType(events []model.ProgressEvent, typ model.EventType) []model.ProgressEvent {
	var out []model.ProgressEvent
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestStartBatch_OneFailingProviderIsPartial(t *testing.T) {
	h := newHarness(t, 4)

	started, err := h.dispatcher.StartBatch(context.Background(), batchRequest(
		model.ProviderModel{Provider: "stub", Model: "fail"},
		model.ProviderModel{Provider: "stub", Model: "echo"},
	))
	require.NoError(t, err)
	require.Len(t, started.RunIDs, 2)
	assert.Equal(t, model.BatchRunning, started.Status)

	events := drain(t, h.dispatcher, started.BatchID)
	require.NotEmpty(t, events)
	assert.Equal(t, model.EventBatchStarted, events[0].Type)
	last := events[len(events)-1]
	require.Equal(t, model.EventBatchComplete, last.Type)

	cmp, ok := last.Data.(model.BatchComparison)
	require.True(t, ok)
	assert.Equal(t, model.BatchPartial, cmp.Status)
	require.Len(t, cmp.Failed, 1)
	assert.Equal(t, started.RunIDs[0], cmp.Failed[0].RunID)
	assert.Contains(t, cmp.CostByProvider, "stub:echo")

	errs := ofType(events, model.EventProviderError)
	done := ofType(events, model.EventProviderComplete)
	require.Len(t, errs, 1)
	require.Len(t, done, 1)
	assert.Equal(t, started.RunIDs[0], errs[0].RunID)
	assert.Equal(t, started.RunIDs[1], done[0].RunID)

	// Per run, provider_started precedes its outcome.
	for _, runID := range started.RunIDs {
		var seq []model.EventType
		for _, ev := range events {
			if ev.RunID == runID && ev.Type != model.EventProgress {
				seq = append(seq, ev.Type)
			}
		}
		require.Len(t, seq, 2)
		assert.Equal(t, model.EventProviderStarted, seq[0])
	}

	assert.False(t, h.dispatcher.IsBatchRunning(started.BatchID))

	failed, err := h.store.GetRun(context.Background(), started.RunIDs[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "call failed")
}

func TestStartBatch_RunStreamEndsWithRunComplete(t *testing.T) {
	h := newHarness(t, 2)

	started, err := h.dispatcher.StartBatch(context.Background(), batchRequest(model.ProviderModel{Provider: "stub", Model: "echo"}))
	require.NoError(t, err)

	events := drain(t, h.dispatcher, started.RunIDs[0])
	require.NotEmpty(t, events)
	assert.Equal(t, model.EventProviderStarted, events[0].Type)
	assert.Len(t, ofType(events, model.EventProgress), 2, "one progress event per persona call")

	last := events[len(events)-1]
	require.Equal(t, model.EventRunComplete, last.Type)
	res, ok := last.Data.(*experiment.RunResult)
	require.True(t, ok)
	assert.Equal(t, model.StatusCompleted, res.Run.Status)
}

func TestStartBatch_InvalidConfigCreatesNothing(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	tests := []struct {
		name string
		req  model.BatchRequest
	}{
		{"empty provider list", batchRequest()},
		{"unknown provider", batchRequest(
			model.ProviderModel{Provider: "stub", Model: "echo"},
			model.ProviderModel{Provider: "nope", Model: "x"},
		)},
		{"malformed pair", batchRequest(model.ProviderModel{Provider: "stub"})},
		{"unknown type", func() model.BatchRequest {
			r := batchRequest(model.ProviderModel{Provider: "stub", Model: "echo"})
			r.Type = "vibes"
			return r
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.dispatcher.StartBatch(ctx, tt.req)
			assert.ErrorIs(t, err, model.ErrInvalidConfig)
		})
	}

	runs, err := h.store.ListRuns(ctx, store.RunFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStartBatch_CapRunsInSubmissionOrder(t *testing.T) {
	h := newHarness(t, 1)

	started, err := h.dispatcher.StartBatch(context.Background(), batchRequest(
		model.ProviderModel{Provider: "stub", Model: "echo"},
		model.ProviderModel{Provider: "stub", Model: "edges"},
		model.ProviderModel{Provider: "stub", Model: "fixed"},
	))
	require.NoError(t, err)

	events := drain(t, h.dispatcher, started.BatchID)
	var order []string
	for _, ev := range events {
		switch ev.Type {
		case model.EventProviderStarted, model.EventProviderComplete, model.EventProviderError:
			order = append(order, string(ev.Type)+":"+ev.RunID)
		}
	}

	var want []string
	for _, id := range started.RunIDs {
		want = append(want, string(model.EventProviderStarted)+":"+id, string(model.EventProviderComplete)+":"+id)
	}
	assert.Equal(t, want, order, "one run at a time, in submission order")
}

func TestCancel_FailsRunsNotStarted(t *testing.T) {
	h := newHarness(t, 1)

	inCall := make(chan struct{})
	release := make(chan struct{})
	slow := mocks.NewMockClient(t)
	slow.On("Chat", mock.Anything, mock.Anything).
		Return(func(context.Context, provider.ChatRequest) (*provider.ChatResponse, error) {
			close(inCall)
			<-release
			return &provider.ChatResponse{Text: "Legs were heavy on the hill repeats.", InputTokens: 8, OutputTokens: 6}, nil
		}).Once()
	h.registry.Register("slow", slow)

	started, err := h.dispatcher.StartBatch(context.Background(), batchRequest(
		model.ProviderModel{Provider: "slow", Model: "a"},
		model.ProviderModel{Provider: "stub", Model: "echo"},
		model.ProviderModel{Provider: "stub", Model: "echo"},
	))
	require.NoError(t, err)

	select {
	case <-inCall:
	case <-time.After(5 * time.Second):
		t.Fatal("first call never started")
	}
	assert.True(t, h.dispatcher.IsBatchRunning(started.BatchID))
	assert.True(t, h.dispatcher.Cancel(started.BatchID))
	close(release)

	events := drain(t, h.dispatcher, started.BatchID)
	cmp, ok := events[len(events)-1].Data.(model.BatchComparison)
	require.True(t, ok)
	assert.Equal(t, model.BatchFailed, cmp.Status)
	assert.Len(t, ofType(events, model.EventProviderError), 3)

	ctx := context.Background()
	first, err := h.store.GetRun(ctx, started.RunIDs[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, first.Status)
	assert.Equal(t, "cancelled before persona intense call", first.Error)
	assert.Equal(t, 14, first.TokensUsed, "the in-flight call was kept")

	for _, id := range started.RunIDs[1:] {
		run, err := h.store.GetRun(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, run.Status)
		assert.Equal(t, "batch cancelled", run.Error)
		assert.Nil(t, run.StartedAt)
	}
	assert.False(t, h.dispatcher.Cancel(started.BatchID))
}

func TestStartRun(t *testing.T) {
	h := newHarness(t, 1)

	started, err := h.dispatcher.StartRun(context.Background(), model.ExperimentConfig{
		AthleteID:  "ath-1",
		Type:       model.ExperimentPosition,
		Provider:   "stub",
		Model:      "edges",
		Persona:    model.PersonaIntense,
		EntryOrder: model.OrderChronological,
		NeedleFact: "sub-4 minute mile goal",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, started.Status)

	events := drain(t, h.dispatcher, started.RunID)
	assert.Len(t, ofType(events, model.EventProviderComplete), 1)
	assert.Equal(t, model.EventRunComplete, events[len(events)-1].Type)

	tests, err := h.store.ListPositionTests(context.Background(), started.RunID)
	require.NoError(t, err)
	require.Len(t, tests, 3)
	assert.True(t, tests[0].Found)
	assert.False(t, tests[1].Found)
	assert.True(t, tests[2].Found)
}

func TestShutdown_RejectsNewWork(t *testing.T) {
	h := newHarness(t, 1)
	require.NoError(t, h.dispatcher.Shutdown(context.Background()))

	_, err := h.dispatcher.StartBatch(context.Background(), batchRequest(model.ProviderModel{Provider: "stub", Model: "echo"}))
	assert.ErrorIs(t, err, dispatch.ErrShutdown)

	_, err = h.dispatcher.StartRun(context.Background(), model.ExperimentConfig{
		AthleteID: "ath-1", Type: model.ExperimentPersona, Provider: "stub", Model: "echo", Persona: model.PersonaIntense,
	})
	assert.ErrorIs(t, err, dispatch.ErrShutdown)

	runs, err := h.store.ListRuns(context.Background(), store.RunFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

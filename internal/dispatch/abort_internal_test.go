package dispatch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/journal-harness/internal/cost"
	"github.com/sells-group/journal-harness/internal/experiment"
	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/progress"
	"github.com/sells-group/journal-harness/internal/provider"
	"github.com/sells-group/journal-harness/internal/store"
)

func TestAbortPending_LogsStoreFailures(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "abort.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))

	reg := provider.NewRegistry()
	reg.RegisterStub(provider.StubName, provider.NewStub(provider.StubEcho, ""))
	runner := experiment.NewRunner(st, experiment.StoreJournal{Store: st}, reg, cost.NewCalculator(cost.DefaultRates()), experiment.Options{})

	hub := progress.NewHub(time.Minute, 0)
	t.Cleanup(hub.Close)
	d := New(runner, hub, st, Options{})

	p, err := runner.Create(context.Background(), model.ExperimentConfig{
		AthleteID: "ath-1",
		Type:      model.ExperimentPersona,
		Provider:  provider.StubName,
		Model:     "echo",
		Persona:   model.PersonaSupportive,
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	core, logs := observer.New(zapcore.WarnLevel)
	t.Cleanup(zap.ReplaceGlobals(zap.New(core)))

	d.abortPending(context.Background(), []*experiment.Pending{p}, "dispatcher shut down")

	entries := logs.FilterMessage("dispatch: abort unscheduled run").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, p.Run.ID, fields["run_id"])
	assert.Equal(t, "dispatcher shut down", fields["reason"])
	assert.NotEmpty(t, fields["error"])
}

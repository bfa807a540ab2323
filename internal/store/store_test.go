package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/journal-harness/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newRun(athlete string) *model.ExperimentRun {
	return &model.ExperimentRun{
		Provider:      "stub",
		Model:         "echo",
		Temperature:   0.7,
		PromptVersion: "v1",
		AthleteID:     athlete,
		Persona:       model.PersonaSupportive,
		Type:          model.ExperimentPersona,
		EntryOrder:    model.OrderReverse,
	}
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run := newRun("ath-1")
		run.NeedleFact = "sub-4 minute mile goal"
		require.NoError(t, s.CreateRun(ctx, run))
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.StatusPending, run.Status)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, model.StatusPending, got.Status)
		assert.Equal(t, model.PersonaSupportive, got.Persona)
		assert.Equal(t, "sub-4 minute mile goal", got.NeedleFact)
		assert.Nil(t, got.StartedAt)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRun(context.Background(), "nonexistent-id")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Lifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run := newRun("ath-1")
		require.NoError(t, s.CreateRun(ctx, run))

		// Usage only applies while running.
		err := s.UpdateRunUsage(ctx, run.ID, RunUsage{InputTokens: 1})
		assert.ErrorIs(t, err, ErrInvalidTransition)

		require.NoError(t, s.StartRun(ctx, run.ID, 8))
		require.NoError(t, s.UpdateRunUsage(ctx, run.ID, RunUsage{InputTokens: 100, OutputTokens: 20, EstimatedCost: 0.01}))
		require.NoError(t, s.UpdateRunUsage(ctx, run.ID, RunUsage{InputTokens: 250, OutputTokens: 60, EstimatedCost: 0.03}))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusRunning, got.Status)
		assert.Equal(t, 8, got.EntriesUsed)
		assert.Equal(t, 310, got.TokensUsed)
		assert.InDelta(t, 0.03, got.EstimatedCost, 1e-9)
		require.NotNil(t, got.StartedAt)
		assert.Nil(t, got.CompletedAt)

		require.NoError(t, s.FinishRun(ctx, run.ID, model.StatusCompleted, ""))
		got, err = s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, got.Status)
		require.NotNil(t, got.CompletedAt)
		assert.False(t, got.CompletedAt.Before(*got.StartedAt))
	})

	t.Run("TerminalStatusIsFinal", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run := newRun("ath-1")
		require.NoError(t, s.CreateRun(ctx, run))
		require.NoError(t, s.FinishRun(ctx, run.ID, model.StatusFailed, "no journal entries"))

		assert.ErrorIs(t, s.FinishRun(ctx, run.ID, model.StatusCompleted, ""), ErrInvalidTransition)
		assert.ErrorIs(t, s.StartRun(ctx, run.ID, 1), ErrInvalidTransition)
		assert.ErrorIs(t, s.FinishRun(ctx, run.ID, model.StatusRunning, ""), ErrInvalidTransition)
		assert.ErrorIs(t, s.FinishRun(ctx, "missing", model.StatusFailed, "x"), ErrNotFound)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, got.Status)
		assert.Equal(t, "no journal entries", got.Error)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("ListRunsFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var ids []string
		for i, athlete := range []string{"ath-1", "ath-1", "ath-2"} {
			run := newRun(athlete)
			if i == 2 {
				run.Provider = "openai"
				run.Model = "gpt-4o-mini"
			}
			require.NoError(t, s.CreateRun(ctx, run))
			ids = append(ids, run.ID)
		}
		require.NoError(t, s.FinishRun(ctx, ids[0], model.StatusCompleted, ""))

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, ids[2], all[0].ID, "newest first")

		byAthlete, err := s.ListRuns(ctx, RunFilter{AthleteID: "ath-1"})
		require.NoError(t, err)
		assert.Len(t, byAthlete, 2)

		completed, err := s.ListRuns(ctx, RunFilter{Status: model.StatusCompleted})
		require.NoError(t, err)
		require.Len(t, completed, 1)
		assert.Equal(t, ids[0], completed[0].ID)

		byProvider, err := s.ListRuns(ctx, RunFilter{Provider: "openai"})
		require.NoError(t, err)
		assert.Len(t, byProvider, 1)

		page, err := s.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, ids[1], page[0].ID)
	})

	t.Run("BatchMembersInSubmissionOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var ids []string
		for range 3 {
			run := newRun("ath-1")
			run.BatchID = "batch-1"
			require.NoError(t, s.CreateRun(ctx, run))
			ids = append(ids, run.ID)
		}
		require.NoError(t, s.CreateRun(ctx, newRun("ath-1")))

		members, err := s.ListRuns(ctx, RunFilter{BatchID: "batch-1"})
		require.NoError(t, err)
		require.Len(t, members, 3)
		for i, m := range members {
			assert.Equal(t, ids[i], m.ID)
		}
	})

	t.Run("SoftDeleteHidesRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run := newRun("ath-1")
		require.NoError(t, s.CreateRun(ctx, run))
		require.NoError(t, s.SoftDeleteRun(ctx, run.ID))

		runs, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Empty(t, runs)

		runs, err = s.ListRuns(ctx, RunFilter{IncludeDeleted: true})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.True(t, runs[0].Deleted)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.True(t, got.Deleted)

		assert.ErrorIs(t, s.SoftDeleteRun(ctx, "missing"), ErrNotFound)
	})

	t.Run("ClaimsWithReceipts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run := newRun("ath-1")
		require.NoError(t, s.CreateRun(ctx, run))

		day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
		claims := []model.ClaimWithReceipts{
			{
				Claim: model.ExperimentClaim{Text: "You felt anxious before the race.", Supported: true,
					Persona: model.PersonaSupportive, Variant: model.VariantFull, ClaimType: model.FieldEmotionalState,
					Confidence: 0.8, ReferencedDate: &day, Ordinal: 0},
				Receipts: []model.ClaimReceipt{
					{EntryID: "e2", Field: model.FieldEmotionalState, Snippet: "anxious before race", EntryDate: day, Confidence: 0.8},
					{EntryID: "e1", Field: model.FieldSessionReflection, Snippet: "anxious again", EntryDate: day.AddDate(0, 0, -1), Confidence: 0.4},
				},
			},
			{
				Claim: model.ExperimentClaim{Text: "Keep going.", Persona: model.PersonaSupportive,
					Variant: model.VariantFull, Ordinal: 1},
			},
		}
		require.NoError(t, s.SaveClaims(ctx, run.ID, claims))
		assert.NotEmpty(t, claims[0].Claim.ID)
		assert.Equal(t, claims[0].Claim.ID, claims[0].Receipts[0].ClaimID)

		got, err := s.ListClaims(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "You felt anxious before the race.", got[0].Claim.Text)
		assert.True(t, got[0].Claim.Supported)
		require.NotNil(t, got[0].Claim.ReferencedDate)
		assert.True(t, day.Equal(*got[0].Claim.ReferencedDate))
		require.Len(t, got[0].Receipts, 2)
		assert.Equal(t, "e2", got[0].Receipts[0].EntryID, "primary receipt first")
		assert.Equal(t, "e1", got[0].Receipts[1].EntryID)
		assert.False(t, got[1].Claim.Supported)
		assert.Empty(t, got[1].Receipts)
		assert.Nil(t, got[1].Claim.ReferencedDate)
	})

	t.Run("PositionTestsInCanonicalOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run := newRun("ath-1")
		run.Type = model.ExperimentPosition
		run.NeedleFact = "sub-4 minute mile goal"
		require.NoError(t, s.CreateRun(ctx, run))

		for _, pos := range []model.NeedlePosition{model.PositionEnd, model.PositionStart, model.PositionMiddle} {
			require.NoError(t, s.SavePositionTest(ctx, &model.PositionTest{
				RunID: run.ID, Position: pos, NeedleFact: run.NeedleFact, Found: pos != model.PositionMiddle,
			}))
		}

		got, err := s.ListPositionTests(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, model.PositionStart, got[0].Position)
		assert.Equal(t, model.PositionMiddle, got[1].Position)
		assert.False(t, got[1].Found)
		assert.Equal(t, model.PositionEnd, got[2].Position)

		dup := &model.PositionTest{RunID: run.ID, Position: model.PositionStart, NeedleFact: run.NeedleFact}
		assert.Error(t, s.SavePositionTest(ctx, dup))
	})

	t.Run("DeleteRunCascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run := newRun("ath-1")
		require.NoError(t, s.CreateRun(ctx, run))
		require.NoError(t, s.SaveClaims(ctx, run.ID, []model.ClaimWithReceipts{{
			Claim:    model.ExperimentClaim{Text: "claim", Persona: model.PersonaSupportive, Variant: model.VariantFull},
			Receipts: []model.ClaimReceipt{{EntryID: "e1", Field: model.FieldEmotionalState, Snippet: "x", EntryDate: time.Now()}},
		}}))
		require.NoError(t, s.SavePositionTest(ctx, &model.PositionTest{RunID: run.ID, Position: model.PositionStart, NeedleFact: "n"}))

		require.NoError(t, s.DeleteRun(ctx, run.ID))

		_, err := s.GetRun(ctx, run.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		claims, err := s.ListClaims(ctx, run.ID)
		require.NoError(t, err)
		assert.Empty(t, claims)
		tests, err := s.ListPositionTests(ctx, run.ID)
		require.NoError(t, err)
		assert.Empty(t, tests)

		assert.ErrorIs(t, s.DeleteRun(ctx, run.ID), ErrNotFound)
	})

	t.Run("PresetUpsertByName", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		temp := 0.2
		p := &model.ExperimentPreset{
			Name:        "haiku-position",
			Description: "first",
			Config: model.PresetConfig{
				Type: model.ExperimentPosition, Provider: "anthropic", Model: "claude-haiku-4-5",
				NeedleFact: "sub-4 minute mile goal", Temperature: &temp,
			},
		}
		require.NoError(t, s.SavePreset(ctx, p))
		firstID := p.ID
		assert.NotEmpty(t, firstID)
		assert.Equal(t, model.PresetSchemaVersion, p.Config.SchemaVersion)

		p2 := &model.ExperimentPreset{Name: "haiku-position", Description: "second", Config: p.Config}
		require.NoError(t, s.SavePreset(ctx, p2))
		assert.Equal(t, firstID, p2.ID, "same name updates in place")

		byName, err := s.GetPreset(ctx, "haiku-position")
		require.NoError(t, err)
		assert.Equal(t, "second", byName.Description)
		assert.Equal(t, model.ExperimentPosition, byName.Config.Type)
		require.NotNil(t, byName.Config.Temperature)
		assert.InDelta(t, 0.2, *byName.Config.Temperature, 1e-9)

		byID, err := s.GetPreset(ctx, firstID)
		require.NoError(t, err)
		assert.Equal(t, "haiku-position", byID.Name)

		all, err := s.ListPresets(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)

		require.NoError(t, s.DeletePreset(ctx, firstID))
		_, err = s.GetPreset(ctx, firstID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeletePreset(ctx, firstID), ErrNotFound)
	})

	t.Run("JournalImportIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		entries := []model.JournalEntry{
			{ID: "e1", AthleteID: "ath-1", EntryDate: base, EmotionalState: "calm"},
			{ID: "e2", AthleteID: "ath-1", EntryDate: base.AddDate(0, 0, 1), SessionReflection: "tempo run felt strong"},
			{ID: "e3", AthleteID: "ath-2", EntryDate: base, MentalBarriers: "fear of failure"},
		}
		n, err := s.ImportJournal(ctx, entries)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		entries[0].EmotionalState = "nervous"
		_, err = s.ImportJournal(ctx, entries[:1])
		require.NoError(t, err)

		got, err := s.ListJournal(ctx, "ath-1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "e2", got[0].ID, "newest first")
		assert.Equal(t, "nervous", got[1].EmotionalState)
		assert.True(t, base.Equal(got[1].EntryDate))

		none, err := s.ListJournal(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

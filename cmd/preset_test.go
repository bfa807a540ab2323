//go:build !integration

package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/journal-harness/internal/model"
)

func newOverrideFlags(t *testing.T, set map[string]string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("apply", pflag.ContinueOnError)
	addOverrideFlags(fs)
	for k, v := range set {
		require.NoError(t, fs.Set(k, v))
	}
	return fs
}

func TestOverridesFromFlags_OnlyExplicitValues(t *testing.T) {
	o, err := overridesFromFlags(newOverrideFlags(t, map[string]string{"athlete": "ath-1"}))
	require.NoError(t, err)

	assert.Equal(t, "ath-1", o.AthleteID)
	assert.Empty(t, o.Provider)
	assert.Empty(t, o.Providers)
	assert.Nil(t, o.Temperature)
	assert.Nil(t, o.MaxEntries)
	assert.Empty(t, o.EntryOrder)
}

func TestOverridesFromFlags_AllValues(t *testing.T) {
	o, err := overridesFromFlags(newOverrideFlags(t, map[string]string{
		"athlete":     "ath-1",
		"provider":    "gemini:gemini-2.5-flash",
		"providers":   "stub:echo,stub:edges",
		"persona":     "intense",
		"temperature": "0",
		"max-entries": "5",
		"order":       "chronological",
		"needle":      "New coach in March",
	}))
	require.NoError(t, err)

	assert.Equal(t, "gemini", o.Provider)
	assert.Equal(t, "gemini-2.5-flash", o.Model)
	assert.Equal(t, []model.ProviderModel{{Provider: "stub", Model: "echo"}, {Provider: "stub", Model: "edges"}}, o.Providers)
	assert.Equal(t, model.PersonaIntense, o.Persona)
	require.NotNil(t, o.Temperature)
	assert.Zero(t, *o.Temperature)
	require.NotNil(t, o.MaxEntries)
	assert.Equal(t, 5, *o.MaxEntries)
	assert.Equal(t, model.OrderChronological, o.EntryOrder)
	assert.Equal(t, "New coach in March", o.NeedleFact)
}

func TestOverridesFromFlags_InvalidPersona(t *testing.T) {
	_, err := overridesFromFlags(newOverrideFlags(t, map[string]string{"persona": "gentle"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidConfig))
}

func TestFormatPresetList(t *testing.T) {
	updated := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	presets := []model.ExperimentPreset{
		{
			ID:   "pre12345-0000",
			Name: "haiku-vs-gpt",
			Config: model.PresetConfig{
				Type: model.ExperimentPosition,
				Providers: []model.ProviderModel{
					{Provider: "anthropic", Model: "claude-haiku"},
					{Provider: "openai", Model: "gpt-4o-mini"},
				},
			},
			UpdatedAt: updated,
		},
		{
			ID:        "pre67890-0000",
			Name:      "offline",
			Config:    model.PresetConfig{Type: model.ExperimentPersona, Provider: "stub", Model: "echo"},
			UpdatedAt: updated,
		},
	}

	var buf bytes.Buffer
	formatPresetList(&buf, presets)

	output := buf.String()
	assert.Contains(t, output, "NAME")
	assert.Contains(t, output, "haiku-vs-gpt")
	assert.Contains(t, output, "anthropic:claude-haiku,openai:gpt-4o-mini")
	assert.Contains(t, output, "position")
	assert.Contains(t, output, "stub:echo")
	assert.Contains(t, output, "pre12345")
	assert.Contains(t, output, "2026-04-01 08:00")
}

func TestFormatPresetList_TruncatesLongSweeps(t *testing.T) {
	presets := []model.ExperimentPreset{{
		ID:   "pre12345-0000",
		Name: "everything",
		Config: model.PresetConfig{
			Type: model.ExperimentPersona,
			Providers: []model.ProviderModel{
				{Provider: "anthropic", Model: "claude-haiku"},
				{Provider: "openai", Model: "gpt-4o-mini"},
				{Provider: "gemini", Model: "gemini-2.5-flash"},
				{Provider: "ollama", Model: "llama3.1:8b"},
			},
		},
	}}

	var buf bytes.Buffer
	formatPresetList(&buf, presets)

	output := buf.String()
	assert.Contains(t, output, "anthropic:claude-haiku,openai:gpt-4o-mini,gemini:gemini-2...")
	assert.NotContains(t, output, "llama3.1:8b")
}

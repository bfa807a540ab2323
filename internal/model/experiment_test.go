package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() ExperimentConfig {
	return ExperimentConfig{
		AthleteID:   "athlete-1",
		Type:        ExperimentPersona,
		Provider:    "anthropic",
		Model:       "claude-haiku-4-5-20251001",
		Persona:     PersonaSupportive,
		Temperature: 0.7,
		EntryOrder:  OrderReverse,
	}
}

func TestParseExperimentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ExperimentType
		wantErr bool
	}{
		{"position", ExperimentPosition, false},
		{"Persona", ExperimentPersona, false},
		{" compression ", ExperimentCompression, false},
		{"sentiment", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseExperimentType(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePersona_RejectsUnknown(t *testing.T) {
	t.Parallel()

	p, err := ParsePersona("INTENSE")
	require.NoError(t, err)
	assert.Equal(t, PersonaIntense, p)

	_, err = ParsePersona("sarcastic")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestParseEntryOrder_DefaultsToReverse(t *testing.T) {
	t.Parallel()

	o, err := ParseEntryOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderReverse, o)

	o, err = ParseEntryOrder("chronological")
	require.NoError(t, err)
	assert.Equal(t, OrderChronological, o)

	_, err = ParseEntryOrder("random")
	assert.Error(t, err)
}

func TestExperimentStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestExperimentConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *ExperimentConfig)
		wantErr bool
	}{
		{"valid", func(c *ExperimentConfig) {}, false},
		{"missing athlete", func(c *ExperimentConfig) { c.AthleteID = "" }, true},
		{"unknown type", func(c *ExperimentConfig) { c.Type = "vibes" }, true},
		{"unknown persona", func(c *ExperimentConfig) { c.Persona = "grumpy" }, true},
		{"missing model", func(c *ExperimentConfig) { c.Model = "" }, true},
		{"negative max entries", func(c *ExperimentConfig) { c.MaxEntries = -1 }, true},
		{"temperature too high", func(c *ExperimentConfig) { c.Temperature = 3 }, true},
		{"position without needle", func(c *ExperimentConfig) { c.Type = ExperimentPosition }, true},
		{"position with needle", func(c *ExperimentConfig) {
			c.Type = ExperimentPosition
			c.NeedleFact = "sub-4 minute mile goal"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExperimentConfig_Normalize(t *testing.T) {
	t.Parallel()

	c := validConfig()
	c.Type = "Position"
	c.Persona = " Intense "
	c.EntryOrder = "CHRONOLOGICAL"
	c.Provider = " Anthropic "
	c.NeedleFact = "sub-4 minute mile goal"

	got, err := c.Normalize()
	require.NoError(t, err)
	assert.Equal(t, ExperimentPosition, got.Type)
	assert.Equal(t, PersonaIntense, got.Persona)
	assert.Equal(t, OrderChronological, got.EntryOrder)
	assert.Equal(t, "anthropic", got.Provider)

	c.EntryOrder = ""
	got, err = c.Normalize()
	require.NoError(t, err)
	assert.Equal(t, OrderReverse, got.EntryOrder)
}

func TestBatchRequest_ConfigsAreNormalized(t *testing.T) {
	t.Parallel()

	req := BatchRequest{
		AthleteID:  "ath-1",
		Type:       "Compression",
		Persona:    "Supportive",
		EntryOrder: "Reverse",
		Providers:  []ProviderModel{{Provider: "OpenAI", Model: "gpt-4o-mini"}},
	}
	configs, err := req.Configs("batch-1")
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, ExperimentCompression, configs[0].Type)
	assert.Equal(t, PersonaSupportive, configs[0].Persona)
	assert.Equal(t, OrderReverse, configs[0].EntryOrder)
	assert.Equal(t, "openai", configs[0].Provider)
	assert.Equal(t, "batch-1", configs[0].BatchID)
}

func TestParseProviderModel(t *testing.T) {
	t.Parallel()

	pm, err := ParseProviderModel("ollama:llama3.1:8b")
	require.NoError(t, err)
	assert.Equal(t, "ollama", pm.Provider)
	assert.Equal(t, "llama3.1:8b", pm.Model)
	assert.Equal(t, "ollama:llama3.1:8b", pm.String())

	for _, bad := range []string{"", "anthropic", ":model", "openai:"} {
		_, err := ParseProviderModel(bad)
		assert.Error(t, err, bad)
	}
}

func TestBatchRequest_Configs(t *testing.T) {
	t.Parallel()

	req := BatchRequest{
		AthleteID:   "athlete-1",
		Type:        ExperimentPersona,
		Persona:     PersonaIntense,
		Temperature: 0.2,
		Providers: []ProviderModel{
			{Provider: "Anthropic", Model: "claude-haiku-4-5-20251001"},
			{Provider: "openai", Model: "gpt-4o-mini"},
		},
	}

	configs, err := req.Configs("batch-1")
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "anthropic", configs[0].Provider)
	assert.Equal(t, "batch-1", configs[1].BatchID)

	req.Providers = nil
	_, err = req.Configs("batch-2")
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	req.Providers = []ProviderModel{{Provider: "openai"}}
	_, err = req.Configs("batch-3")
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestExperimentRun_Duration(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)

	r := ExperimentRun{Provider: "openai", Model: "gpt-4o"}
	assert.Zero(t, r.Duration())
	assert.Equal(t, "openai:gpt-4o", r.Label())

	r.StartedAt = &start
	r.CompletedAt = &end
	assert.Equal(t, 1500*time.Millisecond, r.Duration())
}

func TestJournalEntry_FieldsSkipsEmpty(t *testing.T) {
	t.Parallel()

	e := JournalEntry{EmotionalState: "nervous", MentalBarriers: "fear of failing"}
	fields := e.Fields()
	require.Len(t, fields, 2)
	assert.Equal(t, FieldEmotionalState, fields[0].Name)
	assert.Equal(t, FieldMentalBarriers, fields[1].Name)
}

//go:build !integration

package main

import (
	"bytes"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/journal-harness/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	done := now.Add(90 * time.Second)
	runs := []model.ExperimentRun{
		{
			ID:            "abc12345-6789-0000-0000-000000000000",
			BatchID:       "bat12345-6789-0000-0000-000000000000",
			Provider:      "anthropic",
			Model:         "claude-haiku",
			Type:          model.ExperimentPersona,
			Status:        model.StatusCompleted,
			TokensUsed:    1200,
			EstimatedCost: 0.0042,
			CreatedAt:     now,
			StartedAt:     &now,
			CompletedAt:   &done,
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Provider:  "stub",
			Model:     "echo",
			Type:      model.ExperimentPosition,
			Status:    model.StatusPending,
			CreatedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "PROVIDER")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "anthropic:claude-haiku")
	assert.Contains(t, output, "completed")
	assert.Contains(t, output, "$0.0042")
	assert.Contains(t, output, "1m30s")
	assert.Contains(t, output, "bat12345")
	assert.Contains(t, output, "stub:echo")
	assert.Contains(t, output, "pending")
	assert.Contains(t, output, "2026-03-15 10:30")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
}

func TestFormatRunsList_LongLabelTruncated(t *testing.T) {
	runs := []model.ExperimentRun{{
		ID:       "r1",
		Provider: "ollama",
		Model:    "some-very-long-local-model-name:70b-instruct-q4",
		Status:   model.StatusFailed,
	}}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	assert.Contains(t, buf.String(), "ollama:some-very-long-local-model...")
	assert.Contains(t, buf.String(), "failed")
}

func TestRunFilterFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addRunFilterFlags(cmd.Flags())
	cmd.Flags().Int("limit", 50, "")

	require.NoError(t, cmd.Flags().Set("status", "failed"))
	require.NoError(t, cmd.Flags().Set("type", "Position"))
	require.NoError(t, cmd.Flags().Set("provider", "gemini"))
	require.NoError(t, cmd.Flags().Set("batch", "b-1"))

	filter, err := runFilterFromFlags(cmd)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, filter.Status)
	assert.Equal(t, model.ExperimentPosition, filter.Type)
	assert.Equal(t, "gemini", filter.Provider)
	assert.Equal(t, "b-1", filter.BatchID)
	assert.Equal(t, 50, filter.Limit)
	assert.False(t, filter.IncludeDeleted)
}

func TestRunFilterFromFlags_InvalidType(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addRunFilterFlags(cmd.Flags())
	require.NoError(t, cmd.Flags().Set("type", "sentiment"))

	_, err := runFilterFromFlags(cmd)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidConfig))
}

func TestPrintMarkdown_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printMarkdown(&buf, "# Title\n", false))
	assert.Equal(t, "# Title\n", buf.String())
}

func TestPrintMarkdown_Pretty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printMarkdown(&buf, "# Experiment run\n\nSome **bold** text.\n", true))
	assert.Contains(t, buf.String(), "Experiment run")
	assert.Contains(t, buf.String(), "bold")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", truncateText("short", 10))
	assert.Equal(t, "exactly-10", truncateText("exactly-10", 10))
	assert.Equal(t, "abcdefg...", truncateText("abcdefghijkl", 10))

	cut := truncateText("ollama:modèle-très-très-long", 12)
	assert.Equal(t, "ollama:mo...", cut)
	assert.True(t, utf8.ValidString(truncateText("gemini:ééééééééééé", 10)))
	assert.Equal(t, "gemini:...", truncateText("gemini:ééééééééééé", 10))
}

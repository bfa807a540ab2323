//go:build !integration

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJournal_Array(t *testing.T) {
	data := []byte(`[
		{"id": "e1", "athlete_id": "ath-1", "entry_date": "2026-02-20", "emotional_state": "Anxious before the meet"},
		{"athlete_id": "ath-1", "entry_date": "2026-02-21T07:30:00-05:00", "session_reflection": "Strong finish"}
	]`)

	entries, err := parseJournal(data, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "e1", entries[0].ID)
	assert.Equal(t, time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), entries[0].EntryDate)
	assert.Equal(t, "Anxious before the meet", entries[0].EmotionalState)

	assert.Empty(t, entries[1].ID)
	assert.Equal(t, time.Date(2026, 2, 21, 12, 30, 0, 0, time.UTC), entries[1].EntryDate)
	assert.Equal(t, "Strong finish", entries[1].SessionReflection)
}

func TestParseJournal_WrappedWithDefaultAthlete(t *testing.T) {
	data := []byte(`{"entries": [{"entry_date": "2026-02-20", "mental_barriers": "Fear of the last lap"}]}`)

	entries, err := parseJournal(data, "ath-9")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ath-9", entries[0].AthleteID)
	assert.Equal(t, "Fear of the last lap", entries[0].MentalBarriers)
}

func TestParseJournal_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"malformed", `[{"id": }]`, "parse json"},
		{"no athlete", `[{"entry_date": "2026-02-20"}]`, "entry #1 has no athlete id"},
		{"bad date", `[{"athlete_id": "a", "entry_date": "20/02/2026"}]`, "invalid entry date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseJournal([]byte(tt.data), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

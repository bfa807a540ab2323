package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/journal-harness/internal/model"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Manage the local copy of athlete journals",
}

var journalImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import journal entries from a JSON file",
	Long:  "Reads a JSON array of entries, or an object with an \"entries\" array, and upserts them by id. Entry dates may be RFC 3339 timestamps or YYYY-MM-DD.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "journal import: read file")
		}
		athlete, _ := cmd.Flags().GetString("athlete")
		entries, err := parseJournal(data, athlete)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ImportJournal(ctx, entries)
		if err != nil {
			return eris.Wrap(err, "journal import")
		}

		zap.L().Info("journal import complete",
			zap.Int("entries", n),
			zap.String("file", args[0]),
		)
		return nil
	},
}

func init() {
	journalImportCmd.Flags().String("athlete", "", "athlete id for entries that carry none")

	journalCmd.AddCommand(journalImportCmd)
	rootCmd.AddCommand(journalCmd)
}

type journalRecord struct {
	ID                string `json:"id"`
	AthleteID         string `json:"athlete_id"`
	EntryDate         string `json:"entry_date"`
	EmotionalState    string `json:"emotional_state"`
	SessionReflection string `json:"session_reflection"`
	MentalBarriers    string `json:"mental_barriers"`
}

// parseJournal decodes an export of journal entries. defaultAthlete fills
// entries without an athlete id.
func parseJournal(data []byte, defaultAthlete string) ([]model.JournalEntry, error) {
	var records []journalRecord
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Entries []journalRecord `json:"entries"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, eris.Wrap(err, "journal: parse json")
		}
		records = wrapped.Entries
	} else if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrap(err, "journal: parse json")
	}

	entries := make([]model.JournalEntry, 0, len(records))
	for i, r := range records {
		athlete := strings.TrimSpace(r.AthleteID)
		if athlete == "" {
			athlete = defaultAthlete
		}
		if athlete == "" {
			return nil, eris.Errorf("journal: entry #%d has no athlete id", i+1)
		}
		date, err := parseEntryDate(r.EntryDate)
		if err != nil {
			return nil, eris.Wrapf(err, "journal: entry #%d", i+1)
		}
		entries = append(entries, model.JournalEntry{
			ID:                strings.TrimSpace(r.ID),
			AthleteID:         athlete,
			EntryDate:         date,
			EmotionalState:    r.EmotionalState,
			SessionReflection: r.SessionReflection,
			MentalBarriers:    r.MentalBarriers,
		})
	}
	return entries, nil
}

func parseEntryDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, eris.Errorf("invalid entry date %q", s)
	}
	return t, nil
}

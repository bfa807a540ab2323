package model

import "time"

// Journal entry free-text fields, used as claim types when a claim matches them.
const (
	FieldEmotionalState    = "emotional_state"
	FieldSessionReflection = "session_reflection"
	FieldMentalBarriers    = "mental_barriers"
)

// JournalEntry is an athlete's journal entry as served by the journal backend.
type JournalEntry struct {
	ID                string    `json:"id"`
	AthleteID         string    `json:"athlete_id"`
	EntryDate         time.Time `json:"entry_date"`
	EmotionalState    string    `json:"emotional_state"`
	SessionReflection string    `json:"session_reflection"`
	MentalBarriers    string    `json:"mental_barriers"`
}

// EntryField is one named free-text field of a journal entry.
type EntryField struct {
	Name string
	Text string
}

// Fields returns the non-empty free-text fields in a fixed order.
func (e JournalEntry) Fields() []EntryField {
	fields := make([]EntryField, 0, 3)
	for _, f := range []EntryField{
		{Name: FieldEmotionalState, Text: e.EmotionalState},
		{Name: FieldSessionReflection, Text: e.SessionReflection},
		{Name: FieldMentalBarriers, Text: e.MentalBarriers},
	} {
		if f.Text != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

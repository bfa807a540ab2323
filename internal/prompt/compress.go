package prompt

import (
	"strings"

	"github.com/sells-group/journal-harness/internal/model"
)

// Truncate keeps the first half of the selected entries, rounded up.
func Truncate(entries []model.JournalEntry) []model.JournalEntry {
	if len(entries) == 0 {
		return nil
	}
	return append([]model.JournalEntry(nil), entries[:(len(entries)+1)/2]...)
}

// Compress reduces every field of every entry to its first sentence.
func Compress(entries []model.JournalEntry) []model.JournalEntry {
	out := make([]model.JournalEntry, len(entries))
	for i, e := range entries {
		e.EmotionalState = firstSentence(e.EmotionalState)
		e.SessionReflection = firstSentence(e.SessionReflection)
		e.MentalBarriers = firstSentence(e.MentalBarriers)
		out[i] = e
	}
	return out
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	for i, r := range s {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 == len(s) || s[i+1] == ' ' || s[i+1] == '\n' {
			return s[:i+1]
		}
	}
	return s
}

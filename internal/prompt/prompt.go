// Package prompt renders journal entries and persona instructions into the
// chat messages sent to providers.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/journal-harness/internal/model"
)

// Version tags every run so results from different prompt revisions are never
// compared as equals.
const Version = "v2"

// EntrySeparator delimits sections of a user message. The first section is
// the preamble, the last is the instruction and everything between is one
// entry block each.
const EntrySeparator = "\n\n---\n\n"

const dateLayout = "2006-01-02"

// baseRules is shared by every persona.
const baseRules = `Rules:
- Use ONLY what the athlete wrote in the journal entries provided
- Refer to specific days, sessions and feelings when you mention them
- Do not invent workouts, results, injuries or events that are not in the entries
- Keep it to one short paragraph or a few bullet points`

var personaVoices = map[model.Persona]string{
	model.PersonaIntense: `You are an intense, demanding performance coach. You are direct and blunt,
you push the athlete hard and you hold them accountable for every session.`,
	model.PersonaSupportive: `You are a warm, supportive sport psychologist. You are calm and encouraging,
you validate the athlete's feelings and you look for steady, sustainable progress.`,
}

// System returns the system prompt for a persona.
func System(p model.Persona) string {
	voice, ok := personaVoices[p]
	if !ok {
		voice = personaVoices[model.PersonaSupportive]
	}
	return voice + "\n\nYou are reviewing an athlete's training journal.\n\n" + baseRules
}

// PositionSystem is the neutral system prompt for needle retrieval probes.
const PositionSystem = `You are a careful assistant reviewing an athlete's training journal.
Answer using only the journal entries provided. Quote the athlete's own words where possible.`

const summaryInstruction = `Summarise what this athlete has been experiencing: how they feel, what happened in their sessions and what is holding them back.`

const positionInstruction = `List every goal, target or specific fact the athlete mentions in the entries above, one per line.`

const noEntriesPreamble = `This athlete has not written any journal entries yet.`

// Block renders one journal entry. Empty fields are omitted.
func Block(e model.JournalEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Date: %s", e.EntryDate.Format(dateLayout))
	for _, f := range e.Fields() {
		fmt.Fprintf(&sb, "\n%s: %s", fieldLabel(f.Name), strings.TrimSpace(f.Text))
	}
	return sb.String()
}

// NeedleBlock renders a needle fact as a synthetic entry block.
func NeedleBlock(fact string) string {
	return "Note: " + strings.TrimSpace(fact)
}

func fieldLabel(name string) string {
	switch name {
	case model.FieldEmotionalState:
		return "Emotional state"
	case model.FieldSessionReflection:
		return "Session reflection"
	case model.FieldMentalBarriers:
		return "Mental barriers"
	default:
		return name
	}
}

// Blocks renders entries in the order given.
func Blocks(entries []model.JournalEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, Block(e))
	}
	return out
}

// SummaryMessage builds the user message for persona and compression runs.
// With no entries it falls back to an explicit no-entries variant.
func SummaryMessage(blocks []string, order model.EntryOrder) string {
	if len(blocks) == 0 {
		return noEntriesPreamble + EntrySeparator + `Explain briefly that there is nothing to summarise yet and invite them to start journaling.`
	}
	return compose(preamble(len(blocks), order), blocks, summaryInstruction)
}

// PositionMessage builds the user message for one needle probe. blocks must
// already contain the needle.
func PositionMessage(blocks []string, order model.EntryOrder) string {
	return compose(preamble(len(blocks), order), blocks, positionInstruction)
}

func preamble(n int, order model.EntryOrder) string {
	sequence := "most recent first"
	if order == model.OrderChronological {
		sequence = "oldest first"
	}
	return fmt.Sprintf("Here are %d journal entries from the athlete, %s.", n, sequence)
}

func compose(head string, blocks []string, instruction string) string {
	parts := make([]string, 0, len(blocks)+2)
	parts = append(parts, head)
	parts = append(parts, blocks...)
	parts = append(parts, instruction)
	return strings.Join(parts, EntrySeparator)
}

// SplitBlocks recovers the entry blocks from a message built by this package.
func SplitBlocks(message string) []string {
	parts := strings.Split(message, EntrySeparator)
	if len(parts) < 3 {
		return nil
	}
	return parts[1 : len(parts)-1]
}

// InsertNeedle returns a copy of blocks with the needle placed at the start,
// in the middle (index len/2) or at the end.
func InsertNeedle(blocks []string, fact string, pos model.NeedlePosition) []string {
	idx := 0
	switch pos {
	case model.PositionMiddle:
		idx = len(blocks) / 2
	case model.PositionEnd:
		idx = len(blocks)
	}
	out := make([]string, 0, len(blocks)+1)
	out = append(out, blocks[:idx]...)
	out = append(out, NeedleBlock(fact))
	out = append(out, blocks[idx:]...)
	return out
}

// SelectEntries keeps the most recent limit entries (all when limit is 0) and
// orders them for presentation. Ties on date fall back to entry id so the
// selection is stable.
func SelectEntries(entries []model.JournalEntry, order model.EntryOrder, limit int) []model.JournalEntry {
	sorted := append([]model.JournalEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].EntryDate.Equal(sorted[j].EntryDate) {
			return sorted[i].EntryDate.After(sorted[j].EntryDate)
		}
		return sorted[i].ID < sorted[j].ID
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	if order == model.OrderChronological {
		for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
			sorted[i], sorted[j] = sorted[j], sorted[i]
		}
	}
	return sorted
}

package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/journal-harness/internal/model"
)

func entries() []model.JournalEntry {
	d := func(day int) time.Time { return time.Date(2025, time.March, day, 0, 0, 0, 0, time.UTC) }
	return []model.JournalEntry{
		{ID: "b", EntryDate: d(2), EmotionalState: "Calm."},
		{ID: "d", EntryDate: d(4), SessionReflection: "Long run felt smooth. Kept HR low."},
		{ID: "a", EntryDate: d(1), MentalBarriers: "Fear of going out too fast."},
		{ID: "c", EntryDate: d(3), EmotionalState: "Tired", MentalBarriers: "Doubting the taper!  Maybe too short."},
	}
}

func ids(es []model.JournalEntry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}

func TestSelectEntries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		order model.EntryOrder
		limit int
		want  []string
	}{
		{"reverse all", model.OrderReverse, 0, []string{"d", "c", "b", "a"}},
		{"reverse limited", model.OrderReverse, 2, []string{"d", "c"}},
		{"chronological all", model.OrderChronological, 0, []string{"a", "b", "c", "d"}},
		{"chronological keeps most recent", model.OrderChronological, 2, []string{"c", "d"}},
		{"limit above count", model.OrderReverse, 10, []string{"d", "c", "b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ids(SelectEntries(entries(), tt.order, tt.limit)))
		})
	}
}

func TestInsertNeedle(t *testing.T) {
	t.Parallel()

	blocks := []string{"one", "two", "three", "four"}
	needle := NeedleBlock("sub-4 minute mile goal")

	assert.Equal(t, needle, InsertNeedle(blocks, "sub-4 minute mile goal", model.PositionStart)[0])
	assert.Equal(t, needle, InsertNeedle(blocks, "sub-4 minute mile goal", model.PositionMiddle)[2])
	assert.Equal(t, needle, InsertNeedle(blocks, "sub-4 minute mile goal", model.PositionEnd)[4])
	assert.Equal(t, []string{"one", "two", "three", "four"}, blocks, "input must not be mutated")

	only := InsertNeedle(nil, "x", model.PositionMiddle)
	assert.Equal(t, []string{NeedleBlock("x")}, only)
}

func TestMessagesRoundTripBlocks(t *testing.T) {
	t.Parallel()

	blocks := Blocks(SelectEntries(entries(), model.OrderReverse, 0))
	msg := SummaryMessage(blocks, model.OrderReverse)
	assert.True(t, strings.HasPrefix(msg, "Here are 4 journal entries from the athlete, most recent first."))
	assert.Equal(t, blocks, SplitBlocks(msg))

	pos := PositionMessage(InsertNeedle(blocks, "goal", model.PositionEnd), model.OrderChronological)
	got := SplitBlocks(pos)
	require.Len(t, got, 5)
	assert.Equal(t, "Note: goal", got[4])
	assert.Contains(t, pos, "oldest first")
}

func TestSummaryMessage_NoEntries(t *testing.T) {
	t.Parallel()

	msg := SummaryMessage(nil, model.OrderReverse)
	assert.Contains(t, msg, "not written any journal entries")
	assert.Empty(t, SplitBlocks(msg))
}

func TestBlock(t *testing.T) {
	t.Parallel()

	got := Block(entries()[3])
	assert.Equal(t, "Date: 2025-03-03\nEmotional state: Tired\nMental barriers: Doubting the taper!  Maybe too short.", got)
}

func TestSystem(t *testing.T) {
	t.Parallel()

	intense := System(model.PersonaIntense)
	supportive := System(model.PersonaSupportive)
	assert.NotEqual(t, intense, supportive)
	assert.Contains(t, intense, "demanding")
	assert.Contains(t, supportive, "supportive")
	assert.Contains(t, intense, "Do not invent")
}

func TestCompressionVariants(t *testing.T) {
	t.Parallel()

	sel := SelectEntries(entries(), model.OrderReverse, 0)

	assert.Equal(t, []string{"d", "c"}, ids(Truncate(sel)))
	assert.Equal(t, []string{"d", "c"}, ids(Truncate(sel[:3])))
	assert.Empty(t, Truncate(nil))

	comp := Compress(sel)
	require.Len(t, comp, 4)
	assert.Equal(t, "Long run felt smooth.", comp[0].SessionReflection)
	assert.Equal(t, "Doubting the taper!", comp[1].MentalBarriers)
	assert.Equal(t, "Tired", comp[1].EmotionalState)
	assert.Equal(t, "Long run felt smooth. Kept HR low.", sel[0].SessionReflection, "input must not be mutated")
}

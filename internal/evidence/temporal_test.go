package evidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferencedDate(t *testing.T) {
	t.Parallel()

	// Tuesday.
	anchor := time.Date(2025, time.March, 11, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		text   string
		anchor time.Time
		want   *time.Time
	}{
		{"iso date", "Logged a tempo run on 2025-02-14.", anchor, ptr(day(2025, time.February, 14))},
		{"month day", "Raced on March 3 in the rain.", anchor, ptr(day(2025, time.March, 3))},
		{"month day year", "Broke 5:00 on Jan 20th, 2024.", anchor, ptr(day(2024, time.January, 20))},
		{"day month", "On the 2nd of March the legs were flat.", anchor, ptr(day(2025, time.March, 2))},
		{"month after anchor is last year", "Since Dec 30 things improved.", anchor, ptr(day(2024, time.December, 30))},
		{"yesterday", "Yesterday the intervals felt easy.", anchor, ptr(day(2025, time.March, 10))},
		{"last week", "Last week was a down week.", anchor, ptr(day(2025, time.March, 4))},
		{"weekday", "Saturday's race went out too fast.", anchor, ptr(day(2025, time.March, 8))},
		{"weekday same as anchor", "Tuesday track session was rough.", anchor, ptr(day(2025, time.March, 11))},
		{"no anchor resolves absolute only", "Saturday's race went out too fast.", time.Time{}, nil},
		{"no anchor absolute", "Broke 5:00 on Jan 20th, 2024.", time.Time{}, ptr(day(2024, time.January, 20))},
		{"invalid day", "Planned for February 30.", anchor, nil},
		{"nothing temporal", "Hamstring is tight.", anchor, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ReferencedDate(tt.text, tt.anchor)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }

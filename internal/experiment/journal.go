package experiment

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/store"
)

// JournalSource fetches an athlete's journal entries.
type JournalSource interface {
	Entries(ctx context.Context, athleteID string) ([]model.JournalEntry, error)
}

// StoreJournal reads entries imported into the harness database.
type StoreJournal struct {
	Store store.Store
}

// Entries returns every entry of the athlete, newest first. An athlete
// without entries is not an error.
func (j StoreJournal) Entries(ctx context.Context, athleteID string) ([]model.JournalEntry, error) {
	entries, err := j.Store.ListJournal(ctx, athleteID)
	if err != nil {
		return nil, eris.Wrapf(err, "journal: list entries for %s", athleteID)
	}
	return entries, nil
}

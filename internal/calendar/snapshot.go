package calendar

import "fmt"

// Snapshot is an immutable copy of one entry's state taken before an edit.
// The caller keeps it and hands it back to Restore to undo exactly that
// edit; there is no deeper history.
type Snapshot struct {
	id     string
	single *SingleEvent
	series *RecurringEvent
}

// EntryID is the ID of the entry the snapshot was taken from.
func (s Snapshot) EntryID() string { return s.id }

func errSnapshotMismatch(s Snapshot, id string) error {
	return fmt.Errorf("calendar: snapshot of entry %s cannot restore entry %s", s.id, id)
}

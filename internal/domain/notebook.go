package domain

import "time"

// Notebook groups notes. Exactly one non-deleted notebook is the default once
// any notebook exists; the store maintains that invariant.
//
// The note membership list is referential bookkeeping for "which notes live
// here", not ownership: it is maintained from the note side whenever a note
// is inserted, re-homed or removed.
type Notebook struct {
	guid string

	Name        string
	Default     bool
	Published   bool
	LastUpdated time.Time

	Deleted   bool
	Loading   bool
	SyncError bool

	noteGUIDs []string

	UpdateSequenceNumber     int64
	LastSyncedSequenceNumber int64
}

func NewNotebook(guid string, usn, lastSynced int64) *Notebook {
	return &Notebook{
		guid:                     guid,
		UpdateSequenceNumber:     usn,
		LastSyncedSequenceNumber: lastSynced,
	}
}

func (nb *Notebook) GUID() string         { return nb.guid }
func (nb *Notebook) EntityKind() Kind     { return KindNotebook }
func (nb *Notebook) setGUID(guid string)  { nb.guid = guid }
func (nb *Notebook) Lifecycle() Lifecycle { return lifecycleOf(nb.LastSyncedSequenceNumber) }

func (nb *Notebook) Synced() bool {
	return nb.UpdateSequenceNumber == nb.LastSyncedSequenceNumber
}

func (nb *Notebook) Modified() bool {
	return nb.UpdateSequenceNumber > nb.LastSyncedSequenceNumber
}

// NoteCount returns how many notes currently live in this notebook.
func (nb *Notebook) NoteCount() int { return len(nb.noteGUIDs) }

// NoteGUIDs returns a copy of the membership list.
func (nb *Notebook) NoteGUIDs() []string {
	out := make([]string, len(nb.noteGUIDs))
	copy(out, nb.noteGUIDs)
	return out
}

// AttachNote records that a note lives in this notebook. Duplicate attaches
// are ignored.
func (nb *Notebook) AttachNote(noteGUID string) {
	for _, g := range nb.noteGUIDs {
		if g == noteGUID {
			return
		}
	}
	nb.noteGUIDs = append(nb.noteGUIDs, noteGUID)
}

// DetachNote removes a note from the membership list.
func (nb *Notebook) DetachNote(noteGUID string) {
	for i, g := range nb.noteGUIDs {
		if g == noteGUID {
			nb.noteGUIDs = append(nb.noteGUIDs[:i], nb.noteGUIDs[i+1:]...)
			return
		}
	}
}

// RenameNote rewrites a membership entry after a note was re-keyed.
func (nb *Notebook) RenameNote(oldGUID, newGUID string) {
	for i, g := range nb.noteGUIDs {
		if g == oldGUID {
			nb.noteGUIDs[i] = newGUID
			return
		}
	}
}

package domain

// Tag labels notes. Like Notebook, the note list is referential bookkeeping
// maintained from the note side.
type Tag struct {
	guid string

	Name string

	Deleted   bool
	Loading   bool
	SyncError bool

	noteGUIDs []string

	UpdateSequenceNumber     int64
	LastSyncedSequenceNumber int64
}

func NewTag(guid string, usn, lastSynced int64) *Tag {
	return &Tag{
		guid:                     guid,
		UpdateSequenceNumber:     usn,
		LastSyncedSequenceNumber: lastSynced,
	}
}

func (t *Tag) GUID() string         { return t.guid }
func (t *Tag) EntityKind() Kind     { return KindTag }
func (t *Tag) setGUID(guid string)  { t.guid = guid }
func (t *Tag) Lifecycle() Lifecycle { return lifecycleOf(t.LastSyncedSequenceNumber) }

func (t *Tag) Synced() bool {
	return t.UpdateSequenceNumber == t.LastSyncedSequenceNumber
}

func (t *Tag) Modified() bool {
	return t.UpdateSequenceNumber > t.LastSyncedSequenceNumber
}

func (t *Tag) NoteCount() int { return len(t.noteGUIDs) }

func (t *Tag) NoteGUIDs() []string {
	out := make([]string, len(t.noteGUIDs))
	copy(out, t.noteGUIDs)
	return out
}

func (t *Tag) AttachNote(noteGUID string) {
	for _, g := range t.noteGUIDs {
		if g == noteGUID {
			return
		}
	}
	t.noteGUIDs = append(t.noteGUIDs, noteGUID)
}

func (t *Tag) DetachNote(noteGUID string) {
	for i, g := range t.noteGUIDs {
		if g == noteGUID {
			t.noteGUIDs = append(t.noteGUIDs[:i], t.noteGUIDs[i+1:]...)
			return
		}
	}
}

func (t *Tag) RenameNote(oldGUID, newGUID string) {
	for i, g := range t.noteGUIDs {
		if g == oldGUID {
			t.noteGUIDs[i] = newGUID
			return
		}
	}
}

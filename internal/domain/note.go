package domain

import "time"

// Note is the local replica of a remote note. Scalar fields come from listing
// summaries; Content and Resources are fetched lazily and Loaded reports
// whether that has happened yet.
type Note struct {
	guid string

	NotebookGUID string
	Title        string
	Content      string
	Created      time.Time
	Updated      time.Time
	TagGUIDs     []string

	// Reminder fields. A reminder exists iff ReminderOrder > 0; the due and
	// completion times stay zero while unset.
	ReminderOrder    int64
	ReminderTime     time.Time
	ReminderDoneTime time.Time

	Deleted        bool
	Loading        bool
	SyncError      bool
	Conflicting    bool
	IsSearchResult bool
	Loaded         bool

	// Shadow is the remote version of a conflicting note. It stays attached
	// until the conflict is resolved. It is nil when the conflict is a remote
	// deletion (there is no remote content left to show).
	Shadow *Note

	// Resources are binary attachments keyed by content hash.
	Resources map[string]*Resource

	UpdateSequenceNumber     int64
	LastSyncedSequenceNumber int64
}

// NewNote returns a note with the given identifier and sequence number.
// Locally created notes start with usn 1; notes discovered remotely or
// replayed from the cache pass the known sequence numbers explicitly.
func NewNote(guid string, usn, lastSynced int64) *Note {
	return &Note{
		guid:                     guid,
		Resources:                map[string]*Resource{},
		UpdateSequenceNumber:     usn,
		LastSyncedSequenceNumber: lastSynced,
	}
}

func (n *Note) GUID() string         { return n.guid }
func (n *Note) EntityKind() Kind     { return KindNote }
func (n *Note) setGUID(guid string)  { n.guid = guid }
func (n *Note) Lifecycle() Lifecycle { return lifecycleOf(n.LastSyncedSequenceNumber) }

// Synced reports whether the local copy matches the last known remote state.
func (n *Note) Synced() bool {
	return n.UpdateSequenceNumber == n.LastSyncedSequenceNumber
}

// Modified reports whether the note carries local changes not yet pushed.
func (n *Note) Modified() bool {
	return n.UpdateSequenceNumber > n.LastSyncedSequenceNumber
}

func (n *Note) HasReminder() bool { return n.ReminderOrder > 0 }

func (n *Note) ReminderDone() bool { return !n.ReminderDoneTime.IsZero() }

// HasTag reports whether the note references the given tag.
func (n *Note) HasTag(tagGUID string) bool {
	for _, g := range n.TagGUIDs {
		if g == tagGUID {
			return true
		}
	}
	return false
}

// AddResource records a resource for the note. Data may be nil when only the
// metadata is known; the resource then reports Fetched() == false until the
// blob arrives.
func (n *Note) AddResource(hash, fileName, mime string, data []byte) *Resource {
	if n.Resources == nil {
		n.Resources = map[string]*Resource{}
	}
	r, ok := n.Resources[hash]
	if !ok {
		r = &Resource{Hash: hash}
		n.Resources[hash] = r
	}
	r.FileName = fileName
	r.Mime = mime
	if data != nil {
		r.Data = data
	}
	return r
}

// Resource is a binary attachment of a note, keyed by content hash.
type Resource struct {
	Hash     string
	FileName string
	Mime     string
	Data     []byte
}

// Fetched reports whether the blob itself has been downloaded.
func (r *Resource) Fetched() bool { return len(r.Data) > 0 }

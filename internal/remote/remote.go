// Package remote defines the boundary to the authoritative note service: the
// operation set the reconciliation engine drives, the data transfer types it
// exchanges, and the error taxonomy adapters must translate failures into.
//
// The wire protocol behind this interface (and its authentication) is out of
// scope here; adapters live with the transport they wrap.
package remote

import (
	"context"
	"time"
)

// LoadWhat selects which parts of a note a single fetch should carry.
type LoadWhat int

const (
	LoadContent LoadWhat = 1 << iota
	LoadResources
)

// NoteFilter narrows a listing fetch. Zero value lists everything.
type NoteFilter struct {
	// NotebookGUID restricts the listing to one notebook.
	NotebookGUID string
	// Search is a service-side search expression. A non-empty search marks
	// the returned summaries as search results.
	Search string
}

// NoteSummary is one entry of a paginated note listing: scalar fields only,
// no content and no resource data.
type NoteSummary struct {
	GUID                 string
	Title                string
	NotebookGUID         string
	TagGUIDs             []string
	Created              time.Time
	Updated              time.Time
	ReminderOrder        int64
	ReminderTime         time.Time
	ReminderDoneTime     time.Time
	Deleted              bool
	UpdateSequenceNumber int64
}

// NoteListPage is one page of a note listing. The listing is complete when
// StartIndex + len(Notes) == TotalNotes.
type NoteListPage struct {
	Notes      []NoteSummary
	StartIndex int
	TotalNotes int
	// SearchedWords is true when the page answers a search query.
	SearchedWords bool
}

// ResourcePayload carries a note attachment. Data is empty unless the fetch
// asked for LoadResources.
type ResourcePayload struct {
	Hash     string
	FileName string
	Mime     string
	Data     []byte
}

// NotePayload is a full note as the remote service sees it.
type NotePayload struct {
	GUID                 string
	Title                string
	NotebookGUID         string
	TagGUIDs             []string
	Content              string
	Created              time.Time
	Updated              time.Time
	ReminderOrder        int64
	ReminderTime         time.Time
	ReminderDoneTime     time.Time
	Deleted              bool
	Resources            []ResourcePayload
	UpdateSequenceNumber int64
}

// NotebookPayload is a notebook as the remote service sees it.
type NotebookPayload struct {
	GUID                 string
	Name                 string
	Default              bool
	Published            bool
	ServiceUpdated       time.Time
	UpdateSequenceNumber int64
}

// TagPayload is a tag as the remote service sees it.
type TagPayload struct {
	GUID                 string
	Name                 string
	UpdateSequenceNumber int64
}

// Operations is the full remote operation set. Every method performs exactly
// one attempt and returns either a typed result or a classified error
// (*Error); there is no retry policy at this layer.
type Operations interface {
	// IsConnected reports whether remote operations currently stand a chance.
	// The engine skips network work while disconnected and keeps mutating
	// the local replica.
	IsConnected() bool

	FetchNoteList(ctx context.Context, filter NoteFilter, startIndex int) (*NoteListPage, error)
	FetchNote(ctx context.Context, guid string, what LoadWhat) (*NotePayload, error)
	CreateNote(ctx context.Context, note *NotePayload) (*NotePayload, error)
	SaveNote(ctx context.Context, note *NotePayload) (*NotePayload, error)
	DeleteNote(ctx context.Context, guid string) error
	ExpungeNote(ctx context.Context, guid string) error

	FetchNotebooks(ctx context.Context) ([]NotebookPayload, error)
	CreateNotebook(ctx context.Context, notebook *NotebookPayload) (*NotebookPayload, error)
	SaveNotebook(ctx context.Context, notebook *NotebookPayload) (*NotebookPayload, error)
	ExpungeNotebook(ctx context.Context, guid string) error

	FetchTags(ctx context.Context) ([]TagPayload, error)
	CreateTag(ctx context.Context, tag *TagPayload) (*TagPayload, error)
	SaveTag(ctx context.Context, tag *TagPayload) (*TagPayload, error)
	ExpungeTag(ctx context.Context, guid string) error
}

package remote

import "context"

// Disconnected is an Operations implementation that is never connected. It
// lets the store run purely against the local replica (offline accounts, and
// as a default until a real transport adapter is wired in).
type Disconnected struct{}

func (Disconnected) IsConnected() bool { return false }

func (Disconnected) FetchNoteList(context.Context, NoteFilter, int) (*NoteListPage, error) {
	return nil, errNotConnected
}

func (Disconnected) FetchNote(context.Context, string, LoadWhat) (*NotePayload, error) {
	return nil, errNotConnected
}

func (Disconnected) CreateNote(context.Context, *NotePayload) (*NotePayload, error) {
	return nil, errNotConnected
}

func (Disconnected) SaveNote(context.Context, *NotePayload) (*NotePayload, error) {
	return nil, errNotConnected
}

func (Disconnected) DeleteNote(context.Context, string) error  { return errNotConnected }
func (Disconnected) ExpungeNote(context.Context, string) error { return errNotConnected }

func (Disconnected) FetchNotebooks(context.Context) ([]NotebookPayload, error) {
	return nil, errNotConnected
}

func (Disconnected) CreateNotebook(context.Context, *NotebookPayload) (*NotebookPayload, error) {
	return nil, errNotConnected
}

func (Disconnected) SaveNotebook(context.Context, *NotebookPayload) (*NotebookPayload, error) {
	return nil, errNotConnected
}

func (Disconnected) ExpungeNotebook(context.Context, string) error {
	return errNotConnected
}

func (Disconnected) FetchTags(context.Context) ([]TagPayload, error) {
	return nil, errNotConnected
}

func (Disconnected) CreateTag(context.Context, *TagPayload) (*TagPayload, error) {
	return nil, errNotConnected
}

func (Disconnected) SaveTag(context.Context, *TagPayload) (*TagPayload, error) {
	return nil, errNotConnected
}

func (Disconnected) ExpungeTag(context.Context, string) error {
	return errNotConnected
}

var errNotConnected = NewError(KindTransport, "not connected")

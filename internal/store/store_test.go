package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"notesync/internal/dispatch"
	"notesync/internal/logging"
	"notesync/internal/remote"
)

// fakeDispatcher queues jobs and runs them only when the test says so, which
// keeps reconciliation fully deterministic.
type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []dispatch.Job
}

func (d *fakeDispatcher) Enqueue(job dispatch.Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
}

// drain runs queued jobs until none are left, including jobs enqueued by the
// jobs themselves (follow-up pages, content fetches, promotions).
func (d *fakeDispatcher) drain(ctx context.Context) {
	for {
		d.mu.Lock()
		if len(d.jobs) == 0 {
			d.mu.Unlock()
			return
		}
		job := d.jobs[0]
		d.jobs = d.jobs[1:]
		d.mu.Unlock()
		job.Run(ctx)
	}
}

func (d *fakeDispatcher) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}

// fakeRemote is an in-memory remote service. Created entities are assigned
// server identifiers and show up in subsequent listings, so repeated
// reconciliation passes behave like against a real service.
type fakeRemote struct {
	mu        sync.Mutex
	connected bool
	nextUSN   int64
	nextID    int

	notes     []remote.NoteSummary
	payloads  map[string]*remote.NotePayload
	notebooks []remote.NotebookPayload
	tags      []remote.TagPayload
	pageSize  int

	// emptyPages makes listings claim notes exist but return none of them.
	emptyPages bool

	// failWith, when set for an operation name, makes that operation fail.
	failWith map[string]error

	createdNotes     []string
	savedNotes       []string
	deletedNotes     []string
	createdNotebooks []string
	savedNotebooks   []string
	createdTags      []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		connected: true,
		nextUSN:   100,
		payloads:  map[string]*remote.NotePayload{},
		failWith:  map[string]error{},
	}
}

func (f *fakeRemote) IsConnected() bool { return f.connected }

func (f *fakeRemote) bumpUSN() int64 {
	f.nextUSN++
	return f.nextUSN
}

func (f *fakeRemote) newGUID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeRemote) fail(op string) error {
	if err, ok := f.failWith[op]; ok {
		return err
	}
	return nil
}

func (f *fakeRemote) FetchNoteList(_ context.Context, filter remote.NoteFilter, startIndex int) (*remote.NoteListPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("fetchNoteList"); err != nil {
		return nil, err
	}
	if f.emptyPages {
		return &remote.NoteListPage{StartIndex: startIndex, TotalNotes: len(f.notes)}, nil
	}
	size := f.pageSize
	if size <= 0 {
		size = len(f.notes) - startIndex
	}
	end := startIndex + size
	if end > len(f.notes) {
		end = len(f.notes)
	}
	page := &remote.NoteListPage{
		Notes:         append([]remote.NoteSummary(nil), f.notes[startIndex:end]...),
		StartIndex:    startIndex,
		TotalNotes:    len(f.notes),
		SearchedWords: filter.Search != "",
	}
	return page, nil
}

func (f *fakeRemote) FetchNote(_ context.Context, guid string, _ remote.LoadWhat) (*remote.NotePayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("fetchNote"); err != nil {
		return nil, err
	}
	p, ok := f.payloads[guid]
	if !ok {
		return nil, remote.NewError(remote.KindNotFound, "no such note")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRemote) CreateNote(_ context.Context, note *remote.NotePayload) (*remote.NotePayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("createNote"); err != nil {
		return nil, err
	}
	cp := *note
	cp.GUID = f.newGUID("srv-note")
	cp.UpdateSequenceNumber = f.bumpUSN()
	f.payloads[cp.GUID] = &cp
	f.notes = append(f.notes, noteSummaryOf(&cp))
	f.createdNotes = append(f.createdNotes, cp.GUID)
	return &cp, nil
}

func (f *fakeRemote) SaveNote(_ context.Context, note *remote.NotePayload) (*remote.NotePayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("saveNote"); err != nil {
		return nil, err
	}
	cp := *note
	cp.UpdateSequenceNumber = f.bumpUSN()
	f.payloads[cp.GUID] = &cp
	for i := range f.notes {
		if f.notes[i].GUID == cp.GUID {
			f.notes[i] = noteSummaryOf(&cp)
		}
	}
	f.savedNotes = append(f.savedNotes, cp.GUID)
	return &cp, nil
}

func (f *fakeRemote) DeleteNote(_ context.Context, guid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("deleteNote"); err != nil {
		return err
	}
	f.deletedNotes = append(f.deletedNotes, guid)
	for i := range f.notes {
		if f.notes[i].GUID == guid {
			f.notes[i].Deleted = true
			f.notes[i].UpdateSequenceNumber = f.bumpUSN()
		}
	}
	return nil
}

func (f *fakeRemote) ExpungeNote(_ context.Context, guid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notes {
		if f.notes[i].GUID == guid {
			f.notes = append(f.notes[:i], f.notes[i+1:]...)
			break
		}
	}
	delete(f.payloads, guid)
	return nil
}

func (f *fakeRemote) FetchNotebooks(context.Context) ([]remote.NotebookPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("fetchNotebooks"); err != nil {
		return nil, err
	}
	return append([]remote.NotebookPayload(nil), f.notebooks...), nil
}

func (f *fakeRemote) CreateNotebook(_ context.Context, nb *remote.NotebookPayload) (*remote.NotebookPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("createNotebook"); err != nil {
		return nil, err
	}
	cp := *nb
	cp.GUID = f.newGUID("srv-nb")
	cp.UpdateSequenceNumber = f.bumpUSN()
	f.notebooks = append(f.notebooks, cp)
	f.createdNotebooks = append(f.createdNotebooks, cp.GUID)
	return &cp, nil
}

func (f *fakeRemote) SaveNotebook(_ context.Context, nb *remote.NotebookPayload) (*remote.NotebookPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("saveNotebook"); err != nil {
		return nil, err
	}
	cp := *nb
	cp.UpdateSequenceNumber = f.bumpUSN()
	for i := range f.notebooks {
		if f.notebooks[i].GUID == cp.GUID {
			f.notebooks[i] = cp
		}
	}
	f.savedNotebooks = append(f.savedNotebooks, cp.GUID)
	return &cp, nil
}

func (f *fakeRemote) ExpungeNotebook(_ context.Context, guid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("expungeNotebook"); err != nil {
		return err
	}
	for i := range f.notebooks {
		if f.notebooks[i].GUID == guid {
			f.notebooks = append(f.notebooks[:i], f.notebooks[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeRemote) FetchTags(context.Context) ([]remote.TagPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("fetchTags"); err != nil {
		return nil, err
	}
	return append([]remote.TagPayload(nil), f.tags...), nil
}

func (f *fakeRemote) CreateTag(_ context.Context, tag *remote.TagPayload) (*remote.TagPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("createTag"); err != nil {
		return nil, err
	}
	cp := *tag
	cp.GUID = f.newGUID("srv-tag")
	cp.UpdateSequenceNumber = f.bumpUSN()
	f.tags = append(f.tags, cp)
	f.createdTags = append(f.createdTags, cp.GUID)
	return &cp, nil
}

func (f *fakeRemote) SaveTag(_ context.Context, tag *remote.TagPayload) (*remote.TagPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("saveTag"); err != nil {
		return nil, err
	}
	cp := *tag
	cp.UpdateSequenceNumber = f.bumpUSN()
	for i := range f.tags {
		if f.tags[i].GUID == cp.GUID {
			f.tags[i] = cp
		}
	}
	return &cp, nil
}

func (f *fakeRemote) ExpungeTag(_ context.Context, guid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("expungeTag"); err != nil {
		return err
	}
	for i := range f.tags {
		if f.tags[i].GUID == guid {
			f.tags = append(f.tags[:i], f.tags[i+1:]...)
			break
		}
	}
	return nil
}

func noteSummaryOf(p *remote.NotePayload) remote.NoteSummary {
	return remote.NoteSummary{
		GUID:                 p.GUID,
		Title:                p.Title,
		NotebookGUID:         p.NotebookGUID,
		TagGUIDs:             append([]string(nil), p.TagGUIDs...),
		Created:              p.Created,
		Updated:              p.Updated,
		ReminderOrder:        p.ReminderOrder,
		ReminderTime:         p.ReminderTime,
		ReminderDoneTime:     p.ReminderDoneTime,
		Deleted:              p.Deleted,
		UpdateSequenceNumber: p.UpdateSequenceNumber,
	}
}

// setupStore builds a store over a fresh temp cache, the fake remote and the
// queued dispatcher.
func setupStore(t *testing.T, rem *fakeRemote) (*Store, *fakeDispatcher) {
	return setupStoreAt(t, rem, t.TempDir())
}

func setupStoreAt(t *testing.T, rem *fakeRemote, dir string) (*Store, *fakeDispatcher) {
	t.Helper()
	disp := &fakeDispatcher{}
	s := New(logging.Nop(), rem, disp, dir)
	require.NoError(t, s.SetAccount(context.Background(), "tester"))
	t.Cleanup(func() { _ = s.Close() })
	return s, disp
}

// requireSequenceInvariant asserts that no entity ever claims to be behind
// its own last sync.
func requireSequenceInvariant(t *testing.T, s *Store) {
	t.Helper()
	for _, n := range s.Notes() {
		require.GreaterOrEqual(t, n.UpdateSequenceNumber, n.LastSyncedSequenceNumber,
			"note %s", n.GUID())
	}
	for _, nb := range s.Notebooks() {
		require.GreaterOrEqual(t, nb.UpdateSequenceNumber, nb.LastSyncedSequenceNumber,
			"notebook %s", nb.GUID())
	}
	for _, tag := range s.Tags() {
		require.GreaterOrEqual(t, tag.UpdateSequenceNumber, tag.LastSyncedSequenceNumber,
			"tag %s", tag.GUID())
	}
}

// Package store is the offline-first synchronization core: it owns the local
// replica of notes, notebooks and tags, reconciles it against the remote
// service using per-entity sequence numbers, and surfaces unresolvable
// conflicts for explicit resolution.
//
// All repository mutation and reconciliation decisions run under a single
// store mutex; the dispatcher executes remote operations asynchronously and
// re-enters through the same lock when a job completes. Issuing a job never
// blocks the caller.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"notesync/internal/cache"
	"notesync/internal/dispatch"
	"notesync/internal/domain"
	"notesync/internal/logging"
	"notesync/internal/remote"
)

var (
	// ErrNotFound reports an operation on an unknown entity identifier.
	ErrNotFound = errors.New("not found")
	// ErrNoConflict reports a conflict resolution on a note that is not
	// conflicting. A usage error, never fatal.
	ErrNoConflict = errors.New("note is not conflicting")
	// ErrDefaultNotebook reports an attempt to delete the default notebook.
	ErrDefaultNotebook = errors.New("cannot delete the default notebook")
	// ErrNoAccount reports an operation before SetAccount selected one.
	ErrNoAccount = errors.New("no active account")
)

// Dispatcher is the slice of the job dispatcher the store needs. Satisfied by
// *dispatch.Dispatcher; tests substitute a deterministic queue.
type Dispatcher interface {
	Enqueue(job dispatch.Job)
}

// Store is the synchronization core for one account at a time. Construct it
// explicitly and share the instance; there is no global singleton.
type Store struct {
	log      logging.Logger
	remote   remote.Operations
	disp     Dispatcher
	validate *validator.Validate
	dataDir  string

	mu      sync.Mutex
	account string
	cache   *cache.Cache

	notes     *domain.Repository[*domain.Note]
	notebooks *domain.Repository[*domain.Notebook]
	tags      *domain.Repository[*domain.Tag]

	notesLoading     bool
	notebooksLoading bool
	tagsLoading      bool

	// errorQueue holds user-visible messages, oldest first. The UI shows the
	// head and dismisses it explicitly.
	errorQueue []string
}

// New builds a store. No cache is open until SetAccount is called.
func New(logger logging.Logger, rem remote.Operations, disp Dispatcher, dataDir string) *Store {
	return &Store{
		log:       logger,
		remote:    rem,
		disp:      disp,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		dataDir:   dataDir,
		notes:     domain.NewRepository[*domain.Note](domain.KindNote),
		notebooks: domain.NewRepository[*domain.Notebook](domain.KindNotebook),
		tags:      domain.NewRepository[*domain.Tag](domain.KindTag),
	}
}

// SetAccount switches the active identity: in-memory state for the previous
// account is dropped, the account's cache is opened (purging stale lock
// artifacts) and replayed into the repositories before any network activity.
func (s *Store) SetAccount(ctx context.Context, account string) error {
	if account == "" {
		return fmt.Errorf("%w: empty account name", ErrNoAccount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if account == s.account {
		return nil
	}

	if s.cache != nil {
		_ = s.cache.Close()
		s.cache = nil
	}
	s.notes.Clear()
	s.notebooks.Clear()
	s.tags.Clear()
	s.errorQueue = nil

	c, err := cache.Open(ctx, s.dataDir, account, s.log)
	if err != nil {
		return fmt.Errorf("failed to open cache for account %q: %w", account, err)
	}
	s.cache = c
	s.account = account
	s.log.Info(ctx, "account selected", "account", account, "cache", c.Path())

	return s.replayCache(ctx)
}

// replayCache rebuilds the repositories from the persisted sync state so the
// application is usable offline immediately. Caller holds the lock.
func (s *Store) replayCache(ctx context.Context) error {
	records, err := s.cache.LoadKind(ctx, domain.KindNotebook)
	if err != nil {
		return err
	}
	for _, r := range records {
		nb := domain.NewNotebook(r.GUID, r.UpdateSequenceNumber, r.LastSyncedSequenceNumber)
		_ = s.notebooks.Insert(nb)
	}
	s.log.Debug(ctx, "notebooks loaded from cache", "count", len(records))

	records, err = s.cache.LoadKind(ctx, domain.KindTag)
	if err != nil {
		return err
	}
	for _, r := range records {
		tag := domain.NewTag(r.GUID, r.UpdateSequenceNumber, r.LastSyncedSequenceNumber)
		_ = s.tags.Insert(tag)
	}
	s.log.Debug(ctx, "tags loaded from cache", "count", len(records))

	records, err = s.cache.LoadKind(ctx, domain.KindNote)
	if err != nil {
		return err
	}
	for _, r := range records {
		note := domain.NewNote(r.GUID, r.UpdateSequenceNumber, r.LastSyncedSequenceNumber)
		_ = s.notes.Insert(note)
	}
	s.log.Debug(ctx, "notes loaded from cache", "count", len(records))

	return nil
}

// Account returns the active account name.
func (s *Store) Account() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// Close releases the cache. Pending dispatcher jobs are the dispatcher's
// problem; their completions against a closed store cache are logged and
// dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil {
		return nil
	}
	err := s.cache.Close()
	s.cache = nil
	return err
}

// Notes returns the note collection in insertion order.
func (s *Store) Notes() []*domain.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes.All()
}

// Note returns one note by identifier.
func (s *Store) Note(guid string) (*domain.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes.Get(guid)
}

func (s *Store) Notebooks() []*domain.Notebook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notebooks.All()
}

func (s *Store) Notebook(guid string) (*domain.Notebook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notebooks.Get(guid)
}

func (s *Store) Tags() []*domain.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags.All()
}

func (s *Store) Tag(guid string) (*domain.Tag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags.Get(guid)
}

// DefaultNotebook returns the notebook carrying the default flag, if any.
func (s *Store) DefaultNotebook() (*domain.Notebook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultNotebook()
}

func (s *Store) defaultNotebook() (*domain.Notebook, bool) {
	for _, nb := range s.notebooks.All() {
		if nb.Default {
			return nb, true
		}
	}
	return nil, false
}

// Subscribe registers an observer for change notifications of all three
// collections. The returned function removes it again.
func (s *Store) Subscribe(fn domain.Observer) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u1 := s.notes.Subscribe(fn)
	u2 := s.notebooks.Subscribe(fn)
	u3 := s.tags.Subscribe(fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		u1()
		u2()
		u3()
	}
}

// Busy reports whether any reconciliation pass is in flight.
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notesLoading || s.notebooksLoading || s.tagsLoading
}

// Error returns the oldest undismissed user-visible error, or "".
func (s *Store) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errorQueue) == 0 {
		return ""
	}
	return s.errorQueue[0]
}

// ClearError dismisses the oldest user-visible error.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errorQueue) > 0 {
		s.errorQueue = s.errorQueue[1:]
	}
}

// ErrorCount returns how many user-visible errors are queued.
func (s *Store) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errorQueue)
}

func (s *Store) pushError(msg string) {
	s.errorQueue = append(s.errorQueue, msg)
}

// handleUserError pushes a user-visible message for error kinds the user can
// act on. Other kinds degrade to per-entity sync errors at the call sites.
// Reports whether the error was queued. Caller holds the lock.
func (s *Store) handleUserError(err error) bool {
	switch remote.KindOf(err) {
	case remote.KindAuthExpired:
		s.pushError("Authentication for the notes server expired. Please renew login information in the account settings.")
	case remote.KindRateLimited:
		s.pushError("Rate limit for the notes server exceeded. Please try again later.")
	case remote.KindQuotaExceeded:
		s.pushError("Upload quota for the notes server exceeded. Please try again later.")
	default:
		return false
	}
	return true
}

// syncToCache persists an entity's sequence state. Always called after the
// in-memory change is committed, never before, so a crash between the two
// leaves the cache behind memory rather than ahead of it. Caller holds the
// lock.
func (s *Store) syncToCache(ctx context.Context, kind domain.Kind, guid string, usn, lastSynced int64) {
	if s.cache == nil {
		s.log.Warn(ctx, "no cache open, sync state not persisted", "kind", kind, "guid", guid)
		return
	}
	if err := s.cache.Put(ctx, kind, guid, usn, lastSynced); err != nil {
		s.log.Error(ctx, "failed to persist sync state", "kind", kind, "guid", guid, "error", err)
	}
}

func (s *Store) removeFromCache(ctx context.Context, kind domain.Kind, guid string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Remove(ctx, kind, guid); err != nil {
		s.log.Error(ctx, "failed to drop sync state", "kind", kind, "guid", guid, "error", err)
	}
}

func (s *Store) rekeyCache(ctx context.Context, kind domain.Kind, oldGUID, newGUID string, usn, lastSynced int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.ReplaceGUID(ctx, kind, oldGUID, newGUID, usn, lastSynced); err != nil {
		s.log.Error(ctx, "failed to re-key sync state", "kind", kind, "old", oldGUID, "new", newGUID, "error", err)
	}
}

// Refresh runs a full reconciliation: notebooks and tags first, then notes,
// so that note creation can rely on its notebook and tags having had a chance
// to reach the remote service.
func (s *Store) Refresh(ctx context.Context) {
	s.RefreshNotebooks(ctx)
	s.RefreshTags(ctx)
	s.RefreshNotes(ctx)
}

// membership bookkeeping ----------------------------------------------------

// attachNoteRefs records the note in its notebook's and tags' membership
// lists. Caller holds the lock.
func (s *Store) attachNoteRefs(n *domain.Note) {
	if nb, ok := s.notebooks.Get(n.NotebookGUID); ok {
		nb.AttachNote(n.GUID())
	}
	for _, tagGUID := range n.TagGUIDs {
		if tag, ok := s.tags.Get(tagGUID); ok {
			tag.AttachNote(n.GUID())
		}
	}
}

// detachNoteRefs removes the note from every membership list. Scanning all
// collections keeps this correct even after the note's references changed.
func (s *Store) detachNoteRefs(noteGUID string) {
	for _, nb := range s.notebooks.All() {
		nb.DetachNote(noteGUID)
	}
	for _, tag := range s.tags.All() {
		tag.DetachNote(noteGUID)
	}
}

func (s *Store) renameNoteRefs(oldGUID, newGUID string) {
	for _, nb := range s.notebooks.All() {
		nb.RenameNote(oldGUID, newGUID)
	}
	for _, tag := range s.tags.All() {
		tag.RenameNote(oldGUID, newGUID)
	}
}

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"notesync/internal/dispatch"
	"notesync/internal/domain"
	"notesync/internal/remote"
)

// CreateNoteParams describes a new note. The notebook defaults to the default
// notebook when empty.
type CreateNoteParams struct {
	Title        string `validate:"required"`
	NotebookGUID string
	Content      string
}

// CreateNote adds a note locally under a temporary identifier and, when
// connected, pushes it to the remote service. The note's identifier changes
// once the service assigns the real one; observers see a rekey change.
func (s *Store) CreateNote(ctx context.Context, p CreateNoteParams) (*domain.Note, error) {
	if err := s.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("invalid note: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	notebookGUID := p.NotebookGUID
	if notebookGUID == "" {
		if def, ok := s.defaultNotebook(); ok {
			notebookGUID = def.GUID()
		}
	}

	now := time.Now()
	note := domain.NewNote(uuid.NewString(), 1, 0)
	note.Title = p.Title
	note.NotebookGUID = notebookGUID
	note.Content = p.Content
	note.Created = now
	note.Updated = now
	note.Loaded = true

	if err := s.notes.Insert(note); err != nil {
		return nil, err
	}
	s.attachNoteRefs(note)
	s.syncToCache(ctx, domain.KindNote, note.GUID(), note.UpdateSequenceNumber, note.LastSyncedSequenceNumber)

	if s.remote.IsConnected() {
		s.enqueueCreateNote(note)
	}
	return note, nil
}

// SaveNote records a local modification: the sequence number is bumped so the
// note counts as modified, and when connected the change is pushed. A note
// that never reached the remote service is created instead of saved.
func (s *Store) SaveNote(ctx context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveNote(ctx, guid)
}

func (s *Store) saveNote(ctx context.Context, guid string) error {
	note, ok := s.notes.Get(guid)
	if !ok {
		s.log.Warn(ctx, "cannot save unknown note", "guid", guid)
		return fmt.Errorf("note %q: %w", guid, ErrNotFound)
	}

	note.UpdateSequenceNumber++
	note.Updated = time.Now()
	s.syncToCache(ctx, domain.KindNote, guid, note.UpdateSequenceNumber, note.LastSyncedSequenceNumber)

	if s.remote.IsConnected() {
		note.Loading = true
		switch note.Lifecycle() {
		case domain.LifecycleLocal:
			s.enqueueCreateNote(note)
		case domain.LifecycleRemote:
			s.enqueueSaveNote(note)
		}
	}
	s.notes.Notify(guid, domain.FieldUpdated, domain.FieldSynced, domain.FieldLoading)
	return nil
}

// DeleteNote marks a note deleted and pushes the deletion. A note the remote
// service never saw is simply dropped locally.
func (s *Store) DeleteNote(ctx context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes.Get(guid)
	if !ok {
		s.log.Warn(ctx, "cannot delete unknown note", "guid", guid)
		return fmt.Errorf("note %q: %w", guid, ErrNotFound)
	}

	switch note.Lifecycle() {
	case domain.LifecycleLocal:
		s.removeNote(ctx, guid)
	case domain.LifecycleRemote:
		note.Deleted = true
		note.UpdateSequenceNumber++
		s.syncToCache(ctx, domain.KindNote, guid, note.UpdateSequenceNumber, note.LastSyncedSequenceNumber)
		s.notes.Notify(guid, domain.FieldDeleted, domain.FieldSynced)
		if s.remote.IsConnected() {
			s.enqueueDeleteNote(guid)
		}
	}
	return nil
}

// removeNote drops a note from memory and cache. Caller holds the lock.
func (s *Store) removeNote(ctx context.Context, guid string) {
	s.detachNoteRefs(guid)
	s.notes.Remove(guid)
	s.removeFromCache(ctx, domain.KindNote, guid)
}

// TagNote attaches a tag to a note and saves the note.
func (s *Store) TagNote(ctx context.Context, noteGUID, tagGUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes.Get(noteGUID)
	if !ok {
		s.log.Warn(ctx, "cannot tag unknown note", "note", noteGUID, "tag", tagGUID)
		return fmt.Errorf("note %q: %w", noteGUID, ErrNotFound)
	}
	tag, ok := s.tags.Get(tagGUID)
	if !ok {
		s.log.Warn(ctx, "cannot attach unknown tag", "note", noteGUID, "tag", tagGUID)
		return fmt.Errorf("tag %q: %w", tagGUID, ErrNotFound)
	}
	if note.HasTag(tagGUID) {
		return nil
	}

	note.TagGUIDs = append(note.TagGUIDs, tagGUID)
	tag.AttachNote(noteGUID)
	s.notes.Notify(noteGUID, domain.FieldTags)
	return s.saveNote(ctx, noteGUID)
}

// UntagNote detaches a tag from a note and saves the note.
func (s *Store) UntagNote(ctx context.Context, noteGUID, tagGUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.untagNote(ctx, noteGUID, tagGUID)
}

func (s *Store) untagNote(ctx context.Context, noteGUID, tagGUID string) error {
	note, ok := s.notes.Get(noteGUID)
	if !ok {
		s.log.Warn(ctx, "cannot untag unknown note", "note", noteGUID, "tag", tagGUID)
		return fmt.Errorf("note %q: %w", noteGUID, ErrNotFound)
	}
	if !note.HasTag(tagGUID) {
		return nil
	}

	for i, g := range note.TagGUIDs {
		if g == tagGUID {
			note.TagGUIDs = append(note.TagGUIDs[:i], note.TagGUIDs[i+1:]...)
			break
		}
	}
	if tag, ok := s.tags.Get(tagGUID); ok {
		tag.DetachNote(noteGUID)
	}
	s.notes.Notify(noteGUID, domain.FieldTags)
	return s.saveNote(ctx, noteGUID)
}

// RefreshNoteContent schedules a fetch of a note's content and, optionally,
// resource data. Visible notes fetch at high priority, prefetching runs low.
func (s *Store) RefreshNoteContent(ctx context.Context, guid string, what remote.LoadWhat, prio dispatch.Priority) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshNoteContent(ctx, guid, what, prio)
}

func (s *Store) refreshNoteContent(ctx context.Context, guid string, what remote.LoadWhat, prio dispatch.Priority) {
	if !s.remote.IsConnected() {
		return
	}
	note, ok := s.notes.Get(guid)
	if !ok {
		s.log.Warn(ctx, "cannot fetch content of unknown note", "guid", guid)
		return
	}
	note.Loading = true
	s.notes.Notify(guid, domain.FieldLoading)

	s.disp.Enqueue(dispatch.Job{
		Entity:   dispatch.EntityRef{Kind: string(domain.KindNote), GUID: guid},
		Class:    dispatch.ClassRead,
		Priority: prio,
		Label:    "fetchNote",
		Run: func(jobCtx context.Context) {
			payload, err := s.remote.FetchNote(jobCtx, guid, what)
			s.fetchNoteDone(jobCtx, guid, what, payload, err)
		},
	})
}

// FindNotes runs a server-side search when connected, or a local substring
// match over titles and loaded content otherwise. Hits are flagged as search
// results until ClearSearchResults.
func (s *Store) FindNotes(ctx context.Context, words string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearSearchResults()

	if !s.remote.IsConnected() {
		needle := strings.ToLower(words)
		for _, note := range s.notes.All() {
			if strings.Contains(strings.ToLower(note.Title), needle) ||
				strings.Contains(strings.ToLower(note.Content), needle) {
				note.IsSearchResult = true
				s.notes.Notify(note.GUID(), domain.FieldIsSearchResult)
			}
		}
		return
	}

	filter := remote.NoteFilter{Search: words + "*"}
	s.fetchNotesPage(ctx, &notesPass{filter: filter, search: true}, 0)
}

// ClearSearchResults drops the search flag from all notes.
func (s *Store) ClearSearchResults(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearSearchResults()
}

func (s *Store) clearSearchResults() {
	for _, note := range s.notes.All() {
		if note.IsSearchResult {
			note.IsSearchResult = false
			s.notes.Notify(note.GUID(), domain.FieldIsSearchResult)
		}
	}
}

// job enqueue helpers -------------------------------------------------------

func (s *Store) enqueueCreateNote(note *domain.Note) {
	tmpGUID := note.GUID()
	payload := noteToPayload(note)
	note.Loading = true
	s.disp.Enqueue(dispatch.Job{
		Entity:   dispatch.EntityRef{Kind: string(domain.KindNote), GUID: tmpGUID},
		Class:    dispatch.ClassWrite,
		Priority: dispatch.PriorityMedium,
		Label:    "createNote",
		Run: func(jobCtx context.Context) {
			result, err := s.remote.CreateNote(jobCtx, payload)
			s.createNoteDone(jobCtx, tmpGUID, result, err)
		},
	})
}

func (s *Store) enqueueSaveNote(note *domain.Note) {
	guid := note.GUID()
	payload := noteToPayload(note)
	s.disp.Enqueue(dispatch.Job{
		Entity:   dispatch.EntityRef{Kind: string(domain.KindNote), GUID: guid},
		Class:    dispatch.ClassWrite,
		Priority: dispatch.PriorityMedium,
		Label:    "saveNote",
		Run: func(jobCtx context.Context) {
			result, err := s.remote.SaveNote(jobCtx, payload)
			s.saveNoteDone(jobCtx, guid, result, err)
		},
	})
}

func (s *Store) enqueueDeleteNote(guid string) {
	s.disp.Enqueue(dispatch.Job{
		Entity:   dispatch.EntityRef{Kind: string(domain.KindNote), GUID: guid},
		Class:    dispatch.ClassWrite,
		Priority: dispatch.PriorityMedium,
		Label:    "deleteNote",
		Run: func(jobCtx context.Context) {
			err := s.remote.DeleteNote(jobCtx, guid)
			s.deleteNoteDone(jobCtx, guid, err)
		},
	})
}

// job completion handlers ---------------------------------------------------

func (s *Store) createNoteDone(ctx context.Context, tmpGUID string, result *remote.NotePayload, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes.Get(tmpGUID)
	if !ok {
		s.log.Warn(ctx, "note vanished while creating remotely", "guid", tmpGUID)
		return
	}
	note.Loading = false

	if err != nil {
		s.handleUserError(err)
		s.log.Warn(ctx, "failed to create note remotely", "guid", tmpGUID, "error", err)
		note.SyncError = true
		s.notes.Notify(tmpGUID, domain.FieldLoading, domain.FieldSyncError)
		return
	}
	note.SyncError = false

	guid := tmpGUID
	if result.GUID != tmpGUID {
		if rerr := s.notes.ReplaceGUID(tmpGUID, result.GUID); rerr != nil {
			s.log.Error(ctx, "failed to adopt remote note identifier", "old", tmpGUID, "new", result.GUID, "error", rerr)
			return
		}
		s.renameNoteRefs(tmpGUID, result.GUID)
		guid = result.GUID
	}

	note.UpdateSequenceNumber = result.UpdateSequenceNumber
	note.LastSyncedSequenceNumber = result.UpdateSequenceNumber
	if guid != tmpGUID {
		s.rekeyCache(ctx, domain.KindNote, tmpGUID, guid, note.UpdateSequenceNumber, note.LastSyncedSequenceNumber)
	} else {
		s.syncToCache(ctx, domain.KindNote, guid, note.UpdateSequenceNumber, note.LastSyncedSequenceNumber)
	}
	s.notes.Notify(guid, domain.FieldLoading, domain.FieldSyncError, domain.FieldSynced)
}

func (s *Store) saveNoteDone(ctx context.Context, guid string, result *remote.NotePayload, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes.Get(guid)
	if !ok {
		s.log.Warn(ctx, "note vanished while saving remotely", "guid", guid)
		return
	}
	note.Loading = false

	if err != nil {
		s.handleUserError(err)
		s.log.Warn(ctx, "failed to save note remotely", "guid", guid, "error", err)
		note.SyncError = true
		s.notes.Notify(guid, domain.FieldLoading, domain.FieldSyncError)
		return
	}

	note.SyncError = false
	note.UpdateSequenceNumber = result.UpdateSequenceNumber
	note.LastSyncedSequenceNumber = result.UpdateSequenceNumber
	s.syncToCache(ctx, domain.KindNote, guid, note.UpdateSequenceNumber, note.LastSyncedSequenceNumber)
	s.notes.Notify(guid, domain.FieldLoading, domain.FieldSyncError, domain.FieldSynced)
}

func (s *Store) deleteNoteDone(ctx context.Context, guid string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.handleUserError(err)
		s.log.Warn(ctx, "failed to delete note remotely", "guid", guid, "error", err)
		if note, ok := s.notes.Get(guid); ok {
			note.SyncError = true
			s.notes.Notify(guid, domain.FieldSyncError)
		}
		return
	}
	s.removeNote(ctx, guid)
}

func (s *Store) fetchNoteDone(ctx context.Context, guid string, what remote.LoadWhat, result *remote.NotePayload, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes.Get(guid)
	if !ok {
		s.log.Warn(ctx, "note vanished while fetching content", "guid", guid)
		return
	}

	if err != nil {
		if remote.IsNotFound(err) {
			// Expunged remotely while we were looking at it.
			s.log.Info(ctx, "note is gone remotely, dropping local copy", "guid", guid)
			s.removeNote(ctx, guid)
			return
		}
		s.handleUserError(err)
		s.log.Warn(ctx, "failed to fetch note", "guid", guid, "error", err)
		note.Loading = false
		note.SyncError = true
		s.notes.Notify(guid, domain.FieldLoading, domain.FieldSyncError)
		return
	}

	if result.Deleted {
		s.removeNote(ctx, guid)
		return
	}
	if note.UpdateSequenceNumber > result.UpdateSequenceNumber {
		// Local copy moved on while the fetch was in flight; keep it.
		s.log.Warn(ctx, "stale note fetch discarded", "guid", guid,
			"local", note.UpdateSequenceNumber, "remote", result.UpdateSequenceNumber)
		note.Loading = false
		s.notes.Notify(guid, domain.FieldLoading)
		return
	}

	s.detachNoteRefs(guid)
	applyNotePayload(note, result, what)
	s.attachNoteRefs(note)

	// Listing metadata mentioned resources we still only have by hash.
	needResources := false
	for _, r := range note.Resources {
		if !r.Fetched() {
			needResources = true
			break
		}
	}

	note.Loading = false
	note.SyncError = false
	s.syncToCache(ctx, domain.KindNote, guid, note.UpdateSequenceNumber, note.LastSyncedSequenceNumber)
	s.notes.Notify(guid, domain.FieldLoading, domain.FieldSyncError, domain.FieldContent,
		domain.FieldResources, domain.FieldSynced)

	if needResources && what&remote.LoadResources == 0 {
		s.refreshNoteContent(ctx, guid, remote.LoadContent|remote.LoadResources, dispatch.PriorityLow)
	}
}

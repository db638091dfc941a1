package store

import (
	"context"

	"notesync/internal/dispatch"
	"notesync/internal/domain"
	"notesync/internal/remote"
)

// notesPass carries the state of one paginated listing pass. For a full
// refresh, unhandled starts as the set of all locally known note identifiers;
// every identifier the listing mentions is ticked off, and the leftovers after
// the final page are the notes the remote service no longer lists. Search
// passes do not populate unhandled and never delete anything.
type notesPass struct {
	filter    remote.NoteFilter
	search    bool
	unhandled map[string]struct{}
}

// RefreshNotes starts a full note reconciliation pass. A pass already in
// flight makes this a no-op; the entity-level merge is idempotent, so the next
// pass picks up whatever this one would have seen.
func (s *Store) RefreshNotes(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.remote.IsConnected() {
		return
	}
	if s.notesLoading {
		s.log.Debug(ctx, "note refresh already in progress")
		return
	}
	s.notesLoading = true

	pass := &notesPass{unhandled: map[string]struct{}{}}
	for _, guid := range s.notes.GUIDs() {
		pass.unhandled[guid] = struct{}{}
	}
	s.fetchNotesPage(ctx, pass, 0)
}

// fetchNotesPage schedules one listing page. Caller holds the lock.
func (s *Store) fetchNotesPage(ctx context.Context, pass *notesPass, startIndex int) {
	s.disp.Enqueue(dispatch.Job{
		Entity:   dispatch.EntityRef{Kind: string(domain.KindNote)},
		Class:    dispatch.ClassRead,
		Priority: dispatch.PriorityHigh,
		Label:    "fetchNoteList",
		Run: func(jobCtx context.Context) {
			page, err := s.remote.FetchNoteList(jobCtx, pass.filter, startIndex)
			s.fetchNotesDone(jobCtx, pass, page, err)
		},
	})
}

func (s *Store) fetchNotesDone(ctx context.Context, pass *notesPass, page *remote.NoteListPage, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.handleUserError(err)
		s.log.Warn(ctx, "failed to fetch note list", "error", err)
		if !pass.search {
			s.notesLoading = false
		}
		return
	}

	for _, sum := range page.Notes {
		delete(pass.unhandled, sum.GUID)
		s.mergeNoteSummary(ctx, sum, page.SearchedWords)
	}

	next := page.StartIndex + len(page.Notes)
	if next < page.TotalNotes {
		if len(page.Notes) == 0 {
			// An empty page with notes still claimed outstanding would
			// re-request the same index forever.
			s.log.Warn(ctx, "empty note listing page, finishing pass early",
				"startIndex", page.StartIndex, "total", page.TotalNotes)
		} else {
			s.fetchNotesPage(ctx, pass, next)
			return
		}
	}

	if !pass.search {
		s.finishNotesPass(ctx, pass)
		s.notesLoading = false
	}
	s.log.Info(ctx, "note listing complete", "total", page.TotalNotes, "search", pass.search)
}

// mergeNoteSummary folds one listing entry into the local replica, deciding
// between adopt, push, conflict and delete from the two sequence numbers.
// Caller holds the lock.
func (s *Store) mergeNoteSummary(ctx context.Context, sum remote.NoteSummary, searched bool) {
	note, ok := s.notes.Get(sum.GUID)
	if !ok {
		// New remotely. Deleted summaries for unknown notes carry nothing
		// worth replicating.
		if sum.Deleted {
			return
		}
		note = domain.NewNote(sum.GUID, sum.UpdateSequenceNumber, sum.UpdateSequenceNumber)
		applyNoteSummary(note, sum)
		note.IsSearchResult = searched
		if err := s.notes.Insert(note); err != nil {
			s.log.Error(ctx, "failed to insert discovered note", "guid", sum.GUID, "error", err)
			return
		}
		s.attachNoteRefs(note)
		s.syncToCache(ctx, domain.KindNote, sum.GUID, note.UpdateSequenceNumber, note.LastSyncedSequenceNumber)
		s.refreshNoteContent(ctx, sum.GUID, remote.LoadContent, dispatch.PriorityMedium)
		return
	}

	if searched && !note.IsSearchResult {
		note.IsSearchResult = true
		s.notes.Notify(sum.GUID, domain.FieldIsSearchResult)
	}

	if note.Synced() {
		if sum.Deleted {
			// Deleted remotely, no local changes to protect.
			s.removeNote(ctx, sum.GUID)
			return
		}
		if note.UpdateSequenceNumber == sum.UpdateSequenceNumber {
			return
		}
		// Changed remotely. Adopt the summary and refetch the content, which
		// the listing does not carry.
		s.detachNoteRefs(sum.GUID)
		fields := applyNoteSummary(note, sum)
		note.Loaded = false
		s.attachNoteRefs(note)
		s.syncToCache(ctx, domain.KindNote, sum.GUID, note.UpdateSequenceNumber, note.LastSyncedSequenceNumber)
		s.notes.Notify(sum.GUID, fields...)
		s.refreshNoteContent(ctx, sum.GUID, remote.LoadContent, dispatch.PriorityMedium)
		return
	}

	// Locally modified.
	if sum.Deleted {
		// Deleted remotely while modified locally. There is no remote content
		// left to fetch; the conflict carries no shadow.
		note.Conflicting = true
		note.Shadow = nil
		s.notes.Notify(sum.GUID, domain.FieldConflicting)
		return
	}
	if note.LastSyncedSequenceNumber == sum.UpdateSequenceNumber {
		// Remote unchanged since our last sync; our changes win.
		note.Loading = true
		s.notes.Notify(sum.GUID, domain.FieldLoading)
		s.enqueueSaveNote(note)
		return
	}

	// Both sides moved. Keep the local version on display and fetch the
	// remote one as a shadow for resolution.
	s.log.Info(ctx, "note conflict detected", "guid", sum.GUID,
		"local", note.UpdateSequenceNumber, "lastSynced", note.LastSyncedSequenceNumber,
		"remote", sum.UpdateSequenceNumber)
	note.Conflicting = true
	s.notes.Notify(sum.GUID, domain.FieldConflicting)
	s.enqueueFetchConflict(sum.GUID)
}

// finishNotesPass handles the identifiers the listing never mentioned. Caller
// holds the lock.
func (s *Store) finishNotesPass(ctx context.Context, pass *notesPass) {
	for guid := range pass.unhandled {
		note, ok := s.notes.Get(guid)
		if !ok {
			continue
		}
		switch note.Lifecycle() {
		case domain.LifecycleLocal:
			if !s.noteDependenciesSynced(note) {
				// The owning notebook or a referenced tag has not reached the
				// remote service yet; a later pass retries once it has.
				s.log.Debug(ctx, "note creation deferred until its notebook and tags exist remotely", "guid", guid)
				continue
			}
			note.Loading = true
			s.notes.Notify(guid, domain.FieldLoading)
			s.enqueueCreateNote(note)
		case domain.LifecycleRemote:
			if note.Synced() {
				// Expunged remotely.
				s.removeNote(ctx, guid)
				continue
			}
			// Expunged remotely but modified locally.
			note.Conflicting = true
			note.Shadow = nil
			s.notes.Notify(guid, domain.FieldConflicting)
		}
	}
}

// noteDependenciesSynced reports whether the note's notebook and all its tags
// exist remotely, which a remote create requires.
func (s *Store) noteDependenciesSynced(note *domain.Note) bool {
	if note.NotebookGUID != "" {
		nb, ok := s.notebooks.Get(note.NotebookGUID)
		if !ok || nb.Lifecycle() == domain.LifecycleLocal {
			return false
		}
	}
	for _, tagGUID := range note.TagGUIDs {
		tag, ok := s.tags.Get(tagGUID)
		if !ok || tag.Lifecycle() == domain.LifecycleLocal {
			return false
		}
	}
	return true
}

// enqueueFetchConflict fetches the remote version of a conflicting note as its
// shadow. Caller holds the lock.
func (s *Store) enqueueFetchConflict(guid string) {
	s.disp.Enqueue(dispatch.Job{
		Entity:   dispatch.EntityRef{Kind: string(domain.KindNote), GUID: guid},
		Class:    dispatch.ClassRead,
		Priority: dispatch.PriorityMedium,
		Label:    "fetchConflict",
		Run: func(jobCtx context.Context) {
			payload, err := s.remote.FetchNote(jobCtx, guid, remote.LoadContent|remote.LoadResources)
			s.fetchConflictDone(jobCtx, guid, payload, err)
		},
	})
}

func (s *Store) fetchConflictDone(ctx context.Context, guid string, result *remote.NotePayload, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes.Get(guid)
	if !ok {
		s.log.Warn(ctx, "conflicting note vanished", "guid", guid)
		return
	}
	if err != nil {
		if remote.IsNotFound(err) {
			// The remote side was expunged between listing and fetch; the
			// conflict stays, now against a deletion.
			note.Shadow = nil
			s.notes.Notify(guid, domain.FieldConflicting)
			return
		}
		s.handleUserError(err)
		s.log.Warn(ctx, "failed to fetch remote side of conflict", "guid", guid, "error", err)
		return
	}

	shadow := domain.NewNote("conflict-"+guid, result.UpdateSequenceNumber, result.UpdateSequenceNumber)
	applyNotePayload(shadow, result, remote.LoadContent|remote.LoadResources)
	note.Shadow = shadow
	s.notes.Notify(guid, domain.FieldConflicting)
}

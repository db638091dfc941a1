package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"notesync/internal/dispatch"
	"notesync/internal/domain"
	"notesync/internal/remote"
)

// CreateNotebookParams describes a new notebook.
type CreateNotebookParams struct {
	Name string `validate:"required"`
}

// CreateNotebook adds a notebook locally and, when connected, pushes it. The
// first notebook becomes the default.
func (s *Store) CreateNotebook(ctx context.Context, p CreateNotebookParams) (*domain.Notebook, error) {
	if err := s.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("invalid notebook: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nb := domain.NewNotebook(uuid.NewString(), 1, 0)
	nb.Name = p.Name
	nb.LastUpdated = time.Now()
	if s.notebooks.Len() == 0 {
		nb.Default = true
	}

	if err := s.notebooks.Insert(nb); err != nil {
		return nil, err
	}
	s.syncToCache(ctx, domain.KindNotebook, nb.GUID(), nb.UpdateSequenceNumber, nb.LastSyncedSequenceNumber)

	if s.remote.IsConnected() {
		s.enqueueCreateNotebook(nb)
	}
	return nb, nil
}

// SaveNotebook records a local notebook modification and pushes it when
// connected.
func (s *Store) SaveNotebook(ctx context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveNotebook(ctx, guid)
}

func (s *Store) saveNotebook(ctx context.Context, guid string) error {
	nb, ok := s.notebooks.Get(guid)
	if !ok {
		s.log.Warn(ctx, "cannot save unknown notebook", "guid", guid)
		return fmt.Errorf("notebook %q: %w", guid, ErrNotFound)
	}

	nb.UpdateSequenceNumber++
	nb.LastUpdated = time.Now()
	s.syncToCache(ctx, domain.KindNotebook, guid, nb.UpdateSequenceNumber, nb.LastSyncedSequenceNumber)

	if s.remote.IsConnected() {
		nb.Loading = true
		switch nb.Lifecycle() {
		case domain.LifecycleLocal:
			s.enqueueCreateNotebook(nb)
		case domain.LifecycleRemote:
			s.enqueueSaveNotebook(nb)
		}
	}
	s.notebooks.Notify(guid, domain.FieldUpdated, domain.FieldSynced, domain.FieldLoading)
	return nil
}

// SetDefaultNotebook moves the default flag. The previous holder is saved
// first so the remote service never sees two defaults.
func (s *Store) SetDefaultNotebook(ctx context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nb, ok := s.notebooks.Get(guid)
	if !ok {
		return fmt.Errorf("notebook %q: %w", guid, ErrNotFound)
	}
	if nb.Default {
		return nil
	}

	if current, ok := s.defaultNotebook(); ok {
		current.Default = false
		s.notebooks.Notify(current.GUID(), domain.FieldDefault)
		if err := s.saveNotebook(ctx, current.GUID()); err != nil {
			return err
		}
	}
	nb.Default = true
	s.notebooks.Notify(guid, domain.FieldDefault)
	return s.saveNotebook(ctx, guid)
}

// ExpungeNotebook deletes a notebook. The default notebook is protected; any
// notes still inside move to the default notebook first.
func (s *Store) ExpungeNotebook(ctx context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nb, ok := s.notebooks.Get(guid)
	if !ok {
		s.log.Warn(ctx, "cannot delete unknown notebook", "guid", guid)
		return fmt.Errorf("notebook %q: %w", guid, ErrNotFound)
	}
	if nb.Default {
		s.pushError("Cannot delete the default notebook. Set another notebook to be the default first.")
		return fmt.Errorf("notebook %q: %w", guid, ErrDefaultNotebook)
	}

	if nb.NoteCount() > 0 {
		def, ok := s.defaultNotebook()
		if !ok {
			s.log.Warn(ctx, "cannot delete notebook, no default notebook to move its notes to", "guid", guid)
			return fmt.Errorf("notebook %q still holds notes and no default notebook exists: %w", guid, ErrNotFound)
		}
		for _, noteGUID := range nb.NoteGUIDs() {
			note, ok := s.notes.Get(noteGUID)
			if !ok {
				nb.DetachNote(noteGUID)
				continue
			}
			note.NotebookGUID = def.GUID()
			nb.DetachNote(noteGUID)
			def.AttachNote(noteGUID)
			s.notes.Notify(noteGUID, domain.FieldNotebook)
			if err := s.saveNote(ctx, noteGUID); err != nil {
				return err
			}
		}
	}
	return s.expungeNotebook(ctx, guid, nb)
}

func (s *Store) expungeNotebook(ctx context.Context, guid string, nb *domain.Notebook) error {
	switch nb.Lifecycle() {
	case domain.LifecycleLocal:
		s.notebooks.Remove(guid)
		s.removeFromCache(ctx, domain.KindNotebook, guid)
	case domain.LifecycleRemote:
		nb.Deleted = true
		nb.UpdateSequenceNumber++
		s.syncToCache(ctx, domain.KindNotebook, guid, nb.UpdateSequenceNumber, nb.LastSyncedSequenceNumber)
		s.notebooks.Notify(guid, domain.FieldDeleted, domain.FieldSynced)
		if s.remote.IsConnected() {
			s.enqueueExpungeNotebook(guid)
		}
	}
	return nil
}

// RefreshNotebooks reconciles the notebook collection. Notebook listings are
// not paginated; one fetch covers everything.
func (s *Store) RefreshNotebooks(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.remote.IsConnected() {
		return
	}
	if s.notebooksLoading {
		s.log.Debug(ctx, "notebook refresh already in progress")
		return
	}
	s.notebooksLoading = true

	s.disp.Enqueue(dispatch.Job{
		Entity:   dispatch.EntityRef{Kind: string(domain.KindNotebook)},
		Class:    dispatch.ClassRead,
		Priority: dispatch.PriorityHigh,
		Label:    "fetchNotebooks",
		Run: func(jobCtx context.Context) {
			payloads, err := s.remote.FetchNotebooks(jobCtx)
			s.fetchNotebooksDone(jobCtx, payloads, err)
		},
	})
}

func (s *Store) fetchNotebooksDone(ctx context.Context, payloads []remote.NotebookPayload, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notebooksLoading = false
	if err != nil {
		s.handleUserError(err)
		s.log.Warn(ctx, "failed to fetch notebooks", "error", err)
		return
	}

	unhandled := map[string]struct{}{}
	for _, guid := range s.notebooks.GUIDs() {
		unhandled[guid] = struct{}{}
	}

	for _, p := range payloads {
		delete(unhandled, p.GUID)
		s.mergeNotebookPayload(ctx, p)
	}

	for guid := range unhandled {
		nb, ok := s.notebooks.Get(guid)
		if !ok {
			continue
		}
		switch nb.Lifecycle() {
		case domain.LifecycleLocal:
			nb.Loading = true
			s.notebooks.Notify(guid, domain.FieldLoading)
			s.enqueueCreateNotebook(nb)
		case domain.LifecycleRemote:
			s.notebooks.Remove(guid)
			s.removeFromCache(ctx, domain.KindNotebook, guid)
		}
	}
}

// mergeNotebookPayload folds one remote notebook into the local collection.
// Caller holds the lock.
func (s *Store) mergeNotebookPayload(ctx context.Context, p remote.NotebookPayload) {
	nb, ok := s.notebooks.Get(p.GUID)
	if !ok {
		nb = domain.NewNotebook(p.GUID, p.UpdateSequenceNumber, p.UpdateSequenceNumber)
		applyNotebookPayload(nb, p)
		if err := s.notebooks.Insert(nb); err != nil {
			s.log.Error(ctx, "failed to insert discovered notebook", "guid", p.GUID, "error", err)
			return
		}
		s.syncToCache(ctx, domain.KindNotebook, p.GUID, nb.UpdateSequenceNumber, nb.LastSyncedSequenceNumber)
		return
	}

	if nb.Synced() {
		if nb.UpdateSequenceNumber == p.UpdateSequenceNumber {
			return
		}
		fields := applyNotebookPayload(nb, p)
		s.syncToCache(ctx, domain.KindNotebook, p.GUID, nb.UpdateSequenceNumber, nb.LastSyncedSequenceNumber)
		s.notebooks.Notify(p.GUID, fields...)
		return
	}

	// Locally modified.
	if nb.LastSyncedSequenceNumber == p.UpdateSequenceNumber {
		if nb.Deleted {
			// A pending deletion that never reached the server.
			_ = s.expungeNotebook(ctx, p.GUID, nb)
			return
		}
		nb.Loading = true
		s.notebooks.Notify(p.GUID, domain.FieldLoading)
		s.enqueueSaveNotebook(nb)
		return
	}

	// Both sides changed. Notebooks carry no merge surface worth a shadow;
	// flag it and let the user pick a side by editing again.
	s.log.Warn(ctx, "notebook conflict, remote wins on next adopt", "guid", p.GUID,
		"local", nb.UpdateSequenceNumber, "lastSynced", nb.LastSyncedSequenceNumber,
		"remote", p.UpdateSequenceNumber)
	nb.SyncError = true
	s.notebooks.Notify(p.GUID, domain.FieldSyncError)
}

// job plumbing --------------------------------------------------------------

func (s *Store) enqueueCreateNotebook(nb *domain.Notebook) {
	tmpGUID := nb.GUID()
	payload := notebookToPayload(nb)
	nb.Loading = true
	s.disp.Enqueue(dispatch.Job{
		Entity:   dispatch.EntityRef{Kind: string(domain.KindNotebook), GUID: tmpGUID},
		Class:    dispatch.ClassWrite,
		Priority: dispatch.PriorityMedium,
		Label:    "createNotebook",
		Run: func(jobCtx context.Context) {
			result, err := s.remote.CreateNotebook(jobCtx, payload)
			s.createNotebookDone(jobCtx, tmpGUID, result, err)
		},
	})
}

func (s *Store) enqueueSaveNotebook(nb *domain.Notebook) {
	guid := nb.GUID()
	payload := notebookToPayload(nb)
	s.disp.Enqueue(dispatch.Job{
		Entity:   dispatch.EntityRef{Kind: string(domain.KindNotebook), GUID: guid},
		Class:    dispatch.ClassWrite,
		Priority: dispatch.PriorityMedium,
		Label:    "saveNotebook",
		Run: func(jobCtx context.Context) {
			result, err := s.remote.SaveNotebook(jobCtx, payload)
			s.saveNotebookDone(jobCtx, guid, result, err)
		},
	})
}

func (s *Store) enqueueExpungeNotebook(guid string) {
	s.disp.Enqueue(dispatch.Job{
		Entity:   dispatch.EntityRef{Kind: string(domain.KindNotebook), GUID: guid},
		Class:    dispatch.ClassWrite,
		Priority: dispatch.PriorityMedium,
		Label:    "expungeNotebook",
		Run: func(jobCtx context.Context) {
			err := s.remote.ExpungeNotebook(jobCtx, guid)
			s.expungeNotebookDone(jobCtx, guid, err)
		},
	})
}

func (s *Store) createNotebookDone(ctx context.Context, tmpGUID string, result *remote.NotebookPayload, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nb, ok := s.notebooks.Get(tmpGUID)
	if !ok {
		s.log.Warn(ctx, "notebook vanished while creating remotely", "guid", tmpGUID)
		return
	}
	nb.Loading = false

	if err != nil {
		s.handleUserError(err)
		s.log.Warn(ctx, "failed to create notebook remotely", "guid", tmpGUID, "error", err)
		nb.SyncError = true
		s.notebooks.Notify(tmpGUID, domain.FieldLoading, domain.FieldSyncError)
		return
	}
	nb.SyncError = false

	guid := tmpGUID
	if result.GUID != tmpGUID {
		if rerr := s.notebooks.ReplaceGUID(tmpGUID, result.GUID); rerr != nil {
			s.log.Error(ctx, "failed to adopt remote notebook identifier", "old", tmpGUID, "new", result.GUID, "error", rerr)
			return
		}
		guid = result.GUID
		// Notes still point at the temporary identifier.
		for _, noteGUID := range nb.NoteGUIDs() {
			if note, ok := s.notes.Get(noteGUID); ok {
				note.NotebookGUID = guid
				s.notes.Notify(noteGUID, domain.FieldNotebook)
			}
		}
	}

	applyNotebookPayload(nb, *result)
	if guid != tmpGUID {
		s.rekeyCache(ctx, domain.KindNotebook, tmpGUID, guid, nb.UpdateSequenceNumber, nb.LastSyncedSequenceNumber)
	} else {
		s.syncToCache(ctx, domain.KindNotebook, guid, nb.UpdateSequenceNumber, nb.LastSyncedSequenceNumber)
	}
	s.notebooks.Notify(guid, domain.FieldLoading, domain.FieldSyncError, domain.FieldSynced)

	// The notebook now exists remotely; notes that waited for it can go.
	for _, noteGUID := range nb.NoteGUIDs() {
		if note, ok := s.notes.Get(noteGUID); ok && note.Lifecycle() == domain.LifecycleLocal {
			if s.noteDependenciesSynced(note) {
				s.enqueueCreateNote(note)
			}
		}
	}
}

func (s *Store) saveNotebookDone(ctx context.Context, guid string, result *remote.NotebookPayload, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nb, ok := s.notebooks.Get(guid)
	if !ok {
		s.log.Warn(ctx, "notebook vanished while saving remotely", "guid", guid)
		return
	}
	nb.Loading = false

	if err != nil {
		s.handleUserError(err)
		s.log.Warn(ctx, "failed to save notebook remotely", "guid", guid, "error", err)
		nb.SyncError = true
		s.notebooks.Notify(guid, domain.FieldLoading, domain.FieldSyncError)
		return
	}

	nb.SyncError = false
	applyNotebookPayload(nb, *result)
	s.syncToCache(ctx, domain.KindNotebook, guid, nb.UpdateSequenceNumber, nb.LastSyncedSequenceNumber)
	s.notebooks.Notify(guid, domain.FieldLoading, domain.FieldSyncError, domain.FieldSynced)
}

func (s *Store) expungeNotebookDone(ctx context.Context, guid string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.handleUserError(err)
		s.log.Warn(ctx, "failed to delete notebook remotely", "guid", guid, "error", err)
		if nb, ok := s.notebooks.Get(guid); ok {
			nb.SyncError = true
			s.notebooks.Notify(guid, domain.FieldSyncError)
		}
		return
	}
	s.notebooks.Remove(guid)
	s.removeFromCache(ctx, domain.KindNotebook, guid)
}

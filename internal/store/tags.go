package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"notesync/internal/dispatch"
	"notesync/internal/domain"
	"notesync/internal/remote"
)

// CreateTagParams describes a new tag.
type CreateTagParams struct {
	Name string `validate:"required"`
}

// CreateTag adds a tag locally and, when connected, pushes it. Tag names are
// unique case-insensitively; creating an existing name returns the existing
// tag.
func (s *Store) CreateTag(ctx context.Context, p CreateTagParams) (*domain.Tag, error) {
	if err := s.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("invalid tag: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tags.All() {
		if strings.EqualFold(t.Name, p.Name) {
			return t, nil
		}
	}

	tag := domain.NewTag(uuid.NewString(), 1, 0)
	tag.Name = p.Name

	if err := s.tags.Insert(tag); err != nil {
		return nil, err
	}
	s.syncToCache(ctx, domain.KindTag, tag.GUID(), tag.UpdateSequenceNumber, tag.LastSyncedSequenceNumber)

	if s.remote.IsConnected() {
		s.enqueueCreateTag(tag)
	}
	return tag, nil
}

// SaveTag records a local tag modification and pushes it when connected.
func (s *Store) SaveTag(ctx context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveTag(ctx, guid)
}

func (s *Store) saveTag(ctx context.Context, guid string) error {
	tag, ok := s.tags.Get(guid)
	if !ok {
		s.log.Warn(ctx, "cannot save unknown tag", "guid", guid)
		return fmt.Errorf("tag %q: %w", guid, ErrNotFound)
	}

	tag.UpdateSequenceNumber++
	s.syncToCache(ctx, domain.KindTag, guid, tag.UpdateSequenceNumber, tag.LastSyncedSequenceNumber)

	if s.remote.IsConnected() {
		tag.Loading = true
		switch tag.Lifecycle() {
		case domain.LifecycleLocal:
			s.enqueueCreateTag(tag)
		case domain.LifecycleRemote:
			s.enqueueSaveTag(tag)
		}
	}
	s.tags.Notify(guid, domain.FieldSynced, domain.FieldLoading)
	return nil
}

// ExpungeTag deletes a tag. Notes still carrying it are untagged first, which
// saves each of them.
func (s *Store) ExpungeTag(ctx context.Context, guid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, ok := s.tags.Get(guid)
	if !ok {
		s.log.Warn(ctx, "cannot delete unknown tag", "guid", guid)
		return fmt.Errorf("tag %q: %w", guid, ErrNotFound)
	}

	for _, noteGUID := range tag.NoteGUIDs() {
		if err := s.untagNote(ctx, noteGUID, guid); err != nil {
			return err
		}
	}
	return s.expungeTag(ctx, guid, tag)
}

func (s *Store) expungeTag(ctx context.Context, guid string, tag *domain.Tag) error {
	switch tag.Lifecycle() {
	case domain.LifecycleLocal:
		s.tags.Remove(guid)
		s.removeFromCache(ctx, domain.KindTag, guid)
	case domain.LifecycleRemote:
		tag.Deleted = true
		tag.UpdateSequenceNumber++
		s.syncToCache(ctx, domain.KindTag, guid, tag.UpdateSequenceNumber, tag.LastSyncedSequenceNumber)
		s.tags.Notify(guid, domain.FieldDeleted, domain.FieldSynced)
		if s.remote.IsConnected() {
			s.enqueueExpungeTag(guid)
		}
	}
	return nil
}

// RefreshTags reconciles the tag collection against the remote service.
func (s *Store) RefreshTags(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.remote.IsConnected() {
		return
	}
	if s.tagsLoading {
		s.log.Debug(ctx, "tag refresh already in progress")
		return
	}
	s.tagsLoading = true

	s.disp.Enqueue(dispatch.Job{
		Entity:   dispatch.EntityRef{Kind: string(domain.KindTag)},
		Class:    dispatch.ClassRead,
		Priority: dispatch.PriorityHigh,
		Label:    "fetchTags",
		Run: func(jobCtx context.Context) {
			payloads, err := s.remote.FetchTags(jobCtx)
			s.fetchTagsDone(jobCtx, payloads, err)
		},
	})
}

func (s *Store) fetchTagsDone(ctx context.Context, payloads []remote.TagPayload, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tagsLoading = false
	if err != nil {
		s.handleUserError(err)
		s.log.Warn(ctx, "failed to fetch tags", "error", err)
		return
	}

	unhandled := map[string]struct{}{}
	for _, guid := range s.tags.GUIDs() {
		unhandled[guid] = struct{}{}
	}

	for _, p := range payloads {
		delete(unhandled, p.GUID)
		s.mergeTagPayload(ctx, p)
	}

	for guid := range unhandled {
		tag, ok := s.tags.Get(guid)
		if !ok {
			continue
		}
		switch tag.Lifecycle() {
		case domain.LifecycleLocal:
			tag.Loading = true
			s.tags.Notify(guid, domain.FieldLoading)
			s.enqueueCreateTag(tag)
		case domain.LifecycleRemote:
			s.tags.Remove(guid)
			s.removeFromCache(ctx, domain.KindTag, guid)
		}
	}
}

func (s *Store) mergeTagPayload(ctx context.Context, p remote.TagPayload) {
	tag, ok := s.tags.Get(p.GUID)
	if !ok {
		tag = domain.NewTag(p.GUID, p.UpdateSequenceNumber, p.UpdateSequenceNumber)
		applyTagPayload(tag, p)
		if err := s.tags.Insert(tag); err != nil {
			s.log.Error(ctx, "failed to insert discovered tag", "guid", p.GUID, "error", err)
			return
		}
		s.syncToCache(ctx, domain.KindTag, p.GUID, tag.UpdateSequenceNumber, tag.LastSyncedSequenceNumber)
		return
	}

	if tag.Synced() {
		if tag.UpdateSequenceNumber == p.UpdateSequenceNumber {
			return
		}
		fields := applyTagPayload(tag, p)
		s.syncToCache(ctx, domain.KindTag, p.GUID, tag.UpdateSequenceNumber, tag.LastSyncedSequenceNumber)
		s.tags.Notify(p.GUID, fields...)
		return
	}

	// Locally modified.
	if tag.LastSyncedSequenceNumber == p.UpdateSequenceNumber {
		if tag.Deleted {
			_ = s.expungeTag(ctx, p.GUID, tag)
			return
		}
		tag.Loading = true
		s.tags.Notify(p.GUID, domain.FieldLoading)
		s.enqueueSaveTag(tag)
		return
	}

	s.log.Warn(ctx, "tag conflict, remote wins on next adopt", "guid", p.GUID,
		"local", tag.UpdateSequenceNumber, "lastSynced", tag.LastSyncedSequenceNumber,
		"remote", p.UpdateSequenceNumber)
	tag.SyncError = true
	s.tags.Notify(p.GUID, domain.FieldSyncError)
}

// job plumbing --------------------------------------------------------------

func (s *Store) enqueueCreateTag(tag *domain.Tag) {
	tmpGUID := tag.GUID()
	payload := tagToPayload(tag)
	tag.Loading = true
	s.disp.Enqueue(dispatch.Job{
		Entity:   dispatch.EntityRef{Kind: string(domain.KindTag), GUID: tmpGUID},
		Class:    dispatch.ClassWrite,
		Priority: dispatch.PriorityMedium,
		Label:    "createTag",
		Run: func(jobCtx context.Context) {
			result, err := s.remote.CreateTag(jobCtx, payload)
			s.createTagDone(jobCtx, tmpGUID, result, err)
		},
	})
}

func (s *Store) enqueueSaveTag(tag *domain.Tag) {
	guid := tag.GUID()
	payload := tagToPayload(tag)
	s.disp.Enqueue(dispatch.Job{
		Entity:   dispatch.EntityRef{Kind: string(domain.KindTag), GUID: guid},
		Class:    dispatch.ClassWrite,
		Priority: dispatch.PriorityMedium,
		Label:    "saveTag",
		Run: func(jobCtx context.Context) {
			result, err := s.remote.SaveTag(jobCtx, payload)
			s.saveTagDone(jobCtx, guid, result, err)
		},
	})
}

func (s *Store) enqueueExpungeTag(guid string) {
	s.disp.Enqueue(dispatch.Job{
		Entity:   dispatch.EntityRef{Kind: string(domain.KindTag), GUID: guid},
		Class:    dispatch.ClassWrite,
		Priority: dispatch.PriorityMedium,
		Label:    "expungeTag",
		Run: func(jobCtx context.Context) {
			err := s.remote.ExpungeTag(jobCtx, guid)
			s.expungeTagDone(jobCtx, guid, err)
		},
	})
}

func (s *Store) createTagDone(ctx context.Context, tmpGUID string, result *remote.TagPayload, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, ok := s.tags.Get(tmpGUID)
	if !ok {
		s.log.Warn(ctx, "tag vanished while creating remotely", "guid", tmpGUID)
		return
	}
	tag.Loading = false

	if err != nil {
		s.handleUserError(err)
		s.log.Warn(ctx, "failed to create tag remotely", "guid", tmpGUID, "error", err)
		tag.SyncError = true
		s.tags.Notify(tmpGUID, domain.FieldLoading, domain.FieldSyncError)
		return
	}
	tag.SyncError = false

	guid := tmpGUID
	if result.GUID != tmpGUID {
		if rerr := s.tags.ReplaceGUID(tmpGUID, result.GUID); rerr != nil {
			s.log.Error(ctx, "failed to adopt remote tag identifier", "old", tmpGUID, "new", result.GUID, "error", rerr)
			return
		}
		guid = result.GUID
		// Notes still reference the temporary identifier; rewrite and push
		// them so the remote side links the real tag.
		for _, noteGUID := range tag.NoteGUIDs() {
			note, ok := s.notes.Get(noteGUID)
			if !ok {
				continue
			}
			for i, g := range note.TagGUIDs {
				if g == tmpGUID {
					note.TagGUIDs[i] = guid
				}
			}
			s.notes.Notify(noteGUID, domain.FieldTags)
			if note.Lifecycle() == domain.LifecycleRemote {
				_ = s.saveNote(ctx, noteGUID)
			}
		}
	}

	applyTagPayload(tag, *result)
	if guid != tmpGUID {
		s.rekeyCache(ctx, domain.KindTag, tmpGUID, guid, tag.UpdateSequenceNumber, tag.LastSyncedSequenceNumber)
	} else {
		s.syncToCache(ctx, domain.KindTag, guid, tag.UpdateSequenceNumber, tag.LastSyncedSequenceNumber)
	}
	s.tags.Notify(guid, domain.FieldLoading, domain.FieldSyncError, domain.FieldSynced)
}

func (s *Store) saveTagDone(ctx context.Context, guid string, result *remote.TagPayload, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, ok := s.tags.Get(guid)
	if !ok {
		s.log.Warn(ctx, "tag vanished while saving remotely", "guid", guid)
		return
	}
	tag.Loading = false

	if err != nil {
		s.handleUserError(err)
		s.log.Warn(ctx, "failed to save tag remotely", "guid", guid, "error", err)
		tag.SyncError = true
		s.tags.Notify(guid, domain.FieldLoading, domain.FieldSyncError)
		return
	}

	tag.SyncError = false
	applyTagPayload(tag, *result)
	s.syncToCache(ctx, domain.KindTag, guid, tag.UpdateSequenceNumber, tag.LastSyncedSequenceNumber)
	s.tags.Notify(guid, domain.FieldLoading, domain.FieldSyncError, domain.FieldSynced)
}

func (s *Store) expungeTagDone(ctx context.Context, guid string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.handleUserError(err)
		s.log.Warn(ctx, "failed to delete tag remotely", "guid", guid, "error", err)
		if tag, ok := s.tags.Get(guid); ok {
			tag.SyncError = true
			s.tags.Notify(guid, domain.FieldSyncError)
		}
		return
	}
	s.tags.Remove(guid)
	s.removeFromCache(ctx, domain.KindTag, guid)
}

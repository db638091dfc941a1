package store

import (
	"context"
	"fmt"

	"notesync/internal/domain"
)

// ResolveMode selects the winning side of a note conflict.
type ResolveMode int

const (
	// KeepLocal discards the remote shadow and pushes the local version.
	KeepLocal ResolveMode = iota
	// KeepRemote replaces the local note with the remote shadow wholesale.
	KeepRemote
)

func (m ResolveMode) String() string {
	switch m {
	case KeepLocal:
		return "keepLocal"
	case KeepRemote:
		return "keepRemote"
	}
	return "unknown"
}

// ResolveConflict resolves a flagged note conflict in the given direction.
// A nil shadow means the remote side deleted the note: KeepLocal then
// recreates it remotely, KeepRemote accepts the deletion.
func (s *Store) ResolveConflict(ctx context.Context, guid string, mode ResolveMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	note, ok := s.notes.Get(guid)
	if !ok {
		s.log.Warn(ctx, "cannot resolve conflict of unknown note", "guid", guid)
		return fmt.Errorf("note %q: %w", guid, ErrNotFound)
	}
	if !note.Conflicting {
		s.log.Warn(ctx, "note is not conflicting, nothing to resolve", "guid", guid)
		return fmt.Errorf("note %q: %w", guid, ErrNoConflict)
	}

	shadow := note.Shadow
	s.log.Info(ctx, "resolving note conflict", "guid", guid, "mode", mode,
		"remoteDeleted", shadow == nil)

	if shadow == nil {
		// Conflict against a remote deletion.
		switch mode {
		case KeepLocal:
			// The remote copy is gone; demote the note to never-synced so the
			// push recreates it.
			note.Conflicting = false
			note.LastSyncedSequenceNumber = 0
			s.notes.Notify(guid, domain.FieldConflicting)
			return s.saveNote(ctx, guid)
		case KeepRemote:
			s.removeNote(ctx, guid)
			return nil
		}
		return fmt.Errorf("unknown resolve mode %d", mode)
	}

	switch mode {
	case KeepLocal:
		// Jump past the remote sequence number so the push is the newest
		// version the service has seen.
		note.Conflicting = false
		note.Shadow = nil
		if note.UpdateSequenceNumber <= shadow.UpdateSequenceNumber {
			note.UpdateSequenceNumber = shadow.UpdateSequenceNumber
		}
		note.LastSyncedSequenceNumber = shadow.UpdateSequenceNumber
		s.notes.Notify(guid, domain.FieldConflicting)
		return s.saveNote(ctx, guid)

	case KeepRemote:
		shadow.Conflicting = false
		shadow.Shadow = nil
		s.detachNoteRefs(guid)
		if err := s.notes.Replace(guid, shadow); err != nil {
			return err
		}
		s.attachNoteRefs(shadow)
		// Push the adopted version so the service confirms a fresh sequence
		// number for this copy.
		return s.saveNote(ctx, guid)
	}
	return fmt.Errorf("unknown resolve mode %d", mode)
}

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesync/internal/dispatch"
	"notesync/internal/domain"
	"notesync/internal/remote"
)

func TestCreateNote_RekeysToServerIdentifier(t *testing.T) {
	rem := newFakeRemote()
	s, disp := setupStore(t, rem)
	ctx := context.Background()

	note, err := s.CreateNote(ctx, CreateNoteParams{Title: "hello", Content: "world"})
	require.NoError(t, err)
	tmpGUID := note.GUID()
	assert.Equal(t, domain.LifecycleLocal, note.Lifecycle())

	var rekeys []domain.Change
	s.Subscribe(func(c domain.Change) {
		if c.Op == domain.OpRekeyed {
			rekeys = append(rekeys, c)
		}
	})

	disp.drain(ctx)

	require.Len(t, rem.createdNotes, 1)
	serverGUID := rem.createdNotes[0]
	assert.NotEqual(t, tmpGUID, serverGUID)

	got, ok := s.Note(serverGUID)
	require.True(t, ok)
	assert.Same(t, note, got)
	assert.True(t, got.Synced())
	assert.Equal(t, domain.LifecycleRemote, got.Lifecycle())

	require.Len(t, rekeys, 1)
	assert.Equal(t, tmpGUID, rekeys[0].OldGUID)
	assert.Equal(t, serverGUID, rekeys[0].GUID)

	// cache follows the rename
	require.NoError(t, s.Close())
	s2, _ := setupStoreAt(t, rem, s.dataDir)
	_, ok = s2.Note(serverGUID)
	assert.True(t, ok)
	_, ok = s2.Note(tmpGUID)
	assert.False(t, ok)
}

func TestCreateNote_RequiresTitle(t *testing.T) {
	rem := newFakeRemote()
	s, _ := setupStore(t, rem)

	_, err := s.CreateNote(context.Background(), CreateNoteParams{})
	assert.Error(t, err)
	assert.Empty(t, s.Notes())
}

func TestCreateNote_UsesDefaultNotebook(t *testing.T) {
	rem := newFakeRemote()
	s, disp := setupStore(t, rem)
	ctx := context.Background()

	nb, err := s.CreateNotebook(ctx, CreateNotebookParams{Name: "inbox"})
	require.NoError(t, err)
	disp.drain(ctx)

	note, err := s.CreateNote(ctx, CreateNoteParams{Title: "a"})
	require.NoError(t, err)
	assert.Equal(t, nb.GUID(), note.NotebookGUID)
	assert.Equal(t, 1, nb.NoteCount())
}

func TestCreateNote_OfflineStaysLocal(t *testing.T) {
	rem := newFakeRemote()
	rem.connected = false
	s, disp := setupStore(t, rem)
	ctx := context.Background()

	note, err := s.CreateNote(ctx, CreateNoteParams{Title: "offline"})
	require.NoError(t, err)
	disp.drain(ctx)

	assert.Empty(t, rem.createdNotes)
	assert.Equal(t, domain.LifecycleLocal, note.Lifecycle())
	assert.True(t, note.Modified())
}

func TestSaveNote_BumpsAndPushes(t *testing.T) {
	rem := newFakeRemote()
	seedRemoteNote(rem, "n1", "title", "body", 4)
	s, disp := setupStore(t, rem)
	ctx := context.Background()

	s.RefreshNotes(ctx)
	disp.drain(ctx)

	n, _ := s.Note("n1")
	n.Title = "edited"
	require.NoError(t, s.SaveNote(ctx, "n1"))
	assert.True(t, n.Modified())

	disp.drain(ctx)
	assert.Equal(t, []string{"n1"}, rem.savedNotes)
	assert.True(t, n.Synced())
	assert.Equal(t, "edited", rem.payloads["n1"].Title)
	requireSequenceInvariant(t, s)
}

func TestSaveNote_NeverSyncedIssuesCreate(t *testing.T) {
	rem := newFakeRemote()
	rem.connected = false
	s, disp := setupStore(t, rem)
	ctx := context.Background()

	note, err := s.CreateNote(ctx, CreateNoteParams{Title: "draft"})
	require.NoError(t, err)

	rem.connected = true
	require.NoError(t, s.SaveNote(ctx, note.GUID()))
	disp.drain(ctx)

	assert.Len(t, rem.createdNotes, 1)
	assert.Empty(t, rem.savedNotes)
}

func TestSaveNote_Unknown(t *testing.T) {
	rem := newFakeRemote()
	s, _ := setupStore(t, rem)
	err := s.SaveNote(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteNote_RemotePathKeepsTombstoneUntilAck(t *testing.T) {
	rem := newFakeRemote()
	seedRemoteNote(rem, "n1", "t", "c", 4)
	s, disp := setupStore(t, rem)
	ctx := context.Background()

	s.RefreshNotes(ctx)
	disp.drain(ctx)

	require.NoError(t, s.DeleteNote(ctx, "n1"))
	n, ok := s.Note("n1")
	require.True(t, ok, "note stays until the service confirms")
	assert.True(t, n.Deleted)

	disp.drain(ctx)
	assert.Equal(t, []string{"n1"}, rem.deletedNotes)
	_, ok = s.Note("n1")
	assert.False(t, ok)
}

func TestDeleteNote_LocalOnlyIsDroppedImmediately(t *testing.T) {
	rem := newFakeRemote()
	rem.connected = false
	s, disp := setupStore(t, rem)
	ctx := context.Background()

	note, err := s.CreateNote(ctx, CreateNoteParams{Title: "scratch"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteNote(ctx, note.GUID()))
	disp.drain(ctx)

	assert.Empty(t, s.Notes())
	assert.Empty(t, rem.deletedNotes)
}

func TestTagUntagNote(t *testing.T) {
	rem := newFakeRemote()
	seedRemoteNote(rem, "n1", "t", "c", 4)
	s, disp := setupStore(t, rem)
	ctx := context.Background()

	s.RefreshNotes(ctx)
	disp.drain(ctx)

	tag, err := s.CreateTag(ctx, CreateTagParams{Name: "urgent"})
	require.NoError(t, err)
	disp.drain(ctx)
	tagGUID := tag.GUID()

	require.NoError(t, s.TagNote(ctx, "n1", tagGUID))
	disp.drain(ctx)

	n, _ := s.Note("n1")
	assert.True(t, n.HasTag(tagGUID))
	assert.Equal(t, 1, tag.NoteCount())
	assert.Contains(t, rem.savedNotes, "n1")

	// tagging twice is a no-op
	saves := len(rem.savedNotes)
	require.NoError(t, s.TagNote(ctx, "n1", tagGUID))
	disp.drain(ctx)
	assert.Len(t, rem.savedNotes, saves)

	require.NoError(t, s.UntagNote(ctx, "n1", tagGUID))
	disp.drain(ctx)
	assert.False(t, n.HasTag(tagGUID))
	assert.Equal(t, 0, tag.NoteCount())
}

func TestRefreshNoteContent_NotFoundDropsNote(t *testing.T) {
	rem := newFakeRemote()
	s, disp := setupStore(t, rem)
	ctx := context.Background()

	local := domain.NewNote("gone", 4, 4)
	insertLocalNote(t, s, local)

	s.RefreshNoteContent(ctx, "gone", remote.LoadContent, dispatch.PriorityHigh)
	disp.drain(ctx)

	_, ok := s.Note("gone")
	assert.False(t, ok)
}

func TestRefreshNoteContent_StaleFetchDiscarded(t *testing.T) {
	rem := newFakeRemote()
	seedRemoteNote(rem, "n1", "old", "old body", 3)
	s, disp := setupStore(t, rem)
	ctx := context.Background()

	local := domain.NewNote("n1", 7, 3)
	local.Title = "newer local"
	local.Content = "newer local body"
	local.Loaded = true
	insertLocalNote(t, s, local)

	s.RefreshNoteContent(ctx, "n1", remote.LoadContent, dispatch.PriorityHigh)
	disp.drain(ctx)

	n, _ := s.Note("n1")
	assert.Equal(t, "newer local body", n.Content)
	assert.Equal(t, int64(7), n.UpdateSequenceNumber)
}

func TestErrorQueue_AuthExpired(t *testing.T) {
	rem := newFakeRemote()
	rem.failWith["fetchNotebooks"] = remote.NewError(remote.KindAuthExpired, "token expired")
	s, disp := setupStore(t, rem)
	ctx := context.Background()

	s.RefreshNotebooks(ctx)
	disp.drain(ctx)

	require.Equal(t, 1, s.ErrorCount())
	assert.Contains(t, s.Error(), "Authentication for the notes server expired")
	s.ClearError()
	assert.Equal(t, 0, s.ErrorCount())
	assert.Equal(t, "", s.Error())
}

func TestErrorQueue_OldestFirst(t *testing.T) {
	rem := newFakeRemote()
	rem.failWith["fetchNotebooks"] = remote.NewError(remote.KindRateLimited, "slow down")
	rem.failWith["fetchTags"] = remote.NewError(remote.KindQuotaExceeded, "quota")
	s, disp := setupStore(t, rem)
	ctx := context.Background()

	s.RefreshNotebooks(ctx)
	disp.drain(ctx)
	s.RefreshTags(ctx)
	disp.drain(ctx)

	require.Equal(t, 2, s.ErrorCount())
	assert.Contains(t, s.Error(), "Rate limit")
	s.ClearError()
	assert.Contains(t, s.Error(), "quota")
}

func TestSaveNote_TransportErrorFlagsSyncError(t *testing.T) {
	rem := newFakeRemote()
	seedRemoteNote(rem, "n1", "t", "c", 4)
	s, disp := setupStore(t, rem)
	ctx := context.Background()

	s.RefreshNotes(ctx)
	disp.drain(ctx)

	rem.failWith["saveNote"] = remote.NewError(remote.KindTransport, "connection reset")
	require.NoError(t, s.SaveNote(ctx, "n1"))
	disp.drain(ctx)

	n, _ := s.Note("n1")
	assert.True(t, n.SyncError)
	assert.True(t, n.Modified(), "the local change survives the failed push")
	assert.Equal(t, 0, s.ErrorCount(), "transport errors are per-entity, not user errors")
	requireSequenceInvariant(t, s)
}

func TestSetAccount_ReplaysCacheOffline(t *testing.T) {
	rem := newFakeRemote()
	rem.connected = false
	dir := t.TempDir()
	s, _ := setupStoreAt(t, rem, dir)
	ctx := context.Background()

	note, err := s.CreateNote(ctx, CreateNoteParams{Title: "persisted"})
	require.NoError(t, err)
	guid := note.GUID()
	require.NoError(t, s.Close())

	s2, _ := setupStoreAt(t, rem, dir)
	got, ok := s2.Note(guid)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.UpdateSequenceNumber)
	assert.Equal(t, int64(0), got.LastSyncedSequenceNumber)
	assert.Equal(t, domain.LifecycleLocal, got.Lifecycle())
}

func TestSetAccount_SwitchDropsState(t *testing.T) {
	rem := newFakeRemote()
	rem.connected = false
	s, _ := setupStore(t, rem)
	ctx := context.Background()

	_, err := s.CreateNote(ctx, CreateNoteParams{Title: "alice's"})
	require.NoError(t, err)

	require.NoError(t, s.SetAccount(ctx, "other"))
	assert.Empty(t, s.Notes())
	assert.Equal(t, "other", s.Account())
}

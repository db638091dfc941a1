package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesync/internal/domain"
	"notesync/internal/logging"
)

func openCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(context.Background(), t.TempDir(), "tester", logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpen_CreatesAccountDirAndPurgesLocks(t *testing.T) {
	dir := t.TempDir()
	accountDir := filepath.Join(dir, "tester")
	require.NoError(t, os.MkdirAll(accountDir, 0o700))

	stale := filepath.Join(accountDir, "sync.db.lock")
	require.NoError(t, os.WriteFile(stale, []byte("pid 1234"), 0o600))

	c, err := Open(context.Background(), dir, "tester", logging.Nop())
	require.NoError(t, err)
	defer c.Close()

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale lock file must be removed")
	assert.Equal(t, filepath.Join(accountDir, "sync.db"), c.Path())
}

func TestPutAndLoadKind(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, domain.KindNote, "n1", 5, 3))
	require.NoError(t, c.Put(ctx, domain.KindNote, "n2", 7, 7))
	require.NoError(t, c.Put(ctx, domain.KindNotebook, "b1", 2, 2))

	records, err := c.LoadKind(ctx, domain.KindNote)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, Record{GUID: "n1", UpdateSequenceNumber: 5, LastSyncedSequenceNumber: 3}, records[0])
	assert.Equal(t, Record{GUID: "n2", UpdateSequenceNumber: 7, LastSyncedSequenceNumber: 7}, records[1])

	records, err = c.LoadKind(ctx, domain.KindTag)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPut_Upserts(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, domain.KindNote, "n1", 1, 0))
	require.NoError(t, c.Put(ctx, domain.KindNote, "n1", 4, 4))

	records, err := c.LoadKind(ctx, domain.KindNote)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(4), records[0].UpdateSequenceNumber)
	assert.Equal(t, int64(4), records[0].LastSyncedSequenceNumber)
}

func TestRemove(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, domain.KindTag, "t1", 1, 1))
	require.NoError(t, c.Remove(ctx, domain.KindTag, "t1"))
	require.NoError(t, c.Remove(ctx, domain.KindTag, "t1")) // absent is fine

	records, err := c.LoadKind(ctx, domain.KindTag)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReplaceGUID(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, domain.KindNote, "tmp-1", 1, 0))
	require.NoError(t, c.ReplaceGUID(ctx, domain.KindNote, "tmp-1", "real-1", 12, 12))

	records, err := c.LoadKind(ctx, domain.KindNote)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "real-1", records[0].GUID)
	assert.Equal(t, int64(12), records[0].UpdateSequenceNumber)
	assert.Equal(t, int64(12), records[0].LastSyncedSequenceNumber)
}

func TestReopen_KeepsState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := Open(ctx, dir, "tester", logging.Nop())
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, domain.KindNotebook, "b1", 3, 3))
	require.NoError(t, c.Close())

	c, err = Open(ctx, dir, "tester", logging.Nop())
	require.NoError(t, err)
	defer c.Close()

	records, err := c.LoadKind(ctx, domain.KindNotebook)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b1", records[0].GUID)
}

func TestAccountsAreIsolated(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a, err := Open(ctx, dir, "alice", logging.Nop())
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(ctx, dir, "bob", logging.Nop())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Put(ctx, domain.KindNote, "n1", 1, 1))

	records, err := b.LoadKind(ctx, domain.KindNote)
	require.NoError(t, err)
	assert.Empty(t, records)
}

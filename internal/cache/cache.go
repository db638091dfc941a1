// Package cache persists the sync state of every known entity: which entities
// exist, at which sequence number, and which sequence number the remote
// service last confirmed. On startup the cache is replayed to rebuild the
// in-memory repositories before any network activity, so the application is
// usable offline immediately.
//
// One SQLite database per account, kept under <dir>/<account>/sync.db.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"

	"notesync/internal/cache/migrations"
	"notesync/internal/dbx"
	"notesync/internal/domain"
	"notesync/internal/logging"

	_ "modernc.org/sqlite"
)

// Record is one persisted sync-state row.
type Record struct {
	GUID                     string
	UpdateSequenceNumber     int64
	LastSyncedSequenceNumber int64
}

// Cache is the durable sync-state store for one account.
type Cache struct {
	db   *sql.DB
	path string
	log  logging.Logger
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open prepares the cache for an account: creates the account directory,
// purges stale lock artifacts from a previous unclean shutdown, opens the
// database and applies migrations.
func Open(ctx context.Context, dir, account string, logger logging.Logger) (*Cache, error) {
	accountDir := filepath.Join(dir, account)
	if err := os.MkdirAll(accountDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create account dir: %w", err)
	}

	locks, _ := filepath.Glob(filepath.Join(accountDir, "*.lock"))
	for _, lock := range locks {
		logger.Debug(ctx, "removing stale lock file", "path", lock)
		_ = os.Remove(lock)
	}

	path := filepath.Join(accountDir, "sync.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate cache db: %w", err)
	}

	return &Cache{db: db, path: path, log: logger}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Path returns the cache database location, mainly for logging.
func (c *Cache) Path() string { return c.path }

// Put upserts the sync state for one entity.
func (c *Cache) Put(ctx context.Context, kind domain.Kind, guid string, usn, lastSynced int64) error {
	query := `INSERT INTO sync_state (kind, guid, usn, last_synced_usn)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, guid) DO UPDATE SET usn = excluded.usn,
			last_synced_usn = excluded.last_synced_usn
	`
	_, err := c.db.ExecContext(ctx, query, string(kind), guid, usn, lastSynced)
	if err != nil {
		return fmt.Errorf("failed to upsert sync state: %w", err)
	}
	return nil
}

// Remove drops the sync state of one entity. Removing an absent record is not
// an error.
func (c *Cache) Remove(ctx context.Context, kind domain.Kind, guid string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM sync_state WHERE kind = ? AND guid = ?`, string(kind), guid)
	if err != nil {
		return fmt.Errorf("failed to delete sync state: %w", err)
	}
	return nil
}

// ReplaceGUID re-keys an entity after the remote service assigned its final
// identifier. The old record is dropped and the new one written in a single
// transaction so a crash never leaves both or neither.
func (c *Cache) ReplaceGUID(ctx context.Context, kind domain.Kind, oldGUID, newGUID string, usn, lastSynced int64) error {
	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM sync_state WHERE kind = ? AND guid = ?`, string(kind), oldGUID); err != nil {
			return fmt.Errorf("failed to drop old guid: %w", err)
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO sync_state (kind, guid, usn, last_synced_usn)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(kind, guid) DO UPDATE SET usn = excluded.usn,
				last_synced_usn = excluded.last_synced_usn`,
			string(kind), newGUID, usn, lastSynced)
		if err != nil {
			return fmt.Errorf("failed to insert new guid: %w", err)
		}
		return nil
	})
}

// LoadKind returns all persisted records of one entity kind, in insertion
// order (rowid), for startup replay.
func (c *Cache) LoadKind(ctx context.Context, kind domain.Kind) ([]Record, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT guid, usn, last_synced_usn FROM sync_state WHERE kind = ? ORDER BY rowid`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to select sync state: %w", err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.GUID, &r.UpdateSequenceNumber, &r.LastSyncedSequenceNumber); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

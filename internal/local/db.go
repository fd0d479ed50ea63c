// Package local provides the durable on-device storage behind the document store.
//
// State lives in an embedded SQLite database (ncruces/go-sqlite3, WAL mode):
//   - local_state: one row per identity holding the full store state as JSON
//   - migration_markers: one row per identity whose legacy migration is done
//
// The database is the local-first half of cvsync: the store writes through to
// it on every mutation, so reopening the CLI or restarting the preview server
// never loses edits that were not yet pushed to the remote store.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	"github.com/resumely/cvsync/internal/store"
)

// DB wraps the SQLite connection.
type DB struct {
	conn   *sql.DB
	path   string
	logger *zap.Logger
}

// Open creates or opens the local database at path and initializes its schema.
// A nil logger discards output.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := local.Open("~/.cvsync/local.db", logger)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single writer keeps write-through persistence strictly ordered.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn, path: path, logger: logger.Named("local")}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.InitSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection after a WAL checkpoint.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.Warn("failed to checkpoint WAL", zap.String("path", db.path), zap.Error(err))
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. It is idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS local_state (
		identity TEXT PRIMARY KEY,
		state TEXT NOT NULL,       -- JSON store.PersistedState
		is_dirty INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS migration_markers (
		identity TEXT PRIMARY KEY,
		completed_at TEXT NOT NULL,
		pushed INTEGER NOT NULL DEFAULT 0
	);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveState implements store.Persister.
func (db *DB) SaveState(identity string, state *store.PersistedState) error {
	return db.SaveStateContext(context.Background(), identity, state)
}

// SaveStateContext upserts the state row for identity.
func (db *DB) SaveStateContext(ctx context.Context, identity string, state *store.PersistedState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	query := `
	INSERT INTO local_state (identity, state, is_dirty, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(identity) DO UPDATE SET
		state = excluded.state,
		is_dirty = excluded.is_dirty,
		updated_at = excluded.updated_at
	`

	_, err = db.conn.ExecContext(ctx, query,
		identity,
		string(data),
		boolToInt(state.Meta.IsDirty),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save state for %q: %w", identity, err)
	}
	return nil
}

// LoadState implements store.Persister.
func (db *DB) LoadState(identity string) (*store.PersistedState, error) {
	return db.LoadStateContext(context.Background(), identity)
}

// LoadStateContext returns the stored state for identity, or nil if none exists.
func (db *DB) LoadStateContext(ctx context.Context, identity string) (*store.PersistedState, error) {
	var data string
	err := db.conn.QueryRowContext(ctx,
		`SELECT state FROM local_state WHERE identity = ?`, identity).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state for %q: %w", identity, err)
	}

	var state store.PersistedState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to parse state for %q: %w", identity, err)
	}
	return &state, nil
}

// DeleteState removes the stored state for identity. Missing rows are not an error.
func (db *DB) DeleteState(ctx context.Context, identity string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM local_state WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("failed to delete state for %q: %w", identity, err)
	}
	return nil
}

// DirtyIdentities returns identities whose local state has unsynced edits.
func (db *DB) DirtyIdentities(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT identity FROM local_state WHERE is_dirty = 1 ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dirty identities: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// IsMigrated reports whether the migration marker is set for identity.
func (db *DB) IsMigrated(ctx context.Context, identity string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM migration_markers WHERE identity = ?`, identity).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to read migration marker: %w", err)
	}
	return count > 0, nil
}

// MarkMigrated sets the migration marker for identity. Setting it twice is a no-op.
func (db *DB) MarkMigrated(ctx context.Context, identity string, pushed bool) error {
	query := `
	INSERT INTO migration_markers (identity, completed_at, pushed)
	VALUES (?, ?, ?)
	ON CONFLICT(identity) DO NOTHING
	`
	_, err := db.conn.ExecContext(ctx, query,
		identity,
		time.Now().UTC().Format(time.RFC3339),
		boolToInt(pushed),
	)
	if err != nil {
		return fmt.Errorf("failed to set migration marker: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/resumely/cvsync/internal/types"
)

// Dialect names a database/sql driver the SQL store can talk to.
type Dialect string

const (
	// DialectSQLite is an embedded SQLite file (ncruces/go-sqlite3).
	DialectSQLite Dialect = "sqlite3"
	// DialectLibSQL is a libSQL/Turso database (tursodatabase/go-libsql).
	DialectLibSQL Dialect = "libsql"
	// DialectPostgres is a PostgreSQL server (lib/pq).
	DialectPostgres Dialect = "postgres"
)

// ErrUnsupportedDialect is returned for unknown or unavailable drivers.
var ErrUnsupportedDialect = errors.New("unsupported remote dialect")

// ParseDialect validates a dialect name from configuration.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case DialectSQLite, DialectPostgres:
		return d, nil
	case DialectLibSQL:
		if !libsqlAvailable {
			return "", fmt.Errorf("%w: %s requires a cgo build", ErrUnsupportedDialect, d)
		}
		return d, nil
	case "sqlite":
		return DialectSQLite, nil
	case "postgresql", "pg":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, s)
	}
}

// SQLStore is a DocumentStore backed by a SQL database. One row per identity
// holds the document, the visibility map and the template id.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// OpenSQL opens dsn with the driver for dialect and initializes the schema.
//
// The caller MUST call Close() when done.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping remote database: %w", err)
	}

	s := NewSQLStore(db, dialect)
	if dialect == DialectSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}
	if err := s.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an already open database. The schema is not created.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close remote database: %w", err)
	}
	return nil
}

// InitSchema creates the documents table if it does not exist.
func (s *SQLStore) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cv_documents (
		identity TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		visibility TEXT NOT NULL,
		template_id TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize remote schema: %w", err)
	}
	return nil
}

// Load implements DocumentStore.
func (s *SQLStore) Load(ctx context.Context, identity string) (*Record, error) {
	if identity == "" {
		return nil, ErrIdentityRequired
	}

	var document, visibility, templateID, updatedAt string
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT document, visibility, template_id, updated_at
		FROM cv_documents WHERE identity = ?`), identity).
		Scan(&document, &visibility, &templateID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document for %q: %w", identity, err)
	}

	rec := &Record{Snapshot: types.EmptySnapshot()}
	if err := json.Unmarshal([]byte(document), &rec.Snapshot.Document); err != nil {
		return nil, fmt.Errorf("failed to parse document for %q: %w", identity, err)
	}
	var vis types.Visibility
	if err := json.Unmarshal([]byte(visibility), &vis); err != nil {
		return nil, fmt.Errorf("failed to parse visibility for %q: %w", identity, err)
	}
	rec.Snapshot.Visibility = vis.Normalize()
	if templateID != "" {
		rec.Snapshot.TemplateID = templateID
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for %q: %w", identity, err)
	}
	return rec, nil
}

// Save implements DocumentStore with an upsert keyed by identity.
func (s *SQLStore) Save(ctx context.Context, identity string, snap types.Snapshot) error {
	if identity == "" {
		return ErrIdentityRequired
	}

	document, err := json.Marshal(snap.Document)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	visibility, err := json.Marshal(snap.Visibility.Normalize())
	if err != nil {
		return fmt.Errorf("failed to marshal visibility: %w", err)
	}

	query := `
	INSERT INTO cv_documents (identity, document, visibility, template_id, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (identity) DO UPDATE SET
		document = excluded.document,
		visibility = excluded.visibility,
		template_id = excluded.template_id,
		updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		identity,
		string(document),
		string(visibility),
		snap.TemplateID,
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save document for %q: %w", identity, err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

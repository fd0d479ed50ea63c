// Package migrate moves the legacy local-only CV blob into the remote store.
//
// Migration runs at most once per identity. A marker records completion:
//
//  1. marker set: nothing is read or written
//  2. no legacy blob, or the blob has no meaningful content: the marker is set
//     without any remote write
//  3. meaningful content: the snapshot is saved remotely, then the marker is set
//
// A failed remote save leaves the marker unset so the next session retries.
// The remote save overwrites by value, which makes a retry after a crash
// between save and marker harmless.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/resumely/cvsync/internal/legacy"
	"github.com/resumely/cvsync/internal/remote"
)

var (
	// ErrMigrationFailed wraps every error that left the marker unset.
	ErrMigrationFailed = errors.New("legacy migration failed")

	// ErrIdentityRequired is returned when Run is called without an identity.
	ErrIdentityRequired = errors.New("migration requires an identity")
)

// Markers stores per-identity completion markers. local.DB implements it.
type Markers interface {
	IsMigrated(ctx context.Context, identity string) (bool, error)
	MarkMigrated(ctx context.Context, identity string, pushed bool) error
}

// backuper is implemented by legacy readers that can copy their source.
type backuper interface {
	Backup(now time.Time) (string, error)
}

// Options tunes a single run.
type Options struct {
	DryRun bool // Report what would happen without writing anything
	Backup bool // Copy the legacy blob aside before pushing
}

// Result describes what a run did.
type Result struct {
	Identity      string
	Skipped       bool   // Marker was already set
	Empty         bool   // No meaningful legacy content
	Pushed        bool   // Legacy content was saved remotely
	DryRun        bool   // Nothing was written
	LegacyVersion string // Version of the legacy blob, if any
	BackupCreated string // Path of the backup copy, if any
}

// Engine runs the migration.
type Engine struct {
	legacy  legacy.Reader
	remote  remote.DocumentStore
	markers Markers
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a migration engine. A nil logger discards output.
func New(reader legacy.Reader, docs remote.DocumentStore, markers Markers, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		legacy:  reader,
		remote:  docs,
		markers: markers,
		logger:  logger.Named("migrate"),
		now:     time.Now,
	}
}

// Run migrates legacy data for identity with default options.
func (e *Engine) Run(ctx context.Context, identity string) (*Result, error) {
	return e.RunWithOptions(ctx, identity, Options{})
}

// RunWithOptions migrates legacy data for identity.
func (e *Engine) RunWithOptions(ctx context.Context, identity string, opts Options) (*Result, error) {
	if identity == "" {
		return nil, ErrIdentityRequired
	}
	result := &Result{Identity: identity, DryRun: opts.DryRun}
	log := e.logger.With(zap.String("identity", identity))

	done, err := e.markers.IsMigrated(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	if done {
		result.Skipped = true
		return result, nil
	}

	blob, err := e.legacyBlob()
	if err != nil {
		log.Warn("failed to read legacy blob", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	if blob != nil {
		result.LegacyVersion = blob.Version
	}

	if blob == nil || !blob.Snapshot.Document.IsMeaningful() {
		result.Empty = true
		if opts.DryRun {
			return result, nil
		}
		if err := e.markers.MarkMigrated(ctx, identity, false); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
		}
		log.Info("no legacy content to migrate")
		return result, nil
	}

	if opts.DryRun {
		log.Info("dry run: legacy content would be pushed", zap.String("version", blob.Version))
		return result, nil
	}

	if opts.Backup {
		if b, ok := e.legacy.(backuper); ok {
			path, err := b.Backup(e.now())
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
			}
			result.BackupCreated = path
		}
	}

	if err := e.remote.Save(ctx, identity, blob.Snapshot); err != nil {
		log.Warn("failed to push legacy content, will retry next session", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	result.Pushed = true

	if err := e.markers.MarkMigrated(ctx, identity, true); err != nil {
		// Content is already remote; a retry re-saves the same value.
		return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	log.Info("migrated legacy content", zap.String("version", blob.Version))
	return result, nil
}

func (e *Engine) legacyBlob() (*legacy.Blob, error) {
	if e.legacy == nil {
		return nil, nil
	}
	return e.legacy.Read()
}

// MemoryMarkers is an in-memory Markers for sessions without local storage.
type MemoryMarkers struct {
	mu   sync.Mutex
	done map[string]bool
}

// NewMemoryMarkers returns an empty marker set.
func NewMemoryMarkers() *MemoryMarkers {
	return &MemoryMarkers{done: make(map[string]bool)}
}

// IsMigrated implements Markers.
func (m *MemoryMarkers) IsMigrated(_ context.Context, identity string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.done[identity]
	return ok, nil
}

// MarkMigrated implements Markers.
func (m *MemoryMarkers) MarkMigrated(_ context.Context, identity string, pushed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.done[identity]; !ok {
		m.done[identity] = pushed
	}
	return nil
}

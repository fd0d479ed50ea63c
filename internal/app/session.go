// Package app wires the cvsync components into one editing session.
//
// A Session owns the document store, the local and remote stores, the sync
// engine, the previewer and the exporter for one identity. Commands open a
// session, mutate the store and close the session, which flushes pending
// edits to the remote store before returning.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/resumely/cvsync/internal/config"
	"github.com/resumely/cvsync/internal/export"
	"github.com/resumely/cvsync/internal/identity"
	"github.com/resumely/cvsync/internal/legacy"
	"github.com/resumely/cvsync/internal/local"
	"github.com/resumely/cvsync/internal/migrate"
	"github.com/resumely/cvsync/internal/remote"
	"github.com/resumely/cvsync/internal/render"
	"github.com/resumely/cvsync/internal/store"
	cvsync "github.com/resumely/cvsync/internal/sync"
	"github.com/resumely/cvsync/internal/templates"
	"github.com/resumely/cvsync/internal/types"
	"github.com/resumely/cvsync/internal/ui"
)

var (
	// ErrPreviewDisabled is returned when no rendering service is configured.
	ErrPreviewDisabled = errors.New("preview disabled: set render.url")

	// ErrExportDisabled is returned when no conversion service is configured.
	ErrExportDisabled = errors.New("export disabled: set export.converter_url")
)

// Options overrides pieces of the session, mainly for tests.
type Options struct {
	Config *config.Config
	Logger *zap.Logger
	Clock  clock.Clock

	Remote    remote.DocumentStore
	Renderer  remote.Renderer
	Converter remote.Converter
	Legacy    legacy.Reader
}

// Session is one running editing session.
type Session struct {
	Config    *config.Config
	Identity  *identity.Identity
	Store     *store.Store
	Local     *local.DB
	Remote    remote.DocumentStore
	Migrator  *migrate.Engine
	Sync      *cvsync.Engine
	Previewer *render.Previewer
	Exporter  *export.Exporter
	Templates *templates.Catalog

	logger  *zap.Logger
	unsub   []func()
	closers []func() error
}

// Open builds a session from configuration. It does not start it.
func Open(ctx context.Context, opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var verifier *identity.Verifier
	if cfg.Auth.Secret != "" {
		verifier = identity.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Audience)
	}
	id, err := identity.Resolve(verifier, cfg.Token, cfg.Identity)
	if err != nil {
		return nil, err
	}

	catalog, err := templates.Load(cfg.Templates.Path)
	if err != nil {
		return nil, err
	}

	s := &Session{Config: cfg, Identity: id, Templates: catalog, logger: logger.Named("app")}
	ok := false
	defer func() {
		if !ok {
			_ = s.closeResources()
		}
	}()

	s.Local, err = local.Open(cfg.Local.Path, s.logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.Local.Close)

	s.Remote = opts.Remote
	if s.Remote == nil {
		if s.Remote, err = openRemote(ctx, cfg.Remote, s.logger); err != nil {
			return nil, err
		}
		if c, isCloser := s.Remote.(interface{ Close() error }); isCloser {
			s.closers = append(s.closers, c.Close)
		}
	}

	reader := opts.Legacy
	if reader == nil {
		reader = legacy.NewFileReader(cfg.Legacy.Path)
	}
	s.Migrator = migrate.New(reader, s.Remote, s.Local, logger)

	s.Store = store.New(s.Local, logger)

	syncCfg := cvsync.DefaultConfig()
	syncCfg.Debounce = cfg.Sync.Debounce
	syncCfg.RetryInterval = cfg.Sync.RetryInterval
	syncCfg.Clock = opts.Clock
	syncCfg.Logger = logger
	s.Sync = cvsync.NewWithConfig(s.Store, s.Remote, sessionMigrator{s.Migrator, cfg.Legacy.Backup}, syncCfg)
	s.closers = append(s.closers, s.Sync.Close)

	renderer := opts.Renderer
	if renderer == nil && cfg.Render.URL != "" {
		renderer = remote.NewHTTPRenderer(cfg.Render.URL, id.Token)
	}
	if renderer != nil {
		s.Previewer = render.NewPreviewer(renderer, &render.Config{
			Debounce: cfg.Render.Debounce,
			Cooldown: cfg.Render.Cooldown,
			Capacity: cfg.Render.Capacity,
			Clock:    opts.Clock,
			Logger:   logger,
		})
		s.closers = append(s.closers, s.Previewer.Close)
		s.Sync.OnIdentityChange(func(string) { s.Previewer.Reset() })
		s.unsub = append(s.unsub, s.Store.Subscribe(func(ch store.Change) {
			switch ch.Kind {
			case store.ChangeSynced, store.ChangeReset:
				// Nothing visible changed, or the previous session is being torn down.
				return
			}
			s.Previewer.Get(s.Store.Snapshot())
		}))
	}

	converter := opts.Converter
	if converter == nil && cfg.Export.ConverterURL != "" {
		converter = remote.NewHTTPConverter(cfg.Export.ConverterURL, id.Token)
	}
	if converter != nil && s.Previewer != nil {
		var fetcher export.StyleFetcher
		if cfg.Export.FetchStyles {
			fetcher = export.NewHTTPStyleFetcher()
		}
		surface := export.NewPreviewSurface(s.Store, s.Previewer, cfg.Render.URL)
		s.Exporter = export.New(surface, converter, fetcher, logger)
	}

	ok = true
	return s, nil
}

func openRemote(ctx context.Context, cfg config.RemoteConfig, logger *zap.Logger) (remote.DocumentStore, error) {
	if cfg.DSN == "" {
		logger.Warn("no remote.dsn configured, documents are kept in memory only")
		return remote.NewMemoryStore(), nil
	}
	dialect, err := remote.ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return remote.OpenSQL(ctx, dialect, cfg.DSN)
}

// sessionMigrator applies the configured backup option to every run.
type sessionMigrator struct {
	engine *migrate.Engine
	backup bool
}

func (m sessionMigrator) Run(ctx context.Context, identity string) (*migrate.Result, error) {
	return m.engine.RunWithOptions(ctx, identity, migrate.Options{Backup: m.backup})
}

// Start begins the session for the resolved identity.
func (s *Session) Start(ctx context.Context) error {
	return s.Sync.Start(ctx, s.Identity.Subject)
}

// SetTemplate selects a template from the catalog.
func (s *Session) SetTemplate(id string) error {
	if _, err := s.Templates.Lookup(id); err != nil {
		return err
	}
	s.Store.SetTemplate(id)
	return nil
}

// RenderNow renders the current document, bypassing the debounce.
func (s *Session) RenderNow(ctx context.Context) (string, error) {
	if s.Previewer == nil {
		return "", ErrPreviewDisabled
	}
	return s.Previewer.Render(ctx, s.Store.Snapshot())
}

// Export renders the current document if needed and converts it into a file
// in dir.
func (s *Session) Export(ctx context.Context, dir string) (*export.Result, error) {
	if s.Exporter == nil {
		if s.Previewer == nil {
			return nil, ErrPreviewDisabled
		}
		return nil, ErrExportDisabled
	}
	if _, err := s.RenderNow(ctx); err != nil {
		return nil, fmt.Errorf("failed to render preview: %w", err)
	}
	return s.Exporter.Export(ctx, dir)
}

// Discard drops unsynced local edits and reloads the remote document. The
// session is restarted for the same identity.
func (s *Session) Discard(ctx context.Context) error {
	identity := s.Identity.Subject
	if err := s.Sync.SwitchIdentity(ctx, ""); err != nil {
		return err
	}
	if err := s.Local.DeleteState(ctx, identity); err != nil {
		return err
	}
	return s.Sync.Start(ctx, identity)
}

// PendingElsewhere lists other identities with edits that were never pushed.
func (s *Session) PendingElsewhere(ctx context.Context) ([]string, error) {
	ids, err := s.Local.DirtyIdentities(ctx)
	if err != nil {
		return nil, err
	}
	out := ids[:0]
	for _, id := range ids {
		if id != s.Identity.Subject {
			out = append(out, id)
		}
	}
	return out, nil
}

// Status summarizes the session for display.
func (s *Session) Status() ui.Status {
	snap := s.Store.Snapshot()
	st := ui.Status{
		Identity:     s.Sync.Identity(),
		SyncState:    s.Sync.State().String(),
		Dirty:        s.Store.IsDirty(),
		LastSyncedAt: s.Store.LastSyncedAt(),
		Template:     s.Templates.Resolve(snap.TemplateID),
	}
	for _, sec := range types.OptionalSections {
		st.Sections = append(st.Sections, ui.SectionCount{
			Name:    string(sec),
			Count:   snap.Document.Count(sec),
			Visible: snap.Visibility.IsVisible(sec),
		})
	}
	return st
}

// Close flushes pending edits, waiting at most timeout, then releases every
// resource. The flush error is returned; the local state keeps the edits
// dirty for the next session either way.
func (s *Session) Close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	flushErr := s.Sync.Flush(ctx)
	if flushErr != nil && !errors.Is(flushErr, cvsync.ErrClosed) {
		s.logger.Warn("failed to flush on close, edits stay queued locally", zap.Error(flushErr))
	} else {
		flushErr = nil
	}
	if err := s.closeResources(); err != nil {
		return err
	}
	return flushErr
}

func (s *Session) closeResources() error {
	for _, fn := range s.unsub {
		fn()
	}
	s.unsub = nil

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

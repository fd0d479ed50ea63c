package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/resumely/cvsync/internal/debounce"
	"github.com/resumely/cvsync/internal/migrate"
	"github.com/resumely/cvsync/internal/remote"
	"github.com/resumely/cvsync/internal/render"
	"github.com/resumely/cvsync/internal/store"
	"github.com/resumely/cvsync/internal/types"
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("sync engine is closed")

// Config holds configuration for the engine.
type Config struct {
	// Debounce is the quiet period after the last mutation before a push.
	Debounce time.Duration

	// RetryInterval re-arms a push after a failed one. Zero disables retries;
	// the next mutation or Flush still retries.
	RetryInterval time.Duration

	// Clock drives timers. Nil means the wall clock.
	Clock clock.Clock

	// Logger for engine activity. Nil discards output.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce:      2 * time.Second,
		RetryInterval: 30 * time.Second,
	}
}

// Migrator runs the one-time legacy migration for an identity.
type Migrator interface {
	Run(ctx context.Context, identity string) (*migrate.Result, error)
}

// Engine pushes store state to the remote store.
type Engine struct {
	store    *store.Store
	remote   remote.DocumentStore
	migrator Migrator
	config   *Config
	clock    clock.Clock
	logger   *zap.Logger
	debounce *debounce.Debouncer

	// opMu serializes applying remote results to the store with identity
	// switches. Lock order: opMu, then mu.
	opMu sync.Mutex
	// base is the fingerprint of the last snapshot known to equal the remote
	// record. Guarded by opMu.
	base string
	// unloaded is set when the session started without reading the remote
	// record. The next push reads it first. Guarded by opMu.
	unloaded bool

	mu         sync.Mutex
	state      State
	identity   string
	generation uint64
	pushing    bool
	pushAgain  bool
	pushDone   chan struct{}
	closed     bool
	hooks      []func(identity string)
	subs       map[int]func(Event)
	nextSub    int

	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates an engine with default configuration.
//
// migrator may be nil when there is no legacy data to consider.
func New(st *store.Store, docs remote.DocumentStore, migrator Migrator, logger *zap.Logger) *Engine {
	cfg := DefaultConfig()
	cfg.Logger = logger
	return NewWithConfig(st, docs, migrator, cfg)
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(st *store.Store, docs remote.DocumentStore, migrator Migrator, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:    st,
		remote:   docs,
		migrator: migrator,
		config:   config,
		clock:    clk,
		logger:   logger.Named("sync"),
		debounce: debounce.New(clk, config.Debounce),
		subs:     make(map[int]func(Event)),
		ctx:      ctx,
		cancel:   cancel,
	}
	e.unsubscribe = st.Subscribe(e.onChange)
	return e
}

// Start begins a session for identity: legacy migration runs to completion,
// then local state is restored. Dirty local state is kept and a push is
// armed; otherwise the remote record is loaded into the store. An unreachable
// remote store does not fail Start: the session continues on local state and
// the record is read again before the first push.
func (e *Engine) Start(ctx context.Context, identity string) error {
	return e.SwitchIdentity(ctx, identity)
}

// SwitchIdentity abandons the current session and starts one for identity.
// An empty identity logs out: the store is left empty and nothing is pushed.
func (e *Engine) SwitchIdentity(ctx context.Context, identity string) error {
	e.debounce.Cancel()

	e.opMu.Lock()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.opMu.Unlock()
		return ErrClosed
	}
	e.generation++
	gen := e.generation
	e.identity = identity
	e.pushing = false
	e.pushAgain = false
	e.state = Idle
	hooks := append([]func(string){}, e.hooks...)
	e.mu.Unlock()

	e.base = ""
	e.unloaded = false
	e.store.Reset(identity)
	e.opMu.Unlock()

	for _, hook := range hooks {
		hook(identity)
	}
	e.emit(Event{Kind: EventIdentityChanged, Identity: identity, State: Idle})

	if identity == "" {
		e.logger.Info("signed out")
		return nil
	}
	return e.begin(ctx, gen, identity)
}

func (e *Engine) begin(ctx context.Context, gen uint64, identity string) error {
	log := e.logger.With(zap.String("identity", identity))

	if e.migrator != nil {
		if res, err := e.migrator.Run(ctx, identity); err != nil {
			log.Warn("legacy migration failed, will retry next session", zap.Error(err))
		} else if res.Pushed {
			log.Info("legacy document migrated")
		}
	}

	e.opMu.Lock()
	if !e.isCurrent(gen) {
		e.opMu.Unlock()
		return nil
	}
	found, err := e.store.Restore(identity)
	e.opMu.Unlock()
	if err != nil {
		log.Warn("failed to restore local state", zap.Error(err))
	}

	if found && e.store.IsDirty() {
		log.Info("restored unsynced local edits")
		e.arm()
		return nil
	}

	rec, err := e.remote.Load(ctx, identity)
	if err != nil {
		log.Warn("failed to load remote document, continuing with local state", zap.Error(err))
		e.opMu.Lock()
		if e.isCurrent(gen) {
			e.unloaded = true
		}
		e.opMu.Unlock()
		e.emit(Event{Kind: EventLoadFailed, Identity: identity, State: e.State(), Err: err})
		return nil
	}

	e.opMu.Lock()
	hydrated := false
	if e.isCurrent(gen) && !e.store.IsDirty() {
		if rec != nil {
			e.store.Hydrate(rec.Snapshot, rec.UpdatedAt)
			e.base = render.Fingerprint(rec.Snapshot)
			hydrated = true
		} else if !found {
			e.base = render.Fingerprint(e.store.Snapshot())
		}
	}
	e.opMu.Unlock()

	if hydrated {
		log.Debug("hydrated from remote", zap.Time("updated_at", rec.UpdatedAt))
		e.emit(Event{Kind: EventHydrated, Identity: identity, State: e.State()})
	}
	return nil
}

// Refocus refetches the remote record. Dirty local state wins; a remote change
// since the last sync is reported as a Conflict event. Clean local state
// adopts a changed remote record.
func (e *Engine) Refocus(ctx context.Context) error {
	e.mu.Lock()
	gen, identity, closed := e.generation, e.identity, e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if identity == "" {
		return nil
	}

	rec, err := e.remote.Load(ctx, identity)
	if err != nil {
		e.logger.Warn("refocus refetch failed", zap.String("identity", identity), zap.Error(err))
		return fmt.Errorf("failed to refetch remote document: %w", err)
	}
	if rec == nil {
		return nil
	}
	fp := render.Fingerprint(rec.Snapshot)

	var ev *Event
	e.opMu.Lock()
	if e.isCurrent(gen) {
		e.unloaded = false
		switch {
		case e.store.IsDirty() || e.isPushing():
			if e.remoteChangedLocked(fp, rec) {
				ev = &Event{Kind: EventConflict, Identity: identity, Conflict: &Conflict{
					Identity:        identity,
					RemoteUpdatedAt: rec.UpdatedAt,
					LastSyncedAt:    e.store.LastSyncedAt(),
					Remote:          rec.Snapshot,
				}}
			}
		case fp != render.Fingerprint(e.store.Snapshot()):
			e.store.Hydrate(rec.Snapshot, rec.UpdatedAt)
			e.base = fp
			ev = &Event{Kind: EventHydrated, Identity: identity}
		default:
			e.base = fp
		}
	}
	e.opMu.Unlock()

	if ev != nil {
		ev.State = e.State()
		if ev.Kind == EventConflict {
			e.logger.Warn("remote document changed while local edits are pending; keeping local",
				zap.String("identity", identity),
				zap.Time("remote_updated_at", rec.UpdatedAt))
		}
		e.emit(*ev)
	}
	return nil
}

// remoteChangedLocked reports whether the remote record differs from the last
// known synced state. Without a known base the remote timestamp decides.
func (e *Engine) remoteChangedLocked(fp string, rec *remote.Record) bool {
	if fp == render.Fingerprint(e.store.Snapshot()) {
		return false
	}
	if e.base != "" {
		return fp != e.base
	}
	last := e.store.LastSyncedAt()
	return last == nil || rec.UpdatedAt.After(*last)
}

// Flush pushes immediately if the store is dirty, waiting for an in-flight
// push first. It returns the push error, if any.
func (e *Engine) Flush(ctx context.Context) error {
	e.debounce.Cancel()

	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return ErrClosed
		}
		if !e.pushing {
			break
		}
		done := e.pushDone
		e.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if e.identity == "" || !e.store.IsDirty() {
		changed := e.setStateLocked(Idle)
		e.mu.Unlock()
		e.emitState(changed)
		return nil
	}
	gen, identity := e.generation, e.identity
	done := e.beginPushLocked()
	e.mu.Unlock()
	e.emitState(true)

	if err := e.push(ctx, gen, identity, done); err != nil {
		return fmt.Errorf("failed to push document: %w", err)
	}
	return nil
}

// onChange reacts to store changes. Only user mutations arm a push.
func (e *Engine) onChange(ch store.Change) {
	if ch.Kind != store.ChangeMutation {
		return
	}
	e.mu.Lock()
	if e.closed || e.identity == "" || ch.Identity != e.identity {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.arm()
}

// arm restarts the quiet period.
func (e *Engine) arm() {
	e.mu.Lock()
	changed := false
	if e.state == Idle {
		changed = e.setStateLocked(PendingPush)
	}
	e.mu.Unlock()

	e.debounce.Schedule(e.fire)
	e.emitState(changed)
}

// fire runs when the quiet period elapsed or a retry is due.
func (e *Engine) fire() {
	e.mu.Lock()
	if e.closed || e.identity == "" {
		e.mu.Unlock()
		return
	}
	if e.pushing {
		e.pushAgain = true
		e.mu.Unlock()
		return
	}
	if !e.store.IsDirty() {
		changed := e.setStateLocked(Idle)
		e.mu.Unlock()
		e.emitState(changed)
		return
	}
	gen, identity := e.generation, e.identity
	done := e.beginPushLocked()
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	e.emitState(true)
	_ = e.push(e.ctx, gen, identity, done)
}

func (e *Engine) beginPushLocked() chan struct{} {
	e.pushing = true
	e.pushAgain = false
	e.pushDone = make(chan struct{})
	e.setStateLocked(Pushing)
	return e.pushDone
}

// push saves the current snapshot and applies the acknowledgment.
func (e *Engine) push(ctx context.Context, gen uint64, identity string, done chan struct{}) error {
	defer close(done)

	e.opMu.Lock()
	if !e.isCurrent(gen) {
		e.opMu.Unlock()
		return nil
	}
	snap, rev := e.store.SnapshotAt()
	unloaded := e.unloaded
	e.opMu.Unlock()

	if unloaded {
		e.catchUp(ctx, gen, identity, snap)
	}

	err := e.remote.Save(ctx, identity, snap)

	clean := false
	e.opMu.Lock()
	if !e.isCurrent(gen) {
		e.opMu.Unlock()
		e.logger.Debug("discarding push result for previous identity", zap.String("identity", identity))
		return nil
	}
	if err == nil {
		clean = e.store.MarkSynced(rev, e.clock.Now())
		e.base = render.Fingerprint(snap)
	}
	e.opMu.Unlock()

	e.mu.Lock()
	e.pushing = false
	again := e.pushAgain
	e.pushAgain = false
	next := PendingPush
	if err == nil && clean {
		next = Idle
	}
	e.setStateLocked(next)
	e.mu.Unlock()

	log := e.logger.With(zap.String("identity", identity), zap.Uint64("revision", rev))
	if err != nil {
		log.Warn("push failed, local state stays dirty", zap.Error(err))
		e.emit(Event{Kind: EventPushFailed, Identity: identity, State: next, Revision: rev, Err: err})
	} else {
		log.Debug("pushed document", zap.Bool("clean", clean))
		e.emit(Event{Kind: EventPushed, Identity: identity, State: next, Revision: rev})
	}

	switch {
	case again:
		e.fire()
	case err != nil && e.config.RetryInterval > 0 && !e.debounce.Pending():
		e.debounce.ScheduleAfter(e.config.RetryInterval, e.fire)
	}
	return err
}

// catchUp reads the remote record that could not be loaded at session start,
// just before the first push overwrites it. Local state still wins; a remote
// record that differs is reported as a Conflict event.
func (e *Engine) catchUp(ctx context.Context, gen uint64, identity string, local types.Snapshot) {
	rec, err := e.remote.Load(ctx, identity)
	if err != nil {
		e.logger.Debug("remote still unreachable before push", zap.String("identity", identity), zap.Error(err))
		return
	}

	var ev *Event
	e.opMu.Lock()
	if e.isCurrent(gen) {
		e.unloaded = false
		if rec != nil && render.Fingerprint(rec.Snapshot) != render.Fingerprint(local) {
			ev = &Event{Kind: EventConflict, Identity: identity, Conflict: &Conflict{
				Identity:        identity,
				RemoteUpdatedAt: rec.UpdatedAt,
				LastSyncedAt:    e.store.LastSyncedAt(),
				Remote:          rec.Snapshot,
			}}
		}
	}
	e.opMu.Unlock()

	if ev != nil {
		ev.State = e.State()
		e.logger.Warn("remote document differs from local edits made while offline; keeping local",
			zap.String("identity", identity),
			zap.Time("remote_updated_at", rec.UpdatedAt))
		e.emit(*ev)
	}
}

func (e *Engine) isCurrent(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && gen == e.generation
}

func (e *Engine) isPushing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pushing
}

func (e *Engine) setStateLocked(s State) bool {
	if e.state == s {
		return false
	}
	e.state = s
	return true
}

func (e *Engine) emitState(changed bool) {
	if !changed {
		return
	}
	e.mu.Lock()
	ev := Event{Kind: EventStateChanged, Identity: e.identity, State: e.state}
	e.mu.Unlock()
	e.emit(ev)
}

// State returns the current push state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Identity returns the identity of the current session.
func (e *Engine) Identity() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identity
}

// OnIdentityChange registers fn to run after every identity switch, before the
// new session loads. Render caches hook in here.
func (e *Engine) OnIdentityChange(fn func(identity string)) {
	e.mu.Lock()
	e.hooks = append(e.hooks, fn)
	e.mu.Unlock()
}

// Subscribe registers fn for engine events and returns a function that removes it.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *Engine) emit(ev Event) {
	e.mu.Lock()
	fns := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Close stops timers, cancels in-flight pushes and waits for them to return.
// Unpushed edits remain in local storage.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.debounce.Stop()
	e.unsubscribe()
	e.cancel()
	e.wg.Wait()
	return nil
}

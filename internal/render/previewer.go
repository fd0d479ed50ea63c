package render

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/resumely/cvsync/internal/debounce"
	"github.com/resumely/cvsync/internal/remote"
	"github.com/resumely/cvsync/internal/types"
)

// ErrClosed is returned by Render on a closed previewer.
var ErrClosed = errors.New("previewer is closed")

// Status is the state of the preview for the latest requested snapshot.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusRendering
	StatusReady
	StatusError
	StatusRateLimited
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusRendering:
		return "rendering"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	case StatusRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Result is the answer to a preview request.
type Result struct {
	Fingerprint string
	Artifact    string // empty unless Cached
	Cached      bool
	Status      Status
}

// Update is delivered to subscribers when the preview state changes.
type Update struct {
	Status      Status
	Fingerprint string
	Err         error
}

// Config holds configuration for the previewer.
type Config struct {
	// Debounce is the quiet period before a cache miss is rendered.
	Debounce time.Duration

	// Cooldown is the minimum spacing between remote render requests.
	Cooldown time.Duration

	// Capacity bounds the artifact cache.
	Capacity int

	// Clock drives timers and the rate limiter. Nil means the wall clock.
	Clock clock.Clock

	// Logger for previewer activity. Nil discards output.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce: 1500 * time.Millisecond,
		Cooldown: 2 * time.Second,
		Capacity: DefaultCapacity,
	}
}

// Previewer serves preview artifacts from the cache and schedules debounced,
// rate-limited remote renders on a miss. At most one render, scheduled or
// explicit, is in flight; a trigger during a flight re-runs afterwards with the
// latest input.
type Previewer struct {
	renderer remote.Renderer
	cache    *Cache
	limiter  *rate.Limiter
	debounce *debounce.Debouncer
	clock    clock.Clock
	logger   *zap.Logger

	mu          sync.Mutex
	status      Status
	lastErr     error
	currentFP   string
	pending     *types.Snapshot
	pendingFP   string
	readyAt     time.Time // reserved limiter slot, zero when none
	inFlight    bool
	flightDone  chan struct{} // closed when the current flight ends
	rerun       bool
	generation  uint64
	limitedSeen bool
	closed      bool
	subs        map[int]func(Update)
	nextSub     int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPreviewer creates a previewer. A nil config means DefaultConfig().
func NewPreviewer(renderer remote.Renderer, config *Config) *Previewer {
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

	limit := rate.Inf
	if config.Cooldown > 0 {
		limit = rate.Every(config.Cooldown)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Previewer{
		renderer: renderer,
		cache:    NewCache(config.Capacity),
		limiter:  rate.NewLimiter(limit, 1),
		debounce: debounce.New(clk, config.Debounce),
		clock:    clk,
		logger:   logger.Named("render"),
		subs:     make(map[int]func(Update)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Cache exposes the artifact cache.
func (p *Previewer) Cache() *Cache {
	return p.cache
}

// Get returns the cached artifact for snap, or schedules a render and returns
// a pending result. A hit never calls the renderer.
func (p *Previewer) Get(snap types.Snapshot) Result {
	fp := Fingerprint(snap)

	if art, ok := p.cache.Get(fp); ok {
		p.mu.Lock()
		p.currentFP = fp
		p.pending = nil
		p.pendingFP = ""
		changed := p.setStatusLocked(StatusReady, nil)
		p.mu.Unlock()

		p.debounce.Cancel()
		p.notify(changed, Update{Status: StatusReady, Fingerprint: fp})
		return Result{Fingerprint: fp, Artifact: art, Cached: true, Status: StatusReady}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Result{Fingerprint: fp, Status: StatusIdle}
	}
	cp := snap.Clone()
	p.currentFP = fp
	p.pending = &cp
	p.pendingFP = fp
	status := p.status
	changed := false
	if !p.inFlight {
		changed = p.setStatusLocked(StatusPending, nil)
		status = StatusPending
	}
	p.mu.Unlock()

	p.debounce.Schedule(p.fire)
	p.notify(changed, Update{Status: status, Fingerprint: fp})
	return Result{Fingerprint: fp, Status: status}
}

// Lookup returns the cached artifact for snap without scheduling anything.
func (p *Previewer) Lookup(snap types.Snapshot) (string, bool) {
	return p.cache.Get(Fingerprint(snap))
}

// Current returns the artifact for the most recently requested snapshot, if
// it has been rendered.
func (p *Previewer) Current() (artifact, fingerprint string, ok bool) {
	p.mu.Lock()
	fp := p.currentFP
	p.mu.Unlock()
	if fp == "" {
		return "", "", false
	}
	art, ok := p.cache.Get(fp)
	return art, fp, ok
}

// fire runs after the quiet period, after a limiter delay, or after a flight
// that saw another trigger.
func (p *Previewer) fire() {
	p.mu.Lock()
	if p.closed || p.pending == nil {
		p.mu.Unlock()
		return
	}
	if p.inFlight {
		p.rerun = true
		p.mu.Unlock()
		return
	}

	now := p.clock.Now()
	if p.readyAt.IsZero() {
		r := p.limiter.ReserveN(now, 1)
		if d := r.DelayFrom(now); d > 0 {
			p.readyAt = now.Add(d)
		}
	}
	if !p.readyAt.IsZero() && now.Before(p.readyAt) {
		wait := p.readyAt.Sub(now)
		p.mu.Unlock()
		p.logger.Debug("render delayed by cooldown", zap.Duration("wait", wait))
		p.debounce.ScheduleAfter(wait, p.fire)
		return
	}
	p.readyAt = time.Time{}

	snap, fp, gen := *p.pending, p.pendingFP, p.generation
	p.pending = nil
	p.pendingFP = ""
	p.beginFlightLocked()
	changed := p.setStatusLocked(StatusRendering, nil)
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	p.notify(changed, Update{Status: StatusRendering, Fingerprint: fp})

	html, err := p.renderer.Render(p.ctx, snap)

	p.mu.Lock()
	rerun := p.endFlightLocked()
	if gen != p.generation || p.closed {
		p.mu.Unlock()
		p.logger.Debug("discarding render for a previous session")
		return
	}
	update, emit := p.applyLocked(fp, html, err)
	if rerun {
		p.setStatusLocked(StatusPending, nil)
	}
	p.mu.Unlock()

	p.notify(emit, update)
	if rerun {
		p.fire()
	}
}

func (p *Previewer) beginFlightLocked() {
	p.inFlight = true
	p.flightDone = make(chan struct{})
}

// endFlightLocked releases the flight and reports whether a trigger arrived
// during it.
func (p *Previewer) endFlightLocked() bool {
	p.inFlight = false
	close(p.flightDone)
	rerun := p.rerun && p.pending != nil
	p.rerun = false
	return rerun
}

// applyLocked records the outcome of a render and returns the update to emit.
// A result for a snapshot that is no longer current is cached but leaves the
// status alone.
func (p *Previewer) applyLocked(fp, html string, err error) (Update, bool) {
	if fp != p.currentFP {
		if err == nil {
			p.cache.Put(fp, html)
		} else {
			p.logger.Debug("render for a superseded snapshot failed", zap.String("fingerprint", fp), zap.Error(err))
		}
		if p.pending != nil && p.setStatusLocked(StatusPending, nil) {
			return Update{Status: StatusPending, Fingerprint: p.currentFP}, true
		}
		return Update{}, false
	}

	switch {
	case err == nil:
		p.cache.Put(fp, html)
		p.limitedSeen = false
		p.setStatusLocked(StatusReady, nil)
		return Update{Status: StatusReady, Fingerprint: fp}, true
	case remote.IsRateLimited(err):
		first := !p.limitedSeen
		p.limitedSeen = true
		p.setStatusLocked(StatusRateLimited, err)
		if first {
			p.logger.Warn("preview renderer is rate limiting requests", zap.Error(err))
		}
		return Update{Status: StatusRateLimited, Fingerprint: fp, Err: err}, first
	default:
		p.setStatusLocked(StatusError, err)
		p.logger.Warn("preview render failed", zap.String("fingerprint", fp), zap.Error(err))
		return Update{Status: StatusError, Fingerprint: fp, Err: err}, true
	}
}

// Render returns the artifact for snap, rendering it now if it is not cached.
// It waits for any render already in flight and for the rate limiter, but
// skips the debounce. The result is cached.
func (p *Previewer) Render(ctx context.Context, snap types.Snapshot) (string, error) {
	fp := Fingerprint(snap)
	for {
		if art, ok := p.cache.Get(fp); ok {
			return art, nil
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return "", ErrClosed
		}
		if !p.inFlight {
			// The flight that just ended may have produced it.
			if art, ok := p.cache.Get(fp); ok {
				p.mu.Unlock()
				return art, nil
			}
			break
		}
		done := p.flightDone
		p.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	// p.mu is held here.
	gen := p.generation
	p.currentFP = fp
	p.beginFlightLocked()
	now := p.clock.Now()
	r := p.limiter.ReserveN(now, 1)
	p.mu.Unlock()

	var (
		html string
		err  error
	)
	if d := r.DelayFrom(now); d > 0 {
		select {
		case <-p.clock.After(d):
		case <-ctx.Done():
			r.CancelAt(p.clock.Now())
			err = ctx.Err()
		}
	}
	if err == nil {
		html, err = p.renderer.Render(ctx, snap)
	}

	p.mu.Lock()
	rerun := p.endFlightLocked()
	var (
		update Update
		emit   bool
	)
	if gen == p.generation && !p.closed && (err == nil || ctx.Err() == nil) {
		update, emit = p.applyLocked(fp, html, err)
	}
	if rerun {
		p.setStatusLocked(StatusPending, nil)
	}
	p.mu.Unlock()
	p.notify(emit, update)
	if rerun {
		p.fire()
	}

	if err != nil {
		return "", err
	}
	return html, nil
}

// Status returns the current preview status and the error that caused it.
func (p *Previewer) Status() (Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.lastErr
}

// Reset drops cached artifacts and pending work. Renders already in flight
// finish but their results are discarded.
func (p *Previewer) Reset() {
	p.debounce.Cancel()

	p.mu.Lock()
	p.generation++
	p.pending = nil
	p.pendingFP = ""
	p.currentFP = ""
	p.rerun = false
	p.limitedSeen = false
	changed := p.setStatusLocked(StatusIdle, nil)
	p.mu.Unlock()

	p.cache.Clear()
	p.notify(changed, Update{Status: StatusIdle})
}

func (p *Previewer) setStatusLocked(s Status, err error) bool {
	changed := p.status != s
	p.status = s
	p.lastErr = err
	return changed
}

// Subscribe registers fn for preview updates and returns a function that removes it.
func (p *Previewer) Subscribe(fn func(Update)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *Previewer) notify(emit bool, u Update) {
	if !emit {
		return
	}
	p.mu.Lock()
	fns := make([]func(Update), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}

// Close stops scheduling, cancels the in-flight render and waits for it.
func (p *Previewer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.debounce.Stop()
	p.cancel()
	p.wg.Wait()
	return nil
}

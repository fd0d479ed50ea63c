// Package debounce provides a trailing-edge debouncer driven by an injectable clock.
//
// Every Schedule cancels the previously scheduled call and starts a new quiet
// period. Only the last call in a burst runs. A token check guards the race
// where a timer fires just as it is being replaced.
package debounce

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Debouncer delays a function until no new Schedule call arrived for Delay.
type Debouncer struct {
	clock clock.Clock
	delay time.Duration

	mu      sync.Mutex
	timer   *clock.Timer
	token   uint64
	stopped bool
}

// New creates a debouncer. A nil clock means the wall clock.
func New(c clock.Clock, delay time.Duration) *Debouncer {
	if c == nil {
		c = clock.New()
	}
	return &Debouncer{clock: c, delay: delay}
}

// Delay returns the quiet period.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Schedule replaces any pending call with fn, to run after the quiet period.
func (d *Debouncer) Schedule(fn func()) {
	d.ScheduleAfter(d.delay, fn)
}

// ScheduleAfter is Schedule with an explicit delay for this call.
func (d *Debouncer) ScheduleAfter(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.cancelLocked()
	d.token++
	tok := d.token
	d.timer = d.clock.AfterFunc(delay, func() {
		d.mu.Lock()
		if d.stopped || tok != d.token {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending call, if any, and reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelLocked()
}

func (d *Debouncer) cancelLocked() bool {
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	// Invalidate a callback that already fired but has not taken the lock yet.
	d.token++
	return true
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels the pending call and rejects further scheduling.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}

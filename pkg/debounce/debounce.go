// Package debounce delays propagation of rapidly changing input until it has
// been stable for a fixed duration.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the settle time used by the list screens for search input.
const DefaultDelay = 500 * time.Millisecond

// Debouncer runs the most recently scheduled function once no new call has
// arrived for the configured duration.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
	pending  func()
	seq      uint64
	stopped  bool
}

// New creates a debouncer with the given settle duration.
func New(duration time.Duration) *Debouncer {
	return &Debouncer{duration: duration}
}

// Debounce schedules fn, replacing any pending function and restarting the
// timer. Calls after Stop are ignored.
func (d *Debouncer) Debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	d.seq++
	seq := d.seq
	d.pending = fn
	d.timer = time.AfterFunc(d.duration, func() { d.fire(seq) })
}

// fire runs the pending function if it is still the one scheduled as seq.
// A timer that lost the race with Debounce, Cancel or Stop does nothing.
func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if d.stopped || seq != d.seq || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	fn()
}

// Cancel discards any pending function.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.seq++
}

// Flush runs the pending function now, if there is one. It reports whether
// anything ran.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	fn := d.pending
	d.cancelLocked()
	d.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}

// Immediate cancels any pending call and runs fn synchronously.
func (d *Debouncer) Immediate(fn func()) {
	d.Cancel()
	fn()
}

// Pending reports whether a function is waiting for the timer.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop discards any pending function and ignores all further calls.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}

package debounce

import (
	"sync"
	"time"
)

// Value holds an input value and its debounced counterpart. Get lags Set by
// the settle duration; a burst of Sets yields one propagation of the last
// value.
type Value[T comparable] struct {
	mu       sync.Mutex
	raw      T
	stable   T
	gen      uint64
	closed   bool
	deb      *Debouncer
	onChange func(T)
}

// NewValue creates a Value whose debounced side starts at initial. onChange,
// if non-nil, is called from the timer goroutine whenever the debounced value
// changes.
func NewValue[T comparable](initial T, duration time.Duration, onChange func(T)) *Value[T] {
	return &Value[T]{
		raw:      initial,
		stable:   initial,
		deb:      New(duration),
		onChange: onChange,
	}
}

// Set records v and restarts the settle timer. Only the propagation
// scheduled by the latest Set or Reset may update the debounced value.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.raw = val
	v.gen++
	gen := v.gen
	v.mu.Unlock()

	v.deb.Debounce(func() { v.propagate(gen) })
}

// Reset sets both sides to val at once, discarding any pending update.
// onChange is not called.
func (v *Value[T]) Reset(val T) {
	v.deb.Cancel()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.raw = val
	v.stable = val
	v.gen++
}

func (v *Value[T]) propagate(gen uint64) {
	v.mu.Lock()
	if v.closed || gen != v.gen || v.raw == v.stable {
		v.mu.Unlock()
		return
	}
	v.stable = v.raw
	val := v.stable
	cb := v.onChange
	v.mu.Unlock()

	if cb != nil {
		cb(val)
	}
}

// Get returns the debounced value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stable
}

// Raw returns the most recent input.
func (v *Value[T]) Raw() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.raw
}

// Pending reports whether the input has not settled yet.
func (v *Value[T]) Pending() bool {
	return v.deb.Pending()
}

// Flush propagates a pending input immediately.
func (v *Value[T]) Flush() {
	v.deb.Flush()
}

// Close stops the timer. The debounced value is never updated afterwards.
func (v *Value[T]) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	v.deb.Stop()
}

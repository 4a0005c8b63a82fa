package presence

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of triggers into at most two invocations
// per window: the first trigger fires immediately (leading edge), and
// triggers arriving inside the window coalesce into exactly one
// trailing invocation when the window elapses. A trailing fire starts a
// fresh window, so sustained bursts stay bounded while isolated
// triggers keep a near-real-time feel.
//
// Each subscriber gets its own Debouncer instance: one subscriber's
// burst never delays or drops another subscriber's updates.
type Debouncer struct {
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool
}

// NewDebouncer wraps fn with leading+trailing debouncing over window.
// A non-positive window disables debouncing: every trigger fires.
func NewDebouncer(window time.Duration, fn func()) *Debouncer {
	return &Debouncer{window: window, fn: fn}
}

// Trigger records one event. It either fires fn synchronously (leading
// edge) or marks a trailing fire for when the current window elapses.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.window <= 0 {
		d.mu.Unlock()
		d.fn()
		return
	}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.windowElapsed)
		d.mu.Unlock()
		d.fn()
		return
	}
	d.pending = true
	d.mu.Unlock()
}

// windowElapsed runs when the window closes: fire the coalesced
// trailing invocation if one is pending, otherwise go idle.
func (d *Debouncer) windowElapsed() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if !d.pending {
		d.timer = nil
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer.Reset(d.window)
	d.mu.Unlock()
	d.fn()
}

// Stop cancels any pending trailing fire and ignores further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

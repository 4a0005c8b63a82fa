package presence

import (
	"sync/atomic"
	"testing"
	"time"
)

const testWindow = 80 * time.Millisecond

func TestDebouncerIsolatedTriggerFiresOnce(t *testing.T) {
	var fires atomic.Int32
	d := NewDebouncer(testWindow, func() { fires.Add(1) })
	defer d.Stop()

	d.Trigger()
	time.Sleep(3 * testWindow)

	if got := fires.Load(); got != 1 {
		t.Errorf("fires = %d, want 1 for an isolated trigger", got)
	}
}

func TestDebouncerBurstFiresTwice(t *testing.T) {
	var fires atomic.Int32
	d := NewDebouncer(testWindow, func() { fires.Add(1) })
	defer d.Stop()

	// A burst well inside one window: leading + one trailing,
	// regardless of burst size.
	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(time.Millisecond)
	}
	time.Sleep(4 * testWindow)

	if got := fires.Load(); got != 2 {
		t.Errorf("fires = %d, want exactly 2 for a burst", got)
	}
}

func TestDebouncerFreshWindowAfterSettle(t *testing.T) {
	var fires atomic.Int32
	d := NewDebouncer(testWindow, func() { fires.Add(1) })
	defer d.Stop()

	d.Trigger()
	time.Sleep(3 * testWindow) // settle: 1 fire

	d.Trigger()
	time.Sleep(3 * testWindow) // fresh window: 1 more leading fire

	if got := fires.Load(); got != 2 {
		t.Errorf("fires = %d, want 2 (one per isolated trigger)", got)
	}
}

func TestDebouncerStopDropsPendingTrailing(t *testing.T) {
	var fires atomic.Int32
	d := NewDebouncer(testWindow, func() { fires.Add(1) })

	d.Trigger()
	d.Trigger() // pending trailing
	d.Stop()
	time.Sleep(3 * testWindow)

	if got := fires.Load(); got != 1 {
		t.Errorf("fires = %d, want 1 (trailing cancelled by Stop)", got)
	}

	d.Trigger()
	time.Sleep(testWindow)
	if got := fires.Load(); got != 1 {
		t.Error("trigger after Stop must be ignored")
	}
}

func TestDebouncerZeroWindowPassesThrough(t *testing.T) {
	var fires atomic.Int32
	d := NewDebouncer(0, func() { fires.Add(1) })
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Trigger()
	}
	if got := fires.Load(); got != 5 {
		t.Errorf("fires = %d, want 5 with debouncing disabled", got)
	}
}

package form

import "time"

// Timer is a pending callback that can be stopped.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. The controller only needs AfterFunc.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// debouncer is the controller's cancellable validation timer. It is not
// safe for concurrent use; the controller calls it with its mutex held.
//
// Stopping a time.Timer does not stop a callback that already started, so
// every arm bumps a generation and the callback must claim its generation
// before running. A superseded callback finds a newer generation and does
// nothing.
type debouncer struct {
	clock   Clock
	window  time.Duration
	timer   Timer
	gen     uint64
	pending bool
}

func newDebouncer(clock Clock, window time.Duration) *debouncer {
	return &debouncer{clock: clock, window: window}
}

// cancel drops the pending run, if any.
func (d *debouncer) cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.pending = false
}

// arm replaces any pending run with fire(gen) after the window.
func (d *debouncer) arm(fire func(gen uint64)) {
	d.cancel()
	gen := d.gen
	d.pending = true
	d.timer = d.clock.AfterFunc(d.window, func() { fire(gen) })
}

// claim reports whether gen is still the pending run and consumes it.
func (d *debouncer) claim(gen uint64) bool {
	if !d.pending || gen != d.gen {
		return false
	}
	d.pending = false
	d.timer = nil
	return true
}

// flush consumes the pending run without waiting for the timer.
func (d *debouncer) flush() bool {
	if !d.pending {
		return false
	}
	d.cancel()
	return true
}

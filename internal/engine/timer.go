package engine

import (
	"sync"
	"time"
)

// DefaultTickInterval is the countdown cadence used by exam sessions.
const DefaultTickInterval = time.Second

// Timer is a single countdown in whole seconds. It decrements once per
// tick and fires onExpire exactly once when it reaches zero.
type Timer struct {
	mu       sync.Mutex
	sched    Scheduler
	interval time.Duration

	duration  int
	remaining int
	running   bool
	expired   bool
	cancel    func()
	gen       uint64

	onTick   func(remaining int)
	onExpire func()
}

// NewTimer creates a stopped timer driven by sched.
func NewTimer(sched Scheduler, interval time.Duration) *Timer {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Timer{sched: sched, interval: interval}
}

// Start begins counting down from durationSeconds. Calling Start while the
// timer is running does nothing and returns false.
func (t *Timer) Start(durationSeconds int, onTick func(remaining int), onExpire func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return false
	}

	t.duration = durationSeconds
	t.remaining = durationSeconds
	t.expired = false
	t.onTick = onTick
	t.onExpire = onExpire
	t.startLocked()
	return true
}

// Resume continues a paused countdown. It returns false when the timer is
// running, has expired, or has nothing left to count.
func (t *Timer) Resume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running || t.expired || t.remaining <= 0 {
		return false
	}
	t.startLocked()
	return true
}

// Pause stops ticking and keeps the remaining time.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Reset stops the timer and restores the duration given to Start.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.remaining = t.duration
	t.expired = false
}

// ResetTo stops the timer and sets a new duration.
func (t *Timer) ResetTo(durationSeconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.duration = durationSeconds
	t.remaining = durationSeconds
	t.expired = false
}

// Stop cancels the countdown and drops the callbacks.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.onTick = nil
	t.onExpire = nil
}

// Remaining returns the seconds left.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Elapsed returns the seconds counted down so far.
func (t *Timer) Elapsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration - t.remaining
}

// Running reports whether the countdown is active.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Expired reports whether onExpire has fired.
func (t *Timer) Expired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expired
}

func (t *Timer) startLocked() {
	t.gen++
	gen := t.gen
	t.running = true
	t.cancel = t.sched.Every(t.interval, func() { t.tick(gen) })
}

func (t *Timer) stopLocked() {
	t.gen++
	t.running = false
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// tick runs on the scheduler. Ticks from a cancelled generation are
// dropped, and callbacks run without the lock held.
func (t *Timer) tick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return
	}

	t.remaining--
	remaining := t.remaining
	onTick := t.onTick

	var onExpire func()
	if remaining <= 0 {
		t.remaining = 0
		remaining = 0
		t.expired = true
		onExpire = t.onExpire
		t.stopLocked()
	}
	t.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if onExpire != nil {
		onExpire()
	}
}

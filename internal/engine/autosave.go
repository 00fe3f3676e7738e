package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
)

// DefaultAutosaveDelay is the debounce window used when Schedule is given
// a non-positive delay.
const DefaultAutosaveDelay = 2 * time.Second

// PersistFunc stores one settled snapshot.
type PersistFunc func(snapshot *model.Snapshot) error

// AutoSaveScheduler debounces snapshot persistence. Each Schedule call
// replaces the pending snapshot and restarts the window; at most one
// window is pending at any time. Persists run one at a time and a snapshot
// older than one already written is dropped.
type AutoSaveScheduler struct {
	mu      sync.Mutex
	sched   Scheduler
	log     zerolog.Logger
	gen     uint64
	cancel  func()
	pending *model.Snapshot
	persist PersistFunc
	seq     uint64

	persistMu sync.Mutex
	written   uint64
}

// NewAutoSaveScheduler creates an idle scheduler.
func NewAutoSaveScheduler(sched Scheduler, log zerolog.Logger) *AutoSaveScheduler {
	return &AutoSaveScheduler{
		sched: sched,
		log:   log.With().Str("component", "autosave").Logger(),
	}
}

// Schedule arms (or re-arms) the window with the latest snapshot.
func (a *AutoSaveScheduler) Schedule(snapshot *model.Snapshot, persist PersistFunc, delay time.Duration) {
	if delay <= 0 {
		delay = DefaultAutosaveDelay
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.cancelLocked()
	a.pending = snapshot
	a.persist = persist
	a.seq++

	gen := a.gen
	a.cancel = a.sched.After(delay, func() { a.fire(gen) })
}

// FlushNow persists the pending snapshot immediately. It returns false
// when nothing was pending.
func (a *AutoSaveScheduler) FlushNow() bool {
	a.mu.Lock()
	snapshot, persist, seq := a.takeLocked()
	a.mu.Unlock()

	if snapshot == nil {
		return false
	}
	a.run(snapshot, persist, seq)
	return true
}

// Cancel drops the pending window without persisting.
func (a *AutoSaveScheduler) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.takeLocked()
}

// Pending reports whether a window is waiting to settle.
func (a *AutoSaveScheduler) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

func (a *AutoSaveScheduler) fire(gen uint64) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	snapshot, persist, seq := a.takeLocked()
	a.mu.Unlock()

	if snapshot != nil {
		a.run(snapshot, persist, seq)
	}
}

func (a *AutoSaveScheduler) run(snapshot *model.Snapshot, persist PersistFunc, seq uint64) {
	if persist == nil {
		return
	}

	a.persistMu.Lock()
	defer a.persistMu.Unlock()
	if seq <= a.written {
		a.log.Debug().
			Str("attempt_id", snapshot.AttemptID).
			Msg("Skipping superseded autosave")
		return
	}
	a.written = seq

	if err := persist(snapshot); err != nil {
		a.log.Error().Err(err).
			Str("attempt_id", snapshot.AttemptID).
			Msg("Autosave persist failed")
		return
	}
	a.log.Debug().
		Str("attempt_id", snapshot.AttemptID).
		Int("answers", len(snapshot.Answers)).
		Msg("Autosaved")
}

// takeLocked clears the pending window and returns what it held.
func (a *AutoSaveScheduler) takeLocked() (*model.Snapshot, PersistFunc, uint64) {
	a.cancelLocked()
	snapshot, persist := a.pending, a.persist
	a.pending = nil
	a.persist = nil
	return snapshot, persist, a.seq
}

func (a *AutoSaveScheduler) cancelLocked() {
	a.gen++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

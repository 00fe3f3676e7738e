package testutil

import (
	"sort"
	"sync"
	"time"
)

// FakeScheduler runs scheduled callbacks only when Advance moves its clock
// past their due time. Callbacks run synchronously on the caller's
// goroutine, in due order, without the scheduler's lock held.
type FakeScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	seq   uint64
	tasks map[uint64]*fakeTask
}

type fakeTask struct {
	id       uint64
	due      time.Duration
	interval time.Duration
	fn       func()
}

// NewFakeScheduler returns a scheduler at time zero.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{tasks: make(map[uint64]*fakeTask)}
}

// Every schedules fn to run every interval.
func (s *FakeScheduler) Every(interval time.Duration, fn func()) func() {
	return s.add(interval, interval, fn)
}

// After schedules fn to run once after delay.
func (s *FakeScheduler) After(delay time.Duration, fn func()) func() {
	return s.add(delay, 0, fn)
}

func (s *FakeScheduler) add(delay, interval time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := s.seq
	s.tasks[id] = &fakeTask{id: id, due: s.now + delay, interval: interval, fn: fn}
	return func() {
		s.mu.Lock()
		delete(s.tasks, id)
		s.mu.Unlock()
	}
}

// Advance moves the clock forward by d, firing everything that falls due.
func (s *FakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	for {
		next := s.nextLocked(target)
		if next == nil {
			break
		}
		s.now = next.due
		if next.interval > 0 {
			next.due += next.interval
		} else {
			delete(s.tasks, next.id)
		}
		fn := next.fn
		s.mu.Unlock()
		fn()
		s.mu.Lock()
	}
	s.now = target
	s.mu.Unlock()
}

// Pending returns the number of live scheduled tasks.
func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Now returns the elapsed fake time.
func (s *FakeScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *FakeScheduler) nextLocked(target time.Duration) *fakeTask {
	due := make([]*fakeTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.due <= target {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].id < due[j].id
	})
	return due[0]
}

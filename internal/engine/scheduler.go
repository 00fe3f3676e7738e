package engine

import (
	"sync"
	"time"
)

// Scheduler arranges callbacks on a fixed interval or after a delay. The
// returned cancel function is safe to call more than once.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
	After(delay time.Duration, fn func()) (cancel func())
}

// RealScheduler runs callbacks on wall-clock timers.
type RealScheduler struct{}

// Every invokes fn on its own goroutine once per interval until cancelled.
func (RealScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// After invokes fn once after delay unless cancelled first.
func (RealScheduler) After(delay time.Duration, fn func()) func() {
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
}

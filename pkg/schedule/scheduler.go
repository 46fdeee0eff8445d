// Package schedule models deferred work as cancellable tasks so timer-driven
// code can be driven by a manual clock in tests.
package schedule

import (
	"sync"
	"time"
)

// Task is a handle to scheduled work.
type Task interface {
	// Stop prevents future executions. It does not wait for a running callback.
	Stop()
}

// Scheduler runs callbacks after a delay or on a fixed cadence.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Task
	Every(interval time.Duration, f func()) Task
}

// Real is backed by the runtime timers. Callbacks run on their own goroutines.
type Real struct{}

// NewReal returns the wall-clock scheduler.
func NewReal() Real { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Task {
	return timerTask{time.AfterFunc(d, f)}
}

func (Real) Every(interval time.Duration, f func()) Task {
	t := &tickerTask{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				f()
			}
		}
	}()
	return t
}

type timerTask struct{ timer *time.Timer }

func (t timerTask) Stop() { t.timer.Stop() }

type tickerTask struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTask) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

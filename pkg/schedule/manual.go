package schedule

import (
	"sync"
	"time"
)

// Manual is a deterministic scheduler. Nothing runs until Advance is called;
// due callbacks then run in time order on the calling goroutine.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	owner   *Manual
	seq     int
	next    time.Time
	period  time.Duration
	fn      func()
	stopped bool
}

// NewManual creates a manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Task {
	return m.add(d, 0, f)
}

func (m *Manual) Every(interval time.Duration, f func()) Task {
	return m.add(interval, interval, f)
}

func (m *Manual) add(delay, period time.Duration, f func()) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{owner: m, seq: m.seq, next: m.now.Add(delay), period: period, fn: f}
	m.tasks = append(m.tasks, t)
	return t
}

func (t *manualTask) Stop() {
	t.owner.mu.Lock()
	t.stopped = true
	t.owner.mu.Unlock()
}

// Pending reports how many tasks can still fire.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every callback that falls due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		due := m.nextDue(target)
		if due == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = due.next
		if due.period > 0 {
			due.next = due.next.Add(due.period)
		} else {
			due.stopped = true
		}
		fn := due.fn
		m.mu.Unlock()

		fn()
	}
}

// nextDue must be called with m.mu held.
func (m *Manual) nextDue(target time.Time) *manualTask {
	var best *manualTask
	live := m.tasks[:0]
	for _, t := range m.tasks {
		if t.stopped {
			continue
		}
		live = append(live, t)
		if t.next.After(target) {
			continue
		}
		if best == nil || t.next.Before(best.next) || (t.next.Equal(best.next) && t.seq < best.seq) {
			best = t
		}
	}
	m.tasks = live
	return best
}

package random

import "sync"

// Scripted replays fixed values so callers can assert exact outcomes.
// Once a queue is exhausted it falls back to its zero-ish default
// (0 for floats, 0 for ints).
type Scripted struct {
	mu     sync.Mutex
	floats []float64
	ints   []int
}

// NewScripted creates a source that returns floats and ints in order.
func NewScripted(floats []float64, ints []int) *Scripted {
	return &Scripted{floats: floats, ints: ints}
}

// PushFloats appends values to the float queue.
func (s *Scripted) PushFloats(v ...float64) {
	s.mu.Lock()
	s.floats = append(s.floats, v...)
	s.mu.Unlock()
}

// PushInts appends values to the int queue.
func (s *Scripted) PushInts(v ...int) {
	s.mu.Lock()
	s.ints = append(s.ints, v...)
	s.mu.Unlock()
}

func (s *Scripted) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.floats) == 0 {
		return 0
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

// IntN returns the next scripted int reduced modulo n.
func (s *Scripted) IntN(n int) int {
	if n <= 0 {
		panic("random: invalid argument to IntN")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	return ((v % n) + n) % n
}

package workflows

import "slices"

// Project statuses. The lifecycle only moves forward.
const (
	StatusPending   = "pending"
	StatusAnalyzing = "analyzing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// StateMachine holds the analysis lifecycle: a project is analyzed once and
// ends completed or failed.
type StateMachine struct {
	next map[string][]string
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		next: map[string][]string{
			StatusPending:   {StatusAnalyzing},
			StatusAnalyzing: {StatusCompleted, StatusFailed},
			StatusCompleted: nil,
			StatusFailed:    nil,
		},
	}
}

// CanTransition reports whether a project in status from may move to to.
// Unknown statuses never move.
func (sm *StateMachine) CanTransition(from, to string) bool {
	return slices.Contains(sm.next[from], to)
}

// GetAllowedTransitions lists the statuses reachable in one step. The
// result is a copy.
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	return slices.Clone(sm.next[from])
}

// IsTerminal reports whether status is known and ends the lifecycle.
func (sm *StateMachine) IsTerminal(status string) bool {
	next, known := sm.next[status]
	return known && len(next) == 0
}

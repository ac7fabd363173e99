package tasks

import "fmt"

// State is the lifecycle position of one task within a Runner.
type State string

const (
	Pending   State = "pending"
	Running   State = "running"
	Succeeded State = "succeeded"
	Failed    State = "failed"
)

// Terminal reports whether s is final.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

// transition moves name from one state to another. The expected prior state
// makes ordering mistakes visible instead of silently overwriting.
func transition(states map[string]State, name string, from, to State) error {
	cur := states[name]
	if cur == "" {
		cur = Pending
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", name, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", name, from, to)
	}
	states[name] = to
	return nil
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case Pending:
		return to == Running
	case Running:
		return to == Succeeded || to == Failed
	default:
		return false
	}
}

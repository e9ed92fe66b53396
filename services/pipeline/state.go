package pipeline

// StepState tracks one step through dispatch.
type StepState string

const (
	StatePending       StepState = "pending"
	StateRunning       StepState = "running"
	StateSucceeded     StepState = "succeeded"
	StateRecoverable   StepState = "recoverable"
	StateLocalFallback StepState = "local_fallback"
	StateAborted       StepState = "aborted"
)

var transitions = map[StepState][]StepState{
	StatePending:       {StateRunning},
	StateRunning:       {StateSucceeded, StateRecoverable, StateAborted},
	StateRecoverable:   {StateLocalFallback, StateAborted},
	StateLocalFallback: {StateSucceeded},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to StepState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s StepState) Terminal() bool {
	return s == StateSucceeded || s == StateAborted
}

package core

import (
	"errors"
	"fmt"
)

// Phase is a step of an import run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseResolving
	PhaseFiltering
	PhaseSubmitting
	PhaseReporting
	PhaseDone
)

var phaseNames = map[Phase]string{
	PhaseIdle:       "idle",
	PhaseFetching:   "fetching",
	PhaseResolving:  "resolving",
	PhaseFiltering:  "filtering",
	PhaseSubmitting: "submitting",
	PhaseReporting:  "reporting",
	PhaseDone:       "done",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// ErrInvalidTransition is returned when a run tries to leave a phase for
// anything but its successor.
var ErrInvalidTransition = errors.New("invalid phase transition")

// isAllowedTransition encodes the single-pass run: every phase has exactly
// one successor and Done starts over at Idle.
func isAllowedTransition(from, to Phase) bool {
	switch from {
	case PhaseIdle:
		return to == PhaseFetching
	case PhaseFetching:
		return to == PhaseResolving
	case PhaseResolving:
		return to == PhaseFiltering
	case PhaseFiltering:
		return to == PhaseSubmitting
	case PhaseSubmitting:
		return to == PhaseReporting
	case PhaseReporting:
		return to == PhaseDone
	case PhaseDone:
		return to == PhaseIdle
	default:
		return false
	}
}

// transition validates and applies a phase change.
func transition(current *Phase, to Phase) error {
	if !isAllowedTransition(*current, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, *current, to)
	}
	*current = to
	return nil
}

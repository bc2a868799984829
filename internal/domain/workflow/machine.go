package workflow

import (
	"strings"

	"github.com/AamirKnight/Streamline/internal/domain/apperror"
)

// validTransitions is the complete edge set of the approval lifecycle.
// A state missing from the map has no outgoing edges.
var validTransitions = map[State][]State{
	StateDraft:            {StateInReview},
	StateInReview:         {StateChangesRequested, StateApproved, StateDraft},
	StateChangesRequested: {StateInReview, StateDraft},
	StateApproved:         {StatePublished, StateArchived},
	StatePublished:        {StateArchived},
	StateArchived:         {},
}

// CanTransition returns true if the edge from -> to is in the transition table
func CanTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStates returns the allowed target states for the given state
func NextStates(from State) []State {
	next := validTransitions[from]
	out := make([]State, len(next))
	copy(out, next)
	return out
}

// ValidateTransition checks the edge from -> to against the transition table.
// It is pure and synchronous; an illegal edge yields an InvalidTransition
// error naming the allowed targets.
func ValidateTransition(from, to State) error {
	if !from.IsValid() {
		return apperror.Validation("invalid state: %s", from)
	}
	if !to.IsValid() {
		return apperror.Validation("invalid state: %s", to)
	}
	if !CanTransition(from, to) {
		return apperror.InvalidTransition(
			"invalid state transition from %s to %s. Allowed transitions: %s",
			from, to, formatStates(validTransitions[from]))
	}
	return nil
}

func formatStates(states []State) string {
	if len(states) == 0 {
		return "none"
	}
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}

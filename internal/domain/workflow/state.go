package workflow

// State represents a workflow state in the document approval lifecycle
type State string

const (
	StateDraft            State = "draft"
	StateInReview         State = "in_review"
	StateChangesRequested State = "changes_requested"
	StateApproved         State = "approved"
	StatePublished        State = "published"
	StateArchived         State = "archived"
)

var validStates = map[State]bool{
	StateDraft:            true,
	StateInReview:         true,
	StateChangesRequested: true,
	StateApproved:         true,
	StatePublished:        true,
	StateArchived:         true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return s == StateArchived
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}

package event

// Type identifies the type of outbound workflow event
type Type string

const (
	TypeWorkflowCreated          Type = "workflow.created"
	TypeWorkflowStateChanged     Type = "workflow.state_changed"
	TypeWorkflowApproved         Type = "workflow.approved"
	TypeWorkflowRejected         Type = "workflow.rejected"
	TypeWorkflowRequestedChanges Type = "workflow.requested_changes"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeWorkflowCreated,
		TypeWorkflowStateChanged,
		TypeWorkflowApproved,
		TypeWorkflowRejected,
		TypeWorkflowRequestedChanges:
		return true
	default:
		return false
	}
}

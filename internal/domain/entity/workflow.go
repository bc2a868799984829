package entity

import (
	"time"

	"github.com/AamirKnight/Streamline/internal/domain/workflow"
)

// ApprovalAction is the closed set of decisions a required approver can submit
type ApprovalAction string

const (
	ActionApproved         ApprovalAction = "approved"
	ActionRejected         ApprovalAction = "rejected"
	ActionRequestedChanges ApprovalAction = "requested_changes"
)

// IsValid returns true if the action is one of the defined constants
func (a ApprovalAction) IsValid() bool {
	switch a {
	case ActionApproved, ActionRejected, ActionRequestedChanges:
		return true
	default:
		return false
	}
}

// String returns the string representation of the action
func (a ApprovalAction) String() string {
	return string(a)
}

// Approval is one approver's recorded decision. At most one exists per
// (workflow, user); resubmission is rejected, never overwritten.
type Approval struct {
	UserID    int64          `json:"userId"`
	Action    ApprovalAction `json:"action"`
	Comment   string         `json:"comment,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Signature string         `json:"signature"`
}

// StateTransition is one recorded edge traversal in a workflow's history
type StateTransition struct {
	FromState   workflow.State `json:"fromState"`
	ToState     workflow.State `json:"toState"`
	TriggeredBy int64          `json:"triggeredBy"`
	Timestamp   time.Time      `json:"timestamp"`
	Reason      string         `json:"reason,omitempty"`
}

// WorkflowMetadata carries bookkeeping fields for a workflow record
type WorkflowMetadata struct {
	CreatedBy int64     `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Workflow is the per-document approval record. Exactly one exists per
// document; it is never physically deleted (archived is terminal).
type Workflow struct {
	ID                int64             `json:"id"`
	DocumentID        string            `json:"documentId"`
	WorkspaceID       int64             `json:"workspaceId"`
	CurrentState      workflow.State    `json:"currentState"`
	RequiredApprovers []int64           `json:"requiredApprovers"`
	Approvals         []Approval        `json:"approvals"`
	StateHistory      []StateTransition `json:"stateHistory"`
	Metadata          WorkflowMetadata  `json:"metadata"`
}

// IsRequiredApprover returns true if userID is in the fixed approver set
func (w *Workflow) IsRequiredApprover(userID int64) bool {
	for _, id := range w.RequiredApprovers {
		if id == userID {
			return true
		}
	}
	return false
}

// HasApprovalFrom returns true if userID already submitted a decision
func (w *Workflow) HasApprovalFrom(userID int64) bool {
	for _, a := range w.Approvals {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// AllRequiredApproved returns true if every required approver has a
// recorded "approved" decision
func (w *Workflow) AllRequiredApproved() bool {
	for _, id := range w.RequiredApprovers {
		approved := false
		for _, a := range w.Approvals {
			if a.UserID == id && a.Action == ActionApproved {
				approved = true
				break
			}
		}
		if !approved {
			return false
		}
	}
	return true
}

// LastApprovalSignature returns the signature of the most recent approval,
// or the chain sentinel when none exist yet
func (w *Workflow) LastApprovalSignature() string {
	if len(w.Approvals) == 0 {
		return ChainSentinel
	}
	return w.Approvals[len(w.Approvals)-1].Signature
}

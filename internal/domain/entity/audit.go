package entity

import "time"

// ChainSentinel marks the start of a per-document hash chain
const ChainSentinel = "0"

// AuditAction identifies the kind of recorded workflow event
type AuditAction string

const (
	AuditWorkflowCreated          AuditAction = "workflow.created"
	AuditWorkflowStateChanged     AuditAction = "workflow.state_changed"
	AuditWorkflowApproved         AuditAction = "workflow.approved"
	AuditWorkflowRejected         AuditAction = "workflow.rejected"
	AuditWorkflowRequestedChanges AuditAction = "workflow.requested_changes"
)

// String returns the string representation of the action
func (a AuditAction) String() string {
	return string(a)
}

// IsValid returns true if the action is one of the defined constants
func (a AuditAction) IsValid() bool {
	switch a {
	case AuditWorkflowCreated,
		AuditWorkflowStateChanged,
		AuditWorkflowApproved,
		AuditWorkflowRejected,
		AuditWorkflowRequestedChanges:
		return true
	default:
		return false
	}
}

// AuditForApproval maps an approval decision to its audit action
func AuditForApproval(action ApprovalAction) AuditAction {
	switch action {
	case ActionRejected:
		return AuditWorkflowRejected
	case ActionRequestedChanges:
		return AuditWorkflowRequestedChanges
	default:
		return AuditWorkflowApproved
	}
}

// AuditMetadata carries request provenance for an audit entry
type AuditMetadata struct {
	IP        string    `json:"ip"`
	UserAgent string    `json:"userAgent"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditEntry is one immutable row of the per-document ledger. Entry k's
// PreviousHash equals entry k-1's Signature; the first entry carries the
// sentinel.
type AuditEntry struct {
	ID           int64                  `json:"id"`
	DocumentID   string                 `json:"documentId"`
	WorkspaceID  int64                  `json:"workspaceId"`
	UserID       int64                  `json:"userId"`
	Action       AuditAction            `json:"action"`
	Details      map[string]interface{} `json:"details"`
	Metadata     AuditMetadata          `json:"metadata"`
	Signature    string                 `json:"signature"`
	PreviousHash string                 `json:"previousHash"`
}

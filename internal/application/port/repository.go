package port

import (
	"context"
	"time"

	"github.com/AamirKnight/Streamline/internal/domain/entity"
	"github.com/AamirKnight/Streamline/internal/domain/workflow"
)

// WorkflowRepository defines persistence operations for the Workflow aggregate
type WorkflowRepository interface {
	// Create persists a new workflow record
	Create(ctx context.Context, wf *entity.Workflow) error

	// GetByDocumentID loads the full aggregate (approvals and history
	// included). Returns (nil, nil) when no workflow exists.
	GetByDocumentID(ctx context.Context, documentID string) (*entity.Workflow, error)

	// UpdateState sets the current state and bumps updated_at
	UpdateState(ctx context.Context, workflowID int64, state workflow.State, updatedAt time.Time) error

	// AddApproval appends one approver decision
	AddApproval(ctx context.Context, workflowID int64, approval *entity.Approval) error

	// AddStateTransition appends one history record
	AddStateTransition(ctx context.Context, workflowID int64, transition *entity.StateTransition) error

	// ListPendingForUser returns workflows in review where the user is a
	// required approver without a recorded decision. workspaceID narrows
	// the scan when non-nil.
	ListPendingForUser(ctx context.Context, userID int64, workspaceID *int64) ([]*entity.Workflow, error)
}

// AuditFilter narrows an audit log query. Nil pointer fields are ignored.
type AuditFilter struct {
	DocumentID  string
	WorkspaceID *int64
	UserID      *int64
	Action      string
	StartDate   *time.Time
	EndDate     *time.Time
	Limit       int
}

// AuditLogRepository defines persistence operations for the append-only ledger
type AuditLogRepository interface {
	// Insert appends one immutable entry
	Insert(ctx context.Context, e *entity.AuditEntry) error

	// LastSignature returns the signature of the most recent entry for the
	// document, or the chain sentinel when none exists yet
	LastSignature(ctx context.Context, documentID string) (string, error)

	// ListByDocumentAsc returns the full per-document chain ordered
	// ascending by timestamp, for integrity replay
	ListByDocumentAsc(ctx context.Context, documentID string) ([]*entity.AuditEntry, error)

	// Query returns matching entries newest-first, capped at filter.Limit
	Query(ctx context.Context, filter AuditFilter) ([]*entity.AuditEntry, error)
}

// TransactionManager handles database transactions. A workflow mutation and
// its audit append always run inside one WithTransaction call.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

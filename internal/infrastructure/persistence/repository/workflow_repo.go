package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AamirKnight/Streamline/internal/application/port"
	"github.com/AamirKnight/Streamline/internal/domain/entity"
	"github.com/AamirKnight/Streamline/internal/domain/workflow"
	"github.com/AamirKnight/Streamline/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// WorkflowRepository implements port.WorkflowRepository on SQLite
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new workflow record
func (r *WorkflowRepository) Create(ctx context.Context, wf *entity.Workflow) error {
	approvers, err := json.Marshal(wf.RequiredApprovers)
	if err != nil {
		return fmt.Errorf("marshal required approvers: %w", err)
	}

	query := `
		INSERT INTO workflows (
			document_id, workspace_id, current_state, required_approvers,
			created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.executor(ctx).ExecContext(ctx, query,
		wf.DocumentID,
		wf.WorkspaceID,
		wf.CurrentState.String(),
		string(approvers),
		wf.Metadata.CreatedBy,
		wf.Metadata.CreatedAt,
		wf.Metadata.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow", zap.String("document_id", wf.DocumentID), zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	wf.ID = id
	return nil
}

// GetByDocumentID loads the full workflow aggregate for a document.
// Returns (nil, nil) when no workflow exists.
func (r *WorkflowRepository) GetByDocumentID(ctx context.Context, documentID string) (*entity.Workflow, error) {
	query := `
		SELECT id, document_id, workspace_id, current_state, required_approvers,
			created_by, created_at, updated_at
		FROM workflows
		WHERE document_id = ?
	`

	wf, err := r.scanWorkflow(r.executor(ctx).QueryRowContext(ctx, query, documentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.String("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if err := r.loadChildren(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// UpdateState sets the current state and bumps updated_at
func (r *WorkflowRepository) UpdateState(ctx context.Context, workflowID int64, state workflow.State, updatedAt time.Time) error {
	query := `UPDATE workflows SET current_state = ?, updated_at = ? WHERE id = ?`

	_, err := r.executor(ctx).ExecContext(ctx, query, state.String(), updatedAt, workflowID)
	if err != nil {
		r.logger.Error("Failed to update workflow state",
			zap.Int64("workflow_id", workflowID), zap.String("state", state.String()), zap.Error(err))
		return fmt.Errorf("failed to update workflow state: %w", err)
	}

	return nil
}

// AddApproval appends one approver decision. The unique index on
// (workflow_id, user_id) backs up the service-level resubmission check.
func (r *WorkflowRepository) AddApproval(ctx context.Context, workflowID int64, approval *entity.Approval) error {
	query := `
		INSERT INTO workflow_approvals (
			workflow_id, user_id, action, comment, timestamp, signature
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.executor(ctx).ExecContext(ctx, query,
		workflowID,
		approval.UserID,
		approval.Action.String(),
		approval.Comment,
		approval.Timestamp,
		approval.Signature,
	)
	if err != nil {
		r.logger.Error("Failed to add approval",
			zap.Int64("workflow_id", workflowID), zap.Int64("user_id", approval.UserID), zap.Error(err))
		return fmt.Errorf("failed to add approval: %w", err)
	}

	return nil
}

// AddStateTransition appends one history record
func (r *WorkflowRepository) AddStateTransition(ctx context.Context, workflowID int64, transition *entity.StateTransition) error {
	query := `
		INSERT INTO workflow_state_history (
			workflow_id, from_state, to_state, triggered_by, timestamp, reason
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.executor(ctx).ExecContext(ctx, query,
		workflowID,
		transition.FromState.String(),
		transition.ToState.String(),
		transition.TriggeredBy,
		transition.Timestamp,
		transition.Reason,
	)
	if err != nil {
		r.logger.Error("Failed to add state transition",
			zap.Int64("workflow_id", workflowID), zap.Error(err))
		return fmt.Errorf("failed to add state transition: %w", err)
	}

	return nil
}

// ListPendingForUser returns in-review workflows where the user is a
// required approver without a recorded decision. The approver-set and
// existing-approval filters run in Go against the loaded aggregates, as
// the approver set is stored as a JSON array.
func (r *WorkflowRepository) ListPendingForUser(ctx context.Context, userID int64, workspaceID *int64) ([]*entity.Workflow, error) {
	query := `
		SELECT id, document_id, workspace_id, current_state, required_approvers,
			created_by, created_at, updated_at
		FROM workflows
		WHERE current_state = ?
	`
	args := []interface{}{workflow.StateInReview.String()}

	if workspaceID != nil {
		query += ` AND workspace_id = ?`
		args = append(args, *workspaceID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list pending workflows", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list pending workflows: %w", err)
	}
	defer rows.Close()

	var candidates []*entity.Workflow
	for rows.Next() {
		wf, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		candidates = append(candidates, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list pending workflows: %w", err)
	}

	var pending []*entity.Workflow
	for _, wf := range candidates {
		if !wf.IsRequiredApprover(userID) {
			continue
		}
		if err := r.loadChildren(ctx, wf); err != nil {
			return nil, err
		}
		if wf.HasApprovalFrom(userID) {
			continue
		}
		pending = append(pending, wf)
	}

	return pending, nil
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *WorkflowRepository) scanWorkflow(row scanner) (*entity.Workflow, error) {
	var wf entity.Workflow
	var state, approvers string

	err := row.Scan(
		&wf.ID,
		&wf.DocumentID,
		&wf.WorkspaceID,
		&state,
		&approvers,
		&wf.Metadata.CreatedBy,
		&wf.Metadata.CreatedAt,
		&wf.Metadata.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	wf.CurrentState = workflow.State(state)
	if err := json.Unmarshal([]byte(approvers), &wf.RequiredApprovers); err != nil {
		return nil, fmt.Errorf("unmarshal required approvers: %w", err)
	}
	wf.Approvals = []entity.Approval{}
	wf.StateHistory = []entity.StateTransition{}

	return &wf, nil
}

// loadChildren fills in approvals and state history, oldest first
func (r *WorkflowRepository) loadChildren(ctx context.Context, wf *entity.Workflow) error {
	approvalQuery := `
		SELECT user_id, action, comment, timestamp, signature
		FROM workflow_approvals
		WHERE workflow_id = ?
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := r.executor(ctx).QueryContext(ctx, approvalQuery, wf.ID)
	if err != nil {
		return fmt.Errorf("failed to load approvals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a entity.Approval
		var action string
		if err := rows.Scan(&a.UserID, &action, &a.Comment, &a.Timestamp, &a.Signature); err != nil {
			return fmt.Errorf("failed to scan approval: %w", err)
		}
		a.Action = entity.ApprovalAction(action)
		wf.Approvals = append(wf.Approvals, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load approvals: %w", err)
	}

	historyQuery := `
		SELECT from_state, to_state, triggered_by, timestamp, reason
		FROM workflow_state_history
		WHERE workflow_id = ?
		ORDER BY timestamp ASC, id ASC
	`
	historyRows, err := r.executor(ctx).QueryContext(ctx, historyQuery, wf.ID)
	if err != nil {
		return fmt.Errorf("failed to load state history: %w", err)
	}
	defer historyRows.Close()

	for historyRows.Next() {
		var t entity.StateTransition
		var from, to string
		if err := historyRows.Scan(&from, &to, &t.TriggeredBy, &t.Timestamp, &t.Reason); err != nil {
			return fmt.Errorf("failed to scan state transition: %w", err)
		}
		t.FromState = workflow.State(from)
		t.ToState = workflow.State(to)
		wf.StateHistory = append(wf.StateHistory, t)
	}
	return historyRows.Err()
}

// executor returns the transaction carried in the context, or the pool
func (r *WorkflowRepository) executor(ctx context.Context) sqlite.Executor {
	if tx := sqlite.ExtractTx(ctx); tx != nil {
		return tx
	}
	return r.db
}

// Verify interface compliance
var _ port.WorkflowRepository = (*WorkflowRepository)(nil)

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/AamirKnight/Streamline/internal/application/port"
	"github.com/AamirKnight/Streamline/internal/crypto"
	"github.com/AamirKnight/Streamline/internal/domain/apperror"
	"github.com/AamirKnight/Streamline/internal/domain/entity"
	"github.com/AamirKnight/Streamline/internal/domain/event"
	"github.com/AamirKnight/Streamline/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// RequestMeta carries caller provenance recorded on audit entries
type RequestMeta struct {
	IP        string
	UserAgent string
}

// PendingApproval pairs a workflow awaiting the user's decision with the
// document metadata fetched from the external collaborator
type PendingApproval struct {
	Workflow *entity.Workflow `json:"workflow"`
	Document *port.Document   `json:"document"`
}

// WorkflowService orchestrates approval commands against the workflow store
// and the audit ledger. Every mutation and its audit append commit as one
// transaction; a rejected command leaves the workflow untouched.
type WorkflowService interface {
	CreateWorkflow(ctx context.Context, documentID string, requiredApprovers []int64, creatorID int64, meta RequestMeta) (*entity.Workflow, error)
	TransitionState(ctx context.Context, documentID string, toState workflow.State, triggeredBy int64, reason string, meta RequestMeta) (*entity.Workflow, error)
	SubmitApproval(ctx context.Context, documentID string, userID int64, action entity.ApprovalAction, comment string, meta RequestMeta) (*entity.Workflow, error)
	GetWorkflow(ctx context.Context, documentID string) (*entity.Workflow, error)
	ListPendingApprovals(ctx context.Context, userID int64, workspaceID *int64) ([]*PendingApproval, error)
}

type workflowServiceImpl struct {
	workflowRepo port.WorkflowRepository
	audit        AuditAppender
	txManager    port.TransactionManager
	documents    port.DocumentService
	publisher    port.EventPublisher
	locks        *documentLocks
	logger       Logger
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(
	workflowRepo port.WorkflowRepository,
	audit AuditAppender,
	txManager port.TransactionManager,
	documents port.DocumentService,
	publisher port.EventPublisher,
	logger Logger,
) WorkflowService {
	return &workflowServiceImpl{
		workflowRepo: workflowRepo,
		audit:        audit,
		txManager:    txManager,
		documents:    documents,
		publisher:    publisher,
		locks:        newDocumentLocks(),
		logger:       logger,
	}
}

// CreateWorkflow creates the workflow record for a document in DRAFT state.
// Explicit creation is the only supported path; a second create for the same
// document fails with Conflict.
func (s *workflowServiceImpl) CreateWorkflow(ctx context.Context, documentID string, requiredApprovers []int64, creatorID int64, meta RequestMeta) (*entity.Workflow, error) {
	if len(requiredApprovers) == 0 {
		return nil, apperror.Validation("requiredApprovers must contain at least one user")
	}
	seen := make(map[int64]bool, len(requiredApprovers))
	for _, id := range requiredApprovers {
		if id <= 0 {
			return nil, apperror.Validation("invalid approver id: %d", id)
		}
		if seen[id] {
			return nil, apperror.Validation("duplicate approver id: %d", id)
		}
		seen[id] = true
	}

	doc, err := s.documents.GetDocument(ctx, documentID)
	if err != nil {
		s.logger.Error("Document lookup failed", "error", err, "document_id", documentID)
		return nil, err
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	now := crypto.CanonicalTime(time.Now())
	wf := &entity.Workflow{
		DocumentID:        documentID,
		WorkspaceID:       doc.WorkspaceID,
		CurrentState:      workflow.StateDraft,
		RequiredApprovers: requiredApprovers,
		Approvals:         []entity.Approval{},
		StateHistory:      []entity.StateTransition{},
		Metadata: entity.WorkflowMetadata{
			CreatedBy: creatorID,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.workflowRepo.GetByDocumentID(txCtx, documentID)
		if err != nil {
			return fmt.Errorf("check existing workflow: %w", err)
		}
		if existing != nil {
			return apperror.Conflict("workflow already exists for document %s", documentID)
		}

		if err := s.workflowRepo.Create(txCtx, wf); err != nil {
			return fmt.Errorf("create workflow: %w", err)
		}

		_, err = s.audit.Append(txCtx, AuditInput{
			DocumentID:  documentID,
			WorkspaceID: doc.WorkspaceID,
			UserID:      creatorID,
			Action:      entity.AuditWorkflowCreated,
			Details:     map[string]interface{}{"initialState": workflow.StateDraft.String()},
			Meta:        meta,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Workflow created", "document_id", documentID, "user_id", creatorID)
	s.emit(ctx, event.TypeWorkflowCreated, wf, creatorID, map[string]interface{}{
		"initialState": workflow.StateDraft.String(),
	})

	return wf, nil
}

// TransitionState moves the workflow along one edge of the state machine
func (s *workflowServiceImpl) TransitionState(ctx context.Context, documentID string, toState workflow.State, triggeredBy int64, reason string, meta RequestMeta) (*entity.Workflow, error) {
	unlock := s.locks.Lock(documentID)
	defer unlock()

	var wf *entity.Workflow
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		wf, err = s.loadWorkflow(txCtx, documentID)
		if err != nil {
			return err
		}

		fromState := wf.CurrentState
		if err := workflow.ValidateTransition(fromState, toState); err != nil {
			return err
		}

		now := crypto.CanonicalTime(time.Now())
		transition := entity.StateTransition{
			FromState:   fromState,
			ToState:     toState,
			TriggeredBy: triggeredBy,
			Timestamp:   now,
			Reason:      reason,
		}
		if err := s.workflowRepo.AddStateTransition(txCtx, wf.ID, &transition); err != nil {
			return fmt.Errorf("add state transition: %w", err)
		}
		if err := s.workflowRepo.UpdateState(txCtx, wf.ID, toState, now); err != nil {
			return fmt.Errorf("update state: %w", err)
		}

		wf.CurrentState = toState
		wf.StateHistory = append(wf.StateHistory, transition)
		wf.Metadata.UpdatedAt = now

		_, err = s.audit.Append(txCtx, AuditInput{
			DocumentID:  documentID,
			WorkspaceID: wf.WorkspaceID,
			UserID:      triggeredBy,
			Action:      entity.AuditWorkflowStateChanged,
			Details: map[string]interface{}{
				"oldState": fromState.String(),
				"newState": toState.String(),
				"reason":   reason,
			},
			Meta: meta,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Workflow state changed",
		"document_id", documentID, "to_state", toState.String(), "user_id", triggeredBy)
	s.emit(ctx, event.TypeWorkflowStateChanged, wf, triggeredBy, map[string]interface{}{
		"newState": toState.String(),
		"reason":   reason,
	})

	return wf, nil
}

// SubmitApproval records one required approver's decision. When the final
// required "approved" lands while the workflow is in review, the
// IN_REVIEW -> APPROVED transition fires in the same transaction.
func (s *workflowServiceImpl) SubmitApproval(ctx context.Context, documentID string, userID int64, action entity.ApprovalAction, comment string, meta RequestMeta) (*entity.Workflow, error) {
	if !action.IsValid() {
		return nil, apperror.Validation("invalid approval action: %s", action)
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	var wf *entity.Workflow
	var autoTransitioned bool
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		wf, err = s.loadWorkflow(txCtx, documentID)
		if err != nil {
			return err
		}

		if !wf.IsRequiredApprover(userID) {
			return apperror.Forbidden("user %d is not a required approver for document %s", userID, documentID)
		}
		if wf.HasApprovalFrom(userID) {
			return apperror.Conflict("user %d already submitted an approval for document %s", userID, documentID)
		}

		now := crypto.CanonicalTime(time.Now())
		approval := entity.Approval{
			UserID:    userID,
			Action:    action,
			Comment:   comment,
			Timestamp: now,
			Signature: crypto.SignApproval(userID, documentID, action, now, wf.LastApprovalSignature()),
		}
		if err := s.workflowRepo.AddApproval(txCtx, wf.ID, &approval); err != nil {
			return fmt.Errorf("add approval: %w", err)
		}
		wf.Approvals = append(wf.Approvals, approval)

		if _, err := s.audit.Append(txCtx, AuditInput{
			DocumentID:  documentID,
			WorkspaceID: wf.WorkspaceID,
			UserID:      userID,
			Action:      entity.AuditForApproval(action),
			Details: map[string]interface{}{
				"comment":   comment,
				"signature": approval.Signature,
			},
			Meta: meta,
		}); err != nil {
			return err
		}

		if action == entity.ActionApproved &&
			wf.CurrentState == workflow.StateInReview &&
			wf.AllRequiredApproved() {
			if err := s.autoApprove(txCtx, wf, userID, meta); err != nil {
				return err
			}
			autoTransitioned = true
		}

		if err := s.workflowRepo.UpdateState(txCtx, wf.ID, wf.CurrentState, now); err != nil {
			return fmt.Errorf("update workflow: %w", err)
		}
		wf.Metadata.UpdatedAt = now

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approval submitted",
		"document_id", documentID, "user_id", userID, "action", action.String(),
		"auto_transitioned", autoTransitioned)
	s.emit(ctx, event.Type(entity.AuditForApproval(action)), wf, userID, map[string]interface{}{
		"action":  action.String(),
		"comment": comment,
	})

	return wf, nil
}

// autoApprove fires the IN_REVIEW -> APPROVED edge after the final required
// approval, inside the caller's transaction
func (s *workflowServiceImpl) autoApprove(txCtx context.Context, wf *entity.Workflow, userID int64, meta RequestMeta) error {
	const reason = "All required approvals received"

	now := crypto.CanonicalTime(time.Now())
	transition := entity.StateTransition{
		FromState:   workflow.StateInReview,
		ToState:     workflow.StateApproved,
		TriggeredBy: userID,
		Timestamp:   now,
		Reason:      reason,
	}
	if err := s.workflowRepo.AddStateTransition(txCtx, wf.ID, &transition); err != nil {
		return fmt.Errorf("add auto-transition: %w", err)
	}

	wf.CurrentState = workflow.StateApproved
	wf.StateHistory = append(wf.StateHistory, transition)

	_, err := s.audit.Append(txCtx, AuditInput{
		DocumentID:  wf.DocumentID,
		WorkspaceID: wf.WorkspaceID,
		UserID:      userID,
		Action:      entity.AuditWorkflowStateChanged,
		Details: map[string]interface{}{
			"oldState": workflow.StateInReview.String(),
			"newState": workflow.StateApproved.String(),
			"reason":   reason,
		},
		Meta: meta,
	})
	return err
}

// GetWorkflow retrieves the workflow for a document
func (s *workflowServiceImpl) GetWorkflow(ctx context.Context, documentID string) (*entity.Workflow, error) {
	return s.loadWorkflow(ctx, documentID)
}

// ListPendingApprovals returns workflows awaiting the user's decision,
// enriched with document metadata on a best-effort basis. No lock is held
// across the scan; results may be slightly stale.
func (s *workflowServiceImpl) ListPendingApprovals(ctx context.Context, userID int64, workspaceID *int64) ([]*PendingApproval, error) {
	workflows, err := s.workflowRepo.ListPendingForUser(ctx, userID, workspaceID)
	if err != nil {
		s.logger.Error("Failed to list pending approvals", "error", err, "user_id", userID)
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}

	pending := make([]*PendingApproval, 0, len(workflows))
	for _, wf := range workflows {
		doc, err := s.documents.GetDocument(ctx, wf.DocumentID)
		if err != nil {
			// A failed per-document lookup drops the item, never the call
			s.logger.Error("Dropping pending item, document lookup failed",
				"error", err, "document_id", wf.DocumentID)
			continue
		}
		pending = append(pending, &PendingApproval{Workflow: wf, Document: doc})
	}

	return pending, nil
}

func (s *workflowServiceImpl) loadWorkflow(ctx context.Context, documentID string) (*entity.Workflow, error) {
	wf, err := s.workflowRepo.GetByDocumentID(ctx, documentID)
	if err != nil {
		s.logger.Error("Failed to get workflow", "error", err, "document_id", documentID)
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	if wf == nil {
		return nil, apperror.NotFound("workflow not found for document %s", documentID)
	}
	return wf, nil
}

// emit publishes the outbound event after a successful commit. Failures are
// logged only; delivery is at-least-once with no in-core guarantee.
func (s *workflowServiceImpl) emit(ctx context.Context, eventType event.Type, wf *entity.Workflow, userID int64, payload map[string]interface{}) {
	e := event.New(eventType, wf.DocumentID, wf.WorkspaceID, userID, payload)
	e = e.WithPayload("currentState", wf.CurrentState.String())
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Error("Failed to publish workflow event",
			"error", err, "event_type", eventType.String(), "document_id", wf.DocumentID)
	}
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AamirKnight/Streamline/internal/application/port"
	"github.com/AamirKnight/Streamline/internal/crypto"
	"github.com/AamirKnight/Streamline/internal/domain/apperror"
	"github.com/AamirKnight/Streamline/internal/domain/entity"
	"github.com/AamirKnight/Streamline/internal/domain/event"
	"github.com/AamirKnight/Streamline/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type noopLogger struct{}

func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}

func cloneWorkflow(wf *entity.Workflow) *entity.Workflow {
	cp := *wf
	cp.RequiredApprovers = append([]int64(nil), wf.RequiredApprovers...)
	cp.Approvals = append([]entity.Approval(nil), wf.Approvals...)
	cp.StateHistory = append([]entity.StateTransition(nil), wf.StateHistory...)
	return &cp
}

// fakeWorkflowRepo keeps the aggregate in memory. Reads return deep copies so
// state only changes through the mutation methods, like a real store.
type fakeWorkflowRepo struct {
	mu        sync.Mutex
	nextID    int64
	workflows map[string]*entity.Workflow
}

func newFakeWorkflowRepo() *fakeWorkflowRepo {
	return &fakeWorkflowRepo{workflows: make(map[string]*entity.Workflow)}
}

func (r *fakeWorkflowRepo) Create(_ context.Context, wf *entity.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	wf.ID = r.nextID
	r.workflows[wf.DocumentID] = cloneWorkflow(wf)
	return nil
}

func (r *fakeWorkflowRepo) GetByDocumentID(_ context.Context, documentID string) (*entity.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf, ok := r.workflows[documentID]
	if !ok {
		return nil, nil
	}
	return cloneWorkflow(wf), nil
}

func (r *fakeWorkflowRepo) byID(workflowID int64) *entity.Workflow {
	for _, wf := range r.workflows {
		if wf.ID == workflowID {
			return wf
		}
	}
	return nil
}

func (r *fakeWorkflowRepo) UpdateState(_ context.Context, workflowID int64, state workflow.State, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf := r.byID(workflowID)
	if wf == nil {
		return errors.New("workflow not found")
	}
	wf.CurrentState = state
	wf.Metadata.UpdatedAt = updatedAt
	return nil
}

func (r *fakeWorkflowRepo) AddApproval(_ context.Context, workflowID int64, approval *entity.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf := r.byID(workflowID)
	if wf == nil {
		return errors.New("workflow not found")
	}
	wf.Approvals = append(wf.Approvals, *approval)
	return nil
}

func (r *fakeWorkflowRepo) AddStateTransition(_ context.Context, workflowID int64, transition *entity.StateTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wf := r.byID(workflowID)
	if wf == nil {
		return errors.New("workflow not found")
	}
	wf.StateHistory = append(wf.StateHistory, *transition)
	return nil
}

func (r *fakeWorkflowRepo) ListPendingForUser(_ context.Context, userID int64, workspaceID *int64) ([]*entity.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Workflow
	for _, wf := range r.workflows {
		if wf.CurrentState != workflow.StateInReview {
			continue
		}
		if workspaceID != nil && wf.WorkspaceID != *workspaceID {
			continue
		}
		if wf.IsRequiredApprover(userID) && !wf.HasApprovalFrom(userID) {
			out = append(out, cloneWorkflow(wf))
		}
	}
	return out, nil
}

func (r *fakeWorkflowRepo) snapshot() map[string]*entity.Workflow {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[string]*entity.Workflow, len(r.workflows))
	for k, v := range r.workflows {
		snap[k] = cloneWorkflow(v)
	}
	return snap
}

func (r *fakeWorkflowRepo) restore(snap map[string]*entity.Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows = snap
}

// fakeTxManager snapshots the repo before the function runs and restores it
// when the function errors, mirroring a rolled back transaction.
type fakeTxManager struct {
	repo *fakeWorkflowRepo
}

func (m *fakeTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := m.repo.snapshot()
	if err := fn(ctx); err != nil {
		m.repo.restore(snap)
		return err
	}
	return nil
}

type fakeAuditAppender struct {
	mu      sync.Mutex
	inputs  []AuditInput
	failErr error
}

func (a *fakeAuditAppender) Append(_ context.Context, in AuditInput) (*entity.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failErr != nil {
		return nil, a.failErr
	}
	a.inputs = append(a.inputs, in)
	return &entity.AuditEntry{
		DocumentID: in.DocumentID,
		UserID:     in.UserID,
		Action:     in.Action,
		Details:    in.Details,
	}, nil
}

func (a *fakeAuditAppender) actions() []entity.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]entity.AuditAction, len(a.inputs))
	for i, in := range a.inputs {
		out[i] = in.Action
	}
	return out
}

type fakeDocService struct {
	docs map[string]*port.Document
}

func (d *fakeDocService) GetDocument(_ context.Context, documentID string) (*port.Document, error) {
	doc, ok := d.docs[documentID]
	if !ok {
		return nil, apperror.NotFound("document %s not found", documentID)
	}
	return doc, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (p *fakePublisher) Publish(_ context.Context, e *event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type serviceFixture struct {
	svc       WorkflowService
	repo      *fakeWorkflowRepo
	audit     *fakeAuditAppender
	publisher *fakePublisher
	docs      *fakeDocService
}

func newFixture() *serviceFixture {
	repo := newFakeWorkflowRepo()
	audit := &fakeAuditAppender{}
	publisher := &fakePublisher{}
	docs := &fakeDocService{docs: map[string]*port.Document{
		"D1": {ID: "D1", WorkspaceID: 42, Title: "Launch plan"},
		"D2": {ID: "D2", WorkspaceID: 42, Title: "Budget"},
	}}
	svc := NewWorkflowService(repo, audit, &fakeTxManager{repo: repo}, docs, publisher, noopLogger{})
	return &serviceFixture{svc: svc, repo: repo, audit: audit, publisher: publisher, docs: docs}
}

var testMeta = RequestMeta{IP: "10.0.0.1", UserAgent: "test-agent"}

// --- tests ---

func TestCreateWorkflow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	wf, err := f.svc.CreateWorkflow(ctx, "D1", []int64{7, 9}, 3, testMeta)
	require.NoError(t, err)

	assert.Equal(t, workflow.StateDraft, wf.CurrentState)
	assert.Equal(t, int64(42), wf.WorkspaceID)
	assert.Equal(t, []int64{7, 9}, wf.RequiredApprovers)
	assert.Empty(t, wf.Approvals)
	assert.Empty(t, wf.StateHistory)
	assert.Equal(t, int64(3), wf.Metadata.CreatedBy)

	require.Len(t, f.audit.inputs, 1)
	assert.Equal(t, entity.AuditWorkflowCreated, f.audit.inputs[0].Action)
	assert.Equal(t, "draft", f.audit.inputs[0].Details["initialState"])
	assert.Equal(t, "10.0.0.1", f.audit.inputs[0].Meta.IP)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, event.TypeWorkflowCreated, f.publisher.events[0].Type)
}

func TestCreateWorkflowValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	tests := []struct {
		name      string
		approvers []int64
	}{
		{"empty approvers", []int64{}},
		{"zero approver id", []int64{7, 0}},
		{"negative approver id", []int64{-1}},
		{"duplicate approver", []int64{7, 9, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateWorkflow(ctx, "D1", tt.approvers, 3, testMeta)
			require.Error(t, err)
			assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
		})
	}
}

func TestCreateWorkflowDocumentNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateWorkflow(context.Background(), "missing", []int64{7}, 3, testMeta)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestCreateWorkflowDuplicateConflicts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateWorkflow(ctx, "D1", []int64{7}, 3, testMeta)
	require.NoError(t, err)

	_, err = f.svc.CreateWorkflow(ctx, "D1", []int64{9}, 3, testMeta)
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Len(t, f.audit.inputs, 1, "rejected create must not append to the ledger")
}

// Walks one document through the full happy path: create, submit for review,
// two required approvals with the automatic move to approved, then publish.
func TestWorkflowLifecycle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateWorkflow(ctx, "D1", []int64{7, 9}, 3, testMeta)
	require.NoError(t, err)

	wf, err := f.svc.TransitionState(ctx, "D1", workflow.StateInReview, 3, "ready for review", testMeta)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateInReview, wf.CurrentState)
	require.Len(t, wf.StateHistory, 1)
	assert.Equal(t, workflow.StateDraft, wf.StateHistory[0].FromState)

	// First approval: one of two, no transition yet
	wf, err = f.svc.SubmitApproval(ctx, "D1", 7, entity.ActionApproved, "lgtm", testMeta)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateInReview, wf.CurrentState)
	require.Len(t, wf.Approvals, 1)
	assert.Len(t, wf.StateHistory, 1)

	// Second approval completes the set and fires the automatic transition
	wf, err = f.svc.SubmitApproval(ctx, "D1", 9, entity.ActionApproved, "", testMeta)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, wf.CurrentState)
	require.Len(t, wf.Approvals, 2)
	require.Len(t, wf.StateHistory, 2)
	auto := wf.StateHistory[1]
	assert.Equal(t, workflow.StateInReview, auto.FromState)
	assert.Equal(t, workflow.StateApproved, auto.ToState)
	assert.Equal(t, int64(9), auto.TriggeredBy)
	assert.Equal(t, "All required approvals received", auto.Reason)

	// The approval signatures chain to each other
	first, second := wf.Approvals[0], wf.Approvals[1]
	assert.Equal(t, crypto.SignApproval(7, "D1", entity.ActionApproved, first.Timestamp, entity.ChainSentinel), first.Signature)
	assert.Equal(t, crypto.SignApproval(9, "D1", entity.ActionApproved, second.Timestamp, first.Signature), second.Signature)

	wf, err = f.svc.TransitionState(ctx, "D1", workflow.StatePublished, 3, "", testMeta)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePublished, wf.CurrentState)

	// Published never goes back to draft
	_, err = f.svc.TransitionState(ctx, "D1", workflow.StateDraft, 3, "", testMeta)
	require.Error(t, err)
	assert.Equal(t, apperror.KindInvalidTransition, apperror.KindOf(err))

	assert.Equal(t, []entity.AuditAction{
		entity.AuditWorkflowCreated,
		entity.AuditWorkflowStateChanged,
		entity.AuditWorkflowApproved,
		entity.AuditWorkflowApproved,
		entity.AuditWorkflowStateChanged, // automatic in_review -> approved
		entity.AuditWorkflowStateChanged,
	}, f.audit.actions())
}

func TestTransitionStateNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.TransitionState(context.Background(), "D1", workflow.StateInReview, 3, "", testMeta)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestSubmitApprovalGuards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateWorkflow(ctx, "D1", []int64{7, 9}, 3, testMeta)
	require.NoError(t, err)
	_, err = f.svc.TransitionState(ctx, "D1", workflow.StateInReview, 3, "", testMeta)
	require.NoError(t, err)

	t.Run("invalid action", func(t *testing.T) {
		_, err := f.svc.SubmitApproval(ctx, "D1", 7, entity.ApprovalAction("maybe"), "", testMeta)
		require.Error(t, err)
		assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	})

	t.Run("non-approver is forbidden", func(t *testing.T) {
		_, err := f.svc.SubmitApproval(ctx, "D1", 12, entity.ActionApproved, "", testMeta)
		require.Error(t, err)
		assert.Equal(t, apperror.KindForbidden, apperror.KindOf(err))
	})

	t.Run("resubmission conflicts regardless of action", func(t *testing.T) {
		_, err := f.svc.SubmitApproval(ctx, "D1", 7, entity.ActionRejected, "needs work", testMeta)
		require.NoError(t, err)

		for _, action := range []entity.ApprovalAction{entity.ActionApproved, entity.ActionRejected, entity.ActionRequestedChanges} {
			_, err := f.svc.SubmitApproval(ctx, "D1", 7, action, "", testMeta)
			require.Error(t, err)
			assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
		}
	})
}

func TestSubmitApprovalRejectionDoesNotTransition(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateWorkflow(ctx, "D1", []int64{7}, 3, testMeta)
	require.NoError(t, err)
	_, err = f.svc.TransitionState(ctx, "D1", workflow.StateInReview, 3, "", testMeta)
	require.NoError(t, err)

	wf, err := f.svc.SubmitApproval(ctx, "D1", 7, entity.ActionRejected, "not yet", testMeta)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateInReview, wf.CurrentState)
	assert.Len(t, wf.StateHistory, 1)
	assert.Contains(t, f.audit.actions(), entity.AuditWorkflowRejected)
}

func TestSubmitApprovalAuditFailureRollsBack(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateWorkflow(ctx, "D1", []int64{7}, 3, testMeta)
	require.NoError(t, err)
	_, err = f.svc.TransitionState(ctx, "D1", workflow.StateInReview, 3, "", testMeta)
	require.NoError(t, err)

	f.audit.failErr = errors.New("ledger unavailable")
	_, err = f.svc.SubmitApproval(ctx, "D1", 7, entity.ActionApproved, "", testMeta)
	require.Error(t, err)

	// The approval must not survive the failed append
	wf, err := f.svc.GetWorkflow(ctx, "D1")
	require.NoError(t, err)
	assert.Empty(t, wf.Approvals)
	assert.Equal(t, workflow.StateInReview, wf.CurrentState)

	// And the same user can retry once the ledger recovers
	f.audit.failErr = nil
	wf, err = f.svc.SubmitApproval(ctx, "D1", 7, entity.ActionApproved, "", testMeta)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, wf.CurrentState)
}

func TestConcurrentFinalApprovalsFireOneTransition(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateWorkflow(ctx, "D1", []int64{7, 9}, 3, testMeta)
	require.NoError(t, err)
	_, err = f.svc.TransitionState(ctx, "D1", workflow.StateInReview, 3, "", testMeta)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, userID := range []int64{7, 9} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.svc.SubmitApproval(ctx, "D1", id, entity.ActionApproved, "", testMeta)
			assert.NoError(t, err)
		}(userID)
	}
	wg.Wait()

	wf, err := f.svc.GetWorkflow(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, wf.CurrentState)
	assert.Len(t, wf.Approvals, 2)

	autoCount := 0
	for _, tr := range wf.StateHistory {
		if tr.Reason == "All required approvals received" {
			autoCount++
		}
	}
	assert.Equal(t, 1, autoCount, "the automatic transition must fire exactly once")
}

func TestListPendingApprovals(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, docID := range []string{"D1", "D2"} {
		_, err := f.svc.CreateWorkflow(ctx, docID, []int64{7, 9}, 3, testMeta)
		require.NoError(t, err)
		_, err = f.svc.TransitionState(ctx, docID, workflow.StateInReview, 3, "", testMeta)
		require.NoError(t, err)
	}

	// User 7 already decided on D2
	_, err := f.svc.SubmitApproval(ctx, "D2", 7, entity.ActionApproved, "", testMeta)
	require.NoError(t, err)

	pending, err := f.svc.ListPendingApprovals(ctx, 7, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "D1", pending[0].Workflow.DocumentID)
	assert.Equal(t, "Launch plan", pending[0].Document.Title)

	// Unknown user has nothing pending
	pending, err = f.svc.ListPendingApprovals(ctx, 12, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Workspace filter
	otherWS := int64(99)
	pending, err = f.svc.ListPendingApprovals(ctx, 9, &otherWS)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestListPendingApprovalsDropsItemsOnFailedLookup(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, docID := range []string{"D1", "D2"} {
		_, err := f.svc.CreateWorkflow(ctx, docID, []int64{7}, 3, testMeta)
		require.NoError(t, err)
		_, err = f.svc.TransitionState(ctx, docID, workflow.StateInReview, 3, "", testMeta)
		require.NoError(t, err)
	}

	// D2 disappears from the document service after workflow creation
	delete(f.docs.docs, "D2")

	pending, err := f.svc.ListPendingApprovals(ctx, 7, nil)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "D1", pending[0].Workflow.DocumentID)
}

package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AamirKnight/Streamline/internal/application/port"
	"github.com/AamirKnight/Streamline/internal/application/service"
	"github.com/AamirKnight/Streamline/internal/domain/apperror"
	"github.com/AamirKnight/Streamline/internal/domain/entity"
	"github.com/AamirKnight/Streamline/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	workflowService service.WorkflowService
	auditService    service.AuditService
	logger          Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(workflowService service.WorkflowService, auditService service.AuditService, logger Logger) *Handlers {
	return &Handlers{
		workflowService: workflowService,
		auditService:    auditService,
		logger:          logger,
	}
}

// CreateWorkflowRequest is the body of POST .../workflow
type CreateWorkflowRequest struct {
	RequiredApprovers []int64 `json:"requiredApprovers" binding:"required"`
}

// TransitionRequest is the body of POST .../workflow/transition
type TransitionRequest struct {
	ToState string `json:"toState" binding:"required"`
	Reason  string `json:"reason"`
}

// ApprovalRequest is the body of POST .../workflow/approve
type ApprovalRequest struct {
	Action  string `json:"action" binding:"required"`
	Comment string `json:"comment"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "approval-gatekeeper",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// CreateWorkflow handles POST /workflows/documents/:documentId/workflow
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}

	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	wf, err := h.workflowService.CreateWorkflow(
		c.Request.Context(), c.Param("documentId"), req.RequiredApprovers, userID, requestMeta(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Workflow created successfully",
		"workflow": wf,
	})
}

// GetWorkflow handles GET /workflows/documents/:documentId/workflow
func (h *Handlers) GetWorkflow(c *gin.Context) {
	wf, err := h.workflowService.GetWorkflow(c.Request.Context(), c.Param("documentId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"workflow": wf})
}

// TransitionState handles POST /workflows/documents/:documentId/workflow/transition
func (h *Handlers) TransitionState(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	wf, err := h.workflowService.TransitionState(
		c.Request.Context(), c.Param("documentId"), workflow.State(req.ToState), userID, req.Reason, requestMeta(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "State transitioned successfully",
		"workflow": wf,
	})
}

// SubmitApproval handles POST /workflows/documents/:documentId/workflow/approve
func (h *Handlers) SubmitApproval(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}

	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	wf, err := h.workflowService.SubmitApproval(
		c.Request.Context(), c.Param("documentId"), userID, entity.ApprovalAction(req.Action), req.Comment, requestMeta(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Approval submitted successfully",
		"workflow": wf,
	})
}

// ListPendingApprovals handles GET /workflows/approvals/pending
func (h *Handlers) ListPendingApprovals(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}

	workspaceID, err := optionalInt64(c.Query("workspaceId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workspaceId"})
		return
	}

	pending, err := h.workflowService.ListPendingApprovals(c.Request.Context(), userID, workspaceID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pendingApprovals": pending,
		"count":            len(pending),
	})
}

// GetAuditLogs handles GET /audit/logs
func (h *Handlers) GetAuditLogs(c *gin.Context) {
	filter := port.AuditFilter{
		DocumentID: c.Query("documentId"),
		Action:     c.Query("action"),
	}

	var err error
	if filter.WorkspaceID, err = optionalInt64(c.Query("workspaceId")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workspaceId"})
		return
	}
	if filter.UserID, err = optionalInt64(c.Query("userId")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid userId"})
		return
	}
	if filter.StartDate, err = optionalTime(c.Query("startDate")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startDate"})
		return
	}
	if filter.EndDate, err = optionalTime(c.Query("endDate")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endDate"})
		return
	}

	logs, err := h.auditService.Query(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetDocumentTimeline handles GET /audit/documents/:documentId/timeline
func (h *Handlers) GetDocumentTimeline(c *gin.Context) {
	timeline, err := h.auditService.Timeline(c.Request.Context(), c.Param("documentId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"timeline": timeline})
}

// VerifyIntegrity handles GET /audit/documents/:documentId/verify
func (h *Handlers) VerifyIntegrity(c *gin.Context) {
	documentID := c.Param("documentId")

	result, err := h.auditService.VerifyIntegrity(c.Request.Context(), documentID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	message := "Audit trail is intact"
	if !result.IsValid {
		message = "Audit trail has been tampered with"
	}

	c.JSON(http.StatusOK, gin.H{
		"documentId": documentID,
		"isValid":    result.IsValid,
		"totalLogs":  result.TotalEntries,
		"message":    message,
	})
}

// ExportAuditLogs handles GET /audit/export
func (h *Handlers) ExportAuditLogs(c *gin.Context) {
	workspaceID, err := optionalInt64(c.Query("workspaceId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workspaceId"})
		return
	}
	startDate, err := optionalTime(c.Query("startDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startDate"})
		return
	}
	endDate, err := optionalTime(c.Query("endDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endDate"})
		return
	}

	filename := "audit-logs-" + strconv.FormatInt(time.Now().UnixMilli(), 10) + ".csv"
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename=`+filename)

	if _, err := h.auditService.ExportCSV(c.Request.Context(), c.Writer, workspaceID, startDate, endDate); err != nil {
		// Headers may already be out; log and abort the stream
		h.logger.Error("Audit export failed", "error", err)
		c.Abort()
	}
}

// callerID extracts the authenticated user id placed on the request by the
// upstream gateway. Authentication itself happens outside this service.
func (h *Handlers) callerID(c *gin.Context) (int64, bool) {
	raw := c.GetHeader("X-User-ID")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid X-User-ID header"})
		return 0, false
	}
	return userID, true
}

// respondError maps a typed command failure to its HTTP status
func (h *Handlers) respondError(c *gin.Context, err error) {
	switch apperror.KindOf(err) {
	case apperror.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperror.KindForbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case apperror.KindConflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case apperror.KindInvalidTransition, apperror.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Unhandled request error", "error", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func requestMeta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func optionalInt64(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func optionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

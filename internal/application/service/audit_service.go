package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/AamirKnight/Streamline/internal/application/port"
	"github.com/AamirKnight/Streamline/internal/crypto"
	"github.com/AamirKnight/Streamline/internal/domain/entity"
)

// MaxQueryPageSize bounds a single audit query response
const MaxQueryPageSize = 100

// TimelinePageSize bounds the per-document timeline view
const TimelinePageSize = 50

// AuditInput is one ledger append request. The signature and previous hash
// are computed here, never supplied by callers.
type AuditInput struct {
	DocumentID  string
	WorkspaceID int64
	UserID      int64
	Action      entity.AuditAction
	Details     map[string]interface{}
	Meta        RequestMeta
}

// AuditAppender is the write side of the ledger, used by the workflow
// service inside its transactions
type AuditAppender interface {
	Append(ctx context.Context, in AuditInput) (*entity.AuditEntry, error)
}

// IntegrityResult reports a per-document chain verification
type IntegrityResult struct {
	IsValid      bool `json:"isValid"`
	TotalEntries int  `json:"totalLogs"`
}

// AuditService owns the append-only ledger: appends chained to the prior
// entry, bounded queries, integrity replay, and the compliance export. Read
// paths never touch the workflow store.
type AuditService interface {
	AuditAppender
	Query(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditEntry, error)
	Timeline(ctx context.Context, documentID string) ([]*entity.AuditEntry, error)
	VerifyIntegrity(ctx context.Context, documentID string) (*IntegrityResult, error)
	ExportCSV(ctx context.Context, w io.Writer, workspaceID *int64, startDate, endDate *time.Time) (int, error)
}

type auditServiceImpl struct {
	auditRepo port.AuditLogRepository
	logger    Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(auditRepo port.AuditLogRepository, logger Logger) AuditService {
	return &auditServiceImpl{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// Append writes one immutable entry linked to the document's chain head.
// Callers run it inside the same transaction as the workflow mutation it
// records; if the append fails the mutation rolls back with it.
func (s *auditServiceImpl) Append(ctx context.Context, in AuditInput) (*entity.AuditEntry, error) {
	if !in.Action.IsValid() {
		return nil, fmt.Errorf("invalid audit action: %s", in.Action)
	}

	previousHash, err := s.auditRepo.LastSignature(ctx, in.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("get chain head: %w", err)
	}

	now := crypto.CanonicalTime(time.Now())
	entry := &entity.AuditEntry{
		DocumentID:  in.DocumentID,
		WorkspaceID: in.WorkspaceID,
		UserID:      in.UserID,
		Action:      in.Action,
		Details:     in.Details,
		Metadata: entity.AuditMetadata{
			IP:        in.Meta.IP,
			UserAgent: in.Meta.UserAgent,
			Timestamp: now,
		},
		Signature:    crypto.SignAuditEntry(in.DocumentID, in.UserID, in.Action, now, previousHash),
		PreviousHash: previousHash,
	}

	if err := s.auditRepo.Insert(ctx, entry); err != nil {
		s.logger.Error("Failed to append audit entry",
			"error", err, "document_id", in.DocumentID, "action", in.Action.String())
		return nil, fmt.Errorf("append audit entry: %w", err)
	}

	return entry, nil
}

// Query returns matching entries newest-first, capped at MaxQueryPageSize
func (s *auditServiceImpl) Query(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditEntry, error) {
	if filter.Limit <= 0 || filter.Limit > MaxQueryPageSize {
		filter.Limit = MaxQueryPageSize
	}

	entries, err := s.auditRepo.Query(ctx, filter)
	if err != nil {
		s.logger.Error("Audit query failed", "error", err)
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	return entries, nil
}

// Timeline returns the most recent entries for one document, newest-first
func (s *auditServiceImpl) Timeline(ctx context.Context, documentID string) ([]*entity.AuditEntry, error) {
	return s.Query(ctx, port.AuditFilter{
		DocumentID: documentID,
		Limit:      TimelinePageSize,
	})
}

// VerifyIntegrity replays the full per-document chain ascending and reports
// whether every link and signature still holds. Never mutates.
func (s *auditServiceImpl) VerifyIntegrity(ctx context.Context, documentID string) (*IntegrityResult, error) {
	entries, err := s.auditRepo.ListByDocumentAsc(ctx, documentID)
	if err != nil {
		s.logger.Error("Failed to load audit chain", "error", err, "document_id", documentID)
		return nil, fmt.Errorf("load audit chain: %w", err)
	}

	result := &IntegrityResult{
		IsValid:      crypto.VerifyChain(entries),
		TotalEntries: len(entries),
	}

	if !result.IsValid {
		s.logger.Error("Audit chain verification failed",
			"document_id", documentID, "total_entries", result.TotalEntries)
	}

	return result, nil
}

// ExportCSV writes the compliance dump for a workspace and date range with
// the fixed column order, one row per matching entry, newest-first. Returns
// the number of rows written (header excluded).
func (s *auditServiceImpl) ExportCSV(ctx context.Context, w io.Writer, workspaceID *int64, startDate, endDate *time.Time) (int, error) {
	entries, err := s.auditRepo.Query(ctx, port.AuditFilter{
		WorkspaceID: workspaceID,
		StartDate:   startDate,
		EndDate:     endDate,
	})
	if err != nil {
		s.logger.Error("Audit export query failed", "error", err)
		return 0, fmt.Errorf("query audit log for export: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Timestamp", "Document ID", "User ID", "Action", "Details", "Signature", "IP"}); err != nil {
		return 0, fmt.Errorf("write export header: %w", err)
	}

	for _, e := range entries {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return 0, fmt.Errorf("marshal details: %w", err)
		}
		record := []string{
			crypto.FormatTimestamp(e.Metadata.Timestamp),
			e.DocumentID,
			strconv.FormatInt(e.UserID, 10),
			e.Action.String(),
			string(details),
			e.Signature,
			e.Metadata.IP,
		}
		if err := cw.Write(record); err != nil {
			return 0, fmt.Errorf("write export row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush export: %w", err)
	}

	s.logger.Info("Audit log exported", "rows", len(entries))
	return len(entries), nil
}

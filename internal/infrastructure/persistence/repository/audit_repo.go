package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AamirKnight/Streamline/internal/application/port"
	"github.com/AamirKnight/Streamline/internal/domain/entity"
	"github.com/AamirKnight/Streamline/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// AuditLogRepository implements port.AuditLogRepository on SQLite. Rows are
// insert-only; no update or delete statement exists in this package.
type AuditLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *sql.DB, logger *zap.Logger) port.AuditLogRepository {
	return &AuditLogRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends one immutable entry
func (r *AuditLogRepository) Insert(ctx context.Context, e *entity.AuditEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (
			document_id, workspace_id, user_id, action, details,
			ip, user_agent, timestamp, signature, previous_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.executor(ctx).ExecContext(ctx, query,
		e.DocumentID,
		e.WorkspaceID,
		e.UserID,
		e.Action.String(),
		string(details),
		e.Metadata.IP,
		e.Metadata.UserAgent,
		e.Metadata.Timestamp,
		e.Signature,
		e.PreviousHash,
	)
	if err != nil {
		r.logger.Error("Failed to insert audit entry",
			zap.String("document_id", e.DocumentID), zap.Error(err))
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	e.ID = id
	return nil
}

// LastSignature returns the chain head for a document, or the sentinel when
// the chain is empty
func (r *AuditLogRepository) LastSignature(ctx context.Context, documentID string) (string, error) {
	query := `
		SELECT signature FROM audit_logs
		WHERE document_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`

	var signature string
	err := r.executor(ctx).QueryRowContext(ctx, query, documentID).Scan(&signature)
	if err == sql.ErrNoRows {
		return entity.ChainSentinel, nil
	}
	if err != nil {
		r.logger.Error("Failed to get chain head", zap.String("document_id", documentID), zap.Error(err))
		return "", fmt.Errorf("failed to get chain head: %w", err)
	}

	return signature, nil
}

// ListByDocumentAsc returns the full per-document chain ascending by timestamp
func (r *AuditLogRepository) ListByDocumentAsc(ctx context.Context, documentID string) ([]*entity.AuditEntry, error) {
	query := `
		SELECT id, document_id, workspace_id, user_id, action, details,
			ip, user_agent, timestamp, signature, previous_hash
		FROM audit_logs
		WHERE document_id = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := r.executor(ctx).QueryContext(ctx, query, documentID)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.String("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Query returns matching entries newest-first. A non-positive limit means
// no cap (used by the compliance export).
func (r *AuditLogRepository) Query(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditEntry, error) {
	var conditions []string
	var args []interface{}

	if filter.DocumentID != "" {
		conditions = append(conditions, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if filter.WorkspaceID != nil {
		conditions = append(conditions, "workspace_id = ?")
		args = append(args, *filter.WorkspaceID)
	}
	if filter.UserID != nil {
		conditions = append(conditions, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.StartDate != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *filter.EndDate)
	}

	query := `
		SELECT id, document_id, workspace_id, user_id, action, details,
			ip, user_agent, timestamp, signature, previous_hash
		FROM audit_logs
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query audit entries", zap.Error(err))
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*entity.AuditEntry, error) {
	var entries []*entity.AuditEntry
	for rows.Next() {
		var e entity.AuditEntry
		var action, details string

		err := rows.Scan(
			&e.ID,
			&e.DocumentID,
			&e.WorkspaceID,
			&e.UserID,
			&action,
			&details,
			&e.Metadata.IP,
			&e.Metadata.UserAgent,
			&e.Metadata.Timestamp,
			&e.Signature,
			&e.PreviousHash,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		e.Action = entity.AuditAction(action)
		if details != "" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// executor returns the transaction carried in the context, or the pool
func (r *AuditLogRepository) executor(ctx context.Context) sqlite.Executor {
	if tx := sqlite.ExtractTx(ctx); tx != nil {
		return tx
	}
	return r.db
}

// Verify interface compliance
var _ port.AuditLogRepository = (*AuditLogRepository)(nil)

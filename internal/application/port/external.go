package port

import (
	"context"

	"github.com/AamirKnight/Streamline/internal/domain/event"
)

// Document is the metadata the external document service exposes for a
// document id. Content never crosses this boundary.
type Document struct {
	ID          string `json:"id"`
	WorkspaceID int64  `json:"workspaceId"`
	Title       string `json:"title"`
}

// DocumentService is the external existence/metadata lookup. Implementations
// return an apperror.NotFound when the document is absent.
type DocumentService interface {
	GetDocument(ctx context.Context, documentID string) (*Document, error)
}

// EventPublisher emits "workflow changed" events after a successful append.
// At-least-once: publish failures are logged by callers, never surfaced as
// command failures.
type EventPublisher interface {
	Publish(ctx context.Context, e *event.Event) error
}

package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is the "workflow changed" notification handed to the outbound
// publisher after a successful audit append. Delivery is at-least-once;
// consumers must treat the CorrelationID as their dedup key.
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	DocumentID    string                 `json:"document_id"`
	WorkspaceID   int64                  `json:"workspace_id"`
	UserID        int64                  `json:"user_id"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// New creates a new workflow event with auto-generated ID and timestamp
func New(eventType Type, documentID string, workspaceID, userID int64, payload map[string]interface{}) *Event {
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		DocumentID:    documentID,
		WorkspaceID:   workspaceID,
		UserID:        userID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.NewString(),
	}
}

// WithPayload returns a copy of the event with an added payload entry
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	clone := *e
	clone.Payload = newPayload
	return &clone
}

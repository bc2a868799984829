// Package docservice is the HTTP client for the external document service.
// The gatekeeper only ever asks it whether a document exists and which
// workspace it belongs to; content stays on the other side of the wire.
package docservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/AamirKnight/Streamline/internal/application/port"
	"github.com/AamirKnight/Streamline/internal/domain/apperror"
	"go.uber.org/zap"
)

// Config holds document service client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements port.DocumentService over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new document service client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// GetDocument fetches document metadata by id. Returns a typed NotFound
// when the document service reports 404.
func (c *Client) GetDocument(ctx context.Context, documentID string) (*port.Document, error) {
	endpoint := fmt.Sprintf("%s/api/documents/%s", c.baseURL, url.PathEscape(documentID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build document request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Document service request failed",
			zap.String("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("document service request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var doc port.Document
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode document response: %w", err)
		}
		return &doc, nil
	case http.StatusNotFound:
		return nil, apperror.NotFound("document not found: %s", documentID)
	default:
		c.logger.Error("Document service returned unexpected status",
			zap.String("document_id", documentID), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("document service returned status %d", resp.StatusCode)
	}
}

// Verify interface compliance
var _ port.DocumentService = (*Client)(nil)

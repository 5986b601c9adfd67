package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/formadex/crm-backend/internal/models"
)

// DispatchRequest is the payload handed to the workflow engine's webhook.
// The engine echoes the correlation identity back on its completion
// callback.
type DispatchRequest struct {
	CorrelationToken string         `json:"correlation_token,omitempty"`
	EventID          *uint          `json:"event_id,omitempty"`
	ActionKind       string         `json:"action_kind"`
	SubjectType      string         `json:"subject_type"`
	SubjectID        string         `json:"subject_id"`
	Decision         string         `json:"decision,omitempty"`
	Comment          string         `json:"comment,omitempty"`
	Metadata         models.JSONMap `json:"metadata,omitempty"`
	TriggeredBy      uint           `json:"triggered_by,omitempty"`
}

// EngineClient dispatches action payloads to the workflow engine. A nil
// error means the engine accepted the dispatch, not that the action ran.
type EngineClient interface {
	Dispatch(ctx context.Context, req *DispatchRequest) error
}

// WebhookClient implements EngineClient against the engine's HTTP webhook
type WebhookClient struct {
	url        string
	authToken  string
	httpClient *http.Client
}

// NewWebhookClient creates a new WebhookClient
func NewWebhookClient(url, authToken string, timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &WebhookClient{
		url:        url,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *WebhookClient) Dispatch(ctx context.Context, req *DispatchRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode dispatch payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build dispatch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("reach workflow engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("workflow engine rejected dispatch: status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

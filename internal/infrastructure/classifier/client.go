package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"finzen/internal/domain/emailsync"
)

const (
	classifyPath   = "/v1/classify-email"
	defaultTimeout = 60 * time.Second
)

// Client calls the external email classification service. One call per
// candidate email; the response is either a payment-email verdict or a
// structured parse.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

var _ emailsync.ClassifierClient = (*Client)(nil)

// NewClient creates a new classification client. timeout of zero uses
// the default.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}
}

type classifyPayload struct {
	Model string                   `json:"model,omitempty"`
	Email emailsync.ClassifyRequest `json:"email"`
}

// ErrorResponse is the service's error body
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Classify sends one email to the classification service
func (c *Client) Classify(ctx context.Context, req emailsync.ClassifyRequest) (*emailsync.ClassifyResponse, error) {
	payload, err := json.Marshal(classifyPayload{Model: c.model, Email: req})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+classifyPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil {
			return nil, fmt.Errorf("classification request failed with status %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("classification error (status %d): %s - %s", resp.StatusCode, errResp.Error, errResp.Message)
	}

	if len(body) == 0 {
		return nil, fmt.Errorf("classification service returned an empty body")
	}

	var result emailsync.ClassifyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}

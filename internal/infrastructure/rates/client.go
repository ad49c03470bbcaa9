package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"finzen/internal/domain/emailsync"
)

const defaultTimeout = 15 * time.Second

// Client looks up exchange rates from an external rate service. One
// lookup per foreign-currency email.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

var _ emailsync.RateClient = (*Client)(nil)

// NewClient creates a new exchange-rate client. timeout of zero uses
// the default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

type ratesResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// Convert converts amount from one currency to another at the current
// rate, returning both the converted amount and the rate used.
func (c *Client) Convert(ctx context.Context, amount float64, from, to string) (float64, float64, error) {
	url := fmt.Sprintf("%s/latest/%s", c.baseURL, from)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("rate request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed ratesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if parsed.Result != "success" {
		return 0, 0, fmt.Errorf("rate service returned result %q", parsed.Result)
	}

	rate, ok := parsed.Rates[to]
	if !ok || rate <= 0 {
		return 0, 0, fmt.Errorf("no rate available for %s -> %s", from, to)
	}

	return amount * rate, rate, nil
}

package payfast

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Gateway endpoints
const (
	LiveHost    = "https://www.payfast.co.za"
	SandboxHost = "https://sandbox.payfast.co.za"

	ProcessPath  = "/eng/process"
	ValidatePath = "/eng/query/validate"
)

// Client confirms notifications with the gateway out of band
type Client struct {
	validateURL string
	httpClient  *http.Client
}

// NewClient creates a confirmation client. The timeout bounds the whole round trip.
func NewClient(host string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		validateURL: strings.TrimRight(host, "/") + ValidatePath,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Confirm posts the notification's parameter string back to the gateway.
// Any transport error or non-VALID answer means the notification is not confirmed.
func (c *Client) Confirm(ctx context.Context, params map[string]string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.validateURL, strings.NewReader(Encode(params)))
	if err != nil {
		return false, fmt.Errorf("failed to build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("validate request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return false, fmt.Errorf("failed to read validate response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("validate returned status %d", resp.StatusCode)
	}

	return strings.TrimSpace(string(body)) == "VALID", nil
}

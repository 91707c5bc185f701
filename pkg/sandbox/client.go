package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrAtCapacity is returned when a sandbox server rejects a request with 429.
var ErrAtCapacity = errors.New("sandbox at capacity (HTTP 429)")

// Client calls the sandbox server's REST API to execute code.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new sandbox HTTP client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // Overall HTTP timeout (execution timeout is enforced by the sandbox).
		},
	}
}

// Execute sends a code execution request to the sandbox server and returns the result.
func (c *Client) Execute(ctx context.Context, sandboxURL string, req *ExecuteRequest) (*ExecuteResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, sandboxURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, ErrAtCapacity
	case http.StatusServiceUnavailable:
		return nil, &SetupError{Err: fmt.Errorf("sandbox server not ready: %s", errorMessage(respBody))}
	default:
		return nil, fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, errorMessage(respBody))
	}

	var sandboxResp ExecuteResponse
	if err := json.Unmarshal(respBody, &sandboxResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &sandboxResp, nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return string(body)
}

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/observability"
	"github.com/rhuss/tabula/pkg/provider"
)

// DefaultTimeout applies to blocking completions when none is configured.
const DefaultTimeout = 120 * time.Second

// Client performs HTTP requests against an OpenAI-compatible Chat Completions
// backend and implements provider.ChatModel.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	// DefaultModel is sent when a request leaves Model empty.
	DefaultModel string

	// ProviderName labels metrics and logs (default "openai").
	ProviderName string
}

var _ provider.ChatModel = (*Client)(nil)

// NewClient creates a new Client for an OpenAI-compatible backend.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	// Normalize: remove trailing slash from base URL.
	baseURL = strings.TrimRight(baseURL, "/")

	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:      baseURL,
		apiKey:       apiKey,
		ProviderName: "openai",
	}
}

// Name returns the provider label.
func (c *Client) Name() string {
	return c.ProviderName
}

// Complete performs non-streaming inference against the Chat Completions endpoint.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	reqCopy := *req
	reqCopy.Stream = false
	if reqCopy.Model == "" {
		reqCopy.Model = c.DefaultModel
	}

	httpReq, err := c.newRequest(ctx, &reqCopy)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.record(reqCopy.Model, "error", start, nil)
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		c.record(reqCopy.Model, "error", start, nil)
		return nil, MapHTTPError(httpResp)
	}

	var chatResp ChatCompletion
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		c.record(reqCopy.Model, "error", start, nil)
		return nil, api.NewModelError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}

	resp := TranslateResponse(&chatResp)
	if resp.Model == "" {
		resp.Model = reqCopy.Model
	}
	c.record(reqCopy.Model, "ok", start, &resp.Usage)

	debug.Trace("providers", "completion", "model", resp.Model, "content", resp.Content)
	return resp, nil
}

// Stream performs streaming inference against the Chat Completions endpoint.
// The channel is closed when the stream completes, errors, or the context
// is cancelled.
//
// The HTTP client timeout is not applied for streaming requests because a
// stream can legitimately last longer than any fixed timeout. Lifecycle
// control relies on context cancellation instead.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (<-chan provider.StreamEvent, error) {
	reqCopy := *req
	reqCopy.Stream = true
	if reqCopy.Model == "" {
		reqCopy.Model = c.DefaultModel
	}

	httpReq, err := c.newRequest(ctx, &reqCopy)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	streamClient := &http.Client{
		Transport: c.httpClient.Transport,
	}

	start := time.Now()
	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		c.record(reqCopy.Model, "error", start, nil)
		return nil, MapNetworkError(err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		httpResp.Body.Close()
		c.record(reqCopy.Model, "error", start, nil)
		return nil, MapHTTPError(httpResp)
	}

	ch := make(chan provider.StreamEvent, 16)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()
		ParseSSEStream(ctx, httpResp.Body, ch)
		c.record(reqCopy.Model, "ok", start, nil)
	}()

	return ch, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) newRequest(ctx context.Context, req *provider.Request) (*http.Request, error) {
	body, err := json.Marshal(TranslateToChat(req))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	if debug.TraceIsEnabled("providers") {
		debug.Trace("providers", "chat request", "url", c.baseURL, "body", string(body))
	} else {
		debug.Log("providers", "chat request", "model", req.Model, "messages", len(req.Messages), "stream", req.Stream)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return httpReq, nil
}

func (c *Client) record(model, status string, start time.Time, usage *provider.Usage) {
	observability.ModelRequestsTotal.WithLabelValues(c.ProviderName, model, status).Inc()
	observability.ModelLatency.WithLabelValues(c.ProviderName, model).Observe(time.Since(start).Seconds())
	if usage != nil {
		observability.ModelTokensTotal.WithLabelValues(c.ProviderName, model, "input").Add(float64(usage.InputTokens))
		observability.ModelTokensTotal.WithLabelValues(c.ProviderName, model, "output").Add(float64(usage.OutputTokens))
	}
}

package provider

import "context"

// ChatModel abstracts a chat-completion backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type ChatModel interface {
	// Name returns the backend identifier used in metrics and logs.
	Name() string

	// Complete performs a blocking completion and returns the full reply.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Stream performs a streaming completion. The returned channel receives
	// StreamEvent values and is closed by the model when the stream
	// completes or errors.
	Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error)

	// Close releases resources (HTTP clients, connections).
	Close() error
}

// Text sends a single system+user exchange and returns the reply text.
// It is the common shape for the router and the one-shot tools.
func Text(ctx context.Context, m ChatModel, system, user string, opts ...RequestOption) (string, error) {
	req := &Request{}
	if system != "" {
		req.Messages = append(req.Messages, Message{Role: RoleSystem, Content: system})
	}
	req.Messages = append(req.Messages, Message{Role: RoleUser, Content: user})
	for _, opt := range opts {
		opt(req)
	}
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// RequestOption adjusts a Request built by Text.
type RequestOption func(*Request)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) RequestOption {
	return func(r *Request) { r.Temperature = &t }
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) RequestOption {
	return func(r *Request) { r.MaxTokens = &n }
}

// WithModel overrides the backend's default model.
func WithModel(model string) RequestOption {
	return func(r *Request) { r.Model = model }
}

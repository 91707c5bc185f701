package provider

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is the backend-facing request. It carries only what the model
// needs, stripped of transport and storage concerns.
type Request struct {
	// Model may be empty, in which case the adapter's default is used.
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Message is a single turn in the conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage holds token accounting for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the complete non-streaming reply.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// StreamEventType classifies a streaming event from the backend.
type StreamEventType int

const (
	StreamEventTextDelta StreamEventType = iota // Incremental text content
	StreamEventDone                             // Stream finished
	StreamEventError                            // Stream error
)

// StreamEvent is a single streaming event from the backend.
type StreamEvent struct {
	Type StreamEventType

	// Delta contains incremental text.
	Delta string

	// FinishReason and Usage are populated on done events when the backend
	// reports them.
	FinishReason string
	Usage        *Usage

	// Model is the model that served the stream, when known.
	Model string

	// Err is populated if the stream encountered an error.
	Err error
}

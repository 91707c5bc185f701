package sandbox

import "encoding/json"

// ExecuteRequest is the request body for POST /execute on the sandbox server.
type ExecuteRequest struct {
	Code string `json:"code"`

	// Dataset is the table as {"columns": [...], "rows": [[...]]}.
	Dataset        json.RawMessage `json:"dataset,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds"`
}

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// ExecuteResponse is the response from POST /execute on the sandbox server.
type ExecuteResponse struct {
	Status          string          `json:"status"`
	Value           json.RawMessage `json:"value,omitempty"`
	Error           string          `json:"error,omitempty"`
	Stack           string          `json:"stack,omitempty"`
	Logs            []LogLine       `json:"logs,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
}

// HealthResponse is the response from GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Runtime     string `json:"runtime"`
	Capacity    int    `json:"capacity"`
	CurrentLoad int    `json:"current_load"`
	UptimeSecs  int64  `json:"uptime_seconds"`
	Error       string `json:"error,omitempty"`
}

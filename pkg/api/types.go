package api

import "github.com/rhuss/tabula/pkg/table"

// AnalysisStatus represents the lifecycle state of an analysis.
type AnalysisStatus string

const (
	AnalysisStatusInProgress AnalysisStatus = "in_progress"
	AnalysisStatusCompleted  AnalysisStatus = "completed"
	AnalysisStatusIncomplete AnalysisStatus = "incomplete"
	AnalysisStatusFailed     AnalysisStatus = "failed"
	AnalysisStatusCancelled  AnalysisStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s AnalysisStatus) IsTerminal() bool {
	switch s {
	case AnalysisStatusCompleted, AnalysisStatusIncomplete, AnalysisStatusFailed, AnalysisStatusCancelled:
		return true
	}
	return false
}

// AnalyzeRequest asks a question about an optional table.
type AnalyzeRequest struct {
	Question string       `json:"question"`
	Table    *table.Table `json:"table,omitempty"`

	// Tool forces a specific tool and skips intent routing.
	Tool string `json:"tool,omitempty"`

	// Stream requests progress events as server-sent events.
	Stream bool `json:"stream,omitempty"`
}

// Intent is the routing decision for a request.
type Intent struct {
	Tool       string         `json:"tool"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	Parameters map[string]any `json:"parameters"`

	// Source records how the decision was made: "model", "keyword",
	// "no_table", "forced" or "fallback".
	Source string `json:"source,omitempty"`
}

// Analysis is the stored outcome of one AnalyzeRequest.
type Analysis struct {
	ID       string         `json:"id"`
	Object   string         `json:"object"`
	Status   AnalysisStatus `json:"status"`
	Question string         `json:"question"`
	Tool     string         `json:"tool"`
	Intent   *Intent        `json:"intent,omitempty"`

	// Answer is the text answer or final report.
	Answer string `json:"answer,omitempty"`

	// Chart is a declarative chart specification (series + layout),
	// passed through untouched.
	Chart any `json:"chart,omitempty"`

	// Table is the final working dataset when an analysis replaced it.
	Table *table.Table `json:"table,omitempty"`

	Rounds      int       `json:"rounds,omitempty"`
	Error       *APIError `json:"error,omitempty"`
	CreatedAt   int64     `json:"created_at"`
	CompletedAt int64     `json:"completed_at,omitempty"`
}

// ProgressEventType classifies a progress event.
type ProgressEventType string

const (
	ProgressModelStart ProgressEventType = "model_start"
	ProgressThought    ProgressEventType = "thought"
	ProgressCodeStart  ProgressEventType = "code_start"
	ProgressCodeEnd    ProgressEventType = "code_end"
	ProgressChart      ProgressEventType = "chart"
	ProgressError      ProgressEventType = "error"
	ProgressComplete   ProgressEventType = "complete"
)

// ProgressEvent is a lifecycle notification from a running analysis.
// Round is 0 for events outside the agent loop.
type ProgressEvent struct {
	Type    ProgressEventType `json:"type"`
	Round   int               `json:"round"`
	Content string            `json:"content,omitempty"`
	Data    any               `json:"data,omitempty"`
}

// ProgressSink receives progress events. Implementations must not block
// for long; the agent loop waits on Emit.
type ProgressSink interface {
	Emit(ev ProgressEvent)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(ev ProgressEvent)

// Emit calls f(ev).
func (f ProgressFunc) Emit(ev ProgressEvent) { f(ev) }

// Discard is a ProgressSink that drops every event.
var Discard ProgressSink = ProgressFunc(func(ProgressEvent) {})

package api

// StreamEventType names a server-sent event. Progress events reuse their
// ProgressEventType; the lifecycle events below frame them.
type StreamEventType string

const (
	EventAnalysisCreated    StreamEventType = "analysis.created"
	EventAnalysisCompleted  StreamEventType = "analysis.completed"
	EventAnalysisIncomplete StreamEventType = "analysis.incomplete"
	EventAnalysisFailed     StreamEventType = "analysis.failed"
	EventAnalysisCancelled  StreamEventType = "analysis.cancelled"
)

// StreamEvent is one frame of a streamed analysis. Exactly one of Progress
// and Analysis is set.
type StreamEvent struct {
	Type           StreamEventType `json:"type"`
	SequenceNumber int             `json:"sequence_number"`
	Progress       *ProgressEvent  `json:"progress,omitempty"`
	Analysis       *Analysis       `json:"analysis,omitempty"`
}

// IsTerminal reports whether t ends a stream.
func (t StreamEventType) IsTerminal() bool {
	switch t {
	case EventAnalysisCompleted, EventAnalysisIncomplete, EventAnalysisFailed, EventAnalysisCancelled:
		return true
	}
	return false
}

// TerminalEvent returns the lifecycle event that reports status.
func TerminalEvent(status AnalysisStatus) StreamEventType {
	switch status {
	case AnalysisStatusCompleted:
		return EventAnalysisCompleted
	case AnalysisStatusIncomplete:
		return EventAnalysisIncomplete
	case AnalysisStatusCancelled:
		return EventAnalysisCancelled
	default:
		return EventAnalysisFailed
	}
}

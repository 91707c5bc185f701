package transport

import (
	"context"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/tools"
)

// AnalysisCreator handles the core create-analysis operation. The
// implementation receives a request and writes the result (streamed events
// or a complete analysis) to the AnalysisWriter.
type AnalysisCreator interface {
	CreateAnalysis(ctx context.Context, req *api.AnalyzeRequest, w AnalysisWriter) error
}

// AnalysisCreatorFunc is an adapter that allows using an ordinary function
// as an AnalysisCreator.
type AnalysisCreatorFunc func(ctx context.Context, req *api.AnalyzeRequest, w AnalysisWriter) error

// CreateAnalysis calls f(ctx, req, w).
func (f AnalysisCreatorFunc) CreateAnalysis(ctx context.Context, req *api.AnalyzeRequest, w AnalysisWriter) error {
	return f(ctx, req, w)
}

// ToolLister lists the registered tools.
type ToolLister interface {
	ListTools() []tools.Descriptor
}

// ListOptions controls pagination, filtering, and ordering for list operations.
type ListOptions struct {
	After  string // Cursor: return items after this ID.
	Before string // Cursor: return items before this ID.
	Limit  int    // Maximum number of items to return (default 20, max 100).
	Tool   string // Filter analyses by tool name.
	Order  string // Sort order: "asc" or "desc" (default "desc").
}

// AnalysisList holds a paginated list of analyses.
type AnalysisList struct {
	Object  string          `json:"object"`
	Data    []*api.Analysis `json:"data"`
	HasMore bool            `json:"has_more"`
	FirstID string          `json:"first_id"`
	LastID  string          `json:"last_id"`
}

// AnalysisStore persists finished analyses. Every method is scoped to the
// tenant carried in ctx, when there is one.
type AnalysisStore interface {
	// SaveAnalysis persists a finished analysis. Returns storage.ErrConflict
	// when the ID is taken.
	SaveAnalysis(ctx context.Context, a *api.Analysis) error

	// GetAnalysis retrieves an analysis by ID. Returns storage.ErrNotFound
	// if it does not exist or has been deleted.
	GetAnalysis(ctx context.Context, id string) (*api.Analysis, error)

	// DeleteAnalysis soft-deletes an analysis by ID.
	DeleteAnalysis(ctx context.Context, id string) error

	// ListAnalyses returns a paginated list of stored analyses.
	ListAnalyses(ctx context.Context, opts ListOptions) (*AnalysisList, error)

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases database connections and resources.
	Close() error
}

// AnalysisWriter abstracts streaming and non-streaming output for the
// handler. WriteEvent and WriteAnalysis are mutually exclusive on a single
// writer; a terminal event completes the writer.
type AnalysisWriter interface {
	// WriteEvent sends a single streaming event.
	WriteEvent(ctx context.Context, event api.StreamEvent) error

	// WriteAnalysis sends a complete non-streaming analysis.
	WriteAnalysis(ctx context.Context, a *api.Analysis) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}

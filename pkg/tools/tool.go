package tools

import (
	"context"
	"errors"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/table"
)

// Names of the built-in tools. The router's tool menu is exactly this set.
const (
	GeneralQA         = "general_qa"
	TableQA           = "table_qa"
	SimpleChart       = "simple_chart"
	AdvancedAnalytics = "advanced_analytics"
	CodeInterpreter   = "code_interpreter"
)

// Capability describes what kind of output a tool can produce.
type Capability string

const (
	CapabilityText     Capability = "text"
	CapabilityTable    Capability = "table"
	CapabilityChart    Capability = "chart"
	CapabilityCode     Capability = "code_execution"
	CapabilityAnalysis Capability = "statistics"
)

// ErrUnknownTool is returned when a tool name is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is a single analysis capability.
//
// Implementations must be safe for concurrent use; per-request state
// belongs in Execute, not in the tool value.
type Tool interface {
	// Name returns the snake_case identifier used for routing.
	Name() string

	// Description is shown to the router model and listed by the API.
	Description() string

	// Capabilities lists the output kinds this tool can produce.
	Capabilities() []Capability

	// Execute answers one request. A returned error means the tool could
	// not run at all; analysis-level failures are reported in Result.
	Execute(ctx context.Context, in Input) (*Result, error)
}

// Input is everything a tool receives for one request.
type Input struct {
	Question string

	// Table is the dataset snapshot, or nil when none is attached.
	Table *table.Table

	// Intent is the routing decision that selected this tool.
	Intent *api.Intent

	// Progress receives lifecycle events. Nil means discard.
	Progress api.ProgressSink
}

// Sink returns the progress sink, never nil.
func (in Input) Sink() api.ProgressSink {
	if in.Progress == nil {
		return api.Discard
	}
	return in.Progress
}

// Result is the outcome of a tool execution.
type Result struct {
	Status api.AnalysisStatus

	// Answer is the text answer or report.
	Answer string

	// Chart is a declarative chart spec, passed through untouched.
	Chart any

	// Table is set when the tool produced a derived dataset.
	Table *table.Table

	// Rounds is the number of agent rounds consumed (0 for one-shot tools).
	Rounds int

	// Error describes a failed analysis.
	Error *api.APIError
}

// Descriptor is the listing form of a tool.
type Descriptor struct {
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Capabilities []Capability `json:"capabilities"`
}

// Describe returns the descriptor of t.
func Describe(t Tool) Descriptor {
	return Descriptor{
		Name:         t.Name(),
		Description:  t.Description(),
		Capabilities: t.Capabilities(),
	}
}

// HasCapability reports whether t declares c.
func HasCapability(t Tool, c Capability) bool {
	for _, have := range t.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}

// Failed builds a failed Result from err. API errors pass through as is;
// anything else is reported as a model error.
func Failed(err error) *Result {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		apiErr = api.NewModelError(err.Error())
	}
	return &Result{Status: api.AnalysisStatusFailed, Error: apiErr}
}

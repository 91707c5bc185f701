// Package sandbox runs model-generated JavaScript fragments against a
// dataset and reports exactly one Result per fragment.
//
// Two executors are provided. Local embeds a goja runtime on a dedicated
// goroutine; Remote posts fragments to a sandbox server (see
// cmd/sandbox-server), optionally acquiring one per execution through
// Kubernetes SandboxClaims. Both allow one execution in flight at a time.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rhuss/tabula/pkg/table"
)

// Executor runs code fragments. Implementations must be safe to call from
// multiple goroutines but reject overlapping executions with ErrBusy.
type Executor interface {
	// Execute runs code with df bound to the dataset records. Execution
	// failures are reported in the Result; the error is reserved for setup
	// failures (*SetupError), ErrBusy, ErrClosed and caller cancellation.
	Execute(ctx context.Context, code string, dataset *table.Table) (*Result, error)

	// Close releases the executor. Later calls to Execute return ErrClosed.
	Close() error
}

// Factory creates a fresh executor, typically one per analysis.
type Factory func(ctx context.Context) (Executor, error)

var (
	// ErrBusy is returned when an execution is already in flight.
	ErrBusy = errors.New("sandbox: execution already in progress")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("sandbox: executor closed")
)

// SetupError reports that the sandbox could not be initialized. It is
// permanent for the executor that returned it.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return "sandbox setup failed: " + e.Err.Error()
}

func (e *SetupError) Unwrap() error { return e.Err }

// IsSetupError reports whether err is or wraps a *SetupError.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

// State is the lifecycle state of an executor.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateExecuting     State = "executing"
	StateFailed        State = "failed"
	StateClosed        State = "closed"
)

// LogLine is one captured console call.
type LogLine struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func (l LogLine) String() string {
	if l.Level == "" || l.Level == "log" || l.Level == "info" {
		return l.Text
	}
	return "[" + l.Level + "] " + l.Text
}

// Result is the outcome of one fragment.
type Result struct {
	Success bool `json:"success"`

	// Value is the JSON encoding of the fragment's return value. A fragment
	// that returns nothing yields null.
	Value json.RawMessage `json:"value,omitempty"`

	// Error is "Name: message" of the thrown value on failure.
	Error string `json:"error,omitempty"`
	Stack string `json:"stack,omitempty"`

	Logs     []LogLine     `json:"logs,omitempty"`
	Duration time.Duration `json:"duration"`

	// TimedOut is set when the per-execution timeout interrupted the fragment.
	TimedOut bool `json:"timed_out,omitempty"`
}

// ValueString returns the raw JSON value, or "null".
func (r *Result) ValueString() string {
	if len(r.Value) == 0 {
		return "null"
	}
	return string(r.Value)
}

// LogText joins the captured console lines.
func (r *Result) LogText() string {
	lines := make([]string, len(r.Logs))
	for i, l := range r.Logs {
		lines[i] = l.String()
	}
	return strings.Join(lines, "\n")
}

// Output renders the result for a human or a model: the value or error,
// followed by console output when there was any.
func (r *Result) Output() string {
	var b strings.Builder
	if r.Success {
		b.WriteString(r.ValueString())
	} else {
		b.WriteString(r.Error)
	}
	if len(r.Logs) > 0 {
		fmt.Fprintf(&b, "\nConsole output:\n%s", r.LogText())
	}
	return b.String()
}

// FullData is the {full_data, summary} shape a fragment returns to replace
// the working dataset.
type FullData struct {
	Table   *table.Table
	Summary string
}

// DecodeFullData reports whether value has the {full_data, summary} shape
// with full_data convertible to a table. Both keys are required.
func DecodeFullData(value json.RawMessage) (*FullData, bool) {
	var shape struct {
		FullData json.RawMessage  `json:"full_data"`
		Summary  *json.RawMessage `json:"summary"`
	}
	if err := json.Unmarshal(value, &shape); err != nil {
		return nil, false
	}
	if len(shape.FullData) == 0 || shape.Summary == nil {
		return nil, false
	}
	t, err := table.Decode(shape.FullData)
	if err != nil {
		return nil, false
	}
	var summary string
	if err := json.Unmarshal(*shape.Summary, &summary); err != nil {
		summary = string(*shape.Summary)
	}
	return &FullData{Table: t, Summary: summary}, true
}

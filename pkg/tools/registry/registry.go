// Package registry holds the set of analysis tools available to the engine.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"sync"
	"time"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/observability"
	"github.com/rhuss/tabula/pkg/tools"
)

var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)

// Conformance errors returned by Register.
var (
	ErrNilTool        = errors.New("tool is nil")
	ErrInvalidName    = errors.New("tool name must be non-empty snake_case")
	ErrNoDescription  = errors.New("tool description is empty")
	ErrNoCapabilities = errors.New("tool declares no capabilities")
	ErrDuplicateTool  = errors.New("tool already registered")
)

// Registry aggregates tools, routes executions to them by name, and records
// metrics. It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	// order keeps tools in registration order for listing.
	order  []string
	byName map[string]tools.Tool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]tools.Tool),
	}
}

// Register adds t after checking that it conforms to the Tool contract.
// A tool with an invalid name, empty description, no capabilities, or a
// name that is already taken is rejected.
func (r *Registry) Register(t tools.Tool) error {
	if err := checkConformance(t); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, name)
	}
	r.byName[name] = t
	r.order = append(r.order, name)

	slog.Info("registered tool", "tool", name, "capabilities", len(t.Capabilities()))
	return nil
}

// MustRegister is like Register but panics on a conformance error.
func (r *Registry) MustRegister(ts ...tools.Tool) {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// isNil also catches a nil pointer wrapped in a non-nil interface.
func isNil(t tools.Tool) bool {
	if t == nil {
		return true
	}
	v := reflect.ValueOf(t)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func checkConformance(t tools.Tool) error {
	if isNil(t) {
		return ErrNilTool
	}
	name := t.Name()
	if !toolNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if t.Description() == "" {
		return fmt.Errorf("%w: %q", ErrNoDescription, name)
	}
	if len(t.Capabilities()) == 0 {
		return fmt.Errorf("%w: %q", ErrNoCapabilities, name)
	}
	return nil
}

// Unregister removes the named tool. It reports whether the tool existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; !ok {
		return false
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (tools.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// List returns the registered tools in registration order.
func (r *Registry) List() []tools.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]tools.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Descriptions returns the listing form of every registered tool.
func (r *Registry) Descriptions() []tools.Descriptor {
	list := r.List()
	out := make([]tools.Descriptor, 0, len(list))
	for _, t := range list {
		out = append(out, tools.Describe(t))
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Execute runs the named tool, records metrics, and recovers from panics.
// A panic becomes a failed Result rather than crashing the caller.
func (r *Registry) Execute(ctx context.Context, name string, in tools.Input) (result *tools.Result, err error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", tools.ErrUnknownTool, name)
	}

	start := time.Now()
	debug.Log("tools", "executing tool", "tool", name, "has_table", in.Table != nil)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool panicked", "tool", name, "panic", rec)
			result = &tools.Result{
				Status: api.AnalysisStatusFailed,
				Error:  api.NewServerError(fmt.Sprintf("internal error: tool %q panicked", name)),
			}
			err = nil

			observability.ToolExecutionsTotal.WithLabelValues(name, "panic").Inc()
			observability.ToolExecutionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}
	}()

	result, err = t.Execute(ctx, in)

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case result != nil && result.Status == api.AnalysisStatusFailed:
		status = "tool_error"
	case result != nil && result.Status == api.AnalysisStatusIncomplete:
		status = "incomplete"
	}
	observability.ToolExecutionsTotal.WithLabelValues(name, status).Inc()
	observability.ToolExecutionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	return result, err
}

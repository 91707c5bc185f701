package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/observability"
	"github.com/rhuss/tabula/pkg/table"
	"github.com/rhuss/tabula/pkg/tools"
	"github.com/rhuss/tabula/pkg/tools/registry"
	"github.com/rhuss/tabula/pkg/transport"
)

// Router selects a tool for a question. *router.Router implements it.
type Router interface {
	Route(ctx context.Context, question string, t *table.Table) api.Intent
	Forced(tool string) api.Intent
}

// Engine orchestrates one analysis: route, execute, persist.
type Engine struct {
	router   Router
	registry *registry.Registry
	store    transport.AnalysisStore
	cfg      Config
}

var (
	_ transport.AnalysisCreator = (*Engine)(nil)
	_ transport.ToolLister      = (*Engine)(nil)
)

// New creates an Engine. The router and registry must not be nil. The
// store can be nil for stateless operation.
func New(r Router, reg *registry.Registry, store transport.AnalysisStore, cfg Config) (*Engine, error) {
	if r == nil {
		return nil, errors.New("engine: router must not be nil")
	}
	if reg == nil || reg.Len() == 0 {
		return nil, errors.New("engine: registry must hold at least one tool")
	}
	cfg.defaults()
	return &Engine{router: r, registry: reg, store: store, cfg: cfg}, nil
}

// ListTools describes the registered tools.
func (e *Engine) ListTools() []tools.Descriptor {
	return e.registry.Descriptions()
}

// CreateAnalysis runs req and writes the result to w. Streaming requests get
// analysis.created, every progress event, and a terminal lifecycle event
// carrying the finished analysis. Other requests get the analysis alone.
// Request errors are returned before anything is written.
func (e *Engine) CreateAnalysis(ctx context.Context, req *api.AnalyzeRequest, w transport.AnalysisWriter) error {
	if !req.Stream {
		a, err := e.Analyze(ctx, req, nil)
		if err != nil {
			return err
		}
		return w.WriteAnalysis(ctx, a)
	}

	s := &eventStream{ctx: ctx, w: w, logger: e.cfg.Logger}
	a, err := e.analyze(ctx, req, s, func(created *api.Analysis) {
		s.write(api.StreamEvent{Type: api.EventAnalysisCreated, Analysis: created})
	})
	if err != nil {
		return err
	}
	s.write(api.StreamEvent{Type: api.TerminalEvent(a.Status), Analysis: a})
	return s.err
}

// Analyze runs req to completion and returns the finished analysis.
// Progress events go to sink, which may be nil. The returned error is an
// *api.APIError for invalid requests; tool failures, timeouts and
// cancellation are reported in the analysis status instead.
func (e *Engine) Analyze(ctx context.Context, req *api.AnalyzeRequest, sink api.ProgressSink) (*api.Analysis, error) {
	return e.analyze(ctx, req, sink, nil)
}

func (e *Engine) analyze(ctx context.Context, req *api.AnalyzeRequest, sink api.ProgressSink, onCreated func(*api.Analysis)) (*api.Analysis, error) {
	if apiErr := api.ValidateAnalyzeRequest(req, e.cfg.Validation); apiErr != nil {
		return nil, apiErr
	}
	if req.Tool != "" {
		if _, ok := e.registry.Lookup(req.Tool); !ok {
			return nil, api.NewInvalidRequestError("tool", fmt.Sprintf("unknown tool %q", req.Tool))
		}
	}
	if sink == nil {
		sink = api.Discard
	}

	ctx, span := observability.Tracer().Start(ctx, "engine.Analyze")
	defer span.End()

	intent := e.route(ctx, req)
	a := &api.Analysis{
		ID:        api.NewAnalysisID(),
		Object:    "analysis",
		Status:    api.AnalysisStatusInProgress,
		Question:  req.Question,
		Tool:      intent.Tool,
		Intent:    &intent,
		CreatedAt: time.Now().Unix(),
	}
	span.SetAttributes(
		attribute.String("tabula.analysis.id", a.ID),
		attribute.String("tabula.analysis.tool", a.Tool),
		attribute.String("tabula.intent.source", intent.Source),
	)
	if onCreated != nil {
		created := *a
		onCreated(&created)
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.cfg.AnalysisTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.AnalysisTimeout)
	}
	res, err := e.registry.Execute(runCtx, a.Tool, tools.Input{
		Question: req.Question,
		Table:    req.Table,
		Intent:   &intent,
		Progress: sink,
	})
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	e.complete(ctx, a, res, err, timedOut)
	if a.Error != nil {
		span.SetStatus(codes.Error, a.Error.Message)
	}
	span.SetAttributes(attribute.String("tabula.analysis.status", string(a.Status)))
	observability.AnalysesTotal.WithLabelValues(a.Tool, string(a.Status)).Inc()

	e.save(ctx, a)
	return a, nil
}

// route honors a tool named by the caller, and otherwise asks the router.
// A routed tool that is not registered falls back to table_qa or
// general_qa, whichever fits the request.
func (e *Engine) route(ctx context.Context, req *api.AnalyzeRequest) api.Intent {
	if req.Tool != "" {
		return e.router.Forced(req.Tool)
	}
	intent := e.router.Route(ctx, req.Question, req.Table)
	if _, ok := e.registry.Lookup(intent.Tool); ok {
		return intent
	}

	fallback := tools.GeneralQA
	if !req.Table.Empty() {
		fallback = tools.TableQA
	}
	if _, ok := e.registry.Lookup(fallback); !ok {
		fallback = e.registry.Names()[0]
	}
	e.cfg.Logger.Warn("routed tool is not registered, falling back",
		"tool", intent.Tool, "fallback", fallback)
	intent.Reasoning = fmt.Sprintf("%s (tool %q unavailable)", intent.Reasoning, intent.Tool)
	intent.Tool = fallback
	return intent
}

// complete fills in the terminal state of a from the tool outcome.
func (e *Engine) complete(ctx context.Context, a *api.Analysis, res *tools.Result, err error, timedOut bool) {
	a.CompletedAt = time.Now().Unix()
	switch {
	case err != nil && ctx.Err() != nil:
		a.Status = api.AnalysisStatusCancelled
	case timedOut:
		a.Status = api.AnalysisStatusFailed
		a.Error = api.NewTimeoutError(fmt.Sprintf("analysis exceeded %s", e.cfg.AnalysisTimeout))
	case err != nil:
		a.Status = api.AnalysisStatusFailed
		a.Error = transport.AsAPIError(err)
	case res == nil:
		a.Status = api.AnalysisStatusFailed
		a.Error = api.NewServerError(fmt.Sprintf("tool %q returned no result", a.Tool))
	default:
		a.Status = res.Status
		a.Answer = res.Answer
		a.Chart = res.Chart
		a.Table = res.Table
		a.Rounds = res.Rounds
		a.Error = res.Error
		if a.Status == api.AnalysisStatusFailed && a.Error == nil {
			a.Error = api.NewServerError("analysis failed")
		}
	}
	debug.Log("engine", "analysis finished",
		"id", a.ID, "tool", a.Tool, "status", a.Status, "rounds", a.Rounds)
}

// save persists a even when ctx was cancelled, so cancelled analyses are
// still recorded under the caller's tenant.
func (e *Engine) save(ctx context.Context, a *api.Analysis) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveAnalysis(context.WithoutCancel(ctx), a); err != nil {
		e.cfg.Logger.Error("failed to store analysis", "id", a.ID, "error", err)
	}
}

// eventStream numbers events and forwards them to an AnalysisWriter. It
// implements api.ProgressSink. After the first write error (usually a
// disconnected client) further events are dropped.
type eventStream struct {
	ctx    context.Context
	w      transport.AnalysisWriter
	logger *slog.Logger

	mu  sync.Mutex
	seq int
	err error
}

func (s *eventStream) Emit(ev api.ProgressEvent) {
	s.write(api.StreamEvent{Type: api.StreamEventType(ev.Type), Progress: &ev})
}

func (s *eventStream) write(ev api.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	ev.SequenceNumber = s.seq
	s.seq++
	if err := s.w.WriteEvent(s.ctx, ev); err != nil {
		s.err = err
		s.logger.Debug("dropping stream events after write error", "error", err)
	}
}

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/observability"
	"github.com/rhuss/tabula/pkg/prompt"
	"github.com/rhuss/tabula/pkg/provider"
	"github.com/rhuss/tabula/pkg/sandbox"
	"github.com/rhuss/tabula/pkg/table"
)

// DefaultMaxRounds is the round limit when none is configured.
const DefaultMaxRounds = 10

// DefaultMaxFeedbackChars bounds the execution output fed back per round.
const DefaultMaxFeedbackChars = 4000

// MaxRoundsReport is the report prefix of a session that ran out of rounds.
const MaxRoundsReport = "The analysis stopped because the maximum rounds reached"

// Config configures an Agent.
type Config struct {
	// Model answers each round. Required.
	Model provider.ChatModel

	// Sandbox creates the executor for a session when the request does not
	// bring its own.
	Sandbox sandbox.Factory

	// MaxRounds bounds the session. Zero means DefaultMaxRounds.
	MaxRounds int

	// RoundTimeout is a watchdog for one round (model call plus
	// execution). Zero disables it.
	RoundTimeout time.Duration

	// Prompt renders each round's prompt.
	Prompt prompt.Builder

	// MaxFeedbackChars truncates execution output fed back to the model.
	MaxFeedbackChars int

	// Stream asks the model for a streamed reply and collects it.
	Stream bool

	Logger *slog.Logger
}

// Agent runs analysis sessions. It holds no per-session state and may be
// shared across goroutines; each Run owns its own session.
type Agent struct {
	cfg Config
}

// New validates cfg and returns an Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Model == nil {
		return nil, errors.New("agent: model is required")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.MaxFeedbackChars <= 0 {
		cfg.MaxFeedbackChars = DefaultMaxFeedbackChars
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Agent{cfg: cfg}, nil
}

// Request is one analysis session's input.
type Request struct {
	Question string

	// Table is the initial working dataset. It may be nil.
	Table *table.Table

	// Progress receives lifecycle events. Nil discards them.
	Progress api.ProgressSink

	// Executor runs fragments. When nil, the configured factory creates
	// one for the session and closes it afterwards.
	Executor sandbox.Executor
}

// Outcome is the result of a session that ended without error.
type Outcome struct {
	// Status is completed, or incomplete when the round limit was reached or
	// the terminating fragment failed.
	Status api.AnalysisStatus

	Report string

	// Chart is the JSON value returned by a generate_chart fragment.
	Chart json.RawMessage

	// Table is the final working dataset.
	Table *table.Table

	Rounds  int
	History []prompt.Turn
}

// Run executes one session. It returns an error for fatal conditions only:
// a sandbox that cannot be set up (*sandbox.SetupError), a model failure
// (*TransportError), a round watchdog expiry (*TimeoutError), or
// cancellation of ctx. Parse errors, execution errors and the round limit
// are handled inside the loop.
func (a *Agent) Run(ctx context.Context, req Request) (out *Outcome, err error) {
	ctx, span := observability.Tracer().Start(ctx, "agent.Run")
	span.SetAttributes(
		attribute.Int("tabula.agent.max_rounds", a.cfg.MaxRounds),
		attribute.Bool("tabula.agent.has_table", req.Table != nil),
	)
	defer func() {
		status := "error"
		if out != nil {
			status = string(out.Status)
			span.SetAttributes(attribute.Int("tabula.agent.rounds", out.Rounds))
		}
		if errors.Is(err, context.Canceled) {
			status = string(api.AnalysisStatusCancelled)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.AgentTerminationsTotal.WithLabelValues(status).Inc()
		span.End()
	}()

	exec := req.Executor
	if exec == nil {
		if a.cfg.Sandbox == nil {
			return nil, errors.New("agent: no sandbox executor or factory configured")
		}
		exec, err = a.cfg.Sandbox(ctx)
		if err != nil {
			if !sandbox.IsSetupError(err) {
				err = &sandbox.SetupError{Err: err}
			}
			return nil, err
		}
		defer exec.Close()
	}

	s := &session{
		agent:    a,
		question: req.Question,
		limit:    a.cfg.MaxRounds,
		working:  req.Table,
		exec:     exec,
		sink:     req.Progress,
	}
	if s.sink == nil {
		s.sink = api.Discard
	}
	return s.run(ctx)
}

// complete asks the model for the next envelope.
func (a *Agent) complete(ctx context.Context, p prompt.Prompt) (string, error) {
	req := &provider.Request{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: p.System},
			{Role: provider.RoleUser, Content: p.User},
		},
	}
	if !a.cfg.Stream {
		resp, err := a.cfg.Model.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}
	ch, err := a.cfg.Model.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	resp, err := provider.Collect(ctx, ch)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (a *Agent) roundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.RoundTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.RoundTimeout)
}

// classifyCallError maps an error from a blocking call inside round n to the
// error the session returns.
func classifyCallError(parent, roundCtx context.Context, n int, phase string, err error) error {
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if errors.Is(roundCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Round: n, Phase: phase}
	}
	if phase == PhaseModel {
		return &TransportError{Round: n, Err: err}
	}
	if sandbox.IsSetupError(err) {
		return err
	}
	return fmt.Errorf("agent: round %d: execute: %w", n, err)
}

func logRound(n int, msg string, args ...any) {
	debug.Log("agent", msg, append([]any{"round", n}, args...)...)
}

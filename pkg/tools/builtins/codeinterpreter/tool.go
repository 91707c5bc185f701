package codeinterpreter

import (
	"context"
	"errors"

	"github.com/rhuss/tabula/pkg/agent"
	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/sandbox"
	"github.com/rhuss/tabula/pkg/tools"
)

// Tool is the code_interpreter tool.
type Tool struct {
	agent *agent.Agent
}

var _ tools.Tool = (*Tool)(nil)

// New returns the code_interpreter tool running sessions on a.
func New(a *agent.Agent) *Tool {
	return &Tool{agent: a}
}

func (t *Tool) Name() string { return tools.CodeInterpreter }

func (t *Tool) Description() string {
	return "Writes and runs code over the table in several rounds to clean, transform, compute and chart data"
}

func (t *Tool) Capabilities() []tools.Capability {
	return []tools.Capability{tools.CapabilityCode, tools.CapabilityTable, tools.CapabilityChart, tools.CapabilityText}
}

func (t *Tool) Execute(ctx context.Context, in tools.Input) (*tools.Result, error) {
	return run(ctx, t.agent, in.Question, in)
}

// run executes one agent session and maps its outcome onto a Result.
// Only cancellation of ctx is returned as an error.
func run(ctx context.Context, a *agent.Agent, question string, in tools.Input) (*tools.Result, error) {
	out, err := a.Run(ctx, agent.Request{
		Question: question,
		Table:    in.Table,
		Progress: in.Sink(),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return &tools.Result{Status: api.AnalysisStatusFailed, Error: sessionError(err)}, nil
	}

	res := &tools.Result{
		Status: out.Status,
		Answer: out.Report,
		Rounds: out.Rounds,
	}
	if len(out.Chart) > 0 {
		res.Chart = out.Chart
	}
	if out.Table != nil && !out.Table.Equal(in.Table) {
		res.Table = out.Table
	}
	return res, nil
}

func sessionError(err error) *api.APIError {
	var (
		transportErr *agent.TransportError
		timeoutErr   *agent.TimeoutError
		apiErr       *api.APIError
	)
	switch {
	case sandbox.IsSetupError(err):
		return api.NewSandboxError(err.Error())
	case errors.As(err, &timeoutErr):
		return api.NewTimeoutError(timeoutErr.Error())
	case errors.As(err, &transportErr) && errors.As(transportErr.Err, &apiErr):
		return apiErr
	case errors.As(err, &transportErr):
		return api.NewModelError(transportErr.Error())
	default:
		return api.NewServerError(err.Error())
	}
}

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/envelope"
	"github.com/rhuss/tabula/pkg/observability"
	"github.com/rhuss/tabula/pkg/prompt"
	"github.com/rhuss/tabula/pkg/sandbox"
	"github.com/rhuss/tabula/pkg/table"
)

// Round outcomes, used as the metric label and span attribute.
const (
	outcomeSuccess    = "success"
	outcomeExecError  = "exec_error"
	outcomeCorrective = "corrective"
	outcomeTerminal   = "terminal"
	outcomeFailed     = "failed"
)

// session is the state of one Run. It is confined to the calling goroutine.
type session struct {
	agent    *Agent
	question string
	exec     sandbox.Executor
	sink     api.ProgressSink

	round    int
	limit    int
	history  []prompt.Turn
	working  *table.Table
	chart    json.RawMessage
	terminal bool
	report   string

	// lastOutput is the feedback text of the last successful fragment, used
	// when a terminating round has no explicit answer.
	lastOutput string

	// lastError is the error text of the last fragment when it failed.
	lastError string

	// finalFailed is set when the terminating fragment itself failed.
	finalFailed bool
}

func (s *session) run(ctx context.Context) (*Outcome, error) {
	for s.round < s.limit && !s.terminal {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.round++
		if err := s.step(ctx); err != nil {
			return nil, err
		}
	}

	status := api.AnalysisStatusCompleted
	switch {
	case !s.terminal:
		status = api.AnalysisStatusIncomplete
		s.report = s.maxRoundsReport()
		s.agent.cfg.Logger.Warn("analysis hit round limit", "rounds", s.round)
	case s.finalFailed:
		status = api.AnalysisStatusIncomplete
		s.agent.cfg.Logger.Warn("final fragment failed", "rounds", s.round)
	}

	s.emit(api.ProgressComplete, s.report, map[string]any{
		"status":    status,
		"rounds":    s.round,
		"has_chart": s.chart != nil,
	})
	return &Outcome{
		Status:  status,
		Report:  s.report,
		Chart:   s.chart,
		Table:   s.working,
		Rounds:  s.round,
		History: s.history,
	}, nil
}

// step runs one round. It returns an error only for fatal conditions.
func (s *session) step(parent context.Context) error {
	n := s.round
	ctx, span := observability.Tracer().Start(parent, "agent.round")
	span.SetAttributes(attribute.Int("tabula.agent.round", n))
	defer span.End()

	ctx, cancel := s.agent.roundContext(ctx)
	defer cancel()

	outcome := outcomeFailed
	defer func() {
		observability.AgentRoundsTotal.WithLabelValues(outcome).Inc()
		span.SetAttributes(attribute.String("tabula.agent.outcome", outcome))
	}()

	s.emit(api.ProgressModelStart, "", nil)
	p := s.agent.cfg.Prompt.Build(s.question, s.working, s.history)
	debug.Trace("agent", "round prompt", "round", n, "user", p.User)

	reply, err := s.agent.complete(ctx, p)
	if err != nil {
		err = classifyCallError(parent, ctx, n, PhaseModel, err)
		s.emit(api.ProgressError, err.Error(), nil)
		return err
	}
	s.history = append(s.history, prompt.Turn{Role: prompt.RoleAssistant, Content: reply})

	env, err := envelope.Parse(reply)
	if err != nil {
		var perr *envelope.ParseError
		reason := err.Error()
		if errors.As(err, &perr) {
			reason = perr.Reason
		}
		outcome = outcomeCorrective
		s.corrective(fmt.Sprintf("the envelope could not be parsed (%s).", reason))
		return nil
	}

	span.SetAttributes(attribute.String("tabula.agent.action", string(env.Action)))
	s.emit(api.ProgressThought, env.Thought.String(), map[string]any{
		"title":  env.Thought.Title,
		"action": env.Action,
	})
	logRound(n, "envelope parsed", "action", env.Action, "continue", env.Continue, "code_bytes", len(env.Code))

	switch {
	case !env.Action.Valid():
		outcome = outcomeCorrective
		s.corrective(fmt.Sprintf("unknown action %q.", env.Action))
		return nil
	case env.Action.NeedsCode() && env.Code == "":
		outcome = outcomeCorrective
		s.corrective(fmt.Sprintf("action %s requires a non-empty `code` field.", env.Action))
		return nil
	}

	switch env.Action {
	case envelope.ActionGenerateCode:
		ok, err := s.execute(parent, ctx, env.Code, false)
		if err != nil {
			return err
		}
		outcome = outcomeExecError
		if ok {
			outcome = outcomeSuccess
		}
		if !env.Continue {
			outcome = outcomeTerminal
			if !ok {
				s.finishFailed(env.FinalAnswer)
				break
			}
			s.finish(env.FinalAnswer, "Analysis complete.")
		}

	case envelope.ActionGenerateChart:
		ok, err := s.execute(parent, ctx, env.Code, true)
		if err != nil {
			return err
		}
		if !ok {
			outcome = outcomeExecError
			return nil
		}
		outcome = outcomeTerminal
		s.emit(api.ProgressChart, "", s.chart)
		s.finish(env.FinalAnswer, "Chart generated.")

	case envelope.ActionAnalysisComplete:
		if env.ChartSpec != nil {
			// Charts only come from executed code.
			logRound(n, "ignoring inline chart_spec on analysis_complete")
		}
		outcome = outcomeTerminal
		answer := env.FinalAnswer
		if answer == "" {
			answer = env.Thought.Text
		}
		s.finish(answer, "Analysis complete.")
	}
	return nil
}

// execute runs code against the working dataset and appends the feedback
// turn. It reports whether the result is usable. A successful
// {full_data, summary} result replaces the dataset; a chart fragment must
// return a non-empty object, which becomes the session chart.
func (s *session) execute(parent, ctx context.Context, code string, chart bool) (bool, error) {
	n := s.round
	s.emit(api.ProgressCodeStart, code, nil)

	start := time.Now()
	res, err := s.exec.Execute(ctx, code, s.working)
	if err != nil {
		err = classifyCallError(parent, ctx, n, PhaseExecute, err)
		s.emit(api.ProgressError, err.Error(), nil)
		return false, err
	}

	s.emit(api.ProgressCodeEnd, res.Output(), map[string]any{
		"success":     res.Success,
		"timed_out":   res.TimedOut,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	limit := s.agent.cfg.MaxFeedbackChars
	var feedback string
	ok := false
	switch {
	case !res.Success:
		s.lastError = table.Truncate(res.Output(), limit)
		feedback = prompt.ErrorFeedback(s.lastError, code)
		logRound(n, "fragment failed", "error", res.Error, "timed_out", res.TimedOut)
	case chart && !isChartObject(res.Value):
		s.lastError = "chart code must return a chart configuration object, got " +
			table.Truncate(res.ValueString(), 200)
		feedback = prompt.ErrorFeedback(s.lastError, code)
		logRound(n, "chart fragment returned no chart", "value", table.Truncate(res.ValueString(), 200))
	case chart:
		ok = true
		s.lastError = ""
		s.chart = res.Value
		feedback = prompt.SuccessFeedback("Chart generated.")
	default:
		ok = true
		s.lastError = ""
		output := res.Output()
		if fd, ok := sandbox.DecodeFullData(res.Value); ok {
			s.working = fd.Table
			output = fd.Summary
			logRound(n, "working dataset replaced", "shape", fd.Table.Shape())
		}
		output = table.Truncate(output, limit)
		feedback = prompt.SuccessFeedback(output)
		s.lastOutput = output
	}
	s.history = append(s.history, prompt.Turn{Role: prompt.RoleUser, Content: feedback})
	return ok, nil
}

func isChartObject(v json.RawMessage) bool {
	var m map[string]any
	return json.Unmarshal(v, &m) == nil && len(m) > 0
}

func (s *session) corrective(reason string) {
	logRound(s.round, "corrective feedback", "reason", reason)
	s.emit(api.ProgressError, reason, nil)
	s.history = append(s.history, prompt.Turn{Role: prompt.RoleUser, Content: prompt.CorrectiveFeedback(reason)})
}

// finish ends the session. Without an explicit answer the report falls
// back to the last successful output, then to fallback.
func (s *session) finish(answer, fallback string) {
	if answer == "" {
		answer = s.lastOutput
	}
	if answer == "" {
		answer = fallback
	}
	s.report = answer
	s.terminal = true
}

// finishFailed ends the session on a terminating fragment that failed. The
// report carries the execution error so it is not lost.
func (s *session) finishFailed(answer string) {
	report := "The final step failed: " + s.lastError
	if answer != "" {
		report = answer + "\n\n" + report
	}
	s.report = report
	s.terminal = true
	s.finalFailed = true
}

func (s *session) maxRoundsReport() string {
	report := fmt.Sprintf("%s (%d).", MaxRoundsReport, s.limit)
	if s.lastOutput != "" {
		report += " Last result:\n" + s.lastOutput
	}
	return report
}

func (s *session) emit(typ api.ProgressEventType, content string, data any) {
	s.sink.Emit(api.ProgressEvent{Type: typ, Round: s.round, Content: content, Data: data})
}

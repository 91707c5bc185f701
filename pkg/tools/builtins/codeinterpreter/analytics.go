package codeinterpreter

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rhuss/tabula/pkg/agent"
	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/table"
	"github.com/rhuss/tabula/pkg/tools"
)

// Analytics is the advanced_analytics tool. It profiles the numeric
// columns up front and hands the statistics to the agent together with the
// question, so the model starts from known figures instead of recomputing
// them.
type Analytics struct {
	agent *agent.Agent
}

var _ tools.Tool = (*Analytics)(nil)

// NewAnalytics returns the advanced_analytics tool running sessions on a.
func NewAnalytics(a *agent.Agent) *Analytics {
	return &Analytics{agent: a}
}

func (t *Analytics) Name() string { return tools.AdvancedAnalytics }

func (t *Analytics) Description() string {
	return "Statistical analysis: correlations, trends, distributions, forecasts and regression"
}

func (t *Analytics) Capabilities() []tools.Capability {
	return []tools.Capability{tools.CapabilityAnalysis, tools.CapabilityCode, tools.CapabilityChart, tools.CapabilityText}
}

func (t *Analytics) Execute(ctx context.Context, in tools.Input) (*tools.Result, error) {
	if in.Table.Empty() {
		return &tools.Result{
			Status: api.AnalysisStatusFailed,
			Error:  api.NewInvalidRequestError("table", "advanced_analytics requires table data"),
		}, nil
	}
	return run(ctx, t.agent, WithStatistics(in.Question, in.Table), in)
}

// WithStatistics appends a descriptive statistics block for every numeric
// column of t to question. Tables without numeric columns leave the
// question unchanged.
func WithStatistics(question string, t *table.Table) string {
	var b strings.Builder
	for _, p := range t.Profile() {
		if p.Stats == nil {
			continue
		}
		s := p.Stats
		fmt.Fprintf(&b, "| %s | %d | %s | %s | %s | %s |\n", p.Name, s.Count,
			formatStat(s.Mean), formatStat(s.Min), formatStat(s.Max), formatStat(s.StdDev))
	}
	if b.Len() == 0 {
		return question
	}
	return question + "\n\nDescriptive statistics of the numeric columns:\n\n" +
		"| column | count | mean | min | max | stddev |\n| --- | --- | --- | --- | --- | --- |\n" +
		b.String()
}

func formatStat(f float64) string {
	return table.FormatCell(math.Round(f*1e4) / 1e4)
}

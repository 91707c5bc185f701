// Package envelope parses and formats the action envelopes a model emits on
// every round of a code-interpreter analysis.
//
// An envelope is a small YAML document, usually inside a ```yaml fence:
//
//	version: 1
//	thought:
//	  title: Group sales by region
//	  text: Sum the sales column per region before charting.
//	action: generate_code
//	code: |
//	  const totals = {};
//	  for (const r of df) totals[r.region] = (totals[r.region] || 0) + r.sales;
//	  return totals;
//	continue: true
package envelope

import (
	"fmt"
	"strings"
)

// CurrentVersion is the envelope format major version this package speaks.
const CurrentVersion = 1

// Action names what the model wants done this round.
type Action string

const (
	ActionGenerateCode     Action = "generate_code"
	ActionGenerateChart    Action = "generate_chart"
	ActionAnalysisComplete Action = "analysis_complete"
)

// actionAliases maps alternative spellings seen in model output.
var actionAliases = map[string]Action{
	"generate_chart_from_code": ActionGenerateChart,
	"final_report":             ActionAnalysisComplete,
	"complete":                 ActionAnalysisComplete,
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionGenerateCode, ActionGenerateChart, ActionAnalysisComplete:
		return true
	}
	return false
}

// NeedsCode reports whether the action executes a code fragment.
func (a Action) NeedsCode() bool {
	return a == ActionGenerateCode || a == ActionGenerateChart
}

func normalizeAction(s string) Action {
	s = strings.ToLower(strings.TrimSpace(s))
	if a, ok := actionAliases[s]; ok {
		return a
	}
	return Action(s)
}

// Thought is the model's stated reasoning for the round.
type Thought struct {
	Title string `yaml:"title,omitempty" json:"title,omitempty"`
	Text  string `yaml:"text,omitempty" json:"text,omitempty"`
}

// String renders the thought on one line.
func (t Thought) String() string {
	switch {
	case t.Title != "" && t.Text != "":
		return t.Title + ": " + t.Text
	case t.Title != "":
		return t.Title
	default:
		return t.Text
	}
}

// IsZero reports whether the thought is empty.
func (t Thought) IsZero() bool {
	return t.Title == "" && t.Text == ""
}

// Envelope is one parsed model reply.
type Envelope struct {
	Version int
	Thought Thought
	Action  Action
	Code    string

	// Continue is false when the model declares the analysis finished.
	Continue bool

	// FinalAnswer holds final_answer or final_report.
	FinalAnswer string

	// ChartSpec is a declarative chart carried inline. The loop only honors
	// charts produced by code, so this is informational.
	ChartSpec any

	NextSteps []string
}

// ParseError reports a reply that could not be read as an envelope.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("envelope: %s: %v", e.Reason, e.Err)
	}
	return "envelope: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

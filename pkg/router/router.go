package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/envelope"
	"github.com/rhuss/tabula/pkg/observability"
	"github.com/rhuss/tabula/pkg/provider"
	"github.com/rhuss/tabula/pkg/table"
	"github.com/rhuss/tabula/pkg/tools"
)

// Decision sources recorded in api.Intent.Source.
const (
	SourceNoTable  = "no_table"
	SourceModel    = "model"
	SourceKeyword  = "keyword"
	SourceForced   = "forced"
	SourceFallback = "fallback"
)

// DefaultSampleRows is the number of table rows shown to the classifier.
const DefaultSampleRows = 5

// DefaultReasoning fills in a decision the model left unexplained.
const DefaultReasoning = "Intent analysis completed"

// Menu is the fixed set of tools the router chooses from, in prompt order.
var Menu = []MenuEntry{
	{tools.GeneralQA, "General questions unrelated to the attached table."},
	{tools.TableQA, "Simple lookups, counts, sums and comparisons over the table. No visualization."},
	{tools.SimpleChart, "A basic chart of the table (bar, line, pie, scatter)."},
	{tools.AdvancedAnalytics, "Statistical analysis: correlation, trends, forecasting, clustering, distributions."},
	{tools.CodeInterpreter, "Multi-step transformations that need code: reshaping, derived columns, custom calculations, charts from computed data."},
}

// MenuEntry is one tool in the classification prompt.
type MenuEntry struct {
	Name        string
	Description string
}

// Config configures a Router.
type Config struct {
	// Model classifies questions. Nil disables the model step and uses the
	// keyword classifier directly.
	Model provider.ChatModel

	// SampleRows caps the table rows included in the classification prompt.
	SampleRows int

	Logger *slog.Logger
}

// Router selects a tool for each question.
type Router struct {
	model      provider.ChatModel
	sampleRows int
	allowed    map[string]bool
	logger     *slog.Logger
}

// New creates a Router.
func New(cfg Config) *Router {
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = DefaultSampleRows
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	allowed := make(map[string]bool, len(Menu))
	for _, e := range Menu {
		allowed[e.Name] = true
	}
	return &Router{
		model:      cfg.Model,
		sampleRows: cfg.SampleRows,
		allowed:    allowed,
		logger:     cfg.Logger,
	}
}

// Route returns the tool decision for question. It never fails: model
// errors, unparseable replies and internal panics all degrade to a
// keyword or default decision.
func (r *Router) Route(ctx context.Context, question string, t *table.Table) (intent api.Intent) {
	ctx, span := observability.Tracer().Start(ctx, "router.Route")
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("intent routing panicked", "panic", rec)
			intent = api.Intent{
				Tool:       tools.TableQA,
				Confidence: 0.5,
				Reasoning:  fmt.Sprintf("Intent analysis failed: %v", rec),
				Parameters: map[string]any{},
				Source:     SourceFallback,
			}
		}
		observability.RouterDecisionsTotal.WithLabelValues(intent.Tool, intent.Source).Inc()
		span.SetAttributes(
			attribute.String("tabula.intent.tool", intent.Tool),
			attribute.String("tabula.intent.source", intent.Source),
			attribute.Float64("tabula.intent.confidence", intent.Confidence),
		)
		span.End()
		debug.Log("router", "intent decided",
			"tool", intent.Tool, "confidence", intent.Confidence, "source", intent.Source)
	}()

	if t == nil || t.NumRows() == 0 {
		return api.Intent{
			Tool:       tools.GeneralQA,
			Confidence: 1.0,
			Reasoning:  "No table data attached",
			Parameters: map[string]any{},
			Source:     SourceNoTable,
		}
	}

	if r.model != nil {
		intent, err := r.classify(ctx, question, t)
		if err == nil {
			return intent
		}
		r.logger.Warn("intent classification failed, using keyword fallback", "error", err.Error())
		span.RecordError(err)
	}

	return r.Normalize(Keywords(question), SourceKeyword)
}

// Forced returns the decision for a caller that named the tool explicitly.
func (r *Router) Forced(tool string) api.Intent {
	intent := api.Intent{
		Tool:       tool,
		Confidence: 1.0,
		Reasoning:  "Tool selected by caller",
		Parameters: map[string]any{},
		Source:     SourceForced,
	}
	observability.RouterDecisionsTotal.WithLabelValues(tool, SourceForced).Inc()
	return intent
}

func (r *Router) classify(ctx context.Context, question string, t *table.Table) (api.Intent, error) {
	reply, err := provider.Text(ctx, r.model, classifierSystem, r.buildPrompt(question, t),
		provider.WithTemperature(0), provider.WithMaxTokens(400))
	if err != nil {
		return api.Intent{}, fmt.Errorf("model call: %w", err)
	}
	debug.Trace("router", "classifier reply", "reply", reply)

	obj, ok := envelope.ExtractJSONObject(reply)
	if !ok {
		return api.Intent{}, fmt.Errorf("no JSON object in reply %q", debug.Truncate(reply, 120))
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return api.Intent{}, fmt.Errorf("decode classifier JSON: %w", err)
	}
	return r.Normalize(raw, SourceModel), nil
}

func (r *Router) buildPrompt(question string, t *table.Table) string {
	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for i, e := range Menu {
		fmt.Fprintf(&sb, "%d. %s - %s\n", i+1, e.Name, e.Description)
	}
	sb.WriteString(`
Rules:
- Use table_qa for simple lookups, statistics and comparisons.
- Use simple_chart when the user asks for a basic chart ("draw a bar chart", "make a pie chart").
- Use advanced_analytics for correlation, trend prediction, clustering or other statistical analysis.
- Use code_interpreter when answering needs several computation steps or a reshaped dataset.

Reply with a single JSON object:
{"tool": "<tool name>", "confidence": <0.0-1.0>, "reasoning": "<why>", "parameters": {"chartType": "<if applicable>", "analysisType": "<if applicable>"}}
`)
	fmt.Fprintf(&sb, "\nUser question: %s\n", question)
	fmt.Fprintf(&sb, "\nTable overview: %s. Columns: %s\n", t.Shape(), strings.Join(t.Columns, ", "))
	sb.WriteString(t.Markdown(r.sampleRows))
	return sb.String()
}

// Normalize turns a raw classifier object into a valid decision: an
// unknown tool becomes table_qa, a confidence outside [0,1] becomes 0.5,
// missing reasoning and parameters get defaults.
func (r *Router) Normalize(raw map[string]any, source string) api.Intent {
	intent := api.Intent{Source: source}

	if tool, _ := raw["tool"].(string); r.allowed[tool] {
		intent.Tool = tool
	} else {
		intent.Tool = tools.TableQA
	}

	if c, ok := raw["confidence"].(float64); ok && c >= 0 && c <= 1 {
		intent.Confidence = c
	} else {
		intent.Confidence = 0.5
	}

	if reasoning, _ := raw["reasoning"].(string); reasoning != "" {
		intent.Reasoning = reasoning
	} else {
		intent.Reasoning = DefaultReasoning
	}

	if params, ok := raw["parameters"].(map[string]any); ok {
		intent.Parameters = params
	} else {
		intent.Parameters = map[string]any{}
	}
	return intent
}

const classifierSystem = "You are a data analysis intent classifier. You pick the single best tool for a question about a table and answer with JSON only."

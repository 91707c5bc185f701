// Package chart provides simple_chart, a one-shot tool that asks the model
// for a declarative chart configuration (ECharts option shape) describing
// the attached table.
package chart

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/envelope"
	"github.com/rhuss/tabula/pkg/provider"
	"github.com/rhuss/tabula/pkg/table"
	"github.com/rhuss/tabula/pkg/tools"
)

// DefaultMaxRows caps the rows rendered into the chart prompt.
const DefaultMaxRows = 200

// TypeUnknown is reported for a configuration without series.
const TypeUnknown = "unknown"

const systemPrompt = "You are a data visualization assistant that writes ECharts chart configurations.\n\n" +
	"Steps:\n" +
	"1. Analyze the column types and the user's request.\n" +
	"2. Choose the best chart type: bar, line, pie or scatter.\n" +
	"3. Briefly explain the choice.\n" +
	"4. Output the complete configuration.\n\n" +
	"The configuration must be a complete ECharts option object with title, tooltip, legend, " +
	"xAxis and yAxis (where applicable) and series, with data mapped exactly from the table.\n\n" +
	"Output format:\n\n" +
	"## Data analysis\n[characteristics of the table]\n\n" +
	"## Chart design\n[chosen chart type and why]\n\n" +
	"## Configuration\n" +
	"```json\n" +
	`{
  "title": {"text": "Chart title", "left": "center"},
  "tooltip": {"trigger": "axis"},
  "legend": {"data": ["Series"]},
  "xAxis": {"type": "category", "data": ["A", "B"]},
  "yAxis": {"type": "value"},
  "series": [{"name": "Series", "type": "bar", "data": [1, 2]}]
}` + "\n```\n\n" +
	"If the user names no chart type, choose one from the data."

// Fallback is the placeholder configuration used when the reply holds no
// parsable JSON object.
var Fallback = json.RawMessage(`{"title":{"text":"Data chart","left":"center"},` +
	`"tooltip":{"trigger":"axis"},` +
	`"xAxis":{"type":"category","data":["Data 1","Data 2","Data 3"]},` +
	`"yAxis":{"type":"value"},` +
	`"series":[{"name":"Series","type":"bar","data":[10,20,30]}]}`)

// Tool is the simple_chart tool.
type Tool struct {
	model   provider.ChatModel
	maxRows int
	logger  *slog.Logger
	opts    []provider.RequestOption
}

var _ tools.Tool = (*Tool)(nil)

// New returns the simple_chart tool. maxRows <= 0 means DefaultMaxRows.
func New(m provider.ChatModel, maxRows int, logger *slog.Logger, opts ...provider.RequestOption) *Tool {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{model: m, maxRows: maxRows, logger: logger, opts: opts}
}

func (c *Tool) Name() string { return tools.SimpleChart }

func (c *Tool) Description() string {
	return "Draws basic charts (bar, line, pie, scatter) from the attached table"
}

func (c *Tool) Capabilities() []tools.Capability {
	return []tools.Capability{tools.CapabilityChart, tools.CapabilityText}
}

// Execute asks the model for a configuration and extracts it from the
// reply. A reply without a usable object yields Fallback, not a failure.
func (c *Tool) Execute(ctx context.Context, in tools.Input) (*tools.Result, error) {
	if in.Table.Empty() {
		return &tools.Result{
			Status: api.AnalysisStatusFailed,
			Error:  api.NewInvalidRequestError("table", "simple_chart requires table data"),
		}, nil
	}

	user := c.buildPrompt(in)
	debug.Trace("tools", "simple_chart prompt", "prompt", user)

	reply, err := provider.Text(ctx, c.model, systemPrompt, user, c.opts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return tools.Failed(err), nil
	}

	spec, ok := ExtractConfig(reply)
	if !ok {
		c.logger.Warn("chart config not found in reply, using fallback", "reply", debug.Truncate(reply, 200))
		spec = Fallback
	}
	kind := DetectType(spec)
	in.Sink().Emit(api.ProgressEvent{Type: api.ProgressChart, Content: kind, Data: spec})

	answer := strings.TrimSpace(stripConfig(reply))
	if answer == "" {
		answer = fmt.Sprintf("Generated a %s chart.", kind)
	}
	return &tools.Result{Status: api.AnalysisStatusCompleted, Answer: answer, Chart: spec}, nil
}

func (c *Tool) buildPrompt(in tools.Input) string {
	profiles := in.Table.Profile()
	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n\n", in.Question)
	b.WriteString("Data profile:\n")
	fmt.Fprintf(&b, "- rows: %d\n", in.Table.NumRows())
	fmt.Fprintf(&b, "- columns: %d\n", in.Table.NumColumns())
	fmt.Fprintf(&b, "- numeric columns: %s\n", joinOrNone(table.NumericColumns(profiles)))
	fmt.Fprintf(&b, "- text columns: %s\n\n", joinOrNone(table.TextColumns(profiles)))
	b.WriteString("Table data:\n")
	b.WriteString(in.Table.Markdown(c.maxRows))
	b.WriteString("\n")
	if kind := suggestedType(in.Intent); kind != "" {
		fmt.Fprintf(&b, "Suggested chart type: %s\n\n", kind)
	}
	b.WriteString("Produce the most suitable chart configuration for this request and data.")
	return b.String()
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func suggestedType(intent *api.Intent) string {
	if intent == nil {
		return ""
	}
	for _, key := range []string{"chart_type", "chartType"} {
		if s, ok := intent.Parameters[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ExtractConfig returns the first JSON object in reply, preferring a
// ```json fence. It reports false when no object parses.
func ExtractConfig(reply string) (json.RawMessage, bool) {
	obj, ok := envelope.ExtractJSONObject(reply)
	if !ok {
		return nil, false
	}
	var probe map[string]any
	if err := json.Unmarshal([]byte(obj), &probe); err != nil {
		return nil, false
	}
	return json.RawMessage(obj), true
}

// DetectType returns series[0].type, "bar" for a typeless first series, or
// TypeUnknown when there are no series.
func DetectType(spec json.RawMessage) string {
	var cfg struct {
		Series []struct {
			Type string `json:"type"`
		} `json:"series"`
	}
	if err := json.Unmarshal(spec, &cfg); err != nil || len(cfg.Series) == 0 {
		return TypeUnknown
	}
	if cfg.Series[0].Type == "" {
		return "bar"
	}
	return cfg.Series[0].Type
}

func stripConfig(reply string) string {
	start := strings.Index(reply, "```json")
	if start < 0 {
		return reply
	}
	end := strings.Index(reply[start+len("```json"):], "```")
	if end < 0 {
		return reply[:start]
	}
	return reply[:start] + reply[start+len("```json")+end+len("```"):]
}

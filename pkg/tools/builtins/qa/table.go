package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/provider"
	"github.com/rhuss/tabula/pkg/tools"
)

// DefaultMaxRows caps the rows rendered into the table_qa prompt.
const DefaultMaxRows = 100

const tableSystemPrompt = `You are a data analysis assistant answering questions about table data.

You can:
1. Look up specific values in the table.
2. Compute simple statistics such as sums, averages, maxima and minima.
3. Compare rows or columns.
4. Summarize the main characteristics and trends of the data.

Requirements:
1. Base the answer on the provided table only.
2. If the data is insufficient, say so plainly.
3. Give concrete numbers and facts.
4. Keep the answer concise.
5. If a chart would help, suggest that the user ask for one.

Do not make forecasts or complex inferences; suggest an explicit analysis request instead.`

// VisualizationSuggestion is appended when the question or answer talks
// about trends, comparisons or distributions.
const VisualizationSuggestion = `Suggestion: this data can be shown more clearly as a chart. Ask to "make a chart" or "visualize the data".`

var visualKeywords = []string{
	"trend", "change", "compare", "comparison", "distribution", "relationship", "proportion",
	"趋势", "变化", "对比", "分布", "关系", "比例",
}

// TableQA answers questions about an attached table in one model call.
type TableQA struct {
	model   provider.ChatModel
	maxRows int
	opts    []provider.RequestOption
}

var _ tools.Tool = (*TableQA)(nil)

// NewTableQA returns the table_qa tool. maxRows <= 0 means DefaultMaxRows.
func NewTableQA(m provider.ChatModel, maxRows int, opts ...provider.RequestOption) *TableQA {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &TableQA{model: m, maxRows: maxRows, opts: opts}
}

func (q *TableQA) Name() string { return tools.TableQA }

func (q *TableQA) Description() string {
	return "Answers lookups, comparisons and simple statistics over the attached table"
}

func (q *TableQA) Capabilities() []tools.Capability {
	return []tools.Capability{tools.CapabilityText, tools.CapabilityTable}
}

func (q *TableQA) Execute(ctx context.Context, in tools.Input) (*tools.Result, error) {
	if in.Table.Empty() {
		return &tools.Result{
			Status: api.AnalysisStatusFailed,
			Error:  api.NewInvalidRequestError("table", "table_qa requires table data"),
		}, nil
	}
	if strings.TrimSpace(in.Question) == "" {
		return &tools.Result{
			Status: api.AnalysisStatusFailed,
			Error:  api.NewInvalidRequestError("question", "question is required"),
		}, nil
	}

	user := q.buildPrompt(in)
	debug.Trace("tools", "table_qa prompt", "prompt", user)

	answer, err := provider.Text(ctx, q.model, tableSystemPrompt, user, q.opts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return tools.Failed(err), nil
	}
	if NeedsVisualization(in.Question, answer) {
		answer = strings.TrimRight(answer, "\n") + "\n\n" + VisualizationSuggestion
	}
	return &tools.Result{Status: api.AnalysisStatusCompleted, Answer: answer}, nil
}

func (q *TableQA) buildPrompt(in tools.Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table data (%s):\n\n", in.Table.Shape())
	b.WriteString(in.Table.Markdown(q.maxRows))
	fmt.Fprintf(&b, "\nQuestion: %s\n\nAnswer based on the table above.", in.Question)
	return b.String()
}

// NeedsVisualization reports whether the exchange would benefit from a chart.
func NeedsVisualization(question, answer string) bool {
	return containsAny(strings.ToLower(question), visualKeywords) ||
		containsAny(strings.ToLower(answer), visualKeywords)
}

package qa

import (
	"context"
	"strings"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/provider"
	"github.com/rhuss/tabula/pkg/tools"
)

const generalSystemPrompt = `You are a helpful assistant answering general questions.

The user has not attached table data, or the question is not about table data.

Your task:
1. Answer the question in a friendly, professional way.
2. If the question involves data analysis or table operations, suggest that the user attach table data for better help.
3. Keep the answer concise.`

const dataHint = "\n\nNote: if you need analysis of concrete data or a chart, attach the table data first so the answer can be based on it."

// DataSuggestion is appended to answers of data-related questions.
const DataSuggestion = "Tip: attach table data to get precise analysis and charts."

var dataKeywords = []string{
	"data", "table", "chart", "analysis", "statistics", "visualization",
	"graph", "plot", "trend", "compare", "summary", "filter", "sort",
	"calculate", "formula", "function",
	"数据", "表格", "图表", "分析", "统计", "可视化", "柱状图", "折线图", "饼图",
	"趋势", "对比", "汇总", "筛选", "排序", "计算", "公式", "函数",
}

// General answers questions that need no table.
type General struct {
	model provider.ChatModel
	opts  []provider.RequestOption
}

var _ tools.Tool = (*General)(nil)

// NewGeneral returns the general_qa tool.
func NewGeneral(m provider.ChatModel, opts ...provider.RequestOption) *General {
	return &General{model: m, opts: opts}
}

func (g *General) Name() string { return tools.GeneralQA }

func (g *General) Description() string {
	return "Answers general questions and requests that do not involve table data"
}

func (g *General) Capabilities() []tools.Capability {
	return []tools.Capability{tools.CapabilityText}
}

// Execute makes one model call. Questions that look data-related carry a
// hint to attach a table, and the answer ends with DataSuggestion.
func (g *General) Execute(ctx context.Context, in tools.Input) (*tools.Result, error) {
	question := strings.TrimSpace(in.Question)
	if len([]rune(question)) < 2 {
		return &tools.Result{
			Status: api.AnalysisStatusFailed,
			Error:  api.NewInvalidRequestError("question", "question is too short"),
		}, nil
	}

	related := IsDataRelated(question)
	user := question
	if related {
		user += dataHint
	}
	debug.Log("tools", "general_qa", "data_related", related)

	answer, err := provider.Text(ctx, g.model, generalSystemPrompt, user, g.opts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return tools.Failed(err), nil
	}
	if related {
		answer = strings.TrimRight(answer, "\n") + "\n\n" + DataSuggestion
	}
	return &tools.Result{Status: api.AnalysisStatusCompleted, Answer: answer}, nil
}

// IsDataRelated reports whether question mentions data analysis terms.
func IsDataRelated(question string) bool {
	return containsAny(strings.ToLower(question), dataKeywords)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

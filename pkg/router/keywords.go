package router

import (
	"strings"

	"github.com/rhuss/tabula/pkg/tools"
)

// Advanced terms are checked before chart terms, so "plot the trend"
// routes to advanced analytics.
var advancedKeywords = []string{
	"相关性", "相关关系", "correlation",
	"趋势分析", "预测", "trend", "forecast", "predict",
	"聚类", "分组", "cluster",
	"回归", "统计分析", "regression", "statistical",
	"方差", "分布", "variance", "distribution",
}

var chartKeywords = []string{
	"图", "图表", "可视化", "画", "绘制", "展示",
	"柱状图", "折线图", "饼图", "散点图",
	"chart", "plot", "graph", "visualize", "visualise",
}

// Keywords classifies question by keyword matching. The returned map has
// the same shape as a model reply and is meant for Router.Normalize.
func Keywords(question string) map[string]any {
	q := strings.ToLower(question)

	if matched := matchAll(q, advancedKeywords); len(matched) > 0 {
		return map[string]any{
			"tool":       tools.AdvancedAnalytics,
			"confidence": 0.8,
			"reasoning":  "Detected advanced analysis keywords: " + strings.Join(matched, ", "),
			"parameters": map[string]any{"analysisType": "general"},
		}
	}

	if matched := matchAll(q, chartKeywords); len(matched) > 0 {
		return map[string]any{
			"tool":       tools.SimpleChart,
			"confidence": 0.8,
			"reasoning":  "Detected chart keywords: " + strings.Join(matched, ", "),
			"parameters": map[string]any{"chartType": "auto"},
		}
	}

	return map[string]any{
		"tool":       tools.TableQA,
		"confidence": 0.6,
		"reasoning":  "Default to table QA",
		"parameters": map[string]any{},
	}
}

func matchAll(s string, keywords []string) []string {
	var out []string
	for _, k := range keywords {
		if strings.Contains(s, k) {
			out = append(out, k)
		}
	}
	return out
}

package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/table"
	"github.com/rhuss/tabula/pkg/tools"
)

type fakeAnalyzer struct {
	last   *api.AnalyzeRequest
	result *api.Analysis
	err    error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req *api.AnalyzeRequest, sink api.ProgressSink) (*api.Analysis, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeRouter struct{}

func (fakeRouter) Route(_ context.Context, q string, t *table.Table) api.Intent {
	if t == nil {
		return api.Intent{Tool: tools.GeneralQA, Confidence: 1, Source: "no_table"}
	}
	return api.Intent{Tool: tools.SimpleChart, Confidence: 0.9, Source: "keyword"}
}

type fakeLister struct{}

func (fakeLister) ListTools() []tools.Descriptor {
	return []tools.Descriptor{{Name: tools.TableQA}, {Name: tools.SimpleChart}}
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	go func() {
		_ = s.MCPServer().Run(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func text(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestListTools(t *testing.T) {
	session := connect(t, NewServer(&fakeAnalyzer{}, fakeRouter{}, Config{Tools: fakeLister{}}))

	var names []string
	for tool, err := range session.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("listing tools: %v", err)
		}
		names = append(names, tool.Name)
	}
	if len(names) != 2 {
		t.Fatalf("tools = %v, want analyze_table and route_question", names)
	}

	session = connect(t, NewServer(&fakeAnalyzer{}, nil, Config{}))
	names = nil
	for tool, err := range session.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("listing tools: %v", err)
		}
		names = append(names, tool.Name)
	}
	if len(names) != 1 || names[0] != ToolAnalyzeTable {
		t.Errorf("tools without router = %v", names)
	}
}

func TestAnalyzeTable(t *testing.T) {
	a := &fakeAnalyzer{result: &api.Analysis{
		ID:     "an_0123456789abcdef0123456789abcdef",
		Status: api.AnalysisStatusCompleted,
		Tool:   tools.SimpleChart,
		Answer: "Berlin leads",
		Chart:  map[string]any{"type": "bar"},
	}}
	session := connect(t, NewServer(a, fakeRouter{}, Config{}))

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: ToolAnalyzeTable,
		Arguments: map[string]any{
			"question": "plot sales by city",
			"table":    []any{[]any{"city", "sales"}, []any{"Berlin", 10}, []any{"Paris", 7}},
			"tool":     tools.SimpleChart,
		},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", text(res))
	}
	got := text(res)
	if !strings.Contains(got, "Berlin leads") || !strings.Contains(got, `"type":"bar"`) {
		t.Errorf("content = %q", got)
	}

	if a.last == nil || a.last.Tool != tools.SimpleChart {
		t.Fatalf("request = %+v", a.last)
	}
	if a.last.Table.NumRows() != 2 || a.last.Table.Columns[1] != "sales" {
		t.Errorf("table = %+v", a.last.Table)
	}
}

func TestAnalyzeTable_Errors(t *testing.T) {
	tests := []struct {
		name     string
		analyzer *fakeAnalyzer
		args     map[string]any
		want     string
	}{
		{
			name:     "missing question",
			analyzer: &fakeAnalyzer{},
			args:     map[string]any{},
			want:     "question is required",
		},
		{
			name:     "bad table",
			analyzer: &fakeAnalyzer{},
			args:     map[string]any{"question": "sum", "table": "not a table"},
			want:     "invalid table",
		},
		{
			name:     "rejected request",
			analyzer: &fakeAnalyzer{err: api.NewInvalidRequestError("tool", `unknown tool "x"`)},
			args:     map[string]any{"question": "sum", "tool": "x"},
			want:     `unknown tool "x"`,
		},
		{
			name: "failed analysis",
			analyzer: &fakeAnalyzer{result: &api.Analysis{
				Status: api.AnalysisStatusFailed,
				Error:  api.NewSandboxError("sandbox unavailable"),
			}},
			args: map[string]any{"question": "sum"},
			want: "sandbox unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := connect(t, NewServer(tt.analyzer, nil, Config{}))
			res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
				Name:      ToolAnalyzeTable,
				Arguments: tt.args,
			})
			if err != nil {
				t.Fatalf("CallTool: %v", err)
			}
			if !res.IsError {
				t.Error("expected IsError")
			}
			if !strings.Contains(text(res), tt.want) {
				t.Errorf("content = %q, want %q", text(res), tt.want)
			}
		})
	}
}

func TestRouteQuestion(t *testing.T) {
	session := connect(t, NewServer(&fakeAnalyzer{}, fakeRouter{}, Config{}))

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: ToolRouteQuestion,
		Arguments: map[string]any{
			"question": "chart it",
			"table":    map[string]any{"columns": []string{"a"}, "rows": [][]any{{1}}},
		},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !strings.Contains(text(res), `"tool":"simple_chart"`) {
		t.Errorf("content = %q", text(res))
	}

	res, err = session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolRouteQuestion,
		Arguments: map[string]any{"question": "hello"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !strings.Contains(text(res), `"tool":"general_qa"`) {
		t.Errorf("content = %q", text(res))
	}
}

func TestHandlerServesStreamableHTTP(t *testing.T) {
	s := NewServer(&fakeAnalyzer{}, fakeRouter{}, Config{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "http-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{
		Endpoint:   srv.URL,
		HTTPClient: http.DefaultClient,
	}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolRouteQuestion,
		Arguments: map[string]any{"question": "hello"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Errorf("unexpected error: %s", text(res))
	}
}

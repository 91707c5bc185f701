// Package mcp exposes tabula as a Model Context Protocol server. The tools
// analyze_table and route_question are served over streamable HTTP, so
// MCP-capable assistants can hand a table and a question to the gateway.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/table"
	"github.com/rhuss/tabula/pkg/transport"
)

// Tool names.
const (
	ToolAnalyzeTable  = "analyze_table"
	ToolRouteQuestion = "route_question"
)

// Analyzer runs one analysis. *engine.Engine implements it.
type Analyzer interface {
	Analyze(ctx context.Context, req *api.AnalyzeRequest, sink api.ProgressSink) (*api.Analysis, error)
}

// Router classifies a question. *router.Router implements it.
type Router interface {
	Route(ctx context.Context, question string, t *table.Table) api.Intent
}

// Config configures the MCP server.
type Config struct {
	// Name and Version identify the server in the initialize handshake.
	Name    string
	Version string

	// Tools, when set, is used to describe the forced-tool choices in the
	// analyze_table schema.
	Tools transport.ToolLister

	Logger *slog.Logger
}

// Server wraps an mcp.Server with the tabula tools registered.
type Server struct {
	server   *mcp.Server
	analyzer Analyzer
	router   Router
	logger   *slog.Logger
}

// NewServer creates the MCP server. The router may be nil, in which case
// route_question is not offered.
func NewServer(a Analyzer, r Router, cfg Config) *Server {
	if cfg.Name == "" {
		cfg.Name = "tabula"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		server:   mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		analyzer: a,
		router:   r,
		logger:   cfg.Logger,
	}

	s.server.AddTool(&mcp.Tool{
		Name: ToolAnalyzeTable,
		Description: "Answers a natural-language question about a table. " +
			"The table is an object {columns, rows}, an array of records, or an array of arrays with a header row.",
		InputSchema: analyzeSchema(cfg.Tools),
	}, s.handleAnalyze)

	if r != nil {
		s.server.AddTool(&mcp.Tool{
			Name:        ToolRouteQuestion,
			Description: "Returns which analysis tool would handle a question, with confidence and reasoning",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{"type": "string"},
					"table":    tableSchema,
				},
				"required": []string{"question"},
			},
		}, s.handleRoute)
	}
	return s
}

var tableSchema = map[string]any{
	"description": "Tabular data: {columns, rows}, an array of records, or an array of arrays",
	"type":        []string{"object", "array"},
}

func analyzeSchema(lister transport.ToolLister) map[string]any {
	toolProp := map[string]any{
		"type":        "string",
		"description": "Forces a tool instead of routing",
	}
	if lister != nil {
		var names []string
		for _, d := range lister.ListTools() {
			names = append(names, d.Name)
		}
		toolProp["enum"] = names
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{"type": "string"},
			"table":    tableSchema,
			"tool":     toolProp,
		},
		"required": []string{"question"},
	}
}

// MCPServer returns the underlying server, for transports other than HTTP.
func (s *Server) MCPServer() *mcp.Server { return s.server }

// Handler returns a streamable HTTP handler serving every session with the
// same server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

type arguments struct {
	Question string          `json:"question"`
	Table    json.RawMessage `json:"table,omitempty"`
	Tool     string          `json:"tool,omitempty"`
}

func (a *arguments) decode(raw json.RawMessage) (*table.Table, error) {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, a); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if strings.TrimSpace(a.Question) == "" {
		return nil, fmt.Errorf("question is required")
	}
	if len(a.Table) == 0 || string(a.Table) == "null" {
		return nil, nil
	}
	t, err := table.Decode(a.Table)
	if err != nil {
		return nil, fmt.Errorf("invalid table: %w", err)
	}
	return t, nil
}

func (s *Server) handleAnalyze(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args arguments
	t, err := args.decode(req.Params.Arguments)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	a, err := s.analyzer.Analyze(ctx, &api.AnalyzeRequest{
		Question: args.Question,
		Table:    t,
		Tool:     args.Tool,
	}, progressSink(ctx, req, s.logger))
	if err != nil {
		if apiErr, ok := err.(*api.APIError); ok {
			return errorResult(apiErr.Message), nil
		}
		return nil, err
	}
	debug.Log("mcp", "analysis finished", "id", a.ID, "tool", a.Tool, "status", a.Status)
	return analysisResult(a), nil
}

func (s *Server) handleRoute(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args arguments
	t, err := args.decode(req.Params.Arguments)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	intent := s.router.Route(ctx, args.Question, t)
	data, err := json.Marshal(intent)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(data)}},
		StructuredContent: intent,
	}, nil
}

// analysisResult renders the answer as text, the chart spec as a second
// JSON text block, and the whole analysis as structured content.
func analysisResult(a *api.Analysis) *mcp.CallToolResult {
	res := &mcp.CallToolResult{StructuredContent: a}

	switch {
	case a.Error != nil:
		res.IsError = true
		res.Content = append(res.Content, &mcp.TextContent{Text: a.Error.Message})
	case a.Answer != "":
		res.Content = append(res.Content, &mcp.TextContent{Text: a.Answer})
	}
	if a.Chart != nil {
		if data, err := json.Marshal(a.Chart); err == nil {
			res.Content = append(res.Content, &mcp.TextContent{Text: string(data)})
		}
	}
	if len(res.Content) == 0 {
		res.Content = []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("analysis %s", a.Status)}}
	}
	return res
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// progressSink forwards agent progress as MCP progress notifications when
// the client asked for them with a progress token.
func progressSink(ctx context.Context, req *mcp.CallToolRequest, logger *slog.Logger) api.ProgressSink {
	token := req.Params.GetProgressToken()
	if token == nil || req.Session == nil {
		return nil
	}
	var n float64
	return api.ProgressFunc(func(ev api.ProgressEvent) {
		n++
		msg := string(ev.Type)
		if ev.Content != "" {
			msg += ": " + debug.Truncate(ev.Content, 200)
		}
		err := req.Session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
			ProgressToken: token,
			Progress:      n,
			Message:       msg,
		})
		if err != nil {
			logger.Debug("progress notification failed", "error", err)
		}
	})
}

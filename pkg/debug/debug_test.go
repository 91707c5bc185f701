package debug

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]bool
	}{
		{"empty", "", map[string]bool{}},
		{"single", "sandbox", map[string]bool{"sandbox": true}},
		{"multiple", "router,agent", map[string]bool{"router": true, "agent": true}},
		{"all", "all", map[string]bool{"all": true}},
		{"with spaces", " router , agent ", map[string]bool{"router": true, "agent": true}},
		{"uppercase normalized", "ROUTER,Agent", map[string]bool{"router": true, "agent": true}},
		{"empty segments", "router,,agent", map[string]bool{"router": true, "agent": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategories(tt.input)
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %v, want %v", k, got[k], v)
				}
			}
			if len(got) != len(tt.want) {
				t.Errorf("len(got) = %d, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	orig := categories
	t.Cleanup(func() { categories = orig })

	tests := []struct {
		set string
		on  []string
		off []string
	}{
		{set: "router,agent", on: []string{"router", "agent"}, off: []string{"mcp", "all"}},
		{set: "all", on: []string{"router", "agent", "anything"}},
		{set: "", off: []string{"router", "sandbox"}},
	}
	for _, tt := range tests {
		t.Run("set="+tt.set, func(t *testing.T) {
			categories = parseCategories(tt.set)
			for _, c := range tt.on {
				if !Enabled(c) {
					t.Errorf("%s should be enabled", c)
				}
			}
			for _, c := range tt.off {
				if Enabled(c) {
					t.Errorf("%s should be disabled", c)
				}
			}
		})
	}

	// Disabled categories are silent no-ops.
	categories = parseCategories("")
	Log("router", "test message", "key", "value")
	Trace("router", "trace message", "key", "value")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"TRACE", LevelTrace},
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate short = %q, want %q", got, "short")
	}
	if got := Truncate("this is a long string", 10); got != "this is a ..." {
		t.Errorf("Truncate long = %q, want %q", got, "this is a ...")
	}
	if got := Truncate("数据分析报告", 4); got != "数据分析..." {
		t.Errorf("Truncate multibyte = %q, want %q", got, "数据分析...")
	}
}

func TestInitJSONAndTraceLevel(t *testing.T) {
	origCats := categories
	origLogger := slog.Default()
	defer func() {
		categories = origCats
		slog.SetDefault(origLogger)
	}()
	t.Setenv("TABULA_DEBUG", "")
	t.Setenv("TABULA_LOG_LEVEL", "")

	var buf bytes.Buffer
	Init(Options{Categories: "agent", Level: "TRACE", Format: "json", Output: &buf})

	if !TraceIsEnabled("agent") {
		t.Fatal("trace should be enabled for agent")
	}
	if TraceIsEnabled("router") {
		t.Error("trace should not be enabled for router")
	}

	Trace("agent", "prompt", "round", 1)
	out := buf.String()
	if !strings.Contains(out, `"level":"TRACE"`) || !strings.Contains(out, `"debug":"agent"`) {
		t.Errorf("unexpected log output: %s", out)
	}
}

func TestInitEnvOverridesOptions(t *testing.T) {
	origCats := categories
	origLogger := slog.Default()
	defer func() {
		categories = origCats
		slog.SetDefault(origLogger)
	}()
	t.Setenv("TABULA_DEBUG", "sandbox")
	t.Setenv("TABULA_LOG_LEVEL", "ERROR")

	var buf bytes.Buffer
	logger := Init(Options{Categories: "agent", Level: "DEBUG", Output: &buf})

	if Enabled("agent") || !Enabled("sandbox") {
		t.Errorf("categories = %v, want env value", Categories())
	}
	if logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("WARN should be filtered at ERROR level")
	}
}

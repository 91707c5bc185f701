package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/config"
	"github.com/rhuss/tabula/pkg/router"
	"github.com/rhuss/tabula/pkg/sandbox"
	"github.com/rhuss/tabula/pkg/setup"
	"github.com/rhuss/tabula/pkg/table"
)

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func loadConfig(cli *CLI) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, nil, err
	}
	return cfg, setup.Logger(cfg), nil
}

// loadTable reads path, or returns nil when no file was given.
func loadTable(path, sheet string) (*table.Table, error) {
	if path == "" {
		return nil, nil
	}
	t, err := table.LoadFile(path, sheet)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return t, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Run executes the ask command.
func (c *AskCmd) Run(cli *CLI) error {
	cfg, logger, err := loadConfig(cli)
	if err != nil {
		return err
	}
	tbl, err := loadTable(c.File, c.Sheet)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	stack, err := setup.Build(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer stack.Close()

	var sink api.ProgressSink
	if !c.Quiet {
		sink = api.ProgressFunc(func(ev api.ProgressEvent) { printProgress(stderr, ev) })
	}

	a, err := stack.Engine.Analyze(ctx, &api.AnalyzeRequest{
		Question: c.Question,
		Table:    tbl,
		Tool:     c.Tool,
	}, sink)
	if err != nil {
		return err
	}
	return printAnalysis(stdout, a, c.JSON)
}

// Run executes the route command.
func (c *RouteCmd) Run(cli *CLI) error {
	cfg, logger, err := loadConfig(cli)
	if err != nil {
		return err
	}
	tbl, err := loadTable(c.File, c.Sheet)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	var r *router.Router
	if c.Keywords {
		r = router.New(router.Config{SampleRows: cfg.Router.SampleRows, Logger: logger})
	} else {
		m, err := setup.Model(cfg)
		if err != nil {
			return err
		}
		defer m.Close()
		r = setup.Router(cfg, m, logger)
	}
	return writeJSON(stdout, r.Route(ctx, c.Question, tbl))
}

// Run executes the exec command.
func (c *ExecCmd) Run(cli *CLI) error {
	cfg, logger, err := loadConfig(cli)
	if err != nil {
		return err
	}
	code, err := os.ReadFile(c.Code)
	if err != nil {
		return err
	}
	tbl, err := loadTable(c.File, c.Sheet)
	if err != nil {
		return err
	}
	lc, err := setup.LocalConfig(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	exec := sandbox.NewLocal(lc)
	defer exec.Close()

	res, err := exec.Execute(ctx, string(code), tbl)
	if err != nil {
		return err
	}
	if err := writeJSON(stdout, res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("execution failed: %s", res.Error)
	}
	return nil
}

// Run executes the tools command.
func (c *ToolsCmd) Run(cli *CLI) error {
	cfg, logger, err := loadConfig(cli)
	if err != nil {
		return err
	}
	stack, err := setup.Build(context.Background(), cfg, logger, false)
	if err != nil {
		return err
	}
	defer stack.Close()

	for _, d := range stack.Engine.ListTools() {
		fmt.Fprintf(stdout, "%-20s %s\n", d.Name, d.Description)
	}
	return nil
}

// Run executes the version command.
func (c *VersionCmd) Run() error {
	fmt.Fprintf(stdout, "tabula version %s (commit: %s, built: %s)\n", version, commit, buildTime)
	return nil
}

func printProgress(w io.Writer, ev api.ProgressEvent) {
	switch ev.Type {
	case api.ProgressModelStart:
		fmt.Fprintf(w, "▶ Round %d: asking the model\n", ev.Round)
	case api.ProgressThought:
		fmt.Fprintf(w, "  💭 %s\n", ev.Content)
	case api.ProgressCodeStart:
		fmt.Fprintf(w, "  → Running code\n")
	case api.ProgressCodeEnd:
		fmt.Fprintf(w, "  ✓ %s\n", table.Truncate(ev.Content, 200))
	case api.ProgressChart:
		fmt.Fprintf(w, "  📊 Chart produced\n")
	case api.ProgressError:
		fmt.Fprintf(w, "  ✗ %s\n", ev.Content)
	}
}

func printAnalysis(w io.Writer, a *api.Analysis, asJSON bool) error {
	if asJSON {
		return writeJSON(w, a)
	}
	if a.Error != nil {
		return fmt.Errorf("analysis %s (%s): %s", a.Status, a.Tool, a.Error.Message)
	}
	fmt.Fprintln(w, a.Answer)
	if a.Chart != nil {
		data, err := json.MarshalIndent(a.Chart, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\nChart:\n%s\n", data)
	}
	if a.Table != nil {
		fmt.Fprintf(w, "\nResult table (%s):\n%s", a.Table.Shape(), a.Table.Markdown(20))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

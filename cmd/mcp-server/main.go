// Command mcp-server exposes tabula over the Model Context Protocol. It
// provides the "analyze_table" and "route_question" tools over streamable
// HTTP, using the same configuration as the gateway.
//
//	TABULA_MCP_PORT    - Listen port (default: 8090)
//	TABULA_BACKEND_URL - Chat Completions backend URL (required)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rhuss/tabula/pkg/config"
	"github.com/rhuss/tabula/pkg/setup"
	"github.com/rhuss/tabula/pkg/transport/mcp"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file (YAML or TOML)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("mcp server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := setup.Logger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := setup.Build(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer stack.Close()

	authMW, err := setup.AuthMiddleware(cfg, logger)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	server := mcp.NewServer(stack.Engine, stack.Router, mcp.Config{
		Version: version,
		Tools:   stack.Engine,
		Logger:  logger,
	})

	mux := http.NewServeMux()
	mux.Handle(cfg.MCP.Path, authMW(server.Handler()))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MCP.Port),
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp server starting", "port", cfg.MCP.Port, "path", cfg.MCP.Path)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

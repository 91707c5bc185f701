// Command server runs the tabula analysis gateway.
//
// Configuration is read from a YAML or TOML file (see pkg/config) and
// TABULA_* environment variables, for example:
//
//	TABULA_BACKEND_URL  - Chat Completions backend URL (required)
//	TABULA_MODEL        - Model name sent to the backend
//	TABULA_PORT         - Listen port (default: 8080)
//	TABULA_STORAGE      - Storage type: "memory" or "postgres" (default: "memory")
//	TABULA_SANDBOX_MODE - "local" (embedded runtime) or "remote"
//	TABULA_AUTH_TYPE    - "none", "apikey" or "jwt"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/rhuss/tabula/pkg/config"
	"github.com/rhuss/tabula/pkg/setup"
	transporthttp "github.com/rhuss/tabula/pkg/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML or TOML)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := setup.Logger(cfg)

	stack, err := setup.Build(context.Background(), cfg, logger, true)
	if err != nil {
		return err
	}
	defer stack.Close()

	authMW, err := setup.AuthMiddleware(cfg, logger)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	srv := transporthttp.NewServer(stack.Engine, stack.Store,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithReadTimeout(cfg.Server.ReadTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithMetrics(cfg.Observability.Metrics.Enabled),
		transporthttp.WithLogger(logger),
		transporthttp.WithHTTPMiddleware(authMW),
	)

	logger.Info("server starting",
		"port", cfg.Server.Port,
		"backend", cfg.Model.BackendURL,
		"model", cfg.Model.Model,
		"sandbox", cfg.Sandbox.Mode,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
	)
	return srv.ListenAndServe()
}

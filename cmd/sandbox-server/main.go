// Command sandbox-server runs generated analysis code for remote gateways.
// Each request gets a fresh embedded JavaScript runtime with no host
// filesystem, network or process access.
//
// Endpoints:
//
//	POST /execute - {code, dataset, timeout_seconds} -> sandbox result
//	GET  /health  - capacity, current load and uptime
//
// Configuration (see pkg/config):
//
//	TABULA_SANDBOX_PORT           - Listen port (default: 8081)
//	TABULA_SANDBOX_MAX_CONCURRENT - Max concurrent executions (default: 4)
//	TABULA_SANDBOX_TIMEOUT        - Default execution timeout (default: 30s)
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
	"time"

	"github.com/rhuss/tabula/pkg/config"
	"github.com/rhuss/tabula/pkg/sandbox"
	"github.com/rhuss/tabula/pkg/setup"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML or TOML)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("sandbox server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := setup.Logger(cfg)

	local, err := setup.LocalConfig(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc := cfg.Sandbox.Server
	srv := sandbox.NewServer(ctx, sandbox.ServerConfig{
		MaxConcurrent:  sc.MaxConcurrent,
		DefaultTimeout: cfg.Sandbox.ExecTimeout,
		MaxTimeout:     sc.MaxTimeout,
		Local:          local,
		Logger:         logger,
	})

	httpSrv := &http.Server{
		Addr:        fmt.Sprintf(":%d", sc.Port),
		Handler:     srv.Handler(),
		ReadTimeout: 30 * time.Second,
		// Executions may run up to MaxTimeout.
		WriteTimeout: sc.MaxTimeout + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sandbox server starting",
			"port", sc.Port,
			"max_concurrent", sc.MaxConcurrent,
			"preload", len(local.Preload),
		)
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

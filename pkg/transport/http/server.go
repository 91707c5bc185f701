package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/tabula/pkg/observability"
	"github.com/rhuss/tabula/pkg/transport"
)

// Server wraps an http.Server with the adapter plus the health and
// metrics endpoints, and manages startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	store      transport.AnalysisStore
	config     ServerConfig
	logger     *slog.Logger
	wrap       []func(http.Handler) http.Handler
	handler    http.Handler
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	EnableMetrics   bool
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     DefaultConfig().MaxBodySize,
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		EnableMetrics:   true,
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithReadTimeout bounds reading request headers.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ReadTimeout = d }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithMetrics toggles the /metrics endpoint.
func WithMetrics(enabled bool) ServerOption {
	return func(s *Server) { s.config.EnableMetrics = enabled }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithHTTPMiddleware wraps the whole handler, innermost first. The auth
// middleware is installed this way.
func WithHTTPMiddleware(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.wrap = append(s.wrap, mw...) }
}

// NewServer creates a server for creator. The store is optional (nil for
// stateless deployments). Recovery, request ID and logging middleware are
// always applied to the creator.
func NewServer(creator transport.AnalysisCreator, store transport.AnalysisStore, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
		store:  store,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.adapter = NewAdapter(creator, store, Config{MaxBodySize: s.config.MaxBodySize},
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	)

	s.handler = s.buildHandler()
	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: s.config.ReadTimeout,
	}
	return s
}

// Handler returns the complete HTTP handler: API routes, /healthz and
// optionally /metrics, wrapped in request metrics and any configured
// middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// buildHandler mounts the probes on the adapter's mux so that every route
// reports its own pattern to the request metrics.
func (s *Server) buildHandler() http.Handler {
	s.adapter.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.config.EnableMetrics {
		s.adapter.mux.Handle("GET /metrics", promhttp.Handler())
	}

	h := s.adapter.Handler()
	for _, mw := range s.wrap {
		h = mw(h)
	}
	return observability.MetricsMiddleware(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			http.Error(w, "store unavailable\n", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// ListenAndServe starts the server and blocks until SIGINT or SIGTERM,
// then shuts down gracefully.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}
	return s.shutdown()
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if n := s.adapter.CancelAll(); n > 0 {
		s.logger.Info("cancelled in-flight analyses", slog.Int("count", n))
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	s.adapter.CancelAll()
	return s.httpServer.Shutdown(ctx)
}

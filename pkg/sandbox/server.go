package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rhuss/tabula/pkg/table"
)

// ServerConfig configures the sandbox HTTP server.
type ServerConfig struct {
	// MaxConcurrent bounds in-flight executions; excess requests get 429.
	MaxConcurrent int

	// DefaultTimeout applies when a request omits timeout_seconds.
	DefaultTimeout time.Duration

	// MaxTimeout caps timeout_seconds.
	MaxTimeout time.Duration

	// Local configures the per-request executor. Its ExecTimeout is
	// replaced by the request's timeout.
	Local LocalConfig

	Logger *slog.Logger
}

// Server exposes a Local executor over HTTP: POST /execute and GET /health.
// Every request gets a fresh runtime, so fragments never see each other.
type Server struct {
	cfg         ServerConfig
	logger      *slog.Logger
	currentLoad atomic.Int32
	startTime   time.Time
	setupErr    error
}

// NewServer creates a Server and verifies that the runtime (including any
// preload scripts) sets up. A setup failure is kept and reported as 503.
func NewServer(ctx context.Context, cfg ServerConfig) *Server {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultExecTimeout
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{cfg: cfg, logger: cfg.Logger, startTime: time.Now()}

	probe := NewLocal(cfg.Local)
	defer probe.Close()
	if err := probe.Ready(ctx); err != nil {
		s.setupErr = err
		s.logger.Error("sandbox runtime failed to initialize", "error", err)
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if s.setupErr != nil {
		writeError(w, http.StatusServiceUnavailable, s.setupErr.Error())
		return
	}

	// Check capacity.
	current := s.currentLoad.Add(1)
	defer s.currentLoad.Add(-1)

	if current > int32(s.cfg.MaxConcurrent) {
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("at capacity (%d/%d concurrent executions)", current, s.cfg.MaxConcurrent))
		return
	}

	var req ExecuteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 32*1024*1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	var dataset *table.Table
	if len(req.Dataset) > 0 && string(req.Dataset) != "null" {
		t, err := table.Decode(req.Dataset)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid dataset: "+err.Error())
			return
		}
		dataset = t
	}

	timeout := s.cfg.DefaultTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	if timeout > s.cfg.MaxTimeout {
		timeout = s.cfg.MaxTimeout
	}

	s.logger.Info("execute request",
		"code", table.Truncate(req.Code, 120),
		"timeout", timeout,
		"rows", dataset.NumRows(),
	)

	localCfg := s.cfg.Local
	localCfg.ExecTimeout = timeout
	exec := NewLocal(localCfg)
	defer exec.Close()

	res, err := exec.Execute(r.Context(), req.Code, dataset)
	if err != nil {
		if IsSetupError(err) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := StatusSuccess
	switch {
	case res.TimedOut:
		status = StatusTimeout
	case !res.Success:
		status = StatusError
	}

	s.logger.Info("execute complete",
		"status", status,
		"duration_ms", res.Duration.Milliseconds(),
		"logs", len(res.Logs),
	)

	resp := ExecuteResponse{
		Status:          status,
		Error:           res.Error,
		Stack:           res.Stack,
		Logs:            res.Logs,
		ExecutionTimeMs: res.Duration.Milliseconds(),
	}
	if res.Success {
		resp.Value = res.Value
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "healthy",
		Runtime:     "goja",
		Capacity:    s.cfg.MaxConcurrent,
		CurrentLoad: int(s.currentLoad.Load()),
		UptimeSecs:  int64(time.Since(s.startTime).Seconds()),
	}
	code := http.StatusOK
	if s.setupErr != nil {
		resp.Status = "unhealthy"
		resp.Error = s.setupErr.Error()
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

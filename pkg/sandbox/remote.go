package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/observability"
	"github.com/rhuss/tabula/pkg/table"
)

// Ensure Remote implements Executor.
var _ Executor = (*Remote)(nil)

// RemoteConfig configures a Remote executor.
type RemoteConfig struct {
	Acquirer Acquirer

	// ExecTimeout is sent to the server as timeout_seconds. Zero means
	// DefaultExecTimeout.
	ExecTimeout time.Duration

	// Client overrides the HTTP client. Nil uses NewClient().
	Client *Client

	Logger *slog.Logger
}

// Remote executes fragments on a sandbox server.
type Remote struct {
	acquirer Acquirer
	client   *Client
	timeout  time.Duration
	logger   *slog.Logger

	busy   atomic.Bool
	closed atomic.Bool
}

// NewRemote creates a Remote executor.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.Acquirer == nil {
		return nil, fmt.Errorf("sandbox: remote executor requires an acquirer")
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = DefaultExecTimeout
	}
	if cfg.Client == nil {
		cfg.Client = NewClient()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Remote{
		acquirer: cfg.Acquirer,
		client:   cfg.Client,
		timeout:  cfg.ExecTimeout,
		logger:   cfg.Logger,
	}, nil
}

// NewRemoteFactory returns a Factory that shares one acquirer and client
// across executors.
func NewRemoteFactory(cfg RemoteConfig) Factory {
	return func(ctx context.Context) (Executor, error) {
		return NewRemote(cfg)
	}
}

// Execute acquires a sandbox, posts the fragment and maps the response.
func (r *Remote) Execute(ctx context.Context, code string, dataset *table.Table) (*Result, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if !r.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer r.busy.Store(false)

	var payload json.RawMessage
	if dataset != nil {
		data, err := json.Marshal(dataset)
		if err != nil {
			return nil, fmt.Errorf("encoding dataset: %w", err)
		}
		payload = data
	}

	url, release, err := r.acquirer.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &SetupError{Err: fmt.Errorf("acquire sandbox: %w", err)}
	}
	defer release()

	debug.Log("sandbox", "remote execute", "url", url, "code_len", len(code))

	resp, err := r.client.Execute(ctx, url, &ExecuteRequest{
		Code:           code,
		Dataset:        payload,
		TimeoutSeconds: int(math.Ceil(r.timeout.Seconds())),
	})
	if err != nil {
		observability.SandboxExecutionsTotal.WithLabelValues("remote", "failed").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	res := &Result{
		Success:  resp.Status == StatusSuccess,
		Value:    resp.Value,
		Error:    resp.Error,
		Stack:    resp.Stack,
		Logs:     resp.Logs,
		Duration: time.Duration(resp.ExecutionTimeMs) * time.Millisecond,
		TimedOut: resp.Status == StatusTimeout,
	}
	if res.Success && len(res.Value) == 0 {
		res.Value = json.RawMessage("null")
	}
	observability.SandboxExecutionsTotal.WithLabelValues("remote", resp.Status).Inc()
	observability.SandboxExecutionDuration.WithLabelValues("remote").Observe(res.Duration.Seconds())
	return res, nil
}

// Close marks the executor closed.
func (r *Remote) Close() error {
	r.closed.Store(true)
	return nil
}

package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/observability"
)

// RetryConfig bounds the retry policy applied by WithRetry.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero disables retrying.
	MaxRetries int

	// InitialInterval is the first backoff delay (default 500ms).
	InitialInterval time.Duration

	// MaxInterval caps a single backoff delay (default 10s).
	MaxInterval time.Duration
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// WithRetry wraps m so that transient failures are retried with exponential
// backoff. Only the call that opens a stream is retried; once events flow
// the stream is passed through untouched.
func WithRetry(m ChatModel, cfg RetryConfig) ChatModel {
	if cfg.MaxRetries <= 0 {
		return m
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	return &retryModel{ChatModel: m, cfg: cfg}
}

type retryModel struct {
	ChatModel
	cfg RetryConfig
}

func (r *retryModel) Complete(ctx context.Context, req *Request) (*Response, error) {
	return retry(ctx, r, func() (*Response, error) {
		return r.ChatModel.Complete(ctx, req)
	})
}

func (r *retryModel) Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error) {
	return retry(ctx, r, func() (<-chan StreamEvent, error) {
		return r.ChatModel.Stream(ctx, req)
	})
}

func retry[T any](ctx context.Context, r *retryModel, call func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.MaxRetries)), ctx)

	op := func() (T, error) {
		v, err := call()
		if err != nil && !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		observability.ModelRetriesTotal.WithLabelValues(r.Name()).Inc()
		debug.Log("providers", "retrying model call", "error", err.Error(), "wait", wait.String())
		slog.Warn("model call failed, retrying", "provider", r.Name(), "error", err.Error(), "wait", wait)
	}

	return backoff.RetryNotifyWithData(op, policy, notify)
}

// IsRetryable reports whether a model error is transient. Authentication
// and invalid-request failures are permanent, as is context cancellation.
// Network errors, rate limiting and backend server errors are retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case api.ErrorTypeAuthentication, api.ErrorTypeInvalidRequest, api.ErrorTypeNotFound:
			return false
		}
	}
	return true
}

package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter decides whether a caller may issue another request.
type RateLimiter interface {
	// Allow returns nil, or a *LimitError when the caller is over its
	// budget.
	Allow(ctx context.Context, id *Identity) error
}

// LimitError reports a rejected request and when the window reopens.
type LimitError struct {
	Tier       string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: tier %q, retry after %s", ErrTooManyRequests, e.Tier, e.RetryAfter.Round(time.Second))
}

func (e *LimitError) Unwrap() error { return ErrTooManyRequests }

// WindowLimiter counts requests per subject and tier in fixed one-minute
// windows. Limits are requests per minute; zero or less means unlimited.
type WindowLimiter struct {
	tiers      map[string]int
	defaultRPM int
	window     time.Duration
	now        func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// NewWindowLimiter creates a limiter. tiers maps a tier name to its
// requests per minute; unknown tiers get defaultRPM.
func NewWindowLimiter(tiers map[string]int, defaultRPM int) *WindowLimiter {
	return &WindowLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		window:     time.Minute,
		now:        time.Now,
		windows:    make(map[string]*window),
	}
}

// Allow implements RateLimiter.
func (l *WindowLimiter) Allow(_ context.Context, id *Identity) error {
	tier := id.TierOrDefault()
	limit, ok := l.tiers[tier]
	if !ok {
		limit = l.defaultRPM
	}
	if limit <= 0 {
		return nil
	}

	key := tier + "/" + id.Subject
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.windows[key] = &window{start: now, count: 1}
		l.sweep(now)
		return nil
	}
	if w.count >= limit {
		return &LimitError{Tier: tier, RetryAfter: w.start.Add(l.window).Sub(now)}
	}
	w.count++
	return nil
}

// sweep drops expired windows once the map grows. Must hold l.mu.
func (l *WindowLimiter) sweep(now time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, k)
		}
	}
}

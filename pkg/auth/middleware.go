package auth

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/observability"
	"github.com/rhuss/tabula/pkg/storage"
	"github.com/rhuss/tabula/pkg/transport"
)

// DefaultBypass lists the paths that skip authentication.
var DefaultBypass = []string{"/healthz", "/metrics"}

// Middleware authenticates every request outside bypass, enforces limiter
// when it is not nil, and stores the identity and tenant in the request
// context. A bypass entry ending in "/" matches the whole subtree.
func Middleware(authn Authenticator, limiter RateLimiter, bypass []string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypassed(r.URL.Path, bypass) {
				next.ServeHTTP(w, r)
				return
			}

			res := authn.Authenticate(r.Context(), r)
			if res.Decision != Yes || res.Identity == nil {
				logger.Warn("authentication failed",
					"path", r.URL.Path, "remote_addr", r.RemoteAddr, "error", res.Err)
				transport.WriteAPIError(w, api.NewAuthenticationError("authentication required"))
				return
			}
			id := res.Identity
			if id.Subject == "" {
				logger.Error("authenticator returned identity without subject")
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					rejectLimited(w, id, err, logger)
					return
				}
			}

			ctx := WithIdentity(r.Context(), id)
			if id.Tenant != "" {
				ctx = storage.SetTenant(ctx, id.Tenant)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectLimited(w http.ResponseWriter, id *Identity, err error, logger *slog.Logger) {
	logger.Warn("rate limit exceeded", "subject", id.Subject, "tier", id.TierOrDefault())
	observability.RateLimitRejectedTotal.WithLabelValues(id.TierOrDefault()).Inc()

	var limitErr *LimitError
	if errors.As(err, &limitErr) && limitErr.RetryAfter > 0 {
		secs := int(math.Ceil(limitErr.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	transport.WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded"))
}

func bypassed(path string, bypass []string) bool {
	for _, b := range bypass {
		if path == b || (strings.HasSuffix(b, "/") && strings.HasPrefix(path, b)) {
			return true
		}
	}
	return false
}

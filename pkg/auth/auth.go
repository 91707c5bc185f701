package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
)

// Decision is an authenticator's vote.
type Decision int

const (
	// Yes means the credentials identify a caller. The chain stops.
	Yes Decision = iota

	// No means credentials were presented but are invalid. The chain
	// stops and the request is rejected.
	No

	// Abstain means the authenticator does not handle these credentials.
	Abstain
)

func (d Decision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "abstain"
	}
}

// DefaultTier is the rate-limit tier of callers that do not name one.
const DefaultTier = "default"

// Result is the outcome of one authentication attempt.
type Result struct {
	Decision Decision
	Identity *Identity // set when Decision is Yes
	Err      error     // set when Decision is No
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject identifies the caller and must not be empty.
	Subject string

	// Tenant scopes stored analyses. Empty means the caller sees
	// everything, as in a single-tenant deployment.
	Tenant string

	// Tier selects the rate limit.
	Tier string

	Scopes []string
}

// TierOrDefault returns the caller's tier, or DefaultTier.
func (id *Identity) TierOrDefault() string {
	if id == nil || id.Tier == "" {
		return DefaultTier
	}
	return id.Tier
}

// HasScope reports whether the caller was granted scope.
func (id *Identity) HasScope(scope string) bool {
	return id != nil && slices.Contains(id.Scopes, scope)
}

// Anonymous is the identity used when a chain accepts a request nobody
// claimed.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", Tier: DefaultTier}
}

// Authenticator votes on the credentials of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, r *http.Request) Result

func (f AuthenticatorFunc) Authenticate(ctx context.Context, r *http.Request) Result {
	return f(ctx, r)
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain asks authenticators in order until one votes Yes or No.
type Chain struct {
	authenticators []Authenticator
	fallback       Decision
}

// NewChain creates a chain. fallback decides when every authenticator
// abstains: Yes admits the caller as Anonymous, anything else rejects.
func NewChain(fallback Decision, authenticators ...Authenticator) *Chain {
	return &Chain{authenticators: authenticators, fallback: fallback}
}

// Authenticate implements Authenticator.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.authenticators {
		if res := a.Authenticate(ctx, r); res.Decision != Abstain {
			return res
		}
	}
	if c.fallback == Yes {
		return Result{Decision: Yes, Identity: Anonymous()}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
// ok is false when the request carries no bearer credentials at all; an
// empty token with ok true means the header was present but blank.
func BearerToken(r *http.Request) (token string, ok bool) {
	scheme, rest, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

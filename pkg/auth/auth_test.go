package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func vote(d Decision, subject string) Authenticator {
	return AuthenticatorFunc(func(context.Context, *http.Request) Result {
		switch d {
		case Yes:
			return Result{Decision: Yes, Identity: &Identity{Subject: subject}}
		case No:
			return Result{Decision: No, Err: errors.New(subject)}
		}
		return Result{Decision: Abstain}
	})
}

func TestChain(t *testing.T) {
	tests := []struct {
		name     string
		chain    *Chain
		want     Decision
		wantSubj string
	}{
		{"first yes stops", NewChain(No, vote(Yes, "alice"), vote(Yes, "bob")), Yes, "alice"},
		{"first no stops", NewChain(Yes, vote(No, "bad"), vote(Yes, "bob")), No, ""},
		{"abstain then yes", NewChain(No, vote(Abstain, ""), vote(Yes, "bob")), Yes, "bob"},
		{"all abstain rejects", NewChain(No, vote(Abstain, ""), vote(Abstain, "")), No, ""},
		{"all abstain admits anonymous", NewChain(Yes, vote(Abstain, "")), Yes, "anonymous"},
		{"empty chain rejects", NewChain(No), No, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.chain.Authenticate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
			if res.Decision != tt.want {
				t.Fatalf("decision = %s, want %s", res.Decision, tt.want)
			}
			if tt.want == Yes && res.Identity.Subject != tt.wantSubj {
				t.Errorf("subject = %q, want %q", res.Identity.Subject, tt.wantSubj)
			}
			if tt.want == No && res.Err == nil {
				t.Error("No decision should carry an error")
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header    string
		wantToken string
		wantOK    bool
	}{
		{"", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		token, ok := BearerToken(r)
		if token != tt.wantToken || ok != tt.wantOK {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, token, ok, tt.wantToken, tt.wantOK)
		}
	}
}

func TestIdentity(t *testing.T) {
	var nilID *Identity
	if nilID.TierOrDefault() != DefaultTier || nilID.HasScope("x") {
		t.Error("nil identity should use defaults")
	}
	id := &Identity{Subject: "a", Tier: "gold", Scopes: []string{"analyses:read"}}
	if id.TierOrDefault() != "gold" {
		t.Errorf("tier = %q", id.TierOrDefault())
	}
	if !id.HasScope("analyses:read") || id.HasScope("analyses:write") {
		t.Error("HasScope mismatch")
	}

	ctx := WithIdentity(context.Background(), id)
	if got := IdentityFromContext(ctx); got != id {
		t.Errorf("IdentityFromContext = %v", got)
	}
	if IdentityFromContext(context.Background()) != nil {
		t.Error("empty context should have no identity")
	}
}

func TestWindowLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewWindowLimiter(map[string]int{"gold": 3, "free": 0}, 1)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	gold := &Identity{Subject: "g", Tier: "gold"}
	for i := range 3 {
		if err := l.Allow(ctx, gold); err != nil {
			t.Fatalf("request %d rejected: %v", i, err)
		}
	}
	err := l.Allow(ctx, gold)
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if limitErr.RetryAfter != time.Minute {
		t.Errorf("retry after = %v, want 1m", limitErr.RetryAfter)
	}

	// Other subjects and tiers are counted separately.
	if err := l.Allow(ctx, &Identity{Subject: "other", Tier: "gold"}); err != nil {
		t.Errorf("other subject rejected: %v", err)
	}
	for range 5 {
		if err := l.Allow(ctx, &Identity{Subject: "f", Tier: "free"}); err != nil {
			t.Fatalf("unlimited tier rejected: %v", err)
		}
	}
	anon := &Identity{Subject: "anon"}
	if err := l.Allow(ctx, anon); err != nil {
		t.Fatalf("first default request rejected: %v", err)
	}
	if err := l.Allow(ctx, anon); err == nil {
		t.Error("default tier should allow one request per minute")
	}

	now = now.Add(time.Minute)
	if err := l.Allow(ctx, gold); err != nil {
		t.Errorf("new window rejected: %v", err)
	}
}

package apikey

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rhuss/tabula/pkg/auth"
)

func newTestAuth(t *testing.T) *Authenticator {
	t.Helper()
	a, err := New([]Key{
		{Key: "sk-alice", Subject: "alice", Tenant: "acme", Tier: "gold", Scopes: []string{"analyses:write"}},
		{Key: "sk-bob", Subject: "bob"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestAuthenticate(t *testing.T) {
	a := newTestAuth(t)

	tests := []struct {
		name        string
		header      string
		value       string
		want        auth.Decision
		wantSubject string
	}{
		{"bearer alice", "Authorization", "Bearer sk-alice", auth.Yes, "alice"},
		{"bearer bob", "Authorization", "Bearer sk-bob", auth.Yes, "bob"},
		{"x-api-key", HeaderName, "sk-bob", auth.Yes, "bob"},
		{"unknown key", "Authorization", "Bearer sk-mallory", auth.No, ""},
		{"empty bearer", "Authorization", "Bearer ", auth.No, ""},
		{"empty x-api-key", HeaderName, "", auth.No, ""},
		{"basic auth", "Authorization", "Basic Zm9vOmJhcg==", auth.Abstain, ""},
		{"no header", "", "", auth.Abstain, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header[http.CanonicalHeaderKey(tt.header)] = []string{tt.value}
			}
			res := a.Authenticate(context.Background(), r)
			if res.Decision != tt.want {
				t.Fatalf("decision = %s, want %s (err %v)", res.Decision, tt.want, res.Err)
			}
			if tt.want == auth.Yes && res.Identity.Subject != tt.wantSubject {
				t.Errorf("subject = %q, want %q", res.Identity.Subject, tt.wantSubject)
			}
		})
	}
}

func TestIdentityFields(t *testing.T) {
	a := newTestAuth(t)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer sk-alice")

	res := a.Authenticate(context.Background(), r)
	id := res.Identity
	if id.Tenant != "acme" || id.Tier != "gold" || !id.HasScope("analyses:write") {
		t.Errorf("identity = %+v", id)
	}

	// Callers get a copy.
	id.Tenant = "changed"
	again := a.Authenticate(context.Background(), r)
	if again.Identity.Tenant != "acme" {
		t.Error("identity mutation leaked into the key store")
	}
}

func TestNewRejectsIncompleteKeys(t *testing.T) {
	if _, err := New([]Key{{Key: "", Subject: "a"}, {Key: "k"}}); err == nil {
		t.Fatal("expected error")
	}
}

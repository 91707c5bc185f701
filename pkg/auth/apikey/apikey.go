// Package apikey authenticates callers with static API keys, sent either as
// a bearer token or in the X-API-Key header. Only SHA-256 digests of the
// keys are kept, and lookups compare in constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhuss/tabula/pkg/auth"
)

// HeaderName is the alternative header carrying a key.
const HeaderName = "X-API-Key"

// Key configures one accepted key and the caller it identifies.
type Key struct {
	Key     string   `yaml:"key" toml:"key"`
	Subject string   `yaml:"subject" toml:"subject"`
	Tenant  string   `yaml:"tenant" toml:"tenant"`
	Tier    string   `yaml:"tier" toml:"tier"`
	Scopes  []string `yaml:"scopes" toml:"scopes"`
}

type entry struct {
	digest   [sha256.Size]byte
	identity auth.Identity
}

// Authenticator checks keys against a fixed set.
type Authenticator struct {
	entries []entry
}

// New creates an authenticator. Every key needs a value and a subject.
func New(keys []Key) (*Authenticator, error) {
	a := &Authenticator{}
	var errs []error
	for i, k := range keys {
		if strings.TrimSpace(k.Key) == "" {
			errs = append(errs, fmt.Errorf("key %d: value is empty", i))
			continue
		}
		if k.Subject == "" {
			errs = append(errs, fmt.Errorf("key %d: subject is empty", i))
			continue
		}
		a.entries = append(a.entries, entry{
			digest: sha256.Sum256([]byte(k.Key)),
			identity: auth.Identity{
				Subject: k.Subject,
				Tenant:  k.Tenant,
				Tier:    k.Tier,
				Scopes:  k.Scopes,
			},
		})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return a, nil
}

// Authenticate abstains when the request carries no key, votes No for an
// unknown key, and Yes otherwise.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	key, ok := credential(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if key == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	digest := sha256.Sum256([]byte(key))
	match := -1
	for i := range a.entries {
		// Visit every entry so timing does not reveal the position.
		if subtle.ConstantTimeCompare(digest[:], a.entries[i].digest[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return auth.Result{Decision: auth.No, Err: fmt.Errorf("%w: unknown API key", auth.ErrUnauthenticated)}
	}

	id := a.entries[match].identity
	return auth.Result{Decision: auth.Yes, Identity: &id}
}

func credential(r *http.Request) (string, bool) {
	if v, ok := r.Header[http.CanonicalHeaderKey(HeaderName)]; ok && len(v) > 0 {
		return strings.TrimSpace(v[0]), true
	}
	return auth.BearerToken(r)
}

// Package jwt authenticates callers with RS256/384/512 signed JWTs whose
// keys are published at a JWKS endpoint, as OIDC providers do.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/tabula/pkg/auth"
	"github.com/rhuss/tabula/pkg/debug"
)

// Config holds the JWT authenticator configuration.
type Config struct {
	// Issuer and Audience are checked when set.
	Issuer   string `yaml:"issuer" toml:"issuer"`
	Audience string `yaml:"audience" toml:"audience"`

	// JWKSURL is where the signing keys are published.
	JWKSURL string `yaml:"jwks_url" toml:"jwks_url"`

	// Claim names mapped onto the identity. Defaults: sub, tenant_id,
	// tier, scope.
	SubjectClaim string `yaml:"subject_claim" toml:"subject_claim"`
	TenantClaim  string `yaml:"tenant_claim" toml:"tenant_claim"`
	TierClaim    string `yaml:"tier_claim" toml:"tier_claim"`
	ScopesClaim  string `yaml:"scopes_claim" toml:"scopes_claim"`

	// CacheTTL bounds how long fetched keys are trusted. Default 1h.
	CacheTTL time.Duration `yaml:"cache_ttl" toml:"cache_ttl"`

	// Leeway tolerates clock skew on exp/nbf/iat.
	Leeway time.Duration `yaml:"leeway" toml:"leeway"`

	HTTPClient *http.Client `yaml:"-" toml:"-"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.JWKSURL == "" {
		return errors.New("jwt: jwks_url is required")
	}
	if !strings.HasPrefix(c.JWKSURL, "http://") && !strings.HasPrefix(c.JWKSURL, "https://") {
		return fmt.Errorf("jwt: jwks_url %q must be an http(s) URL", c.JWKSURL)
	}
	return nil
}

func (c *Config) defaults() {
	if c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
}

// Authenticator validates bearer JWTs.
type Authenticator struct {
	cfg    Config
	keys   *keySet
	parser *jwtlib.Parser
}

// New creates a JWT authenticator.
func New(cfg Config) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.defaults()

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwtlib.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Authenticator{
		cfg:    cfg,
		keys:   newKeySet(cfg.JWKSURL, cfg.CacheTTL, cfg.HTTPClient),
		parser: jwtlib.NewParser(opts...),
	}, nil
}

// Authenticate abstains without a bearer token and votes No for any token
// that fails verification or lacks a subject.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.Result {
	raw, ok := auth.BearerToken(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if raw == "" {
		return reject(errors.New("empty bearer token"))
	}

	claims := jwtlib.MapClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return a.keys.lookup(ctx, kid)
	})
	if err != nil {
		debug.Log("auth", "jwt rejected", "error", err)
		return reject(fmt.Errorf("invalid token: %w", err))
	}

	subject := stringClaim(claims, a.cfg.SubjectClaim)
	if subject == "" {
		return reject(fmt.Errorf("token has no %q claim", a.cfg.SubjectClaim))
	}

	return auth.Result{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject: subject,
			Tenant:  stringClaim(claims, a.cfg.TenantClaim),
			Tier:    stringClaim(claims, a.cfg.TierClaim),
			Scopes:  scopeClaim(claims, a.cfg.ScopesClaim),
		},
	}
}

func reject(err error) auth.Result {
	slog.Debug("jwt authentication failed", "error", err)
	return auth.Result{Decision: auth.No, Err: err}
}

func stringClaim(claims jwtlib.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}

// scopeClaim accepts a space separated string or a string array.
func scopeClaim(claims jwtlib.MapClaims, name string) []string {
	var scopes []string
	switch v := claims[name].(type) {
	case string:
		scopes = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				scopes = append(scopes, s)
			}
		}
	}
	if len(scopes) == 0 {
		return nil
	}
	return scopes
}

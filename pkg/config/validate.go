package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for valid values. Each problem is
// reported with its field path. The model backend is checked separately
// by ValidateModel, since the sandbox server runs without one.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodySize <= 0 {
		add("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize)
	}
	if c.Model.Retry.MaxRetries < 0 {
		add("model.retry.max_retries must be >= 0, got %d", c.Model.Retry.MaxRetries)
	}
	if c.Agent.MaxRounds <= 0 {
		add("agent.max_rounds must be > 0, got %d", c.Agent.MaxRounds)
	}
	if c.Agent.TranscriptWindow < 0 {
		add("agent.transcript_window must be >= 0, got %d", c.Agent.TranscriptWindow)
	}

	switch c.Sandbox.Mode {
	case "local":
	case "remote":
		if len(c.Sandbox.URLs) == 0 && c.Sandbox.Kubernetes.Template == "" {
			add("sandbox.urls or sandbox.kubernetes.template is required when sandbox.mode is \"remote\"")
		}
		for i, u := range c.Sandbox.URLs {
			if err := checkHTTPURL(u); err != nil {
				add("sandbox.urls[%d]: %v", i, err)
			}
		}
	default:
		add("sandbox.mode must be \"local\" or \"remote\", got %q", c.Sandbox.Mode)
	}
	if c.Sandbox.Server.MaxConcurrent <= 0 {
		add("sandbox.server.max_concurrent must be > 0, got %d", c.Sandbox.Server.MaxConcurrent)
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			add("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\"")
		}
	default:
		add("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type)
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			add("auth.api_keys must not be empty when auth.type is \"apikey\"")
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				add("auth.api_keys[%d]: key or key_file is required", i)
			}
			if k.Subject == "" {
				add("auth.api_keys[%d].subject is required", i)
			}
		}
	case "jwt":
		if err := checkHTTPURL(c.Auth.JWT.JWKSURL); err != nil {
			add("auth.jwt.jwks_url: %v", err)
		}
	default:
		add("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type)
	}

	switch strings.ToUpper(c.Observability.LogLevel) {
	case "", "ERROR", "WARN", "INFO", "DEBUG", "TRACE":
	default:
		add("observability.log_level must be ERROR, WARN, INFO, DEBUG or TRACE, got %q", c.Observability.LogLevel)
	}

	return errors.Join(errs...)
}

// ValidateModel checks the settings needed to talk to the model backend.
func (c *Config) ValidateModel() error {
	if c.Model.BackendURL == "" {
		return errors.New("model.backend_url is required")
	}
	if err := checkHTTPURL(c.Model.BackendURL); err != nil {
		return fmt.Errorf("model.backend_url: %w", err)
	}
	return nil
}

func checkHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an http(s) URL", raw)
	}
	return nil
}

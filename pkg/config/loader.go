package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TABULA_"

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. Config file (explicit path, TABULA_CONFIG, ./config.yaml,
//     ./config.toml, /etc/tabula/config.yaml)
//  3. TABULA_* environment overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// discoverConfigFile returns the first config file found, or "".
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	for _, p := range []string{"config.yaml", "config.toml", "/etc/tabula/config.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadFile decodes path over cfg. Fields missing from the file keep their
// current values. The format follows the extension; anything other than
// .toml is read as YAML.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys: %v", undecoded)
		}
		return nil
	}
	return yaml.Unmarshal(data, cfg)
}

// env binds one variable to a setter.
type env struct {
	name string
	set  func(cfg *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(cfg) = n
		return nil
	}
}

func duration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(cfg) = d
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(cfg) = b
		return nil
	}
}

func list(dst func(*Config) *[]string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst(cfg) = out
		return nil
	}
}

var envBindings = []env{
	{"PORT", integer(func(c *Config) *int { return &c.Server.Port })},
	{"ANALYSIS_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Server.AnalysisTimeout })},
	{"BACKEND_URL", str(func(c *Config) *string { return &c.Model.BackendURL })},
	{"API_KEY", str(func(c *Config) *string { return &c.Model.APIKey })},
	{"MODEL", str(func(c *Config) *string { return &c.Model.Model })},
	{"MODEL_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Model.Timeout })},
	{"MODEL_STREAM", boolean(func(c *Config) *bool { return &c.Model.Stream })},
	{"MAX_RETRIES", integer(func(c *Config) *int { return &c.Model.Retry.MaxRetries })},
	{"ROUTER_USE_MODEL", boolean(func(c *Config) *bool { return &c.Router.UseModel })},
	{"MAX_ROUNDS", integer(func(c *Config) *int { return &c.Agent.MaxRounds })},
	{"ROUND_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Agent.RoundTimeout })},
	{"TRANSCRIPT_WINDOW", integer(func(c *Config) *int { return &c.Agent.TranscriptWindow })},
	{"SANDBOX_MODE", str(func(c *Config) *string { return &c.Sandbox.Mode })},
	{"SANDBOX_URLS", list(func(c *Config) *[]string { return &c.Sandbox.URLs })},
	{"SANDBOX_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Sandbox.ExecTimeout })},
	{"SANDBOX_TEMPLATE", str(func(c *Config) *string { return &c.Sandbox.Kubernetes.Template })},
	{"SANDBOX_NAMESPACE", str(func(c *Config) *string { return &c.Sandbox.Kubernetes.Namespace })},
	{"SANDBOX_PORT", integer(func(c *Config) *int { return &c.Sandbox.Server.Port })},
	{"SANDBOX_MAX_CONCURRENT", integer(func(c *Config) *int { return &c.Sandbox.Server.MaxConcurrent })},
	{"STORAGE", str(func(c *Config) *string { return &c.Storage.Type })},
	{"STORAGE_SIZE", integer(func(c *Config) *int { return &c.Storage.MaxSize })},
	{"POSTGRES_DSN", str(func(c *Config) *string { return &c.Storage.Postgres.DSN })},
	{"AUTH_TYPE", str(func(c *Config) *string { return &c.Auth.Type })},
	{"JWKS_URL", str(func(c *Config) *string { return &c.Auth.JWT.JWKSURL })},
	{"RATE_LIMIT_RPM", integer(func(c *Config) *int { return &c.Auth.RateLimit.DefaultRPM })},
	{"MCP_PORT", integer(func(c *Config) *int { return &c.MCP.Port })},
	{"METRICS_ENABLED", boolean(func(c *Config) *bool { return &c.Observability.Metrics.Enabled })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Observability.LogLevel })},
	{"DEBUG", str(func(c *Config) *string { return &c.Observability.Debug })},
	{"API_KEYS", func(c *Config, v string) error {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return err
		}
		c.Auth.APIKeys = keys
		return nil
	}},
}

// applyEnvOverrides applies every set TABULA_* variable. Malformed values
// are reported together rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	for _, b := range envBindings {
		v, ok := os.LookupEnv(EnvPrefix + b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, b.name, err))
		}
	}
	return errors.Join(errs...)
}

// resolveFileReferences fills a secret from its _file companion when the
// secret itself is empty.
func resolveFileReferences(cfg *Config) error {
	var errs []error
	resolve := func(field string, file string, dst *string) {
		if file == "" || *dst != "" {
			return
		}
		val, err := readSecretFile(file)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = val
	}

	resolve("model.api_key_file", cfg.Model.APIKeyFile, &cfg.Model.APIKey)
	resolve("storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN)
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		resolve(fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key)
	}
	return errors.Join(errs...)
}

// readSecretFile returns the file content with surrounding whitespace
// trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// PreloadScripts reads the sandbox preload files in order.
func (c *SandboxConfig) PreloadScripts() ([]string, error) {
	scripts := make([]string, 0, len(c.Preload))
	for _, p := range c.Preload {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("sandbox.preload: %w", err)
		}
		scripts = append(scripts, string(data))
	}
	return scripts, nil
}

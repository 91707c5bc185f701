// Package config provides unified configuration for the tabula binaries.
//
// Configuration is loaded in layers:
//  1. Built-in defaults
//  2. A YAML or TOML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TABULA_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for tabula.
type Config struct {
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Model         ModelConfig         `yaml:"model" toml:"model"`
	Router        RouterConfig        `yaml:"router" toml:"router"`
	Agent         AgentConfig         `yaml:"agent" toml:"agent"`
	Sandbox       SandboxConfig       `yaml:"sandbox" toml:"sandbox"`
	Storage       StorageConfig       `yaml:"storage" toml:"storage"`
	Auth          AuthConfig          `yaml:"auth" toml:"auth"`
	MCP           MCPConfig           `yaml:"mcp" toml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
}

// ServerConfig holds HTTP gateway settings.
type ServerConfig struct {
	Port            int           `yaml:"port" toml:"port"`                         // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`         // default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size" toml:"max_body_size"`       // default: 32 MiB

	// AnalysisTimeout bounds one analysis end to end; zero disables it.
	AnalysisTimeout time.Duration `yaml:"analysis_timeout" toml:"analysis_timeout"`
}

// ModelConfig holds the chat-completion backend settings.
type ModelConfig struct {
	BackendURL string        `yaml:"backend_url" toml:"backend_url"` // required
	APIKey     string        `yaml:"api_key" toml:"api_key"`
	APIKeyFile string        `yaml:"api_key_file" toml:"api_key_file"`
	Model      string        `yaml:"model" toml:"model"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout"` // default: 120s
	Stream     bool          `yaml:"stream" toml:"stream"`
	Retry      RetryConfig   `yaml:"retry" toml:"retry"`
}

// RetryConfig bounds retries of transient model failures.
type RetryConfig struct {
	MaxRetries      int           `yaml:"max_retries" toml:"max_retries"`           // default: 3
	InitialInterval time.Duration `yaml:"initial_interval" toml:"initial_interval"` // default: 500ms
	MaxInterval     time.Duration `yaml:"max_interval" toml:"max_interval"`         // default: 10s
}

// RouterConfig controls tool selection.
type RouterConfig struct {
	// UseModel asks the model to classify questions. When false only the
	// keyword classifier runs.
	UseModel   bool `yaml:"use_model" toml:"use_model"`     // default: true
	SampleRows int  `yaml:"sample_rows" toml:"sample_rows"` // default: 5
}

// AgentConfig bounds code-interpreter sessions.
type AgentConfig struct {
	MaxRounds        int           `yaml:"max_rounds" toml:"max_rounds"`       // default: 10
	RoundTimeout     time.Duration `yaml:"round_timeout" toml:"round_timeout"` // 0 disables the watchdog
	PreviewChars     int           `yaml:"preview_chars" toml:"preview_chars"`
	TranscriptWindow int           `yaml:"transcript_window" toml:"transcript_window"`
	MaxFeedbackChars int           `yaml:"max_feedback_chars" toml:"max_feedback_chars"`
}

// SandboxConfig selects where generated code runs.
type SandboxConfig struct {
	Mode        string        `yaml:"mode" toml:"mode"`                 // "local" or "remote", default: "local"
	ExecTimeout time.Duration `yaml:"exec_timeout" toml:"exec_timeout"` // default: 30s

	// Preload lists JavaScript files run once per sandbox before any
	// fragment.
	Preload []string `yaml:"preload" toml:"preload"`

	// URLs are fixed sandbox servers for mode "remote".
	URLs []string `yaml:"urls" toml:"urls"`

	// Kubernetes claims sandboxes from agent-sandbox instead of URLs.
	Kubernetes KubernetesConfig `yaml:"kubernetes" toml:"kubernetes"`

	Server SandboxServerConfig `yaml:"server" toml:"server"`
}

// KubernetesConfig configures SandboxClaim based sandboxes.
type KubernetesConfig struct {
	Template  string        `yaml:"template" toml:"template"`
	Namespace string        `yaml:"namespace" toml:"namespace"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
}

// SandboxServerConfig configures cmd/sandbox-server.
type SandboxServerConfig struct {
	Port          int           `yaml:"port" toml:"port"`                     // default: 8081
	MaxConcurrent int           `yaml:"max_concurrent" toml:"max_concurrent"` // default: 4
	MaxTimeout    time.Duration `yaml:"max_timeout" toml:"max_timeout"`       // default: 5m
}

// StorageConfig holds analysis persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type" toml:"type"`         // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size" toml:"max_size"` // memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres" toml:"postgres"`
}

// PostgresConfig holds PostgreSQL settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn" toml:"dsn"`
	DSNFile         string        `yaml:"dsn_file" toml:"dsn_file"`
	MaxConns        int32         `yaml:"max_conns" toml:"max_conns"`
	MinConns        int32         `yaml:"min_conns" toml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" toml:"max_conn_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start" toml:"migrate_on_start"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type" toml:"type"` // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys" toml:"api_keys"`
	JWT       JWTConfig       `yaml:"jwt" toml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`

	// Bypass lists paths served without authentication.
	Bypass []string `yaml:"bypass" toml:"bypass"`
}

// APIKeyConfig describes one API key.
type APIKeyConfig struct {
	Key     string   `yaml:"key" toml:"key" json:"key"`
	KeyFile string   `yaml:"key_file" toml:"key_file" json:"key_file"`
	Subject string   `yaml:"subject" toml:"subject" json:"subject"`
	Tenant  string   `yaml:"tenant" toml:"tenant" json:"tenant"`
	Tier    string   `yaml:"tier" toml:"tier" json:"tier"`
	Scopes  []string `yaml:"scopes" toml:"scopes" json:"scopes"`
}

// JWTConfig configures bearer JWT validation.
type JWTConfig struct {
	Issuer       string        `yaml:"issuer" toml:"issuer"`
	Audience     string        `yaml:"audience" toml:"audience"`
	JWKSURL      string        `yaml:"jwks_url" toml:"jwks_url"`
	SubjectClaim string        `yaml:"subject_claim" toml:"subject_claim"`
	TenantClaim  string        `yaml:"tenant_claim" toml:"tenant_claim"`
	TierClaim    string        `yaml:"tier_claim" toml:"tier_claim"`
	ScopesClaim  string        `yaml:"scopes_claim" toml:"scopes_claim"`
	CacheTTL     time.Duration `yaml:"cache_ttl" toml:"cache_ttl"`
}

// RateLimitConfig sets requests per minute per caller. Zero disables
// limiting for a tier.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm" toml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers" toml:"tiers"`
}

// MCPConfig configures cmd/mcp-server.
type MCPConfig struct {
	Port int    `yaml:"port" toml:"port"` // default: 8090
	Path string `yaml:"path" toml:"path"` // default: "/mcp"
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`

	// LogLevel is ERROR, WARN, INFO, DEBUG or TRACE. Default INFO.
	LogLevel string `yaml:"log_level" toml:"log_level"`

	// Debug lists debug categories, e.g. "router,agent".
	Debug string `yaml:"debug" toml:"debug"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"` // default: true
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     32 << 20,
		},
		Model: ModelConfig{
			Timeout: 120 * time.Second,
			Retry: RetryConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     10 * time.Second,
			},
		},
		Router: RouterConfig{
			UseModel:   true,
			SampleRows: 5,
		},
		Agent: AgentConfig{
			MaxRounds:        10,
			MaxFeedbackChars: 4000,
		},
		Sandbox: SandboxConfig{
			Mode:        "local",
			ExecTimeout: 30 * time.Second,
			Kubernetes: KubernetesConfig{
				Namespace: "default",
				Timeout:   30 * time.Second,
			},
			Server: SandboxServerConfig{
				Port:          8081,
				MaxConcurrent: 4,
				MaxTimeout:    5 * time.Minute,
			},
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
		},
		Auth: AuthConfig{
			Type: "none",
		},
		MCP: MCPConfig{
			Port: 8090,
			Path: "/mcp",
		},
		Observability: ObservabilityConfig{
			Metrics:  MetricsConfig{Enabled: true},
			LogLevel: "INFO",
		},
	}
}

// Package setup assembles tabula components from a loaded config.Config.
// The server, the MCP server and the CLI share it so that one config file
// produces the same router, tools and sandbox everywhere.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	"github.com/rhuss/tabula/pkg/agent"
	"github.com/rhuss/tabula/pkg/auth"
	"github.com/rhuss/tabula/pkg/auth/apikey"
	"github.com/rhuss/tabula/pkg/auth/jwt"
	"github.com/rhuss/tabula/pkg/auth/noop"
	"github.com/rhuss/tabula/pkg/config"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/engine"
	"github.com/rhuss/tabula/pkg/prompt"
	"github.com/rhuss/tabula/pkg/provider"
	"github.com/rhuss/tabula/pkg/provider/openaicompat"
	"github.com/rhuss/tabula/pkg/router"
	"github.com/rhuss/tabula/pkg/sandbox"
	"github.com/rhuss/tabula/pkg/sandbox/kubernetes"
	"github.com/rhuss/tabula/pkg/storage/memory"
	"github.com/rhuss/tabula/pkg/storage/postgres"
	"github.com/rhuss/tabula/pkg/tools"
	"github.com/rhuss/tabula/pkg/tools/builtins/chart"
	"github.com/rhuss/tabula/pkg/tools/builtins/codeinterpreter"
	"github.com/rhuss/tabula/pkg/tools/builtins/qa"
	"github.com/rhuss/tabula/pkg/tools/registry"
	"github.com/rhuss/tabula/pkg/transport"
)

// Logger installs the default slog logger from the observability section.
func Logger(cfg *config.Config) *slog.Logger {
	return debug.Init(debug.Options{
		Categories: cfg.Observability.Debug,
		Level:      cfg.Observability.LogLevel,
	})
}

// Model creates the chat-completion client with the configured retry
// policy.
func Model(cfg *config.Config) (provider.ChatModel, error) {
	if err := cfg.ValidateModel(); err != nil {
		return nil, err
	}
	c := openaicompat.NewClient(cfg.Model.BackendURL, cfg.Model.APIKey, cfg.Model.Timeout)
	c.DefaultModel = cfg.Model.Model
	return provider.WithRetry(c, provider.RetryConfig{
		MaxRetries:      cfg.Model.Retry.MaxRetries,
		InitialInterval: cfg.Model.Retry.InitialInterval,
		MaxInterval:     cfg.Model.Retry.MaxInterval,
	}), nil
}

// LocalConfig returns the embedded runtime settings, with preload files
// read from disk.
func LocalConfig(cfg *config.Config, logger *slog.Logger) (sandbox.LocalConfig, error) {
	scripts, err := cfg.Sandbox.PreloadScripts()
	if err != nil {
		return sandbox.LocalConfig{}, err
	}
	return sandbox.LocalConfig{
		ExecTimeout: cfg.Sandbox.ExecTimeout,
		Preload:     scripts,
		Logger:      logger,
	}, nil
}

// SandboxFactory returns the executor factory for the configured mode.
// Remote mode uses the static URLs when given, and otherwise claims
// sandboxes through the Kubernetes API.
func SandboxFactory(cfg *config.Config, logger *slog.Logger) (sandbox.Factory, error) {
	switch cfg.Sandbox.Mode {
	case "", "local":
		lc, err := LocalConfig(cfg, logger)
		if err != nil {
			return nil, err
		}
		return sandbox.NewLocalFactory(lc), nil

	case "remote":
		acq, err := acquirer(cfg)
		if err != nil {
			return nil, err
		}
		return sandbox.NewRemoteFactory(sandbox.RemoteConfig{
			Acquirer:    acq,
			ExecTimeout: cfg.Sandbox.ExecTimeout,
			Logger:      logger,
		}), nil

	default:
		return nil, fmt.Errorf("unknown sandbox mode %q", cfg.Sandbox.Mode)
	}
}

func acquirer(cfg *config.Config) (sandbox.Acquirer, error) {
	if len(cfg.Sandbox.URLs) > 0 {
		acq, err := sandbox.NewStaticAcquirer(cfg.Sandbox.URLs...)
		if err != nil {
			return nil, err
		}
		return acq, nil
	}

	restCfg, err := ctrlconfig.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("kubernetes config: %w", err)
	}
	scheme, err := kubernetes.NewScheme()
	if err != nil {
		return nil, err
	}
	c, err := client.New(restCfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("kubernetes client: %w", err)
	}
	k := cfg.Sandbox.Kubernetes
	return kubernetes.NewClaimAcquirer(c, kubernetes.Config{
		Template:  k.Template,
		Namespace: k.Namespace,
		Timeout:   k.Timeout,
		Port:      cfg.Sandbox.Server.Port,
		Labels:    map[string]string{"app.kubernetes.io/component": "sandbox"},
	}), nil
}

// Agent creates the code-interpreter agent.
func Agent(cfg *config.Config, m provider.ChatModel, factory sandbox.Factory, logger *slog.Logger) (*agent.Agent, error) {
	return agent.New(agent.Config{
		Model:        m,
		Sandbox:      factory,
		MaxRounds:    cfg.Agent.MaxRounds,
		RoundTimeout: cfg.Agent.RoundTimeout,
		Prompt: prompt.Builder{
			PreviewChars: cfg.Agent.PreviewChars,
			Window:       cfg.Agent.TranscriptWindow,
		},
		MaxFeedbackChars: cfg.Agent.MaxFeedbackChars,
		Stream:           cfg.Model.Stream,
		Logger:           logger,
	})
}

// Registry registers every built-in tool.
func Registry(m provider.ChatModel, a *agent.Agent, logger *slog.Logger) (*registry.Registry, error) {
	reg := registry.New()
	for _, t := range []tools.Tool{
		qa.NewGeneral(m),
		qa.NewTableQA(m, 0),
		chart.New(m, 0, logger),
		codeinterpreter.New(a),
		codeinterpreter.NewAnalytics(a),
	} {
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("registering %s: %w", t.Name(), err)
		}
	}
	return reg, nil
}

// Router creates the intent router. With router.use_model disabled only
// the keyword classifier runs.
func Router(cfg *config.Config, m provider.ChatModel, logger *slog.Logger) *router.Router {
	rc := router.Config{SampleRows: cfg.Router.SampleRows, Logger: logger}
	if cfg.Router.UseModel {
		rc.Model = m
	}
	return router.New(rc)
}

// Store opens the configured analysis store.
func Store(ctx context.Context, cfg *config.Config) (transport.AnalysisStore, error) {
	switch cfg.Storage.Type {
	case "", "memory":
		return memory.New(cfg.Storage.MaxSize), nil
	case "postgres":
		p := cfg.Storage.Postgres
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             p.DSN,
			MaxConns:        p.MaxConns,
			MinConns:        p.MinConns,
			MaxConnLifetime: p.MaxConnLifetime,
			MigrateOnStart:  p.MigrateOnStart,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// Authenticator builds the authenticator chain for auth.type. A chain
// holding one authenticator rejects whatever it does not accept; "none"
// admits everyone as anonymous.
func Authenticator(cfg *config.Config) (auth.Authenticator, error) {
	switch cfg.Auth.Type {
	case "", "none":
		return auth.NewChain(auth.No, noop.Authenticator{}), nil

	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			keys = append(keys, apikey.Key{
				Key:     k.Key,
				Subject: k.Subject,
				Tenant:  k.Tenant,
				Tier:    k.Tier,
				Scopes:  k.Scopes,
			})
		}
		a, err := apikey.New(keys)
		if err != nil {
			return nil, err
		}
		return auth.NewChain(auth.No, a), nil

	case "jwt":
		j := cfg.Auth.JWT
		a, err := jwt.New(jwt.Config{
			Issuer:       j.Issuer,
			Audience:     j.Audience,
			JWKSURL:      j.JWKSURL,
			SubjectClaim: j.SubjectClaim,
			TenantClaim:  j.TenantClaim,
			TierClaim:    j.TierClaim,
			ScopesClaim:  j.ScopesClaim,
			CacheTTL:     j.CacheTTL,
		})
		if err != nil {
			return nil, err
		}
		return auth.NewChain(auth.No, a), nil

	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}
}

// AuthMiddleware returns the HTTP middleware for the auth section. The
// rate limiter is only installed when a limit is configured.
func AuthMiddleware(cfg *config.Config, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	authn, err := Authenticator(cfg)
	if err != nil {
		return nil, err
	}
	var limiter auth.RateLimiter
	if cfg.Auth.RateLimit.DefaultRPM > 0 || len(cfg.Auth.RateLimit.Tiers) > 0 {
		limiter = auth.NewWindowLimiter(cfg.Auth.RateLimit.Tiers, cfg.Auth.RateLimit.DefaultRPM)
	}
	bypass := cfg.Auth.Bypass
	if len(bypass) == 0 {
		bypass = auth.DefaultBypass
	}
	return auth.Middleware(authn, limiter, bypass, logger), nil
}

// Stack is the assembled analysis pipeline.
type Stack struct {
	Model    provider.ChatModel
	Router   *router.Router
	Registry *registry.Registry
	Engine   *engine.Engine
	Store    transport.AnalysisStore
}

// Build assembles the full pipeline. withStore controls whether the
// configured store is opened; the CLI runs without one.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, withStore bool) (*Stack, error) {
	m, err := Model(cfg)
	if err != nil {
		return nil, err
	}
	factory, err := SandboxFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}
	a, err := Agent(cfg, m, factory, logger)
	if err != nil {
		return nil, err
	}
	reg, err := Registry(m, a, logger)
	if err != nil {
		return nil, err
	}

	s := &Stack{Model: m, Router: Router(cfg, m, logger), Registry: reg}
	if withStore {
		if s.Store, err = Store(ctx, cfg); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
	}

	s.Engine, err = engine.New(s.Router, reg, s.Store, engine.Config{
		AnalysisTimeout: cfg.Server.AnalysisTimeout,
		Logger:          logger,
	})
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

// Close releases the store and the model client.
func (s *Stack) Close() error {
	var errs []error
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	if s.Model != nil {
		errs = append(errs, s.Model.Close())
	}
	return errors.Join(errs...)
}

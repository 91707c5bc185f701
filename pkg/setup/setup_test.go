package setup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rhuss/tabula/pkg/auth"
	"github.com/rhuss/tabula/pkg/config"
	"github.com/rhuss/tabula/pkg/provider/fake"
	"github.com/rhuss/tabula/pkg/storage/memory"
	"github.com/rhuss/tabula/pkg/table"
	"github.com/rhuss/tabula/pkg/tools"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Model.BackendURL = "http://127.0.0.1:1"
	return &cfg
}

func TestModelRequiresBackend(t *testing.T) {
	cfg := config.Defaults()
	if _, err := Model(&cfg); err == nil {
		t.Fatal("expected error without backend_url")
	}
	m, err := Model(testConfig())
	if err != nil {
		t.Fatalf("Model: %v", err)
	}
	if m.Name() != "openai" {
		t.Errorf("Name() = %q", m.Name())
	}
}

func TestSandboxFactoryLocalWithPreload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "helpers.js")
	if err := os.WriteFile(path, []byte("function double(x) { return x * 2; }"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Sandbox.Preload = []string{path}

	factory, err := SandboxFactory(cfg, nil)
	if err != nil {
		t.Fatalf("SandboxFactory: %v", err)
	}
	exec, err := factory(context.Background())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	defer exec.Close()

	res, err := exec.Execute(context.Background(), "return double(21);", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || string(res.Value) != "42" {
		t.Errorf("result = %+v", res)
	}
}

func TestSandboxFactoryRemoteStatic(t *testing.T) {
	cfg := testConfig()
	cfg.Sandbox.Mode = "remote"
	cfg.Sandbox.URLs = []string{"http://sandbox-0:8081"}
	if _, err := SandboxFactory(cfg, nil); err != nil {
		t.Fatalf("SandboxFactory: %v", err)
	}

	cfg.Sandbox.Mode = "wasm"
	if _, err := SandboxFactory(cfg, nil); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestRegistryHoldsBuiltins(t *testing.T) {
	m := fake.New()
	factory, err := SandboxFactory(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	a, err := Agent(testConfig(), m, factory, nil)
	if err != nil {
		t.Fatal(err)
	}
	reg, err := Registry(m, a, nil)
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	for _, name := range []string{tools.GeneralQA, tools.TableQA, tools.SimpleChart, tools.CodeInterpreter, tools.AdvancedAnalytics} {
		if _, ok := reg.Lookup(name); !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestRouterWithoutModel(t *testing.T) {
	cfg := testConfig()
	cfg.Router.UseModel = false
	m := fake.New(`{"tool":"general_qa"}`)

	tbl, err := table.FromMatrix([][]any{{"city", "sales"}, {"Berlin", 10}})
	if err != nil {
		t.Fatal(err)
	}
	intent := Router(cfg, m, nil).Route(context.Background(), "plot sales by city", tbl)
	if m.Calls() != 0 {
		t.Errorf("model called %d times with use_model=false", m.Calls())
	}
	if intent.Source != "keyword" {
		t.Errorf("source = %q, want keyword", intent.Source)
	}
}

func TestStore(t *testing.T) {
	cfg := testConfig()
	s, err := Store(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Errorf("store = %T, want *memory.Store", s)
	}

	cfg.Storage.Type = "redis"
	if _, err := Store(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown storage type")
	}
}

func TestAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.IdentityFromContext(r.Context())
		if id == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(id.Subject))
	})

	tests := []struct {
		name   string
		modify func(*config.Config)
		header string
		want   int
	}{
		{"none admits anonymous", func(*config.Config) {}, "", http.StatusOK},
		{"apikey accepts known key", func(c *config.Config) {
			c.Auth.Type = "apikey"
			c.Auth.APIKeys = []config.APIKeyConfig{{Key: "sk-1", Subject: "alice"}}
		}, "sk-1", http.StatusOK},
		{"apikey rejects unknown key", func(c *config.Config) {
			c.Auth.Type = "apikey"
			c.Auth.APIKeys = []config.APIKeyConfig{{Key: "sk-1", Subject: "alice"}}
		}, "sk-2", http.StatusUnauthorized},
		{"apikey rejects missing key", func(c *config.Config) {
			c.Auth.Type = "apikey"
			c.Auth.APIKeys = []config.APIKeyConfig{{Key: "sk-1", Subject: "alice"}}
		}, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(cfg)
			mw, err := AuthMiddleware(cfg, nil)
			if err != nil {
				t.Fatalf("AuthMiddleware: %v", err)
			}
			req := httptest.NewRequest(http.MethodGet, "/v1/tools", nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rec := httptest.NewRecorder()
			mw(next).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	t.Run("bypass", func(t *testing.T) {
		cfg := testConfig()
		cfg.Auth.Type = "apikey"
		cfg.Auth.APIKeys = []config.APIKeyConfig{{Key: "sk-1", Subject: "alice"}}
		mw, err := AuthMiddleware(cfg, nil)
		if err != nil {
			t.Fatal(err)
		}
		rec := httptest.NewRecorder()
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, /healthz should bypass auth", rec.Code)
		}
	})
}

func TestBuild(t *testing.T) {
	s, err := Build(context.Background(), testConfig(), nil, true)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s.Close()

	if s.Store == nil || s.Engine == nil {
		t.Fatal("stack is incomplete")
	}
	if got := len(s.Engine.ListTools()); got != 5 {
		t.Errorf("ListTools() = %d tools, want 5", got)
	}

	s2, err := Build(context.Background(), testConfig(), nil, false)
	if err != nil {
		t.Fatalf("Build without store: %v", err)
	}
	defer s2.Close()
	if s2.Store != nil {
		t.Error("store should be nil")
	}
}

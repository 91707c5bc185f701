package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, cfg ServerConfig) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(context.Background(), cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postExecute(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url+"/execute", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST /execute: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp, out
}

func TestServerExecute(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})

	resp, out := postExecute(t, srv.URL, map[string]any{
		"code":    "console.log('hi'); return df.length;",
		"dataset": map[string]any{"columns": []string{"a"}, "rows": [][]any{{1}, {2}, {3}}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, out)
	}
	if out["status"] != StatusSuccess {
		t.Errorf("status = %v", out["status"])
	}
	if out["value"] != 3.0 {
		t.Errorf("value = %v, want 3", out["value"])
	}
	logs, _ := out["logs"].([]any)
	if len(logs) != 1 {
		t.Errorf("logs = %v", out["logs"])
	}
}

func TestServerExecuteError(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})

	_, out := postExecute(t, srv.URL, map[string]any{"code": "return nope;"})
	if out["status"] != StatusError {
		t.Errorf("status = %v, want error", out["status"])
	}
	if _, ok := out["value"]; ok {
		t.Error("failed execution should not carry a value")
	}
}

func TestServerBadRequests(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})

	tests := []struct {
		name string
		body any
	}{
		{"missing code", map[string]any{}},
		{"bad dataset", map[string]any{"code": "return 1;", "dataset": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := postExecute(t, srv.URL, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%v)", resp.StatusCode, out)
			}
		})
	}
}

func TestServerSetupFailure(t *testing.T) {
	srv := newTestServer(t, ServerConfig{Local: LocalConfig{Preload: []string{"throw 1"}}})

	resp, _ := postExecute(t, srv.URL, map[string]any{"code": "return 1;"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("execute status = %d, want 503", resp.StatusCode)
	}

	health, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer health.Body.Close()
	if health.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("health status = %d, want 503", health.StatusCode)
	}
}

func TestServerHealth(t *testing.T) {
	srv := newTestServer(t, ServerConfig{MaxConcurrent: 7})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var h HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "healthy" || h.Capacity != 7 || h.Runtime != "goja" {
		t.Errorf("health = %+v", h)
	}
}

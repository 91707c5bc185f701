package sandbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newRemote(t *testing.T, urls ...string) *Remote {
	t.Helper()
	acq, err := NewStaticAcquirer(urls...)
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRemote(RemoteConfig{Acquirer: acq, ExecTimeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRemoteExecute(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})
	r := newRemote(t, srv.URL)

	res, err := r.Execute(context.Background(), "return df.map(r => r.region);", salesTable())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success || res.ValueString() != `["north","south"]` {
		t.Errorf("result = %+v", res)
	}
}

func TestRemoteExecutionError(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})
	r := newRemote(t, srv.URL)

	res, err := r.Execute(context.Background(), "throw new TypeError('nope');", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Success || res.Error != "TypeError: nope" {
		t.Errorf("result = %+v", res)
	}
}

func TestRemoteTimeout(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})
	r := newRemote(t, srv.URL)

	res, err := r.Execute(context.Background(), "while (true) {}", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.TimedOut || !strings.HasPrefix(res.Error, "TimeoutError:") {
		t.Errorf("result = %+v", res)
	}
}

func TestRemoteSetupError(t *testing.T) {
	srv := newTestServer(t, ServerConfig{Local: LocalConfig{Preload: []string{"throw 1"}}})
	r := newRemote(t, srv.URL)

	_, err := r.Execute(context.Background(), "return 1;", nil)
	if !IsSetupError(err) {
		t.Errorf("expected setup error, got %v", err)
	}
}

func TestRemoteAtCapacity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusTooManyRequests, "at capacity (4/3 concurrent executions)")
	}))
	defer srv.Close()
	r := newRemote(t, srv.URL)

	_, err := r.Execute(context.Background(), "return 1;", nil)
	if !errors.Is(err, ErrAtCapacity) {
		t.Errorf("expected ErrAtCapacity, got %v", err)
	}
}

func TestRemoteClosed(t *testing.T) {
	r := newRemote(t, "http://127.0.0.1:1")
	r.Close()
	if _, err := r.Execute(context.Background(), "return 1;", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestNewRemoteRequiresAcquirer(t *testing.T) {
	if _, err := NewRemote(RemoteConfig{}); err == nil {
		t.Error("expected error without acquirer")
	}
}

func TestStaticAcquirerRoundRobin(t *testing.T) {
	acq, err := NewStaticAcquirer("http://a", "http://b")
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for i := 0; i < 3; i++ {
		url, release, err := acq.Acquire(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		release()
		got = append(got, url)
	}
	if strings.Join(got, ",") != "http://a,http://b,http://a" {
		t.Errorf("urls = %v", got)
	}

	if _, err := NewStaticAcquirer(); err == nil {
		t.Error("expected error with no URLs")
	}
}

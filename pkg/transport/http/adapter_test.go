package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/storage/memory"
	"github.com/rhuss/tabula/pkg/tools"
	"github.com/rhuss/tabula/pkg/transport"
)

const (
	testID    = "an_0123456789abcdef0123456789abcdef"
	unknownID = "an_ffffffffffffffffffffffffffffffff"
)

// mockCreator is a configurable AnalysisCreator for testing.
type mockCreator struct {
	analysis *api.Analysis
	err      error
	events   []api.StreamEvent
}

func (m *mockCreator) CreateAnalysis(ctx context.Context, req *api.AnalyzeRequest, w transport.AnalysisWriter) error {
	if m.err != nil {
		return m.err
	}
	for _, event := range m.events {
		if err := w.WriteEvent(ctx, event); err != nil {
			return err
		}
	}
	if m.analysis != nil {
		return w.WriteAnalysis(ctx, m.analysis)
	}
	return nil
}

// listingCreator also lists tools.
type listingCreator struct {
	mockCreator
}

func (listingCreator) ListTools() []tools.Descriptor {
	return []tools.Descriptor{{Name: "general_qa", Description: "answers", Capabilities: []tools.Capability{tools.CapabilityText}}}
}

func newTestAdapter(creator transport.AnalysisCreator, store transport.AnalysisStore) *Adapter {
	return NewAdapter(creator, store, DefaultConfig())
}

func postJSON(t *testing.T, srv *httptest.Server, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	resp, err := http.Post(srv.URL+"/v1/analyses", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	return resp
}

func doRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s error: %v", method, err)
	}
	return resp
}

func storedAnalysis(t *testing.T, id string) *memory.Store {
	t.Helper()
	store := memory.New(0)
	err := store.SaveAnalysis(context.Background(), &api.Analysis{
		ID:        id,
		Object:    "analysis",
		Status:    api.AnalysisStatusCompleted,
		Question:  "q",
		Tool:      "general_qa",
		Answer:    "a",
		CreatedAt: time.Now().Unix(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestNonStreamingPostReturnsJSON(t *testing.T) {
	creator := &mockCreator{analysis: &api.Analysis{
		ID: testID, Object: "analysis", Status: api.AnalysisStatusCompleted, Answer: "42",
	}}
	srv := httptest.NewServer(newTestAdapter(creator, nil).Handler())
	defer srv.Close()

	resp := postJSON(t, srv, api.AnalyzeRequest{Question: "q"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got api.Analysis
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != testID || got.Answer != "42" {
		t.Errorf("analysis = %+v", got)
	}
}

func TestRequestBodyErrors(t *testing.T) {
	adapter := NewAdapter(&mockCreator{}, nil, Config{MaxBodySize: 64})
	srv := httptest.NewServer(adapter.Handler())
	defer srv.Close()

	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"invalid json", "application/json", "{not json", http.StatusBadRequest},
		{"too large", "application/json", `{"question":"` + strings.Repeat("x", 200) + `"}`, http.StatusRequestEntityTooLarge},
		{"wrong content type", "text/plain", `{"question":"q"}`, http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/v1/analyses", tt.contentType, strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var body api.ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == nil {
				t.Errorf("expected JSON error body, err = %v", err)
			}
		})
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", api.NewInvalidRequestError("question", "required"), http.StatusBadRequest},
		{"not found", api.NewNotFoundError("gone"), http.StatusNotFound},
		{"model", api.NewModelError("upstream"), http.StatusBadGateway},
		{"sandbox", api.NewSandboxError("down"), http.StatusServiceUnavailable},
		{"plain error", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(newTestAdapter(&mockCreator{err: tt.err}, nil).Handler())
			defer srv.Close()

			resp := postJSON(t, srv, api.AnalyzeRequest{Question: "q"})
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestUnknownPathAndMethod(t *testing.T) {
	srv := httptest.NewServer(newTestAdapter(&mockCreator{}, nil).Handler())
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/unknown")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown path status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPut, srv.URL+"/v1/analyses")
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("PUT status = %d", resp.StatusCode)
	}
}

func TestRequestIDHeaderIsEchoed(t *testing.T) {
	creator := &mockCreator{analysis: &api.Analysis{ID: testID}}
	srv := httptest.NewServer(newTestAdapter(creator, nil).Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/analyses", strings.NewReader(`{"question":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "client-id-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "client-id-1" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestStreamingPostReturnsSSE(t *testing.T) {
	creator := &mockCreator{events: []api.StreamEvent{
		{Type: api.EventAnalysisCreated, SequenceNumber: 0, Analysis: &api.Analysis{ID: testID, Status: api.AnalysisStatusInProgress}},
		{Type: api.StreamEventType(api.ProgressThought), SequenceNumber: 1, Progress: &api.ProgressEvent{Type: api.ProgressThought, Content: "hmm"}},
		{Type: api.EventAnalysisCompleted, SequenceNumber: 2, Analysis: &api.Analysis{ID: testID, Status: api.AnalysisStatusCompleted}},
	}}
	adapter := newTestAdapter(creator, nil)
	srv := httptest.NewServer(adapter.Handler())
	defer srv.Close()

	resp := postJSON(t, srv, api.AnalyzeRequest{Question: "q", Stream: true})
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	body := buf.String()

	for _, want := range []string{
		"event: analysis.created\n",
		"event: thought\n",
		"event: analysis.completed\n",
		"data: [DONE]\n",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}

	if adapter.inflight.Len() != 0 {
		t.Error("in-flight entry should be removed after streaming completed")
	}
}

func TestStreamingErrorBeforeEventsReturnsJSON(t *testing.T) {
	creator := &mockCreator{err: api.NewInvalidRequestError("question", "required")}
	srv := httptest.NewServer(newTestAdapter(creator, nil).Handler())
	defer srv.Close()

	resp := postJSON(t, srv, api.AnalyzeRequest{Stream: true})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want JSON", ct)
	}
}

func TestStreamingErrorAfterEventsSendsFailedEvent(t *testing.T) {
	creator := transport.AnalysisCreatorFunc(func(ctx context.Context, _ *api.AnalyzeRequest, w transport.AnalysisWriter) error {
		w.WriteEvent(ctx, api.StreamEvent{Type: api.EventAnalysisCreated, Analysis: &api.Analysis{ID: testID}})
		return api.NewServerError("broke mid-stream")
	})
	srv := httptest.NewServer(newTestAdapter(creator, nil).Handler())
	defer srv.Close()

	resp := postJSON(t, srv, api.AnalyzeRequest{Question: "q", Stream: true})
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)

	if !strings.Contains(buf.String(), "event: analysis.failed\n") {
		t.Errorf("missing analysis.failed event:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "broke mid-stream") {
		t.Error("failed event should carry the error message")
	}
}

func TestStreamingExplicitCancellation(t *testing.T) {
	handlerStarted := make(chan struct{})
	handlerDone := make(chan struct{})

	creator := transport.AnalysisCreatorFunc(func(ctx context.Context, _ *api.AnalyzeRequest, w transport.AnalysisWriter) error {
		defer close(handlerDone)
		w.WriteEvent(ctx, api.StreamEvent{
			Type:     api.EventAnalysisCreated,
			Analysis: &api.Analysis{ID: testID, Status: api.AnalysisStatusInProgress},
		})
		close(handlerStarted)

		select {
		case <-ctx.Done():
			return w.WriteEvent(context.Background(), api.StreamEvent{
				Type:     api.EventAnalysisCancelled,
				Analysis: &api.Analysis{ID: testID, Status: api.AnalysisStatusCancelled},
			})
		case <-time.After(10 * time.Second):
			t.Error("handler was not cancelled within timeout")
			return nil
		}
	})

	srv := httptest.NewServer(newTestAdapter(creator, nil).Handler())
	defer srv.Close()

	go func() {
		resp, err := http.Post(srv.URL+"/v1/analyses", "application/json",
			strings.NewReader(`{"question":"q","stream":true}`))
		if err != nil {
			return
		}
		defer resp.Body.Close()
		new(bytes.Buffer).ReadFrom(resp.Body)
	}()

	<-handlerStarted

	resp := doRequest(t, http.MethodDelete, srv.URL+"/v1/analyses/"+testID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	select {
	case <-handlerDone:
	case <-time.After(5 * time.Second):
		t.Error("handler did not complete after cancellation")
	}
}

func TestGetAnalysis(t *testing.T) {
	srv := httptest.NewServer(newTestAdapter(&mockCreator{}, storedAnalysis(t, testID)).Handler())
	defer srv.Close()

	tests := []struct {
		name string
		id   string
		want int
	}{
		{"stored", testID, http.StatusOK},
		{"unknown", unknownID, http.StatusNotFound},
		{"malformed", "resp_123", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodGet, srv.URL+"/v1/analyses/"+tt.id)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want != http.StatusOK {
				return
			}
			var got api.Analysis
			json.NewDecoder(resp.Body).Decode(&got)
			if got.ID != testID || got.Answer != "a" {
				t.Errorf("analysis = %+v", got)
			}
		})
	}
}

func TestDeleteAnalysis(t *testing.T) {
	srv := httptest.NewServer(newTestAdapter(&mockCreator{}, storedAnalysis(t, testID)).Handler())
	defer srv.Close()

	resp := doRequest(t, http.MethodDelete, srv.URL+"/v1/analyses/"+testID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("first DELETE status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodDelete, srv.URL+"/v1/analyses/"+testID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second DELETE status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/v1/analyses/"+testID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after DELETE status = %d", resp.StatusCode)
	}
}

func TestEndpointsWithoutStore(t *testing.T) {
	srv := httptest.NewServer(newTestAdapter(&mockCreator{}, nil).Handler())
	defer srv.Close()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/analyses/" + testID},
		{http.MethodDelete, "/v1/analyses/" + testID},
		{http.MethodGet, "/v1/analyses"},
	} {
		resp := doRequest(t, tc.method, srv.URL+tc.path)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotImplemented {
			t.Errorf("%s %s status = %d, want 501", tc.method, tc.path, resp.StatusCode)
		}
	}
}

func TestListAnalyses(t *testing.T) {
	store := memory.New(0)
	ids := []string{
		"an_00000000000000000000000000000001",
		"an_00000000000000000000000000000002",
		"an_00000000000000000000000000000003",
	}
	for i, id := range ids {
		store.SaveAnalysis(context.Background(), &api.Analysis{
			ID: id, Object: "analysis", Tool: "general_qa", Status: api.AnalysisStatusCompleted, CreatedAt: int64(100 + i),
		})
	}
	srv := httptest.NewServer(newTestAdapter(&mockCreator{}, store).Handler())
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/analyses?limit=2&order=asc")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var list transport.AnalysisList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Data) != 2 || !list.HasMore || list.FirstID != ids[0] || list.LastID != ids[1] {
		t.Errorf("list = %+v", list)
	}
}

func TestParseListOptions(t *testing.T) {
	tests := []struct {
		query     string
		wantErr   string
		wantOrder string
		wantLimit int
	}{
		{"", "", "desc", 0},
		{"order=asc&limit=5", "", "asc", 5},
		{"after=a&before=b", "after", "", 0},
		{"order=sideways", "order", "", 0},
		{"limit=0", "limit", "", 0},
		{"limit=abc", "limit", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/v1/analyses?"+tt.query, nil)
			opts, apiErr := parseListOptions(r)
			if tt.wantErr != "" {
				if apiErr == nil || apiErr.Param != tt.wantErr {
					t.Errorf("error = %v, want param %q", apiErr, tt.wantErr)
				}
				return
			}
			if apiErr != nil {
				t.Fatalf("unexpected error: %v", apiErr)
			}
			if opts.Order != tt.wantOrder || opts.Limit != tt.wantLimit {
				t.Errorf("opts = %+v", opts)
			}
		})
	}
}

func TestListTools(t *testing.T) {
	srv := httptest.NewServer(newTestAdapter(&listingCreator{}, nil).Handler())
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/tools")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Object string             `json:"object"`
		Data   []tools.Descriptor `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Object != "list" || len(body.Data) != 1 || body.Data[0].Name != "general_qa" {
		t.Errorf("body = %+v", body)
	}

	plain := httptest.NewServer(newTestAdapter(&mockCreator{}, nil).Handler())
	defer plain.Close()
	resp2 := doRequest(t, http.MethodGet, plain.URL+"/v1/tools")
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotImplemented {
		t.Errorf("status without lister = %d", resp2.StatusCode)
	}
}

package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/tabula/pkg/api"
)

func TestWriteAnalysisJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEWriter(rec, nil)

	a := &api.Analysis{ID: testID, Object: "analysis", Status: api.AnalysisStatusCompleted, Answer: "ok"}
	if err := rw.WriteAnalysis(context.Background(), a); err != nil {
		t.Fatalf("WriteAnalysis error: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var got api.Analysis
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.ID != testID || got.Status != api.AnalysisStatusCompleted {
		t.Errorf("analysis = %+v", got)
	}
	if rw.hasStartedStreaming() {
		t.Error("JSON response should not count as streaming")
	}
}

func TestWriteEventSSEFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEWriter(rec, nil)

	event := api.StreamEvent{
		Type:           api.StreamEventType(api.ProgressCodeStart),
		SequenceNumber: 3,
		Progress:       &api.ProgressEvent{Type: api.ProgressCodeStart, Round: 1, Content: "sum(rows)"},
	}
	if err := rw.WriteEvent(context.Background(), event); err != nil {
		t.Fatalf("WriteEvent error: %v", err)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: code_start\ndata: ") {
		t.Errorf("unexpected prefix: %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Errorf("event must end with a blank line: %q", body)
	}
	if strings.Contains(body, "[DONE]") {
		t.Error("non-terminal event should not send [DONE]")
	}

	data := strings.TrimSuffix(strings.TrimPrefix(strings.SplitN(body, "\n", 3)[1], "data: "), "\n")
	var got api.StreamEvent
	if err := json.Unmarshal([]byte(data), &got); err != nil {
		t.Fatalf("data is not JSON: %v", err)
	}
	if got.SequenceNumber != 3 || got.Progress == nil || got.Progress.Content != "sum(rows)" {
		t.Errorf("event = %+v", got)
	}

	for header, want := range map[string]string{
		"Content-Type":  "text/event-stream",
		"Cache-Control": "no-cache",
		"Connection":    "keep-alive",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestTerminalEventsSendDone(t *testing.T) {
	for _, typ := range []api.StreamEventType{
		api.EventAnalysisCompleted,
		api.EventAnalysisIncomplete,
		api.EventAnalysisFailed,
		api.EventAnalysisCancelled,
	} {
		t.Run(string(typ), func(t *testing.T) {
			rec := httptest.NewRecorder()
			rw := newSSEWriter(rec, nil)

			if err := rw.WriteEvent(context.Background(), api.StreamEvent{Type: typ, Analysis: &api.Analysis{ID: testID}}); err != nil {
				t.Fatalf("WriteEvent error: %v", err)
			}
			if !strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n") {
				t.Errorf("missing [DONE]: %q", rec.Body.String())
			}
			if err := rw.WriteEvent(context.Background(), api.StreamEvent{Type: typ}); err == nil {
				t.Error("expected error writing after a terminal event")
			}
		})
	}
}

func TestWriterModesAreExclusive(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newSSEWriter(rec, nil)
	rw.WriteEvent(context.Background(), api.StreamEvent{Type: api.EventAnalysisCreated, Analysis: &api.Analysis{ID: testID}})
	if err := rw.WriteAnalysis(context.Background(), &api.Analysis{}); err == nil {
		t.Error("expected error for WriteAnalysis after WriteEvent")
	}

	rec = httptest.NewRecorder()
	rw = newSSEWriter(rec, nil)
	rw.WriteAnalysis(context.Background(), &api.Analysis{})
	if err := rw.WriteEvent(context.Background(), api.StreamEvent{Type: api.EventAnalysisCreated}); err == nil {
		t.Error("expected error for WriteEvent after WriteAnalysis")
	}
	if !rw.isCompleted() {
		t.Error("writer should be completed after WriteAnalysis")
	}
}

func TestOnCreatedCallback(t *testing.T) {
	var ids []string
	rw := newSSEWriter(httptest.NewRecorder(), func(id string) { ids = append(ids, id) })

	ctx := context.Background()
	rw.WriteEvent(ctx, api.StreamEvent{Type: api.StreamEventType(api.ProgressThought), Progress: &api.ProgressEvent{}})
	rw.WriteEvent(ctx, api.StreamEvent{Type: api.EventAnalysisCreated, Analysis: &api.Analysis{ID: testID}})
	rw.WriteEvent(ctx, api.StreamEvent{Type: api.EventAnalysisCreated, Analysis: &api.Analysis{ID: unknownID}})

	if len(ids) != 1 || ids[0] != testID {
		t.Errorf("callback ids = %v, want [%s]", ids, testID)
	}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/transport"
)

type writerState int

const (
	writerIdle      writerState = iota // nothing written yet
	writerStreaming                    // at least one event sent
	writerCompleted                    // terminal event or analysis sent
)

// sseWriter implements transport.AnalysisWriter for HTTP. Streaming
// requests get server-sent events; the others get a single JSON body.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu        sync.Mutex
	state     writerState
	streaming bool

	// onCreated receives the analysis ID from the first analysis.created
	// event so the handler can register it for cancellation.
	onCreated func(id string)
}

var _ transport.AnalysisWriter = (*sseWriter)(nil)

func newSSEWriter(w http.ResponseWriter, onCreated func(id string)) *sseWriter {
	return &sseWriter{
		w:         w,
		rc:        http.NewResponseController(w),
		onCreated: onCreated,
	}
}

// WriteEvent sends one event as
//
//	event: {type}
//	data: {json}
//
// followed by "data: [DONE]" after a terminal event.
func (s *sseWriter) WriteEvent(_ context.Context, event api.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot write event: writer is completed")
	}

	if s.state == writerIdle {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.state = writerStreaming
		s.streaming = true
	}

	if event.Type == api.EventAnalysisCreated && event.Analysis != nil && s.onCreated != nil {
		s.onCreated(event.Analysis.ID)
		s.onCreated = nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	if event.Type.IsTerminal() {
		if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
			return fmt.Errorf("failed to write [DONE]: %w", err)
		}
		if err := s.rc.Flush(); err != nil {
			return fmt.Errorf("failed to flush [DONE]: %w", err)
		}
		s.state = writerCompleted
	}
	return nil
}

// WriteAnalysis sends a complete JSON analysis. It cannot follow
// WriteEvent.
func (s *sseWriter) WriteAnalysis(_ context.Context, a *api.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case writerStreaming:
		return errors.New("cannot write analysis: streaming has already started")
	case writerCompleted:
		return errors.New("cannot write analysis: writer is completed")
	}

	s.w.Header().Set("Content-Type", "application/json")
	s.state = writerCompleted

	if err := json.NewEncoder(s.w).Encode(a); err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}
	return nil
}

// Flush sends buffered data to the client.
func (s *sseWriter) Flush() error {
	return s.rc.Flush()
}

func (s *sseWriter) hasStartedStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *sseWriter) isCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == writerCompleted
}

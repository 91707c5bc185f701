package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/storage"
	"github.com/rhuss/tabula/pkg/transport"
)

// Adapter serves the analysis API over HTTP.
// It routes requests to the appropriate handler and serializes analyses.
type Adapter struct {
	creator  transport.AnalysisCreator
	tools    transport.ToolLister    // nil when the creator cannot list tools
	store    transport.AnalysisStore // nil if stateless-only
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 32 << 20, // tables can be large
	}
}

// NewAdapter creates an HTTP adapter for creator. The store is optional;
// when nil, the retrieval endpoints answer 501. When creator also
// implements transport.ToolLister, GET /v1/tools lists its tools.
// Middleware is applied to the creator in the given order.
func NewAdapter(creator transport.AnalysisCreator, store transport.AnalysisStore, cfg Config, middlewares ...transport.Middleware) *Adapter {
	lister, _ := creator.(transport.ToolLister)
	if len(middlewares) > 0 {
		creator = transport.Chain(middlewares...)(creator)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		creator:  creator,
		tools:    lister,
		store:    store,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /v1/analyses", a.handleCreateAnalysis)
	a.mux.HandleFunc("GET /v1/analyses/{id}", a.handleGetAnalysis)
	a.mux.HandleFunc("GET /v1/analyses", a.handleListAnalyses)
	a.mux.HandleFunc("DELETE /v1/analyses/{id}", a.handleDeleteAnalysis)
	a.mux.HandleFunc("GET /v1/tools", a.handleListTools)

	return a
}

// Handler returns the http.Handler for this adapter, including request ID
// propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// CancelAll cancels every streaming analysis still running. The server
// calls it on shutdown.
func (a *Adapter) CancelAll() int {
	return a.inflight.CancelAll()
}

// httpRequestIDMiddleware moves a client supplied X-Request-ID into the
// context and echoes the request ID of the context back on the response.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		}
		next.ServeHTTP(&requestIDResponseWriter{ResponseWriter: w, r: r}, r)
	})
}

// requestIDResponseWriter sets X-Request-ID before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleCreateAnalysis handles POST /v1/analyses.
func (a *Adapter) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var registeredID string
	rw := newSSEWriter(w, func(id string) {
		registeredID = id
		a.inflight.Register(id, cancel)
	})

	err := a.creator.CreateAnalysis(ctx, &req, rw)

	if registeredID != "" {
		a.inflight.Remove(registeredID)
	}
	if err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleGetAnalysis handles GET /v1/analyses/{id}.
func (a *Adapter) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := a.analysisID(w, r, "retrieval")
	if !ok {
		return
	}

	an, err := a.store.GetAnalysis(r.Context(), id)
	if err != nil {
		writeStoreError(w, id, err)
		return
	}
	writeJSON(w, an)
}

// handleDeleteAnalysis handles DELETE /v1/analyses/{id}. A running
// streaming analysis is cancelled; it is stored as cancelled once its tool
// returns. Otherwise the stored analysis is deleted.
func (a *Adapter) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateAnalysisID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed analysis ID"),
			http.StatusBadRequest,
		)
		return
	}

	if a.inflight.Cancel(id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if _, ok := a.analysisID(w, r, "deletion"); !ok {
		return
	}
	if err := a.store.DeleteAnalysis(r.Context(), id); err != nil {
		writeStoreError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListAnalyses handles GET /v1/analyses.
func (a *Adapter) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeNoStore(w, "listing")
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteErrorResponse(w, apiErr, http.StatusBadRequest)
		return
	}

	list, err := a.store.ListAnalyses(r.Context(), opts)
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, list)
}

// handleListTools handles GET /v1/tools.
func (a *Adapter) handleListTools(w http.ResponseWriter, _ *http.Request) {
	if a.tools == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "tool listing is not available"),
			http.StatusNotImplemented,
		)
		return
	}
	writeJSON(w, map[string]any{
		"object": "list",
		"data":   a.tools.ListTools(),
	})
}

// analysisID validates the {id} path value and that a store is configured.
// It writes the error response itself and reports false on failure.
func (a *Adapter) analysisID(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	if a.store == nil {
		writeNoStore(w, op)
		return "", false
	}
	id := r.PathValue("id")
	if !api.ValidateAnalysisID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed analysis ID"),
			http.StatusBadRequest,
		)
		return "", false
	}
	return id, true
}

func writeNoStore(w http.ResponseWriter, op string) {
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("", "analysis "+op+" is not available (no store configured)"),
		http.StatusNotImplemented,
	)
}

func writeStoreError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError("analysis "+id+" not found"))
		return
	}
	transport.WriteAPIError(w, transport.AsAPIError(err))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// parseListOptions extracts pagination parameters from the query string.
func parseListOptions(r *http.Request) (transport.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := transport.ListOptions{
		After:  q.Get("after"),
		Before: q.Get("before"),
		Tool:   q.Get("tool"),
		Order:  q.Get("order"),
	}

	if opts.After != "" && opts.Before != "" {
		return opts, api.NewInvalidRequestError("after", "cannot use both 'after' and 'before' cursors")
	}

	switch opts.Order {
	case "":
		opts.Order = "desc"
	case "asc", "desc":
	default:
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}

	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

// writeHandlerError reports a creator error. Once streaming has begun the
// error goes out as an analysis.failed event; before that it is a plain
// JSON error response.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseWriter, err error) {
	apiErr := transport.AsAPIError(err)

	if rw.hasStartedStreaming() {
		rw.WriteEvent(context.Background(), api.StreamEvent{
			Type: api.EventAnalysisFailed,
			Analysis: &api.Analysis{
				Object: "analysis",
				Status: api.AnalysisStatusFailed,
				Error:  apiErr,
			},
		})
		return
	}
	if rw.isCompleted() {
		// A write error after the analysis was sent; nothing left to tell
		// the client.
		return
	}
	transport.WriteAPIError(w, apiErr)
}

package transport

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/rhuss/tabula/pkg/api"
)

type requestIDKey struct{}

// ContextWithRequestID attaches a request ID to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID, or "" when none is set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID returns middleware that makes sure every request carries an ID.
// An ID already in the context (from the X-Request-ID header) is kept.
func RequestID() Middleware {
	return func(next AnalysisCreator) AnalysisCreator {
		return AnalysisCreatorFunc(func(ctx context.Context, req *api.AnalyzeRequest, w AnalysisWriter) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, newRequestID())
			}
			return next.CreateAnalysis(ctx, req, w)
		})
	}
}

func newRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

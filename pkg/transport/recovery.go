package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/rhuss/tabula/pkg/api"
)

// Recovery returns middleware that converts a panic in the handler into a
// server error, so one bad analysis does not take the gateway down.
func Recovery() Middleware {
	return func(next AnalysisCreator) AnalysisCreator {
		return AnalysisCreatorFunc(func(ctx context.Context, req *api.AnalyzeRequest, w AnalysisWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in analysis handler",
						"panic", fmt.Sprint(r),
						"request_id", RequestIDFromContext(ctx),
						"stack", string(debug.Stack()))
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.CreateAnalysis(ctx, req, w)
		})
	}
}

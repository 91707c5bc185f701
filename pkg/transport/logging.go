package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/tabula/pkg/api"
)

// Logging returns middleware that emits one structured log entry per
// analysis request with the request ID, forced tool, table shape, stream
// flag, duration and outcome. HTTP status codes are logged by the adapter.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next AnalysisCreator) AnalysisCreator {
		return AnalysisCreatorFunc(func(ctx context.Context, req *api.AnalyzeRequest, w AnalysisWriter) error {
			start := time.Now()

			err := next.CreateAnalysis(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("tool", req.Tool),
				slog.Int("rows", req.Table.NumRows()),
				slog.Bool("stream", req.Stream),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "analysis request failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "analysis request completed", attrs...)
			}
			return err
		})
	}
}

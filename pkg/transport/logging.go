package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/bruecke-ai/bruecke/pkg/api"
)

// Logging returns middleware that emits one structured log entry per
// turn: request ID, model, streaming flag, whether a prior response was
// resumed, duration, and the error if the turn failed.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ResponseCreator) ResponseCreator {
		return ResponseCreatorFunc(func(ctx context.Context, req *api.CreateResponseRequest, w ResponseWriter) error {
			start := time.Now()
			requestID := RequestIDFromContext(ctx)

			err := next.CreateResponse(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("model", req.Model),
				slog.Bool("stream", req.Stream),
				slog.Bool("resumed", req.PreviousResponseID != ""),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "turn failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "turn completed", attrs...)
			}

			return err
		})
	}
}

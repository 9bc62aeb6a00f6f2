package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/transport"
)

// MetricsMiddleware wraps an HTTP handler to record request metrics.
//
// It captures:
//   - bruecke_requests_total (counter): per request with method and status class
//   - bruecke_request_duration_seconds (histogram): request duration by method
//   - bruecke_streaming_connections_active (gauge): held while an SSE response is in flight
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Detect SSE streaming from the Accept header.
		if r.Header.Get("Accept") == "text/event-stream" {
			StreamingConnections.Inc()
			defer StreamingConnections.Dec()
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		statusClass := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(r.Method, statusClass).Inc()
		RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// TurnMetrics returns creator-level middleware that records engine turn
// duration and outcome per model and mode.
func TurnMetrics() transport.Middleware {
	return func(next transport.ResponseCreator) transport.ResponseCreator {
		return transport.ResponseCreatorFunc(func(ctx context.Context, req *api.CreateResponseRequest, w transport.ResponseWriter) error {
			start := time.Now()
			err := next.CreateResponse(ctx, req, w)

			mode := "sync"
			if req.Stream {
				mode = "stream"
			}
			status := "ok"
			if err != nil {
				status = "error"
			}
			TurnDuration.WithLabelValues(req.Model, mode).Observe(time.Since(start).Seconds())
			TurnsTotal.WithLabelValues(req.Model, mode, status).Inc()
			return err
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

// WriteHeader captures the status code and delegates to the underlying writer.
func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

// Write delegates to the underlying writer and marks the status as written.
func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// Flush delegates to the underlying writer if it implements http.Flusher.
// This is essential for SSE streaming support.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter, enabling
// http.ResponseController and similar utilities to access the original
// writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

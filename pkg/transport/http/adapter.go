// Package http serves the bridge's wire protocol over HTTP and SSE.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/storage"
	"github.com/bruecke-ai/bruecke/pkg/transport"
)

// Adapter serves the responses and conversations API over HTTP.
// It routes requests to the appropriate handler and serializes results.
type Adapter struct {
	creator       transport.ResponseCreator
	store         transport.ResponseStore     // nil if stateless-only
	conversations transport.ConversationStore // nil if conversations are disabled
	inflight      *transport.InFlightRegistry
	mux           *http.ServeMux
	config        Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr        string
	MaxBodySize int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		MaxBodySize: 10 << 20, // 10 MB
	}
}

// NewAdapter creates an HTTP adapter. Both stores are optional; when nil,
// their endpoints report the operation as unavailable. Middleware is
// applied to the ResponseCreator in the given order.
func NewAdapter(creator transport.ResponseCreator, store transport.ResponseStore, conversations transport.ConversationStore, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		creator = transport.Chain(middlewares...)(creator)
	}

	a := &Adapter{
		creator:       creator,
		store:         store,
		conversations: conversations,
		inflight:      transport.NewInFlightRegistry(),
		mux:           http.NewServeMux(),
		config:        cfg,
	}

	a.mux.HandleFunc("POST /v1/responses", a.handleCreateResponse)
	a.mux.HandleFunc("GET /v1/responses/{id}", a.handleGetResponse)
	a.mux.HandleFunc("GET /v1/responses", a.handleListResponses)
	a.mux.HandleFunc("DELETE /v1/responses/{id}", a.handleDeleteResponse)

	a.mux.HandleFunc("POST /v1/conversations", a.handleCreateConversation)
	a.mux.HandleFunc("GET /v1/conversations/{id}", a.handleGetConversation)
	a.mux.HandleFunc("POST /v1/conversations/{id}", a.handleUpdateConversation)
	a.mux.HandleFunc("DELETE /v1/conversations/{id}", a.handleDeleteConversation)
	a.mux.HandleFunc("POST /v1/conversations/{id}/items", a.handleAddItems)
	a.mux.HandleFunc("GET /v1/conversations/{id}/items", a.handleListItems)
	a.mux.HandleFunc("GET /v1/conversations/{id}/items/{item_id}", a.handleGetItem)
	a.mux.HandleFunc("DELETE /v1/conversations/{id}/items/{item_id}", a.handleDeleteItem)

	a.mux.HandleFunc("GET /healthz", a.handleHealthz)

	return a
}

// Handler returns the http.Handler for this adapter. Use this to
// integrate with an http.Server or test with httptest. The returned
// handler includes HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// httpRequestIDMiddleware propagates the X-Request-ID header into the
// request context and back onto the response.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx := transport.ContextWithRequestID(r.Context(), id)
			r = r.WithContext(ctx)
		}
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
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

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
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

// handleCreateResponse handles POST /v1/responses.
func (a *Adapter) handleCreateResponse(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.CreateResponseRequest
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

	if req.Stream {
		a.handleStreamingResponse(w, r, &req)
		return
	}

	rw := newSSEResponseWriter(w, nil)
	if err := a.creator.CreateResponse(r.Context(), &req, rw); err != nil {
		a.writeHandlerError(w, rw, err)
		return
	}
}

// handleStreamingResponse handles streaming POST requests (stream: true).
// The turn is registered in the in-flight registry under its response ID
// as soon as response.created goes out, so a concurrent DELETE can cancel
// it.
func (a *Adapter) handleStreamingResponse(w http.ResponseWriter, r *http.Request, req *api.CreateResponseRequest) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var registeredID string
	rw := newSSEResponseWriter(w, func(id string) {
		registeredID = id
		a.inflight.Register(id, cancel)
	})

	err := a.creator.CreateResponse(ctx, req, rw)

	if registeredID != "" {
		a.inflight.Remove(registeredID)
	}

	if err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleGetResponse handles GET /v1/responses/{id}.
func (a *Adapter) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "response retrieval is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	id := r.PathValue("id")
	if !api.ValidateResponseID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed response ID"),
			http.StatusBadRequest,
		)
		return
	}

	resp, err := a.store.GetResponse(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, err, "response "+id+" not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleDeleteResponse handles DELETE /v1/responses/{id}. It first checks
// the in-flight registry (cancelling an active stream), then falls
// through to the response store.
func (a *Adapter) handleDeleteResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateResponseID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed response ID"),
			http.StatusBadRequest,
		)
		return
	}

	if a.inflight.Cancel(id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if a.store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "response deletion is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	if err := a.store.DeleteResponse(r.Context(), id); err != nil {
		a.writeStoreError(w, err, "response "+id+" not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListResponses handles GET /v1/responses.
func (a *Adapter) handleListResponses(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "response listing is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	opts, optErr := parseListOptions(r)
	if optErr != nil {
		transport.WriteErrorResponse(w, optErr, http.StatusBadRequest)
		return
	}

	result, err := a.store.ListResponses(r.Context(), opts)
	if err != nil {
		a.writeStoreError(w, err, "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleHealthz handles GET /healthz. The response store, when present,
// is probed so a dead database turns the probe red.
func (a *Adapter) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if a.store != nil {
		if err := a.store.HealthCheck(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// parseListOptions extracts pagination parameters from the query string.
func parseListOptions(r *http.Request) (transport.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := transport.ListOptions{
		After: q.Get("after"),
		Order: q.Get("order"),
	}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

// writeStoreError maps a store failure onto the wire. notFoundMsg is used
// when the error is storage.ErrNotFound.
func (a *Adapter) writeStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, storage.ErrNotFound) {
		if notFoundMsg == "" {
			notFoundMsg = "not found"
		}
		transport.WriteAPIError(w, api.NewNotFoundError(notFoundMsg))
		return
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		transport.WriteAPIError(w, apiErr)
		return
	}
	transport.WriteAPIError(w, api.NewServerError(err.Error()))
}

// writeHandlerError writes an error from the creator. If streaming has
// already started, it sends a best-effort response.failed event instead
// of a JSON body the SSE client could not parse.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseResponseWriter, err error) {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		apiErr = api.NewServerError(err.Error())
	}

	if rw.hasStartedStreaming() {
		failEvent := api.StreamEvent{
			Type: api.EventResponseFailed,
			Response: &api.Response{
				Status: api.ResponseStatusFailed,
				Error:  apiErr,
			},
		}
		rw.WriteEvent(context.Background(), failEvent)
		return
	}

	transport.WriteAPIError(w, apiErr)
}

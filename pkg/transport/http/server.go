package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bruecke-ai/bruecke/pkg/transport"
)

// Server wraps an http.Server with the transport adapter and manages the
// full lifecycle including startup and graceful shutdown.
type Server struct {
	httpServer     *http.Server
	adapter        *Adapter
	config         ServerConfig
	logger         *slog.Logger
	customHandler  http.Handler
	middlewares    []transport.Middleware
	httpMiddleware func(http.Handler) http.Handler
	metricsPath    string
	metricsHandler http.Handler
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30 * time.Second,
		Logger:          slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// WithHandler replaces the adapter handler with a custom one.
func WithHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.customHandler = h }
}

// WithMiddleware appends creator middleware after the defaults
// (recovery, request ID, logging).
func WithMiddleware(mw ...transport.Middleware) ServerOption {
	return func(s *Server) { s.middlewares = append(s.middlewares, mw...) }
}

// WithHTTPMiddleware wraps the final handler with HTTP-level middleware,
// e.g. request metrics.
func WithHTTPMiddleware(wrap func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.httpMiddleware = wrap }
}

// WithMetricsEndpoint mounts h (typically promhttp.Handler) at path
// alongside the API routes.
func WithMetricsEndpoint(path string, h http.Handler) ServerOption {
	return func(s *Server) { s.metricsPath = path; s.metricsHandler = h }
}

// NewServer creates a transport server. Both stores are optional (pass
// nil for stateless-only deployments). Default middleware (recovery,
// request ID, logging) is applied automatically.
func NewServer(creator transport.ResponseCreator, store transport.ResponseStore, conversations transport.ConversationStore, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	adapterCfg := Config{
		Addr:        s.config.Addr,
		MaxBodySize: s.config.MaxBodySize,
	}

	mw := []transport.Middleware{
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	}
	mw = append(mw, s.middlewares...)

	s.adapter = NewAdapter(creator, store, conversations, adapterCfg, mw...)

	handler := s.adapter.Handler()
	if s.customHandler != nil {
		handler = s.customHandler
	}
	if s.metricsPath != "" && s.metricsHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("GET "+s.metricsPath, s.metricsHandler)
		mux.Handle("/", handler)
		handler = mux
	}
	if s.httpMiddleware != nil {
		handler = s.httpMiddleware(handler)
	}
	s.httpServer = &http.Server{
		Addr:    s.config.Addr,
		Handler: handler,
	}

	return s
}

// Adapter returns the underlying HTTP adapter, for mounting its Handler
// into a larger mux.
func (s *Server) Adapter() *Adapter {
	return s.adapter
}

// ListenAndServe starts the server and blocks until a shutdown signal
// (SIGINT or SIGTERM) is received. It then gracefully shuts down,
// waiting for in-flight requests to complete within the configured
// timeout.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.listenAndServeWithContext(ctx)
}

func (s *Server) listenAndServeWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", slog.String("addr", s.config.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.shutdown()
}

// ServeOn starts the server on the given listener. Used for testing.
func (s *Server) ServeOn(ln net.Listener) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Package server exposes the chat endpoint, its WebSocket variant, user
// preferences, health and metrics over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/germanamz/silk/pkg/dispatch"
	"github.com/germanamz/silk/pkg/identity"
	"github.com/germanamz/silk/pkg/preferences"
)

const (
	// DefaultMaxBodyBytes caps request bodies.
	DefaultMaxBodyBytes = 1 << 20
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Options configures a Server.
type Options struct {
	Dispatcher      *dispatch.Dispatcher
	Preferences     *preferences.Service // Optional; preference routes are omitted when nil.
	IdentityHeader  string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
	Registry        *prometheus.Registry // Optional; a fresh registry is created when nil.
	Logger          *slog.Logger
}

// Server routes HTTP requests to the dispatcher and preference service.
type Server struct {
	dispatcher      *dispatch.Dispatcher
	prefs           *preferences.Service
	identity        func(http.Handler) http.Handler
	maxBody         int64
	shutdownTimeout time.Duration
	registry        *prometheus.Registry
	metrics         *Metrics
	log             *slog.Logger
	handler         http.Handler
}

// New creates a Server from opts.
func New(opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		dispatcher:      opts.Dispatcher,
		prefs:           opts.Preferences,
		identity:        identity.Middleware(opts.IdentityHeader),
		maxBody:         opts.MaxBodyBytes,
		shutdownTimeout: opts.ShutdownTimeout,
		registry:        opts.Registry,
		metrics:         NewMetrics(opts.Registry),
		log:             opts.Logger,
	}
	s.handler = s.logMiddleware(s.recoverMiddleware(s.mux()))

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	mux.Handle("POST /api/chat", s.identity(http.HandlerFunc(s.handleChat)))
	mux.Handle("GET /api/chat/ws", s.identity(http.HandlerFunc(s.handleChatWS)))

	if s.prefs != nil {
		mux.Handle("GET /api/preferences", s.identity(http.HandlerFunc(s.handleGetPreferences)))
		mux.Handle("PUT /api/preferences", s.identity(http.HandlerFunc(s.handlePutPreferences)))
	}

	return mux
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		s.log.Info("server listening", slog.String("addr", addr))
		errs <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		s.log.Info("server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	}
}

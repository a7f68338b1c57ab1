package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/blockbridge/internal/audit"
	"github.com/mattjoyce/blockbridge/internal/auth"
	"github.com/mattjoyce/blockbridge/internal/blocks"
	"github.com/mattjoyce/blockbridge/internal/bridge"
	"github.com/mattjoyce/blockbridge/internal/events"
)

// BlockRunner runs catalogue blocks and start events.
type BlockRunner interface {
	Run(ctx context.Context, opcode string, args map[string]any, wait bool) (any, error)
	Start(ctx context.Context, opcode string, wait bool) any
	Catalog() *blocks.Catalog
}

// Dispatcher sends raw events through the bridge.
type Dispatcher interface {
	DispatchAndForget(ctx context.Context, event string, payload bridge.Payload) bridge.Code
	DispatchAndAwait(ctx context.Context, event string, payload bridge.Payload) any
	Registered() bool
}

// BackendStatus reports device connectivity.
type BackendStatus interface {
	Connected() bool
	Kind() string
}

// AuditReader reads the dispatch log.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is a single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
	// MaxWait caps waiting requests.
	MaxWait time.Duration
}

// Deps are the components the API serves. Audit may be nil when the log is disabled.
type Deps struct {
	Runner  BlockRunner
	Bridge  Dispatcher
	Backend BackendStatus
	Audit   AuditReader
	Events  *events.Hub
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if config.MaxWait <= 0 {
		config.MaxWait = 30 * time.Second
	}
	return &Server{
		config:    config,
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// Waiting requests are bounded by MaxWait plus block pacing.
		WriteTimeout: s.config.MaxWait + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeClickRW)).Post("/v1/click", s.handleClick)
		r.With(s.requireScopes(auth.ScopeBlocksRW)).Post("/v1/blocks/{opcode}", s.handleRunBlock)
		r.With(s.requireScopes(auth.ScopeBlocksRW)).Post("/v1/dispatch/{event}", s.handleDispatch)
		r.With(s.requireScopes(auth.ScopeBlocksRO)).Get("/v1/blocks", s.handleListBlocks)
		r.With(s.requireScopes(auth.ScopeBlocksRO)).Get("/v1/openapi.json", s.handleOpenAPI)
		r.With(s.requireScopes(auth.ScopeAuditRO)).Get("/v1/dispatches", s.handleDispatches)
		r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

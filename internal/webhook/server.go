package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/blockbridge/internal/bridge"
)

// Server represents the webhook HTTP server.
type Server struct {
	config  Config
	clicker Clicker
	logger  *slog.Logger
	server  *http.Server

	endpoints map[string]*EndpointConfig
}

// New creates a new webhook server instance.
func New(config Config, clicker Clicker, logger *slog.Logger) *Server {
	endpoints := make(map[string]*EndpointConfig, len(config.Endpoints))
	for i := range config.Endpoints {
		ep := &config.Endpoints[i]
		if ep.MaxBodySize <= 0 {
			ep.MaxBodySize = DefaultMaxBodySize
		}
		endpoints[ep.Path] = ep
	}

	return &Server{
		config:    config,
		clicker:   clicker,
		logger:    logger,
		endpoints: endpoints,
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the webhook HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "endpoints", len(s.endpoints))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	for path := range s.endpoints {
		r.Post(path, s.handleWebhook)
	}
	return r
}

// loggingMiddleware logs requests without their bodies.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := s.endpoints[r.URL.Path]
	if !ok {
		s.respondError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, endpoint.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > endpoint.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	signature := r.Header.Get(endpoint.SignatureHeader)
	if err := verifyHMACSignature(body, signature, endpoint.Secret); err != nil {
		s.logger.Warn("webhook signature rejected",
			"path", r.URL.Path,
			"header", endpoint.SignatureHeader,
			"present", signature != "",
		)
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	code := s.clicker.ClickAndForget(r.Context(), endpoint.Opcode)
	resp := TriggerResponse{
		RequestID: middleware.GetReqID(r.Context()),
		Opcode:    endpoint.Opcode,
		Code:      code,
	}

	switch code {
	case bridge.CodeSuppressed:
		s.logger.Info("webhook click suppressed", "path", r.URL.Path, "opcode", endpoint.Opcode)
		s.respondJSON(w, http.StatusTooManyRequests, resp)
	case bridge.CodeFault:
		s.respondJSON(w, http.StatusBadGateway, resp)
	default:
		s.logger.Info("webhook click dispatched", "path", r.URL.Path, "opcode", endpoint.Opcode, "code", int(code))
		s.respondJSON(w, http.StatusAccepted, resp)
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}

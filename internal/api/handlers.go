package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/blockbridge/internal/blocks"
	"github.com/mattjoyce/blockbridge/internal/bridge"
)

const maxBodyBytes = 1 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		HandlerSet:    s.deps.Bridge.Registered(),
	}
	if s.deps.Backend != nil {
		resp.Backend = s.deps.Backend.Kind()
		resp.BackendConnected = s.deps.Backend.Connected()
	}
	if !resp.BackendConnected || !resp.HandlerSet {
		resp.Status = "degraded"
	}
	if s.deps.Events != nil {
		resp.Subscribers = s.deps.Events.Subscribers()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleClick handles POST /v1/click.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req ClickRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Opcode == "" {
		s.writeError(w, http.StatusBadRequest, "opcode is required")
		return
	}

	ctx, cancel := s.waitContext(r.Context(), req.Wait)
	defer cancel()

	result := s.deps.Runner.Start(ctx, req.Opcode, req.Wait)
	status := http.StatusOK
	if code, ok := result.(bridge.Code); ok && code == bridge.CodeSuppressed {
		status = http.StatusTooManyRequests
	}
	respondJSON(w, status, ResultResponse{
		RequestID: middleware.GetReqID(r.Context()),
		Result:    result,
	})
}

// handleRunBlock handles POST /v1/blocks/{opcode}.
func (s *Server) handleRunBlock(w http.ResponseWriter, r *http.Request) {
	opcode := chi.URLParam(r, "opcode")

	var req RunBlockRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.waitContext(r.Context(), req.Wait)
	defer cancel()

	result, err := s.deps.Runner.Run(ctx, opcode, req.Args, req.Wait)
	switch {
	case errors.Is(err, blocks.ErrUnknownBlock):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, blocks.ErrInvalidArguments):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		// The block was dispatched; only its pacing was cut short.
		s.logger.Warn("block pacing interrupted", "opcode", opcode, "error", err)
	}

	respondJSON(w, http.StatusOK, ResultResponse{
		RequestID: middleware.GetReqID(r.Context()),
		Result:    result,
	})
}

// handleDispatch handles POST /v1/dispatch/{event} for events outside the catalogue.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	event := chi.URLParam(r, "event")

	var req DispatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := s.waitContext(r.Context(), req.Wait)
	defer cancel()

	var result any
	if req.Wait {
		result = s.deps.Bridge.DispatchAndAwait(ctx, event, bridge.Payload(req.Payload))
	} else {
		result = s.deps.Bridge.DispatchAndForget(ctx, event, bridge.Payload(req.Payload))
	}
	respondJSON(w, http.StatusOK, ResultResponse{
		RequestID: middleware.GetReqID(r.Context()),
		Result:    result,
	})
}

// handleListBlocks handles GET /v1/blocks.
func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	c := s.deps.Runner.Catalog()

	resp := BlocksResponse{
		ID:    c.ID,
		Name:  c.Name,
		Menus: make(map[string][]blocks.MenuItem),
	}
	for _, b := range c.Blocks() {
		resp.Blocks = append(resp.Blocks, BlockInfo{
			Opcode:    b.Opcode,
			Text:      b.Text,
			Event:     b.Event,
			PaceMS:    b.PaceMS(),
			Arguments: b.Arguments,
		})
	}
	for _, name := range c.MenuNames() {
		items, _ := c.Menu(name)
		resp.Menus[name] = items
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleOpenAPI handles GET /v1/openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.deps.Runner.Catalog()))
}

// handleDispatches handles GET /v1/dispatches?limit=N.
func (s *Server) handleDispatches(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		s.writeError(w, http.StatusNotFound, "audit log is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.deps.Audit.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read dispatch log", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read dispatch log")
		return
	}
	respondJSON(w, http.StatusOK, DispatchesResponse{Dispatches: entries})
}

func (s *Server) waitContext(ctx context.Context, wait bool) (context.Context, context.CancelFunc) {
	if !wait {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.MaxWait)
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

package api

import (
	"github.com/mattjoyce/blockbridge/internal/audit"
	"github.com/mattjoyce/blockbridge/internal/blocks"
)

// ClickRequest is the JSON body for POST /v1/click.
type ClickRequest struct {
	Opcode string `json:"opcode"`
	Wait   bool   `json:"wait"`
}

// RunBlockRequest is the JSON body for POST /v1/blocks/{opcode}.
type RunBlockRequest struct {
	Args map[string]any `json:"args,omitempty"`
	Wait bool           `json:"wait"`
}

// DispatchRequest is the JSON body for POST /v1/dispatch/{event}.
type DispatchRequest struct {
	Payload map[string]any `json:"payload,omitempty"`
	Wait    bool           `json:"wait"`
}

// ResultResponse carries the bridge result: a sentinel code or the device's value.
type ResultResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Result    any    `json:"result"`
}

// BlockInfo describes one catalogue block.
type BlockInfo struct {
	Opcode    string            `json:"opcode"`
	Text      string            `json:"text"`
	Event     string            `json:"event"`
	PaceMS    int64             `json:"pace_ms"`
	Arguments []blocks.Argument `json:"arguments"`
}

// BlocksResponse is returned by GET /v1/blocks.
type BlocksResponse struct {
	ID     string                       `json:"id"`
	Name   string                       `json:"name"`
	Blocks []BlockInfo                  `json:"blocks"`
	Menus  map[string][]blocks.MenuItem `json:"menus"`
}

// DispatchesResponse is returned by GET /v1/dispatches.
type DispatchesResponse struct {
	Dispatches []audit.Entry `json:"dispatches"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status           string `json:"status"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Backend          string `json:"backend"`
	BackendConnected bool   `json:"backend_connected"`
	HandlerSet       bool   `json:"handler_set"`
	Subscribers      int    `json:"subscribers"`
}

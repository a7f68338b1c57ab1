package webhook

import (
	"context"

	"github.com/mattjoyce/blockbridge/internal/bridge"
)

// Clicker fires start events.
type Clicker interface {
	ClickAndForget(ctx context.Context, opcode string) bridge.Code
}

// Config holds webhook server configuration.
type Config struct {
	Listen    string
	Endpoints []EndpointConfig
}

// EndpointConfig defines a single webhook endpoint.
type EndpointConfig struct {
	Path string
	// Opcode is the start event fired on a verified request.
	Opcode string
	Secret string
	// SignatureHeader carries the hex HMAC, optionally prefixed "sha256=".
	SignatureHeader string
	MaxBodySize     int64
}

// TriggerResponse is the JSON response for accepted and suppressed triggers.
type TriggerResponse struct {
	RequestID string      `json:"request_id"`
	Opcode    string      `json:"opcode"`
	Code      bridge.Code `json:"code"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DefaultMaxBodySize is applied when an endpoint sets none.
const DefaultMaxBodySize = 1 << 20

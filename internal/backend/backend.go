// Package backend provides bridge handlers that deliver dispatches to a device.
package backend

import (
	"errors"
	"fmt"

	"github.com/mattjoyce/blockbridge/internal/bridge"
	"github.com/mattjoyce/blockbridge/internal/config"
)

var (
	// ErrNotConnected rejects dispatches made while no device connection is open.
	ErrNotConnected = errors.New("backend: not connected")
	// ErrConnectionLost rejects waiting dispatches whose connection dropped before a reply.
	ErrConnectionLost = errors.New("backend: connection lost")
)

// Handler is a bridge.Handler that can report connectivity.
type Handler interface {
	bridge.Handler
	Connected() bool
	Kind() string
}

// New builds the handler selected by cfg.Kind. WebSocket handlers are returned
// unstarted; call Start on them.
func New(cfg config.BackendConfig, opts ...Option) (Handler, error) {
	switch cfg.Kind {
	case config.BackendLog:
		return NewLog(), nil
	case config.BackendWebSocket:
		return NewWebSocket(cfg, opts...), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}

package backend

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/blockbridge/internal/bridge"
	"github.com/mattjoyce/blockbridge/internal/config"
	"github.com/mattjoyce/blockbridge/internal/log"
)

// Log is the dry-run backend: every request is logged and resolves with 1.
type Log struct {
	logger *slog.Logger
}

func NewLog() *Log {
	return &Log{logger: log.WithComponent("backend.log")}
}

func (l *Log) Dispatch(_ context.Context, req bridge.Request) *bridge.Future {
	l.logger.Info("dispatch",
		"request_id", req.ID,
		"event", req.Event,
		"payload", req.Payload,
		"wait", req.Wait,
	)
	return bridge.Resolved(int(bridge.CodeDispatched))
}

func (l *Log) Connected() bool { return true }

func (l *Log) Kind() string { return config.BackendLog }

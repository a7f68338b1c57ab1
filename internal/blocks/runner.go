package blocks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/blockbridge/internal/bridge"
	"github.com/mattjoyce/blockbridge/internal/log"
)

// Dispatcher is the part of the bridge the runner drives.
type Dispatcher interface {
	ClickAndForget(ctx context.Context, opcode string) bridge.Code
	ClickAndAwait(ctx context.Context, opcode string) any
	DispatchAndForget(ctx context.Context, event string, payload bridge.Payload) bridge.Code
	DispatchAndAwait(ctx context.Context, event string, payload bridge.Payload) any
}

// Runner executes catalogue blocks against a bridge.
type Runner struct {
	catalog *Catalog
	bridge  Dispatcher
	logger  *slog.Logger
}

func NewRunner(c *Catalog, d Dispatcher) *Runner {
	return &Runner{
		catalog: c,
		bridge:  d,
		logger:  log.WithComponent("blocks"),
	}
}

func (r *Runner) Catalog() *Catalog {
	return r.catalog
}

// Run dispatches a command block and then holds the caller for the block's
// pace. Argument errors are returned before anything is dispatched.
func (r *Runner) Run(ctx context.Context, opcode string, args map[string]any, wait bool) (any, error) {
	b, err := r.catalog.Lookup(opcode)
	if err != nil {
		return nil, err
	}
	payload, err := b.Normalize(args)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", opcode, err)
	}

	var result any
	if wait {
		result = r.bridge.DispatchAndAwait(ctx, b.Event, payload)
	} else {
		result = r.bridge.DispatchAndForget(ctx, b.Event, payload)
	}
	r.logger.Debug("block dispatched", "opcode", opcode, "event", b.Event, "wait", wait, "result", result)

	if b.Pace > 0 {
		if _, err := bridge.Wait(b.Pace).Await(ctx); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Start fires a start event through the click path.
func (r *Runner) Start(ctx context.Context, opcode string, wait bool) any {
	if wait {
		return r.bridge.ClickAndAwait(ctx, opcode)
	}
	return r.bridge.ClickAndForget(ctx, opcode)
}

var _ Dispatcher = (*bridge.Bridge)(nil)

package bridge

//go:generate mockgen -destination=mocks/mock_handler.go -package=mocks github.com/mattjoyce/blockbridge/internal/bridge Handler,Observer

import (
	"context"
	"time"
)

// Code is a sentinel result returned by the bridge instead of a handler value.
type Code int

const (
	CodeDispatched Code = 1
	CodeDeclined   Code = 0
	CodeSuppressed Code = -4
	CodeFault      Code = -110
)

// Start event opcodes recognised by the click entry points.
const (
	OpcodeFlagClicked   = "whenflagclicked"
	OpcodeSpriteClicked = "whenthisspriteclicked"

	// OpcodeOther replaces unrecognised opcodes on the waiting click path.
	OpcodeOther = "other"
)

// DefaultClickWindow is the cooldown applied to start-click events.
const DefaultClickWindow = 300 * time.Millisecond

// IsStartEvent reports whether opcode is one of the recognised start events.
func IsStartEvent(opcode string) bool {
	return opcode == OpcodeFlagClicked || opcode == OpcodeSpriteClicked
}

// Payload is the opaque argument map forwarded to the handler.
type Payload map[string]any

// Request is a single outbound dispatch. It is built per call and never stored by the bridge.
type Request struct {
	ID      string
	Event   string
	Payload Payload
	Wait    bool
}

// Handler receives every dispatch. The returned future is awaited only when
// req.Wait is true; a nil future counts as resolved with no value.
type Handler interface {
	Dispatch(ctx context.Context, req Request) *Future
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) *Future

func (f HandlerFunc) Dispatch(ctx context.Context, req Request) *Future {
	return f(ctx, req)
}

// Entry identifies which entry point produced an outcome.
type Entry string

const (
	EntryClick Entry = "click"
	EntryBlock Entry = "block"
)

// Status summarises what happened to a request.
type Status string

const (
	StatusSent       Status = "sent"
	StatusDropped    Status = "dropped"
	StatusDeclined   Status = "declined"
	StatusSuppressed Status = "suppressed"
	StatusFault      Status = "fault"
)

// Outcome is reported to observers after every entry point call.
type Outcome struct {
	RequestID string
	Entry     Entry
	Event     string
	Payload   Payload
	Wait      bool
	Status    Status
	// Result is the value returned to the caller: a Code or the handler's value.
	Result    any
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Observer is notified synchronously on the calling goroutine and must not block.
type Observer interface {
	Observe(o Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(o Outcome)

func (f ObserverFunc) Observe(o Outcome) {
	f(o)
}

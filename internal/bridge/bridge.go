package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/blockbridge/internal/log"
)

// Bridge routes block invocations to the registered handler.
type Bridge struct {
	mu        sync.RWMutex
	handler   Handler
	observers []Observer

	gates       gateTable
	clickWindow time.Duration
	logger      *slog.Logger
	newID       func() string
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithClickWindow overrides the start-click cooldown. Non-positive values are ignored.
func WithClickWindow(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.clickWindow = d
		}
	}
}

// WithObserver registers an observer for every outcome.
func WithObserver(o Observer) Option {
	return func(b *Bridge) {
		if o != nil {
			b.observers = append(b.observers, o)
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a Bridge with no handler registered.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		clickWindow: DefaultClickWindow,
		logger:      log.WithComponent("bridge"),
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetCallback registers h, replacing any previous handler. A nil h clears the slot.
func (b *Bridge) SetCallback(h Handler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
	b.logger.Debug("handler registered", "set", h != nil)
}

// Registered reports whether a handler is currently set.
func (b *Bridge) Registered() bool {
	return b.current() != nil
}

// AddObserver registers o after construction.
func (b *Bridge) AddObserver(o Observer) {
	if o == nil {
		return
	}
	b.mu.Lock()
	b.observers = append(b.observers, o)
	b.mu.Unlock()
}

// ClickWindow returns the start-click cooldown in use.
func (b *Bridge) ClickWindow() time.Duration {
	return b.clickWindow
}

// Debounce checks and engages the gate for category c. It returns true when the
// gate was already engaged, in which case the caller should drop its event.
func (b *Bridge) Debounce(c Category, window time.Duration) bool {
	return b.gates.engage(c, window)
}

// Engaged reports whether the gate for c is currently in its cooldown window.
func (b *Bridge) Engaged(c Category) bool {
	return b.gates.isEngaged(c)
}

// ClickAndForget dispatches a start event without waiting.
// Only recognised start opcodes reach the handler; everything else is dropped.
func (b *Bridge) ClickAndForget(ctx context.Context, opcode string) Code {
	start := time.Now()
	req := Request{ID: b.newID(), Event: opcode}

	if b.Debounce(CategoryStartClick, b.clickWindow) {
		b.notify(EntryClick, req, StatusSuppressed, CodeSuppressed, nil, start)
		return CodeSuppressed
	}

	h := b.current()
	if h == nil {
		b.notify(EntryClick, req, StatusDeclined, CodeDispatched, nil, start)
		return CodeDispatched
	}

	if !IsStartEvent(opcode) {
		b.logger.Debug("dropping non-start opcode", "request_id", req.ID, "opcode", opcode)
		b.notify(EntryClick, req, StatusDropped, CodeDispatched, nil, start)
		return CodeDispatched
	}

	if _, err := b.invoke(context.WithoutCancel(ctx), h, req); err != nil {
		b.fault(EntryClick, req, err, start)
		return CodeFault
	}
	b.notify(EntryClick, req, StatusSent, CodeDispatched, nil, start)
	return CodeDispatched
}

// ClickAndAwait dispatches a start event and waits for the handler's result.
// Unrecognised opcodes are sent as OpcodeOther.
func (b *Bridge) ClickAndAwait(ctx context.Context, opcode string) any {
	start := time.Now()
	req := Request{ID: b.newID(), Event: opcode, Wait: true}

	if b.Debounce(CategoryStartClick, b.clickWindow) {
		b.notify(EntryClick, req, StatusSuppressed, CodeSuppressed, nil, start)
		return CodeSuppressed
	}

	h := b.current()
	if h == nil {
		b.notify(EntryClick, req, StatusDeclined, CodeDispatched, nil, start)
		return CodeDispatched
	}

	if !IsStartEvent(opcode) {
		req.Event = OpcodeOther
	}

	v, err := b.await(ctx, h, req)
	if err != nil {
		b.fault(EntryClick, req, err, start)
		return CodeFault
	}
	b.notify(EntryClick, req, StatusSent, v, nil, start)
	return v
}

// DispatchAndForget sends event to the handler and returns without waiting.
func (b *Bridge) DispatchAndForget(ctx context.Context, event string, payload Payload) Code {
	start := time.Now()
	req := Request{ID: b.newID(), Event: event, Payload: payload}

	h := b.current()
	if h == nil {
		b.notify(EntryBlock, req, StatusDeclined, CodeDeclined, nil, start)
		return CodeDeclined
	}

	if _, err := b.invoke(context.WithoutCancel(ctx), h, req); err != nil {
		b.fault(EntryBlock, req, err, start)
		return CodeFault
	}
	b.notify(EntryBlock, req, StatusSent, CodeDispatched, nil, start)
	return CodeDispatched
}

// DispatchAndAwait sends event to the handler and returns its resolved value.
func (b *Bridge) DispatchAndAwait(ctx context.Context, event string, payload Payload) any {
	start := time.Now()
	req := Request{ID: b.newID(), Event: event, Payload: payload, Wait: true}

	h := b.current()
	if h == nil {
		b.notify(EntryBlock, req, StatusDeclined, CodeDeclined, nil, start)
		return CodeDeclined
	}

	v, err := b.await(ctx, h, req)
	if err != nil {
		b.fault(EntryBlock, req, err, start)
		return CodeFault
	}
	b.notify(EntryBlock, req, StatusSent, v, nil, start)
	return v
}

func (b *Bridge) current() Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handler
}

// invoke calls the handler and converts a panic into an error.
func (b *Bridge) invoke(ctx context.Context, h Handler, req Request) (f *Future, err error) {
	defer func() {
		if r := recover(); r != nil {
			f, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	f = h.Dispatch(ctx, req)
	if f == nil {
		f = Resolved(nil)
	}
	return f, nil
}

func (b *Bridge) await(ctx context.Context, h Handler, req Request) (any, error) {
	f, err := b.invoke(ctx, h, req)
	if err != nil {
		return nil, err
	}
	return f.Await(ctx)
}

func (b *Bridge) fault(entry Entry, req Request, err error, start time.Time) {
	b.logger.Error("handler fault",
		"request_id", req.ID,
		"entry", string(entry),
		"event", req.Event,
		"wait", req.Wait,
		"error", err,
	)
	b.notify(entry, req, StatusFault, CodeFault, err, start)
}

func (b *Bridge) notify(entry Entry, req Request, status Status, result any, err error, start time.Time) {
	b.mu.RLock()
	observers := b.observers
	b.mu.RUnlock()
	if len(observers) == 0 {
		return
	}

	o := Outcome{
		RequestID: req.ID,
		Entry:     entry,
		Event:     req.Event,
		Payload:   req.Payload,
		Wait:      req.Wait,
		Status:    status,
		Result:    result,
		Err:       err,
		StartedAt: start,
		Duration:  time.Since(start),
	}
	for _, obs := range observers {
		obs.Observe(o)
	}
}

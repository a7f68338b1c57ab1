package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mattjoyce/blockbridge/internal/bridge"
	"github.com/mattjoyce/blockbridge/internal/config"
	"github.com/mattjoyce/blockbridge/internal/log"
	"github.com/mattjoyce/blockbridge/internal/protocol"
)

const (
	readIdleTimeout = 90 * time.Second
	pingInterval    = 30 * time.Second
)

// Option configures a WebSocket handler.
type Option func(*WebSocket)

// WithStateHook is called with true after each successful dial and with false
// (and the cause) when the connection drops.
func WithStateHook(fn func(connected bool, err error)) Option {
	return func(w *WebSocket) {
		w.onState = fn
	}
}

// pendingCall is a waiting dispatch. stop detaches it from the caller's context.
type pendingCall struct {
	f    *bridge.Future
	stop func() bool
}

// WebSocket sends frames to a device endpoint and matches replies to waiting dispatches.
type WebSocket struct {
	cfg     config.BackendConfig
	logger  *slog.Logger
	onState func(bool, error)

	idleTimeout  time.Duration
	pingInterval time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]*pendingCall

	writeMu sync.Mutex

	startOnce sync.Once
	done      chan struct{}
}

func NewWebSocket(cfg config.BackendConfig, opts ...Option) *WebSocket {
	w := &WebSocket{
		cfg:          cfg,
		logger:       log.WithComponent("backend.websocket"),
		idleTimeout:  readIdleTimeout,
		pingInterval: pingInterval,
		pending:      make(map[string]*pendingCall),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WebSocket) Kind() string { return config.BackendWebSocket }

// Connected reports whether a device connection is currently open.
func (w *WebSocket) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil
}

// Pending reports the number of waiting dispatches without a reply.
func (w *WebSocket) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Start runs the connect/read loop until ctx is cancelled. It returns immediately.
func (w *WebSocket) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		go w.run(ctx)
	})
}

// Done is closed once the loop started by Start has exited.
func (w *WebSocket) Done() <-chan struct{} {
	return w.done
}

func (w *WebSocket) run(ctx context.Context) {
	defer close(w.done)

	for {
		err := w.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("device connection ended", "url", w.cfg.URL, "error", err, "retry_in", w.cfg.ReconnectBackoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.ReconnectBackoff):
		}
	}
}

func (w *WebSocket) connectAndRead(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, w.cfg.DialTimeout)
	defer cancel()

	header := http.Header{}
	for k, v := range w.cfg.Headers {
		header.Set(k, v)
	}

	d := websocket.Dialer{HandshakeTimeout: w.cfg.DialTimeout}
	conn, resp, err := d.DialContext(dialCtx, w.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.cfg.URL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	w.logger.Info("device connected", "url", w.cfg.URL)
	w.notifyState(true, nil)

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetReadDeadline(time.Now().Add(w.idleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.idleTimeout))
	})
	pingDone := make(chan struct{})
	go w.keepAlive(conn, pingDone)

	err = w.readLoop(conn)
	close(pingDone)
	w.drop(conn, err)
	return err
}

// keepAlive pings the device until done is closed or a ping cannot be written.
func (w *WebSocket) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.cfg.WriteTimeout)); err != nil {
				w.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

func (w *WebSocket) readLoop(conn *websocket.Conn) error {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(w.idleTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		reply, err := protocol.ParseReply(msg)
		if err != nil {
			w.logger.Warn("discarding malformed reply", "error", err)
			continue
		}
		w.settle(reply)
	}
}

func (w *WebSocket) settle(reply *protocol.Reply) {
	w.mu.Lock()
	call, ok := w.pending[reply.ID]
	delete(w.pending, reply.ID)
	w.mu.Unlock()

	if !ok {
		w.logger.Debug("reply for unknown request", "request_id", reply.ID)
		return
	}
	call.stop()
	f := call.f

	if reply.Status == "error" {
		f.Reject(errors.New(reply.Error))
		return
	}
	v, err := reply.Value()
	if err != nil {
		f.Reject(fmt.Errorf("decode result: %w", err))
		return
	}
	f.Resolve(v)
}

// drop forgets conn and rejects every waiting dispatch.
func (w *WebSocket) drop(conn *websocket.Conn, cause error) {
	_ = conn.Close()

	w.mu.Lock()
	if w.conn == conn {
		w.conn = nil
	}
	pending := w.pending
	w.pending = make(map[string]*pendingCall)
	w.mu.Unlock()

	for _, call := range pending {
		call.stop()
		call.f.Reject(ErrConnectionLost)
	}
	if len(pending) > 0 {
		w.logger.Warn("rejected waiting dispatches", "count", len(pending), "error", ErrConnectionLost)
	}
	w.notifyState(false, cause)
}

func (w *WebSocket) notifyState(connected bool, err error) {
	if w.onState != nil {
		w.onState(connected, err)
	}
}

// abandon removes call once its caller's context is done and rejects it with cause.
func (w *WebSocket) abandon(id string, call *pendingCall, cause error) {
	w.mu.Lock()
	if w.pending[id] == call {
		delete(w.pending, id)
	}
	w.mu.Unlock()
	if call.f.Reject(cause) {
		w.logger.Debug("waiting dispatch abandoned", "request_id", id, "error", cause)
	}
}

// Dispatch implements bridge.Handler. Fire-and-forget requests resolve once the
// frame is written; waiting requests resolve when the device replies, or are
// rejected and forgotten when ctx is done first.
func (w *WebSocket) Dispatch(ctx context.Context, req bridge.Request) *bridge.Future {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	data, err := protocol.MarshalFrame(&protocol.Frame{
		Protocol: protocol.Version,
		ID:       id,
		Event:    req.Event,
		Payload:  req.Payload,
		Wait:     req.Wait,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return bridge.Rejected(err)
	}

	w.mu.Lock()
	conn := w.conn
	var call *pendingCall
	if conn != nil && req.Wait {
		call = &pendingCall{f: bridge.NewFuture()}
		call.stop = context.AfterFunc(ctx, func() { w.abandon(id, call, ctx.Err()) })
		w.pending[id] = call
	}
	w.mu.Unlock()

	if conn == nil {
		return bridge.Rejected(ErrNotConnected)
	}

	if err := w.write(conn, data); err != nil {
		if call != nil {
			call.stop()
			w.mu.Lock()
			delete(w.pending, id)
			w.mu.Unlock()
		}
		return bridge.Rejected(fmt.Errorf("write frame: %w", err))
	}

	if call == nil {
		return bridge.Resolved(nil)
	}
	return call.f
}

func (w *WebSocket) write(conn *websocket.Conn, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

var _ Handler = (*WebSocket)(nil)
var _ Handler = (*Log)(nil)

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/blockbridge/internal/audit"
	"github.com/mattjoyce/blockbridge/internal/auth"
	"github.com/mattjoyce/blockbridge/internal/blocks"
	"github.com/mattjoyce/blockbridge/internal/bridge"
	"github.com/mattjoyce/blockbridge/internal/events"
)

const testAPIKey = "test-key-123"

type fakeBackend struct{ connected bool }

func (f fakeBackend) Connected() bool { return f.connected }
func (f fakeBackend) Kind() string    { return "fake" }

type fakeAudit struct {
	entries []audit.Entry
	err     error
	limit   int
}

func (f *fakeAudit) Recent(_ context.Context, limit int) ([]audit.Entry, error) {
	f.limit = limit
	return f.entries, f.err
}

// recordingHandler resolves waiting requests with "ack:<event>".
type recordingHandler struct {
	mu   sync.Mutex
	reqs []bridge.Request
}

func (h *recordingHandler) Dispatch(_ context.Context, req bridge.Request) *bridge.Future {
	h.mu.Lock()
	h.reqs = append(h.reqs, req)
	h.mu.Unlock()
	return bridge.Resolved("ack:" + req.Event)
}

func (h *recordingHandler) requests() []bridge.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bridge.Request(nil), h.reqs...)
}

type testEnv struct {
	server  *Server
	handler *recordingHandler
	bridge  *bridge.Bridge
	hub     *events.Hub
	audit   *fakeAudit
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	catalog, err := blocks.Default()
	require.NoError(t, err)

	hub := events.NewHub(16)
	b := bridge.New(bridge.WithClickWindow(time.Hour), bridge.WithObserver(hub))
	h := &recordingHandler{}
	b.SetCallback(h)

	fa := &fakeAudit{}
	s := New(Config{
		Listen:  "localhost:0",
		APIKey:  testAPIKey,
		MaxWait: time.Second,
		Tokens: []auth.TokenConfig{
			{Token: "viewer", Scopes: []string{auth.ScopeBlocksRO}},
			{Token: "clicker", Scopes: []string{auth.ScopeClickRW}},
		},
	}, Deps{
		Runner:  blocks.NewRunner(catalog, b),
		Bridge:  b,
		Backend: fakeBackend{connected: true},
		Audit:   fa,
		Events:  hub,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return &testEnv{server: s, handler: h, bridge: b, hub: hub, audit: fa}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func TestHealthzNoAuth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[HealthzResponse](t, rr)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "fake", resp.Backend)
	assert.True(t, resp.BackendConnected)
	assert.True(t, resp.HandlerSet)
	assert.GreaterOrEqual(t, resp.UptimeSeconds, int64(0))

	env.bridge.SetCallback(nil)
	resp = decode[HealthzResponse](t, env.do(t, http.MethodGet, "/healthz", "", nil))
	assert.Equal(t, "degraded", resp.Status)
	assert.False(t, resp.HandlerSet)
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"missing token", http.MethodGet, "/v1/blocks", "", http.StatusUnauthorized},
		{"wrong token", http.MethodGet, "/v1/blocks", "nope", http.StatusUnauthorized},
		{"viewer reads blocks", http.MethodGet, "/v1/blocks", "viewer", http.StatusOK},
		{"viewer cannot run blocks", http.MethodPost, "/v1/blocks/playNoteForBeats", "viewer", http.StatusForbidden},
		{"viewer cannot click", http.MethodPost, "/v1/click", "viewer", http.StatusForbidden},
		{"clicker cannot read audit", http.MethodGet, "/v1/dispatches", "clicker", http.StatusForbidden},
		{"admin reads audit", http.MethodGet, "/v1/dispatches", testAPIKey, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
	assert.Empty(t, env.handler.requests())
}

func TestClick(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/click", "clicker", ClickRequest{Opcode: bridge.OpcodeFlagClicked, Wait: true})
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[ResultResponse](t, rr)
	assert.Equal(t, "ack:whenflagclicked", resp.Result)
	assert.NotEmpty(t, resp.RequestID)

	rr = env.do(t, http.MethodPost, "/v1/click", "clicker", ClickRequest{Opcode: bridge.OpcodeFlagClicked})
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.EqualValues(t, -4, decode[ResultResponse](t, rr).Result)

	require.Len(t, env.handler.requests(), 1)
}

func TestClickValidation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/click", "clicker", ClickRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/v1/click", "clicker", map[string]any{"opcode": "whenflagclicked", "extra": 1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRunBlock(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/blocks/playNoteForBeats", testAPIKey, RunBlockRequest{Args: map[string]any{"SOUND": 85}, Wait: true})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "ack:gs_sound_play", decode[ResultResponse](t, rr).Result)

	reqs := env.handler.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, float64(85), reqs[0].Payload["SOUND"])
	assert.Equal(t, float64(500), reqs[0].Payload["SECOND"])

	rr = env.do(t, http.MethodPost, "/v1/blocks/playNoteForBeats", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, decode[ResultResponse](t, rr).Result)
}

func TestRunBlockErrors(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/blocks/fly", testAPIKey, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPost, "/v1/blocks/motion_move_2", testAPIKey, RunBlockRequest{Args: map[string]any{"DIRECTION": 42}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode[ErrorResponse](t, rr).Error, "invalid block arguments")

	assert.Empty(t, env.handler.requests())
}

func TestDispatchRaw(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/v1/dispatch/gs_custom", testAPIKey, DispatchRequest{Payload: map[string]any{"k": "v"}, Wait: true})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ack:gs_custom", decode[ResultResponse](t, rr).Result)

	env.bridge.SetCallback(nil)
	rr = env.do(t, http.MethodPost, "/v1/dispatch/gs_custom", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 0, decode[ResultResponse](t, rr).Result)
}

func TestListBlocksAndOpenAPI(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/v1/blocks", "viewer", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[BlocksResponse](t, rr)
	assert.Equal(t, "gs1", resp.ID)
	require.Len(t, resp.Blocks, 7)
	assert.Equal(t, "motion_move", resp.Blocks[0].Opcode)
	assert.Equal(t, int64(100), resp.Blocks[0].PaceMS)
	assert.Len(t, resp.Menus, 8)

	rr = env.do(t, http.MethodGet, "/v1/openapi.json", "viewer", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	doc := decode[map[string]any](t, rr)
	assert.Equal(t, "3.1.0", doc["openapi"])
	paths := doc["paths"].(map[string]any)
	assert.Contains(t, paths, "/v1/blocks/light_change")
}

func TestDispatches(t *testing.T) {
	env := newTestEnv(t)
	env.audit.entries = []audit.Entry{{ID: "a", Event: "gs_sound_play", Status: "sent"}}

	rr := env.do(t, http.MethodGet, "/v1/dispatches?limit=5", testAPIKey, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 5, env.audit.limit)
	assert.Len(t, decode[DispatchesResponse](t, rr).Dispatches, 1)

	rr = env.do(t, http.MethodGet, "/v1/dispatches?limit=-1", testAPIKey, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	env.audit.err = errors.New("disk gone")
	rr = env.do(t, http.MethodGet, "/v1/dispatches", testAPIKey, nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	env.server.deps.Audit = nil
	rr = env.do(t, http.MethodGet, "/v1/dispatches", testAPIKey, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	// Buffered before the client connects.
	env.bridge.DispatchAndForget(context.Background(), "gs_motion_move", nil)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var typ, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				if typ != "" {
					return typ, data
				}
			case strings.HasPrefix(line, "event: "):
				typ = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	typ, data := readEvent()
	assert.Equal(t, events.TypeDispatchSent, typ)
	assert.Contains(t, data, `"event":"gs_motion_move"`)

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	env.bridge.ClickAndForget(context.Background(), "whenthisspriteclicked")
	typ, _ = readEvent()
	assert.Equal(t, events.TypeDispatchSent, typ)
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("x"))
	assert.Equal(t, int64(0), parseLastEventID("-3"))
	assert.Equal(t, int64(12), parseLastEventID("12"))
}

package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/blockbridge/internal/events"
)

// --- Message types ---

type eventMsg events.Event

type healthMsg struct {
	Status           string `json:"status"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Backend          string `json:"backend"`
	BackendConnected bool   `json:"backend_connected"`
	HandlerSet       bool   `json:"handler_set"`
}

type errMsg error

type sseDisconnectedMsg struct{ err error }
type reconnectMsg struct{}

// --- Commands ---

// subscribeToEvents streams /events into ch until the connection drops.
func subscribeToEvents(ctx context.Context, apiURL, apiKey string, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/events", nil)
		if err != nil {
			return errMsg(err)
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return sseDisconnectedMsg{err: fmt.Errorf("events: %s", resp.Status)}
		}

		err = readSSE(resp.Body, func(ev events.Event) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
		return sseDisconnectedMsg{err: err}
	}
}

// readSSE parses a server-sent event stream, calling emit per complete event.
func readSSE(r io.Reader, emit func(events.Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var cur events.Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(cur.Data) > 0 {
				if cur.At.IsZero() {
					cur.At = time.Now()
				}
				emit(cur)
			}
			cur = events.Event{}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			cur.Data = json.RawMessage(line[6:])
		}
	}
	return scanner.Err()
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ctx context.Context, ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-ch:
			return eventMsg(ev)
		case <-ctx.Done():
			return nil
		}
	}
}

// fetchHealth queries the /healthz endpoint.
func fetchHealth(apiURL string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(apiURL + "/healthz")
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return h
}

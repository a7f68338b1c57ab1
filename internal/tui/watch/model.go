package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/blockbridge/internal/events"
)

const maxRows = 200

// Row is one dispatch shown in the table.
type Row struct {
	At       time.Time
	Status   string
	Entry    string
	Event    string
	Result   string
	Duration time.Duration
	ID       string
}

// Model is the BubbleTea model for the monitor.
type Model struct {
	ctx    context.Context
	apiURL string
	apiKey string

	width  int
	height int

	health   healthMsg
	rows     []Row
	counts   map[string]int
	lastErr  string
	lastSeen time.Time

	table     table.Model
	theme     Theme
	hubEvents chan events.Event
}

// New creates a monitor for the API at apiURL. ctx bounds the background subscriptions.
func New(ctx context.Context, apiURL, apiKey string) Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 8},
			{Title: "Status", Width: 10},
			{Title: "Entry", Width: 5},
			{Title: "Event", Width: 28},
			{Title: "Result", Width: 16},
			{Title: "ms", Width: 6},
			{Title: "ID", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return Model{
		ctx:       ctx,
		apiURL:    strings.TrimRight(apiURL, "/"),
		apiKey:    apiKey,
		counts:    make(map[string]int),
		table:     t,
		theme:     NewDefaultTheme(),
		hubEvents: make(chan events.Event, 100),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.ctx, m.apiURL, m.apiKey, m.hubEvents),
		receiveNextEvent(m.ctx, m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL) },
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "c":
			m.rows = nil
			m.counts = make(map[string]int)
			m.table.SetRows(nil)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(m.width-6, 20))
		m.table.SetHeight(max(m.height-12, 5))
		return m, nil

	case eventMsg:
		m.apply(events.Event(msg))
		return m, receiveNextEvent(m.ctx, m.hubEvents)

	case healthMsg:
		m.health = msg
		m.lastErr = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL)
		})

	case sseDisconnectedMsg:
		m.lastErr = "event stream disconnected, reconnecting..."
		if msg.err != nil {
			m.lastErr = fmt.Sprintf("event stream: %v, reconnecting...", msg.err)
		}
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribeToEvents(m.ctx, m.apiURL, m.apiKey, m.hubEvents)

	case errMsg:
		m.lastErr = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL)
		})
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// apply folds a hub event into the table. Non-dispatch events are ignored.
func (m *Model) apply(e events.Event) {
	status, ok := strings.CutPrefix(e.Type, "dispatch.")
	if !ok {
		return
	}
	var d events.Dispatch
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return
	}

	result := "-"
	if d.Result != nil {
		b, _ := json.Marshal(d.Result)
		result = string(b)
	}
	if d.Error != "" {
		result = d.Error
	}

	m.lastSeen = e.At
	m.counts[status]++
	m.rows = append([]Row{{
		At:       e.At,
		Status:   status,
		Entry:    d.Entry,
		Event:    d.Event,
		Result:   result,
		Duration: time.Duration(d.DurationMS) * time.Millisecond,
		ID:       d.RequestID,
	}}, m.rows...)
	if len(m.rows) > maxRows {
		m.rows = m.rows[:maxRows]
	}
	m.table.SetRows(m.tableRows())
}

func (m Model) tableRows() []table.Row {
	out := make([]table.Row, 0, len(m.rows))
	for _, r := range m.rows {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		out = append(out, table.Row{
			r.At.Local().Format("15:04:05"),
			m.theme.ForStatus(r.Status).Render(r.Status),
			r.Entry,
			r.Event,
			r.Result,
			fmt.Sprint(r.Duration.Milliseconds()),
			id,
		})
	}
	return out
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to blockbridge..."
	}
	inner := m.width - 4

	parts := []string{
		m.theme.Border.Width(inner).Render(m.renderHeader(inner)),
		m.theme.Border.Width(inner).Render(lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("Dispatches"),
			m.table.View(),
		)),
	}
	if m.lastErr != "" {
		parts = append(parts, m.theme.Fault.Render(" ! "+m.lastErr))
	}
	parts = append(parts, m.theme.Help.Render(" [q] Quit • [c] Clear • [↑/↓] Scroll"))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderHeader(width int) string {
	status := m.theme.Sent.Render("OK")
	if m.health.Status != "" && m.health.Status != "ok" {
		status = m.theme.Fault.Render(strings.ToUpper(m.health.Status))
	}
	device := m.theme.Fault.Render("offline")
	if m.health.BackendConnected {
		device = m.theme.Sent.Render("online")
	}

	counts := make([]string, 0, 5)
	for _, s := range []string{"sent", "suppressed", "declined", "dropped", "fault"} {
		counts = append(counts, m.theme.ForStatus(s).Render(fmt.Sprintf("%s %d", s, m.counts[s])))
	}

	col := lipgloss.NewStyle().Width(width / 4)
	top := lipgloss.JoinHorizontal(lipgloss.Top,
		col.Render("Status: "+status),
		col.Render("Uptime: "+(time.Duration(m.health.UptimeSeconds)*time.Second).String()),
		col.Render(fmt.Sprintf("Backend: %s %s", m.health.Backend, device)),
		col.Render(fmt.Sprintf("Handler: %t", m.health.HandlerSet)),
	)
	return lipgloss.JoinVertical(lipgloss.Left, top, strings.Join(counts, "  "))
}

// Package feed provides the scrollable activity feed: session events
// attributed to the session they belong to, plus client notes.
package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/agent-racer/hexboard/internal/client"
	"github.com/agent-racer/hexboard/internal/match"
	"github.com/agent-racer/hexboard/internal/theme"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// DefaultMaxEntries caps the feed when no size is configured.
const DefaultMaxEntries = 200

// Unattributed is shown in place of a session name when no session claims
// an event.
const Unattributed = "unknown"

// Entry is a single feed line.
type Entry struct {
	Time      time.Time
	Kind      string // "tool", "done", "fail", "user", "sess", "note", "err"
	EventID   string
	SessionID string
	Session   string
	Message   string
}

// Model holds feed state.
type Model struct {
	Entries []Entry
	Offset  int // scroll offset (from bottom)

	max  int
	seen map[string]struct{}
}

// New creates an empty feed holding at most max entries.
func New(max int) Model {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return Model{max: max, seen: make(map[string]struct{})}
}

// Max returns the entry cap.
func (m *Model) Max() int { return m.max }

// AddEvent attributes ev among sessions and appends it. Events already in
// the feed (same id) are ignored, so a replayed history does not duplicate
// lines. It reports whether a line was added.
func (m *Model) AddEvent(ev client.SessionEvent, sessions []client.SessionSnapshot) bool {
	if ev.ID != "" {
		if _, dup := m.seen[ev.ID]; dup {
			return false
		}
	}

	e := Entry{
		Time:    eventTime(ev),
		EventID: ev.ID,
		Session: Unattributed,
	}
	if s, ok := match.Attribute(ev, sessions); ok {
		e.SessionID = s.ID
		e.Session = s.DisplayName()
	}
	e.Kind, e.Message = describe(ev)
	m.push(e)
	return true
}

// AddHistory appends a batch of past events in order.
func (m *Model) AddHistory(events []client.SessionEvent, sessions []client.SessionSnapshot) int {
	n := 0
	for _, ev := range events {
		if m.AddEvent(ev, sessions) {
			n++
		}
	}
	return n
}

// Note appends a client-side line such as a connection change or an
// action failure.
func (m *Model) Note(kind, message string) {
	m.push(Entry{Time: time.Now(), Kind: kind, Message: message})
}

func (m *Model) push(e Entry) {
	if m.seen == nil {
		m.seen = make(map[string]struct{})
	}
	if m.max <= 0 {
		m.max = DefaultMaxEntries
	}
	m.Entries = append(m.Entries, e)
	if e.EventID != "" {
		m.seen[e.EventID] = struct{}{}
	}
	if over := len(m.Entries) - m.max; over > 0 {
		for _, old := range m.Entries[:over] {
			if old.EventID != "" {
				delete(m.seen, old.EventID)
			}
		}
		m.Entries = append([]Entry(nil), m.Entries[over:]...)
	}
	// Reset scroll to bottom on new entry.
	m.Offset = 0
}

// ScrollUp moves the viewport up.
func (m *Model) ScrollUp(n int) {
	m.Offset += n
	max := len(m.Entries) - 1
	if max < 0 {
		max = 0
	}
	if m.Offset > max {
		m.Offset = max
	}
}

// ScrollDown moves the viewport down.
func (m *Model) ScrollDown(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

func eventTime(ev client.SessionEvent) time.Time {
	if ev.Timestamp > 0 {
		return time.UnixMilli(ev.Timestamp)
	}
	return time.Now()
}

func describe(ev client.SessionEvent) (kind, msg string) {
	switch ev.Kind {
	case client.EventPreToolUse:
		msg = ev.Tool
		if s := ev.ToolInput.Summary(ev.Tool); s != "" {
			msg += " " + s
		}
		return "tool", msg
	case client.EventPostToolUse:
		kind = "done"
		if ev.Success != nil && !*ev.Success {
			kind = "fail"
		}
		msg = ev.Tool
		if ev.Duration > 0 {
			msg += fmt.Sprintf(" (%s)", (time.Duration(ev.Duration) * time.Millisecond).String())
		}
		return kind, msg
	case client.EventUserPromptSubmit:
		return "user", strings.Join(strings.Fields(ev.Prompt), " ")
	case client.EventSessionStart, client.EventSessionEnd, client.EventStop, client.EventSubagentStop:
		return "sess", strings.ReplaceAll(string(ev.Kind), "_", " ")
	default:
		return "note", string(ev.Kind)
	}
}

// panelStyle returns the shared border style for the feed panel.
func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders the feed as a panel.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	visibleLines := height - 4
	if visibleLines < 3 {
		visibleLines = 3
	}

	title := theme.StyleHeader.Render("ACTIVITY")

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("No activity yet.")
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
	}

	// Build visible lines from bottom (minus offset).
	end := len(m.Entries) - m.Offset
	start := end - visibleLines
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}

	var lines []string
	for i := start; i < end; i++ {
		e := m.Entries[i]
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05"))
		kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(4).Render(e.Kind)
		line := fmt.Sprintf("%s %s ", ts, kind)
		if e.Session != "" {
			line += theme.StyleSelected.Render(ansi.Truncate(e.Session, 12, "…")) + " "
		}
		line += e.Message
		lines = append(lines, ansi.Truncate(line, innerW, "…"))
	}

	body := strings.Join(lines, "\n")
	parts := []string{title, body}
	if m.Offset > 0 {
		parts = append(parts, theme.StyleDimmed.Render(fmt.Sprintf("↓ %d more", m.Offset)))
	}
	return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func kindColor(kind string) lipgloss.Color {
	switch kind {
	case "tool":
		return theme.ColorWorking
	case "done":
		return theme.ColorHealthy
	case "fail", "err":
		return theme.ColorDanger
	case "user":
		return theme.ColorWaiting
	case "sess":
		return theme.ColorToolTask
	default:
		return theme.ColorDimmed
	}
}

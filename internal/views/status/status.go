package status

import (
	"fmt"
	"strings"

	"github.com/agent-racer/hexboard/internal/client"
	"github.com/agent-racer/hexboard/internal/theme"
	"github.com/charmbracelet/lipgloss"
)

// Model holds the status bar state.
type Model struct {
	Connection client.State
	Counts     map[client.Status]int
	Tokens     int64
	Host       string // user@host from the backend, when known
	Version    string
	Message    string // transient action feedback
	IsError    bool
	Width      int
}

// New creates a status bar model.
func New() Model {
	return Model{Counts: make(map[client.Status]int)}
}

// SetSessions recounts sessions by status.
func (m *Model) SetSessions(sessions []client.SessionSnapshot) {
	m.Counts = make(map[client.Status]int, 4)
	for _, s := range sessions {
		m.Counts[s.Status]++
	}
}

// Flash shows a short message until the next Flash or Clear.
func (m *Model) Flash(msg string, isErr bool) {
	m.Message, m.IsError = msg, isErr
}

// Clear removes the flash message.
func (m *Model) Clear() { m.Message, m.IsError = "", false }

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch m.Connection {
	case client.StateConnected:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	case client.StateConnecting:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("◌ Connecting...")
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Disconnected")
	}

	var countParts []string
	for _, st := range []client.Status{client.StatusWorking, client.StatusWaiting, client.StatusIdle, client.StatusOffline} {
		style := lipgloss.NewStyle().Foreground(theme.StatusColor(string(st)))
		countParts = append(countParts, style.Render(fmt.Sprintf("%d %s", m.Counts[st], st)))
	}
	counts := strings.Join(countParts, "  ")

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + counts + sep + theme.StyleDimmed.Render(formatTokens(m.Tokens)+" tokens")
	if m.Host != "" {
		host := m.Host
		if m.Version != "" {
			host += " v" + m.Version
		}
		content += sep + theme.StyleDimmed.Render(host)
	}
	if m.Message != "" {
		style := theme.StyleSelected
		if m.IsError {
			style = theme.StyleError
		}
		content += sep + style.Render(m.Message)
	}

	bar := lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)

	return bar
}

func formatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1000:
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

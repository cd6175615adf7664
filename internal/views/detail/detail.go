// Package detail renders the session info panel. The body is composed as
// markdown and rendered with glamour.
package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/agent-racer/hexboard/internal/client"
	"github.com/agent-racer/hexboard/internal/hex"
	"github.com/agent-racer/hexboard/internal/theme"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const panelWidth = 64

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleFooter = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed)

	styleError = lipgloss.NewStyle().
			Foreground(theme.ColorDanger)
)

// Model holds the state for the detail overlay.
type Model struct {
	Session     *client.SessionSnapshot
	Cell        hex.Axial
	ActionError string

	renderer *glamour.TermRenderer
	wrap     int
}

// New creates a detail model for the given session placed on cell.
func New(s *client.SessionSnapshot, cell hex.Axial) Model {
	return Model{Session: s, Cell: cell}
}

// Markdown returns the panel body before rendering.
func (m Model) Markdown() string {
	s := m.Session
	if s == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", s.DisplayName())
	row(&b, "Status", string(s.Status))
	row(&b, "ID", "`"+s.ID+"`")
	if s.ExternalID != "" {
		row(&b, "Agent session", "`"+s.ExternalID+"`")
	}
	if s.Cwd != "" {
		row(&b, "Directory", "`"+s.Cwd+"`")
	}
	row(&b, "Cell", m.Cell.String())
	if s.CurrentTool != "" {
		row(&b, "Tool", s.CurrentTool)
	}
	if s.TmuxSession != "" {
		row(&b, "Tmux", "`"+s.TmuxSession+"`")
	}
	if s.LastActive > 0 {
		row(&b, "Last active", formatAge(time.UnixMilli(s.LastActive)))
	}

	if g := s.Git; g != nil && g.IsRepo {
		b.WriteString("\n## Git\n\n")
		fmt.Fprintf(&b, "- branch `%s`", g.Branch)
		if g.Ahead > 0 || g.Behind > 0 {
			fmt.Fprintf(&b, " (↑%d ↓%d)", g.Ahead, g.Behind)
		}
		b.WriteString("\n")
		if g.Dirty() {
			fmt.Fprintf(&b, "- %d staged, %d unstaged, %d untracked\n", g.Staged, g.Unstaged, g.Untracked)
			fmt.Fprintf(&b, "- +%d / -%d lines\n", g.LinesAdded, g.LinesRemoved)
		} else {
			b.WriteString("- clean\n")
		}
	}
	return b.String()
}

func row(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "**%s:** %s  \n", label, value)
}

// View renders the detail panel. Returns an empty string if no session is set.
func (m *Model) View() string {
	if m.Session == nil {
		return ""
	}

	body := m.render(m.Markdown(), panelWidth-4)
	if m.ActionError != "" {
		body += "\n" + styleError.Render("Error: "+m.ActionError)
	}
	footer := "[r] restart  [c] cancel  [x] delete  [esc] close"
	body += "\n" + styleFooter.Render(footer)
	return stylePanel.Width(panelWidth).Render(body)
}

// render turns markdown into styled text, falling back to the raw source
// when glamour cannot be set up.
func (m *Model) render(md string, wrap int) string {
	if m.renderer == nil || m.wrap != wrap {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return md
		}
		m.renderer, m.wrap = r, wrap
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds ago", int(d.Minutes()), int(d.Seconds())%60)
	default:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm ago", h, m)
	}
}

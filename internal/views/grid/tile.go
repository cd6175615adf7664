package grid

import (
	"fmt"
	"strings"

	"github.com/agent-racer/hexboard/internal/client"
	"github.com/agent-racer/hexboard/internal/hex"
	"github.com/agent-racer/hexboard/internal/scene"
	"github.com/agent-racer/hexboard/internal/theme"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const (
	tileInner  = 12
	tileWidth  = tileInner + 2
	tileHeight = 5
)

var spinnerFrames = []string{"◐", "◓", "◑", "◒"}

var _ scene.ZoneView = (*Tile)(nil)

// Tile draws one zone as a bordered box on the board.
type Tile struct {
	board *Board

	id   string
	cell hex.Axial
	at   hex.Point

	status     client.Status
	label      string
	tool       string
	toolActive bool
	git        *client.GitStatus

	dimmed      bool
	highlighted bool
	disposed    bool

	// burst decays from 1 toward 0 after a tool start.
	burst      float64
	burstVel   float64
	burstTool  string
	burstModel harmonica.Spring
	frame      int
}

func (t *Tile) SetStatus(s client.Status) { t.status = s }
func (t *Tile) SetLabel(name string) { t.label = name }
func (t *Tile) SetGit(g *client.GitStatus) { t.git = g }
func (t *Tile) SetDimmed(on bool) { t.dimmed = on }
func (t *Tile) SetHighlighted(on bool) { t.highlighted = on }
func (t *Tile) SetTool(tool string, active bool) { t.tool, t.toolActive = tool, active }

// Dispose removes the tile from its board.
func (t *Tile) Dispose() {
	if t.disposed {
		return
	}
	t.disposed = true
	t.board.remove(t.id)
}

func (t *Tile) ID() string { return t.id }
func (t *Tile) Cell() hex.Axial { return t.cell }
func (t *Tile) Position() hex.Point { return t.at }
func (t *Tile) Disposed() bool { return t.disposed }
func (t *Tile) Bursting() bool { return t.burst > 0 }
func (t *Tile) Dimmed() bool { return t.dimmed }
func (t *Tile) Highlighted() bool { return t.highlighted }

// ignite starts a burst in the tool's family color.
func (t *Tile) ignite(tool string) {
	t.burst = 1
	t.burstVel = 0
	t.burstTool = tool
}

// tick advances the burst spring and the spinner. It reports whether the
// tile still needs frames.
func (t *Tile) tick() bool {
	if t.toolActive {
		t.frame = (t.frame + 1) % len(spinnerFrames)
	}
	if t.burst > 0 {
		t.burst, t.burstVel = t.burstModel.Update(t.burst, t.burstVel, 0)
		if t.burst < burstFloor {
			t.burst, t.burstVel, t.burstTool = 0, 0, ""
		}
	}
	return t.toolActive || t.burst > 0
}

func (t *Tile) borderColor() lipgloss.TerminalColor {
	switch {
	case t.burst > 0.35:
		return theme.FamilyColor(client.FamilyOf(t.burstTool).String())
	case t.highlighted:
		return theme.ColorBright
	default:
		return theme.StatusColor(string(t.status))
	}
}

func (t *Tile) render() string {
	statusStyle := lipgloss.NewStyle().Foreground(theme.StatusColor(string(t.status)))
	glyph := theme.StatusGlyph(string(t.status))
	if t.toolActive {
		glyph = spinnerFrames[t.frame]
	}
	name := ansi.Truncate(t.label, tileInner-3, "…")
	line1 := statusStyle.Render(glyph) + " " + name

	toolText := "-"
	if t.tool != "" {
		toolText = t.tool
	}
	toolStyle := theme.StyleDimmed
	if t.toolActive {
		toolStyle = lipgloss.NewStyle().Foreground(theme.FamilyColor(client.FamilyOf(t.tool).String()))
	}
	line2 := toolStyle.Render(ansi.Truncate(toolText, tileInner, "…"))

	line3 := t.gitLine()

	style := lipgloss.NewStyle().
		Width(tileInner).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(t.borderColor())
	if t.highlighted {
		style = style.BorderStyle(lipgloss.ThickBorder()).Bold(true)
	}
	if t.dimmed {
		style = style.Faint(true).BorderForeground(theme.ColorDimmed)
	}
	return style.Render(strings.Join([]string{line1, line2, line3}, "\n"))
}

func (t *Tile) gitLine() string {
	g := t.git
	if g == nil || !g.IsRepo {
		return ""
	}
	branch := ansi.Truncate(g.Branch, tileInner, "…")
	if !g.Dirty() {
		return theme.StyleDimmed.Render(branch)
	}
	delta := fmt.Sprintf(" +%d", g.LinesAdded)
	branch = ansi.Truncate(g.Branch, tileInner-ansi.StringWidth(delta)-1, "…")
	return theme.StyleDimmed.Render(branch) + lipgloss.NewStyle().Foreground(theme.ColorAdded).Render(delta) + "*"
}

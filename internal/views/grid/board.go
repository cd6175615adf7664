// Package grid renders the hex board: one bordered tile per zone, laid out
// on a pointy-top hex grid in terminal cells, with spring-driven bursts when
// a tool starts.
package grid

import (
	"sort"
	"strings"
	"time"

	"github.com/agent-racer/hexboard/internal/client"
	"github.com/agent-racer/hexboard/internal/hex"
	"github.com/agent-racer/hexboard/internal/scene"
	"github.com/agent-racer/hexboard/internal/theme"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// FrameInterval is the animation tick period.
const FrameInterval = time.Second / 15

const (
	colStep    = tileWidth + 2
	rowStep    = tileHeight
	burstFloor = 0.02
)

var (
	_ scene.ViewFactory = (*Board)(nil)
	_ scene.Effects     = (*Board)(nil)
)

// Board owns every tile and renders them around a focus cell.
type Board struct {
	layout hex.Layout
	tiles  map[string]*Tile
	spring harmonica.Spring

	Focus  hex.Axial
	Width  int
	Height int
}

// New creates an empty board for the given world layout.
func New(layout hex.Layout) *Board {
	return &Board{
		layout: layout,
		tiles:  make(map[string]*Tile),
		spring: harmonica.NewSpring(harmonica.FPS(15), 6.0, 1.0),
	}
}

// NewZoneView creates and registers a tile showing s.
func (b *Board) NewZoneView(s client.SessionSnapshot, cell hex.Axial, at hex.Point) scene.ZoneView {
	t := &Tile{
		board:      b,
		id:         s.ID,
		cell:       cell,
		at:         at,
		status:     s.Status,
		label:      s.DisplayName(),
		tool:       s.CurrentTool,
		toolActive: s.CurrentTool != "",
		git:        s.Git,
		burstModel: b.spring,
	}
	b.tiles[s.ID] = t
	return t
}

// Burst lights the tile under the world point at.
func (b *Board) Burst(at hex.Point, tool string) {
	cell := b.layout.CellAt(at.X, at.Z)
	for _, t := range b.tiles {
		if t.cell == cell {
			t.ignite(tool)
			return
		}
	}
}

// Tick advances every animation by one frame and reports whether another
// frame is needed.
func (b *Board) Tick() bool {
	animating := false
	for _, t := range b.tiles {
		if t.tick() {
			animating = true
		}
	}
	return animating
}

// Animating reports whether any tile is mid-animation.
func (b *Board) Animating() bool {
	for _, t := range b.tiles {
		if t.toolActive || t.burst > 0 {
			return true
		}
	}
	return false
}

// Tile returns the tile for a session id.
func (b *Board) Tile(id string) (*Tile, bool) {
	t, ok := b.tiles[id]
	return t, ok
}

func (b *Board) Len() int { return len(b.tiles) }

func (b *Board) remove(id string) { delete(b.tiles, id) }

// screenPos maps a cell to the top-left terminal position of its tile,
// relative to the focus cell at the center of the viewport.
func (b *Board) screenPos(c hex.Axial, width, height int) (x, y int) {
	dq, dr := c.Q-b.Focus.Q, c.R-b.Focus.R
	x = width/2 - tileWidth/2 + colStep*dq + (colStep/2)*dr
	y = height/2 - tileHeight/2 + rowStep*dr
	return x, y
}

// View renders the visible part of the board.
func (b *Board) View() string {
	width, height := b.Width, b.Height
	if width < tileWidth {
		width = tileWidth
	}
	if height < tileHeight {
		height = tileHeight
	}

	if len(b.tiles) == 0 {
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center,
			theme.StyleDimmed.Render("No sessions"))
	}

	canvas := make([]string, height)
	blank := strings.Repeat(" ", width)
	for i := range canvas {
		canvas[i] = blank
	}

	// Highlighted tiles go last so their borders win.
	tiles := make([]*Tile, 0, len(b.tiles))
	for _, t := range b.tiles {
		tiles = append(tiles, t)
	}
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].highlighted != tiles[j].highlighted {
			return !tiles[i].highlighted
		}
		if tiles[i].cell.R != tiles[j].cell.R {
			return tiles[i].cell.R < tiles[j].cell.R
		}
		return tiles[i].cell.Q < tiles[j].cell.Q
	})

	for _, t := range tiles {
		x, y := b.screenPos(t.cell, width, height)
		if x >= width || y >= height || x+tileWidth <= 0 || y+tileHeight <= 0 {
			continue
		}
		splice(canvas, strings.Split(t.render(), "\n"), x, y, width)
	}
	return strings.Join(canvas, "\n")
}

// splice writes block into canvas with its top-left corner at (x, y),
// clipping to the canvas bounds. ANSI sequences on both sides survive.
func splice(canvas []string, block []string, x, y, width int) {
	for i, line := range block {
		row := y + i
		if row < 0 || row >= len(canvas) {
			continue
		}
		at := x
		if at < 0 {
			line = ansi.TruncateLeft(line, -at, "")
			at = 0
		}
		if room := width - at; ansi.StringWidth(line) > room {
			line = ansi.Truncate(line, room, "")
		}
		lineWidth := ansi.StringWidth(line)

		base := canvas[row]
		var out strings.Builder
		out.WriteString(ansi.Truncate(base, at, ""))
		out.WriteString("\x1b[0m")
		out.WriteString(line)
		out.WriteString("\x1b[0m")
		if end := at + lineWidth; end < ansi.StringWidth(base) {
			out.WriteString(ansi.TruncateLeft(base, end, ""))
		}
		canvas[row] = out.String()
	}
}

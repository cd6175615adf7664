package scene

import (
	"github.com/agent-racer/hexboard/internal/client"
	"github.com/agent-racer/hexboard/internal/hex"
)

// ZoneView is the rendering side of one zone. The reconciler calls a setter
// only when the corresponding field actually changed.
type ZoneView interface {
	SetStatus(status client.Status)
	SetLabel(name string)
	SetTool(tool string, active bool)
	SetGit(git *client.GitStatus)
	SetDimmed(dimmed bool)
	SetHighlighted(highlighted bool)
	Dispose()
}

// ViewFactory builds the view for a newly materialized zone. The view
// starts out rendering s.
type ViewFactory interface {
	NewZoneView(s client.SessionSnapshot, cell hex.Axial, at hex.Point) ZoneView
}

// Effects plays short-lived visual effects.
type Effects interface {
	Burst(at hex.Point, tool string)
}

// Zone is the persistent visual entity of one session. It remembers the
// fields it last rendered so updates can be applied field by field.
type Zone struct {
	id       string
	cell     hex.Axial
	position hex.Point
	session  client.SessionSnapshot
	view     ZoneView

	tool        string
	toolActive  bool
	dimmed      bool
	highlighted bool
}

func (z *Zone) ID() string { return z.id }

func (z *Zone) Cell() hex.Axial { return z.cell }

func (z *Zone) Position() hex.Point { return z.position }

// Session returns the snapshot fields the zone last rendered.
func (z *Zone) Session() client.SessionSnapshot { return z.session }

// View returns the rendering handle.
func (z *Zone) View() ZoneView { return z.view }

// Tool returns the tool on the indicator and whether it is lit.
func (z *Zone) Tool() (string, bool) { return z.tool, z.toolActive }

func (z *Zone) Dimmed() bool { return z.dimmed }

func (z *Zone) Highlighted() bool { return z.highlighted }

func (z *Zone) setTool(tool string, active bool) {
	if z.tool == tool && z.toolActive == active {
		return
	}
	z.tool, z.toolActive = tool, active
	z.view.SetTool(tool, active)
}

func (z *Zone) setDimmed(on bool) {
	if z.dimmed == on {
		return
	}
	z.dimmed = on
	z.view.SetDimmed(on)
}

func (z *Zone) setHighlighted(on bool) {
	if z.highlighted == on {
		return
	}
	z.highlighted = on
	z.view.SetHighlighted(on)
}

// Package scene keeps the set of visual zones in step with the session
// snapshots and events pushed by the backend.
//
// A Reconciler is not safe for concurrent use. It is meant to be driven
// from a single event loop, which also owns the views it creates.
package scene

import (
	"sort"

	"github.com/agent-racer/hexboard/internal/client"
	"github.com/agent-racer/hexboard/internal/hex"
	"github.com/agent-racer/hexboard/internal/match"
	"github.com/agent-racer/hexboard/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultMaxRadius bounds the free-cell search around the grid center.
const DefaultMaxRadius = 20

// Options configures a Reconciler.
type Options struct {
	Layout    hex.Layout
	Center    hex.Axial
	MaxRadius int
	Views     ViewFactory
	Effects   Effects // optional

	// OnPlaced is called when the reconciler allocated a cell for a session
	// that arrived without one.
	OnPlaced func(id string, cell hex.Axial)

	Logger zerolog.Logger
}

// Diff lists what one snapshot pass changed.
type Diff struct {
	Created  []string
	Updated  []string
	Disposed []string
	Skipped  int
}

// Empty reports whether the pass changed nothing.
func (d Diff) Empty() bool {
	return len(d.Created) == 0 && len(d.Updated) == 0 && len(d.Disposed) == 0
}

// Reconciler owns the id -> Zone map, the current snapshot list and the
// selection.
type Reconciler struct {
	opts Options
	log  zerolog.Logger

	zones    map[string]*Zone
	sessions []client.SessionSnapshot
	selected string
}

// New creates an empty reconciler.
func New(opts Options) *Reconciler {
	if opts.MaxRadius <= 0 {
		opts.MaxRadius = DefaultMaxRadius
	}
	if opts.Layout.Pitch <= 0 {
		opts.Layout = hex.NewLayout(3.5, 0.2)
	}
	return &Reconciler{
		opts:  opts,
		log:   opts.Logger.With().Str("component", "scene").Logger(),
		zones: make(map[string]*Zone),
	}
}

// ApplySnapshot reconciles zones with a full session list: zones of missing
// ids are disposed, new ids are materialized, existing zones get field-level
// updates. Entries without an id, and repeated ids, are skipped.
func (r *Reconciler) ApplySnapshot(list []client.SessionSnapshot) Diff {
	var diff Diff

	valid := make([]client.SessionSnapshot, 0, len(list))
	present := make(map[string]bool, len(list))
	for i, s := range list {
		if s.ID == "" {
			r.log.Warn().Int("index", i).Msg("skipping session entry without id")
			diff.Skipped++
			continue
		}
		if present[s.ID] {
			r.log.Warn().Str("session", s.ID).Msg("skipping duplicate session entry")
			diff.Skipped++
			continue
		}
		present[s.ID] = true
		valid = append(valid, s)
	}

	for _, z := range r.Zones() {
		if !present[z.id] {
			r.dispose(z)
			diff.Disposed = append(diff.Disposed, z.id)
		}
	}

	for _, s := range valid {
		if z, ok := r.zones[s.ID]; ok {
			if r.update(z, s) {
				diff.Updated = append(diff.Updated, s.ID)
			}
			continue
		}
		r.materialize(s, r.place(s, valid))
		diff.Created = append(diff.Created, s.ID)
	}

	r.sessions = valid

	metrics.SetZones(len(r.zones))
	metrics.RecordZoneChange("create", len(diff.Created))
	metrics.RecordZoneChange("update", len(diff.Updated))
	metrics.RecordZoneChange("dispose", len(diff.Disposed))
	if !diff.Empty() {
		r.log.Debug().
			Strs("created", diff.Created).
			Strs("updated", diff.Updated).
			Strs("disposed", diff.Disposed).
			Msg("snapshot applied")
	}
	return diff
}

// place returns s's cell, allocating the nearest free one when s has none.
// Occupancy covers every other session's cell, from the snapshot and from
// zones already on the grid, including those created earlier in this pass.
func (r *Reconciler) place(s client.SessionSnapshot, list []client.SessionSnapshot) hex.Axial {
	if s.Cell != nil {
		if z, ok := r.ZoneAt(*s.Cell); ok {
			r.log.Warn().Str("session", s.ID).Str("holder", z.id).Stringer("cell", *s.Cell).
				Msg("reported cell already holds a zone")
		}
		return *s.Cell
	}

	occ := hex.NewOccupancy()
	for _, o := range list {
		if o.ID != s.ID && o.Cell != nil {
			occ.Add(*o.Cell)
		}
	}
	for id, z := range r.zones {
		if id != s.ID {
			occ.Add(z.cell)
		}
	}

	cell := hex.NearestFree(r.opts.Center, occ, r.opts.MaxRadius)
	if hex.IsOverflow(r.opts.Center, cell, r.opts.MaxRadius) {
		metrics.RecordOverflow()
		r.log.Warn().Str("session", s.ID).Stringer("cell", cell).Msg("grid full, using overflow cell")
	}
	if r.opts.OnPlaced != nil {
		r.opts.OnPlaced(s.ID, cell)
	}
	return cell
}

func (r *Reconciler) materialize(s client.SessionSnapshot, cell hex.Axial) {
	r.checkStatus(s)
	pos := r.opts.Layout.ToWorld(cell)
	s.Cell = &cell
	z := &Zone{
		id:         s.ID,
		cell:       cell,
		position:   pos,
		session:    s,
		view:       r.opts.Views.NewZoneView(s, cell, pos),
		tool:       s.CurrentTool,
		toolActive: s.CurrentTool != "",
	}
	r.zones[s.ID] = z
	if r.selected != "" {
		z.setDimmed(true)
	}
}

// checkStatus logs a status outside the known set. The zone still renders it.
func (r *Reconciler) checkStatus(s client.SessionSnapshot) {
	if !s.Status.Valid() {
		r.log.Warn().Str("session", s.ID).Str("status", string(s.Status)).Msg("unknown session status")
	}
}

// update applies the changed fields of s to z and reports whether anything
// differed. The zone's cell never moves.
func (r *Reconciler) update(z *Zone, s client.SessionSnapshot) bool {
	old := z.session
	changed := false

	if old.Status != s.Status {
		r.checkStatus(s)
		z.view.SetStatus(s.Status)
		changed = true
	}
	if old.DisplayName() != s.DisplayName() {
		z.view.SetLabel(s.DisplayName())
		changed = true
	}
	if old.CurrentTool != s.CurrentTool {
		z.setTool(s.CurrentTool, s.CurrentTool != "")
		changed = true
	}
	if !old.Git.Equal(s.Git) {
		z.view.SetGit(s.Git)
		changed = true
	}
	if old.Cwd != s.Cwd || old.ExternalID != s.ExternalID || old.TmuxSession != s.TmuxSession {
		changed = true
	}
	if s.Cell != nil && *s.Cell != z.cell {
		r.log.Debug().Str("session", s.ID).Stringer("reported", *s.Cell).Stringer("kept", z.cell).
			Msg("ignoring cell change for placed zone")
	}

	cell := z.cell
	s.Cell = &cell
	z.session = s
	return changed
}

func (r *Reconciler) dispose(z *Zone) {
	if r.selected == z.id {
		r.Select("")
	}
	z.view.Dispose()
	delete(r.zones, z.id)
}

// HandleEvent routes ev to every zone it matches by the scene rule. A tool
// start lights the zone's tool indicator and plays a burst at the zone; a
// tool end turns the indicator off. It returns the matched ids; events that
// match nothing are dropped.
func (r *Reconciler) HandleEvent(ev client.SessionEvent) []string {
	var matched []string
	for _, z := range r.Zones() {
		if !match.RoutesToScene(ev, z.session) {
			continue
		}
		matched = append(matched, z.id)

		switch {
		case ev.IsToolStart():
			z.setTool(ev.Tool, true)
			if r.opts.Effects != nil {
				r.opts.Effects.Burst(z.position, ev.Tool)
			}
		case ev.IsToolEnd():
			z.setTool(ev.Tool, false)
		}
	}
	metrics.RecordEvent(len(matched) > 0)
	return matched
}

// Select makes id the only selected zone, dimming the others. An empty id
// clears selection, dimming and highlighting everywhere. Unknown ids are
// rejected.
func (r *Reconciler) Select(id string) bool {
	if id != "" {
		if _, ok := r.zones[id]; !ok {
			return false
		}
	}
	if id == r.selected {
		return true
	}

	if prev, ok := r.zones[r.selected]; ok {
		prev.setHighlighted(false)
	}
	r.selected = id

	for _, z := range r.zones {
		switch {
		case id == "":
			z.setHighlighted(false)
			z.setDimmed(false)
		case z.id == id:
			z.setDimmed(false)
			z.setHighlighted(true)
		default:
			z.setDimmed(true)
		}
	}
	return true
}

// Selected returns the selected id, or "" when nothing is selected.
func (r *Reconciler) Selected() string { return r.selected }

// SelectNext moves the selection forward in grid reading order, wrapping.
func (r *Reconciler) SelectNext() string { return r.step(1) }

// SelectPrev moves the selection backward in grid reading order, wrapping.
func (r *Reconciler) SelectPrev() string { return r.step(-1) }

func (r *Reconciler) step(delta int) string {
	zones := r.Zones()
	if len(zones) == 0 {
		return ""
	}
	idx := -1
	for i, z := range zones {
		if z.id == r.selected {
			idx = i
			break
		}
	}
	switch {
	case idx < 0 && delta > 0:
		idx = 0
	case idx < 0:
		idx = len(zones) - 1
	default:
		idx = (idx + delta + len(zones)) % len(zones)
	}
	r.Select(zones[idx].id)
	return r.selected
}

// Zone returns the zone for a session id.
func (r *Reconciler) Zone(id string) (*Zone, bool) {
	z, ok := r.zones[id]
	return z, ok
}

// ZoneAt returns the zone placed on cell.
func (r *Reconciler) ZoneAt(cell hex.Axial) (*Zone, bool) {
	for _, z := range r.zones {
		if z.cell == cell {
			return z, true
		}
	}
	return nil, false
}

// Zones returns all zones in grid reading order (row, then column, then id).
func (r *Reconciler) Zones() []*Zone {
	out := make([]*Zone, 0, len(r.zones))
	for _, z := range r.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.cell.R != b.cell.R {
			return a.cell.R < b.cell.R
		}
		if a.cell.Q != b.cell.Q {
			return a.cell.Q < b.cell.Q
		}
		return a.id < b.id
	})
	return out
}

// Len returns the number of materialized zones.
func (r *Reconciler) Len() int { return len(r.zones) }

// Sessions returns the sessions of the last applied snapshot, in push order.
func (r *Reconciler) Sessions() []client.SessionSnapshot {
	return append([]client.SessionSnapshot(nil), r.sessions...)
}

// Layout returns the grid layout in use.
func (r *Reconciler) Layout() hex.Layout { return r.opts.Layout }

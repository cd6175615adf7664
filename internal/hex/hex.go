// Package hex implements the pointy-top axial hex grid used to place
// session zones: world/axial conversions, cube rounding, rings and the
// deterministic nearest-free-cell search.
package hex

import (
	"math"
	"strconv"
)

// Axial identifies one grid cell. (0,0) is the origin.
type Axial struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// Point is a planar world position.
type Point struct {
	X float64
	Z float64
}

// Origin is the center cell of the grid.
var Origin = Axial{}

// directions lists the six unit steps in ring-walk order.
var directions = [6]Axial{
	{1, 0}, {0, 1}, {-1, 1}, {-1, 0}, {0, -1}, {1, -1},
}

// Key returns the "q,r" occupancy key for the cell.
func (a Axial) Key() string {
	return strconv.Itoa(a.Q) + "," + strconv.Itoa(a.R)
}

func (a Axial) String() string {
	return "(" + a.Key() + ")"
}

// Add returns a+b.
func (a Axial) Add(b Axial) Axial {
	return Axial{Q: a.Q + b.Q, R: a.R + b.R}
}

// Scale returns a multiplied by k.
func (a Axial) Scale(k int) Axial {
	return Axial{Q: a.Q * k, R: a.R * k}
}

// Distance returns the grid distance between two cells.
func Distance(a, b Axial) int {
	dq := a.Q - b.Q
	dr := a.R - b.R
	return (abs(dq) + abs(dr) + abs(dq+dr)) / 2
}

// Layout converts between cells and world positions for a fixed pitch
// (cell radius plus the gap between neighbouring cells).
type Layout struct {
	Pitch float64
}

// NewLayout returns a layout with pitch radius+gap.
func NewLayout(radius, gap float64) Layout {
	return Layout{Pitch: radius + gap}
}

// ToWorld returns the center of the cell in world space.
func (l Layout) ToWorld(c Axial) Point {
	q, r := float64(c.Q), float64(c.R)
	return Point{
		X: l.Pitch * (math.Sqrt(3)*q + math.Sqrt(3)/2*r),
		Z: l.Pitch * (1.5 * r),
	}
}

// ToAxialFractional is the non-integer inverse of ToWorld.
func (l Layout) ToAxialFractional(x, z float64) (q, r float64) {
	q = (math.Sqrt(3)/3*x - 1.0/3*z) / l.Pitch
	r = (2.0 / 3 * z) / l.Pitch
	return q, r
}

// CellAt returns the cell containing the world position.
func (l Layout) CellAt(x, z float64) Axial {
	return Round(l.ToAxialFractional(x, z))
}

// Round snaps fractional axial coordinates to the nearest cell. Each cube
// component is rounded on its own and the one with the largest rounding
// error is re-derived from the other two so q+r+s stays zero.
func Round(fq, fr float64) Axial {
	fs := -fq - fr
	q := math.Round(fq)
	r := math.Round(fr)
	s := math.Round(fs)

	dq := math.Abs(q - fq)
	dr := math.Abs(r - fr)
	ds := math.Abs(s - fs)

	switch {
	case dq > dr && dq > ds:
		q = -r - s
	case dr > ds:
		r = -q - s
	}
	// s is implied by q and r and is not stored.
	return Axial{Q: int(q), R: int(r)}
}

// Ring returns the cells at exactly radius steps from center, in a stable
// angular order: start at center+radius*directions[4], then walk each of
// the six directions radius times.
func Ring(center Axial, radius int) []Axial {
	if radius <= 0 {
		return []Axial{center}
	}
	cells := make([]Axial, 0, 6*radius)
	cur := center.Add(directions[4].Scale(radius))
	for _, d := range directions {
		for i := 0; i < radius; i++ {
			cells = append(cells, cur)
			cur = cur.Add(d)
		}
	}
	return cells
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

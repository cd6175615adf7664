package hex

// Occupancy is a set of "q,r" cell keys.
type Occupancy map[string]struct{}

// NewOccupancy builds a set from cells.
func NewOccupancy(cells ...Axial) Occupancy {
	o := make(Occupancy, len(cells))
	for _, c := range cells {
		o.Add(c)
	}
	return o
}

// Add marks a cell occupied.
func (o Occupancy) Add(c Axial) {
	o[c.Key()] = struct{}{}
}

// Has reports whether the cell is occupied. A nil set is empty.
func (o Occupancy) Has(c Axial) bool {
	_, ok := o[c.Key()]
	return ok
}

// NearestFree scans rings 0..maxRadius around center in emission order and
// returns the first cell not in occupancy. When every cell within maxRadius
// is taken it falls back to {maxRadius+1, 0}, stepping further along +q
// while that cell is also taken, so the result is never occupied.
//
// occupancy is only read.
func NearestFree(center Axial, occupancy Occupancy, maxRadius int) Axial {
	for radius := 0; radius <= maxRadius; radius++ {
		for _, c := range Ring(center, radius) {
			if !occupancy.Has(c) {
				return c
			}
		}
	}
	overflow := Axial{Q: maxRadius + 1, R: 0}
	for occupancy.Has(overflow) {
		overflow.Q++
	}
	return overflow
}

// IsOverflow reports whether c lies outside the search disc of maxRadius
// around center, i.e. NearestFree had to use its fallback.
func IsOverflow(center, c Axial, maxRadius int) bool {
	return Distance(center, c) > maxRadius
}

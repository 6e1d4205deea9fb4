// Package hexmath implements pointy-top odd-r offset hex coordinate math:
// the offset<->axial<->cube<->pixel conversions, a line walk between two
// cells, and fixed clockwise neighbor ordering (spec.md §4.1).
package hexmath

import "math"

// Sqrt3 is used throughout the pointy-top unit hex geometry: cell width is
// Sqrt3, vertical row spacing is 1.5, and odd rows are staggered by
// Sqrt3/2 (spec.md §3 "Projection parameters", §9 hex geometry constants).
const Sqrt3 = 1.7320508075688772

// Offset is an odd-r offset coordinate (col, row).
type Offset struct {
	Col, Row int
}

// Axial is a cube-reducible axial coordinate (Q, R).
type Axial struct {
	Q, R int
}

// cube is the third, redundant cube coordinate (Q + R + S == 0); kept only
// for rounding and distance math, never exposed.
type cube struct {
	X, Y, Z float64
}

// ToAxial converts an odd-r offset coordinate to axial.
func (o Offset) ToAxial() Axial {
	q := o.Col - (o.Row-(o.Row&1))/2
	return Axial{Q: q, R: o.Row}
}

// ToOffset converts an axial coordinate back to odd-r offset.
func (a Axial) ToOffset() Offset {
	col := a.Q + (a.R-(a.R&1))/2
	return Offset{Col: col, Row: a.R}
}

func (a Axial) toCube() cube {
	x := float64(a.Q)
	z := float64(a.R)
	y := -x - z
	return cube{X: x, Y: y, Z: z}
}

func cubeRound(c cube) Axial {
	rx := math.Round(c.X)
	ry := math.Round(c.Y)
	rz := math.Round(c.Z)

	dx := math.Abs(rx - c.X)
	dy := math.Abs(ry - c.Y)
	dz := math.Abs(rz - c.Z)

	switch {
	case dx > dy && dx > dz:
		rx = -ry - rz
	case dy > dz:
		ry = -rx - rz
	default:
		rz = -rx - ry
	}
	return Axial{Q: int(rx), R: int(rz)}
}

// OffsetToPixel maps an odd-r offset coordinate to unit-hex pixel space,
// scaled by size. Pointy-top geometry: width = Sqrt3*size, vertical
// spacing = 1.5*size, odd rows staggered by (Sqrt3/2)*size.
func OffsetToPixel(col, row int, size float64) (x, y float64) {
	x = size * Sqrt3 * (float64(col) + 0.5*float64(row&1))
	y = size * 1.5 * float64(row)
	return x, y
}

// PixelToOffset is OffsetToPixel's inverse, accurate to within half a cell
// (spec.md §4.1 "inverse pair within a 0.5-cell tolerance"). It works in
// fractional axial space (where the pointy-top formula has no row-parity
// ambiguity) and rounds through cube coordinates.
func PixelToOffset(x, y float64, size float64) (col, row int) {
	if size <= 0 {
		return 0, 0
	}
	rFrac := y / (1.5 * size)
	qFrac := x/(Sqrt3*size) - rFrac/2
	zFrac := rFrac
	xFrac := qFrac
	yFrac := -xFrac - zFrac
	a := cubeRound(cube{X: xFrac, Y: yFrac, Z: zFrac})
	off := a.ToOffset()
	return off.Col, off.Row
}

// clockwiseCubeDirections lists the six cube-coordinate unit steps in fixed
// clockwise order starting due east, matching spec.md §4.1's "six
// neighbors in fixed clockwise order".
var clockwiseCubeDirections = [6]Axial{
	{Q: 1, R: 0},
	{Q: 0, R: 1},
	{Q: -1, R: 1},
	{Q: -1, R: 0},
	{Q: 0, R: -1},
	{Q: 1, R: -1},
}

// Neighbors returns the six neighboring offset coordinates of (col, row) in
// fixed clockwise order.
func Neighbors(col, row int) [6]Offset {
	a := Offset{Col: col, Row: row}.ToAxial()
	var out [6]Offset
	for i, d := range clockwiseCubeDirections {
		out[i] = Axial{Q: a.Q + d.Q, R: a.R + d.R}.ToOffset()
	}
	return out
}

// cubeDistance returns the hex distance between two axial coordinates.
func cubeDistance(a, b Axial) int {
	ac := a.toCube()
	bc := b.toCube()
	dx := math.Abs(ac.X - bc.X)
	dy := math.Abs(ac.Y - bc.Y)
	dz := math.Abs(ac.Z - bc.Z)
	return int(math.Max(dx, math.Max(dy, dz)))
}

// HexLine returns the ordered sequence of offset cells along a straight
// axial line from (c0,r0) to (c1,r1), inclusive, with duplicates removed
// and diagonal ties broken deterministically via a tiny, fixed epsilon
// nudge on the starting point (spec.md §4.1).
func HexLine(c0, r0, c1, r1 int) []Offset {
	a0 := Offset{Col: c0, Row: r0}.ToAxial()
	a1 := Offset{Col: c1, Row: r1}.ToAxial()

	n := cubeDistance(a0, a1)
	if n == 0 {
		return []Offset{{Col: c0, Row: r0}}
	}

	c0f := a0.toCube()
	c1f := a1.toCube()
	// Nudge the start point by a fixed small epsilon so exact half-integer
	// lerps resolve to a consistent side instead of depending on float
	// rounding direction.
	const eps = 1e-6
	c0f.X += eps
	c0f.Y += eps * 2
	c0f.Z -= eps * 3

	out := make([]Offset, 0, n+1)
	seen := make(map[Offset]bool, n+1)
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		x := c0f.X + (c1f.X-c0f.X)*t
		y := c0f.Y + (c1f.Y-c0f.Y)*t
		z := c0f.Z + (c1f.Z-c0f.Z)*t
		a := cubeRound(cube{X: x, Y: y, Z: z})
		off := a.ToOffset()
		if !seen[off] {
			seen[off] = true
			out = append(out, off)
		}
	}
	return out
}

// Package rasterizer implements rasterize_way: projecting a polyline's
// nodes onto the hex grid and filling gaps between non-adjacent consecutive
// cells with hexmath's line walk (spec.md §4.7).
package rasterizer

import (
	"github.com/MeKo-Tech/worldfusion/internal/hexmath"
	"github.com/MeKo-Tech/worldfusion/internal/hexproj"
)

// Node is a bare (lon, lat) pair, matching hexproj.Point's field order so
// callers can pass vectorquery geometry directly after a trivial field
// swap (vectorquery.Point is Lat/Lon; callers convert at the boundary).
type Node struct {
	Lon, Lat float64
}

// RasterizeWay projects consecutive nodes to offset cells and fills gaps
// between non-neighboring consecutive projections with hex_line. Segments
// that fall entirely outside the grid are skipped; the caller dedups the
// result per-way or per-feature-type as needed.
func RasterizeWay(nodes []Node, proj *hexproj.Projection) []hexmath.Offset {
	var cells []hexmath.Offset
	havePrev := false
	var prevCol, prevRow int

	for _, n := range nodes {
		col, row, ok := proj.GeoToCell(n.Lon, n.Lat)
		if !ok {
			havePrev = false
			continue
		}
		if !havePrev {
			cells = append(cells, hexmath.Offset{Col: col, Row: row})
			prevCol, prevRow = col, row
			havePrev = true
			continue
		}
		if isNeighborOrSame(prevCol, prevRow, col, row) {
			cells = append(cells, hexmath.Offset{Col: col, Row: row})
		} else {
			line := hexmath.HexLine(prevCol, prevRow, col, row)
			// line[0] duplicates the already-appended previous cell.
			if len(line) > 1 {
				cells = append(cells, line[1:]...)
			}
		}
		prevCol, prevRow = col, row
	}

	return cells
}

func isNeighborOrSame(c0, r0, c1, r1 int) bool {
	if c0 == c1 && r0 == r1 {
		return true
	}
	for _, n := range hexmath.Neighbors(c0, r0) {
		if n.Col == c1 && n.Row == r1 {
			return true
		}
	}
	return false
}

// Dedup removes duplicate offsets, preserving first-seen order.
func Dedup(cells []hexmath.Offset) []hexmath.Offset {
	seen := make(map[hexmath.Offset]bool, len(cells))
	out := make([]hexmath.Offset, 0, len(cells))
	for _, c := range cells {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

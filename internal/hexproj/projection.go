// Package hexproj implements HexProjection: the sole authority for
// geographic<->hex-cell conversion shared by every other component
// (spec.md §4.1). It is per-map scratch state, built once from a bounding
// box and grid dimensions and reused for the lifetime of one generation.
package hexproj

import (
	"github.com/MeKo-Tech/worldfusion/internal/hexmath"
	"github.com/MeKo-Tech/worldfusion/internal/types"
)

// Projection maps between geographic coordinates and hex offset cells over
// a fixed bounding box and grid size. The pixel-space extents
// (hxMin=-√3/2, hySpan=1.5·rows+0.5) are fixed per spec.md §9's design
// note so any downstream consumer using the same constants stays in sync.
type Projection struct {
	BBox types.BoundingBox
	Cols int
	Rows int

	hxMin, hxSpan float64
	hyMin, hySpan float64
	scaleX        float64 // degrees lon per unit pixel x
	scaleY        float64 // degrees lat per unit pixel y
}

// New builds a Projection over bbox with the given grid dimensions.
func New(bbox types.BoundingBox, cols, rows int) *Projection {
	p := &Projection{
		BBox: bbox,
		Cols: cols,
		Rows: rows,
		hxMin: -hexmath.Sqrt3 / 2,
		hxSpan: hexmath.Sqrt3 * float64(cols),
		hyMin: -0.5,
		hySpan: 1.5*float64(rows) + 0.5,
	}
	if p.hxSpan <= 0 {
		p.hxSpan = hexmath.Sqrt3
	}
	if p.hySpan <= 0 {
		p.hySpan = 1.5
	}
	p.scaleX = bbox.Width() / p.hxSpan
	p.scaleY = bbox.Height() / p.hySpan
	return p
}

func (p *Projection) geoToPixel(lon, lat float64) (x, y float64) {
	x = (lon-p.BBox.West)/p.scaleX + p.hxMin
	y = (p.BBox.North-lat)/p.scaleY + p.hyMin
	return x, y
}

func (p *Projection) pixelToGeo(x, y float64) (lon, lat float64) {
	lon = p.BBox.West + (x-p.hxMin)*p.scaleX
	lat = p.BBox.North - (y-p.hyMin)*p.scaleY
	return lon, lat
}

// GeoToCell returns the offset cell containing (lon, lat), or ok=false if
// the point falls outside the grid.
func (p *Projection) GeoToCell(lon, lat float64) (col, row int, ok bool) {
	x, y := p.geoToPixel(lon, lat)
	col, row = hexmath.PixelToOffset(x, y, 1)
	if col < 0 || col >= p.Cols || row < 0 || row >= p.Rows {
		return 0, 0, false
	}
	return col, row, true
}

// CellCenter returns the geographic center of cell (col, row).
func (p *Projection) CellCenter(col, row int) (lon, lat float64) {
	x, y := hexmath.OffsetToPixel(col, row, 1)
	return p.pixelToGeo(x, y)
}

// CellBBox returns the axis-aligned degree rectangle bounding the hex at
// (col, row): ±√3/2 wide, ±1 tall in unit pixel space (spec.md §4.1).
func (p *Projection) CellBBox(col, row int) (north, south, west, east float64) {
	cx, cy := hexmath.OffsetToPixel(col, row, 1)
	_, nLat := p.pixelToGeo(cx, cy-1)
	_, sLat := p.pixelToGeo(cx, cy+1)
	wLon, _ := p.pixelToGeo(cx-hexmath.Sqrt3/2, cy)
	eLon, _ := p.pixelToGeo(cx+hexmath.Sqrt3/2, cy)
	return nLat, sLat, wLon, eLon
}

// Point is a simple (Lon, Lat) pair, used for sample grids and matched
// points where importing a heavier geometry type would be overkill.
type Point struct {
	Lon, Lat float64
}

// CellSamplePointsLonLat returns an N×N row-major grid of sample points
// across the cell's bounding box (spec.md §4.1 "cell_sample_points").
func (p *Projection) CellSamplePointsLonLat(col, row, n int) []Point {
	if n <= 0 {
		n = 1
	}
	north, south, west, east := p.CellBBox(col, row)
	points := make([]Point, 0, n*n)
	for i := 0; i < n; i++ {
		var lat float64
		if n == 1 {
			lat = (north + south) / 2
		} else {
			t := float64(i) / float64(n-1)
			lat = north - t*(north-south)
		}
		for j := 0; j < n; j++ {
			var lon float64
			if n == 1 {
				lon = (west + east) / 2
			} else {
				t := float64(j) / float64(n-1)
				lon = west + t*(east-west)
			}
			points = append(points, Point{Lon: lon, Lat: lat})
		}
	}
	return points
}

// GeoRangeToGridRange returns a conservative (r0, r1, c0, c1) window of
// cells whose bounding box may touch the given geographic rectangle
// (spec.md §4.1). The window is inclusive and clamped to the grid.
func (p *Projection) GeoRangeToGridRange(south, north, west, east float64) (r0, r1, c0, c1 int) {
	corners := [][2]float64{
		{west, south}, {east, south}, {west, north}, {east, north},
	}
	minCol, maxCol := p.Cols-1, 0
	minRow, maxRow := p.Rows-1, 0
	any := false
	for _, c := range corners {
		x, y := p.geoToPixel(c[0], c[1])
		col, row := hexmath.PixelToOffset(x, y, 1)
		if col < minCol {
			minCol = col
		}
		if col > maxCol {
			maxCol = col
		}
		if row < minRow {
			minRow = row
		}
		if row > maxRow {
			maxRow = row
		}
		any = true
	}
	if !any {
		return 0, -1, 0, -1
	}
	// Expand by one cell on every side for conservativeness, then clamp.
	minCol--
	maxCol++
	minRow--
	maxRow++
	if minCol < 0 {
		minCol = 0
	}
	if minRow < 0 {
		minRow = 0
	}
	if maxCol >= p.Cols {
		maxCol = p.Cols - 1
	}
	if maxRow >= p.Rows {
		maxRow = p.Rows - 1
	}
	return minRow, maxRow, minCol, maxCol
}

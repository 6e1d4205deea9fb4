package hexproj

import (
	"testing"

	"github.com/MeKo-Tech/worldfusion/internal/types"
)

func testBBox() types.BoundingBox {
	return types.BoundingBox{South: 36.0, North: 38.0, West: 125.0, East: 128.0}
}

func TestRoundTripCellCenterToGeoToCell(t *testing.T) {
	p := New(testBBox(), 40, 30)
	for row := 0; row < p.Rows; row++ {
		for col := 0; col < p.Cols; col++ {
			lon, lat := p.CellCenter(col, row)
			gotCol, gotRow, ok := p.GeoToCell(lon, lat)
			if !ok {
				t.Fatalf("cell (%d,%d) center (%.4f,%.4f) mapped outside grid", col, row, lon, lat)
			}
			if gotCol != col || gotRow != row {
				t.Errorf("cell (%d,%d) center round-tripped to (%d,%d)", col, row, gotCol, gotRow)
			}
		}
	}
}

func TestGeoToCellOutsideGrid(t *testing.T) {
	p := New(testBBox(), 10, 10)
	if _, _, ok := p.GeoToCell(200, 80); ok {
		t.Fatal("expected point far outside bbox to report ok=false")
	}
}

func TestCellBBoxContainsCenter(t *testing.T) {
	p := New(testBBox(), 20, 20)
	for _, rc := range [][2]int{{0, 0}, {10, 10}, {19, 19}} {
		col, row := rc[0], rc[1]
		north, south, west, east := p.CellBBox(col, row)
		lon, lat := p.CellCenter(col, row)
		if lat > north || lat < south || lon < west || lon > east {
			t.Errorf("cell (%d,%d) center (%.4f,%.4f) not inside its own bbox N%.4f S%.4f W%.4f E%.4f",
				col, row, lon, lat, north, south, west, east)
		}
	}
}

func TestCellSamplePointsShape(t *testing.T) {
	p := New(testBBox(), 20, 20)
	pts := p.CellSamplePointsLonLat(5, 5, 5)
	if len(pts) != 25 {
		t.Fatalf("expected 25 sample points, got %d", len(pts))
	}
}

func TestGeoRangeToGridRangeCoversWholeBBox(t *testing.T) {
	bbox := testBBox()
	p := New(bbox, 20, 20)
	r0, r1, c0, c1 := p.GeoRangeToGridRange(bbox.South, bbox.North, bbox.West, bbox.East)
	if r0 != 0 || c0 != 0 || r1 != p.Rows-1 || c1 != p.Cols-1 {
		t.Errorf("whole-bbox range should cover full grid, got r0=%d r1=%d c0=%d c1=%d", r0, r1, c0, c1)
	}
}

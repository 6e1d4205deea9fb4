package rasterizer

import (
	"testing"

	"github.com/MeKo-Tech/worldfusion/internal/hexmath"
	"github.com/MeKo-Tech/worldfusion/internal/hexproj"
	"github.com/MeKo-Tech/worldfusion/internal/types"
)

func testProjection() *hexproj.Projection {
	bbox := types.BoundingBox{South: 0, North: 10, West: 0, East: 10}
	return hexproj.New(bbox, 50, 50)
}

func TestRasterizeWayAdjacentNodesProduceContiguousCells(t *testing.T) {
	proj := testProjection()
	lon0, lat0 := proj.CellCenter(10, 10)
	lon1, lat1 := proj.CellCenter(11, 10)

	nodes := []Node{{Lon: lon0, Lat: lat0}, {Lon: lon1, Lat: lat1}}
	cells := RasterizeWay(nodes, proj)
	if len(cells) < 2 {
		t.Fatalf("expected at least 2 cells, got %d: %v", len(cells), cells)
	}
	for i := 1; i < len(cells); i++ {
		if !isNeighborOrSame(cells[i-1].Col, cells[i-1].Row, cells[i].Col, cells[i].Row) {
			t.Errorf("gap between consecutive output cells %v and %v", cells[i-1], cells[i])
		}
	}
}

func TestRasterizeWayFillsGapBetweenDistantNodes(t *testing.T) {
	proj := testProjection()
	lon0, lat0 := proj.CellCenter(0, 0)
	lon1, lat1 := proj.CellCenter(40, 0)

	nodes := []Node{{Lon: lon0, Lat: lat0}, {Lon: lon1, Lat: lat1}}
	cells := RasterizeWay(nodes, proj)
	if len(cells) < 2 {
		t.Fatalf("expected the gap to be filled with intermediate cells, got %d", len(cells))
	}
	first, last := cells[0], cells[len(cells)-1]
	if first.Col != 0 || first.Row != 0 {
		t.Errorf("expected path to start at (0,0), got %v", first)
	}
	if last.Col != 40 || last.Row != 0 {
		t.Errorf("expected path to end at (40,0), got %v", last)
	}
}

func TestRasterizeWaySkipsOutOfBoundsSegments(t *testing.T) {
	proj := testProjection()
	lon0, lat0 := proj.CellCenter(5, 5)

	nodes := []Node{
		{Lon: lon0, Lat: lat0},
		{Lon: -170, Lat: -80}, // far outside the grid
		{Lon: lon0, Lat: lat0},
	}
	cells := RasterizeWay(nodes, proj)
	if len(cells) != 2 {
		t.Fatalf("expected the out-of-bounds node to be skipped, leaving 2 cells, got %d: %v", len(cells), cells)
	}
}

func TestDedupPreservesFirstSeenOrder(t *testing.T) {
	cells := []hexmath.Offset{{Col: 1, Row: 1}, {Col: 2, Row: 2}, {Col: 1, Row: 1}, {Col: 3, Row: 3}}
	out := Dedup(cells)
	want := []hexmath.Offset{{Col: 1, Row: 1}, {Col: 2, Row: 2}, {Col: 3, Row: 3}}
	if len(out) != len(want) {
		t.Fatalf("expected %d deduped cells, got %d", len(want), len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("index %d: expected %v, got %v", i, want[i], out[i])
		}
	}
}

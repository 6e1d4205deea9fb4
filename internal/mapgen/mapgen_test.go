package mapgen

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/MeKo-Tech/worldfusion/internal/elevation"
	"github.com/MeKo-Tech/worldfusion/internal/genlog"
	"github.com/MeKo-Tech/worldfusion/internal/hexproj"
	"github.com/MeKo-Tech/worldfusion/internal/types"
)

func testBBox() types.BoundingBox {
	return types.BoundingBox{South: 40, North: 41, West: 0, East: 1}
}

func TestGenerateWithNoProvidersProducesDefaultGrid(t *testing.T) {
	g := &Generator{}
	m, log, err := g.Generate(context.Background(), Request{BBox: testBBox(), Cols: 6, Rows: 6, CellSizeKm: 3})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(m.Cells) != 36 {
		t.Fatalf("expected 36 cells, got %d", len(m.Cells))
	}
	for i, c := range m.Cells {
		if c.Terrain != types.TerrainOpenGround {
			t.Errorf("cell %d: expected default open_ground, got %v", i, c.Terrain)
		}
		if c.Elevation != 0 {
			t.Errorf("cell %d: expected zero elevation, got %d", i, c.Elevation)
		}
	}
	if !containsWarn(log.Records(), "no elevation sampler configured") {
		t.Error("expected a warning about the missing elevation sampler")
	}
}

func containsWarn(records []genlog.Record, substr string) bool {
	for _, r := range records {
		if r.Tag == genlog.TagWarn && r.Message == substr {
			return true
		}
	}
	return false
}

func TestGenerateRejectsGridExceedingCellLimit(t *testing.T) {
	g := &Generator{}
	_, _, err := g.Generate(context.Background(), Request{BBox: testBBox(), Cols: 300, Rows: 300, CellSizeKm: 3})
	if err == nil {
		t.Fatal("expected LimitExceeded-style error for an oversized grid")
	}
}

func TestGenerateRejectsNonPositiveDimensions(t *testing.T) {
	g := &Generator{}
	if _, _, err := g.Generate(context.Background(), Request{BBox: testBBox(), Cols: 0, Rows: 5, CellSizeKm: 3}); err == nil {
		t.Error("expected error for zero cols")
	}
}

func TestToJSONRendersExpectedShape(t *testing.T) {
	bbox := testBBox()
	proj := hexproj.New(bbox, 4, 4)
	m := &Map{Proj: proj, Tier: types.Operational, CellSizeKm: 3, Cells: make([]types.Cell, 16)}
	for i := range m.Cells {
		m.Cells[i] = types.NewCell()
		m.Cells[i].Terrain = types.TerrainForest
	}
	m.Cells[5].Features = m.Cells[5].Features.With(types.FeatureRidgeline)

	buf, err := m.ToJSON(time.Unix(1700000000, 0), "test-source")
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(buf, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	mapBody, ok := doc["map"].(map[string]any)
	if !ok {
		t.Fatalf("expected map body, got %T", doc["map"])
	}
	if mapBody["gridType"] != "hex" {
		t.Errorf("expected gridType hex, got %v", mapBody["gridType"])
	}
	cells, ok := mapBody["cells"].(map[string]any)
	if !ok || len(cells) != 16 {
		t.Fatalf("expected 16 cell entries, got %v", mapBody["cells"])
	}
	cell1, ok := cells["1,1"].(map[string]any)
	if !ok {
		t.Fatalf("expected cell 1,1 present, got keys %v", keysOf(cells))
	}
	if cell1["terrain"] != "forest" {
		t.Errorf("expected terrain forest, got %v", cell1["terrain"])
	}
	meta, ok := doc["_meta"].(map[string]any)
	if !ok || meta["tier"] != "operational" {
		t.Fatalf("expected _meta.tier operational, got %v", doc["_meta"])
	}
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestOceanChunkTesterAllSeaVsMixed(t *testing.T) {
	bbox := testBBox()
	proj := hexproj.New(bbox, 4, 4)
	n := proj.Cols * proj.Rows
	elev := make([]float64, n)
	tester := oceanChunkTester(elevation.Result{Elevations: elev}, proj)
	if tester == nil {
		t.Fatal("expected a non-nil tester when elevation data is present")
	}
	allSea, err := tester(context.Background(), bbox)
	if err != nil {
		t.Fatalf("ocean test: %v", err)
	}
	if !allSea {
		t.Error("expected the whole bbox to test as ocean with all-zero elevation")
	}

	elev[idx(proj.Cols, proj.Cols/2, proj.Rows/2)] = 500
	mixed, err := tester(context.Background(), bbox)
	if err != nil {
		t.Fatalf("ocean test: %v", err)
	}
	if mixed {
		t.Error("expected a chunk with a land cell to not test as all-ocean")
	}
}

func TestOceanChunkTesterNilWithoutElevation(t *testing.T) {
	proj := hexproj.New(testBBox(), 4, 4)
	if tester := oceanChunkTester(elevation.Result{}, proj); tester != nil {
		t.Error("expected a nil tester when no elevation data is available")
	}
}

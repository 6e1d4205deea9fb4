package postprocess

import (
	"testing"

	"github.com/MeKo-Tech/worldfusion/internal/hexmath"
	"github.com/MeKo-Tech/worldfusion/internal/hexproj"
	"github.com/MeKo-Tech/worldfusion/internal/types"
)

func flatInputs(tier types.Tier, cols, rows int) Inputs {
	bbox := types.BoundingBox{South: 40, North: 50, West: 0, East: 10}
	proj := hexproj.New(bbox, cols, rows)
	n := proj.Cols * proj.Rows
	terrain := make([]types.Terrain, n)
	for i := range terrain {
		terrain[i] = types.TerrainOpenGround
	}
	return Inputs{
		Proj:           proj,
		Tier:           tier,
		CellSizeKm:     tier.ChunkSideKm(),
		Terrain:        terrain,
		Infrastructure: make([]types.Infrastructure, n),
		Features:       make([]types.FeatureSet, n),
		Elevation:      make([]float64, n),
		RoadLineCount:  make([]int, n),
		BuildingCount:  make([]int, n),
	}
}

func TestOceanFloodFillSkippedBelowCoverageThreshold(t *testing.T) {
	in := flatInputs(types.Strategic, 10, 10)
	in.ElevationCoverage = 0.2
	res := Run(in)
	for i, tr := range res.Terrain {
		if tr != types.TerrainOpenGround {
			t.Fatalf("cell %d: expected unchanged open_ground with low elevation coverage, got %v", i, tr)
		}
	}
}

func TestOceanFloodFillReclassifiesBorderWater(t *testing.T) {
	in := flatInputs(types.Strategic, 10, 10)
	in.ElevationCoverage = 0.9
	// Make the whole grid sea-level open ground so a border-seeded flood
	// fill covers everything; interior cells should end up deep_water.
	res := Run(in)
	cols, rows := in.Proj.Cols, in.Proj.Rows
	mid := idx(cols, cols/2, rows/2)
	if res.Terrain[mid] != types.TerrainDeepWater {
		t.Errorf("expected interior cell reclassified deep_water, got %v", res.Terrain[mid])
	}
	corner := idx(cols, 0, 0)
	if res.Terrain[corner] != types.TerrainCoastalWater && res.Terrain[corner] != types.TerrainDeepWater {
		t.Errorf("expected border cell reclassified to some ocean terrain, got %v", res.Terrain[corner])
	}
}

func TestChokepointFlanksPassableCellBetweenImpassableTerrain(t *testing.T) {
	in := flatInputs(types.Operational, 11, 11)
	cols := in.Proj.Cols
	center := struct{ Col, Row int }{5, 5}
	c1, r1 := stepDirection(center.Col, center.Row, 0, 2)
	c2, r2 := stepDirection(center.Col, center.Row, 3, 2)
	in.Terrain[idx(cols, c1, r1)] = types.TerrainMountain
	in.Terrain[idx(cols, c2, r2)] = types.TerrainMountain

	res := Run(in)
	k := idx(cols, center.Col, center.Row)
	if !res.Features[k].Has(types.FeatureChokepoint) {
		t.Errorf("expected chokepoint at flanked cell, got features %v", res.Features[k].Names())
	}
}

func TestRidgelineRequiresAllNeighborsLower(t *testing.T) {
	in := flatInputs(types.Operational, 7, 7)
	cols, rows := in.Proj.Cols, in.Proj.Rows
	center := idx(cols, 3, 3)
	in.Elevation[center] = 100
	for _, nb := range neighborIndices(cols, rows, 3, 3) {
		in.Elevation[nb] = 50
	}
	res := Run(in)
	if !res.Features[center].Has(types.FeatureRidgeline) {
		t.Errorf("expected ridgeline at center cell, got %v", res.Features[center].Names())
	}
}

func neighborIndices(cols, rows, col, row int) []int {
	var out []int
	for _, nb := range hexmath.Neighbors(col, row) {
		if nb.Col < 0 || nb.Col >= cols || nb.Row < 0 || nb.Row >= rows {
			continue
		}
		out = append(out, idx(cols, nb.Col, nb.Row))
	}
	return out
}

func TestCliffsOnlyAtNonStrategicTiers(t *testing.T) {
	in := flatInputs(types.Strategic, 7, 7)
	cols := in.Proj.Cols
	center := idx(cols, 3, 3)
	in.Elevation[center] = 5000
	res := Run(in)
	if res.Features[center].Has(types.FeatureCliffs) {
		t.Error("expected no cliffs tag at strategic tier")
	}

	in2 := flatInputs(types.Operational, 7, 7)
	in2.CellSizeKm = 4 // an operational-tier cell size: threshold 250*4 = 1000 m
	in2.Elevation[center] = 5000
	res2 := Run(in2)
	if !res2.Features[center].Has(types.FeatureCliffs) {
		t.Error("expected cliffs tag at operational tier with a steep neighbor delta")
	}
}

func TestElevationAdvantageFlagsHighCell(t *testing.T) {
	in := flatInputs(types.Operational, 7, 7)
	cols := in.Proj.Cols
	center := idx(cols, 3, 3)
	in.Elevation[center] = 200
	res := Run(in)
	if !res.Features[center].Has(types.FeatureElevationAdvantage) {
		t.Errorf("expected elevation_advantage at the raised cell, got %v", res.Features[center].Names())
	}
}

func TestShorePortPromotesUrbanCellNextToWater(t *testing.T) {
	in := flatInputs(types.Operational, 7, 7)
	cols := in.Proj.Cols
	center := idx(cols, 3, 3)
	in.Terrain[center] = types.TerrainLightUrban
	nb := hexmath.Neighbors(3, 3)[0]
	in.Terrain[idx(cols, nb.Col, nb.Row)] = types.TerrainLake
	res := Run(in)
	if res.Infrastructure[center] != types.InfraPort {
		t.Errorf("expected port infrastructure at shore-adjacent urban cell, got %v", res.Infrastructure[center])
	}
}

func TestBuildingDensityOnlyAtSubTactical(t *testing.T) {
	in := flatInputs(types.Operational, 5, 5)
	cols := in.Proj.Cols
	center := idx(cols, 2, 2)
	in.BuildingCount[center] = 10
	res := Run(in)
	if res.Features[center].Has(types.FeatureBuildingDense) {
		t.Error("expected no building_dense tag above sub-tactical tier")
	}

	in2 := flatInputs(types.SubTactical, 5, 5)
	in2.BuildingCount[center] = 10
	res2 := Run(in2)
	if !res2.Features[center].Has(types.FeatureBuildingDense) {
		t.Error("expected building_dense at sub-tactical with high building count")
	}
}

package classifier

import (
	"testing"

	"github.com/MeKo-Tech/worldfusion/internal/featureparser"
	"github.com/MeKo-Tech/worldfusion/internal/hexproj"
	"github.com/MeKo-Tech/worldfusion/internal/landcover"
	"github.com/MeKo-Tech/worldfusion/internal/types"
	"github.com/MeKo-Tech/worldfusion/internal/vectorquery"
)

// testInputs uses a mid-latitude bbox (outside the desert heuristic's arid
// band) so elevation/terrain defaults stay open_ground unless a test
// deliberately drives them otherwise.
func testInputs(tier types.Tier) Inputs {
	bbox := types.BoundingBox{South: 40, North: 50, West: 0, East: 10}
	proj := hexproj.New(bbox, 20, 20)
	n := proj.Cols * proj.Rows

	lc := make([]landcover.CellSample, n)
	elev := make([]float64, n)
	for i := range lc {
		lc[i] = landcover.CellSample{Majority: landcover.ClassOpenGround, Mix: map[landcover.Class]float64{}}
	}

	return Inputs{
		Proj:       proj,
		Tier:       tier,
		CellSizeKm: tier.ChunkSideKm(),
		LandCover:  lc,
		Elevation:  elev,
		Features:   featureparser.FeatureSet{},
	}
}

func TestClassifyDefaultsToOpenGround(t *testing.T) {
	in := testInputs(types.Strategic)
	res := Classify(in)
	for i, terr := range res.Terrain {
		if terr != types.TerrainOpenGround {
			t.Fatalf("cell %d: expected open_ground default, got %v", i, terr)
		}
	}
}

func TestClassifyLandCoverMajorityDrivesBaseTerrain(t *testing.T) {
	in := testInputs(types.Strategic)
	for i := range in.LandCover {
		in.LandCover[i] = landcover.CellSample{Majority: landcover.ClassTreeCover, Mix: map[landcover.Class]float64{}}
	}
	res := Classify(in)
	if res.Terrain[0] != types.TerrainForest {
		t.Errorf("expected forest from tree-cover majority, got %v", res.Terrain[0])
	}
}

func TestClassifyUrbanEscalationFromBuiltUpMix(t *testing.T) {
	in := testInputs(types.Strategic)
	// Majority land cover is non-urban grassland; escalation must come from
	// the built-up mix fraction alone (spec.md §4.8 step 3), not the
	// majority-class mapping in step 2.
	for i := range in.LandCover {
		in.LandCover[i] = landcover.CellSample{Majority: landcover.ClassGrassland, Mix: map[landcover.Class]float64{landcover.ClassBuiltUp: 0.5}}
	}
	res := Classify(in)
	if res.Terrain[0] != types.TerrainDenseUrban {
		t.Errorf("expected dense_urban at 0.5 built-up mix, got %v", res.Terrain[0])
	}
}

func TestClassifyTownFeatureInBuiltUpMixBand(t *testing.T) {
	in := testInputs(types.Strategic)
	for i := range in.LandCover {
		in.LandCover[i] = landcover.CellSample{Majority: landcover.ClassOpenGround, Mix: map[landcover.Class]float64{landcover.ClassBuiltUp: 0.1}}
	}
	res := Classify(in)
	if !res.Features[0].Has(types.FeatureTown) {
		t.Errorf("expected town feature at 0.1 built-up mix, got features %v", res.Features[0].Names())
	}
	if res.Terrain[0].IsUrban() {
		t.Errorf("expected non-urban terrain at 0.1 built-up mix, got %v", res.Terrain[0])
	}
}

func TestClassifyElevationPromotesToMountainAndPeak(t *testing.T) {
	// Arid-band bbox (|lat|<35) so open_ground runs the arid elevation
	// ladder: >2500 peak, >1500 mountain, >800 highland (spec.md §4.8 step 6).
	bbox := types.BoundingBox{South: 0, North: 10, West: 0, East: 10}
	proj := hexproj.New(bbox, 20, 20)
	n := proj.Cols * proj.Rows
	lc := make([]landcover.CellSample, n)
	for i := range lc {
		lc[i] = landcover.CellSample{Majority: landcover.ClassOpenGround, Mix: map[landcover.Class]float64{}}
	}
	elev := make([]float64, n)
	elev[0] = 2000

	in := Inputs{Proj: proj, Tier: types.Strategic, LandCover: lc, Elevation: elev, Features: featureparser.FeatureSet{}}
	res := Classify(in)
	if res.Terrain[0] != types.TerrainMountain {
		t.Errorf("expected mountain at 2000m in arid band, got %v", res.Terrain[0])
	}

	elev2 := make([]float64, n)
	elev2[0] = 3000
	in2 := Inputs{Proj: proj, Tier: types.Strategic, LandCover: lc, Elevation: elev2, Features: featureparser.FeatureSet{}}
	res2 := Classify(in2)
	if res2.Terrain[0] != types.TerrainPeak {
		t.Errorf("expected peak at 3000m in arid band, got %v", res2.Terrain[0])
	}
}

func TestClassifyDesertHeuristicAtLowLatitude(t *testing.T) {
	bbox := types.BoundingBox{South: -10, North: 10, West: 0, East: 20}
	proj := hexproj.New(bbox, 20, 20)
	n := proj.Cols * proj.Rows
	lc := make([]landcover.CellSample, n)
	for i := range lc {
		lc[i] = landcover.CellSample{Majority: landcover.ClassBareSparse, Mix: map[landcover.Class]float64{}}
	}
	in := Inputs{Proj: proj, Tier: types.Strategic, LandCover: lc, Elevation: make([]float64, n), Features: featureparser.FeatureSet{}}
	res := Classify(in)
	// center cell should be near equator, well within |lat|<35.
	mid := idx(proj.Cols, proj.Cols/2, proj.Rows/2)
	if res.Terrain[mid] != types.TerrainDesert {
		t.Errorf("expected desert at low-latitude bare-sparse cell, got %v", res.Terrain[mid])
	}
}

func TestClassifyDamSurvivesOnlyAdjacentToLakeAtStrategic(t *testing.T) {
	in := testInputs(types.Strategic)
	lon, lat := in.Proj.CellCenter(5, 5)
	in.Features.DamNodes = []featureparser.DamNode{{Point: vectorquery.Point{Lat: lat, Lon: lon}}}
	res := Classify(in)

	k := idx(in.Proj.Cols, 5, 5)
	if res.Infrastructure[k] == types.InfraDam {
		t.Error("expected dam dropped at strategic tier when not adjacent to a lake cell")
	}
}

func TestClassifyRoadLineBecomesRoadInfrastructure(t *testing.T) {
	in := testInputs(types.Strategic)
	lon0, lat0 := in.Proj.CellCenter(2, 2)
	lon1, lat1 := in.Proj.CellCenter(2, 3)
	in.Features.InfraLines = []featureparser.InfraLine{
		{Kind: "residential", Nodes: []vectorquery.Point{{Lat: lat0, Lon: lon0}, {Lat: lat1, Lon: lon1}}},
	}
	res := Classify(in)
	k := idx(in.Proj.Cols, 2, 2)
	if res.Infrastructure[k] != types.InfraRoad {
		t.Errorf("expected road infrastructure at residential node cell, got %v", res.Infrastructure[k])
	}
}

func TestClassifyMotorwayLineBecomesHighwayInfrastructure(t *testing.T) {
	in := testInputs(types.Strategic)
	lon0, lat0 := in.Proj.CellCenter(2, 2)
	lon1, lat1 := in.Proj.CellCenter(2, 3)
	in.Features.InfraLines = []featureparser.InfraLine{
		{Kind: "motorway", Nodes: []vectorquery.Point{{Lat: lat0, Lon: lon0}, {Lat: lat1, Lon: lon1}}},
	}
	res := Classify(in)
	k := idx(in.Proj.Cols, 2, 2)
	if res.Infrastructure[k] != types.InfraHighway {
		t.Errorf("expected highway infrastructure at motorway node cell, got %v", res.Infrastructure[k])
	}
}

func TestClassifyPlaceNodeSetsSettlementName(t *testing.T) {
	in := testInputs(types.Strategic)
	lon, lat := in.Proj.CellCenter(7, 7)
	in.Features.PlaceNodes = []featureparser.PlaceNode{{Point: vectorquery.Point{Lat: lat, Lon: lon}, Name: "Riverton", Rank: 2}}
	res := Classify(in)
	k := idx(in.Proj.Cols, 7, 7)
	if !res.Features[k].Has(types.FeatureSettlement) {
		t.Fatal("expected settlement feature at place node cell")
	}
	if res.FeatureNames[k]["settlement"] != "Riverton" {
		t.Errorf("expected settlement name Riverton, got %+v", res.FeatureNames[k])
	}
}

// Package classifier implements Classifier: merging land cover, OSM
// polygons (via multi-point point-in-polygon), elevation, and per-cell
// line/area accumulators into terrain, infrastructure, features, and
// feature names for every grid cell (spec.md §4.8).
package classifier

import (
	"github.com/MeKo-Tech/worldfusion/internal/featureparser"
	"github.com/MeKo-Tech/worldfusion/internal/hexmath"
	"github.com/MeKo-Tech/worldfusion/internal/hexproj"
	"github.com/MeKo-Tech/worldfusion/internal/landcover"
	"github.com/MeKo-Tech/worldfusion/internal/rasterizer"
	"github.com/MeKo-Tech/worldfusion/internal/types"
	"github.com/MeKo-Tech/worldfusion/internal/vectorquery"
)

// Inputs is the fully-materialized per-generation snapshot the classifier
// consumes; all four sources (elevation, land cover, vector features,
// gazetteer matches) must already be resolved before Classify runs
// (spec.md §5 "classifier sees a consistent snapshot").
type Inputs struct {
	Proj       *hexproj.Projection
	Tier       types.Tier
	CellSizeKm float64
	// LandCover and Elevation are row-major, length Proj.Cols*Proj.Rows.
	LandCover []landcover.CellSample
	Elevation []float64
	Features  featureparser.FeatureSet
	// NavigableMatched reports whether the gazetteer resolved a waterway
	// name to a navigable river. Nil means no gazetteer matches available.
	NavigableMatched func(name string) bool
}

// Result holds the classifier's flat, cols*rows-indexed output arrays plus
// the auxiliary counts PostProcessor needs (spec.md §4.9).
type Result struct {
	Terrain        []types.Terrain
	Infrastructure []types.Infrastructure
	Features       []types.FeatureSet
	FeatureNames   []map[string]string
	BuiltUpMix     []float64
	RoadLineCount  []int
	BuildingCount  []int
}

func idx(cols, col, row int) int { return row*cols + col }

// Classify runs the ordered per-cell decision process (spec.md §4.8 steps
// 1-9) over every cell in the grid.
func Classify(in Inputs) Result {
	cols, rows := in.Proj.Cols, in.Proj.Rows
	n := cols * rows

	res := Result{
		Terrain:        make([]types.Terrain, n),
		Infrastructure: make([]types.Infrastructure, n),
		Features:       make([]types.FeatureSet, n),
		FeatureNames:   make([]map[string]string, n),
		BuiltUpMix:     make([]float64, n),
		RoadLineCount:  make([]int, n),
		BuildingCount:  make([]int, n),
	}

	acc := buildAccumulators(in)

	// Raw OSM terrain tallies per cell, computed once so step 1/2 can share
	// them without re-sampling.
	osmTerrain := make([]types.Terrain, n)
	osmCount := make([]int, n)
	osmSamples := make([]int, n)
	if in.Tier != types.SubTactical && acc.terrainIdx != nil {
		sampleOSMTerrainVote(in, acc, osmTerrain, osmCount, osmSamples)
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			_, lat := in.Proj.CellCenter(col, row)

			lc := in.LandCover[k]
			builtUpMix := lc.Mix[landcover.ClassBuiltUp]
			res.BuiltUpMix[k] = builtUpMix

			terrain := classifyTerrain(in, lc, builtUpMix, osmTerrain[k], osmCount[k], osmSamples[k], lat, acc, k)
			res.Terrain[k] = terrain
		}
	}

	// Step 6 modifiers need finalized base terrain plus elevation, so they
	// run in a second pass once every cell's base terrain is set; elevation
	// modifiers don't feed back into the base terrain decision.
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			res.Terrain[k] = applyElevationModifier(res.Terrain[k], in.Elevation[k], lat35(in.Proj, col, row), in.Tier)
		}
	}

	// Strategic-tier dam filter: only dams adjacent to a lake-class cell
	// survive (spec.md §4.8 "Dam semantics at strategic tier defer...").
	if in.Tier == types.Strategic {
		filterDamsNotAdjacentToLake(acc, res.Terrain, cols, rows)
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			infra, plantTouched := selectInfrastructure(in, acc, res.Terrain[k], col, row, k)
			res.Infrastructure[k] = infra
			res.BuildingCount[k] = acc.buildingCount[k]
			res.RoadLineCount[k] = acc.roadLineCount[k]

			features, names := accumulateFeatures(in, acc, res.Terrain[k], res.BuiltUpMix[k], infra, plantTouched, k)
			res.Features[k] = features
			res.FeatureNames[k] = names
		}
	}

	return res
}

func lat35(proj *hexproj.Projection, col, row int) float64 {
	_, lat := proj.CellCenter(col, row)
	return lat
}

// classifyTerrain runs steps 1-5 of spec.md §4.8 for a single cell.
func classifyTerrain(in Inputs, lc landcover.CellSample, builtUpMix float64, osmTerrain types.Terrain, osmCount, osmSamples int, lat float64, acc *accumulators, k int) types.Terrain {
	lcTerrain := terrainFromLandCover(lc.Majority)

	var base types.Terrain
	if osmSamples > 0 && float64(osmCount)/float64(osmSamples) >= 0.2 {
		base = osmTerrain
		// Zoning-artifact revert: OSM labels urban but land cover disagrees.
		if base.IsUrban() && builtUpMix < 0.05 {
			base = lcTerrain
		}
	} else {
		base = lcTerrain
	}

	// Step 3: urban escalation from land-cover mix.
	if !base.IsUrban() {
		switch {
		case in.Tier == types.SubTactical:
			// Mix is too uniform at sub-tactical; leave urban escalation to
			// OSM landuse/buildings only.
		case builtUpMix >= 0.45:
			base = types.TerrainDenseUrban
		case builtUpMix >= 0.20:
			base = types.TerrainLightUrban
		case osmTerrain.IsUrban() && builtUpMix >= 0.15:
			base = types.TerrainLightUrban
		case osmTerrain.IsUrban() && builtUpMix >= 0.10:
			base = types.TerrainLightUrban
		}
	} else if in.Tier == types.SubTactical && base == types.TerrainLightUrban && builtUpMix < 0.20 {
		// Sub-tactical mix-driven light_urban reverts; OSM tags re-decide it.
		if !(osmSamples > 0 && float64(osmCount)/float64(osmSamples) >= 0.2 && osmTerrain.IsUrban()) {
			base = types.TerrainOpenGround
		}
	}

	// Step 4: water refinement. A land-cover lake with an OSM waterway
	// present is promoted to river at tactical and finer.
	if base == types.TerrainLake && in.Tier <= types.Tactical && acc.waterLineHit[k] {
		base = types.TerrainRiver
	}

	// Step 5: desert heuristic.
	if base == types.TerrainOpenGround && isAridLat(lat) && isBareClass(lc.Majority) {
		base = types.TerrainDesert
	}

	return base
}

// applyElevationModifier runs step 6 of spec.md §4.8.
func applyElevationModifier(base types.Terrain, elevation float64, lat float64, tier types.Tier) types.Terrain {
	if base.IsWater() || base.IsUrban() {
		return base
	}
	if base == types.TerrainFarmland || base == types.TerrainWetland || base == types.TerrainIce {
		return base
	}

	arid := isAridLat(lat) && (base == types.TerrainDesert || base == types.TerrainOpenGround)
	if arid {
		switch {
		case elevation > 2500:
			return types.TerrainPeak
		case elevation > 1500:
			return types.TerrainMountain
		case elevation > 800:
			return types.TerrainHighland
		default:
			return types.TerrainDesert
		}
	}

	isForest := base == types.TerrainForest || base == types.TerrainDenseForest
	switch {
	case elevation > 1500:
		return types.TerrainPeak
	case elevation > 800:
		if isForest {
			return types.TerrainMountainForest
		}
		return types.TerrainMountain
	case elevation > 500:
		if isForest {
			return types.TerrainMountainForest
		}
		return types.TerrainHighland
	default:
		return base
	}
}

// selectInfrastructure runs step 7 of spec.md §4.8 for a single cell. It
// also reports whether any power plant polygon touched the cell,
// regardless of whether it won the priority contest, so step 8 can still
// surface the power_plant feature tag.
func selectInfrastructure(in Inputs, acc *accumulators, terrain types.Terrain, col, row int, k int) (types.Infrastructure, bool) {
	best := types.InfraNone
	plantTouched := false

	if kind := acc.centroidInfra[k]; kind.Priority() > best.Priority() {
		best = kind
	}

	if acc.infraIdx != nil {
		points := in.Proj.CellSamplePointsLonLat(col, row, 5)
		for _, pt := range points {
			for _, h := range acc.infraIdx.QueryPoint(pt.Lat, pt.Lon) {
				plantTouched = true
				if acc.infraKinds[h].Priority() > best.Priority() {
					best = acc.infraKinds[h]
				}
			}
		}
	}

	if kind := acc.infraLineKind[k]; kind.Priority() > best.Priority() {
		best = kind
	}

	if acc.damHit[k] && best == types.InfraNone {
		best = types.InfraDam
	}

	if acc.infraLineBridge[k] && terrain.IsWater() {
		best = types.InfraBridge
	}

	return best, plantTouched
}

// accumulateFeatures runs steps 8-9 of spec.md §4.8 for a single cell.
func accumulateFeatures(in Inputs, acc *accumulators, terrain types.Terrain, builtUpMix float64, infra types.Infrastructure, plantTouched bool, k int) (types.FeatureSet, map[string]string) {
	var fs types.FeatureSet
	names := make(map[string]string)

	if acc.towerHit[k] {
		fs = fs.With(types.FeatureTower)
	}
	if acc.barrierHit[k] {
		fs = fs.With(types.FeatureBarrier)
	}
	if acc.hedgeHit[k] {
		fs = fs.With(types.FeatureHedgerow)
	}
	if acc.pipelineHit[k] {
		fs = fs.With(types.FeaturePipeline)
	}
	if acc.beachHit[k] {
		fs = fs.With(types.FeatureBeach)
	}
	if acc.infraLineTunnel[k] && (terrain == types.TerrainMountain || terrain == types.TerrainPeak || terrain == types.TerrainHighland || terrain.IsWater()) {
		fs = fs.With(types.FeatureTunnel)
	}
	if plantTouched {
		fs = fs.With(types.FeaturePowerPlant)
	}
	if acc.streamHit[k] {
		fs = fs.With(types.FeatureStream)
	}

	// Named waterways: the first match that qualifies wins naming.
	var navName string
	for _, nl := range acc.navigableHits[k] {
		matched := nl.Named && in.NavigableMatched != nil && in.NavigableMatched(nl.ActualName)
		if !qualifiesNavigable(nl, in.Tier, terrain, matched) {
			continue
		}
		fs = fs.With(types.FeatureNavigableWaterway)
		if navName == "" && nl.ActualName != "" {
			navName = nl.ActualName
		}
	}
	if navName != "" {
		names["navigable_waterway"] = navName
	}

	// town: built-up mix in [0.05, 0.20) and not already an urban terrain.
	if !terrain.IsUrban() && builtUpMix >= 0.05 && builtUpMix < 0.20 {
		fs = fs.With(types.FeatureTown)
	}

	if place := acc.placeAt[k]; place != nil {
		fs = fs.With(types.FeatureSettlement)
		switch {
		case terrain.IsUrban():
			names[terrain.String()] = place.Name
		case fs.Has(types.FeatureTown):
			names["town"] = place.Name
		default:
			names["settlement"] = place.Name
		}
	}

	if in.Tier == types.SubTactical {
		if acc.buildingCount[k] > 0 && infra == types.InfraNone {
			fs = fs.With(types.FeatureBuildingSparse)
		}
	}

	return fs, names
}

// qualifiesNavigable implements invariant (4): tagged or gazetteer-matched
// waterways always qualify; at sub-tactical/tactical, presence alone
// qualifies; at operational/strategic, desert (wadi) and peak/mountain
// (alpine gorge) terrain is excluded unless tagged or matched.
func qualifiesNavigable(nl featureparser.NavigableLine, tier types.Tier, terrain types.Terrain, matched bool) bool {
	if nl.Tagged || matched {
		return true
	}
	if tier == types.SubTactical || tier == types.Tactical {
		return true
	}
	if terrain == types.TerrainDesert || terrain == types.TerrainPeak || terrain == types.TerrainMountain {
		return false
	}
	return true
}

func filterDamsNotAdjacentToLake(acc *accumulators, terrain []types.Terrain, cols, rows int) {
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			if !acc.damHit[k] {
				continue
			}
			if terrain[k] == types.TerrainLake {
				continue
			}
			adjacent := false
			for _, nb := range hexmath.Neighbors(col, row) {
				if nb.Col < 0 || nb.Col >= cols || nb.Row < 0 || nb.Row >= rows {
					continue
				}
				if terrain[idx(cols, nb.Col, nb.Row)] == types.TerrainLake {
					adjacent = true
					break
				}
			}
			if !adjacent {
				acc.damHit[k] = false
			}
		}
	}
}

func sampleOSMTerrainVote(in Inputs, acc *accumulators, osmTerrain []types.Terrain, osmCount, osmSamples []int) {
	cols, rows := in.Proj.Cols, in.Proj.Rows
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			points := in.Proj.CellSamplePointsLonLat(col, row, 5)
			osmSamples[k] = len(points)

			tally := make(map[types.Terrain]int)
			for _, pt := range points {
				hits := acc.terrainIdx.QueryPoint(pt.Lat, pt.Lon)
				bestPriority := -1
				var bestTerrain types.Terrain
				for _, h := range hits {
					if acc.terrainPriorities[h] > bestPriority {
						bestPriority = acc.terrainPriorities[h]
						bestTerrain = acc.terrainTerrains[h]
					}
				}
				if bestPriority >= 0 {
					tally[bestTerrain]++
				}
			}
			dominant := types.TerrainOpenGround
			dominantCount := 0
			for t, c := range tally {
				if c > dominantCount {
					dominant, dominantCount = t, c
				}
			}
			osmTerrain[k] = dominant
			osmCount[k] = dominantCount
		}
	}
}

// vqToRasterNodes converts vectorquery geometry to rasterizer nodes.
func vqToRasterNodes(pts []vectorquery.Point) []rasterizer.Node {
	out := make([]rasterizer.Node, len(pts))
	for i, p := range pts {
		out[i] = rasterizer.Node{Lon: p.Lon, Lat: p.Lat}
	}
	return out
}

func ringCentroid(ring []vectorquery.Point) vectorquery.Point {
	if len(ring) == 0 {
		return vectorquery.Point{}
	}
	n := len(ring)
	if ring[0] == ring[n-1] {
		n--
	}
	if n <= 0 {
		n = len(ring)
	}
	var sumLat, sumLon float64
	for i := 0; i < n; i++ {
		sumLat += ring[i].Lat
		sumLon += ring[i].Lon
	}
	return vectorquery.Point{Lat: sumLat / float64(n), Lon: sumLon / float64(n)}
}

// Package postprocess implements PostProcessor: the ordered emergent-
// attribute passes that run over the classifier's flat per-cell arrays
// after classification finishes (spec.md §4.9).
package postprocess

import (
	"math"

	"github.com/MeKo-Tech/worldfusion/internal/hexmath"
	"github.com/MeKo-Tech/worldfusion/internal/hexproj"
	"github.com/MeKo-Tech/worldfusion/internal/types"
)

// Inputs is the classifier's output plus the auxiliary counts the passes
// need. All slices are row-major, length Proj.Cols*Proj.Rows.
type Inputs struct {
	Proj              *hexproj.Projection
	Tier              types.Tier
	CellSizeKm        float64
	Terrain           []types.Terrain
	Infrastructure    []types.Infrastructure
	Features          []types.FeatureSet
	Elevation         []float64 // meters; 0 where unknown
	ElevationCoverage float64   // fraction of cells with a real elevation sample
	RoadLineCount     []int
	BuildingCount     []int
}

// Result holds the updated terrain/infrastructure/features arrays after all
// passes, plus the derived slope angle PostProcessor computes for the codec
// (spec.md §4.10 byte 24).
type Result struct {
	Terrain        []types.Terrain
	Infrastructure []types.Infrastructure
	Features       []types.FeatureSet
	SlopeAngle     []uint8
}

func idx(cols, col, row int) int { return row*cols + col }

// Run executes the eleven ordered passes of spec.md §4.9, then merges the
// legacy attribute set into Features (Cell.MergeAttributes's semantics,
// folded in directly here since PostProcessor is the only writer of this
// set before a Cell is ever materialized).
func Run(in Inputs) Result {
	n := in.Proj.Cols * in.Proj.Rows
	res := Result{
		Terrain:        append([]types.Terrain(nil), in.Terrain...),
		Infrastructure: append([]types.Infrastructure(nil), in.Infrastructure...),
		Features:       append([]types.FeatureSet(nil), in.Features...),
		SlopeAngle:     make([]uint8, n),
	}
	attrs := make([]types.FeatureSet, n)

	oceanFloodFill(&res, in)
	roadDensityUrban(&res, in)
	chokepoint(&res, in, attrs)
	landingZone(&res, in, attrs)
	cliffs(&res, in, attrs)
	ridgeline(&res, in, attrs)
	treeline(&res, in, attrs)
	slopeTags(&res, in, attrs)
	buildingDensity(&res, in, attrs)
	elevationAdvantage(&res, in, attrs)
	shorePort(&res, in)

	for i := range res.Features {
		res.Features[i] |= attrs[i]
	}
	return res
}

// impassable reports whether terrain blocks movement for the chokepoint
// pass's flanking test (spec.md §4.9 "impassable (water/mountain/peak)").
func impassable(t types.Terrain) bool {
	return t.IsWater() || t == types.TerrainMountain || t == types.TerrainPeak
}

// stepDirection walks n hex steps from (col,row) along the fixed clockwise
// direction index dir (0-5). Direction indices are stable in axial space
// regardless of row parity, so repeated single-step neighbor lookups in the
// same index walk a straight line.
func stepDirection(col, row, dir, steps int) (int, int) {
	for i := 0; i < steps; i++ {
		nb := hexmath.Neighbors(col, row)[dir]
		col, row = nb.Col, nb.Row
	}
	return col, row
}

func inBounds(cols, rows, col, row int) bool {
	return col >= 0 && col < cols && row >= 0 && row < rows
}

// oceanFloodFill seeds from border cells that look like open water at sea
// level and floods the contiguous region via 6-neighbor BFS, then derives
// land distance via a second BFS from every non-ocean cell to relabel the
// flooded region as deep_water (land distance >3) or coastal_water
// (spec.md §4.9). Only runs when elevation coverage exceeds 50%.
func oceanFloodFill(res *Result, in Inputs) {
	if in.ElevationCoverage <= 0.5 {
		return
	}
	cols, rows := in.Proj.Cols, in.Proj.Rows
	n := cols * rows

	candidate := func(k int) bool {
		t := res.Terrain[k]
		return (t == types.TerrainOpenGround || t == types.TerrainLake || t == types.TerrainDesert) && in.Elevation[k] <= 1
	}

	ocean := make([]bool, n)
	var queue []hexmath.Offset
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			if col != 0 && row != 0 && col != cols-1 && row != rows-1 {
				continue
			}
			k := idx(cols, col, row)
			if candidate(k) && !ocean[k] {
				ocean[k] = true
				queue = append(queue, hexmath.Offset{Col: col, Row: row})
			}
		}
	}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, nb := range hexmath.Neighbors(c.Col, c.Row) {
			if !inBounds(cols, rows, nb.Col, nb.Row) {
				continue
			}
			k := idx(cols, nb.Col, nb.Row)
			if ocean[k] || !candidate(k) {
				continue
			}
			ocean[k] = true
			queue = append(queue, nb)
		}
	}
	if !anyTrue(ocean) {
		return
	}

	const capDist = 4 // only need to distinguish "more than 3" from the rest
	dist := make([]int, n)
	for i := range dist {
		dist[i] = -1
	}
	var landQueue []hexmath.Offset
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			if !ocean[k] {
				dist[k] = 0
				landQueue = append(landQueue, hexmath.Offset{Col: col, Row: row})
			}
		}
	}
	for len(landQueue) > 0 {
		c := landQueue[0]
		landQueue = landQueue[1:]
		k := idx(cols, c.Col, c.Row)
		if dist[k] >= capDist {
			continue
		}
		for _, nb := range hexmath.Neighbors(c.Col, c.Row) {
			if !inBounds(cols, rows, nb.Col, nb.Row) {
				continue
			}
			nk := idx(cols, nb.Col, nb.Row)
			if dist[nk] != -1 {
				continue
			}
			dist[nk] = dist[k] + 1
			landQueue = append(landQueue, nb)
		}
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			if !ocean[k] {
				continue
			}
			if dist[k] > 3 || dist[k] == -1 {
				res.Terrain[k] = types.TerrainDeepWater
			} else {
				res.Terrain[k] = types.TerrainCoastalWater
			}
		}
	}
}

func anyTrue(bs []bool) bool {
	for _, b := range bs {
		if b {
			return true
		}
	}
	return false
}

// roadDensityUrban promotes open_ground/light_veg/farmland cells to
// dense_urban when the rasterized road count per cell exceeds a
// scale-adaptive threshold and enough neighbors clear the same bar
// (spec.md §4.9 "Road-density urban").
func roadDensityUrban(res *Result, in Inputs) {
	if in.RoadLineCount == nil {
		return
	}
	cols, rows := in.Proj.Cols, in.Proj.Rows
	// Smaller cells see fewer road crossings per cell at the same real-world
	// density, so the threshold scales down with cell size.
	threshold := int(math.Ceil(4.0 / math.Max(in.CellSizeKm, 0.25)))
	if threshold < 2 {
		threshold = 2
	}

	compatible := func(t types.Terrain) bool {
		return t == types.TerrainOpenGround || t == types.TerrainLightVeg || t == types.TerrainFarmland
	}
	dense := func(k int) bool { return in.RoadLineCount[k] >= threshold }

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			if !compatible(res.Terrain[k]) || !dense(k) {
				continue
			}
			denseNeighbors := 0
			for _, nb := range hexmath.Neighbors(col, row) {
				if !inBounds(cols, rows, nb.Col, nb.Row) {
					continue
				}
				if dense(idx(cols, nb.Col, nb.Row)) {
					denseNeighbors++
				}
			}
			if denseNeighbors >= 2 {
				res.Terrain[k] = types.TerrainDenseUrban
			}
		}
	}
}

// chokepoint flags a passable cell flanked, on two opposing hex directions,
// by impassable cells two steps out in each direction (spec.md §4.9).
func chokepoint(res *Result, in Inputs, attrs []types.FeatureSet) {
	cols, rows := in.Proj.Cols, in.Proj.Rows
	opposing := [3][2]int{{0, 3}, {1, 4}, {2, 5}}

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			if impassable(res.Terrain[k]) {
				continue
			}
			for _, pair := range opposing {
				c1, r1 := stepDirection(col, row, pair[0], 2)
				c2, r2 := stepDirection(col, row, pair[1], 2)
				if !inBounds(cols, rows, c1, r1) || !inBounds(cols, rows, c2, r2) {
					continue
				}
				if impassable(res.Terrain[idx(cols, c1, r1)]) && impassable(res.Terrain[idx(cols, c2, r2)]) {
					attrs[k] = attrs[k].With(types.FeatureChokepoint)
					break
				}
			}
		}
	}
}

func openFlatNonUrban(t types.Terrain) bool {
	return !t.IsWater() && !t.IsUrban() &&
		(t == types.TerrainOpenGround || t == types.TerrainLightVeg || t == types.TerrainFarmland || t == types.TerrainDesert)
}

// landingZone flags open/flat/non-urban cells whose steepest neighbor
// elevation delta implies under 5 degrees of slope; at tactical and finer,
// a lone candidate isn't enough and a neighboring candidate is required
// too (spec.md §4.9).
func landingZone(res *Result, in Inputs, attrs []types.FeatureSet) {
	cols, rows := in.Proj.Cols, in.Proj.Rows
	distM := in.CellSizeKm * 1000
	if distM <= 0 {
		distM = 1000
	}
	maxDelta := math.Tan(5*math.Pi/180) * distM

	isCandidate := make([]bool, cols*rows)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			if !openFlatNonUrban(res.Terrain[k]) {
				continue
			}
			maxD := 0.0
			for _, nb := range hexmath.Neighbors(col, row) {
				if !inBounds(cols, rows, nb.Col, nb.Row) {
					continue
				}
				d := math.Abs(in.Elevation[k] - in.Elevation[idx(cols, nb.Col, nb.Row)])
				if d > maxD {
					maxD = d
				}
			}
			isCandidate[k] = maxD < maxDelta
		}
	}

	fine := in.Tier == types.Tactical || in.Tier == types.SubTactical
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			if !isCandidate[k] {
				continue
			}
			if !fine {
				attrs[k] = attrs[k].With(types.FeatureLandingZone)
				continue
			}
			for _, nb := range hexmath.Neighbors(col, row) {
				if !inBounds(cols, rows, nb.Col, nb.Row) {
					continue
				}
				if isCandidate[idx(cols, nb.Col, nb.Row)] {
					attrs[k] = attrs[k].With(types.FeatureLandingZone)
					break
				}
			}
		}
	}
}

// cliffs adds the cliffs tag at non-strategic tiers when a neighbor
// elevation delta meets or exceeds 250 * cell_km meters (spec.md §4.9).
func cliffs(res *Result, in Inputs, attrs []types.FeatureSet) {
	if in.Tier == types.Strategic {
		return
	}
	cols, rows := in.Proj.Cols, in.Proj.Rows
	threshold := 250 * in.CellSizeKm

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			for _, nb := range hexmath.Neighbors(col, row) {
				if !inBounds(cols, rows, nb.Col, nb.Row) {
					continue
				}
				d := math.Abs(in.Elevation[k] - in.Elevation[idx(cols, nb.Col, nb.Row)])
				if d >= threshold {
					attrs[k] = attrs[k].With(types.FeatureCliffs)
					break
				}
			}
		}
	}
}

// ridgeline flags non-water cells at least 50m high with every valid
// neighbor at least 30m lower (spec.md §4.9).
func ridgeline(res *Result, in Inputs, attrs []types.FeatureSet) {
	cols, rows := in.Proj.Cols, in.Proj.Rows
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			if res.Terrain[k].IsWater() || in.Elevation[k] < 50 {
				continue
			}
			allLower := true
			hasNeighbor := false
			for _, nb := range hexmath.Neighbors(col, row) {
				if !inBounds(cols, rows, nb.Col, nb.Row) {
					continue
				}
				hasNeighbor = true
				if in.Elevation[k]-in.Elevation[idx(cols, nb.Col, nb.Row)] < 30 {
					allLower = false
					break
				}
			}
			if hasNeighbor && allLower {
				attrs[k] = attrs[k].With(types.FeatureRidgeline)
			}
		}
	}
}

func isForestTerrain(t types.Terrain) bool {
	return t == types.TerrainForest || t == types.TerrainDenseForest || t == types.TerrainMountainForest
}

// treeline flags forest cells adjacent to open cells, at tactical and finer
// (spec.md §4.9).
func treeline(res *Result, in Inputs, attrs []types.FeatureSet) {
	if in.Tier != types.Tactical && in.Tier != types.SubTactical {
		return
	}
	cols, rows := in.Proj.Cols, in.Proj.Rows
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			if !isForestTerrain(res.Terrain[k]) {
				continue
			}
			for _, nb := range hexmath.Neighbors(col, row) {
				if !inBounds(cols, rows, nb.Col, nb.Row) {
					continue
				}
				if openFlatNonUrban(res.Terrain[idx(cols, nb.Col, nb.Row)]) {
					attrs[k] = attrs[k].With(types.FeatureTreeline)
					break
				}
			}
		}
	}
}

// slopeTags computes the steepest neighbor slope angle (for the codec's
// slope_angle byte) and, at tactical and finer, adds slope_steep (>15 deg)
// or, sub-tactical only, slope_extreme (>30 deg) (spec.md §4.9).
func slopeTags(res *Result, in Inputs, attrs []types.FeatureSet) {
	cols, rows := in.Proj.Cols, in.Proj.Rows
	distM := in.CellSizeKm * 1000
	if distM <= 0 {
		distM = 1000
	}
	fine := in.Tier == types.Tactical || in.Tier == types.SubTactical

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			maxSlope := 0.0
			for _, nb := range hexmath.Neighbors(col, row) {
				if !inBounds(cols, rows, nb.Col, nb.Row) {
					continue
				}
				d := math.Abs(in.Elevation[k] - in.Elevation[idx(cols, nb.Col, nb.Row)])
				slope := math.Atan(d/distM) * 180 / math.Pi
				if slope > maxSlope {
					maxSlope = slope
				}
			}
			if maxSlope > 90 {
				maxSlope = 90
			}
			res.SlopeAngle[k] = uint8(maxSlope)

			if !fine {
				continue
			}
			if in.Tier == types.SubTactical && maxSlope > 30 {
				attrs[k] = attrs[k].With(types.FeatureSlopeExtreme)
			} else if maxSlope > 15 {
				attrs[k] = attrs[k].With(types.FeatureSlopeSteep)
			}
		}
	}
}

// buildingDensity marks building_dense at sub-tactical when the
// accumulated per-cell building polygon count clears a small density bar
// (spec.md §4.9). The classifier already tags building_sparse for any
// count above zero with no competing infrastructure; this pass is the
// denser tier above that.
func buildingDensity(res *Result, in Inputs, attrs []types.FeatureSet) {
	if in.Tier != types.SubTactical || in.BuildingCount == nil {
		return
	}
	for k, count := range in.BuildingCount {
		if count >= 3 {
			attrs[k] = attrs[k].With(types.FeatureBuildingDense)
		}
	}
}

// elevationAdvantage flags a cell at least 50m above the mean elevation of
// its valid neighbors (spec.md §4.9).
func elevationAdvantage(res *Result, in Inputs, attrs []types.FeatureSet) {
	cols, rows := in.Proj.Cols, in.Proj.Rows
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			sum, count := 0.0, 0
			for _, nb := range hexmath.Neighbors(col, row) {
				if !inBounds(cols, rows, nb.Col, nb.Row) {
					continue
				}
				sum += in.Elevation[idx(cols, nb.Col, nb.Row)]
				count++
			}
			if count == 0 {
				continue
			}
			if in.Elevation[k]-sum/float64(count) >= 50 {
				attrs[k] = attrs[k].With(types.FeatureElevationAdvantage)
			}
		}
	}
}

// shorePort promotes an urban cell adjacent to water with no prior
// infrastructure to port (spec.md §4.9).
func shorePort(res *Result, in Inputs) {
	cols, rows := in.Proj.Cols, in.Proj.Rows
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			k := idx(cols, col, row)
			if !res.Terrain[k].IsUrban() || res.Infrastructure[k] != types.InfraNone {
				continue
			}
			for _, nb := range hexmath.Neighbors(col, row) {
				if !inBounds(cols, rows, nb.Col, nb.Row) {
					continue
				}
				if res.Terrain[idx(cols, nb.Col, nb.Row)].IsWater() {
					res.Infrastructure[k] = types.InfraPort
					break
				}
			}
		}
	}
}

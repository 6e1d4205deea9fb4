package classifier

import (
	"github.com/paulmach/orb"

	"github.com/MeKo-Tech/worldfusion/internal/featureparser"
	"github.com/MeKo-Tech/worldfusion/internal/spatialindex"
	"github.com/MeKo-Tech/worldfusion/internal/types"
	"github.com/MeKo-Tech/worldfusion/internal/vectorquery"
)

// vqRingToOrb converts a closed lat/lon ring to an orb.Ring (lon, lat point
// order, matching spatialindex/orb convention).
func vqRingToOrb(ring []vectorquery.Point) orb.Ring {
	r := make(orb.Ring, len(ring))
	for i, p := range ring {
		r[i] = orb.Point{p.Lon, p.Lat}
	}
	return r
}

// terrainPolygonIndex builds a SpatialIndex over terrain areas plus
// parallel priority/terrain slices, for the OSM terrain vote (spec.md §4.8
// step 1).
func terrainPolygonIndex(areas []featureparser.TerrainArea, bbox types.BoundingBox) (*spatialindex.Index, []int, []types.Terrain) {
	polys := make([]orb.Polygon, 0, len(areas))
	priorities := make([]int, 0, len(areas))
	terrains := make([]types.Terrain, 0, len(areas))
	for _, a := range areas {
		if len(a.Ring) < 3 {
			continue
		}
		terrain, ok := terrainFromOSMTags(a.Tags)
		if !ok {
			continue
		}
		polys = append(polys, orb.Polygon{vqRingToOrb(a.Ring)})
		priorities = append(priorities, a.Priority)
		terrains = append(terrains, terrain)
	}
	return spatialindex.Build(polys, bbox, 0), priorities, terrains
}

// infraAreaIndex builds a SpatialIndex over power-plant areas with a
// parallel infrastructure kind slice, for the multi-point PIP infra pass
// (spec.md §4.8 step 7). Buildings and beaches are handled as density/
// feature accumulation rather than PIP-ranked infra, since they never win
// the single dominant infrastructure slot on their own.
func infraAreaIndex(plants []featureparser.PowerPlantArea, bbox types.BoundingBox) (*spatialindex.Index, []types.Infrastructure) {
	var polys []orb.Polygon
	var kinds []types.Infrastructure
	for _, p := range plants {
		if len(p.Ring) < 3 {
			continue
		}
		polys = append(polys, orb.Polygon{vqRingToOrb(p.Ring)})
		kinds = append(kinds, infrastructureFromPowerSource(p.Source))
	}
	return spatialindex.Build(polys, bbox, 0), kinds
}

package classifier

import (
	"github.com/MeKo-Tech/worldfusion/internal/featureparser"
	"github.com/MeKo-Tech/worldfusion/internal/hexproj"
	"github.com/MeKo-Tech/worldfusion/internal/rasterizer"
	"github.com/MeKo-Tech/worldfusion/internal/spatialindex"
	"github.com/MeKo-Tech/worldfusion/internal/types"
	"github.com/MeKo-Tech/worldfusion/internal/vectorquery"
)

// accumulators holds every per-cell structure derived from the raw feature
// set before the main classification loop runs: rasterized lines, PIP
// indices, and centroid-flagged area hits (spec.md §4.7/§4.8).
type accumulators struct {
	terrainIdx        *spatialindex.Index
	terrainPriorities []int
	terrainTerrains   []types.Terrain

	infraIdx   *spatialindex.Index // power plants
	infraKinds []types.Infrastructure

	centroidInfra   []types.Infrastructure
	infraLineKind   []types.Infrastructure
	infraLineBridge []bool
	infraLineTunnel []bool
	roadLineCount   []int

	waterLineHit  []bool
	streamHit     []bool
	navigableHits [][]featureparser.NavigableLine
	damHit        []bool
	barrierHit    []bool
	hedgeHit      []bool
	pipelineHit   []bool
	towerHit      []bool
	beachHit      []bool
	buildingCount []int
	placeAt       []*featureparser.PlaceNode
}

func buildAccumulators(in Inputs) *accumulators {
	cols, rows := in.Proj.Cols, in.Proj.Rows
	n := cols * rows

	terrainIdx, terrainPriorities, terrainTerrains := terrainPolygonIndex(in.Features.TerrainAreas, in.Proj.BBox)
	infraIdx, infraKinds := infraAreaIndex(in.Features.PowerPlantAreas, in.Proj.BBox)

	acc := &accumulators{
		terrainIdx:        terrainIdx,
		terrainPriorities: terrainPriorities,
		terrainTerrains:   terrainTerrains,
		infraIdx:          infraIdx,
		infraKinds:        infraKinds,
		centroidInfra:     make([]types.Infrastructure, n),
		infraLineKind:     make([]types.Infrastructure, n),
		infraLineBridge:   make([]bool, n),
		infraLineTunnel:   make([]bool, n),
		roadLineCount:     make([]int, n),
		waterLineHit:      make([]bool, n),
		streamHit:         make([]bool, n),
		navigableHits:     make([][]featureparser.NavigableLine, n),
		damHit:            make([]bool, n),
		barrierHit:        make([]bool, n),
		hedgeHit:          make([]bool, n),
		pipelineHit:       make([]bool, n),
		towerHit:          make([]bool, n),
		beachHit:          make([]bool, n),
		buildingCount:     make([]int, n),
		placeAt:           make([]*featureparser.PlaceNode, n),
	}

	for _, a := range in.Features.InfraAreas {
		centroid := ringCentroid(a.Ring)
		col, row, ok := in.Proj.GeoToCell(centroid.Lon, centroid.Lat)
		if !ok {
			continue
		}
		k := idx(cols, col, row)
		if kind := infrastructureFromAreaKind(a.Kind); kind.Priority() > acc.centroidInfra[k].Priority() {
			acc.centroidInfra[k] = kind
		}
	}

	for _, l := range in.Features.InfraLines {
		kind := infrastructureFromLineKind(l.Kind)
		for _, c := range rasterizer.Dedup(rasterizer.RasterizeWay(vqToRasterNodes(l.Nodes), in.Proj)) {
			if c.Col < 0 || c.Col >= cols || c.Row < 0 || c.Row >= rows {
				continue
			}
			k := idx(cols, c.Col, c.Row)
			if kind.Priority() > acc.infraLineKind[k].Priority() {
				acc.infraLineKind[k] = kind
			}
			if kind == types.InfraRoad {
				acc.roadLineCount[k]++
			}
			if l.Bridge {
				acc.infraLineBridge[k] = true
			}
			if l.Tunnel {
				acc.infraLineTunnel[k] = true
			}
		}
	}

	for _, w := range in.Features.WaterLines {
		markLine(in.Proj, cols, rows, w.Nodes, acc.waterLineHit)
	}
	for _, s := range in.Features.StreamLines {
		markLine(in.Proj, cols, rows, s.Nodes, acc.streamHit)
	}
	for _, b := range in.Features.BarrierLines {
		markLine(in.Proj, cols, rows, b.Nodes, acc.barrierHit)
	}
	for _, h := range in.Features.HedgeLines {
		markLine(in.Proj, cols, rows, h.Nodes, acc.hedgeHit)
	}
	for _, p := range in.Features.PipelineLines {
		markLine(in.Proj, cols, rows, p.Nodes, acc.pipelineHit)
	}

	for _, nl := range in.Features.NavigableLines {
		for _, c := range rasterizer.Dedup(rasterizer.RasterizeWay(vqToRasterNodes(nl.Nodes), in.Proj)) {
			if c.Col < 0 || c.Col >= cols || c.Row < 0 || c.Row >= rows {
				continue
			}
			k := idx(cols, c.Col, c.Row)
			acc.navigableHits[k] = append(acc.navigableHits[k], nl)
		}
	}

	for _, d := range in.Features.DamNodes {
		col, row, ok := in.Proj.GeoToCell(d.Point.Lon, d.Point.Lat)
		if !ok {
			continue
		}
		acc.damHit[idx(cols, col, row)] = true
	}

	for _, t := range in.Features.TowerNodes {
		col, row, ok := in.Proj.GeoToCell(t.Point.Lon, t.Point.Lat)
		if !ok {
			continue
		}
		acc.towerHit[idx(cols, col, row)] = true
	}

	for _, b := range in.Features.BeachAreas {
		centroid := ringCentroid(b.Ring)
		col, row, ok := in.Proj.GeoToCell(centroid.Lon, centroid.Lat)
		if !ok {
			continue
		}
		acc.beachHit[idx(cols, col, row)] = true
	}

	for _, b := range in.Features.BuildingAreas {
		centroid := ringCentroid(b.Ring)
		col, row, ok := in.Proj.GeoToCell(centroid.Lon, centroid.Lat)
		if !ok {
			continue
		}
		acc.buildingCount[idx(cols, col, row)]++
	}

	for _, p := range in.Features.PlaceNodes {
		col, row, ok := in.Proj.GeoToCell(p.Point.Lon, p.Point.Lat)
		if !ok {
			continue
		}
		k := idx(cols, col, row)
		place := p
		if acc.placeAt[k] == nil || place.Rank > acc.placeAt[k].Rank {
			acc.placeAt[k] = &place
		}
	}

	return acc
}

// markLine rasterizes nodes and flags every traversed in-bounds cell in hit.
func markLine(proj *hexproj.Projection, cols, rows int, nodes []vectorquery.Point, hit []bool) {
	for _, c := range rasterizer.Dedup(rasterizer.RasterizeWay(vqToRasterNodes(nodes), proj)) {
		if c.Col < 0 || c.Col >= cols || c.Row < 0 || c.Row >= rows {
			continue
		}
		hit[idx(cols, c.Col, c.Row)] = true
	}
}

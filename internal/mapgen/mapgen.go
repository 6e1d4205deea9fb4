// Package mapgen implements the single-map generation control flow
// (spec.md §2): HexProjection is constructed, ElevationSampler runs
// first, LandCoverSampler runs concurrently with VectorQueryPlanner
// (ocean chunks skipped from the elevation grid) and GazetteerResolver,
// FeatureParser normalizes the vector fetch, Classifier consumes the
// fully-materialized snapshot, and PostProcessor derives emergent
// attributes before the result is serialized.
package mapgen

import (
	"context"
	"fmt"
	"sync"

	"github.com/MeKo-Tech/worldfusion/internal/classifier"
	"github.com/MeKo-Tech/worldfusion/internal/elevation"
	"github.com/MeKo-Tech/worldfusion/internal/featureparser"
	"github.com/MeKo-Tech/worldfusion/internal/gazetteer"
	"github.com/MeKo-Tech/worldfusion/internal/genlog"
	"github.com/MeKo-Tech/worldfusion/internal/hexproj"
	"github.com/MeKo-Tech/worldfusion/internal/landcover"
	"github.com/MeKo-Tech/worldfusion/internal/postprocess"
	"github.com/MeKo-Tech/worldfusion/internal/types"
	"github.com/MeKo-Tech/worldfusion/internal/vectorquery"
)

// gazetteerMinLengthKm is the minimum named-river length the resolver
// queries for; spec.md leaves the exact threshold unspecified, and 10 km
// is a standalone choice: the classifier's navigability rules apply no
// length threshold (DESIGN.md).
const gazetteerMinLengthKm = 10.0

// maxCells is the LimitExceeded threshold (spec.md §7): grids larger than
// this are rejected at entry with no partial work.
const maxCells = 50_000

// Generator wires the per-generation components together. Fields left
// nil disable that stage's fetch: a nil Gazetteer skips river resolution
// (navigability then rests on OSM tags and the classifier's tier/terrain
// rules; no cell-span threshold is applied); a nil
// VectorClient skips the vector fetch entirely (terrain/elevation-only
// generation, used by tests and polar-cap patches).
type Generator struct {
	Elevation    *elevation.Sampler
	LandCover    *landcover.Sampler
	VectorClient vectorquery.Client
	Gazetteer    *gazetteer.Resolver
}

// Request describes one map generation.
type Request struct {
	BBox       types.BoundingBox
	Cols       int
	Rows       int
	CellSizeKm float64
}

// Map is the fully fused, flat cols*rows grid.
type Map struct {
	Proj       *hexproj.Projection
	Tier       types.Tier
	CellSizeKm float64
	Cells      []types.Cell // row-major, length Cols*Rows
}

func idx(cols, col, row int) int { return row*cols + col }

// Generate runs the full control-flow graph for one map and returns the
// fused grid plus the human-review log. A LimitExceeded or FatalError
// aborts with no partial map (spec.md §7); every other component failure
// is downgraded to a logged warning with a safe default.
func (g *Generator) Generate(ctx context.Context, req Request) (*Map, *genlog.Log, error) {
	log := genlog.New()

	if req.Cols <= 0 || req.Rows <= 0 {
		return nil, log, fmt.Errorf("mapgen: invalid grid dimensions %dx%d", req.Cols, req.Rows)
	}
	if req.Cols*req.Rows > maxCells {
		return nil, log, fmt.Errorf("mapgen: grid %dx%d exceeds the %d-cell limit", req.Cols, req.Rows, maxCells)
	}

	proj := hexproj.New(req.BBox, req.Cols, req.Rows)
	tier := types.TierFromCellSizeKm(req.CellSizeKm)
	log.Section("setup")
	log.Info("projection ready", "cols", proj.Cols, "rows", proj.Rows, "tier", tier.String())

	elevRes, err := g.sampleElevation(ctx, proj, log)
	if err != nil {
		return nil, log, fmt.Errorf("mapgen: elevation: %w", err)
	}

	var (
		lcSamples []landcover.CellSample
		vqResult  vectorquery.FetchResult
		rivers    []gazetteer.River
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		lcSamples = g.sampleLandCover(ctx, proj, tier, log)
	}()
	go func() {
		defer wg.Done()
		vqResult = g.fetchVector(ctx, req.BBox, req.CellSizeKm, elevRes, proj, log)
	}()
	go func() {
		defer wg.Done()
		rivers = g.resolveGazetteer(ctx, req.BBox, log)
	}()
	wg.Wait()

	log.Section("classify")
	features := featureparser.Parse(vqResult.Elements, tier)
	log.Detail("vector elements normalized",
		"terrain_areas", len(features.TerrainAreas), "infra_lines", len(features.InfraLines),
		"waterways", len(features.WaterLines)+len(features.NavigableLines),
		"place_nodes", len(features.PlaceNodes))

	navigableMatched := func(name string) bool {
		for _, r := range rivers {
			if r.Matches(name) {
				return true
			}
		}
		return false
	}

	classResult := classifier.Classify(classifier.Inputs{
		Proj:             proj,
		Tier:             tier,
		CellSizeKm:       req.CellSizeKm,
		LandCover:        lcSamples,
		Elevation:        elevRes.Elevations,
		Features:         features,
		NavigableMatched: navigableMatched,
	})
	log.OK("classification complete", "cells", len(classResult.Terrain))

	log.Section("postprocess")
	postResult := postprocess.Run(postprocess.Inputs{
		Proj:              proj,
		Tier:              tier,
		CellSizeKm:        req.CellSizeKm,
		Terrain:           classResult.Terrain,
		Infrastructure:    classResult.Infrastructure,
		Features:          classResult.Features,
		Elevation:         elevRes.Elevations,
		ElevationCoverage: elevRes.Coverage,
		RoadLineCount:     classResult.RoadLineCount,
		BuildingCount:     classResult.BuildingCount,
	})
	log.OK("post-processing complete")

	m := &Map{Proj: proj, Tier: tier, CellSizeKm: req.CellSizeKm}
	m.Cells = assembleCells(proj, classResult, postResult, elevRes)

	log.Section("summary")
	log.Info("generation complete", "cells", len(m.Cells))
	return m, log, nil
}

func (g *Generator) sampleElevation(ctx context.Context, proj *hexproj.Projection, log *genlog.Log) (elevation.Result, error) {
	log.Section("elevation")
	if g.Elevation == nil {
		log.Warn("no elevation sampler configured, defaulting to sea level")
		return elevation.Result{Elevations: make([]float64, proj.Cols*proj.Rows)}, nil
	}
	res, err := g.Elevation.SampleGrid(ctx, proj)
	if err != nil {
		return res, err
	}
	log.Info("elevation sampled", "coverage", res.Coverage)
	return res, nil
}

func (g *Generator) sampleLandCover(ctx context.Context, proj *hexproj.Projection, tier types.Tier, log *genlog.Log) []landcover.CellSample {
	log.Section("landcover")
	if g.LandCover == nil {
		log.Warn("no land cover sampler configured, defaulting every cell to open_ground")
		return make([]landcover.CellSample, proj.Cols*proj.Rows)
	}
	samples, err := g.LandCover.SampleGrid(ctx, proj, tier)
	if err != nil {
		log.Error("land cover sampling failed, defaulting to open_ground", "err", err)
		return make([]landcover.CellSample, proj.Cols*proj.Rows)
	}
	log.Info("land cover sampled", "cells", len(samples))
	return samples
}

func (g *Generator) fetchVector(ctx context.Context, bbox types.BoundingBox, cellSizeKm float64, elevRes elevation.Result, proj *hexproj.Projection, log *genlog.Log) vectorquery.FetchResult {
	log.Section("vector")
	if g.VectorClient == nil {
		log.Warn("no vector client configured, generating terrain/elevation only")
		return vectorquery.FetchResult{}
	}
	oceanTest := oceanChunkTester(elevRes, proj)
	planner := vectorquery.New(g.VectorClient, oceanTest, nil)
	result, err := planner.FetchBBox(ctx, bbox, cellSizeKm)
	if err != nil {
		log.Error("vector fetch failed, continuing with whatever was fetched so far", "err", err)
	}
	log.Info("vector fetch complete",
		"elements", len(result.Elements), "chunks_queried", result.ChunksQueried,
		"chunks_skipped_ocean", result.ChunksSkippedOcean, "chunks_terrain_only", result.ChunksFellBackToTerrainOnly)
	return result
}

func (g *Generator) resolveGazetteer(ctx context.Context, bbox types.BoundingBox, log *genlog.Log) []gazetteer.River {
	log.Section("gazetteer")
	if g.Gazetteer == nil {
		log.Warn("no gazetteer configured, navigability falls back to tag and tier/terrain rules")
		return nil
	}
	rivers, err := g.Gazetteer.ResolveRivers(ctx, bbox, gazetteerMinLengthKm)
	if err != nil {
		log.Warn("gazetteer lookup failed, navigability falls back to tag and tier/terrain rules", "err", err)
		return nil
	}
	log.Info("gazetteer resolved", "rivers", len(rivers))
	return rivers
}

// oceanChunkTester builds an OceanChunkTester from the already-sampled
// elevation grid: a chunk is "entirely ocean" when every grid cell whose
// center falls inside it has elevation <= 1m (spec.md §4.5).
func oceanChunkTester(elevRes elevation.Result, proj *hexproj.Projection) vectorquery.OceanChunkTester {
	if len(elevRes.Elevations) == 0 {
		return nil
	}
	return func(_ context.Context, bbox types.BoundingBox) (bool, error) {
		r0, r1, c0, c1 := proj.GeoRangeToGridRange(bbox.South, bbox.North, bbox.West, bbox.East)
		any, allSea := false, true
		for row := r0; row <= r1 && row < proj.Rows; row++ {
			if row < 0 {
				continue
			}
			for col := c0; col <= c1 && col < proj.Cols; col++ {
				if col < 0 {
					continue
				}
				any = true
				if elevRes.Elevations[idx(proj.Cols, col, row)] > 1 {
					allSea = false
				}
			}
		}
		return any && allSea, nil
	}
}

// assembleCells folds the classifier and post-processor output arrays,
// plus raw elevation, into the final per-cell record set.
func assembleCells(proj *hexproj.Projection, cls classifier.Result, post postprocess.Result, elevRes elevation.Result) []types.Cell {
	n := proj.Cols * proj.Rows
	cells := make([]types.Cell, n)
	for i := 0; i < n; i++ {
		c := types.NewCell()
		c.Terrain = post.Terrain[i]
		c.Infrastructure = post.Infrastructure[i]
		c.Features = post.Features[i]
		if i < len(elevRes.Elevations) {
			c.Elevation = int32(elevRes.Elevations[i])
		}
		if i < len(post.SlopeAngle) {
			c.SlopeAngle = post.SlopeAngle[i]
		}
		if i < len(cls.FeatureNames) && cls.FeatureNames[i] != nil {
			c.FeatureNames = cls.FeatureNames[i]
		}
		cells[i] = c
	}
	return cells
}

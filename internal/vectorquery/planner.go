// Package vectorquery implements VectorQueryPlanner: tiered Overpass QL
// query composition, chunked bbox fetch with ocean-chunk skipping, and the
// per-chunk retry/fallback protocol (spec.md §4.5).
package vectorquery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MeKo-Christian/go-overpass"

	"github.com/MeKo-Tech/worldfusion/internal/types"
)

const kmPerDegreeLat = 111.0

// Point is a bare (lat, lon) pair for way/relation geometry.
type Point struct {
	Lat, Lon float64
}

// Member is one relation member.
type Member struct {
	Type string // "node", "way", "relation"
	Role string
	Ref  int64
	// Geometry carries the member way's node geometry when embedded by the
	// query client; empty for bare references.
	Geometry []Point
}

// Element is a normalized OSM element: a node, way, or relation.
type Element struct {
	Type     string // "node", "way", "relation"
	ID       int64
	Tags     map[string]string
	Geometry []Point // way node chain; single point for nodes
	Members  []Member
}

type elementKey struct {
	typ string
	id  int64
}

// FetchResult is the deduplicated element set for a bbox fetch.
type FetchResult struct {
	Elements     []Element
	ChunksQueried int
	ChunksSkippedOcean int
	ChunksFellBackToTerrainOnly int
}

// Client is the subset of overpass.Client the planner needs.
type Client interface {
	Query(query string) (overpass.Result, error)
}

// OceanChunkTester reports whether a chunk is entirely ocean (every
// elevation sample inside it at or below 1 m); true means the chunk should
// be skipped (spec.md §4.5).
type OceanChunkTester func(ctx context.Context, bbox types.BoundingBox) (bool, error)

// Planner is VectorQueryPlanner.
type Planner struct {
	client        Client
	oceanTest     OceanChunkTester
	logger        *slog.Logger
	retryBackoffs []time.Duration // per-attempt backoff, spec.md §4.5 default 8s/15s
}

// New builds a Planner. oceanTest may be nil to disable ocean-chunk
// skipping (e.g. in tests or for bboxes known to be entirely inland).
func New(client Client, oceanTest OceanChunkTester, logger *slog.Logger) *Planner {
	return &Planner{
		client:        client,
		oceanTest:     oceanTest,
		logger:        logger,
		retryBackoffs: []time.Duration{8 * time.Second, 15 * time.Second},
	}
}

func (p *Planner) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.Default()
}

// FetchBBox fetches every element covering bbox at the tier implied by
// cellSizeKm, chunking the bbox as needed and deduplicating elements across
// chunks by (type, id).
func (p *Planner) FetchBBox(ctx context.Context, bbox types.BoundingBox, cellSizeKm float64) (FetchResult, error) {
	tier := types.TierFromCellSizeKm(cellSizeKm)
	chunks := p.chunksFor(bbox, tier)

	pacing := interchunkPacing(len(chunks))
	seen := make(map[elementKey]bool)
	var result FetchResult

	for i, chunk := range chunks {
		if p.oceanTest != nil {
			ocean, err := p.oceanTest(ctx, chunk)
			if err != nil {
				p.log().Warn("vectorquery: ocean test failed, querying chunk anyway", "err", err)
			} else if ocean {
				result.ChunksSkippedOcean++
				continue
			}
		}

		elements, fellBack, err := p.fetchChunk(ctx, chunk, tier)
		result.ChunksQueried++
		if fellBack {
			result.ChunksFellBackToTerrainOnly++
		}
		if err != nil {
			p.log().Error("vectorquery: chunk fetch failed, yielding zero elements", "chunk", chunk.String(), "err", err)
			continue
		}
		for _, el := range elements {
			key := elementKey{el.Type, el.ID}
			if seen[key] {
				continue
			}
			seen[key] = true
			result.Elements = append(result.Elements, el)
		}

		if len(chunks) > 1 && i < len(chunks)-1 {
			if err := sleepCtx(ctx, pacing); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

// interchunkPacing buckets pacing by total chunk count (spec.md §4.5).
func interchunkPacing(totalChunks int) time.Duration {
	switch {
	case totalChunks <= 1:
		return 0
	case totalChunks <= 8:
		return time.Second
	case totalChunks <= 32:
		return 1500 * time.Millisecond
	default:
		return 2 * time.Second
	}
}

// chunksFor partitions bbox into a chunksX × chunksY grid of the tier's
// chunk side. A bbox that fits in a single chunk skips chunking entirely.
func (p *Planner) chunksFor(bbox types.BoundingBox, tier types.Tier) []types.BoundingBox {
	sideDeg := tier.ChunkSideKm() / kmPerDegreeLat
	if bbox.Width() <= sideDeg && bbox.Height() <= sideDeg {
		return []types.BoundingBox{bbox}
	}

	var chunks []types.BoundingBox
	for south := bbox.South; south < bbox.North; south += sideDeg {
		north := south + sideDeg
		if north > bbox.North {
			north = bbox.North
		}
		for west := bbox.West; west < bbox.East; west += sideDeg {
			east := west + sideDeg
			if east > bbox.East {
				east = bbox.East
			}
			chunks = append(chunks, types.BoundingBox{South: south, North: north, West: west, East: east})
		}
	}
	return chunks
}

// fetchChunk executes the per-chunk retry/fallback protocol (spec.md §4.5):
// up to 3 attempts of the full tier query with 8s/15s backoff, then one
// terrain-only fallback query, then zero elements.
func (p *Planner) fetchChunk(ctx context.Context, bbox types.BoundingBox, tier types.Tier) (elements []Element, fellBackToTerrainOnly bool, err error) {
	backoffs := p.retryBackoffs

	query := buildTierQuery(bbox, tier)
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		result, qerr := p.client.Query(query)
		if qerr == nil {
			return elementsFromResult(result), false, nil
		}
		lastErr = qerr
		p.log().Warn("vectorquery: query attempt failed", "attempt", attempt+1, "err", qerr)
		if attempt < len(backoffs) {
			if serr := sleepCtx(ctx, backoffs[attempt]); serr != nil {
				return nil, false, serr
			}
		}
	}

	p.log().Warn("vectorquery: full query exhausted retries, falling back to terrain-only", "err", lastErr)
	fallbackQuery := buildTerrainOnlyQuery(bbox)
	result, qerr := p.client.Query(fallbackQuery)
	if qerr != nil {
		return nil, true, fmt.Errorf("vectorquery: terrain-only fallback failed: %w", qerr)
	}
	return elementsFromResult(result), true, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func elementsFromResult(result overpass.Result) []Element {
	var out []Element
	for id, node := range result.Nodes {
		out = append(out, Element{
			Type:     "node",
			ID:       id,
			Tags:     node.Tags,
			Geometry: []Point{{Lat: node.Lat, Lon: node.Lon}},
		})
	}
	for id, way := range result.Ways {
		out = append(out, Element{
			Type:     "way",
			ID:       id,
			Tags:     way.Tags,
			Geometry: pointsFromWay(way),
		})
	}
	for id, rel := range result.Relations {
		members := make([]Member, 0, len(rel.Members))
		for _, m := range rel.Members {
			member := Member{Type: m.Type, Role: m.Role}
			if m.Way != nil {
				member.Ref = m.Way.ID
				member.Geometry = pointsFromWay(m.Way)
			}
			members = append(members, member)
		}
		out = append(out, Element{
			Type:    "relation",
			ID:      id,
			Tags:    rel.Tags,
			Members: members,
		})
	}
	return out
}

func pointsFromWay(way *overpass.Way) []Point {
	if way == nil {
		return nil
	}
	pts := make([]Point, len(way.Geometry))
	for i, g := range way.Geometry {
		pts[i] = Point{Lat: g.Lat, Lon: g.Lon}
	}
	return pts
}

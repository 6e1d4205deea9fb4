// Package spatialindex implements SpatialIndex: a uniform bucket-grid
// point-in-polygon accelerator over a fixed query bbox (spec.md §4.2). It
// is the only approved accelerator for per-cell PIP tests; the classifier
// must never scan the full polygon list.
package spatialindex

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/MeKo-Tech/worldfusion/internal/types"
)

// DefaultBuckets is the default B×B bucket grid size (spec.md §4.2).
const DefaultBuckets = 25

// Index is a uniform-grid bucket index over polygons within a bbox.
type Index struct {
	bbox     types.BoundingBox
	buckets  int
	cellW    float64
	cellH    float64
	grid     [][]int // bucket -> polygon indices
	polygons []orb.Polygon
	bounds   []orb.Bound
}

// Build inserts every polygon's index into every bucket whose cell touches
// the polygon's axis-aligned bbox. buckets<=0 uses DefaultBuckets.
func Build(areas []orb.Polygon, bbox types.BoundingBox, buckets int) *Index {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	idx := &Index{
		bbox:    bbox,
		buckets: buckets,
		cellW:   bbox.Width() / float64(buckets),
		cellH:   bbox.Height() / float64(buckets),
		grid:    make([][]int, buckets*buckets),
	}
	idx.polygons = make([]orb.Polygon, len(areas))
	idx.bounds = make([]orb.Bound, len(areas))
	copy(idx.polygons, areas)

	for i, poly := range areas {
		b := poly.Bound()
		idx.bounds[i] = b
		c0, r0 := idx.bucketOf(b.Min.Lon(), b.Min.Lat())
		c1, r1 := idx.bucketOf(b.Max.Lon(), b.Max.Lat())
		if c0 > c1 {
			c0, c1 = c1, c0
		}
		if r0 > r1 {
			r0, r1 = r1, r0
		}
		for r := r0; r <= r1; r++ {
			for c := c0; c <= c1; c++ {
				b := r*idx.buckets + c
				idx.grid[b] = append(idx.grid[b], i)
			}
		}
	}
	return idx
}

func (idx *Index) bucketOf(lon, lat float64) (col, row int) {
	if idx.cellW <= 0 || idx.cellH <= 0 {
		return 0, 0
	}
	col = int((lon - idx.bbox.West) / idx.cellW)
	row = int((idx.bbox.North - lat) / idx.cellH)
	if col < 0 {
		col = 0
	}
	if col >= idx.buckets {
		col = idx.buckets - 1
	}
	if row < 0 {
		row = 0
	}
	if row >= idx.buckets {
		row = idx.buckets - 1
	}
	return col, row
}

// QueryPoint returns the deduplicated indices of every polygon that
// actually contains (lat, lon), narrowed first by bucket membership.
func (idx *Index) QueryPoint(lat, lon float64) []int {
	col, row := idx.bucketOf(lon, lat)
	bucket := idx.grid[row*idx.buckets+col]
	if len(bucket) == 0 {
		return nil
	}
	pt := orb.Point{lon, lat}
	seen := make(map[int]bool, len(bucket))
	var out []int
	for _, i := range bucket {
		if seen[i] {
			continue
		}
		seen[i] = true
		if !idx.bounds[i].Contains(pt) {
			continue
		}
		if planar.PolygonContains(idx.polygons[i], pt) {
			out = append(out, i)
		}
	}
	return out
}

// QueryRect returns the deduplicated indices of every polygon whose bbox
// intersects the given geographic rectangle.
func (idx *Index) QueryRect(south, north, west, east float64) []int {
	c0, r0 := idx.bucketOf(west, north)
	c1, r1 := idx.bucketOf(east, south)
	if c0 > c1 {
		c0, c1 = c1, c0
	}
	if r0 > r1 {
		r0, r1 = r1, r0
	}
	seen := make(map[int]bool)
	var out []int
	rectBound := orb.Bound{Min: orb.Point{west, south}, Max: orb.Point{east, north}}
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			for _, i := range idx.grid[r*idx.buckets+c] {
				if seen[i] {
					continue
				}
				seen[i] = true
				if idx.bounds[i].Intersects(rectBound) {
					out = append(out, i)
				}
			}
		}
	}
	return out
}

// Polygon returns the polygon stored at index i, for callers that need to
// re-check priority/tags after getting a candidate list.
func (idx *Index) Polygon(i int) orb.Polygon { return idx.polygons[i] }

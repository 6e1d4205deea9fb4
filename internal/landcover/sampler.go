// Package landcover implements LandCoverSampler: tiled raster land-cover
// sampling with majority-vote and class-mix aggregation per grid cell
// (spec.md §4.3).
package landcover

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/disintegration/gift"
	"golang.org/x/image/tiff"

	"github.com/MeKo-Tech/worldfusion/internal/hexproj"
	"github.com/MeKo-Tech/worldfusion/internal/types"
)

// Class is an ESA WorldCover-style land-cover class code.
type Class int

const (
	ClassTreeCover    Class = 10
	ClassShrubland    Class = 20
	ClassGrassland    Class = 30
	ClassCropland     Class = 40
	ClassBuiltUp      Class = 50
	ClassBareSparse   Class = 60
	ClassSnowIce      Class = 70
	ClassWater        Class = 80
	ClassWetland      Class = 90
	ClassMangroves    Class = 95
	ClassMossLichen   Class = 100
	ClassOpenGround   Class = 0 // default for no-sample cells, spec.md §4.3
)

// TileSource fetches the raw class-coded raster for the 3°×3° tile whose
// south-west corner is (swLat, swLon).
type TileSource interface {
	FetchTile(ctx context.Context, swLat, swLon int) ([]byte, error)
}

// CellSample is one grid cell's land-cover result.
type CellSample struct {
	Majority    Class
	Mix         map[Class]float64 // normalized fractions, sums to ~1
	SampleCount int
}

// Sampler is LandCoverSampler.
type Sampler struct {
	source TileSource
	logger *slog.Logger
}

// New constructs a Sampler over the given tile source.
func New(source TileSource, logger *slog.Logger) *Sampler {
	return &Sampler{source: source, logger: logger}
}

func (s *Sampler) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// tileOrigin returns the 3°-aligned south-west corner of the tile covering (lat, lon).
func tileOrigin(lat, lon float64) (int, int) {
	return int(math.Floor(lat/3) * 3), int(math.Floor(lon/3) * 3)
}

// SampleGrid samples land cover for every cell in proj's grid at the given
// tier, returning a flat cols×rows array indexed row*cols+col. Cells with
// no samples (ocean, 404) default to ClassOpenGround (spec.md §4.3; later
// reclassified to ocean by post-processing).
func (s *Sampler) SampleGrid(ctx context.Context, proj *hexproj.Projection, tier types.Tier) ([]CellSample, error) {
	n := proj.Rows * proj.Cols
	out := make([]CellSample, n)
	for i := range out {
		out[i] = CellSample{Majority: ClassOpenGround, Mix: map[Class]float64{}}
	}

	samplesPerAxis := tier.LandCoverSamplesPerAxis()

	bbox := types.BoundingBox{South: proj.BBox.South, North: proj.BBox.North, West: proj.BBox.West, East: proj.BBox.East}
	swLat0, swLon0 := tileOrigin(bbox.South, bbox.West)

	for swLat := swLat0; float64(swLat) < bbox.North; swLat += 3 {
		for swLon := swLon0; float64(swLon) < bbox.East; swLon += 3 {
			tileBBox := types.BoundingBox{South: float64(swLat), North: float64(swLat + 3), West: float64(swLon), East: float64(swLon + 3)}
			if !tileBBox.Intersects(bbox) {
				continue
			}
			if err := s.sampleTile(ctx, proj, tileBBox, swLat, swLon, samplesPerAxis, out); err != nil {
				s.log().Warn("landcover: tile fetch failed, cells left at default", "swLat", swLat, "swLon", swLon, "err", err)
			}
		}
	}
	return out, nil
}

func (s *Sampler) sampleTile(ctx context.Context, proj *hexproj.Projection, tileBBox types.BoundingBox, swLat, swLon, samplesPerAxis int, out []CellSample) error {
	raw, err := s.source.FetchTile(ctx, swLat, swLon)
	if isNotFound(err) {
		s.log().Info("landcover: tile absent, treated as no coverage", "swLat", swLat, "swLon", swLon)
		return nil
	}
	if err != nil {
		return fmt.Errorf("landcover: fetch tile (%d,%d): %w", swLat, swLon, err)
	}

	img, err := tiff.Decode(newByteReader(raw))
	if err != nil {
		return fmt.Errorf("landcover: decode tile (%d,%d): %w", swLat, swLon, err)
	}

	bounds := img.Bounds()
	pxPerDegLon := float64(bounds.Dx()) / 3.0
	pxPerDegLat := float64(bounds.Dy()) / 3.0

	r0, r1, c0, c1 := proj.GeoRangeToGridRange(tileBBox.South, tileBBox.North, tileBBox.West, tileBBox.East)
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			north, south, west, east := proj.CellBBox(col, row)
			cellBBox := types.BoundingBox{South: south, North: north, West: west, East: east}
			if !cellBBox.Intersects(tileBBox) {
				continue
			}

			px0 := int((west - tileBBox.West) * pxPerDegLon)
			px1 := int((east - tileBBox.West) * pxPerDegLon)
			py0 := int((tileBBox.North - north) * pxPerDegLat)
			py1 := int((tileBBox.North - south) * pxPerDegLat)
			rect := image.Rect(px0, py0, px1+1, py1+1).Intersect(bounds)
			if rect.Empty() {
				continue
			}

			sample := sampleWindow(img, rect, samplesPerAxis)
			out[row*proj.Cols+col] = sample
		}
	}
	return nil
}

// sampleWindow downsamples a raster window to samplesPerAxis×samplesPerAxis
// using nearest-neighbor resampling (gift) so each output pixel is one
// class vote, then tallies the majority class and normalized mix.
func sampleWindow(img image.Image, rect image.Rectangle, samplesPerAxis int) CellSample {
	sub := subImage(img, rect)
	if samplesPerAxis <= 1 {
		return sampleDirect(sub)
	}

	g := gift.New(gift.Resize(samplesPerAxis, samplesPerAxis, gift.NearestNeighborResampling))
	dst := image.NewGray(g.Bounds(sub.Bounds()))
	g.Draw(dst, sub)

	counts := map[Class]int{}
	total := 0
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cls := Class(dst.GrayAt(x, y).Y)
			counts[cls]++
			total++
		}
	}
	return mixFromCounts(counts, total)
}

func sampleDirect(img image.Image) CellSample {
	b := img.Bounds()
	if b.Empty() {
		return CellSample{Majority: ClassOpenGround, Mix: map[Class]float64{}}
	}
	g, _, _, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	cls := Class(g >> 8)
	return CellSample{Majority: cls, Mix: map[Class]float64{cls: 1}, SampleCount: 1}
}

func mixFromCounts(counts map[Class]int, total int) CellSample {
	if total == 0 {
		return CellSample{Majority: ClassOpenGround, Mix: map[Class]float64{}}
	}
	mix := make(map[Class]float64, len(counts))
	var best Class
	bestCount := -1
	for cls, n := range counts {
		mix[cls] = float64(n) / float64(total)
		if n > bestCount {
			bestCount = n
			best = cls
		}
	}
	return CellSample{Majority: best, Mix: mix, SampleCount: total}
}

// subImage crops img to rect without copying pixel data where possible.
func subImage(img image.Image, rect image.Rectangle) image.Image {
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	dst := image.NewRGBA(rect)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dst.Set(x, y, img.At(x, y))
		}
	}
	return dst
}

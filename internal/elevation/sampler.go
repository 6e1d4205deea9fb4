// Package elevation implements ElevationSampler: batched point elevation
// fetch with dual-provider fallback and sparse-grid bilinear interpolation
// for large grids (spec.md §4.4).
package elevation

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/MeKo-Tech/worldfusion/internal/hexproj"
)

const (
	batchSize          = 100
	primaryPacing      = 1100 * time.Millisecond
	secondaryPacing    = 250 * time.Millisecond
	rateLimitSleep     = 60 * time.Second
	sparseThreshold    = 5000
)

// Provider fetches elevations for a batch of (lat, lon) points. A nil entry
// in the returned slice means "no data" for that point. ErrRateLimited
// signals an HTTP 429; the sampler handles the sleep-and-retry protocol.
type Provider interface {
	Name() string
	FetchBatch(ctx context.Context, lats, lons []float64) ([]*float64, error)
}

// ErrRateLimited is returned by a Provider on HTTP 429.
var ErrRateLimited = errors.New("elevation: rate limited")

// Sampler is ElevationSampler.
type Sampler struct {
	providers []Provider
	logger    *slog.Logger
	active    int // sticky index into providers once we've switched
}

// New builds a Sampler trying providers in order, falling over to the next
// on exhausted retries. At least one provider is required.
func New(providers []Provider, logger *slog.Logger) *Sampler {
	return &Sampler{providers: providers, logger: logger}
}

func (s *Sampler) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Result holds sampled elevations in meters and the fraction of points that
// actually had data (missing values become 0).
type Result struct {
	Elevations []float64
	Coverage   float64
}

// SamplePoints fetches elevations for an arbitrary point list, batching and
// pacing per spec.md §4.4.
func (s *Sampler) SamplePoints(ctx context.Context, lats, lons []float64) (Result, error) {
	n := len(lats)
	out := make([]float64, n)
	nonNull := 0

	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}
		batchLats := lats[start:end]
		batchLons := lons[start:end]

		values, err := s.fetchBatchWithFallback(ctx, batchLats, batchLons)
		if err != nil {
			return Result{}, err
		}
		for i, v := range values {
			if v != nil {
				out[start+i] = *v
				nonNull++
			}
		}
	}

	coverage := 0.0
	if n > 0 {
		coverage = float64(nonNull) / float64(n)
	}
	return Result{Elevations: out, Coverage: coverage}, nil
}

// fetchBatchWithFallback tries the active provider, escalating to the next
// provider on rate-limit exhaustion or other failure. The switch is sticky:
// once escalated, later batches start from the new active provider.
func (s *Sampler) fetchBatchWithFallback(ctx context.Context, lats, lons []float64) ([]*float64, error) {
	for s.active < len(s.providers) {
		p := s.providers[s.active]
		pacing := primaryPacing
		if s.active > 0 {
			pacing = secondaryPacing
		}

		values, err := p.FetchBatch(ctx, lats, lons)
		if errors.Is(err, ErrRateLimited) {
			s.log().Warn("elevation: rate limited, sleeping before retry", "provider", p.Name())
			if sleepErr := sleepCtx(ctx, rateLimitSleep); sleepErr != nil {
				return nil, sleepErr
			}
			values, err = p.FetchBatch(ctx, lats, lons)
		}
		if err == nil {
			if sleepErr := sleepCtx(ctx, pacing); sleepErr != nil {
				return nil, sleepErr
			}
			return values, nil
		}

		s.log().Warn("elevation: provider exhausted, escalating", "provider", p.Name(), "err", err)
		s.active++
	}
	return nil, errors.New("elevation: all providers exhausted")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SampleGrid fills an elevation value for every cell in proj's grid. Grids
// above sparseThreshold cells fall back to sparse sampling on a sub-lattice
// (stride max(2, ceil(sqrt(n/threshold))), including endpoints) followed by
// bilinear interpolation; smaller grids sample every cell directly.
func (s *Sampler) SampleGrid(ctx context.Context, proj *hexproj.Projection) (Result, error) {
	n := proj.Cols * proj.Rows
	if n <= sparseThreshold {
		lats := make([]float64, n)
		lons := make([]float64, n)
		for row := 0; row < proj.Rows; row++ {
			for col := 0; col < proj.Cols; col++ {
				lon, lat := proj.CellCenter(col, row)
				lats[row*proj.Cols+col] = lat
				lons[row*proj.Cols+col] = lon
			}
		}
		return s.SamplePoints(ctx, lats, lons)
	}
	return s.sampleSparseAndInterpolate(ctx, proj)
}

func (s *Sampler) sampleSparseAndInterpolate(ctx context.Context, proj *hexproj.Projection) (Result, error) {
	n := proj.Cols * proj.Rows
	stride := int(math.Ceil(math.Sqrt(float64(n) / float64(sparseThreshold))))
	if stride < 2 {
		stride = 2
	}

	var latticeCols, latticeRows []int
	for c := 0; c < proj.Cols; c += stride {
		latticeCols = append(latticeCols, c)
	}
	if latticeCols[len(latticeCols)-1] != proj.Cols-1 {
		latticeCols = append(latticeCols, proj.Cols-1)
	}
	for r := 0; r < proj.Rows; r += stride {
		latticeRows = append(latticeRows, r)
	}
	if latticeRows[len(latticeRows)-1] != proj.Rows-1 {
		latticeRows = append(latticeRows, proj.Rows-1)
	}

	lats := make([]float64, 0, len(latticeCols)*len(latticeRows))
	lons := make([]float64, 0, len(latticeCols)*len(latticeRows))
	for _, row := range latticeRows {
		for _, col := range latticeCols {
			lon, lat := proj.CellCenter(col, row)
			lats = append(lats, lat)
			lons = append(lons, lon)
		}
	}

	sparse, err := s.SamplePoints(ctx, lats, lons)
	if err != nil {
		return Result{}, err
	}

	lattice := make([][]float64, len(latticeRows))
	for ri := range latticeRows {
		lattice[ri] = sparse.Elevations[ri*len(latticeCols) : (ri+1)*len(latticeCols)]
	}

	out := make([]float64, n)
	for row := 0; row < proj.Rows; row++ {
		ri1 := latticeIndex(latticeRows, row)
		for col := 0; col < proj.Cols; col++ {
			ci1 := latticeIndex(latticeCols, col)
			out[row*proj.Cols+col] = bilinear(latticeRows, latticeCols, lattice, ri1, ci1, row, col)
		}
	}
	return Result{Elevations: out, Coverage: sparse.Coverage}, nil
}

// latticeIndex returns the index of the last lattice coordinate <= v.
func latticeIndex(lattice []int, v int) int {
	idx := 0
	for i, l := range lattice {
		if l <= v {
			idx = i
		} else {
			break
		}
	}
	return idx
}

// bilinear interpolates (row,col) within the sparse lattice. Points on the
// last lattice row/column degrade to 1-D interpolation or a direct copy.
func bilinear(latticeRows, latticeCols []int, lattice [][]float64, ri0, ci0, row, col int) float64 {
	r0 := latticeRows[ri0]
	c0 := latticeCols[ci0]

	ri1, c1Idx := ri0, ci0
	haveRow := ri0+1 < len(latticeRows)
	haveCol := ci0+1 < len(latticeCols)
	if haveRow {
		ri1 = ri0 + 1
	}
	if haveCol {
		c1Idx = ci0 + 1
	}
	r1 := latticeRows[ri1]
	c1 := latticeCols[c1Idx]

	v00 := lattice[ri0][ci0]
	if !haveRow && !haveCol {
		return v00
	}
	if !haveRow {
		t := frac(col, c0, c1)
		return lerp(v00, lattice[ri0][c1Idx], t)
	}
	if !haveCol {
		t := frac(row, r0, r1)
		return lerp(v00, lattice[ri1][ci0], t)
	}

	v01 := lattice[ri0][c1Idx]
	v10 := lattice[ri1][ci0]
	v11 := lattice[ri1][c1Idx]

	tx := frac(col, c0, c1)
	ty := frac(row, r0, r1)
	top := lerp(v00, v01, tx)
	bot := lerp(v10, v11, tx)
	return lerp(top, bot, ty)
}

func frac(v, lo, hi int) float64 {
	if hi == lo {
		return 0
	}
	return float64(v-lo) / float64(hi-lo)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

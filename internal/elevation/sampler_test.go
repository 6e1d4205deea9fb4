package elevation

import (
	"context"
	"testing"

	"github.com/MeKo-Tech/worldfusion/internal/hexproj"
	"github.com/MeKo-Tech/worldfusion/internal/types"
)

type constProvider struct {
	name  string
	value float64
	calls int
}

func (p *constProvider) Name() string { return p.name }
func (p *constProvider) FetchBatch(ctx context.Context, lats, lons []float64) ([]*float64, error) {
	p.calls++
	out := make([]*float64, len(lats))
	for i := range out {
		v := p.value
		out[i] = &v
	}
	return out, nil
}

type failThenProvider struct {
	name    string
	failErr error
	calls   int
}

func (p *failThenProvider) Name() string { return p.name }
func (p *failThenProvider) FetchBatch(ctx context.Context, lats, lons []float64) ([]*float64, error) {
	p.calls++
	return nil, p.failErr
}

func TestSamplePointsBasic(t *testing.T) {
	p := &constProvider{name: "primary", value: 123}
	s := New([]Provider{p}, nil)

	res, err := s.SamplePoints(context.Background(), []float64{1, 2, 3}, []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("SamplePoints: %v", err)
	}
	if res.Coverage != 1 {
		t.Errorf("expected full coverage, got %v", res.Coverage)
	}
	for _, e := range res.Elevations {
		if e != 123 {
			t.Errorf("expected 123, got %v", e)
		}
	}
}

func TestFallsBackToSecondaryProvider(t *testing.T) {
	primary := &failThenProvider{name: "primary", failErr: context.DeadlineExceeded}
	secondary := &constProvider{name: "secondary", value: 50}
	s := New([]Provider{primary, secondary}, nil)

	res, err := s.SamplePoints(context.Background(), []float64{1}, []float64{1})
	if err != nil {
		t.Fatalf("SamplePoints: %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("expected primary tried once, got %d calls", primary.calls)
	}
	if secondary.calls != 1 {
		t.Errorf("expected secondary to pick up after escalation, got %d calls", secondary.calls)
	}
	if res.Elevations[0] != 50 {
		t.Errorf("expected secondary's value, got %v", res.Elevations[0])
	}

	// Escalation must be sticky: a second call should not retry primary.
	_, err = s.SamplePoints(context.Background(), []float64{2}, []float64{2})
	if err != nil {
		t.Fatalf("second SamplePoints: %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("expected sticky escalation to skip primary on subsequent batches, got %d calls", primary.calls)
	}
}

func TestAllProvidersExhaustedReturnsError(t *testing.T) {
	p := &failThenProvider{name: "only", failErr: context.DeadlineExceeded}
	s := New([]Provider{p}, nil)

	_, err := s.SamplePoints(context.Background(), []float64{1}, []float64{1})
	if err == nil {
		t.Fatal("expected error when all providers exhausted")
	}
}

func TestSampleGridSmallUsesDirectSampling(t *testing.T) {
	p := &constProvider{name: "primary", value: 77}
	s := New([]Provider{p}, nil)
	proj := hexproj.New(types.BoundingBox{South: 0, North: 1, West: 0, East: 1}, 4, 4)

	res, err := s.SampleGrid(context.Background(), proj)
	if err != nil {
		t.Fatalf("SampleGrid: %v", err)
	}
	if len(res.Elevations) != 16 {
		t.Fatalf("expected 16 elevations, got %d", len(res.Elevations))
	}
	for _, e := range res.Elevations {
		if e != 77 {
			t.Errorf("expected 77, got %v", e)
		}
	}
}

func TestBilinearInterpolationMatchesCorners(t *testing.T) {
	latticeRows := []int{0, 10}
	latticeCols := []int{0, 10}
	lattice := [][]float64{{0, 10}, {20, 30}}

	// Corners must reproduce exactly.
	if v := bilinear(latticeRows, latticeCols, lattice, 0, 0, 0, 0); v != 0 {
		t.Errorf("corner (0,0) = %v, want 0", v)
	}
	if v := bilinear(latticeRows, latticeCols, lattice, 1, 1, 10, 10); v != 30 {
		t.Errorf("corner (10,10) = %v, want 30", v)
	}
	// Center should average all four corners.
	if v := bilinear(latticeRows, latticeCols, lattice, 0, 0, 5, 5); v != 15 {
		t.Errorf("center = %v, want 15", v)
	}
}

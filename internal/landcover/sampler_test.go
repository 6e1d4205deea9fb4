package landcover

import (
	"context"
	"testing"

	"github.com/MeKo-Tech/worldfusion/internal/hexproj"
	"github.com/MeKo-Tech/worldfusion/internal/types"
)

func TestTileOriginAlignsToThreeDegrees(t *testing.T) {
	cases := []struct {
		lat, lon     float64
		wantLat, wantLon int
	}{
		{1, 1, 0, 0},
		{3, 3, 3, 3},
		{-1, -1, -3, -3},
		{8.9, -8.9, 6, -9},
	}
	for _, c := range cases {
		gotLat, gotLon := tileOrigin(c.lat, c.lon)
		if gotLat != c.wantLat || gotLon != c.wantLon {
			t.Errorf("tileOrigin(%v,%v) = (%d,%d), want (%d,%d)", c.lat, c.lon, gotLat, gotLon, c.wantLat, c.wantLon)
		}
	}
}

func TestMixFromCountsPicksMajority(t *testing.T) {
	counts := map[Class]int{ClassTreeCover: 7, ClassWater: 3}
	sample := mixFromCounts(counts, 10)
	if sample.Majority != ClassTreeCover {
		t.Errorf("expected majority ClassTreeCover, got %v", sample.Majority)
	}
	if sample.Mix[ClassTreeCover] != 0.7 || sample.Mix[ClassWater] != 0.3 {
		t.Errorf("unexpected mix: %v", sample.Mix)
	}
}

func TestMixFromCountsEmptyDefaultsToOpenGround(t *testing.T) {
	sample := mixFromCounts(nil, 0)
	if sample.Majority != ClassOpenGround {
		t.Errorf("expected default ClassOpenGround for empty sample, got %v", sample.Majority)
	}
}

type notFoundSource struct{}

func (notFoundSource) FetchTile(ctx context.Context, swLat, swLon int) ([]byte, error) {
	return nil, errNotFound{url: "test"}
}

func TestSampleGridDefaultsOnMissingTiles(t *testing.T) {
	bbox := types.BoundingBox{South: 1, North: 2, West: 1, East: 2}
	proj := hexproj.New(bbox, 5, 5)
	s := New(notFoundSource{}, nil)

	samples, err := s.SampleGrid(context.Background(), proj, types.Tactical)
	if err != nil {
		t.Fatalf("SampleGrid: %v", err)
	}
	if len(samples) != proj.Cols*proj.Rows {
		t.Fatalf("expected %d samples, got %d", proj.Cols*proj.Rows, len(samples))
	}
	for i, s := range samples {
		if s.Majority != ClassOpenGround {
			t.Errorf("cell %d: expected default ClassOpenGround on 404, got %v", i, s.Majority)
		}
	}
}

package vectorquery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MeKo-Christian/go-overpass"

	"github.com/MeKo-Tech/worldfusion/internal/types"
)

type scriptedClient struct {
	calls   int
	results []overpass.Result
	errs    []error
}

func (c *scriptedClient) Query(query string) (overpass.Result, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return overpass.Result{}, c.errs[i]
	}
	if i < len(c.results) {
		return c.results[i], nil
	}
	return overpass.Result{}, nil
}

func wayResult(id int64) overpass.Result {
	return overpass.Result{
		Ways: map[int64]*overpass.Way{
			id: {ID: id, Tags: map[string]string{"natural": "water"}},
		},
	}
}

func TestElementsFromResultIncludesNodes(t *testing.T) {
	result := overpass.Result{
		Nodes: map[int64]*overpass.Node{
			42: {ID: 42, Lat: 52.37, Lon: 9.73, Tags: map[string]string{"place": "town"}},
		},
	}
	elements := elementsFromResult(result)
	if len(elements) != 1 {
		t.Fatalf("expected 1 element, got %d", len(elements))
	}
	el := elements[0]
	if el.Type != "node" || el.ID != 42 {
		t.Errorf("expected node/42, got %s/%d", el.Type, el.ID)
	}
	if el.Tags["place"] != "town" {
		t.Errorf("expected place=town tag to survive, got %v", el.Tags)
	}
	if len(el.Geometry) != 1 || el.Geometry[0].Lat != 52.37 || el.Geometry[0].Lon != 9.73 {
		t.Errorf("expected single-point geometry at node coords, got %v", el.Geometry)
	}
}

func TestChunksForSingleChunkBboxSkipsGrid(t *testing.T) {
	p := New(&scriptedClient{}, nil, nil)
	bbox := types.BoundingBox{South: 0, North: 0.01, West: 0, East: 0.01}
	chunks := p.chunksFor(bbox, types.Strategic)
	if len(chunks) != 1 {
		t.Fatalf("expected single chunk for small bbox, got %d", len(chunks))
	}
}

func TestChunksForLargeBboxPartitions(t *testing.T) {
	p := New(&scriptedClient{}, nil, nil)
	bbox := types.BoundingBox{South: 0, North: 10, West: 0, East: 10}
	chunks := p.chunksFor(bbox, types.SubTactical) // 5km chunks, tiny relative to 10deg bbox
	if len(chunks) <= 1 {
		t.Fatalf("expected many chunks for large bbox at fine tier, got %d", len(chunks))
	}
}

func TestFetchBBoxDedupsAcrossChunks(t *testing.T) {
	client := &scriptedClient{results: []overpass.Result{wayResult(1), wayResult(1)}}
	p := New(client, nil, nil)

	// Force several chunks (3×3) by using a bbox wider than one sub-tactical (5km) chunk.
	bbox := types.BoundingBox{South: 0, North: 0.1, West: 0, East: 0.1}
	result, err := p.FetchBBox(context.Background(), bbox, 0.1) // sub-tactical cell size
	if err != nil {
		t.Fatalf("FetchBBox: %v", err)
	}
	count := 0
	for _, el := range result.Elements {
		if el.Type == "way" && el.ID == 1 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected way/1 deduplicated to a single entry, got %d", count)
	}
}

func TestFetchChunkFallsBackToTerrainOnlyAfterRetries(t *testing.T) {
	client := &scriptedClient{
		errs: []error{errors.New("5xx"), errors.New("5xx"), errors.New("5xx")},
		results: []overpass.Result{{}, {}, {}, wayResult(7)},
	}
	p := New(client, nil, nil)
	p.retryBackoffs = []time.Duration{time.Millisecond, time.Millisecond}

	elements, fellBack, err := p.fetchChunk(context.Background(), types.BoundingBox{South: 0, North: 1, West: 0, East: 1}, types.Strategic)
	if err != nil {
		t.Fatalf("fetchChunk: %v", err)
	}
	if !fellBack {
		t.Error("expected fallback to terrain-only after exhausting retries")
	}
	if len(elements) != 1 || elements[0].ID != 7 {
		t.Errorf("expected fallback result's single element, got %v", elements)
	}
	if client.calls != 4 {
		t.Errorf("expected 3 retries + 1 fallback = 4 calls, got %d", client.calls)
	}
}

func TestFetchChunkReturnsZeroElementsWhenFallbackAlsoFails(t *testing.T) {
	client := &scriptedClient{
		errs: []error{errors.New("a"), errors.New("b"), errors.New("c"), errors.New("d")},
	}
	p := New(client, nil, nil)
	p.retryBackoffs = []time.Duration{time.Millisecond, time.Millisecond}

	elements, fellBack, err := p.fetchChunk(context.Background(), types.BoundingBox{South: 0, North: 1, West: 0, East: 1}, types.Strategic)
	if err == nil {
		t.Fatal("expected error when fallback also fails")
	}
	if !fellBack {
		t.Error("expected fellBack=true even though the fallback itself failed")
	}
	if len(elements) != 0 {
		t.Errorf("expected zero elements, got %d", len(elements))
	}
}

func TestOceanChunkSkipping(t *testing.T) {
	client := &scriptedClient{results: []overpass.Result{wayResult(1)}}
	alwaysOcean := func(ctx context.Context, bbox types.BoundingBox) (bool, error) { return true, nil }
	p := New(client, alwaysOcean, nil)

	bbox := types.BoundingBox{South: 0, North: 0.01, West: 0, East: 0.01}
	result, err := p.FetchBBox(context.Background(), bbox, 200)
	if err != nil {
		t.Fatalf("FetchBBox: %v", err)
	}
	if result.ChunksSkippedOcean != 1 {
		t.Errorf("expected 1 ocean-skipped chunk, got %d", result.ChunksSkippedOcean)
	}
	if len(result.Elements) != 0 {
		t.Errorf("expected no elements queried for an all-ocean chunk, got %d", len(result.Elements))
	}
	if client.calls != 0 {
		t.Errorf("expected no query calls for skipped chunk, got %d", client.calls)
	}
}

func TestInterchunkPacingBuckets(t *testing.T) {
	cases := []struct {
		n    int
		want int64
	}{
		{1, 0},
		{5, int64(1e9)},
		{20, int64(1.5e9)},
		{100, int64(2e9)},
	}
	for _, c := range cases {
		got := interchunkPacing(c.n)
		if got.Nanoseconds() != c.want {
			t.Errorf("interchunkPacing(%d) = %v, want %dns", c.n, got, c.want)
		}
	}
}

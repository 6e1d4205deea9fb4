package landcover

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPTileSource fetches class-coded GeoTIFF tiles over HTTP from a tile
// server addressed by 3°-aligned south-west corner, mirroring the
// overpass tile-fetch-with-bounds idiom but for raster tiles.
type HTTPTileSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPTileSource builds a tile source with a sane default client.
func NewHTTPTileSource(baseURL string) *HTTPTileSource {
	return &HTTPTileSource{BaseURL: baseURL, Client: http.DefaultClient}
}

// FetchTile implements TileSource.
func (s *HTTPTileSource) FetchTile(ctx context.Context, swLat, swLon int) ([]byte, error) {
	url := fmt.Sprintf("%s/tile/%d_%d.tif", s.BaseURL, swLat, swLon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("landcover: request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound{url: url}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("landcover: unexpected status %d for %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

type errNotFound struct{ url string }

func (e errNotFound) Error() string { return fmt.Sprintf("landcover: tile not found: %s", e.url) }

func isNotFound(err error) bool {
	_, ok := err.(errNotFound)
	return ok
}

func newByteReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

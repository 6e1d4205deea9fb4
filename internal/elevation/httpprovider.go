package elevation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// HTTPProvider fetches a batch of elevations from a GET endpoint that
// accepts a "locations" query parameter of "lat,lon|lat,lon|..." pairs and
// returns a JSON body `{"results":[{"elevation":float64}, ...]}` in
// request order — the shape of the open-elevation/opentopodata family of
// services (spec.md §6 "elevation batch GET").
type HTTPProvider struct {
	name     string
	endpoint string
	client   *http.Client
}

// NewHTTPProvider builds a named provider against a batch-elevation
// endpoint. name distinguishes providers in the sampler's fallback log
// (e.g. "open-elevation", "opentopodata").
func NewHTTPProvider(name, endpoint string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{name: name, endpoint: endpoint, client: client}
}

func (p *HTTPProvider) Name() string { return p.name }

type httpProviderResponse struct {
	Results []struct {
		Elevation *float64 `json:"elevation"`
	} `json:"results"`
}

// FetchBatch implements Provider.
func (p *HTTPProvider) FetchBatch(ctx context.Context, lats, lons []float64) ([]*float64, error) {
	locs := make([]string, len(lats))
	for i := range lats {
		locs[i] = strconv.FormatFloat(lats[i], 'f', 6, 64) + "," + strconv.FormatFloat(lons[i], 'f', 6, 64)
	}

	url := p.endpoint + "?locations=" + strings.Join(locs, "|")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("elevation: build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevation: request %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevation: %s returned status %d", p.name, resp.StatusCode)
	}

	var parsed httpProviderResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("elevation: decode %s response: %w", p.name, err)
	}
	if len(parsed.Results) != len(lats) {
		return nil, fmt.Errorf("elevation: %s returned %d results for %d points", p.name, len(parsed.Results), len(lats))
	}

	out := make([]*float64, len(parsed.Results))
	for i, r := range parsed.Results {
		out[i] = r.Elevation
	}
	return out, nil
}

// Package gazetteer implements GazetteerResolver: querying an external
// named-rivers dataset intersecting an expanded bbox, and matching OSM
// waterway names against the resolved variants (spec.md §4, §9 "Gazetteer
// name matching").
package gazetteer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/MeKo-Tech/worldfusion/internal/types"
)

// River is one gazetteer record: a named river with its known name variants
// (the primary label plus alternate labels/transliterations) and length.
type River struct {
	Name     string
	Variants []string
	LengthKm float64
}

// Client is the subset of *http.Client the resolver needs.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resolver is GazetteerResolver.
type Resolver struct {
	endpoint string // SPARQL query service endpoint
	client   Client
	logger   *slog.Logger
}

// New builds a Resolver against a SPARQL endpoint (e.g. the Wikidata Query
// Service) reachable over HTTP GET.
func New(endpoint string, client Client, logger *slog.Logger) *Resolver {
	return &Resolver{endpoint: endpoint, client: client, logger: logger}
}

func (r *Resolver) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

// ResolveRivers queries for named rivers intersecting bbox (expanded by 10%
// to catch rivers whose label point falls just outside the requested
// area) with length >= minLengthKm, filtering obvious data errors via a
// whitelist of plausible length/name shapes.
func (r *Resolver) ResolveRivers(ctx context.Context, bbox types.BoundingBox, minLengthKm float64) ([]River, error) {
	expanded := bbox.ExpandByFraction(0.1)
	query := buildRiverQuery(expanded, minLengthKm)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?query="+queryEscape(query), nil)
	if err != nil {
		return nil, fmt.Errorf("gazetteer: build request: %w", err)
	}
	req.Header.Set("Accept", "text/tab-separated-values")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gazetteer: query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gazetteer: unexpected status %d", resp.StatusCode)
	}

	rivers, err := parseTSV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gazetteer: parse response: %w", err)
	}

	return filterWhitelist(rivers, minLengthKm), nil
}

// buildRiverQuery composes a SPARQL query selecting rivers (instance of or
// subclass of river) whose coordinate location falls within bbox, with
// their English label, alternate labels, and length in km.
func buildRiverQuery(bbox types.BoundingBox, minLengthKm float64) string {
	return fmt.Sprintf(`SELECT ?riverLabel ?altLabel ?length WHERE {
  ?river wdt:P31/wdt:P279* wd:Q4022 .
  ?river wdt:P625 ?coord .
  ?river wdt:P2043 ?length .
  FILTER(?length >= %g)
  SERVICE wikibase:box {
    ?coord wikibase:cornerSouthWest "Point(%f %f)"^^geo:wktLiteral .
    ?coord wikibase:cornerNorthEast "Point(%f %f)"^^geo:wktLiteral .
  }
  OPTIONAL { ?river skos:altLabel ?altLabel . FILTER(LANG(?altLabel) = "en") }
  SERVICE wikibase:label { bd:serviceParam wikibase:language "en" . }
}`, minLengthKm, bbox.West, bbox.South, bbox.East, bbox.North)
}

func queryEscape(q string) string {
	var b strings.Builder
	for _, r := range q {
		switch {
		case r == ' ':
			b.WriteByte('+')
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || strings.ContainsRune("-_.~", r):
			b.WriteRune(r)
		default:
			for _, bb := range []byte(string(r)) {
				fmt.Fprintf(&b, "%%%02X", bb)
			}
		}
	}
	return b.String()
}

// parseTSV reads the SPARQL TSV result, grouping alt-label rows under their
// primary river name.
func parseTSV(body io.Reader) ([]River, error) {
	scanner := bufio.NewScanner(body)
	byName := make(map[string]*River)
	var order []string

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "?") {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 3 {
			continue
		}
		name := unquoteSPARQL(cols[0])
		alt := unquoteSPARQL(cols[1])
		lengthKm, _ := strconv.ParseFloat(unquoteSPARQL(cols[2]), 64)

		if name == "" {
			continue
		}
		river, ok := byName[name]
		if !ok {
			river = &River{Name: name, LengthKm: lengthKm, Variants: []string{name}}
			byName[name] = river
			order = append(order, name)
		}
		if alt != "" && alt != name {
			river.Variants = append(river.Variants, alt)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	rivers := make([]River, 0, len(order))
	for _, name := range order {
		rivers = append(rivers, *byName[name])
	}
	return rivers, nil
}

// unquoteSPARQL strips the SPARQL TSV result wrapper, e.g. `"Rhine"@en` or
// `"1230"^^<http://www.w3.org/2001/XMLSchema#decimal>`.
func unquoteSPARQL(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "^^"); idx >= 0 {
		v = v[:idx]
	}
	if idx := strings.LastIndex(v, "@"); idx > 0 && strings.HasPrefix(v, `"`) {
		v = v[:idx]
	}
	return strings.Trim(v, `"`)
}

// filterWhitelist discards obviously bad gazetteer rows: names that are
// empty or purely numeric (upstream data-entry artifacts), and lengths
// below the requested threshold or implausibly large for a river.
func filterWhitelist(rivers []River, minLengthKm float64) []River {
	const implausibleLengthKm = 8000 // longer than the Nile; a data error
	out := make([]River, 0, len(rivers))
	for _, r := range rivers {
		if r.Name == "" || isAllDigits(r.Name) {
			continue
		}
		if r.LengthKm < minLengthKm || r.LengthKm > implausibleLengthKm {
			continue
		}
		out = append(out, r)
	}
	return out
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var nameFolder = cases.Fold()

// NormalizeName NFC-normalizes and case-folds a name for comparison, per
// the Unicode-aware matching design note (spec.md §9).
func NormalizeName(s string) string {
	return nameFolder.String(norm.NFC.String(s))
}

// Matches reports whether candidate matches any of the river's name
// variants, using word-boundary matching for short names (<4 runes) and
// bidirectional substring matching for longer ones (spec.md §9).
func (r River) Matches(candidate string) bool {
	normCandidate := NormalizeName(candidate)
	for _, v := range r.Variants {
		normVariant := NormalizeName(v)
		if matchesVariant(normCandidate, normVariant) {
			return true
		}
	}
	return false
}

func matchesVariant(a, b string) bool {
	if a == b {
		return true
	}
	shortest := a
	if len(b) < len(shortest) {
		shortest = b
	}
	if len([]rune(shortest)) < 4 {
		return false // short names require an exact (word-boundary) match
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

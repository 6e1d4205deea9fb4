// Package scanorchestrator implements ScanOrchestrator: enumeration,
// manifest-driven resume, retry/backoff, and post-scan verification for a
// full-world scan over many patches (spec.md §4.12).
package scanorchestrator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/MeKo-Tech/worldfusion/internal/cellstore"
	"github.com/MeKo-Tech/worldfusion/internal/codec"
	"github.com/MeKo-Tech/worldfusion/internal/types"
)

// PolarCapLat bounds the full pipeline's latitude coverage; polar bands use
// land cover + elevation only and are never scanned here (spec.md §4.12).
const PolarCapLat = 72.0

// Pipeline runs the single-patch generation pipeline for one patch id and
// returns its encoded result.
type Pipeline func(ctx context.Context, id types.PatchID) (*types.Patch, error)

// Config configures one scan run.
type Config struct {
	Store      *cellstore.Store
	Resolution float64 // patch side in degrees: 3 (coarse) or 1 (fine)
	LatMin     float64
	LatMax     float64
	LonMin     float64
	LonMax     float64
	Run        Pipeline

	// ShouldStop is polled between patches; a true return cancels the scan
	// after persisting the current manifest state (spec.md §5 cancellation).
	ShouldStop func() bool

	MaxRetries             int // cap on per-patch retry attempts; spec default 5
	MaxConsecutiveFailures int // abort threshold; spec default 10
	YieldBetweenPatches    time.Duration // spec default ~50ms

	// Now and Sleep are injected so tests can run a scan without real time
	// passing; both default to the real clock when left nil.
	Now   func() time.Time
	Sleep func(time.Duration)
}

func (c *Config) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 10
	}
	if c.YieldBetweenPatches <= 0 {
		c.YieldBetweenPatches = 50 * time.Millisecond
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
}

// EnumeratePatches lists every patch id covering [latMin,latMax) x
// [lonMin,lonMax) at the given resolution (spec.md §4.12 "3 deg coarse, 1
// deg fine").
func EnumeratePatches(resolution, latMin, latMax, lonMin, lonMax float64) []types.PatchID {
	var out []types.PatchID
	for lat := latMin; lat < latMax-1e-9; lat += resolution {
		for lon := lonMin; lon < lonMax-1e-9; lon += resolution {
			out = append(out, types.PatchID{SWLat: lat, SWLon: lon, Side: resolution})
		}
	}
	return out
}

// prioritize orders patches so failed entries (fewest retries first) run
// before pending ones, and already-complete patches are dropped entirely
// (spec.md §4.12 steps 1-2).
func prioritize(patches []types.PatchID, manifest *types.Manifest, maxRetries int) []types.PatchID {
	type scored struct {
		id       types.PatchID
		priority int // 0 = failed (lower retries first), 1 = pending
		retries  int
	}
	var scoredList []scored
	for _, id := range patches {
		entry := manifest.Entries[id.String()]
		if entry == nil {
			scoredList = append(scoredList, scored{id: id, priority: 1})
			continue
		}
		switch entry.Status {
		case types.PatchComplete:
			continue
		case types.PatchFailed:
			if entry.Retries >= maxRetries {
				continue
			}
			scoredList = append(scoredList, scored{id: id, priority: 0, retries: entry.Retries})
		default:
			scoredList = append(scoredList, scored{id: id, priority: 1, retries: entry.Retries})
		}
	}
	sort.SliceStable(scoredList, func(i, j int) bool {
		if scoredList[i].priority != scoredList[j].priority {
			return scoredList[i].priority < scoredList[j].priority
		}
		return scoredList[i].retries < scoredList[j].retries
	})
	out := make([]types.PatchID, len(scoredList))
	for i, s := range scoredList {
		out[i] = s.id
	}
	return out
}

// backoffDuration implements the exponential backoff schedule: 1s * 2^n,
// capped at 30s (spec.md §4.12 step 3).
func backoffDuration(consecutiveFailures int) time.Duration {
	seconds := math.Pow(2, float64(consecutiveFailures-1))
	if seconds > 30 {
		seconds = 30
	}
	return time.Duration(seconds * float64(time.Second))
}

// Run executes the scan: one outer loop over patches, never parallelized
// against each other (spec.md §5), resuming from the manifest and backing
// off after consecutive failures.
func Run(ctx context.Context, cfg Config) error {
	cfg.defaults()

	manifest, err := cfg.Store.LoadManifest(cfg.Resolution)
	if err != nil {
		return fmt.Errorf("scanorchestrator: load manifest: %w", err)
	}

	patches := EnumeratePatches(cfg.Resolution, cfg.LatMin, cfg.LatMax, cfg.LonMin, cfg.LonMax)
	order := prioritize(patches, manifest, cfg.MaxRetries)

	consecutiveFailures := 0
	for _, id := range order {
		if cfg.ShouldStop != nil && cfg.ShouldStop() {
			return nil
		}

		if err := cfg.Store.UpdatePatchManifest(cfg.Resolution, id, func(e *types.ManifestEntry) {
			e.Status = types.PatchInProgress
			e.Timestamp = cfg.Now().Unix()
		}); err != nil {
			return fmt.Errorf("scanorchestrator: mark in_progress %s: %w", id, err)
		}

		patch, runErr := cfg.Run(ctx, id)
		if runErr != nil {
			consecutiveFailures++
			_ = cfg.Store.UpdatePatchManifest(cfg.Resolution, id, func(e *types.ManifestEntry) {
				e.Status = types.PatchFailed
				e.Retries++
				e.LastError = runErr.Error()
				e.Timestamp = cfg.Now().Unix()
			})
			if consecutiveFailures >= cfg.MaxConsecutiveFailures {
				return fmt.Errorf("scanorchestrator: aborting after %d consecutive failures: %w", consecutiveFailures, runErr)
			}
			cfg.Sleep(backoffDuration(consecutiveFailures))
			continue
		}
		consecutiveFailures = 0

		if err := cfg.Store.PutPatch(cfg.Resolution, id, patch); err != nil {
			return fmt.Errorf("scanorchestrator: store patch %s: %w", id, err)
		}
		if err := cfg.Store.UpdatePatchManifest(cfg.Resolution, id, func(e *types.ManifestEntry) {
			e.Status = types.PatchComplete
			e.CellCount = patch.CellCount
			e.Phases = []string{"elevation", "landcover", "vector", "gazetteer", "classify", "postprocess", "encode"}
			e.Timestamp = cfg.Now().Unix()
			e.LastError = ""
		}); err != nil {
			return fmt.Errorf("scanorchestrator: mark complete %s: %w", id, err)
		}

		cfg.Sleep(cfg.YieldBetweenPatches)
	}
	return nil
}

// VerifyReport summarizes verify_scan's findings (spec.md §4.12).
type VerifyReport struct {
	Checked             int
	CRCMismatches       []string
	CellCountMismatches []string
	FieldErrors         map[string][]string
	StaleInProgress     []string
	IncompletePhases    []string
	UncoveredZones      []string
}

// VerifyScan spot-checks completed patches and reports manifest-level
// anomalies (spec.md §4.12 "verify_scan").
func VerifyScan(store *cellstore.Store, resolution float64, latMin, latMax, lonMin, lonMax float64, expectedPhases []string, staleAfter time.Duration, now time.Time) (*VerifyReport, error) {
	manifest, err := store.LoadManifest(resolution)
	if err != nil {
		return nil, fmt.Errorf("scanorchestrator: verify_scan load manifest: %w", err)
	}

	report := &VerifyReport{FieldErrors: make(map[string][]string)}

	covered := make(map[string]bool)
	zoneSize := 10.0

	for key, entry := range manifest.Entries {
		if entry.Status == types.PatchInProgress && now.Sub(time.Unix(entry.Timestamp, 0)) > staleAfter {
			report.StaleInProgress = append(report.StaleInProgress, key)
		}
		if entry.Status != types.PatchComplete {
			continue
		}
		if !phasesComplete(entry.Phases, expectedPhases) {
			report.IncompletePhases = append(report.IncompletePhases, key)
		}

		id, err := parsePatchKey(key)
		if err == nil {
			bbox := id.BoundingBox()
			zone := zoneKey(bbox.South, bbox.West, zoneSize)
			covered[zone] = true
		}

		report.Checked++
		patch, err := store.GetPatch(resolution, id)
		if err != nil || patch == nil {
			report.FieldErrors[key] = append(report.FieldErrors[key], "patch buffer missing")
			continue
		}
		if codec.CRC32(patch.Buffer) != patch.CRC32 {
			report.CRCMismatches = append(report.CRCMismatches, key)
		}
		if patch.CellCount != entry.CellCount {
			report.CellCountMismatches = append(report.CellCountMismatches, key)
		}

		decoded, err := codec.DecodePatch(patch, true)
		if err != nil {
			report.FieldErrors[key] = append(report.FieldErrors[key], err.Error())
			continue
		}
		sampleCount := 10
		if len(decoded) < sampleCount {
			sampleCount = len(decoded)
		}
		for i := 0; i < sampleCount; i++ {
			for _, fe := range decoded[i].Cell.ValidationErrors {
				report.FieldErrors[key] = append(report.FieldErrors[key], fe)
			}
		}
	}

	for lat := latMin; lat < latMax-1e-9; lat += zoneSize {
		for lon := lonMin; lon < lonMax-1e-9; lon += zoneSize {
			zone := zoneKey(lat, lon, zoneSize)
			if !covered[zone] {
				report.UncoveredZones = append(report.UncoveredZones, zone)
			}
		}
	}
	sort.Strings(report.UncoveredZones)

	return report, nil
}

func phasesComplete(got, expected []string) bool {
	if len(expected) == 0 {
		return true
	}
	have := make(map[string]bool, len(got))
	for _, p := range got {
		have[p] = true
	}
	for _, p := range expected {
		if !have[p] {
			return false
		}
	}
	return true
}

func zoneKey(lat, lon, size float64) string {
	zLat := math.Floor(lat/size) * size
	zLon := math.Floor(lon/size) * size
	return fmt.Sprintf("%.0f,%.0f", zLat, zLon)
}

func parsePatchKey(key string) (types.PatchID, error) {
	var side, swLat, swLon float64
	_, err := fmt.Sscanf(key, "%f/%f,%f", &side, &swLat, &swLon)
	if err != nil {
		return types.PatchID{}, err
	}
	return types.PatchID{SWLat: swLat, SWLon: swLon, Side: side}, nil
}

package types

import "fmt"

// PatchStatus is the manifest lifecycle state for one patch.
type PatchStatus string

const (
	PatchPending    PatchStatus = "pending"
	PatchInProgress PatchStatus = "in_progress"
	PatchComplete   PatchStatus = "complete"
	PatchFailed     PatchStatus = "failed"
)

// PatchID encodes a patch's SW corner and side length. A patch at
// resolution R covers [SWLat, SWLat+Side) x [SWLon, SWLon+Side).
type PatchID struct {
	SWLat float64
	SWLon float64
	Side  float64// degrees, typically 3 (coarse) or 1 (fine)
}

// String renders a stable key such as "3.00/12.00,-8.00" used as the
// CellStore key and the manifest's map key.
func (p PatchID) String() string {
	return fmt.Sprintf("%.2f/%.2f,%.2f", p.Side, p.SWLat, p.SWLon)
}

// BoundingBox returns the geographic box this patch covers.
func (p PatchID) BoundingBox() BoundingBox {
	return BoundingBox{
		South: p.SWLat,
		North: p.SWLat + p.Side,
		West:  p.SWLon,
		East:  p.SWLon + p.Side,
	}
}

// Patch is the immutable bag of encoded cells for one (resolution, patchId).
type Patch struct {
	Resolution    float64 // degrees (matches PatchID.Side)
	ID            PatchID
	Buffer        []byte            // fixed-stride cell records, see codec package
	NameTable     []map[string]string // indexed by the per-cell 16-bit name-table index
	CellCount     int
	FormatVersion uint8
	CRC32         uint32
}

// ManifestEntry is one patch's lifecycle record within a resolution's manifest.
type ManifestEntry struct {
	Status      PatchStatus
	Phases      []string // which pipeline phases completed for this patch
	CellCount   int
	Timestamp   int64 // unix seconds
	Retries     int
	LastError   string
}

// Manifest is the per-resolution mapping of patchId -> lifecycle record.
type Manifest struct {
	Resolution float64
	Entries    map[string]*ManifestEntry
}

// NewManifest returns an empty manifest for the given resolution.
func NewManifest(resolution float64) *Manifest {
	return &Manifest{Resolution: resolution, Entries: make(map[string]*ManifestEntry)}
}

// Get returns the entry for id, creating a pending one if absent.
func (m *Manifest) Get(id PatchID) *ManifestEntry {
	key := id.String()
	e, ok := m.Entries[key]
	if !ok {
		e = &ManifestEntry{Status: PatchPending}
		m.Entries[key] = e
	}
	return e
}

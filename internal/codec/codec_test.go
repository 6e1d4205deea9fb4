package codec

import (
	"testing"

	"github.com/MeKo-Tech/worldfusion/internal/types"
)

func sampleCell() types.Cell {
	c := types.NewCell()
	c.Terrain = types.TerrainForest
	c.Infrastructure = types.InfraRoad
	c.Elevation = 312
	c.Features = c.Features.With(types.FeatureTreeline).With(types.FeatureRidgeline)
	c.FeatureNames = map[string]string{"settlement": "Riverton"}
	c.Confidence = 0.75
	c.SlopeAngle = 12
	c.ClimateZone = 3
	c.PopulationThous = 42
	return c
}

func TestEncodeDecodeCellRoundTrip(t *testing.T) {
	c := sampleCell()
	buf := EncodeCell(c, 12.5, -3.25, 7)
	if len(buf) != StrideV1 {
		t.Fatalf("expected %d-byte record, got %d", StrideV1, len(buf))
	}

	dc, err := DecodeCell(buf, false)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if dc.Cell.Terrain != c.Terrain {
		t.Errorf("terrain mismatch: got %v want %v", dc.Cell.Terrain, c.Terrain)
	}
	if dc.Cell.Infrastructure != c.Infrastructure {
		t.Errorf("infrastructure mismatch")
	}
	if dc.Cell.Elevation != c.Elevation {
		t.Errorf("elevation mismatch: got %d want %d", dc.Cell.Elevation, c.Elevation)
	}
	if dc.Cell.Features != c.Features {
		t.Errorf("features mismatch: got %v want %v", dc.Cell.Features, c.Features)
	}
	if dc.NameIdx != 7 {
		t.Errorf("name index mismatch: got %d want 7", dc.NameIdx)
	}
	if dc.Lat != 12.5 || dc.Lon != -3.25 {
		t.Errorf("lat/lon mismatch: got (%v,%v)", dc.Lat, dc.Lon)
	}
	// Confidence is quantized to 8 bits; allow the law's tolerance.
	if diff := dc.Cell.Confidence - c.Confidence; diff > 1.0/255 || diff < -1.0/255 {
		t.Errorf("confidence drifted beyond 8-bit quantization: got %v want %v", dc.Cell.Confidence, c.Confidence)
	}
	if dc.Cell.SlopeAngle != c.SlopeAngle {
		t.Errorf("slope mismatch")
	}
	if dc.Cell.PopulationThous != c.PopulationThous {
		t.Errorf("population mismatch")
	}
}

func TestElevationClamp(t *testing.T) {
	c := sampleCell()
	c.Elevation = 100000
	buf := EncodeCell(c, 0, 0, NoNameIndex)
	dc, err := DecodeCell(buf, false)
	if err != nil {
		t.Fatal(err)
	}
	if dc.Cell.Elevation != 32767 {
		t.Errorf("expected elevation clamped to 32767, got %d", dc.Cell.Elevation)
	}
}

func TestDecodeOutOfRangeIndicesFallBackToZero(t *testing.T) {
	buf := make([]byte, StrideV1)
	buf[0] = 255 // out-of-range terrain
	buf[1] = 255 // out-of-range infrastructure
	binEncodeVersion(buf)

	dc, err := DecodeCell(buf, true)
	if err != nil {
		t.Fatal(err)
	}
	if dc.Cell.Terrain != types.TerrainDeepWater {
		t.Errorf("expected fallback to deep_water, got %v", dc.Cell.Terrain)
	}
	if dc.Cell.Infrastructure != types.InfraNone {
		t.Errorf("expected fallback to none, got %v", dc.Cell.Infrastructure)
	}
	if len(dc.Cell.ValidationErrors) != 2 {
		t.Errorf("expected 2 validation errors, got %d: %v", len(dc.Cell.ValidationErrors), dc.Cell.ValidationErrors)
	}
}

func binEncodeVersion(buf []byte) {
	buf[23] = CurrentVersion
}

func TestEncodeDecodePatchRoundTrip(t *testing.T) {
	cells := make([]types.Cell, 0, 1000)
	lats := make([]float32, 0, 1000)
	lons := make([]float32, 0, 1000)

	for i := 0; i < int(types.TerrainCount())*0+1000; i++ {
		c := types.NewCell()
		c.Terrain = types.Terrain(i % types.TerrainCount())
		c.Infrastructure = types.Infrastructure(i % types.InfrastructureCount())
		c.Elevation = int32(i - 500)
		c.Features = types.FeatureSet(i) // exercise varied bit patterns
		if i%10 == 0 {
			c.FeatureNames = map[string]string{"town": "Place"}
		}
		cells = append(cells, c)
		lats = append(lats, float32(i)*0.001)
		lons = append(lons, float32(i)*-0.001)
	}

	id := types.PatchID{SWLat: 10, SWLon: 20, Side: 3}
	patch, err := EncodePatch(3, id, cells, lats, lons)
	if err != nil {
		t.Fatalf("encode patch: %v", err)
	}
	if patch.CRC32 != CRC32(patch.Buffer) {
		t.Fatalf("crc32 mismatch right after encode")
	}

	decoded, err := DecodePatch(patch, false)
	if err != nil {
		t.Fatalf("decode patch: %v", err)
	}
	if len(decoded) != len(cells) {
		t.Fatalf("expected %d decoded cells, got %d", len(cells), len(decoded))
	}
	for i, dc := range decoded {
		if dc.Cell.Terrain != cells[i].Terrain || dc.Cell.Infrastructure != cells[i].Infrastructure {
			t.Fatalf("cell %d terrain/infra mismatch", i)
		}
		if dc.Cell.Features != cells[i].Features {
			t.Fatalf("cell %d features mismatch", i)
		}
		if i%10 == 0 {
			if dc.Cell.FeatureNames["town"] != "Place" {
				t.Fatalf("cell %d expected name table entry", i)
			}
		} else if len(dc.Cell.FeatureNames) != 0 {
			t.Fatalf("cell %d expected no names, got %v", i, dc.Cell.FeatureNames)
		}
	}
}

func TestCRC32MismatchDetectedOnBitFlip(t *testing.T) {
	cells := []types.Cell{sampleCell()}
	id := types.PatchID{SWLat: 0, SWLon: 0, Side: 3}
	patch, err := EncodePatch(3, id, cells, []float32{1}, []float32{2})
	if err != nil {
		t.Fatal(err)
	}

	original := patch.CRC32
	patch.Buffer[0] ^= 0xFF // flip a byte

	if CRC32(patch.Buffer) == original {
		t.Fatal("expected CRC32 to change after byte flip")
	}
}

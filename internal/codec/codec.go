// Package codec implements BinaryCodec: the fixed-stride little-endian
// per-cell encoding with CRC32 and a name side-table (spec.md §4.10).
package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/MeKo-Tech/worldfusion/internal/types"
)

// CurrentVersion is the format version written by Encode. Legacy readers
// may still encounter version 0 records (24-byte stride, no slope/climate/
// population fields).
const CurrentVersion uint8 = 1

// StrideV1 is the current 28-byte record size; StrideLegacy is the
// 24-byte legacy stride implied by format version 0 (spec.md §4.10).
const (
	StrideV1     = 28
	StrideLegacy = 24
)

// NoNameIndex marks a cell with no entry in the patch's name table.
const NoNameIndex uint16 = 0xFFFF

// strideFor returns the record size for a given format version byte.
func strideFor(version uint8) int {
	if version == 0 {
		return StrideLegacy
	}
	return StrideV1
}

// EncodeCell writes one cell's record, little-endian, at the current
// format version. lat/lon are the cell's geographic center.
func EncodeCell(c types.Cell, lat, lon float32, nameIdx uint16) []byte {
	buf := make([]byte, StrideV1)
	buf[0] = uint8(c.Terrain)
	buf[1] = uint8(c.Infrastructure)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(clampElevation(c.Elevation)))
	mask := uint64(c.Features)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(mask))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(mask>>32))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(lat))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(lon))
	binary.LittleEndian.PutUint16(buf[20:22], nameIdx)
	buf[22] = quantizeConfidence(c.Confidence)
	buf[23] = CurrentVersion
	buf[24] = clampSlope(c.SlopeAngle)
	buf[25] = c.ClimateZone
	binary.LittleEndian.PutUint16(buf[26:28], c.PopulationThous)
	return buf
}

func quantizeConfidence(v float64) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint8(math.Round(v * 255))
}

// clampElevation clamps to the signed 16-bit range the wire format uses
// (spec.md §8 round-trip law: "elevation clamp to [-32768, 32767]").
func clampElevation(e int32) int16 {
	if e > math.MaxInt16 {
		return math.MaxInt16
	}
	if e < math.MinInt16 {
		return math.MinInt16
	}
	return int16(e)
}

// clampSlope clamps to [0, 90] per the round-trip law.
func clampSlope(s uint8) uint8 {
	if s > 90 {
		return 90
	}
	return s
}

// DecodedCell is one decoded record plus its geographic center and
// name-table reference.
type DecodedCell struct {
	Cell     types.Cell
	Lat, Lon float32
	NameIdx  uint16
}

// DecodeCell reads one record, auto-detecting the stride from byte 23
// (format version). Out-of-range terrain/infrastructure indices fall back
// to index 0 (deep_water / none) rather than erroring, per spec.md §4.10.
// When validate is true, field-level errors are collected onto
// Cell.ValidationErrors instead of aborting.
func DecodeCell(buf []byte, validate bool) (DecodedCell, error) {
	if len(buf) < StrideLegacy {
		return DecodedCell{}, fmt.Errorf("codec: record too short: %d bytes", len(buf))
	}
	version := byte(0)
	if len(buf) >= StrideV1 {
		version = buf[23]
	}
	stride := strideFor(version)
	if len(buf) < stride {
		return DecodedCell{}, fmt.Errorf("codec: record too short for version %d: %d bytes", version, len(buf))
	}

	var errs []string

	terrainIdx := buf[0]
	terrain := types.Terrain(terrainIdx)
	if int(terrainIdx) >= types.TerrainCount() {
		if validate {
			errs = append(errs, fmt.Sprintf("terrain index %d out of range", terrainIdx))
		}
		terrain = types.TerrainDeepWater
	}

	infraIdx := buf[1]
	infra := types.Infrastructure(infraIdx)
	if int(infraIdx) >= types.InfrastructureCount() {
		if validate {
			errs = append(errs, fmt.Sprintf("infrastructure index %d out of range", infraIdx))
		}
		infra = types.InfraNone
	}

	elevation := int32(int16(binary.LittleEndian.Uint16(buf[2:4])))
	if validate && (elevation < -500 || elevation > 9000) {
		errs = append(errs, fmt.Sprintf("elevation %d outside [-500, 9000]", elevation))
	}

	lo := binary.LittleEndian.Uint32(buf[4:8])
	hi := binary.LittleEndian.Uint32(buf[8:12])
	mask := types.FeatureSet(uint64(hi)<<32 | uint64(lo))

	lat := math.Float32frombits(binary.LittleEndian.Uint32(buf[12:16]))
	lon := math.Float32frombits(binary.LittleEndian.Uint32(buf[16:20]))
	if validate && (lat < -90 || lat > 90) {
		errs = append(errs, fmt.Sprintf("latitude %f out of range", lat))
	}
	if validate && (lon < -180 || lon > 180) {
		errs = append(errs, fmt.Sprintf("longitude %f out of range", lon))
	}

	nameIdx := binary.LittleEndian.Uint16(buf[20:22])

	confidence := float64(buf[22]) / 255.0

	var slope, climate uint8
	var population uint16
	if stride == StrideV1 {
		slope = buf[24]
		climate = buf[25]
		population = binary.LittleEndian.Uint16(buf[26:28])
	}

	c := types.NewCell()
	c.Terrain = terrain
	c.Infrastructure = infra
	c.Elevation = elevation
	c.Features = mask
	c.Confidence = confidence
	c.SlopeAngle = slope
	c.ClimateZone = climate
	c.PopulationThous = population
	if validate {
		c.ValidationErrors = errs
	}

	return DecodedCell{Cell: c, Lat: lat, Lon: lon, NameIdx: nameIdx}, nil
}

// CRC32 computes the encoded buffer's checksum using the IEEE polynomial
// (0xEDB88320), as required by spec.md §4.10.
func CRC32(buf []byte) uint32 {
	return crc32.ChecksumIEEE(buf)
}

// EncodePatch encodes a full grid of cells (row-major over cols×rows) into
// a Patch record: a concatenated cell buffer, a name table with one entry
// per named cell (identical entries are not merged), and the buffer's
// CRC32. Cells with no FeatureNames get NoNameIndex.
func EncodePatch(resolution float64, id types.PatchID, cells []types.Cell, lats, lons []float32) (*types.Patch, error) {
	n := len(cells)
	if len(lats) != n || len(lons) != n {
		return nil, fmt.Errorf("codec: cells/lats/lons length mismatch: %d/%d/%d", n, len(lats), len(lons))
	}

	buf := make([]byte, 0, n*StrideV1)
	var nameTable []map[string]string

	for i, c := range cells {
		nameIdx := NoNameIndex
		if len(c.FeatureNames) > 0 {
			if len(nameTable) >= int(NoNameIndex) {
				return nil, fmt.Errorf("codec: name table exceeds 16-bit index space")
			}
			nameIdx = uint16(len(nameTable))
			nameTable = append(nameTable, c.FeatureNames)
		}
		buf = append(buf, EncodeCell(c, lats[i], lons[i], nameIdx)...)
	}

	return &types.Patch{
		Resolution:    resolution,
		ID:            id,
		Buffer:        buf,
		NameTable:     nameTable,
		CellCount:     n,
		FormatVersion: CurrentVersion,
		CRC32:         CRC32(buf),
	}, nil
}

// DecodePatch decodes a Patch's buffer back into cells, resolving each
// cell's name-table index against the patch's name table. When validate is
// true, each cell carries its field-level validation errors.
func DecodePatch(p *types.Patch, validate bool) ([]DecodedCell, error) {
	if p.CellCount == 0 && len(p.Buffer) == 0 {
		return nil, nil
	}
	stride := StrideV1
	if p.FormatVersion == 0 {
		stride = StrideLegacy
	}
	if len(p.Buffer)%stride != 0 {
		return nil, fmt.Errorf("codec: buffer length %d not a multiple of stride %d", len(p.Buffer), stride)
	}
	count := len(p.Buffer) / stride
	out := make([]DecodedCell, 0, count)
	for i := 0; i < count; i++ {
		rec := p.Buffer[i*stride : (i+1)*stride]
		dc, err := DecodeCell(rec, validate)
		if err != nil {
			return nil, fmt.Errorf("codec: decoding cell %d: %w", i, err)
		}
		if dc.NameIdx != NoNameIndex {
			if int(dc.NameIdx) < len(p.NameTable) {
				dc.Cell.FeatureNames = p.NameTable[dc.NameIdx]
			} else if validate {
				dc.Cell.ValidationErrors = append(dc.Cell.ValidationErrors,
					fmt.Sprintf("dangling name-table index %d", dc.NameIdx))
			}
		}
		out = append(out, dc)
	}
	return out, nil
}

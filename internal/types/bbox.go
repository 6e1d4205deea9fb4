// Package types holds the data model shared by every stage of the fusion
// pipeline: bounding boxes, the cell record, and the patch/manifest records
// used by CellStore.
package types

import "fmt"

// BoundingBox is an inclusive geographic rectangle in degrees.
type BoundingBox struct {
	South float64
	North float64
	West  float64
	East  float64
}

// Valid reports whether the box is well-formed.
func (b BoundingBox) Valid() bool {
	return b.South <= b.North && b.West <= b.East
}

// Width returns the box's longitude span in degrees.
func (b BoundingBox) Width() float64 { return b.East - b.West }

// Height returns the box's latitude span in degrees.
func (b BoundingBox) Height() float64 { return b.North - b.South }

// Contains reports whether (lat, lon) falls inside the box, inclusive.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.South && lat <= b.North && lon >= b.West && lon <= b.East
}

// Intersects reports whether two bounding boxes share any geographic area.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	lonOverlap := b.West <= o.East && b.East >= o.West
	latOverlap := b.South <= o.North && b.North >= o.South
	return lonOverlap && latOverlap
}

// ExpandByFraction grows the box on every side by frac * the box's own
// width/height. Used by the gazetteer resolver's expanded-bbox query.
func (b BoundingBox) ExpandByFraction(frac float64) BoundingBox {
	dLat := b.Height() * frac
	dLon := b.Width() * frac
	return BoundingBox{
		South: b.South - dLat,
		North: b.North + dLat,
		West:  b.West - dLon,
		East:  b.East + dLon,
	}
}

// ExpandByDegrees grows the box on every side by a fixed degree margin.
func (b BoundingBox) ExpandByDegrees(margin float64) BoundingBox {
	return BoundingBox{
		South: b.South - margin,
		North: b.North + margin,
		West:  b.West - margin,
		East:  b.East + margin,
	}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%.6f,%.6f,%.6f,%.6f)", b.South, b.West, b.North, b.East)
}

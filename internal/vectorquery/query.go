package vectorquery

import (
	"fmt"

	"github.com/MeKo-Tech/worldfusion/internal/types"
)

// buildTierQuery composes the full Overpass QL query for a chunk at the
// given tier. Tier gates which highway/railway/waterway subtypes and power
// plant sources enter the pipeline (spec.md §4.6).
func buildTierQuery(bbox types.BoundingBox, tier types.Tier) string {
	box := fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", bbox.South, bbox.West, bbox.North, bbox.East)

	var parts []string
	parts = append(parts, terrainAreaParts(box)...)
	parts = append(parts, infraAreaParts(box)...)
	parts = append(parts, infraLineParts(box, tier)...)
	parts = append(parts, waterLineParts(box, tier)...)
	parts = append(parts, miscParts(box, tier)...)

	return wrapQuery(parts)
}

// buildTerrainOnlyQuery is the degraded fallback sent after the full tier
// query exhausts its retries: terrain areas only, no roads/rail/infra lines
// (spec.md §4.5).
func buildTerrainOnlyQuery(bbox types.BoundingBox) string {
	box := fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", bbox.South, bbox.West, bbox.North, bbox.East)
	return wrapQuery(terrainAreaParts(box))
}

func wrapQuery(parts []string) string {
	query := "[out:json][timeout:60];\n(\n"
	for _, p := range parts {
		query += "  " + p + "\n"
	}
	query += ");\nout geom qt;"
	return query
}

func terrainAreaParts(box string) []string {
	return []string{
		fmt.Sprintf(`way["natural"="water"](%s);`, box),
		fmt.Sprintf(`relation["natural"="water"]["type"="multipolygon"](%s);`, box),
		fmt.Sprintf(`way["natural"="wood"](%s);`, box),
		fmt.Sprintf(`way["landuse"="forest"](%s);`, box),
		fmt.Sprintf(`way["landuse"="farmland"](%s);`, box),
		fmt.Sprintf(`way["landuse"="meadow"](%s);`, box),
		fmt.Sprintf(`way["natural"="grassland"](%s);`, box),
		fmt.Sprintf(`way["natural"="scrub"](%s);`, box),
		fmt.Sprintf(`way["natural"="wetland"](%s);`, box),
		fmt.Sprintf(`way["natural"="glacier"](%s);`, box),
		fmt.Sprintf(`way["natural"="sand"](%s);`, box),
		fmt.Sprintf(`way["natural"="beach"](%s);`, box),
		fmt.Sprintf(`way["landuse"="residential"](%s);`, box),
		fmt.Sprintf(`way["landuse"="industrial"](%s);`, box),
	}
}

func infraAreaParts(box string) []string {
	return []string{
		fmt.Sprintf(`way["aeroway"="aerodrome"](%s);`, box),
		fmt.Sprintf(`way["landuse"="military"](%s);`, box),
		fmt.Sprintf(`way["harbour"="yes"](%s);`, box),
		fmt.Sprintf(`way["landuse"="port"](%s);`, box),
	}
}

// infraLineParts adds highway/railway ways, gated by tier per spec.md §4.6:
// residential only at sub-tactical, tertiary at <=tactical, motorway/trunk/
// primary always.
func infraLineParts(box string, tier types.Tier) []string {
	parts := []string{
		fmt.Sprintf(`way["highway"~"motorway|trunk|primary"](%s);`, box),
		fmt.Sprintf(`way["railway"="rail"](%s);`, box),
	}
	if tier <= types.Tactical {
		parts = append(parts, fmt.Sprintf(`way["highway"~"secondary|tertiary"](%s);`, box))
	}
	if tier == types.SubTactical {
		parts = append(parts, fmt.Sprintf(`way["highway"="residential"](%s);`, box))
	}
	return parts
}

func waterLineParts(box string, tier types.Tier) []string {
	parts := []string{
		fmt.Sprintf(`way["waterway"="river"](%s);`, box),
		fmt.Sprintf(`relation["waterway"="river"](%s);`, box),
		fmt.Sprintf(`way["waterway"="canal"](%s);`, box),
	}
	if tier <= types.Operational {
		parts = append(parts, fmt.Sprintf(`way["waterway"="stream"](%s);`, box))
	}
	return parts
}

func miscParts(box string, tier types.Tier) []string {
	parts := []string{
		fmt.Sprintf(`node["waterway"="dam"](%s);`, box),
		fmt.Sprintf(`way["waterway"="dam"](%s);`, box),
		fmt.Sprintf(`way["building"](%s);`, box),
		fmt.Sprintf(`way["barrier"~"wall|fence|city_wall"](%s);`, box),
		fmt.Sprintf(`node["man_made"="tower"](%s);`, box),
		fmt.Sprintf(`way["man_made"="pipeline"](%s);`, box),
		fmt.Sprintf(`way["power"="plant"]["plant:source"~"nuclear|coal|gas|oil|hydro"](%s);`, box),
		fmt.Sprintf(`node["place"~"city|town|village"](%s);`, box),
		fmt.Sprintf(`way["barrier"="hedge"](%s);`, box),
	}
	if tier == types.SubTactical {
		parts = append(parts, fmt.Sprintf(`way["power"="plant"](%s);`, box))
	}
	return parts
}

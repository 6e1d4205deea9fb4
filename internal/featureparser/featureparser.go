// Package featureparser implements FeatureParser: demultiplexing raw
// vector elements into the typed buckets the classifier consumes
// (spec.md §4.6).
package featureparser

import (
	"github.com/MeKo-Tech/worldfusion/internal/types"
	"github.com/MeKo-Tech/worldfusion/internal/vectorquery"
)

type ring = []vectorquery.Point

// TerrainArea is one closed-ring terrain polygon, tagged with the priority
// used for PIP overlay ordering (lower priority is drawn/decided first).
type TerrainArea struct {
	Priority int
	Tags     map[string]string
	Ring     ring
}

type InfraArea struct {
	Kind string // "airfield", "port", "military_base"
	Ring ring
}

type InfraLine struct {
	Kind   string // "motorway", "trunk", ..., "rail"
	Bridge bool
	Tunnel bool
	Nodes  ring
}

type WaterLine struct{ Nodes ring }

// NavigableLine is a waterway candidate for the navigable_waterway feature
// tag, carrying enough provenance for the classifier/gazetteer to decide.
type NavigableLine struct {
	Nodes        ring
	Tagged       bool // explicit OSM navigability tag
	Named        bool
	FromRelation bool
	ActualName   string
}

type StreamLine struct{ Nodes ring }
type DamNode struct{ Point vectorquery.Point }
type BuildingArea struct{ Ring ring }
type BarrierLine struct {
	Kind  string
	Nodes ring
}
type TowerNode struct{ Point vectorquery.Point }
type BeachArea struct{ Ring ring }
type PipelineLine struct{ Nodes ring }
type PowerPlantArea struct {
	Ring   ring
	Source string
}

// PlaceNode is a named settlement ranked city=3, town=2, village=1.
type PlaceNode struct {
	Point vectorquery.Point
	Name  string
	Rank  int
}

type HedgeLine struct{ Nodes ring }

// FeatureSet is the full demultiplexed output for one chunk/bbox.
type FeatureSet struct {
	TerrainAreas    []TerrainArea
	InfraAreas      []InfraArea
	InfraLines      []InfraLine
	WaterLines      []WaterLine
	NavigableLines  []NavigableLine
	StreamLines     []StreamLine
	DamNodes        []DamNode
	BuildingAreas   []BuildingArea
	BarrierLines    []BarrierLine
	TowerNodes      []TowerNode
	BeachAreas      []BeachArea
	PipelineLines   []PipelineLine
	PowerPlantAreas []PowerPlantArea
	PlaceNodes      []PlaceNode
	HedgeLines      []HedgeLine
}

// Parse demultiplexes elements into a FeatureSet, applying tier gates to
// highway/railway/waterway subtypes and power plant sources (spec.md §4.6).
func Parse(elements []vectorquery.Element, tier types.Tier) FeatureSet {
	var fs FeatureSet

	for _, el := range elements {
		switch el.Type {
		case "way":
			parseWay(el, tier, &fs)
		case "relation":
			parseRelation(el, tier, &fs)
		case "node":
			parseNode(el, &fs)
		}
	}

	sortTerrainAreasByPriority(fs.TerrainAreas)
	return fs
}

func parseWay(el vectorquery.Element, tier types.Tier, fs *FeatureSet) {
	tags := el.Tags
	nodes := el.Geometry
	closed := isClosedRing(nodes)

	switch {
	case closed && isTerrainTag(tags):
		fs.TerrainAreas = append(fs.TerrainAreas, TerrainArea{Priority: terrainPriority(tags), Tags: tags, Ring: nodes})
	case closed && isInfraAreaTag(tags):
		fs.InfraAreas = append(fs.InfraAreas, InfraArea{Kind: infraAreaKind(tags), Ring: nodes})
	case closed && tags["building"] != "":
		fs.BuildingAreas = append(fs.BuildingAreas, BuildingArea{Ring: nodes})
	case closed && (tags["natural"] == "beach" || tags["natural"] == "sand"):
		fs.BeachAreas = append(fs.BeachAreas, BeachArea{Ring: nodes})
	case closed && tags["power"] == "plant":
		if source, ok := powerSourceGate(tags, tier); ok {
			fs.PowerPlantAreas = append(fs.PowerPlantAreas, PowerPlantArea{Ring: nodes, Source: source})
		}
	case tags["highway"] != "" && highwayGate(tags["highway"], tier):
		fs.InfraLines = append(fs.InfraLines, InfraLine{Kind: tags["highway"], Bridge: isTruthy(tags["bridge"]), Tunnel: isTruthy(tags["tunnel"]), Nodes: nodes})
	case tags["railway"] != "" && railwayGate(tags["railway"], tier):
		fs.InfraLines = append(fs.InfraLines, InfraLine{Kind: "rail", Bridge: isTruthy(tags["bridge"]), Tunnel: isTruthy(tags["tunnel"]), Nodes: nodes})
	case tags["waterway"] == "river" || tags["waterway"] == "canal":
		fs.WaterLines = append(fs.WaterLines, WaterLine{Nodes: nodes})
		fs.NavigableLines = append(fs.NavigableLines, NavigableLine{
			Nodes: nodes, Tagged: isNavigableTag(tags), Named: tags["name"] != "", ActualName: tags["name"],
		})
	case tags["waterway"] == "stream" && waterwayGate("stream", tier):
		fs.StreamLines = append(fs.StreamLines, StreamLine{Nodes: nodes})
	case tags["waterway"] == "dam":
		fs.DamNodes = append(fs.DamNodes, DamNode{Point: centroidOrFirst(nodes)})
	case isBarrierTag(tags) && tags["barrier"] != "hedge":
		fs.BarrierLines = append(fs.BarrierLines, BarrierLine{Kind: tags["barrier"], Nodes: nodes})
	case tags["barrier"] == "hedge":
		fs.HedgeLines = append(fs.HedgeLines, HedgeLine{Nodes: nodes})
	case tags["man_made"] == "pipeline":
		fs.PipelineLines = append(fs.PipelineLines, PipelineLine{Nodes: nodes})
	}
}

func parseRelation(el vectorquery.Element, tier types.Tier, fs *FeatureSet) {
	tags := el.Tags
	isNamedWaterway := tags["waterway"] != "" && tags["name"] != ""

	for _, m := range el.Members {
		if m.Type != "way" || m.Role != "outer" || len(m.Geometry) == 0 {
			continue
		}
		if isTerrainTag(tags) {
			fs.TerrainAreas = append(fs.TerrainAreas, TerrainArea{Priority: terrainPriority(tags), Tags: tags, Ring: m.Geometry})
		}
		if isNamedWaterway {
			fs.NavigableLines = append(fs.NavigableLines, NavigableLine{
				Nodes: m.Geometry, Tagged: isNavigableTag(tags), Named: true, FromRelation: true, ActualName: tags["name"],
			})
		}
	}
}

func parseNode(el vectorquery.Element, fs *FeatureSet) {
	tags := el.Tags
	pt := vectorquery.Point{} // nodes carry their point in Geometry[0] if present
	if len(el.Geometry) > 0 {
		pt = el.Geometry[0]
	}

	switch {
	case tags["waterway"] == "dam":
		fs.DamNodes = append(fs.DamNodes, DamNode{Point: pt})
	case tags["man_made"] == "tower":
		fs.TowerNodes = append(fs.TowerNodes, TowerNode{Point: pt})
	case tags["place"] == "city":
		fs.PlaceNodes = append(fs.PlaceNodes, PlaceNode{Point: pt, Name: tags["name"], Rank: 3})
	case tags["place"] == "town":
		fs.PlaceNodes = append(fs.PlaceNodes, PlaceNode{Point: pt, Name: tags["name"], Rank: 2})
	case tags["place"] == "village":
		fs.PlaceNodes = append(fs.PlaceNodes, PlaceNode{Point: pt, Name: tags["name"], Rank: 1})
	}
}

func isClosedRing(nodes ring) bool {
	return len(nodes) > 2 && nodes[0] == nodes[len(nodes)-1]
}

func isTerrainTag(tags map[string]string) bool {
	switch tags["natural"] {
	case "water", "wood", "wetland", "glacier", "sand", "scrub", "grassland", "heath":
		return true
	}
	switch tags["landuse"] {
	case "forest", "farmland", "meadow", "grass", "residential", "industrial":
		return true
	}
	return false
}

// terrainPriority returns an ascending priority so later overlays win
// during PIP (spec.md §4.6): water and other "background" classes first,
// built-up land last.
func terrainPriority(tags map[string]string) int {
	switch tags["natural"] {
	case "water":
		return 10
	case "wetland":
		return 12
	case "glacier":
		return 14
	case "wood":
		return 20
	case "scrub":
		return 24
	case "grassland", "heath":
		return 26
	case "sand":
		return 30
	}
	switch tags["landuse"] {
	case "forest":
		return 20
	case "farmland":
		return 22
	case "meadow", "grass":
		return 26
	case "residential":
		return 40
	case "industrial":
		return 42
	}
	return 50
}

func sortTerrainAreasByPriority(areas []TerrainArea) {
	// Small N per chunk; insertion sort keeps the dependency footprint at
	// zero and is stable, matching "ascending priority, later wins."
	for i := 1; i < len(areas); i++ {
		for j := i; j > 0 && areas[j-1].Priority > areas[j].Priority; j-- {
			areas[j-1], areas[j] = areas[j], areas[j-1]
		}
	}
}

func isInfraAreaTag(tags map[string]string) bool {
	return tags["aeroway"] == "aerodrome" || tags["landuse"] == "military" || tags["landuse"] == "port" || tags["harbour"] == "yes"
}

func infraAreaKind(tags map[string]string) string {
	switch {
	case tags["aeroway"] == "aerodrome":
		return "airfield"
	case tags["landuse"] == "military":
		return "military_base"
	default:
		return "port"
	}
}

func highwayGate(kind string, tier types.Tier) bool {
	switch kind {
	case "motorway", "trunk", "primary":
		return true
	case "secondary", "tertiary":
		return tier <= types.Tactical
	case "residential":
		return tier == types.SubTactical
	default:
		return false
	}
}

func railwayGate(kind string, tier types.Tier) bool {
	return kind == "rail"
}

func waterwayGate(kind string, tier types.Tier) bool {
	if kind == "stream" {
		return tier <= types.Operational
	}
	return true
}

// powerSourceGate filters power plants by source per spec.md §4.6:
// nuclear/fossil/hydro unconditionally, unknown only at fine tiers,
// solar/wind/biomass dropped entirely.
func powerSourceGate(tags map[string]string, tier types.Tier) (string, bool) {
	source := tags["plant:source"]
	switch source {
	case "nuclear", "coal", "gas", "oil", "hydro":
		return source, true
	case "solar", "wind", "biomass":
		return "", false
	case "":
		return "unknown", tier == types.SubTactical || tier == types.Tactical
	default:
		return source, tier == types.SubTactical || tier == types.Tactical
	}
}

func isBarrierTag(tags map[string]string) bool {
	return tags["barrier"] != ""
}

func isNavigableTag(tags map[string]string) bool {
	switch tags["boat"] {
	case "yes", "designated":
		return true
	}
	return tags["motorboat"] == "yes" || tags["ship"] == "yes"
}

func isTruthy(v string) bool {
	return v == "yes" || v == "true" || v == "1"
}

func centroidOrFirst(nodes ring) vectorquery.Point {
	if len(nodes) == 0 {
		return vectorquery.Point{}
	}
	if len(nodes) == 1 {
		return nodes[0]
	}
	var sumLat, sumLon float64
	n := len(nodes)
	if isClosedRing(nodes) {
		n-- // don't double-count the closing point
	}
	for i := 0; i < n; i++ {
		sumLat += nodes[i].Lat
		sumLon += nodes[i].Lon
	}
	return vectorquery.Point{Lat: sumLat / float64(n), Lon: sumLon / float64(n)}
}

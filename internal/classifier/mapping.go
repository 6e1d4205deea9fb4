package classifier

import (
	"math"

	"github.com/MeKo-Tech/worldfusion/internal/landcover"
	"github.com/MeKo-Tech/worldfusion/internal/types"
)

// terrainFromOSMTags maps a terrain area's tags to the terrain catalog for
// the OSM terrain vote (spec.md §4.8 step 1). Returns ok=false for tags
// that don't carry terrain meaning (the area is infra/building instead).
func terrainFromOSMTags(tags map[string]string) (types.Terrain, bool) {
	switch tags["natural"] {
	case "water":
		return types.TerrainLake, true
	case "wetland":
		return types.TerrainWetland, true
	case "glacier":
		return types.TerrainIce, true
	case "wood":
		return types.TerrainForest, true
	case "scrub", "grassland", "heath":
		return types.TerrainLightVeg, true
	case "sand", "beach":
		return types.TerrainDesert, true
	}
	switch tags["landuse"] {
	case "forest":
		return types.TerrainForest, true
	case "farmland":
		return types.TerrainFarmland, true
	case "meadow", "grass":
		return types.TerrainLightVeg, true
	case "residential":
		return types.TerrainLightUrban, true
	case "industrial":
		return types.TerrainDenseUrban, true
	}
	return types.TerrainOpenGround, false
}

// terrainFromLandCover maps the dominant ESA WorldCover-style class to a
// terrain label (spec.md §4.3/§4.8 step 2 land-cover majority fallback).
func terrainFromLandCover(c landcover.Class) types.Terrain {
	switch c {
	case landcover.ClassTreeCover:
		return types.TerrainForest
	case landcover.ClassShrubland:
		return types.TerrainLightVeg
	case landcover.ClassGrassland:
		return types.TerrainLightVeg
	case landcover.ClassCropland:
		return types.TerrainFarmland
	case landcover.ClassBuiltUp:
		return types.TerrainLightUrban
	case landcover.ClassBareSparse:
		return types.TerrainOpenGround
	case landcover.ClassSnowIce:
		return types.TerrainIce
	case landcover.ClassWater:
		return types.TerrainLake
	case landcover.ClassWetland:
		return types.TerrainWetland
	case landcover.ClassMangroves:
		return types.TerrainWetland
	case landcover.ClassMossLichen:
		return types.TerrainOpenGround
	default:
		return types.TerrainOpenGround
	}
}

// infrastructureFromLineKind maps a rasterized infra line's OSM kind to the
// infrastructure catalog (spec.md §4.8 step 7).
func infrastructureFromLineKind(kind string) types.Infrastructure {
	switch kind {
	case "motorway", "trunk":
		return types.InfraHighway
	case "primary", "secondary", "tertiary", "residential":
		return types.InfraRoad
	case "rail":
		return types.InfraRail
	default:
		return types.InfraNone
	}
}

func infrastructureFromAreaKind(kind string) types.Infrastructure {
	switch kind {
	case "airfield":
		return types.InfraAirfield
	case "port":
		return types.InfraPort
	case "military_base":
		return types.InfraMilitaryBase
	default:
		return types.InfraNone
	}
}

func infrastructureFromPowerSource(source string) types.Infrastructure {
	switch source {
	case "nuclear":
		return types.InfraPowerPlantNuclear
	case "coal", "gas", "oil":
		return types.InfraPowerPlantFossil
	case "hydro":
		return types.InfraPowerPlantHydro
	default:
		return types.InfraPowerPlantFossil
	}
}

// isAridLat reports whether latitude falls in the desert-heuristic band
// (spec.md §4.8 step 5).
func isAridLat(lat float64) bool {
	return math.Abs(lat) < 35
}

// isBareClass reports whether a land-cover class is "bare/sparse", the raw
// class that feeds the desert heuristic.
func isBareClass(c landcover.Class) bool {
	return c == landcover.ClassBareSparse
}

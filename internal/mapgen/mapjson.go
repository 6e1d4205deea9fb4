package mapgen

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// cellJSON is the Map JSON wire shape for one Cell (spec.md §3, §6):
// ordered fields, feature set rendered as its stable-order name list.
type cellJSON struct {
	Terrain        string            `json:"terrain"`
	Infrastructure string            `json:"infrastructure"`
	Elevation      int32             `json:"elevation"`
	Features       []string          `json:"features"`
	FeatureNames   map[string]string `json:"feature_names,omitempty"`
	Attributes     []string          `json:"attributes,omitempty"`
}

type mapBBoxJSON struct {
	South float64 `json:"south"`
	North float64 `json:"north"`
	West  float64 `json:"west"`
	East  float64 `json:"east"`
}

type mapCenterJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type mapBodyJSON struct {
	Cols       int                  `json:"cols"`
	Rows       int                  `json:"rows"`
	CellSizeKm float64              `json:"cellSizeKm"`
	WidthKm    float64              `json:"widthKm"`
	HeightKm   float64              `json:"heightKm"`
	GridType   string               `json:"gridType"`
	Center     mapCenterJSON        `json:"center"`
	BBox       mapBBoxJSON          `json:"bbox"`
	Cells      map[string]cellJSON  `json:"cells"`
	Labels     map[string]string    `json:"labels"`
}

type metaJSON struct {
	Generated string `json:"generated"`
	Source    string `json:"source"`
	Version   int    `json:"version"`
	Tier      string `json:"tier"`
}

type documentJSON struct {
	Map  mapBodyJSON `json:"map"`
	Meta metaJSON    `json:"_meta"`
}

// ToJSON renders the Map as the spec.md §6 Map JSON interchange document.
// generated is the ISO8601 generation timestamp (injected by the caller so
// generation itself stays deterministic and testable); source names the
// data source label to stamp into "_meta.source".
func (m *Map) ToJSON(generated time.Time, source string) ([]byte, error) {
	widthKm := m.CellSizeKm * float64(m.Proj.Cols)
	heightKm := m.CellSizeKm * float64(m.Proj.Rows) * math.Sqrt(3) / 2

	centerLon, centerLat := m.Proj.CellCenter(m.Proj.Cols/2, m.Proj.Rows/2)

	doc := documentJSON{
		Map: mapBodyJSON{
			Cols:       m.Proj.Cols,
			Rows:       m.Proj.Rows,
			CellSizeKm: m.CellSizeKm,
			WidthKm:    widthKm,
			HeightKm:   heightKm,
			GridType:   "hex",
			Center:     mapCenterJSON{Lat: centerLat, Lng: centerLon},
			BBox: mapBBoxJSON{
				South: m.Proj.BBox.South,
				North: m.Proj.BBox.North,
				West:  m.Proj.BBox.West,
				East:  m.Proj.BBox.East,
			},
			Cells:  make(map[string]cellJSON, len(m.Cells)),
			Labels: map[string]string{},
		},
		Meta: metaJSON{
			Generated: generated.UTC().Format(time.RFC3339),
			Source:    source,
			Version:   1,
			Tier:      m.Tier.String(),
		},
	}

	for row := 0; row < m.Proj.Rows; row++ {
		for col := 0; col < m.Proj.Cols; col++ {
			c := m.Cells[idx(m.Proj.Cols, col, row)]
			key := fmt.Sprintf("%d,%d", col, row)
			doc.Map.Cells[key] = cellJSON{
				Terrain:        c.Terrain.String(),
				Infrastructure: c.Infrastructure.String(),
				Elevation:      c.Elevation,
				Features:       c.Features.Names(),
				FeatureNames:   c.FeatureNames,
				Attributes:     c.Attributes.Names(),
			}
		}
	}

	return json.Marshal(doc)
}

package geom

import (
	"encoding/json"
	"fmt"
)

// Feature is one decoded GeoJSON feature: flat string properties plus the
// parsed geometry. Non-string property values are rendered with %v so callers
// can treat FIPS codes and labels uniformly.
type Feature struct {
	Properties map[string]string
	Geometry   MultiPolygon
}

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type rawFeature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   *rawGeometry   `json:"geometry"`
}

type rawCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

// ParseFeatureCollection decodes a GeoJSON FeatureCollection holding Polygon
// or MultiPolygon geometries. Features with absent or non-areal geometry are
// returned with an empty MultiPolygon rather than dropped, so callers can
// decide how to report them.
func ParseFeatureCollection(data []byte) ([]Feature, error) {
	var col rawCollection
	if err := json.Unmarshal(data, &col); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	if col.Type != "FeatureCollection" {
		return nil, fmt.Errorf("unexpected geojson type %q", col.Type)
	}
	features := make([]Feature, 0, len(col.Features))
	for i, rf := range col.Features {
		f := Feature{Properties: make(map[string]string, len(rf.Properties))}
		for k, v := range rf.Properties {
			if v == nil {
				continue
			}
			if s, ok := v.(string); ok {
				f.Properties[k] = s
			} else {
				f.Properties[k] = fmt.Sprintf("%v", v)
			}
		}
		if rf.Geometry != nil {
			mp, err := parseGeometry(*rf.Geometry)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			f.Geometry = mp
		}
		features = append(features, f)
	}
	return features, nil
}

func parseGeometry(g rawGeometry) (MultiPolygon, error) {
	switch g.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("decode polygon coordinates: %w", err)
		}
		return MultiPolygon{polygonFromRings(rings)}, nil
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil, fmt.Errorf("decode multipolygon coordinates: %w", err)
		}
		mp := make(MultiPolygon, 0, len(polys))
		for _, rings := range polys {
			mp = append(mp, polygonFromRings(rings))
		}
		return mp, nil
	default:
		// Point/line geometries carry no area; callers flag these as degenerate.
		return nil, nil
	}
}

func polygonFromRings(rings [][][]float64) Polygon {
	p := Polygon{Rings: make([]Ring, 0, len(rings))}
	for _, ring := range rings {
		r := make(Ring, 0, len(ring))
		for _, pos := range ring {
			if len(pos) < 2 {
				continue
			}
			r = append(r, XY{X: pos[0], Y: pos[1]})
		}
		p.Rings = append(p.Rings, r)
	}
	return p
}

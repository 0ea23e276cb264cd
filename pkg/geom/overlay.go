package geom

import (
	"fmt"

	sf "github.com/peterstace/simplefeatures/geom"
)

// IntersectionArea returns the area shared by two multipolygons, in the
// squared units of their coordinate system. Both inputs must already be in
// the same projected CRS; this function performs no reprojection.
//
// The boolean overlay itself is delegated to the simplefeatures library.
// Callers own the invariants that matter here (per-source weight sums,
// conservation of totals) and verify them independently.
func IntersectionArea(a, b MultiPolygon) (float64, error) {
	if a.IsEmpty() || b.IsEmpty() {
		return 0, nil
	}
	ga, err := toGeometry(a)
	if err != nil {
		return 0, err
	}
	gb, err := toGeometry(b)
	if err != nil {
		return 0, err
	}
	inter, err := sf.Intersection(ga, gb)
	if err != nil {
		return 0, fmt.Errorf("polygon overlay: %w", err)
	}
	return inter.Area(), nil
}

func toGeometry(m MultiPolygon) (sf.Geometry, error) {
	polys := make([]sf.Polygon, 0, len(m))
	for _, p := range m {
		rings := make([]sf.LineString, 0, len(p.Rings))
		for _, r := range p.Rings {
			if len(r) < 3 {
				continue
			}
			coords := make([]float64, 0, 2*(len(r)+1))
			for _, pt := range r {
				coords = append(coords, pt.X, pt.Y)
			}
			if r[0] != r[len(r)-1] {
				coords = append(coords, r[0].X, r[0].Y)
			}
			rings = append(rings, sf.NewLineString(sf.NewSequence(coords, sf.DimXY)))
		}
		if len(rings) == 0 {
			continue
		}
		poly := sf.NewPolygon(rings)
		if err := poly.Validate(); err != nil {
			return sf.Geometry{}, fmt.Errorf("invalid polygon: %w", err)
		}
		polys = append(polys, poly)
	}
	mp := sf.NewMultiPolygon(polys)
	if err := mp.Validate(); err != nil {
		return sf.Geometry{}, fmt.Errorf("invalid multipolygon: %w", err)
	}
	return mp.AsGeometry(), nil
}

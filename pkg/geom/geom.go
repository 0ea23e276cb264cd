// Package geom provides the planar geometry primitives used for areal
// interpolation: rings, polygons with holes, multipolygons, bounding boxes,
// shoelace areas, and an equal-area projection. Geometry here is deliberately
// minimal; polygon overlay is delegated to a dedicated library in overlay.go.
package geom

// XY is a planar coordinate pair. For unprojected census boundaries X is
// longitude and Y is latitude; after projection both are meters.
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Ring is a closed sequence of vertices. The closing vertex may be omitted;
// consumers treat the ring as implicitly closed.
type Ring []XY

// Polygon follows the GeoJSON convention: the first ring is the outer
// boundary, any further rings are holes.
type Polygon struct {
	Rings []Ring
}

// MultiPolygon is a set of polygons belonging to one geographic unit.
type MultiPolygon []Polygon

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Intersects reports whether two bounding boxes overlap or touch.
func (b Bounds) Intersects(o Bounds) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// signedArea computes the shoelace sum of a ring. Positive for
// counter-clockwise winding.
func (r Ring) signedArea() float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += r[i].X*r[j].Y - r[j].X*r[i].Y
	}
	return sum / 2
}

// Area returns the unsigned area of the ring.
func (r Ring) Area() float64 {
	a := r.signedArea()
	if a < 0 {
		return -a
	}
	return a
}

// Area returns the polygon area with hole areas subtracted. Winding order of
// the input rings is not trusted; outer and hole contributions are taken by
// position, not by sign.
func (p Polygon) Area() float64 {
	if len(p.Rings) == 0 {
		return 0
	}
	area := p.Rings[0].Area()
	for _, hole := range p.Rings[1:] {
		area -= hole.Area()
	}
	if area < 0 {
		return 0
	}
	return area
}

// Area sums the areas of all member polygons.
func (m MultiPolygon) Area() float64 {
	var total float64
	for _, p := range m {
		total += p.Area()
	}
	return total
}

// IsEmpty reports whether the multipolygon carries no usable ring.
func (m MultiPolygon) IsEmpty() bool {
	for _, p := range m {
		if len(p.Rings) > 0 && len(p.Rings[0]) >= 3 {
			return false
		}
	}
	return true
}

// Bounds returns the bounding box over all outer rings and holes.
// The zero Bounds is returned for an empty multipolygon.
func (m MultiPolygon) Bounds() Bounds {
	first := true
	var b Bounds
	for _, p := range m {
		for _, r := range p.Rings {
			for _, pt := range r {
				if first {
					b = Bounds{MinX: pt.X, MinY: pt.Y, MaxX: pt.X, MaxY: pt.Y}
					first = false
					continue
				}
				if pt.X < b.MinX {
					b.MinX = pt.X
				}
				if pt.X > b.MaxX {
					b.MaxX = pt.X
				}
				if pt.Y < b.MinY {
					b.MinY = pt.Y
				}
				if pt.Y > b.MaxY {
					b.MaxY = pt.Y
				}
			}
		}
	}
	return b
}

// Transform applies fn to every vertex and returns a new multipolygon.
func (m MultiPolygon) Transform(fn func(XY) XY) MultiPolygon {
	out := make(MultiPolygon, len(m))
	for i, p := range m {
		rings := make([]Ring, len(p.Rings))
		for j, r := range p.Rings {
			nr := make(Ring, len(r))
			for k, pt := range r {
				nr[k] = fn(pt)
			}
			rings[j] = nr
		}
		out[i] = Polygon{Rings: rings}
	}
	return out
}

package geom

import (
	"math"
	"testing"
)

func square(x, y, side float64) MultiPolygon {
	return MultiPolygon{{Rings: []Ring{{
		{X: x, Y: y},
		{X: x + side, Y: y},
		{X: x + side, Y: y + side},
		{X: x, Y: y + side},
	}}}}
}

func TestRingArea(t *testing.T) {
	r := Ring{{0, 0}, {2, 0}, {2, 1}, {0, 1}}
	if got := r.Area(); got != 2 {
		t.Fatalf("area = %v, want 2", got)
	}
	// Clockwise winding must give the same unsigned area.
	cw := Ring{{0, 0}, {0, 1}, {2, 1}, {2, 0}}
	if got := cw.Area(); got != 2 {
		t.Fatalf("cw area = %v, want 2", got)
	}
	if got := (Ring{{0, 0}, {1, 1}}).Area(); got != 0 {
		t.Fatalf("degenerate ring area = %v, want 0", got)
	}
}

func TestPolygonAreaWithHole(t *testing.T) {
	p := Polygon{Rings: []Ring{
		{{0, 0}, {4, 0}, {4, 4}, {0, 4}},
		{{1, 1}, {2, 1}, {2, 2}, {1, 2}},
	}}
	if got := p.Area(); got != 15 {
		t.Fatalf("area = %v, want 15", got)
	}
}

func TestMultiPolygonBounds(t *testing.T) {
	m := MultiPolygon{
		{Rings: []Ring{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}},
		{Rings: []Ring{{{3, 2}, {5, 2}, {5, 4}, {3, 4}}}},
	}
	b := m.Bounds()
	want := Bounds{MinX: 0, MinY: 0, MaxX: 5, MaxY: 4}
	if b != want {
		t.Fatalf("bounds = %+v, want %+v", b, want)
	}
	if !b.Intersects(Bounds{MinX: 4, MinY: 3, MaxX: 6, MaxY: 6}) {
		t.Fatalf("expected overlap")
	}
	if b.Intersects(Bounds{MinX: 6, MinY: 0, MaxX: 7, MaxY: 1}) {
		t.Fatalf("expected no overlap")
	}
}

func TestIsEmpty(t *testing.T) {
	if !(MultiPolygon{}).IsEmpty() {
		t.Fatalf("empty multipolygon should be empty")
	}
	if !(MultiPolygon{{Rings: []Ring{{{0, 0}, {1, 1}}}}}).IsEmpty() {
		t.Fatalf("two-vertex ring should be empty")
	}
	if square(0, 0, 1).IsEmpty() {
		t.Fatalf("square should not be empty")
	}
}

func TestTransform(t *testing.T) {
	m := square(0, 0, 1)
	shifted := m.Transform(func(p XY) XY { return XY{X: p.X + 10, Y: p.Y} })
	if got := shifted.Bounds(); got.MinX != 10 || got.MaxX != 11 {
		t.Fatalf("unexpected bounds after shift: %+v", got)
	}
	// Original must be untouched.
	if got := m.Bounds(); got.MinX != 0 {
		t.Fatalf("transform mutated input: %+v", got)
	}
}

func TestIntersectionArea(t *testing.T) {
	t.Run("partial overlap", func(t *testing.T) {
		a := square(0, 0, 1)
		b := square(0.5, 0, 1)
		got, err := IntersectionArea(a, b)
		if err != nil {
			t.Fatalf("IntersectionArea: %v", err)
		}
		if math.Abs(got-0.5) > 1e-9 {
			t.Fatalf("area = %v, want 0.5", got)
		}
	})
	t.Run("disjoint", func(t *testing.T) {
		got, err := IntersectionArea(square(0, 0, 1), square(5, 5, 1))
		if err != nil {
			t.Fatalf("IntersectionArea: %v", err)
		}
		if got != 0 {
			t.Fatalf("area = %v, want 0", got)
		}
	})
	t.Run("contained", func(t *testing.T) {
		got, err := IntersectionArea(square(0, 0, 4), square(1, 1, 1))
		if err != nil {
			t.Fatalf("IntersectionArea: %v", err)
		}
		if math.Abs(got-1) > 1e-9 {
			t.Fatalf("area = %v, want 1", got)
		}
	})
	t.Run("shared edge only", func(t *testing.T) {
		got, err := IntersectionArea(square(0, 0, 1), square(1, 0, 1))
		if err != nil {
			t.Fatalf("IntersectionArea: %v", err)
		}
		if got != 0 {
			t.Fatalf("area = %v, want 0", got)
		}
	})
	t.Run("empty input", func(t *testing.T) {
		got, err := IntersectionArea(MultiPolygon{}, square(0, 0, 1))
		if err != nil || got != 0 {
			t.Fatalf("got %v, %v; want 0, nil", got, err)
		}
	})
}

func TestAlbersEqualArea(t *testing.T) {
	proj := ConusAlbers()
	// Two half-degree cells at very different latitudes must project to
	// nearly identical areas once the cosine shrink of longitude is
	// accounted for; equal-area is the property interpolation depends on.
	cell := func(lon, lat float64) MultiPolygon {
		w := 0.5 / math.Cos(lat*math.Pi/180)
		m := MultiPolygon{{Rings: []Ring{{
			{X: lon, Y: lat},
			{X: lon + w, Y: lat},
			{X: lon + w, Y: lat + 0.5},
			{X: lon, Y: lat + 0.5},
		}}}}
		return m.Transform(proj.Project)
	}
	south := cell(-90, 30).Area()
	north := cell(-90, 45).Area()
	if south <= 0 || north <= 0 {
		t.Fatalf("non-positive projected areas: %v %v", south, north)
	}
	if diff := math.Abs(south-north) / south; diff > 0.01 {
		t.Fatalf("projected areas differ by %.2f%%, want < 1%%", diff*100)
	}
}

func TestParseFeatureCollection(t *testing.T) {
	data := []byte(`{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"properties": {"GEOID": "06037", "NAME": "Los Angeles", "ALAND": 10510688411},
				"geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
			},
			{
				"type": "Feature",
				"properties": {"GEOID": "06059"},
				"geometry": {"type": "MultiPolygon", "coordinates": [[[[2,2],[3,2],[3,3],[2,3],[2,2]]]]}
			},
			{
				"type": "Feature",
				"properties": {"GEOID": "06111"},
				"geometry": null
			}
		]
	}`)
	features, err := ParseFeatureCollection(data)
	if err != nil {
		t.Fatalf("ParseFeatureCollection: %v", err)
	}
	if len(features) != 3 {
		t.Fatalf("expected 3 features, got %d", len(features))
	}
	if features[0].Properties["GEOID"] != "06037" || features[0].Properties["NAME"] != "Los Angeles" {
		t.Fatalf("unexpected properties: %+v", features[0].Properties)
	}
	// Numeric property coerced to string form.
	if features[0].Properties["ALAND"] == "" {
		t.Fatalf("numeric property dropped")
	}
	if got := features[0].Geometry.Area(); got != 1 {
		t.Fatalf("polygon area = %v, want 1", got)
	}
	if got := features[1].Geometry.Area(); got != 1 {
		t.Fatalf("multipolygon area = %v, want 1", got)
	}
	if !features[2].Geometry.IsEmpty() {
		t.Fatalf("null geometry should parse as empty")
	}
}

func TestParseFeatureCollectionRejectsWrongType(t *testing.T) {
	if _, err := ParseFeatureCollection([]byte(`{"type": "Feature"}`)); err == nil {
		t.Fatalf("expected error for non-collection input")
	}
	if _, err := ParseFeatureCollection([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

package series

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"tidycensus/pkg/census"
	"tidycensus/pkg/geom"
)

type identityProjection struct{}

func (identityProjection) Project(p geom.XY) geom.XY { return p }

// fakeAttrs serves canned readings keyed by (year, code) and records the
// codes requested per year.
type fakeAttrs struct {
	mu       sync.Mutex
	readings map[int][]census.Reading
	requests map[int][]string
}

func (f *fakeAttrs) FetchAttributes(_ context.Context, _ census.Level, year int, _ census.Dataset, codes []string, _ census.Filter) ([]census.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requests == nil {
		f.requests = make(map[int][]string)
	}
	f.requests[year] = append([]string(nil), codes...)
	var out []census.Reading
	requested := make(map[string]bool, len(codes))
	for _, c := range codes {
		requested[c] = true
	}
	for _, r := range f.readings[year] {
		if requested[r.Variable] {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeGeos struct {
	mu         sync.Mutex
	partitions map[int]census.Partition
	calls      []int
}

func (f *fakeGeos) FetchGeometry(_ context.Context, _ census.Level, year int, _ census.Filter) (census.Partition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, year)
	return f.partitions[year], nil
}

func TestAlignStableGeographyBypass(t *testing.T) {
	attrs := &fakeAttrs{readings: map[int][]census.Reading{
		2015: {{UnitID: "06", Year: 2015, Variable: "B01003_001E", Value: 100}},
		2020: {{UnitID: "06", Year: 2020, Variable: "B01003_001E", Value: 120}},
	}}
	geos := &fakeGeos{partitions: map[int]census.Partition{
		2020: partition(2020, census.LevelState, map[string]geom.MultiPolygon{"06": rect(0, 0, 1, 1)}),
	}}
	a := New(attrs, geos, WithProjection(identityProjection{}))

	res, err := a.Align(context.Background(), Request{
		Level:     census.LevelState,
		Years:     []int{2015, 2020},
		Dataset:   census.DatasetACS5,
		Variables: map[string]string{"pop": "B01003_001E"},
		BaseYear:  2020,
		Extensive: []string{"pop"},
	})
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	// Geometry is only fetched for the base year; no overlay ever runs.
	if len(geos.calls) != 1 || geos.calls[0] != 2020 {
		t.Fatalf("expected one geometry fetch for 2020, got %v", geos.calls)
	}
	got2015 := res.Table[census.Key{UnitID: "06", Year: 2015, Variable: "pop"}]
	if got2015.Value != 100 || got2015.Missing || got2015.Partial {
		t.Fatalf("raw 2015 value should pass through exactly, got %+v", got2015)
	}
	got2020 := res.Table[census.Key{UnitID: "06", Year: 2020, Variable: "pop"}]
	if got2020.Value != 120 {
		t.Fatalf("raw 2020 value should pass through exactly, got %+v", got2020)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings %+v", res.Warnings)
	}
}

func TestAlignPerYearVariableRemap(t *testing.T) {
	attrs := &fakeAttrs{readings: map[int][]census.Reading{
		2010: {{UnitID: "06", Year: 2010, Variable: "P001001", Value: 90}},
		2020: {{UnitID: "06", Year: 2020, Variable: "P1_001N", Value: 110}},
	}}
	geos := &fakeGeos{partitions: map[int]census.Partition{
		2020: partition(2020, census.LevelState, map[string]geom.MultiPolygon{"06": rect(0, 0, 1, 1)}),
	}}
	a := New(attrs, geos, WithProjection(identityProjection{}))

	res, err := a.Align(context.Background(), Request{
		Level:   census.LevelState,
		Years:   []int{2010, 2020},
		Dataset: census.DatasetDecennial,
		VariablesByYear: map[int]map[string]string{
			2010: {"pop": "P001001"},
			2020: {"pop": "P1_001N"},
		},
		BaseYear:  2020,
		Extensive: []string{"pop"},
	})
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if got := attrs.requests[2010]; len(got) != 1 || got[0] != "P001001" {
		t.Fatalf("2010 should request P001001, got %v", got)
	}
	if got := attrs.requests[2020]; len(got) != 1 || got[0] != "P1_001N" {
		t.Fatalf("2020 should request P1_001N, got %v", got)
	}
	// Both years surface under the unified logical name.
	if res.Table[census.Key{UnitID: "06", Year: 2010, Variable: "pop"}].Value != 90 {
		t.Fatalf("missing remapped 2010 value")
	}
	if res.Table[census.Key{UnitID: "06", Year: 2020, Variable: "pop"}].Value != 110 {
		t.Fatalf("missing remapped 2020 value")
	}
}

func TestAlignTractInterpolation(t *testing.T) {
	// One 2010 tract split evenly into two 2020 tracts: counts split
	// 50/50, the median stays base-year-only.
	attrs := &fakeAttrs{readings: map[int][]census.Reading{
		2010: {
			{UnitID: "A", Year: 2010, Variable: "OLD_POP", Value: 100},
			{UnitID: "A", Year: 2010, Variable: "OLD_MED", Value: 52000},
		},
		2020: {
			{UnitID: "B1", Year: 2020, Variable: "NEW_POP", Value: 70},
			{UnitID: "B2", Year: 2020, Variable: "NEW_POP", Value: 55},
			{UnitID: "B1", Year: 2020, Variable: "NEW_MED", Value: 61000},
			{UnitID: "B2", Year: 2020, Variable: "NEW_MED", Value: 64000},
		},
	}}
	geos := &fakeGeos{partitions: map[int]census.Partition{
		2010: partition(2010, census.LevelTract, map[string]geom.MultiPolygon{
			"A": rect(0, 0, 2, 1),
		}),
		2020: partition(2020, census.LevelTract, map[string]geom.MultiPolygon{
			"B1": rect(0, 0, 1, 1),
			"B2": rect(1, 0, 1, 1),
		}),
	}}
	a := New(attrs, geos, WithProjection(identityProjection{}))

	res, err := a.Align(context.Background(), Request{
		Level:   census.LevelTract,
		Years:   []int{2010, 2020},
		Dataset: census.DatasetDecennial,
		VariablesByYear: map[int]map[string]string{
			2010: {"pop": "OLD_POP", "median_income": "OLD_MED"},
			2020: {"pop": "NEW_POP", "median_income": "NEW_MED"},
		},
		BaseYear:  2020,
		Extensive: []string{"pop"},
	})
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	for _, tid := range []string{"B1", "B2"} {
		cell, ok := res.Table[census.Key{UnitID: tid, Year: 2010, Variable: "pop"}]
		if !ok {
			t.Fatalf("missing interpolated 2010 pop for %s", tid)
		}
		if math.Abs(cell.Value-50) > 1e-6 {
			t.Fatalf("interpolated pop for %s = %v, want 50", tid, cell.Value)
		}
		// Intensive variable must not appear for the non-base year.
		if _, ok := res.Table[census.Key{UnitID: tid, Year: 2010, Variable: "median_income"}]; ok {
			t.Fatalf("median_income leaked into interpolated year for %s", tid)
		}
	}
	// Base year keeps everything as-is.
	if res.Table[census.Key{UnitID: "B1", Year: 2020, Variable: "median_income"}].Value != 61000 {
		t.Fatalf("base year median altered")
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("conservation should hold for a clean split: %+v", res.Warnings)
	}
}

func TestAlignZCTAUnsupported(t *testing.T) {
	a := New(&fakeAttrs{}, &fakeGeos{})
	_, err := a.Align(context.Background(), Request{
		Level:     census.LevelZCTA,
		Years:     []int{2015, 2020},
		Variables: map[string]string{"pop": "X"},
	})
	var unsupported census.UnsupportedGeographyError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedGeographyError, got %v", err)
	}
}

func TestAlignMissingYearData(t *testing.T) {
	attrs := &fakeAttrs{readings: map[int][]census.Reading{
		2020: {{UnitID: "06", Year: 2020, Variable: "X", Value: 1}},
	}}
	geos := &fakeGeos{partitions: map[int]census.Partition{
		2020: partition(2020, census.LevelState, map[string]geom.MultiPolygon{"06": rect(0, 0, 1, 1)}),
	}}
	a := New(attrs, geos)
	_, err := a.Align(context.Background(), Request{
		Level:     census.LevelState,
		Years:     []int{2015, 2020},
		Variables: map[string]string{"pop": "X"},
		BaseYear:  2020,
	})
	var missing census.MissingYearDataError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingYearDataError, got %v", err)
	}
	if missing.Year != 2015 {
		t.Fatalf("offending year = %d, want 2015", missing.Year)
	}
}

func TestAlignRequestValidation(t *testing.T) {
	a := New(&fakeAttrs{}, &fakeGeos{})
	ctx := context.Background()
	if _, err := a.Align(ctx, Request{Level: census.LevelState}); err == nil {
		t.Fatalf("expected error for empty years")
	}
	if _, err := a.Align(ctx, Request{
		Level: census.LevelState, Years: []int{2020},
		Variables: map[string]string{"pop": "X"}, BaseYear: 2010,
	}); err == nil {
		t.Fatalf("expected error for base year outside years")
	}
	if _, err := a.Align(ctx, Request{Level: census.LevelState, Years: []int{2020}}); err == nil {
		t.Fatalf("expected error for missing variables")
	}
	if _, err := a.Align(ctx, Request{
		Level: census.LevelState, Years: []int{2020},
		Variables:       map[string]string{"pop": "X"},
		VariablesByYear: map[int]map[string]string{2020: {"pop": "X"}},
	}); err == nil {
		t.Fatalf("expected error for ambiguous variable specification")
	}
}

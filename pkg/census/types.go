// Package census defines the domain types shared across the library: the
// geographic units and partitions boundary data is keyed by, the tabular
// readings fetched from the Census Bureau APIs, and the reconciled table and
// comparison rows the alignment engine produces.
package census

import (
	"sort"

	"tidycensus/pkg/geom"
)

// Level identifies a census geography level.
type Level string

// Geography levels recognised by the library. Levels below county change
// boundaries between census cycles and require areal interpolation.
const (
	LevelRegion     Level = "region"
	LevelDivision   Level = "division"
	LevelState      Level = "state"
	LevelCounty     Level = "county"
	LevelTract      Level = "tract"
	LevelBlockGroup Level = "block group"
	LevelZCTA       Level = "zcta"
)

// Dataset identifies a census product.
type Dataset string

// Supported census products. Decennial survey selection (pl vs sf1) is
// derived from the year by the attribute source.
const (
	DatasetACS5      Dataset = "acs5"
	DatasetACS1      Dataset = "acs1"
	DatasetDecennial Dataset = "decennial"
)

// GeographicUnit is one polygon of a partition, keyed by its GEOID. Units are
// immutable snapshots once fetched.
type GeographicUnit struct {
	ID       string
	Name     string
	Year     int
	Level    Level
	Geometry geom.MultiPolygon
}

// Partition is the full set of non-overlapping units covering the requested
// extent for one (year, level, filter) combination.
type Partition struct {
	Year  int
	Level Level
	Units map[string]GeographicUnit
}

// IDs returns the unit identifiers in sorted order.
func (p Partition) IDs() []string {
	ids := make([]string, 0, len(p.Units))
	for id := range p.Units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SameUnits reports whether two partitions cover exactly the same unit
// identifiers. Used for the identity short-circuit: stable geographies map
// onto themselves without geometric overlay.
func (p Partition) SameUnits(o Partition) bool {
	if len(p.Units) != len(o.Units) {
		return false
	}
	for id := range p.Units {
		if _, ok := o.Units[id]; !ok {
			return false
		}
	}
	return true
}

// Reading is a single raw observation: one variable for one unit in one
// year. Missing readings keep Missing=true and must never be coerced to
// zero; the redistribution engine treats them explicitly.
type Reading struct {
	UnitID   string
	Year     int
	Variable string
	Value    float64
	Missing  bool
}

// Kind classifies a variable for areal interpolation.
type Kind int

const (
	// Intensive variables (rates, medians, percentages) cannot be
	// redistributed by area weighting and are the default classification.
	Intensive Kind = iota
	// Extensive variables (counts, totals) are additive and safe to
	// redistribute proportionally by area.
	Extensive
)

// Classification maps variable names to their interpolation kind.
type Classification map[string]Kind

// WeightEntry assigns the fraction of a source unit's area that falls inside
// a target unit. For gap-free geometry the outgoing weights of each source
// unit sum to one.
type WeightEntry struct {
	SourceID string
	TargetID string
	Weight   float64
}

// Key addresses one cell of a reconciled table.
type Key struct {
	UnitID   string
	Year     int
	Variable string
}

// Cell is one reconciled value. Partial marks an area-weighted sum that lost
// at least one missing source contribution; such values understate the true
// total and are flagged rather than silently reported as clean.
type Cell struct {
	Value   float64
	Missing bool
	Partial bool
}

// ReconciledTable maps (target unit, year, variable) to a reconciled cell.
// It is the canonical normalized output shape; wide or tidy projections are a
// presentation concern left to callers.
type ReconciledTable map[Key]Cell

// Keys returns all cell keys sorted by unit, year, then variable, giving
// deterministic iteration for output and tests.
func (t ReconciledTable) Keys() []Key {
	keys := make([]Key, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.UnitID != b.UnitID {
			return a.UnitID < b.UnitID
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Variable < b.Variable
	})
	return keys
}

// Years returns the distinct years present in the table, ascending.
func (t ReconciledTable) Years() []int {
	seen := make(map[int]struct{})
	for k := range t {
		seen[k.Year] = struct{}{}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Variables returns the distinct variable names present in the table, sorted.
func (t ReconciledTable) Variables() []string {
	seen := make(map[string]struct{})
	for k := range t {
		seen[k.Variable] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for v := range seen {
		names = append(names, v)
	}
	sort.Strings(names)
	return names
}

// VariableComparison holds the per-variable values of one comparison row.
// Change and PctChange are nil when undefined (PctChange in particular is
// never reported as an infinity when the base value is zero).
type VariableComparison struct {
	Base       float64
	Comparison float64
	Change     *float64
	PctChange  *float64
}

// ComparisonRow is the comparison result for one geographic unit. Rows are
// produced with inner-join semantics: units present in only one period are
// dropped entirely.
type ComparisonRow struct {
	UnitID    string
	Variables map[string]VariableComparison
}

// ConservationWarning is a non-fatal diagnostic: the redistributed total of
// an extensive variable drifted from the source total beyond tolerance.
// Legitimate boundary redefinitions (annexations, water-area changes) cause
// small genuine discrepancies, so this never fails a call.
type ConservationWarning struct {
	Variable      string
	Year          int
	SourceTotal   float64
	TargetTotal   float64
	RelativeError float64
}

// Package series implements the time-series boundary-reconciliation engine:
// it aligns demographic readings measured on different vintages of census
// geography onto one base partition via area-weighted redistribution, checks
// conservation of additive totals, and compares aligned periods.
//
// The engine is a pure, synchronous transformation over in-memory partitions
// and readings. Fetching is delegated to census.AttributeSource and
// census.GeometrySource collaborators; the engine holds no state across
// calls.
package series

import (
	"sort"

	"tidycensus/pkg/census"
)

// Classify partitions variable names into extensive (additive) and intensive
// kinds. Names absent from the extensive list default to intensive, which
// excludes them from redistribution: misclassifying a count loses data, while
// misclassifying a median produces silently wrong numbers, so the safe
// default is to interpolate nothing.
//
// In strict mode an extensive entry that names no requested variable yields
// census.UnknownVariableError; otherwise it is ignored.
func Classify(names []string, extensive []string, strict bool) (census.Classification, error) {
	class := make(census.Classification, len(names))
	for _, n := range names {
		class[n] = census.Intensive
	}
	missing := make([]string, 0)
	for _, n := range extensive {
		if _, ok := class[n]; !ok {
			missing = append(missing, n)
			continue
		}
		class[n] = census.Extensive
	}
	if strict && len(missing) > 0 {
		sort.Strings(missing)
		return nil, census.UnknownVariableError{Variable: missing[0]}
	}
	return class, nil
}

package series

import (
	"math"
	"sort"

	"tidycensus/pkg/census"
)

// DefaultTolerance is the relative drift allowed between source and
// redistributed totals before a conservation warning is emitted.
const DefaultTolerance = 0.005

// Validate compares, for every extensive variable, the total of the source
// readings (missing excluded) against the total of the reconciled cells.
// Violations are returned as warnings and never fail the call: genuine
// boundary redefinitions produce small real discrepancies that the caller
// should see, not be aborted by.
func Validate(source []census.Reading, reconciled census.ReconciledTable, class census.Classification, tolerance float64) []census.ConservationWarning {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	type total struct {
		sum  float64
		year int
		any  bool
	}
	srcTotals := make(map[string]*total)
	for _, r := range source {
		if class[r.Variable] != census.Extensive || r.Missing {
			continue
		}
		t := srcTotals[r.Variable]
		if t == nil {
			t = &total{year: r.Year}
			srcTotals[r.Variable] = t
		}
		t.sum += r.Value
		t.any = true
	}

	tgtTotals := make(map[string]float64)
	for k, cell := range reconciled {
		if class[k.Variable] != census.Extensive || cell.Missing {
			continue
		}
		tgtTotals[k.Variable] += cell.Value
	}

	variables := make([]string, 0, len(srcTotals))
	for v := range srcTotals {
		variables = append(variables, v)
	}
	sort.Strings(variables)

	var warnings []census.ConservationWarning
	for _, v := range variables {
		src := srcTotals[v]
		if !src.any {
			continue
		}
		tgt := tgtTotals[v]
		var relErr float64
		if src.sum == 0 {
			if tgt == 0 {
				continue
			}
			relErr = math.Abs(tgt)
		} else {
			relErr = math.Abs(tgt-src.sum) / math.Abs(src.sum)
		}
		if relErr > tolerance {
			warnings = append(warnings, census.ConservationWarning{
				Variable:      v,
				Year:          src.year,
				SourceTotal:   src.sum,
				TargetTotal:   tgt,
				RelativeError: relErr,
			})
		}
	}
	return warnings
}

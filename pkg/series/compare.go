package series

import (
	"fmt"
	"sort"

	"tidycensus/pkg/census"
)

// CompareOptions selects which derived columns Compare produces.
type CompareOptions struct {
	Change        bool
	PercentChange bool
}

// Compare computes per-unit differences between two periods of an aligned
// table. Rows use inner-join semantics: a unit (or a unit's variable) present
// in only one of the two periods is dropped from the output. Callers relying
// on full coverage should check row counts.
//
// Percent change is nil, never an infinity, when the base value is zero or
// missing.
func Compare(table census.ReconciledTable, basePeriod, comparisonPeriod int, variables []string, opts CompareOptions) ([]census.ComparisonRow, error) {
	years := table.Years()
	if !containsInt(years, basePeriod) {
		return nil, fmt.Errorf("base period %d not present in table", basePeriod)
	}
	if !containsInt(years, comparisonPeriod) {
		return nil, fmt.Errorf("comparison period %d not present in table", comparisonPeriod)
	}
	if len(variables) == 0 {
		variables = table.Variables()
	} else {
		variables = append([]string(nil), variables...)
		sort.Strings(variables)
	}

	units := make(map[string]struct{})
	for k := range table {
		units[k.UnitID] = struct{}{}
	}
	unitIDs := make([]string, 0, len(units))
	for id := range units {
		unitIDs = append(unitIDs, id)
	}
	sort.Strings(unitIDs)

	rows := make([]census.ComparisonRow, 0, len(unitIDs))
	for _, id := range unitIDs {
		row := census.ComparisonRow{UnitID: id, Variables: make(map[string]census.VariableComparison)}
		for _, v := range variables {
			base, okBase := table[census.Key{UnitID: id, Year: basePeriod, Variable: v}]
			comp, okComp := table[census.Key{UnitID: id, Year: comparisonPeriod, Variable: v}]
			if !okBase || !okComp || base.Missing || comp.Missing {
				continue
			}
			vc := census.VariableComparison{Base: base.Value, Comparison: comp.Value}
			if opts.Change {
				change := comp.Value - base.Value
				vc.Change = &change
			}
			if opts.PercentChange && base.Value != 0 {
				pct := (comp.Value - base.Value) / base.Value * 100
				vc.PctChange = &pct
			}
			row.Variables[v] = vc
		}
		if len(row.Variables) > 0 {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

package series

import (
	"sort"

	"tidycensus/pkg/census"
)

// Redistribute applies the weight matrix to the readings, producing values on
// the target partition.
//
// Extensive variables become area-weighted sums of their source values. The
// missing-value policy is exclusion: a missing source reading contributes
// nothing to the sum and the target cell is marked Partial, so totals are
// visibly understated instead of silently treating absent data as zero. A
// cell with no non-missing contribution at all is Missing.
//
// Intensive variables are passed through unchanged only under identity
// weights; across genuinely different partitions they are omitted, and the
// caller derives them by redistributing numerator and denominator separately.
//
// Output is deterministic: weights are accumulated in sorted order.
func Redistribute(readings []census.Reading, weights []census.WeightEntry, class census.Classification) census.ReconciledTable {
	type ref struct {
		value   float64
		missing bool
		year    int
	}
	byUnitVar := make(map[string]map[string]ref)
	for _, r := range readings {
		m, ok := byUnitVar[r.UnitID]
		if !ok {
			m = make(map[string]ref)
			byUnitVar[r.UnitID] = m
		}
		m[r.Variable] = ref{value: r.Value, missing: r.Missing, year: r.Year}
	}

	sorted := make([]census.WeightEntry, len(weights))
	copy(sorted, weights)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TargetID != sorted[j].TargetID {
			return sorted[i].TargetID < sorted[j].TargetID
		}
		return sorted[i].SourceID < sorted[j].SourceID
	})

	identity := WeightResult{Entries: sorted}.Identity()

	variables := make([]string, 0, len(class))
	for v := range class {
		variables = append(variables, v)
	}
	sort.Strings(variables)

	type acc struct {
		sum     float64
		partial bool
		seen    bool
		year    int
	}
	table := make(census.ReconciledTable)
	for _, v := range variables {
		if class[v] != census.Extensive {
			if !identity {
				continue
			}
			// Identity case: intensive values are valid as-is.
			for _, e := range sorted {
				if r, ok := byUnitVar[e.SourceID][v]; ok {
					table[census.Key{UnitID: e.TargetID, Year: r.year, Variable: v}] = census.Cell{
						Value: r.value, Missing: r.missing,
					}
				}
			}
			continue
		}
		cells := make(map[string]*acc)
		for _, e := range sorted {
			r, ok := byUnitVar[e.SourceID][v]
			if !ok {
				continue
			}
			a := cells[e.TargetID]
			if a == nil {
				a = &acc{year: r.year}
				cells[e.TargetID] = a
			}
			if r.missing {
				a.partial = true
				continue
			}
			a.sum += r.value * e.Weight
			a.seen = true
		}
		for tid, a := range cells {
			cell := census.Cell{Value: a.sum, Partial: a.partial && a.seen}
			if !a.seen {
				cell = census.Cell{Missing: true}
			}
			table[census.Key{UnitID: tid, Year: a.year, Variable: v}] = cell
		}
	}
	return table
}

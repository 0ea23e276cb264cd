package series

import (
	"testing"

	"tidycensus/pkg/census"
)

func comparisonTable() census.ReconciledTable {
	return census.ReconciledTable{
		{UnitID: "A", Year: 2010, Variable: "pop"}: {Value: 100},
		{UnitID: "A", Year: 2020, Variable: "pop"}: {Value: 150},
		{UnitID: "B", Year: 2010, Variable: "pop"}: {Value: 0},
		{UnitID: "B", Year: 2020, Variable: "pop"}: {Value: 20},
		// C exists only in the base period.
		{UnitID: "C", Year: 2010, Variable: "pop"}: {Value: 30},
	}
}

func TestCompareChangeAndPercent(t *testing.T) {
	rows, err := Compare(comparisonTable(), 2010, 2020, []string{"pop"}, CompareOptions{
		Change:        true,
		PercentChange: true,
	})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (C dropped), got %+v", rows)
	}

	byUnit := make(map[string]census.ComparisonRow, len(rows))
	for _, r := range rows {
		byUnit[r.UnitID] = r
	}

	a := byUnit["A"].Variables["pop"]
	if a.Base != 100 || a.Comparison != 150 {
		t.Fatalf("unexpected values for A: %+v", a)
	}
	if a.Change == nil || *a.Change != 50 {
		t.Fatalf("change for A = %v, want 50", a.Change)
	}
	if a.PctChange == nil || *a.PctChange != 50 {
		t.Fatalf("pct change for A = %v, want 50", a.PctChange)
	}

	// Zero base: the absolute change is still meaningful, the percent
	// change is not.
	b := byUnit["B"].Variables["pop"]
	if b.Change == nil || *b.Change != 20 {
		t.Fatalf("change for B = %v, want 20", b.Change)
	}
	if b.PctChange != nil {
		t.Fatalf("pct change for B should be nil, got %v", *b.PctChange)
	}

	if _, ok := byUnit["C"]; ok {
		t.Fatalf("unit present in only one period must be dropped")
	}
}

func TestCompareSkipsMissingCells(t *testing.T) {
	table := census.ReconciledTable{
		{UnitID: "A", Year: 2010, Variable: "pop"}: {Missing: true},
		{UnitID: "A", Year: 2020, Variable: "pop"}: {Value: 10},
	}
	rows, err := Compare(table, 2010, 2020, nil, CompareOptions{Change: true})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("missing base cell should drop the pair, got %+v", rows)
	}
}

func TestCompareUnknownPeriod(t *testing.T) {
	if _, err := Compare(comparisonTable(), 2005, 2020, nil, CompareOptions{}); err == nil {
		t.Fatalf("expected error for absent base period")
	}
	if _, err := Compare(comparisonTable(), 2010, 2025, nil, CompareOptions{}); err == nil {
		t.Fatalf("expected error for absent comparison period")
	}
}

func TestCompareDeterministicOrder(t *testing.T) {
	rows, err := Compare(comparisonTable(), 2010, 2020, nil, CompareOptions{})
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i-1].UnitID >= rows[i].UnitID {
			t.Fatalf("rows not sorted by unit: %+v", rows)
		}
	}
}

package census

import "fmt"

// UnknownVariableError reports a variable named in a classification list that
// is not part of the requested variable set. Recoverable: the caller corrects
// the list.
type UnknownVariableError struct {
	Variable string
}

func (e UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q in classification list", e.Variable)
}

// DegenerateGeometryError reports a unit whose polygon cannot participate in
// overlay (zero area or invalid rings). In best-effort mode the unit is
// skipped and the error collected alongside results.
type DegenerateGeometryError struct {
	UnitID string
	Year   int
	Reason string
}

func (e DegenerateGeometryError) Error() string {
	return fmt.Sprintf("degenerate geometry for unit %s (%d): %s", e.UnitID, e.Year, e.Reason)
}

// UnsupportedGeographyError reports a level that cannot be reconciled across
// years. ZCTAs in particular are redrawn too unpredictably for area weighting
// to be meaningful.
type UnsupportedGeographyError struct {
	Level  Level
	Reason string
}

func (e UnsupportedGeographyError) Error() string {
	return fmt.Sprintf("geography %q cannot be aligned across years: %s", e.Level, e.Reason)
}

// MissingYearDataError reports an upstream fetch that returned nothing for a
// requested year. Fatal for the align call: no partial result is meaningful.
type MissingYearDataError struct {
	Year   int
	Source string // "attributes" or "geometry"
}

func (e MissingYearDataError) Error() string {
	return fmt.Sprintf("no %s data returned for year %d", e.Source, e.Year)
}

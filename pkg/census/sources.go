package census

import "context"

// Filter restricts a fetch to specific states and, optionally, counties.
// Values are FIPS codes (two digits for states, three for counties).
type Filter struct {
	StateFIPS  []string
	CountyFIPS []string
}

// AttributeSource supplies raw tabular readings for one geography level,
// year, and dataset. Implementations own retry, caching, and authentication;
// the alignment engine treats a source as a pure function of its arguments.
type AttributeSource interface {
	FetchAttributes(ctx context.Context, level Level, year int, dataset Dataset, codes []string, filter Filter) ([]Reading, error)
}

// GeometrySource supplies the boundary partition for one geography level and
// year. Geometries are returned in lon/lat coordinates; projection to an
// equal-area plane happens inside the alignment engine.
type GeometrySource interface {
	FetchGeometry(ctx context.Context, level Level, year int, filter Filter) (Partition, error)
}

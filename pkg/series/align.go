package series

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"tidycensus/pkg/census"
	"tidycensus/pkg/geom"
)

// Request describes one alignment run.
type Request struct {
	Level   census.Level
	Years   []int
	Dataset census.Dataset

	// Variables maps logical names to raw variable codes used for every
	// year. For codes that are renumbered between census cycles, use
	// VariablesByYear instead; exactly one of the two must be set.
	Variables       map[string]string
	VariablesByYear map[int]map[string]string

	// BaseYear selects the reference partition all other years are
	// reconciled onto. Zero means the most recent requested year.
	BaseYear int

	// Extensive lists the logical names safe to redistribute by area.
	// Everything else defaults to intensive and is excluded from
	// interpolation.
	Extensive []string
	// Strict makes an extensive entry that matches no variable an error.
	Strict bool

	Filter    census.Filter
	Tolerance float64
}

// Result is the aligned multi-year table plus the diagnostics collected
// along the way.
type Result struct {
	Table census.ReconciledTable
	// Base is the reference partition the table is keyed by.
	Base census.Partition
	// Warnings reports conservation drift per variable and year.
	Warnings []census.ConservationWarning
	// Degenerate reports source units skipped during overlay.
	Degenerate []census.DegenerateGeometryError
	// Unmatched reports, per year, source units whose area intersected no
	// target unit. Their values are absent from the table.
	Unmatched map[int][]string
}

// Aligner orchestrates per-year fetching and reconciliation. It is stateless
// across calls; concurrent Align invocations are independent.
type Aligner struct {
	attrs      census.AttributeSource
	geos       census.GeometrySource
	logger     *slog.Logger
	projection geom.Projection
}

// Option configures an Aligner.
type Option func(*Aligner)

// WithLogger attaches a structured logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aligner) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithProjection overrides the equal-area projection applied before overlay.
// The default is the conterminous-US Albers projection.
func WithProjection(p geom.Projection) Option {
	return func(a *Aligner) {
		if p != nil {
			a.projection = p
		}
	}
}

// New constructs an Aligner over the given sources.
func New(attrs census.AttributeSource, geos census.GeometrySource, opts ...Option) *Aligner {
	a := &Aligner{
		attrs:      attrs,
		geos:       geos,
		logger:     slog.New(slog.DiscardHandler),
		projection: geom.ConusAlbers(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type yearData struct {
	readings  []census.Reading
	partition census.Partition
}

// Align fetches every requested year and reconciles all of them onto the
// base year's partition.
//
// Fetches for different years run concurrently; reconciliation for a year
// starts only once both its attribute and geometry fetches have completed.
// For geographies whose boundaries are stable across the requested span the
// geometric overlay is bypassed entirely and raw values are passed through.
func (a *Aligner) Align(ctx context.Context, req Request) (Result, error) {
	if len(req.Years) == 0 {
		return Result{}, fmt.Errorf("at least one year required")
	}
	if req.Level == census.LevelZCTA {
		return Result{}, census.UnsupportedGeographyError{
			Level:  req.Level,
			Reason: "ZCTA boundaries are redrawn without continuity between vintages",
		}
	}
	years := append([]int(nil), req.Years...)
	sort.Ints(years)

	baseYear := req.BaseYear
	if baseYear == 0 {
		baseYear = years[len(years)-1]
	}
	if !containsInt(years, baseYear) {
		return Result{}, fmt.Errorf("base year %d not in requested years", baseYear)
	}

	logical, err := a.logicalNames(req)
	if err != nil {
		return Result{}, err
	}
	class, err := Classify(logical, req.Extensive, req.Strict)
	if err != nil {
		return Result{}, err
	}

	interpolate := needsInterpolation(req.Level, years)

	fetched := make(map[int]*yearData, len(years))
	g, gctx := errgroup.WithContext(ctx)
	for _, year := range years {
		fetched[year] = &yearData{}
		needGeo := interpolate || year == baseYear
		g.Go(a.fetchYear(gctx, req, year, needGeo, fetched[year]))
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	base := fetched[baseYear].partition
	res := Result{
		Table:     make(census.ReconciledTable),
		Base:      base,
		Unmatched: make(map[int][]string),
	}

	var target census.Partition
	if interpolate {
		target = projectPartition(base, a.projection)
	}

	for _, year := range years {
		yd := fetched[year]
		if year == baseYear || !interpolate {
			// Raw values carry over unchanged; all requested variables
			// are valid on their native partition.
			for _, r := range yd.readings {
				res.Table[census.Key{UnitID: r.UnitID, Year: r.Year, Variable: r.Variable}] = census.Cell{
					Value: r.Value, Missing: r.Missing,
				}
			}
			continue
		}

		source := projectPartition(yd.partition, a.projection)
		weights := ComputeWeights(source, target)
		a.logger.Debug("computed areal weights",
			"year", year, "base_year", baseYear,
			"entries", len(weights.Entries),
			"degenerate", len(weights.Degenerate),
			"unmatched", len(weights.Unmatched))

		res.Degenerate = append(res.Degenerate, weights.Degenerate...)
		if len(weights.Unmatched) > 0 {
			res.Unmatched[year] = weights.Unmatched
		}

		partial := Redistribute(yd.readings, weights.Entries, class)
		for k, cell := range partial {
			res.Table[k] = cell
		}
		warnings := Validate(yd.readings, partial, class, req.Tolerance)
		for _, w := range warnings {
			a.logger.Warn("conservation drift after redistribution",
				"variable", w.Variable, "year", w.Year,
				"source_total", w.SourceTotal, "target_total", w.TargetTotal,
				"relative_error", w.RelativeError)
		}
		res.Warnings = append(res.Warnings, warnings...)
	}
	return res, nil
}

// fetchYear returns the errgroup task fetching one year's attributes and,
// when needed, its boundary partition. Raw codes are renamed to logical
// variable names here so the rest of the pipeline never sees codes.
func (a *Aligner) fetchYear(ctx context.Context, req Request, year int, needGeo bool, out *yearData) func() error {
	return func() error {
		codes, err := codesForYear(req, year)
		if err != nil {
			return err
		}
		rawCodes := make([]string, 0, len(codes))
		codeToLogical := make(map[string]string, len(codes))
		for logical, code := range codes {
			rawCodes = append(rawCodes, code)
			codeToLogical[code] = logical
		}
		sort.Strings(rawCodes)

		readings, err := a.attrs.FetchAttributes(ctx, req.Level, year, req.Dataset, rawCodes, req.Filter)
		if err != nil {
			return fmt.Errorf("attributes for %d: %w", year, err)
		}
		if len(readings) == 0 {
			return census.MissingYearDataError{Year: year, Source: "attributes"}
		}
		for i := range readings {
			if logical, ok := codeToLogical[readings[i].Variable]; ok {
				readings[i].Variable = logical
			}
		}
		out.readings = readings

		if !needGeo {
			return nil
		}
		partition, err := a.geos.FetchGeometry(ctx, req.Level, year, req.Filter)
		if err != nil {
			return fmt.Errorf("geometry for %d: %w", year, err)
		}
		if len(partition.Units) == 0 {
			return census.MissingYearDataError{Year: year, Source: "geometry"}
		}
		out.partition = partition
		return nil
	}
}

// logicalNames resolves the requested logical variable names, validating that
// exactly one variable specification form is used.
func (a *Aligner) logicalNames(req Request) ([]string, error) {
	if len(req.Variables) > 0 && len(req.VariablesByYear) > 0 {
		return nil, fmt.Errorf("set Variables or VariablesByYear, not both")
	}
	seen := make(map[string]struct{})
	switch {
	case len(req.Variables) > 0:
		for name := range req.Variables {
			seen[name] = struct{}{}
		}
	case len(req.VariablesByYear) > 0:
		for _, codes := range req.VariablesByYear {
			for name := range codes {
				seen[name] = struct{}{}
			}
		}
	default:
		return nil, fmt.Errorf("no variables requested")
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func codesForYear(req Request, year int) (map[string]string, error) {
	if len(req.VariablesByYear) > 0 {
		codes, ok := req.VariablesByYear[year]
		if !ok || len(codes) == 0 {
			return nil, fmt.Errorf("no variable codes specified for year %d", year)
		}
		return codes, nil
	}
	return req.Variables, nil
}

// needsInterpolation reports whether the level's boundaries can change over
// the requested span. States, regions, and divisions are fixed; county
// boundaries only shift over multi-decade spans; everything smaller is
// redrawn every census cycle.
func needsInterpolation(level census.Level, years []int) bool {
	switch level {
	case census.LevelState, census.LevelRegion, census.LevelDivision:
		return false
	case census.LevelCounty:
		return years[len(years)-1]-years[0] >= 20
	default:
		return true
	}
}

func projectPartition(p census.Partition, proj geom.Projection) census.Partition {
	out := census.Partition{Year: p.Year, Level: p.Level, Units: make(map[string]census.GeographicUnit, len(p.Units))}
	for id, u := range p.Units {
		u.Geometry = u.Geometry.Transform(proj.Project)
		out.Units[id] = u
	}
	return out
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// Command census-series fetches census attribute tables and boundaries for a
// span of years, reconciles every year onto a common boundary set, and writes
// the aligned table (optionally plus a two-period comparison) as JSON or CSV.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tidycensus/internal/assist"
	"tidycensus/internal/blob"
	"tidycensus/internal/cache"
	"tidycensus/internal/censusapi"
	"tidycensus/internal/metrics"
	"tidycensus/internal/tiger"
	"tidycensus/pkg/census"
	"tidycensus/pkg/series"
)

type options struct {
	level         string
	years         string
	dataset       string
	variables     string
	variableMap   string
	baseYear      int
	extensive     string
	strict        bool
	states        string
	counties      string
	tolerance     float64
	compare       string
	suggest       string
	format        string
	output        string
	metricsListen string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "census-series: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.level, "level", "tract", "geography level (region|division|state|county|tract|block group)")
	flag.StringVar(&opts.years, "years", "", "comma-separated years to align (required)")
	flag.StringVar(&opts.dataset, "dataset", "acs5", "census product (acs5|acs1|decennial)")
	flag.StringVar(&opts.variables, "variables", "", "name=CODE pairs, comma separated, used for every year")
	flag.StringVar(&opts.variableMap, "variable-map", "", "path to a JSON file mapping year -> {name: CODE} for renumbered codes")
	flag.IntVar(&opts.baseYear, "base-year", 0, "reference year whose boundaries the output uses (default: latest)")
	flag.StringVar(&opts.extensive, "extensive", "", "comma-separated logical names safe to redistribute by area")
	flag.BoolVar(&opts.strict, "strict", false, "fail when an extensive name matches no variable")
	flag.StringVar(&opts.states, "states", "", "comma-separated state FIPS codes")
	flag.StringVar(&opts.counties, "counties", "", "comma-separated county FIPS codes")
	flag.Float64Var(&opts.tolerance, "tolerance", series.DefaultTolerance, "relative conservation drift tolerance")
	flag.StringVar(&opts.compare, "compare", "", "two periods to difference, as BASE:COMPARISON (e.g. 2010:2020)")
	flag.StringVar(&opts.suggest, "suggest", "", "free-text question to map onto variable codes instead of aligning (e.g. \"how many renters\")")
	flag.StringVar(&opts.format, "format", "json", "output format (json|csv)")
	flag.StringVar(&opts.output, "output", "", "output path (default stdout)")
	flag.StringVar(&opts.metricsListen, "metrics-listen", "", "address to serve Prometheus metrics on (e.g. :9090)")
	flag.Parse()

	logger := newLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.metricsListen != "" {
		go serveMetrics(opts.metricsListen, logger)
	}

	if opts.suggest != "" {
		return runSuggest(ctx, opts, logger)
	}

	req, err := buildRequest(opts)
	if err != nil {
		return err
	}

	payloadCache, err := cache.Open(ctx)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = payloadCache.Close() }()
	boundaryStore, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	attrs := censusapi.New(censusapi.Config{
		APIKey: os.Getenv("CENSUS_API_KEY"),
		Cache:  payloadCache,
		Logger: logger,
	})
	geos := tiger.New(tiger.Config{
		Blob:   boundaryStore,
		Logger: logger,
	})
	aligner := series.New(attrs, geos, series.WithLogger(logger))

	start := time.Now()
	result, err := aligner.Align(ctx, req)
	if err != nil {
		metrics.AlignRunsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.AlignRunsTotal.WithLabelValues("ok").Inc()
	metrics.ConservationWarningsTotal.Add(float64(len(result.Warnings)))
	metrics.DegenerateGeometriesTotal.Add(float64(len(result.Degenerate)))
	logger.Info("alignment complete",
		"cells", len(result.Table),
		"warnings", len(result.Warnings),
		"degenerate", len(result.Degenerate),
		"elapsed", time.Since(start).Round(time.Millisecond))
	for _, w := range result.Warnings {
		logger.Warn("conservation drift",
			"variable", w.Variable, "year", w.Year, "relative_error", w.RelativeError)
	}

	out := os.Stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if opts.compare != "" {
		basePeriod, comparisonPeriod, err := parseCompare(opts.compare)
		if err != nil {
			return err
		}
		rows, err := series.Compare(result.Table, basePeriod, comparisonPeriod, nil, series.CompareOptions{
			Change:        true,
			PercentChange: true,
		})
		if err != nil {
			return err
		}
		return writeComparison(out, opts.format, rows)
	}
	return writeTable(out, opts.format, result.Table)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

// runSuggest handles discovery mode: it fetches the product's variable
// dictionary and ranks entries against the free-text question. With
// OPENAI_API_KEY set the ranking upgrades to the LLM-backed generator;
// otherwise, or when the model call fails, keyword search answers offline.
func runSuggest(ctx context.Context, opts options, logger *slog.Logger) error {
	years, err := parseYears(opts.years)
	if err != nil {
		return err
	}
	vintage := years[0]
	for _, y := range years[1:] {
		if y > vintage {
			vintage = y
		}
	}

	payloadCache, err := cache.Open(ctx)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = payloadCache.Close() }()

	client := censusapi.New(censusapi.Config{
		APIKey: os.Getenv("CENSUS_API_KEY"),
		Cache:  payloadCache,
		Logger: logger,
	})
	catalog, err := client.Variables(ctx, vintage, census.Dataset(opts.dataset))
	if err != nil {
		return fmt.Errorf("variable dictionary for %d: %w", vintage, err)
	}

	var gen assist.Generator
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		g, err := assist.NewOpenAI(assist.OpenAIConfig{APIKey: key, Logger: logger})
		if err != nil {
			return err
		}
		gen = g
	}
	suggestions := suggestVariables(ctx, logger, gen, opts.suggest, catalog)
	logger.Info("variable discovery complete",
		"query", opts.suggest, "vintage", vintage, "candidates", len(suggestions))

	out := os.Stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	return writeSuggestions(out, opts.format, suggestions)
}

// suggestVariables runs the generator when one is configured and falls back
// to keyword search when it is absent or fails.
func suggestVariables(ctx context.Context, logger *slog.Logger, gen assist.Generator, query string, catalog []censusapi.Variable) []assist.Suggestion {
	if gen != nil {
		suggestions, err := gen.Suggest(ctx, query, catalog)
		if err == nil {
			return suggestions
		}
		logger.Warn("generator failed, falling back to keyword search", "error", err)
	}
	return assist.Search(catalog, query, 0)
}

type suggestionRow struct {
	Code    string  `json:"code"`
	Label   string  `json:"label"`
	Concept string  `json:"concept,omitempty"`
	Score   float64 `json:"score"`
}

func writeSuggestions(w io.Writer, format string, suggestions []assist.Suggestion) error {
	switch format {
	case "json":
		rows := make([]suggestionRow, 0, len(suggestions))
		for _, s := range suggestions {
			rows = append(rows, suggestionRow{Code: s.Code, Label: s.Label, Concept: s.Concept, Score: s.Score})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"code", "label", "concept", "score"}); err != nil {
			return err
		}
		for _, s := range suggestions {
			record := []string{
				s.Code,
				s.Label,
				s.Concept,
				strconv.FormatFloat(s.Score, 'f', -1, 64),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func buildRequest(opts options) (series.Request, error) {
	years, err := parseYears(opts.years)
	if err != nil {
		return series.Request{}, err
	}

	req := series.Request{
		Level:     census.Level(opts.level),
		Years:     years,
		Dataset:   census.Dataset(opts.dataset),
		BaseYear:  opts.baseYear,
		Extensive: splitList(opts.extensive),
		Strict:    opts.strict,
		Tolerance: opts.tolerance,
		Filter: census.Filter{
			StateFIPS:  splitList(opts.states),
			CountyFIPS: splitList(opts.counties),
		},
	}

	switch {
	case opts.variableMap != "":
		if opts.variables != "" {
			return series.Request{}, fmt.Errorf("use -variables or -variable-map, not both")
		}
		byYear, err := loadVariableMap(opts.variableMap)
		if err != nil {
			return series.Request{}, err
		}
		req.VariablesByYear = byYear
	case opts.variables != "":
		vars, err := parseVariables(opts.variables)
		if err != nil {
			return series.Request{}, err
		}
		req.Variables = vars
	default:
		return series.Request{}, fmt.Errorf("one of -variables or -variable-map is required")
	}
	return req, nil
}

func parseYears(raw string) ([]int, error) {
	if raw == "" {
		return nil, fmt.Errorf("-years is required")
	}
	var years []int
	for _, part := range strings.Split(raw, ",") {
		y, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", part)
		}
		years = append(years, y)
	}
	return years, nil
}

func parseVariables(raw string) (map[string]string, error) {
	vars := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		name, code, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || code == "" {
			return nil, fmt.Errorf("invalid variable pair %q, want name=CODE", pair)
		}
		vars[name] = code
	}
	return vars, nil
}

func loadVariableMap(path string) (map[int]map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variable map: %w", err)
	}
	var raw map[string]map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode variable map: %w", err)
	}
	byYear := make(map[int]map[string]string, len(raw))
	for yearStr, vars := range raw {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			return nil, fmt.Errorf("invalid year key %q in variable map", yearStr)
		}
		byYear[year] = vars
	}
	return byYear, nil
}

func parseCompare(raw string) (int, int, error) {
	baseStr, compStr, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid -compare %q, want BASE:COMPARISON", raw)
	}
	base, err := strconv.Atoi(strings.TrimSpace(baseStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid base period %q", baseStr)
	}
	comp, err := strconv.Atoi(strings.TrimSpace(compStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid comparison period %q", compStr)
	}
	return base, comp, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type tableRow struct {
	UnitID   string  `json:"unit_id"`
	Year     int     `json:"year"`
	Variable string  `json:"variable"`
	Value    float64 `json:"value"`
	Missing  bool    `json:"missing,omitempty"`
	Partial  bool    `json:"partial,omitempty"`
}

func writeTable(w io.Writer, format string, table census.ReconciledTable) error {
	keys := table.Keys()
	switch format {
	case "json":
		rows := make([]tableRow, 0, len(keys))
		for _, k := range keys {
			cell := table[k]
			rows = append(rows, tableRow{
				UnitID: k.UnitID, Year: k.Year, Variable: k.Variable,
				Value: cell.Value, Missing: cell.Missing, Partial: cell.Partial,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"unit_id", "year", "variable", "value", "missing", "partial"}); err != nil {
			return err
		}
		for _, k := range keys {
			cell := table[k]
			record := []string{
				k.UnitID,
				strconv.Itoa(k.Year),
				k.Variable,
				strconv.FormatFloat(cell.Value, 'f', -1, 64),
				strconv.FormatBool(cell.Missing),
				strconv.FormatBool(cell.Partial),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeComparison(w io.Writer, format string, rows []census.ComparisonRow) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"unit_id", "variable", "base", "comparison", "change", "pct_change"}); err != nil {
			return err
		}
		for _, row := range rows {
			names := make([]string, 0, len(row.Variables))
			for name := range row.Variables {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				vc := row.Variables[name]
				record := []string{
					row.UnitID,
					name,
					strconv.FormatFloat(vc.Base, 'f', -1, 64),
					strconv.FormatFloat(vc.Comparison, 'f', -1, 64),
					formatOptional(vc.Change),
					formatOptional(vc.PctChange),
				}
				if err := cw.Write(record); err != nil {
					return err
				}
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

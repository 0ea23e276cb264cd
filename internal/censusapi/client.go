// Package censusapi implements the attribute source backed by the Census
// Bureau data API (api.census.gov). Responses are the API's array-of-arrays
// JSON; rows are normalized into readings keyed by concatenated GEOID.
package censusapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"tidycensus/internal/cache"
	"tidycensus/internal/metrics"
	"tidycensus/pkg/census"
)

const (
	defaultBaseURL = "https://api.census.gov"
	metricsSource  = "censusapi"
)

// Config carries client construction parameters. Zero values select sane
// defaults; Cache is optional and disables payload caching when nil.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Cache      cache.Store
	Logger     *slog.Logger
}

// Client fetches attribute tables from api.census.gov. It satisfies
// census.AttributeSource.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	cache   cache.Store
	logger  *slog.Logger
}

var _ census.AttributeSource = (*Client)(nil)

// New constructs a Client from cfg.
func New(cfg Config) *Client {
	c := &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		http:    cfg.HTTPClient,
		cache:   cfg.Cache,
		logger:  cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// datasetPath maps a product and year onto the API path segment. The
// decennial product moved from Summary File 1 to the PL 94-171 redistricting
// file with the 2020 census.
func datasetPath(dataset census.Dataset, year int) (string, error) {
	switch dataset {
	case census.DatasetACS5, "":
		return "acs/acs5", nil
	case census.DatasetACS1:
		return "acs/acs1", nil
	case census.DatasetDecennial:
		if year >= 2020 {
			return "dec/pl", nil
		}
		return "dec/sf1", nil
	default:
		return "", fmt.Errorf("unknown dataset %q", dataset)
	}
}

// geoColumns lists, in GEOID concatenation order, the geography columns the
// API appends to a response for each level.
var geoColumns = map[census.Level][]string{
	census.LevelRegion:     {"region"},
	census.LevelDivision:   {"division"},
	census.LevelState:      {"state"},
	census.LevelCounty:     {"state", "county"},
	census.LevelTract:      {"state", "county", "tract"},
	census.LevelBlockGroup: {"state", "county", "tract", "block group"},
}

// FetchAttributes requests the given variable codes for every unit of the
// level matching the filter, returning one reading per unit and code.
func (c *Client) FetchAttributes(ctx context.Context, level census.Level, year int, dataset census.Dataset, codes []string, filter census.Filter) ([]census.Reading, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("no variable codes requested")
	}
	path, err := datasetPath(dataset, year)
	if err != nil {
		return nil, err
	}
	query, err := buildQuery(level, codes, filter)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/data/%d/%s?%s", c.baseURL, year, path, query.Encode())
	body, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	rows, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("decode %d %s response: %w", year, path, err)
	}
	readings, err := rowsToReadings(rows, level, year, codes)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("fetched attributes",
		"year", year, "dataset", path, "level", string(level),
		"codes", len(codes), "readings", len(readings))
	return readings, nil
}

// buildQuery assembles get=, for= and in= parameters. Sub-county levels need
// a state filter: the API refuses nationwide tract queries.
func buildQuery(level census.Level, codes []string, filter census.Filter) (url.Values, error) {
	cols, ok := geoColumns[level]
	if !ok {
		return nil, census.UnsupportedGeographyError{Level: level, Reason: "no api geography mapping"}
	}
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)

	q := url.Values{}
	q.Set("get", strings.Join(sorted, ","))

	forCol := cols[len(cols)-1]
	states := strings.Join(filter.StateFIPS, ",")
	counties := strings.Join(filter.CountyFIPS, ",")

	switch level {
	case census.LevelRegion, census.LevelDivision:
		q.Set("for", forCol+":*")
	case census.LevelState:
		if states != "" {
			q.Set("for", "state:"+states)
		} else {
			q.Set("for", "state:*")
		}
	case census.LevelCounty:
		if counties != "" {
			q.Set("for", "county:"+counties)
		} else {
			q.Set("for", "county:*")
		}
		if states != "" {
			q.Set("in", "state:"+states)
		}
	default: // tract, block group
		if states == "" {
			return nil, fmt.Errorf("%s queries require a state filter", level)
		}
		q.Set("for", forCol+":*")
		in := "state:" + states
		if counties != "" {
			in += " county:" + counties
		}
		q.Set("in", in)
	}
	return q, nil
}

// fetch returns the response body for endpoint, consulting the cache first.
// The cache key is derived from the URL without the API key, so payloads are
// shared across differently-authenticated runs.
func (c *Client) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	key := fingerprint(endpoint)
	if c.cache != nil {
		if entry, ok, err := c.cache.Get(ctx, key); err != nil {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		} else if ok {
			metrics.CacheHitsTotal.WithLabelValues(metricsSource).Inc()
			return entry.Payload, nil
		}
		metrics.CacheMissesTotal.WithLabelValues(metricsSource).Inc()
	}

	requestURL := endpoint
	if c.apiKey != "" {
		requestURL += "&key=" + url.QueryEscape(c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamDurationSeconds.WithLabelValues(metricsSource).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(metricsSource, "error").Inc()
		return nil, fmt.Errorf("census api request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(metricsSource, "error").Inc()
		return nil, fmt.Errorf("read census api response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamRequestsTotal.WithLabelValues(metricsSource, strconv.Itoa(resp.StatusCode)).Inc()
		return nil, fmt.Errorf("census api status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(metricsSource, "ok").Inc()

	if c.cache != nil {
		if err := c.cache.Put(ctx, key, body); err != nil {
			c.logger.Warn("cache write failed", "key", key, "error", err)
		}
	}
	return body, nil
}

func fingerprint(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return "censusapi/" + hex.EncodeToString(sum[:])
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// decodeRows parses the API's array-of-arrays shape: the first row is the
// header, every later row one geographic unit, every value a string.
func decodeRows(body []byte) ([][]string, error) {
	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("empty response")
	}
	width := len(rows[0])
	for i, row := range rows[1:] {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d columns, header has %d", i+1, len(row), width)
		}
	}
	return rows, nil
}

func rowsToReadings(rows [][]string, level census.Level, year int, codes []string) ([]census.Reading, error) {
	header := rows[0]
	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[name] = i
	}

	geoIdx := make([]int, 0, 4)
	for _, col := range geoColumns[level] {
		idx, ok := colIndex[col]
		if !ok {
			return nil, fmt.Errorf("response missing geography column %q", col)
		}
		geoIdx = append(geoIdx, idx)
	}
	for _, code := range codes {
		if _, ok := colIndex[code]; !ok {
			return nil, fmt.Errorf("response missing variable column %q", code)
		}
	}

	readings := make([]census.Reading, 0, (len(rows)-1)*len(codes))
	for _, row := range rows[1:] {
		var geoid strings.Builder
		for _, idx := range geoIdx {
			geoid.WriteString(row[idx])
		}
		for _, code := range codes {
			raw := row[colIndex[code]]
			value, missing := parseValue(raw)
			readings = append(readings, census.Reading{
				UnitID:   geoid.String(),
				Year:     year,
				Variable: code,
				Value:    value,
				Missing:  missing,
			})
		}
	}
	return readings, nil
}

// Sentinel values the API uses for suppressed or inapplicable estimates.
// Readings carrying one become missing, never a numeric value.
var sentinels = map[float64]bool{
	-666666666: true,
	-999999999: true,
	-888888888: true,
	-555555555: true,
	-333333333: true,
	-222222222: true,
}

func parseValue(raw string) (float64, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" || trimmed == "N" || trimmed == "(X)" || trimmed == "*" || trimmed == "-" {
		return 0, true
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, true
	}
	if sentinels[v] || sentinels[v+0.5] {
		return 0, true
	}
	return v, false
}

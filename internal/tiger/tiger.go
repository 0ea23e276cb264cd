// Package tiger implements the geometry source backed by the TIGERweb
// ArcGIS REST services. Boundary payloads are large and vintage-immutable, so
// raw GeoJSON responses are archived in the blob store and re-parsed from
// there on later runs.
package tiger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"tidycensus/internal/blob"
	"tidycensus/internal/metrics"
	"tidycensus/pkg/census"
	"tidycensus/pkg/geom"
)

const (
	defaultBaseURL = "https://tigerweb.geo.census.gov"
	metricsSource  = "tiger"
)

// Config carries client construction parameters. Blob is optional and
// disables payload archiving when nil.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Blob       blob.Store
	Logger     *slog.Logger
}

// Client fetches boundary partitions from TIGERweb. It satisfies
// census.GeometrySource.
type Client struct {
	baseURL string
	http    *http.Client
	blob    blob.Store
	logger  *slog.Logger
}

var _ census.GeometrySource = (*Client)(nil)

// New constructs a Client from cfg.
func New(cfg Config) *Client {
	c := &Client{
		baseURL: cfg.BaseURL,
		http:    cfg.HTTPClient,
		blob:    cfg.Blob,
		logger:  cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 120 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// layerIDs maps geography levels to their layer in the vintage map services.
var layerIDs = map[census.Level]int{
	census.LevelRegion:     76,
	census.LevelDivision:   74,
	census.LevelState:      78,
	census.LevelCounty:     82,
	census.LevelTract:      6,
	census.LevelBlockGroup: 10,
}

// vintage maps an arbitrary year onto the decennial boundary service that
// published its geography.
func vintage(year int) int {
	if year >= 2020 {
		return 2020
	}
	return 2010
}

// FetchGeometry returns the boundary partition for one level and year.
func (c *Client) FetchGeometry(ctx context.Context, level census.Level, year int, filter census.Filter) (census.Partition, error) {
	layer, ok := layerIDs[level]
	if !ok {
		return census.Partition{}, census.UnsupportedGeographyError{Level: level, Reason: "no boundary layer mapping"}
	}

	where := whereClause(level, filter)
	q := url.Values{}
	q.Set("where", where)
	q.Set("outFields", "GEOID,NAME")
	q.Set("outSR", "4326")
	q.Set("f", "geojson")
	// TODO: page with resultOffset for statewide block-group pulls that
	// exceed the service transfer limit.
	endpoint := fmt.Sprintf("%s/arcgis/rest/services/TIGERweb/tigerWMS_Census%d/MapServer/%d/query?%s",
		c.baseURL, vintage(year), layer, q.Encode())

	body, err := c.fetch(ctx, endpoint, blobKey(level, year, where))
	if err != nil {
		return census.Partition{}, err
	}

	features, err := geom.ParseFeatureCollection(body)
	if err != nil {
		return census.Partition{}, fmt.Errorf("parse %d %s boundaries: %w", year, level, err)
	}

	partition := census.Partition{Year: year, Level: level, Units: make(map[string]census.GeographicUnit, len(features))}
	for i, f := range features {
		geoid := f.Properties["GEOID"]
		if geoid == "" {
			return census.Partition{}, fmt.Errorf("feature %d has no GEOID property", i)
		}
		partition.Units[geoid] = census.GeographicUnit{
			ID:       geoid,
			Name:     f.Properties["NAME"],
			Year:     year,
			Level:    level,
			Geometry: f.Geometry,
		}
	}
	c.logger.Debug("fetched boundaries",
		"year", year, "level", string(level), "units", len(partition.Units))
	return partition, nil
}

// whereClause restricts the layer query to the filtered states and counties.
func whereClause(level census.Level, filter census.Filter) string {
	switch level {
	case census.LevelRegion, census.LevelDivision:
		return "1=1"
	}
	var clauses []string
	if len(filter.StateFIPS) > 0 {
		clauses = append(clauses, "STATE IN ("+quoteList(filter.StateFIPS)+")")
	}
	if level != census.LevelState && len(filter.CountyFIPS) > 0 {
		clauses = append(clauses, "COUNTY IN ("+quoteList(filter.CountyFIPS)+")")
	}
	if len(clauses) == 0 {
		return "1=1"
	}
	return strings.Join(clauses, " AND ")
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	return strings.Join(quoted, ",")
}

// blobKey names the archived payload for one boundary query. The filter is
// folded in as a digest so different extents do not collide.
func blobKey(level census.Level, year int, where string) string {
	sum := sha256.Sum256([]byte(where))
	safeLevel := strings.ReplaceAll(string(level), " ", "-")
	return fmt.Sprintf("tiger/%d/%s/%s.geojson", year, safeLevel, hex.EncodeToString(sum[:8]))
}

// fetch returns the payload for endpoint, consulting the blob archive first.
func (c *Client) fetch(ctx context.Context, endpoint, key string) ([]byte, error) {
	if c.blob != nil {
		_, rc, err := c.blob.Get(ctx, key)
		switch {
		case err == nil:
			defer func() { _ = rc.Close() }()
			body, readErr := io.ReadAll(rc)
			if readErr == nil {
				metrics.CacheHitsTotal.WithLabelValues(metricsSource).Inc()
				return body, nil
			}
			c.logger.Warn("blob read failed", "key", key, "error", readErr)
		case errors.Is(err, os.ErrNotExist):
		default:
			c.logger.Warn("blob lookup failed", "key", key, "error", err)
		}
		metrics.CacheMissesTotal.WithLabelValues(metricsSource).Inc()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamDurationSeconds.WithLabelValues(metricsSource).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(metricsSource, "error").Inc()
		return nil, fmt.Errorf("tigerweb request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(metricsSource, "error").Inc()
		return nil, fmt.Errorf("read tigerweb response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamRequestsTotal.WithLabelValues(metricsSource, strconv.Itoa(resp.StatusCode)).Inc()
		return nil, fmt.Errorf("tigerweb status %d", resp.StatusCode)
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(metricsSource, "ok").Inc()

	if c.blob != nil {
		if _, err := c.blob.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{
			ContentType: "application/geo+json",
			Metadata:    map[string]string{"endpoint": endpoint},
		}); err != nil {
			c.logger.Warn("blob write failed", "key", key, "error", err)
		}
	}
	return body, nil
}

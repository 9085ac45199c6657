package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mapglyph/mapglyph/internal/observability"
	"github.com/mapglyph/mapglyph/pkg/slippy"
)

// Nominatim resolves addresses against a Nominatim search endpoint. Resolved
// addresses are memoized in a small LRU so repeated renders of the same
// location do not re-query the service.
type Nominatim struct {
	logger    *slog.Logger
	client    *http.Client
	baseURL   string
	userAgent string
	limit     int
	memo      *lru.Cache[uint64, slippy.Coordinate]
}

type NominatimOption func(*Nominatim)

func WithClient(c *http.Client) NominatimOption {
	return func(n *Nominatim) { n.client = c }
}

func WithUserAgent(ua string) NominatimOption {
	return func(n *Nominatim) { n.userAgent = ua }
}

func WithCacheSize(size int) NominatimOption {
	return func(n *Nominatim) {
		if size > 0 {
			n.memo, _ = lru.New[uint64, slippy.Coordinate](size)
		}
	}
}

func NewNominatim(logger *slog.Logger, baseURL string, opts ...NominatimOption) *Nominatim {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Nominatim{
		logger:    logger,
		client:    &http.Client{Timeout: 10 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "mapglyph/1.0 (+https://github.com/mapglyph/mapglyph)",
		limit:     5,
	}
	n.memo, _ = lru.New[uint64, slippy.Coordinate](256)
	for _, f := range opts {
		f(n)
	}
	return n
}

var _ Resolver = (*Nominatim)(nil)

// Resolve returns the coordinate for a query. Explicit "lat,lon" input is
// validated and returned as-is; anything else is geocoded, picking the
// best-ranked candidate.
func (n *Nominatim) Resolve(ctx context.Context, query string) (slippy.Coordinate, error) {
	c, _, err := n.resolve(ctx, query, true)
	return c, err
}

// ResolveUnique is Resolve but fails with ErrAmbiguous when the service
// returns more than one candidate. It bypasses the memo so ambiguity is
// detected even for previously resolved queries.
func (n *Nominatim) ResolveUnique(ctx context.Context, query string) (slippy.Coordinate, error) {
	c, matches, err := n.resolve(ctx, query, false)
	if err != nil {
		return slippy.Coordinate{}, err
	}
	if matches > 1 {
		return slippy.Coordinate{}, fmt.Errorf("%w: %d candidates for %q", ErrAmbiguous, matches, query)
	}
	return c, nil
}

func (n *Nominatim) resolve(ctx context.Context, query string, useMemo bool) (slippy.Coordinate, int, error) {
	if c, isCoord, err := ParseCoordinate(query); isCoord || err != nil {
		return c, 1, err
	}

	key := xxhash.Sum64String(strings.ToLower(strings.Join(strings.Fields(query), " ")))
	if useMemo {
		if c, ok := n.memo.Get(key); ok {
			observability.ObserveGeocode("memo", 0)
			return c, 1, nil
		}
	}

	start := time.Now()
	results, err := n.search(ctx, query)
	if err != nil {
		observability.ObserveGeocode("error", time.Since(start).Seconds())
		return slippy.Coordinate{}, 0, err
	}
	if len(results) == 0 {
		observability.ObserveGeocode("no_match", time.Since(start).Seconds())
		return slippy.Coordinate{}, 0, fmt.Errorf("%w: %q", ErrNoMatch, query)
	}

	c, err := results[0].coordinate()
	if err != nil {
		observability.ObserveGeocode("error", time.Since(start).Seconds())
		return slippy.Coordinate{}, 0, err
	}
	observability.ObserveGeocode("ok", time.Since(start).Seconds())

	n.memo.Add(key, c)
	n.logger.Debug("address resolved",
		"query", query, "coord", c.String(), "candidates", len(results))
	return c, len(results), nil
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (r searchResult) coordinate() (slippy.Coordinate, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return slippy.Coordinate{}, fmt.Errorf("parse lat %q: %w", r.Lat, err)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return slippy.Coordinate{}, fmt.Errorf("parse lon %q: %w", r.Lon, err)
	}
	c := slippy.Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		return slippy.Coordinate{}, err
	}
	return c, nil
}

func (n *Nominatim) search(ctx context.Context, query string) ([]searchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(n.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("geocode %q status=%d body=%q", query, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	return results, nil
}

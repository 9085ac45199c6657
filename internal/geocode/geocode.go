// Package geocode resolves free-text addresses and explicit coordinates into
// canonical geographic positions.
package geocode

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/mapglyph/mapglyph/pkg/slippy"
)

var (
	// ErrNoMatch reports that the geocoding service returned no candidate.
	ErrNoMatch = errors.New("geocode: no match")
	// ErrAmbiguous reports multiple candidates when a unique match was
	// required.
	ErrAmbiguous = errors.New("geocode: ambiguous address")
)

// Resolver turns a query into a coordinate. A query that already is an
// explicit "lat,lon" pair is validated and returned unchanged.
type Resolver interface {
	Resolve(ctx context.Context, query string) (slippy.Coordinate, error)
}

// ParseCoordinate parses "lat,lon" in decimal degrees. The boolean reports
// whether the input had coordinate shape at all; a shaped but out-of-range
// input returns true with slippy.ErrInvalidCoordinate.
func ParseCoordinate(s string) (slippy.Coordinate, bool, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return slippy.Coordinate{}, false, nil
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return slippy.Coordinate{}, false, nil
	}
	c := slippy.Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		return slippy.Coordinate{}, true, err
	}
	return c, true, nil
}

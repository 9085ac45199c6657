// Package hotness tracks how often map regions are rendered and derives
// cache TTLs from it: tiles in hot regions are worth keeping longer.
package hotness

import (
	"time"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mapglyph/mapglyph/pkg/slippy"
)

// Tracker scores string-keyed regions by recent activity.
type Tracker interface {
	Inc(key string)
	Score(key string) float64
	Reset(keys ...string)
}

// Policy maps render activity around a coordinate to a tile cache TTL.
// Regions are keyed by the H3 cell containing the coordinate, which gives
// stable region identity independent of the tile pyramid's zoom.
type Policy struct {
	Tracker  Tracker
	Res      int
	ScoreHot float64
	// ScoreWarm separates cold from warm regions; anything below gets TTLCold.
	ScoreWarm float64
	TTLCold   time.Duration
	TTLWarm   time.Duration
	TTLHot    time.Duration
}

// Touch records a render centered on the coordinate.
func (p *Policy) Touch(c slippy.Coordinate) {
	if p == nil || p.Tracker == nil {
		return
	}
	if key, ok := p.cellKey(c); ok {
		p.Tracker.Inc(key)
	}
}

// TTLFor returns the cache TTL for tiles near the coordinate.
func (p *Policy) TTLFor(c slippy.Coordinate) time.Duration {
	if p == nil || p.Tracker == nil {
		return 0
	}
	key, ok := p.cellKey(c)
	if !ok {
		return p.TTLCold
	}
	score := p.Tracker.Score(key)
	switch {
	case score >= p.ScoreHot:
		return p.TTLHot
	case score >= p.ScoreWarm:
		return p.TTLWarm
	default:
		return p.TTLCold
	}
}

func (p *Policy) cellKey(c slippy.Coordinate) (string, bool) {
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: c.Lat, Lng: c.Lon}, p.Res)
	if err != nil {
		return "", false
	}
	return cell.String(), true
}

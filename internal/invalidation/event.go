// Package invalidation drops cached tiles when upstream map data changes.
package invalidation

import (
	"fmt"
	"time"

	"github.com/mapglyph/mapglyph/pkg/slippy"
)

// maxKeysPerEvent caps the tile fan-out of a single event so a careless
// world-sized bbox cannot flood the cache tier with deletes.
const maxKeysPerEvent = 65536

// Event names a set of tiles whose cached copies are stale. Either an
// explicit tile list or a bbox with a zoom range must be present.
type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`

	Tiles []TileRef `json:"tiles,omitempty"`
	BBox  *BBox     `json:"bbox,omitempty"`
}

type TileRef struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

type BBox struct {
	MinLon  float64 `json:"min_lon"`
	MinLat  float64 `json:"min_lat"`
	MaxLon  float64 `json:"max_lon"`
	MaxLat  float64 `json:"max_lat"`
	ZoomMin int     `json:"zoom_min"`
	ZoomMax int     `json:"zoom_max"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "update", "expire":
	default:
		return fmt.Errorf("op must be update|expire")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	hasTiles := len(e.Tiles) > 0
	hasBBox := e.BBox != nil
	if hasTiles == hasBBox {
		return fmt.Errorf("exactly one of tiles or bbox is required")
	}
	if hasBBox {
		bb := *e.BBox
		if bb.ZoomMin < slippy.MinZoom || bb.ZoomMax > slippy.MaxZoom || bb.ZoomMin > bb.ZoomMax {
			return fmt.Errorf("bbox zoom range invalid")
		}
		sw := slippy.Coordinate{Lat: bb.MinLat, Lon: bb.MinLon}
		ne := slippy.Coordinate{Lat: bb.MaxLat, Lon: bb.MaxLon}
		if err := sw.Validate(); err != nil {
			return fmt.Errorf("bbox: %w", err)
		}
		if err := ne.Validate(); err != nil {
			return fmt.Errorf("bbox: %w", err)
		}
		if ne.Lat <= sw.Lat || ne.Lon <= sw.Lon {
			return fmt.Errorf("bbox corners inverted")
		}
	}
	return nil
}

// TileIDs expands the event into the concrete tiles to invalidate, capped at
// maxKeysPerEvent.
func (e Event) TileIDs() ([]slippy.TileID, error) {
	if len(e.Tiles) > 0 {
		out := make([]slippy.TileID, 0, len(e.Tiles))
		for _, t := range e.Tiles {
			id := slippy.TileID{Z: t.Z, X: t.X, Y: t.Y}
			if err := slippy.ValidateZoom(id.Z); err != nil {
				return nil, fmt.Errorf("tile %s: %w", id.Key(), err)
			}
			out = append(out, id)
		}
		return out, nil
	}

	bb := *e.BBox
	sw := slippy.Coordinate{Lat: bb.MinLat, Lon: bb.MinLon}
	ne := slippy.Coordinate{Lat: bb.MaxLat, Lon: bb.MaxLon}

	var out []slippy.TileID
	for z := bb.ZoomMin; z <= bb.ZoomMax; z++ {
		ids, err := slippy.TilesInBounds(sw, ne, z)
		if err != nil {
			return nil, fmt.Errorf("zoom %d: %w", z, err)
		}
		out = append(out, ids...)
		if len(out) > maxKeysPerEvent {
			return out[:maxKeysPerEvent], nil
		}
	}
	return out, nil
}

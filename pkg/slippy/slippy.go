// Package slippy implements Web-Mercator coordinate math for the standard
// z/x/y raster tile pyramid.
package slippy

import (
	"errors"
	"fmt"
	"image"
	"math"
)

const (
	// TileSize is the pixel edge length of a pyramid tile.
	TileSize = 256

	// MinZoom and MaxZoom bound the zoom levels the pyramid supports.
	MinZoom = 0
	MaxZoom = 19

	// maxMercatorLat is the latitude limit of the Web-Mercator projection.
	maxMercatorLat = 85.05112878
)

var (
	ErrInvalidCoordinate = errors.New("slippy: coordinate out of range")
	ErrUnsupportedZoom   = errors.New("slippy: zoom level out of range")
)

// Coordinate is a geographic position in floating-point degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinate, c.Lat, c.Lon)
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinate, c.Lat, c.Lon)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// TileID addresses one tile in the pyramid.
type TileID struct {
	Z, X, Y int
}

// Key returns the z/x/y form used by tile URLs and cache keys.
func (t TileID) Key() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

func ValidateZoom(zoom int) error {
	if zoom < MinZoom || zoom > MaxZoom {
		return fmt.Errorf("%w: %d", ErrUnsupportedZoom, zoom)
	}
	return nil
}

// WorldPixel projects a coordinate to fractional pixel coordinates in the
// world raster at the given zoom. Latitude is clamped to the Mercator limit.
func WorldPixel(c Coordinate, zoom int) (float64, float64) {
	lat := math.Max(math.Min(c.Lat, maxMercatorLat), -maxMercatorLat)
	latRad := lat * math.Pi / 180
	n := math.Exp2(float64(zoom))
	x := TileSize * n * (c.Lon + 180) / 360
	y := TileSize * n * (1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2
	return x, y
}

// FromWorldPixel is the inverse of WorldPixel. Longitude wraps around the
// date line; latitude is clamped to the Mercator limit.
func FromWorldPixel(x, y float64, zoom int) Coordinate {
	world := TileSize * math.Exp2(float64(zoom))
	lon := math.Mod(x/world*360-180, 360)
	if lon < -180 {
		lon += 360
	} else if lon > 180 {
		lon -= 360
	}
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*y/world)))
	lat := latRad * 180 / math.Pi
	lat = math.Max(math.Min(lat, maxMercatorLat), -maxMercatorLat)
	return Coordinate{Lat: lat, Lon: lon}
}

// TileAt returns the tile containing the coordinate at the given zoom.
func TileAt(c Coordinate, zoom int) TileID {
	x, y := WorldPixel(c, zoom)
	n := 1 << zoom
	tx := int(math.Floor(x / TileSize))
	ty := int(math.Floor(y / TileSize))
	return TileID{Z: zoom, X: wrap(tx, n), Y: clamp(ty, 0, n-1)}
}

// TileCenter returns the geographic center of a tile.
func TileCenter(id TileID) Coordinate {
	n := math.Exp2(float64(id.Z))
	lon := (float64(id.X)+0.5)/n*360 - 180
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*(float64(id.Y)+0.5)/n)))
	return Coordinate{Lat: latRad * 180 / math.Pi, Lon: lon}
}

// Placement positions one tile's pixels inside a destination canvas. A
// placement beyond the poles carries Valid=false; its rectangle should be
// filled with the unavailable pattern instead of tile data.
type Placement struct {
	ID    TileID
	Dst   image.Point
	Valid bool
}

// Coverage is the ordered set of tile placements needed to fill a pixel
// viewport centered on a coordinate.
type Coverage struct {
	Zoom   int
	Size   image.Point
	Center Coordinate
	Tiles  []Placement
}

// CoverageFor computes the tiles covering a widthPx by heightPx viewport
// centered on the given coordinate. Tile columns wrap around the date line;
// rows past the poles are emitted invalid so the caller can fill them with
// the placeholder pattern. A viewport edge sitting exactly on a tile boundary
// includes both neighboring tiles.
func CoverageFor(center Coordinate, zoom, widthPx, heightPx int) (Coverage, error) {
	if err := center.Validate(); err != nil {
		return Coverage{}, err
	}
	if err := ValidateZoom(zoom); err != nil {
		return Coverage{}, err
	}
	if widthPx <= 0 || heightPx <= 0 {
		return Coverage{}, fmt.Errorf("slippy: non-positive viewport %dx%d", widthPx, heightPx)
	}

	cx, cy := WorldPixel(center, zoom)
	left := cx - float64(widthPx)/2
	top := cy - float64(heightPx)/2

	firstX := int(math.Floor(left / TileSize))
	firstY := int(math.Floor(top / TileSize))
	lastX := int(math.Floor((left + float64(widthPx)) / TileSize))
	lastY := int(math.Floor((top + float64(heightPx)) / TileSize))

	n := 1 << zoom
	cov := Coverage{
		Zoom:   zoom,
		Size:   image.Pt(widthPx, heightPx),
		Center: center,
		Tiles:  make([]Placement, 0, (lastX-firstX+1)*(lastY-firstY+1)),
	}
	for ty := firstY; ty <= lastY; ty++ {
		for tx := firstX; tx <= lastX; tx++ {
			p := Placement{
				ID: TileID{Z: zoom, X: wrap(tx, n), Y: ty},
				Dst: image.Pt(
					int(math.Round(float64(tx)*TileSize-left)),
					int(math.Round(float64(ty)*TileSize-top)),
				),
				Valid: ty >= 0 && ty < n,
			}
			if !p.Valid {
				// keep the raw row so the placement rectangle stays disjoint
				p.ID.Y = ty
			}
			cov.Tiles = append(cov.Tiles, p)
		}
	}
	return cov, nil
}

// TilesInBounds enumerates the tiles at a zoom whose extent intersects the
// geographic box spanned by the south-west and north-east corners. Used for
// region-wide cache invalidation, so the box is not allowed to cross the
// date line.
func TilesInBounds(sw, ne Coordinate, zoom int) ([]TileID, error) {
	if err := sw.Validate(); err != nil {
		return nil, err
	}
	if err := ne.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateZoom(zoom); err != nil {
		return nil, err
	}
	if ne.Lat < sw.Lat || ne.Lon < sw.Lon {
		return nil, fmt.Errorf("%w: box corners inverted", ErrInvalidCoordinate)
	}

	// north-west corner has the smallest tile indices
	nw := TileAt(Coordinate{Lat: ne.Lat, Lon: sw.Lon}, zoom)
	se := TileAt(Coordinate{Lat: sw.Lat, Lon: ne.Lon}, zoom)

	out := make([]TileID, 0, (se.X-nw.X+1)*(se.Y-nw.Y+1))
	for y := nw.Y; y <= se.Y; y++ {
		for x := nw.X; x <= se.X; x++ {
			out = append(out, TileID{Z: zoom, X: x, Y: y})
		}
	}
	return out, nil
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

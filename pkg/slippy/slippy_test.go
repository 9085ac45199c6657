package slippy

import (
	"errors"
	"math"
	"testing"
)

func TestValidate_Bounds(t *testing.T) {
	good := []Coordinate{
		{0, 0},
		{-90, -180},
		{90, 180},
		{-23.5505, -46.6333}, // São Paulo
	}
	for _, c := range good {
		if err := c.Validate(); err != nil {
			t.Fatalf("Validate(%v): %v", c, err)
		}
	}
	bad := []Coordinate{
		{90.0001, 0},
		{-91, 0},
		{0, 180.5},
		{0, -200},
		{math.NaN(), 0},
	}
	for _, c := range bad {
		if err := c.Validate(); !errors.Is(err, ErrInvalidCoordinate) {
			t.Fatalf("Validate(%v) = %v, want ErrInvalidCoordinate", c, err)
		}
	}
}

func TestTileAt_KnownValues(t *testing.T) {
	// zoom 0 has a single tile
	id := TileAt(Coordinate{Lat: 51.5, Lon: -0.12}, 0)
	if id != (TileID{Z: 0, X: 0, Y: 0}) {
		t.Fatalf("zoom 0 tile = %+v", id)
	}

	// equator/prime meridian sits on the boundary of the four center tiles
	id = TileAt(Coordinate{}, 4)
	if id.X != 8 || id.Y != 8 {
		t.Fatalf("origin at zoom 4 = %+v, want 8/8", id)
	}
}

func TestTilesWithinPyramidBounds(t *testing.T) {
	coords := []Coordinate{
		{0, 0},
		{85, 179.999},
		{-85, -180},
		{-23.55, -46.63},
		{89.9, 180},
	}
	for z := MinZoom; z <= MaxZoom; z += 3 {
		n := 1 << z
		for _, c := range coords {
			cov, err := CoverageFor(c, z, 800, 400)
			if err != nil {
				t.Fatalf("CoverageFor(%v, %d): %v", c, z, err)
			}
			for _, p := range cov.Tiles {
				if !p.Valid {
					continue
				}
				if p.ID.X < 0 || p.ID.X >= n || p.ID.Y < 0 || p.ID.Y >= n {
					t.Fatalf("tile %+v outside [0,%d) at zoom %d", p.ID, n, z)
				}
			}
		}
	}
}

func TestCoverage_DateLineWrap(t *testing.T) {
	cov, err := CoverageFor(Coordinate{Lat: 0, Lon: 179.9999}, 4, 1024, 256)
	if err != nil {
		t.Fatalf("CoverageFor: %v", err)
	}
	n := 1 << 4
	sawWest := false
	for _, p := range cov.Tiles {
		if p.ID.X < 0 || p.ID.X >= n {
			t.Fatalf("unwrapped tile X: %+v", p.ID)
		}
		if p.ID.X == 0 {
			sawWest = true
		}
	}
	if !sawWest {
		t.Fatalf("coverage across the date line should wrap to column 0")
	}
}

func TestCoverage_PolarClamp(t *testing.T) {
	cov, err := CoverageFor(Coordinate{Lat: 85.05, Lon: 0}, 2, 256, 1024)
	if err != nil {
		t.Fatalf("CoverageFor: %v", err)
	}
	sawInvalid := false
	for _, p := range cov.Tiles {
		if !p.Valid {
			sawInvalid = true
			if p.ID.Y >= 0 && p.ID.Y < 4 {
				t.Fatalf("invalid placement has in-range row: %+v", p)
			}
		}
	}
	if !sawInvalid {
		t.Fatalf("viewport past the pole should produce invalid placements")
	}
}

func TestCoverage_BoundaryIncludesNeighbors(t *testing.T) {
	// center exactly on a tile corner with a viewport that is a whole number
	// of tiles: both edge neighbors must be included
	cov, err := CoverageFor(Coordinate{Lat: 0, Lon: 0}, 3, 2*TileSize, 2*TileSize)
	if err != nil {
		t.Fatalf("CoverageFor: %v", err)
	}
	// lat/lon 0/0 at zoom 3 is the corner of tiles 3/4, so a 512x512 viewport
	// spans tile columns 3..5 inclusive
	cols := map[int]bool{}
	for _, p := range cov.Tiles {
		cols[p.ID.X] = true
	}
	for _, want := range []int{3, 4, 5} {
		if !cols[want] {
			t.Fatalf("column %d missing from boundary coverage: %v", want, cols)
		}
	}
}

func TestCoverage_ZoomRefinement(t *testing.T) {
	c := Coordinate{Lat: -23.5505, Lon: -46.6333}

	cov2, err := CoverageFor(c, 2, 512, 512)
	if err != nil {
		t.Fatalf("zoom 2: %v", err)
	}
	cov3, err := CoverageFor(c, 3, 512, 512)
	if err != nil {
		t.Fatalf("zoom 3: %v", err)
	}

	ids2 := map[TileID]bool{}
	for _, p := range cov2.Tiles {
		ids2[p.ID] = true
	}
	for _, p := range cov3.Tiles {
		if ids2[p.ID] {
			t.Fatalf("tile %+v appears at both zoom levels", p.ID)
		}
	}

	// same pixel viewport covers half the geographic extent per axis at z+1
	span2 := geoSpanLon(cov2)
	span3 := geoSpanLon(cov3)
	if span3 >= span2 {
		t.Fatalf("zoom 3 lon span %v not smaller than zoom 2 span %v", span3, span2)
	}
}

func geoSpanLon(cov Coverage) float64 {
	degPerPx := 360 / (math.Exp2(float64(cov.Zoom)) * TileSize)
	return degPerPx * float64(cov.Size.X)
}

func TestTileCenter_RoundTrip(t *testing.T) {
	for _, id := range []TileID{{Z: 5, X: 10, Y: 12}, {Z: 11, X: 604, Y: 1182}} {
		c := TileCenter(id)
		if got := TileAt(c, id.Z); got != id {
			t.Fatalf("TileAt(TileCenter(%+v)) = %+v", id, got)
		}
	}
}

func TestWorldPixel_ScaleHalvesPerZoom(t *testing.T) {
	c := Coordinate{Lat: 40, Lon: -3}
	x1, y1 := WorldPixel(c, 6)
	x2, y2 := WorldPixel(c, 7)
	if math.Abs(x2-2*x1) > 1e-6 || math.Abs(y2-2*y1) > 1e-6 {
		t.Fatalf("world pixel should double per zoom increment: (%v,%v) vs (%v,%v)", x1, y1, x2, y2)
	}
}

func TestFromWorldPixel_RoundTrip(t *testing.T) {
	coords := []Coordinate{
		{Lat: 0, Lon: 0},
		{Lat: 48.8584, Lon: 2.2945},
		{Lat: -23.5505, Lon: -46.6333},
		{Lat: 60.17, Lon: 179.9},
	}
	for _, c := range coords {
		x, y := WorldPixel(c, 12)
		got := FromWorldPixel(x, y, 12)
		if math.Abs(got.Lat-c.Lat) > 1e-6 || math.Abs(got.Lon-c.Lon) > 1e-6 {
			t.Fatalf("round trip %v -> %v", c, got)
		}
	}
}

func TestFromWorldPixel_WrapsAndClamps(t *testing.T) {
	world := float64(TileSize) * 8
	c := FromWorldPixel(world+TileSize/2, world/2, 3)
	if c.Lon < -180 || c.Lon > 180 {
		t.Fatalf("longitude not wrapped: %v", c.Lon)
	}
	top := FromWorldPixel(0, -500, 3)
	if top.Lat > 85.06 {
		t.Fatalf("latitude not clamped: %v", top.Lat)
	}
	if err := top.Validate(); err != nil {
		t.Fatalf("clamped coordinate invalid: %v", err)
	}
}

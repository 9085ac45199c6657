package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/mapglyph/mapglyph/internal/tile"
	"github.com/mapglyph/mapglyph/pkg/slippy"
)

func solidSource(c color.Color) tile.Source {
	return tile.SourceFunc(func(_ context.Context, _ slippy.TileID) (image.Image, error) {
		img := image.NewRGBA(image.Rect(0, 0, slippy.TileSize, slippy.TileSize))
		draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
		return img, nil
	})
}

func TestStitch_FillsWholeCanvas(t *testing.T) {
	cov, err := slippy.CoverageFor(slippy.Coordinate{Lat: -23.5505, Lon: -46.6333}, 10, 600, 320)
	if err != nil {
		t.Fatalf("CoverageFor: %v", err)
	}

	green := color.RGBA{G: 200, A: 255}
	canvas := Stitch(context.Background(), nil, cov, solidSource(green), Options{})

	if got := canvas.Bounds().Size(); got != cov.Size {
		t.Fatalf("canvas size %v, want %v", got, cov.Size)
	}
	for _, pt := range []image.Point{{0, 0}, {599, 319}, {300, 160}} {
		if c := canvas.RGBAAt(pt.X, pt.Y); c != green {
			t.Fatalf("pixel %v = %v, want %v", pt, c, green)
		}
	}
}

func TestStitch_Idempotent(t *testing.T) {
	cov, err := slippy.CoverageFor(slippy.Coordinate{Lat: 48.85, Lon: 2.35}, 8, 512, 512)
	if err != nil {
		t.Fatalf("CoverageFor: %v", err)
	}
	src := tile.SourceFunc(func(_ context.Context, id slippy.TileID) (image.Image, error) {
		// deterministic per-tile color so a misplaced tile shows up
		img := image.NewRGBA(image.Rect(0, 0, slippy.TileSize, slippy.TileSize))
		c := color.RGBA{R: uint8(id.X * 37), G: uint8(id.Y * 53), B: 128, A: 255}
		draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
		return img, nil
	})

	a := Stitch(context.Background(), nil, cov, src, Options{})
	b := Stitch(context.Background(), nil, cov, src, Options{})
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Fatalf("stitching identical inputs produced different canvases")
	}
}

func TestStitch_FailedTileGetsPlaceholder(t *testing.T) {
	cov, err := slippy.CoverageFor(slippy.Coordinate{Lat: 0, Lon: 0}, 5, 512, 256)
	if err != nil {
		t.Fatalf("CoverageFor: %v", err)
	}
	var missing slippy.TileID
	for _, p := range cov.Tiles {
		if p.Valid {
			missing = p.ID
			break
		}
	}

	blue := color.RGBA{B: 255, A: 255}
	src := tile.SourceFunc(func(_ context.Context, id slippy.TileID) (image.Image, error) {
		if id == missing {
			return nil, fmt.Errorf("tile %s: %w", id.Key(), tile.ErrNotFound)
		}
		img := image.NewRGBA(image.Rect(0, 0, slippy.TileSize, slippy.TileSize))
		draw.Draw(img, img.Bounds(), image.NewUniform(blue), image.Point{}, draw.Src)
		return img, nil
	})

	canvas := Stitch(context.Background(), nil, cov, src, Options{})
	want := tile.Placeholder(slippy.TileSize)

	for _, p := range cov.Tiles {
		rect := image.Rect(p.Dst.X, p.Dst.Y, p.Dst.X+slippy.TileSize, p.Dst.Y+slippy.TileSize).
			Intersect(canvas.Bounds())
		probe := image.Pt(rect.Min.X+(rect.Dx()/2), rect.Min.Y+(rect.Dy()/2))
		got := canvas.RGBAAt(probe.X, probe.Y)
		if p.ID == missing {
			px := probe.Sub(image.Pt(p.Dst.X, p.Dst.Y))
			if got != want.RGBAAt(px.X, px.Y) {
				t.Fatalf("missing tile region not placeholder at %v: %v", probe, got)
			}
		} else if p.Valid && got != blue {
			t.Fatalf("healthy tile region corrupted at %v: %v", probe, got)
		}
	}
}

func TestStitch_UnavailablePatternIsOpaque(t *testing.T) {
	img := tile.Placeholder(slippy.TileSize)
	for _, pt := range []image.Point{{0, 0}, {31, 31}, {255, 255}} {
		if a := img.RGBAAt(pt.X, pt.Y).A; a != 255 {
			t.Fatalf("placeholder alpha at %v = %d", pt, a)
		}
	}
}

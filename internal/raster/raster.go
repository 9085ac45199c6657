// Package raster stitches fetched map tiles into a single pixel canvas.
package raster

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"sync"

	"github.com/mapglyph/mapglyph/internal/tile"
	"github.com/mapglyph/mapglyph/pkg/slippy"
)

// Options tunes a stitch pass.
type Options struct {
	// Workers bounds concurrent tile fetches. Zero means 6, matching the
	// polite parallelism of public tile servers.
	Workers int
	// Background is the color composited under translucent tile pixels and
	// filling regions no tile covers.
	Background color.Color
	// TileSize is the expected tile edge length. Zero means slippy.TileSize.
	TileSize int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 6
	}
	if o.Background == nil {
		o.Background = color.RGBA{R: 240, G: 240, B: 240, A: 255}
	}
	if o.TileSize <= 0 {
		o.TileSize = slippy.TileSize
	}
	return o
}

// Stitch fetches every tile of the coverage through src and copies it into a
// canvas of the coverage's size. Tiles are fetched concurrently; each writes
// only its own destination rectangle, cropped to the canvas bounds. A tile
// that fails or falls outside the pyramid gets the placeholder pattern
// instead; the stitch itself never fails once the coverage is valid.
func Stitch(ctx context.Context, logger *slog.Logger, cov slippy.Coverage, src tile.Source, opts Options) *image.RGBA {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	canvas := image.NewRGBA(image.Rect(0, 0, cov.Size.X, cov.Size.Y))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)

	sem := make(chan struct{}, opts.Workers)
	var wg sync.WaitGroup
	for _, p := range cov.Tiles {
		wg.Add(1)
		go func(p slippy.Placement) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			rect := image.Rect(p.Dst.X, p.Dst.Y, p.Dst.X+opts.TileSize, p.Dst.Y+opts.TileSize)

			if !p.Valid {
				draw.Draw(canvas, rect, tile.Placeholder(opts.TileSize), image.Point{}, draw.Src)
				return
			}
			img, err := src.Fetch(ctx, p.ID)
			if err != nil {
				logger.Debug("tile unavailable, using placeholder",
					"tile", p.ID.Key(), "err", err)
				draw.Draw(canvas, rect, tile.Placeholder(opts.TileSize), image.Point{}, draw.Src)
				return
			}
			// composite over the background fill; draw clips to canvas bounds
			draw.Draw(canvas, rect, img, img.Bounds().Min, draw.Over)
		}(p)
	}
	wg.Wait()
	return canvas
}

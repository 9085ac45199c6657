package surface

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/mapglyph/mapglyph/internal/geocode"
	"github.com/mapglyph/mapglyph/internal/hotness"
	"github.com/mapglyph/mapglyph/internal/observability"
	"github.com/mapglyph/mapglyph/internal/raster"
	"github.com/mapglyph/mapglyph/internal/tile"
	"github.com/mapglyph/mapglyph/pkg/cellgrid"
	"github.com/mapglyph/mapglyph/pkg/slippy"
)

// CellSize is the assumed pixel footprint of one character cell. Terminal
// glyphs are roughly twice as tall as wide, so the viewport in map pixels is
// cols*W by rows*H.
type CellSize struct {
	W, H int
}

var DefaultCellSize = CellSize{W: 8, H: 16}

// Pipeline runs one full render pass: resolve the query, compute tile
// coverage for the viewport, stitch the tiles and project the canvas down to
// character cells. It holds no per-request state and is safe for concurrent
// use.
type Pipeline struct {
	logger    *slog.Logger
	resolver  geocode.Resolver
	source    tile.Source
	hot       *hotness.Policy
	cell      CellSize
	workers   int
	maxColors int
}

type PipelineOption func(*Pipeline)

// WithCellSize overrides the assumed pixel size of one character cell.
func WithCellSize(cs CellSize) PipelineOption {
	return func(p *Pipeline) {
		if cs.W > 0 && cs.H > 0 {
			p.cell = cs
		}
	}
}

// WithHotness attaches a hotness policy so render passes feed the region
// popularity tracker.
func WithHotness(pol *hotness.Policy) PipelineOption {
	return func(p *Pipeline) { p.hot = pol }
}

// WithWorkers sets the concurrent tile fetch limit per pass.
func WithWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxColors caps the output palette, for terminals without 24-bit
// color. Zero keeps full color.
func WithMaxColors(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxColors = n
		}
	}
}

func NewPipeline(logger *slog.Logger, resolver geocode.Resolver, source tile.Source, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		logger:   logger,
		resolver: resolver,
		source:   source,
		cell:     DefaultCellSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve turns a free form query into a coordinate.
func (p *Pipeline) Resolve(ctx context.Context, query string) (slippy.Coordinate, error) {
	return p.resolver.Resolve(ctx, query)
}

// Stitch computes coverage for a cols-by-rows viewport centered on the given
// coordinate and assembles the tile canvas.
func (p *Pipeline) Stitch(ctx context.Context, center slippy.Coordinate, zoom, cols, rows int) (*image.RGBA, slippy.Coverage, error) {
	cov, err := slippy.CoverageFor(center, zoom, cols*p.cell.W, rows*p.cell.H)
	if err != nil {
		return nil, slippy.Coverage{}, fmt.Errorf("coverage: %w", err)
	}
	img := raster.Stitch(ctx, p.logger, cov, p.source, raster.Options{Workers: p.workers})
	if err := ctx.Err(); err != nil {
		return nil, slippy.Coverage{}, err
	}
	p.hot.Touch(center)
	return img, cov, nil
}

// Project turns a stitched canvas into a cell grid, applying the color cap
// when one is set.
func (p *Pipeline) Project(img image.Image, mode cellgrid.Mode, cols, rows int) cellgrid.Grid {
	grid := cellgrid.Project(img, mode, cols, rows)
	if p.maxColors > 0 {
		grid = cellgrid.Quantize(grid, cellgrid.Palette(img, p.maxColors))
	}
	return grid
}

// Result is one completed render pass.
type Result struct {
	Grid     cellgrid.Grid
	Center   slippy.Coordinate
	Coverage slippy.Coverage
}

// Render runs the whole pass in one call. Queries that parse as "lat,lon"
// skip the resolver.
func (p *Pipeline) Render(ctx context.Context, query string, zoom, cols, rows int, mode cellgrid.Mode) (Result, error) {
	start := time.Now()

	center, err := p.Resolve(ctx, query)
	if err != nil {
		observability.ObserveRenderPass(mode.String(), "resolve_error", time.Since(start).Seconds())
		return Result{}, err
	}

	img, cov, err := p.Stitch(ctx, center, zoom, cols, rows)
	if err != nil {
		observability.ObserveRenderPass(mode.String(), "stitch_error", time.Since(start).Seconds())
		return Result{}, err
	}

	grid := p.Project(img, mode, cols, rows)
	observability.ObserveRenderPass(mode.String(), "ok", time.Since(start).Seconds())
	p.logger.Debug("render pass complete",
		"zoom", cov.Zoom, "tiles", len(cov.Tiles), "cols", cols, "rows", rows,
		"mode", mode.String(), "elapsed", time.Since(start))
	return Result{Grid: grid, Center: center, Coverage: cov}, nil
}

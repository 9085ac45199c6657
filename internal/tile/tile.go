// Package tile defines the tile source boundary and the providers behind it.
package tile

import (
	"context"
	"errors"
	"image"

	"github.com/mapglyph/mapglyph/pkg/slippy"
)

// ErrNotFound reports that the provider has no tile at the requested
// zoom/position, e.g. beyond its coverage.
var ErrNotFound = errors.New("tile: not found")

// Source retrieves the raster image for a tile. Implementations must be safe
// for concurrent use; the rasterizer fetches tiles in parallel.
type Source interface {
	Fetch(ctx context.Context, id slippy.TileID) (image.Image, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, id slippy.TileID) (image.Image, error)

func (f SourceFunc) Fetch(ctx context.Context, id slippy.TileID) (image.Image, error) {
	return f(ctx, id)
}

package cellgrid

import (
	"image"
	"image/color"

	"github.com/ericpauley/go-quantize/quantize"
)

// Palette reduces an image to at most n representative colors using
// median-cut quantization. Used for terminals without 24-bit color support.
func Palette(img image.Image, n int) color.Palette {
	if n <= 0 {
		n = 256
	}
	q := quantize.MedianCutQuantizer{}
	return color.Palette(q.Quantize(make([]color.Color, 0, n), img))
}

// Quantize snaps every cell color of the grid to the nearest palette entry.
// The grid is modified in place and returned for chaining.
func Quantize(g Grid, p color.Palette) Grid {
	if len(p) == 0 {
		return g
	}
	for i := range g.Cells {
		g.Cells[i].Fg = toRGB(p.Convert(g.Cells[i].Fg))
		g.Cells[i].Bg = toRGB(p.Convert(g.Cells[i].Bg))
	}
	return g
}

// Package cellgrid converts raster images into grids of styled terminal
// cells, packing one, two, or four pixel samples per cell depending on the
// selected mode.
package cellgrid

import (
	"image"
	"image/color"
)

// RGB is a 24-bit color. Cell colors are always fully opaque.
type RGB struct {
	R, G, B uint8
}

func (c RGB) RGBA() (r, g, b, a uint32) {
	return uint32(c.R) * 0x101, uint32(c.G) * 0x101, uint32(c.B) * 0x101, 0xffff
}

// Cell is one displayable character with its foreground and background color.
type Cell struct {
	Rune rune
	Fg   RGB
	Bg   RGB
}

// Grid is a rectangular block of cells in row-major order.
type Grid struct {
	Cols  int
	Rows  int
	Cells []Cell
}

func NewGrid(cols, rows int) Grid {
	if cols < 0 {
		cols = 0
	}
	if rows < 0 {
		rows = 0
	}
	return Grid{Cols: cols, Rows: rows, Cells: make([]Cell, cols*rows)}
}

// At returns the cell at column x, row y. Out-of-range lookups return the
// zero cell.
func (g Grid) At(x, y int) Cell {
	if x < 0 || y < 0 || x >= g.Cols || y >= g.Rows {
		return Cell{}
	}
	return g.Cells[y*g.Cols+x]
}

// Set replaces the cell at column x, row y. Out-of-range writes are ignored.
func (g Grid) Set(x, y int, c Cell) {
	if x < 0 || y < 0 || x >= g.Cols || y >= g.Rows {
		return
	}
	g.Cells[y*g.Cols+x] = c
}

// Fill sets every cell to c.
func (g Grid) Fill(c Cell) {
	for i := range g.Cells {
		g.Cells[i] = c
	}
}

// Mode selects how many pixel sub-regions are packed into one cell.
type Mode uint8

const (
	// ModeFull fills the whole cell with one averaged background color.
	ModeFull Mode = iota
	// ModeHalf packs two vertically stacked samples per cell using the
	// upper half-block glyph.
	ModeHalf
	// ModeQuadrant packs four samples per cell using quadrant glyphs.
	ModeQuadrant
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeHalf:
		return "half"
	case ModeQuadrant:
		return "quadrant"
	default:
		return "unknown"
	}
}

// ParseMode maps a config string to a Mode. Unrecognized values fall back
// to ModeHalf.
func ParseMode(s string) Mode {
	switch s {
	case "full", "fullcell":
		return ModeFull
	case "half", "halfcell":
		return ModeHalf
	case "quadrant", "quad":
		return ModeQuadrant
	default:
		return ModeHalf
	}
}

func toRGB(c color.Color) RGB {
	r, g, b, a := c.RGBA()
	if a == 0 {
		return RGB{}
	}
	if a != 0xffff {
		r = r * 0xffff / a
		g = g * 0xffff / a
		b = b * 0xffff / a
	}
	return RGB{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
}

// meanRGB averages the pixels of img inside rect. An empty intersection
// yields black.
func meanRGB(img image.Image, rect image.Rectangle) RGB {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return RGB{}
	}
	var sr, sg, sb, n uint64
	if rgba, ok := img.(*image.RGBA); ok {
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			i := rgba.PixOffset(rect.Min.X, y)
			for x := rect.Min.X; x < rect.Max.X; x++ {
				sr += uint64(rgba.Pix[i])
				sg += uint64(rgba.Pix[i+1])
				sb += uint64(rgba.Pix[i+2])
				i += 4
				n++
			}
		}
	} else {
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				p := toRGB(img.At(x, y))
				sr += uint64(p.R)
				sg += uint64(p.G)
				sb += uint64(p.B)
				n++
			}
		}
	}
	return RGB{R: uint8(sr / n), G: uint8(sg / n), B: uint8(sb / n)}
}

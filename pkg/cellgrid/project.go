package cellgrid

import "image"

const (
	// FullBlock fills a cell with its foreground color.
	FullBlock = '█'
	// UpperHalfBlock shows the foreground in the top half of the cell and
	// the background in the bottom half.
	UpperHalfBlock = '▀'
)

// quadrantGlyphs maps a 4-bit sub-region pattern to its block glyph.
// Bit order: 1=upper-left, 2=upper-right, 4=lower-left, 8=lower-right,
// a set bit meaning the sub-region shows the foreground color.
var quadrantGlyphs = [16]rune{
	' ', '▘', '▝', '▀',
	'▖', '▌', '▞', '▛',
	'▗', '▚', '▐', '▜',
	'▄', '▙', '▟', '█',
}

// Project converts an image into a cols by rows cell grid under the given
// mode. Each cell averages the pixel block it covers; finer modes split the
// block into sub-regions that map onto partial-block glyphs.
func Project(img image.Image, mode Mode, cols, rows int) Grid {
	g := NewGrid(cols, rows)
	if cols <= 0 || rows <= 0 {
		return g
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return g
	}

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			// pixel block for this cell, computed from scaled edges so
			// rounding never drops or doubles a pixel column
			block := image.Rect(
				b.Min.X+x*w/cols, b.Min.Y+y*h/rows,
				b.Min.X+(x+1)*w/cols, b.Min.Y+(y+1)*h/rows,
			)
			var c Cell
			switch mode {
			case ModeFull:
				bg := meanRGB(img, block)
				c = Cell{Rune: ' ', Fg: bg, Bg: bg}
			case ModeHalf:
				c = projectHalf(img, block)
			case ModeQuadrant:
				c = projectQuadrant(img, block)
			default:
				bg := meanRGB(img, block)
				c = Cell{Rune: ' ', Fg: bg, Bg: bg}
			}
			g.Cells[y*cols+x] = c
		}
	}
	return g
}

// projectHalf samples the top and bottom halves of the block. The upper
// half-block glyph puts the top sample in the foreground and the bottom in
// the background.
func projectHalf(img image.Image, block image.Rectangle) Cell {
	if block.Dy() < 2 {
		c := meanRGB(img, block)
		return Cell{Rune: UpperHalfBlock, Fg: c, Bg: c}
	}
	midY := (block.Min.Y + block.Max.Y) / 2
	top := meanRGB(img, image.Rect(block.Min.X, block.Min.Y, block.Max.X, midY))
	bottom := meanRGB(img, image.Rect(block.Min.X, midY, block.Max.X, block.Max.Y))
	return Cell{Rune: UpperHalfBlock, Fg: top, Bg: bottom}
}

// projectQuadrant samples the 2x2 sub-blocks and picks the quadrant glyph
// with the least squared color error over all 16 foreground patterns.
func projectQuadrant(img image.Image, block image.Rectangle) Cell {
	if block.Dx() < 2 || block.Dy() < 2 {
		c := meanRGB(img, block)
		return Cell{Rune: ' ', Fg: c, Bg: c}
	}
	midX := (block.Min.X + block.Max.X) / 2
	midY := (block.Min.Y + block.Max.Y) / 2
	quads := [4]RGB{
		meanRGB(img, image.Rect(block.Min.X, block.Min.Y, midX, midY)), // UL
		meanRGB(img, image.Rect(midX, block.Min.Y, block.Max.X, midY)), // UR
		meanRGB(img, image.Rect(block.Min.X, midY, midX, block.Max.Y)), // LL
		meanRGB(img, image.Rect(midX, midY, block.Max.X, block.Max.Y)), // LR
	}

	best := Cell{Rune: ' '}
	bestErr := int(^uint(0) >> 1)
	for pattern := 0; pattern < 16; pattern++ {
		fg, bg, errSq := patternColors(quads, pattern)
		if errSq < bestErr {
			bestErr = errSq
			best = Cell{Rune: quadrantGlyphs[pattern], Fg: fg, Bg: bg}
		}
	}
	if best.Rune == ' ' {
		best.Fg = best.Bg
	}
	if best.Rune == FullBlock {
		best.Bg = best.Fg
	}
	return best
}

// patternColors averages the on/off sub-regions of a pattern and sums the
// squared error of representing each sub-region with its partition color.
func patternColors(quads [4]RGB, pattern int) (fore, back RGB, errSq int) {
	var fr, fg, fb, fn int
	var br, bg, bb, bn int
	for i := 0; i < 4; i++ {
		if pattern&(1<<i) != 0 {
			fr += int(quads[i].R)
			fg += int(quads[i].G)
			fb += int(quads[i].B)
			fn++
		} else {
			br += int(quads[i].R)
			bg += int(quads[i].G)
			bb += int(quads[i].B)
			bn++
		}
	}
	if fn > 0 {
		fore = RGB{uint8(fr / fn), uint8(fg / fn), uint8(fb / fn)}
	}
	if bn > 0 {
		back = RGB{uint8(br / bn), uint8(bg / bn), uint8(bb / bn)}
	}
	for i := 0; i < 4; i++ {
		target := back
		if pattern&(1<<i) != 0 {
			target = fore
		}
		errSq += distSq(quads[i], target)
	}
	return fore, back, errSq
}

func distSq(a, b RGB) int {
	dr := int(a.R) - int(b.R)
	dg := int(a.G) - int(b.G)
	db := int(a.B) - int(b.B)
	return dr*dr + dg*dg + db*db
}

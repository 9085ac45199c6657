package cellgrid

import (
	"fmt"
	"strings"
)

// ANSI encodes a grid as 24-bit SGR escape sequences, one line per row,
// with colors reset at the end of every row. Color sequences are only
// emitted when they change between adjacent cells.
func ANSI(g Grid) string {
	var b strings.Builder
	b.Grow(g.Cols*g.Rows*24 + g.Rows*8)

	for y := 0; y < g.Rows; y++ {
		var cur Cell
		styled := false
		for x := 0; x < g.Cols; x++ {
			c := g.At(x, y)
			if !styled || c.Fg != cur.Fg {
				fmt.Fprintf(&b, "\x1b[38;2;%d;%d;%dm", c.Fg.R, c.Fg.G, c.Fg.B)
			}
			if !styled || c.Bg != cur.Bg {
				fmt.Fprintf(&b, "\x1b[48;2;%d;%d;%dm", c.Bg.R, c.Bg.G, c.Bg.B)
			}
			b.WriteRune(c.Rune)
			cur = c
			styled = true
		}
		b.WriteString("\x1b[0m\n")
	}
	return b.String()
}

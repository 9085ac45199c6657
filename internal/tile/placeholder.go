package tile

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
)

var (
	placeholderMu   sync.Mutex
	placeholderImgs = map[int]*image.RGBA{}
)

// Placeholder returns the light grid pattern drawn where a tile is
// unavailable. The image is built once per size and must not be mutated.
func Placeholder(size int) *image.RGBA {
	placeholderMu.Lock()
	defer placeholderMu.Unlock()

	if img, ok := placeholderImgs[size]; ok {
		return img
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	bg := color.RGBA{R: 240, G: 240, B: 240, A: 255}
	line := color.RGBA{R: 220, G: 220, B: 220, A: 255}
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	for i := 0; i < size; i += 32 {
		for j := 0; j < size; j++ {
			img.SetRGBA(i, j, line)
			img.SetRGBA(j, i, line)
		}
	}
	placeholderImgs[size] = img
	return img
}

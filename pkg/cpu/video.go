package cpu

import (
	"image"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"hackvm/pkg/grid"
)

// wordsPerRow is the number of 16-pixel screen words in one scanline.
const wordsPerRow = ScreenWidth / 16

// Pixel reports whether the pixel at (x, y) is set (black).
func (c *CPU) Pixel(x, y int) bool {
	word := c.RAM[int(ScreenBase)+y*wordsPerRow+x/16]
	return word&(1<<(x%16)) != 0
}

// FramebufferRGBA decodes the screen memory map into a 512×256 RGBA8888
// byte slice. Set bits are black on a white background; bit 0 of each
// word is its leftmost pixel.
func (c *CPU) FramebufferRGBA() []byte {
	pixels := make([]byte, ScreenWidth*ScreenHeight*4)
	for i := range pixels {
		pixels[i] = 0xFF
	}

	for i := 0; i < ScreenWords; i++ {
		word := c.RAM[int(ScreenBase)+i]
		if word == 0 {
			continue
		}
		col, row := grid.GetGridCoords(i, wordsPerRow)
		for bit := 0; bit < 16; bit++ {
			if word&(1<<bit) == 0 {
				continue
			}
			p := (row*ScreenWidth + col*16 + bit) * 4
			pixels[p+0] = 0
			pixels[p+1] = 0
			pixels[p+2] = 0
		}
	}
	return pixels
}

// FramebufferImage returns the screen as an *image.RGBA.
func (c *CPU) FramebufferImage() *image.RGBA {
	return &image.RGBA{
		Pix:    c.FramebufferRGBA(),
		Stride: ScreenWidth * 4,
		Rect:   image.Rect(0, 0, ScreenWidth, ScreenHeight),
	}
}

// Screenshot returns the screen enlarged by an integer factor with
// nearest-neighbour sampling, so single pixels stay crisp.
func (c *CPU) Screenshot(scale int) *image.RGBA {
	src := c.FramebufferImage()
	if scale <= 1 {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, ScreenWidth*scale, ScreenHeight*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// SaveScreenshot encodes the scaled screen as a PNG and writes it to filename.
func (c *CPU) SaveScreenshot(filename string, scale int) error {
	img := c.Screenshot(scale)
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

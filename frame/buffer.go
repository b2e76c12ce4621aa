// Package frame holds the pixel and depth containers shared by every stage of
// the stereo pipeline, together with their load/save helpers.
package frame

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// Buffer is a 2D grid of non-premultiplied RGBA samples.
type Buffer struct {
	img *image.NRGBA
}

// NewBuffer allocates a zeroed (transparent black) buffer.
func NewBuffer(width, height int) *Buffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Buffer{img: image.NewNRGBA(image.Rect(0, 0, width, height))}
}

// FromImage copies any image into a Buffer whose origin is (0,0).
func FromImage(src image.Image) *Buffer {
	if n, ok := src.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return &Buffer{img: n}
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
	return &Buffer{img: dst}
}

func (b *Buffer) Width() int  { return b.img.Rect.Dx() }
func (b *Buffer) Height() int { return b.img.Rect.Dy() }

// Image exposes the backing image. Writes through it are visible to the Buffer.
func (b *Buffer) Image() *image.NRGBA { return b.img }

// In reports whether (x,y) addresses a sample inside the buffer.
func (b *Buffer) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Width() && y < b.Height()
}

// At returns the sample at (x,y). Callers must stay in bounds.
func (b *Buffer) At(x, y int) color.NRGBA {
	i := y*b.img.Stride + x*4
	p := b.img.Pix[i : i+4 : i+4]
	return color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
}

// Set writes the sample at (x,y). Callers must stay in bounds.
func (b *Buffer) Set(x, y int, c color.NRGBA) {
	i := y*b.img.Stride + x*4
	p := b.img.Pix[i : i+4 : i+4]
	p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
}

// Luma is the unweighted mean of R, G and B in 0..255.
func (b *Buffer) Luma(x, y int) float64 {
	i := y*b.img.Stride + x*4
	p := b.img.Pix
	return (float64(p[i]) + float64(p[i+1]) + float64(p[i+2])) / 3
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	dst := image.NewNRGBA(b.img.Rect)
	copy(dst.Pix, b.img.Pix)
	return &Buffer{img: dst}
}

// Fill paints every sample with c.
func (b *Buffer) Fill(c color.NRGBA) {
	for y := 0; y < b.Height(); y++ {
		for x := 0; x < b.Width(); x++ {
			b.Set(x, y, c)
		}
	}
}

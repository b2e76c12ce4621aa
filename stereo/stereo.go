// Package stereo synthesizes left and right eye views from a frame and its
// depth map and lays them out as a side-by-side VR180 picture.
package stereo

import (
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"
	xdraw "golang.org/x/image/draw"

	"github.com/stevecastle/vr180/appconfig"
	"github.com/stevecastle/vr180/frame"
)

// Eye selects which view to synthesize.
type Eye int

const (
	Left Eye = iota
	Right
)

func (e Eye) String() string {
	if e == Left {
		return "left"
	}
	return "right"
}

// sign is the direction the eye samples from: left looks left of the pixel,
// right looks right.
func (e Eye) sign() float64 {
	if e == Left {
		return -1
	}
	return 1
}

// disparityExponent shapes depth sub-linearly before scaling.
const disparityExponent = 0.7

// Synthesizer resamples frames horizontally by depth-derived disparity.
type Synthesizer struct {
	MaxDisparity float64
}

// New builds a Synthesizer from the VR180 settings.
func New(cfg appconfig.VR180) *Synthesizer {
	return &Synthesizer{MaxDisparity: cfg.MaxDisparity}
}

// Disparity maps depth in [0,1] to a horizontal offset in pixels. It is
// monotonically non-decreasing in depth.
func (s *Synthesizer) Disparity(depth float64) float64 {
	return math.Pow(frame.Clamp01(depth), disparityExponent) * s.MaxDisparity
}

// SynthesizeEyeView copies, for each output pixel, the source pixel shifted by
// the eye's signed disparity. Source columns outside the row are clamped to
// the nearest edge column.
func (s *Synthesizer) SynthesizeEyeView(b *frame.Buffer, dm *frame.DepthMap, eye Eye) (*frame.Buffer, error) {
	if err := frame.ValidateBuffer(b); err != nil {
		return nil, err
	}
	if err := dm.Matches(b); err != nil {
		return nil, err
	}
	w, h := b.Width(), b.Height()
	src := b.Image()
	out := frame.NewBuffer(w, h)
	dst := out.Image()
	sign := eye.sign()

	for y := 0; y < h; y++ {
		srow := src.Pix[y*src.Stride : y*src.Stride+w*4]
		drow := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		for x := 0; x < w; x++ {
			sx := frame.RoundClamp(float64(x)+sign*s.Disparity(dm.At(x, y)), 0, w-1)
			copy(drow[x*4:x*4+4], srow[sx*4:sx*4+4])
		}
	}
	return out, nil
}

// ComposeVR180 resizes each eye to half the configured width and the full
// configured height, then places left at x=0 and right at x=width/2.
func ComposeVR180(left, right *frame.Buffer, cfg appconfig.VR180) (*frame.Buffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := frame.ValidateBuffer(left); err != nil {
		return nil, fmt.Errorf("left eye: %w", err)
	}
	if err := frame.ValidateBuffer(right); err != nil {
		return nil, fmt.Errorf("right eye: %w", err)
	}
	eyeW, eyeH := cfg.EyeWidth(), cfg.OutputHeight
	canvas := frame.NewBuffer(cfg.OutputWidth, cfg.OutputHeight)
	dst := canvas.Image()

	for i, eye := range []*frame.Buffer{left, right} {
		scaled := fitEye(eye, eyeW, eyeH)
		x0 := i * eyeW
		xdraw.Draw(dst, image.Rect(x0, 0, x0+eyeW, eyeH), scaled, scaled.Bounds().Min, xdraw.Src)
	}
	return canvas, nil
}

// fitEye scales an eye view to exactly w x h. Equal sizes skip resampling.
func fitEye(b *frame.Buffer, w, h int) image.Image {
	if b.Width() == w && b.Height() == h {
		return b.Image()
	}
	return resize.Resize(uint(w), uint(h), b.Image(), resize.Bilinear)
}

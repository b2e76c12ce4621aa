package depth

import (
	"math"

	"github.com/stevecastle/vr180/frame"
)

// CueFunc computes one depth cue over a whole buffer. The result is
// row-major, one value in [0,1] per pixel.
type CueFunc func(b *frame.Buffer) []float64

// Cue is one row of the fusion table.
type Cue struct {
	Name   string
	Fn     CueFunc
	Weight float64
}

// DefaultCues is the fixed heuristic fusion table. Weights sum to 1.
var DefaultCues = []Cue{
	{Name: "edge", Fn: EdgeCue, Weight: 0.30},
	{Name: "gradient", Fn: GradientCue, Weight: 0.25},
	{Name: "brightness", Fn: BrightnessCue, Weight: 0.25},
	{Name: "focus", Fn: FocusCue, Weight: 0.20},
}

// lumaPlane caches the mean-of-RGB luma so the windowed cues read each
// pixel once instead of nine or twenty-five times.
func lumaPlane(b *frame.Buffer) []float64 {
	w, h := b.Width(), b.Height()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = b.Luma(x, y)
		}
	}
	return out
}

// EdgeCue is the Sobel gradient magnitude of luma divided by 255 and capped
// at 1. The outermost ring stays 0.
func EdgeCue(b *frame.Buffer) []float64 {
	w, h := b.Width(), b.Height()
	out := make([]float64, w*h)
	if w < 3 || h < 3 {
		return out
	}
	l := lumaPlane(b)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			p0 := l[(y-1)*w+x-1]
			p1 := l[(y-1)*w+x]
			p2 := l[(y-1)*w+x+1]
			p3 := l[y*w+x-1]
			p5 := l[y*w+x+1]
			p6 := l[(y+1)*w+x-1]
			p7 := l[(y+1)*w+x]
			p8 := l[(y+1)*w+x+1]

			gx := -p0 + p2 - 2*p3 + 2*p5 - p6 + p8
			gy := -p0 - 2*p1 - p2 + p6 + 2*p7 + p8
			out[y*w+x] = math.Min(math.Sqrt(gx*gx+gy*gy)/255, 1)
		}
	}
	return out
}

// GradientCue blends brightness with vertical position: lower and brighter
// content reads as closer.
func GradientCue(b *frame.Buffer) []float64 {
	w, h := b.Width(), b.Height()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		vertical := float64(h-y) / float64(h)
		for x := 0; x < w; x++ {
			out[y*w+x] = 0.7*(b.Luma(x, y)/255) + 0.3*vertical
		}
	}
	return out
}

// BrightnessCue is the HSV value channel.
func BrightnessCue(b *frame.Buffer) []float64 {
	w, h := b.Width(), b.Height()
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := b.At(x, y)
			_, _, v := rgbToHSV(c.R, c.G, c.B)
			out[y*w+x] = v
		}
	}
	return out
}

// focusRadius is half of the 5x5 variance window.
const focusRadius = 2

// FocusCue is the local luma variance in a 5x5 window divided by 10000 and
// capped at 1. Pixels closer than two to any border stay 0.
func FocusCue(b *frame.Buffer) []float64 {
	w, h := b.Width(), b.Height()
	out := make([]float64, w*h)
	if w < 2*focusRadius+1 || h < 2*focusRadius+1 {
		return out
	}
	l := lumaPlane(b)
	const n = float64((2*focusRadius + 1) * (2*focusRadius + 1))
	for y := focusRadius; y < h-focusRadius; y++ {
		for x := focusRadius; x < w-focusRadius; x++ {
			var sum, sumSq float64
			for dy := -focusRadius; dy <= focusRadius; dy++ {
				row := (y + dy) * w
				for dx := -focusRadius; dx <= focusRadius; dx++ {
					v := l[row+x+dx]
					sum += v
					sumSq += v * v
				}
			}
			mean := sum / n
			variance := sumSq/n - mean*mean
			out[y*w+x] = frame.Clamp01(variance / 10000)
		}
	}
	return out
}

// rgbToHSV converts 8-bit RGB to hue in degrees and saturation/value in [0,1].
func rgbToHSV(r8, g8, b8 uint8) (h, s, v float64) {
	r := float64(r8) / 255
	g := float64(g8) / 255
	b := float64(b8) / 255

	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	diff := max - min

	if diff != 0 {
		switch max {
		case r:
			h = math.Mod((g-b)/diff, 6)
		case g:
			h = (b-r)/diff + 2
		default:
			h = (r-g)/diff + 4
		}
	}
	h = math.Round(h * 60)
	if h < 0 {
		h += 360
	}
	if max != 0 {
		s = diff / max
	}
	return h, s, max
}

// Package optics applies the headset-facing corrections to a composed VR180
// frame: barrel inverse warp, chromatic aberration resampling and edge
// alpha blending, always in that order.
//
// Each stage has its own out-of-bounds policy. Barrel correction writes opaque
// black where the source falls outside the frame, chromatic correction keeps
// the uncorrected channel, and edge blending never samples at all.
package optics

import (
	"math"

	"github.com/stevecastle/vr180/appconfig"
	"github.com/stevecastle/vr180/frame"
)

// Stage is one correction step. It must not modify its input.
type Stage struct {
	Name  string
	Apply func(*frame.Buffer) *frame.Buffer
}

// Corrector holds the lens parameters for one job.
type Corrector struct {
	K1         float64
	RedScale   float64
	BlueScale  float64
	BlendWidth int
}

// New builds a Corrector from the VR180 settings.
func New(cfg appconfig.VR180) *Corrector {
	return &Corrector{
		K1:         cfg.BarrelK1,
		RedScale:   cfg.ChromaticRedScale,
		BlueScale:  cfg.ChromaticBlueScale,
		BlendWidth: cfg.EdgeBlendWidthPx,
	}
}

// Stages lists the corrections in the order they must run.
func (c *Corrector) Stages() []Stage {
	return []Stage{
		{Name: "barrel", Apply: func(b *frame.Buffer) *frame.Buffer { return BarrelCorrect(b, c.K1) }},
		{Name: "chromatic", Apply: func(b *frame.Buffer) *frame.Buffer { return ChromaticCorrect(b, c.RedScale, c.BlueScale) }},
		{Name: "edge-blend", Apply: func(b *frame.Buffer) *frame.Buffer { return EdgeBlend(b, c.BlendWidth) }},
	}
}

// Apply runs every stage, each consuming the previous stage's output.
func (c *Corrector) Apply(b *frame.Buffer) (*frame.Buffer, error) {
	if err := frame.ValidateBuffer(b); err != nil {
		return nil, err
	}
	out := b
	for _, s := range c.Stages() {
		out = s.Apply(out)
	}
	return out, nil
}

var opaqueBlack = [4]uint8{0, 0, 0, 255}

// BarrelCorrect inverse-maps each destination pixel through
// r' = r(1 + k1 r²), with radii normalized by min(centerX, centerY).
func BarrelCorrect(b *frame.Buffer, k1 float64) *frame.Buffer {
	w, h := b.Width(), b.Height()
	src := b.Image()
	out := frame.NewBuffer(w, h)
	dst := out.Image()

	cx, cy := float64(w)/2, float64(h)/2
	maxRadius := math.Min(cx, cy)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			di := y*dst.Stride + x*4
			nx := (float64(x) - cx) / maxRadius
			ny := (float64(y) - cy) / maxRadius
			r := math.Sqrt(nx*nx + ny*ny)

			sx, sy := x, y
			if r > 0 {
				factor := 1 + k1*r*r
				sx = frame.Round(cx + nx*factor*maxRadius)
				sy = frame.Round(cy + ny*factor*maxRadius)
			}
			if sx < 0 || sy < 0 || sx >= w || sy >= h {
				copy(dst.Pix[di:di+4], opaqueBlack[:])
				continue
			}
			si := sy*src.Stride + sx*4
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return out
}

// ChromaticCorrect resamples red from a position scaled by redScale about
// the center and blue from one scaled by blueScale. Green and alpha are
// untouched. Out-of-bounds samples keep the pixel's own channel value.
func ChromaticCorrect(b *frame.Buffer, redScale, blueScale float64) *frame.Buffer {
	w, h := b.Width(), b.Height()
	src := b.Image()
	out := b.Clone()
	dst := out.Image()

	cx, cy := float64(w)/2, float64(h)/2

	for y := 0; y < h; y++ {
		dy := float64(y) - cy
		for x := 0; x < w; x++ {
			dx := float64(x) - cx
			di := y*dst.Stride + x*4

			rx, ry := frame.Round(cx+dx*redScale), frame.Round(cy+dy*redScale)
			if rx >= 0 && ry >= 0 && rx < w && ry < h {
				dst.Pix[di] = src.Pix[ry*src.Stride+rx*4]
			}
			bx, by := frame.Round(cx+dx*blueScale), frame.Round(cy+dy*blueScale)
			if bx >= 0 && by >= 0 && bx < w && by < h {
				dst.Pix[di+2] = src.Pix[by*src.Stride+bx*4+2]
			}
		}
	}
	return out
}

// EdgeBlend fades alpha over the outermost width columns on both sides:
// column d (0 at the outer edge) keeps d/width of its alpha.
func EdgeBlend(b *frame.Buffer, width int) *frame.Buffer {
	out := b.Clone()
	if width <= 0 {
		return out
	}
	w, h := out.Width(), out.Height()
	img := out.Image()
	n := width
	if n > w {
		n = w
	}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for d := 0; d < n; d++ {
			factor := float64(d) / float64(width)
			li := d*4 + 3
			row[li] = uint8(frame.Round(float64(row[li]) * factor))
			ri := (w-1-d)*4 + 3
			row[ri] = uint8(frame.Round(float64(row[ri]) * factor))
		}
	}
	return out
}

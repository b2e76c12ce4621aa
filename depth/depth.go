// Package depth estimates a relative depth map for a single frame by fusing
// deterministic per-pixel cues (edges, vertical gradient, brightness and local
// focus) and smoothing the result.
//
// Every call works on exactly one frame and allocates its own grids, so an
// Estimator may be shared by concurrent callers.
package depth

import (
	"fmt"

	"github.com/stevecastle/vr180/frame"
)

// Estimator fuses a table of cues into a depth map.
type Estimator struct {
	Cues []Cue
}

// New returns an Estimator using DefaultCues.
func New() *Estimator {
	return &Estimator{Cues: DefaultCues}
}

// EstimateDepth returns a depth map the size of b with every value in [0,1].
func (e *Estimator) EstimateDepth(b *frame.Buffer) (*frame.DepthMap, error) {
	if err := frame.ValidateBuffer(b); err != nil {
		return nil, err
	}
	w, h := b.Width(), b.Height()
	fused, err := e.fuse(b)
	if err != nil {
		return nil, err
	}
	smoothed := Smooth(fused, w, h)

	dm := frame.NewDepthMap(w, h)
	for i, v := range smoothed {
		dm.Values[i] = float32(frame.Clamp01(v))
	}
	return dm, nil
}

func (e *Estimator) fuse(b *frame.Buffer) ([]float64, error) {
	cues := e.Cues
	if len(cues) == 0 {
		cues = DefaultCues
	}
	n := b.Width() * b.Height()
	fused := make([]float64, n)
	for _, c := range cues {
		grid := c.Fn(b)
		if len(grid) != n {
			return nil, fmt.Errorf("depth cue %q returned %d values for %d pixels", c.Name, len(grid), n)
		}
		for i, v := range grid {
			fused[i] += frame.Clamp01(v) * c.Weight
		}
	}
	return fused, nil
}

// smoothKernel is a 3x3 binomial approximation of a Gaussian; it sums to 16.
var smoothKernel = [3][3]float64{
	{1, 2, 1},
	{2, 4, 2},
	{1, 2, 1},
}

// Smooth convolves the interior with smoothKernel and copies the outermost
// ring through unchanged.
func Smooth(src []float64, w, h int) []float64 {
	out := make([]float64, len(src))
	copy(out, src)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var sum float64
			for ky := 0; ky < 3; ky++ {
				row := (y + ky - 1) * w
				for kx := 0; kx < 3; kx++ {
					sum += src[row+x+kx-1] * smoothKernel[ky][kx]
				}
			}
			out[y*w+x] = sum / 16
		}
	}
	return out
}

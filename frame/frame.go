package frame

import (
	"fmt"
	"math"
)

// Frame is one decoded picture of the source video. Index is 1-based and
// defines temporal order.
type Frame struct {
	Index  int
	Buffer *Buffer
}

func (f *Frame) Width() int  { return f.Buffer.Width() }
func (f *Frame) Height() int { return f.Buffer.Height() }

// Validate rejects frames that no stage can process.
func (f *Frame) Validate() error {
	if f == nil || f.Buffer == nil {
		return &InvalidFrameError{Reason: "frame has no pixel data"}
	}
	return ValidateBuffer(f.Buffer)
}

// ValidateBuffer fails with InvalidFrameError on a zero-sized buffer.
func ValidateBuffer(b *Buffer) error {
	if b == nil {
		return &InvalidFrameError{Reason: "frame has no pixel data"}
	}
	if b.Width() == 0 || b.Height() == 0 {
		return &InvalidFrameError{Width: b.Width(), Height: b.Height(), Reason: "zero dimension"}
	}
	return nil
}

// DepthMap holds one relative closeness value in [0,1] per pixel, row-major.
type DepthMap struct {
	Width  int
	Height int
	Values []float32
}

// NewDepthMap allocates a zeroed depth map.
func NewDepthMap(width, height int) *DepthMap {
	return &DepthMap{Width: width, Height: height, Values: make([]float32, width*height)}
}

// At returns the depth at (x,y).
func (d *DepthMap) At(x, y int) float64 {
	return float64(d.Values[y*d.Width+x])
}

// Set stores v clamped to [0,1]; NaN becomes 0.
func (d *DepthMap) Set(x, y int, v float64) {
	d.Values[y*d.Width+x] = float32(Clamp01(v))
}

// Matches fails with DimensionMismatchError when d does not cover b exactly.
func (d *DepthMap) Matches(b *Buffer) error {
	if d == nil || b == nil {
		return &DimensionMismatchError{}
	}
	if d.Width != b.Width() || d.Height != b.Height() || len(d.Values) != d.Width*d.Height {
		return &DimensionMismatchError{
			FrameWidth:  b.Width(),
			FrameHeight: b.Height(),
			DepthWidth:  d.Width,
			DepthHeight: d.Height,
		}
	}
	return nil
}

// StereoFrame is a composed side-by-side VR180 picture carrying its source index.
type StereoFrame struct {
	Index  int
	Buffer *Buffer
}

// Clamp01 clamps v to [0,1], mapping NaN to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// roundLimit bounds Round's result; it is far outside any frame.
const roundLimit = 1 << 30

// Round rounds half up, so -0.5 becomes 0 and 0.5 becomes 1. Results
// saturate at ±2^30 and NaN maps to -2^30, so huge sample coordinates stay
// out of bounds instead of wrapping.
func Round(v float64) int {
	f := math.Floor(v + 0.5)
	switch {
	case math.IsNaN(f) || f <= -roundLimit:
		return -roundLimit
	case f >= roundLimit:
		return roundLimit
	}
	return int(f)
}

// RoundClamp clamps v to [lo, hi] before rounding half up.
func RoundClamp(v float64, lo, hi int) int {
	switch {
	case math.IsNaN(v) || v <= float64(lo):
		return lo
	case v >= float64(hi):
		return hi
	}
	return Round(v)
}

func (f *Frame) String() string {
	if f == nil || f.Buffer == nil {
		return "frame(nil)"
	}
	return fmt.Sprintf("frame #%d (%dx%d)", f.Index, f.Width(), f.Height())
}

package frame

import "fmt"

// InvalidFrameError reports malformed or zero-dimension input.
type InvalidFrameError struct {
	Index  int
	Width  int
	Height int
	Reason string
}

func (e *InvalidFrameError) Error() string {
	if e.Index > 0 {
		return fmt.Sprintf("invalid frame %d (%dx%d): %s", e.Index, e.Width, e.Height, e.Reason)
	}
	return fmt.Sprintf("invalid frame (%dx%d): %s", e.Width, e.Height, e.Reason)
}

// DimensionMismatchError reports a frame and depth map of different sizes.
type DimensionMismatchError struct {
	FrameWidth  int
	FrameHeight int
	DepthWidth  int
	DepthHeight int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: frame %dx%d, depth map %dx%d",
		e.FrameWidth, e.FrameHeight, e.DepthWidth, e.DepthHeight)
}

package frame

import (
	"errors"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"
)

func TestBufferSetAt(t *testing.T) {
	b := NewBuffer(3, 2)
	c := color.NRGBA{R: 10, G: 20, B: 30, A: 40}
	b.Set(2, 1, c)
	if got := b.At(2, 1); got != c {
		t.Errorf("At(2,1) = %v; want %v", got, c)
	}
	if got := b.At(0, 0); got != (color.NRGBA{}) {
		t.Errorf("At(0,0) = %v; want zero", got)
	}
	if b.In(3, 0) || b.In(0, 2) || b.In(-1, 0) {
		t.Error("In() accepted an out-of-range coordinate")
	}
}

func TestLuma(t *testing.T) {
	b := NewBuffer(1, 1)
	b.Set(0, 0, color.NRGBA{R: 30, G: 60, B: 90, A: 255})
	if got := b.Luma(0, 0); got != 60 {
		t.Errorf("Luma = %v; want 60", got)
	}
}

func TestFromImageRebasesOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 7, 8))
	src.Set(5, 5, color.RGBA{R: 255, A: 255})
	b := FromImage(src)
	if b.Width() != 2 || b.Height() != 3 {
		t.Fatalf("size = %dx%d; want 2x3", b.Width(), b.Height())
	}
	if got := b.At(0, 0); got.R != 255 || got.A != 255 {
		t.Errorf("At(0,0) = %v; want opaque red", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	b := NewBuffer(2, 2)
	c := b.Clone()
	c.Set(0, 0, color.NRGBA{R: 1})
	if b.At(0, 0).R != 0 {
		t.Error("Clone shares pixel storage with the original")
	}
}

func TestValidateBuffer(t *testing.T) {
	var inv *InvalidFrameError
	if err := ValidateBuffer(NewBuffer(0, 4)); !errors.As(err, &inv) {
		t.Errorf("ValidateBuffer(0x4) = %v; want InvalidFrameError", err)
	}
	if err := ValidateBuffer(nil); !errors.As(err, &inv) {
		t.Errorf("ValidateBuffer(nil) = %v; want InvalidFrameError", err)
	}
	if err := ValidateBuffer(NewBuffer(1, 1)); err != nil {
		t.Errorf("ValidateBuffer(1x1) = %v; want nil", err)
	}
}

func TestDepthMapMatches(t *testing.T) {
	d := NewDepthMap(4, 4)
	if err := d.Matches(NewBuffer(4, 4)); err != nil {
		t.Errorf("Matches(4x4) = %v", err)
	}
	var mm *DimensionMismatchError
	if err := d.Matches(NewBuffer(4, 3)); !errors.As(err, &mm) {
		t.Errorf("Matches(4x3) = %v; want DimensionMismatchError", err)
	}
}

func TestDepthMapSetClamps(t *testing.T) {
	d := NewDepthMap(3, 1)
	d.Set(0, 0, -2)
	d.Set(1, 0, 7)
	d.Set(2, 0, math.NaN())
	want := []float64{0, 1, 0}
	for x, w := range want {
		if got := d.At(x, 0); got != w {
			t.Errorf("At(%d,0) = %v; want %v", x, got, w)
		}
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0.5, 1}, {-0.5, 0}, {-0.6, -1}, {6.155, 6}, {2.49, 2},
	}
	for _, tt := range tests {
		if got := Round(tt.in); got != tt.want {
			t.Errorf("Round(%v) = %d; want %d", tt.in, got, tt.want)
		}
	}
}

func TestRoundSaturates(t *testing.T) {
	if got := Round(1e19); got != roundLimit {
		t.Errorf("Round(1e19) = %d; want %d", got, roundLimit)
	}
	if got := Round(-1e19); got != -roundLimit {
		t.Errorf("Round(-1e19) = %d; want %d", got, -roundLimit)
	}
	if got := Round(math.NaN()); got != -roundLimit {
		t.Errorf("Round(NaN) = %d", got)
	}
}

func TestRoundClamp(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{1.5, 2}, {-3, 0}, {3.4, 3}, {3.6, 3}, {1e19, 3}, {-1e19, 0}, {math.Inf(1), 3}, {math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := RoundClamp(tt.in, 0, 3); got != tt.want {
			t.Errorf("RoundClamp(%v, 0, 3) = %d; want %d", tt.in, got, tt.want)
		}
	}
}

func TestFileNameAndParseIndex(t *testing.T) {
	name := FileName("stereo", 42)
	if name != "stereo_00042.png" {
		t.Errorf("FileName = %q", name)
	}
	n, err := ParseIndex(filepath.Join("a", "b", name))
	if err != nil || n != 42 {
		t.Errorf("ParseIndex(%q) = %d, %v; want 42", name, n, err)
	}
	for _, bad := range []string{"frame.png", "frame_.png", "frame_x1.png", "frame_00000.png"} {
		if _, err := ParseIndex(bad); err == nil {
			t.Errorf("ParseIndex(%q) succeeded; want error", bad)
		}
	}
}

func TestSaveLoadPNG(t *testing.T) {
	b := NewBuffer(2, 2)
	b.Fill(color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	path := filepath.Join(t.TempDir(), FileName("frame", 1))
	if err := SavePNG(path, b); err != nil {
		t.Fatalf("SavePNG: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.At(1, 1) != b.At(1, 1) {
		t.Errorf("At(1,1) = %v; want %v", got.At(1, 1), b.At(1, 1))
	}
}

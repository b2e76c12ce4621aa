package main

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stevecastle/vr180/appconfig"
	"github.com/stevecastle/vr180/frame"
	"github.com/stevecastle/vr180/progress"
)

func TestParseFlagsDefaults(t *testing.T) {
	o, err := parseFlags([]string{"-in", "clip.mov"}, appconfig.Default(), io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if o.out != "clip-vr180.mp4" {
		t.Errorf("out = %q", o.out)
	}
	if o.cfg.VR180 != appconfig.DefaultVR180() {
		t.Errorf("settings changed without flags: %+v", o.cfg.VR180)
	}
}

func TestParseFlagsOverrides(t *testing.T) {
	o, err := parseFlags([]string{
		"-width", "1920", "-height", "1080", "-max-disparity", "40",
		"-fps", "12", "-no-audio", "-image", "still.jpg",
	}, appconfig.Default(), io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	v := o.cfg.VR180
	if v.OutputWidth != 1920 || v.OutputHeight != 1080 || v.MaxDisparity != 40 || v.FrameSampleRateFPS != 12 {
		t.Errorf("settings = %+v", v)
	}
	if v.IncludeAudio {
		t.Error("-no-audio ignored")
	}
	if o.in != "still.jpg" || o.out != "still-vr180.png" {
		t.Errorf("in/out = %q %q", o.in, o.out)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no input", nil},
		{"odd width", []string{"-in", "a.mp4", "-width", "101"}},
		{"publish without bucket", []string{"-in", "a.mp4", "-publish"}},
		{"bad flag", []string{"-in", "a.mp4", "-fps", "fast"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFlags(tt.args, appconfig.Default(), io.Discard); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRunImage(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	src := frame.NewBuffer(12, 8)
	src.Fill(color.NRGBA{R: 200, G: 120, B: 40, A: 255})
	if err := frame.SavePNG(in, src); err != nil {
		t.Fatal(err)
	}

	o, err := parseFlags([]string{"-image", "-width", "32", "-height", "16", "-blend", "4", "-in", in}, appconfig.Default(), io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	var stdout bytes.Buffer
	if err := run(context.Background(), o, &stdout, io.Discard); err != nil {
		t.Fatalf("run: %v", err)
	}
	out, err := frame.Load(filepath.Join(dir, "in-vr180.png"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Width() != 32 || out.Height() != 16 {
		t.Errorf("output %dx%d; want 32x16", out.Width(), out.Height())
	}
	if !strings.Contains(stdout.String(), "in-vr180.png") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestBarSink(t *testing.T) {
	var buf bytes.Buffer
	sink := newBarSink(&buf)
	sink.Report(progress.Update{Status: progress.StatusProcessing, Progress: 30, Message: "Extracted 10 frames"})
	sink.Report(progress.Update{Status: progress.StatusCompleted, Progress: 100, Message: "done"})
	if buf.Len() == 0 {
		t.Error("progress bar wrote nothing")
	}
}

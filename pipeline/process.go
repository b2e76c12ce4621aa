package pipeline

import (
	"fmt"

	"github.com/stevecastle/vr180/appconfig"
	"github.com/stevecastle/vr180/depth"
	"github.com/stevecastle/vr180/frame"
	"github.com/stevecastle/vr180/optics"
	"github.com/stevecastle/vr180/stereo"
)

// FrameProcessor turns one source frame into one corrected VR180 frame. It
// holds only immutable settings and may be shared by concurrent workers.
type FrameProcessor struct {
	cfg       appconfig.VR180
	estimator *depth.Estimator
	synth     *stereo.Synthesizer
	corrector *optics.Corrector
}

// NewFrameProcessor validates cfg and builds the per-job stage chain.
func NewFrameProcessor(cfg appconfig.VR180) (*FrameProcessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FrameProcessor{
		cfg:       cfg,
		estimator: depth.New(),
		synth:     stereo.New(cfg),
		corrector: optics.New(cfg),
	}, nil
}

// Process runs depth estimation, eye synthesis, composition and optical
// correction on f.
func (p *FrameProcessor) Process(f *frame.Frame) (*frame.StereoFrame, error) {
	if err := f.Validate(); err != nil {
		if ife, ok := err.(*frame.InvalidFrameError); ok {
			ife.Index = f.Index
		}
		return nil, err
	}
	dm, err := p.estimator.EstimateDepth(f.Buffer)
	if err != nil {
		return nil, fmt.Errorf("depth: %w", err)
	}
	left, err := p.synth.SynthesizeEyeView(f.Buffer, dm, stereo.Left)
	if err != nil {
		return nil, fmt.Errorf("left eye: %w", err)
	}
	right, err := p.synth.SynthesizeEyeView(f.Buffer, dm, stereo.Right)
	if err != nil {
		return nil, fmt.Errorf("right eye: %w", err)
	}
	composed, err := stereo.ComposeVR180(left, right, p.cfg)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	corrected, err := p.corrector.Apply(composed)
	if err != nil {
		return nil, fmt.Errorf("optics: %w", err)
	}
	return &frame.StereoFrame{Index: f.Index, Buffer: corrected}, nil
}

// ProcessFrame is the single-call form of FrameProcessor.Process.
func ProcessFrame(cfg appconfig.VR180, f *frame.Frame) (*frame.StereoFrame, error) {
	p, err := NewFrameProcessor(cfg)
	if err != nil {
		return nil, err
	}
	return p.Process(f)
}

// ConvertImage converts a still image file into one VR180 PNG.
func ConvertImage(cfg appconfig.VR180, inputPath, outputPath string) error {
	b, err := frame.Load(inputPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", inputPath, err)
	}
	sf, err := ProcessFrame(cfg, &frame.Frame{Index: 1, Buffer: b})
	if err != nil {
		return err
	}
	if err := frame.SavePNG(outputPath, sf.Buffer); err != nil {
		return fmt.Errorf("save %s: %w", outputPath, err)
	}
	return nil
}

package appconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
)

// VR180 is the per-job conversion setting block. Values are copied into each
// job at start and never mutated while frames are in flight.
type VR180 struct {
	OutputWidth         int     `json:"outputWidth"`
	OutputHeight        int     `json:"outputHeight"`
	EyeSeparation       float64 `json:"eyeSeparation"`
	ConvergenceDistance float64 `json:"convergenceDistance"`
	MaxDisparity        float64 `json:"maxDisparity"`
	FrameSampleRateFPS  float64 `json:"frameSampleRateFPS"`
	BarrelK1            float64 `json:"barrelK1"`
	ChromaticRedScale   float64 `json:"chromaticRedScale"`
	ChromaticBlueScale  float64 `json:"chromaticBlueScale"`
	EdgeBlendWidthPx    int     `json:"edgeBlendWidthPx"`

	// Workers bounds frame-level parallelism; 0 means one per CPU.
	Workers int `json:"workers"`
	// IncludeAudio muxes the source audio track when the source has one.
	IncludeAudio bool `json:"includeAudio"`
}

// DefaultVR180 returns the 4K side-by-side defaults.
func DefaultVR180() VR180 {
	return VR180{
		OutputWidth:         3840,
		OutputHeight:        2160,
		EyeSeparation:       64,
		ConvergenceDistance: 1000,
		MaxDisparity:        100,
		FrameSampleRateFPS:  24,
		BarrelK1:            -0.1,
		ChromaticRedScale:   1.002,
		ChromaticBlueScale:  0.998,
		EdgeBlendWidthPx:    50,
		IncludeAudio:        true,
	}
}

// EyeWidth is half the full output width.
func (v VR180) EyeWidth() int {
	return v.OutputWidth / 2
}

// WorkerCount resolves Workers to a positive pool size.
func (v VR180) WorkerCount() int {
	if v.Workers > 0 {
		return v.Workers
	}
	return runtime.NumCPU()
}

// Upper bounds for per-job settings.
const (
	MaxOutputWidth    = 16384
	MaxOutputHeight   = 8640
	MaxDisparityLimit = 4096
)

// Validate rejects settings the pipeline cannot honour.
func (v VR180) Validate() error {
	var errs []error
	if v.OutputWidth < 2 || v.OutputWidth%2 != 0 || v.OutputWidth > MaxOutputWidth {
		errs = append(errs, fmt.Errorf("outputWidth must be a positive even number up to %d, got %d", MaxOutputWidth, v.OutputWidth))
	}
	if v.OutputHeight < 1 || v.OutputHeight > MaxOutputHeight {
		errs = append(errs, fmt.Errorf("outputHeight must be between 1 and %d, got %d", MaxOutputHeight, v.OutputHeight))
	}
	if !(v.MaxDisparity >= 0 && v.MaxDisparity <= MaxDisparityLimit) {
		errs = append(errs, fmt.Errorf("maxDisparity must be between 0 and %d, got %v", MaxDisparityLimit, v.MaxDisparity))
	}
	if v.FrameSampleRateFPS <= 0 {
		errs = append(errs, fmt.Errorf("frameSampleRateFPS must be positive, got %v", v.FrameSampleRateFPS))
	}
	if v.ChromaticRedScale <= 0 || v.ChromaticBlueScale <= 0 {
		errs = append(errs, errors.New("chromatic scales must be positive"))
	}
	if v.EdgeBlendWidthPx < 0 {
		errs = append(errs, fmt.Errorf("edgeBlendWidthPx must not be negative, got %d", v.EdgeBlendWidthPx))
	}
	if v.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", v.Workers))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid vr180 config: %w", errors.Join(errs...))
	}
	return nil
}

// Merge overlays a partial JSON object onto v. Keys absent from overrides keep
// their current value; unknown keys are rejected.
func (v VR180) Merge(overrides json.RawMessage) (VR180, error) {
	if len(overrides) == 0 || string(overrides) == "null" {
		return v, nil
	}
	if !isJSONObject(overrides) {
		return v, errors.New("vr180 overrides must be a JSON object")
	}
	merged := v
	dec := json.NewDecoder(bytes.NewReader(overrides))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&merged); err != nil {
		return v, fmt.Errorf("failed to parse vr180 overrides: %w", err)
	}
	return merged, merged.Validate()
}

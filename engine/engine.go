// Package engine is the boundary to the external video engine: decoding a
// source video into numbered frames, probing it, and encoding numbered stereo
// frames back into a tagged VR180 video.
package engine

import (
	"context"
	"fmt"
	"strings"
)

// DecodeRequest asks for the source video sampled at FPS and written as a
// numbered image sequence following OutputPattern (1-based, zero-padded).
type DecodeRequest struct {
	InputPath     string  `json:"inputPath"`
	OutputPattern string  `json:"outputPattern"`
	FPS           float64 `json:"fps"`
}

// Metadata is the set of spherical tags written into the output container.
type Metadata struct {
	StereoMode     string `json:"stereo_mode"`
	SphericalVideo bool   `json:"spherical_video"`
	Projection     string `json:"projection"`
}

// VR180Metadata returns the tags for side-by-side equirectangular video.
func VR180Metadata() Metadata {
	return Metadata{
		StereoMode:     "left_right",
		SphericalVideo: true,
		Projection:     "equirectangular",
	}
}

// EncodeRequest asks for the numbered frames behind FramePattern to be
// encoded at FrameRate into OutputPath. AudioSource, when set, is a file
// whose audio track is multiplexed into the result.
type EncodeRequest struct {
	FramePattern string   `json:"framePattern"`
	FrameRate    float64  `json:"frameRate"`
	OutputPath   string   `json:"outputPath"`
	Metadata     Metadata `json:"metadata"`
	AudioSource  string   `json:"audioSource,omitempty"`
}

// VideoInfo is what the prober learns about a source file.
type VideoInfo struct {
	Path     string  `json:"path"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	HasAudio bool    `json:"hasAudio"`
	Bitrate  int64   `json:"bitrate"`
	Format   string  `json:"format"`
	Size     int64   `json:"size"`
}

// Decoder extracts frames. It is invoked once per job.
type Decoder interface {
	Decode(ctx context.Context, req DecodeRequest) error
}

// Encoder assembles the final video and returns its path.
type Encoder interface {
	Encode(ctx context.Context, req EncodeRequest) (string, error)
}

// Prober reads source metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (*VideoInfo, error)
}

// ExternalEngineError reports a failed engine invocation. Stderr holds the
// last lines the engine printed.
type ExternalEngineError struct {
	Op     string
	Err    error
	Stderr string
}

func (e *ExternalEngineError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		lines := strings.Split(s, "\n")
		msg += ": " + lines[len(lines)-1]
	}
	return msg
}

func (e *ExternalEngineError) Unwrap() error { return e.Err }

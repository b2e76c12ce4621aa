package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type probeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
		FormatName string `json:"format_name"`
		Size       string `json:"size"`
	} `json:"format"`
}

// DefaultFPS is assumed when the source reports no usable frame rate.
const DefaultFPS = 30

// ParseProbe decodes ffprobe's -print_format json output.
func ParseProbe(data []byte) (*VideoInfo, error) {
	var p probeOutput
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &VideoInfo{FPS: DefaultFPS, Format: p.Format.FormatName}
	info.Duration, _ = strconv.ParseFloat(p.Format.Duration, 64)
	info.Bitrate, _ = strconv.ParseInt(p.Format.BitRate, 10, 64)
	info.Size, _ = strconv.ParseInt(p.Format.Size, 10, 64)

	videoSeen := false
	for _, s := range p.Streams {
		switch s.CodecType {
		case "video":
			if videoSeen {
				continue
			}
			videoSeen = true
			info.Width, info.Height = s.Width, s.Height
			if fps, err := ParseFrameRate(s.RFrameRate); err == nil {
				info.FPS = fps
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !videoSeen {
		return nil, fmt.Errorf("no video stream")
	}
	return info, nil
}

// ParseFrameRate parses "30000/1001" or "25" into frames per second.
func ParseFrameRate(s string) (float64, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("bad frame rate %q", s)
	}
	d := 1.0
	if found {
		d, err = strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, fmt.Errorf("bad frame rate %q", s)
		}
	}
	if n <= 0 || d <= 0 {
		return 0, fmt.Errorf("bad frame rate %q", s)
	}
	return n / d, nil
}

// Validation is the outcome of checking a probed source before conversion.
type Validation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

var supportedFormats = []string{"mp4", "avi", "mov", "mkv", "webm"}

// Validate applies the source checks: container format must be supported;
// very large, long or low-resolution sources only warn.
func Validate(info *VideoInfo) Validation {
	v := Validation{Valid: true}
	if info == nil {
		return Validation{Errors: []string{"unable to read video file"}}
	}
	if info.Size > 500*1024*1024 {
		v.Warnings = append(v.Warnings, "file size is large (>500MB); processing may take longer")
	}
	if info.Duration > 600 {
		v.Warnings = append(v.Warnings, "video is longer than 10 minutes")
	}
	if info.Width < 640 || info.Height < 480 {
		v.Warnings = append(v.Warnings, "low resolution video may not produce good depth")
	}
	supported := false
	for _, f := range supportedFormats {
		if strings.Contains(info.Format, f) {
			supported = true
			break
		}
	}
	if !supported {
		v.Valid = false
		v.Errors = append(v.Errors, "unsupported video format "+strconv.Quote(info.Format)+"; use MP4, AVI, MOV, MKV or WebM")
	}
	return v
}

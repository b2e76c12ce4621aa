package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/stevecastle/vr180/deps"
)

const stderrTail = 20

// maxStderrLine caps one stderr record; longer records are split.
const maxStderrLine = 1 << 20

// scanRecords splits on \n or \r, since ffmpeg ends its stats records with a
// bare carriage return.
func scanRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// FFmpeg drives the ffmpeg and ffprobe executables located through deps.
type FFmpeg struct {
	// Log, when set, receives every stderr line from the engine.
	Log func(line string)
}

// NewFFmpeg returns an engine that forwards stderr lines to log.
func NewFFmpeg(log func(string)) *FFmpeg {
	return &FFmpeg{Log: log}
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DecodeArgs builds the ffmpeg arguments for req.
func DecodeArgs(req DecodeRequest) []string {
	return []string{
		"-hide_banner", "-nostats", "-y",
		"-i", req.InputPath,
		"-vf", "fps=" + formatRate(req.FPS),
		"-q:v", "2",
		"-start_number", "1",
		req.OutputPattern,
	}
}

// EncodeArgs builds the ffmpeg arguments for req. The spherical tags are
// written whether or not audio is muxed.
func EncodeArgs(req EncodeRequest) []string {
	args := []string{
		"-hide_banner", "-nostats", "-y",
		"-framerate", formatRate(req.FrameRate),
		"-f", "image2",
		"-start_number", "1",
		"-i", req.FramePattern,
	}
	if req.AudioSource != "" {
		args = append(args, "-i", req.AudioSource)
	}
	args = append(args, "-map", "0:v:0")
	if req.AudioSource != "" {
		args = append(args, "-map", "1:a")
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "18",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
	)
	args = append(args, MetadataArgs(req.Metadata)...)
	if req.AudioSource != "" {
		args = append(args, "-c:a", "aac", "-b:a", "128k", "-shortest")
	}
	return append(args, req.OutputPath)
}

// MetadataArgs renders m as ffmpeg -metadata flags.
func MetadataArgs(m Metadata) []string {
	spherical := "0"
	if m.SphericalVideo {
		spherical = "1"
	}
	return []string{
		"-metadata:s:v:0", "stereo_mode=" + m.StereoMode,
		"-metadata", "spherical-video=" + spherical,
		"-metadata", "projection=" + m.Projection,
	}
}

// ThumbnailArgs builds the arguments grabbing one frame at timestamp.
func ThumbnailArgs(input, output, timestamp string) []string {
	return []string{
		"-hide_banner", "-y",
		"-ss", timestamp,
		"-i", input,
		"-frames:v", "1",
		output,
	}
}

// Decode runs the frame extraction.
func (f *FFmpeg) Decode(ctx context.Context, req DecodeRequest) error {
	if req.FPS <= 0 {
		return &ExternalEngineError{Op: "decode", Err: fmt.Errorf("invalid sample rate %v", req.FPS)}
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPattern), 0o755); err != nil {
		return &ExternalEngineError{Op: "decode", Err: err}
	}
	_, err := f.run(ctx, "decode", "ffmpeg", DecodeArgs(req))
	return err
}

// Encode assembles the output video and returns its path.
func (f *FFmpeg) Encode(ctx context.Context, req EncodeRequest) (string, error) {
	if req.FrameRate <= 0 {
		return "", &ExternalEngineError{Op: "encode", Err: fmt.Errorf("invalid frame rate %v", req.FrameRate)}
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return "", &ExternalEngineError{Op: "encode", Err: err}
	}
	if _, err := f.run(ctx, "encode", "ffmpeg", EncodeArgs(req)); err != nil {
		_ = os.Remove(req.OutputPath)
		return "", err
	}
	return req.OutputPath, nil
}

// Thumbnail writes a single frame of input taken at timestamp to output.
func (f *FFmpeg) Thumbnail(ctx context.Context, input, output, timestamp string) error {
	if timestamp == "" {
		timestamp = "00:00:01"
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return &ExternalEngineError{Op: "thumbnail", Err: err}
	}
	_, err := f.run(ctx, "thumbnail", "ffmpeg", ThumbnailArgs(input, output, timestamp))
	return err
}

// Probe runs ffprobe and parses its JSON report.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	out, err := f.run(ctx, "probe", "ffprobe", []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	})
	if err != nil {
		return nil, err
	}
	info, err := ParseProbe(out)
	if err != nil {
		return nil, &ExternalEngineError{Op: "probe", Err: err}
	}
	info.Path = path
	return info, nil
}

// run executes tool, returning stdout. Stderr lines go to f.Log and the last
// few are kept for the error.
func (f *FFmpeg) run(ctx context.Context, op, tool string, args []string) ([]byte, error) {
	cmd, err := deps.Command(ctx, tool, args...)
	if err != nil {
		return nil, &ExternalEngineError{Op: op, Err: err}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ExternalEngineError{Op: op, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &ExternalEngineError{Op: op, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &ExternalEngineError{Op: op, Err: err}
	}

	var (
		wg   sync.WaitGroup
		tail []string
		out  []byte
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		// keep draining so the tool never blocks on a full pipe
		defer io.Copy(io.Discard, stderr)
		s := bufio.NewScanner(stderr)
		s.Buffer(make([]byte, 64*1024), maxStderrLine)
		s.Split(scanRecords)
		for s.Scan() {
			line := strings.TrimSpace(s.Text())
			if line == "" {
				continue
			}
			if f.Log != nil {
				f.Log(tool + ": " + line)
			}
			tail = append(tail, line)
			if len(tail) > stderrTail {
				tail = tail[1:]
			}
		}
	}()
	go func() {
		defer wg.Done()
		out, _ = io.ReadAll(stdout)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(ctxErr, err)
		}
		return nil, &ExternalEngineError{Op: op, Err: err, Stderr: strings.Join(tail, "\n")}
	}
	return out, nil
}

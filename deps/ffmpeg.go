package deps

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"time"
)

func init() {
	Register(&Tool{
		ID:          "ffmpeg",
		Name:        "FFmpeg",
		Description: "Extracts source frames and encodes the finished side-by-side video",
		ExeName:     "ffmpeg",
		Check:       versionCheck("ffmpeg"),
	})
	Register(&Tool{
		ID:          "ffprobe",
		Name:        "FFprobe",
		Description: "Reads source duration, resolution, frame rate and audio presence",
		ExeName:     "ffprobe",
		Check:       versionCheck("ffprobe"),
	})
}

func versionCheck(name string) func(ctx context.Context, path string) (string, error) {
	return func(ctx context.Context, path string) (string, error) {
		versionCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		cmd := exec.CommandContext(versionCtx, path, "-version")
		configureSysProcAttr(cmd)
		output, err := cmd.CombinedOutput()
		if err != nil {
			return "", fmt.Errorf("%s -version: %w", name, err)
		}
		return ParseVersion(name, string(output)), nil
	}
}

var versionRe = regexp.MustCompile(`^(\S+) version (\S+)`)

// ParseVersion extracts the version from "<name> version X ..." output.
func ParseVersion(name, output string) string {
	m := versionRe.FindStringSubmatch(output)
	if len(m) < 3 || m[1] != name {
		return "unknown"
	}
	return m[2]
}

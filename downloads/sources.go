// Package downloads fetches and unpacks the ffmpeg and ffprobe builds the
// service runs when they are not already installed.
package downloads

import "fmt"

// Source is one archive to fetch.
type Source struct {
	URL    string `json:"url"`
	Format Format `json:"format"`
}

// FFmpegSources lists the static release archives that together contain
// ffmpeg and ffprobe for goos/goarch.
func FFmpegSources(goos, goarch string) ([]Source, error) {
	switch goos {
	case "windows":
		return []Source{{URL: "https://www.gyan.dev/ffmpeg/builds/ffmpeg-release-essentials.7z", Format: SevenZip}}, nil
	case "linux":
		switch goarch {
		case "amd64", "arm64":
			return []Source{{
				URL:    fmt.Sprintf("https://johnvansickle.com/ffmpeg/releases/ffmpeg-release-%s-static.tar.xz", goarch),
				Format: TarXz,
			}}, nil
		}
	case "darwin":
		// separate archives per binary
		return []Source{
			{URL: "https://evermeet.cx/ffmpeg/getrelease/zip", Format: Zip},
			{URL: "https://evermeet.cx/ffmpeg/getrelease/ffprobe/zip", Format: Zip},
		}, nil
	}
	return nil, fmt.Errorf("no ffmpeg build available for %s/%s", goos, goarch)
}

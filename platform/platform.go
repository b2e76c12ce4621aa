// Package platform resolves per-OS locations for configuration, job scratch
// space and bundled tools.
package platform

import (
	"os"
	"path/filepath"
)

// AppName is used for directory naming on Linux and for caches.
const AppName = "vr180-studio"

// AppDisplayName is used for directory naming on Windows and macOS.
const AppDisplayName = "VR180 Studio"

// GetDataDir returns the application data directory holding config.json,
// the job database and finished videos.
// Windows: %APPDATA%\VR180 Studio
// macOS: ~/Library/Application Support/VR180 Studio
// Linux: $XDG_DATA_HOME/vr180-studio or ~/.local/share/vr180-studio
func GetDataDir() string {
	return getDataDir()
}

// GetTempDir returns the scratch root for per-job frame directories.
func GetTempDir() string {
	return getTempDir()
}

// GetToolsDir returns the directory searched for ffmpeg/ffprobe before PATH.
func GetToolsDir() string {
	return filepath.Join(getCacheDir(), "tools")
}

// BinaryExtension returns ".exe" on Windows and "" elsewhere.
func BinaryExtension() string {
	return binaryExtension()
}

// ExecutableName appends the platform binary extension to base.
func ExecutableName(base string) string {
	return base + binaryExtension()
}

// UserHomeDir returns the user's home directory with proper fallbacks.
func UserHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

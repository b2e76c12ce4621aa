//go:build windows

package platform

import (
	"os"
	"path/filepath"
)

func getDataDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, AppDisplayName)
	}
	return filepath.Join(UserHomeDir(), "AppData", "Roaming", AppDisplayName)
}

func getTempDir() string {
	return filepath.Join(os.TempDir(), AppDisplayName)
}

func getCacheDir() string {
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		return filepath.Join(local, AppDisplayName)
	}
	return getDataDir()
}

func binaryExtension() string {
	return ".exe"
}

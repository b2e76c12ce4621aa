package deps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/stevecastle/vr180/platform"
)

// Locate returns the executable path for a tool. A pinned path wins, then
// the platform tools directory, then the system PATH.
func Locate(id string) (string, error) {
	t, ok := Get(id)
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", id)
	}

	if p := override(id); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("configured %s path %s: %w", t.Name, p, err)
		}
		return p, nil
	}

	bundled := filepath.Join(platform.GetToolsDir(), platform.ExecutableName(t.ExeName))
	if _, err := os.Stat(bundled); err == nil {
		return bundled, nil
	}

	systemPath, err := exec.LookPath(t.ExeName)
	if err != nil {
		return "", fmt.Errorf("executable %q not found in %s or system PATH: %w", t.ExeName, platform.GetToolsDir(), err)
	}
	return systemPath, nil
}

// Command builds an exec.Cmd for a registered tool.
func Command(ctx context.Context, id string, args ...string) (*exec.Cmd, error) {
	path, err := Locate(id)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, path, args...)
	configureSysProcAttr(cmd)
	return cmd, nil
}

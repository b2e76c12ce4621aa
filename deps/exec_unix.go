//go:build !windows

package deps

import (
	"os"
	"os/exec"
	"time"
)

// configureSysProcAttr asks the tool to stop with SIGINT on context
// cancellation so ffmpeg can close its output, then kills it after a grace
// period.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = 5 * time.Second
}

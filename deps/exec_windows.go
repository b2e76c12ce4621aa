//go:build windows

package deps

import (
	"os/exec"
	"syscall"
	"time"
)

// configureSysProcAttr hides the console window; cancellation kills the
// process since Windows has no SIGINT to deliver.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
	cmd.WaitDelay = 5 * time.Second
}

//go:build !windows

package daemon

import (
	"os/exec"
	"syscall"
)

// detach starts the daemon in its own session so it survives the terminal.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func exeSuffix() string { return "" }

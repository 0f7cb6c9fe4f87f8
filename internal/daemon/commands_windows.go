//go:build windows

package daemon

import "os/exec"

// detach is a no-op on Windows; the daemon keeps running after the CLI exits.
func detach(cmd *exec.Cmd) {}

func exeSuffix() string { return ".exe" }

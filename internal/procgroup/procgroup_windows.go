//go:build windows

package procgroup

import (
	"os"
	"os/exec"
	"syscall"
)

func set(cmd *exec.Cmd) {
	// No unix-style process groups on Windows.
}

// Windows cannot deliver SIGTERM; only SIGKILL maps onto something real.
func kill(pid int, sig syscall.Signal) error {
	if sig != syscall.SIGKILL {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return proc.Kill()
}

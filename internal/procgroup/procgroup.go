// Package procgroup places child processes in their own process group so
// the whole tree can be signalled at once. ffmpeg occasionally forks helper
// processes; signalling only the leader leaves those orphaned.
package procgroup

import (
	"os/exec"
	"syscall"
)

// Set configures cmd to start as the leader of a new process group.
// It must be called before cmd.Start.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Kill signals cmd's whole process group. A process that has already
// exited is not an error. Safe to call on nil or unstarted commands.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return kill(cmd.Process.Pid, sig)
}

//go:build !windows

package ffmpeg

import (
	"os/exec"
	"syscall"
)

// setupProcessAttributes puts ffmpeg in its own process group so a kill
// also reaches any helper processes it spawned.
func setupProcessAttributes(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func killProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		_ = cmd.Process.Kill()
	}
}

//go:build !windows

package main

import (
	"io"
	"os/exec"
	"syscall"
)

// detachDaemon starts cmd in its own session so it outlives the terminal.
func detachDaemon(cmd *exec.Cmd, logs io.Writer) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = logs
	cmd.Stderr = logs
}

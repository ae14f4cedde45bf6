//go:build windows

package main

import (
	"io"
	"os/exec"
	"syscall"
)

const detachedProcess = 0x00000008

func detachDaemon(cmd *exec.Cmd, logs io.Writer) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: detachedProcess | syscall.CREATE_NEW_PROCESS_GROUP}
	cmd.Stdin = nil
	cmd.Stdout = logs
	cmd.Stderr = logs
}

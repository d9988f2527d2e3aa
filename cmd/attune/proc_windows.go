//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// configureDaemonProcess detaches attuned from the parent console so
// closing the terminal does not take the daemon down with it.
func configureDaemonProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

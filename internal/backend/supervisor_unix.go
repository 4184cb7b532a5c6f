// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows
// +build !windows

// Package backend provides the HTTP client for communicating with the cognito inference backend.
package backend

import (
	"os"
	"os/exec"
	"syscall"
)

const (
	defaultPython     = "python3"
	defaultBinaryName = "cognito-server"
)

// setSysProcAttr puts the child in its own process group so the whole
// uvicorn worker tree can be signalled at once.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// terminateProcess asks the child's process group to exit.
// Negative pid addresses the group.
func terminateProcess(p *os.Process) {
	_ = syscall.Kill(-p.Pid, syscall.SIGTERM)
}

// killProcess forcibly ends the child's process group.
func killProcess(p *os.Process) {
	_ = syscall.Kill(-p.Pid, syscall.SIGKILL)
}

// exitSignal reports the signal that ended the child, if any.
func exitSignal(err *exec.ExitError) string {
	if status, ok := err.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return status.Signal().String()
	}
	return ""
}

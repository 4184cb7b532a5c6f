// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows
// +build windows

// Package backend provides the HTTP client for communicating with the cognito inference backend.
package backend

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

const (
	defaultPython     = "python"
	defaultBinaryName = "cognito-server.exe"
)

// CREATE_NO_WINDOW keeps the backend from opening a console window.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}

// terminateProcess ends the child. Windows offers no graceful signal for
// console-less children, so termination is immediate.
func terminateProcess(p *os.Process) {
	_ = p.Kill()
}

func killProcess(p *os.Process) {
	_ = p.Kill()
}

func exitSignal(err *exec.ExitError) string {
	_ = err
	return ""
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for communicating with the cognito inference backend.
package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pkt.systems/pslog"
)

// =============================================================================
// LAUNCH FAILURE TESTS
// =============================================================================

// TestSupervisor_PackagedBinaryMissing verifies that a missing backend binary
// surfaces as a launch error without spawning anything.
func TestSupervisor_PackagedBinaryMissing(t *testing.T) {
	sup := NewSupervisor(newTestClient("http://127.0.0.1:1"), SupervisorConfig{
		Mode:         ModePackaged,
		ResourcesDir: t.TempDir(),
	})

	err := sup.Start(testContext(t))
	require.Error(t, err)
	require.True(t, IsLaunchError(err), "want launch error, got %v", err)
	require.Contains(t, err.Error(), "not found")
	require.Equal(t, StateFailed, sup.State())
	require.Equal(t, 0, sup.Pid())
}

// TestSupervisor_DevModeRequiresModuleDir verifies dev mode refuses to start
// without a directory holding the backend source.
func TestSupervisor_DevModeRequiresModuleDir(t *testing.T) {
	sup := NewSupervisor(newTestClient("http://127.0.0.1:1"), SupervisorConfig{
		Mode: ModeDev,
	})

	err := sup.Start(testContext(t))
	require.True(t, IsLaunchError(err), "want launch error, got %v", err)
	require.Equal(t, StateFailed, sup.State())
}

func TestSupervisor_UnknownModeRejected(t *testing.T) {
	sup := NewSupervisor(newTestClient("http://127.0.0.1:1"), SupervisorConfig{
		Mode: SupervisorMode("container"),
	})

	err := sup.Start(testContext(t))
	require.True(t, IsLaunchError(err), "want launch error, got %v", err)
}

// TestSupervisor_SecondStartRejected verifies only one backend process can be
// owned at a time.
func TestSupervisor_SecondStartRejected(t *testing.T) {
	sup := NewSupervisor(newTestClient("http://127.0.0.1:1"), SupervisorConfig{Mode: ModeDev})
	sup.mu.Lock()
	sup.state = StateRunning
	sup.mu.Unlock()

	err := sup.Start(testContext(t))
	require.ErrorIs(t, err, ErrAlreadyStarted)
	require.True(t, IsLaunchError(err))
}

// TestSupervisor_ChildExitsDuringStartup spawns a real process that dies
// immediately and verifies the crash is reported as a launch failure instead
// of waiting out the whole startup timeout.
func TestSupervisor_ChildExitsDuringStartup(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test binary is a shell script")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "cognito-server")
	content := "#!/bin/sh\necho \"server boot failed: model dir missing\" >&2\nexit 3\n"
	require.NoError(t, os.WriteFile(script, []byte(content), 0755))

	sup := NewSupervisor(newTestClient("http://127.0.0.1:1"), SupervisorConfig{
		Mode:           ModePackaged,
		ResourcesDir:   dir,
		StartupTimeout: 10 * time.Second,
	})

	start := time.Now()
	err := sup.Start(testContext(t))
	require.True(t, IsLaunchError(err), "want launch error, got %v", err)
	require.Contains(t, err.Error(), "exited unexpectedly")
	require.Equal(t, StateFailed, sup.State())
	require.Less(t, time.Since(start), 5*time.Second, "crash should cut the readiness wait short")
}

// TestSupervisor_StartupCancelled verifies that cancelling the context during
// the readiness wait surfaces as a launch error carrying the cancellation.
func TestSupervisor_StartupCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	cancel()

	sup := NewSupervisor(newTestClient("http://127.0.0.1:1"), SupervisorConfig{
		Mode:           ModeExternal,
		StartupTimeout: 10 * time.Second,
	})

	err := sup.Start(ctx)
	require.True(t, IsLaunchError(err), "want launch error, got %v", err)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateFailed, sup.State())
}

// =============================================================================
// EXTERNAL MODE TESTS
// =============================================================================

func TestSupervisor_ExternalModeReachable(t *testing.T) {
	var loaded atomic.Bool
	server := healthServer(&loaded)
	defer server.Close()

	sup := NewSupervisor(newTestClient(server.URL), SupervisorConfig{
		Mode:           ModeExternal,
		StartupTimeout: 5 * time.Second,
	})
	ctx := testContext(t)

	require.NoError(t, sup.Start(ctx))
	require.Equal(t, StateRunning, sup.State())
	require.Equal(t, 0, sup.Pid(), "external mode owns no process")

	require.NoError(t, sup.Stop(ctx))
	require.Equal(t, StateStopped, sup.State())
}

func TestSupervisor_ExternalModeUnreachable(t *testing.T) {
	server := healthServer(&atomic.Bool{})
	url := server.URL
	server.Close()

	sup := NewSupervisor(newTestClient(url), SupervisorConfig{
		Mode: ModeExternal,
		// One failed probe round is enough for this test.
		StartupTimeout: 100 * time.Millisecond,
	})

	err := sup.Start(testContext(t))
	require.True(t, IsLaunchError(err), "want launch error, got %v", err)
	require.ErrorIs(t, err, ErrNotRunning)
	require.Equal(t, StateFailed, sup.State())
}

// =============================================================================
// STOP SEMANTICS TESTS
// =============================================================================

func TestSupervisor_StopWithoutStart(t *testing.T) {
	sup := NewSupervisor(newTestClient("http://127.0.0.1:1"), SupervisorConfig{})

	require.NoError(t, sup.Stop(testContext(t)))
	require.Equal(t, StateIdle, sup.State())
}

// TestSupervisor_SpawnAndStop starts a real long-lived child and verifies
// Stop terminates it. Readiness is faked through an external-looking health
// server so the test does not need a real backend.
func TestSupervisor_SpawnAndStop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test binary is a shell script")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	var loaded atomic.Bool
	server := healthServer(&loaded)
	defer server.Close()

	dir := t.TempDir()
	script := filepath.Join(dir, "cognito-server")
	content := "#!/bin/sh\nsleep 60\n"
	require.NoError(t, os.WriteFile(script, []byte(content), 0755))

	sup := NewSupervisor(newTestClient(server.URL), SupervisorConfig{
		Mode:           ModePackaged,
		ResourcesDir:   dir,
		StartupTimeout: 5 * time.Second,
		StopTimeout:    2 * time.Second,
	})
	ctx := testContext(t)

	require.NoError(t, sup.Start(ctx))
	require.Equal(t, StateRunning, sup.State())
	require.NotZero(t, sup.Pid())

	require.NoError(t, sup.Stop(ctx))
	require.Equal(t, StateStopped, sup.State())
	require.Equal(t, 0, sup.Pid())

	// A second Stop is a no-op.
	require.NoError(t, sup.Stop(ctx))
	require.Equal(t, StateStopped, sup.State())
}

// TestSupervisor_CrashAfterRunning verifies that a child dying on its own
// moves the supervisor to StateFailed and fires OnExit.
func TestSupervisor_CrashAfterRunning(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test binary is a shell script")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	var loaded atomic.Bool
	server := healthServer(&loaded)
	defer server.Close()

	dir := t.TempDir()
	script := filepath.Join(dir, "cognito-server")
	content := "#!/bin/sh\nsleep 1\nexit 7\n"
	require.NoError(t, os.WriteFile(script, []byte(content), 0755))

	exitErr := make(chan error, 1)
	sup := NewSupervisor(newTestClient(server.URL), SupervisorConfig{
		Mode:           ModePackaged,
		ResourcesDir:   dir,
		StartupTimeout: 5 * time.Second,
		OnExit:         func(err error) { exitErr <- err },
	})
	ctx := testContext(t)

	require.NoError(t, sup.Start(ctx))
	require.Equal(t, StateRunning, sup.State())

	select {
	case err := <-exitErr:
		require.True(t, IsLaunchError(err), "OnExit error = %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("OnExit never fired")
	}
	require.Equal(t, StateFailed, sup.State())

	// Stopping an already-dead child stays clean.
	require.NoError(t, sup.Stop(ctx))
}

// =============================================================================
// OUTPUT DRAIN TESTS
// =============================================================================

// TestSupervisor_DrainKeepsStderrTail verifies the stderr ring buffer keeps
// only the most recent lines.
func TestSupervisor_DrainKeepsStderrTail(t *testing.T) {
	sup := NewSupervisor(newTestClient("http://127.0.0.1:1"), SupervisorConfig{})
	log := pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true})

	var b strings.Builder
	for i := 1; i <= stderrTailLines+10; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	sup.drain(log, "stderr", strings.NewReader(b.String()), true)

	tail := sup.StderrTail()
	require.Len(t, tail, stderrTailLines)
	require.Equal(t, "line 11", tail[0])
	require.Equal(t, fmt.Sprintf("line %d", stderrTailLines+10), tail[len(tail)-1])
}

func TestSupervisor_DrainSkipsBlankLines(t *testing.T) {
	sup := NewSupervisor(newTestClient("http://127.0.0.1:1"), SupervisorConfig{})
	log := pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true})

	sup.drain(log, "stderr", strings.NewReader("one\n\n\ntwo\n"), true)

	require.Equal(t, []string{"one", "two"}, sup.StderrTail())
}

func TestSupervisor_ExitFailureCarriesLastStderrLine(t *testing.T) {
	sup := NewSupervisor(newTestClient("http://127.0.0.1:1"), SupervisorConfig{})
	sup.recordStderr("Traceback (most recent call last):")
	sup.recordStderr("ModuleNotFoundError: No module named 'uvicorn'")

	err := sup.exitFailure()
	require.True(t, IsLaunchError(err))
	require.Contains(t, err.Error(), "No module named 'uvicorn'")
}

// =============================================================================
// CONFIGURATION TESTS
// =============================================================================

func TestSupervisor_ConfigDefaults(t *testing.T) {
	sup := NewSupervisor(newTestClient("http://127.0.0.1:1"), SupervisorConfig{})

	require.Equal(t, ModeDev, sup.cfg.Mode)
	require.Equal(t, "127.0.0.1", sup.cfg.Host)
	require.Equal(t, 8000, sup.cfg.Port)
	require.Equal(t, 30*time.Second, sup.cfg.StartupTimeout)
	require.Equal(t, 5*time.Second, sup.cfg.StopTimeout)
}

// TestSupervisor_DevCommand verifies the uvicorn invocation for dev mode.
func TestSupervisor_DevCommand(t *testing.T) {
	dir := t.TempDir()
	sup := NewSupervisor(newTestClient("http://127.0.0.1:1"), SupervisorConfig{
		Mode:       ModeDev,
		PythonPath: "python3",
		ModuleDir:  dir,
		Host:       "127.0.0.1",
		Port:       8123,
	})

	cmd, err := sup.buildCommand()
	require.NoError(t, err)
	require.Equal(t, dir, cmd.Dir)
	require.Equal(t, []string{
		"python3", "-m", "uvicorn", "server:app",
		"--host", "127.0.0.1", "--port", "8123",
	}, cmd.Args)
}

// TestSupervisor_PackagedCommand verifies the packaged binary gets its port
// through the environment.
func TestSupervisor_PackagedCommand(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "cognito-server")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755))

	sup := NewSupervisor(newTestClient("http://127.0.0.1:1"), SupervisorConfig{
		Mode:         ModePackaged,
		ResourcesDir: dir,
		BinaryName:   "cognito-server",
		Port:         9001,
		Env:          []string{"COGNITO_MODELS_DIR=/tmp/models"},
	})

	cmd, err := sup.buildCommand()
	require.NoError(t, err)
	require.Equal(t, bin, cmd.Path)
	require.Contains(t, cmd.Env, "PORT=9001")
	require.Contains(t, cmd.Env, "COGNITO_MODELS_DIR=/tmp/models")
}

func TestSupervisorState_Strings(t *testing.T) {
	tests := []struct {
		state SupervisorState
		want  string
	}{
		{StateIdle, "idle"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopped, "stopped"},
		{StateFailed, "failed"},
	}

	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("%d.String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}

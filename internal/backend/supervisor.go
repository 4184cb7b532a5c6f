// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for communicating with the cognito inference backend.
package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"pkt.systems/pslog"
)

// =============================================================================
// PROCESS SUPERVISOR
// =============================================================================

// SupervisorMode selects how the backend process is located and launched.
type SupervisorMode string

const (
	// ModeDev runs the backend from source with a Python interpreter.
	ModeDev SupervisorMode = "dev"
	// ModePackaged runs a prebuilt backend binary from the resources dir.
	ModePackaged SupervisorMode = "packaged"
	// ModeExternal assumes the backend is already running and only waits
	// for it to become reachable. Stop never touches an external backend.
	ModeExternal SupervisorMode = "external"
)

// SupervisorState is the lifecycle state of the supervised process.
type SupervisorState int

const (
	StateIdle SupervisorState = iota
	StateStarting
	StateRunning
	StateStopped
	StateFailed
)

func (s SupervisorState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// ErrAlreadyStarted means Start was called while a backend process from this
// supervisor is already starting or running.
var ErrAlreadyStarted = &ClientError{Type: ErrTypeLaunch, Message: "backend process already started"}

// stderrTailLines is how many recent stderr lines are kept for diagnostics.
const stderrTailLines = 50

// SupervisorConfig holds configuration options for the process supervisor.
type SupervisorConfig struct {
	// Mode selects dev, packaged, or external (default: dev)
	Mode SupervisorMode

	// PythonPath is the interpreter used in dev mode (default: python3,
	// python on Windows)
	PythonPath string
	// ModuleDir is the working directory containing server.py; required in
	// dev mode
	ModuleDir string

	// ResourcesDir holds the prebuilt backend binary in packaged mode
	ResourcesDir string
	// BinaryName overrides the backend binary name (default: cognito-server)
	BinaryName string

	// Host and Port the backend should listen on (default: 127.0.0.1:8000)
	Host string
	Port int

	// Env is appended to the inherited environment
	Env []string

	// StartupTimeout bounds the wait for the backend to answer health
	// probes after spawn (default: 30s)
	StartupTimeout time.Duration
	// StopTimeout bounds the graceful termination before the process group
	// is killed (default: 5s)
	StopTimeout time.Duration

	// OnExit is called when the child exits without Stop being requested.
	// It runs on the reaper goroutine.
	OnExit func(err error)
}

// EffectivePython returns the interpreter dev mode will launch, applying
// the platform default when PythonPath is unset.
func (c SupervisorConfig) EffectivePython() string {
	if c.PythonPath != "" {
		return c.PythonPath
	}
	return defaultPython
}

// BinaryPath returns the backend binary location packaged mode will launch,
// applying the platform default name when BinaryName is unset.
func (c SupervisorConfig) BinaryPath() string {
	name := c.BinaryName
	if name == "" {
		name = defaultBinaryName
	}
	return filepath.Join(c.ResourcesDir, name)
}

// Supervisor owns the lifecycle of a single backend process: spawn, readiness
// wait, output draining, crash detection, and guaranteed termination. At most
// one process is running per supervisor; a second Start is rejected with
// ErrAlreadyStarted. The supervisor never restarts a crashed backend.
type Supervisor struct {
	cfg    SupervisorConfig
	client *Client

	mu         sync.Mutex
	state      SupervisorState
	cmd        *exec.Cmd
	stopping   bool
	waitDone   chan struct{}
	stderrTail []string
}

// NewSupervisor creates a supervisor. The client is used for readiness
// probes against the backend it launches.
func NewSupervisor(client *Client, cfg SupervisorConfig) *Supervisor {
	if cfg.Mode == "" {
		cfg.Mode = ModeDev
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = 30 * time.Second
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 5 * time.Second
	}

	return &Supervisor{
		cfg:    cfg,
		client: client,
		state:  StateIdle,
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() SupervisorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pid returns the backend process id, or 0 when no process is owned.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// StderrTail returns a copy of the most recent stderr lines from the child.
func (s *Supervisor) StderrTail() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tail := make([]string, len(s.stderrTail))
	copy(tail, s.stderrTail)
	return tail
}

// Start spawns the backend per the configured mode and blocks until it
// answers health probes or the startup timeout expires. A failed spawn
// leaves the supervisor in StateFailed and returns a launch error; it never
// panics and never retries.
func (s *Supervisor) Start(ctx context.Context) error {
	log := pslog.Ctx(ctx)

	s.mu.Lock()
	if s.state == StateStarting || s.state == StateRunning {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.stopping = false
	s.stderrTail = nil
	s.waitDone = nil
	s.mu.Unlock()

	if s.cfg.Mode == ModeExternal {
		if err := s.waitReady(ctx, nil); err != nil {
			s.setState(StateFailed)
			return err
		}
		s.setState(StateRunning)
		log.Info("using external backend", "url", s.client.BaseURL())
		return nil
	}

	cmd, err := s.buildCommand()
	if err != nil {
		s.setState(StateFailed)
		log.Error("backend launch failed", "error", err)
		return err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.setState(StateFailed)
		return &ClientError{Type: ErrTypeLaunch, Message: "failed to attach backend stdout", Cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.setState(StateFailed)
		return &ClientError{Type: ErrTypeLaunch, Message: "failed to attach backend stderr", Cause: err}
	}
	setSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		s.setState(StateFailed)
		launchErr := &ClientError{
			Type:    ErrTypeLaunch,
			Message: fmt.Sprintf("failed to start backend (%s)", cmd.Path),
			Cause:   err,
		}
		log.Error("backend launch failed", "error", launchErr)
		return launchErr
	}

	log.Info("backend process started",
		"pid", cmd.Process.Pid,
		"mode", string(s.cfg.Mode),
		"port", s.cfg.Port)

	waitDone := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.waitDone = waitDone
	s.mu.Unlock()

	go s.drain(log, "stdout", stdout, false)
	go s.drain(log, "stderr", stderr, true)
	go s.reap(log, cmd, waitDone)

	if err := s.waitReady(ctx, waitDone); err != nil {
		// Don't leak a half-started child.
		_ = s.Stop(context.Background())
		s.setState(StateFailed)
		log.Error("backend did not become ready", "error", err)
		return err
	}

	s.mu.Lock()
	if s.state == StateStarting {
		s.state = StateRunning
	}
	s.mu.Unlock()
	log.Info("backend ready", "url", s.client.BaseURL())
	return nil
}

// Stop terminates the owned backend process and waits for it to be reaped.
// Graceful termination is attempted first; after StopTimeout the whole
// process group is killed. Safe to call multiple times and from deferred
// shutdown paths.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	cmd := s.cmd
	done := s.waitDone
	if cmd == nil || cmd.Process == nil {
		if s.state == StateStarting || s.state == StateRunning {
			s.state = StateStopped
		}
		s.mu.Unlock()
		return nil
	}
	if s.stopping {
		s.mu.Unlock()
		<-done
		return nil
	}
	s.stopping = true
	s.mu.Unlock()

	select {
	case <-done:
		// Already exited.
	default:
		terminateProcess(cmd.Process)
		select {
		case <-done:
		case <-time.After(s.cfg.StopTimeout):
			killProcess(cmd.Process)
			<-done
		case <-ctx.Done():
			killProcess(cmd.Process)
			<-done
		}
	}

	s.mu.Lock()
	s.state = StateStopped
	s.cmd = nil
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) setState(state SupervisorState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// buildCommand assembles the launch command for the configured mode.
func (s *Supervisor) buildCommand() (*exec.Cmd, error) {
	switch s.cfg.Mode {
	case ModeDev:
		python := s.cfg.EffectivePython()
		if s.cfg.ModuleDir == "" {
			return nil, &ClientError{Type: ErrTypeLaunch, Message: "dev mode requires a backend module directory"}
		}
		cmd := exec.Command(python,
			"-m", "uvicorn", "server:app",
			"--host", s.cfg.Host,
			"--port", strconv.Itoa(s.cfg.Port))
		cmd.Dir = s.cfg.ModuleDir
		cmd.Env = append(os.Environ(), s.cfg.Env...)
		return cmd, nil

	case ModePackaged:
		path := s.cfg.BinaryPath()
		if _, err := os.Stat(path); err != nil {
			return nil, &ClientError{
				Type:    ErrTypeLaunch,
				Message: fmt.Sprintf("backend binary not found at %s", path),
				Cause:   err,
			}
		}
		cmd := exec.Command(path)
		// The packaged binary reads its port from the environment.
		cmd.Env = append(os.Environ(), s.cfg.Env...)
		cmd.Env = append(cmd.Env, fmt.Sprintf("PORT=%d", s.cfg.Port))
		return cmd, nil

	default:
		return nil, &ClientError{
			Type:    ErrTypeLaunch,
			Message: fmt.Sprintf("unsupported supervisor mode: %s", s.cfg.Mode),
		}
	}
}

// waitReady polls the health endpoint until the backend answers, the child
// exits, or the startup timeout expires. exited is nil for external mode.
func (s *Supervisor) waitReady(ctx context.Context, exited <-chan struct{}) error {
	deadline := time.Now().Add(s.cfg.StartupTimeout)
	var lastErr error

	for time.Now().Before(deadline) {
		checkCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		lastErr = s.client.CheckRunning(checkCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return &ClientError{Type: ErrTypeLaunch, Message: "backend startup cancelled", Cause: ctx.Err()}
		case <-exited:
			return s.exitFailure()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return &ClientError{
		Type:    ErrTypeLaunch,
		Message: fmt.Sprintf("backend not responding after %s", s.cfg.StartupTimeout),
		Cause:   lastErr,
	}
}

// drain consumes one output pipe line by line so the child can never block
// on a full pipe. Stderr lines are additionally kept in the tail buffer.
func (s *Supervisor) drain(log pslog.Logger, name string, r io.Reader, record bool) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		log.Debug("backend "+name, "line", line)
		if record {
			s.recordStderr(line)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Trace("backend "+name+" closed", "err", err)
	}
}

func (s *Supervisor) recordStderr(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stderrTail = append(s.stderrTail, line)
	if len(s.stderrTail) > stderrTailLines {
		s.stderrTail = s.stderrTail[len(s.stderrTail)-stderrTailLines:]
	}
}

// reap waits for the child and records how it ended. An exit without a stop
// request is a crash: state goes to StateFailed and OnExit fires.
func (s *Supervisor) reap(log pslog.Logger, cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	close(done)

	exitCode := 0
	signal := ""
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			signal = exitSignal(exitErr)
		}
	}

	s.mu.Lock()
	stopping := s.stopping
	if stopping {
		s.state = StateStopped
	} else {
		s.state = StateFailed
	}
	onExit := s.cfg.OnExit
	s.mu.Unlock()

	fields := []any{"exit_code", exitCode}
	if signal != "" {
		fields = append(fields, "signal", signal)
	}
	if stopping {
		log.Info("backend process stopped", fields...)
		return
	}

	log.Error("backend process exited unexpectedly", fields...)
	if onExit != nil {
		onExit(s.exitFailure())
	}
}

// exitFailure builds the launch error surfaced when the child dies on its
// own, carrying the last stderr line when one was captured.
func (s *Supervisor) exitFailure() error {
	s.mu.Lock()
	var last string
	if n := len(s.stderrTail); n > 0 {
		last = s.stderrTail[n-1]
	}
	s.mu.Unlock()

	clientErr := &ClientError{Type: ErrTypeLaunch, Message: "backend process exited unexpectedly"}
	if last != "" {
		clientErr.Cause = errors.New(last)
	}
	return clientErr
}

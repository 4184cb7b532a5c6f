// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// backend.go - Shared backend plumbing for CLI commands.
//
// Every one-shot command (ask, models, docs) needs the same thing: a client
// pointed at a live backend. ensureBackend attaches to a running backend
// when one is reachable and spawns a supervised process otherwise, handing
// back a teardown func for the paths that started one.

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"pkt.systems/pslog"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/config"
	"github.com/jeranaias/cognito-tui/internal/logging"
)

// cliRequestTimeout bounds non-streaming requests issued by one-shot
// commands. Model loads and full completions can take a while on CPU.
const cliRequestTimeout = 5 * time.Minute

// probeTimeout bounds the initial "is anything there" health probe.
const probeTimeout = 2 * time.Second

// commandContext returns a signal-aware context carrying the CLI logger.
// Output stays on stderr in console mode: warnings and errors by default,
// everything with --verbose, errors only with --quiet. Commands that manage
// os.Interrupt themselves pass their own signal list.
func commandContext(args Args, signals ...os.Signal) (context.Context, context.CancelFunc) {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	level := "warn"
	switch {
	case args.Verbose:
		level = "debug"
	case args.Quiet:
		level = "error"
	}
	logger, _, _ := logging.New(logging.Config{Level: level, Console: true, Verbose: args.Verbose})

	ctx, cancel := signal.NotifyContext(context.Background(), signals...)
	return pslog.ContextWithLogger(ctx, logger), cancel
}

// loadCLIConfig loads the effective configuration for a CLI command.
// A broken config file degrades to defaults with a warning instead of
// blocking every command.
func loadCLIConfig(args Args) (*config.Config, error) {
	cfg, err := config.Load()
	if cfg == nil {
		return nil, WrapError(err, "failed to load configuration")
	}
	if err != nil && !args.Quiet && !args.JSON {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	return cfg, nil
}

// buildClient constructs a backend client from config plus CLI overrides.
func buildClient(cfg *config.Config, args Args) *backend.Client {
	baseURL := cfg.BackendBaseURL()
	if args.BackendURL != "" {
		baseURL = args.BackendURL
	}

	return backend.NewClientWithConfig(&backend.ClientConfig{
		BaseURL: baseURL,
		Timeout: cliRequestTimeout,
		NumCtx:  cfg.Backend.NCtx,
	})
}

// NewSupervisorConfig maps backend settings onto a supervisor configuration.
func NewSupervisorConfig(cfg *config.Config) backend.SupervisorConfig {
	return backend.SupervisorConfig{
		Mode:           backend.SupervisorMode(cfg.Backend.Mode),
		PythonPath:     cfg.Backend.Python,
		ModuleDir:      cfg.Backend.ModuleDir,
		ResourcesDir:   cfg.Backend.ResourcesDir,
		BinaryName:     cfg.Backend.BinaryName,
		Host:           cfg.Backend.Host,
		Port:           cfg.Backend.Port,
		StartupTimeout: cfg.StartupTimeout(),
	}
}

// ensureBackend returns a client for a live backend, spawning a supervised
// process when none is reachable. The returned stop func tears down a
// backend this call started; it is a no-op when the command attached to an
// already-running backend.
func ensureBackend(ctx context.Context, cfg *config.Config, args Args) (*backend.Client, func(), error) {
	client := buildClient(cfg, args)

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := client.CheckRunning(probeCtx)
	cancel()
	if err == nil {
		return client, func() {}, nil
	}

	// Attach-only configurations never spawn
	if args.External || args.BackendURL != "" || cfg.Backend.Mode == string(backend.ModeExternal) {
		return nil, nil, fmt.Errorf("backend not reachable at %s: %w", client.BaseURL(), err)
	}

	if !args.Quiet && !args.JSON {
		fmt.Fprintf(os.Stderr, "Starting cognito backend (%s mode)...\n", cfg.Backend.Mode)
	}

	sup := backend.NewSupervisor(client, NewSupervisorConfig(cfg))
	if err := sup.Start(ctx); err != nil {
		return nil, nil, err
	}

	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sup.Stop(stopCtx)
	}
	return client, stop, nil
}

// ensureModel makes sure the backend has a model loaded, preferring an
// explicit -m override, then the configured default, then whatever the
// backend already has. Returns the name of the active model.
func ensureModel(ctx context.Context, client *backend.Client, cfg *config.Config, args Args) (string, error) {
	health, err := client.Health(ctx)
	if err != nil {
		return "", err
	}

	name := args.Model
	if name == "" {
		name = cfg.Models.Default
	}

	// Nothing requested: use the loaded model or fail
	if name == "" {
		if health.ModelLoaded {
			return health.ModelName, nil
		}
		return "", backend.ErrNoModelLoaded
	}

	// Requested model is already active
	if health.ModelLoaded && filepath.Base(name) == health.ModelName {
		return health.ModelName, nil
	}

	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.ModelsDir(), name)
	}

	if !args.Quiet && !args.JSON {
		fmt.Fprintf(os.Stderr, "Loading model %s...\n", filepath.Base(path))
	}
	if _, err := client.LoadModel(ctx, path); err != nil {
		return "", err
	}
	return filepath.Base(path), nil
}

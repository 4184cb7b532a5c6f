// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cognito - a terminal front end for a local inference backend.
//
// Run bare, the binary launches the full-screen chat TUI, spawning and
// supervising the backend process as needed. With a command it behaves as a
// conventional CLI: ask, chat, status, models, docs, sessions, config,
// doctor, version, help.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"pkt.systems/pslog"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/cli"
	"github.com/jeranaias/cognito-tui/internal/config"
	"github.com/jeranaias/cognito-tui/internal/logging"
	"github.com/jeranaias/cognito-tui/internal/model"
	"github.com/jeranaias/cognito-tui/internal/storage"
	"github.com/jeranaias/cognito-tui/internal/ui/chat"
	"github.com/jeranaias/cognito-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Global program reference for async event delivery
var (
	programRef *tea.Program
	programMu  sync.Mutex
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

// safeSend delivers a message to the running program. Messages sent before
// the TUI starts are dropped.
func safeSend(msg tea.Msg) {
	programMu.Lock()
	p := programRef
	programMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdTUI:
		runTUI(args)
	case cli.CmdAsk:
		cli.HandleAsk(args)
	case cli.CmdChat:
		cli.HandleChat(args)
	case cli.CmdStatus:
		cli.HandleStatus(args)
	case cli.CmdModels:
		cli.HandleModels(args)
	case cli.CmdDocs:
		cli.HandleDocs(args)
	case cli.CmdSessions:
		cli.HandleSessions(args)
	case cli.CmdConfig:
		if err := cli.HandleConfig(args); err != nil {
			cli.DisplayError(err, args.JSON)
			os.Exit(cli.GetExitCode(err))
		}
	case cli.CmdDoctor:
		if err := cli.HandleDoctor(args); err != nil {
			cli.DisplayError(err, args.JSON)
			os.Exit(cli.GetExitCode(err))
		}
	case cli.CmdVersion:
		cli.HandleVersion(args)
	case cli.CmdHelp:
		cli.HandleHelp()
	case cli.CmdUnknown:
		cli.HandleUnknown(args)
	default:
		runTUI(args)
	}
}

// =============================================================================
// TUI STARTUP
// =============================================================================

// runTUI launches the interactive chat interface.
func runTUI(args cli.Args) {
	if err := launchTUI(args); err != nil {
		cli.DisplayError(err, false)
		os.Exit(cli.GetExitCode(err))
	}
}

// launchTUI wires the backend client, process supervisor, health monitor,
// download coordinator, and storage into the chat program and runs it.
// The supervised backend never outlives this function.
func launchTUI(args cli.Args) error {
	cfg, err := config.Load()
	if cfg == nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}

	// The TUI owns the terminal while it runs, so logs go to a file.
	logger, logCloser := buildTUILogger(cfg, args)
	if logCloser != nil {
		defer logCloser.Close()
	}
	logging.RedirectStdlog(logger)

	// Terminal signals tear the whole session down, child process included.
	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx = pslog.ContextWithLogger(ctx, logger)

	baseURL := cfg.BackendBaseURL()
	if args.BackendURL != "" {
		baseURL = args.BackendURL
	}
	client := backend.NewClientWithConfig(&backend.ClientConfig{
		BaseURL: baseURL,
		// Model loads on CPU can take minutes.
		Timeout: 5 * time.Minute,
		NumCtx:  cfg.Backend.NCtx,
	})

	store, err := storage.NewConversationStore()
	if err != nil {
		return fmt.Errorf("failed to open conversation storage: %w", err)
	}

	var ledger *storage.Ledger
	if path, lerr := config.LedgerPath(); lerr == nil {
		if ledger, lerr = storage.OpenLedger(path); lerr != nil {
			logger.Warn("download ledger unavailable", "error", lerr)
			ledger = nil
		}
	}
	if ledger != nil {
		defer ledger.Close()
	}

	var recorder backend.DownloadRecorder
	if ledger != nil {
		recorder = ledger
	}
	downloader := backend.NewDownloader(client, recorder, func(p backend.DownloadProgress) {
		safeSend(chat.DownloadProgressMsg{Progress: p})
	})

	runner := chat.NewStreamRunner(client)

	modelName := args.Model
	if modelName == "" {
		modelName = cfg.Models.Default
	}
	temperature := cfg.Chat.Temperature
	if args.Temperature >= 0 {
		temperature = args.Temperature
	}

	m := chat.New(styles.NewTheme(), chat.Options{
		Client:       client,
		Runner:       runner,
		Store:        store,
		Downloader:   downloader,
		Ledger:       ledger,
		ModelsDir:    cfg.ModelsDir(),
		Version:      Version,
		ModelName:    modelName,
		MaxTokens:    cfg.Backend.NCtx,
		Temperature:  temperature,
		DeepSearch:   args.DeepSearch || cfg.Chat.DeepSearch,
		UseDocuments: args.UseDocuments || cfg.Chat.UseDocuments,
		Markdown:     cfg.Chat.Markdown,
	})

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	programMu.Lock()
	programRef = p
	programMu.Unlock()
	runner.SetProgram(p)

	// SIGTERM quits the program cleanly so the teardown below still runs.
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	supCfg := cli.NewSupervisorConfig(cfg)
	supCfg.OnExit = func(err error) {
		safeSend(chat.BackendExitMsg{Err: err})
	}
	sup := backend.NewSupervisor(client, supCfg)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sup.Stop(stopCtx)
	}()

	monitor := backend.NewHealthMonitor(client, backend.MonitorConfig{
		Interval: cfg.HealthInterval(),
		Timeout:  cfg.HealthTimeout(),
	}, func(prev, cur backend.HealthSnapshot) {
		safeSend(chat.HealthMsg{Snapshot: cur})
	})
	monitor.Start(ctx)
	defer monitor.Stop()

	// Live refresh of the model picker when .gguf files appear or vanish.
	// No watcher is not an error; the picker rescans on open.
	watcher, werr := storage.NewModelsWatcher(cfg.ModelsDir(), 250*time.Millisecond, func() {
		if models, serr := model.ScanModels(cfg.ModelsDir()); serr == nil {
			if ledger != nil {
				if repos, lerr := ledger.ProvenanceMap(); lerr == nil {
					model.AttachProvenance(models, repos)
				}
			}
			safeSend(chat.ModelsScannedMsg{Models: models})
		}
	})
	if werr != nil {
		logger.Warn("models directory watcher unavailable", "error", werr)
	} else {
		defer watcher.Close()
	}

	go startBackend(ctx, args, cfg, client, sup, monitor, modelName)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running cognito: %w", err)
	}
	return nil
}

// =============================================================================
// BACKGROUND STARTUP
// =============================================================================

// startBackend brings up a reachable backend behind the already-running TUI:
// attach when something healthy is listening, otherwise spawn a supervised
// process, then load the requested model. Failures surface as messages; the
// welcome screen shows progress through health snapshots.
func startBackend(ctx context.Context, args cli.Args, cfg *config.Config, client *backend.Client, sup *backend.Supervisor, monitor *backend.HealthMonitor, modelName string) {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	err := client.CheckRunning(probeCtx)
	cancel()

	if err != nil {
		// Attach-only configurations never spawn.
		if args.External || args.BackendURL != "" || cfg.Backend.Mode == string(backend.ModeExternal) {
			safeSend(chat.BackendExitMsg{
				Err: fmt.Errorf("backend not reachable at %s: %w", client.BaseURL(), err),
			})
			return
		}

		if err := sup.Start(ctx); err != nil {
			safeSend(chat.BackendExitMsg{Err: err})
			return
		}
	}
	monitor.RefreshNow(ctx)

	if modelName == "" {
		return
	}

	// Skip the load when the backend already has this model.
	if health, herr := client.Health(ctx); herr == nil &&
		health.ModelLoaded && health.ModelName == filepath.Base(modelName) {
		return
	}

	path := modelName
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.ModelsDir(), modelName)
	}
	if _, lerr := client.LoadModel(ctx, path); lerr != nil {
		safeSend(chat.ModelLoadedMsg{Name: filepath.Base(path), Error: lerr})
		return
	}
	safeSend(chat.ModelLoadedMsg{Name: filepath.Base(path)})
	monitor.RefreshNow(ctx)
}

// buildTUILogger opens the session log file. A missing or unwritable log
// location degrades to a discard logger; stderr is not usable once the alt
// screen is active.
func buildTUILogger(cfg *config.Config, args cli.Args) (pslog.Logger, io.Closer) {
	level := cfg.Logging.Level
	if args.Verbose {
		level = "debug"
	}

	file := cfg.Logging.File
	if file == "" {
		if def, err := config.DefaultLogFile(); err == nil {
			file = def
		}
	}
	if file == "" {
		return logging.Discard(), nil
	}

	logger, closer, err := logging.New(logging.Config{Level: level, File: file})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot open log file %s: %v\n", file, err)
		return logging.Discard(), nil
	}
	return logger, closer
}

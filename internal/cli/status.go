// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Status command implementation for cognito.
//
// CLI: Comprehensive help and examples for all commands
//
// Command: status
// Short:   Display backend and storage status
// Aliases: s
//
// Examples:
//   cognito status
//   cognito status --json
//   cognito status --backend http://127.0.0.1:9000
//
// Flags:
//   --json              Output in JSON format
//
// Status never spawns a backend; it reports on whatever is (not) running.

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jeranaias/cognito-tui/internal/storage"
)

// HandleStatus handles the "status" command.
func HandleStatus(args Args) {
	if err := HandleStatusCommand(args); err != nil {
		DisplayError(err, args.JSON)
		os.Exit(GetExitCode(err))
	}
}

// HandleStatusCommand probes the backend and reports status.
func HandleStatusCommand(args Args) error {
	cfg, err := loadCLIConfig(args)
	if err != nil {
		return err
	}

	client := buildClient(cfg, args)

	probeCtx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	start := time.Now()
	health, healthErr := client.Health(probeCtx)
	latency := time.Since(start)

	data := StatusData{
		Version: Version,
		Backend: BackendStatusData{
			URL:       client.BaseURL(),
			Mode:      cfg.Backend.Mode,
			Reachable: healthErr == nil,
		},
	}
	if healthErr == nil {
		data.Backend.LatencyMs = latency.Milliseconds()
		data.Backend.ModelLoaded = health.ModelLoaded
		data.Backend.ModelName = health.ModelName
		data.Backend.RAGAvailable = health.RAGAvailable
		data.Backend.SearchAvailable = health.ToolsAvailable
		data.Backend.DocumentCount = health.DocumentsCount
	} else {
		data.Backend.Error = healthErr.Error()
	}

	data.Storage = collectStorageStatus(cfg.ModelsDir())

	if args.JSON {
		return NewJSONResponse("status", data).Print()
	}

	printStatusText(data)
	return nil
}

// collectStorageStatus gathers local disk facts that do not need a backend.
func collectStorageStatus(modelsDir string) StorageStatusData {
	out := StorageStatusData{ModelsDir: modelsDir}

	if path, err := configFilePath(); err == nil {
		out.ConfigPath = path
	}

	entries, err := os.ReadDir(modelsDir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".gguf") {
				continue
			}
			out.ModelCount++
			if info, err := entry.Info(); err == nil {
				out.ModelBytes += info.Size()
			}
		}
	}

	if store, err := storage.NewConversationStore(); err == nil {
		if sessions, err := store.List(); err == nil {
			out.SessionCount = len(sessions)
		}
	}

	return out
}

// printStatusText renders the status report for humans.
func printStatusText(data StatusData) {
	fmt.Println()
	fmt.Println(TitleStyle.Render("Cognito Status"))
	fmt.Println(RenderSeparator())
	fmt.Println()

	fmt.Println(SectionStyle.Render("Backend"))
	if data.Backend.Reachable {
		fmt.Printf("  %s%s at %s\n",
			RenderLabel("Status:"),
			StatusOK.Render("running"),
			data.Backend.URL)
		fmt.Printf("  %s%dms\n", RenderLabel("Latency:"), data.Backend.LatencyMs)
		if data.Backend.ModelLoaded {
			fmt.Printf("  %s%s\n", RenderLabel("Model:"), ValueStyle.Render(data.Backend.ModelName))
		} else {
			fmt.Printf("  %s%s\n", RenderLabel("Model:"), WarningStyle.Render("none loaded"))
		}
		fmt.Printf("  %s%s (%d documents)\n",
			RenderLabel("RAG:"),
			availability(data.Backend.RAGAvailable),
			data.Backend.DocumentCount)
		fmt.Printf("  %s%s\n", RenderLabel("Web search:"), availability(data.Backend.SearchAvailable))
	} else {
		fmt.Printf("  %s%s at %s\n",
			RenderLabel("Status:"),
			StatusFail.Render("not running"),
			data.Backend.URL)
		fmt.Printf("  %s%s\n", RenderLabel("Mode:"), data.Backend.Mode)
		fmt.Println()
		fmt.Println(DimStyle.Render("  Start it by launching 'cognito' or 'cognito chat',"))
		fmt.Println(DimStyle.Render("  or run 'cognito doctor' to diagnose the environment."))
	}
	fmt.Println()

	fmt.Println(SectionStyle.Render("Storage"))
	if data.Storage.ConfigPath != "" {
		fmt.Printf("  %s%s\n", RenderLabel("Config:"), data.Storage.ConfigPath)
	}
	fmt.Printf("  %s%s (%d model%s, %s)\n",
		RenderLabel("Models:"),
		data.Storage.ModelsDir,
		data.Storage.ModelCount,
		plural(data.Storage.ModelCount),
		formatBytes(data.Storage.ModelBytes))
	fmt.Printf("  %s%d saved\n", RenderLabel("Sessions:"), data.Storage.SessionCount)
	fmt.Println()
}

// plural returns "s" for counts other than one.
func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

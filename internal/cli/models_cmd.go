// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models_cmd.go - Model management CLI commands for cognito.
//
// CLI: Comprehensive help and examples for all commands
//
// Search, download, and delete GGUF models. Search and download go through
// the backend, which talks to Hugging Face; listing reads the models
// directory so it works with nothing running.
//
// Command: models [subcommand]
// Short:   Manage local models
// Aliases: model
//
// Subcommands:
//   list (default)      List downloaded models (aliases: ls)
//   search <query>      Search Hugging Face for GGUF models
//   files <repo-id>     List downloadable files in a repo
//   download <repo-id> [file]  Download a model file
//   rm <file>           Delete a downloaded model
//
// Examples:
//   cognito models                          List downloaded models
//   cognito models search qwen 7b           Search Hugging Face
//   cognito models search llama --limit 5   First five matches
//   cognito models files Qwen/Qwen2.5-7B-Instruct-GGUF
//   cognito models download Qwen/Qwen2.5-7B-Instruct-GGUF
//   cognito models download Qwen/Qwen2.5-7B-Instruct-GGUF qwen2.5-7b-instruct-q4_k_m.gguf
//   cognito models rm old-model.gguf --yes
//
// Flags:
//   --limit N           Maximum search results (default: 10)
//   --yes               Skip confirmation prompt for rm
//   --json              Output in JSON format

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/config"
	"github.com/jeranaias/cognito-tui/internal/storage"
	"github.com/jeranaias/cognito-tui/internal/util"
)

// =============================================================================
// MODELS COMMAND HANDLER
// =============================================================================

// ModelsArgs holds parsed models command arguments.
type ModelsArgs struct {
	Subcommand string
	Query      string // Search query
	RepoID     string // Hugging Face repo id
	Filename   string // Model filename
	Limit      int    // Search result limit
	Yes        bool   // Skip confirmation
	JSON       bool   // Output in JSON format
}

// HandleModelsCommand handles the "models" command with various subcommands.
func HandleModelsCommand(args Args) error {
	modelsArgs := parseModelsCmdArgs(args)

	switch modelsArgs.Subcommand {
	case "", "list", "ls":
		return handleModelsList(args, modelsArgs)
	case "search":
		return handleModelsSearch(args, modelsArgs)
	case "files":
		return handleModelsFiles(args, modelsArgs)
	case "download", "dl":
		return handleModelsDownload(args, modelsArgs)
	case "rm", "remove", "delete":
		return handleModelsRemove(args, modelsArgs)
	default:
		return fmt.Errorf("unknown models subcommand: %s\nUsage: cognito models [list|search|files|download|rm]", modelsArgs.Subcommand)
	}
}

// parseModelsCmdArgs parses detailed models command arguments from the Args struct.
func parseModelsCmdArgs(args Args) ModelsArgs {
	parser := NewArgParser(args.Raw)

	modelsArgs := ModelsArgs{
		Subcommand: parser.Subcommand(),
		Limit:      parser.FlagIntOrDefault("limit", 10),
		Yes:        parser.BoolFlag("yes") || parser.BoolFlag("y"),
		JSON:       args.JSON,
	}

	switch modelsArgs.Subcommand {
	case "search":
		modelsArgs.Query = JoinPositionalArgs(parser, 1)
	case "files":
		modelsArgs.RepoID = parser.Positional(1)
	case "download", "dl":
		modelsArgs.RepoID = parser.Positional(1)
		modelsArgs.Filename = parser.Positional(2)
	case "rm", "remove", "delete":
		modelsArgs.Filename = parser.Positional(1)
	}

	return modelsArgs
}

// =============================================================================
// MODELS LIST
// =============================================================================

// LocalModelInfo describes one downloaded model file.
type LocalModelInfo struct {
	Name          string `json:"name"`
	SizeBytes     int64  `json:"size_bytes"`
	SizeFormatted string `json:"size_formatted"`
	Source        string `json:"source,omitempty"` // repo id from the download ledger
}

// ModelsListOutput is the JSON output format for models list.
type ModelsListOutput struct {
	Directory string           `json:"directory"`
	Models    []LocalModelInfo `json:"models"`
	Count     int              `json:"count"`
}

// handleModelsList lists models in the local models directory.
func handleModelsList(args Args, modelsArgs ModelsArgs) error {
	cfg, err := loadCLIConfig(args)
	if err != nil {
		return err
	}

	dir := cfg.ModelsDir()
	models := scanLocalModels(dir)
	attachSources(models)

	if modelsArgs.JSON {
		output := ModelsListOutput{
			Directory: dir,
			Models:    models,
			Count:     len(models),
		}
		return NewJSONResponse("models", output).Print()
	}

	if len(models) == 0 {
		fmt.Println()
		fmt.Println("No models downloaded yet.")
		fmt.Println()
		fmt.Println("Find one with:    cognito models search <query>")
		fmt.Println("Download it with: cognito models download <repo-id>")
		fmt.Println()
		return nil
	}

	fmt.Println()
	fmt.Println(TitleStyle.Render("Downloaded Models"))
	fmt.Println(RenderSeparator())
	fmt.Println()

	var total int64
	for _, m := range models {
		line := fmt.Sprintf("  %-50s %10s", util.TruncateRunes(m.Name, 48), m.SizeFormatted)
		if m.Source != "" {
			line += "   " + DimStyle.Render(m.Source)
		}
		fmt.Println(line)
		total += m.SizeBytes
	}

	fmt.Println()
	fmt.Printf("Total: %d model%s, %s in %s\n", len(models), plural(len(models)), backend.FormatSize(total), dir)
	fmt.Println()

	return nil
}

// scanLocalModels reads GGUF files from the models directory.
func scanLocalModels(dir string) []LocalModelInfo {
	var models []LocalModelInfo

	entries, err := os.ReadDir(dir)
	if err != nil {
		return models
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".gguf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		models = append(models, LocalModelInfo{
			Name:          entry.Name(),
			SizeBytes:     info.Size(),
			SizeFormatted: backend.FormatSize(info.Size()),
		})
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].Name < models[j].Name
	})

	return models
}

// attachSources joins download provenance from the ledger onto a scan.
// Files the ledger never saw keep an empty source; a missing or broken
// ledger only drops the source column. The ledger is not created here,
// listing models should not write anything.
func attachSources(models []LocalModelInfo) {
	path, err := config.LedgerPath()
	if err != nil {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	ledger, err := storage.OpenLedger(path)
	if err != nil {
		return
	}
	defer ledger.Close()

	repos, err := ledger.ProvenanceMap()
	if err != nil {
		return
	}
	for i := range models {
		models[i].Source = repos[models[i].Name]
	}
}

// =============================================================================
// MODELS SEARCH
// =============================================================================

// ModelSearchOutput is the JSON output format for models search.
type ModelSearchOutput struct {
	Query   string                      `json:"query"`
	Results []backend.ModelSearchResult `json:"results"`
	Count   int                         `json:"count"`
}

// handleModelsSearch searches Hugging Face through the backend.
func handleModelsSearch(args Args, modelsArgs ModelsArgs) error {
	if modelsArgs.Query == "" {
		return ErrMissingArgument("query", "cognito models search qwen 7b")
	}

	cfg, err := loadCLIConfig(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(args)
	defer cancel()

	client, stop, err := ensureBackend(ctx, cfg, args)
	if err != nil {
		return err
	}
	defer stop()

	results, err := client.SearchModels(ctx, modelsArgs.Query, modelsArgs.Limit)
	if err != nil {
		return err
	}

	if modelsArgs.JSON {
		output := ModelSearchOutput{
			Query:   modelsArgs.Query,
			Results: results,
			Count:   len(results),
		}
		return NewJSONResponse("models", output).Print()
	}

	if len(results) == 0 {
		fmt.Println()
		fmt.Printf("No GGUF models found for %q.\n", modelsArgs.Query)
		fmt.Println()
		return nil
	}

	fmt.Println()
	fmt.Printf("%-52s %12s %7s  %s\n", "REPO", "DOWNLOADS", "LIKES", "UPDATED")
	fmt.Println(strings.Repeat("-", 84))
	for _, r := range results {
		fmt.Printf("%-52s %12s %7d  %s\n",
			util.TruncateRunes(r.ID, 50),
			formatNumber(int(r.Downloads)),
			r.Likes,
			r.LastModified)
	}
	fmt.Println()
	fmt.Println(DimStyle.Render("Next: cognito models files <repo-id>"))
	fmt.Println()

	return nil
}

// =============================================================================
// MODELS FILES
// =============================================================================

// ModelFilesOutput is the JSON output format for models files.
type ModelFilesOutput struct {
	RepoID string              `json:"repo_id"`
	Files  []backend.ModelFile `json:"files"`
	Count  int                 `json:"count"`
}

// handleModelsFiles lists the GGUF files available in a repository.
func handleModelsFiles(args Args, modelsArgs ModelsArgs) error {
	if modelsArgs.RepoID == "" {
		return ErrMissingArgument("repo-id", "cognito models files Qwen/Qwen2.5-7B-Instruct-GGUF")
	}

	cfg, err := loadCLIConfig(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(args)
	defer cancel()

	client, stop, err := ensureBackend(ctx, cfg, args)
	if err != nil {
		return err
	}
	defer stop()

	files, err := client.ModelFiles(ctx, modelsArgs.RepoID)
	if err != nil {
		return err
	}

	if modelsArgs.JSON {
		output := ModelFilesOutput{
			RepoID: modelsArgs.RepoID,
			Files:  files,
			Count:  len(files),
		}
		return NewJSONResponse("models", output).Print()
	}

	if len(files) == 0 {
		fmt.Println()
		fmt.Printf("No GGUF files found in %s.\n", modelsArgs.RepoID)
		fmt.Println()
		return nil
	}

	fmt.Println()
	fmt.Println(TitleStyle.Render(modelsArgs.RepoID))
	fmt.Println(RenderSeparator())
	fmt.Println()
	for _, f := range files {
		fmt.Printf("  %-60s %10s\n", util.TruncateRunes(f.Name, 58), f.SizeFormatted)
	}
	fmt.Println()
	fmt.Printf("Download one with: cognito models download %s <file>\n", modelsArgs.RepoID)
	fmt.Println()

	return nil
}

// =============================================================================
// MODELS DOWNLOAD
// =============================================================================

// DownloadOutput is the JSON output format for a finished download.
type DownloadOutput struct {
	RepoID   string `json:"repo_id"`
	Filename string `json:"filename"`
	Path     string `json:"path,omitempty"`
	State    string `json:"state"`
	Size     string `json:"size,omitempty"`
}

// handleModelsDownload downloads a model file with streaming progress.
func handleModelsDownload(args Args, modelsArgs ModelsArgs) error {
	if modelsArgs.RepoID == "" {
		return ErrMissingArgument("repo-id", "cognito models download Qwen/Qwen2.5-7B-Instruct-GGUF")
	}

	cfg, err := loadCLIConfig(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(args)
	defer cancel()

	client, stop, err := ensureBackend(ctx, cfg, args)
	if err != nil {
		return err
	}
	defer stop()

	// Record outcomes in the download ledger; a broken ledger never blocks
	// the download itself.
	var recorder backend.DownloadRecorder
	var ledger *storage.Ledger
	if path, err := config.LedgerPath(); err == nil {
		if ledger, err = storage.OpenLedger(path); err == nil {
			recorder = ledger
			defer ledger.Close()
		} else if !args.Quiet {
			fmt.Fprintf(os.Stderr, "Warning: download ledger unavailable: %v\n", err)
		}
	}

	showProgress := !args.Quiet && !modelsArgs.JSON && IsStdoutTTY()
	var progress backend.ProgressFunc
	if showProgress {
		progress = renderDownloadProgress
	}

	dl := backend.NewDownloader(client, recorder, progress)
	job, err := dl.Start(ctx, modelsArgs.RepoID, modelsArgs.Filename)
	if err != nil {
		return err
	}

	<-job.Done()
	final := job.Progress()
	if showProgress {
		fmt.Println()
	}

	output := DownloadOutput{
		RepoID:   modelsArgs.RepoID,
		Filename: final.Filename,
		Path:     final.Path,
		State:    final.State.String(),
	}
	if final.Total > 0 {
		output.Size = backend.FormatSize(final.Total)
	}

	switch final.State {
	case backend.DownloadComplete:
		if modelsArgs.JSON {
			return NewJSONResponse("models", output).Print()
		}
		fmt.Println()
		fmt.Printf("%s %s (%s)\n", SuccessStyle.Render("Downloaded:"), final.Filename, output.Size)
		fmt.Printf("Saved to %s\n", final.Path)
		fmt.Println()
		return nil

	case backend.DownloadCanceled:
		if modelsArgs.JSON {
			return NewJSONResponse("models", output).Print()
		}
		fmt.Println()
		fmt.Println("Download canceled.")
		fmt.Println()
		return nil

	default:
		if final.Err != nil {
			return final.Err
		}
		return fmt.Errorf("download failed")
	}
}

// renderDownloadProgress redraws a single progress line in place.
func renderDownloadProgress(p backend.DownloadProgress) {
	width := GetTerminalWidth()

	var line string
	switch p.State {
	case backend.DownloadStarting, backend.DownloadPending:
		line = fmt.Sprintf("  preparing %s...", p.Filename)
	case backend.DownloadActive:
		if p.Total > 0 {
			line = fmt.Sprintf("  %s  %5.1f%%  (%s / %s)",
				p.Filename, p.Percent, backend.FormatSize(p.Downloaded), p.TotalFormatted)
		} else {
			line = fmt.Sprintf("  %s  %s", p.Filename, backend.FormatSize(p.Downloaded))
		}
	default:
		return
	}

	line = util.TruncateWidth(line, width-1)
	fmt.Printf("\r%-*s", width-1, line)
}

// =============================================================================
// MODELS REMOVE
// =============================================================================

// handleModelsRemove deletes a downloaded model through the backend.
func handleModelsRemove(args Args, modelsArgs ModelsArgs) error {
	if modelsArgs.Filename == "" {
		return ErrMissingArgument("file", "cognito models rm old-model.gguf")
	}

	// Refuse anything that is not a plain filename
	if modelsArgs.Filename != filepath.Base(modelsArgs.Filename) {
		return NewValidationError("file", modelsArgs.Filename, "must be a filename, not a path")
	}

	confirmed, err := RequireConfirmation(modelsArgs.Yes,
		fmt.Sprintf("delete model %s", modelsArgs.Filename), modelsArgs.JSON)
	if err != nil {
		return err
	}
	if !confirmed {
		ShowCancellationMessage(modelsArgs.JSON)
		return nil
	}

	cfg, err := loadCLIConfig(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(args)
	defer cancel()

	client, stop, err := ensureBackend(ctx, cfg, args)
	if err != nil {
		return err
	}
	defer stop()

	if err := client.DeleteLocalModel(ctx, modelsArgs.Filename); err != nil {
		return err
	}

	// Drop the matching ledger row so stale records do not accumulate
	if path, err := config.LedgerPath(); err == nil {
		if ledger, err := storage.OpenLedger(path); err == nil {
			ledger.DeleteDownload(modelsArgs.Filename)
			ledger.Close()
		}
	}

	if modelsArgs.JSON {
		output := map[string]interface{}{
			"deleted":  true,
			"filename": modelsArgs.Filename,
		}
		return NewJSONResponse("models", output).Print()
	}

	fmt.Println()
	fmt.Printf("Deleted %s\n", modelsArgs.Filename)
	fmt.Println()

	return nil
}

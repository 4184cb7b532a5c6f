// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command for cognito.
//
// CLI: Comprehensive help and examples for all commands
//
// Sends a single completion request to the backend and prints the answer.
// Spawns the backend when none is running and tears it down afterwards.
//
// Command: ask <question>
// Short:   Ask a single question
// Aliases: a
//
// Examples:
//   cognito ask "explain mmap in one line"
//   cat main.go | cognito ask "review this"
//   cognito ask -f notes.md "summarize"
//   cognito ask --deep-search "latest Go release"
//   cognito ask --json "capital of France"
//
// Flags:
//   -m, --model FILE    Model file to load (under the models directory)
//   -f, --file PATH     Include a file as context
//   --max-tokens N      Generation limit for this run
//   --temperature T     Sampling temperature for this run
//   --deep-search       Allow the backend to search the web
//   --docs              Ground the answer in indexed documents
//   --json              Output in JSON format

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/config"
)

// MaxFileSize limits context files to keep prompts within the context window.
const MaxFileSize = 50 * 1024 // 50KB

// markdownRenderer is initialized once and reused across responses.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		// Fall back to plain text display
		markdownRenderer = nil
	}
}

// renderMarkdown renders text as markdown when possible, raw otherwise.
func renderMarkdown(text string) string {
	if markdownRenderer == nil {
		return text
	}
	rendered, err := markdownRenderer.Render(text)
	if err != nil {
		return text
	}
	return rendered
}

// HandleAskCommand handles the "ask" command with full error handling.
func HandleAskCommand(args Args) error {
	question := strings.TrimSpace(args.Query)

	// Read piped stdin: becomes the question when none was given,
	// context otherwise ("cat main.go | cognito ask 'review this'").
	var pipedContext string
	if stat, err := os.Stdin.Stat(); err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		piped := readStdin()
		if question == "" {
			question = piped
		} else {
			pipedContext = piped
		}
	}

	if question == "" {
		return ErrMissingArgument("question", `cognito ask "your question here"`)
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

	model, err := ensureModel(ctx, client, cfg, args)
	if err != nil {
		return err
	}

	prompt := buildPrompt(question, pipedContext, args.File)
	req := backend.ChatRequest{
		Messages:     []backend.Message{backend.NewUserMessage(prompt)},
		Temperature:  effectiveTemperature(cfg, args),
		MaxTokens:    effectiveMaxTokens(cfg, args),
		Stream:       false,
		DeepSearch:   args.DeepSearch || cfg.Chat.DeepSearch,
		UseDocuments: args.UseDocuments || cfg.Chat.UseDocuments,
	}

	start := time.Now()
	resp, err := client.Chat(ctx, req)
	if err != nil {
		// Ctrl+C is a clean exit, not a failure
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	duration := time.Since(start)

	if args.JSON {
		data := AskData{
			Query:            question,
			Response:         resp.Content(),
			Model:            model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			DurationMs:       duration.Milliseconds(),
		}
		return NewJSONResponse("ask", data).Print()
	}

	displayResponse(resp.Content(), cfg)

	if !args.Quiet {
		displayUsageSummary(resp.Usage, duration)
	}

	return nil
}

// readStdin reads all of piped standard input.
func readStdin() string {
	var sb strings.Builder
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

// buildPrompt combines the question with optional piped and file context.
func buildPrompt(question, pipedContext, filePath string) string {
	var parts []string

	if pipedContext != "" {
		parts = append(parts, fmt.Sprintf("--- Input ---\n%s\n--- End Input ---", pipedContext))
	}

	if filePath != "" {
		fileContext, err := readFileForContext(filePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not read file %s: %v\n", filePath, err)
		} else {
			parts = append(parts, fileContext)
		}
	}

	parts = append(parts, question)
	return strings.Join(parts, "\n\n")
}

// readFileForContext reads a file and frames it for inclusion in a prompt.
func readFileForContext(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > MaxFileSize {
		return "", fmt.Errorf("file too large (%s, max %s)",
			backend.FormatSize(info.Size()), backend.FormatSize(MaxFileSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("--- File: %s ---\n%s\n--- End File ---", path, string(data)), nil
}

// displayResponse prints the answer, markdown-rendered on a TTY.
func displayResponse(content string, cfg *config.Config) {
	if IsStdoutTTY() && cfg.Chat.Markdown {
		fmt.Print(renderMarkdown(content))
	} else {
		fmt.Println(content)
	}
}

// displayUsageSummary prints token usage to stderr so it never pollutes
// piped output.
func displayUsageSummary(usage backend.Usage, duration time.Duration) {
	if usage.TotalTokens == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "\n%s\n", DimStyle.Render(fmt.Sprintf(
		"%d tokens (%d prompt + %d completion) in %s",
		usage.TotalTokens,
		usage.PromptTokens,
		usage.CompletionTokens,
		formatDuration(duration),
	)))
}

// effectiveTemperature resolves the temperature for this run.
func effectiveTemperature(cfg *config.Config, args Args) float64 {
	if args.Temperature >= 0 {
		return args.Temperature
	}
	return cfg.Chat.Temperature
}

// effectiveMaxTokens resolves the generation limit for this run.
func effectiveMaxTokens(cfg *config.Config, args Args) int {
	if args.MaxTokens > 0 {
		return args.MaxTokens
	}
	return cfg.Chat.MaxTokens
}

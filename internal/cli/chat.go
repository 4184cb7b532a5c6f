// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command handler for cognito.
//
// CLI: Comprehensive help and examples for all commands
//
// Provides a line-oriented streaming REPL against the backend, for terminals
// where the full TUI is unwanted (ssh sessions, scripts driving a pty).
//
// Command: chat
// Short:   Interactive chat in the terminal
// Aliases: c
//
// Interactive Commands:
//   /help, /h, /?       Show available commands
//   /clear, /c          Clear conversation history
//   /model [file]       Show or switch the loaded model
//   /status, /s         Show backend status
//   /history            Show the conversation so far
//   /save               Save the conversation as a session
//   /docs               Toggle document grounding
//   /deep               Toggle deep web search
//   /quit, /q, /exit    Exit the chat
//
// Examples:
//   cognito chat
//   cognito chat -m qwen2.5-7b-instruct-q4_k_m.gguf
//   cognito chat --docs
//
// Flags:
//   -m, --model FILE    Model file to load (under the models directory)
//   --max-tokens N      Generation limit per reply
//   --temperature T     Sampling temperature
//   --deep-search       Allow the backend to search the web
//   --docs              Ground answers in indexed documents

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/config"
	"github.com/jeranaias/cognito-tui/internal/storage"
	"github.com/jeranaias/cognito-tui/internal/util"
)

// =============================================================================
// LINE EDITOR
// =============================================================================

// ChatCLI wraps the line editor with persistent history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor with history loaded from the config dir.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	cli := &ChatCLI{line: line}

	if path, err := config.HistoryPath(); err == nil {
		cli.historyFile = path
		if f, err := os.Open(path); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}

	return cli
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes the input history back to disk.
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and releases the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT SESSION STATE
// =============================================================================

// chatSession holds the state of one REPL conversation.
type chatSession struct {
	client *backend.Client
	cfg    *config.Config
	args   Args

	model        string
	messages     []backend.Message
	deepSearch   bool
	useDocuments bool

	// Stats for the exit summary
	queries   int
	startTime time.Time

	// cancel aborts the in-flight request; guarded because the signal
	// goroutine reads it while the REPL goroutine writes it
	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc
}

func (s *chatSession) setCancel(fn context.CancelFunc) {
	s.cancelMu.Lock()
	s.cancelFunc = fn
	s.cancelMu.Unlock()
}

// cancelInflight cancels the streaming request if one is running.
// Returns true when there was something to cancel.
func (s *chatSession) cancelInflight() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
		return true
	}
	return false
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

// HandleChatCommand handles the "chat" command with full error handling.
func HandleChatCommand(args Args) error {
	if !IsTTY() {
		return fmt.Errorf("chat requires an interactive terminal (use 'cognito ask' for piped input)")
	}

	cfg, err := loadCLIConfig(args)
	if err != nil {
		return err
	}

	// Ctrl+C is handled below through liner; only SIGTERM cancels the context.
	ctx, cancel := commandContext(args, syscall.SIGTERM)
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

	session := &chatSession{
		client:       client,
		cfg:          cfg,
		args:         args,
		model:        model,
		deepSearch:   args.DeepSearch || cfg.Chat.DeepSearch,
		useDocuments: args.UseDocuments || cfg.Chat.UseDocuments,
		startTime:    time.Now(),
	}

	chatCLI := NewChatCLI()
	defer chatCLI.Close()

	// First Ctrl+C aborts the in-flight request; at the prompt liner
	// surfaces it as ErrPromptAborted instead.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			session.cancelInflight()
		}
	}()

	session.printWelcome()

	for {
		input, err := chatCLI.ReadInput("> ")
		if err != nil {
			if err == liner.ErrPromptAborted {
				fmt.Println()
				session.printExitSummary()
				return nil
			}
			// io.EOF on Ctrl+D
			fmt.Println()
			session.printExitSummary()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		// Slash commands
		if strings.HasPrefix(input, "/") {
			shouldContinue, err := session.handleSlashCommand(ctx, input)
			if err != nil {
				fmt.Printf("%s %v\n", ErrorStyle.Render("[ERROR]"), err)
			}
			if !shouldContinue {
				session.printExitSummary()
				return nil
			}
			continue
		}

		// Bare exit words still work
		if input == "exit" || input == "quit" {
			session.printExitSummary()
			return nil
		}

		if err := session.processMessage(ctx, input); err != nil {
			fmt.Printf("%s %v\n", ErrorStyle.Render("[ERROR]"), err)
			if backend.IsNotRunning(err) {
				fmt.Println(DimStyle.Render("The backend went away. Exiting."))
				return err
			}
		}
	}
}

// processMessage sends one user message and streams the reply to stdout.
func (s *chatSession) processMessage(ctx context.Context, input string) error {
	s.messages = append(s.messages, backend.NewUserMessage(input))

	reqCtx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)
	defer func() {
		s.setCancel(nil)
		cancel()
	}()

	req := backend.ChatRequest{
		Messages:     s.messages,
		Temperature:  effectiveTemperature(s.cfg, s.args),
		MaxTokens:    effectiveMaxTokens(s.cfg, s.args),
		DeepSearch:   s.deepSearch,
		UseDocuments: s.useDocuments,
	}

	var reply strings.Builder
	var streamErr error
	statusShown := false

	fmt.Println()
	err := s.client.ChatStream(reqCtx, req, func(ev backend.ChatEvent) {
		switch ev.Kind {
		case backend.ChatEventStatus:
			if line := statusLine(ev); line != "" {
				fmt.Println(DimStyle.Render(line))
				statusShown = true
			}
		case backend.ChatEventToken:
			if statusShown {
				fmt.Println()
				statusShown = false
			}
			fmt.Print(ev.Token)
			reply.WriteString(ev.Token)
		case backend.ChatEventError:
			streamErr = ev.Err
		case backend.ChatEventDone:
			// Stream finished; nothing to flush
		}
	})
	fmt.Println()
	fmt.Println()

	if err != nil {
		// Drop the unanswered user message so a retry is clean
		s.messages = s.messages[:len(s.messages)-1]
		return err
	}
	if streamErr != nil {
		s.messages = s.messages[:len(s.messages)-1]
		return streamErr
	}

	if reqCtx.Err() != nil {
		fmt.Println(DimStyle.Render("(canceled)"))
		fmt.Println()
	}

	if reply.Len() > 0 {
		s.messages = append(s.messages, backend.NewAssistantMessage(reply.String()))
		s.queries++
	} else {
		s.messages = s.messages[:len(s.messages)-1]
	}

	return nil
}

// statusLine formats a backend status event for display.
func statusLine(ev backend.ChatEvent) string {
	switch ev.Status {
	case backend.StatusRetrievingDocs:
		return "[retrieving documents...]"
	case backend.StatusSearching:
		if ev.Query != "" {
			return fmt.Sprintf("[searching: %s]", ev.Query)
		}
		return "[searching the web...]"
	case backend.StatusSearchComplete:
		return "[search complete]"
	case backend.StatusSearchFailed:
		if ev.Detail != "" {
			return fmt.Sprintf("[search failed: %s]", ev.Detail)
		}
		return "[search failed, answering without it]"
	}
	return ""
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes a /-prefixed command.
// Returns (shouldContinue, error).
func (s *chatSession) handleSlashCommand(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case "/help", "/h", "/?":
		s.printHelp()
		return true, nil

	case "/clear", "/c":
		s.messages = s.messages[:0]
		fmt.Println("Conversation cleared.")
		fmt.Println()
		return true, nil

	case "/model", "/m":
		if len(fields) > 1 {
			return true, s.switchModel(ctx, fields[1])
		}
		fmt.Printf("Current model: %s\n\n", s.model)
		return true, nil

	case "/status", "/s":
		s.printStatus(ctx)
		return true, nil

	case "/history":
		s.printHistory()
		return true, nil

	case "/save":
		return true, s.saveConversation()

	case "/docs":
		s.useDocuments = !s.useDocuments
		fmt.Printf("Document grounding: %s\n\n", onOff(s.useDocuments))
		return true, nil

	case "/deep":
		s.deepSearch = !s.deepSearch
		fmt.Printf("Deep web search: %s\n\n", onOff(s.deepSearch))
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	case "/":
		s.printHelp()
		return true, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", cmd)
	}
}

// switchModel loads a different model on the backend.
func (s *chatSession) switchModel(ctx context.Context, name string) error {
	override := s.args
	override.Model = name
	model, err := ensureModel(ctx, s.client, s.cfg, override)
	if err != nil {
		return err
	}
	s.model = model
	fmt.Printf("Now using %s\n\n", model)
	return nil
}

// saveConversation persists the current conversation as a session.
func (s *chatSession) saveConversation() error {
	if len(s.messages) == 0 {
		fmt.Println("Nothing to save yet.")
		fmt.Println()
		return nil
	}

	store, err := storage.NewConversationStore()
	if err != nil {
		return fmt.Errorf("failed to open session storage: %w", err)
	}

	now := time.Now()
	conv := &storage.StoredConversation{
		Model:     s.model,
		CreatedAt: s.startTime,
		UpdatedAt: now,
	}
	for _, msg := range s.messages {
		conv.Messages = append(conv.Messages, storage.StoredMessage{
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: now,
		})
	}

	id, err := store.Save(conv)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	fmt.Printf("Saved session %s (%d messages).\n\n", id, len(s.messages))
	return nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func (s *chatSession) printWelcome() {
	fmt.Println()
	fmt.Println(TitleStyle.Render("cognito chat"))
	fmt.Printf("  Model: %s\n", ValueStyle.Render(s.model))

	var modes []string
	if s.useDocuments {
		modes = append(modes, "docs")
	}
	if s.deepSearch {
		modes = append(modes, "deep search")
	}
	if len(modes) > 0 {
		fmt.Printf("  Modes: %s\n", strings.Join(modes, ", "))
	}

	fmt.Println(DimStyle.Render("  Type /help for commands, Ctrl+C to cancel a reply, /quit to exit."))
	fmt.Println()
}

func (s *chatSession) printHelp() {
	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help", "Show this help"},
		{"/clear", "Clear conversation history"},
		{"/model [file]", "Show or switch the loaded model"},
		{"/status", "Show backend status"},
		{"/history", "Show the conversation so far"},
		{"/save", "Save the conversation as a session"},
		{"/docs", "Toggle document grounding"},
		{"/deep", "Toggle deep web search"},
		{"/quit", "Exit the chat"},
	}

	fmt.Println()
	fmt.Println("Commands:")
	for _, c := range commands {
		fmt.Printf("  %-15s %s\n", c.cmd, c.desc)
	}
	fmt.Println()
}

func (s *chatSession) printStatus(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	health, err := s.client.Health(probeCtx)
	fmt.Println()
	if err != nil {
		fmt.Printf("Backend:   %s (%v)\n", StatusFail.Render("unreachable"), err)
		fmt.Println()
		return
	}

	fmt.Printf("Backend:   %s at %s\n", StatusOK.Render("running"), s.client.BaseURL())
	if health.ModelLoaded {
		fmt.Printf("Model:     %s\n", health.ModelName)
	} else {
		fmt.Printf("Model:     %s\n", WarningStyle.Render("none loaded"))
	}
	fmt.Printf("RAG:       %s (%d documents)\n", availability(health.RAGAvailable), health.DocumentsCount)
	fmt.Printf("Search:    %s\n", availability(health.ToolsAvailable))
	fmt.Printf("Messages:  %d in this conversation\n", len(s.messages))
	fmt.Println()
}

func (s *chatSession) printHistory() {
	if len(s.messages) == 0 {
		fmt.Println()
		fmt.Println("No messages yet.")
		fmt.Println()
		return
	}

	fmt.Println()
	for i, msg := range s.messages {
		role := strings.ToUpper(msg.Role)
		content := strings.ReplaceAll(msg.Content, "\n", " ")
		content = util.TruncateRunes(content, 100)
		fmt.Printf("[%d] %s: %s\n", i+1, role, content)
	}
	fmt.Println()
}

func (s *chatSession) printExitSummary() {
	if s.queries == 0 {
		fmt.Println("Goodbye!")
		return
	}

	elapsed := time.Since(s.startTime)
	fmt.Println()
	fmt.Printf("Session: %d exchange(s) in %s\n", s.queries, formatDuration(elapsed))
	fmt.Println("Goodbye!")
}

// onOff formats a toggle state.
func onOff(enabled bool) string {
	if enabled {
		return SuccessStyle.Render("on")
	}
	return DimStyle.Render("off")
}

// availability formats a backend capability flag.
func availability(ok bool) string {
	if ok {
		return SuccessStyle.Render("available")
	}
	return DimStyle.Render("unavailable")
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file implements the slash command registry. Each command is a small
// handler function so commands stay individually testable.
package chat

import (
	"context"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/cognito-tui/internal/model"
	"github.com/jeranaias/cognito-tui/internal/util"
)

// =============================================================================
// COMMAND HANDLER REGISTRY
// =============================================================================

// CommandHandler handles one slash command. It receives the model and the
// command arguments, and returns an updated model and command.
type CommandHandler func(m *Model, args []string) (tea.Model, tea.Cmd)

// commandHandlers maps command names to their handlers.
var commandHandlers = map[string]CommandHandler{
	// Help & meta
	"help":    handleHelpCommand,
	"h":       handleHelpCommand,
	"?":       handleHelpCommand,
	"quit":    handleQuitCommand,
	"q":       handleQuitCommand,
	"exit":    handleQuitCommand,
	"version": handleVersionCommand,

	// Conversation management
	"clear":    handleClearCommand,
	"c":        handleClearCommand,
	"new":      handleNewCommand,
	"n":        handleNewCommand,
	"save":     handleSaveCommand,
	"s":        handleSaveCommand,
	"sessions": handleSessionsCommand,
	"list":     handleSessionsCommand,
	"resume":   handleResumeCommand,
	"r":        handleResumeCommand,
	"export":   handleExportCommand,
	"e":        handleExportCommand,

	// Models
	"model":    handleModelCommand,
	"m":        handleModelCommand,
	"models":   handleModelsCommand,
	"load":     handleLoadCommand,
	"l":        handleLoadCommand,
	"download": handleDownloadCommand,
	"dl":       handleDownloadCommand,

	// Generation settings
	"search": handleSearchCommand,
	"docs":   handleDocsCommand,
	"rag":    handleDocsCommand,

	// Status
	"status": handleStatusCommand,
}

// handleCommand dispatches a slash command through the registry.
func (m Model) handleCommand(content string) (tea.Model, tea.Cmd) {
	m.input.Reset()

	parts := strings.Fields(content)
	if len(parts) == 0 {
		return m, nil
	}

	cmdName := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	args := parts[1:]

	if handler, ok := commandHandlers[cmdName]; ok {
		return handler(&m, args)
	}

	m.conversation.AddSystemMessage("Unknown command '" + content + "'. Type /help for available commands.")
	m.updateViewport()
	m.viewport.GotoBottom()
	return m, nil
}

// addSystemNote appends a system message and scrolls to it.
func addSystemNote(m *Model, text string) {
	m.conversation.AddSystemMessage(text)
	m.updateViewport()
	m.viewport.GotoBottom()
}

// =============================================================================
// HELP AND META COMMANDS
// =============================================================================

func handleHelpCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	help := strings.Join([]string{
		"Commands:",
		"  /help              Show this help",
		"  /clear             Clear the conversation",
		"  /new               Start a new conversation",
		"  /save              Save the conversation",
		"  /sessions          List saved conversations",
		"  /resume [id|n]     Resume a saved conversation",
		"  /export [md|json]  Export the conversation to a file",
		"  /model [name]      Show or load a model",
		"  /models            Pick a model to load",
		"  /load <name>       Load a local model by file name",
		"  /download <repo> <file>  Download a model from the hub",
		"  /search [on|off]   Toggle deep web search",
		"  /docs [on|off]     Toggle answering from uploaded documents",
		"  /status            Show backend status",
		"  /version           Show version",
		"  /quit              Exit",
		"",
		"Keys:",
		"  Enter       Send message",
		"  Esc         Cancel stream / dismiss",
		"  Ctrl+C      Quit (cancels an active stream first)",
		"  Ctrl+L      Clear conversation",
		"  Ctrl+O      Model picker",
		"  Ctrl+S      Session picker",
		"  PgUp/PgDn   Scroll transcript",
	}, "\n")

	addSystemNote(m, help)
	return *m, nil
}

func handleQuitCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	return *m, tea.Quit
}

func handleVersionCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	addSystemNote(m, "cognito "+m.version)
	return *m, nil
}

// =============================================================================
// CONVERSATION COMMANDS
// =============================================================================

func handleClearCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	m.conversation.ClearHistory()
	m.statusBar.SetTokenUsage(m.conversation.EstimateTokens(), 0)
	m.updateViewport()
	return *m, nil
}

func handleNewCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	conv := model.NewConversation()
	conv.Model = m.modelName
	if m.conversation != nil && m.conversation.SystemPrompt != "" {
		conv.SystemPrompt = m.conversation.SystemPrompt
	}
	m.conversation = conv
	m.statusBar.SetTokenUsage(0, 0)
	m.updateViewport()
	return *m, nil
}

func handleSaveCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if m.conversation.IsEmpty() {
		addSystemNote(m, "Nothing to save yet.")
		return *m, nil
	}
	if len(args) > 0 {
		m.conversation.SetTitle(strings.Join(args, " "))
	}
	return *m, saveConversationCmd(m.store, m.conversation)
}

func handleSessionsCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	return *m, listSessionsCmd(m.store)
}

func handleResumeCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		return *m, listSessionsCmd(m.store)
	}

	// A small number is a list position, anything else is an ID.
	if n, err := strconv.Atoi(args[0]); err == nil && n > 0 && n < 1000 {
		return *m, resumeSessionByIndexCmd(m.store, n)
	}
	return *m, resumeSessionCmd(m.store, args[0])
}

// =============================================================================
// MODEL COMMANDS
// =============================================================================

func handleModelCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		addSystemNote(m, "Current model: "+displayModelName(m.modelName))
		return *m, nil
	}
	return handleLoadCommand(m, args)
}

func handleModelsCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	m.modelPicker.Show()
	return *m, scanModelsCmd(m.modelsDir, m.ledger)
}

func handleLoadCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		m.modelPicker.Show()
		return *m, scanModelsCmd(m.modelsDir, m.ledger)
	}

	name := args[0]
	models, err := model.ScanModels(m.modelsDir)
	if err != nil {
		addSystemNote(m, "Cannot scan models: "+err.Error())
		return *m, nil
	}

	found := model.FindModel(models, name)
	if found == nil {
		found = matchModelSubstring(models, name)
	}
	if found == nil {
		addSystemNote(m, "No local model named '"+name+"'. Use /models to list them.")
		return *m, nil
	}

	m.statusMsg = "Loading " + found.DisplayName() + "..."
	return *m, loadModelCmd(m.client, found.Path, found.Filename)
}

func handleDownloadCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if m.downloader == nil {
		addSystemNote(m, "Downloads are not available in this session.")
		return *m, nil
	}
	if len(args) < 2 {
		addSystemNote(m, "Usage: /download <repo-id> <filename>")
		return *m, nil
	}

	repoID, filename := args[0], args[1]
	if _, err := m.downloader.Start(context.Background(), repoID, filename); err != nil {
		addSystemNote(m, "Cannot start download: "+err.Error())
		return *m, nil
	}

	// Progress arrives as DownloadProgressMsg snapshots; Esc cancels.
	m.statusMsg = "Downloading " + filename + "..."
	return *m, nil
}

// matchModelSubstring finds a model by case-insensitive substring. Returns
// nil when the fragment is ambiguous so /load never grabs the wrong file.
func matchModelSubstring(models []model.LocalModelFile, fragment string) *model.LocalModelFile {
	fragment = strings.ToLower(fragment)

	var found *model.LocalModelFile
	for i := range models {
		if strings.Contains(strings.ToLower(models[i].Filename), fragment) {
			if found != nil {
				return nil
			}
			found = &models[i]
		}
	}
	return found
}

// =============================================================================
// GENERATION SETTING COMMANDS
// =============================================================================

func handleSearchCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	m.deepSearch = toggleSetting(m.deepSearch, args)
	addSystemNote(m, "Deep search "+formatToggle(m.deepSearch))
	return *m, nil
}

func handleDocsCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	m.useDocuments = toggleSetting(m.useDocuments, args)

	note := "Document answers " + formatToggle(m.useDocuments)
	if m.useDocuments && m.health.Status != nil {
		note += " (" + util.IntToStr(m.health.Status.DocumentsCount) + " documents indexed)"
	}
	addSystemNote(m, note)
	return *m, nil
}

func toggleSetting(current bool, args []string) bool {
	if len(args) == 0 {
		return !current
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	default:
		return !current
	}
}

func formatToggle(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

// =============================================================================
// STATUS COMMAND
// =============================================================================

func handleStatusCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	var b strings.Builder
	b.WriteString("Backend: ")
	b.WriteString(m.health.State.String())

	if st := m.health.Status; st != nil {
		b.WriteString("\nModel loaded: ")
		b.WriteString(formatYesNo(st.ModelLoaded))
		if st.ModelName != "" {
			b.WriteString(" (")
			b.WriteString(st.ModelName)
			b.WriteString(")")
		}
		b.WriteString("\nTools: ")
		b.WriteString(formatYesNo(st.ToolsAvailable))
		b.WriteString("\nRAG: ")
		b.WriteString(formatYesNo(st.RAGAvailable))
		b.WriteString("\nDocuments: ")
		b.WriteString(util.IntToStr(st.DocumentsCount))
	} else if m.health.Err != nil {
		b.WriteString("\nLast error: ")
		b.WriteString(m.health.Err.Error())
	}

	b.WriteString("\nContext: ")
	b.WriteString(util.IntToStr(m.conversation.EstimateTokens()))
	b.WriteString(" / ")
	b.WriteString(util.IntToStr(m.conversation.MaxTokens))
	b.WriteString(" tokens")

	addSystemNote(m, b.String())
	return *m, nil
}

func formatYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

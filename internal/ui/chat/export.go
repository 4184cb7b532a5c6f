// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/cognito-tui/internal/model"
	"github.com/jeranaias/cognito-tui/internal/util"
)

// =============================================================================
// EXPORT COMMAND
// =============================================================================

// ExportCompleteMsg reports the outcome of an asynchronous export.
type ExportCompleteMsg struct {
	Path  string
	Error error
}

// handleExportCommand implements /export [md|json] [path].
func handleExportCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if m.conversation.IsEmpty() {
		addSystemNote(m, "Nothing to export yet.")
		return *m, nil
	}

	format := "md"
	if len(args) > 0 {
		format = strings.ToLower(args[0])
	}
	switch format {
	case "md", "markdown":
		format = "md"
	case "json":
	default:
		addSystemNote(m, "Unknown export format '"+format+"'. Use md or json.")
		return *m, nil
	}

	var path string
	if len(args) > 1 {
		path = args[1]
	}

	addSystemNote(m, "Exporting conversation...")
	return *m, exportConversationCmd(m.conversation, format, path)
}

// exportConversationCmd renders the conversation in the requested format and
// writes it atomically. The snapshot is taken before the command runs so the
// write never races an in-flight stream.
func exportConversationCmd(conv *model.Conversation, format, path string) tea.Cmd {
	snapshot := toStored(conv)
	return func() tea.Msg {
		var data []byte
		switch format {
		case "json":
			b, err := snapshot.ExportJSON()
			if err != nil {
				return ExportCompleteMsg{Error: err}
			}
			data = b
		default:
			data = []byte(snapshot.ExportMarkdown())
		}

		if path == "" {
			path = "conversation-" + time.Now().Format("20060102-150405") + "." + format
		}
		if err := util.AtomicWriteFile(path, data, 0600); err != nil {
			return ExportCompleteMsg{Error: err}
		}
		return ExportCompleteMsg{Path: path}
	}
}

// handleExportComplete reports the export outcome in the transcript.
func (m Model) handleExportComplete(msg ExportCompleteMsg) (tea.Model, tea.Cmd) {
	if msg.Error != nil {
		m.conversation.AddSystemMessage("Export failed: " + msg.Error.Error())
	} else {
		m.conversation.AddSystemMessage("Exported to " + msg.Path)
	}
	m.updateViewport()
	m.viewport.GotoBottom()
	return m, nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the conversation view, the main surface of the cognito
TUI application.

The chat package implements a complete terminal-based chat interface using the
Bubble Tea framework. It provides an interactive, real-time conversation
experience against the local inference backend.

# Key Components

## Model (model.go)

The Model struct is the central Bubble Tea model that maintains all chat state:
  - Conversation history and message management
  - Input handling and keyboard routing
  - Viewport for transcript scrolling
  - Streaming state for real-time token delivery
  - Backend health, model and session pickers, download progress

## View Rendering (view.go)

Rendering logic for the complete chat interface:
  - Header with model name, backend state and transient notices
  - Message bubbles with role-specific styling (user, assistant, system)
  - Code block rendering with syntax highlighting
  - Status bar with backend health, context usage and throughput

## Update Loop (update.go)

Handles all Bubble Tea messages and user interactions:
  - Keyboard input processing
  - Stream lifecycle messages (start, status, token, complete, error)
  - Health transitions and backend exit
  - Model scanning and loading, session persistence
  - Window resize handling

## Streaming (streaming.go, update.go)

Streaming implementation for smooth token delivery:
  - StreamRunner bridges the blocking backend stream into program messages
  - StreamingBuffer batches tokens so renders happen at a capped rate
  - Cancellation resolves through a clean completion, never an error

## Commands (commands.go)

Slash command handler registry supporting:
  - /help - Show available commands
  - /clear, /new - Conversation lifecycle
  - /save, /sessions, /resume, /export - Conversation persistence
  - /model, /models, /load - Local model management
  - /search, /docs - Generation settings
  - /status - Backend health summary

# Usage

Create a new chat model and run it as a Bubble Tea program:

	client := backend.NewClient(cfg.BackendBaseURL())
	runner := chat.NewStreamRunner(client)
	m := chat.New(styles.NewTheme(), chat.Options{
		Client: client,
		Runner: runner,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())
	runner.SetProgram(p)
	if _, err := p.Run(); err != nil {
		log.Fatal(err)
	}
*/
package chat

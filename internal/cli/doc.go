// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line interface parsing and execution for cognito.
//
// This package implements all non-TUI commands for the cognito application.
// Running the binary with no command starts the TUI; everything else is
// handled here, in both interactive and scripted (--json) modes.
//
// # Key Types
//
//   - Command: Enumeration of all available CLI commands
//   - Args: Parsed command-line arguments with global and command-specific flags
//   - JSONResponse: Envelope for machine-readable output
//
// # Usage
//
// Parse and dispatch commands:
//
//	cmd, args := cli.Parse()
//	switch cmd {
//	case cli.CmdAsk:
//	    cli.HandleAsk(args)
//	case cli.CmdStatus:
//	    cli.HandleStatus(args)
//	// ... other commands
//	}
//
// # Commands Overview
//
//   - ask: Single question, answer to stdout
//   - chat: Interactive chat session in the terminal
//   - status: Backend and storage status
//   - models: Search, download, and manage local GGUF models
//   - docs: Manage documents indexed for retrieval
//   - sessions: Manage saved chat sessions
//   - config: Configuration management
//   - doctor: Environment diagnostics
//
// All commands support the --json flag for scripted use. Commands that need
// the inference backend start it on demand and stop it on exit, unless
// --external or --backend points at one that is already running.
package cli

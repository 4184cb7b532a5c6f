// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// confirm.go - Unified confirmation handling for destructive CLI commands.
//
// Every command that deletes something (models rm, docs clear, sessions rm,
// sessions clear, config reset) goes through the same gate:
//   1. If --yes was passed, proceed without prompting
//   2. In --json mode, --yes is required (no interactive prompts in JSON mode)
//   3. If stdin is not a TTY, --yes is required (can't prompt)
//   4. Otherwise, show an interactive [y/N] prompt

package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// =============================================================================
// CONFIRMATION GATE
// =============================================================================

// RequireConfirmation checks if the user has confirmed a destructive action.
//
// Parameters:
//
//	yesFlag  - true if --yes was passed
//	action   - description of the action (e.g., "delete all saved sessions")
//	jsonMode - true if --json was passed
//
// Returns true if confirmed, false if declined. The error is non-nil only
// when confirmation is impossible (JSON mode or non-TTY stdin without
// --yes); a declined prompt is a normal outcome, not an error.
func RequireConfirmation(yesFlag bool, action string, jsonMode bool) (bool, error) {
	if yesFlag {
		return true, nil
	}

	// In JSON mode, --yes is required (no interactive prompts)
	if jsonMode {
		return false, fmt.Errorf("confirmation required: use --yes for destructive actions in JSON mode")
	}

	// Can't prompt if stdin is piped (cron jobs, CI, `echo ... | cognito`)
	if !IsTTY() {
		return false, fmt.Errorf("confirmation required but stdin is not a terminal; use --yes")
	}

	fmt.Println()
	fmt.Printf("Are you sure you want to %s? [y/N]: ", action)

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}

	response := strings.ToLower(strings.TrimSpace(input))
	return response == "y" || response == "yes", nil
}

// ShowCancellationMessage reports a declined confirmation.
// Use this after RequireConfirmation returns false.
func ShowCancellationMessage(jsonMode bool) {
	if jsonMode {
		NewJSONResponse("", map[string]bool{"cancelled": true}).Print()
		return
	}
	fmt.Println()
	fmt.Println(DimStyle.Render("Cancelled."))
	fmt.Println()
}

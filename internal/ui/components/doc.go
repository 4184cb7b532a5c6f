// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides reusable UI components for the cognito TUI.

This package contains styled components built on top of the Bubble Tea and
Lip Gloss libraries, kept consistent with the cognito design language.

# Components

StatusBar (statusbar.go) - Bottom bar with backend health, model, context
usage, generation speed, and shortcut hints.

Welcome (welcome.go) - Startup screen with logo, version, and backend state.

Spinner (spinner.go) - Animated waiting indicator with an elapsed timer,
used while waiting for the first token.

DownloadBar (progress.go) - Model download progress rendered from the
download coordinator's snapshots.

ErrorDisplay (error.go) - Error box with per-error-type suggestions.

CodeBlock (codeblock.go) - Syntax-highlighted code blocks using Chroma.

ModelPicker / SessionPicker (picker.go) - Overlay lists for loading a local
model and resuming a saved conversation.

# Theme Integration

Components accept a *styles.Theme so colors adapt together:

	theme := styles.NewTheme()
	bar := components.NewStatusBar(theme)
	bar.SetWidth(120)
	bar.SetModel("mistral-7b.Q4_K_M")
	view := bar.View()

Components that react to terminal resize expose SetSize or SetWidth; the
chat model forwards tea.WindowSizeMsg dimensions to them.
*/
package components

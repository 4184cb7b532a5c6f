// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides UI components for the cognito TUI.
package components

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/ui/styles"
)

// =============================================================================
// ERROR DISPLAY MODEL
// =============================================================================

// ErrorDisplay is a styled error message component.
type ErrorDisplay struct {
	title       string
	message     string
	suggestions []string

	dismissible bool
	visible     bool
	createdAt   time.Time

	width int
}

// NewError creates an error display with title and message.
func NewError(title, message string) ErrorDisplay {
	return ErrorDisplay{
		title:       title,
		message:     message,
		dismissible: true,
		visible:     true,
		createdAt:   time.Now(),
	}
}

// NewErrorWithSuggestions creates an error with helpful suggestions.
func NewErrorWithSuggestions(title, message string, suggestions []string) ErrorDisplay {
	e := NewError(title, message)
	e.suggestions = suggestions
	return e
}

// NewBackendError creates an error display for a backend failure, with a
// title and suggestions derived from the error type.
func NewBackendError(err error) ErrorDisplay {
	return NewErrorWithSuggestions(TitleFor(err), err.Error(), SuggestionsFor(err))
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// TitleFor maps a backend error to a short display title.
func TitleFor(err error) string {
	switch {
	case backend.IsLaunchError(err):
		return "Backend Failed to Start"
	case backend.IsNotRunning(err):
		return "Backend Not Running"
	case backend.IsTimeout(err):
		return "Request Timed Out"
	case backend.IsNoModelLoaded(err):
		return "No Model Loaded"
	case backend.IsNotFound(err):
		return "Not Found"
	case backend.IsBackendError(err):
		return "Backend Error"
	default:
		return "Error"
	}
}

// SuggestionsFor maps a backend error to actionable next steps.
func SuggestionsFor(err error) []string {
	switch {
	case backend.IsLaunchError(err):
		return []string{
			"Check that Python and the backend are installed",
			"Run 'cognito doctor' to diagnose the environment",
			"Check the log file for the process output",
		}
	case backend.IsNotRunning(err):
		return []string{
			"Wait a moment, the backend may still be starting",
			"Run 'cognito status' to check backend health",
			"Check backend.mode and backend.port in the config",
		}
	case backend.IsTimeout(err):
		return []string{
			"Try again",
			"Large models can take a while to load",
			"Use a smaller quantization if this keeps happening",
		}
	case backend.IsNoModelLoaded(err):
		return []string{
			"Load a model with /load <name>",
			"List local models with /models",
			"Download one with 'cognito models download <repo>'",
		}
	case backend.IsNotFound(err):
		return []string{
			"Check the name for typos",
			"List what exists with /models or 'cognito models'",
		}
	case backend.IsBackendError(err):
		return []string{
			"Check the backend log for details",
			"Restart with 'cognito' if the backend is wedged",
		}
	default:
		return nil
	}
}

// =============================================================================
// STATE MANAGEMENT
// =============================================================================

// Show displays the error.
func (e *ErrorDisplay) Show() {
	e.visible = true
	e.createdAt = time.Now()
}

// Hide hides the error.
func (e *ErrorDisplay) Hide() {
	e.visible = false
}

// IsVisible returns whether the error is visible.
func (e *ErrorDisplay) IsVisible() bool {
	return e.visible
}

// IsDismissible returns whether the error can be dismissed.
func (e *ErrorDisplay) IsDismissible() bool {
	return e.dismissible
}

// GetTitle returns the error title.
func (e *ErrorDisplay) GetTitle() string {
	return e.title
}

// GetMessage returns the error message.
func (e *ErrorDisplay) GetMessage() string {
	return e.message
}

// GetSuggestions returns the error suggestions.
func (e *ErrorDisplay) GetSuggestions() []string {
	return e.suggestions
}

// SetSize sets the display width.
func (e *ErrorDisplay) SetSize(width int) {
	e.width = width
}

// =============================================================================
// RENDERING
// =============================================================================

// View renders the error box.
func (e ErrorDisplay) View(theme *styles.Theme) string {
	if !e.visible {
		return ""
	}

	var b strings.Builder

	b.WriteString(theme.ErrorTitle.Render(styles.StatusIndicators.Error + " " + e.title))
	b.WriteString("\n\n")
	b.WriteString(theme.ErrorMessage.Render(e.message))

	if len(e.suggestions) > 0 {
		b.WriteString("\n")
		for _, s := range e.suggestions {
			b.WriteString("\n")
			b.WriteString(theme.ErrorSuggestion.Render("- " + s))
		}
	}

	if e.dismissible {
		b.WriteString("\n\n")
		b.WriteString(theme.ErrorTip.Render("Press Esc to dismiss"))
	}

	box := theme.ErrorBox
	if e.width > 0 {
		maxWidth := e.width - 4
		if maxWidth < 20 {
			maxWidth = 20
		}
		box = box.MaxWidth(maxWidth)
	}

	return box.Render(b.String())
}

// RenderErrorBanner renders a one-line error summary for narrow layouts.
func RenderErrorBanner(err error, width int) string {
	line := styles.RenderError(TitleFor(err) + ": " + err.Error())
	if width > 0 {
		return lipgloss.NewStyle().MaxWidth(width).Render(line)
	}
	return line
}

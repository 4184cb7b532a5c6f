// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides UI components for the cognito TUI.
package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/ui/styles"
	"github.com/jeranaias/cognito-tui/internal/util"
)

// =============================================================================
// STATUS BAR COMPONENT
// =============================================================================

// Status represents the current application status.
type Status int

const (
	StatusReady Status = iota
	StatusStreaming
	StatusThinking
	StatusLoading
	StatusError
)

// String returns the display string for the status.
func (s Status) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusStreaming:
		return "Streaming..."
	case StatusThinking:
		return "Thinking..."
	case StatusLoading:
		return "Loading..."
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Icon returns a shape indicator for the status.
func (s Status) Icon() string {
	switch s {
	case StatusReady:
		return styles.StatusIndicators.Success
	case StatusStreaming:
		return "~"
	case StatusThinking, StatusLoading:
		return styles.StatusIndicators.Pending
	case StatusError:
		return styles.StatusIndicators.Error
	default:
		return "?"
	}
}

// StatusBar is the bottom status bar: backend health, model, context usage.
type StatusBar struct {
	ModelName     string
	Health        backend.HealthSnapshot
	TokenCount    int
	MaxTokens     int
	TokensPerSec  float64
	Status        Status
	Width         int
	ShowShortcuts bool

	theme *styles.Theme
}

// NewStatusBar creates a new StatusBar component.
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{
		MaxTokens:     8192,
		Status:        StatusReady,
		Width:         80,
		ShowShortcuts: true,
		theme:         theme,
	}
}

// SetWidth sets the available width.
func (s *StatusBar) SetWidth(width int) {
	s.Width = width
}

// SetTokenUsage updates the context token counters.
func (s *StatusBar) SetTokenUsage(used, max int) {
	s.TokenCount = used
	if max > 0 {
		s.MaxTokens = max
	}
}

// SetHealth updates the backend health snapshot.
func (s *StatusBar) SetHealth(snap backend.HealthSnapshot) {
	s.Health = snap
}

// SetStatus updates the application status.
func (s *StatusBar) SetStatus(status Status) {
	s.Status = status
}

// SetModel updates the displayed model name.
func (s *StatusBar) SetModel(modelName string) {
	s.ModelName = modelName
}

// SetTokensPerSec updates the generation speed readout.
func (s *StatusBar) SetTokensPerSec(tps float64) {
	s.TokensPerSec = tps
}

// =============================================================================
// RENDERING
// =============================================================================

// View renders the status bar for the current width.
func (s *StatusBar) View() string {
	switch {
	case s.Width < 60:
		return s.viewNarrow()
	case s.Width < 100:
		return s.viewMedium()
	default:
		return s.viewWide()
	}
}

// viewNarrow renders only the essentials: health dot and model.
func (s *StatusBar) viewNarrow() string {
	parts := []string{
		s.renderHealthBadge(),
		s.modelDisplay(20),
	}
	return s.theme.StatusBar.Width(s.Width).Render(strings.Join(parts, " "))
}

// viewMedium adds context usage and status.
func (s *StatusBar) viewMedium() string {
	parts := []string{
		s.renderHealthBadge(),
		s.modelDisplay(28),
		s.renderContextPercent(),
		s.Status.Icon() + " " + s.Status.String(),
	}
	return s.theme.StatusBar.Width(s.Width).Render(strings.Join(parts, " | "))
}

// viewWide adds the context gauge, speed, and shortcut hints.
func (s *StatusBar) viewWide() string {
	parts := []string{
		s.renderHealthBadge(),
		s.modelDisplay(36),
		s.renderContextBar(),
		s.Status.Icon() + " " + s.Status.String(),
	}

	if s.TokensPerSec > 0 {
		parts = append(parts, util.FloatToStringPrec(s.TokensPerSec, 1)+" tok/s")
	}

	left := strings.Join(parts, " | ")

	if s.ShowShortcuts {
		shortcuts := s.renderShortcuts()
		gap := s.Width - lipgloss.Width(left) - lipgloss.Width(shortcuts) - 4
		if gap > 0 {
			return s.theme.StatusBar.Width(s.Width).Render(
				left + strings.Repeat(" ", gap) + shortcuts)
		}
	}

	return s.theme.StatusBar.Width(s.Width).Render(left)
}

// renderHealthBadge renders the backend health dot and label.
func (s *StatusBar) renderHealthBadge() string {
	switch s.Health.State {
	case backend.HealthOnline:
		if s.Health.ModelLoaded() {
			return s.theme.BackendUp.Render("* backend up")
		}
		return s.theme.BackendUp.Render("* up (no model)")
	case backend.HealthOffline:
		return s.theme.BackendDown.Render("* backend down")
	default:
		return s.theme.BackendStarting.Render("* starting")
	}
}

// modelDisplay returns the model name truncated to fit.
func (s *StatusBar) modelDisplay(maxLen int) string {
	name := s.ModelName
	if name == "" {
		name = "no model"
	}
	return util.TruncateRunes(name, maxLen)
}

// renderContextBar renders a small gauge of context window usage.
func (s *StatusBar) renderContextBar() string {
	const barWidth = 10

	percent := s.contextPercent()
	filled := int(percent / 100 * barWidth)
	if filled > barWidth {
		filled = barWidth
	}

	bar := strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)

	style := s.theme.StatsValue
	if percent >= 90 {
		style = s.theme.BackendDown
	} else if percent >= 75 {
		style = s.theme.BackendStarting
	}

	return style.Render("[" + bar + "] " + util.IntToStr(int(percent)) + "%")
}

// renderContextPercent renders just the percentage for medium layouts.
func (s *StatusBar) renderContextPercent() string {
	return util.IntToStr(int(s.contextPercent())) + "% ctx"
}

// contextPercent computes context usage as a percentage.
func (s *StatusBar) contextPercent() float64 {
	if s.MaxTokens <= 0 {
		return 0
	}
	p := float64(s.TokenCount) / float64(s.MaxTokens) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// renderShortcuts renders the key hint cluster.
func (s *StatusBar) renderShortcuts() string {
	pairs := []struct{ key, desc string }{
		{"/help", "commands"},
		{"Esc", "cancel"},
		{"Ctrl+C", "quit"},
	}

	var parts []string
	for _, p := range pairs {
		parts = append(parts,
			s.theme.ShortcutKey.Render(p.key)+" "+s.theme.ShortcutDesc.Render(p.desc))
	}
	return strings.Join(parts, "  ")
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/ui/styles"
)

// =============================================================================
// WELCOME SCREEN
// =============================================================================

// Welcome is the startup screen shown until the first keypress.
type Welcome struct {
	version   string
	modelName string
	health    backend.HealthSnapshot

	width  int
	height int

	theme *styles.Theme
}

// NewWelcome creates a new welcome screen.
func NewWelcome(theme *styles.Theme) Welcome {
	return Welcome{
		version: "dev",
		theme:   theme,
	}
}

// SetVersion sets the version string.
func (w *Welcome) SetVersion(version string) {
	w.version = version
}

// SetModelName sets the model name.
func (w *Welcome) SetModelName(name string) {
	w.modelName = name
}

// SetHealth updates the backend health snapshot.
func (w *Welcome) SetHealth(snap backend.HealthSnapshot) {
	w.health = snap
}

// SetSize updates the dimensions.
func (w *Welcome) SetSize(width, height int) {
	w.width = width
	w.height = height
}

// Init initializes the welcome screen.
func (w Welcome) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (w Welcome) Update(msg tea.Msg) (Welcome, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w.width = msg.Width
		w.height = msg.Height
	}
	return w, nil
}

// View renders the welcome screen centered in the terminal.
func (w Welcome) View() string {
	width := w.width
	if width == 0 {
		width = 80
	}
	height := w.height
	if height == 0 {
		height = 24
	}

	boxWidth := 56
	if boxWidth > width-4 {
		boxWidth = width - 4
	}
	if boxWidth < 36 {
		boxWidth = 36
	}

	content := w.renderLogo()
	content += "\n\n" + w.renderVersion()
	content += "\n\n" + w.renderSystemInfo()
	content += "\n\n" + w.renderPressKey()

	box := lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(styles.Purple).
		Padding(1, 4).
		Width(boxWidth).
		Align(lipgloss.Center).
		Render(content)

	if lipgloss.Height(box) >= height {
		return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Top, box)
	}
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

// =============================================================================
// RENDER HELPERS
// =============================================================================

// renderLogo renders the ASCII art logo.
func (w Welcome) renderLogo() string {
	logoStyle := lipgloss.NewStyle().
		Foreground(styles.Cyan).
		Bold(true)

	if w.width >= 60 {
		logo := `  ____ ___   ____ _   _ ___ _____ ___
 / ___/ _ \ / ___| \ | |_ _|_   _/ _ \
| |  | | | | |  _|  \| || |  | || | | |
| |__| |_| | |_| | |\  || |  | || |_| |
 \____\___/ \____|_| \_|___| |_| \___/`
		return logoStyle.Render(logo)
	}

	return logoStyle.Render("cognito")
}

// renderVersion renders the version subtitle.
func (w Welcome) renderVersion() string {
	return lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Italic(true).
		Render("Local LLM Chat v" + w.version)
}

// renderSystemInfo renders model and backend state lines.
func (w Welcome) renderSystemInfo() string {
	labelStyle := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Width(9)

	valueStyle := lipgloss.NewStyle().
		Foreground(styles.Cyan).
		Bold(true)

	modelName := w.modelName
	if modelName == "" {
		modelName = "none loaded"
	}

	lines := []string{
		labelStyle.Render("Model:  ") + valueStyle.Render(modelName),
		labelStyle.Render("Backend:") + " " + w.renderBackendState(),
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderBackendState renders the backend health with appropriate color.
func (w Welcome) renderBackendState() string {
	switch w.health.State {
	case backend.HealthOnline:
		return lipgloss.NewStyle().Foreground(styles.Emerald).Bold(true).Render("online")
	case backend.HealthOffline:
		return lipgloss.NewStyle().Foreground(styles.Rose).Bold(true).Render("offline")
	default:
		return lipgloss.NewStyle().Foreground(styles.Amber).Bold(true).Render("starting...")
	}
}

// renderPressKey renders the "press any key" prompt.
func (w Welcome) renderPressKey() string {
	return lipgloss.NewStyle().
		Foreground(styles.Purple).
		Render("Press any key to start chatting...")
}

// =============================================================================
// KEYBOARD SHORTCUT HELP
// =============================================================================

// KeyboardShortcuts returns a formatted list of keyboard shortcuts.
func KeyboardShortcuts() string {
	keyStyle := lipgloss.NewStyle().
		Foreground(styles.Cyan).
		Bold(true).
		Width(12)

	descStyle := lipgloss.NewStyle().
		Foreground(styles.TextSecondary)

	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send message"},
		{"Esc", "Cancel stream / dismiss"},
		{"Ctrl+C", "Quit"},
		{"Ctrl+L", "Clear conversation"},
		{"Up/Down", "Scroll messages"},
		{"PgUp/PgDn", "Page scroll"},
	}

	lines := make([]string, len(shortcuts))
	for i, s := range shortcuts {
		lines[i] = keyStyle.Render(s.key) + descStyle.Render(s.desc)
	}

	titleStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary).
		Bold(true)

	return titleStyle.Render("Keyboard Shortcuts") + "\n" +
		lipgloss.JoinVertical(lipgloss.Left, lines...)
}

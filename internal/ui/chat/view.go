// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file contains the rendering logic for the chat interface: the main
// layout, the message transcript, and the header and input areas.
package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/cognito-tui/internal/model"
	"github.com/jeranaias/cognito-tui/internal/ui/components"
	"github.com/jeranaias/cognito-tui/internal/ui/styles"
)

// mdCache holds the glamour renderer behind a pointer shared by every copy
// of the model, so the renderer survives Bubble Tea's value passing and is
// only rebuilt when the wrap width changes. nil means markdown is off.
type mdCache struct {
	renderer *glamour.TermRenderer
	width    int
	broken   bool
}

func newMDCache(enabled bool) *mdCache {
	if !enabled {
		return nil
	}
	return &mdCache{}
}

// =============================================================================
// MAIN RENDER
// =============================================================================

// renderChat renders the complete chat view.
// Layout: header (1 line) + [download bar] + messages (viewport) + input area
// + status bar. The viewport height is pre-calculated in handleResize with
// conservative constants; this function measures actual heights and corrects
// on mismatch so the stack always fills the terminal exactly.
func (m Model) renderChat() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.state == StateWelcome {
		return m.welcome.View()
	}

	// Full-screen overlays.
	if m.modelPicker.IsVisible() {
		return m.modelPicker.View()
	}
	if m.sessionPicker.IsVisible() {
		return m.sessionPicker.View()
	}
	if m.state == StateError && m.errorDisplay.IsVisible() {
		return lipgloss.Place(
			m.width, m.height,
			lipgloss.Center, lipgloss.Center,
			m.errorDisplay.View(m.theme),
		)
	}

	header := m.renderHeader()
	input := m.renderInput()
	status := m.statusBar.View()

	var download string
	if m.downloadBar.IsVisible() {
		download = m.downloadBar.View()
	}

	fixed := lipgloss.Height(header) + lipgloss.Height(input) + lipgloss.Height(status)
	if download != "" {
		fixed += lipgloss.Height(download)
	}

	available := m.height - fixed
	if available < 1 {
		available = 1
	}

	messages := m.viewport.View()
	if lipgloss.Height(messages) != available {
		messages = lipgloss.NewStyle().
			Height(available).
			MaxHeight(available).
			Width(m.width).
			Render(messages)
	}

	if download != "" {
		return lipgloss.JoinVertical(lipgloss.Left, header, download, messages, input, status)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, messages, input, status)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	width := m.width
	if width <= 0 {
		width = 80
	}

	title := m.theme.HeaderTitle.Render("cognito")

	name := m.modelName
	if name == "" {
		name = "no model"
	}
	modelInfo := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Render(" | " + name)

	var stateIcon string
	switch m.state {
	case StateStreaming:
		stateIcon = lipgloss.NewStyle().
			Foreground(styles.Emerald).
			Render(" " + styles.StatusIndicators.Pending)
	case StateError:
		stateIcon = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Render(" " + styles.StatusIndicators.Error)
	default:
		stateIcon = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Render(" " + styles.StatusIndicators.Success)
	}

	left := title + modelInfo + stateIcon

	// Transient notices sit on the right edge of the header bar.
	if m.statusMsg != "" {
		notice := lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Italic(true).
			Render(m.statusMsg)
		gap := width - lipgloss.Width(left) - lipgloss.Width(notice) - 4
		if gap > 0 {
			left += strings.Repeat(" ", gap) + notice
		}
	}

	return lipgloss.NewStyle().
		Background(styles.SurfaceDim).
		Width(width).
		Padding(0, 1).
		Render(left)
}

// =============================================================================
// MESSAGES
// =============================================================================

// renderMessages renders the transcript for the viewport.
func (m *Model) renderMessages() string {
	if m.conversation == nil || m.conversation.IsEmpty() {
		return m.renderEmptyState()
	}

	var parts []string
	messages := m.conversation.GetHistory()

	for i, msg := range messages {
		rendered := m.renderMessage(msg, i == len(messages)-1)
		if rendered != "" {
			parts = append(parts, rendered)
		}
	}

	if m.state == StateStreaming && m.isThinking {
		parts = append(parts, lipgloss.NewStyle().MarginLeft(2).Render(m.spin.View()))
	}

	return strings.Join(parts, "\n")
}

func (m *Model) renderMessage(msg *model.Message, isLast bool) string {
	switch msg.Role {
	case model.RoleUser:
		return m.renderUserMessage(msg)
	case model.RoleAssistant:
		return m.renderAssistantMessage(msg, isLast)
	case model.RoleSystem:
		return m.renderSystemMessage(msg)
	default:
		return msg.GetDisplayContent()
	}
}

func (m *Model) renderUserMessage(msg *model.Message) string {
	maxWidth := m.contentWidth()

	bubble := m.theme.UserBubble.MaxWidth(maxWidth)
	rendered := bubble.Render(wrapText(msg.GetDisplayContent(), maxWidth-4))

	// User messages hug the right edge.
	marginLeft := m.width - lipgloss.Width(rendered) - 4
	if marginLeft < 0 {
		marginLeft = 0
	}

	return lipgloss.NewStyle().
		MarginLeft(marginLeft).
		MarginTop(1).
		MarginBottom(1).
		Render(rendered)
}

func (m *Model) renderAssistantMessage(msg *model.Message, isLast bool) string {
	maxWidth := m.contentWidth()
	content := msg.GetDisplayContent()

	if strings.TrimSpace(content) == "" && !msg.IsStreaming {
		return ""
	}

	if msg.IsStreaming && m.state == StateStreaming && isLast {
		if content == "" {
			content = "_"
		} else {
			content += lipgloss.NewStyle().
				Foreground(styles.Purple).
				Blink(true).
				Render("_")
		}
	}

	// Finished responses get the full markdown treatment; the in-flight
	// message keeps the cheap path so rendering stays ahead of the stream.
	var rendered string
	if !msg.IsStreaming {
		rendered, _ = m.markdownRender(content, maxWidth)
	}
	if rendered == "" {
		rendered = m.renderAssistantContent(content, maxWidth)
	}

	var statsLine string
	if !msg.IsStreaming && msg.TotalDuration > 0 {
		statsLine = "\n" + m.theme.StatsLabel.Render(msg.FormatStats())
	}

	return lipgloss.NewStyle().
		MarginTop(1).
		MarginBottom(1).
		MarginLeft(2).
		Render(rendered + statsLine)
}

// renderAssistantContent renders assistant text, routing fenced code blocks
// through the syntax highlighter.
func (m *Model) renderAssistantContent(content string, maxWidth int) string {
	if !strings.Contains(content, "```") {
		bubble := m.theme.AssistantBubble.MaxWidth(maxWidth)
		return bubble.Render(wrapText(content, maxWidth-4))
	}
	return components.ParseCodeBlocks(content, maxWidth)
}

// markdownRender renders text through glamour. Returns ok=false when
// markdown is disabled or the renderer cannot be built, in which case the
// caller falls back to the plain path.
func (m *Model) markdownRender(content string, maxWidth int) (string, bool) {
	c := m.md
	if c == nil || c.broken || content == "" {
		return "", false
	}

	if c.renderer == nil || c.width != maxWidth {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(maxWidth),
		)
		if err != nil {
			c.broken = true
			return "", false
		}
		c.renderer = r
		c.width = maxWidth
	}

	out, err := c.renderer.Render(content)
	if err != nil {
		return "", false
	}
	return strings.TrimRight(out, "\n"), true
}

func (m *Model) renderSystemMessage(msg *model.Message) string {
	maxWidth := m.contentWidth()

	bubble := m.theme.SystemBubble.MaxWidth(maxWidth)
	rendered := bubble.Render(wrapText(msg.GetDisplayContent(), maxWidth-4))

	return lipgloss.NewStyle().
		MarginTop(1).
		MarginBottom(1).
		MarginLeft(2).
		Render(rendered)
}

func (m *Model) renderEmptyState() string {
	hint := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Italic(true).
		Render("No messages yet. Type below to start, or /help for commands.")

	return lipgloss.NewStyle().
		MarginTop(2).
		MarginLeft(2).
		Render(hint)
}

// contentWidth returns the wrap width for message bubbles.
func (m *Model) contentWidth() int {
	maxWidth := m.width - 8
	if maxWidth < 10 {
		maxWidth = 10
	}
	return maxWidth
}

// =============================================================================
// INPUT AREA
// =============================================================================

func (m Model) renderInput() string {
	width := m.width - 2
	if width < 10 {
		width = 10
	}

	if m.state == StateStreaming {
		hint := m.theme.InputPlaceholder.Render("Streaming... press Esc to cancel")
		return m.theme.InputContainer.Width(width).Render(hint)
	}

	return m.theme.InputContainer.Width(width).Render(m.input.View())
}

// =============================================================================
// TEXT WRAPPING
// =============================================================================

// wrapText wraps text to a maximum width, preserving existing line breaks
// and breaking long lines at spaces. Rune-based so multi-byte characters do
// not split.
func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}

	var result strings.Builder
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		if i > 0 {
			result.WriteString("\n")
		}

		runes := []rune(line)
		for len(runes) > maxWidth {
			breakPoint := maxWidth
			for j := maxWidth; j > 0; j-- {
				if runes[j] == ' ' {
					breakPoint = j
					break
				}
			}

			result.WriteString(string(runes[:breakPoint]))
			result.WriteString("\n")
			runes = []rune(strings.TrimLeft(string(runes[breakPoint:]), " "))
		}
		result.WriteString(string(runes))
	}

	return result.String()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/cognito-tui/internal/model"
	"github.com/jeranaias/cognito-tui/internal/storage"
	"github.com/jeranaias/cognito-tui/internal/ui/styles"
	"github.com/jeranaias/cognito-tui/internal/util"
)

// =============================================================================
// MODEL PICKER
// =============================================================================

// ModelPicker is an overlay for choosing a local model file to load.
// Typing narrows the list with fuzzy matching on the display name.
type ModelPicker struct {
	all      []model.LocalModelFile // full scan result
	models   []model.LocalModelFile // visible rows after filtering
	filter   string
	selected int
	visible  bool

	width  int
	height int

	theme *styles.Theme
}

// NewModelPicker creates a new model picker.
func NewModelPicker(theme *styles.Theme) *ModelPicker {
	return &ModelPicker{theme: theme}
}

// SetModels replaces the picker's model list and re-applies the filter.
func (p *ModelPicker) SetModels(models []model.LocalModelFile) {
	p.all = models
	p.applyFilter()
}

// SetSize updates the overlay dimensions.
func (p *ModelPicker) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// Show makes the picker visible with a fresh filter.
func (p *ModelPicker) Show() {
	p.visible = true
	p.filter = ""
	p.applyFilter()
}

// Hide hides the picker.
func (p *ModelPicker) Hide() {
	p.visible = false
}

// IsVisible returns whether the picker is shown.
func (p *ModelPicker) IsVisible() bool {
	return p.visible
}

// Filter returns the active filter text.
func (p *ModelPicker) Filter() string {
	return p.filter
}

// TypeFilter appends a typed character to the filter.
func (p *ModelPicker) TypeFilter(r rune) {
	p.filter += string(r)
	p.applyFilter()
}

// BackspaceFilter removes the last character from the filter.
func (p *ModelPicker) BackspaceFilter() {
	if p.filter == "" {
		return
	}
	runes := []rune(p.filter)
	p.filter = string(runes[:len(runes)-1])
	p.applyFilter()
}

// applyFilter rebuilds the visible list. With no filter every model shows in
// scan order; otherwise rows are fuzzy-matched on the display name and ranked
// by score. Selection resets because the row under the cursor changes.
func (p *ModelPicker) applyFilter() {
	p.selected = 0

	if p.filter == "" {
		p.models = p.all
		return
	}

	type scoredModel struct {
		m     model.LocalModelFile
		score int
	}

	var hits []scoredModel
	for _, m := range p.all {
		if score, ok := FuzzyMatch(p.filter, m.DisplayName()); ok {
			hits = append(hits, scoredModel{m: m, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})

	p.models = make([]model.LocalModelFile, len(hits))
	for i, h := range hits {
		p.models[i] = h.m
	}
}

// MoveUp moves the selection up, wrapping at the top.
func (p *ModelPicker) MoveUp() {
	if len(p.models) == 0 {
		return
	}
	p.selected--
	if p.selected < 0 {
		p.selected = len(p.models) - 1
	}
}

// MoveDown moves the selection down, wrapping at the bottom.
func (p *ModelPicker) MoveDown() {
	if len(p.models) == 0 {
		return
	}
	p.selected++
	if p.selected >= len(p.models) {
		p.selected = 0
	}
}

// Selected returns the currently selected model, or nil when empty.
func (p *ModelPicker) Selected() *model.LocalModelFile {
	if p.selected < 0 || p.selected >= len(p.models) {
		return nil
	}
	return &p.models[p.selected]
}

// View renders the picker overlay.
func (p *ModelPicker) View() string {
	if !p.visible {
		return ""
	}

	var items []string
	for i, m := range p.models {
		items = append(items, p.renderModelItem(m, i == p.selected))
	}

	if len(items) == 0 {
		if p.filter != "" {
			items = append(items, p.theme.PickerMeta.Render("No models match '"+p.filter+"'."))
		} else {
			items = append(items, p.theme.PickerMeta.Render(
				"No models found. Use 'cognito models download <repo>' to fetch one."))
		}
	}

	title := "Load Model"
	if p.filter != "" {
		title += "  /" + p.filter
	}

	return p.renderBox(title, items, "Type to filter | Up/Down navigate | Enter select | Esc close")
}

// renderModelItem renders a single model row.
func (p *ModelPicker) renderModelItem(m model.LocalModelFile, selected bool) string {
	indicator := "  "
	style := p.theme.PickerItem
	if selected {
		indicator = "> "
		style = p.theme.PickerItemSelected
	}

	name := util.TruncateRunes(m.DisplayName(), 32)
	meta := m.SizeString()
	if q := m.QuantLabel(); q != "" {
		meta = q + "  " + meta
	}
	if m.RepoID != "" {
		// Ledger provenance; files placed manually have none.
		meta = util.TruncateRunes(m.RepoID, 22) + "  " + meta
	}

	return indicator + style.Render(name) + "  " + p.theme.PickerMeta.Render(meta)
}

// renderBox wraps picker content in the standard overlay box.
func (p *ModelPicker) renderBox(title string, items []string, helpText string) string {
	boxWidth := 60
	if p.width > 0 && p.width < boxWidth+10 {
		boxWidth = p.width - 10
	}
	if boxWidth < 40 {
		boxWidth = 40
	}

	headerStyle := lipgloss.NewStyle().
		Foreground(styles.Purple).
		Bold(true).
		Padding(0, 1)

	sepStyle := lipgloss.NewStyle().Foreground(styles.Overlay)
	separator := sepStyle.Render(strings.Repeat("-", boxWidth-4))

	helpStyle := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Padding(1, 0, 0, 0)
	help := helpStyle.Render(helpText)

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		headerStyle.Render(title),
		separator,
		strings.Join(items, "\n"),
		help,
	)

	box := p.theme.PickerBox.Width(boxWidth).Render(content)

	if p.width > 0 && p.height > 0 {
		return lipgloss.Place(
			p.width, p.height,
			lipgloss.Center, lipgloss.Center,
			box,
		)
	}

	return box
}

// =============================================================================
// SESSION PICKER
// =============================================================================

// SessionPicker is an overlay for choosing a saved conversation to resume.
type SessionPicker struct {
	sessions []storage.ConversationMeta
	selected int
	visible  bool

	width  int
	height int

	theme *styles.Theme
}

// NewSessionPicker creates a new session picker.
func NewSessionPicker(theme *styles.Theme) *SessionPicker {
	return &SessionPicker{theme: theme}
}

// SetSessions replaces the picker's session list and resets the selection.
func (p *SessionPicker) SetSessions(sessions []storage.ConversationMeta) {
	p.sessions = sessions
	p.selected = 0
}

// SetSize updates the overlay dimensions.
func (p *SessionPicker) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// Show makes the picker visible.
func (p *SessionPicker) Show() {
	p.visible = true
}

// Hide hides the picker.
func (p *SessionPicker) Hide() {
	p.visible = false
}

// IsVisible returns whether the picker is shown.
func (p *SessionPicker) IsVisible() bool {
	return p.visible
}

// MoveUp moves the selection up, wrapping at the top.
func (p *SessionPicker) MoveUp() {
	if len(p.sessions) == 0 {
		return
	}
	p.selected--
	if p.selected < 0 {
		p.selected = len(p.sessions) - 1
	}
}

// MoveDown moves the selection down, wrapping at the bottom.
func (p *SessionPicker) MoveDown() {
	if len(p.sessions) == 0 {
		return
	}
	p.selected++
	if p.selected >= len(p.sessions) {
		p.selected = 0
	}
}

// Selected returns the currently selected session, or nil when empty.
func (p *SessionPicker) Selected() *storage.ConversationMeta {
	if p.selected < 0 || p.selected >= len(p.sessions) {
		return nil
	}
	return &p.sessions[p.selected]
}

// View renders the picker overlay.
func (p *SessionPicker) View() string {
	if !p.visible {
		return ""
	}

	var items []string
	for i, s := range p.sessions {
		items = append(items, p.renderSessionItem(s, i == p.selected))
	}

	if len(items) == 0 {
		items = append(items, p.theme.PickerMeta.Render("No saved conversations yet."))
	}

	mp := &ModelPicker{theme: p.theme, width: p.width, height: p.height}
	return mp.renderBox("Resume Conversation", items, "Up/Down navigate | Enter select | Esc close")
}

// renderSessionItem renders a single session row.
func (p *SessionPicker) renderSessionItem(s storage.ConversationMeta, selected bool) string {
	indicator := "  "
	style := p.theme.PickerItem
	if selected {
		indicator = "> "
		style = p.theme.PickerItemSelected
	}

	title := s.Summary
	if title == "" {
		title = s.Preview
	}
	if title == "" {
		title = s.ID
	}

	meta := util.IntToStr(s.MessageCount) + " msgs  " +
		s.UpdatedAt.Format("Jan 2 15:04")

	return indicator + style.Render(util.TruncateRunes(title, 34)) + "  " +
		p.theme.PickerMeta.Render(meta)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/ui/styles"
	"github.com/jeranaias/cognito-tui/internal/util"
)

// =============================================================================
// DOWNLOAD PROGRESS BAR
// =============================================================================

// DownloadBar renders model download progress from coordinator snapshots.
type DownloadBar struct {
	progress backend.DownloadProgress
	visible  bool

	width int
	theme *styles.Theme
}

// NewDownloadBar creates a new download progress bar.
func NewDownloadBar(theme *styles.Theme) *DownloadBar {
	return &DownloadBar{
		width: 80,
		theme: theme,
	}
}

// SetProgress updates the bar with a new snapshot and makes it visible.
func (d *DownloadBar) SetProgress(p backend.DownloadProgress) {
	d.progress = p
	d.visible = true
}

// Hide hides the bar.
func (d *DownloadBar) Hide() {
	d.visible = false
}

// IsVisible returns whether the bar should be rendered.
func (d *DownloadBar) IsVisible() bool {
	return d.visible
}

// IsTerminal reports whether the displayed download has finished.
func (d *DownloadBar) IsTerminal() bool {
	return d.progress.State.Terminal()
}

// SetWidth sets the available width.
func (d *DownloadBar) SetWidth(width int) {
	d.width = width
}

// View renders the download bar.
func (d *DownloadBar) View() string {
	if !d.visible {
		return ""
	}

	switch d.progress.State {
	case backend.DownloadComplete:
		return d.theme.DownloadInfo.Render(
			styles.StatusIndicators.Success + " Downloaded " + d.progress.Filename)
	case backend.DownloadFailed:
		msg := "download failed"
		if d.progress.Err != nil {
			msg = d.progress.Err.Error()
		}
		return d.theme.ErrorMessage.Render(styles.StatusIndicators.Error + " " + msg)
	case backend.DownloadCanceled:
		return d.theme.DownloadInfo.Render(styles.StatusIndicators.Warning + " Download canceled")
	case backend.DownloadStarting:
		return d.theme.DownloadInfo.Render("Starting download of " + d.progress.RepoID + "...")
	}

	return d.renderActive()
}

// renderActive renders the in-flight progress gauge.
func (d *DownloadBar) renderActive() string {
	barWidth := d.width - 40
	if barWidth < 10 {
		barWidth = 10
	}
	if barWidth > 40 {
		barWidth = 40
	}

	percent := d.progress.Percent
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}

	bar := d.theme.DownloadBar.Render(
		"[" + strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled) + "]")

	percentText := d.theme.DownloadPercent.Render(
		util.FloatToStringPrec(percent, 1) + "%")

	sizeText := d.theme.DownloadInfo.Render(d.renderSizes())

	name := d.progress.Filename
	if name == "" {
		name = d.progress.RepoID
	}
	nameText := d.theme.DownloadInfo.Render(util.TruncateRunes(name, 28))

	return lipgloss.JoinHorizontal(lipgloss.Center,
		nameText, " ", bar, " ", percentText, " ", sizeText)
}

// renderSizes renders "512.0 MB / 4.1 GB" when totals are known.
func (d *DownloadBar) renderSizes() string {
	if d.progress.Total <= 0 {
		return backend.FormatSize(d.progress.Downloaded)
	}
	total := d.progress.TotalFormatted
	if total == "" {
		total = backend.FormatSize(d.progress.Total)
	}
	return backend.FormatSize(d.progress.Downloaded) + " / " + total
}

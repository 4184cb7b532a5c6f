// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"errors"
	"strings"
	"testing"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/ui/styles"
)

// =============================================================================
// DOWNLOAD BAR TESTS
// =============================================================================

func TestDownloadBarVisibility(t *testing.T) {
	bar := NewDownloadBar(styles.NewTheme())

	if bar.IsVisible() {
		t.Error("new bar should be hidden")
	}
	if bar.View() != "" {
		t.Error("hidden bar should render nothing")
	}

	bar.SetProgress(backend.DownloadProgress{State: backend.DownloadActive})
	if !bar.IsVisible() {
		t.Error("SetProgress should make the bar visible")
	}

	bar.Hide()
	if bar.IsVisible() {
		t.Error("Hide() should hide the bar")
	}
}

func TestDownloadBarActiveView(t *testing.T) {
	bar := NewDownloadBar(styles.NewTheme())
	bar.SetWidth(100)
	bar.SetProgress(backend.DownloadProgress{
		RepoID:     "TheBloke/Mistral-7B-GGUF",
		Filename:   "mistral-7b.Q4_K_M.gguf",
		State:      backend.DownloadActive,
		Downloaded: 512 * 1024 * 1024,
		Total:      4 * 1024 * 1024 * 1024,
		Percent:    12.5,
	})

	view := bar.View()
	if !strings.Contains(view, "12.5%") {
		t.Errorf("active view %q should contain the percent", view)
	}
	if !strings.Contains(view, "512.0 MB") {
		t.Errorf("active view %q should contain downloaded bytes", view)
	}
	if !strings.Contains(view, "mistral-7b") {
		t.Errorf("active view %q should contain the filename", view)
	}
}

func TestDownloadBarStartingView(t *testing.T) {
	bar := NewDownloadBar(styles.NewTheme())
	bar.SetProgress(backend.DownloadProgress{
		RepoID: "TheBloke/Mistral-7B-GGUF",
		State:  backend.DownloadStarting,
	})

	if !strings.Contains(bar.View(), "Starting download") {
		t.Error("starting state should render a starting message")
	}
}

func TestDownloadBarTerminalViews(t *testing.T) {
	theme := styles.NewTheme()

	bar := NewDownloadBar(theme)
	bar.SetProgress(backend.DownloadProgress{
		Filename: "model.gguf",
		State:    backend.DownloadComplete,
	})
	if !strings.Contains(bar.View(), "Downloaded model.gguf") {
		t.Error("complete state should render the filename")
	}
	if !bar.IsTerminal() {
		t.Error("complete state should be terminal")
	}

	bar.SetProgress(backend.DownloadProgress{
		State: backend.DownloadFailed,
		Err:   errors.New("connection reset"),
	})
	if !strings.Contains(bar.View(), "connection reset") {
		t.Error("failed state should render the error")
	}

	bar.SetProgress(backend.DownloadProgress{State: backend.DownloadCanceled})
	if !strings.Contains(bar.View(), "canceled") {
		t.Error("canceled state should say so")
	}
}

func TestDownloadBarUnknownTotal(t *testing.T) {
	bar := NewDownloadBar(styles.NewTheme())
	bar.SetProgress(backend.DownloadProgress{
		Filename:   "model.gguf",
		State:      backend.DownloadActive,
		Downloaded: 1024 * 1024,
		Total:      0,
	})

	view := bar.View()
	if !strings.Contains(view, "1.0 MB") {
		t.Errorf("view %q should show downloaded bytes without a total", view)
	}
	if strings.Contains(view, " / ") {
		t.Errorf("view %q should not show a total separator when total is unknown", view)
	}
}

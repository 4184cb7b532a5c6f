// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation and download persistence for cognito.
package storage

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// newTestWatcher starts a watcher with a short debounce, skipping the test
// when the platform has no usable fsnotify backend.
func newTestWatcher(t *testing.T, dir string, onChange func()) *ModelsWatcher {
	t.Helper()
	mw, err := NewModelsWatcher(dir, 100*time.Millisecond, onChange)
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	t.Cleanup(func() { mw.Close() })
	return mw
}

// waitForSignal waits for one notification or fails the test.
func waitForSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher notification")
	}
}

func TestModelsWatcher_NotifiesOnCreate(t *testing.T) {
	dir := t.TempDir()
	ch := make(chan struct{}, 8)
	newTestWatcher(t, dir, func() { ch <- struct{}{} })

	if err := os.WriteFile(filepath.Join(dir, "mistral.gguf"), []byte("weights"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	waitForSignal(t, ch)
}

func TestModelsWatcher_NotifiesOnRemove(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "mistral.gguf")
	if err := os.WriteFile(modelPath, []byte("weights"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	ch := make(chan struct{}, 8)
	newTestWatcher(t, dir, func() { ch <- struct{}{} })

	if err := os.Remove(modelPath); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	waitForSignal(t, ch)
}

func TestModelsWatcher_IgnoresNonModelFiles(t *testing.T) {
	dir := t.TempDir()
	ch := make(chan struct{}, 8)
	newTestWatcher(t, dir, func() { ch <- struct{}{} })

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case <-ch:
		t.Fatal("watcher should ignore non-model files")
	case <-time.After(600 * time.Millisecond):
	}

	// The watcher is still alive for model files.
	if err := os.WriteFile(filepath.Join(dir, "model.gguf"), []byte("weights"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	waitForSignal(t, ch)
}

func TestModelsWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	var count int64
	ch := make(chan struct{}, 8)
	newTestWatcher(t, dir, func() {
		atomic.AddInt64(&count, 1)
		ch <- struct{}{}
	})

	// A burst of creates inside one debounce window.
	for _, name := range []string{"a.gguf", "b.gguf", "c.gguf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("weights"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	waitForSignal(t, ch)
	time.Sleep(700 * time.Millisecond)

	if got := atomic.LoadInt64(&count); got >= 3 {
		t.Errorf("Expected burst to be debounced, got %d notifications", got)
	}
}

func TestModelsWatcher_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	newTestWatcher(t, dir, func() {})

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !info.IsDir() {
		t.Error("Watcher should create the models directory")
	}
}

func TestIsModelFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"mistral.gguf", true},
		{"MISTRAL.GGUF", true},
		{"/models/llama-3.2.gguf", true},
		{"weights.bin", false},
		{"gguf", false},
		{"", false},
	}

	for _, tc := range tests {
		if got := isModelFile(tc.path); got != tc.want {
			t.Errorf("isModelFile(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

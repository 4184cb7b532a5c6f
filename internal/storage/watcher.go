// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation and download persistence for cognito.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// MODELS DIRECTORY WATCHER
// =============================================================================

// DefaultWatchDebounce batches bursts of file events (a download finishing,
// a bulk delete) into a single notification.
const DefaultWatchDebounce = 250 * time.Millisecond

// ModelsWatcher notifies when model files appear in or disappear from the
// models directory. The notification is a level signal; consumers re-scan
// the directory rather than tracking individual paths.
type ModelsWatcher struct {
	dir      string
	debounce time.Duration
	onChange func()

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	dirty      bool
	lastChange time.Time
}

// NewModelsWatcher watches dir for .gguf changes. onChange runs on the
// watcher goroutine once changes settle for the debounce window; it must not
// block. Callers should treat a construction error as "no watcher" and fall
// back to manual refresh.
func NewModelsWatcher(dir string, debounce time.Duration, onChange func()) (*ModelsWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	// The models dir may not exist until the first download.
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	mw := &ModelsWatcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		watcher:  watcher,
		ctx:      ctx,
		cancel:   cancel,
	}

	go mw.processEvents()
	go mw.processPending()

	return mw, nil
}

// Close stops watching and releases resources.
func (mw *ModelsWatcher) Close() error {
	mw.cancel()
	if mw.watcher != nil {
		return mw.watcher.Close()
	}
	return nil
}

// processEvents processes file system events.
func (mw *ModelsWatcher) processEvents() {
	for {
		select {
		case <-mw.ctx.Done():
			return

		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}

			if !isModelFile(event.Name) {
				continue
			}

			// Create covers new files and moves into the dir; Rename and
			// Remove cover files leaving it. Write events are ignored so a
			// file growing during a download does not spam notifications.
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				mw.markDirty()
			}

		case _, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			// Non-fatal; keep watching
		}
	}
}

// markDirty records a change and restarts the debounce window.
func (mw *ModelsWatcher) markDirty() {
	mw.mu.Lock()
	mw.dirty = true
	mw.lastChange = time.Now()
	mw.mu.Unlock()
}

// processPending fires the callback once changes settle for the debounce window.
func (mw *ModelsWatcher) processPending() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-mw.ctx.Done():
			return

		case <-ticker.C:
			mw.mu.Lock()
			fire := mw.dirty && time.Since(mw.lastChange) >= mw.debounce
			if fire {
				mw.dirty = false
			}
			mw.mu.Unlock()

			if fire && mw.onChange != nil {
				mw.onChange()
			}
		}
	}
}

// isModelFile reports whether path names a model weights file.
func isModelFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gguf")
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/cognito-tui/internal/backend"
)

// =============================================================================
// LOCAL MODEL FILES
// =============================================================================

// LocalModelFile describes a GGUF model file in the models directory.
type LocalModelFile struct {
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`

	// RepoID is the Hugging Face repository the file was downloaded from,
	// when the download ledger knows it. Empty for files placed manually.
	RepoID string `json:"repo_id,omitempty"`
}

// SizeString returns a human-readable file size.
func (m LocalModelFile) SizeString() string {
	return backend.FormatSize(m.SizeBytes)
}

// DisplayName returns the filename without the .gguf extension.
func (m LocalModelFile) DisplayName() string {
	name := m.Filename
	if ext := filepath.Ext(name); strings.EqualFold(ext, ".gguf") {
		name = name[:len(name)-len(ext)]
	}
	return name
}

// QuantLabel extracts the quantization tag from the filename, e.g. "Q4_K_M"
// from "mistral-7b-instruct-v0.2.Q4_K_M.gguf". Returns "" when no tag is
// recognizable.
func (m LocalModelFile) QuantLabel() string {
	name := m.DisplayName()
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '.' || r == '-'
	})

	for i := len(parts) - 1; i >= 0; i-- {
		token := strings.ToUpper(parts[i])
		if isQuantToken(token) {
			return token
		}
	}
	return ""
}

// isQuantToken reports whether a filename segment looks like a GGUF
// quantization tag (Q4_K_M, Q8_0, IQ2_XS, F16, BF16, ...).
func isQuantToken(token string) bool {
	switch token {
	case "F16", "F32", "BF16":
		return true
	}
	rest := token
	if strings.HasPrefix(rest, "IQ") {
		rest = rest[2:]
	} else if strings.HasPrefix(rest, "Q") {
		rest = rest[1:]
	} else {
		return false
	}
	return len(rest) > 0 && rest[0] >= '0' && rest[0] <= '9'
}

// =============================================================================
// DIRECTORY SCAN
// =============================================================================

// ScanModels lists the GGUF files in a directory, sorted by filename.
// A missing directory yields an empty list, not an error, because the
// models directory is only created on first download.
func ScanModels(dir string) ([]LocalModelFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var models []LocalModelFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), ".gguf") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// File vanished between ReadDir and Info, e.g. a deleted
			// partial download. Skip it rather than failing the scan.
			continue
		}

		models = append(models, LocalModelFile{
			Filename:  entry.Name(),
			Path:      filepath.Join(dir, entry.Name()),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].Filename < models[j].Filename
	})

	return models, nil
}

// AttachProvenance fills RepoID on each model from a filename-to-repo map,
// typically built from the download ledger.
func AttachProvenance(models []LocalModelFile, repos map[string]string) {
	for i := range models {
		if repo, ok := repos[models[i].Filename]; ok {
			models[i].RepoID = repo
		}
	}
}

// FindModel returns the model with the given filename, or nil.
func FindModel(models []LocalModelFile, filename string) *LocalModelFile {
	for i := range models {
		if models[i].Filename == filename {
			return &models[i]
		}
	}
	return nil
}

// TotalSize returns the combined size of all model files.
func TotalSize(models []LocalModelFile) int64 {
	var total int64
	for _, m := range models {
		total += m.SizeBytes
	}
	return total
}

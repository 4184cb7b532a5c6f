// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation and download persistence for cognito.
package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/cognito-tui/internal/backend"
)

// The ledger is the recorder the download coordinator persists through.
var _ backend.DownloadRecorder = (*Ledger)(nil)

// openTestLedger opens a ledger in a temp directory and closes it with the test.
func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := OpenLedger(filepath.Join(t.TempDir(), "cognito.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

// TestOpenLedger_CreatesDatabase verifies the database file and parent
// directory are created, and that reopening is idempotent.
func TestOpenLedger_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cognito.db")

	ledger, err := OpenLedger(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "database file should exist")

	require.NoError(t, ledger.Close())

	// Reopen against the existing schema.
	ledger, err = OpenLedger(path)
	require.NoError(t, err)
	require.NoError(t, ledger.Close())
}

// TestLedger_RecordLifecycle verifies the start/end row lifecycle including
// size capture from the downloaded file.
func TestLedger_RecordLifecycle(t *testing.T) {
	ledger := openTestLedger(t)

	id, err := ledger.RecordDownloadStart("TheBloke/Mistral-7B-GGUF", "mistral.gguf")
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	records, err := ledger.Downloads()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "downloading", records[0].State)
	require.False(t, records[0].Finished())
	require.False(t, records[0].StartedAt.IsZero())

	// A real file so RecordDownloadEnd can capture its size.
	modelPath := filepath.Join(t.TempDir(), "mistral.gguf")
	require.NoError(t, os.WriteFile(modelPath, make([]byte, 1024), 0644))

	require.NoError(t, ledger.RecordDownloadEnd(id, "complete", modelPath, ""))

	records, err = ledger.Downloads()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "complete", records[0].State)
	require.Equal(t, modelPath, records[0].Path)
	require.Equal(t, int64(1024), records[0].SizeBytes)
	require.Empty(t, records[0].Error)
	require.True(t, records[0].Finished())
}

// TestLedger_RecordFailure verifies failed downloads keep their error message.
func TestLedger_RecordFailure(t *testing.T) {
	ledger := openTestLedger(t)

	id, err := ledger.RecordDownloadStart("org/repo", "model.gguf")
	require.NoError(t, err)

	require.NoError(t, ledger.RecordDownloadEnd(id, "failed", "", "404 from hugging face"))

	rec, err := ledger.LatestByFilename("model.gguf")
	require.NoError(t, err)
	require.Equal(t, "failed", rec.State)
	require.Equal(t, "404 from hugging face", rec.Error)
	require.Zero(t, rec.SizeBytes)
}

// TestLedger_RecordEndUnknownID verifies ending a nonexistent row errors.
func TestLedger_RecordEndUnknownID(t *testing.T) {
	ledger := openTestLedger(t)

	err := ledger.RecordDownloadEnd(9999, "complete", "", "")
	require.ErrorIs(t, err, ErrDownloadNotFound)
}

// TestLedger_DownloadsNewestFirst verifies ordering of the download history.
func TestLedger_DownloadsNewestFirst(t *testing.T) {
	ledger := openTestLedger(t)

	for _, repo := range []string{"org/first", "org/second", "org/third"} {
		_, err := ledger.RecordDownloadStart(repo, "model.gguf")
		require.NoError(t, err)
	}

	records, err := ledger.Downloads()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "org/third", records[0].RepoID)
	require.Equal(t, "org/first", records[2].RepoID)
}

// TestLedger_LatestByFilename verifies the newest row wins and missing
// filenames report not found.
func TestLedger_LatestByFilename(t *testing.T) {
	ledger := openTestLedger(t)

	id1, err := ledger.RecordDownloadStart("org/repo", "model.gguf")
	require.NoError(t, err)
	require.NoError(t, ledger.RecordDownloadEnd(id1, "failed", "", "interrupted"))

	id2, err := ledger.RecordDownloadStart("org/repo", "model.gguf")
	require.NoError(t, err)
	require.NoError(t, ledger.RecordDownloadEnd(id2, "complete", "", ""))

	rec, err := ledger.LatestByFilename("model.gguf")
	require.NoError(t, err)
	require.Equal(t, id2, rec.ID)
	require.Equal(t, "complete", rec.State)

	_, err = ledger.LatestByFilename("unknown.gguf")
	require.ErrorIs(t, err, ErrDownloadNotFound)
}

// TestLedger_ProvenanceMap verifies the filename to repo join: only
// completed downloads count, and a re-download supersedes the old repo.
func TestLedger_ProvenanceMap(t *testing.T) {
	ledger := openTestLedger(t)

	id, err := ledger.RecordDownloadStart("org/mirror", "done.gguf")
	require.NoError(t, err)
	require.NoError(t, ledger.RecordDownloadEnd(id, "complete", "", ""))

	id, err = ledger.RecordDownloadStart("org/broken", "broken.gguf")
	require.NoError(t, err)
	require.NoError(t, ledger.RecordDownloadEnd(id, "failed", "", "disk full"))

	_, err = ledger.RecordDownloadStart("org/running", "running.gguf")
	require.NoError(t, err)

	// Same file completed again from a different repo; the re-download wins.
	id, err = ledger.RecordDownloadStart("org/primary", "done.gguf")
	require.NoError(t, err)
	require.NoError(t, ledger.RecordDownloadEnd(id, "complete", "", ""))

	repos, err := ledger.ProvenanceMap()
	require.NoError(t, err)
	require.Equal(t, map[string]string{"done.gguf": "org/primary"}, repos)
}

// TestLedger_DeleteDownload verifies all rows for a filename are removed.
func TestLedger_DeleteDownload(t *testing.T) {
	ledger := openTestLedger(t)

	_, err := ledger.RecordDownloadStart("org/repo", "doomed.gguf")
	require.NoError(t, err)
	_, err = ledger.RecordDownloadStart("org/repo", "doomed.gguf")
	require.NoError(t, err)
	_, err = ledger.RecordDownloadStart("org/other", "kept.gguf")
	require.NoError(t, err)

	require.NoError(t, ledger.DeleteDownload("doomed.gguf"))

	records, err := ledger.Downloads()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "kept.gguf", records[0].Filename)
}

// TestLedger_ClosedOperations verifies operations fail cleanly after Close.
func TestLedger_ClosedOperations(t *testing.T) {
	ledger, err := OpenLedger(filepath.Join(t.TempDir(), "cognito.db"))
	require.NoError(t, err)
	require.NoError(t, ledger.Close())

	_, err = ledger.RecordDownloadStart("org/repo", "model.gguf")
	require.ErrorIs(t, err, ErrLedgerClosed)

	_, err = ledger.Downloads()
	require.ErrorIs(t, err, ErrLedgerClosed)

	// Double close is a no-op.
	require.NoError(t, ledger.Close())
}

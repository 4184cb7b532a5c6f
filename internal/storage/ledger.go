// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation and download persistence for cognito.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrDownloadNotFound = errors.New("download record not found")
	ErrLedgerClosed     = errors.New("ledger is closed")
)

// =============================================================================
// SCHEMA
// =============================================================================

const (
	// LedgerSchemaVersion tracks the database schema version for migrations
	LedgerSchemaVersion = 1
)

// SQLite schema for the model download ledger
const ledgerSchema = `
-- Metadata table for schema version
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- Downloads table: one row per download attempt. A row is inserted when the
-- download starts and completed when it ends, so interrupted downloads stay
-- visible as stuck "downloading" rows.
CREATE TABLE IF NOT EXISTS downloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    repo_id TEXT NOT NULL,
    filename TEXT NOT NULL,
    path TEXT NOT NULL DEFAULT '',
    size_bytes INTEGER NOT NULL DEFAULT 0,
    state TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    started_at INTEGER NOT NULL,  -- Unix timestamp
    finished_at INTEGER           -- Unix timestamp, NULL while running
);

CREATE INDEX IF NOT EXISTS idx_downloads_filename ON downloads(filename);
CREATE INDEX IF NOT EXISTS idx_downloads_started_at ON downloads(started_at);
`

const ledgerInitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
`

// =============================================================================
// DOWNLOAD RECORD
// =============================================================================

// DownloadRecord is one row of the download ledger.
type DownloadRecord struct {
	ID         int64
	RepoID     string
	Filename   string
	Path       string
	SizeBytes  int64
	State      string // "downloading", "complete", "failed", "canceled"
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // Zero while the download is still running
}

// Finished reports whether the download reached a terminal state.
func (r DownloadRecord) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger records model download provenance in a local SQLite database.
// It satisfies the download coordinator's recorder interface so outcomes
// survive backend restarts.
type Ledger struct {
	db   *sql.DB
	path string
}

// OpenLedger opens (creating if needed) the download ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	if _, err := db.Exec(ledgerInitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger metadata: %w", err)
	}

	return &Ledger{db: db, path: path}, nil
}

// Close closes the ledger database.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// =============================================================================
// RECORDER OPERATIONS
// =============================================================================

// RecordDownloadStart inserts a row for a download that just started and
// returns its row ID.
func (l *Ledger) RecordDownloadStart(repoID, filename string) (int64, error) {
	if l.db == nil {
		return 0, ErrLedgerClosed
	}

	result, err := l.db.Exec(`
		INSERT INTO downloads (repo_id, filename, state, started_at)
		VALUES (?, ?, 'downloading', ?)
	`, repoID, filename, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to record download start: %w", err)
	}

	return result.LastInsertId()
}

// RecordDownloadEnd completes a download row with its terminal state.
// For completed downloads the file at path is stat'ed to capture its size.
func (l *Ledger) RecordDownloadEnd(id int64, state, path, errMsg string) error {
	if l.db == nil {
		return ErrLedgerClosed
	}

	var size int64
	if state == "complete" && path != "" {
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
	}

	result, err := l.db.Exec(`
		UPDATE downloads
		SET state = ?, path = ?, size_bytes = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, state, path, size, errMsg, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to record download end: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDownloadNotFound
	}

	return nil
}

// =============================================================================
// QUERY OPERATIONS
// =============================================================================

// Downloads returns all download records, newest first.
func (l *Ledger) Downloads() ([]DownloadRecord, error) {
	if l.db == nil {
		return nil, ErrLedgerClosed
	}

	rows, err := l.db.Query(`
		SELECT id, repo_id, filename, path, size_bytes, state, error, started_at, finished_at
		FROM downloads
		ORDER BY started_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer rows.Close()

	var records []DownloadRecord
	for rows.Next() {
		rec, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// ProvenanceMap returns filename -> repo id for completed downloads, for
// joining ledger provenance onto a filesystem scan of the models dir. When
// a file was downloaded more than once the newest row wins.
func (l *Ledger) ProvenanceMap() (map[string]string, error) {
	if l.db == nil {
		return nil, ErrLedgerClosed
	}

	rows, err := l.db.Query(`
		SELECT filename, repo_id
		FROM downloads
		WHERE state = 'complete'
		ORDER BY started_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query provenance: %w", err)
	}
	defer rows.Close()

	repos := make(map[string]string)
	for rows.Next() {
		var filename, repoID string
		if err := rows.Scan(&filename, &repoID); err != nil {
			return nil, err
		}
		if _, ok := repos[filename]; !ok {
			repos[filename] = repoID
		}
	}

	return repos, rows.Err()
}

// LatestByFilename returns the most recent record for a filename.
// Used to join ledger provenance against a filesystem scan of the models dir.
func (l *Ledger) LatestByFilename(filename string) (DownloadRecord, error) {
	if l.db == nil {
		return DownloadRecord{}, ErrLedgerClosed
	}

	row := l.db.QueryRow(`
		SELECT id, repo_id, filename, path, size_bytes, state, error, started_at, finished_at
		FROM downloads
		WHERE filename = ?
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`, filename)

	rec, err := scanDownload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DownloadRecord{}, ErrDownloadNotFound
	}
	return rec, err
}

// DeleteDownload removes all records for a filename. Called when a model
// file is deleted from disk.
func (l *Ledger) DeleteDownload(filename string) error {
	if l.db == nil {
		return ErrLedgerClosed
	}

	_, err := l.db.Exec("DELETE FROM downloads WHERE filename = ?", filename)
	if err != nil {
		return fmt.Errorf("failed to delete download records: %w", err)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanDownload.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanDownload scans one downloads row.
func scanDownload(s scanner) (DownloadRecord, error) {
	var rec DownloadRecord
	var startedAt int64
	var finishedAt sql.NullInt64

	err := s.Scan(&rec.ID, &rec.RepoID, &rec.Filename, &rec.Path, &rec.SizeBytes,
		&rec.State, &rec.Error, &startedAt, &finishedAt)
	if err != nil {
		return DownloadRecord{}, err
	}

	rec.StartedAt = time.Unix(startedAt, 0)
	if finishedAt.Valid {
		rec.FinishedAt = time.Unix(finishedAt.Int64, 0)
	}

	return rec, nil
}

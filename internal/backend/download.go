// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for communicating with the cognito inference backend.
package backend

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"
	"pkt.systems/pslog"
)

// =============================================================================
// MODEL DOWNLOAD COORDINATOR
// =============================================================================

// ErrDownloadInProgress means a download was requested while another one is
// still running. Only one download runs at a time.
var ErrDownloadInProgress = errors.New("a model download is already in progress")

// DownloadState is the coordinator's view of a download job.
type DownloadState int

const (
	DownloadPending DownloadState = iota
	DownloadStarting
	DownloadActive
	DownloadComplete
	DownloadFailed
	DownloadCanceled
)

func (s DownloadState) String() string {
	switch s {
	case DownloadStarting:
		return "starting"
	case DownloadActive:
		return "downloading"
	case DownloadComplete:
		return "complete"
	case DownloadFailed:
		return "failed"
	case DownloadCanceled:
		return "canceled"
	default:
		return "pending"
	}
}

// Terminal reports whether the state is final.
func (s DownloadState) Terminal() bool {
	return s == DownloadComplete || s == DownloadFailed || s == DownloadCanceled
}

// DownloadProgress is a snapshot of a download job, suitable for rendering.
type DownloadProgress struct {
	RepoID         string
	Filename       string
	State          DownloadState
	Downloaded     int64
	Total          int64
	TotalFormatted string
	Percent        float64
	// Path is the local file path, set on completion.
	Path string
	// Err is set when State is DownloadFailed.
	Err error
}

// DownloadRecorder persists download outcomes. Implemented by the storage
// ledger; nil disables recording.
type DownloadRecorder interface {
	RecordDownloadStart(repoID, filename string) (int64, error)
	RecordDownloadEnd(id int64, state, path, errMsg string) error
}

// ProgressFunc receives download progress snapshots. It runs on the download
// goroutine; keep it fast.
type ProgressFunc func(p DownloadProgress)

// Downloader coordinates model downloads: one job at a time, progress
// snapshots throttled for rendering, terminal state always delivered, and
// outcomes recorded in the ledger.
type Downloader struct {
	client     *Client
	recorder   DownloadRecorder
	onProgress ProgressFunc
	limiter    *rate.Limiter

	mu     sync.Mutex
	active *DownloadJob
}

// NewDownloader creates a download coordinator. recorder and onProgress may
// be nil.
func NewDownloader(client *Client, recorder DownloadRecorder, onProgress ProgressFunc) *Downloader {
	return &Downloader{
		client:     client,
		recorder:   recorder,
		onProgress: onProgress,
		// Progress frames arrive much faster than a terminal can redraw.
		limiter: rate.NewLimiter(rate.Limit(10), 2),
	}
}

// Active returns the running job, or nil.
func (d *Downloader) Active() *DownloadJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		select {
		case <-d.active.done:
			return nil
		default:
			return d.active
		}
	}
	return nil
}

// Start begins downloading filename from repoID. Returns
// ErrDownloadInProgress when a job is already running. The returned job can
// be cancelled and waited on; progress flows through the coordinator's
// ProgressFunc.
func (d *Downloader) Start(ctx context.Context, repoID, filename string) (*DownloadJob, error) {
	d.mu.Lock()
	if d.active != nil {
		select {
		case <-d.active.done:
			d.active = nil
		default:
			d.mu.Unlock()
			return nil, ErrDownloadInProgress
		}
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &DownloadJob{
		RepoID:   repoID,
		Filename: filename,
		cancel:   cancel,
		done:     make(chan struct{}),
		last: DownloadProgress{
			RepoID:   repoID,
			Filename: filename,
			State:    DownloadPending,
		},
	}
	d.active = job
	d.mu.Unlock()

	go d.run(jobCtx, job)
	return job, nil
}

func (d *Downloader) run(ctx context.Context, job *DownloadJob) {
	defer close(job.done)
	log := pslog.Ctx(ctx)
	log.Info("download starting", "repo", job.RepoID, "file", job.Filename)

	recID := int64(-1)
	if d.recorder != nil {
		id, err := d.recorder.RecordDownloadStart(job.RepoID, job.Filename)
		if err != nil {
			log.Warn("download ledger write failed", "error", err)
		} else {
			recID = id
		}
	}

	req := DownloadRequest{RepoID: job.RepoID, Filename: job.Filename}
	err := d.client.StreamDownload(ctx, req, func(ev DownloadEvent) {
		p, changed := job.apply(ev)
		d.emit(p, changed)
	})

	p := job.Progress()
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		p = job.finish(DownloadCanceled, nil)
		d.emit(p, true)
		log.Info("download cancelled", "repo", job.RepoID, "file", job.Filename)
	case err != nil:
		p = job.finish(DownloadFailed, err)
		d.emit(p, true)
		log.Error("download failed", "repo", job.RepoID, "file", job.Filename, "error", err)
	case p.State == DownloadComplete:
		log.Info("download complete", "file", p.Filename, "path", p.Path)
	case p.State == DownloadFailed:
		log.Error("download failed", "repo", job.RepoID, "file", job.Filename, "error", p.Err)
	default:
		// Stream ended without a complete or error frame.
		p = job.finish(DownloadFailed, &ClientError{
			Type:    ErrTypeProtocol,
			Message: "download stream ended unexpectedly",
		})
		d.emit(p, true)
		log.Error("download ended without result", "repo", job.RepoID, "file", job.Filename)
	}

	if recID >= 0 {
		errMsg := ""
		if p.Err != nil {
			errMsg = p.Err.Error()
		}
		if err := d.recorder.RecordDownloadEnd(recID, p.State.String(), p.Path, errMsg); err != nil {
			log.Warn("download ledger write failed", "error", err)
		}
	}

	d.mu.Lock()
	if d.active == job {
		d.active = nil
	}
	d.mu.Unlock()
}

// emit forwards a snapshot to the progress callback. Repeated progress
// updates are throttled; state changes always go through.
func (d *Downloader) emit(p DownloadProgress, stateChanged bool) {
	if d.onProgress == nil {
		return
	}
	if !stateChanged && !d.limiter.Allow() {
		return
	}
	d.onProgress(p)
}

// =============================================================================
// DOWNLOAD JOB
// =============================================================================

// DownloadJob is one in-flight model download.
type DownloadJob struct {
	RepoID   string
	Filename string

	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	last DownloadProgress
}

// Cancel aborts the download. Safe to call multiple times.
func (j *DownloadJob) Cancel() {
	j.cancel()
}

// Done is closed when the job reaches a terminal state.
func (j *DownloadJob) Done() <-chan struct{} {
	return j.done
}

// Progress returns the latest snapshot.
func (j *DownloadJob) Progress() DownloadProgress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// apply folds one wire event into the job snapshot and reports whether the
// state changed. The backend reports percent as non-decreasing; the clamp
// here keeps a late or duplicated frame from ever moving the bar backwards.
func (j *DownloadJob) apply(ev DownloadEvent) (DownloadProgress, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	p := j.last
	switch ev.Status {
	case DownloadStatusStarting:
		p.State = DownloadStarting
		if ev.Filename != "" {
			p.Filename = ev.Filename
		}
	case DownloadStatusDownloading:
		p.State = DownloadActive
		if ev.Total > 0 {
			p.Total = ev.Total
		}
		if ev.TotalFormatted != "" {
			p.TotalFormatted = ev.TotalFormatted
		}
	case DownloadStatusProgress:
		p.State = DownloadActive
		if ev.Downloaded > p.Downloaded {
			p.Downloaded = ev.Downloaded
		}
		if ev.Total > 0 {
			p.Total = ev.Total
		}
		if ev.Percent > p.Percent {
			p.Percent = ev.Percent
		}
		if p.Percent > 100 {
			p.Percent = 100
		}
	case DownloadStatusComplete:
		p.State = DownloadComplete
		p.Percent = 100
		p.Path = ev.Path
		if ev.Filename != "" {
			p.Filename = ev.Filename
		}
	case DownloadStatusError:
		p.State = DownloadFailed
		p.Err = &ClientError{Type: ErrTypeBackend, Message: ev.Error}
	default:
		return p, false
	}

	changed := p.State != j.last.State
	j.last = p
	return p, changed
}

// finish forces a terminal state decided by the coordinator rather than by a
// wire frame, such as cancellation or an unexpected end of stream.
func (j *DownloadJob) finish(state DownloadState, err error) DownloadProgress {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.last.State.Terminal() {
		j.last.State = state
		j.last.Err = err
	}
	return j.last
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for communicating with the cognito inference backend.
package backend

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// DOWNLOAD COORDINATOR TESTS
// =============================================================================

type fakeRecorder struct {
	mu     sync.Mutex
	starts []string // "repo/file"
	ends   []string // "state:errMsg"
}

func (f *fakeRecorder) RecordDownloadStart(repoID, filename string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, repoID+"/"+filename)
	return int64(len(f.starts)), nil
}

func (f *fakeRecorder) RecordDownloadEnd(id int64, state, path, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends = append(f.ends, fmt.Sprintf("%s:%s", state, errMsg))
	return nil
}

func (f *fakeRecorder) lastEnd(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ends) == 0 {
		t.Fatal("no download end recorded")
	}
	return f.ends[len(f.ends)-1]
}

type progressCollector struct {
	mu    sync.Mutex
	snaps []DownloadProgress
}

func (c *progressCollector) collect(p DownloadProgress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, p)
}

func (c *progressCollector) last(t *testing.T) DownloadProgress {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.snaps) == 0 {
		t.Fatal("no progress delivered")
	}
	return c.snaps[len(c.snaps)-1]
}

func waitJob(t *testing.T, job *DownloadJob) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("download job never finished")
	}
}

func TestDownloader_HappyPath(t *testing.T) {
	server := sseServer(t,
		`data: {"status":"starting","filename":"m.gguf"}`,
		`data: {"status":"downloading","total":1000,"totalFormatted":"1000.0 B"}`,
		`data: {"status":"progress","downloaded":250,"total":1000,"percent":25.0}`,
		`data: {"status":"progress","downloaded":700,"total":1000,"percent":70.0}`,
		`data: {"status":"complete","path":"/models/m.gguf","filename":"m.gguf"}`,
	)
	defer server.Close()

	rec := &fakeRecorder{}
	col := &progressCollector{}
	dl := NewDownloader(newTestClient(server.URL), rec, col.collect)

	job, err := dl.Start(testContext(t), "TheBloke/M-GGUF", "m.gguf")
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitJob(t, job)

	final := job.Progress()
	if final.State != DownloadComplete {
		t.Fatalf("State = %v, want complete", final.State)
	}
	if final.Percent != 100 {
		t.Errorf("Percent = %v, want 100", final.Percent)
	}
	if final.Path != "/models/m.gguf" {
		t.Errorf("Path = %q", final.Path)
	}

	if col.last(t).State != DownloadComplete {
		t.Error("terminal snapshot was not delivered to the progress callback")
	}
	if rec.lastEnd(t) != "complete:" {
		t.Errorf("ledger end = %q", rec.lastEnd(t))
	}
	if dl.Active() != nil {
		t.Error("Active() should be nil after completion")
	}
}

func TestDownloader_SecondJobRejected(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"status\":\"starting\",\"filename\":\"m.gguf\"}\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	dl := NewDownloader(newTestClient(server.URL), nil, nil)
	ctx := testContext(t)

	job, err := dl.Start(ctx, "repo", "a.gguf")
	if err != nil {
		t.Fatalf("first Start error: %v", err)
	}

	if _, err := dl.Start(ctx, "repo", "b.gguf"); !errors.Is(err, ErrDownloadInProgress) {
		t.Errorf("second Start = %v, want ErrDownloadInProgress", err)
	}

	job.Cancel()
	waitJob(t, job)

	// The slot frees up once the job is done.
	job2, err := dl.Start(ctx, "repo", "c.gguf")
	if err != nil {
		t.Fatalf("Start after completion error: %v", err)
	}
	job2.Cancel()
	waitJob(t, job2)
}

func TestDownloader_ErrorFrame(t *testing.T) {
	server := sseServer(t,
		`data: {"status":"starting","filename":"m.gguf"}`,
		`data: {"status":"error","error":"404 from hugging face"}`,
	)
	defer server.Close()

	rec := &fakeRecorder{}
	dl := NewDownloader(newTestClient(server.URL), rec, nil)

	job, err := dl.Start(testContext(t), "repo", "m.gguf")
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitJob(t, job)

	final := job.Progress()
	if final.State != DownloadFailed {
		t.Fatalf("State = %v, want failed", final.State)
	}
	if !IsBackendError(final.Err) {
		t.Errorf("Err = %v, want backend error", final.Err)
	}
	if got := rec.lastEnd(t); got != "failed:404 from hugging face" {
		t.Errorf("ledger end = %q", got)
	}
}

func TestDownloader_StreamEndsWithoutTerminal(t *testing.T) {
	server := sseServer(t,
		`data: {"status":"starting","filename":"m.gguf"}`,
		`data: {"status":"progress","downloaded":10,"total":100,"percent":10.0}`,
	)
	defer server.Close()

	rec := &fakeRecorder{}
	dl := NewDownloader(newTestClient(server.URL), rec, nil)

	job, err := dl.Start(testContext(t), "repo", "m.gguf")
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitJob(t, job)

	final := job.Progress()
	if final.State != DownloadFailed {
		t.Fatalf("State = %v, want failed for a truncated stream", final.State)
	}
	var clientErr *ClientError
	if !errors.As(final.Err, &clientErr) || clientErr.Type != ErrTypeProtocol {
		t.Errorf("Err = %v, want a protocol error", final.Err)
	}
}

func TestDownloader_Cancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"status\":\"starting\",\"filename\":\"m.gguf\"}\n")
		fmt.Fprint(w, "data: {\"status\":\"progress\",\"downloaded\":10,\"total\":100,\"percent\":10.0}\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	rec := &fakeRecorder{}
	col := &progressCollector{}
	dl := NewDownloader(newTestClient(server.URL), rec, col.collect)

	job, err := dl.Start(testContext(t), "repo", "m.gguf")
	if err != nil {
		t.Fatalf("Start error: %v", err)
	}

	// Let at least the starting frame arrive before cancelling.
	waitFor(t, 3*time.Second, "first frame", func() bool {
		return job.Progress().State != DownloadPending
	})
	job.Cancel()
	waitJob(t, job)

	final := job.Progress()
	if final.State != DownloadCanceled {
		t.Fatalf("State = %v, want canceled", final.State)
	}
	if got := rec.lastEnd(t); got != "canceled:" {
		t.Errorf("ledger end = %q", got)
	}
	if col.last(t).State != DownloadCanceled {
		t.Error("cancellation snapshot was not delivered")
	}
}

// =============================================================================
// DOWNLOAD JOB STATE TESTS
// =============================================================================

func TestDownloadJob_PercentNeverDecreases(t *testing.T) {
	job := &DownloadJob{last: DownloadProgress{State: DownloadPending}}

	job.apply(DownloadEvent{Status: DownloadStatusProgress, Downloaded: 500, Total: 1000, Percent: 50})
	job.apply(DownloadEvent{Status: DownloadStatusProgress, Downloaded: 300, Total: 1000, Percent: 30})

	p := job.Progress()
	if p.Percent != 50 {
		t.Errorf("Percent = %v, a late frame moved the bar backwards", p.Percent)
	}
	if p.Downloaded != 500 {
		t.Errorf("Downloaded = %d, want 500", p.Downloaded)
	}
}

func TestDownloadJob_PercentClampedAt100(t *testing.T) {
	job := &DownloadJob{last: DownloadProgress{State: DownloadPending}}

	job.apply(DownloadEvent{Status: DownloadStatusProgress, Percent: 104.2})

	if p := job.Progress(); p.Percent != 100 {
		t.Errorf("Percent = %v, want clamped to 100", p.Percent)
	}
}

func TestDownloadJob_ApplyReportsStateChanges(t *testing.T) {
	job := &DownloadJob{last: DownloadProgress{State: DownloadPending}}

	if _, changed := job.apply(DownloadEvent{Status: DownloadStatusStarting}); !changed {
		t.Error("pending -> starting should report a change")
	}
	if _, changed := job.apply(DownloadEvent{Status: DownloadStatusProgress, Percent: 1}); !changed {
		t.Error("starting -> downloading should report a change")
	}
	if _, changed := job.apply(DownloadEvent{Status: DownloadStatusProgress, Percent: 2}); changed {
		t.Error("progress -> progress should not report a change")
	}
	if _, changed := job.apply(DownloadEvent{Status: DownloadStatusComplete}); !changed {
		t.Error("downloading -> complete should report a change")
	}
}

func TestDownloadJob_FinishIgnoredAfterTerminal(t *testing.T) {
	job := &DownloadJob{last: DownloadProgress{State: DownloadPending}}

	job.apply(DownloadEvent{Status: DownloadStatusComplete, Path: "/models/m.gguf"})
	p := job.finish(DownloadFailed, errors.New("too late"))

	if p.State != DownloadComplete {
		t.Errorf("State = %v, finish overwrote a terminal state", p.State)
	}
	if p.Err != nil {
		t.Errorf("Err = %v, want nil", p.Err)
	}
}

func TestDownloadState_Strings(t *testing.T) {
	tests := []struct {
		state DownloadState
		want  string
	}{
		{DownloadPending, "pending"},
		{DownloadStarting, "starting"},
		{DownloadActive, "downloading"},
		{DownloadComplete, "complete"},
		{DownloadFailed, "failed"},
		{DownloadCanceled, "canceled"},
	}

	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("%d.String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}

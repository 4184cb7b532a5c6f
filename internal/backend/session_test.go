// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for communicating with the cognito inference backend.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// =============================================================================
// FULL SESSION TESTS
// =============================================================================

// fakeBackend is one httptest server covering the endpoints a session
// touches: health, model load, and the chat stream. The chat handler is
// swappable per test so a session can end well, badly, or not at all.
type fakeBackend struct {
	server *httptest.Server

	mu        sync.Mutex
	loaded    bool
	modelName string
	chat      http.HandlerFunc
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		loaded, name := fb.loaded, fb.modelName
		fb.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","tools_available":true,"rag_available":true,"model_loaded":%t,"model_name":%q,"documents_count":0}`,
			loaded, name)
	})
	mux.HandleFunc("/v1/load_model", func(w http.ResponseWriter, r *http.Request) {
		var req LoadModelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"detail":"missing model path"}`)
			return
		}
		fb.mu.Lock()
		fb.loaded = true
		fb.modelName = req.Path
		fb.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success","message":"model loaded"}`)
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		chat := fb.chat
		fb.mu.Unlock()
		if chat == nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"detail":"No model loaded"}`)
			return
		}
		chat(w, r)
	})

	fb.server = httptest.NewServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

// serveChat installs a chat handler that streams the given lines and returns.
func (fb *fakeBackend) serveChat(lines ...string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.chat = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
			flusher.Flush()
		}
	}
}

// TestSession_LoadThenStream walks the startup path a fresh install takes:
// reachability check, health probe with no model, model load, the loaded
// state visible on the next probe, then a streamed completion.
func TestSession_LoadThenStream(t *testing.T) {
	fb := newFakeBackend(t)
	client := newTestClient(fb.server.URL)
	ctx := testContext(t)

	if err := client.CheckRunning(ctx); err != nil {
		t.Fatalf("CheckRunning: %v", err)
	}

	health, err := client.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.ModelLoaded {
		t.Fatal("no model should be loaded before load_model")
	}

	monitor := NewHealthMonitor(client, testMonitorConfig(), nil)
	if snap := monitor.RefreshNow(ctx); snap.ModelLoaded() {
		t.Fatal("monitor should agree no model is loaded")
	}

	resp, err := client.LoadModel(ctx, "/models/qwen2.gguf")
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if resp.Status != "success" {
		t.Fatalf("load status = %q", resp.Status)
	}

	snap := monitor.RefreshNow(ctx)
	if !snap.ModelLoaded() {
		t.Fatal("monitor should see the loaded model after refresh")
	}
	if snap.Status.ModelName != "/models/qwen2.gguf" {
		t.Errorf("model name = %q", snap.Status.ModelName)
	}

	fb.serveChat(
		`data: {"status":"generating"}`,
		`data: {"content":"Hi"}`,
		`data: {"content":" there"}`,
		`data: [DONE]`,
	)

	var text strings.Builder
	var terminals int
	err = client.ChatStream(ctx, ChatRequest{
		Messages: []Message{NewUserMessage("hello")},
	}, func(ev ChatEvent) {
		if ev.Kind == ChatEventToken {
			text.WriteString(ev.Token)
		}
		if ev.Terminal() {
			terminals++
		}
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if text.String() != "Hi there" {
		t.Errorf("assembled text = %q", text.String())
	}
	if terminals != 1 {
		t.Errorf("terminal events = %d, want 1", terminals)
	}
}

// TestSession_StreamBeforeLoadIsBackendError exercises the 400 path: a chat
// request before any model is loaded maps to the no-model sentinel, not a
// stream.
func TestSession_StreamBeforeLoadIsBackendError(t *testing.T) {
	fb := newFakeBackend(t)
	client := newTestClient(fb.server.URL)

	var events []ChatEvent
	err := client.ChatStream(testContext(t), ChatRequest{}, func(ev ChatEvent) {
		events = append(events, ev)
	})
	if err == nil {
		t.Fatal("expected an error before load_model")
	}
	if !IsNoModelLoaded(err) {
		t.Errorf("err = %v, want the no-model sentinel", err)
	}
	if len(events) != 0 {
		t.Errorf("no events should be delivered, got %d", len(events))
	}
}

// TestSession_GarbageFrameMidStream runs a full load-then-stream session
// where the backend emits an unparsable frame between two good ones. The
// session completes; the garbage is invisible to the caller.
func TestSession_GarbageFrameMidStream(t *testing.T) {
	fb := newFakeBackend(t)
	client := newTestClient(fb.server.URL)
	ctx := testContext(t)

	if _, err := client.LoadModel(ctx, "/models/m.gguf"); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	fb.serveChat(
		`data: {"content":"a"}`,
		`data: {truncated garbage`,
		`data: {"content":"b"}`,
		`data: [DONE]`,
	)

	var tokens []string
	var terminals int
	err := client.ChatStream(ctx, ChatRequest{}, func(ev ChatEvent) {
		if ev.Kind == ChatEventToken {
			tokens = append(tokens, ev.Token)
		}
		if ev.Terminal() {
			terminals++
		}
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != "a" || tokens[1] != "b" {
		t.Errorf("tokens = %v, want both frames around the garbage", tokens)
	}
	if terminals != 1 {
		t.Errorf("terminal events = %d, want 1", terminals)
	}
}

// TestSession_CancelMidStream cancels an in-flight generation the way the
// TUI does on Esc: the stream ends with one clean completion and no error.
func TestSession_CancelMidStream(t *testing.T) {
	fb := newFakeBackend(t)
	client := newTestClient(fb.server.URL)

	fb.mu.Lock()
	fb.chat = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for {
			select {
			case <-r.Context().Done():
				return
			default:
				fmt.Fprint(w, "data: {\"content\":\"x\"}\n")
				flusher.Flush()
			}
		}
	}
	fb.mu.Unlock()

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()

	var dones, errs int
	err := client.ChatStream(ctx, ChatRequest{}, func(ev ChatEvent) {
		switch ev.Kind {
		case ChatEventToken:
			cancel()
		case ChatEventDone:
			dones++
		case ChatEventError:
			errs++
		}
	})
	if err != nil {
		t.Fatalf("cancellation must not surface an error, got %v", err)
	}
	if dones != 1 {
		t.Errorf("done events = %d, want exactly 1", dones)
	}
	if errs != 0 {
		t.Errorf("error events = %d, want 0", errs)
	}
}

// TestSession_BackendDeathFlipsHealth kills the backend mid-stream: the
// stream fails with a connection error and the next health probe reports
// offline, which is what drives the status bar edge in the TUI.
func TestSession_BackendDeathFlipsHealth(t *testing.T) {
	fb := newFakeBackend(t)
	client := newTestClient(fb.server.URL)
	ctx := testContext(t)

	fb.mu.Lock()
	fb.chat = func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("server does not support hijacking")
			return
		}
		conn, bufrw, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		payload := "data: {\"content\":\"a\"}\n"
		fmt.Fprint(bufrw, "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nTransfer-Encoding: chunked\r\n\r\n")
		fmt.Fprintf(bufrw, "%x\r\n%s\r\n", len(payload), payload)
		bufrw.Flush()
		conn.Close()
	}
	fb.mu.Unlock()

	monitor := NewHealthMonitor(client, testMonitorConfig(), nil)
	if snap := monitor.RefreshNow(ctx); snap.State != HealthOnline {
		t.Fatalf("backend should start online, got %v", snap.State)
	}

	err := client.ChatStream(ctx, ChatRequest{}, func(ChatEvent) {})
	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrTypeConnection {
		t.Fatalf("err = %v, want a connection error", err)
	}

	fb.server.Close()
	snap := monitor.RefreshNow(ctx)
	if snap.State != HealthOffline {
		t.Errorf("state after backend death = %v, want offline", snap.State)
	}
	if snap.Err == nil {
		t.Error("offline snapshot should carry the probe error")
	}
}

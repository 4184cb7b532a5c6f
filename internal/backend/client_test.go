// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for communicating with the cognito inference backend.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/pslog"
)

// testContext returns a context carrying a discard logger, matching how the
// application installs its logger at startup.
func testContext(t *testing.T) context.Context {
	t.Helper()
	logger := pslog.NewWithOptions(io.Discard, pslog.Options{
		Mode:    pslog.ModeStructured,
		NoColor: true,
	})
	return pslog.ContextWithLogger(context.Background(), logger)
}

func newTestClient(serverURL string) *Client {
	return NewClientWithConfig(&ClientConfig{BaseURL: serverURL})
}

// sseServer responds to any request by writing the given lines, flushing
// after each one.
func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
			flusher.Flush()
		}
	}))
}

// =============================================================================
// STREAMING CHAT TESTS
// =============================================================================

func TestChatStream_TokensInOrder(t *testing.T) {
	server := sseServer(t,
		`data: {"status":"generating"}`,
		`data: {"content":"Hel"}`,
		`data: {"content":"lo"}`,
		`data: {"content":" world"}`,
		`data: [DONE]`,
	)
	defer server.Close()

	client := newTestClient(server.URL)
	var events []ChatEvent
	err := client.ChatStream(testContext(t), ChatRequest{
		Messages: []Message{NewUserMessage("hi")},
	}, func(ev ChatEvent) {
		events = append(events, ev)
	})

	if err != nil {
		t.Fatalf("ChatStream error: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("events = %d, want 5", len(events))
	}
	if events[0].Kind != ChatEventStatus || events[0].Status != StatusGenerating {
		t.Errorf("first event = %+v, want generating status", events[0])
	}

	var text strings.Builder
	for _, ev := range events {
		if ev.Kind == ChatEventToken {
			text.WriteString(ev.Token)
		}
	}
	if text.String() != "Hello world" {
		t.Errorf("assembled text = %q", text.String())
	}
	if events[len(events)-1].Kind != ChatEventDone {
		t.Errorf("last event = %+v, want done", events[len(events)-1])
	}
}

func TestChatStream_ExactlyOneTerminal(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{"with sentinel", []string{`data: {"content":"a"}`, `data: [DONE]`}},
		{"eof without sentinel", []string{`data: {"content":"a"}`}},
		{"sentinel then junk", []string{`data: [DONE]`, `data: {"content":"late"}`}},
		{"double sentinel", []string{`data: [DONE]`, `data: [DONE]`}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := sseServer(t, tc.lines...)
			defer server.Close()

			client := newTestClient(server.URL)
			terminals := 0
			afterTerminal := 0
			err := client.ChatStream(testContext(t), ChatRequest{}, func(ev ChatEvent) {
				if terminals > 0 {
					afterTerminal++
				}
				if ev.Terminal() {
					terminals++
				}
			})

			if err != nil {
				t.Fatalf("ChatStream error: %v", err)
			}
			if terminals != 1 {
				t.Errorf("terminal events = %d, want exactly 1", terminals)
			}
			if afterTerminal != 0 {
				t.Errorf("%d events delivered after the terminal", afterTerminal)
			}
		})
	}
}

func TestChatStream_BackendErrorFrame(t *testing.T) {
	server := sseServer(t,
		`data: {"content":"partial"}`,
		`data: {"error":"model crashed"}`,
	)
	defer server.Close()

	client := newTestClient(server.URL)
	var events []ChatEvent
	err := client.ChatStream(testContext(t), ChatRequest{}, func(ev ChatEvent) {
		events = append(events, ev)
	})

	if err != nil {
		t.Fatalf("ChatStream error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	last := events[1]
	if last.Kind != ChatEventError {
		t.Fatalf("last event = %+v, want error", last)
	}
	if !IsBackendError(last.Err) {
		t.Errorf("Err = %v, want backend error", last.Err)
	}
	if !strings.Contains(last.Err.Error(), "model crashed") {
		t.Errorf("Err = %q", last.Err)
	}
}

func TestChatStream_MalformedFramesSkipped(t *testing.T) {
	server := sseServer(t,
		`data: {"content":"a"}`,
		`data: {broken json`,
		`data: {"unknown":"field"}`,
		`data: {"content":"b"}`,
		`data: [DONE]`,
	)
	defer server.Close()

	client := newTestClient(server.URL)
	var tokens []string
	err := client.ChatStream(testContext(t), ChatRequest{}, func(ev ChatEvent) {
		if ev.Kind == ChatEventToken {
			tokens = append(tokens, ev.Token)
		}
	})

	if err != nil {
		t.Fatalf("ChatStream error: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != "a" || tokens[1] != "b" {
		t.Errorf("tokens = %v, want [a b]", tokens)
	}
}

func TestChatStream_Non2xxIsErrorNotStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "trace: something broke in python land")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	calls := 0
	err := client.ChatStream(testContext(t), ChatRequest{}, func(ev ChatEvent) {
		calls++
	})

	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
	if calls != 0 {
		t.Errorf("callback fired %d times on a non-2xx response", calls)
	}
	if !IsBackendError(err) {
		t.Errorf("err = %v, want backend error", err)
	}
	if !strings.Contains(err.Error(), "something broke") {
		t.Errorf("err = %q, want the response body text", err)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("err = %q, want the status code", err)
	}
}

func TestChatStream_NoModelLoaded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"detail":"No model loaded. Call /v1/load_model first."}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.ChatStream(testContext(t), ChatRequest{}, func(ev ChatEvent) {})

	if !errors.Is(err, ErrNoModelLoaded) {
		t.Errorf("err = %v, want ErrNoModelLoaded", err)
	}
	if !IsNoModelLoaded(err) {
		t.Error("IsNoModelLoaded should be true")
	}
}

func TestChatStream_CancelMidStream(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"content\":\"a\"}\n")
		fmt.Fprint(w, "data: {\"content\":\"b\"}\n")
		flusher.Flush()
		// Hold the stream open until the client gives up.
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(testContext(t))
	defer cancel()

	client := newTestClient(server.URL)
	var events []ChatEvent
	err := client.ChatStream(ctx, ChatRequest{}, func(ev ChatEvent) {
		events = append(events, ev)
		if ev.Kind == ChatEventToken && ev.Token == "b" {
			cancel()
		}
	})

	if err != nil {
		t.Fatalf("cancellation must not surface an error, got %v", err)
	}

	terminals := 0
	for _, ev := range events {
		if ev.Terminal() {
			terminals++
		}
	}
	if terminals != 1 {
		t.Fatalf("terminal events = %d, want exactly 1", terminals)
	}
	if events[len(events)-1].Kind != ChatEventDone {
		t.Errorf("last event = %+v, want a clean done", events[len(events)-1])
	}
}

func TestChatStream_CancelBeforeFirstByte(t *testing.T) {
	server := sseServer(t, `data: {"content":"never seen"}`)
	defer server.Close()

	ctx, cancel := context.WithCancel(testContext(t))
	cancel()

	client := newTestClient(server.URL)
	var events []ChatEvent
	err := client.ChatStream(ctx, ChatRequest{}, func(ev ChatEvent) {
		events = append(events, ev)
	})

	if err != nil {
		t.Fatalf("cancellation must not surface an error, got %v", err)
	}
	if len(events) != 1 || events[0].Kind != ChatEventDone {
		t.Fatalf("events = %+v, want exactly one done", events)
	}
}

func TestChatStream_TransportDropMidStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
		// One valid chunk, then the connection dies without the final chunk.
		payload := "data: {\"content\":\"a\"}\n"
		fmt.Fprint(bufrw, "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nTransfer-Encoding: chunked\r\n\r\n")
		fmt.Fprintf(bufrw, "%x\r\n%s\r\n", len(payload), payload)
		bufrw.Flush()
		conn.Close()
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	var events []ChatEvent
	err := client.ChatStream(testContext(t), ChatRequest{}, func(ev ChatEvent) {
		events = append(events, ev)
	})

	if err == nil {
		t.Fatal("expected a transport error for a dropped connection")
	}
	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ErrTypeConnection {
		t.Errorf("err = %v, want a connection error", err)
	}
	for _, ev := range events {
		if ev.Terminal() {
			t.Errorf("no terminal event should be delivered on transport failure, got %+v", ev)
		}
	}
}

func TestChatStreamChan_DeliversAndCloses(t *testing.T) {
	server := sseServer(t,
		`data: {"content":"x"}`,
		`data: [DONE]`,
	)
	defer server.Close()

	client := newTestClient(server.URL)
	ch := client.ChatStreamChan(testContext(t), ChatRequest{})

	var events []ChatEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				if len(events) != 2 {
					t.Fatalf("events = %d, want 2", len(events))
				}
				if events[0].Kind != ChatEventToken || events[1].Kind != ChatEventDone {
					t.Errorf("events = %+v", events)
				}
				return
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("channel never closed")
		}
	}
}

// =============================================================================
// UNARY CLIENT TESTS
// =============================================================================

func TestHealth_DecodesSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"status":"ok","tools_available":true,"rag_available":false,
			"model_loaded":true,"model_name":"mistral-7b.Q4_K_M.gguf","documents_count":3
		}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	status, err := client.Health(testContext(t))

	if err != nil {
		t.Fatalf("Health error: %v", err)
	}
	if !status.ModelLoaded || status.ModelName != "mistral-7b.Q4_K_M.gguf" {
		t.Errorf("status = %+v", status)
	}
	if status.DocumentsCount != 3 {
		t.Errorf("DocumentsCount = %d, want 3", status.DocumentsCount)
	}
}

func TestCheckRunning_BackendDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening anymore

	client := newTestClient(server.URL)
	err := client.CheckRunning(testContext(t))

	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("err = %v, want ErrNotRunning", err)
	}
	if !IsNotRunning(err) {
		t.Error("IsNotRunning should be true")
	}
}

func TestHealth_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx, cancel := context.WithTimeout(testContext(t), 50*time.Millisecond)
	defer cancel()

	_, err := client.Health(ctx)
	if !IsTimeout(err) {
		t.Errorf("err = %v, want timeout", err)
	}
}

func TestLoadModel_SendsPathAndContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/load_model" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"path":"/models/m.gguf"`) {
			t.Errorf("body = %s", body)
		}
		if !strings.Contains(string(body), `"n_ctx":8192`) {
			t.Errorf("body = %s, want default n_ctx", body)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"success","message":"Loaded model: /models/m.gguf"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.LoadModel(testContext(t), "/models/m.gguf")

	if err != nil {
		t.Fatalf("LoadModel error: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("Status = %q", resp.Status)
	}
}

func TestLoadModel_FileNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"detail":"Model file not found: /models/nope.gguf"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.LoadModel(testContext(t), "/models/nope.gguf")

	if !IsNotFound(err) {
		t.Errorf("err = %v, want not-found", err)
	}
}

func TestSearchModels_QueryParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "mistral gguf" {
			t.Errorf("q = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Errorf("limit = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"models":[
			{"id":"TheBloke/Mistral-7B-GGUF","author":"TheBloke","downloads":123456,"likes":789,"tags":["gguf"]}
		]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	models, err := client.SearchModels(testContext(t), "mistral gguf", 10)

	if err != nil {
		t.Fatalf("SearchModels error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "TheBloke/Mistral-7B-GGUF" {
		t.Errorf("models = %+v", models)
	}
}

func TestModelFiles_RepoPathKeepsSlash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models/files/TheBloke/Mistral-7B-GGUF" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"files":[{"name":"m.Q4_K_M.gguf","size":4368439584,"sizeFormatted":"4.1 GB"}]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	files, err := client.ModelFiles(testContext(t), "TheBloke/Mistral-7B-GGUF")

	if err != nil {
		t.Fatalf("ModelFiles error: %v", err)
	}
	if len(files) != 1 || files[0].SizeFormatted != "4.1 GB" {
		t.Errorf("files = %+v", files)
	}
}

func TestDeleteLocalModel_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %q", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"detail":"Model not found"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.DeleteLocalModel(testContext(t), "gone.gguf")

	if !IsNotFound(err) {
		t.Errorf("err = %v, want not-found", err)
	}
}

func TestUploadDocument_Multipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "notes.txt" {
			t.Errorf("filename = %q", header.Filename)
		}
		content, _ := io.ReadAll(file)
		if string(content) != "hello rag" {
			t.Errorf("content = %q", content)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"success","document":{"id":"d1","filename":"notes.txt","chunk_count":1},"message":"ok"}`)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello rag"), 0644); err != nil {
		t.Fatal(err)
	}

	client := newTestClient(server.URL)
	resp, err := client.UploadDocument(testContext(t), path)

	if err != nil {
		t.Fatalf("UploadDocument error: %v", err)
	}
	if resp.Document.ID != "d1" || resp.Document.ChunkCount != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestClearDocuments_ReturnsCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/v1/documents" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"cleared","documents_removed":4}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	removed, err := client.ClearDocuments(testContext(t))

	if err != nil {
		t.Fatalf("ClearDocuments error: %v", err)
	}
	if removed != 4 {
		t.Errorf("removed = %d, want 4", removed)
	}
}

func TestChat_NonStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"stream":false`) {
			t.Errorf("body = %s, want stream:false", body)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id":"c1","model":"local",
			"choices":[{"index":0,"message":{"role":"assistant","content":"HI"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}
		}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.Chat(testContext(t), ChatRequest{
		Messages: []Message{NewUserMessage("hi")},
		Stream:   true, // must be forced off for the unary call
	})

	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if resp.Content() != "HI" {
		t.Errorf("Content = %q", resp.Content())
	}
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestNewClientWithConfig_FillsDefaults(t *testing.T) {
	client := NewClientWithConfig(&ClientConfig{})

	if client.config.BaseURL != "http://127.0.0.1:8000" {
		t.Errorf("BaseURL = %q", client.config.BaseURL)
	}
	if client.config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", client.config.Timeout)
	}
	if client.config.NumCtx != 8192 {
		t.Errorf("NumCtx = %d", client.config.NumCtx)
	}
}

func TestNewClientWithConfig_NilUsesDefaults(t *testing.T) {
	client := NewClientWithConfig(nil)

	if client.BaseURL() != "http://127.0.0.1:8000" {
		t.Errorf("BaseURL = %q", client.BaseURL())
	}
}

// =============================================================================
// ERROR TYPE TESTS
// =============================================================================

func TestClientError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ClientError{Type: ErrTypeNotRunning, Message: "backend unreachable", Cause: cause}

	if got := err.Error(); got != "backend unreachable: connection refused" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the cause")
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"not running", ErrNotRunning, IsNotRunning, true},
		{"timeout", ErrTimeout, IsTimeout, true},
		{"no model", ErrNoModelLoaded, IsNoModelLoaded, true},
		{"launch", &ClientError{Type: ErrTypeLaunch, Message: "x"}, IsLaunchError, true},
		{"wrapped", fmt.Errorf("wrap: %w", ErrTimeout), IsTimeout, true},
		{"mismatch", ErrTimeout, IsNotRunning, false},
		{"plain error", errors.New("nope"), IsTimeout, false},
		{"nil", nil, IsTimeout, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.check(tc.err); got != tc.want {
				t.Errorf("check = %v, want %v", got, tc.want)
			}
		})
	}
}

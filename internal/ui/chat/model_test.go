// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file contains tests for the update loop and stream lifecycle.
package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/model"
	"github.com/jeranaias/cognito-tui/internal/storage"
	"github.com/jeranaias/cognito-tui/internal/ui/styles"
)

// update runs one message through the model and re-types the result.
func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	um, ok := updated.(Model)
	if !ok {
		t.Fatalf("Update returned %T, expected chat.Model", updated)
	}
	return um, cmd
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

// =============================================================================
// CONSTRUCTION TESTS
// =============================================================================

func TestNew_InitialState(t *testing.T) {
	m := New(styles.NewTheme(), Options{ModelName: "a.gguf", Version: "1.0"})

	if m.state != StateWelcome {
		t.Errorf("Expected StateWelcome, got %v", m.state)
	}
	if m.conversation == nil {
		t.Fatal("Expected a conversation")
	}
	if m.conversation.Model != "a.gguf" {
		t.Errorf("Expected conversation model set, got %q", m.conversation.Model)
	}
	if m.streamBuf == nil {
		t.Fatal("Expected a streaming buffer")
	}
}

func TestNew_MaxTokens(t *testing.T) {
	m := New(styles.NewTheme(), Options{MaxTokens: 4096})

	if m.conversation.MaxTokens != 4096 {
		t.Errorf("Expected context window 4096, got %d", m.conversation.MaxTokens)
	}
}

// =============================================================================
// RESIZE AND KEY TESTS
// =============================================================================

func TestUpdate_WindowSize(t *testing.T) {
	m := newTestModel(t)

	um, _ := update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})

	if um.width != 100 || um.height != 40 {
		t.Errorf("Expected 100x40, got %dx%d", um.width, um.height)
	}
	if um.viewport.Width != 100 {
		t.Errorf("Expected viewport width 100, got %d", um.viewport.Width)
	}
	if um.viewport.Height >= 40 {
		t.Errorf("Viewport should leave room for chrome, got %d", um.viewport.Height)
	}
}

func TestHandleKey_WelcomeToReady(t *testing.T) {
	m := newTestModel(t)
	m.state = StateWelcome

	um, _ := update(t, m, keyMsg("a"))

	if um.state != StateReady {
		t.Errorf("Expected StateReady after keypress, got %v", um.state)
	}
	if !um.input.Focused() {
		t.Error("Expected input focused")
	}
}

func TestHandleKey_QuitFromReady(t *testing.T) {
	m := newTestModel(t)

	_, cmd := update(t, m, keyMsg("ctrl+c"))

	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg from ctrl+c")
	}
}

func TestHandleKey_CtrlCDuringStreamCancels(t *testing.T) {
	m := newTestModel(t)
	m.state = StateStreaming

	canceled := false
	m.setCancelFunc(func() { canceled = true })

	um, cmd := update(t, m, keyMsg("ctrl+c"))

	if cmd != nil {
		if _, ok := cmd().(tea.QuitMsg); ok {
			t.Error("Ctrl+C during a stream should cancel, not quit")
		}
	}
	if !canceled {
		t.Error("Expected the stream context to be canceled")
	}
	// Teardown waits for the terminal stream event.
	if um.state != StateStreaming {
		t.Errorf("Expected StateStreaming until completion arrives, got %v", um.state)
	}
	if um.statusMsg != "Canceled" {
		t.Errorf("Expected cancel notice, got %q", um.statusMsg)
	}
}

func TestHandleKey_EscDismissesError(t *testing.T) {
	m := newTestModel(t)
	um, _ := update(t, m, NewErrorMsg("Boom", "it broke"))

	if um.state != StateError {
		t.Fatalf("Expected StateError, got %v", um.state)
	}

	um, _ = update(t, um, keyMsg("esc"))

	if um.state != StateReady {
		t.Errorf("Expected StateReady after dismiss, got %v", um.state)
	}
	if um.errorDisplay.IsVisible() {
		t.Error("Expected error display hidden")
	}
}

// =============================================================================
// SUBMIT TESTS
// =============================================================================

func TestSubmit_EmptyInputDoesNothing(t *testing.T) {
	m := newTestModel(t)

	um, cmd := update(t, m, keyMsg("enter"))

	if cmd != nil {
		t.Error("Empty submit should not produce a command")
	}
	if !um.conversation.IsEmpty() {
		t.Error("Empty submit should not add messages")
	}
}

func TestSubmit_MessageStartsStream(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("hello there")

	um, cmd := update(t, m, keyMsg("enter"))

	if um.input.Value() != "" {
		t.Errorf("Expected input cleared, got %q", um.input.Value())
	}
	if um.conversation.MessageCount() != 2 {
		t.Fatalf("Expected user + assistant messages, got %d", um.conversation.MessageCount())
	}

	user := um.conversation.Messages[0]
	if user.Role != model.RoleUser || user.Content != "hello there" {
		t.Errorf("Unexpected user message: %+v", user)
	}

	assistant := um.conversation.Messages[1]
	if assistant.Role != model.RoleAssistant || !assistant.IsStreaming {
		t.Errorf("Expected streaming assistant message, got %+v", assistant)
	}

	if cmd == nil {
		t.Error("Expected a stream command")
	}
}

func TestSubmit_SlashRoutesToCommand(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("/version")

	um, _ := update(t, m, keyMsg("enter"))

	if got := lastMessageContent(t, um); !strings.Contains(got, "0.0.0-test") {
		t.Errorf("Expected version notice, got %q", got)
	}
	if um.state != StateReady {
		t.Errorf("Commands should not change state, got %v", um.state)
	}
}

// =============================================================================
// STREAM LIFECYCLE TESTS
// =============================================================================

// startStream puts the model mid-stream with an assistant message waiting.
func startStream(t *testing.T, m Model) (Model, string) {
	t.Helper()
	m.conversation.AddUserMessage("question")
	assistant := m.conversation.AddAssistantMessage()

	um, _ := update(t, m, NewStreamStartMsg(assistant.ID))
	return um, assistant.ID
}

func TestStreamLifecycle_StartToComplete(t *testing.T) {
	m := newTestModel(t)
	um, id := startStream(t, m)

	if um.state != StateStreaming {
		t.Fatalf("Expected StateStreaming, got %v", um.state)
	}
	if um.input.Focused() {
		t.Error("Expected input blurred while streaming")
	}
	if !um.isThinking {
		t.Error("Expected thinking phase before the first token")
	}

	um, _ = update(t, um, NewStreamTokenMsg(id, "Hello", true))
	if um.isThinking {
		t.Error("First token should end the thinking phase")
	}

	um, _ = update(t, um, NewStreamTokenMsg(id, " world", false))

	stats := model.NewStatistics()
	stats.Finalize(2)
	um, _ = update(t, um, StreamCompleteMsg{MessageID: id, Stats: stats})

	if um.state != StateReady {
		t.Errorf("Expected StateReady after completion, got %v", um.state)
	}
	if um.streamingMsgID != "" {
		t.Error("Expected streaming ID cleared")
	}
	if !um.input.Focused() {
		t.Error("Expected input focused again")
	}

	last := um.conversation.GetLastMessage()
	if last.IsStreaming {
		t.Error("Expected assistant message finalized")
	}
	if last.Content != "Hello world" {
		t.Errorf("Expected full content, got %q", last.Content)
	}
}

func TestStreamLifecycle_TickFlushesTokens(t *testing.T) {
	m := newTestModel(t)
	um, id := startStream(t, m)

	um, _ = update(t, um, NewStreamTokenMsg(id, "Hi", true))

	// Let the time-based flush threshold pass.
	time.Sleep(40 * time.Millisecond)

	um, cmd := update(t, um, NewStreamTickMsg())
	if cmd == nil {
		t.Error("Tick should reschedule itself while streaming")
	}

	last := um.conversation.GetLastMessage()
	if got := last.GetDisplayContent(); got != "Hi" {
		t.Errorf("Expected flushed token in message, got %q", got)
	}
}

func TestStreamLifecycle_TickStopsWhenNotStreaming(t *testing.T) {
	m := newTestModel(t)

	_, cmd := update(t, m, NewStreamTickMsg())
	if cmd != nil {
		t.Error("Tick should not reschedule outside a stream")
	}
}

func TestStreamLifecycle_Error(t *testing.T) {
	m := newTestModel(t)
	um, id := startStream(t, m)

	um, _ = update(t, um, NewStreamTokenMsg(id, "partial", true))
	um, _ = update(t, um, StreamErrorMsg{MessageID: id, Error: errors.New("model exploded")})

	if um.state != StateError {
		t.Errorf("Expected StateError, got %v", um.state)
	}
	if !um.errorDisplay.IsVisible() {
		t.Error("Expected error display visible")
	}

	// Tokens that arrived before the failure stay in the transcript.
	last := um.conversation.GetLastMessage()
	if last.IsStreaming {
		t.Error("Expected assistant message finalized after error")
	}
	if last.Content != "partial" {
		t.Errorf("Expected partial content kept, got %q", last.Content)
	}
}

func TestStreamLifecycle_StaleTokenIgnored(t *testing.T) {
	m := newTestModel(t)
	um, _ := startStream(t, m)

	um, _ = update(t, um, NewStreamTokenMsg("other-message", "stray", true))

	if um.streamBuf.Pending() != 0 {
		t.Error("Token for another message should not reach the buffer")
	}
	if !um.isThinking {
		t.Error("Stale token should not end the thinking phase")
	}
}

func TestStreamLifecycle_StaleCompleteIgnored(t *testing.T) {
	m := newTestModel(t)
	um, _ := startStream(t, m)

	um, _ = update(t, um, StreamCompleteMsg{MessageID: "other-message"})

	if um.state != StateStreaming {
		t.Errorf("Stale completion should not end the stream, got %v", um.state)
	}
}

func TestStreamLifecycle_EscCancelsButKeepsStreaming(t *testing.T) {
	m := newTestModel(t)
	um, id := startStream(t, m)

	canceled := false
	um.setCancelFunc(func() { canceled = true })

	um, _ = update(t, um, keyMsg("esc"))

	if !canceled {
		t.Error("Expected cancel func invoked")
	}
	if um.state != StateStreaming {
		t.Errorf("Expected StateStreaming until the final event, got %v", um.state)
	}

	// The backend resolves cancellation as a clean completion.
	um, _ = update(t, um, StreamCompleteMsg{MessageID: id})
	if um.state != StateReady {
		t.Errorf("Expected StateReady after clean completion, got %v", um.state)
	}
}

// =============================================================================
// BACKEND MESSAGE TESTS
// =============================================================================

func TestHandleHealth_AdoptsReportedModel(t *testing.T) {
	m := newTestModel(t)
	m.modelName = ""
	m.conversation.Model = ""

	snap := backend.HealthSnapshot{
		State:  backend.HealthOnline,
		Status: &backend.HealthStatus{ModelLoaded: true, ModelName: "served.gguf"},
	}
	um, _ := update(t, m, HealthMsg{Snapshot: snap})

	if um.modelName != "served.gguf" {
		t.Errorf("Expected adopted model name, got %q", um.modelName)
	}
	if um.conversation.Model != "served.gguf" {
		t.Errorf("Expected conversation model updated, got %q", um.conversation.Model)
	}
}

func TestHandleHealth_KeepsExplicitModel(t *testing.T) {
	m := newTestModel(t)

	snap := backend.HealthSnapshot{
		State:  backend.HealthOnline,
		Status: &backend.HealthStatus{ModelLoaded: true, ModelName: "other.gguf"},
	}
	um, _ := update(t, m, HealthMsg{Snapshot: snap})

	if um.modelName != "test-model.gguf" {
		t.Errorf("Loaded model should not be replaced, got %q", um.modelName)
	}
}

func TestHandleBackendExit(t *testing.T) {
	m := newTestModel(t)

	um, _ := update(t, m, BackendExitMsg{Err: errors.New("exit status 1")})

	if um.state != StateError {
		t.Errorf("Expected StateError, got %v", um.state)
	}
	if !um.errorDisplay.IsVisible() {
		t.Error("Expected error display visible")
	}
}

func TestHandleBackendExit_NilErr(t *testing.T) {
	m := newTestModel(t)

	um, _ := update(t, m, BackendExitMsg{})

	if um.state != StateError {
		t.Errorf("Expected StateError even without an exit error, got %v", um.state)
	}
}

// =============================================================================
// MODEL MESSAGE TESTS
// =============================================================================

func TestHandleModelsScanned(t *testing.T) {
	m := newTestModel(t)

	models := []model.LocalModelFile{{Filename: "a.gguf"}, {Filename: "b.gguf"}}
	um, _ := update(t, m, ModelsScannedMsg{Models: models})

	sel := um.modelPicker.Selected()
	if sel == nil || sel.Filename != "a.gguf" {
		t.Errorf("Expected picker populated with first model, got %+v", sel)
	}
}

func TestHandleModelsScanned_Error(t *testing.T) {
	m := newTestModel(t)
	m.modelPicker.Show()

	um, _ := update(t, m, ModelsScannedMsg{Error: errors.New("permission denied")})

	if um.modelPicker.IsVisible() {
		t.Error("Expected picker hidden on scan failure")
	}
	if um.state != StateError {
		t.Errorf("Expected StateError, got %v", um.state)
	}
}

func TestHandleModelLoaded(t *testing.T) {
	m := newTestModel(t)

	um, _ := update(t, m, ModelLoadedMsg{Name: "new.gguf"})

	if um.modelName != "new.gguf" {
		t.Errorf("Expected model name updated, got %q", um.modelName)
	}
	if um.conversation.Model != "new.gguf" {
		t.Errorf("Expected conversation model updated, got %q", um.conversation.Model)
	}
	if got := lastMessageContent(t, um); !strings.Contains(got, "Loaded model new.gguf") {
		t.Errorf("Expected load notice, got %q", got)
	}
}

func TestHandleModelLoaded_Error(t *testing.T) {
	m := newTestModel(t)

	um, _ := update(t, m, ModelLoadedMsg{Name: "bad.gguf", Error: errors.New("file truncated")})

	if um.state != StateError {
		t.Errorf("Expected StateError, got %v", um.state)
	}
	if um.modelName != "test-model.gguf" {
		t.Errorf("Failed load should not change the model name, got %q", um.modelName)
	}
}

func TestHandleDownloadProgress(t *testing.T) {
	m := newTestModel(t)

	um, cmd := update(t, m, DownloadProgressMsg{Progress: backend.DownloadProgress{
		RepoID:  "org/repo",
		State:   backend.DownloadActive,
		Percent: 42,
	}})

	if !um.downloadBar.IsVisible() {
		t.Error("Expected download bar visible")
	}
	if cmd != nil {
		t.Error("Active progress should not trigger a rescan")
	}

	_, cmd = update(t, um, DownloadProgressMsg{Progress: backend.DownloadProgress{
		RepoID: "org/repo",
		State:  backend.DownloadComplete,
	}})
	if cmd == nil {
		t.Error("Completed download should rescan local models")
	}
}

// =============================================================================
// SESSION MESSAGE TESTS
// =============================================================================

func TestHandleSessionResumed(t *testing.T) {
	m := newTestModel(t)

	conv := model.NewConversation()
	conv.Model = "test-model.gguf"
	conv.AddUserMessage("old question")

	um, _ := update(t, m, SessionResumedMsg{Conversation: conv})

	if um.conversation != conv {
		t.Error("Expected conversation replaced")
	}
	if um.state != StateReady {
		t.Errorf("Expected StateReady, got %v", um.state)
	}
}

func TestHandleSessionResumed_ModelMismatch(t *testing.T) {
	m := newTestModel(t)

	conv := model.NewConversation()
	conv.Model = "other.gguf"
	conv.AddUserMessage("old question")

	um, _ := update(t, m, SessionResumedMsg{Conversation: conv})

	if got := lastMessageContent(t, um); !strings.Contains(got, "Resumed from model other.gguf") {
		t.Errorf("Expected model mismatch notice, got %q", got)
	}
	if um.conversation.Model != "test-model.gguf" {
		t.Errorf("Expected conversation to continue with the loaded model, got %q", um.conversation.Model)
	}
}

func TestHandleSessionsListed_ShowsPicker(t *testing.T) {
	m := newTestModel(t)

	sessions := []storage.ConversationMeta{
		{ID: "conv_1", Summary: "first chat", MessageCount: 4},
	}
	um, _ := update(t, m, SessionsListedMsg{Sessions: sessions})

	if !um.sessionPicker.IsVisible() {
		t.Error("Expected session picker visible")
	}
	if sel := um.sessionPicker.Selected(); sel == nil || sel.ID != "conv_1" {
		t.Errorf("Expected first session selected, got %+v", sel)
	}
}

func TestHandleSessionsListed_Error(t *testing.T) {
	m := newTestModel(t)

	um, _ := update(t, m, SessionsListedMsg{Error: errors.New("disk error")})

	if um.state != StateError {
		t.Errorf("Expected StateError, got %v", um.state)
	}
	if um.sessionPicker.IsVisible() {
		t.Error("Picker should stay hidden on list failure")
	}
}

// =============================================================================
// STREAM RUNNER TESTS
// =============================================================================

func TestStreamRunner_NilClient(t *testing.T) {
	r := NewStreamRunner(nil)

	// No program bound: sends are dropped, and Run must not panic.
	r.Run(context.Background(), backend.ChatRequest{}, "msg-1")
}

func TestStreamRunner_SetProgramConcurrent(t *testing.T) {
	r := NewStreamRunner(nil)

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			r.SetProgram(nil)
		}
		done <- true
	}()
	go func() {
		for i := 0; i < 100; i++ {
			r.send(StreamTickMsg{})
		}
		done <- true
	}()
	<-done
	<-done
}

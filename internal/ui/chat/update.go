// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file holds the stream runner, the async command constructors, and the
// handlers for messages arriving from outside the key loop.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/model"
	"github.com/jeranaias/cognito-tui/internal/storage"
	"github.com/jeranaias/cognito-tui/internal/ui/components"
)

// loadModelTimeout bounds a load_model call. Large GGUF files can take a
// while to map into memory.
const loadModelTimeout = 5 * time.Minute

// =============================================================================
// STREAM RUNNER
// =============================================================================

// StreamRunner executes streaming chat requests and pushes the resulting
// events into the Bubble Tea program.
//
// The runner is created before the program exists; main wires the program in
// with SetProgram once tea.NewProgram has run.
type StreamRunner struct {
	mu      sync.Mutex
	program *tea.Program
	client  *backend.Client
}

// NewStreamRunner creates a stream runner for the given client.
func NewStreamRunner(client *backend.Client) *StreamRunner {
	return &StreamRunner{client: client}
}

// SetProgram binds the running program. Must be called before the first Run.
func (r *StreamRunner) SetProgram(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.program = p
}

func (r *StreamRunner) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Run executes one streaming chat request, blocking until the stream ends.
// Events are forwarded to the program as Stream* messages. Exactly one of
// StreamCompleteMsg or StreamErrorMsg is sent per call.
func (r *StreamRunner) Run(ctx context.Context, req backend.ChatRequest, messageID string) {
	if r.client == nil {
		r.send(StreamErrorMsg{MessageID: messageID, Error: backend.ErrNotRunning})
		return
	}

	r.send(NewStreamStartMsg(messageID))

	stats := model.NewStatistics()
	isFirst := true
	tokenCount := 0
	terminalSent := false

	err := r.client.ChatStream(ctx, req, func(ev backend.ChatEvent) {
		switch ev.Kind {
		case backend.ChatEventStatus:
			r.send(StreamStatusMsg{
				MessageID: messageID,
				Status:    ev.Status,
				Query:     ev.Query,
				Detail:    ev.Detail,
			})

		case backend.ChatEventToken:
			if ev.Token == "" {
				return
			}
			r.send(NewStreamTokenMsg(messageID, ev.Token, isFirst))
			if isFirst {
				stats.RecordFirstToken()
				isFirst = false
			}
			tokenCount++

		case backend.ChatEventError:
			r.send(StreamErrorMsg{MessageID: messageID, Error: ev.Err})
			terminalSent = true

		case backend.ChatEventDone:
			stats.Finalize(tokenCount)
			r.send(StreamCompleteMsg{MessageID: messageID, Stats: stats})
			terminalSent = true
		}
	})

	// Transport failures surface through the return value. The callback
	// already delivered a terminal event for backend-signaled errors and
	// clean completions, including cancellation.
	if err != nil && !terminalSent {
		r.send(StreamErrorMsg{MessageID: messageID, Error: err})
	}
}

// =============================================================================
// STREAM MESSAGE HANDLERS
// =============================================================================

func (m Model) handleStreamStart(msg StreamStartMsg) (tea.Model, tea.Cmd) {
	m.streamingMsgID = msg.MessageID
	m.streamingStats = model.NewStatistics()
	m.state = StateStreaming
	m.isThinking = true
	m.input.Blur()
	m.statusBar.SetStatus(components.StatusThinking)

	m.streamBuf.Reset()
	m.spin = components.NewThinkingSpinner()

	return m, tea.Batch(m.spin.Start(), streamTickCmd())
}

func (m Model) handleStreamStatus(msg StreamStatusMsg) (tea.Model, tea.Cmd) {
	if msg.MessageID != m.streamingMsgID {
		return m, nil
	}

	switch msg.Status {
	case backend.StatusSearching:
		m.spin.SetMessage("Searching")
		m.spin.SetDetail(msg.Query)
	case backend.StatusRetrievingDocs:
		m.spin.SetMessage("Retrieving documents")
		m.spin.SetDetail("")
	case backend.StatusSearchComplete:
		m.spin.SetMessage("Thinking")
		m.spin.SetDetail("")
	case backend.StatusSearchFailed:
		// Not terminal: generation continues without search results.
		m.spin.SetMessage("Thinking")
		m.spin.SetDetail("Search failed: " + msg.Detail)
	case backend.StatusGenerating:
		m.spin.SetMessage("Thinking")
	}
	return m, nil
}

func (m Model) handleStreamToken(msg StreamTokenMsg) (tea.Model, tea.Cmd) {
	if msg.MessageID != m.streamingMsgID {
		return m, nil
	}

	if msg.IsFirst {
		if m.streamingStats != nil {
			m.streamingStats.RecordFirstToken()
		}
		m.isThinking = false
		m.spin.Stop()
		m.statusBar.SetStatus(components.StatusStreaming)
	}

	// Tokens collect in the buffer; the tick handler renders them in
	// batches so a fast stream cannot saturate the terminal.
	m.streamBuf.Write(msg.Token)
	return m, nil
}

func (m Model) handleStreamTick(msg StreamTickMsg) (tea.Model, tea.Cmd) {
	if m.state != StateStreaming {
		return m, nil
	}

	if content, ok := m.streamBuf.Flush(); ok {
		m.conversation.AppendToLast(content)
		m.updateViewport()
		m.viewport.GotoBottom()
	}

	return m, streamTickCmd()
}

func (m Model) handleStreamComplete(msg StreamCompleteMsg) (tea.Model, tea.Cmd) {
	if msg.MessageID != m.streamingMsgID {
		return m, nil
	}

	if content, ok := m.streamBuf.ForceFlush(); ok {
		m.conversation.AppendToLast(content)
	}

	if msg.Stats != nil {
		m.conversation.FinalizeLast(msg.Stats)
		m.statusBar.SetTokensPerSec(msg.Stats.TokensPerSecond)
	} else {
		m.conversation.FinalizeLast(m.streamingStats)
	}

	m.state = StateReady
	m.isThinking = false
	m.streamingMsgID = ""
	m.streamingStats = nil
	m.spin.Stop()
	m.cancelStream()

	m.statusBar.SetStatus(components.StatusReady)
	m.statusBar.SetTokenUsage(m.conversation.EstimateTokens(), 0)

	m.updateViewport()
	m.viewport.GotoBottom()
	m.input.Focus()

	return m, textinput.Blink
}

func (m Model) handleStreamError(msg StreamErrorMsg) (tea.Model, tea.Cmd) {
	if msg.MessageID != "" && msg.MessageID != m.streamingMsgID {
		return m, nil
	}

	// Keep whatever tokens arrived before the failure.
	if content, ok := m.streamBuf.ForceFlush(); ok {
		m.conversation.AppendToLast(content)
	}
	m.conversation.FinalizeLast(nil)

	m.isThinking = false
	m.streamingMsgID = ""
	m.streamingStats = nil
	m.spin.Stop()
	m.cancelStream()

	m.errorDisplay = components.NewBackendError(msg.Error)
	m.errorDisplay.SetSize(m.width)
	m.state = StateError
	m.statusBar.SetStatus(components.StatusError)

	m.updateViewport()
	m.input.Focus()

	return m, nil
}

// =============================================================================
// BACKEND MESSAGE HANDLERS
// =============================================================================

func (m Model) handleHealth(msg HealthMsg) (tea.Model, tea.Cmd) {
	m.health = msg.Snapshot
	m.statusBar.SetHealth(msg.Snapshot)
	m.welcome.SetHealth(msg.Snapshot)

	// Pick up the model name the backend reports, e.g. when it was loaded
	// through the CLI or a previous run.
	if msg.Snapshot.Status != nil && msg.Snapshot.Status.ModelName != "" && m.modelName == "" {
		m.modelName = msg.Snapshot.Status.ModelName
		m.conversation.Model = m.modelName
		m.statusBar.SetModel(m.modelName)
		m.welcome.SetModelName(m.modelName)
	}

	return m, nil
}

func (m Model) handleBackendExit(msg BackendExitMsg) (tea.Model, tea.Cmd) {
	err := msg.Err
	if err == nil {
		err = backend.ErrNotRunning
	}

	m.errorDisplay = components.NewBackendError(err)
	m.errorDisplay.SetSize(m.width)
	m.state = StateError
	m.statusBar.SetStatus(components.StatusError)
	return m, nil
}

// =============================================================================
// MODEL MESSAGE HANDLERS
// =============================================================================

func (m Model) handleModelsScanned(msg ModelsScannedMsg) (tea.Model, tea.Cmd) {
	if msg.Error != nil {
		m.modelPicker.Hide()
		errMsg := NewErrorMsg("Model Scan Failed", msg.Error.Error())
		return m.Update(errMsg)
	}
	m.modelPicker.SetModels(msg.Models)
	return m, nil
}

func (m Model) handleModelLoaded(msg ModelLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.Error != nil {
		m.statusMsg = ""
		return m.Update(NewBackendErrorMsg(msg.Error))
	}

	m.modelName = msg.Name
	m.conversation.Model = msg.Name
	m.statusBar.SetModel(msg.Name)
	m.statusBar.SetStatus(components.StatusReady)
	m.welcome.SetModelName(msg.Name)
	m.statusMsg = ""

	m.conversation.AddSystemMessage("Loaded model " + msg.Name)
	m.updateViewport()
	m.viewport.GotoBottom()
	return m, nil
}

func (m Model) handleDownloadProgress(msg DownloadProgressMsg) (tea.Model, tea.Cmd) {
	m.downloadBar.SetProgress(msg.Progress)

	// A finished download may have produced a new local model.
	if msg.Progress.State == backend.DownloadComplete {
		return m, scanModelsCmd(m.modelsDir, m.ledger)
	}
	return m, nil
}

// =============================================================================
// CONVERSATION MESSAGE HANDLERS
// =============================================================================

func (m Model) handleConversationSaved(msg ConversationSavedMsg) (tea.Model, tea.Cmd) {
	if msg.Error != nil {
		return m.Update(NewErrorMsg("Save Failed", msg.Error.Error()))
	}
	m.conversation.AddSystemMessage("Conversation saved as " + msg.ID)
	m.updateViewport()
	m.viewport.GotoBottom()
	return m, nil
}

func (m Model) handleSessionsListed(msg SessionsListedMsg) (tea.Model, tea.Cmd) {
	if msg.Error != nil {
		return m.Update(NewErrorMsg("Session List Failed", msg.Error.Error()))
	}
	m.sessionPicker.SetSessions(msg.Sessions)
	m.sessionPicker.Show()
	return m, nil
}

func (m Model) handleSessionResumed(msg SessionResumedMsg) (tea.Model, tea.Cmd) {
	if msg.Error != nil {
		return m.Update(NewErrorMsg("Resume Failed", msg.Error.Error()))
	}
	if msg.Conversation == nil {
		return m, nil
	}

	m.conversation = msg.Conversation
	if m.conversation.Model != "" && m.conversation.Model != m.modelName {
		// The transcript continues with the currently loaded model.
		m.conversation.AddSystemMessage("Resumed from model " + m.conversation.Model + ", now using " + displayModelName(m.modelName))
		m.conversation.Model = m.modelName
	}

	m.state = StateReady
	m.statusBar.SetTokenUsage(m.conversation.EstimateTokens(), 0)
	m.updateViewport()
	m.viewport.GotoBottom()
	m.input.Focus()
	return m, textinput.Blink
}

func displayModelName(name string) string {
	if name == "" {
		return "no model"
	}
	return name
}

// =============================================================================
// ASYNC COMMANDS
// =============================================================================

// scanModelsCmd lists the GGUF files in the local models directory and joins
// download provenance from the ledger when one is open. A ledger error only
// drops the provenance column, never the scan.
func scanModelsCmd(dir string, ledger *storage.Ledger) tea.Cmd {
	return func() tea.Msg {
		models, err := model.ScanModels(dir)
		if err == nil && ledger != nil {
			if repos, lerr := ledger.ProvenanceMap(); lerr == nil {
				model.AttachProvenance(models, repos)
			}
		}
		return ModelsScannedMsg{Models: models, Error: err}
	}
}

// loadModelCmd asks the backend to load a model file.
func loadModelCmd(client *backend.Client, path, name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadModelTimeout)
		defer cancel()

		if _, err := client.LoadModel(ctx, path); err != nil {
			return ModelLoadedMsg{Name: name, Error: err}
		}
		return ModelLoadedMsg{Name: name}
	}
}

// saveConversationCmd persists the conversation to the store.
func saveConversationCmd(store *storage.ConversationStore, conv *model.Conversation) tea.Cmd {
	snapshot := toStored(conv)
	return func() tea.Msg {
		id, err := store.Save(snapshot)
		return ConversationSavedMsg{ID: id, Error: err}
	}
}

// listSessionsCmd lists saved conversations.
func listSessionsCmd(store *storage.ConversationStore) tea.Cmd {
	return func() tea.Msg {
		sessions, err := store.List()
		return SessionsListedMsg{Sessions: sessions, Error: err}
	}
}

// resumeSessionCmd loads a saved conversation by ID.
func resumeSessionCmd(store *storage.ConversationStore, id string) tea.Cmd {
	return func() tea.Msg {
		sc, err := store.Load(id)
		if err != nil {
			return SessionResumedMsg{Error: err}
		}
		return SessionResumedMsg{Conversation: fromStored(sc)}
	}
}

// resumeSessionByIndexCmd loads a saved conversation by list position,
// 1-based and newest first, for "/resume 2" style commands.
func resumeSessionByIndexCmd(store *storage.ConversationStore, index int) tea.Cmd {
	return func() tea.Msg {
		sc, err := store.LoadByIndex(index)
		if err != nil {
			return SessionResumedMsg{Error: err}
		}
		return SessionResumedMsg{Conversation: fromStored(sc)}
	}
}

// =============================================================================
// STORAGE CONVERSION
// =============================================================================

// toStored converts the live conversation into its persisted form.
func toStored(conv *model.Conversation) *storage.StoredConversation {
	sc := &storage.StoredConversation{
		ID:         conv.ID,
		Summary:    conv.GetTitle(),
		Model:      conv.Model,
		CreatedAt:  conv.CreatedAt,
		UpdatedAt:  conv.UpdatedAt,
		TokensUsed: conv.TokensUsed,
	}

	for _, msg := range conv.GetHistory() {
		if msg.IsStreaming {
			continue
		}
		sc.Messages = append(sc.Messages, storage.StoredMessage{
			ID:           msg.ID,
			Role:         msg.Role.String(),
			Content:      msg.Content,
			Timestamp:    msg.Timestamp,
			TokenCount:   msg.TokenCount,
			DurationMs:   msg.TotalDuration.Milliseconds(),
			TokensPerSec: msg.TokensPerSec,
			TTFTMs:       msg.TTFT.Milliseconds(),
		})
	}
	return sc
}

// fromStored rebuilds a live conversation from its persisted form.
func fromStored(sc *storage.StoredConversation) *model.Conversation {
	conv := model.NewConversation()
	conv.ID = sc.ID
	conv.Title = sc.Summary
	conv.Model = sc.Model
	conv.CreatedAt = sc.CreatedAt
	conv.UpdatedAt = sc.UpdatedAt

	for _, sm := range sc.Messages {
		msg := model.NewMessage(model.Role(sm.Role), sm.Content)
		msg.ID = sm.ID
		msg.Timestamp = sm.Timestamp
		msg.TokenCount = sm.TokenCount
		msg.TotalDuration = time.Duration(sm.DurationMs) * time.Millisecond
		msg.TokensPerSec = sm.TokensPerSec
		msg.TTFT = time.Duration(sm.TTFTMs) * time.Millisecond
		conv.AddMessage(msg)
	}
	return conv
}

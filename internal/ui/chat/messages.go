// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines all Bubble Tea message types used by the chat interface.
// Messages are organized into the following categories:
//   - Streaming: stream start, status phases, token delivery, completion, errors
//   - Backend: health snapshots and supervisor exit
//   - Models: local model scans and load results
//   - Download: progress snapshots from the download coordinator
//   - Conversation: save, list, and resume
//   - Errors: error display and dismissal
//
// All message types follow Bubble Tea conventions and are immutable.
package chat

import (
	"time"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/model"
	"github.com/jeranaias/cognito-tui/internal/storage"
	"github.com/jeranaias/cognito-tui/internal/ui/components"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamStartMsg signals that streaming has begun.
type StreamStartMsg struct {
	MessageID string
	StartTime time.Time
}

// StreamStatusMsg reports a backend phase change before or between tokens,
// such as a web search or document retrieval pass.
type StreamStatusMsg struct {
	MessageID string
	Status    string // one of the backend.Status* values
	Query     string // search query when Status is "searching"
	Detail    string // error detail when Status is "search_failed"
}

// StreamTokenMsg delivers a new token from the stream.
type StreamTokenMsg struct {
	MessageID string
	Token     string
	IsFirst   bool
}

// StreamCompleteMsg signals that streaming has finished cleanly.
type StreamCompleteMsg struct {
	MessageID string
	Stats     *model.Statistics
}

// StreamErrorMsg signals a failure during streaming.
type StreamErrorMsg struct {
	MessageID string
	Error     error
}

// StreamTickMsg batches token renders to a fixed frame rate during
// streaming. Tokens can arrive far faster than a terminal can redraw.
type StreamTickMsg struct {
	Time time.Time
}

// =============================================================================
// BACKEND MESSAGES
// =============================================================================

// HealthMsg delivers a health monitor snapshot.
type HealthMsg struct {
	Snapshot backend.HealthSnapshot
}

// BackendExitMsg reports that the supervised backend process exited.
type BackendExitMsg struct {
	Err error
}

// =============================================================================
// MODEL MESSAGES
// =============================================================================

// ModelsScannedMsg delivers the models found in the local models directory.
type ModelsScannedMsg struct {
	Models []model.LocalModelFile
	Error  error
}

// ModelLoadedMsg confirms a load_model call.
type ModelLoadedMsg struct {
	Name  string
	Error error
}

// =============================================================================
// DOWNLOAD MESSAGES
// =============================================================================

// DownloadProgressMsg delivers a download coordinator snapshot.
type DownloadProgressMsg struct {
	Progress backend.DownloadProgress
}

// =============================================================================
// CONVERSATION MESSAGES
// =============================================================================

// ConversationSavedMsg confirms a save operation.
type ConversationSavedMsg struct {
	ID    string
	Error error
}

// SessionsListedMsg delivers the saved conversation list.
type SessionsListedMsg struct {
	Sessions []storage.ConversationMeta
	Error    error
}

// SessionResumedMsg delivers a restored conversation.
type SessionResumedMsg struct {
	Conversation *model.Conversation
	Error        error
}

// =============================================================================
// ERROR MESSAGES
// =============================================================================

// ErrorMsg displays an error to the user.
type ErrorMsg struct {
	Title       string
	Message     string
	Suggestions []string
	Dismissible bool
}

// ErrorDismissMsg dismisses the current error.
type ErrorDismissMsg struct{}

// =============================================================================
// HELPER CONSTRUCTORS
// =============================================================================

// NewStreamStartMsg creates a StreamStartMsg with the current timestamp.
func NewStreamStartMsg(messageID string) StreamStartMsg {
	return StreamStartMsg{
		MessageID: messageID,
		StartTime: time.Now(),
	}
}

// NewStreamTokenMsg creates a StreamTokenMsg for one content fragment.
func NewStreamTokenMsg(messageID, token string, isFirst bool) StreamTokenMsg {
	return StreamTokenMsg{
		MessageID: messageID,
		Token:     token,
		IsFirst:   isFirst,
	}
}

// NewErrorMsg creates a dismissible error message.
func NewErrorMsg(title, message string) ErrorMsg {
	return ErrorMsg{
		Title:       title,
		Message:     message,
		Dismissible: true,
	}
}

// NewBackendErrorMsg creates an error message from a backend error, with a
// title and suggestions matched to the error type.
func NewBackendErrorMsg(err error) ErrorMsg {
	return ErrorMsg{
		Title:       components.TitleFor(err),
		Message:     err.Error(),
		Suggestions: components.SuggestionsFor(err),
		Dismissible: true,
	}
}

// NewStreamTickMsg creates a streaming tick message.
func NewStreamTickMsg() StreamTickMsg {
	return StreamTickMsg{Time: time.Now()}
}

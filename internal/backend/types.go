// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for communicating with the cognito inference backend.
package backend

import "fmt"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message represents a chat message in the conversation.
type Message struct {
	Role    string `json:"role"`    // "user", "assistant", "system"
	Content string `json:"content"` // The message content
}

// ChatRequest is the request body for /v1/chat/completions.
type ChatRequest struct {
	Messages     []Message `json:"messages"`              // Conversation history
	Temperature  float64   `json:"temperature,omitempty"` // 0.0-2.0, backend default 0.7
	MaxTokens    int       `json:"max_tokens,omitempty"`  // Backend default 4096
	Stream       bool      `json:"stream"`                // SSE streaming when true
	DeepSearch   bool      `json:"deep_search,omitempty"` // Multi-query web search
	UseDocuments bool      `json:"use_documents,omitempty"` // RAG over uploaded documents
}

// LoadModelRequest is the request body for /v1/load_model.
type LoadModelRequest struct {
	Path   string `json:"path"`             // Absolute path to a .gguf file
	NumCtx int    `json:"n_ctx,omitempty"`  // Context window, backend default 8192
}

// DownloadRequest is the request body for /v1/models/download.
type DownloadRequest struct {
	RepoID   string `json:"repo_id"`  // e.g. "TheBloke/Mistral-7B-Instruct-v0.2-GGUF"
	Filename string `json:"filename"` // e.g. "mistral-7b-instruct-v0.2.Q4_K_M.gguf"
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// HealthStatus is the response from GET /health.
type HealthStatus struct {
	Status         string `json:"status"`
	ToolsAvailable bool   `json:"tools_available"`
	RAGAvailable   bool   `json:"rag_available"`
	ModelLoaded    bool   `json:"model_loaded"`
	ModelName      string `json:"model_name"`
	DocumentsCount int    `json:"documents_count"`
}

// Equal reports whether two health snapshots carry the same observable state.
func (h *HealthStatus) Equal(o *HealthStatus) bool {
	if h == nil || o == nil {
		return h == o
	}
	return h.Status == o.Status &&
		h.ToolsAvailable == o.ToolsAvailable &&
		h.RAGAvailable == o.RAGAvailable &&
		h.ModelLoaded == o.ModelLoaded &&
		h.ModelName == o.ModelName &&
		h.DocumentsCount == o.DocumentsCount
}

// LoadModelResponse is the response from POST /v1/load_model.
type LoadModelResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ChatResponse is the non-streaming response from /v1/chat/completions.
// The backend returns an OpenAI-style completion object.
type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

// ChatChoice is a single completion choice.
type ChatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage holds token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Content returns the first choice's message content, or "".
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// =============================================================================
// MODEL TYPES
// =============================================================================

// ModelSearchResult is one Hugging Face hit from GET /v1/models/search.
type ModelSearchResult struct {
	ID           string   `json:"id"`     // Repo id, e.g. "TheBloke/..."
	Author       string   `json:"author"`
	Downloads    int64    `json:"downloads"`
	Likes        int64    `json:"likes"`
	LastModified string   `json:"lastModified"`
	Tags         []string `json:"tags"`
}

// ModelSearchResponse is the response from GET /v1/models/search.
type ModelSearchResponse struct {
	Models []ModelSearchResult `json:"models"`
}

// ModelFile is one GGUF file listed by GET /v1/models/files/{repo_id}.
type ModelFile struct {
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"sizeFormatted"`
}

// ModelFilesResponse is the response from GET /v1/models/files/{repo_id}.
type ModelFilesResponse struct {
	Files []ModelFile `json:"files"`
}

// LocalModel is one downloaded model from GET /v1/models/local.
type LocalModel struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"sizeFormatted"`
}

// LocalModelsResponse is the response from GET /v1/models/local.
type LocalModelsResponse struct {
	Models    []LocalModel `json:"models"`
	Directory string       `json:"directory"`
}

// DeleteModelResponse is the response from DELETE /v1/models/local/{filename}.
type DeleteModelResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
}

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// Document is one uploaded RAG document.
type Document struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
}

// DocumentsResponse is the response from GET /v1/documents.
type DocumentsResponse struct {
	Documents    []Document `json:"documents"`
	RAGAvailable bool       `json:"rag_available"`
}

// DocumentUploadResponse is the response from POST /v1/documents/upload.
type DocumentUploadResponse struct {
	Status   string   `json:"status"`
	Document Document `json:"document"`
	Message  string   `json:"message"`
}

// DeleteDocumentResponse is the response from DELETE /v1/documents/{doc_id}.
type DeleteDocumentResponse struct {
	Status string `json:"status"`
	DocID  string `json:"doc_id"`
}

// ClearDocumentsResponse is the response from DELETE /v1/documents.
type ClearDocumentsResponse struct {
	Status           string `json:"status"`
	DocumentsRemoved int    `json:"documents_removed"`
}

// =============================================================================
// STREAMING EVENT TYPES
// =============================================================================

// Chat stream status values emitted by the backend.
const (
	StatusGenerating     = "generating"
	StatusRetrievingDocs = "retrieving_docs"
	StatusSearching      = "searching"
	StatusSearchComplete = "search_complete"
	StatusSearchFailed   = "search_failed"
)

// ChatEventKind discriminates decoded chat stream events.
type ChatEventKind int

const (
	ChatEventStatus ChatEventKind = iota // Backend phase change
	ChatEventToken                       // One content token
	ChatEventError                       // Backend-signaled failure, terminal
	ChatEventDone                        // Clean completion, terminal
)

// ChatEvent is one decoded event from the chat completion stream.
// Exactly one of the payload fields is meaningful for a given Kind.
type ChatEvent struct {
	Kind   ChatEventKind
	Status string // ChatEventStatus: one of the Status* constants
	Query  string // ChatEventStatus: search query when Status == StatusSearching
	Detail string // ChatEventStatus: error detail when Status == StatusSearchFailed
	Token  string // ChatEventToken: content fragment
	Err    error  // ChatEventError: backend-signaled error
}

// Terminal reports whether the event ends the logical stream.
func (e ChatEvent) Terminal() bool {
	return e.Kind == ChatEventError || e.Kind == ChatEventDone
}

// Download stream status values emitted by the backend.
const (
	DownloadStatusStarting    = "starting"
	DownloadStatusDownloading = "downloading"
	DownloadStatusProgress    = "progress"
	DownloadStatusComplete    = "complete"
	DownloadStatusError       = "error"
)

// DownloadEvent is one decoded frame from the model download stream.
type DownloadEvent struct {
	Status         string  `json:"status"`
	Filename       string  `json:"filename,omitempty"`
	Total          int64   `json:"total,omitempty"`
	TotalFormatted string  `json:"totalFormatted,omitempty"`
	Downloaded     int64   `json:"downloaded,omitempty"`
	Percent        float64 `json:"percent,omitempty"`
	Path           string  `json:"path,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Terminal reports whether the event ends the download stream.
func (e DownloadEvent) Terminal() bool {
	return e.Status == DownloadStatusComplete || e.Status == DownloadStatusError
}

// Failed reports whether the event is a terminal failure.
func (e DownloadEvent) Failed() bool {
	return e.Status == DownloadStatusError
}

// =============================================================================
// HELPER METHODS
// =============================================================================

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// FormatSize formats a byte count the way the backend does (one decimal).
func FormatSize(size int64) string {
	const unit = 1024
	value := float64(size)
	for _, suffix := range []string{"B", "KB", "MB", "GB"} {
		if value < unit {
			return fmt.Sprintf("%.1f %s", value, suffix)
		}
		value /= unit
	}
	return fmt.Sprintf("%.1f TB", value)
}

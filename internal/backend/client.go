// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for communicating with the cognito inference backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pkt.systems/pslog"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the backend client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown    ErrorType = iota
	ErrTypeNotRunning           // Backend unreachable (connect refused, wrong port)
	ErrTypeTimeout              // Request or probe deadline exceeded
	ErrTypeConnection           // Transport failed mid-request
	ErrTypeBackend              // Backend signaled failure (non-2xx, error frame)
	ErrTypeProtocol             // Response could not be decoded
	ErrTypeNoModel              // No model loaded on the backend
	ErrTypeNotFound             // Named model/document does not exist
	ErrTypeLaunch               // Backend process could not be started
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "cognito backend is not running"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrNoModelLoaded = &ClientError{Type: ErrTypeNoModel, Message: "no model loaded"}
)

// IsNotRunning checks if an error indicates the backend is not running.
func IsNotRunning(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeNotRunning
	}
	return false
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeTimeout
	}
	return false
}

// IsBackendError checks if the backend itself signaled the failure.
func IsBackendError(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeBackend
	}
	return false
}

// IsNoModelLoaded checks if an error means no model is loaded yet.
func IsNoModelLoaded(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeNoModel
	}
	return false
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeNotFound
	}
	return false
}

// IsLaunchError checks if an error came from spawning the backend process.
func IsLaunchError(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeLaunch
	}
	return false
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the backend API base URL (default: http://127.0.0.1:8000)
	// Note: Uses explicit IPv4 address instead of localhost to avoid IPv6 resolution issues on Windows
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// NumCtx is the context window requested when loading a model (default: 8192)
	NumCtx int
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: "http://127.0.0.1:8000",
		Timeout: 30 * time.Second,
		NumCtx:  8192,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the cognito backend API.
//
// The Client is safe for concurrent use. Streaming methods use a dedicated
// http.Client without a timeout; lifetime is controlled by the context.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new backend client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new backend client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8000"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.NumCtx == 0 {
		config.NumCtx = 8192
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// HEALTH
// =============================================================================

// Health fetches the backend health snapshot.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := c.getJSON(ctx, "/health", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CheckRunning verifies that the backend is reachable and healthy.
func (c *Client) CheckRunning(ctx context.Context) error {
	_, err := c.Health(ctx)
	return err
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// LoadModel asks the backend to load the GGUF model at path.
func (c *Client) LoadModel(ctx context.Context, path string) (*LoadModelResponse, error) {
	req := LoadModelRequest{Path: path, NumCtx: c.config.NumCtx}
	var result LoadModelResponse
	if err := c.postJSON(ctx, "/v1/load_model", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SearchModels searches Hugging Face for GGUF model repositories.
func (c *Client) SearchModels(ctx context.Context, query string, limit int) ([]ModelSearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var result ModelSearchResponse
	if err := c.getJSON(ctx, "/v1/models/search?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

// ModelFiles lists the GGUF files available in a repository.
// The repo id keeps its literal slashes; the backend routes it as a path.
func (c *Client) ModelFiles(ctx context.Context, repoID string) ([]ModelFile, error) {
	var result ModelFilesResponse
	if err := c.getJSON(ctx, "/v1/models/files/"+repoID, &result); err != nil {
		return nil, err
	}
	return result.Files, nil
}

// LocalModels lists models already downloaded into the models directory.
func (c *Client) LocalModels(ctx context.Context) (*LocalModelsResponse, error) {
	var result LocalModelsResponse
	if err := c.getJSON(ctx, "/v1/models/local", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteLocalModel removes a downloaded model file by name.
func (c *Client) DeleteLocalModel(ctx context.Context, filename string) error {
	var result DeleteModelResponse
	return c.doJSON(ctx, http.MethodDelete, "/v1/models/local/"+url.PathEscape(filename), nil, &result)
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// Chat sends a chat request and returns the complete response (non-streaming).
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Stream = false
	var result ChatResponse
	if err := c.postJSON(ctx, "/v1/chat/completions", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatCallback is called for each event received during streaming.
type ChatCallback func(ev ChatEvent)

// ChatStream sends a streaming chat request and calls the callback for each
// decoded event, synchronously and in arrival order.
//
// Exactly one terminal event is delivered per call: ChatEventDone on the
// [DONE] sentinel, on EOF, and on context cancellation; ChatEventError when
// the backend signals failure. Cancellation is a clean stop, never an error:
// the function returns nil and the callback sees a single ChatEventDone.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, callback ChatCallback) error {
	req.Stream = true

	terminal := false
	deliver := func(ev ChatEvent) {
		if terminal {
			return
		}
		if ev.Terminal() {
			terminal = true
		}
		callback(ev)
	}

	err := c.streamFrames(ctx, "/v1/chat/completions", req, func(frame Frame) bool {
		ev, ok := DecodeChatEvent(frame)
		if !ok {
			pslog.Ctx(ctx).Debug("skipping malformed chat frame", "len", len(frame.Data))
			return !terminal
		}
		deliver(ev)
		return !terminal
	})

	if err != nil {
		if errors.Is(err, context.Canceled) {
			deliver(ChatEvent{Kind: ChatEventDone})
			return nil
		}
		return err
	}

	// EOF without a sentinel still ends in exactly one completion.
	deliver(ChatEvent{Kind: ChatEventDone})
	return nil
}

// ChatStreamChan sends a streaming chat request and returns a channel of
// events. The channel is closed when the stream ends; transport errors are
// delivered as a final ChatEventError.
func (c *Client) ChatStreamChan(ctx context.Context, req ChatRequest) <-chan ChatEvent {
	ch := make(chan ChatEvent, 64)

	go func() {
		defer close(ch)

		err := c.ChatStream(ctx, req, func(ev ChatEvent) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
		if err != nil {
			select {
			case ch <- ChatEvent{Kind: ChatEventError, Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return ch
}

// =============================================================================
// MODEL DOWNLOAD STREAM
// =============================================================================

// DownloadCallback is called for each decoded download progress event.
type DownloadCallback func(ev DownloadEvent)

// StreamDownload starts a model download and delivers progress events in
// order until a terminal frame (complete or error) arrives. Returns nil when
// a terminal frame was seen or the stream ended; the caller decides what an
// end without a terminal frame means. Cancellation is returned verbatim as
// context.Canceled.
func (c *Client) StreamDownload(ctx context.Context, req DownloadRequest, callback DownloadCallback) error {
	return c.streamFrames(ctx, "/v1/models/download", req, func(frame Frame) bool {
		ev, ok := DecodeDownloadEvent(frame)
		if !ok {
			if !frame.Sentinel {
				pslog.Ctx(ctx).Debug("skipping malformed download frame", "len", len(frame.Data))
			}
			return true
		}
		callback(ev)
		return !ev.Terminal()
	})
}

// =============================================================================
// DOCUMENT OPERATIONS
// =============================================================================

// UploadDocument uploads a .pdf or .txt file for RAG processing.
func (c *Client) UploadDocument(ctx context.Context, path string) (*DocumentUploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeNotFound, Message: "cannot open document", Cause: err}
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeUnknown, Message: "failed to build upload", Cause: err}
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, &ClientError{Type: ErrTypeUnknown, Message: "failed to read document", Cause: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &ClientError{Type: ErrTypeUnknown, Message: "failed to build upload", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/documents/upload", &buf)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeErrorResponse(resp)
	}

	var result DocumentUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeProtocol, Message: "failed to decode response", Cause: err}
	}
	return &result, nil
}

// ListDocuments lists uploaded RAG documents.
func (c *Client) ListDocuments(ctx context.Context) (*DocumentsResponse, error) {
	var result DocumentsResponse
	if err := c.getJSON(ctx, "/v1/documents", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteDocument removes one uploaded document by id.
func (c *Client) DeleteDocument(ctx context.Context, docID string) error {
	var result DeleteDocumentResponse
	return c.doJSON(ctx, http.MethodDelete, "/v1/documents/"+url.PathEscape(docID), nil, &result)
}

// ClearDocuments removes all uploaded documents and returns the count removed.
func (c *Client) ClearDocuments(ctx context.Context) (int, error) {
	var result ClearDocumentsResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/v1/documents", nil, &result); err != nil {
		return 0, err
	}
	return result.DocumentsRemoved, nil
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

// doJSON performs a unary JSON request against the backend.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return &ClientError{Type: ErrTypeProtocol, Message: "failed to marshal request", Cause: err}
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeErrorResponse(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ClientError{Type: ErrTypeProtocol, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// streamFrames opens a streaming request and feeds response bytes through a
// stream parser. The sink returns false to stop consuming; remaining bytes
// are abandoned when the body closes. A non-2xx response is fully read as an
// error body and never parsed as a stream.
func (c *Client) streamFrames(ctx context.Context, path string, in any, sink func(Frame) bool) error {
	encoded, err := json.Marshal(in)
	if err != nil {
		return &ClientError{Type: ErrTypeProtocol, Message: "failed to marshal request", Cause: err}
	}

	// Use a client without timeout for streaming; lifetime is bound to ctx.
	// TLS does not apply: the backend is local HTTP on 127.0.0.1.
	streamClient := &http.Client{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := streamClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeErrorResponse(resp)
	}

	parser := NewStreamParser()
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, frame := range parser.Feed(buf[:n]) {
				if !sink(frame) {
					return nil
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				for _, frame := range parser.Close() {
					if !sink(frame) {
						return nil
					}
				}
				return nil
			}
			return streamReadError(readErr)
		}
	}
}

// transportError maps a request-level failure onto the error taxonomy.
func transportError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return ErrNotRunning
	}
}

// streamReadError maps a mid-stream read failure onto the error taxonomy.
// Cancellation passes through so callers can treat it as a clean stop.
func streamReadError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: err}
	}
}

// decodeErrorResponse turns a non-2xx response into a ClientError.
// The whole body is consumed: FastAPI detail and error JSON shapes are
// recognized, anything else is carried as plain text.
func decodeErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	detail := ""
	var wire struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil {
		if wire.Detail != "" {
			detail = wire.Detail
		} else if wire.Error != "" {
			detail = wire.Error
		}
	}
	if detail == "" {
		detail = strings.TrimSpace(string(body))
	}
	if detail == "" {
		detail = resp.Status
	}

	if resp.StatusCode == http.StatusBadRequest && strings.Contains(detail, "No model loaded") {
		return ErrNoModelLoaded
	}
	if resp.StatusCode == http.StatusNotFound ||
		(resp.StatusCode == http.StatusBadRequest && strings.Contains(detail, "not found")) {
		return &ClientError{Type: ErrTypeNotFound, Message: detail}
	}

	return &ClientError{
		Type:    ErrTypeBackend,
		Message: fmt.Sprintf("backend error (HTTP %d): %s", resp.StatusCode, detail),
	}
}

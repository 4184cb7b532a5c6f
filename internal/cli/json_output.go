// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output envelope for scripted CLI use.
//
// Every command with a --json flag wraps its payload in the same envelope
// so scripts can check .success and .data without per-command parsing.

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jeranaias/cognito-tui/internal/config"
)

// JSONResponse is the standardized response format for all CLI commands.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data interface{} `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is the ISO8601 timestamp when the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Error:     nil,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Data:      nil,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print outputs the JSON response to stdout.
// Human-readable messages should go to stderr when JSON mode is enabled.
func (r *JSONResponse) Print() error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// String returns the JSON response as a string.
func (r *JSONResponse) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"failed to marshal response: %s","timestamp":"%s"}`,
			err.Error(), time.Now().UTC().Format(time.RFC3339))
	}
	return string(data)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// StatusData represents the data returned by the status command.
type StatusData struct {
	Version string            `json:"version"`
	Backend BackendStatusData `json:"backend"`
	Storage StorageStatusData `json:"storage"`
}

// BackendStatusData describes the backend as seen from one health probe.
type BackendStatusData struct {
	URL             string `json:"url"`
	Mode            string `json:"mode"`
	Reachable       bool   `json:"reachable"`
	LatencyMs       int64  `json:"latency_ms,omitempty"`
	ModelLoaded     bool   `json:"model_loaded"`
	ModelName       string `json:"model_name,omitempty"`
	RAGAvailable    bool   `json:"rag_available"`
	SearchAvailable bool   `json:"search_available"`
	DocumentCount   int    `json:"document_count"`
	Error           string `json:"error,omitempty"`
}

// StorageStatusData describes local disk state for the status command.
type StorageStatusData struct {
	ConfigPath   string `json:"config_path,omitempty"`
	ModelsDir    string `json:"models_dir"`
	ModelCount   int    `json:"model_count"`
	ModelBytes   int64  `json:"model_bytes"`
	SessionCount int    `json:"session_count"`
}

// DoctorData represents the data returned by the doctor command.
type DoctorData struct {
	Checks  []DoctorCheck `json:"checks"`
	Summary DoctorSummary `json:"summary"`
}

// DoctorCheck represents a single diagnostic check result.
type DoctorCheck struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"` // "pass", "warn", "fail"
	Message string   `json:"message"`
	Fix     string   `json:"fix,omitempty"`
	Detail  []string `json:"detail,omitempty"`
}

// DoctorSummary contains the summary of diagnostic checks.
type DoctorSummary struct {
	Passed  int  `json:"passed"`
	Warned  int  `json:"warned"`
	Failed  int  `json:"failed"`
	Healthy bool `json:"healthy"`
}

// ConfigData represents the data returned by the config show command.
type ConfigData struct {
	Config *config.Config `json:"config"`
	Path   string         `json:"path"`
	Exists bool           `json:"exists"`
}

// VersionData represents the data returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// AskData represents the data returned by the ask command.
type AskData struct {
	Query            string `json:"query"`
	Response         string `json:"response"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	DurationMs       int64  `json:"duration_ms"`
}

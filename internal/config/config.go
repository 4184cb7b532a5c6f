// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for cognito.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.cognito/config.toml
//   - ~/.cognito/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/cognito-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete cognito configuration.
type Config struct {
	// General settings
	Version string `toml:"version" json:"version"`

	// Backend process and connection configuration
	Backend BackendConfig `toml:"backend" json:"backend"`

	// Health monitoring configuration
	Health HealthConfig `toml:"health" json:"health"`

	// Model management configuration
	Models ModelsConfig `toml:"models" json:"models"`

	// Chat defaults sent with each request
	Chat ChatConfig `toml:"chat" json:"chat"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// BackendConfig contains backend process and connection configuration.
type BackendConfig struct {
	// URL is the full backend base URL. When set it overrides host/port.
	URL string `toml:"url" json:"url"`
	// Mode selects how the backend is launched: "dev", "packaged", "external"
	Mode string `toml:"mode" json:"mode"`
	// Python is the interpreter used in dev mode (empty = platform default)
	Python string `toml:"python" json:"python"`
	// ModuleDir is the directory containing server.py for dev mode
	ModuleDir string `toml:"module_dir" json:"module_dir"`
	// ResourcesDir holds the prebuilt backend binary for packaged mode
	ResourcesDir string `toml:"resources_dir" json:"resources_dir"`
	// BinaryName overrides the backend binary name in packaged mode
	BinaryName string `toml:"binary_name" json:"binary_name"`
	// Host and Port the backend listens on
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`
	// StartupTimeoutSecs bounds the wait for the backend to become healthy
	StartupTimeoutSecs int `toml:"startup_timeout_secs" json:"startup_timeout_secs"`
	// NCtx is the context window size passed to load_model
	NCtx int `toml:"n_ctx" json:"n_ctx"`
}

// HealthConfig contains health monitor configuration.
type HealthConfig struct {
	// IntervalMs is the probe interval in milliseconds
	IntervalMs int `toml:"interval_ms" json:"interval_ms"`
	// TimeoutMs bounds each probe; must be below IntervalMs
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms"`
}

// ModelsConfig contains model management configuration.
type ModelsConfig struct {
	// Dir is where downloaded .gguf models live ("~" expands to $HOME)
	Dir string `toml:"dir" json:"dir"`
	// Default is the model filename loaded on startup (empty = none)
	Default string `toml:"default" json:"default"`
}

// ChatConfig contains per-request chat defaults.
type ChatConfig struct {
	// Temperature for sampling, 0.0-2.0
	Temperature float64 `toml:"temperature" json:"temperature"`
	// MaxTokens caps each response
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
	// DeepSearch enables web search augmentation by default
	DeepSearch bool `toml:"deep_search" json:"deep_search"`
	// UseDocuments enables RAG document context by default
	UseDocuments bool `toml:"use_documents" json:"use_documents"`
	// Markdown renders assistant responses through the markdown renderer
	Markdown bool `toml:"markdown" json:"markdown"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the color theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// ShowStats displays generation statistics after each response
	ShowStats bool `toml:"show_stats" json:"show_stats"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error
	Level string `toml:"level" json:"level"`
	// File receives structured log lines (empty = ~/.cognito/logs/cognito.log
	// for interactive sessions, stderr for CLI commands)
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Backend: BackendConfig{
			Mode:               "dev",
			Host:               "127.0.0.1",
			Port:               8000,
			StartupTimeoutSecs: 30,
			NCtx:               8192,
		},

		Health: HealthConfig{
			IntervalMs: 2000,
			TimeoutMs:  1000,
		},

		Models: ModelsConfig{
			Dir: "~/cognito-models",
		},

		Chat: ChatConfig{
			Temperature: 0.7,
			MaxTokens:   2048,
			Markdown:    true,
		},

		UI: UIConfig{
			Theme:     "dark",
			ShowStats: true,
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the cognito configuration directory path.
// COGNITO_CONFIG_DIR overrides the default ~/.cognito.
func ConfigDir() (string, error) {
	if dir := os.Getenv("COGNITO_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".cognito"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ConversationsDir returns the directory holding saved conversations.
func ConversationsDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "conversations"), nil
}

// LedgerPath returns the path to the download ledger database.
func LedgerPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cognito.db"), nil
}

// HistoryPath returns the path to the REPL history file.
func HistoryPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history"), nil
}

// DefaultLogFile returns the default log file path for interactive sessions.
func DefaultLogFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs", "cognito.log"), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// Config files should be 0600 (owner read/write only).
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// expandHome expands a leading "~" to the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}

// =============================================================================
// DERIVED VIEWS
// =============================================================================

// BackendBaseURL returns the backend base URL, assembled from host and port
// when no explicit URL is configured.
func (c *Config) BackendBaseURL() string {
	if c.Backend.URL != "" {
		return c.Backend.URL
	}
	host := c.Backend.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Backend.Port)
}

// StartupTimeout returns the backend startup timeout as a duration.
func (c *Config) StartupTimeout() time.Duration {
	return time.Duration(c.Backend.StartupTimeoutSecs) * time.Second
}

// HealthInterval returns the health probe interval as a duration.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.Health.IntervalMs) * time.Millisecond
}

// HealthTimeout returns the per-probe timeout as a duration.
func (c *Config) HealthTimeout() time.Duration {
	return time.Duration(c.Health.TimeoutMs) * time.Millisecond
}

// ModelsDir returns the models directory with "~" expanded.
func (c *Config) ModelsDir() string {
	return expandHome(c.Models.Dir)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				cfg.ApplyEnvOverrides()
				if err := cfg.Validate(); err != nil {
					return nil, fmt.Errorf("invalid config: %w", err)
				}
				return cfg, nil
			}
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				cfg.ApplyEnvOverrides()
				if err := cfg.Validate(); err != nil {
					return nil, fmt.Errorf("invalid config: %w", err)
				}
				return cfg, nil
			}
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// LoadTOML loads configuration from a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadJSON loads configuration from a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	// General
	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	// Backend
	if cfg.Backend.Mode == "" {
		cfg.Backend.Mode = defaults.Backend.Mode
	}
	if cfg.Backend.Host == "" {
		cfg.Backend.Host = defaults.Backend.Host
	}
	if cfg.Backend.Port == 0 {
		cfg.Backend.Port = defaults.Backend.Port
	}
	if cfg.Backend.StartupTimeoutSecs == 0 {
		cfg.Backend.StartupTimeoutSecs = defaults.Backend.StartupTimeoutSecs
	}
	if cfg.Backend.NCtx == 0 {
		cfg.Backend.NCtx = defaults.Backend.NCtx
	}

	// Health
	if cfg.Health.IntervalMs == 0 {
		cfg.Health.IntervalMs = defaults.Health.IntervalMs
	}
	if cfg.Health.TimeoutMs == 0 {
		cfg.Health.TimeoutMs = defaults.Health.TimeoutMs
	}

	// Models
	if cfg.Models.Dir == "" {
		cfg.Models.Dir = defaults.Models.Dir
	}

	// Chat
	if cfg.Chat.Temperature == 0 {
		cfg.Chat.Temperature = defaults.Chat.Temperature
	}
	if cfg.Chat.MaxTokens == 0 {
		cfg.Chat.MaxTokens = defaults.Chat.MaxTokens
	}

	// UI
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}

	// Logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}

	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// Ensure permissions are correct even if the file already existed.
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# cognito configuration file")
	fmt.Fprintln(file, "# Generated by cognito - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
// The write is atomic so a crash cannot leave a truncated config behind.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Backend
	validModes := map[string]bool{"dev": true, "packaged": true, "external": true}
	if !validModes[strings.ToLower(c.Backend.Mode)] {
		errs = append(errs, ValidationError{
			Field:   "backend.mode",
			Message: fmt.Sprintf("invalid mode '%s', must be one of: dev, packaged, external", c.Backend.Mode),
		})
	}
	if c.Backend.URL != "" {
		if _, err := url.Parse(c.Backend.URL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "backend.url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		}
	}
	if c.Backend.Port < 1 || c.Backend.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "backend.port",
			Message: fmt.Sprintf("port must be 1-65535, got %d", c.Backend.Port),
		})
	}
	if c.Backend.StartupTimeoutSecs < 1 {
		errs = append(errs, ValidationError{
			Field:   "backend.startup_timeout_secs",
			Message: fmt.Sprintf("must be positive, got %d", c.Backend.StartupTimeoutSecs),
		})
	}
	if c.Backend.NCtx < 1 {
		errs = append(errs, ValidationError{
			Field:   "backend.n_ctx",
			Message: fmt.Sprintf("must be positive, got %d", c.Backend.NCtx),
		})
	}

	// Health
	if c.Health.IntervalMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "health.interval_ms",
			Message: fmt.Sprintf("must be positive, got %d", c.Health.IntervalMs),
		})
	}
	if c.Health.TimeoutMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "health.timeout_ms",
			Message: fmt.Sprintf("must be positive, got %d", c.Health.TimeoutMs),
		})
	}
	// A probe that can outlive its interval would let stale results pile up.
	if c.Health.IntervalMs > 0 && c.Health.TimeoutMs >= c.Health.IntervalMs {
		errs = append(errs, ValidationError{
			Field:   "health.timeout_ms",
			Message: fmt.Sprintf("must be below interval_ms (%d), got %d", c.Health.IntervalMs, c.Health.TimeoutMs),
		})
	}

	// Chat
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "chat.temperature",
			Message: fmt.Sprintf("must be 0.0-2.0, got %g", c.Chat.Temperature),
		})
	}
	if c.Chat.MaxTokens < 1 {
		errs = append(errs, ValidationError{
			Field:   "chat.max_tokens",
			Message: fmt.Sprintf("must be positive, got %d", c.Chat.MaxTokens),
		})
	}

	// UI
	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	// Logging
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: trace, debug, info, warn, error", c.Logging.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - COGNITO_BACKEND_URL: overrides backend.url
//   - COGNITO_BACKEND_MODE: overrides backend.mode
//   - COGNITO_BACKEND_PORT: overrides backend.port
//   - COGNITO_MODELS_DIR: overrides models.dir
//   - COGNITO_MODEL: overrides models.default
//   - COGNITO_LOG_LEVEL: overrides logging.level
//   - COGNITO_LOG_FILE: overrides logging.file
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv("COGNITO_BACKEND_URL"); u != "" {
		c.Backend.URL = u
	}

	if mode := os.Getenv("COGNITO_BACKEND_MODE"); mode != "" {
		c.Backend.Mode = mode
	}

	if port := os.Getenv("COGNITO_BACKEND_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Backend.Port = p
		}
	}

	if dir := os.Getenv("COGNITO_MODELS_DIR"); dir != "" {
		c.Models.Dir = dir
	}

	if model := os.Getenv("COGNITO_MODEL"); model != "" {
		c.Models.Default = model
	}

	if level := os.Getenv("COGNITO_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if file := os.Getenv("COGNITO_LOG_FILE"); file != "" {
		c.Logging.File = file
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "backend.port").
func (c *Config) Get(key string) (interface{}, error) {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return nil, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			return field.Interface(), nil
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return nil, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return nil, fmt.Errorf("invalid key: %s", key)
}

// Set sets a configuration value using dot notation (e.g., "backend.port").
func (c *Config) Set(key string, value interface{}) error {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if !field.CanSet() {
				return fmt.Errorf("cannot set field: %s", key)
			}
			return setFieldValue(field, value)
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}

	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	// CLI input arrives as strings; convert to the field's type.
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.ToLower(strVal) == "true" || strings.ToLower(strVal) == "yes"
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}

	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"backend.url",
		"backend.mode",
		"backend.python",
		"backend.module_dir",
		"backend.resources_dir",
		"backend.binary_name",
		"backend.host",
		"backend.port",
		"backend.startup_timeout_secs",
		"backend.n_ctx",
		"health.interval_ms",
		"health.timeout_ms",
		"models.dir",
		"models.default",
		"chat.temperature",
		"chat.max_tokens",
		"chat.deep_search",
		"chat.use_documents",
		"chat.markdown",
		"ui.theme",
		"ui.show_stats",
		"logging.level",
		"logging.file",
	}
}

// Merge merges another config into this one, overwriting only non-zero values.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// General
	if other.Version != "" {
		c.Version = other.Version
	}

	// Backend
	if other.Backend.URL != "" {
		c.Backend.URL = other.Backend.URL
	}
	if other.Backend.Mode != "" {
		c.Backend.Mode = other.Backend.Mode
	}
	if other.Backend.Python != "" {
		c.Backend.Python = other.Backend.Python
	}
	if other.Backend.ModuleDir != "" {
		c.Backend.ModuleDir = other.Backend.ModuleDir
	}
	if other.Backend.ResourcesDir != "" {
		c.Backend.ResourcesDir = other.Backend.ResourcesDir
	}
	if other.Backend.BinaryName != "" {
		c.Backend.BinaryName = other.Backend.BinaryName
	}
	if other.Backend.Host != "" {
		c.Backend.Host = other.Backend.Host
	}
	if other.Backend.Port != 0 {
		c.Backend.Port = other.Backend.Port
	}
	if other.Backend.StartupTimeoutSecs != 0 {
		c.Backend.StartupTimeoutSecs = other.Backend.StartupTimeoutSecs
	}
	if other.Backend.NCtx != 0 {
		c.Backend.NCtx = other.Backend.NCtx
	}

	// Health
	if other.Health.IntervalMs != 0 {
		c.Health.IntervalMs = other.Health.IntervalMs
	}
	if other.Health.TimeoutMs != 0 {
		c.Health.TimeoutMs = other.Health.TimeoutMs
	}

	// Models
	if other.Models.Dir != "" {
		c.Models.Dir = other.Models.Dir
	}
	if other.Models.Default != "" {
		c.Models.Default = other.Models.Default
	}

	// Chat
	if other.Chat.Temperature != 0 {
		c.Chat.Temperature = other.Chat.Temperature
	}
	if other.Chat.MaxTokens != 0 {
		c.Chat.MaxTokens = other.Chat.MaxTokens
	}
	if other.Chat.DeepSearch {
		c.Chat.DeepSearch = true
	}
	if other.Chat.UseDocuments {
		c.Chat.UseDocuments = true
	}
	if other.Chat.Markdown {
		c.Chat.Markdown = true
	}

	// UI
	if other.UI.Theme != "" {
		c.UI.Theme = other.UI.Theme
	}
	if other.UI.ShowStats {
		c.UI.ShowStats = true
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a string representation of the config for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			// Log but don't fail - use defaults
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}

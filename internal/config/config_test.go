// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestConfig_Default tests that Default() returns a valid config with defaults.
func TestConfig_Default(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Version == "" {
		t.Error("Default config should have a version")
	}

	if cfg.Backend.Mode != "dev" {
		t.Errorf("Expected default backend mode 'dev', got '%s'", cfg.Backend.Mode)
	}

	if cfg.Backend.Port != 8000 {
		t.Errorf("Expected default backend port 8000, got %d", cfg.Backend.Port)
	}

	if cfg.Health.IntervalMs != 2000 {
		t.Errorf("Expected default health interval 2000ms, got %d", cfg.Health.IntervalMs)
	}

	if cfg.Health.TimeoutMs >= cfg.Health.IntervalMs {
		t.Error("Default health timeout should be below the interval")
	}

	if cfg.Chat.Temperature != 0.7 {
		t.Errorf("Expected default temperature 0.7, got %g", cfg.Chat.Temperature)
	}

	if cfg.Chat.MaxTokens != 2048 {
		t.Errorf("Expected default max tokens 2048, got %d", cfg.Chat.MaxTokens)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

// TestConfig_DerivedViews tests the URL and duration views over raw fields.
func TestConfig_DerivedViews(t *testing.T) {
	cfg := Default()

	if got := cfg.BackendBaseURL(); got != "http://127.0.0.1:8000" {
		t.Errorf("BackendBaseURL() = %q, want 'http://127.0.0.1:8000'", got)
	}

	cfg.Backend.URL = "http://10.0.0.5:9000"
	if got := cfg.BackendBaseURL(); got != "http://10.0.0.5:9000" {
		t.Errorf("BackendBaseURL() with explicit URL = %q, want override", got)
	}

	cfg.Backend.URL = ""
	cfg.Backend.Host = ""
	if got := cfg.BackendBaseURL(); got != "http://127.0.0.1:8000" {
		t.Errorf("BackendBaseURL() with empty host = %q, want loopback fallback", got)
	}

	if got := cfg.StartupTimeout(); got != 30*time.Second {
		t.Errorf("StartupTimeout() = %v, want 30s", got)
	}
	if got := cfg.HealthInterval(); got != 2*time.Second {
		t.Errorf("HealthInterval() = %v, want 2s", got)
	}
	if got := cfg.HealthTimeout(); got != 1*time.Second {
		t.Errorf("HealthTimeout() = %v, want 1s", got)
	}
}

// TestConfig_ModelsDirExpandsHome tests that "~" in models.dir expands to $HOME.
func TestConfig_ModelsDirExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	cfg := Default()
	cfg.Models.Dir = "~/cognito-models"
	if got := cfg.ModelsDir(); got != filepath.Join(home, "cognito-models") {
		t.Errorf("ModelsDir() = %q, want home-expanded path", got)
	}

	cfg.Models.Dir = "/opt/models"
	if got := cfg.ModelsDir(); got != "/opt/models" {
		t.Errorf("ModelsDir() = %q, absolute paths should pass through", got)
	}
}

// TestConfig_SaveLoadRoundTrip tests that a saved TOML config loads back
// with the same values and secure permissions.
func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Backend.Port = 9001
	cfg.Models.Default = "llama-3.2-3b.gguf"
	cfg.Chat.Temperature = 0.5
	cfg.Logging.Level = "debug"

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Config file permissions = %o, want 0600", perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "# cognito configuration file") {
		t.Error("Saved config should carry the header comment")
	}

	loaded := &Config{}
	if err := LoadTOML(loaded, path); err != nil {
		t.Fatalf("LoadTOML() error = %v", err)
	}

	if loaded.Backend.Port != 9001 {
		t.Errorf("Loaded port = %d, want 9001", loaded.Backend.Port)
	}
	if loaded.Models.Default != "llama-3.2-3b.gguf" {
		t.Errorf("Loaded default model = %q, want 'llama-3.2-3b.gguf'", loaded.Models.Default)
	}
	if loaded.Chat.Temperature != 0.5 {
		t.Errorf("Loaded temperature = %g, want 0.5", loaded.Chat.Temperature)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("Loaded log level = %q, want 'debug'", loaded.Logging.Level)
	}
}

// TestConfig_LoadTOMLFillsDefaults tests that a partial TOML file is
// backfilled with defaults for missing fields.
func TestConfig_LoadTOMLFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	partial := "[backend]\nport = 9100\n"
	if err := os.WriteFile(path, []byte(partial), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg := &Config{}
	if err := LoadTOML(cfg, path); err != nil {
		t.Fatalf("LoadTOML() error = %v", err)
	}

	if cfg.Backend.Port != 9100 {
		t.Errorf("Port = %d, want 9100 from file", cfg.Backend.Port)
	}
	if cfg.Backend.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want default '127.0.0.1'", cfg.Backend.Host)
	}
	if cfg.Backend.Mode != "dev" {
		t.Errorf("Mode = %q, want default 'dev'", cfg.Backend.Mode)
	}
	if cfg.Health.IntervalMs != 2000 {
		t.Errorf("Health interval = %d, want default 2000", cfg.Health.IntervalMs)
	}
	if cfg.Chat.MaxTokens != 2048 {
		t.Errorf("Max tokens = %d, want default 2048", cfg.Chat.MaxTokens)
	}
}

// TestConfig_LoadTOMLFixesPermissions tests that loading a world-readable
// config file tightens it to 0600.
func TestConfig_LoadTOMLFixesPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("version = \"1.0.0\"\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg := &Config{}
	if err := LoadTOML(cfg, path); err != nil {
		t.Fatalf("LoadTOML() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Permissions after load = %o, want 0600", perm)
	}
}

// TestConfig_LoadPrefersTOML tests that config.toml wins over config.json
// when both exist.
func TestConfig_LoadPrefersTOML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("COGNITO_CONFIG_DIR", dir)

	tomlCfg := Default()
	tomlCfg.Backend.Port = 9100
	if err := SaveTOML(tomlCfg, filepath.Join(dir, "config.toml")); err != nil {
		t.Fatalf("SaveTOML() error = %v", err)
	}

	jsonCfg := Default()
	jsonCfg.Backend.Port = 9200
	if err := SaveJSON(jsonCfg, filepath.Join(dir, "config.json")); err != nil {
		t.Fatalf("SaveJSON() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Port != 9100 {
		t.Errorf("Load() port = %d, want 9100 from TOML", cfg.Backend.Port)
	}
}

// TestConfig_LoadDefaultsWhenNoFile tests that Load falls back to defaults
// when no config file exists.
func TestConfig_LoadDefaultsWhenNoFile(t *testing.T) {
	t.Setenv("COGNITO_CONFIG_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Port != 8000 {
		t.Errorf("Load() port = %d, want default 8000", cfg.Backend.Port)
	}
}

// TestConfig_LoadFromPathValidates tests that LoadFromPath rejects an
// invalid config file.
func TestConfig_LoadFromPathValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	bad := "[backend]\nmode = \"container\"\n"
	if err := os.WriteFile(path, []byte(bad), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatal("LoadFromPath() should reject invalid backend mode")
	}
	if !strings.Contains(err.Error(), "backend.mode") {
		t.Errorf("Error should name the offending field, got %v", err)
	}
}

// TestConfig_Validate tests configuration validation.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "valid default config",
			config:  Default(),
			wantErr: false,
		},
		{
			name: "invalid backend mode",
			config: func() *Config {
				c := Default()
				c.Backend.Mode = "invalid"
				return c
			}(),
			wantErr: true,
		},
		{
			name: "port zero",
			config: func() *Config {
				c := Default()
				c.Backend.Port = 0
				return c
			}(),
			wantErr: true,
		},
		{
			name: "port above range",
			config: func() *Config {
				c := Default()
				c.Backend.Port = 70000
				return c
			}(),
			wantErr: true,
		},
		{
			name: "startup timeout zero",
			config: func() *Config {
				c := Default()
				c.Backend.StartupTimeoutSecs = 0
				return c
			}(),
			wantErr: true,
		},
		{
			name: "health timeout equals interval",
			config: func() *Config {
				c := Default()
				c.Health.IntervalMs = 1000
				c.Health.TimeoutMs = 1000
				return c
			}(),
			wantErr: true,
		},
		{
			name: "health timeout above interval",
			config: func() *Config {
				c := Default()
				c.Health.IntervalMs = 1000
				c.Health.TimeoutMs = 1500
				return c
			}(),
			wantErr: true,
		},
		{
			name: "health timeout just below interval",
			config: func() *Config {
				c := Default()
				c.Health.IntervalMs = 1000
				c.Health.TimeoutMs = 999
				return c
			}(),
			wantErr: false,
		},
		{
			name: "temperature above range",
			config: func() *Config {
				c := Default()
				c.Chat.Temperature = 2.5
				return c
			}(),
			wantErr: true,
		},
		{
			name: "temperature negative",
			config: func() *Config {
				c := Default()
				c.Chat.Temperature = -0.1
				return c
			}(),
			wantErr: true,
		},
		{
			name: "max tokens zero",
			config: func() *Config {
				c := Default()
				c.Chat.MaxTokens = 0
				return c
			}(),
			wantErr: true,
		},
		{
			name: "invalid theme",
			config: func() *Config {
				c := Default()
				c.UI.Theme = "invalid"
				return c
			}(),
			wantErr: true,
		},
		{
			name: "invalid log level",
			config: func() *Config {
				c := Default()
				c.Logging.Level = "loud"
				return c
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestConfig_ApplyEnvOverrides tests environment variable overrides.
func TestConfig_ApplyEnvOverrides(t *testing.T) {
	t.Setenv("COGNITO_BACKEND_URL", "http://10.1.2.3:8080")
	t.Setenv("COGNITO_BACKEND_MODE", "external")
	t.Setenv("COGNITO_BACKEND_PORT", "9050")
	t.Setenv("COGNITO_MODEL", "mistral-7b.gguf")
	t.Setenv("COGNITO_LOG_LEVEL", "debug")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Backend.URL != "http://10.1.2.3:8080" {
		t.Errorf("Backend URL = %q, want env override", cfg.Backend.URL)
	}
	if cfg.Backend.Mode != "external" {
		t.Errorf("Backend mode = %q, want 'external'", cfg.Backend.Mode)
	}
	if cfg.Backend.Port != 9050 {
		t.Errorf("Backend port = %d, want 9050", cfg.Backend.Port)
	}
	if cfg.Models.Default != "mistral-7b.gguf" {
		t.Errorf("Default model = %q, want 'mistral-7b.gguf'", cfg.Models.Default)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Log level = %q, want 'debug'", cfg.Logging.Level)
	}
}

// TestConfig_ApplyEnvOverridesIgnoresBadPort tests that a non-numeric port
// override is ignored.
func TestConfig_ApplyEnvOverridesIgnoresBadPort(t *testing.T) {
	t.Setenv("COGNITO_BACKEND_PORT", "not-a-port")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Backend.Port != 8000 {
		t.Errorf("Backend port = %d, want default 8000", cfg.Backend.Port)
	}
}

// TestConfig_GetSet tests Get and Set methods with dot notation.
func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	// Test Get
	val, err := cfg.Get("backend.mode")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if val != "dev" {
		t.Errorf("Get('backend.mode') = %v, want 'dev'", val)
	}

	// Test Set with string conversion to int
	err = cfg.Set("backend.port", "9001")
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	val, _ = cfg.Get("backend.port")
	if val != 9001 {
		t.Errorf("Get('backend.port') after Set = %v, want 9001", val)
	}

	// Test Set with string conversion to float
	err = cfg.Set("chat.temperature", "0.9")
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	val, _ = cfg.Get("chat.temperature")
	if val != 0.9 {
		t.Errorf("Get('chat.temperature') after Set = %v, want 0.9", val)
	}

	// Test Set with string conversion to bool
	err = cfg.Set("ui.show_stats", "false")
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	val, _ = cfg.Get("ui.show_stats")
	if val != false {
		t.Errorf("Get('ui.show_stats') after Set = %v, want false", val)
	}

	// Test Set with bad integer input
	err = cfg.Set("backend.port", "lots")
	if err == nil {
		t.Error("Set() with non-numeric port should return error")
	}

	// Test Get with invalid key
	_, err = cfg.Get("invalid.key")
	if err == nil {
		t.Error("Get() with invalid key should return error")
	}
}

// TestConfig_GetAllKeysResolvable tests that every advertised key resolves
// through Get.
func TestConfig_GetAllKeysResolvable(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Errorf("Get(%q) error = %v", key, err)
		}
	}
}

// TestConfig_Clone tests that Clone creates an independent copy.
func TestConfig_Clone(t *testing.T) {
	original := Default()
	original.Version = "original"

	clone := original.Clone()

	// Modify clone
	clone.Version = "cloned"
	clone.Backend.Port = 12345

	// Verify original unchanged
	if original.Version != "original" {
		t.Error("Clone should create an independent copy")
	}
	if original.Backend.Port != 8000 {
		t.Error("Clone should not share nested struct values")
	}
	if clone.Version != "cloned" {
		t.Error("Clone version should be modified")
	}
}

// TestConfig_Merge tests merging two configs.
func TestConfig_Merge(t *testing.T) {
	base := Default()
	base.Version = "base"

	other := &Config{
		Version: "merged",
		Models: ModelsConfig{
			Default: "merged-model.gguf",
		},
	}

	base.Merge(other)

	if base.Version != "merged" {
		t.Errorf("Merge should overwrite Version, got '%s'", base.Version)
	}
	if base.Models.Default != "merged-model.gguf" {
		t.Errorf("Merge should overwrite Models.Default, got '%s'", base.Models.Default)
	}
	// Verify non-overwritten values remain
	if base.Backend.Mode != "dev" {
		t.Error("Merge should not overwrite unset fields")
	}
	if base.Backend.Port != 8000 {
		t.Error("Merge should not zero out the port")
	}
}

// TestConfig_ConcurrentAccess tests that Global(), SetGlobal(), and ReloadGlobal()
// can be safely called concurrently without race conditions.
// Run with: go test -race -v ./internal/config/
func TestConfig_ConcurrentAccess(t *testing.T) {
	t.Setenv("COGNITO_CONFIG_DIR", t.TempDir())
	ResetGlobalForTesting()

	var wg sync.WaitGroup

	// 50 writers using SetGlobal, 50 readers using Global
	for i := 0; i < 50; i++ {
		wg.Add(2)

		// Writer goroutine
		go func() {
			defer wg.Done()
			c := Default()
			c.Version = "test"
			SetGlobal(c)
		}()

		// Reader goroutine
		go func() {
			defer wg.Done()
			cfg := Global()
			if cfg == nil {
				t.Error("Global() returned nil")
			}
		}()
	}

	wg.Wait()
}

// TestConfig_ConcurrentReload tests concurrent ReloadGlobal and Global calls.
func TestConfig_ConcurrentReload(t *testing.T) {
	t.Setenv("COGNITO_CONFIG_DIR", t.TempDir())
	ResetGlobalForTesting()

	// Initialize config first
	_ = Global()

	var wg sync.WaitGroup

	// 20 reloaders, 80 readers
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// ReloadGlobal may fail if config file doesn't exist, that's ok
			_ = ReloadGlobal()
		}()
	}

	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg := Global()
			if cfg == nil {
				t.Error("Global() returned nil")
			}
		}()
	}

	wg.Wait()
}

// TestConfig_GlobalInitialization tests that Global() properly initializes
// the config on first access.
func TestConfig_GlobalInitialization(t *testing.T) {
	t.Setenv("COGNITO_CONFIG_DIR", t.TempDir())
	ResetGlobalForTesting()

	cfg := Global()
	if cfg == nil {
		t.Fatal("Global() returned nil")
	}

	// Verify defaults are applied
	if cfg.Version == "" {
		t.Error("Config version should not be empty")
	}
	if cfg.Backend.Mode == "" {
		t.Error("Backend mode should not be empty")
	}
}

// TestConfig_SetGlobalOverwrites tests that SetGlobal properly overwrites
// the existing global config.
func TestConfig_SetGlobalOverwrites(t *testing.T) {
	t.Setenv("COGNITO_CONFIG_DIR", t.TempDir())
	ResetGlobalForTesting()

	// Initialize with defaults
	_ = Global()

	// Set custom config
	customCfg := Default()
	customCfg.Version = "custom-version"
	customCfg.Models.Default = "custom-model.gguf"
	SetGlobal(customCfg)

	// Verify the custom config is returned
	result := Global()
	if result.Version != "custom-version" {
		t.Errorf("Expected version 'custom-version', got '%s'", result.Version)
	}
	if result.Models.Default != "custom-model.gguf" {
		t.Errorf("Expected model 'custom-model.gguf', got '%s'", result.Models.Default)
	}
}

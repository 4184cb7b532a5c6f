// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation for cognito.
//
// CLI: Comprehensive help and examples for all commands
//
// Command: config [subcommand]
// Short:   View and modify configuration
// Aliases: cfg
//
// Subcommands:
//   show (default)      Display current configuration
//   get <key>           Print a single configuration value
//   set <key> <value>   Set a configuration value
//   path                Show configuration file path
//   reset               Reset to default configuration
//
// Examples:
//   cognito config                             Show current config (default)
//   cognito config show --json                 Config in JSON format
//   cognito config get backend.url            Print one value
//   cognito config set models.default qwen2.5-7b-instruct-q4_k_m.gguf
//   cognito config set backend.port 8090
//   cognito config set chat.temperature 0.5
//   cognito config set chat.deep_search true
//   cognito config set logging.level debug
//   cognito config path                        Show config file location
//   cognito config reset --yes                 Reset to defaults
//
// Keys use section.name dot notation; run 'cognito config show' for the
// full list. A few common keys have short aliases (model, port, url,
// temperature) that map to their full paths.
//
// Flags:
//   --yes, -y           Skip confirmation for reset
//   --json              Output in JSON format

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/cognito-tui/internal/config"
)

// =============================================================================
// HANDLE CONFIG
// =============================================================================

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return handleConfigShow(args)
	case "get":
		return handleConfigGet(args)
	case "set":
		return handleConfigSet(args)
	case "path":
		return handleConfigPath(args)
	case "reset":
		return handleConfigReset(args)
	default:
		return fmt.Errorf("unknown config subcommand: %s\nUsage: cognito config [show|get|set|path|reset]", args.Subcommand)
	}
}

// configKeyAliases maps convenient short names onto full dot-notation keys.
var configKeyAliases = map[string]string{
	"model":       "models.default",
	"models_dir":  "models.dir",
	"url":         "backend.url",
	"port":        "backend.port",
	"mode":        "backend.mode",
	"temperature": "chat.temperature",
	"max_tokens":  "chat.max_tokens",
	"theme":       "ui.theme",
	"log_level":   "logging.level",
	"log_file":    "logging.file",
}

// normalizeConfigKey lowercases a key and expands short aliases.
func normalizeConfigKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if full, ok := configKeyAliases[key]; ok {
		return full
	}
	return key
}

// configFilePath returns the path of the config file that would be loaded:
// the TOML file if present, the JSON fallback if present, otherwise where
// the TOML file would be created.
func configFilePath() (string, error) {
	tomlPath, err := config.ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	if jsonPath, err := config.ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return jsonPath, nil
		}
	}
	return tomlPath, nil
}

// =============================================================================
// CONFIG SHOW
// =============================================================================

// handleConfigShow displays the current configuration, grouped by section.
func handleConfigShow(args Args) error {
	cfg, err := config.Load()
	if err != nil && !args.JSON {
		fmt.Fprintf(os.Stderr, "Warning: %v (showing effective config)\n", err)
	}

	path, _ := configFilePath()
	_, statErr := os.Stat(path)
	exists := path != "" && statErr == nil

	if args.JSON {
		data := ConfigData{
			Config: cfg,
			Path:   path,
			Exists: exists,
		}
		return NewJSONResponse("config", data).Print()
	}

	fmt.Println()
	fmt.Println(TitleStyle.Render("cognito configuration"))
	fmt.Println(RenderSeparator(44))

	section := ""
	for _, key := range config.GetAllKeys() {
		name := key
		if i := strings.Index(key, "."); i >= 0 {
			if key[:i] != section {
				section = key[:i]
				fmt.Println()
				fmt.Println(SectionStyle.Render("[" + section + "]"))
			}
			name = key[i+1:]
		}

		val, err := cfg.Get(key)
		if err != nil {
			continue
		}
		fmt.Printf("  %s %s\n", RenderLabel(name+":"), renderConfigValue(val))
	}

	fmt.Println()
	fmt.Println(RenderSeparator(44))
	if exists {
		fmt.Printf("Config file: %s\n", DimStyle.Render(path))
	} else {
		fmt.Printf("Config file: %s %s\n", DimStyle.Render(path),
			DimStyle.Render("(not created yet)"))
	}
	fmt.Println()

	return nil
}

// renderConfigValue formats a config value for display.
func renderConfigValue(val interface{}) string {
	if s, ok := val.(string); ok && s == "" {
		return DimStyle.Render("(not set)")
	}
	return ValueStyle.Render(fmt.Sprintf("%v", val))
}

// =============================================================================
// CONFIG GET / SET
// =============================================================================

// handleConfigGet prints a single configuration value.
func handleConfigGet(args Args) error {
	if args.ConfigKey == "" {
		return ErrMissingArgument("key", "cognito config get backend.url")
	}

	cfg, err := config.Load()
	if err != nil && !args.JSON {
		fmt.Fprintf(os.Stderr, "Warning: %v (showing effective config)\n", err)
	}

	key := normalizeConfigKey(args.ConfigKey)
	val, err := cfg.Get(key)
	if err != nil {
		return fmt.Errorf("unknown config key %q\nRun 'cognito config show' to list keys", args.ConfigKey)
	}

	if args.JSON {
		return NewJSONResponse("config", map[string]interface{}{
			"key":   key,
			"value": val,
		}).Print()
	}

	fmt.Printf("%v\n", val)
	return nil
}

// handleConfigSet sets a configuration value and saves the file.
func handleConfigSet(args Args) error {
	if args.ConfigKey == "" {
		return ErrMissingArgument("key", "cognito config set backend.port 8090")
	}
	if args.ConfigVal == "" {
		return ErrMissingArgument("value", fmt.Sprintf("cognito config set %s <value>", args.ConfigKey))
	}

	cfg, err := config.Load()
	if err != nil && !args.JSON {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}

	key := normalizeConfigKey(args.ConfigKey)
	if err := cfg.Set(key, args.ConfigVal); err != nil {
		return fmt.Errorf("cannot set %q: %v\nRun 'cognito config show' to list keys", args.ConfigKey, err)
	}

	// Reject values the rest of the app would refuse to start with.
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration value: %w", err)
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if args.JSON {
		return NewJSONResponse("config", map[string]interface{}{
			"key":   key,
			"value": args.ConfigVal,
			"saved": true,
		}).Print()
	}

	fmt.Printf("%s %s = %s\n", SuccessStyle.Render("[OK]"), key, args.ConfigVal)
	return nil
}

// =============================================================================
// CONFIG PATH / RESET
// =============================================================================

// handleConfigPath shows the config file path.
func handleConfigPath(args Args) error {
	path, _ := configFilePath()
	_, err := os.Stat(path)
	exists := path != "" && err == nil

	if args.JSON {
		return NewJSONResponse("config", map[string]interface{}{
			"path":   path,
			"exists": exists,
		}).Print()
	}

	fmt.Println(path)
	if !exists {
		fmt.Fprintln(os.Stderr, DimStyle.Render("(file does not exist - created on first save)"))
	}
	return nil
}

// handleConfigReset restores default configuration.
func handleConfigReset(args Args) error {
	parser := NewArgParser(args.Raw)
	yes := parser.BoolFlag("yes") || parser.BoolFlag("y")

	confirmed, err := RequireConfirmation(yes, "reset configuration to defaults", args.JSON)
	if err != nil {
		return err
	}
	if !confirmed {
		ShowCancellationMessage(args.JSON)
		return nil
	}

	cfg := config.Default()
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	path, _ := configFilePath()
	if args.JSON {
		return NewJSONResponse("config", map[string]interface{}{
			"reset": true,
			"path":  path,
		}).Print()
	}

	fmt.Printf("%s Configuration reset to defaults\n", SuccessStyle.Render("[OK]"))
	fmt.Printf("Config file: %s\n", DimStyle.Render(path))
	return nil
}

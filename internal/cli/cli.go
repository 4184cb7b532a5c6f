// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command handlers for cognito.
//
// CLI: Comprehensive help and examples for all commands
package cli

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdStatus
	CmdModels
	CmdDocs
	CmdSessions
	CmdConfig
	CmdDoctor
	CmdVersion
	CmdHelp
	CmdUnknown
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool   // Output in JSON format
	Model      string // Model file override (resolved under the models directory)
	BackendURL string // Base URL of a running backend (implies attach, never spawn)
	External   bool   // Never spawn or stop the backend; attach to a running one

	// Command-specific
	Query        string
	File         string
	ConfigKey    string
	ConfigVal    string
	Subcommand   string
	MaxTokens    int     // Generation limit override (0 = use config)
	Temperature  float64 // Sampling temperature override (negative = use config)
	DeepSearch   bool    // Allow the backend to search the web
	UseDocuments bool    // Ground answers in indexed documents

	// Raw args (remaining after flag parsing)
	Raw []string

	// Options holds command-specific named options (e.g., --format, --output)
	Options map[string]string
}

const usageText = `cognito - local AI chat for your own hardware

Cognito runs open-weight language models entirely on your machine.

It provides:
  - A terminal chat UI backed by a local inference server
  - Model search and download from Hugging Face (GGUF)
  - Document grounding (RAG) over your own files
  - Optional web search for current information

Usage:
  cognito                       Start TUI (default)
  cognito ask "question"        Ask a single question
  cognito chat                  Interactive chat in the terminal
  cognito status, s             Show backend status
  cognito models [subcommand]   Manage local models
  cognito docs [subcommand]     Manage RAG documents
  cognito sessions [subcommand] Manage saved chat sessions
  cognito config [show|set]     Configuration
  cognito doctor                Environment diagnostics
  cognito version               Show version information

Model Commands:
  cognito models                    List downloaded models
  cognito models search <query>     Search Hugging Face for GGUF models
    --limit N                       Maximum results (default: 10)
  cognito models files <repo-id>    List downloadable files in a repo
  cognito models download <repo-id> [file]
                                    Download a model file
  cognito models rm <file>          Delete a downloaded model
    --yes                           Skip confirmation prompt

Document Commands (RAG):
  cognito docs                      List indexed documents
  cognito docs add <path>           Index a document for retrieval
  cognito docs rm <id>              Remove a document from the index
  cognito docs clear                Remove all indexed documents
    --yes                           Skip confirmation prompt

Session Commands:
  cognito sessions                  List saved sessions
  cognito sessions show <id>        Show session transcript
  cognito sessions search <query>   Find sessions by message content
  cognito sessions export <id>      Export a session
    --format json|md|txt            Export format (default: txt)
    --output FILE                   Write to a file instead of stdout
  cognito sessions rm <id>          Delete a session
  cognito sessions clear            Delete all saved sessions
    --yes                           Skip confirmation prompt
  cognito sessions stats            Show session statistics

Config Commands:
  cognito config show               Show current configuration
  cognito config get <key>          Get a single value
  cognito config set <key> <value>  Set a value
  cognito config path               Show config file location
  cognito config reset              Restore defaults
    --yes                           Skip confirmation prompt

Ask/Chat Flags:
  -m, --model FILE        Model file to load (under the models directory)
  -f, --file PATH         Include a file as context (ask only)
  --max-tokens N          Generation limit for this run
  --temperature T         Sampling temperature for this run
  --deep-search           Allow the backend to search the web
  --docs                  Ground answers in indexed documents

Global Flags:
  --json                  Output in JSON format (machine-readable)
  --backend URL           Use the backend at URL (implies --external)
  --external              Never spawn a backend; attach to a running one
  -q, --quiet             Suppress startup progress messages
  -v, --verbose           Verbose output

Examples:
  cognito                                   Launch the TUI
  cognito ask "explain mmap in one line"
  cat main.go | cognito ask "review this"
  cognito ask -f notes.md "summarize"
  cognito chat -m qwen2.5-7b-instruct-q4_k_m.gguf
  cognito models search qwen 7b
  cognito models download Qwen/Qwen2.5-7B-Instruct-GGUF
  cognito status --json
  cognito doctor

Environment:
  COGNITO_BACKEND_URL     Override backend URL
  COGNITO_MODELS_DIR      Override models directory
  COGNITO_CONFIG_DIR      Override config directory (default: ~/.cognito)

Version: %s
`

// PrintUsage prints the usage message.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("cognito %s\n", Version)
	fmt.Printf("  commit: %s\n", GitCommit)
	fmt.Printf("  built:  %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	args := os.Args[1:]

	// Parse global flags first
	remaining, parsedArgs := parseGlobalFlags(args)

	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "ask", "a":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs

	case "chat", "c":
		parseChatArgs(&parsedArgs, remaining)
		return CmdChat, parsedArgs

	case "status", "s":
		return CmdStatus, parsedArgs

	case "models", "model":
		// Detailed argument parsing is done in models_cmd.go
		parseSubcommand(&parsedArgs, remaining)
		return CmdModels, parsedArgs

	case "docs", "documents":
		// Detailed argument parsing is done in docs_cmd.go
		parseSubcommand(&parsedArgs, remaining)
		return CmdDocs, parsedArgs

	case "sessions", "session":
		// Detailed argument parsing is done in sessions_cmd.go
		parseSubcommand(&parsedArgs, remaining)
		return CmdSessions, parsedArgs

	case "config", "cfg":
		parseConfigArgs(&parsedArgs, remaining)
		return CmdConfig, parsedArgs

	case "doctor":
		return CmdDoctor, parsedArgs

	case "version", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		// Unknown command - keep it around so the handler can suggest a fix
		parsedArgs.Raw = append([]string{cmd}, remaining...)
		return CmdUnknown, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	parsedArgs := Args{
		Temperature: -1,
		Options:     make(map[string]string),
	}

	i := 0
	for i < len(args) {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--external", "--attach":
			parsedArgs.External = true
		case "--backend":
			if i+1 < len(args) {
				i++
				parsedArgs.BackendURL = args[i]
			}
		case "--model":
			if i+1 < len(args) {
				i++
				parsedArgs.Model = args[i]
			}
		default:
			// Check for --backend=value and --model=value formats
			if strings.HasPrefix(arg, "--backend=") {
				parsedArgs.BackendURL = strings.TrimPrefix(arg, "--backend=")
			} else if strings.HasPrefix(arg, "--model=") {
				parsedArgs.Model = strings.TrimPrefix(arg, "--model=")
			} else {
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	// A caller-supplied URL always means there is a backend to attach to.
	if parsedArgs.BackendURL != "" {
		parsedArgs.External = true
	}

	return remaining, parsedArgs
}

// parseAskArgs parses ask command specific arguments.
func parseAskArgs(args *Args, remaining []string) {
	var query []string

	i := 0
	for i < len(remaining) {
		arg := remaining[i]

		switch arg {
		case "-f", "--file":
			if i+1 < len(remaining) {
				i++
				args.File = remaining[i]
			}
		case "-m", "--model":
			if i+1 < len(remaining) {
				i++
				args.Model = remaining[i]
			}
		case "--max-tokens":
			if i+1 < len(remaining) {
				i++
				if n, err := strconv.Atoi(remaining[i]); err == nil && n > 0 {
					args.MaxTokens = n
				}
			}
		case "--temperature", "--temp":
			if i+1 < len(remaining) {
				i++
				if f, err := strconv.ParseFloat(remaining[i], 64); err == nil && f >= 0 {
					args.Temperature = f
				}
			}
		case "--deep-search":
			args.DeepSearch = true
		case "--docs", "--use-docs":
			args.UseDocuments = true
		default:
			// Check for --flag=value formats
			if strings.HasPrefix(arg, "--file=") {
				args.File = strings.TrimPrefix(arg, "--file=")
			} else if strings.HasPrefix(arg, "--model=") {
				args.Model = strings.TrimPrefix(arg, "--model=")
			} else if strings.HasPrefix(arg, "--max-tokens=") {
				if n, err := strconv.Atoi(strings.TrimPrefix(arg, "--max-tokens=")); err == nil && n > 0 {
					args.MaxTokens = n
				}
			} else if strings.HasPrefix(arg, "--temperature=") {
				if f, err := strconv.ParseFloat(strings.TrimPrefix(arg, "--temperature="), 64); err == nil && f >= 0 {
					args.Temperature = f
				}
			} else if !strings.HasPrefix(arg, "-") {
				query = append(query, arg)
			}
		}
		i++
	}

	args.Query = strings.Join(query, " ")
}

// parseChatArgs parses chat command specific arguments.
func parseChatArgs(args *Args, remaining []string) {
	i := 0
	for i < len(remaining) {
		arg := remaining[i]

		switch arg {
		case "-m", "--model":
			if i+1 < len(remaining) {
				i++
				args.Model = remaining[i]
			}
		case "--max-tokens":
			if i+1 < len(remaining) {
				i++
				if n, err := strconv.Atoi(remaining[i]); err == nil && n > 0 {
					args.MaxTokens = n
				}
			}
		case "--temperature", "--temp":
			if i+1 < len(remaining) {
				i++
				if f, err := strconv.ParseFloat(remaining[i], 64); err == nil && f >= 0 {
					args.Temperature = f
				}
			}
		case "--deep-search":
			args.DeepSearch = true
		case "--docs", "--use-docs":
			args.UseDocuments = true
		default:
			if strings.HasPrefix(arg, "--model=") {
				args.Model = strings.TrimPrefix(arg, "--model=")
			} else if strings.HasPrefix(arg, "--max-tokens=") {
				if n, err := strconv.Atoi(strings.TrimPrefix(arg, "--max-tokens=")); err == nil && n > 0 {
					args.MaxTokens = n
				}
			} else if strings.HasPrefix(arg, "--temperature=") {
				if f, err := strconv.ParseFloat(strings.TrimPrefix(arg, "--temperature="), 64); err == nil && f >= 0 {
					args.Temperature = f
				}
			}
		}
		i++
	}
}

// parseSubcommand captures the first positional argument as the subcommand.
// Commands that need more than this parse the rest from Raw themselves.
func parseSubcommand(args *Args, remaining []string) {
	for _, arg := range remaining {
		if !strings.HasPrefix(arg, "-") {
			args.Subcommand = arg
			return
		}
	}
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	var positional []string
	for _, arg := range remaining {
		if !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
		}
	}

	if len(positional) > 0 {
		args.Subcommand = positional[0]
		if len(positional) > 1 {
			args.ConfigKey = positional[1]
		}
		if len(positional) > 2 {
			args.ConfigVal = strings.Join(positional[2:], " ")
		}
	}
}

// =============================================================================
// COMMAND HANDLERS
// =============================================================================

// HandleAsk handles the "ask" command.
// This delegates to the full implementation in ask.go.
func HandleAsk(args Args) {
	if err := HandleAskCommand(args); err != nil {
		DisplayError(err, args.JSON)
		os.Exit(GetExitCode(err))
	}
}

// HandleChat handles the "chat" command.
// This delegates to the full implementation in chat.go.
func HandleChat(args Args) {
	if err := HandleChatCommand(args); err != nil {
		DisplayError(err, args.JSON)
		os.Exit(GetExitCode(err))
	}
}

// HandleModels handles the "models" command.
// This delegates to the full implementation in models_cmd.go.
func HandleModels(args Args) {
	if err := HandleModelsCommand(args); err != nil {
		DisplayError(err, args.JSON)
		os.Exit(GetExitCode(err))
	}
}

// HandleDocs handles the "docs" command.
// This delegates to the full implementation in docs_cmd.go.
func HandleDocs(args Args) {
	if err := HandleDocsCommand(args); err != nil {
		DisplayError(err, args.JSON)
		os.Exit(GetExitCode(err))
	}
}

// HandleSessions handles the "sessions" command.
// This delegates to the full implementation in sessions_cmd.go.
func HandleSessions(args Args) {
	if err := HandleSessionsCommand(args); err != nil {
		DisplayError(err, args.JSON)
		os.Exit(GetExitCode(err))
	}
}

// NOTE: HandleStatus is implemented in status.go
// NOTE: HandleConfig is implemented in config.go
// NOTE: HandleDoctor is implemented in doctor.go

// HandleVersion handles the "version" command.
func HandleVersion(args Args) {
	if args.JSON {
		data := VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}
		resp := NewJSONResponse("version", data)
		resp.Print()
		return
	}
	PrintVersion()
}

// HandleHelp handles the "help" command.
func HandleHelp() {
	PrintUsage()
}

// HandleUnknown handles an unrecognized command: print the closest match
// and exit with a usage error.
func HandleUnknown(args Args) {
	cmd := ""
	if len(args.Raw) > 0 {
		cmd = args.Raw[0]
	}

	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", cmd)
	if suggestion := SuggestCommand(cmd); suggestion != "" {
		fmt.Fprintf(os.Stderr, "Did you mean 'cognito %s'?\n", suggestion)
	}
	fmt.Fprintln(os.Stderr, "Run 'cognito help' for usage.")
	os.Exit(ExitUsageError)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions_cmd.go - Saved session management CLI commands for cognito.
//
// CLI: Comprehensive help and examples for all commands
//
// Sessions are saved conversations: /save in chat mode writes one, and the
// TUI saves on exit. These commands work entirely on local files, so they
// never spawn or contact the backend.
//
// Command: sessions [subcommand]
// Short:   Manage saved chat sessions
// Aliases: session
//
// Subcommands:
//   list (default)      List all saved sessions (alias: ls)
//   show <id>           Show session details (alias: view)
//   search <query>      Find sessions by message content
//   export <id>         Export session transcript
//   rm <id>             Delete a session (aliases: remove, delete)
//   clear               Delete all sessions
//   stats               Show session statistics
//
// Examples:
//   cognito sessions                           List all sessions (default)
//   cognito sessions show 1                    Show first session details
//   cognito sessions show a1b2c3d4             Show session by ID
//   cognito sessions search "context window"   Find sessions mentioning a topic
//   cognito sessions export 1 --format md      Export as Markdown to stdout
//   cognito sessions export 1 --output t.md    Export to a file
//   cognito sessions rm 1 --yes                Delete first session
//   cognito sessions clear --yes               Delete all sessions
//   cognito sessions stats --json              Statistics in JSON format
//
// Flags:
//   --format FORMAT     Export format: json, md, txt (default: txt)
//   --output PATH       Write export to a file instead of stdout
//   --yes, -y           Skip confirmation for delete operations
//   --json              Output in JSON format

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/cognito-tui/internal/storage"
	"github.com/jeranaias/cognito-tui/internal/util"
)

// =============================================================================
// SESSIONS COMMAND HANDLER
// =============================================================================

// SessionsArgs holds parsed sessions command arguments.
type SessionsArgs struct {
	Subcommand string // list, show, search, export, rm, clear, stats
	SessionID  string // Session ID or 1-based index for show, export, rm
	Query      string // Search query for the search subcommand
	Format     string // Export format: json, md, txt
	OutPath    string // Optional output file for export
	Yes        bool   // Skip confirmation prompts
	JSON       bool   // Output in JSON format
}

// HandleSessionsCommand handles the "sessions" command with various subcommands.
func HandleSessionsCommand(args Args) error {
	sessionsArgs := parseSessionsCmdArgs(args)

	switch sessionsArgs.Subcommand {
	case "", "list", "ls":
		return handleSessionsList(sessionsArgs)
	case "show", "view":
		return handleSessionsShow(sessionsArgs)
	case "search", "find":
		return handleSessionsSearch(sessionsArgs)
	case "export":
		return handleSessionsExport(sessionsArgs)
	case "rm", "remove", "delete":
		return handleSessionsRemove(sessionsArgs)
	case "clear":
		return handleSessionsClear(sessionsArgs)
	case "stats":
		return handleSessionsStats(sessionsArgs)
	default:
		return fmt.Errorf("unknown sessions subcommand: %s\nUsage: cognito sessions [list|show|search|export|rm|clear|stats]", sessionsArgs.Subcommand)
	}
}

// parseSessionsCmdArgs parses detailed sessions command arguments from the Args struct.
func parseSessionsCmdArgs(args Args) SessionsArgs {
	parser := NewArgParser(args.Raw)

	sessionsArgs := SessionsArgs{
		Subcommand: args.Subcommand,
		Format:     strings.ToLower(parser.FlagOrDefault("format", "txt")),
		OutPath:    parser.FlagOrDefault("output", parser.Flag("o")),
		Yes:        parser.BoolFlag("yes") || parser.BoolFlag("y"),
		JSON:       args.JSON || parser.BoolFlag("json"),
	}

	switch sessionsArgs.Subcommand {
	case "search", "find":
		sessionsArgs.Query = JoinPositionalArgs(parser, 1)
	default:
		sessionsArgs.SessionID = parser.Positional(1)
	}

	return sessionsArgs
}

// =============================================================================
// SESSIONS LIST
// =============================================================================

// SessionListOutput is the JSON output format for session list and search.
type SessionListOutput struct {
	Sessions []SessionInfo `json:"sessions"`
	Count    int           `json:"count"`
	Query    string        `json:"query,omitempty"`
}

// SessionInfo is the JSON output format for a single session.
type SessionInfo struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Preview      string    `json:"preview,omitempty"`
}

// handleSessionsList lists all saved sessions.
func handleSessionsList(args SessionsArgs) error {
	store, err := storage.NewConversationStore()
	if err != nil {
		return fmt.Errorf("failed to open session storage: %w", err)
	}

	sessions, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if args.JSON {
		return NewJSONResponse("sessions", sessionListOutput(sessions, "")).Print()
	}

	return outputSessionListText(sessions)
}

// sessionListOutput converts conversation metadata into the JSON list shape.
func sessionListOutput(sessions []storage.ConversationMeta, query string) SessionListOutput {
	output := SessionListOutput{
		Sessions: make([]SessionInfo, 0, len(sessions)),
		Count:    len(sessions),
		Query:    query,
	}

	for _, s := range sessions {
		output.Sessions = append(output.Sessions, SessionInfo{
			ID:           s.ID,
			Summary:      s.Summary,
			Model:        s.Model,
			MessageCount: s.MessageCount,
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
			Preview:      s.Preview,
		})
	}

	return output
}

// outputSessionListText outputs sessions in human-readable format.
func outputSessionListText(sessions []storage.ConversationMeta) error {
	if len(sessions) == 0 {
		fmt.Println()
		fmt.Println("No saved sessions found.")
		fmt.Println()
		fmt.Println("Sessions are saved with /save during 'cognito chat', or on exit in the TUI.")
		fmt.Println()
		return nil
	}

	fmt.Println()
	fmt.Println("Saved Sessions")
	fmt.Println(strings.Repeat("=", 64))
	fmt.Println()

	// Table header
	fmt.Printf("%-4s %-24s %-18s %-6s %-12s\n", "ID", "Summary", "Model", "Msgs", "Updated")
	fmt.Println(strings.Repeat("-", 64))

	for i, s := range sessions {
		// UNICODE: Rune-aware truncation preserves multi-byte characters
		summary := util.TruncateRunes(s.Summary, 22)
		model := util.TruncateRunes(s.Model, 16)

		updated := formatTimeAgo(s.UpdatedAt)
		if len(updated) > 12 {
			updated = s.UpdatedAt.Format("01/02")
		}

		fmt.Printf("%-4d %-24s %-18s %-6d %-12s\n",
			i+1,
			summary,
			model,
			s.MessageCount,
			updated,
		)
	}

	fmt.Println()
	fmt.Printf("Total: %d session%s\n", len(sessions), plural(len(sessions)))
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  cognito sessions show <id>               View session details")
	fmt.Println("  cognito sessions export <id> --format    Export transcript (json|md|txt)")
	fmt.Println("  cognito sessions rm <id>                 Delete session")
	fmt.Println()

	return nil
}

// =============================================================================
// SESSIONS SEARCH
// =============================================================================

// handleSessionsSearch finds sessions whose summary or message content
// matches the query.
func handleSessionsSearch(args SessionsArgs) error {
	if args.Query == "" {
		return ErrMissingArgument("query", `cognito sessions search "context window"`)
	}

	store, err := storage.NewConversationStore()
	if err != nil {
		return fmt.Errorf("failed to open session storage: %w", err)
	}

	// Fast pass over summaries and previews, then the full message content.
	byMeta, err := store.Search(args.Query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	byContent, err := store.SearchMessages(args.Query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	matches := mergeSessionMatches(byMeta, byContent)

	if args.JSON {
		return NewJSONResponse("sessions", sessionListOutput(matches, args.Query)).Print()
	}

	if len(matches) == 0 {
		fmt.Printf("No sessions match %q.\n", args.Query)
		return nil
	}

	fmt.Printf("Sessions matching %q:\n", args.Query)
	return outputSessionListText(matches)
}

// mergeSessionMatches combines two match sets, dropping duplicates and
// keeping most recently updated sessions first.
func mergeSessionMatches(a, b []storage.ConversationMeta) []storage.ConversationMeta {
	seen := make(map[string]bool, len(a))
	merged := make([]storage.ConversationMeta, 0, len(a)+len(b))

	for _, m := range a {
		seen[m.ID] = true
		merged = append(merged, m)
	}
	for _, m := range b {
		if !seen[m.ID] {
			merged = append(merged, m)
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].UpdatedAt.After(merged[j].UpdatedAt)
	})

	return merged
}

// =============================================================================
// SESSIONS SHOW
// =============================================================================

// handleSessionsShow shows details of a specific session.
func handleSessionsShow(args SessionsArgs) error {
	if args.SessionID == "" {
		return ErrMissingArgument("id", "cognito sessions show 1")
	}

	store, err := storage.NewConversationStore()
	if err != nil {
		return fmt.Errorf("failed to open session storage: %w", err)
	}

	conv, err := loadSessionByIDOrIndex(store, args.SessionID)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("sessions", conv).Print()
	}

	return outputSessionShowText(conv)
}

// outputSessionShowText outputs session details in human-readable format.
func outputSessionShowText(conv *storage.StoredConversation) error {
	fmt.Println()
	fmt.Printf("Session: %s\n", conv.Summary)
	fmt.Println(strings.Repeat("=", 64))
	fmt.Println()

	fmt.Printf("ID:           %s\n", conv.ID)
	fmt.Printf("Model:        %s\n", conv.Model)
	fmt.Printf("Messages:     %d\n", len(conv.Messages))
	fmt.Printf("Created:      %s\n", conv.CreatedAt.Format(time.RFC1123))
	fmt.Printf("Updated:      %s\n", conv.UpdatedAt.Format(time.RFC1123))
	if conv.TokensUsed > 0 {
		fmt.Printf("Tokens Used:  %d\n", conv.TokensUsed)
	}
	fmt.Println()

	fmt.Println("Messages:")
	fmt.Println(strings.Repeat("-", 64))

	for i, msg := range conv.Messages {
		// UNICODE: Rune-aware truncation preserves multi-byte characters
		content := util.TruncateRunes(msg.Content, 100)
		content = strings.ReplaceAll(content, "\n", " ")

		fmt.Printf("[%d] %s: %s\n", i+1, strings.ToUpper(msg.Role), content)
	}

	fmt.Println()
	fmt.Printf("Use 'cognito sessions export %s' to export the full transcript.\n", conv.ID)
	fmt.Println()

	return nil
}

// =============================================================================
// SESSIONS EXPORT
// =============================================================================

// handleSessionsExport exports a session transcript to stdout or a file.
func handleSessionsExport(args SessionsArgs) error {
	if args.SessionID == "" {
		return ErrMissingArgument("id", "cognito sessions export 1 --format md")
	}

	validFormats := map[string]bool{"json": true, "md": true, "txt": true}
	if !validFormats[args.Format] {
		return fmt.Errorf("invalid format '%s', must be one of: json, md, txt", args.Format)
	}

	store, err := storage.NewConversationStore()
	if err != nil {
		return fmt.Errorf("failed to open session storage: %w", err)
	}

	conv, err := loadSessionByIDOrIndex(store, args.SessionID)
	if err != nil {
		return err
	}

	var data []byte
	switch args.Format {
	case "json":
		data, err = conv.ExportJSON()
		if err != nil {
			return fmt.Errorf("failed to export session: %w", err)
		}
	case "md":
		data = []byte(conv.ExportMarkdown())
	default:
		data = []byte(renderSessionText(conv))
	}

	if args.OutPath == "" {
		// A transcript on stdout is the artifact itself, never wrapped in
		// the JSON response envelope.
		fmt.Print(string(data))
		if len(data) > 0 && data[len(data)-1] != '\n' {
			fmt.Println()
		}
		return nil
	}

	path, err := ValidateOutputPath(args.OutPath)
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	if args.JSON {
		output := map[string]interface{}{
			"session_id": conv.ID,
			"format":     args.Format,
			"path":       path,
			"bytes":      len(data),
		}
		return NewJSONResponse("sessions", output).Print()
	}

	fmt.Printf("Exported session %s to %s (%s)\n", conv.ID, path, formatBytes(int64(len(data))))
	return nil
}

// renderSessionText renders a session as a plain text transcript.
func renderSessionText(conv *storage.StoredConversation) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Session: %s\n", conv.Summary))
	sb.WriteString(strings.Repeat("=", 64) + "\n\n")
	sb.WriteString(fmt.Sprintf("ID:       %s\n", conv.ID))
	sb.WriteString(fmt.Sprintf("Model:    %s\n", conv.Model))
	sb.WriteString(fmt.Sprintf("Messages: %d\n", len(conv.Messages)))
	sb.WriteString(fmt.Sprintf("Created:  %s\n", conv.CreatedAt.Format(time.RFC1123)))
	sb.WriteString(fmt.Sprintf("Updated:  %s\n", conv.UpdatedAt.Format(time.RFC1123)))
	sb.WriteString("\n" + strings.Repeat("-", 64) + "\n\n")

	for i, msg := range conv.Messages {
		sb.WriteString(fmt.Sprintf("[%d] %s:\n", i+1, formatRole(msg.Role)))
		sb.WriteString(msg.Content)
		sb.WriteString("\n")

		if msg.Role == "assistant" && msg.TokenCount > 0 {
			sb.WriteString(fmt.Sprintf("(%d tokens | %.1f tok/s | TTFT %dms)\n",
				msg.TokenCount, msg.TokensPerSec, msg.TTFTMs))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// =============================================================================
// SESSIONS DELETE
// =============================================================================

// SessionDeleteOutput is the JSON output format for session deletion.
type SessionDeleteOutput struct {
	Deleted   bool   `json:"deleted"`
	SessionID string `json:"session_id"`
	Summary   string `json:"summary"`
}

// handleSessionsRemove deletes a specific session.
func handleSessionsRemove(args SessionsArgs) error {
	if args.SessionID == "" {
		return ErrMissingArgument("id", "cognito sessions rm 1")
	}

	store, err := storage.NewConversationStore()
	if err != nil {
		return fmt.Errorf("failed to open session storage: %w", err)
	}

	// Load first so the confirmation prompt can name the session.
	conv, err := loadSessionByIDOrIndex(store, args.SessionID)
	if err != nil {
		return err
	}

	confirmed, err := RequireConfirmation(args.Yes,
		fmt.Sprintf("delete session %q (%d messages)", conv.Summary, len(conv.Messages)),
		args.JSON)
	if err != nil {
		return err
	}
	if !confirmed {
		ShowCancellationMessage(args.JSON)
		return nil
	}

	if err := store.Delete(conv.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if args.JSON {
		return NewJSONResponse("sessions", SessionDeleteOutput{
			Deleted:   true,
			SessionID: conv.ID,
			Summary:   conv.Summary,
		}).Print()
	}

	fmt.Printf("Deleted session %s (%s)\n", conv.ID, conv.Summary)
	return nil
}

// handleSessionsClear deletes all saved sessions.
func handleSessionsClear(args SessionsArgs) error {
	store, err := storage.NewConversationStore()
	if err != nil {
		return fmt.Errorf("failed to open session storage: %w", err)
	}

	sessions, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	count := len(sessions)
	if count == 0 {
		if args.JSON {
			return NewJSONResponse("sessions", map[string]interface{}{
				"deleted": 0,
			}).Print()
		}
		fmt.Println("No sessions to delete.")
		return nil
	}

	confirmed, err := RequireConfirmation(args.Yes,
		fmt.Sprintf("delete all %d saved session%s", count, plural(count)),
		args.JSON)
	if err != nil {
		return err
	}
	if !confirmed {
		ShowCancellationMessage(args.JSON)
		return nil
	}

	if err := store.Clear(); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}

	if args.JSON {
		return NewJSONResponse("sessions", map[string]interface{}{
			"deleted": count,
		}).Print()
	}

	fmt.Printf("Deleted %d session%s.\n", count, plural(count))
	return nil
}

// =============================================================================
// SESSIONS STATS
// =============================================================================

// SessionStatsOutput is the JSON output format for session stats.
type SessionStatsOutput struct {
	TotalSessions   int            `json:"total_sessions"`
	TotalMessages   int            `json:"total_messages"`
	AverageLength   float64        `json:"average_messages_per_session"`
	TotalTokens     int            `json:"total_tokens"`
	ModelsUsed      map[string]int `json:"models_used"`
	OldestSession   *time.Time     `json:"oldest_session,omitempty"`
	NewestSession   *time.Time     `json:"newest_session,omitempty"`
	StorageBytes    int64          `json:"storage_bytes"`
	StorageLocation string         `json:"storage_location"`
}

// handleSessionsStats shows session statistics.
func handleSessionsStats(args SessionsArgs) error {
	store, err := storage.NewConversationStore()
	if err != nil {
		return fmt.Errorf("failed to open session storage: %w", err)
	}

	sessions, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	stats := calculateSessionStats(store, sessions)

	if args.JSON {
		return NewJSONResponse("sessions", stats).Print()
	}

	return outputSessionStatsText(stats)
}

// calculateSessionStats calculates statistics from sessions.
func calculateSessionStats(store *storage.ConversationStore, sessions []storage.ConversationMeta) SessionStatsOutput {
	stats := SessionStatsOutput{
		TotalSessions:   len(sessions),
		ModelsUsed:      make(map[string]int),
		StorageLocation: store.BaseDir,
	}

	if len(sessions) == 0 {
		return stats
	}

	var oldest, newest time.Time

	for _, meta := range sessions {
		stats.TotalMessages += meta.MessageCount
		stats.ModelsUsed[meta.Model]++

		if oldest.IsZero() || meta.CreatedAt.Before(oldest) {
			oldest = meta.CreatedAt
		}
		if newest.IsZero() || meta.UpdatedAt.After(newest) {
			newest = meta.UpdatedAt
		}

		// Token totals live in the full conversation, not the metadata.
		conv, err := store.Load(meta.ID)
		if err == nil && conv != nil {
			stats.TotalTokens += conv.TokensUsed
		}
	}

	if stats.TotalSessions > 0 {
		stats.AverageLength = float64(stats.TotalMessages) / float64(stats.TotalSessions)
	}

	if !oldest.IsZero() {
		stats.OldestSession = &oldest
	}
	if !newest.IsZero() {
		stats.NewestSession = &newest
	}

	stats.StorageBytes = calculateStorageSize(store.BaseDir)

	return stats
}

// calculateStorageSize calculates total size of session files.
func calculateStorageSize(dir string) int64 {
	var size int64
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".json") {
			size += info.Size()
		}
		return nil
	})
	return size
}

// outputSessionStatsText outputs session stats in human-readable format.
func outputSessionStatsText(stats SessionStatsOutput) error {
	fmt.Println()
	fmt.Println("Session Statistics")
	fmt.Println(strings.Repeat("=", 40))
	fmt.Println()

	fmt.Printf("Total Sessions:    %d\n", stats.TotalSessions)
	fmt.Printf("Total Messages:    %d\n", stats.TotalMessages)
	fmt.Printf("Average Length:    %.1f messages/session\n", stats.AverageLength)

	if stats.TotalTokens > 0 {
		fmt.Printf("Total Tokens:      %d\n", stats.TotalTokens)
	}

	fmt.Printf("Storage Used:      %s\n", formatBytes(stats.StorageBytes))
	fmt.Println()

	if stats.OldestSession != nil {
		fmt.Printf("First Session:     %s\n", stats.OldestSession.Format("2006-01-02 15:04"))
	}
	if stats.NewestSession != nil {
		fmt.Printf("Latest Activity:   %s\n", stats.NewestSession.Format("2006-01-02 15:04"))
	}
	fmt.Println()

	if len(stats.ModelsUsed) > 0 {
		fmt.Println("Models Used:")

		type modelCount struct {
			model string
			count int
		}
		var models []modelCount
		for m, c := range stats.ModelsUsed {
			models = append(models, modelCount{m, c})
		}
		sort.Slice(models, func(i, j int) bool {
			return models[i].count > models[j].count
		})

		for _, mc := range models {
			fmt.Printf("  %-30s %d session%s\n", mc.model, mc.count, plural(mc.count))
		}
		fmt.Println()
	}

	fmt.Printf("Storage Location:  %s\n", stats.StorageLocation)
	fmt.Println()

	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// loadSessionByIDOrIndex loads a session by ID or 1-based numeric index.
func loadSessionByIDOrIndex(store *storage.ConversationStore, idOrIndex string) (*storage.StoredConversation, error) {
	if idx, err := strconv.Atoi(idOrIndex); err == nil {
		conv, err := store.LoadByIndex(idx - 1)
		if err != nil {
			return nil, NewNotFoundError("session", fmt.Sprintf("#%d", idx))
		}
		return conv, nil
	}

	conv, err := store.Load(idOrIndex)
	if err != nil {
		return nil, NewNotFoundError("session", idOrIndex)
	}
	return conv, nil
}

// formatRole formats a message role for display.
func formatRole(role string) string {
	switch role {
	case "user":
		return "User"
	case "assistant":
		return "Assistant"
	case "system":
		return "System"
	default:
		if role == "" {
			return "Unknown"
		}
		return strings.ToUpper(role[:1]) + role[1:]
	}
}

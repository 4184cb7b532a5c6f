// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// docs_cmd.go - RAG document management CLI commands for cognito.
//
// CLI: Comprehensive help and examples for all commands
//
// The backend indexes uploaded documents and grounds answers in them when
// document mode is on. These commands manage that index from the shell.
//
// Command: docs [subcommand]
// Short:   Manage RAG documents
// Aliases: documents
//
// Subcommands:
//   list (default)      List indexed documents (aliases: ls)
//   add <path>          Index a document for retrieval
//   rm <id>             Remove a document from the index
//   clear               Remove all indexed documents
//
// Examples:
//   cognito docs                       List indexed documents
//   cognito docs add report.pdf        Index a PDF
//   cognito docs add notes.md          Index a markdown file
//   cognito docs rm 4f2a91             Remove one document
//   cognito docs clear --yes           Wipe the index
//
// Flags:
//   --yes               Skip confirmation prompt for clear
//   --json              Output in JSON format

package cli

import (
	"fmt"
	"os"

	"github.com/jeranaias/cognito-tui/internal/backend"
	"github.com/jeranaias/cognito-tui/internal/util"
)

// =============================================================================
// DOCS COMMAND HANDLER
// =============================================================================

// DocsArgs holds parsed docs command arguments.
type DocsArgs struct {
	Subcommand string
	Path       string // File to index (add)
	DocID      string // Document id (rm)
	Yes        bool   // Skip confirmation
	JSON       bool   // Output in JSON format
}

// HandleDocsCommand handles the "docs" command with various subcommands.
func HandleDocsCommand(args Args) error {
	docsArgs := parseDocsCmdArgs(args)

	switch docsArgs.Subcommand {
	case "", "list", "ls":
		return handleDocsList(args, docsArgs)
	case "add":
		return handleDocsAdd(args, docsArgs)
	case "rm", "remove", "delete":
		return handleDocsRemove(args, docsArgs)
	case "clear":
		return handleDocsClear(args, docsArgs)
	default:
		return fmt.Errorf("unknown docs subcommand: %s\nUsage: cognito docs [list|add|rm|clear]", docsArgs.Subcommand)
	}
}

// parseDocsCmdArgs parses detailed docs command arguments from the Args struct.
func parseDocsCmdArgs(args Args) DocsArgs {
	parser := NewArgParser(args.Raw)

	docsArgs := DocsArgs{
		Subcommand: parser.Subcommand(),
		Yes:        parser.BoolFlag("yes") || parser.BoolFlag("y"),
		JSON:       args.JSON,
	}

	switch docsArgs.Subcommand {
	case "add":
		docsArgs.Path = parser.Positional(1)
	case "rm", "remove", "delete":
		docsArgs.DocID = parser.Positional(1)
	}

	return docsArgs
}

// =============================================================================
// DOCS LIST
// =============================================================================

// DocsListOutput is the JSON output format for docs list.
type DocsListOutput struct {
	Documents    []backend.Document `json:"documents"`
	Count        int                `json:"count"`
	RAGAvailable bool               `json:"rag_available"`
}

// handleDocsList lists indexed documents.
func handleDocsList(args Args, docsArgs DocsArgs) error {
	cfg, err := loadCLIConfig(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(args)
	defer cancel()

	client, stop, err := ensureBackend(ctx, cfg, args)
	if err != nil {
		return err
	}
	defer stop()

	resp, err := client.ListDocuments(ctx)
	if err != nil {
		return err
	}

	if docsArgs.JSON {
		output := DocsListOutput{
			Documents:    resp.Documents,
			Count:        len(resp.Documents),
			RAGAvailable: resp.RAGAvailable,
		}
		return NewJSONResponse("docs", output).Print()
	}

	if !resp.RAGAvailable {
		fmt.Println()
		fmt.Println(WarningStyle.Render("Document retrieval is not available on this backend."))
		fmt.Println(DimStyle.Render("Run 'cognito doctor' to check the backend installation."))
		fmt.Println()
		return nil
	}

	if len(resp.Documents) == 0 {
		fmt.Println()
		fmt.Println("No documents indexed.")
		fmt.Println()
		fmt.Println("Index one with: cognito docs add <path>")
		fmt.Println()
		return nil
	}

	fmt.Println()
	fmt.Println(TitleStyle.Render("Indexed Documents"))
	fmt.Println(RenderSeparator())
	fmt.Println()
	fmt.Printf("  %-10s %-46s %s\n", "ID", "FILENAME", "CHUNKS")
	for _, doc := range resp.Documents {
		fmt.Printf("  %-10s %-46s %d\n",
			util.TruncateRunes(doc.ID, 10),
			util.TruncateRunes(doc.Filename, 44),
			doc.ChunkCount)
	}
	fmt.Println()
	fmt.Printf("Total: %d document%s\n", len(resp.Documents), plural(len(resp.Documents)))
	fmt.Println()

	return nil
}

// =============================================================================
// DOCS ADD
// =============================================================================

// handleDocsAdd uploads a file for indexing.
func handleDocsAdd(args Args, docsArgs DocsArgs) error {
	if docsArgs.Path == "" {
		return ErrMissingArgument("path", "cognito docs add report.pdf")
	}

	if _, err := os.Stat(docsArgs.Path); err != nil {
		return NewNotFoundError("file", docsArgs.Path)
	}

	cfg, err := loadCLIConfig(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(args)
	defer cancel()

	client, stop, err := ensureBackend(ctx, cfg, args)
	if err != nil {
		return err
	}
	defer stop()

	if !args.Quiet && !docsArgs.JSON {
		fmt.Fprintf(os.Stderr, "Indexing %s...\n", docsArgs.Path)
	}

	resp, err := client.UploadDocument(ctx, docsArgs.Path)
	if err != nil {
		return err
	}

	if docsArgs.JSON {
		return NewJSONResponse("docs", resp).Print()
	}

	fmt.Println()
	fmt.Printf("%s %s (id %s, %d chunk%s)\n",
		SuccessStyle.Render("Indexed:"),
		resp.Document.Filename,
		resp.Document.ID,
		resp.Document.ChunkCount,
		plural(resp.Document.ChunkCount))
	fmt.Println()

	return nil
}

// =============================================================================
// DOCS REMOVE
// =============================================================================

// handleDocsRemove removes one document from the index.
func handleDocsRemove(args Args, docsArgs DocsArgs) error {
	if docsArgs.DocID == "" {
		return ErrMissingArgument("id", "cognito docs rm <id> (ids come from 'cognito docs')")
	}

	cfg, err := loadCLIConfig(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(args)
	defer cancel()

	client, stop, err := ensureBackend(ctx, cfg, args)
	if err != nil {
		return err
	}
	defer stop()

	if err := client.DeleteDocument(ctx, docsArgs.DocID); err != nil {
		return err
	}

	if docsArgs.JSON {
		output := map[string]interface{}{
			"deleted": true,
			"doc_id":  docsArgs.DocID,
		}
		return NewJSONResponse("docs", output).Print()
	}

	fmt.Println()
	fmt.Printf("Removed document %s\n", docsArgs.DocID)
	fmt.Println()

	return nil
}

// =============================================================================
// DOCS CLEAR
// =============================================================================

// handleDocsClear removes every document from the index.
func handleDocsClear(args Args, docsArgs DocsArgs) error {
	confirmed, err := RequireConfirmation(docsArgs.Yes, "remove all indexed documents", docsArgs.JSON)
	if err != nil {
		return err
	}
	if !confirmed {
		ShowCancellationMessage(docsArgs.JSON)
		return nil
	}

	cfg, err := loadCLIConfig(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(args)
	defer cancel()

	client, stop, err := ensureBackend(ctx, cfg, args)
	if err != nil {
		return err
	}
	defer stop()

	count, err := client.ClearDocuments(ctx)
	if err != nil {
		return err
	}

	if docsArgs.JSON {
		output := map[string]interface{}{
			"cleared": true,
			"count":   count,
		}
		return NewJSONResponse("docs", output).Print()
	}

	fmt.Println()
	fmt.Printf("Removed %d document%s from the index.\n", count, plural(count))
	fmt.Println()

	return nil
}

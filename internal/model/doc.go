// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types used throughout the application
// for representing chat conversations, messages, streaming statistics, and
// the GGUF model files on disk.
//
// # Key Types
//
//   - Conversation: Container for a chat session with messages and metadata
//   - Message: Single message with role, content, timestamp, and stats
//   - Statistics: Token timing metrics collected while a reply streams
//   - LocalModelFile: A .gguf file in the models directory
//   - Role: Message role enumeration (user, assistant, system)
//
// # Usage
//
// Create a conversation and stream a reply into it:
//
//	conv := model.NewConversationWithModel("mistral-7b.gguf")
//	conv.AddUserMessage("Hello!")
//	msg := conv.AddAssistantMessage()
//
//	stats := model.NewStatistics()
//	for token := range tokens {
//	    stats.RecordFirstToken()
//	    msg.AppendToken(token)
//	}
//	stats.Finalize(msg.EstimateTokens())
//	conv.FinalizeLast(stats)
//
// List the model files on disk:
//
//	models, err := model.ScanModels(cfg.ModelsDir())
//	for _, m := range models {
//	    fmt.Printf("%s (%s)\n", m.Filename, m.SizeString())
//	}
package model

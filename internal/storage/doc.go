// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation and download persistence for cognito.
//
// This package handles saving and loading conversations to/from disk, the
// SQLite ledger that records model download provenance, and the filesystem
// watcher that notices model files coming and going.
//
// # Key Types
//
//   - ConversationStore: JSON-file persistence for chat sessions
//   - StoredConversation: Serializable conversation with metadata
//   - ConversationMeta: Lightweight metadata for listing
//   - Ledger: SQLite download ledger (~/.cognito/cognito.db)
//   - ModelsWatcher: debounced fsnotify watcher over the models directory
//
// # Usage
//
// Create a store and save a conversation:
//
//	store, err := storage.NewConversationStore()
//	id, err := store.Save(conversation)
//
// List and load conversations:
//
//	metas, err := store.List()
//	conv, err := store.Load(metas[0].ID)
//
// Record downloads:
//
//	ledger, err := storage.OpenLedger(path)
//	id, err := ledger.RecordDownloadStart("TheBloke/Mistral-7B-GGUF", "mistral.gguf")
//	err = ledger.RecordDownloadEnd(id, "complete", "/models/mistral.gguf", "")
//
// # Storage Location
//
// Conversations are stored in ~/.cognito/conversations/ as JSON files; the
// download ledger lives at ~/.cognito/cognito.db.
package storage

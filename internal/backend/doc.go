// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for communicating with the cognito inference backend.
//
// This package covers the full lifecycle of the local backend: launching
// the server process, waiting for it to become healthy, exchanging chat
// and download streams with it, and tearing it down again.
//
// # Key Types
//
//   - Client: HTTP client for the backend API, unary and streaming
//   - StreamParser: incremental decoder for data:-framed event streams
//   - HealthMonitor: periodic health prober with change callbacks
//   - Supervisor: owns the backend process (dev, packaged, or external)
//   - Downloader: single-flight model download coordinator
//
// # Usage
//
// Create a client and stream a chat completion:
//
//	client := backend.NewClient()
//	err := client.ChatStream(ctx, backend.ChatRequest{
//	    Messages: []backend.Message{backend.NewUserMessage("Hello")},
//	}, func(ev backend.ChatEvent) {
//	    if ev.Kind == backend.ChatEventToken {
//	        fmt.Print(ev.Token)
//	    }
//	})
//
// To own the backend process as well:
//
//	sup := backend.NewSupervisor(client, backend.SupervisorConfig{
//	    Mode:      backend.ModeDev,
//	    ModuleDir: "/path/to/backend",
//	})
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop(context.Background())
//
// # Streaming Contract
//
// Every chat stream ends in exactly one terminal event: ChatEventDone on
// the [DONE] sentinel, on end of stream, and on cancellation, or
// ChatEventError when the backend reports failure. Cancellation is a clean
// stop, never an error. Malformed frames are skipped without ending the
// stream.
package backend

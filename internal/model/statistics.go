// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/jeranaias/cognito-tui/internal/util"
)

// =============================================================================
// STATISTICS TYPE
// =============================================================================

// Statistics tracks token generation metrics for a streaming response.
type Statistics struct {
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	PromptTokens     int
	CompletionTokens int

	TTFT            time.Duration // Time to first token
	TotalDuration   time.Duration
	TokensPerSecond float64
}

// NewStatistics creates statistics with the start time set to now.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
	}
}

// RecordFirstToken marks the time of the first received token.
// Subsequent calls are no-ops so a retried status frame cannot skew TTFT.
func (s *Statistics) RecordFirstToken() {
	if s.FirstTokenTime.IsZero() {
		s.FirstTokenTime = time.Now()
		s.TTFT = s.FirstTokenTime.Sub(s.StartTime)
	}
}

// Finalize computes the derived metrics after streaming completes.
func (s *Statistics) Finalize(tokenCount int) {
	s.EndTime = time.Now()
	s.CompletionTokens = tokenCount
	s.TotalDuration = s.EndTime.Sub(s.StartTime)

	if s.TotalDuration > 0 && tokenCount > 0 {
		s.TokensPerSecond = float64(tokenCount) / s.TotalDuration.Seconds()
	}
}

// Format returns a human-readable summary of the statistics.
func (s *Statistics) Format() string {
	if s.TotalDuration == 0 {
		return ""
	}

	return formatSeconds(s.TotalDuration.Seconds()) + " | " +
		util.IntToStr(s.CompletionTokens) + " tokens | " +
		util.FloatToStringPrec(s.TokensPerSecond, 1) + " tok/s | " +
		"TTFT " + util.Int64ToString(s.TTFT.Milliseconds()) + "ms"
}

// formatSeconds renders a duration in seconds as "234ms" or "2.5s".
func formatSeconds(secs float64) string {
	if secs < 1.0 {
		return util.IntToStr(int(secs*1000)) + "ms"
	}
	return util.FloatToStringPrec(secs, 1) + "s"
}

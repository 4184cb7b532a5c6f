// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides UI components for the cognito TUI.
package components

import (
	"strings"
	"unicode"
)

// =============================================================================
// FUZZY MATCHING
// =============================================================================

// FuzzyMatch performs fuzzy matching between a query and a target string.
// Returns a score (higher is better) and whether the match succeeded.
// Used by the model picker's type-to-filter.
//
// Matching rules:
//   - Each character in query must appear in order in target
//   - Consecutive matches get bonus points
//   - Matches at word boundaries get bonus points
//   - Matches at start of string get bonus points
//   - Case-insensitive matching
//
// Examples:
//   - "qw" matches "qwen2.5-7b-instruct" with high score (start + consecutive)
//   - "q4" matches "qwen2.5-7b-q4_k_m" (boundary hits on both characters)
//   - "xyz" does not match "llama-3.2-3b"
func FuzzyMatch(query, target string) (score int, matched bool) {
	if query == "" {
		return 0, true
	}

	queryRunes := []rune(strings.ToLower(query))
	targetRunes := []rune(strings.ToLower(target))

	if len(queryRunes) > len(targetRunes) {
		return 0, false
	}

	// Pre-convert original strings to runes for case matching
	origTargetRunes := []rune(target)
	origQueryRunes := []rune(query)

	queryPos := 0
	score = 0
	lastMatchPos := -1

	for targetPos := 0; targetPos < len(targetRunes) && queryPos < len(queryRunes); targetPos++ {
		if targetRunes[targetPos] == queryRunes[queryPos] {
			// Base score for match
			matchScore := 1

			// Bonus for consecutive matches
			if lastMatchPos == targetPos-1 {
				matchScore += 5
			}

			// Bonus for match at start of target
			if targetPos == 0 {
				matchScore += 10
			}

			// Bonus for match at word boundary
			if isWordBoundary(targetRunes, targetPos) {
				matchScore += 7
			}

			// Bonus for exact case match
			if targetPos < len(origTargetRunes) && queryPos < len(origQueryRunes) {
				if origTargetRunes[targetPos] == origQueryRunes[queryPos] {
					matchScore += 2
				}
			}

			score += matchScore
			lastMatchPos = targetPos
			queryPos++
		}
	}

	// Did we match all query characters?
	matched = queryPos == len(queryRunes)

	// Penalty for longer targets (shorter strings are better matches)
	if matched {
		score -= len(targetRunes) / 4
	}

	return score, matched
}

// isWordBoundary returns true if the position is at a word boundary.
// A word boundary is:
//   - After a space, slash, dash, dot, or underscore
//   - After a lowercase letter followed by an uppercase letter (camelCase)
func isWordBoundary(runes []rune, pos int) bool {
	if pos == 0 {
		return true
	}

	if pos >= len(runes) {
		return false
	}

	prev := runes[pos-1]

	// After separator characters
	if prev == ' ' || prev == '/' || prev == '-' || prev == '_' || prev == '.' {
		return true
	}

	// CamelCase boundary (lowercase -> uppercase)
	if unicode.IsLower(prev) && unicode.IsUpper(runes[pos]) {
		return true
	}

	return false
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package turns

import (
	"strings"
	"sync"
)

// =============================================================================
// TURN TYPE
// =============================================================================

// Role identifies the author of a turn.
type Role string

const (
	// RoleUser marks a turn authored by the person at the keyboard.
	RoleUser Role = "user"

	// RoleAssistant marks a turn authored by the completion backend.
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Turns are replaced wholesale,
// never patched in place.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// User creates a user turn.
func User(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// Assistant creates an assistant turn.
func Assistant(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// Placeholder creates an empty assistant turn. Empty content is the signal
// to renderers to show a loading indicator instead of text.
func Placeholder() Turn {
	return Turn{Role: RoleAssistant}
}

// IsPlaceholder reports whether the turn is a still-loading assistant slot.
func (t Turn) IsPlaceholder() bool {
	return t.Role == RoleAssistant && t.Content == ""
}

// Preview returns the first maxLen runes of the content on a single line.
func (t Turn) Preview(maxLen int) string {
	content := strings.ReplaceAll(t.Content, "\n", " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// TURN STORE
// =============================================================================

// Store is the ordered, positionally addressable sequence of turns for the
// active session. All operations are safe for concurrent use: streaming
// writers run in goroutines while the render loop reads snapshots.
type Store struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{turns: make([]Turn, 0)}
}

// NewStoreWith creates a store pre-populated with history.
func NewStoreWith(history []Turn) *Store {
	s := NewStore()
	s.Append(history...)
	return s
}

// Append adds one or more turns at the end and returns the index of the
// last appended turn. Returns -1 if no turns were given.
func (s *Store) Append(turns ...Turn) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(turns) == 0 {
		return len(s.turns) - 1
	}
	s.turns = append(s.turns, turns...)
	return len(s.turns) - 1
}

// ReplaceAt overwrites the turn at index with a whole new value.
// An out-of-bounds index is a silent no-op: the writer was working against
// a store generation that has since been cleared or replaced.
func (s *Store) ReplaceAt(index int, t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.turns) {
		return
	}
	s.turns[index] = t
}

// At returns the turn at index and whether the index was in bounds.
func (s *Store) At(index int) (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.turns) {
		return Turn{}, false
	}
	return s.turns[index], true
}

// Snapshot returns a copy of the full ordered sequence for rendering.
func (s *Store) Snapshot() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Clear removes all turns.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = s.turns[:0]
}

// NearestUserBefore scans turns strictly before index in reverse order and
// returns the content of the nearest user turn. The second result is false
// when no user turn precedes the index, in which case there is nothing to
// regenerate from.
func (s *Store) NearestUserBefore(index int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index > len(s.turns) {
		index = len(s.turns)
	}
	for i := index - 1; i >= 0; i-- {
		if s.turns[i].Role == RoleUser {
			return s.turns[i].Content, true
		}
	}
	return "", false
}

// LastAssistantIndex returns the index of the most recent assistant turn,
// or -1 if there is none. Used by the regenerate keybinding.
func (s *Store) LastAssistantIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// messages.go - Bubble Tea message types for the chat interface.
//
// Messages are organized into the following categories:
//   - Streaming: exchange start, turn updates, completion
//   - Session: reassignment, listing, switching, deletion, new chat
//   - UI State: spinner ticks and status notices
//
// All message types follow Bubble Tea conventions and are immutable.

package chat

import (
	"time"

	"github.com/jeranaias/parley/internal/api"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamStartedMsg signals that an exchange has begun.
type StreamStartedMsg struct {
	StartTime time.Time
}

// TurnsUpdatedMsg signals that the turn store changed and the view should
// re-render from a fresh snapshot. It deliberately carries no turn data;
// the store is the single source of truth.
type TurnsUpdatedMsg struct{}

// StreamDoneMsg signals that the in-flight exchange finished.
type StreamDoneMsg struct {
	Err error
}

// =============================================================================
// SESSION MESSAGES
// =============================================================================

// SessionReassignedMsg reports that the server answered under a different
// session id than the one we asked with.
type SessionReassignedMsg struct {
	ID string
}

// SessionAdoptedMsg confirms the coordinator adopted a server-chosen id.
type SessionAdoptedMsg struct {
	ID      string
	Adopted bool
	Err     error
}

// SessionsLoadedMsg delivers the session list for the overlay.
type SessionsLoadedMsg struct {
	Sessions []api.SessionMeta
	Err      error
}

// SessionSwitchedMsg confirms a switch to another session.
type SessionSwitchedMsg struct {
	ID  string
	Err error
}

// SessionDeletedMsg confirms a session deletion.
type SessionDeletedMsg struct {
	ID        string
	WasActive bool
	Err       error
}

// NewChatStartedMsg confirms that a fresh session was created.
type NewChatStartedMsg struct {
	ID  string
	Err error
}

// =============================================================================
// UI STATE MESSAGES
// =============================================================================

// StatusMsg displays a transient notice in the status bar.
type StatusMsg struct {
	Text    string
	IsError bool
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

// =============================================================================
// REQUEST TYPES
// =============================================================================

// AskRequest is the body of a streaming completion request.
type AskRequest struct {
	UserInput string `json:"user_input"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// SessionMeta describes one stored session in a list response.
type SessionMeta struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`

	// LastUpdated is the server's isoformat timestamp, or empty when the
	// session has never been touched. Kept as the raw string: it is only
	// displayed, never computed with.
	LastUpdated string `json:"last_updated"`
}

// Message types used by the history endpoint.
const (
	MessageTypeHuman = "human"
	MessageTypeAI    = "ai"
)

// HistoryMessage is one message in a history response.
type HistoryMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// listSessionsResponse is the wire shape of GET /sessions.
type listSessionsResponse struct {
	Sessions []SessionMeta `json:"sessions"`
}

// historyResponse is the wire shape of GET /history/{id}.
type historyResponse struct {
	History []HistoryMessage `json:"history"`
}

// =============================================================================
// STREAM TYPES
// =============================================================================

// StreamChunk is one event from a streaming completion response.
// Exactly one of SessionID or Text is set per chunk: a session reassignment
// event is delivered before any content.
type StreamChunk struct {
	// SessionID, when non-empty, is the session id the server assigned to
	// this exchange (from the X-Session-Id response header).
	SessionID string

	// Text is decoded content, whole characters only.
	Text string
}

// StreamCallback is called for each chunk received during streaming,
// strictly in arrival order.
type StreamCallback func(chunk StreamChunk)

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the completion backend.
//
// The backend exposes one streaming endpoint and three session collaborator
// endpoints:
//
//	POST   /ask/stream      - chat completion, chunked text/plain response
//	GET    /sessions        - list sessions with metadata
//	GET    /history/{id}    - ordered message history for a session
//	DELETE /sessions/{id}   - delete a session
//
// The streaming response may carry an X-Session-Id header; when present it
// names the session the server filed the exchange under, which can differ
// from the id the client asked for. Callers see it as the first stream
// event, before any content chunk.
//
// Chunk decoding is stateful: a UTF-8 sequence split across two network
// reads is held back until complete, so callbacks only ever receive whole
// characters.
package api

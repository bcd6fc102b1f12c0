// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the active session identifier and the turn store
// generation that goes with it.
//
// The coordinator is a small state machine over one variable, the active
// session id. New chat, switch, and delete-active persist the new id and
// install a fresh turn store populated from the backend's history. The old
// store is simply abandoned: an in-flight stream still holding it keeps
// writing into a store nothing renders anymore, which is how stale writes
// are kept out of the newly active session. Server reassignment follows the
// same path: adopting the server-chosen id persists it and reloads that
// session's history, exactly as a user-driven switch would.
package session

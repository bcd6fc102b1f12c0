// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state persists the client's durable key/value entries.
//
// Only two keys matter in practice: the active session id and the user id.
// Both must survive client restarts, so they live in a small SQLite
// database under the config directory rather than in process globals.
// The Store interface exists so the coordinator can be tested against an
// in-memory fake.
package state

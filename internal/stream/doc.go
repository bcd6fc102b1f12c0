// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream drives one streamed exchange against the completion
// backend and reconciles its chunks into the turn store.
//
// The consumer never patches a turn in place. It accumulates the full
// response text as chunks arrive and replaces the target assistant turn
// wholesale on every chunk, so any single replace leaves the turn in a
// consistent state. The target is addressed by index into a specific
// store generation: if the session changes mid-stream, the writer keeps
// replacing into the abandoned store and the new session never sees a
// stale byte.
package stream

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the interactive chat view for the TUI.
//
// The model follows the standard Bubble Tea shape: a Model struct, an
// Update that folds messages into it, and a View that renders the turn
// store's latest snapshot. Streaming never happens inside Update.
// Exchanges run on their own goroutines and report progress by publishing
// messages back into the program (see runner.go); the model only ever
// reads snapshots, so a render can never observe a half-written turn.
package chat

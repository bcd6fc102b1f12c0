// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the parley TUI.
//
// Colors are defined as Lip Gloss adaptive pairs so the same theme works on
// light and dark terminals. The Theme struct bundles every composed style
// the chat view needs; construct one with NewTheme at startup and share it.
package styles

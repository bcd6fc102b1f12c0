// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides argument parsing and the line-mode REPL.
//
// Line mode is the fallback surface when stdout is not a terminal or the
// user passes --line: the same coordinator and stream consumer as the TUI,
// driven by a liner prompt, with streamed chunks printed as they arrive.
package cli

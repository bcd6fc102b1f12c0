// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across the client.
//
// String utilities are rune-aware so multi-byte characters are never split,
// and AtomicWriteFile gives crash-safe persistence for the config file.
package util

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package turns holds the ordered sequence of conversation turns for the
// active session.
//
// The Store is an addressable slot arena: positions are stable for the life
// of one store, appends grow the sequence, and ReplaceAt overwrites a slot
// wholesale. A replace aimed at a position that no longer exists (the store
// was cleared or swapped under an in-flight stream) is a silent no-op, which
// is the contract streaming writers rely on after a session switch.
//
// An assistant turn with empty content is the loading placeholder: renderers
// show an activity indicator until the first streamed snapshot lands.
package turns

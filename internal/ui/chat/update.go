// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/parley/internal/api"
)

// Update folds a message into the model. Streaming progress arrives here
// as messages published by the runner's goroutines; Update itself never
// blocks on the network.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.isLoading {
			// The placeholder turn renders the spinner frame.
			m.refreshViewport()
		}
		return m, cmd

	case TurnsUpdatedMsg:
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil

	case StreamStartedMsg:
		m.setStatus("", false)
		return m, m.spinner.Tick

	case StreamDoneMsg:
		m.isLoading = false
		m.cancelStream = nil
		if msg.Err != nil {
			m.setStatus(streamErrorText(msg.Err), true)
		}
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil

	case SessionReassignedMsg:
		return m, AdoptSessionCmd(m.coord, msg.ID)

	case SessionAdoptedMsg:
		if msg.Err != nil {
			m.setStatus("History unavailable, starting empty", true)
		}
		// Adoption swaps the turn store, same as a switch.
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil

	case SessionsLoadedMsg:
		if msg.Err != nil {
			m.setStatus("Could not load sessions", true)
			return m, nil
		}
		m.sessions = msg.Sessions
		m.cursor = 0
		m.overlayVisible = true
		return m, nil

	case SessionSwitchedMsg:
		m.overlayVisible = false
		if msg.Err != nil {
			m.setStatus("History unavailable, starting empty", true)
		} else {
			m.setStatus("Switched session", false)
		}
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil

	case SessionDeletedMsg:
		if msg.Err != nil {
			m.setStatus("Failed to delete session", true)
			return m, nil
		}
		m.setStatus("Session deleted", false)
		m.refreshViewport()
		if m.overlayVisible {
			// Refresh the overlay list without the deleted entry.
			return m, LoadSessionsCmd(m.coord)
		}
		return m, nil

	case NewChatStartedMsg:
		if msg.Err != nil {
			m.setStatus("Failed to start a new chat", true)
			return m, nil
		}
		m.setStatus("New chat", false)
		m.refreshViewport()
		return m, nil

	case StatusMsg:
		m.setStatus(msg.Text, msg.IsError)
		return m, nil
	}

	// Everything else goes to the focused text area.
	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.overlayVisible {
		return m.handleOverlayKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.cancelStream != nil {
			m.cancelStream()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		return m.trySend()

	case key.Matches(msg, m.keys.NewChat):
		if m.isLoading {
			return m, nil
		}
		return m, NewChatCmd(m.coord)

	case key.Matches(msg, m.keys.Sessions):
		return m, LoadSessionsCmd(m.coord)

	case key.Matches(msg, m.keys.Regenerate):
		return m.tryRegenerate()

	case key.Matches(msg, m.keys.Cancel):
		if m.cancelStream != nil {
			m.cancelStream()
			m.setStatus("Cancelled", false)
		}
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.viewport.LineUp(1)
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.viewport.LineDown(1)
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) handleOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		m.overlayVisible = false
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.sessions)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		if m.cursor < len(m.sessions) {
			id := m.sessions[m.cursor].ID
			return m, SwitchSessionCmd(m.coord, id)
		}
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if m.cursor < len(m.sessions) {
			id := m.sessions[m.cursor].ID
			return m, DeleteSessionCmd(m.coord, id)
		}
		return m, nil
	}

	return m, nil
}

// =============================================================================
// EXCHANGE LAUNCHERS
// =============================================================================

// trySend submits the text area content as a new exchange. Whitespace-only
// input and sends during an in-flight exchange are silently ignored; the
// typed text stays in the input either way.
func (m Model) trySend() (tea.Model, tea.Cmd) {
	input := m.textarea.Value()
	if strings.TrimSpace(input) == "" || m.isLoading {
		return m, nil
	}

	m.textarea.Reset()
	m.isLoading = true
	m.setStatus("", false)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelStream = cancel
	m.runner.Send(ctx, input)

	return m, m.spinner.Tick
}

// tryRegenerate re-runs the exchange behind the last assistant turn.
func (m Model) tryRegenerate() (tea.Model, tea.Cmd) {
	if m.isLoading {
		return m, nil
	}
	target := m.coord.Store().LastAssistantIndex()
	if target < 0 {
		return m, nil
	}

	m.isLoading = true
	m.setStatus("", false)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelStream = cancel
	m.runner.Regenerate(ctx, target)

	return m, m.spinner.Tick
}

// streamErrorText maps a stream failure to a short status line.
func streamErrorText(err error) string {
	switch {
	case api.IsUnreachable(err):
		return "Backend unreachable"
	case api.IsTimeout(err):
		return "Request timed out"
	default:
		return "Response failed"
	}
}

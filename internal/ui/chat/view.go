// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/parley/internal/stream"
	"github.com/jeranaias/parley/internal/turns"
	"github.com/jeranaias/parley/internal/util"
)

// View renders the full chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Starting parley..."
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")

	if m.overlayVisible {
		b.WriteString(m.sessionOverlayView())
	} else {
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")

	b.WriteString(m.theme.InputContainer.Width(m.width - 2).Render(m.textarea.View()))
	b.WriteString("\n")
	b.WriteString(m.statusBarView())

	return b.String()
}

// =============================================================================
// CHROME
// =============================================================================

func (m Model) headerView() string {
	title := m.theme.HeaderTitle.Render("parley")
	sessionID := m.coord.ActiveSessionID()
	subtitle := m.theme.HeaderSubtitle.Render("session " + util.TruncateRunes(sessionID, 8))
	return m.theme.Header.Width(m.width).Render(title + "  " + subtitle)
}

func (m Model) statusBarView() string {
	if m.status != "" {
		style := m.theme.StatusActive
		if m.statusIsError {
			style = m.theme.StatusError
		}
		return m.theme.StatusBar.Width(m.width).Render(style.Render(m.status))
	}

	var parts []string
	for _, binding := range m.keys.ShortHelp() {
		help := binding.Help()
		parts = append(parts,
			m.theme.ShortcutKey.Render(help.Key)+" "+m.theme.ShortcutDesc.Render(help.Desc))
	}
	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, "  "))
}

// =============================================================================
// CONVERSATION
// =============================================================================

// refreshViewport rebuilds the viewport content from the store's current
// snapshot. Always whole turns from a consistent copy; a mid-stream render
// shows the accumulated text so far and nothing else.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}

	snapshot := m.coord.Store().Snapshot()
	if len(snapshot) == 0 {
		m.viewport.SetContent(m.theme.ThinkingText.Render("No messages yet. Say something."))
		return
	}

	blocks := make([]string, 0, len(snapshot))
	for _, turn := range snapshot {
		blocks = append(blocks, m.renderTurn(turn))
	}
	m.viewport.SetContent(strings.Join(blocks, "\n"))
}

func (m Model) renderTurn(turn turns.Turn) string {
	wrap := m.width - 12
	if wrap < 20 {
		wrap = 20
	}

	switch {
	case turn.Role == turns.RoleUser:
		label := m.theme.RoleLabel.Render("you")
		body := m.theme.UserBubble.Width(wrap).Render(turn.Content)
		return lipgloss.JoinVertical(lipgloss.Right, label, body)

	case turn.IsPlaceholder():
		label := m.theme.RoleLabel.Render("assistant")
		body := m.theme.AssistantBubble.Render(m.spinner.View() + m.theme.ThinkingText.Render(" thinking"))
		return lipgloss.JoinVertical(lipgloss.Left, label, body)

	case turn.Content == stream.ErrorTurnContent:
		label := m.theme.RoleLabel.Render("assistant")
		body := m.theme.ErrorBubble.Width(wrap).Render(turn.Content)
		return lipgloss.JoinVertical(lipgloss.Left, label, body)

	default:
		label := m.theme.RoleLabel.Render("assistant")
		content := turn.Content
		if m.renderer != nil {
			if rendered, err := m.renderer.Render(content); err == nil {
				content = strings.TrimRight(rendered, "\n")
			}
		}
		body := m.theme.AssistantBubble.Width(wrap).Render(content)
		return lipgloss.JoinVertical(lipgloss.Left, label, body)
	}
}

// =============================================================================
// SESSION OVERLAY
// =============================================================================

func (m Model) sessionOverlayView() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Sessions"))
	b.WriteString("\n\n")

	if len(m.sessions) == 0 {
		b.WriteString(m.theme.SessionMeta.Render("No sessions on the server yet."))
	}

	for i, meta := range m.sessions {
		title := meta.Title
		if title == "" {
			title = "(untitled)"
		}
		line := fmt.Sprintf("%s  %s  %s",
			m.theme.SessionID.Render(util.TruncateRunes(meta.ID, 8)),
			util.TruncateWidth(util.SingleLine(title), 40),
			m.theme.SessionMeta.Render(meta.LastUpdated))

		if meta.ID == m.coord.ActiveSessionID() {
			line += m.theme.SessionMeta.Render("  (active)")
		}

		if i == m.cursor {
			b.WriteString(m.theme.SessionItemSelected.Render(line))
		} else {
			b.WriteString(m.theme.SessionItem.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.SessionMeta.Render("Enter switch  C-x delete  Esc close"))

	box := m.theme.SessionBox.Width(m.width - 8).Render(b.String())
	return lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center, box)
}

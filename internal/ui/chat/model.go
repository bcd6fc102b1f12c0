// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/ui/styles"
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	keys  KeyMap
	theme *styles.Theme

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	coord  *session.Coordinator
	runner *Runner

	// renderer is nil when markdown rendering is disabled or the terminal
	// width is not yet known.
	renderer *glamour.TermRenderer
	markdown bool

	width  int
	height int
	ready  bool

	// isLoading gates sends and regenerations while an exchange runs.
	isLoading    bool
	cancelStream context.CancelFunc

	status        string
	statusIsError bool

	// Session overlay state.
	overlayVisible bool
	sessions       []api.SessionMeta
	cursor         int
}

// NewModel creates the chat model. The runner's publisher must be wired to
// the program before the first exchange (see Runner.SetPublisher).
func NewModel(coord *session.Coordinator, runner *Runner, uiCfg config.UIConfig) Model {
	theme := styles.NewTheme()

	ta := textarea.New()
	ta.Placeholder = "Ask anything..."
	ta.Prompt = "> "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: styles.DotsSpinner.Frames,
		FPS:    styles.DotsSpinner.Duration(),
	}
	sp.Style = theme.Spinner

	return Model{
		keys:     DefaultKeyMap(),
		theme:    theme,
		textarea: ta,
		spinner:  sp,
		coord:    coord,
		runner:   runner,
		markdown: uiCfg.Markdown,
	}
}

// Init starts the cursor blink and spinner tickers.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// resize lays the components out for a new terminal size and rebuilds the
// markdown renderer at the matching wrap width.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	inputHeight := m.textarea.Height() + 2
	headerHeight := 1
	statusHeight := 1
	viewportHeight := height - inputHeight - headerHeight - statusHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(width, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = viewportHeight
	}
	m.textarea.SetWidth(width - 2)

	if m.markdown {
		wrap := width - 10
		if wrap < 20 {
			wrap = 20
		}
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wrap),
		)
		if err == nil {
			m.renderer = renderer
		}
	}

	m.refreshViewport()
}

// setStatus replaces the transient status line.
func (m *Model) setStatus(text string, isError bool) {
	m.status = text
	m.statusIsError = isError
}

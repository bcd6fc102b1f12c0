// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-mode REPL for parley.
//
// Runs when stdout is not a terminal or the user passes --line. Uses the
// same coordinator and stream consumer as the TUI; chunks are printed to
// stdout as they arrive instead of reconciled into a viewport.
//
// Interactive commands:
//   /new                Start a fresh session
//   /sessions           List sessions on the server
//   /switch N           Switch to session N from the last listing
//   /delete N           Delete session N from the last listing
//   /regen              Regenerate the last reply
//   /help               Show available commands
//   /quit               Exit
//   Ctrl+C              Cancel the current stream
//   Ctrl+D              Exit

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/stream"
	"github.com/jeranaias/parley/internal/turns"
	"github.com/jeranaias/parley/internal/ui/styles"
	"github.com/jeranaias/parley/internal/util"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	welcomeStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	commandStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)

	warningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// LineInput provides input history and line editing for line mode.
type LineInput struct {
	line        *liner.State
	historyFile string
}

// NewLineInput creates a LineInput with persistent history.
func NewLineInput() *LineInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	li := &LineInput{
		line:        line,
		historyFile: filepath.Join(configDir, "line_history"),
	}
	li.loadHistory()
	return li
}

func (l *LineInput) loadHistory() {
	if f, err := os.Open(l.historyFile); err == nil {
		l.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with the given prompt. Non-empty input is added
// to history.
func (l *LineInput) ReadInput(prompt string) (string, error) {
	input, err := l.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		l.line.AppendHistory(input)
	}
	return input, nil
}

func (l *LineInput) saveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(l.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	l.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (l *LineInput) Close() {
	l.saveHistory()
	l.line.Close()
}

// =============================================================================
// STREAM PRINTING
// =============================================================================

// lineEvents prints streamed progress for one exchange. The consumer writes
// the whole accumulated response into the store at the target index on every
// chunk; printing the suffix past the printed mark turns that back into an
// append-only stream. The target is fixed per exchange: a regeneration can
// aim at an index that is not the last turn.
type lineEvents struct {
	store   *turns.Store
	coord   *session.Coordinator
	out     io.Writer
	quiet   bool
	target  int
	printed int
}

func (e *lineEvents) SessionReassigned(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	adopted, err := e.coord.AdoptServerSession(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s could not adopt session %s: %v\n",
			warningStyle.Render("[Warning]"), util.TruncateRunes(id, 8), err)
	}
	if adopted && !e.quiet {
		fmt.Fprintf(os.Stderr, "%s session %s\n",
			infoStyle.Render("[Session]"), util.TruncateRunes(id, 8))
	}
}

func (e *lineEvents) TurnsUpdated() {
	turn, ok := e.store.At(e.target)
	if !ok || turn.Role != turns.RoleAssistant || turn.IsPlaceholder() {
		return
	}
	if turn.Content == stream.ErrorTurnContent {
		// ExchangeDone reports the failure; don't echo the error turn.
		return
	}
	if len(turn.Content) > e.printed {
		fmt.Fprint(e.out, turn.Content[e.printed:])
		e.printed = len(turn.Content)
	}
}

func (e *lineEvents) ExchangeDone(err error) {
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
	}
}

// =============================================================================
// REPL
// =============================================================================

// LineSession holds the state for one line-mode run.
type LineSession struct {
	Coord    *session.Coordinator
	Consumer *stream.Consumer
	Quiet    bool

	// Last /sessions listing, for /switch N and /delete N.
	listing []api.SessionMeta

	cancelStream context.CancelFunc
	input        *LineInput
}

// NewLineSession creates a line-mode session over an initialized
// coordinator and consumer.
func NewLineSession(coord *session.Coordinator, consumer *stream.Consumer, quiet bool) *LineSession {
	return &LineSession{
		Coord:    coord,
		Consumer: consumer,
		Quiet:    quiet,
		input:    NewLineInput(),
	}
}

// RunLineMode runs the REPL until /quit, Ctrl+D, or Ctrl+C at the prompt.
func RunLineMode(coord *session.Coordinator, consumer *stream.Consumer, quiet bool) error {
	// Line mode often runs piped or under NO_COLOR; degrade the styles to
	// match what the output can actually show.
	lipgloss.SetColorProfile(GetColorProfile())

	s := NewLineSession(coord, consumer, quiet)
	defer s.input.Close()

	if !s.Quiet {
		s.printWelcome()
	}

	// First Ctrl+C during a stream cancels it; at the prompt liner
	// surfaces it as ErrPromptAborted.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for range sigChan {
			if s.cancelStream != nil {
				s.cancelStream()
				s.cancelStream = nil
				fmt.Fprintln(os.Stderr, "\n"+warningStyle.Render("[Cancelled]"))
			}
		}
	}()

	for {
		input, err := s.input.ReadInput(promptStyle.Render("parley> "))
		if err != nil {
			// ErrPromptAborted (Ctrl+C) or EOF (Ctrl+D): exit gracefully.
			fmt.Println()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			keepGoing, err := s.handleSlashCommand(input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !keepGoing {
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		s.processMessage(input)
	}
}

// processMessage runs one streamed exchange synchronously.
func (s *LineSession) processMessage(input string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelStream = cancel
	defer func() {
		s.cancelStream = nil
		cancel()
	}()

	store := s.Coord.Store()
	ex := stream.Exchange{
		Store:     store,
		SessionID: s.Coord.ActiveSessionID(),
		UserID:    s.Coord.UserID(),
		Events: &lineEvents{
			store: store,
			coord: s.Coord,
			out:   os.Stdout,
			quiet: s.Quiet,
			// Send appends the user turn and the placeholder behind it.
			target: store.Len() + 1,
		},
	}

	fmt.Println()
	s.Consumer.Send(ctx, ex, input)
}

// regenerate re-runs the exchange behind the last assistant turn.
func (s *LineSession) regenerate() error {
	target := s.Coord.Store().LastAssistantIndex()
	if target < 0 {
		return fmt.Errorf("nothing to regenerate yet")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelStream = cancel
	defer func() {
		s.cancelStream = nil
		cancel()
	}()

	store := s.Coord.Store()
	ex := stream.Exchange{
		Store:     store,
		SessionID: s.Coord.ActiveSessionID(),
		UserID:    s.Coord.UserID(),
		Events: &lineEvents{
			store:  store,
			coord:  s.Coord,
			out:    os.Stdout,
			quiet:  s.Quiet,
			target: target,
		},
	}

	fmt.Println()
	s.Consumer.Regenerate(ctx, ex, target)
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes slash commands.
// Returns (keepGoing, error) where keepGoing=false means exit.
func (s *LineSession) handleSlashCommand(cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true, nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		s.printHelp()
		return true, nil

	case "/new", "/n":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Coord.NewChat(ctx); err != nil {
			return true, err
		}
		fmt.Println(commandStyle.Render("[New chat] ") +
			infoStyle.Render("session "+util.TruncateRunes(s.Coord.ActiveSessionID(), 8)))
		return true, nil

	case "/sessions", "/s", "/list":
		return true, s.listSessions()

	case "/switch":
		return true, s.switchSession(args)

	case "/delete", "/del":
		return true, s.deleteSession(args)

	case "/regen", "/r":
		return true, s.regenerate()

	case "/history":
		s.printHistory()
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

func (s *LineSession) listSessions() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions, err := s.Coord.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("could not load sessions: %w", err)
	}
	s.listing = sessions

	if len(sessions) == 0 {
		fmt.Println(infoStyle.Render("[No sessions on the server yet]"))
		return nil
	}

	// Fit the title column to the terminal, leaving room for the marker,
	// index, id, and timestamp columns.
	titleWidth := GetTerminalWidth() - 40
	if titleWidth < 20 {
		titleWidth = 20
	}

	fmt.Println()
	active := s.Coord.ActiveSessionID()
	for i, meta := range sessions {
		title := meta.Title
		if title == "" {
			title = "(untitled)"
		}
		marker := " "
		if meta.ID == active {
			marker = commandStyle.Render("*")
		}
		fmt.Printf("  %s %2d. %s  %s  %s\n",
			marker,
			i+1,
			commandStyle.Render(util.TruncateRunes(meta.ID, 8)),
			util.TruncateWidth(util.SingleLine(title), titleWidth),
			infoStyle.Render(meta.LastUpdated))
	}
	fmt.Println()
	fmt.Println(infoStyle.Render(util.IntToString(len(sessions)) + " sessions. Use /switch N or /delete N"))
	return nil
}

// pickListed resolves a 1-based index from the last /sessions listing.
func (s *LineSession) pickListed(args []string) (api.SessionMeta, error) {
	if len(s.listing) == 0 {
		return api.SessionMeta{}, fmt.Errorf("run /sessions first")
	}
	if len(args) == 0 {
		return api.SessionMeta{}, fmt.Errorf("session number required (1-%d)", len(s.listing))
	}
	n := util.StringToInt(args[0], 0)
	if n < 1 || n > len(s.listing) {
		return api.SessionMeta{}, fmt.Errorf("session number out of range (1-%d)", len(s.listing))
	}
	return s.listing[n-1], nil
}

func (s *LineSession) switchSession(args []string) error {
	meta, err := s.pickListed(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Coord.Switch(ctx, meta.ID); err != nil {
		fmt.Println(warningStyle.Render("[History unavailable, starting empty]"))
	} else {
		fmt.Println(commandStyle.Render("[Switched] ") +
			infoStyle.Render("session "+util.TruncateRunes(meta.ID, 8)))
	}
	return nil
}

func (s *LineSession) deleteSession(args []string) error {
	meta, err := s.pickListed(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Coord.Delete(ctx, meta.ID); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	fmt.Println(commandStyle.Render("[Deleted] ") +
		infoStyle.Render("session "+util.TruncateRunes(meta.ID, 8)))
	return s.listSessions()
}

// =============================================================================
// DISPLAY
// =============================================================================

func (s *LineSession) printWelcome() {
	fmt.Println()
	fmt.Println(welcomeStyle.Render("parley line mode"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Session:"),
		commandStyle.Render(util.TruncateRunes(s.Coord.ActiveSessionID(), 8)))
	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

func (s *LineSession) printHelp() {
	fmt.Println()
	commands := []struct {
		cmd  string
		desc string
	}{
		{"/new", "Start a fresh session"},
		{"/sessions", "List sessions on the server"},
		{"/switch N", "Switch to session N from the listing"},
		{"/delete N", "Delete session N from the listing"},
		{"/regen", "Regenerate the last reply"},
		{"/history", "Show the current conversation"},
		{"/quit", "Exit"},
	}
	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-12s", c.cmd)),
			infoStyle.Render(c.desc))
	}
	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+C cancels the current stream, Ctrl+D exits"))
	fmt.Println()
}

func (s *LineSession) printHistory() {
	snapshot := s.Coord.Store().Snapshot()
	if len(snapshot) == 0 {
		fmt.Println(infoStyle.Render("[No messages yet]"))
		return
	}

	fmt.Println()
	for i, turn := range snapshot {
		role := infoStyle.Render("assistant")
		if turn.Role == turns.RoleUser {
			role = promptStyle.Render("you")
		}
		fmt.Printf("  %d. %s: %s\n", i+1, role, turn.Preview(100))
	}
	fmt.Println()
}

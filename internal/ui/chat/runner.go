// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/stream"
)

// Publisher injects a message into the running Bubble Tea program.
// In production this is (*tea.Program).Send; tests substitute a recorder.
type Publisher func(tea.Msg)

// =============================================================================
// EVENT BRIDGE
// =============================================================================

// programEvents forwards consumer notifications into the Bubble Tea loop.
// The consumer calls these from its own goroutine; Publisher is the only
// legal way back into the program from there.
type programEvents struct {
	publish Publisher
}

func (e programEvents) SessionReassigned(id string) {
	e.publish(SessionReassignedMsg{ID: id})
}

func (e programEvents) TurnsUpdated() {
	e.publish(TurnsUpdatedMsg{})
}

func (e programEvents) ExchangeDone(err error) {
	e.publish(StreamDoneMsg{Err: err})
}

// =============================================================================
// EXCHANGE RUNNER
// =============================================================================

// Runner launches streamed exchanges off the UI loop. It snapshots the
// coordinator's store pointer and ids at launch time: a session switch
// mid-stream leaves the running exchange bound to the abandoned store.
type Runner struct {
	consumer *stream.Consumer
	coord    *session.Coordinator
	publish  Publisher
}

// NewRunner creates a runner over the consumer and coordinator.
func NewRunner(consumer *stream.Consumer, coord *session.Coordinator) *Runner {
	return &Runner{consumer: consumer, coord: coord, publish: func(tea.Msg) {}}
}

// SetPublisher wires the runner to a live program. Must be called before
// the first exchange; tea.NewProgram needs the model first, so this is a
// two-step handshake in main.
func (r *Runner) SetPublisher(p Publisher) {
	r.publish = p
}

// exchange captures the coordinator's current generation.
func (r *Runner) exchange() stream.Exchange {
	return stream.Exchange{
		Store:     r.coord.Store(),
		SessionID: r.coord.ActiveSessionID(),
		UserID:    r.coord.UserID(),
		Events:    programEvents{publish: r.publish},
	}
}

// Send launches a new exchange for the given input.
func (r *Runner) Send(ctx context.Context, input string) {
	ex := r.exchange()
	go func() {
		r.publish(StreamStartedMsg{StartTime: time.Now()})
		if !r.consumer.Send(ctx, ex, input) {
			// Refused (blank input or an exchange already running); the
			// done message keeps the UI's loading gate honest.
			r.publish(StreamDoneMsg{})
		}
	}()
}

// Regenerate relaunches the exchange behind the assistant turn at target.
func (r *Runner) Regenerate(ctx context.Context, target int) {
	ex := r.exchange()
	go func() {
		r.publish(StreamStartedMsg{StartTime: time.Now()})
		if !r.consumer.Regenerate(ctx, ex, target) {
			r.publish(StreamDoneMsg{})
		}
	}()
}

// Busy reports whether an exchange is in flight.
func (r *Runner) Busy() bool {
	return r.consumer.Busy()
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

const sessionOpTimeout = 10 * time.Second

// LoadSessionsCmd fetches the session list for the overlay.
func LoadSessionsCmd(coord *session.Coordinator) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
		defer cancel()

		sessions, err := coord.Sessions(ctx)
		return SessionsLoadedMsg{Sessions: sessions, Err: err}
	}
}

// SwitchSessionCmd makes id the active session and reloads its history.
func SwitchSessionCmd(coord *session.Coordinator, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
		defer cancel()

		err := coord.Switch(ctx, id)
		return SessionSwitchedMsg{ID: id, Err: err}
	}
}

// DeleteSessionCmd deletes id from the backend.
func DeleteSessionCmd(coord *session.Coordinator, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
		defer cancel()

		wasActive := coord.ActiveSessionID() == id
		err := coord.Delete(ctx, id)
		return SessionDeletedMsg{ID: id, WasActive: wasActive, Err: err}
	}
}

// NewChatCmd starts a fresh session.
func NewChatCmd(coord *session.Coordinator) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
		defer cancel()

		err := coord.NewChat(ctx)
		return NewChatStartedMsg{ID: coord.ActiveSessionID(), Err: err}
	}
}

// AdoptSessionCmd lets the coordinator adopt a server-chosen session id.
func AdoptSessionCmd(coord *session.Coordinator, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sessionOpTimeout)
		defer cancel()

		adopted, err := coord.AdoptServerSession(ctx, id)
		return SessionAdoptedMsg{ID: id, Adopted: adopted, Err: err}
	}
}

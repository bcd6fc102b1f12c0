// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/turns"
)

// ErrorTurnContent is the assistant text shown when an exchange fails.
// The backend emits the same sentence for its own generation failures, so
// renderers treat one constant either way.
const ErrorTurnContent = "Error: Could not generate response"

// =============================================================================
// EVENTS
// =============================================================================

// Events receives progress notifications for one exchange. Implementations
// are called from the consumer's goroutine, not the UI loop; Bubble Tea
// callers forward these through program.Send.
type Events interface {
	// SessionReassigned fires at most once per exchange, before any
	// content, when the server answers under a different session id.
	SessionReassigned(id string)

	// TurnsUpdated fires after each wholesale replace of the target turn.
	TurnsUpdated()

	// ExchangeDone fires exactly once when the exchange finishes, with the
	// stream error if it failed.
	ExchangeDone(err error)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) SessionReassigned(string) {}
func (NopEvents) TurnsUpdated()            {}
func (NopEvents) ExchangeDone(error)       {}

// =============================================================================
// CONSUMER
// =============================================================================

// Exchange names the inputs of one streamed request: which store and slot
// to write into, what to send, and who to tell about progress.
type Exchange struct {
	Store     *turns.Store
	SessionID string
	UserID    string
	Events    Events
}

// Consumer runs streamed exchanges one at a time. A second Send or
// Regenerate while one is in flight is refused rather than queued; the
// caller keeps its input and retries when Busy clears.
type Consumer struct {
	client   *api.Client
	inFlight atomic.Bool
}

// NewConsumer creates a consumer over the given backend client.
func NewConsumer(client *api.Client) *Consumer {
	return &Consumer{client: client}
}

// Busy reports whether an exchange is currently in flight.
func (c *Consumer) Busy() bool {
	return c.inFlight.Load()
}

// Send submits user input as a new exchange. Input that is empty after
// trimming produces no turns and no request. Send blocks until the
// exchange completes; run it from a goroutine or tea.Cmd. The return
// value reports whether an exchange actually started.
func (c *Consumer) Send(ctx context.Context, ex Exchange, input string) bool {
	message := strings.TrimSpace(input)
	if message == "" {
		return false
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return false
	}

	target := ex.Store.Append(turns.User(message), turns.Placeholder())
	ex.Events.TurnsUpdated()

	c.run(ctx, ex, message, target)
	return true
}

// Regenerate re-runs the exchange that produced the assistant turn at
// target. The prompt is the nearest user turn before the target; with no
// preceding user turn there is nothing to regenerate and the call is a
// no-op. The previous content is cleared back to a placeholder before the
// request starts.
func (c *Consumer) Regenerate(ctx context.Context, ex Exchange, target int) bool {
	message, ok := ex.Store.NearestUserBefore(target)
	if !ok {
		return false
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return false
	}

	ex.Store.ReplaceAt(target, turns.Placeholder())
	ex.Events.TurnsUpdated()

	c.run(ctx, ex, message, target)
	return true
}

// run performs the streamed request and reconciles every chunk into the
// target slot. The accumulated text lives here, not in the store, so each
// ReplaceAt writes the whole response so far.
func (c *Consumer) run(ctx context.Context, ex Exchange, message string, target int) {
	defer c.inFlight.Store(false)

	var accumulated strings.Builder

	ask := api.AskRequest{
		UserInput: message,
		SessionID: ex.SessionID,
		UserID:    ex.UserID,
	}

	err := c.client.AskStream(ctx, ask, func(chunk api.StreamChunk) {
		if chunk.SessionID != "" {
			ex.Events.SessionReassigned(chunk.SessionID)
			return
		}
		if chunk.Text == "" {
			return
		}
		accumulated.WriteString(chunk.Text)
		ex.Store.ReplaceAt(target, turns.Assistant(accumulated.String()))
		ex.Events.TurnsUpdated()
	})

	if err != nil {
		// The placeholder (or partial text) becomes a visible error turn.
		// If the store was swapped mid-stream this lands in the abandoned
		// generation, same as any other stale write.
		ex.Store.ReplaceAt(target, turns.Assistant(ErrorTurnContent))
		ex.Events.TurnsUpdated()
	}

	ex.Events.ExchangeDone(err)
}

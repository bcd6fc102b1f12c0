// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/state"
	"github.com/jeranaias/parley/internal/turns"
)

// =============================================================================
// SESSION COORDINATOR
// =============================================================================

// Coordinator tracks the active session id and mediates every transition
// that changes it. There is no terminal state: the coordinator runs for the
// lifetime of the client.
type Coordinator struct {
	mu     sync.Mutex
	state  state.Store
	client *api.Client

	userID   string
	activeID string

	// store is the turn store for the active session. It is swapped
	// wholesale on every session change; writers holding the previous
	// pointer are orphaned by design.
	store *turns.Store
}

// NewCoordinator creates a coordinator over the given persistence and
// backend collaborators. Call Initialize before anything else.
func NewCoordinator(st state.Store, client *api.Client) *Coordinator {
	return &Coordinator{
		state:  st,
		client: client,
		store:  turns.NewStore(),
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Store returns the turn store for the currently active session.
func (c *Coordinator) Store() *turns.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// ActiveSessionID returns the current session id.
func (c *Coordinator) ActiveSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// UserID returns the persisted user identity.
func (c *Coordinator) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Initialize restores the persisted user and session ids, generating and
// persisting fresh ones on first run, then loads the active session's
// history. The returned error is a degraded history fetch: the coordinator
// is usable (with an empty store) even when it is non-nil.
func (c *Coordinator) Initialize(ctx context.Context) error {
	userID, ok, err := c.state.Get(ctx, state.KeyUserID)
	if err != nil {
		return err
	}
	if !ok || userID == "" {
		userID = uuid.NewString()
		if err := c.state.Set(ctx, state.KeyUserID, userID); err != nil {
			return err
		}
	}

	sessionID, ok, err := c.state.Get(ctx, state.KeyActiveSession)
	if err != nil {
		return err
	}
	if !ok || sessionID == "" {
		sessionID = uuid.NewString()
		if err := c.state.Set(ctx, state.KeyActiveSession, sessionID); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.userID = userID
	c.activeID = sessionID
	c.mu.Unlock()

	return c.reloadHistory(ctx, sessionID)
}

// NewChat generates a fresh session id, persists it, and installs an empty
// turn store.
func (c *Coordinator) NewChat(ctx context.Context) error {
	id := uuid.NewString()
	if err := c.state.Set(ctx, state.KeyActiveSession, id); err != nil {
		return err
	}

	c.mu.Lock()
	c.activeID = id
	c.store = turns.NewStore()
	c.mu.Unlock()
	return nil
}

// Switch makes id the active session and replaces the turn store with that
// session's fetched history. A failed fetch degrades to an empty store and
// returns the fetch error for logging.
func (c *Coordinator) Switch(ctx context.Context, id string) error {
	if err := c.state.Set(ctx, state.KeyActiveSession, id); err != nil {
		return err
	}

	c.mu.Lock()
	c.activeID = id
	c.mu.Unlock()

	return c.reloadHistory(ctx, id)
}

// AdoptServerSession handles a mid-stream reassignment from the server.
// Adoption is a Switch in all but trigger: the new id is persisted and the
// turn store is replaced with the server's history for it, exactly once.
// The in-flight exchange keeps writing into the store it captured at launch,
// which is now abandoned. An empty or already-active id is a no-op, which
// keeps repeated signals idempotent.
func (c *Coordinator) AdoptServerSession(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	if id == "" || id == c.activeID {
		c.mu.Unlock()
		return false, nil
	}
	c.mu.Unlock()

	return true, c.Switch(ctx, id)
}

// Delete removes a session from the backend. Deleting the active session
// behaves as NewChat; deleting any other session leaves the active state
// untouched (callers refresh their session list either way).
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	if err := c.client.DeleteSession(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	wasActive := id == c.activeID
	c.mu.Unlock()

	if wasActive {
		return c.NewChat(ctx)
	}
	return nil
}

// =============================================================================
// COLLABORATOR READS
// =============================================================================

// Sessions lists the backend's sessions scoped to this client's user id.
func (c *Coordinator) Sessions(ctx context.Context) ([]api.SessionMeta, error) {
	all, err := c.client.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	userID := c.UserID()
	scoped := make([]api.SessionMeta, 0, len(all))
	for _, meta := range all {
		if meta.UserID == userID {
			scoped = append(scoped, meta)
		}
	}
	return scoped, nil
}

// reloadHistory fetches the history for id and installs it as a brand new
// turn store. The store swap happens even when the fetch fails, so a
// history outage degrades to an empty conversation instead of leaving the
// previous session's turns on screen.
func (c *Coordinator) reloadHistory(ctx context.Context, id string) error {
	history, err := c.client.History(ctx, id)

	fresh := turns.NewStoreWith(HistoryTurns(history))

	c.mu.Lock()
	// A slow fetch can race a later transition; only install the result if
	// id is still the active session.
	if c.activeID == id {
		c.store = fresh
	}
	c.mu.Unlock()

	return err
}

// HistoryTurns maps backend history messages to conversation turns.
func HistoryTurns(history []api.HistoryMessage) []turns.Turn {
	out := make([]turns.Turn, 0, len(history))
	for _, m := range history {
		switch m.Type {
		case api.MessageTypeHuman:
			out = append(out, turns.User(m.Content))
		case api.MessageTypeAI:
			out = append(out, turns.Assistant(m.Content))
		}
	}
	return out
}

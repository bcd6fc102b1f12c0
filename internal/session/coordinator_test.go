// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/state"
	"github.com/jeranaias/parley/internal/turns"
)

// fakeBackend is a minimal in-memory session/history server.
type fakeBackend struct {
	mu           sync.Mutex
	sessions     map[string][]api.HistoryMessage
	owners       map[string]string
	historyCalls int
	failHistory  bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sessions: make(map[string][]api.HistoryMessage),
		owners:   make(map[string]string),
	}
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var metas []api.SessionMeta
		for id := range f.sessions {
			metas = append(metas, api.SessionMeta{ID: id, UserID: f.owners[id], Title: "chat"})
		}
		json.NewEncoder(w).Encode(map[string]any{"sessions": metas})
	})

	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.NotFound(w, r)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/sessions/")
		f.mu.Lock()
		delete(f.sessions, id)
		delete(f.owners, id)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	})

	mux.HandleFunc("/history/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.historyCalls++
		fail := f.failHistory
		id := strings.TrimPrefix(r.URL.Path, "/history/")
		history := f.sessions[id]
		f.mu.Unlock()

		if fail {
			http.Error(w, "mongo down", http.StatusInternalServerError)
			return
		}
		if history == nil {
			history = []api.HistoryMessage{}
		}
		json.NewEncoder(w).Encode(map[string]any{"history": history})
	})

	return mux
}

func (f *fakeBackend) addSession(id, owner string, history ...api.HistoryMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id] = history
	f.owners[id] = owner
}

func (f *fakeBackend) historyCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls
}

func newTestCoordinator(t *testing.T, backend *fakeBackend) (*Coordinator, *state.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	cfg := api.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 1000

	st := state.NewMemoryStore()
	return NewCoordinator(st, api.NewClientWithConfig(cfg)), st
}

// =============================================================================
// INITIALIZE
// =============================================================================

func TestInitializeGeneratesAndPersistsIdentity(t *testing.T) {
	coord, st := newTestCoordinator(t, newFakeBackend())
	ctx := context.Background()

	if err := coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if coord.UserID() == "" {
		t.Error("Expected a generated user id")
	}
	if coord.ActiveSessionID() == "" {
		t.Error("Expected a generated session id")
	}

	persisted, ok, _ := st.Get(ctx, state.KeyActiveSession)
	if !ok || persisted != coord.ActiveSessionID() {
		t.Errorf("Active session not persisted: got (%q, %v)", persisted, ok)
	}
	persistedUser, ok, _ := st.Get(ctx, state.KeyUserID)
	if !ok || persistedUser != coord.UserID() {
		t.Errorf("User id not persisted: got (%q, %v)", persistedUser, ok)
	}
}

func TestInitializeReusesPersistedIdentity(t *testing.T) {
	backend := newFakeBackend()
	backend.addSession("sess-keep", "user-keep",
		api.HistoryMessage{Type: api.MessageTypeHuman, Content: "hello"},
		api.HistoryMessage{Type: api.MessageTypeAI, Content: "hi there"},
	)

	coord, st := newTestCoordinator(t, backend)
	ctx := context.Background()
	st.Set(ctx, state.KeyActiveSession, "sess-keep")
	st.Set(ctx, state.KeyUserID, "user-keep")

	if err := coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if coord.ActiveSessionID() != "sess-keep" {
		t.Errorf("Expected persisted session id, got %q", coord.ActiveSessionID())
	}
	if coord.UserID() != "user-keep" {
		t.Errorf("Expected persisted user id, got %q", coord.UserID())
	}

	snap := coord.Store().Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Expected 2 history turns, got %d", len(snap))
	}
	if snap[0].Role != turns.RoleUser || snap[0].Content != "hello" {
		t.Errorf("Unexpected first turn: %+v", snap[0])
	}
	if snap[1].Role != turns.RoleAssistant || snap[1].Content != "hi there" {
		t.Errorf("Unexpected second turn: %+v", snap[1])
	}
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func TestSwitchReplacesStoreWholesale(t *testing.T) {
	backend := newFakeBackend()
	backend.addSession("other", "u",
		api.HistoryMessage{Type: api.MessageTypeHuman, Content: "older chat"},
	)

	coord, _ := newTestCoordinator(t, backend)
	ctx := context.Background()
	if err := coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	before := coord.Store()
	before.Append(turns.User("typed before switch"))

	if err := coord.Switch(ctx, "other"); err != nil {
		t.Fatalf("Switch failed: %v", err)
	}

	after := coord.Store()
	if after == before {
		t.Fatal("Expected a new store generation after switch")
	}
	snap := after.Snapshot()
	if len(snap) != 1 || snap[0].Content != "older chat" {
		t.Errorf("Expected switched history only, got %+v", snap)
	}
}

func TestDeleteActiveBehavesAsNewChat(t *testing.T) {
	backend := newFakeBackend()
	coord, st := newTestCoordinator(t, backend)
	ctx := context.Background()
	if err := coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	oldID := coord.ActiveSessionID()
	backend.addSession(oldID, coord.UserID())
	coord.Store().Append(turns.User("doomed"))

	if err := coord.Delete(ctx, oldID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if coord.ActiveSessionID() == oldID {
		t.Error("Expected a fresh session id after deleting the active session")
	}
	if coord.Store().Len() != 0 {
		t.Error("Expected an empty store after deleting the active session")
	}
	persisted, _, _ := st.Get(ctx, state.KeyActiveSession)
	if persisted != coord.ActiveSessionID() {
		t.Error("Fresh session id was not persisted")
	}

	// The deleted id never reappears in a subsequent list.
	sessions, err := coord.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	for _, meta := range sessions {
		if meta.ID == oldID {
			t.Errorf("Deleted session %q still listed", oldID)
		}
	}
}

func TestDeleteInactiveKeepsActiveState(t *testing.T) {
	backend := newFakeBackend()
	coord, _ := newTestCoordinator(t, backend)
	ctx := context.Background()
	if err := coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	backend.addSession("bystander", coord.UserID())
	active := coord.ActiveSessionID()
	coord.Store().Append(turns.User("still here"))

	if err := coord.Delete(ctx, "bystander"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if coord.ActiveSessionID() != active {
		t.Error("Active session must not change when deleting another session")
	}
	if coord.Store().Len() != 1 {
		t.Error("Active store must not be cleared when deleting another session")
	}
}

// =============================================================================
// SERVER REASSIGNMENT
// =============================================================================

func TestAdoptServerSessionBehavesAsSwitch(t *testing.T) {
	backend := newFakeBackend()
	backend.addSession("S2", "u",
		api.HistoryMessage{Type: api.MessageTypeHuman, Content: "server copy"},
	)

	coord, st := newTestCoordinator(t, backend)
	ctx := context.Background()
	if err := coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	callsAfterInit := backend.historyCallCount()

	// The conversation on screen at reassignment time.
	before := coord.Store()
	before.Append(turns.User("first message"), turns.Placeholder())

	adopted, err := coord.AdoptServerSession(ctx, "S2")
	if err != nil {
		t.Fatalf("AdoptServerSession failed: %v", err)
	}
	if !adopted {
		t.Fatal("Expected adoption of a different session id")
	}
	if coord.ActiveSessionID() != "S2" {
		t.Errorf("Expected active id S2, got %q", coord.ActiveSessionID())
	}
	persisted, _, _ := st.Get(ctx, state.KeyActiveSession)
	if persisted != "S2" {
		t.Errorf("Adopted id not persisted, got %q", persisted)
	}

	// Adoption is a switch: the store is replaced wholesale with the fetched
	// history, and exactly one reload happens.
	after := coord.Store()
	if after == before {
		t.Error("Adoption must replace the turn store")
	}
	snap := after.Snapshot()
	if len(snap) != 1 || snap[0].Content != "server copy" {
		t.Errorf("Expected the adopted session's history only, got %+v", snap)
	}
	if got := backend.historyCallCount() - callsAfterInit; got != 1 {
		t.Errorf("Expected exactly one history reload on adoption, got %d", got)
	}

	// Adopting the already-active id is a no-op with no further fetch.
	adopted, err = coord.AdoptServerSession(ctx, "S2")
	if err != nil {
		t.Fatalf("AdoptServerSession failed: %v", err)
	}
	if adopted {
		t.Error("Expected no-op when adopting the active id")
	}
	if got := backend.historyCallCount() - callsAfterInit; got != 1 {
		t.Errorf("Expected no reload on repeated adoption, got %d", got)
	}
}

func TestAdoptEmptyIDIsNoOp(t *testing.T) {
	coord, _ := newTestCoordinator(t, newFakeBackend())
	ctx := context.Background()
	if err := coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	active := coord.ActiveSessionID()
	adopted, err := coord.AdoptServerSession(ctx, "")
	if err != nil || adopted {
		t.Errorf("Expected (false, nil) for empty id, got (%v, %v)", adopted, err)
	}
	if coord.ActiveSessionID() != active {
		t.Error("Active id changed on empty reassignment")
	}
}

// =============================================================================
// DEGRADED FETCHES
// =============================================================================

func TestHistoryFailureDegradesToEmptyStore(t *testing.T) {
	backend := newFakeBackend()
	backend.failHistory = true

	coord, _ := newTestCoordinator(t, backend)
	ctx := context.Background()

	err := coord.Initialize(ctx)
	if err == nil {
		t.Fatal("Expected history fetch error to surface")
	}

	// Degraded, not broken: an empty store is installed.
	if coord.Store() == nil {
		t.Fatal("Expected a usable store despite fetch failure")
	}
	if coord.Store().Len() != 0 {
		t.Errorf("Expected empty store, got %d turns", coord.Store().Len())
	}
}

// =============================================================================
// SESSION SCOPING
// =============================================================================

func TestSessionsScopedToUser(t *testing.T) {
	backend := newFakeBackend()
	coord, st := newTestCoordinator(t, backend)
	ctx := context.Background()
	st.Set(ctx, state.KeyUserID, "me")

	if err := coord.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	backend.addSession("mine", "me")
	backend.addSession("theirs", "someone-else")

	sessions, err := coord.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "mine" {
		t.Errorf("Expected only this user's sessions, got %+v", sessions)
	}
}

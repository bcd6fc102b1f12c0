// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/turns"
)

// recordingEvents captures every notification for later assertions.
type recordingEvents struct {
	mu          sync.Mutex
	reassigned  []string
	updates     int
	doneCount   int
	doneErr     error
	onUpdate    func()
}

func (r *recordingEvents) SessionReassigned(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reassigned = append(r.reassigned, id)
}

func (r *recordingEvents) TurnsUpdated() {
	r.mu.Lock()
	hook := r.onUpdate
	r.updates++
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (r *recordingEvents) ExchangeDone(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doneCount++
	r.doneErr = err
}

func newStreamConsumer(t *testing.T, handler http.HandlerFunc) (*Consumer, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := api.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 1000
	return NewConsumer(api.NewClientWithConfig(cfg)), srv
}

func chunkedHandler(sessionID string, chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessionID != "" {
			w.Header().Set(api.SessionIDHeader, sessionID)
		}
		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		for _, chunk := range chunks {
			w.Write([]byte(chunk))
			flusher.Flush()
		}
	}
}

// =============================================================================
// SEND
// =============================================================================

func TestSendConvergesToFullResponse(t *testing.T) {
	consumer, _ := newStreamConsumer(t, chunkedHandler("", "The answer ", "is ", "42."))

	store := turns.NewStore()
	events := &recordingEvents{}
	started := consumer.Send(context.Background(), Exchange{
		Store: store, SessionID: "s", UserID: "u", Events: events,
	}, "what is the answer?")

	if !started {
		t.Fatal("Expected the exchange to start")
	}
	snap := store.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Expected user + assistant turns, got %d", len(snap))
	}
	if snap[0].Role != turns.RoleUser || snap[0].Content != "what is the answer?" {
		t.Errorf("Unexpected user turn: %+v", snap[0])
	}
	if snap[1].Role != turns.RoleAssistant || snap[1].Content != "The answer is 42." {
		t.Errorf("Expected concatenated response, got %q", snap[1].Content)
	}
	if events.doneCount != 1 || events.doneErr != nil {
		t.Errorf("Expected one clean ExchangeDone, got count=%d err=%v", events.doneCount, events.doneErr)
	}
}

func TestSendIntermediateStatesArePrefixes(t *testing.T) {
	consumer, _ := newStreamConsumer(t, chunkedHandler("", "alpha ", "beta ", "gamma"))

	store := turns.NewStore()
	const full = "alpha beta gamma"
	var observed []string
	events := &recordingEvents{}
	events.onUpdate = func() {
		if turn, ok := store.At(1); ok && !turn.IsPlaceholder() {
			observed = append(observed, turn.Content)
		}
	}

	consumer.Send(context.Background(), Exchange{
		Store: store, SessionID: "s", UserID: "u", Events: events,
	}, "go")

	if len(observed) == 0 {
		t.Fatal("Expected at least one observed partial state")
	}
	for _, partial := range observed {
		if !strings.HasPrefix(full, partial) {
			t.Errorf("Partial %q is not a prefix of %q", partial, full)
		}
	}
	if observed[len(observed)-1] != full {
		t.Errorf("Final observed state %q is not the full response", observed[len(observed)-1])
	}
}

func TestSendTrimsAndRefusesEmptyInput(t *testing.T) {
	var hits atomic.Int32
	consumer, _ := newStreamConsumer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	store := turns.NewStore()
	for _, input := range []string{"", "   ", "\n\t  \n"} {
		if consumer.Send(context.Background(), Exchange{
			Store: store, SessionID: "s", UserID: "u", Events: NopEvents{},
		}, input) {
			t.Errorf("Expected Send(%q) to refuse", input)
		}
	}

	if store.Len() != 0 {
		t.Errorf("Expected no turns, got %d", store.Len())
	}
	if hits.Load() != 0 {
		t.Errorf("Expected no requests, got %d", hits.Load())
	}
}

func TestSendErrorAfterZeroChunks(t *testing.T) {
	consumer, _ := newStreamConsumer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusInternalServerError)
	})

	store := turns.NewStore()
	events := &recordingEvents{}
	consumer.Send(context.Background(), Exchange{
		Store: store, SessionID: "s", UserID: "u", Events: events,
	}, "hello")

	snap := store.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Expected user + error turns, got %d", len(snap))
	}
	if snap[1].Content != ErrorTurnContent {
		t.Errorf("Expected error turn content, got %q", snap[1].Content)
	}
	if events.doneCount != 1 {
		t.Errorf("Expected exactly one ExchangeDone, got %d", events.doneCount)
	}
	if events.doneErr == nil {
		t.Error("Expected ExchangeDone to carry the stream error")
	}
	if consumer.Busy() {
		t.Error("Consumer must not stay busy after a failed exchange")
	}
}

func TestSendRefusedWhileBusy(t *testing.T) {
	release := make(chan struct{})
	firstChunk := make(chan struct{})
	consumer, _ := newStreamConsumer(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte("thinking"))
		flusher.Flush()
		close(firstChunk)
		<-release
	})

	store := turns.NewStore()
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Send(context.Background(), Exchange{
			Store: store, SessionID: "s", UserID: "u", Events: NopEvents{},
		}, "first")
	}()

	<-firstChunk
	if !consumer.Busy() {
		t.Error("Expected Busy while streaming")
	}
	if consumer.Send(context.Background(), Exchange{
		Store: store, SessionID: "s", UserID: "u", Events: NopEvents{},
	}, "second") {
		t.Error("Expected concurrent Send to be refused")
	}

	close(release)
	<-done

	// Only the first exchange's turns exist.
	if store.Len() != 2 {
		t.Errorf("Expected 2 turns from the single exchange, got %d", store.Len())
	}
}

// =============================================================================
// SESSION REASSIGNMENT
// =============================================================================

func TestSendReassignmentDeliveredOnceBeforeContent(t *testing.T) {
	consumer, _ := newStreamConsumer(t, chunkedHandler("server-chosen", "hi ", "there"))

	store := turns.NewStore()
	events := &recordingEvents{}
	var contentBeforeReassign bool
	events.onUpdate = func() {
		// The placeholder update from the initial append carries no content.
		if turn, ok := store.At(1); !ok || turn.IsPlaceholder() {
			return
		}
		events.mu.Lock()
		if len(events.reassigned) == 0 {
			contentBeforeReassign = true
		}
		events.mu.Unlock()
	}

	consumer.Send(context.Background(), Exchange{
		Store: store, SessionID: "client-chosen", UserID: "u", Events: events,
	}, "hello")

	if len(events.reassigned) != 1 || events.reassigned[0] != "server-chosen" {
		t.Errorf("Expected exactly one reassignment to server-chosen, got %v", events.reassigned)
	}
	if contentBeforeReassign {
		t.Error("Content must not arrive before the reassignment signal")
	}
	if turn, _ := store.At(1); turn.Content != "hi there" {
		t.Errorf("Reassignment must not disturb content, got %q", turn.Content)
	}
}

// =============================================================================
// STALE STORES
// =============================================================================

func TestStaleWritesStayInAbandonedStore(t *testing.T) {
	release := make(chan struct{})
	firstChunk := make(chan struct{})
	consumer, _ := newStreamConsumer(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte("part one "))
		flusher.Flush()
		close(firstChunk)
		<-release
		w.Write([]byte("part two"))
		flusher.Flush()
	})

	oldStore := turns.NewStore()
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Send(context.Background(), Exchange{
			Store: oldStore, SessionID: "old", UserID: "u", Events: NopEvents{},
		}, "question")
	}()

	<-firstChunk
	// Session switch mid-stream: the active store is now a different
	// generation. The in-flight writer still holds oldStore.
	newStore := turns.NewStoreWith([]turns.Turn{turns.User("fresh session")})
	close(release)
	<-done

	if newStore.Len() != 1 {
		t.Fatalf("New store must be untouched by the stale stream, got %d turns", newStore.Len())
	}
	if turn, _ := newStore.At(0); turn.Content != "fresh session" {
		t.Errorf("New store content disturbed: %q", turn.Content)
	}
	if turn, _ := oldStore.At(1); turn.Content != "part one part two" {
		t.Errorf("Stale writes should complete in the abandoned store, got %q", turn.Content)
	}
}

func TestStaleIndexIntoClearedStoreIsHarmless(t *testing.T) {
	release := make(chan struct{})
	firstChunk := make(chan struct{})
	consumer, _ := newStreamConsumer(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte("early"))
		flusher.Flush()
		close(firstChunk)
		<-release
		w.Write([]byte(" late"))
		flusher.Flush()
	})

	store := turns.NewStore()
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Send(context.Background(), Exchange{
			Store: store, SessionID: "s", UserID: "u", Events: NopEvents{},
		}, "question")
	}()

	<-firstChunk
	store.Clear()
	close(release)
	<-done

	// Replaces against the cleared store are silent no-ops.
	if store.Len() != 0 {
		t.Errorf("Expected cleared store to stay empty, got %d turns", store.Len())
	}
}

// =============================================================================
// REGENERATE
// =============================================================================

func TestRegenerateUsesNearestUserTurn(t *testing.T) {
	var gotInput string
	var mu sync.Mutex
	consumer, _ := newStreamConsumer(t, func(w http.ResponseWriter, r *http.Request) {
		var ask api.AskRequest
		if err := json.NewDecoder(r.Body).Decode(&ask); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		gotInput = ask.UserInput
		mu.Unlock()
		w.Write([]byte("second attempt"))
	})

	store := turns.NewStoreWith([]turns.Turn{
		turns.User("first question"),
		turns.Assistant("first answer"),
		turns.User("second question"),
		turns.Assistant("bad answer"),
	})

	started := consumer.Regenerate(context.Background(), Exchange{
		Store: store, SessionID: "s", UserID: "u", Events: NopEvents{},
	}, 3)

	if !started {
		t.Fatal("Expected regeneration to start")
	}
	mu.Lock()
	input := gotInput
	mu.Unlock()
	if input != "second question" {
		t.Errorf("Expected nearest preceding user turn, got %q", input)
	}
	if turn, _ := store.At(3); turn.Content != "second attempt" {
		t.Errorf("Expected regenerated content at target, got %q", turn.Content)
	}
	// Earlier turns untouched.
	if turn, _ := store.At(1); turn.Content != "first answer" {
		t.Errorf("Earlier assistant turn disturbed: %q", turn.Content)
	}
}

func TestRegenerateWithoutPrecedingUserTurn(t *testing.T) {
	var hits atomic.Int32
	consumer, _ := newStreamConsumer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	store := turns.NewStoreWith([]turns.Turn{turns.Assistant("orphan greeting")})
	if consumer.Regenerate(context.Background(), Exchange{
		Store: store, SessionID: "s", UserID: "u", Events: NopEvents{},
	}, 0) {
		t.Error("Expected no-op with no preceding user turn")
	}
	if hits.Load() != 0 {
		t.Errorf("Expected no requests, got %d", hits.Load())
	}
	if turn, _ := store.At(0); turn.Content != "orphan greeting" {
		t.Errorf("Target turn must be untouched, got %q", turn.Content)
	}
}

func TestRegenerateRefusedWhileBusy(t *testing.T) {
	release := make(chan struct{})
	firstChunk := make(chan struct{})
	consumer, _ := newStreamConsumer(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Write([]byte("busy"))
		flusher.Flush()
		close(firstChunk)
		<-release
	})

	store := turns.NewStoreWith([]turns.Turn{
		turns.User("q"),
		turns.Assistant("a"),
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Send(context.Background(), Exchange{
			Store: store, SessionID: "s", UserID: "u", Events: NopEvents{},
		}, "another")
	}()

	<-firstChunk
	if consumer.Regenerate(context.Background(), Exchange{
		Store: store, SessionID: "s", UserID: "u", Events: NopEvents{},
	}, 1) {
		t.Error("Expected Regenerate to be refused while busy")
	}
	if turn, _ := store.At(1); turn.Content != "a" {
		t.Errorf("Refused regenerate must not clear the target, got %q", turn.Content)
	}

	close(release)
	<-done
}

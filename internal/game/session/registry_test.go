package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Honey-Be/trlg-statemachine/internal/game/engine"
	"github.com/Honey-Be/trlg-statemachine/internal/game/storage"
	"github.com/Honey-Be/trlg-statemachine/internal/game/storage/memory"
	apperrors "github.com/Honey-Be/trlg-statemachine/internal/platform/errors"
)

// countingContext is the minimal engine context used by registry tests: a
// monotonically increasing apply counter.
type countingContext struct {
	Applied int    `json:"applied"`
	Now     string `json:"now"`
}

func (c countingContext) State() string            { return "counting" }
func (c countingContext) NowPlayerAccount() string { return c.Now }

// countingEngine counts applied events and trips the test when it observes
// two transitions in flight for the same call graph.
type countingEngine struct {
	inFlight  atomic.Int32
	overlaps  atomic.Int32
	applyTime time.Duration
}

func (e *countingEngine) NewContext(playerAccounts [engine.PlayerSlots]string) engine.Context {
	return countingContext{Now: playerAccounts[0]}
}

func (e *countingEngine) ApplyEvent(gameCtx engine.Context, event engine.Event) (engine.Context, error) {
	if e.inFlight.Add(1) > 1 {
		e.overlaps.Add(1)
	}
	defer e.inFlight.Add(-1)
	if e.applyTime > 0 {
		time.Sleep(e.applyTime)
	}

	c, ok := gameCtx.(countingContext)
	if !ok {
		return nil, errors.New("unexpected context type")
	}
	if event.Name() == "purchase" {
		return nil, errors.New("purchase is not allowed here")
	}
	c.Applied++
	return c, nil
}

func (e *countingEngine) Serialize(gameCtx engine.Context) (string, error) {
	raw, err := json.Marshal(gameCtx)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (e *countingEngine) Deserialize(snapshot string) (engine.Context, error) {
	var c countingContext
	if err := json.Unmarshal([]byte(snapshot), &c); err != nil {
		return nil, err
	}
	return c, nil
}

func (e *countingEngine) View(gameCtx engine.Context) (engine.View, error) {
	raw, err := json.Marshal(gameCtx)
	if err != nil {
		return engine.View{}, err
	}
	return engine.View{
		State:            gameCtx.State(),
		Context:          raw,
		NowPlayerAccount: gameCtx.NowPlayerAccount(),
	}, nil
}

// recordingBroadcaster collects refresh broadcasts per game id.
type recordingBroadcaster struct {
	mu    sync.Mutex
	views map[string][]engine.View
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{views: make(map[string][]engine.View)}
}

func (b *recordingBroadcaster) BroadcastRefresh(gameID string, view engine.View) {
	b.mu.Lock()
	b.views[gameID] = append(b.views[gameID], view)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) count(gameID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.views[gameID])
}

func newTestRegistry(store storage.DocumentStore, broadcaster Broadcaster) *Registry {
	return NewRegistry(&countingEngine{}, store, NewCache(), broadcaster)
}

func TestRegisterOpensSession(t *testing.T) {
	registry := newTestRegistry(memory.New(), nil)

	outcome, err := registry.Register(context.Background(), "G1", testSeats, "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if outcome != RegisterCreated {
		t.Fatalf("outcome = %v, want created", outcome)
	}
	if !registry.IsLoaded("G1") {
		t.Fatal("expected G1 to be loaded after registration")
	}
}

func TestRegisterRejectsEmptyGameID(t *testing.T) {
	registry := newTestRegistry(memory.New(), nil)

	_, err := registry.Register(context.Background(), "", testSeats, "")
	if apperrors.CodeOf(err) != apperrors.CodeSessionEmptyGameID {
		t.Fatalf("expected empty-game-id error, got %v", err)
	}
	if err := registry.Open(context.Background(), ""); apperrors.CodeOf(err) != apperrors.CodeSessionEmptyGameID {
		t.Fatalf("expected empty-game-id error from open, got %v", err)
	}
}

func TestRegisterTwiceKeepsOriginalSeats(t *testing.T) {
	store := memory.New()
	registry := newTestRegistry(store, nil)

	if _, err := registry.Register(context.Background(), "G1", testSeats, ""); err != nil {
		t.Fatalf("first register: %v", err)
	}
	outcome, err := registry.Register(context.Background(), "G1", [storage.PlayerSlots]string{"e", "f", "g", "h"}, "")
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if outcome != RegisterNoop {
		t.Fatalf("outcome = %v, want noop", outcome)
	}

	document, err := registry.Document("G1")
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	if document.PlayerAccounts != testSeats {
		t.Fatalf("seats = %v, want original %v", document.PlayerAccounts, testSeats)
	}
}

func TestOpenUnknownSessionReportsNotFound(t *testing.T) {
	registry := newTestRegistry(memory.New(), nil)

	err := registry.Open(context.Background(), "g-missing")
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
	if registry.IsLoaded("g-missing") {
		t.Fatal("failed open must not register an actor")
	}
}

func TestOpenRestoresFromSnapshot(t *testing.T) {
	store := memory.New()
	seed := storage.SessionRecord{
		Initialized:    true,
		Snapshot:       `{"applied":7,"now":"a"}`,
		PlayerAccounts: testSeats,
	}
	if err := store.SetDocument(context.Background(), "G1", seed); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	registry := newTestRegistry(store, nil)
	if err := registry.Open(context.Background(), "G1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	view, err := registry.View("G1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	var got countingContext
	if err := json.Unmarshal(view.Context, &got); err != nil {
		t.Fatalf("decode view context: %v", err)
	}
	if got.Applied != 7 {
		t.Fatalf("restored applied = %d, want 7", got.Applied)
	}
}

func TestDispatchUnknownSessionIsNoop(t *testing.T) {
	broadcaster := newRecordingBroadcaster()
	registry := newTestRegistry(memory.New(), broadcaster)

	if err := registry.Dispatch(context.Background(), "g-unknown", engine.Nop{}); err != nil {
		t.Fatalf("dispatch to unknown session: %v", err)
	}
	if broadcaster.count("g-unknown") != 0 {
		t.Fatal("dispatch to an unknown session must not broadcast")
	}
}

func TestDispatchSerializesPerSession(t *testing.T) {
	store := memory.New()
	eng := &countingEngine{applyTime: time.Millisecond}
	registry := NewRegistry(eng, store, NewCache(), nil)

	if _, err := registry.Register(context.Background(), "G1", testSeats, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	const dispatchers = 8
	const perDispatcher = 5
	var wg sync.WaitGroup
	for i := 0; i < dispatchers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perDispatcher; j++ {
				if err := registry.Dispatch(context.Background(), "G1", engine.Nop{}); err != nil {
					t.Errorf("dispatch: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if overlaps := eng.overlaps.Load(); overlaps != 0 {
		t.Fatalf("engine observed %d overlapping transitions for one session", overlaps)
	}

	view, err := registry.View("G1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	var got countingContext
	if err := json.Unmarshal(view.Context, &got); err != nil {
		t.Fatalf("decode view context: %v", err)
	}
	if want := dispatchers * perDispatcher; got.Applied != want {
		t.Fatalf("applied = %d, want %d (lost or duplicated transitions)", got.Applied, want)
	}
}

func TestDispatchAcrossSessionsRunsConcurrently(t *testing.T) {
	store := memory.New()
	registry := newTestRegistry(store, nil)

	const sessions = 4
	for i := 0; i < sessions; i++ {
		gameID := fmt.Sprintf("G%d", i)
		if _, err := registry.Register(context.Background(), gameID, testSeats, ""); err != nil {
			t.Fatalf("register %s: %v", gameID, err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			gameID := fmt.Sprintf("G%d", i)
			for j := 0; j < 10; j++ {
				if err := registry.Dispatch(context.Background(), gameID, engine.Nop{}); err != nil {
					t.Errorf("dispatch %s: %v", gameID, err)
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < sessions; i++ {
		gameID := fmt.Sprintf("G%d", i)
		view, err := registry.View(gameID)
		if err != nil {
			t.Fatalf("view %s: %v", gameID, err)
		}
		var got countingContext
		if err := json.Unmarshal(view.Context, &got); err != nil {
			t.Fatalf("decode view context: %v", err)
		}
		if got.Applied != 10 {
			t.Fatalf("%s applied = %d, want 10", gameID, got.Applied)
		}
	}
}

func TestDispatchBroadcastsView(t *testing.T) {
	broadcaster := newRecordingBroadcaster()
	registry := newTestRegistry(memory.New(), broadcaster)

	if _, err := registry.Register(context.Background(), "G1", testSeats, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Dispatch(context.Background(), "G1", engine.Nop{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if got := broadcaster.count("G1"); got != 1 {
		t.Fatalf("broadcast count = %d, want 1", got)
	}
}

func TestDispatchBroadcastsEvenWhenPersistFails(t *testing.T) {
	store := memory.New()
	broadcaster := newRecordingBroadcaster()
	registry := NewRegistry(&countingEngine{}, store, NewCache(), broadcaster)

	if _, err := registry.Register(context.Background(), "G1", testSeats, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	store.FailNext(errors.New("write timeout"))
	err := registry.Dispatch(context.Background(), "G1", engine.Nop{})
	if apperrors.CodeOf(err) != apperrors.CodeStoreUnavailable {
		t.Fatalf("expected store-unavailable from dispatch, got %v", err)
	}
	if got := broadcaster.count("G1"); got != 1 {
		t.Fatalf("broadcast count = %d, want 1 despite the persist failure", got)
	}
}

func TestDispatchRejectedEventDoesNotAdvanceOrBroadcast(t *testing.T) {
	broadcaster := newRecordingBroadcaster()
	registry := newTestRegistry(memory.New(), broadcaster)

	if _, err := registry.Register(context.Background(), "G1", testSeats, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := registry.Dispatch(context.Background(), "G1", engine.Purchase{Amount: 100})
	if apperrors.CodeOf(err) != apperrors.CodeEngineRejected {
		t.Fatalf("expected engine-rejected, got %v", err)
	}
	if got := broadcaster.count("G1"); got != 0 {
		t.Fatalf("broadcast count = %d, want 0 for a rejected event", got)
	}

	view, err := registry.View("G1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	var got countingContext
	if err := json.Unmarshal(view.Context, &got); err != nil {
		t.Fatalf("decode view context: %v", err)
	}
	if got.Applied != 0 {
		t.Fatalf("applied = %d, want 0 after rejection", got.Applied)
	}
}

func TestLoadKnownSessions(t *testing.T) {
	store := memory.New()
	for _, gameID := range []string{"G1", "G2"} {
		if err := store.SetDocument(context.Background(), gameID, storage.SessionRecord{PlayerAccounts: testSeats}); err != nil {
			t.Fatalf("seed %s: %v", gameID, err)
		}
	}
	if err := store.CreateIndex(context.Background(), "G1", "G2", "g-ghost"); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	registry := newTestRegistry(store, nil)
	opened, err := registry.LoadKnownSessions(context.Background())
	if err != nil {
		t.Fatalf("load known sessions: %v", err)
	}
	// g-ghost has an index entry but no document; it is skipped, not fatal.
	if opened != 2 {
		t.Fatalf("opened = %d, want 2", opened)
	}
	if !registry.IsLoaded("G1") || !registry.IsLoaded("G2") {
		t.Fatal("expected both indexed sessions to be loaded")
	}
	if registry.IsLoaded("g-ghost") {
		t.Fatal("session without a document must not be loaded")
	}
}

func TestLoadKnownSessionsWithoutIndex(t *testing.T) {
	registry := newTestRegistry(memory.New(), nil)

	opened, err := registry.LoadKnownSessions(context.Background())
	if err != nil {
		t.Fatalf("load known sessions: %v", err)
	}
	if opened != 0 {
		t.Fatalf("opened = %d, want 0", opened)
	}
}

func TestEvictUnloadsButKeepsDurableState(t *testing.T) {
	store := memory.New()
	registry := newTestRegistry(store, nil)

	if _, err := registry.Register(context.Background(), "G1", testSeats, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Dispatch(context.Background(), "G1", engine.Nop{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	registry.Evict("G1")
	if registry.IsLoaded("G1") {
		t.Fatal("expected G1 to be unloaded after eviction")
	}
	if err := registry.Dispatch(context.Background(), "G1", engine.Nop{}); err != nil {
		t.Fatalf("dispatch after eviction should be a no-op, got %v", err)
	}

	if err := registry.Open(context.Background(), "G1"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	view, err := registry.View("G1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	var got countingContext
	if err := json.Unmarshal(view.Context, &got); err != nil {
		t.Fatalf("decode view context: %v", err)
	}
	if got.Applied != 1 {
		t.Fatalf("applied = %d after reopen, want 1", got.Applied)
	}
}

func TestViewRequiresLoadedSession(t *testing.T) {
	registry := newTestRegistry(memory.New(), nil)

	if _, err := registry.View("g-unknown"); apperrors.CodeOf(err) != apperrors.CodeSessionNotLoaded {
		t.Fatalf("expected session-not-loaded, got %v", err)
	}
	if _, err := registry.Document("g-unknown"); apperrors.CodeOf(err) != apperrors.CodeSessionNotLoaded {
		t.Fatalf("expected session-not-loaded, got %v", err)
	}
	if _, err := registry.ResolveAccountSlot("g-unknown", "a"); apperrors.CodeOf(err) != apperrors.CodeSessionNotLoaded {
		t.Fatalf("expected session-not-loaded, got %v", err)
	}
}

func TestResolveAccountSlotThroughRegistry(t *testing.T) {
	registry := newTestRegistry(memory.New(), nil)

	if _, err := registry.Register(context.Background(), "G1", testSeats, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	slot, err := registry.ResolveAccountSlot("G1", "c")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if slot != 2 {
		t.Fatalf("slot = %d, want 2", slot)
	}
	if _, err := registry.ResolveAccountSlot("G1", "zz"); !errors.Is(err, ErrNotGranted) {
		t.Fatalf("expected ErrNotGranted, got %v", err)
	}
}

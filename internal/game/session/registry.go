package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/Honey-Be/trlg-statemachine/internal/game/engine"
	"github.com/Honey-Be/trlg-statemachine/internal/game/storage"
	apperrors "github.com/Honey-Be/trlg-statemachine/internal/platform/errors"
)

// Broadcaster receives the refreshed view of a session after every applied
// command. The broadcast is best-effort and happens whether or not the
// persist that preceded it succeeded: the in-memory context is authoritative
// for the running process.
type Broadcaster interface {
	BroadcastRefresh(gameID string, view engine.View)
}

// BroadcasterFunc adapts a function to the Broadcaster interface.
type BroadcasterFunc func(gameID string, view engine.View)

// BroadcastRefresh calls f.
func (f BroadcasterFunc) BroadcastRefresh(gameID string, view engine.View) {
	f(gameID, view)
}

// Registry maps each game id to at most one live actor, giving every session
// a single serialized command processor within the process.
//
// All mutable state is owned by the registry instance; two registries over
// different caches and stores are fully independent.
type Registry struct {
	engine      engine.Engine
	store       storage.DocumentStore
	cache       *Cache
	broadcaster Broadcaster

	mu     sync.Mutex
	actors map[string]*Actor
}

// NewRegistry creates a registry over the given engine, store, and cache.
// The broadcaster may be nil when no transport is attached (tests).
func NewRegistry(eng engine.Engine, store storage.DocumentStore, cache *Cache, broadcaster Broadcaster) *Registry {
	return &Registry{
		engine:      eng,
		store:       store,
		cache:       cache,
		broadcaster: broadcaster,
		actors:      make(map[string]*Actor),
	}
}

// Register runs the idempotent registration protocol for gameID and opens
// its actor, making the session joinable in this process.
func (r *Registry) Register(ctx context.Context, gameID string, playerAccounts [storage.PlayerSlots]string, initialSnapshot string) (RegisterOutcome, error) {
	if gameID == "" {
		return RegisterOutcomeUnspecified, apperrors.New(apperrors.CodeSessionEmptyGameID, "game id is required")
	}

	adapter := NewAdapter(gameID, r.cache, r.store)
	outcome, err := adapter.TryRegister(ctx, playerAccounts, initialSnapshot)
	if err != nil {
		return outcome, err
	}
	if err := r.open(ctx, adapter); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// Open loads the session document for gameID and registers its actor.
// Opening an already-open session is a no-op.
func (r *Registry) Open(ctx context.Context, gameID string) error {
	if gameID == "" {
		return apperrors.New(apperrors.CodeSessionEmptyGameID, "game id is required")
	}
	return r.open(ctx, NewAdapter(gameID, r.cache, r.store))
}

func (r *Registry) open(ctx context.Context, adapter *Adapter) error {
	r.mu.Lock()
	_, exists := r.actors[adapter.GameID()]
	r.mu.Unlock()
	if exists {
		return nil
	}

	if err := adapter.Load(ctx); err != nil {
		return err
	}

	actor, err := newActor(adapter, r.engine, r.broadcaster)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A concurrent open may have won; the first registered actor stays so
	// there is never more than one processor per session.
	if _, exists := r.actors[adapter.GameID()]; !exists {
		r.actors[adapter.GameID()] = actor
	}
	return nil
}

// LoadKnownSessions opens every session recorded in the global index. Called
// at startup to restore sessions that survive process restarts. Sessions
// that fail to open are logged and skipped; an unreadable index is an error.
func (r *Registry) LoadKnownSessions(ctx context.Context) (int, error) {
	ids, err := r.store.GetIndex(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStoreUnavailable, "read session index", err)
	}

	opened := 0
	for _, gameID := range ids {
		if err := r.Open(ctx, gameID); err != nil {
			log.Printf("game: open session %q from index: %v", gameID, err)
			continue
		}
		opened++
	}
	return opened, nil
}

// Evict removes the actor for gameID from the registry. The session remains
// durable in the store and can be reopened later.
func (r *Registry) Evict(gameID string) {
	r.mu.Lock()
	delete(r.actors, gameID)
	r.mu.Unlock()
}

// IsLoaded reports whether this process holds a live actor for gameID.
func (r *Registry) IsLoaded(gameID string) bool {
	return r.actor(gameID) != nil
}

// Dispatch hands event to the session's actor. Unknown sessions make the
// call a no-op, per the transport contract: the client raced an eviction or
// never joined a loaded session.
func (r *Registry) Dispatch(ctx context.Context, gameID string, event engine.Event) error {
	actor := r.actor(gameID)
	if actor == nil {
		return nil
	}
	return actor.dispatch(ctx, event)
}

// ResolveAccountSlot returns the player seat bound to account in gameID's
// document.
func (r *Registry) ResolveAccountSlot(gameID, account string) (int, error) {
	actor := r.actor(gameID)
	if actor == nil {
		return 0, apperrors.New(apperrors.CodeSessionNotLoaded, "session is not loaded")
	}
	return actor.adapter.ResolveAccountSlot(account)
}

// Document returns a copy of the session's cached document.
func (r *Registry) Document(gameID string) (storage.SessionRecord, error) {
	actor := r.actor(gameID)
	if actor == nil {
		return storage.SessionRecord{}, apperrors.New(apperrors.CodeSessionNotLoaded, "session is not loaded")
	}
	return actor.adapter.Document(), nil
}

// View returns the current client-facing view of the session.
func (r *Registry) View(gameID string) (engine.View, error) {
	actor := r.actor(gameID)
	if actor == nil {
		return engine.View{}, apperrors.New(apperrors.CodeSessionNotLoaded, "session is not loaded")
	}
	return actor.view()
}

func (r *Registry) actor(gameID string) *Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.actors[gameID]
}

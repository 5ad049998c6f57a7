package session

import (
	"context"
	"log"
	"sync"

	"github.com/Honey-Be/trlg-statemachine/internal/game/engine"
	apperrors "github.com/Honey-Be/trlg-statemachine/internal/platform/errors"
)

// Actor is the serialized command processor for one session. It exclusively
// owns the deserialized game context; the engine never observes two
// concurrent transitions for the same session because every dispatch runs to
// completion under the actor's lock. Actors for different sessions share
// nothing and run concurrently.
type Actor struct {
	gameID      string
	adapter     *Adapter
	engine      engine.Engine
	broadcaster Broadcaster

	mu      sync.Mutex
	gameCtx engine.Context
}

// newActor builds the actor from the adapter's cached document: a non-empty
// snapshot is deserialized, otherwise a fresh context is created from the
// document's seat assignments.
func newActor(adapter *Adapter, eng engine.Engine, broadcaster Broadcaster) (*Actor, error) {
	document := adapter.Document()

	var gameCtx engine.Context
	if document.Snapshot != "" {
		restored, err := eng.Deserialize(document.Snapshot)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeEngineRejected, "restore game context from snapshot", err)
		}
		gameCtx = restored
	} else {
		gameCtx = eng.NewContext(document.PlayerAccounts)
	}

	return &Actor{
		gameID:      adapter.GameID(),
		adapter:     adapter,
		engine:      eng,
		broadcaster: broadcaster,
		gameCtx:     gameCtx,
	}, nil
}

// dispatch applies one event: engine transition, snapshot persist, then view
// broadcast. The broadcast happens regardless of the persist outcome; a
// store failure degrades durability, not the running session. The persist
// error is still returned so the transport can surface it.
func (a *Actor) dispatch(ctx context.Context, event engine.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next, err := a.engine.ApplyEvent(a.gameCtx, event)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeEngineRejected, "apply "+event.Name(), err)
	}
	a.gameCtx = next

	snapshot, err := a.engine.Serialize(next)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeEngineRejected, "serialize game context", err)
	}

	persistErr := a.adapter.Persist(ctx, snapshot)
	if persistErr != nil {
		log.Printf("game: persist session %q after %s: %v", a.gameID, event.Name(), persistErr)
	}

	if a.broadcaster != nil {
		view, err := a.engine.View(next)
		if err != nil {
			log.Printf("game: project view for session %q: %v", a.gameID, err)
		} else {
			a.broadcaster.BroadcastRefresh(a.gameID, view)
		}
	}

	return persistErr
}

// view returns the current client-facing view under the actor's lock.
func (a *Actor) view() (engine.View, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine.View(a.gameCtx)
}

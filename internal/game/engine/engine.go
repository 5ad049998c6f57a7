// Package engine defines the capability surface the session runtime uses to
// advance game state.
//
// The runtime treats game rules as opaque: it hands a Context and an Event to
// an Engine and receives a replacement Context, a serialized snapshot for
// storage, and a View for clients. Swapping the Engine swaps the supported
// game without touching session, storage, or transport code.
package engine

import "encoding/json"

// PlayerSlots is the number of player seats an engine context tracks.
const PlayerSlots = 4

// Context is the opaque in-memory state of one running game. Only the engine
// that produced a Context may interpret it; the two accessors exist so views
// can be assembled without understanding the rules.
type Context interface {
	// State returns the machine state label clients render against.
	State() string
	// NowPlayerAccount returns the account whose turn it is.
	NowPlayerAccount() string
}

// View is the public projection broadcast to clients after every applied
// command. Context carries the engine's full serialized state; clients treat
// it as display data, never as something to write back.
type View struct {
	State            string          `json:"state"`
	Context          json.RawMessage `json:"gameContext"`
	NowPlayerAccount string          `json:"nowPlayerAccount"`
}

// Engine applies events to game contexts and converts contexts to and from
// their stored snapshot form.
//
// ApplyEvent must be total over the closed Event set: it either returns a
// fully transitioned replacement context or an error with the input context
// untouched. There is no partial application.
type Engine interface {
	// NewContext creates the starting context for a fresh session.
	NewContext(playerAccounts [PlayerSlots]string) Context
	// ApplyEvent advances gameCtx by one event.
	ApplyEvent(gameCtx Context, event Event) (Context, error)
	// Serialize encodes gameCtx into an opaque snapshot string.
	Serialize(gameCtx Context) (string, error)
	// Deserialize restores a context from a snapshot string.
	Deserialize(snapshot string) (Context, error)
	// View projects gameCtx into its client-facing form.
	View(gameCtx Context) (View, error)
}

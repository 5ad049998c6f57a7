package server

import (
	"encoding/json"
	"sync"

	"github.com/Honey-Be/trlg-statemachine/internal/game/engine"
)

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// gameHub tracks the broadcast room for every joined session. It is the
// registry's Broadcaster: each applied command fans the refreshed view out to
// the room's subscribers.
type gameHub struct {
	mu    sync.Mutex
	rooms map[string]*gameRoom
}

func newGameHub() *gameHub {
	return &gameHub{rooms: make(map[string]*gameRoom)}
}

func (h *gameHub) room(gameID string) *gameRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[gameID]
	if ok {
		return room
	}

	room = newGameRoom(gameID)
	h.rooms[gameID] = room
	return room
}

// existing returns the room for gameID without creating one.
func (h *gameHub) existing(gameID string) *gameRoom {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[gameID]
}

// BroadcastRefresh sends the session's refreshed view to every subscribed
// peer. Sessions nobody joined have no room and the broadcast is dropped.
func (h *gameHub) BroadcastRefresh(gameID string, view engine.View) {
	room := h.existing(gameID)
	if room == nil {
		return
	}
	frame := refreshFrame(view)
	for _, subscriber := range room.peers() {
		_ = subscriber.writeFrame(frame)
	}
}

type gameRoom struct {
	mu          sync.Mutex
	gameID      string
	subscribers map[*wsPeer]struct{}
}

func newGameRoom(gameID string) *gameRoom {
	return &gameRoom{
		gameID:      gameID,
		subscribers: make(map[*wsPeer]struct{}),
	}
}

func (r *gameRoom) join(peer *wsPeer) {
	r.mu.Lock()
	r.subscribers[peer] = struct{}{}
	r.mu.Unlock()
}

func (r *gameRoom) leave(peer *wsPeer) {
	r.mu.Lock()
	delete(r.subscribers, peer)
	r.mu.Unlock()
}

func (r *gameRoom) peers() []*wsPeer {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]*wsPeer, 0, len(r.subscribers))
	for subscriber := range r.subscribers {
		peers = append(peers, subscriber)
	}
	return peers
}

// Package session implements the session actor runtime: the per-session
// storage adapter protocol, the idempotent registration protocol, and the
// registry that serializes command execution per live session.
package session

import (
	"sync"

	"github.com/Honey-Be/trlg-statemachine/internal/game/storage"
)

// Cache holds the last-known session document per game id for the lifetime
// of the process. It is injected into the registry at construction so tests
// can run independent runtimes side by side; there is no package-level pool.
//
// Entries may be stale relative to the remote store until an adapter Load
// reconciles them.
type Cache struct {
	mu      sync.Mutex
	entries map[string]storage.SessionRecord
}

// NewCache creates an empty session cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]storage.SessionRecord)}
}

func (c *Cache) get(gameID string) (storage.SessionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record, ok := c.entries[gameID]
	return record, ok
}

func (c *Cache) put(gameID string, record storage.SessionRecord) {
	c.mu.Lock()
	c.entries[gameID] = record
	c.mu.Unlock()
}

func (c *Cache) has(gameID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[gameID]
	return ok
}

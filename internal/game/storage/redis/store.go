// Package redis provides a DocumentStore backed by RedisJSON.
//
// The key layout matches the documents written by earlier deployments: a
// single document key holding an object of session records keyed by game id,
// and an index key holding the array of known game ids.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Honey-Be/trlg-statemachine/internal/game/storage"
)

const (
	defaultDocumentKey = "session"
	defaultIndexKey    = "id"
)

// Store reads and writes session documents through RedisJSON commands.
type Store struct {
	client      *redis.Client
	documentKey string
	indexKey    string
}

// Option configures a Store.
type Option func(*Store)

// WithKeys overrides the document and index key names.
func WithKeys(documentKey, indexKey string) Option {
	return func(s *Store) {
		if strings.TrimSpace(documentKey) != "" {
			s.documentKey = documentKey
		}
		if strings.TrimSpace(indexKey) != "" {
			s.indexKey = indexKey
		}
	}
}

// New wraps an existing Redis client.
func New(client *redis.Client, opts ...Option) *Store {
	store := &Store{
		client:      client,
		documentKey: defaultDocumentKey,
		indexKey:    defaultIndexKey,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Open connects to the Redis URL and returns a Store.
func Open(url string, opts ...Option) (*Store, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(redis.NewClient(options), opts...), nil
}

// Close releases the underlying client connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// sessionPath builds the JSONPath selecting one game id inside the document
// key. Bracket notation keeps ids with dots or spaces addressable.
func sessionPath(gameID string) string {
	escaped := strings.ReplaceAll(gameID, `"`, `\"`)
	return fmt.Sprintf(`$["%s"]`, escaped)
}

// GetDocument returns the session document for gameID.
func (s *Store) GetDocument(ctx context.Context, gameID string) (storage.SessionRecord, error) {
	raw, err := s.client.JSONGet(ctx, s.documentKey, sessionPath(gameID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return storage.SessionRecord{}, storage.ErrNotFound
		}
		return storage.SessionRecord{}, fmt.Errorf("json get %s: %w", s.documentKey, err)
	}

	var matches []storage.SessionRecord
	if err := json.Unmarshal([]byte(raw), &matches); err != nil {
		return storage.SessionRecord{}, fmt.Errorf("decode session document: %w", err)
	}
	if len(matches) == 0 {
		return storage.SessionRecord{}, storage.ErrNotFound
	}
	return matches[0], nil
}

// SetDocument writes the full session document for gameID, creating the
// enclosing root object when the document key has never been written.
func (s *Store) SetDocument(ctx context.Context, gameID string, record storage.SessionRecord) error {
	if err := s.client.JSONSetMode(ctx, s.documentKey, "$", "{}", "NX").Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("ensure document root: %w", err)
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode session document: %w", err)
	}
	if err := s.client.JSONSet(ctx, s.documentKey, sessionPath(gameID), string(encoded)).Err(); err != nil {
		return fmt.Errorf("json set %s: %w", s.documentKey, err)
	}
	return nil
}

// GetIndex returns the session index in insertion order.
func (s *Store) GetIndex(ctx context.Context) ([]string, error) {
	raw, err := s.client.JSONGet(ctx, s.indexKey, "$").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("json get %s: %w", s.indexKey, err)
	}

	var matches [][]string
	if err := json.Unmarshal([]byte(raw), &matches); err != nil {
		return nil, fmt.Errorf("decode session index: %w", err)
	}
	if len(matches) == 0 {
		return nil, storage.ErrNotFound
	}
	return matches[0], nil
}

// CreateIndex writes a fresh index containing the given ids.
func (s *Store) CreateIndex(ctx context.Context, gameIDs ...string) error {
	if gameIDs == nil {
		gameIDs = []string{}
	}
	encoded, err := json.Marshal(gameIDs)
	if err != nil {
		return fmt.Errorf("encode session index: %w", err)
	}
	if err := s.client.JSONSet(ctx, s.indexKey, "$", string(encoded)).Err(); err != nil {
		return fmt.Errorf("json set %s: %w", s.indexKey, err)
	}
	return nil
}

// AppendToIndex appends gameID to the index, creating it when absent.
//
// RedisJSON offers no append-if-absent on array members, so duplicate
// suppression relies on the registration protocol checking membership first.
func (s *Store) AppendToIndex(ctx context.Context, gameID string) error {
	encoded, err := json.Marshal(gameID)
	if err != nil {
		return fmt.Errorf("encode game id: %w", err)
	}

	lengths, err := s.client.JSONArrAppend(ctx, s.indexKey, "$", string(encoded)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return s.CreateIndex(ctx, gameID)
		}
		return fmt.Errorf("json arrappend %s: %w", s.indexKey, err)
	}
	if len(lengths) == 0 {
		return fmt.Errorf("json arrappend %s: no array matched", s.indexKey)
	}
	return nil
}

// Package memory provides an in-process DocumentStore used by tests and
// local development. It honors the same per-key atomicity contract as the
// remote implementations.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/Honey-Be/trlg-statemachine/internal/game/storage"
)

// Store keeps session documents and the session index in process memory.
type Store struct {
	mu        sync.Mutex
	documents map[string]storage.SessionRecord
	index     []string
	hasIndex  bool

	// failNext, when set, makes the next operation fail with the given
	// error. Tests use it to simulate store outages.
	failNext error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{documents: make(map[string]storage.SessionRecord)}
}

// FailNext makes the next store operation return err.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *Store) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// GetDocument returns the stored session document for gameID.
func (s *Store) GetDocument(_ context.Context, gameID string) (storage.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return storage.SessionRecord{}, err
	}
	record, ok := s.documents[gameID]
	if !ok {
		return storage.SessionRecord{}, storage.ErrNotFound
	}
	return record, nil
}

// SetDocument writes the full session document for gameID.
func (s *Store) SetDocument(_ context.Context, gameID string, record storage.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.documents[gameID] = record
	return nil
}

// GetIndex returns the session index in insertion order.
func (s *Store) GetIndex(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	if !s.hasIndex {
		return nil, storage.ErrNotFound
	}
	return slices.Clone(s.index), nil
}

// CreateIndex writes a fresh index containing the given ids.
func (s *Store) CreateIndex(_ context.Context, gameIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.index = slices.Clone(gameIDs)
	s.hasIndex = true
	return nil
}

// AppendToIndex appends gameID to the index unless it is already present.
func (s *Store) AppendToIndex(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if !s.hasIndex {
		s.index = []string{gameID}
		s.hasIndex = true
		return nil
	}
	if slices.Contains(s.index, gameID) {
		return nil
	}
	s.index = append(s.index, gameID)
	return nil
}

// Package storage defines the durable document contract for game sessions.
//
// The backing store exposes only per-key atomic primitives: a document read,
// a document write, and an array append on the shared session index. There is
// no multi-key transaction, so higher layers reconcile with repair-on-read
// instead of locking.
package storage

import (
	"context"

	apperrors "github.com/Honey-Be/trlg-statemachine/internal/platform/errors"
)

// PlayerSlots is the number of player seats supported by the TRLG board.
const PlayerSlots = 4

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such session"
// states and transport or store failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// SessionRecord is the durable document for one game session.
//
// Snapshot is an opaque serialized engine context; the storage layer never
// interprets it. The JSON field names match the documents written by earlier
// deployments so stores remain readable across versions.
type SessionRecord struct {
	Initialized    bool                `json:"initialized"`
	Snapshot       string              `json:"snapshotJSON"`
	PlayerAccounts [PlayerSlots]string `json:"playerAccounts"`
}

// DocumentStore exposes the three per-key atomic operations the session
// runtime composes its registration and persistence protocols from.
//
// Each operation is individually atomic; none compose into a larger
// transaction. AppendToIndex must not add a duplicate entry for an id that
// is already present when the implementation can enforce that on its own
// key (SQLite can; Redis relies on the caller's membership check).
type DocumentStore interface {
	// GetDocument returns the session document for gameID, or ErrNotFound.
	GetDocument(ctx context.Context, gameID string) (SessionRecord, error)
	// SetDocument writes the full session document for gameID.
	SetDocument(ctx context.Context, gameID string, record SessionRecord) error
	// GetIndex returns all known session ids in insertion order, or
	// ErrNotFound when the index key has never been written.
	GetIndex(ctx context.Context) ([]string, error)
	// CreateIndex writes a fresh index containing the given ids.
	CreateIndex(ctx context.Context, gameIDs ...string) error
	// AppendToIndex appends gameID to the existing index.
	AppendToIndex(ctx context.Context, gameID string) error
}

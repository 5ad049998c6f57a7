package session

import (
	"context"
	"errors"
	"slices"

	"github.com/Honey-Be/trlg-statemachine/internal/game/storage"
	apperrors "github.com/Honey-Be/trlg-statemachine/internal/platform/errors"
)

// ErrNotGranted indicates an account that holds no player seat in a session.
var ErrNotGranted = apperrors.New(apperrors.CodePlayNotGranted, "account holds no player seat")

// RegisterOutcome reports how TryRegister reconciled the session document
// and the index. The distinction between repaired and no-op exists for
// observability; all three are success.
type RegisterOutcome int

const (
	// RegisterOutcomeUnspecified represents an invalid outcome value.
	RegisterOutcomeUnspecified RegisterOutcome = iota
	// RegisterCreated means a new document was written and indexed.
	RegisterCreated
	// RegisterIndexRepaired means the document already existed and the
	// missing index entry was reconciled.
	RegisterIndexRepaired
	// RegisterNoop means both the document and its index entry were
	// already present.
	RegisterNoop
)

// String returns the outcome label used in logs and client payloads.
func (o RegisterOutcome) String() string {
	switch o {
	case RegisterCreated:
		return "created"
	case RegisterIndexRepaired:
		return "index_repaired"
	case RegisterNoop:
		return "noop"
	default:
		return "unspecified"
	}
}

// Adapter bridges the in-memory cache entry for one session to the remote
// document store. It exclusively owns that cache entry: callers only ever
// see defensive copies through Document.
type Adapter struct {
	gameID string
	cache  *Cache
	store  storage.DocumentStore
}

// NewAdapter creates an adapter for gameID over the shared cache and store.
// The cache entry is created by Load or TryRegister, not by construction.
func NewAdapter(gameID string, cache *Cache, store storage.DocumentStore) *Adapter {
	return &Adapter{gameID: gameID, cache: cache, store: store}
}

// GameID returns the session id this adapter serves.
func (a *Adapter) GameID() string {
	return a.gameID
}

// Load reconciles the cache entry with the remote store.
//
// A remote document wins over whatever the cache holds. When the remote
// store has no document, the cached entry is pushed to it instead; this is
// the path that makes a just-registered in-memory document durable. With
// neither side holding a document, Load reports not-found.
func (a *Adapter) Load(ctx context.Context) error {
	remote, err := a.store.GetDocument(ctx, a.gameID)
	if err == nil {
		a.cache.put(a.gameID, remote)
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return apperrors.Wrap(apperrors.CodeStoreUnavailable, "load session document", err)
	}

	local, ok := a.cache.get(a.gameID)
	if !ok {
		return apperrors.New(apperrors.CodeNotFound, "session document not found")
	}
	if err := a.store.SetDocument(ctx, a.gameID, local); err != nil {
		return apperrors.Wrap(apperrors.CodeStoreUnavailable, "push session document", err)
	}
	return nil
}

// Persist records a new snapshot locally and writes the full document to the
// remote store. The cache is updated before the remote write is attempted:
// a remote failure is a durability failure only, the process-local view has
// already advanced. The first successful local update flips Initialized to
// true; it never reverts.
func (a *Adapter) Persist(ctx context.Context, snapshot string) error {
	record, _ := a.cache.get(a.gameID)
	record.Snapshot = snapshot
	if !record.Initialized {
		record.Initialized = true
	}
	a.cache.put(a.gameID, record)

	if err := a.store.SetDocument(ctx, a.gameID, record); err != nil {
		return apperrors.Wrap(apperrors.CodeStoreUnavailable, "persist session document", err)
	}
	return nil
}

// Document returns a copy of the cached session document.
func (a *Adapter) Document() storage.SessionRecord {
	record, _ := a.cache.get(a.gameID)
	return record
}

// IsInitialized reports whether the cached document has been persisted at
// least once. Local cache only; no remote round trip.
func (a *Adapter) IsInitialized() bool {
	record, _ := a.cache.get(a.gameID)
	return record.Initialized
}

// IsLoaded reports whether this process holds a cached entry for the
// session. Local cache only; no remote round trip.
func (a *Adapter) IsLoaded() bool {
	return a.cache.has(a.gameID)
}

// TryRegister creates the session document exactly once and reconciles the
// global index, composing only per-key atomic store operations.
//
// When the remote document is absent a fresh one is written and cached with
// the supplied seat accounts and initial snapshot, then the id is ensured in
// the index. When the document already exists (a concurrent or earlier
// registration), only the index is repaired. Partial failures leave the
// store in a state a later TryRegister call reconciles, so store errors are
// retryable.
func (a *Adapter) TryRegister(ctx context.Context, playerAccounts [storage.PlayerSlots]string, initialSnapshot string) (RegisterOutcome, error) {
	_, err := a.store.GetDocument(ctx, a.gameID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		record := storage.SessionRecord{
			Initialized:    false,
			Snapshot:       initialSnapshot,
			PlayerAccounts: playerAccounts,
		}
		a.cache.put(a.gameID, record)
		if err := a.store.SetDocument(ctx, a.gameID, record); err != nil {
			return RegisterOutcomeUnspecified, apperrors.Wrap(apperrors.CodeStoreUnavailable, "create session document", err)
		}
		if _, err := a.ensureIndexed(ctx); err != nil {
			return RegisterOutcomeUnspecified, err
		}
		return RegisterCreated, nil

	case err != nil:
		return RegisterOutcomeUnspecified, apperrors.Wrap(apperrors.CodeStoreUnavailable, "check session document", err)

	default:
		// The document exists; only the index may need repair. The
		// stored seats are deliberately left untouched.
		added, err := a.ensureIndexed(ctx)
		if err != nil {
			return RegisterOutcomeUnspecified, err
		}
		if added {
			return RegisterIndexRepaired, nil
		}
		return RegisterNoop, nil
	}
}

// ensureIndexed makes the session id present in the index exactly once.
// Membership is re-checked on every call rather than assumed, since any
// session's adapter may be repairing the shared index concurrently.
func (a *Adapter) ensureIndexed(ctx context.Context) (added bool, err error) {
	ids, err := a.store.GetIndex(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		if err := a.store.CreateIndex(ctx, a.gameID); err != nil {
			return false, apperrors.Wrap(apperrors.CodeStoreUnavailable, "create session index", err)
		}
		return true, nil
	}
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeStoreUnavailable, "read session index", err)
	}
	if slices.Contains(ids, a.gameID) {
		return false, nil
	}
	if err := a.store.AppendToIndex(ctx, a.gameID); err != nil {
		return false, apperrors.Wrap(apperrors.CodeStoreUnavailable, "append session index", err)
	}
	return true, nil
}

// ResolveAccountSlot returns the player seat bound to account in the cached
// document. It is a pure function of the document's seat assignments.
func (a *Adapter) ResolveAccountSlot(account string) (int, error) {
	record, ok := a.cache.get(a.gameID)
	if !ok {
		return 0, apperrors.New(apperrors.CodeSessionNotLoaded, "session is not loaded")
	}
	for slot, seat := range record.PlayerAccounts {
		if seat != "" && seat == account {
			return slot, nil
		}
	}
	return 0, ErrNotGranted
}

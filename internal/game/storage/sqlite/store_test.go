package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Honey-Be/trlg-statemachine/internal/game/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "trlg.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestDocumentRoundTrip(t *testing.T) {
	store := openTestStore(t)
	record := storage.SessionRecord{
		Initialized:    true,
		Snapshot:       `{"state":"playing"}`,
		PlayerAccounts: [storage.PlayerSlots]string{"a", "b", "", ""},
	}

	if err := store.SetDocument(context.Background(), "g1", record); err != nil {
		t.Fatalf("set document: %v", err)
	}
	got, err := store.GetDocument(context.Background(), "g1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got != record {
		t.Fatalf("document = %+v, want %+v", got, record)
	}
}

func TestGetDocumentMissingReturnsNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetDocument(context.Background(), "g-missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetDocumentOverwritesExisting(t *testing.T) {
	store := openTestStore(t)
	first := storage.SessionRecord{Snapshot: "v1", PlayerAccounts: [storage.PlayerSlots]string{"a", "b", "c", "d"}}
	second := storage.SessionRecord{Initialized: true, Snapshot: "v2", PlayerAccounts: first.PlayerAccounts}

	if err := store.SetDocument(context.Background(), "g1", first); err != nil {
		t.Fatalf("set first: %v", err)
	}
	if err := store.SetDocument(context.Background(), "g1", second); err != nil {
		t.Fatalf("set second: %v", err)
	}
	got, err := store.GetDocument(context.Background(), "g1")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got != second {
		t.Fatalf("document = %+v, want %+v", got, second)
	}
}

func TestIndexAppendIsIdempotent(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.GetIndex(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected empty index to report not found, got %v", err)
	}

	if err := store.AppendToIndex(context.Background(), "g1"); err != nil {
		t.Fatalf("append g1: %v", err)
	}
	if err := store.AppendToIndex(context.Background(), "g1"); err != nil {
		t.Fatalf("append g1 again: %v", err)
	}
	if err := store.AppendToIndex(context.Background(), "g2"); err != nil {
		t.Fatalf("append g2: %v", err)
	}

	ids, err := store.GetIndex(context.Background())
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	if len(ids) != 2 || ids[0] != "g1" || ids[1] != "g2" {
		t.Fatalf("index = %v, want [g1 g2]", ids)
	}
}

func TestCreateIndexReplacesContents(t *testing.T) {
	store := openTestStore(t)

	if err := store.AppendToIndex(context.Background(), "stale"); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	if err := store.CreateIndex(context.Background(), "g1", "g2"); err != nil {
		t.Fatalf("create index: %v", err)
	}

	ids, err := store.GetIndex(context.Background())
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	if len(ids) != 2 || ids[0] != "g1" || ids[1] != "g2" {
		t.Fatalf("index = %v, want [g1 g2]", ids)
	}
}

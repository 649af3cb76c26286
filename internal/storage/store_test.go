package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "bridge.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLoadReturnsFalseWhenEmpty(t *testing.T) {
	store := newTestStore(t)

	_, found, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if found {
		t.Fatal("Load() found = true, want false for fresh database")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := AccountEntry{Email: "user@example.com", Token: "session-token"}
	if err := store.Save(ctx, entry); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, found, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !found {
		t.Fatal("Load() found = false, want true")
	}
	if got.Email != entry.Email || got.Token != entry.Token {
		t.Fatalf("Load() = %+v, want %+v", got, entry)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt is zero, want timestamp set on save")
	}
}

func TestSaveOverwritesSingleEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, AccountEntry{Email: "a@example.com", Token: "t1"}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := store.Save(ctx, AccountEntry{Email: "b@example.com", Token: "t2"}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, _, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Email != "b@example.com" || got.Token != "t2" {
		t.Fatalf("Load() = %+v, want the second entry", got)
	}
}

func TestClearTokenKeepsAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, AccountEntry{Email: "user@example.com", Token: "session-token"}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := store.ClearToken(ctx); err != nil {
		t.Fatalf("ClearToken() error: %v", err)
	}

	got, found, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !found {
		t.Fatal("Load() found = false, want account row kept")
	}
	if got.Token != "" {
		t.Fatalf("Token = %q, want empty after ClearToken", got.Token)
	}
	if got.Email != "user@example.com" {
		t.Fatalf("Email = %q, want preserved", got.Email)
	}
}

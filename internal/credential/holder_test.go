package credential

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestHolderSetTrimsAndPersists(t *testing.T) {
	ctx := context.Background()
	store := NewBoltStore(filepath.Join(t.TempDir(), "weaver.bolt"))
	holder := NewHolder(store)

	if err := holder.Set(ctx, "  secret-key  "); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	if got := holder.Current(); got != "secret-key" {
		t.Fatalf("unexpected credential: %q", got)
	}

	reopened := NewHolder(NewBoltStore(store.Path()))
	if err := reopened.Restore(ctx, ""); err != nil {
		t.Fatalf("Restore err: %v", err)
	}
	if got := reopened.Current(); got != "secret-key" {
		t.Fatalf("expected persisted credential, got %q", got)
	}
}

func TestHolderRejectsBlank(t *testing.T) {
	holder := NewHolder(nil)
	if err := holder.Set(context.Background(), "   "); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if holder.Configured() {
		t.Fatal("holder should stay unconfigured")
	}
}

func TestHolderRestoreFallback(t *testing.T) {
	ctx := context.Background()
	holder := NewHolder(NewBoltStore(filepath.Join(t.TempDir(), "missing", "weaver.bolt")))

	if err := holder.Restore(ctx, "from-env"); err != nil {
		t.Fatalf("Restore err: %v", err)
	}
	if got := holder.Current(); got != "from-env" {
		t.Fatalf("expected fallback credential, got %q", got)
	}
}

func TestHolderClear(t *testing.T) {
	ctx := context.Background()
	store := NewBoltStore(filepath.Join(t.TempDir(), "weaver.bolt"))
	holder := NewHolder(store)

	if err := holder.Set(ctx, "secret-key"); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	if err := holder.Clear(ctx); err != nil {
		t.Fatalf("Clear err: %v", err)
	}
	if holder.Configured() {
		t.Fatal("expected credential to be cleared")
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestCredentialMasked(t *testing.T) {
	if got := Credential("AIzaSyExampleKey1234").Masked(); got != "AIza************1234" {
		t.Fatalf("unexpected mask: %s", got)
	}
	if got := Credential("short").Masked(); got != "*****" {
		t.Fatalf("unexpected short mask: %s", got)
	}
}

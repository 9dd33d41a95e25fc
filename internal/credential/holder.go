package credential

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Holder keeps the current credential in memory and mirrors changes to a Store.
// Callers read it once per operation with Current and pass the value along.
type Holder struct {
	mu      sync.RWMutex
	current Credential
	store   Store
}

// NewHolder returns a Holder backed by store. A nil store keeps the credential
// in memory only.
func NewHolder(store Store) *Holder {
	return &Holder{store: store}
}

// Restore loads the persisted credential, falling back to the supplied value
// when nothing has been stored yet.
func (h *Holder) Restore(ctx context.Context, fallback Credential) error {
	var loaded Credential
	if h.store != nil {
		cred, err := h.store.Load(ctx)
		switch {
		case err == nil:
			loaded = cred
		case errors.Is(err, ErrNotFound):
		default:
			return fmt.Errorf("restore credential: %w", err)
		}
	}

	if loaded.Empty() {
		loaded = fallback
	}

	h.mu.Lock()
	h.current = loaded
	h.mu.Unlock()

	if !loaded.Empty() {
		log.Printf("[credential] restored credential %s", loaded.Masked())
	}
	return nil
}

// Current returns the credential in effect.
func (h *Holder) Current() Credential {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Configured reports whether a credential is available.
func (h *Holder) Configured() bool {
	return !h.Current().Empty()
}

// Set replaces the credential and persists it.
func (h *Holder) Set(ctx context.Context, raw string) error {
	cred, err := Parse(raw)
	if err != nil {
		return err
	}

	if h.store != nil {
		if err := h.store.Save(ctx, cred); err != nil {
			return fmt.Errorf("persist credential: %w", err)
		}
	}

	h.mu.Lock()
	h.current = cred
	h.mu.Unlock()

	log.Printf("[credential] stored credential %s", cred.Masked())
	return nil
}

// Clear forgets the credential in memory and in the store.
func (h *Holder) Clear(ctx context.Context) error {
	if h.store != nil {
		if err := h.store.Delete(ctx); err != nil {
			return fmt.Errorf("delete credential: %w", err)
		}
	}

	h.mu.Lock()
	h.current = ""
	h.mu.Unlock()
	return nil
}

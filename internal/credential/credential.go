// Package credential captures and persists the access credential used for
// every call to the AI provider.
package credential

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrEmpty    = errors.New("credential is empty")
	ErrNotFound = errors.New("credential not found")
)

// Credential is an opaque access token supplied by the user.
type Credential string

// Parse trims raw input and rejects blank values.
func Parse(raw string) (Credential, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", ErrEmpty
	}
	return Credential(value), nil
}

// Empty reports whether the credential carries no usable value.
func (c Credential) Empty() bool {
	return strings.TrimSpace(string(c)) == ""
}

// Masked returns a representation safe for logs and terminal output.
func (c Credential) Masked() string {
	value := string(c)
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// Store persists a single credential under a fixed key.
type Store interface {
	Load(ctx context.Context) (Credential, error)
	Save(ctx context.Context, cred Credential) error
	Delete(ctx context.Context) error
}

package credential

import (
	"context"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketName = "credentials"
	// StorageKey is the fixed key the credential is persisted under.
	StorageKey = "gemini-api-key"
)

// BoltStore persists the credential in a BoltDB file. The database is opened
// per operation so the CLI and the server can share the same file.
type BoltStore struct {
	path string
}

// NewBoltStore returns a store writing to path, creating parent directories on demand.
func NewBoltStore(path string) *BoltStore {
	return &BoltStore{path: path}
}

// Path returns the database file location.
func (s *BoltStore) Path() string {
	return s.path
}

func (s *BoltStore) open(timeout time.Duration) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, err
	}
	return bolt.Open(s.path, 0o600, &bolt.Options{Timeout: timeout})
}

// Load reads the stored credential.
func (s *BoltStore) Load(_ context.Context) (Credential, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return "", ErrNotFound
	}

	db, err := s.open(time.Second)
	if err != nil {
		return "", err
	}
	defer func() { _ = db.Close() }()

	var cred Credential
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(StorageKey))
		if len(v) == 0 {
			return ErrNotFound
		}
		cred = Credential(string(v))
		return nil
	})
	if err != nil {
		return "", err
	}
	return cred, nil
}

// Save writes the credential, replacing any previous value.
func (s *BoltStore) Save(_ context.Context, cred Credential) error {
	if cred.Empty() {
		return ErrEmpty
	}

	db, err := s.open(2 * time.Second)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		return b.Put([]byte(StorageKey), []byte(cred))
	})
}

// Delete removes the stored credential. Deleting a missing credential is not an error.
func (s *BoltStore) Delete(_ context.Context) error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}

	db, err := s.open(2 * time.Second)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(StorageKey))
	})
}

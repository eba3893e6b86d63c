// Package keystore manages the AES-256 key used to encrypt the persisted
// event queue at rest. The default implementations store the key on the
// local filesystem or in memory; a host application embedding the pipeline
// on a platform with a secure credential store (macOS Keychain, Windows
// Credential Manager, a secrets manager) should implement KeyStore itself.
package keystore

import (
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"sync"

	agenterrors "github.com/luxardolabs/luxanalytics-go/internal/errors"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// KeyStore produces and retires the at-rest encryption key for the event
// queue. GetOrCreate must be safe for concurrent use and must return the
// same key on every call until Delete is invoked.
type KeyStore interface {
	GetOrCreate(ctx context.Context) ([KeySize]byte, error)
	Delete(ctx context.Context) error
}

// FileKeyStore persists the key as a single file under Dir, created with
// owner-only permissions.
type FileKeyStore struct {
	Dir string

	mu sync.Mutex
}

// NewFileKeyStore returns a FileKeyStore rooted at dir.
func NewFileKeyStore(dir string) *FileKeyStore {
	return &FileKeyStore{Dir: dir}
}

func (f *FileKeyStore) path() string {
	return filepath.Join(f.Dir, "queue.key")
}

// GetOrCreate reads the key file if present, or generates and persists a new
// random key.
func (f *FileKeyStore) GetOrCreate(ctx context.Context) ([KeySize]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var key [KeySize]byte

	if err := ctx.Err(); err != nil {
		return key, err
	}

	data, err := os.ReadFile(f.path())
	if err == nil {
		if len(data) != KeySize {
			return key, agenterrors.ErrKeyStoreUnavailable
		}
		copy(key[:], data)
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return key, agenterrors.ErrKeyStoreUnavailable
	}

	if _, err := rand.Read(key[:]); err != nil {
		return key, agenterrors.ErrKeyStoreUnavailable
	}

	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return key, agenterrors.ErrKeyStoreUnavailable
	}
	if err := os.WriteFile(f.path(), key[:], 0o600); err != nil {
		return key, agenterrors.ErrKeyStoreUnavailable
	}

	return key, nil
}

// Delete removes the key file, invalidating any data encrypted with it.
func (f *FileKeyStore) Delete(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(f.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return agenterrors.ErrKeyStoreUnavailable
	}
	return nil
}

// MemoryKeyStore holds the key only in process memory, generating a fresh
// key on first use within a process lifetime. Suitable for tests and for
// hosts that intentionally re-encrypt with a new key on every restart.
type MemoryKeyStore struct {
	mu  sync.Mutex
	key *[KeySize]byte
}

// NewMemoryKeyStore returns an empty MemoryKeyStore.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{}
}

// GetOrCreate returns the in-memory key, generating it on first call.
func (m *MemoryKeyStore) GetOrCreate(ctx context.Context) ([KeySize]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero [KeySize]byte
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	if m.key == nil {
		var k [KeySize]byte
		if _, err := rand.Read(k[:]); err != nil {
			return zero, agenterrors.ErrKeyStoreUnavailable
		}
		m.key = &k
	}

	return *m.key, nil
}

// Delete clears the in-memory key.
func (m *MemoryKeyStore) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	m.key = nil
	return nil
}

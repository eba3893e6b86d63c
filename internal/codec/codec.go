// Package codec serializes the queue's events to the encrypted blob format
// persisted to disk between process restarts.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"io"

	agenterrors "github.com/luxardolabs/luxanalytics-go/internal/errors"
	"github.com/luxardolabs/luxanalytics-go/pkg/model"
)

// Encode marshals events to JSON and seals them with AES-256-GCM under key,
// returning nonce||ciphertext||tag.
func Encode(events []model.QueuedEvent, key [32]byte) ([]byte, error) {
	plaintext, err := json.Marshal(events)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, agenterrors.ErrEncryptionFailed
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, agenterrors.ErrEncryptionFailed
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decode opens a blob produced by Encode. If GCM authentication fails, it
// falls back to parsing data as plain JSON, so a queue file written before
// encryption was introduced can still be migrated forward instead of being
// discarded outright. The returned bool reports whether that legacy fallback
// was the path that succeeded, so callers can re-persist under the current
// scheme instead of leaving the migrated data in plaintext on disk.
func Decode(data []byte, key [32]byte) ([]model.QueuedEvent, bool, error) {
	events, err := decodeSealed(data, key)
	if err == nil {
		return events, false, nil
	}

	var legacy []model.QueuedEvent
	if jsonErr := json.Unmarshal(data, &legacy); jsonErr == nil {
		return legacy, true, nil
	}

	return nil, false, agenterrors.ErrDecryptionFailed
}

func decodeSealed(data []byte, key [32]byte) ([]model.QueuedEvent, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, agenterrors.ErrDecryptionFailed
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, agenterrors.ErrDecryptionFailed
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, agenterrors.ErrDecryptionFailed
	}

	var events []model.QueuedEvent
	if err := json.Unmarshal(plaintext, &events); err != nil {
		return nil, agenterrors.ErrDecryptionFailed
	}

	return events, nil
}

func newGCM(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

package keysign

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// FileBackend is a Backend that keeps secp256k1 private keys in process
// memory, keyed by keyID. It exists for operators who have not yet wired
// a remote KMS, and for the settlement executor's integration tests. It
// is not a substitute for a real HSM/KMS in production.
type FileBackend struct {
	mu   sync.RWMutex
	keys map[string]*btcec.PrivateKey

	// generation tracks the rotation suffix appended to a rotated
	// keyID, e.g. "peer-7" -> "peer-7#1".
	generation map[string]int
}

// NewFileBackend returns an empty FileBackend. Keys are created lazily on
// first use of a previously unseen keyID, mirroring the way a file-backed
// signer in the pack (e.g. a receipt signer loading a key from disk on
// demand) behaves when no key material has been provisioned yet.
func NewFileBackend() *FileBackend {
	return &FileBackend{
		keys:       make(map[string]*btcec.PrivateKey),
		generation: make(map[string]int),
	}
}

// Seed installs an explicit private key for keyID, for tests that need
// deterministic key material.
func (f *FileBackend) Seed(keyID string, priv *btcec.PrivateKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[keyID] = priv
}

func (f *FileBackend) keyFor(keyID string) (*btcec.PrivateKey, error) {
	f.mu.RLock()
	priv, ok := f.keys[keyID]
	f.mu.RUnlock()
	if ok {
		return priv, nil
	}

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, &BackendError{
			Kind:       ErrBackendUnavailable,
			Diagnostic: err.Error(),
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// Another goroutine may have created the same keyID concurrently;
	// keep whichever key won the race so Sign/GetPublicKey stay
	// consistent with each other.
	if existing, ok := f.keys[keyID]; ok {
		return existing, nil
	}
	f.keys[keyID] = priv
	return priv, nil
}

// Sign hashes message with SHA-256 and produces a deterministic (RFC6979)
// ECDSA signature under keyID, creating the key on first use.
func (f *FileBackend) Sign(_ context.Context, keyID string, message []byte) ([]byte, error) {
	priv, err := f.keyFor(keyID)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(message)
	sig := ecdsa.Sign(priv, digest[:])
	return sig.Serialize(), nil
}

// GetPublicKey returns the 33-byte SEC1 compressed public key for keyID,
// btcec's canonical serialization. The result is not DER-encoded: it is
// the bare compressed point, not wrapped in a SubjectPublicKeyInfo.
func (f *FileBackend) GetPublicKey(_ context.Context, keyID string) ([]byte, error) {
	priv, err := f.keyFor(keyID)
	if err != nil {
		return nil, err
	}

	pub := priv.PubKey().SerializeCompressed()
	if len(pub) == 0 {
		return nil, &BackendError{Kind: ErrEmptyResult}
	}
	return pub, nil
}

// RotateKey creates a fresh private key and returns a new keyID derived
// from the prior one plus a monotonically increasing generation suffix.
func (f *FileBackend) RotateKey(_ context.Context, keyID string) (string, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", &BackendError{
			Kind:       ErrBackendUnavailable,
			Diagnostic: err.Error(),
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.generation[keyID]++
	newKeyID := fmt.Sprintf("%s#%d", keyID, f.generation[keyID])
	f.keys[newKeyID] = priv

	return newKeyID, nil
}

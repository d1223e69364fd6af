// Package keysign abstracts the signing backends capable of producing
// balance-proof signatures on behalf of the settlement executor. Concrete
// backends (cloud KMS, file-backed, HSM) are polymorphic over the
// Backend capability set; the executor never knows which one it is
// talking to.
package keysign

import "context"

// ErrKind classifies a signing-backend failure so the settlement
// executor can decide whether to retry.
type ErrKind uint8

const (
	// ErrBackendUnavailable means the remote signer could not be reached
	// or timed out; transient, safe to retry.
	ErrBackendUnavailable ErrKind = iota

	// ErrPermissionDenied means the caller is not authorized to use
	// keyID; terminal.
	ErrPermissionDenied

	// ErrEmptyResult means the backend returned a success response with
	// no signature/key bytes; treated as terminal since retrying an
	// identical request is expected to reproduce it.
	ErrEmptyResult
)

// BackendError carries the classified failure plus the remote
// diagnostic, if any, that the backend supplied verbatim.
type BackendError struct {
	Kind       ErrKind
	Diagnostic string
}

func (e *BackendError) Error() string {
	if e.Diagnostic == "" {
		return e.Kind.label()
	}
	return e.Kind.label() + ": " + e.Diagnostic
}

func (k ErrKind) label() string {
	switch k {
	case ErrBackendUnavailable:
		return "signing backend unavailable"
	case ErrPermissionDenied:
		return "permission denied"
	case ErrEmptyResult:
		return "empty result from signing backend"
	default:
		return "signing backend error"
	}
}

// Retryable reports whether the settlement executor should retry a
// request that failed with this kind of error.
func (e *BackendError) Retryable() bool {
	return e.Kind == ErrBackendUnavailable
}

// Backend is the capability set a signing backend must expose. The
// contract is deliberately narrow: "produce a signature over message
// using the key identified by keyID" — the backend is free to hash
// internally before the asymmetric signing step.
type Backend interface {
	// Sign returns a signature over message using keyID.
	Sign(ctx context.Context, keyID string, message []byte) ([]byte, error)

	// GetPublicKey returns the DER-encoded public key for keyID, with any
	// PEM armor stripped.
	GetPublicKey(ctx context.Context, keyID string) ([]byte, error)

	// RotateKey creates a new key version for keyID and returns the
	// identifier callers must use for subsequent Sign calls.
	RotateKey(ctx context.Context, keyID string) (newKeyID string, err error)
}

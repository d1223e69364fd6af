package keysign_test

import (
	"context"
	"testing"

	"github.com/ilpfi/connectord/keysign"
	"github.com/stretchr/testify/require"
)

func TestFileBackendSignReusesKey(t *testing.T) {
	backend := keysign.NewFileBackend()
	ctx := context.Background()

	pub, err := backend.GetPublicKey(ctx, "peer-7")
	require.NoError(t, err)
	require.NotEmpty(t, pub)

	sig, err := backend.Sign(ctx, "peer-7", []byte("digest-bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	// Signing under an existing keyID must reuse that key, not mint a
	// new one silently.
	pub2, err := backend.GetPublicKey(ctx, "peer-7")
	require.NoError(t, err)
	require.Equal(t, pub, pub2)
}

func TestFileBackendRotateKeyProducesNewIdentity(t *testing.T) {
	backend := keysign.NewFileBackend()
	ctx := context.Background()

	original, err := backend.GetPublicKey(ctx, "peer-7")
	require.NoError(t, err)

	rotated, err := backend.RotateKey(ctx, "peer-7")
	require.NoError(t, err)
	require.NotEqual(t, "peer-7", rotated)

	rotatedPub, err := backend.GetPublicKey(ctx, rotated)
	require.NoError(t, err)
	require.NotEqual(t, original, rotatedPub)
}

func TestMockBackendRetryInjection(t *testing.T) {
	backend := keysign.NewMockBackend()
	ctx := context.Background()

	failErr := &keysign.BackendError{Kind: keysign.ErrBackendUnavailable}
	backend.FailNextSignCalls(2, failErr)

	_, err := backend.Sign(ctx, "peer-7", []byte("msg"))
	require.ErrorIs(t, err, error(failErr))

	_, err = backend.Sign(ctx, "peer-7", []byte("msg"))
	require.Error(t, err)

	sig, err := backend.Sign(ctx, "peer-7", []byte("msg"))
	require.NoError(t, err)
	require.NotEmpty(t, sig)
	require.Equal(t, 3, backend.SignCallCount())
}

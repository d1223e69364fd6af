package keysign

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MockBackend is a deterministic, in-memory Backend used by the
// settlement executor's tests. It counts Sign calls so tests can assert
// on them, and can be configured to fail the next N Sign calls with a
// given error to exercise the executor's retry policy.
type MockBackend struct {
	mu sync.Mutex

	signCalls   int
	failUntil   int
	failWith    error
	rotateCount uint64
}

// NewMockBackend returns a MockBackend with no injected failures.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// FailNextSignCalls makes the next n calls to Sign return err, after
// which Sign succeeds again. Used to exercise §4.5's bounded retry.
func (m *MockBackend) FailNextSignCalls(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUntil = n
	m.failWith = err
}

// SignCallCount returns how many times Sign has been invoked.
func (m *MockBackend) SignCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signCalls
}

// Sign returns a fixed-format fake signature ("mocksig:<keyID>:<len>")
// deterministic in keyID and message length, unless a configured failure
// is pending.
func (m *MockBackend) Sign(_ context.Context, keyID string, message []byte) ([]byte, error) {
	m.mu.Lock()
	m.signCalls++
	if m.failUntil > 0 {
		m.failUntil--
		err := m.failWith
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	return []byte(fmt.Sprintf("mocksig:%s:%d", keyID, len(message))), nil
}

// GetPublicKey returns a fixed fake DER-ish blob derived from keyID.
func (m *MockBackend) GetPublicKey(_ context.Context, keyID string) ([]byte, error) {
	return []byte("mockpub:" + keyID), nil
}

// RotateKey returns a new keyID suffixed with a monotonic counter.
func (m *MockBackend) RotateKey(_ context.Context, keyID string) (string, error) {
	n := atomic.AddUint64(&m.rotateCount, 1)
	return fmt.Sprintf("%s#%d", keyID, n), nil
}

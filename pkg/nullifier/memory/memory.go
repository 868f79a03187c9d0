package memory

import (
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/subset-labs/zk-membership-go/pkg/nullifier"
)

// MemoryRegistry is an in-memory replay guard. Intended for TESTING ONLY:
// all spent nullifiers are forgotten when the process exits, so a replay
// after restart would be accepted.
//
// The test-and-set in Use is made atomic by a single mutex.
type MemoryRegistry struct {
	mu     sync.Mutex
	used   map[[32]byte]struct{}
	closed bool
}

var _ nullifier.Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an in-memory replay guard.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		used: make(map[[32]byte]struct{}),
	}
}

// Use marks a nullifier as spent; test and set happen under one lock.
func (m *MemoryRegistry) Use(n fr.Element) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("nullifier registry is closed")
	}

	key := n.Bytes()
	if _, exists := m.used[key]; exists {
		return nullifier.ErrAlreadyUsed
	}
	m.used[key] = struct{}{}
	return nil
}

// IsUsed reports whether a nullifier has been spent.
func (m *MemoryRegistry) IsUsed(n fr.Element) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, fmt.Errorf("nullifier registry is closed")
	}

	_, exists := m.used[n.Bytes()]
	return exists, nil
}

// Close shuts down the registry.
func (m *MemoryRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the registry is operational.
func (m *MemoryRegistry) HealthCheck() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("nullifier registry is closed")
	}
	return nil
}

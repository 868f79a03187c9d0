// Package nullifier defines the replay guard: a set of previously seen
// nullifiers with an atomic test-and-set. The circuit only produces
// nullifier values; uniqueness is enforced here, by the storage the
// verifying collaborator checks against.
package nullifier

import (
	"errors"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// ErrAlreadyUsed is returned when a nullifier has been spent before.
// This is a security-relevant rejection and is kept distinct from proof
// verification failures so operators can detect replay attempts.
var ErrAlreadyUsed = errors.New("nullifier already used")

// Registry is the replay-guard store. All implementations must make Use
// atomic: two concurrent calls with the same nullifier must not both
// succeed.
type Registry interface {
	// Use marks a nullifier as spent. Exactly one call per nullifier
	// succeeds over the registry's lifetime; every later call returns
	// ErrAlreadyUsed. Other errors indicate storage failure.
	Use(n fr.Element) error

	// IsUsed reports whether a nullifier has been spent, without
	// marking it. Returns error only on storage failure.
	IsUsed(n fr.Element) (bool, error)

	// Close cleanly shuts down the registry. Idempotent; after Close,
	// all other operations return errors.
	Close() error

	// HealthCheck verifies the registry is operational. Should be
	// called during startup to fail fast.
	HealthCheck() error
}

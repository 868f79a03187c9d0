// Package circuit defines the arithmetic constraint system for membership
// proofs: knowledge of a secret whose commitment sits in a Merkle tree
// with a public root, together with a public nullifier bound to the same
// secret.
package circuit

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// MembershipCircuit proves, for structural depth D = len(Siblings):
//
//   - each direction bit is boolean,
//   - climbing the tree from leaf = H(Secret) with the supplied siblings
//     and directions reaches exactly Root,
//   - Nullifier = H(Secret).
//
// The depth is a structural parameter fixed at compile time; the climb is
// fully unrolled, there is no data-dependent iteration.
//
// Note: the nullifier uses the same hash and the same input as the leaf
// commitment, so leaf == nullifier by construction. This follows the
// reference derivation and deliberately has no domain separation between
// the membership commitment and the replay token; instantiating systems
// should review it before relying on unlinkability.
type MembershipCircuit struct {
	// Public inputs
	Root      frontend.Variable `gnark:",public"`
	Nullifier frontend.Variable `gnark:",public"`

	// Private inputs
	Secret     frontend.Variable
	Siblings   []frontend.Variable
	Directions []frontend.Variable
}

// NewMembershipCircuit allocates a circuit shell of the given depth,
// suitable both for compilation and as a witness assignment template.
func NewMembershipCircuit(depth int) *MembershipCircuit {
	return &MembershipCircuit{
		Siblings:   make([]frontend.Variable, depth),
		Directions: make([]frontend.Variable, depth),
	}
}

// Depth returns the structural depth of the circuit.
func (c *MembershipCircuit) Depth() int {
	return len(c.Siblings)
}

// Define declares the constraints.
func (c *MembershipCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	// leaf = H(secret)
	h.Reset()
	h.Write(c.Secret)
	current := h.Sum()

	// nullifier = H(secret), same derivation as the leaf (see type doc)
	h.Reset()
	h.Write(c.Secret)
	api.AssertIsEqual(h.Sum(), c.Nullifier)

	// Climb to the root. Constraint systems have no branching, so the
	// left/right swap at each level is a linear multiplexer gated by a
	// boolean-constrained selector:
	//
	//   left  = current*(1-d) + sibling*d
	//   right = sibling*(1-d) + current*d
	//
	// The boolean constraint on d is not optional: without it a prover
	// could pick a non-binary d that satisfies the selection equations
	// with an invalid path.
	for i := 0; i < len(c.Siblings); i++ {
		d := c.Directions[i]
		api.AssertIsBoolean(d)

		notD := api.Sub(1, d)
		left := api.Add(api.Mul(current, notD), api.Mul(c.Siblings[i], d))
		right := api.Add(api.Mul(c.Siblings[i], notD), api.Mul(current, d))

		h.Reset()
		h.Write(left, right)
		current = h.Sum()
	}

	api.AssertIsEqual(current, c.Root)
	return nil
}

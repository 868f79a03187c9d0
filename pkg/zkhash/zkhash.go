// Package zkhash provides the host-side algebraic hash used for leaf
// commitments, nullifiers and tree nodes.
//
// The hash is MiMC over the BN254 scalar field, chosen because it is the
// cheapest option inside an arithmetic circuit. The functions here must
// produce byte-for-byte the same digests as the in-circuit MiMC gadget
// (gnark std/hash/mimc); both sides consume 32-byte big-endian field
// elements.
package zkhash

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	_ "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc" // registers hash.MIMC_BN254
	"github.com/consensys/gnark-crypto/hash"
)

// Sum1 hashes a single field element: H(x).
// Used to derive both the leaf commitment and the nullifier from a secret.
func Sum1(x fr.Element) fr.Element {
	h := hash.MIMC_BN254.New()
	xb := x.Bytes()
	_, _ = h.Write(xb[:])

	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

// Sum2 hashes an ordered pair of field elements: H(left, right).
// Used for every interior tree node.
func Sum2(left, right fr.Element) fr.Element {
	h := hash.MIMC_BN254.New()
	lb := left.Bytes()
	rb := right.Bytes()
	_, _ = h.Write(lb[:])
	_, _ = h.Write(rb[:])

	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

// ZeroHashes precomputes the hash of an all-empty subtree for each level.
// zeros[0] is the zero field element (the empty leaf); zeros[l+1] is
// H(zeros[l], zeros[l]). The returned slice has depth entries, one per
// tree level.
func ZeroHashes(depth int) []fr.Element {
	zeros := make([]fr.Element, depth)
	// zeros[0] is already the zero element
	for l := 1; l < depth; l++ {
		zeros[l] = Sum2(zeros[l-1], zeros[l-1])
	}
	return zeros
}

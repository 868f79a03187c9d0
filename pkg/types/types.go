package types

import (
	"encoding/json"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EncodeElement renders a field element as a 0x-prefixed 32-byte hex string.
// This is the canonical wire encoding for roots, leaves and nullifiers.
func EncodeElement(e fr.Element) string {
	b := e.Bytes()
	return hexutil.Encode(b[:])
}

// DecodeElement parses a 0x-prefixed hex string into a field element.
// The value must be exactly 32 bytes and canonical (strictly below the
// field modulus); non-canonical values are rejected rather than reduced.
func DecodeElement(s string) (fr.Element, error) {
	var e fr.Element

	b, err := hexutil.Decode(s)
	if err != nil {
		return e, fmt.Errorf("invalid field element encoding: %w", err)
	}
	if len(b) != fr.Bytes {
		return e, fmt.Errorf("field element must be %d bytes, got %d", fr.Bytes, len(b))
	}
	if err := e.SetBytesCanonical(b); err != nil {
		return e, fmt.Errorf("non-canonical field element: %w", err)
	}

	return e, nil
}

// InsertionRecord is emitted by the commitment store after every successful
// insertion so external observers (e.g. a holder looking for its own index)
// can track the tree.
type InsertionRecord struct {
	// Leaf is the inserted commitment
	Leaf fr.Element

	// Index is the leaf's insertion-order slot in the tree
	Index uint32

	// NewRoot is the tree root after this insertion
	NewRoot fr.Element
}

type insertionRecordJSON struct {
	Leaf    string `json:"leaf"`
	Index   uint32 `json:"index"`
	NewRoot string `json:"newRoot"`
}

// MarshalJSON encodes field elements as 0x-hex.
func (r InsertionRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(insertionRecordJSON{
		Leaf:    EncodeElement(r.Leaf),
		Index:   r.Index,
		NewRoot: EncodeElement(r.NewRoot),
	})
}

// UnmarshalJSON decodes the 0x-hex wire form.
func (r *InsertionRecord) UnmarshalJSON(data []byte) error {
	var raw insertionRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	leaf, err := DecodeElement(raw.Leaf)
	if err != nil {
		return fmt.Errorf("invalid leaf: %w", err)
	}
	newRoot, err := DecodeElement(raw.NewRoot)
	if err != nil {
		return fmt.Errorf("invalid newRoot: %w", err)
	}

	r.Leaf = leaf
	r.Index = raw.Index
	r.NewRoot = newRoot
	return nil
}

// Path is the ordered sibling/direction sequence connecting a leaf to the
// tree root, walked from leaf to root.
//
// Directions[i] == false means the current node at level i is the left
// child (its sibling sits on the right). A path is a snapshot: it is only
// consistent with the root at the time it was computed and becomes stale
// once the tree is mutated.
type Path struct {
	// Siblings holds the sibling hash at each level, leaf level first
	Siblings []fr.Element

	// Directions holds the left/right bit at each level
	Directions []bool
}

// Depth returns the number of levels in the path.
func (p Path) Depth() int {
	return len(p.Siblings)
}

// Validate checks the path's internal shape.
func (p Path) Validate() error {
	if len(p.Siblings) == 0 {
		return fmt.Errorf("path is empty")
	}
	if len(p.Siblings) != len(p.Directions) {
		return fmt.Errorf("path has %d siblings but %d directions", len(p.Siblings), len(p.Directions))
	}
	return nil
}

// ProofRequest is the full payload handed to the proof backend.
//
// Secret and Path are private inputs and must never leave the holder;
// Root and Nullifier are the public inputs the verifier sees.
type ProofRequest struct {
	// Secret is the holder's private field element (private input)
	Secret fr.Element

	// Path is the Merkle path of the holder's commitment (private input)
	Path Path

	// Root is the claimed tree root (public input)
	Root fr.Element

	// Nullifier is the replay token derived from Secret (public input)
	Nullifier fr.Element
}

// ProofArtifact is the opaque proof plus the public tuple a holder submits
// to a verifier. The Proof bytes are in the proof backend's serialization
// format; this package does not interpret them.
type ProofArtifact struct {
	// Proof is the serialized succinct proof
	Proof []byte

	// Root is the public tree root the proof was built against
	Root fr.Element

	// Nullifier is the public replay token
	Nullifier fr.Element
}

type proofArtifactJSON struct {
	Proof     string `json:"proof"`
	Root      string `json:"root"`
	Nullifier string `json:"nullifier"`
}

// MarshalJSON encodes the artifact with 0x-hex fields.
func (a ProofArtifact) MarshalJSON() ([]byte, error) {
	return json.Marshal(proofArtifactJSON{
		Proof:     hexutil.Encode(a.Proof),
		Root:      EncodeElement(a.Root),
		Nullifier: EncodeElement(a.Nullifier),
	})
}

// UnmarshalJSON decodes the 0x-hex wire form.
func (a *ProofArtifact) UnmarshalJSON(data []byte) error {
	var raw proofArtifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	proof, err := hexutil.Decode(raw.Proof)
	if err != nil {
		return fmt.Errorf("invalid proof bytes: %w", err)
	}
	root, err := DecodeElement(raw.Root)
	if err != nil {
		return fmt.Errorf("invalid root: %w", err)
	}
	nullifier, err := DecodeElement(raw.Nullifier)
	if err != nil {
		return fmt.Errorf("invalid nullifier: %w", err)
	}

	a.Proof = proof
	a.Root = root
	a.Nullifier = nullifier
	return nil
}

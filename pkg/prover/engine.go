// Package prover glues the membership circuit to the groth16 proof
// backend: circuit compilation, key setup, witness construction, proof
// generation and verification.
//
// The backend itself is treated as a trusted black box; this package's
// obligation is to hand it a constraint system and witnesses faithful to
// the membership semantics, and to translate its failures into the
// caller-facing error taxonomy.
package prover

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"go.uber.org/zap"

	"github.com/subset-labs/zk-membership-go/pkg/circuit"
	"github.com/subset-labs/zk-membership-go/pkg/types"
	"github.com/subset-labs/zk-membership-go/pkg/zkhash"
)

var (
	// ErrUnsatisfiableWitness is returned when the private witness does
	// not satisfy the constraint system. The usual causes are a stale
	// path (re-fetch it and re-prove) or a secret that does not
	// correspond to any inserted leaf.
	ErrUnsatisfiableWitness = errors.New("witness does not satisfy the membership constraints")

	// ErrInvalidProof is returned when proof verification fails.
	ErrInvalidProof = errors.New("proof verification failed")
)

// Engine holds the compiled constraint system and the groth16 key pair
// for one structural tree depth. Safe for concurrent use after
// construction: Prove and Verify share no mutable state.
type Engine struct {
	depth  int
	ccs    constraint.ConstraintSystem
	pk     groth16.ProvingKey
	vk     groth16.VerifyingKey
	logger *zap.Logger
}

// NewEngine compiles the membership circuit at the given depth and runs
// the groth16 setup. This is expensive (seconds for realistic depths) and
// should be done once per process per depth.
func NewEngine(depth int, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	start := time.Now()
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit.NewMembershipCircuit(depth))
	if err != nil {
		return nil, fmt.Errorf("failed to compile membership circuit (depth %d): %w", depth, err)
	}

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup failed: %w", err)
	}

	logger.Sugar().Infow("proof engine ready",
		"depth", depth,
		"constraints", ccs.GetNbConstraints(),
		"setupTime", time.Since(start),
	)

	return &Engine{
		depth:  depth,
		ccs:    ccs,
		pk:     pk,
		vk:     vk,
		logger: logger,
	}, nil
}

// Depth returns the structural depth this engine was compiled for.
func (e *Engine) Depth() int {
	return e.depth
}

// BuildWitness assembles the full proof request for a holder: the secret
// and path as private inputs, the claimed root and the derived nullifier
// as public inputs. The path must match the depth the engine was
// compiled for.
func (e *Engine) BuildWitness(secret fr.Element, path types.Path, root fr.Element) (*types.ProofRequest, error) {
	if err := path.Validate(); err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	if path.Depth() != e.depth {
		return nil, fmt.Errorf("path depth %d does not match engine depth %d", path.Depth(), e.depth)
	}

	return &types.ProofRequest{
		Secret:    secret,
		Path:      path,
		Root:      root,
		Nullifier: zkhash.Sum1(secret),
	}, nil
}

// Prove generates a proof for the request. A request whose witness does
// not satisfy the constraints (stale path, forged secret, wrong root)
// fails with ErrUnsatisfiableWitness.
func (e *Engine) Prove(req *types.ProofRequest) (*types.ProofArtifact, error) {
	if req == nil {
		return nil, fmt.Errorf("proof request cannot be nil")
	}
	if req.Path.Depth() != e.depth {
		return nil, fmt.Errorf("path depth %d does not match engine depth %d", req.Path.Depth(), e.depth)
	}

	assignment := fullAssignment(req)
	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("failed to build witness: %w", err)
	}

	start := time.Now()
	proof, err := groth16.Prove(e.ccs, e.pk, witness)
	if err != nil {
		// The solver rejects assignments that violate any constraint;
		// surface that as the caller-facing taxonomy, keeping the cause.
		return nil, fmt.Errorf("%w: %v", ErrUnsatisfiableWitness, err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize proof: %w", err)
	}

	e.logger.Sugar().Debugw("proof generated",
		"depth", e.depth,
		"proveTime", time.Since(start),
		"proofBytes", buf.Len(),
	)

	return &types.ProofArtifact{
		Proof:     buf.Bytes(),
		Root:      req.Root,
		Nullifier: req.Nullifier,
	}, nil
}

// Verify checks an artifact against its public tuple (root, nullifier).
// Returns ErrInvalidProof on rejection; verification is pure and has no
// side effects.
func (e *Engine) Verify(artifact *types.ProofArtifact) error {
	return verifyArtifact(e.vk, e.depth, artifact)
}

// VerifyingKeyBytes serializes the verifying key so a verifying
// collaborator can check proofs without holding the proving key.
func (e *Engine) VerifyingKeyBytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := e.vk.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize verifying key: %w", err)
	}
	return buf.Bytes(), nil
}

// Verifier is the verify-only counterpart of Engine, constructed from an
// exported verifying key. It cannot produce proofs.
type Verifier struct {
	depth int
	vk    groth16.VerifyingKey
}

// NewVerifier reconstructs a verifier from serialized verifying key bytes.
func NewVerifier(depth int, vkBytes []byte) (*Verifier, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(vkBytes)); err != nil {
		return nil, fmt.Errorf("failed to deserialize verifying key: %w", err)
	}
	return &Verifier{depth: depth, vk: vk}, nil
}

// Verify checks an artifact against its public tuple.
func (v *Verifier) Verify(artifact *types.ProofArtifact) error {
	return verifyArtifact(v.vk, v.depth, artifact)
}

func verifyArtifact(vk groth16.VerifyingKey, depth int, artifact *types.ProofArtifact) error {
	if artifact == nil {
		return fmt.Errorf("proof artifact cannot be nil")
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(artifact.Proof)); err != nil {
		return fmt.Errorf("%w: malformed proof bytes: %v", ErrInvalidProof, err)
	}

	public := circuit.NewMembershipCircuit(depth)
	public.Root = artifact.Root.BigInt(new(big.Int))
	public.Nullifier = artifact.Nullifier.BigInt(new(big.Int))

	publicWitness, err := frontend.NewWitness(public, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("failed to build public witness: %w", err)
	}

	if err := groth16.Verify(proof, vk, publicWitness); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	return nil
}

// fullAssignment converts a proof request into a circuit assignment.
func fullAssignment(req *types.ProofRequest) *circuit.MembershipCircuit {
	depth := req.Path.Depth()
	w := circuit.NewMembershipCircuit(depth)
	w.Secret = req.Secret.BigInt(new(big.Int))
	w.Root = req.Root.BigInt(new(big.Int))
	w.Nullifier = req.Nullifier.BigInt(new(big.Int))
	for i := 0; i < depth; i++ {
		w.Siblings[i] = req.Path.Siblings[i].BigInt(new(big.Int))
		if req.Path.Directions[i] {
			w.Directions[i] = big.NewInt(1)
		} else {
			w.Directions[i] = big.NewInt(0)
		}
	}
	return w
}

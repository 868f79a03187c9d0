// Package verifier implements the verifying collaborator: it checks a
// submitted proof artifact against the known tree roots, the proof
// backend and the nullifier replay guard, in that order.
package verifier

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/subset-labs/zk-membership-go/pkg/nullifier"
	"github.com/subset-labs/zk-membership-go/pkg/prover"
	"github.com/subset-labs/zk-membership-go/pkg/types"
)

// ErrUnknownRoot is returned when the artifact's root is not the current
// tree root nor in the recent root history. The holder should re-fetch
// its path and re-prove.
var ErrUnknownRoot = errors.New("proof root is not a known tree root")

// ProofChecker verifies a proof artifact against its public tuple.
// Satisfied by prover.Engine and prover.Verifier.
type ProofChecker interface {
	Verify(artifact *types.ProofArtifact) error
}

// RootChecker answers whether a root is currently acceptable.
// Satisfied by commitment.Tree.
type RootChecker interface {
	IsKnownRoot(root fr.Element) bool
}

// Service ties the three checks together. Safe for concurrent use; the
// replay guard's atomic test-and-set is the only shared mutable state.
type Service struct {
	checker  ProofChecker
	roots    RootChecker
	registry nullifier.Registry
	logger   *zap.Logger
}

// NewService creates a verifier service.
func NewService(checker ProofChecker, roots RootChecker, registry nullifier.Registry, logger *zap.Logger) (*Service, error) {
	if checker == nil {
		return nil, fmt.Errorf("proof checker cannot be nil")
	}
	if roots == nil {
		return nil, fmt.Errorf("root checker cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("nullifier registry cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		checker:  checker,
		roots:    roots,
		registry: registry,
		logger:   logger,
	}, nil
}

// Accept decides a proof artifact. On success the artifact's nullifier is
// permanently marked used; the decision and the mark are not reordered,
// so a replayed artifact can never be accepted twice.
//
// The error distinguishes the rejection classes of the taxonomy:
// ErrUnknownRoot, prover.ErrInvalidProof and nullifier.ErrAlreadyUsed.
func (s *Service) Accept(artifact *types.ProofArtifact) error {
	if artifact == nil {
		return fmt.Errorf("proof artifact cannot be nil")
	}

	requestID := uuid.New().String()
	log := s.logger.Sugar().With(
		"requestId", requestID,
		"nullifier", types.EncodeElement(artifact.Nullifier),
	)

	if !s.roots.IsKnownRoot(artifact.Root) {
		log.Infow("rejected proof against unknown root", "root", types.EncodeElement(artifact.Root))
		return fmt.Errorf("%w: %s", ErrUnknownRoot, types.EncodeElement(artifact.Root))
	}

	if err := s.checker.Verify(artifact); err != nil {
		log.Infow("rejected invalid proof", "error", err)
		return err
	}

	if err := s.registry.Use(artifact.Nullifier); err != nil {
		if errors.Is(err, nullifier.ErrAlreadyUsed) {
			// Replay of a once-valid proof: security relevant, keep it
			// loud and distinguishable from plain invalid proofs.
			log.Warnw("rejected nullifier replay")
			return err
		}
		log.Errorw("nullifier registry failure", "error", err)
		return fmt.Errorf("failed to mark nullifier: %w", err)
	}

	log.Infow("accepted membership proof")
	return nil
}

var _ ProofChecker = (*prover.Engine)(nil)
var _ ProofChecker = (*prover.Verifier)(nil)

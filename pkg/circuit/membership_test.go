package circuit

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/test"

	"github.com/subset-labs/zk-membership-go/pkg/commitment"
	"github.com/subset-labs/zk-membership-go/pkg/types"
	"github.com/subset-labs/zk-membership-go/pkg/zkhash"
)

const testDepth = 3

// buildAssignment fills a witness assignment from host-side values.
func buildAssignment(secret fr.Element, path types.Path, root, nullifier fr.Element) *MembershipCircuit {
	w := NewMembershipCircuit(path.Depth())
	w.Secret = secret.BigInt(new(big.Int))
	w.Root = root.BigInt(new(big.Int))
	w.Nullifier = nullifier.BigInt(new(big.Int))
	for i := range path.Siblings {
		w.Siblings[i] = path.Siblings[i].BigInt(new(big.Int))
		if path.Directions[i] {
			w.Directions[i] = big.NewInt(1)
		} else {
			w.Directions[i] = big.NewInt(0)
		}
	}
	return w
}

// treeWithSecrets inserts H(s) for each secret and returns the tree.
func treeWithSecrets(t *testing.T, depth int, secrets []fr.Element) *commitment.Tree {
	t.Helper()
	tree, err := commitment.NewTree(depth)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range secrets {
		if _, err := tree.Insert(zkhash.Sum1(s)); err != nil {
			t.Fatal(err)
		}
	}
	return tree
}

func TestMembershipCircuit_ValidWitness(t *testing.T) {
	assert := test.NewAssert(t)

	secrets := []fr.Element{fr.NewElement(12345), fr.NewElement(67890)}
	tree := treeWithSecrets(t, testDepth, secrets)

	path, err := tree.PathOf(1)
	assert.NoError(err)

	witness := buildAssignment(secrets[1], path, tree.Root(), zkhash.Sum1(secrets[1]))
	assert.ProverSucceeded(NewMembershipCircuit(testDepth), witness, test.WithCurves(ecc.BN254))
}

// TestMembershipCircuit_PathShapes covers the leftmost leaf (all-left
// directions), a rightmost leaf (all-right) and a mixed path.
func TestMembershipCircuit_PathShapes(t *testing.T) {
	assert := test.NewAssert(t)

	// Fill the tree completely so every direction pattern appears.
	secrets := make([]fr.Element, 8)
	for i := range secrets {
		secrets[i] = fr.NewElement(uint64(100 + i))
	}
	tree := treeWithSecrets(t, testDepth, secrets)
	root := tree.Root()

	for _, index := range []uint32{0, 7, 5} {
		path, err := tree.PathOf(index)
		assert.NoError(err)

		witness := buildAssignment(secrets[index], path, root, zkhash.Sum1(secrets[index]))
		assert.ProverSucceeded(NewMembershipCircuit(testDepth), witness, test.WithCurves(ecc.BN254))
	}
}

func TestMembershipCircuit_WrongSecret(t *testing.T) {
	assert := test.NewAssert(t)

	secrets := []fr.Element{fr.NewElement(111), fr.NewElement(222)}
	tree := treeWithSecrets(t, testDepth, secrets)

	path, err := tree.PathOf(1)
	assert.NoError(err)

	// Secret 0 with leaf 1's path: the climb lands somewhere else.
	witness := buildAssignment(secrets[0], path, tree.Root(), zkhash.Sum1(secrets[0]))
	assert.ProverFailed(NewMembershipCircuit(testDepth), witness, test.WithCurves(ecc.BN254))
}

func TestMembershipCircuit_ForgedSecret(t *testing.T) {
	assert := test.NewAssert(t)

	secrets := []fr.Element{fr.NewElement(111), fr.NewElement(222)}
	tree := treeWithSecrets(t, testDepth, secrets)

	path, err := tree.PathOf(1)
	assert.NoError(err)

	// A secret never registered anywhere.
	var forged fr.Element
	_, err = forged.SetRandom()
	assert.NoError(err)

	witness := buildAssignment(forged, path, tree.Root(), zkhash.Sum1(forged))
	assert.ProverFailed(NewMembershipCircuit(testDepth), witness, test.WithCurves(ecc.BN254))
}

func TestMembershipCircuit_TamperedSibling(t *testing.T) {
	assert := test.NewAssert(t)

	secrets := []fr.Element{fr.NewElement(111), fr.NewElement(222)}
	tree := treeWithSecrets(t, testDepth, secrets)

	for level := 0; level < testDepth; level++ {
		path, err := tree.PathOf(1)
		assert.NoError(err)

		var tampered fr.Element
		tampered.SetUint64(uint64(999 + level))
		path.Siblings[level] = tampered

		witness := buildAssignment(secrets[1], path, tree.Root(), zkhash.Sum1(secrets[1]))
		assert.ProverFailed(NewMembershipCircuit(testDepth), witness, test.WithCurves(ecc.BN254))
	}
}

func TestMembershipCircuit_WrongNullifier(t *testing.T) {
	assert := test.NewAssert(t)

	secrets := []fr.Element{fr.NewElement(111)}
	tree := treeWithSecrets(t, testDepth, secrets)

	path, err := tree.PathOf(0)
	assert.NoError(err)

	// Nullifier for a different secret must not satisfy H(secret).
	witness := buildAssignment(secrets[0], path, tree.Root(), zkhash.Sum1(fr.NewElement(999)))
	assert.ProverFailed(NewMembershipCircuit(testDepth), witness, test.WithCurves(ecc.BN254))
}

// TestMembershipCircuit_NonBooleanDirection checks that a direction value
// outside {0,1} is rejected by the boolean constraint even though the
// selection arithmetic alone might be satisfiable.
func TestMembershipCircuit_NonBooleanDirection(t *testing.T) {
	assert := test.NewAssert(t)

	secrets := []fr.Element{fr.NewElement(111), fr.NewElement(222)}
	tree := treeWithSecrets(t, testDepth, secrets)

	path, err := tree.PathOf(1)
	assert.NoError(err)

	witness := buildAssignment(secrets[1], path, tree.Root(), zkhash.Sum1(secrets[1]))
	witness.Directions[0] = big.NewInt(2)
	assert.ProverFailed(NewMembershipCircuit(testDepth), witness, test.WithCurves(ecc.BN254))
}

func TestMembershipCircuit_StalePath(t *testing.T) {
	assert := test.NewAssert(t)

	secrets := []fr.Element{fr.NewElement(111)}
	tree := treeWithSecrets(t, testDepth, secrets)

	stalePath, err := tree.PathOf(0)
	assert.NoError(err)

	// Mutate the tree; the old path no longer matches the new root.
	_, err = tree.Insert(zkhash.Sum1(fr.NewElement(222)))
	assert.NoError(err)

	witness := buildAssignment(secrets[0], stalePath, tree.Root(), zkhash.Sum1(secrets[0]))
	assert.ProverFailed(NewMembershipCircuit(testDepth), witness, test.WithCurves(ecc.BN254))
}

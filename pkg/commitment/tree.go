// Package commitment implements the append-only Merkle commitment store.
//
// The tree has a fixed depth chosen at construction. Leaves are assigned
// slots in insertion order; unfilled slots are implicitly the precomputed
// all-empty subtree hash for their level. Insertion is O(depth): the new
// root is folded incrementally from the stored left-subtree hashes rather
// than recomputed globally.
package commitment

import (
	"errors"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/subset-labs/zk-membership-go/pkg/types"
	"github.com/subset-labs/zk-membership-go/pkg/zkhash"
)

const (
	// MinDepth and MaxDepth bound the structural tree depth. The upper
	// bound keeps capacity (2^depth) inside uint32.
	MinDepth = 1
	MaxDepth = 31

	// RootHistorySize is how many recent roots the tree remembers.
	// A prover racing a concurrent insertion can still present a
	// recently stale root and have it recognized.
	RootHistorySize = 30
)

var (
	// ErrTreeFull is returned when insertion is attempted beyond 2^depth
	// capacity. Existing state is not corrupted; the operator must move
	// to a deeper or fresh tree.
	ErrTreeFull = errors.New("commitment tree is full")

	// ErrUnknownLeaf is returned when a path is requested for an index
	// that has never been inserted.
	ErrUnknownLeaf = errors.New("unknown leaf index")
)

// InsertionListener observes successful insertions. Listeners are invoked
// synchronously while the insertion lock is held; they must be fast and
// must not call back into the tree.
type InsertionListener func(types.InsertionRecord)

// Tree is the commitment store. All methods are safe for concurrent use:
// Insert takes exclusive access, read operations share it.
type Tree struct {
	mu sync.RWMutex

	depth    int
	capacity uint32

	nextIndex      uint32
	root           fr.Element
	filledSubtrees []fr.Element
	zeros          []fr.Element

	// nodes[l] caches every computed node at level l, keyed by its
	// index within the level. Level 0 holds the leaves. The cache is
	// what makes PathOf correct for every inserted leaf, not just the
	// most recent one.
	nodes []map[uint32]fr.Element

	// rootHistory is a ring of the most recent roots, oldest overwritten
	rootHistory [RootHistorySize]fr.Element
	rootCount   int

	listeners []InsertionListener
}

// NewTree creates an empty commitment tree of the given depth.
func NewTree(depth int) (*Tree, error) {
	if depth < MinDepth || depth > MaxDepth {
		return nil, fmt.Errorf("tree depth must be between %d and %d, got %d", MinDepth, MaxDepth, depth)
	}

	zeros := zkhash.ZeroHashes(depth)

	nodes := make([]map[uint32]fr.Element, depth+1)
	for l := range nodes {
		nodes[l] = make(map[uint32]fr.Element)
	}

	t := &Tree{
		depth:          depth,
		capacity:       uint32(1) << uint(depth),
		filledSubtrees: make([]fr.Element, depth),
		zeros:          zeros,
		nodes:          nodes,
	}
	copy(t.filledSubtrees, zeros)

	// Root of the all-empty tree
	t.root = zkhash.Sum2(zeros[depth-1], zeros[depth-1])
	t.rememberRoot(t.root)

	return t, nil
}

// Subscribe registers a listener for insertion records.
func (t *Tree) Subscribe(fn InsertionListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Insert appends a leaf and returns its assigned index.
// Returns ErrTreeFull once 2^depth leaves have been inserted.
func (t *Tree) Insert(leaf fr.Element) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.nextIndex == t.capacity {
		return 0, fmt.Errorf("%w: capacity %d reached", ErrTreeFull, t.capacity)
	}

	index := t.nextIndex
	idx := index
	current := leaf
	t.nodes[0][idx] = leaf

	// Climb to the root. An even index is a left child: remember it for
	// the future right sibling and pair it with the empty subtree. An
	// odd index is a right child: pair it with the stored left sibling.
	for l := 0; l < t.depth; l++ {
		if idx%2 == 0 {
			t.filledSubtrees[l] = current
			current = zkhash.Sum2(current, t.zeros[l])
		} else {
			current = zkhash.Sum2(t.filledSubtrees[l], current)
		}
		idx /= 2
		t.nodes[l+1][idx] = current
	}

	t.root = current
	t.nextIndex++
	t.rememberRoot(current)

	record := types.InsertionRecord{
		Leaf:    leaf,
		Index:   index,
		NewRoot: current,
	}
	for _, fn := range t.listeners {
		fn(record)
	}

	return index, nil
}

// PathOf returns the sibling/direction sequence for an inserted leaf,
// consistent with the current root. Returns ErrUnknownLeaf if the index
// has not been inserted yet.
func (t *Tree) PathOf(index uint32) (types.Path, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index >= t.nextIndex {
		return types.Path{}, fmt.Errorf("%w: index %d, next free slot %d", ErrUnknownLeaf, index, t.nextIndex)
	}

	siblings := make([]fr.Element, t.depth)
	directions := make([]bool, t.depth)

	idx := index
	for l := 0; l < t.depth; l++ {
		directions[l] = idx%2 == 1

		sibling, ok := t.nodes[l][idx^1]
		if !ok {
			sibling = t.zeros[l]
		}
		siblings[l] = sibling

		idx /= 2
	}

	return types.Path{Siblings: siblings, Directions: directions}, nil
}

// Root returns the current Merkle root.
func (t *Tree) Root() fr.Element {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// NextIndex returns the next free leaf slot.
func (t *Tree) NextIndex() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nextIndex
}

// Depth returns the structural tree depth.
func (t *Tree) Depth() int {
	return t.depth
}

// IsKnownRoot reports whether root is the current root or one of the
// RootHistorySize most recent ones.
func (t *Tree) IsKnownRoot(root fr.Element) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.rootCount
	if n > RootHistorySize {
		n = RootHistorySize
	}
	for i := 0; i < n; i++ {
		if t.rootHistory[i].Equal(&root) {
			return true
		}
	}
	return false
}

// rememberRoot records a root in the history ring. Caller holds the lock.
func (t *Tree) rememberRoot(root fr.Element) {
	t.rootHistory[t.rootCount%RootHistorySize] = root
	t.rootCount++
}

// VerifyPath recomputes the root by folding leaf with the path and checks
// it against the expected root. This is the host-side mirror of the
// in-circuit climb and is mainly a test oracle for path correctness.
func VerifyPath(leaf fr.Element, path types.Path, root fr.Element) bool {
	if err := path.Validate(); err != nil {
		return false
	}

	current := leaf
	for i := range path.Siblings {
		if path.Directions[i] {
			current = zkhash.Sum2(path.Siblings[i], current)
		} else {
			current = zkhash.Sum2(current, path.Siblings[i])
		}
	}

	return current.Equal(&root)
}

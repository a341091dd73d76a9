package blockchain

import (
	"sync"

	"github.com/coinbasechain/cbcd/primitives"
)

// BlockIndex owns every Node for the process lifetime (spec.md §3/§9:
// entries are never destroyed while the process runs). All lookups are
// O(1) via a plain map; the active chain's O(1) height lookup is a
// separate structure (ActiveChain) since most nodes are never on the
// best chain.
type BlockIndex struct {
	mtx   sync.RWMutex
	index map[primitives.Hash256]*Node
}

// NewBlockIndex constructs an empty index.
func NewBlockIndex() *BlockIndex {
	return &BlockIndex{index: make(map[primitives.Hash256]*Node)}
}

// AddNode inserts n into the index. Callers must hold chainstate_lock
// (spec.md §5); BlockIndex's own mutex only protects concurrent RPC
// reads against that single writer.
func (bi *BlockIndex) AddNode(n *Node) {
	bi.mtx.Lock()
	defer bi.mtx.Unlock()
	bi.index[n.id] = n
}

// LookupNode returns the node for id, or nil if it is not present.
func (bi *BlockIndex) LookupNode(id primitives.Hash256) *Node {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()
	return bi.index[id]
}

// HaveBlock reports whether id is already in the index (spec.md §4.5
// step 2's Duplicate gate).
func (bi *BlockIndex) HaveBlock(id primitives.Hash256) bool {
	return bi.LookupNode(id) != nil
}

// Len returns the number of nodes in the index, used by persistence and
// diagnostics.
func (bi *BlockIndex) Len() int {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()
	return len(bi.index)
}

// Nodes returns every node in the index in unspecified order, used by
// Invalidate's descendant marking and candidate-set rebuild.
func (bi *BlockIndex) Nodes() []*Node {
	bi.mtx.RLock()
	defer bi.mtx.RUnlock()
	out := make([]*Node, 0, len(bi.index))
	for _, n := range bi.index {
		out = append(out, n)
	}
	return out
}

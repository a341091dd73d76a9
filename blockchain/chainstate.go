package blockchain

import (
	"sync"
	"time"

	"github.com/coinbasechain/cbcd/chaincfg"
	"github.com/coinbasechain/cbcd/difficulty"
	"github.com/coinbasechain/cbcd/pow"
	"github.com/coinbasechain/cbcd/primitives"
	"github.com/coinbasechain/cbcd/wire"
)

// activationBatchSize bounds how many blocks activateBestChainLocked
// connects before releasing chainstate_lock, per spec.md §4.5.3/§5.
const activationBatchSize = 32

// maxFailedCache bounds the failed-block cache so a flood of invalid
// headers cannot grow it without limit; spec.md §3 only requires it be
// "bounded", the FIFO policy below is this implementation's choice.
const maxFailedCache = 100000

// Outcome is the result of AcceptHeader, per spec.md §4.5.
type Outcome int

const (
	Accepted Outcome = iota
	Orphaned
	Duplicate
	Invalid
	Failed
)

// AcceptResult pairs an Outcome with the validation error (a
// *ValidationError carrying its ErrorKind) when Outcome is Invalid.
type AcceptResult struct {
	Outcome Outcome
	Err     error
}

// ChainState is the chainstate manager from spec.md §4.5, the
// concentration point of the specification: it owns the block index,
// active chain, candidate set, orphan pool, and failed cache, and
// serializes every mutation behind chainstate_lock (spec.md §5).
type ChainState struct {
	mtx sync.Mutex

	params *chaincfg.Params
	pow    *pow.Engine

	index  *BlockIndex
	active *ActiveChain
	orphan *orphanPool

	failed      map[primitives.Hash256]struct{}
	failedOrder []primitives.Hash256

	candidates map[primitives.Hash256]*Node

	timeSource *MedianTimeSource
	notifier   notifier

	ibdLatched bool
}

// New constructs a ChainState and installs the network's genesis block
// directly into the index (spec.md §4.5 step 3: genesis is installed
// only through init, never via AcceptHeader).
func New(params *chaincfg.Params, powEngine *pow.Engine) *ChainState {
	cs := &ChainState{
		params:     params,
		pow:        powEngine,
		index:      NewBlockIndex(),
		active:     NewActiveChain(),
		orphan:     newOrphanPool(),
		failed:     make(map[primitives.Hash256]struct{}),
		candidates: make(map[primitives.Hash256]*Node),
		timeSource: NewMedianTimeSource(200),
		ibdLatched: true,
	}

	genesis := NewNode(&params.GenesisHeader, nil)
	genesis.status = StatusHaveHeader | StatusValidHeader | StatusValidPoW
	genesis.chainWork = primitives.CalcWork(genesis.header.Bits)
	cs.index.AddNode(genesis)
	cs.active.SetTip(genesis)
	cs.candidates[genesis.id] = genesis

	return cs
}

// Subscribe registers a listener for tip-change notifications.
func (cs *ChainState) Subscribe(l NotificationListener) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	cs.notifier.subscribe(l)
}

// Tip returns the current active-chain tip.
func (cs *ChainState) Tip() *Node {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return cs.active.Tip()
}

// NodeByHeight returns the active-chain node at height h.
func (cs *ChainState) NodeByHeight(h int64) *Node {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return cs.active.NodeByHeight(h)
}

// LookupNode returns any indexed node (active or not) by id.
func (cs *ChainState) LookupNode(id primitives.Hash256) *Node {
	return cs.index.LookupNode(id)
}

// asertAnchor returns the height-1 node used as the ASERT reference
// point (spec.md §4.3's anchor). Returns nil if the chain has not yet
// reached height 1 (only genesis is known).
func (cs *ChainState) asertAnchor() *Node {
	return cs.active.NodeByHeight(1)
}

// AcceptHeader runs the ordered gate sequence from spec.md §4.5 on a
// single header received from peerID.
func (cs *ChainState) AcceptHeader(h *wire.BlockHeader, peerID int64) AcceptResult {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return cs.acceptHeaderLocked(h, peerID)
}

func (cs *ChainState) acceptHeaderLocked(h *wire.BlockHeader, peerID int64) AcceptResult {
	id := h.BlockHash()

	// Step 1: failed cache.
	if _, bad := cs.failed[id]; bad {
		return AcceptResult{Invalid, validationErr(ErrCachedFail, id.String())}
	}

	// Step 2: duplicate.
	if cs.index.HaveBlock(id) {
		return AcceptResult{Duplicate, nil}
	}

	// Step 3: genesis gate.
	if h.PrevID.IsZero() {
		if id != cs.params.GenesisID {
			return AcceptResult{Invalid, validationErr(ErrBadGenesis, id.String())}
		}
		// Genesis is only ever installed by New(); reaching here means
		// a peer is replaying it, which step 2 would already have
		// caught. Treat as duplicate defensively.
		return AcceptResult{Duplicate, nil}
	}

	// Step 4: parent lookup / orphan caching.
	parent := cs.index.LookupNode(h.PrevID)
	if parent == nil {
		if !cs.orphan.add(h, id, peerID) {
			return AcceptResult{Invalid, validationErr(ErrOrphanLimit, id.String())}
		}
		return AcceptResult{Orphaned, nil}
	}

	// Step 5: failed parent.
	if parent.status.has(StatusFailed) || parent.status.has(StatusFailedChild) {
		cs.markFailed(id)
		return AcceptResult{Invalid, validationErr(ErrBadPrev, id.String())}
	}

	// Step 6: context-free checks.
	if h.Version < 1 {
		return AcceptResult{Invalid, validationErr(ErrBadVersion, id.String())}
	}
	if !primitives.IsCanonicalCompact(h.Bits) {
		return AcceptResult{Invalid, validationErr(ErrNonCanonical, id.String())}
	}
	mtp := parent.CalcPastMedianTime()
	if int64(h.Time) <= mtp {
		return AcceptResult{Invalid, validationErr(ErrTimeTooOld, id.String())}
	}
	adjustedNow := cs.timeSource.AdjustedTime().Unix()
	if int64(h.Time) > adjustedNow+cs.params.MaxTimeAdjustment {
		return AcceptResult{Invalid, validationErr(ErrTimeTooNew, id.String())}
	}

	// Step 7: full PoW verification.
	if err := cs.pow.Verify(h, pow.Full); err != nil {
		cs.markFailed(id)
		return AcceptResult{Invalid, validationErr(ErrBadPoW, err.Error())}
	}

	// Step 8: contextual difficulty.
	height := parent.height + 1
	if anchor := cs.asertAnchor(); anchor != nil {
		a := difficulty.Anchor{Height: anchor.height, Time: int64(anchor.header.Time), Bits: anchor.header.Bits}
		p := difficulty.Params{
			TargetSpacing: cs.params.TargetSpacing,
			HalfLife:      cs.params.HalfLife,
			PowLimit:      cs.params.PowLimit,
		}
		if err := difficulty.CheckBits(a, p, height, int64(h.Time), h.Bits); err != nil {
			cs.markFailed(id)
			return AcceptResult{Invalid, validationErr(ErrBadDiff, id.String())}
		}
	}

	// Step 9/10: chain work + insertion.
	node := NewNode(h, parent)
	node.status = StatusHaveHeader | StatusValidHeader | StatusValidPoW
	work := primitives.CalcWork(h.Bits)
	node.chainWork = parent.chainWork
	node.chainWork.Add(&work)
	cs.index.AddNode(node)

	cs.updateIBDLatch(node)

	// Step 11: drain orphans waiting on this id.
	for _, child := range cs.orphan.childrenOf(id) {
		childCopy := child
		cs.acceptHeaderLocked(&childCopy, peerID)
	}

	// Step 12: offer to candidate set.
	cs.offerCandidateLocked(node)

	return AcceptResult{Accepted, nil}
}

func (cs *ChainState) markFailed(id primitives.Hash256) {
	if _, exists := cs.failed[id]; exists {
		return
	}
	if len(cs.failedOrder) >= maxFailedCache {
		oldest := cs.failedOrder[0]
		cs.failedOrder = cs.failedOrder[1:]
		delete(cs.failed, oldest)
	}
	cs.failed[id] = struct{}{}
	cs.failedOrder = append(cs.failedOrder, id)
}

func (cs *ChainState) offerCandidateLocked(n *Node) {
	tip := cs.active.Tip()
	if tip == nil || n.chainWork.Cmp(&tip.chainWork) >= 0 {
		cs.candidates[n.id] = n
	}
}

// CheckHeadersPoW runs the cheap COMMITMENT_ONLY pre-filter over an
// entire batch, per spec.md §4.5's check_headers_pow. It is used before
// AcceptHeader ever takes the chainstate lock for the batch, so a
// flood of headers with out-of-range commitments is rejected without
// touching the block index at all.
func (cs *ChainState) CheckHeadersPoW(batch []wire.BlockHeader) error {
	for i := range batch {
		if err := cs.pow.Verify(&batch[i], pow.CommitmentOnly); err != nil {
			return err
		}
	}
	return nil
}

// IsInitialDownload reports the IBD latch state, per spec.md §4.5: true
// while any of {no tip, tip older than 3x spacing, total work below
// minimum}, latching permanently false once all three clear.
func (cs *ChainState) IsInitialDownload() bool {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return cs.ibdLatched
}

func (cs *ChainState) updateIBDLatch(tip *Node) {
	if !cs.ibdLatched {
		return
	}
	age := time.Since(time.Unix(int64(tip.header.Time), 0))
	recent := age < time.Duration(3*cs.params.TargetSpacing)*time.Second
	minWork := primitives.BigToWork(cs.params.MinChainWork)
	enoughWork := tip.chainWork.Cmp(&minWork) >= 0
	if recent && enoughWork {
		cs.ibdLatched = false
	}
}

// ActivateBestChain repeatedly connects the strongest candidate onto
// the active chain in batches of activationBatchSize, per spec.md
// §4.5.3, releasing chainstate_lock between batches so a long reorg
// cannot stall header delivery or RPC reads. Each iteration re-selects
// the best candidate, so a stronger header that arrives mid-reorg is
// picked up without restarting from scratch. Returns true if the tip
// moved at all.
func (cs *ChainState) ActivateBestChain() bool {
	changed := false
	for {
		cs.mtx.Lock()
		oldTip := cs.active.Tip()
		best := cs.bestCandidateLocked()
		if best == nil || (oldTip != nil && best.id == oldTip.id) {
			cs.mtx.Unlock()
			break
		}

		fork := LastCommonAncestor(oldTip, best)
		path := ancestryFrom(fork, best)
		if len(path) == 0 {
			cs.mtx.Unlock()
			break
		}
		if len(path) > activationBatchSize {
			path = path[:activationBatchSize]
		}
		newTip := path[len(path)-1]
		cs.active.SetTip(newTip)
		delete(cs.candidates, newTip.id)
		reorg := oldTip != nil && fork != nil && fork.id != oldTip.id
		cs.mtx.Unlock()

		cs.notifier.publish(TipChangeEvent{NewTip: newTip, Reorg: reorg})
		changed = true
	}
	return changed
}

func (cs *ChainState) bestCandidateLocked() *Node {
	var best *Node
	for _, n := range cs.candidates {
		if best == nil {
			best = n
			continue
		}
		switch n.chainWork.Cmp(&best.chainWork) {
		case 1:
			best = n
		case 0:
			if n.timeReceived.Before(best.timeReceived) {
				best = n
			} else if n.timeReceived.Equal(best.timeReceived) && n.id.Less(best.id) {
				best = n
			}
		}
	}
	return best
}

// ancestryFrom returns the nodes strictly above fork up to and
// including tip, in ascending height order.
func ancestryFrom(fork, tip *Node) []*Node {
	forkHeight := int64(-1)
	if fork != nil {
		forkHeight = fork.height
	}
	var path []*Node
	for node := tip; node != nil && node.height > forkHeight; node = node.parent {
		path = append(path, node)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Invalidate marks id and every descendant already in the index as
// failed, rewinds the active chain off of id if it was on it, and
// rebuilds the candidate set from the surviving nodes. It does not
// call ActivateBestChain itself; per spec.md §4.5, the caller decides
// when to re-run chain selection.
//
// Invalidating the height-1 block is rejected: it is the ASERT anchor
// (spec.md §4.3/§9.3), and every subsequent difficulty computation reads
// it directly off the active chain rather than walking from genesis, so
// removing it would leave every other node's expected target undefined
// rather than merely recomputed.
func (cs *ChainState) Invalidate(id primitives.Hash256) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	target := cs.index.LookupNode(id)
	if target == nil {
		return
	}
	if target.height == 1 {
		return
	}
	target.status |= StatusFailed
	cs.markFailed(id)

	for _, n := range cs.index.Nodes() {
		if n.id == id {
			continue
		}
		if isDescendant(n, target) {
			n.status |= StatusFailedChild
		}
	}

	if cs.active.Contains(target) {
		cs.active.SetTip(target.parent)
	}

	cs.rebuildCandidatesLocked()
}

func isDescendant(n, ancestor *Node) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.id == ancestor.id {
			return true
		}
	}
	return false
}

func (cs *ChainState) rebuildCandidatesLocked() {
	cs.candidates = make(map[primitives.Hash256]*Node)
	tip := cs.active.Tip()
	for _, n := range cs.index.Nodes() {
		if n.status.has(StatusFailed) || n.status.has(StatusFailedChild) {
			continue
		}
		if tip == nil || n.chainWork.Cmp(&tip.chainWork) >= 0 {
			cs.candidates[n.id] = n
		}
	}
}

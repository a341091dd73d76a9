package blockchain

import (
	"time"

	"github.com/coinbasechain/cbcd/primitives"
	"github.com/coinbasechain/cbcd/wire"
)

// Orphan caps and expiry, per spec.md §3.
const (
	MaxOrphanTotal   = 1000
	MaxOrphanPerPeer = 50
	OrphanTTL        = 600 * time.Second
)

type orphanEntry struct {
	header       wire.BlockHeader
	timeReceived time.Time
	peerID       int64
}

// orphanPool caches headers whose parent has not yet been seen, per
// spec.md §4.5.1/§4.5.2. It is not safe for concurrent use on its own;
// callers hold chainstate_lock (spec.md §5).
type orphanPool struct {
	byID        map[primitives.Hash256]*orphanEntry
	byPrevID    map[primitives.Hash256][]primitives.Hash256
	perPeer     map[int64]int
}

func newOrphanPool() *orphanPool {
	return &orphanPool{
		byID:     make(map[primitives.Hash256]*orphanEntry),
		byPrevID: make(map[primitives.Hash256][]primitives.Hash256),
		perPeer:  make(map[int64]int),
	}
}

func (p *orphanPool) len() int { return len(p.byID) }

// add caches h as an orphan from peerID, evicting expired and then
// oldest entries to make room when the pool is full. Returns false (and
// caches nothing) if the per-peer cap would be exceeded.
func (p *orphanPool) add(h *wire.BlockHeader, id primitives.Hash256, peerID int64) bool {
	if p.perPeer[peerID] >= MaxOrphanPerPeer {
		return false
	}
	if _, exists := p.byID[id]; exists {
		return true
	}

	if len(p.byID) >= MaxOrphanTotal {
		p.evictExpired()
	}
	if len(p.byID) >= MaxOrphanTotal {
		p.evictOldest()
	}

	entry := &orphanEntry{header: *h, timeReceived: time.Now(), peerID: peerID}
	p.byID[id] = entry
	p.byPrevID[h.PrevID] = append(p.byPrevID[h.PrevID], id)
	p.perPeer[peerID]++
	return true
}

func (p *orphanPool) remove(id primitives.Hash256) {
	entry, ok := p.byID[id]
	if !ok {
		return
	}
	delete(p.byID, id)
	p.perPeer[entry.peerID]--
	if p.perPeer[entry.peerID] <= 0 {
		delete(p.perPeer, entry.peerID)
	}

	siblings := p.byPrevID[entry.header.PrevID]
	for i, sib := range siblings {
		if sib == id {
			siblings = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(siblings) == 0 {
		delete(p.byPrevID, entry.header.PrevID)
	} else {
		p.byPrevID[entry.header.PrevID] = siblings
	}
}

// childrenOf removes and returns every orphan whose prev_id is parentID
// (spec.md §4.5.2's drain step). Each returned header is gone from the
// pool before its own children can be considered, preserving the
// strictly-decreasing orphans_total monovariant (spec.md §9).
func (p *orphanPool) childrenOf(parentID primitives.Hash256) []wire.BlockHeader {
	ids := append([]primitives.Hash256(nil), p.byPrevID[parentID]...)
	out := make([]wire.BlockHeader, 0, len(ids))
	for _, id := range ids {
		entry := p.byID[id]
		if entry == nil {
			continue
		}
		out = append(out, entry.header)
		p.remove(id)
	}
	return out
}

func (p *orphanPool) evictExpired() {
	deadline := time.Now().Add(-OrphanTTL)
	for id, entry := range p.byID {
		if entry.timeReceived.Before(deadline) {
			p.remove(id)
		}
	}
}

func (p *orphanPool) evictOldest() {
	var oldestID primitives.Hash256
	var oldestTime time.Time
	first := true
	for id, entry := range p.byID {
		if first || entry.timeReceived.Before(oldestTime) {
			oldestID = id
			oldestTime = entry.timeReceived
			first = false
		}
	}
	if !first {
		p.remove(oldestID)
	}
}

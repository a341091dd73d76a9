// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package netsync drives header download against peers: locator
// construction, batched HEADERS requests, stalling detection, and the
// unconnecting-headers counter, per spec.md §4.10. Incoming batches are
// not checked against a minimum chain work. exccd carries no
// netsync/server source in this tree (only go.mod-only stub
// directories), so the locator-walk and per-sync-peer state machine
// here follow bsv-blockchain-teranode's services/legacy/netsync
// manager.go instead, trimmed to a headers-only pipeline (no
// block/tx/inv download queues).
package netsync

import (
	"sync"
	"time"

	"github.com/coinbasechain/cbcd/blockchain"
	"github.com/coinbasechain/cbcd/peer"
	"github.com/coinbasechain/cbcd/primitives"
	"github.com/coinbasechain/cbcd/wire"
	"github.com/decred/slog"
)

// Tuning constants, per spec.md §4.6.
const (
	StallTimeout           = 20 * time.Minute
	MaxUnconnectingHeaders = 10
)

type peerSyncState struct {
	syncCandidate      bool
	lastHeadersRequest time.Time
	unconnectingCount  int
	requestedStop      primitives.Hash256
}

// Manager drives header sync across all connected peers.
type Manager struct {
	chain *blockchain.ChainState
	log   slog.Logger

	mtx       sync.Mutex
	states    map[int64]*peerSyncState
	syncPeer  *peer.Peer
}

// New constructs a sync Manager bound to chain.
func New(chain *blockchain.ChainState, log slog.Logger) *Manager {
	return &Manager{
		chain:  chain,
		log:    log,
		states: make(map[int64]*peerSyncState),
	}
}

// NewPeer registers p as a sync candidate and, if no sync peer is
// currently assigned, starts pulling headers from it.
func (m *Manager) NewPeer(p *peer.Peer) {
	m.mtx.Lock()
	m.states[p.ID()] = &peerSyncState{syncCandidate: true}
	needsSyncPeer := m.syncPeer == nil
	if needsSyncPeer {
		m.syncPeer = p
	}
	m.mtx.Unlock()

	if needsSyncPeer {
		m.requestHeaders(p)
	}
}

// LostPeer drops p's sync state and, if it was the sync peer,
// reassigns one of the survivors.
func (m *Manager) LostPeer(p *peer.Peer, remaining []*peer.Peer) {
	m.mtx.Lock()
	delete(m.states, p.ID())
	wasSyncPeer := m.syncPeer != nil && m.syncPeer.ID() == p.ID()
	if wasSyncPeer {
		m.syncPeer = nil
	}
	m.mtx.Unlock()

	if !wasSyncPeer {
		return
	}
	for _, candidate := range remaining {
		if candidate.State() == peer.StateReady {
			m.mtx.Lock()
			m.syncPeer = candidate
			m.mtx.Unlock()
			m.requestHeaders(candidate)
			return
		}
	}
}

// buildLocator constructs a block locator from the active chain tip:
// the 11 most recent heights one apart, then exponentially back-spaced, ending
// at genesis, capped at wire.MaxLocatorHashes (spec.md §4.6).
func (m *Manager) buildLocator() []primitives.Hash256 {
	tip := m.chain.Tip()
	if tip == nil {
		return nil
	}

	var locator []primitives.Hash256
	step := int64(1)
	height := tip.Height()
	for height >= 0 {
		n := m.chain.NodeByHeight(height)
		if n == nil {
			break
		}
		locator = append(locator, n.ID())
		if len(locator) >= wire.MaxLocatorHashes {
			break
		}
		if len(locator) > 10 {
			step *= 2
		}
		height -= step
	}
	if len(locator) == 0 || locator[len(locator)-1] != m.genesisID() {
		if g := m.chain.NodeByHeight(0); g != nil {
			locator = append(locator, g.ID())
		}
	}
	return locator
}

func (m *Manager) genesisID() primitives.Hash256 {
	if g := m.chain.NodeByHeight(0); g != nil {
		return g.ID()
	}
	return primitives.Hash256{}
}

func (m *Manager) requestHeaders(p *peer.Peer) {
	locator := m.buildLocator()
	msg := &wire.MsgGetHeaders{
		ProtocolVersion:    1,
		BlockLocatorHashes: locator,
	}

	m.mtx.Lock()
	if st, ok := m.states[p.ID()]; ok {
		st.lastHeadersRequest = time.Now()
	}
	m.mtx.Unlock()

	if err := p.SendGetHeaders(msg); err != nil && m.log != nil {
		m.log.Debugf("netsync: failed to request headers from %s: %v", p.Addr(), err)
	}
}

// OnHeaders processes a HEADERS reply following spec.md §4.10 step 2:
// a COMMITMENT_ONLY PoW pre-filter, a batch-continuity pre-filter, then
// AcceptHeader per header and chain-selection. An empty, non-connecting
// batch ends that peer's sync turn.
func (m *Manager) OnHeaders(p *peer.Peer, msg *wire.MsgHeaders) {
	if len(msg.Headers) == 0 {
		m.maybeAdvanceSyncPeer(p)
		return
	}

	// Step 2b: cheap PoW pre-filter over the whole batch.
	if err := m.chain.CheckHeadersPoW(msg.Headers); err != nil {
		if p.AddMisbehavior(peer.ScoreInvalidPoW, "headers batch failed pow pre-filter") {
			p.Disconnect()
		}
		return
	}

	// Step 2c: each header must chain directly off the previous one in
	// the batch; a gap means the peer is lying about what it has.
	for i := 1; i < len(msg.Headers); i++ {
		if msg.Headers[i].PrevID != msg.Headers[i-1].BlockHash() {
			if p.AddMisbehavior(peer.ScoreNonContinuousHeaders, "non-continuous headers batch") {
				p.Disconnect()
			}
			return
		}
	}

	accepted := 0
	for i := range msg.Headers {
		result := m.chain.AcceptHeader(&msg.Headers[i], p.ID())
		switch result.Outcome {
		case blockchain.Accepted:
			accepted++
		case blockchain.Invalid:
			if p.AddMisbehavior(invalidHeaderScore(result.Err), "invalid header") {
				p.Disconnect()
				return
			}
		case blockchain.Orphaned:
			m.mtx.Lock()
			st := m.states[p.ID()]
			if st == nil {
				st = &peerSyncState{}
				m.states[p.ID()] = st
			}
			m.mtx.Unlock()
			if st != nil {
				st.unconnectingCount++
				if st.unconnectingCount > MaxUnconnectingHeaders {
					if p.AddMisbehavior(peer.ScoreTooManyUnconnecting, "too many unconnecting headers") {
						p.Disconnect()
					}
					return
				}
			}
		}
	}

	if accepted > 0 {
		m.chain.ActivateBestChain()
	}

	if len(msg.Headers) == wire.MaxHeadersPerMsg {
		m.requestHeaders(p)
	} else {
		m.maybeAdvanceSyncPeer(p)
	}
}

// invalidHeaderScore maps an AcceptHeader validation failure to the
// spec.md §4.7 penalty that best identifies it: a blown orphan cap is
// TOO_MANY_ORPHANS, a bad PoW commitment is INVALID_POW, and every
// other validation failure (bad version, bad difficulty, bad prev,
// bad genesis claim, non-canonical bits, bad timestamp) is the generic
// INVALID_HEADER penalty.
func invalidHeaderScore(err error) int {
	ve, ok := err.(*blockchain.ValidationError)
	if !ok {
		return peer.ScoreInvalidHeader
	}
	switch ve.Kind {
	case blockchain.ErrOrphanLimit:
		return peer.ScoreTooManyOrphans
	case blockchain.ErrBadPoW:
		return peer.ScoreInvalidPoW
	default:
		return peer.ScoreInvalidHeader
	}
}

func (m *Manager) maybeAdvanceSyncPeer(p *peer.Peer) {
	m.mtx.Lock()
	isSyncPeer := m.syncPeer != nil && m.syncPeer.ID() == p.ID()
	m.mtx.Unlock()
	if isSyncPeer && m.log != nil {
		m.log.Debugf("netsync: %s reports no further headers, sync caught up", p.Addr())
	}
}

// OnGetHeaders answers a peer's locator with up to
// wire.MaxHeadersPerMsg headers starting after the first locator entry
// we recognize.
func (m *Manager) OnGetHeaders(p *peer.Peer, msg *wire.MsgGetHeaders) {
	start := int64(0)
	for _, hash := range msg.BlockLocatorHashes {
		if n := m.chain.LookupNode(hash); n != nil {
			start = n.Height() + 1
			break
		}
	}

	var headers []wire.BlockHeader
	for h := start; h < start+int64(wire.MaxHeadersPerMsg); h++ {
		n := m.chain.NodeByHeight(h)
		if n == nil {
			break
		}
		hdr := n.Header()
		if hdr.BlockHash() == msg.HashStop {
			headers = append(headers, hdr)
			break
		}
		headers = append(headers, hdr)
	}

	if err := p.SendHeaders(&wire.MsgHeaders{Headers: headers}); err != nil && m.log != nil {
		m.log.Debugf("netsync: failed to send headers to %s: %v", p.Addr(), err)
	}
}

// CheckStalls disconnects the current sync peer if it has not answered
// a headers request within StallTimeout, so a single unresponsive peer
// cannot stall sync forever.
func (m *Manager) CheckStalls() {
	m.mtx.Lock()
	p := m.syncPeer
	var st *peerSyncState
	if p != nil {
		st = m.states[p.ID()]
	}
	m.mtx.Unlock()

	if p == nil || st == nil || st.lastHeadersRequest.IsZero() {
		return
	}
	if time.Since(st.lastHeadersRequest) > StallTimeout {
		if m.log != nil {
			m.log.Warnf("netsync: sync peer %s stalled, disconnecting", p.Addr())
		}
		p.Disconnect()
	}
}

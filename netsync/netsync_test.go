package netsync

import (
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/coinbasechain/cbcd/blockchain"
	"github.com/coinbasechain/cbcd/chaincfg"
	"github.com/coinbasechain/cbcd/peer"
	"github.com/coinbasechain/cbcd/pow"
	"github.com/coinbasechain/cbcd/primitives"
	"github.com/coinbasechain/cbcd/wire"
)

const testMagic = wire.Network(0xfeedface)

func testChain(t *testing.T) (*blockchain.ChainState, *chaincfg.Params, *pow.Engine) {
	t.Helper()
	params := chaincfg.RegNetParams()
	engine := pow.NewEngine(params.PowSeed)
	return blockchain.New(params, engine), params, engine
}

// mustMineSatisfying searches nonces until the header's PoW artifact
// actually satisfies bits, the way extendActiveChain's blockchain-package
// counterpart does for the chainstate tests.
func mustMineSatisfying(t *testing.T, engine *pow.Engine, prevID primitives.Hash256, blockTime uint32, bits uint32) wire.BlockHeader {
	t.Helper()
	target := primitives.CompactToBig(bits)

	for nonce := uint32(0); nonce < 200000; nonce++ {
		h := wire.BlockHeader{
			Version: 1,
			PrevID:  prevID,
			Time:    blockTime,
			Bits:    bits,
			Nonce:   nonce,
		}
		artifact, err := engine.Compute(&h)
		if err != nil {
			t.Fatalf("engine.Compute: %v", err)
		}
		h.PowCommitment = artifact

		reversed := make([]byte, len(artifact))
		for i := range artifact {
			reversed[i] = artifact[len(artifact)-1-i]
		}
		if new(big.Int).SetBytes(reversed).Cmp(target) <= 0 {
			return h
		}
	}
	t.Fatalf("could not find a nonce satisfying bits=%#08x", bits)
	return wire.BlockHeader{}
}

// readyPeer builds a Peer driven through a completed handshake over a
// net.Pipe so OnHeaders can exercise AddMisbehavior/Disconnect against a
// real Peer rather than a mock.
func readyPeer(t *testing.T) (*peer.Peer, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	p := peer.New(1, remote, peer.Config{Inbound: true, Magic: testMagic}, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := wire.WriteMessage(local, testMagic, &wire.MsgVersion{ProtocolVersion: 1, Nonce: 1}); err != nil {
		t.Fatalf("write version: %v", err)
	}
	local.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := wire.ReadMessage(local, testMagic); err != nil { // verack
		t.Fatalf("read verack: %v", err)
	}
	if _, err := wire.ReadMessage(local, testMagic); err != nil { // version
		t.Fatalf("read version: %v", err)
	}
	if err := wire.WriteMessage(local, testMagic, &wire.MsgVerAck{}); err != nil {
		t.Fatalf("write verack: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && p.State() != peer.StateReady {
		time.Sleep(5 * time.Millisecond)
	}
	if p.State() != peer.StateReady {
		t.Fatalf("peer never reached ready, stuck at %s", p.State())
	}
	return p, local
}

func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected the connection to be closed")
	}
}

// TestOnHeadersAcceptsConnectingBatch checks a single valid header
// extending the tip is accepted and activates the new best chain.
func TestOnHeadersAcceptsConnectingBatch(t *testing.T) {
	cs, params, engine := testChain(t)
	m := New(cs, nil)
	p, conn := readyPeer(t)
	defer conn.Close()
	defer p.Disconnect()

	genesis := cs.Tip()
	h := mustMineSatisfying(t, engine, genesis.ID(), uint32(time.Now().Unix()), params.PowLimitBits)

	m.OnHeaders(p, &wire.MsgHeaders{Headers: []wire.BlockHeader{h}})

	tip := cs.Tip()
	if tip.Height() != 1 || tip.ID() != h.BlockHash() {
		t.Fatalf("expected chain tip to advance to the accepted header")
	}
	if got := p.Misbehavior(); got != 0 {
		t.Fatalf("a valid header must not be scored, got misbehavior=%d", got)
	}
}

// TestOnHeadersRejectsNonContinuousBatch exercises the batch-continuity
// pre-filter: a batch whose second header does not chain off the first
// is rejected before either header reaches AcceptHeader, and is scored
// ScoreNonContinuousHeaders rather than treated as two independent
// headers.
func TestOnHeadersRejectsNonContinuousBatch(t *testing.T) {
	cs, params, engine := testChain(t)
	m := New(cs, nil)
	p, conn := readyPeer(t)
	defer conn.Close()
	defer p.Disconnect()

	genesis := cs.Tip()
	now := uint32(time.Now().Unix())
	h1 := mustMineSatisfying(t, engine, genesis.ID(), now, params.PowLimitBits)
	// h2 claims to extend genesis directly too, not h1, so the batch is
	// not a contiguous chain.
	h2 := mustMineSatisfying(t, engine, genesis.ID(), now+1, params.PowLimitBits)

	m.OnHeaders(p, &wire.MsgHeaders{Headers: []wire.BlockHeader{h1, h2}})

	if got := p.Misbehavior(); got != peer.ScoreNonContinuousHeaders {
		t.Fatalf("misbehavior = %d, want %d", got, peer.ScoreNonContinuousHeaders)
	}
	if cs.Tip().Height() != 0 {
		t.Fatal("neither header in a rejected batch should be accepted")
	}
}

// TestOnHeadersOrphanFloodDisconnectsPeer reconstructs scenario S3: a
// peer sends more unconnecting (orphan) headers than
// MaxUnconnectingHeaders allows, each with an unrelated random prev_id,
// and must be scored ScoreTooManyUnconnecting and disconnected once the
// misbehavior threshold is crossed.
func TestOnHeadersOrphanFloodDisconnectsPeer(t *testing.T) {
	cs, params, engine := testChain(t)
	m := New(cs, nil)
	p, conn := readyPeer(t)
	defer conn.Close()

	now := uint32(time.Now().Unix())
	for i := 0; i <= MaxUnconnectingHeaders; i++ {
		var prev primitives.Hash256
		prev[0] = byte(i + 1)
		h := mustMineSatisfying(t, engine, prev, now+uint32(i), params.PowLimitBits)
		m.OnHeaders(p, &wire.MsgHeaders{Headers: []wire.BlockHeader{h}})
		if p.State() == peer.StateDisconnected {
			break
		}
	}

	if p.State() != peer.StateDisconnected {
		t.Fatalf("expected an orphan flood to disconnect the peer, state=%s misbehavior=%d", p.State(), p.Misbehavior())
	}
	expectClosed(t, conn)
}

// TestOnHeadersEmptyBatchEndsSyncTurn checks an empty HEADERS reply is
// treated as "caught up" rather than scored or disconnected.
func TestOnHeadersEmptyBatchEndsSyncTurn(t *testing.T) {
	cs, _, _ := testChain(t)
	m := New(cs, nil)
	p, conn := readyPeer(t)
	defer conn.Close()
	defer p.Disconnect()

	m.NewPeer(p)
	m.OnHeaders(p, &wire.MsgHeaders{})

	if got := p.Misbehavior(); got != 0 {
		t.Fatalf("an empty headers batch must not be scored, got %d", got)
	}
}

// TestOnGetHeadersAnswersFromLocator checks a locator naming the
// genesis id gets every subsequent header in the active chain back.
func TestOnGetHeadersAnswersFromLocator(t *testing.T) {
	cs, params, engine := testChain(t)
	m := New(cs, nil)
	p, conn := readyPeer(t)
	defer conn.Close()
	defer p.Disconnect()

	genesis := cs.Tip()
	h := mustMineSatisfying(t, engine, genesis.ID(), uint32(time.Now().Unix()), params.PowLimitBits)
	if res := cs.AcceptHeader(&h, 1); res.Outcome != blockchain.Accepted {
		t.Fatalf("setup: AcceptHeader outcome = %v", res.Outcome)
	}
	cs.ActivateBestChain()

	done := make(chan *wire.MsgHeaders, 1)
	go func() {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		msg, err := wire.ReadMessage(conn, testMagic)
		if err != nil {
			t.Errorf("ReadMessage: %v", err)
			done <- nil
			return
		}
		headers, ok := msg.(*wire.MsgHeaders)
		if !ok {
			t.Errorf("got %T, want *wire.MsgHeaders", msg)
			done <- nil
			return
		}
		done <- headers
	}()

	m.OnGetHeaders(p, &wire.MsgGetHeaders{BlockLocatorHashes: []primitives.Hash256{genesis.ID()}})

	got := <-done
	if got == nil {
		t.Fatal("did not receive a headers reply")
	}
	if len(got.Headers) != 1 || got.Headers[0].BlockHash() != h.BlockHash() {
		t.Fatalf("got %d headers, want the single header following genesis", len(got.Headers))
	}
}

// TestNewPeerAssignsSyncPeerOnce checks the first registered peer
// becomes the sync peer and a second registration does not replace it.
func TestNewPeerAssignsSyncPeerOnce(t *testing.T) {
	cs, _, _ := testChain(t)
	m := New(cs, nil)

	p1, conn1 := readyPeer(t)
	defer conn1.Close()
	defer p1.Disconnect()
	p2, conn2 := readyPeer(t)
	defer conn2.Close()
	defer p2.Disconnect()

	m.NewPeer(p1)
	conn1.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := wire.ReadMessage(conn1, testMagic); err != nil {
		t.Fatalf("expected the first peer to receive a getheaders request: %v", err)
	}

	m.NewPeer(p2)

	m.mtx.Lock()
	syncPeer := m.syncPeer
	m.mtx.Unlock()
	if syncPeer == nil || syncPeer.ID() != p1.ID() {
		t.Fatal("expected the first registered peer to remain the sync peer")
	}
}

// TestLostPeerReassignsSyncPeer checks losing the current sync peer
// hands sync off to a remaining ready candidate.
func TestLostPeerReassignsSyncPeer(t *testing.T) {
	cs, _, _ := testChain(t)
	m := New(cs, nil)

	p1, conn1 := readyPeer(t)
	defer conn1.Close()
	p2, conn2 := readyPeer(t)
	defer conn2.Close()
	defer p2.Disconnect()

	m.NewPeer(p1)
	conn1.SetReadDeadline(time.Now().Add(2 * time.Second))
	wire.ReadMessage(conn1, testMagic) // drain p1's getheaders request

	m.LostPeer(p1, []*peer.Peer{p2})

	conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := wire.ReadMessage(conn2, testMagic); err != nil {
		t.Fatalf("expected the surviving peer to receive a getheaders request: %v", err)
	}

	m.mtx.Lock()
	syncPeer := m.syncPeer
	m.mtx.Unlock()
	if syncPeer == nil || syncPeer.ID() != p2.ID() {
		t.Fatal("expected the surviving peer to become the new sync peer")
	}
}

// TestCheckStallsDisconnectsUnresponsiveSyncPeer checks a sync peer
// that never answers its getheaders request within StallTimeout is
// disconnected.
func TestCheckStallsDisconnectsUnresponsiveSyncPeer(t *testing.T) {
	cs, _, _ := testChain(t)
	m := New(cs, nil)
	p, conn := readyPeer(t)
	defer conn.Close()

	m.NewPeer(p)

	m.mtx.Lock()
	m.states[p.ID()].lastHeadersRequest = time.Now().Add(-2 * StallTimeout)
	m.mtx.Unlock()

	m.CheckStalls()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && p.State() != peer.StateDisconnected {
		time.Sleep(5 * time.Millisecond)
	}
	if p.State() != peer.StateDisconnected {
		t.Fatal("expected a stalled sync peer to be disconnected")
	}
}

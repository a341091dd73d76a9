// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package peer implements the per-connection handshake state machine,
// ping/pong keepalive, and misbehavior scoring described in spec.md
// §4.7: a State machine driven by inbound wire.Message values, with
// callbacks the owning connection manager supplies rather than peer
// reaching back into connmgr directly. exccd/peer carries no source in
// this tree (its module directory is go.mod-only), so this follows the
// general shape of a single-reader-goroutine-per-connection peer
// rather than any specific teacher file.
package peer

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/coinbasechain/cbcd/wire"
	"github.com/decred/slog"
)

// State is a connection's position in the handshake/lifecycle state
// machine (spec.md §4.6).
type State int

const (
	StateConnecting State = iota
	StateAwaitingVersion
	StateAwaitingVerAck
	StateReady
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingVersion:
		return "awaiting_version"
	case StateAwaitingVerAck:
		return "awaiting_verack"
	case StateReady:
		return "ready"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Misbehavior point costs and the discouragement threshold, taken
// verbatim from spec.md §4.7's named penalty list.
const (
	MisbehaviorDiscourageThreshold = 100

	ScoreInvalidPoW           = 100
	ScoreInvalidHeader        = 100
	ScoreOversized            = 20
	ScoreNonContinuousHeaders = 20
	ScoreTooManyUnconnecting  = 100
	ScoreTooManyOrphans       = 100
	ScoreLowWork              = 10
)

// Keepalive timings, per spec.md §4.7.
const (
	PingInterval   = 2 * time.Minute
	PingTimeout    = 20 * time.Minute
	MaxRecvMessage = 5 * 1024 * 1024
)

// Config carries everything a Peer needs from its owner (connmgr):
// identity, callbacks, and the magic to frame messages with.
type Config struct {
	Magic           wire.Network
	ProtocolVersion int32
	UserAgent       string
	Services        uint64
	StartHeight     int32
	Inbound         bool

	// OnHeaders/OnAddr/OnInv/OnGetHeaders/OnGetAddr are invoked from the
	// peer's single read loop goroutine; handlers must not block.
	OnHeaders    func(p *Peer, msg *wire.MsgHeaders)
	OnAddr       func(p *Peer, msg *wire.MsgAddr)
	OnInv        func(p *Peer, msg *wire.MsgInv)
	OnGetHeaders func(p *Peer, msg *wire.MsgGetHeaders)
	OnGetAddr    func(p *Peer, msg *wire.MsgGetAddr)
	OnVersionAck func(p *Peer)
	OnDisconnect func(p *Peer)
}

// Peer is one connection's handshake state and keepalive bookkeeping.
type Peer struct {
	cfg  Config
	conn net.Conn
	log  slog.Logger

	addr string
	id   int64

	mtx             sync.Mutex
	state           State
	misbehavior     int
	localNonce      uint64
	gotVersion      bool
	gotVerAck       bool
	remoteVersion   *wire.MsgVersion
	lastPingNonce   uint64
	lastPingSent    time.Time
	lastPongRecv    time.Time
	lastRecvTime    time.Time
	disconnectOnce  sync.Once
	writeMtx        sync.Mutex
}

// New wraps conn in a Peer in StateConnecting, ready to start the
// handshake with Start.
func New(id int64, conn net.Conn, cfg Config, log slog.Logger) *Peer {
	return &Peer{
		cfg:          cfg,
		conn:         conn,
		log:          log,
		addr:         conn.RemoteAddr().String(),
		id:           id,
		state:        StateConnecting,
		lastRecvTime: time.Now(),
	}
}

func (p *Peer) ID() int64       { return p.id }
func (p *Peer) Addr() string    { return p.addr }
func (p *Peer) Inbound() bool   { return p.cfg.Inbound }

func (p *Peer) State() State {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.state
}

func (p *Peer) setState(s State) {
	p.mtx.Lock()
	p.state = s
	p.mtx.Unlock()
}

// Misbehavior returns the accumulated misbehavior score.
func (p *Peer) Misbehavior() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.misbehavior
}

// AddMisbehavior adds points to the peer's score and reports whether
// the discouragement threshold has now been crossed.
func (p *Peer) AddMisbehavior(points int, reason string) (discouraged bool) {
	p.mtx.Lock()
	p.misbehavior += points
	score := p.misbehavior
	p.mtx.Unlock()

	if p.log != nil {
		p.log.Debugf("peer %s misbehavior +%d (%s), total=%d", p.addr, points, reason, score)
	}
	return score >= MisbehaviorDiscourageThreshold
}

// Start performs the outbound handshake handoff and launches the read
// loop. Inbound peers wait for the remote VERSION first; outbound
// peers send theirs immediately.
func (p *Peer) Start() error {
	nonce, err := randomNonce()
	if err != nil {
		return err
	}
	p.mtx.Lock()
	p.localNonce = nonce
	p.mtx.Unlock()

	if !p.cfg.Inbound {
		p.setState(StateAwaitingVersion)
		if err := p.sendVersion(); err != nil {
			return err
		}
	} else {
		p.setState(StateAwaitingVersion)
	}

	go p.readLoop()
	go p.pingLoop()
	return nil
}

func randomNonce() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (p *Peer) sendVersion() error {
	v := &wire.MsgVersion{
		ProtocolVersion: p.cfg.ProtocolVersion,
		Services:        p.cfg.Services,
		Timestamp:       time.Now().Unix(),
		Nonce:           p.localNonce,
		UserAgent:       p.cfg.UserAgent,
		StartHeight:     p.cfg.StartHeight,
		Relay:           true,
	}
	return p.send(v)
}

func (p *Peer) send(msg wire.Message) error {
	p.writeMtx.Lock()
	defer p.writeMtx.Unlock()
	return wire.WriteMessage(p.conn, p.cfg.Magic, msg)
}

// readLoop is the single goroutine that ever calls wire.ReadMessage on
// this connection, so handshake state transitions never race.
func (p *Peer) readLoop() {
	defer p.disconnect()

	for {
		msg, err := wire.ReadMessage(p.conn, p.cfg.Magic)
		if err != nil {
			if p.log != nil {
				p.log.Debugf("peer %s: read error: %v", p.addr, err)
			}
			return
		}
		p.mtx.Lock()
		p.lastRecvTime = time.Now()
		p.mtx.Unlock()

		if p.dispatch(msg) {
			return
		}
	}
}

// dispatch handles one message against the current handshake state,
// returning true if the connection should be torn down.
func (p *Peer) dispatch(msg wire.Message) bool {
	switch m := msg.(type) {
	case *wire.MsgVersion:
		return p.handleVersion(m)
	case *wire.MsgVerAck:
		return p.handleVerAck()
	case *wire.MsgPing:
		_ = p.send(&wire.MsgPong{Nonce: m.Nonce})
		return false
	case *wire.MsgPong:
		p.mtx.Lock()
		matches := m.Nonce == p.lastPingNonce
		if matches {
			p.lastPongRecv = time.Now()
		}
		p.mtx.Unlock()
		return false
	case *wire.MsgHeaders:
		if !p.readyFor(m.Command()) {
			return true
		}
		if p.cfg.OnHeaders != nil {
			p.cfg.OnHeaders(p, m)
		}
		return false
	case *wire.MsgAddr:
		if !p.readyFor(m.Command()) {
			return true
		}
		if p.cfg.OnAddr != nil {
			p.cfg.OnAddr(p, m)
		}
		return false
	case *wire.MsgInv:
		if !p.readyFor(m.Command()) {
			return true
		}
		if p.cfg.OnInv != nil {
			p.cfg.OnInv(p, m)
		}
		return false
	case *wire.MsgGetHeaders:
		if !p.readyFor(m.Command()) {
			return true
		}
		if p.cfg.OnGetHeaders != nil {
			p.cfg.OnGetHeaders(p, m)
		}
		return false
	case *wire.MsgGetAddr:
		if !p.readyFor(m.Command()) {
			return true
		}
		if p.cfg.OnGetAddr != nil {
			p.cfg.OnGetAddr(p, m)
		}
		return false
	case *wire.MsgUnknown:
		if p.log != nil {
			p.log.Debugf("peer %s: ignoring unknown command %q", p.addr, m.CommandName)
		}
		return false
	default:
		return false
	}
}

// readyFor reports whether the handshake has completed. Any
// post-handshake message arriving before StateReady is disconnected
// directly per spec.md §4.7's ready-state transition table; it is not
// one of the named misbehavior penalties, so it is not scored.
func (p *Peer) readyFor(command string) bool {
	if p.State() == StateReady {
		return true
	}
	if p.log != nil {
		p.log.Debugf("peer %s: %s before handshake complete, disconnecting", p.addr, command)
	}
	return false
}

func (p *Peer) handleVersion(m *wire.MsgVersion) bool {
	p.mtx.Lock()
	if p.gotVersion {
		p.mtx.Unlock()
		// Duplicate VERSION is ignored per spec.md §4.7 ("per Bitcoin
		// Core behavior; MAY log"), not a disconnect or scored event.
		if p.log != nil {
			p.log.Debugf("peer %s: duplicate version, ignoring", p.addr)
		}
		return false
	}
	if m.Nonce == p.localNonce {
		p.mtx.Unlock()
		if p.log != nil {
			p.log.Debugf("peer %s: self-connection detected, dropping", p.addr)
		}
		return true
	}
	p.gotVersion = true
	p.remoteVersion = m
	p.mtx.Unlock()

	if err := p.send(&wire.MsgVerAck{}); err != nil {
		return true
	}
	if p.cfg.Inbound {
		if err := p.sendVersion(); err != nil {
			return true
		}
	}
	p.mtx.Lock()
	acked := p.gotVerAck
	p.mtx.Unlock()
	if acked {
		// Outbound: the VERACK for our VERSION already arrived.
		p.setState(StateReady)
		if p.cfg.OnVersionAck != nil {
			p.cfg.OnVersionAck(p)
		}
		return false
	}
	p.setState(StateAwaitingVerAck)
	return false
}

func (p *Peer) handleVerAck() bool {
	p.mtx.Lock()
	if !p.gotVersion && p.cfg.Inbound {
		p.mtx.Unlock()
		// On an inbound peer, VERACK before VERSION is a protocol
		// violation per spec.md §4.7, unlike a duplicate VERACK, which
		// is merely ignored.
		if p.log != nil {
			p.log.Debugf("peer %s: verack before version, disconnecting", p.addr)
		}
		return true
	}
	if p.gotVerAck {
		p.mtx.Unlock()
		if p.log != nil {
			p.log.Debugf("peer %s: duplicate verack, ignoring", p.addr)
		}
		return false
	}
	p.gotVerAck = true
	gotVersion := p.gotVersion
	p.mtx.Unlock()

	if !gotVersion {
		// Outbound: this VERACK answers the VERSION sent on Start; the
		// handshake completes when the remote VERSION arrives.
		return false
	}
	p.setState(StateReady)
	if p.cfg.OnVersionAck != nil {
		p.cfg.OnVersionAck(p)
	}
	return false
}

// pingLoop sends a ping every PingInterval once the handshake is
// ready, and disconnects if no pong (or any traffic) has arrived
// within PingTimeout.
func (p *Peer) pingLoop() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		if p.State() == StateDisconnected {
			return
		}
		p.mtx.Lock()
		idle := time.Since(p.lastRecvTime)
		p.mtx.Unlock()
		if idle > PingTimeout {
			if p.log != nil {
				p.log.Debugf("peer %s: ping timeout, disconnecting", p.addr)
			}
			p.disconnect()
			return
		}
		if p.State() != StateReady {
			continue
		}

		nonce, err := randomNonce()
		if err != nil {
			continue
		}
		p.mtx.Lock()
		p.lastPingNonce = nonce
		p.lastPingSent = time.Now()
		p.mtx.Unlock()
		_ = p.send(&wire.MsgPing{Nonce: nonce})
	}
}

// SendHeaders/SendGetHeaders/SendAddr/SendInv/SendGetAddr are thin,
// typed wrappers netsync and addrmgr use instead of calling send
// directly with a raw wire.Message.
func (p *Peer) SendHeaders(m *wire.MsgHeaders) error       { return p.send(m) }
func (p *Peer) SendGetHeaders(m *wire.MsgGetHeaders) error { return p.send(m) }
func (p *Peer) SendAddr(m *wire.MsgAddr) error             { return p.send(m) }
func (p *Peer) SendInv(m *wire.MsgInv) error               { return p.send(m) }
func (p *Peer) SendGetAddr() error                         { return p.send(&wire.MsgGetAddr{}) }

// Disconnect closes the connection if not already closed.
func (p *Peer) Disconnect() { p.disconnect() }

func (p *Peer) disconnect() {
	p.disconnectOnce.Do(func() {
		p.setState(StateDisconnecting)
		p.conn.Close()
		p.setState(StateDisconnected)
		if p.cfg.OnDisconnect != nil {
			p.cfg.OnDisconnect(p)
		}
	})
}

// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package connmgr bounds and manages the node's peer connections:
// inbound/outbound caps, eviction when an inbound slot is needed,
// discouragement and the persistent ban list, and anchor-peer
// selection, per spec.md §4.8. exccd/connmgr carries no source in this
// tree (its module directory is go.mod-only) and no other pack repo
// implements connection-cap enforcement or eviction scoring, so this
// package is an original implementation of spec.md §4.8's own
// cap/evict/discourage/anchor rules rather than a port of a specific
// teacher file; its ban/anchor persistence still goes through
// storage, the same atomic-JSON discipline every other persisted
// component in this tree uses.
package connmgr

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/coinbasechain/cbcd/peer"
	"github.com/coinbasechain/cbcd/storage"
	"github.com/coinbasechain/cbcd/transport"
	"github.com/decred/slog"
)

// Connection caps, per spec.md §4.6.
const (
	MaxInboundPeers  = 125
	MaxOutboundPeers = 8
	AnchorCount      = 3
	DiscourageTTL    = 24 * time.Hour
)

// Config configures a Manager.
type Config struct {
	Dialer       transport.Dialer
	Listener     transport.Listener
	DataDir      string
	Log          slog.Logger
	PeerConfig   peer.Config
	OnNewPeer    func(p *peer.Peer)
	OnLostPeer   func(p *peer.Peer)
}

type banRecord struct {
	reason    string
	createdAt time.Time
	expiresAt time.Time
}

// Manager owns every live peer connection and the persistent ban
// list.
type Manager struct {
	cfg Config

	mtx        sync.Mutex
	nextID     int64
	inbound    map[int64]*peer.Peer
	outbound   map[int64]*peer.Peer
	discourage map[string]banRecord

	anchors []storage.AnchorAddr

	wg   sync.WaitGroup
	stop chan struct{}
}

// New constructs a Manager and loads any persisted ban list and
// anchors from cfg.DataDir.
func New(cfg Config) *Manager {
	m := &Manager{
		cfg:        cfg,
		inbound:    make(map[int64]*peer.Peer),
		outbound:   make(map[int64]*peer.Peer),
		discourage: make(map[string]banRecord),
		stop:       make(chan struct{}),
	}

	now := time.Now()
	for _, b := range storage.LoadBanlist(cfg.DataDir, cfg.Log) {
		if now.Before(b.ExpiresAt) {
			m.discourage[b.IP] = banRecord{reason: b.Reason, createdAt: b.CreatedAt, expiresAt: b.ExpiresAt}
		}
	}
	m.anchors = storage.LoadAnchors(cfg.DataDir, cfg.Log)
	return m
}

// Anchors returns the persisted anchor peers to try first on startup.
func (m *Manager) Anchors() []storage.AnchorAddr {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return append([]storage.AnchorAddr(nil), m.anchors...)
}

// IsDiscouraged reports whether ip is currently banned/discouraged.
func (m *Manager) IsDiscouraged(ip string) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	rec, ok := m.discourage[ip]
	if !ok {
		return false
	}
	if time.Now().After(rec.expiresAt) {
		delete(m.discourage, ip)
		return false
	}
	return true
}

// Discourage bans ip for DiscourageTTL and persists the updated ban
// list.
func (m *Manager) Discourage(ip, reason string) {
	m.mtx.Lock()
	now := time.Now()
	m.discourage[ip] = banRecord{reason: reason, createdAt: now, expiresAt: now.Add(DiscourageTTL)}
	entries := m.banlistLocked()
	m.mtx.Unlock()

	storage.SaveBanlist(m.cfg.DataDir, m.cfg.Log, entries)
}

func (m *Manager) banlistLocked() []storage.BanEntry {
	out := make([]storage.BanEntry, 0, len(m.discourage))
	for ip, rec := range m.discourage {
		out = append(out, storage.BanEntry{IP: ip, Reason: rec.reason, CreatedAt: rec.createdAt, ExpiresAt: rec.expiresAt})
	}
	return out
}

// ConnectOutbound dials address and registers the resulting peer as
// soon as the connection is open, before any handshake message has been
// exchanged. It blocks until the TCP-level connect
// completes or ctx is cancelled; the handshake itself proceeds
// asynchronously.
func (m *Manager) ConnectOutbound(ctx context.Context, address string) (*peer.Peer, error) {
	host, _, err := net.SplitHostPort(address)
	if err == nil && m.IsDiscouraged(host) {
		return nil, errDiscouraged(address)
	}

	m.mtx.Lock()
	if len(m.outbound) >= MaxOutboundPeers {
		m.mtx.Unlock()
		return nil, errTooManyOutbound
	}
	m.mtx.Unlock()

	conn, err := m.cfg.Dialer.Dial(ctx, address)
	if err != nil {
		return nil, err
	}

	cfg := m.cfg.PeerConfig
	cfg.Inbound = false
	p := m.register(conn, cfg, false)
	if err := p.Start(); err != nil {
		p.Disconnect()
		return nil, err
	}
	return p, nil
}

// Serve accepts inbound connections until ctx is cancelled, evicting
// the worst existing inbound peer when MaxInboundPeers is already
// reached so a well-behaved new peer always gets a chance.
func (m *Manager) Serve(ctx context.Context) {
	if m.cfg.Listener == nil {
		return
	}
	m.wg.Add(1)
	defer m.wg.Done()

	for {
		conn, err := m.cfg.Listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			default:
				if m.cfg.Log != nil {
					m.cfg.Log.Warnf("connmgr: accept error: %v", err)
				}
				continue
			}
		}

		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		if m.IsDiscouraged(host) {
			conn.Close()
			continue
		}

		m.mtx.Lock()
		if len(m.inbound) >= MaxInboundPeers {
			victim := m.worstInboundLocked()
			m.mtx.Unlock()
			if victim != nil {
				victim.Disconnect()
			}
		} else {
			m.mtx.Unlock()
		}

		cfg := m.cfg.PeerConfig
		cfg.Inbound = true
		p := m.register(conn, cfg, true)
		if err := p.Start(); err != nil {
			p.Disconnect()
		}
	}
}

// worstInboundLocked returns the inbound peer with the highest
// misbehavior score, the natural eviction candidate when the inbound
// table is full (spec.md §4.6).
func (m *Manager) worstInboundLocked() *peer.Peer {
	var worst *peer.Peer
	for _, p := range m.inbound {
		if worst == nil || p.Misbehavior() > worst.Misbehavior() {
			worst = p
		}
	}
	return worst
}

func (m *Manager) register(conn net.Conn, cfg peer.Config, inbound bool) *peer.Peer {
	m.mtx.Lock()
	id := m.nextID
	m.nextID++
	m.mtx.Unlock()

	cfg.OnDisconnect = m.wrapDisconnect(cfg.OnDisconnect)
	p := peer.New(id, conn, cfg, m.cfg.Log)

	m.mtx.Lock()
	if inbound {
		m.inbound[id] = p
	} else {
		m.outbound[id] = p
	}
	m.mtx.Unlock()

	if m.cfg.OnNewPeer != nil {
		m.cfg.OnNewPeer(p)
	}
	return p
}

func (m *Manager) wrapDisconnect(inner func(*peer.Peer)) func(*peer.Peer) {
	return func(p *peer.Peer) {
		m.mtx.Lock()
		delete(m.inbound, p.ID())
		delete(m.outbound, p.ID())
		m.mtx.Unlock()

		if inner != nil {
			inner(p)
		}
		if m.cfg.OnLostPeer != nil {
			m.cfg.OnLostPeer(p)
		}
	}
}

// Peers returns every currently connected peer.
func (m *Manager) Peers() []*peer.Peer {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	out := make([]*peer.Peer, 0, len(m.inbound)+len(m.outbound))
	for _, p := range m.inbound {
		out = append(out, p)
	}
	for _, p := range m.outbound {
		out = append(out, p)
	}
	return out
}

// PersistAnchors saves up to AnchorCount of the current outbound peers
// as anchors, to be retried first on the next startup (spec.md §4.6).
// Peers are taken in map iteration order; they are not ranked by
// connection time or misbehavior score.
func (m *Manager) PersistAnchors() {
	m.mtx.Lock()
	var anchors []storage.AnchorAddr
	for _, p := range m.outbound {
		host, portStr, err := net.SplitHostPort(p.Addr())
		if err != nil {
			continue
		}
		port, err := parsePort(portStr)
		if err != nil {
			continue
		}
		anchors = append(anchors, storage.AnchorAddr{IP: host, Port: port})
		if len(anchors) >= AnchorCount {
			break
		}
	}
	m.anchors = anchors
	m.mtx.Unlock()

	storage.SaveAnchors(m.cfg.DataDir, m.cfg.Log, anchors)
}

// Shutdown stops Serve and disconnects every peer.
func (m *Manager) Shutdown() {
	close(m.stop)
	if m.cfg.Listener != nil {
		m.cfg.Listener.Close()
	}
	for _, p := range m.Peers() {
		p.Disconnect()
	}
	m.wg.Wait()
}

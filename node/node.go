// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package node is the composition root that wires chaincfg, pow,
// blockchain, storage, transport, peer, connmgr, addrmgr, netsync and
// rpccore into one running process. No server.go or equivalent exists
// anywhere in this tree's copy of exccd, so this package is an
// original composition root for spec.md's own subsystem list, built in
// the same single-constructor, callback-wired style every other
// package here follows (one New, explicit dependency injection, no
// global state).
package node

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/coinbasechain/cbcd/addrmgr"
	"github.com/coinbasechain/cbcd/blockchain"
	"github.com/coinbasechain/cbcd/chaincfg"
	"github.com/coinbasechain/cbcd/connmgr"
	"github.com/coinbasechain/cbcd/internal/config"
	"github.com/coinbasechain/cbcd/internal/logger"
	"github.com/coinbasechain/cbcd/netsync"
	"github.com/coinbasechain/cbcd/peer"
	"github.com/coinbasechain/cbcd/pow"
	"github.com/coinbasechain/cbcd/rpccore"
	"github.com/coinbasechain/cbcd/transport"
	"github.com/coinbasechain/cbcd/wire"
	"github.com/decred/slog"
)

const protocolVersion = 1
const userAgent = "/cbcd:0.1.0/"

// Node owns every long-lived subsystem for one running process.
type Node struct {
	cfg    *config.Config
	params *chaincfg.Params

	log       slog.Logger
	chain     *blockchain.ChainState
	powEngine *pow.Engine
	addrs     *addrmgr.Manager
	conns     *connmgr.Manager
	sync      *netsync.Manager
	rpc       *rpccore.Server

	listener transport.Listener

	stallTicker *time.Ticker
	stop        chan struct{}
}

// New builds every subsystem but does not yet start networking.
func New(cfg *config.Config) (*Node, error) {
	params := selectParams(cfg)

	powEngine := pow.NewEngine(params.PowSeed)
	chain := blockchain.New(params, powEngine)

	addrs := addrmgr.New(cfg.DataDir, logger.Logger("AMGR"))
	addrs.BootstrapFromSeeds(params.DNSSeeds, parsePort(params.DefaultPort))

	n := &Node{
		cfg:       cfg,
		params:    params,
		log:       logger.Logger("NODE"),
		chain:     chain,
		powEngine: powEngine,
		addrs:     addrs,
		stop:      make(chan struct{}),
	}

	n.sync = netsync.New(chain, logger.Logger("SYNC"))

	var ln transport.Listener
	if cfg.Listen != "" {
		tcpLn, err := transport.Listen(cfg.Listen)
		if err != nil {
			return nil, err
		}
		ln = tcpLn
	}
	n.listener = ln

	n.conns = connmgr.New(connmgr.Config{
		Dialer:   transport.NewTCPDialer(),
		Listener: ln,
		DataDir:  cfg.DataDir,
		Log:      logger.Logger("CMGR"),
		PeerConfig: peer.Config{
			Magic:           params.Net,
			ProtocolVersion: protocolVersion,
			UserAgent:       userAgent,
			StartHeight:     0,
			OnHeaders:       n.sync.OnHeaders,
			OnGetHeaders:    n.sync.OnGetHeaders,
			OnAddr:          n.onAddr,
			OnGetAddr:       n.onGetAddr,
			OnVersionAck:    n.onVersionAck,
			OnDisconnect:    n.onDisconnect,
		},
		OnNewPeer:  n.sync.NewPeer,
		OnLostPeer: n.onLostPeer,
	})

	n.rpc = rpccore.New(chain, n.conns)

	return n, nil
}

func selectParams(cfg *config.Config) *chaincfg.Params {
	switch {
	case cfg.RegTest:
		return chaincfg.RegNetParams()
	case cfg.TestNet:
		return chaincfg.TestNetParams()
	default:
		return chaincfg.MainNetParams()
	}
}

func parsePort(s string) uint16 {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

func portStr(p uint16) string { return strconv.Itoa(int(p)) }

// Run starts accepting connections, dials outbound peers, and blocks
// until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	if n.listener != nil {
		go n.conns.Serve(ctx)
	}

	n.stallTicker = time.NewTicker(1 * time.Minute)
	go n.stallLoop()

	for _, a := range n.conns.Anchors() {
		go n.dialAddr(ctx, net.JoinHostPort(a.IP, portStr(a.Port)))
	}
	for _, addr := range n.cfg.ConnectPeer {
		go n.dialAddr(ctx, addr)
	}
	for _, addr := range n.cfg.AddPeer {
		go n.dialAddr(ctx, addr)
	}

	if n.cfg.RPCListen != "" {
		go func() {
			if err := n.rpc.ListenAndServe(n.cfg.RPCListen); err != nil && n.log != nil {
				n.log.Warnf("node: rpc server stopped: %v", err)
			}
		}()
	}

	go n.outboundLoop(ctx)

	<-ctx.Done()
	n.Shutdown()
	return nil
}

func (n *Node) dialAddr(ctx context.Context, addr string) {
	if _, err := n.conns.ConnectOutbound(ctx, addr); err != nil && n.log != nil {
		n.log.Debugf("node: failed to connect to %s: %v", addr, err)
	}
}

// outboundLoop periodically tops up outbound connections from the
// address manager until MaxOutboundPeers is reached.
func (n *Node) outboundLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stop:
			return
		case <-ticker.C:
			candidates := n.addrs.Select(n.cfg.MaxOutboundPeers)
			for _, c := range candidates {
				addr := net.JoinHostPort(c.IP, portStr(c.Port))
				go n.dialAddr(ctx, addr)
			}
		}
	}
}

func (n *Node) stallLoop() {
	for {
		select {
		case <-n.stallTicker.C:
			n.sync.CheckStalls()
		case <-n.stop:
			return
		}
	}
}

// onAddr relays a gossiped address list into the address manager,
// skipping anything already relayed recently.
func (n *Node) onAddr(p *peer.Peer, msg *wire.MsgAddr) {
	for _, a := range msg.AddrList {
		ip := a.IP.String()
		if !n.addrs.ShouldRelay(ip, a.Port) {
			continue
		}
		n.addrs.AddAddress(ip, a.Port, a.Services)
	}
}

// onGetAddr answers a GETADDR request with a random sample of known
// addresses.
func (n *Node) onGetAddr(p *peer.Peer, msg *wire.MsgGetAddr) {
	known := n.addrs.GetAddrReply()
	addrList := make([]wire.NetAddress, 0, len(known))
	for _, a := range known {
		ip := net.ParseIP(a.IP)
		if ip == nil {
			continue
		}
		addrList = append(addrList, wire.NetAddress{IP: ip, Port: a.Port, Services: a.Services})
	}
	_ = p.SendAddr(&wire.MsgAddr{AddrList: addrList})
}

func (n *Node) onVersionAck(p *peer.Peer) {
	if p.Inbound() {
		return
	}
	// Outbound peers are addressed by the host:port we dialed, which is
	// the same ip:port addrmgr tracks them under, so MarkTried can use
	// it directly rather than needing the peer's self-reported address.
	host, portStr, err := net.SplitHostPort(p.Addr())
	if err != nil {
		return
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return
	}
	n.addrs.MarkTried(host, uint16(port))
}

func (n *Node) onDisconnect(p *peer.Peer) {
	n.sync.LostPeer(p, n.conns.Peers())
}

func (n *Node) onLostPeer(p *peer.Peer) {
	if len(n.conns.Peers()) == 0 && n.log != nil {
		n.log.Warnf("node: lost all peers")
	}
}

// Shutdown stops every subsystem and persists address/ban/anchor
// state.
func (n *Node) Shutdown() {
	select {
	case <-n.stop:
	default:
		close(n.stop)
	}
	if n.stallTicker != nil {
		n.stallTicker.Stop()
	}
	n.conns.PersistAnchors()
	n.conns.Shutdown()
	n.addrs.Persist()
	logger.Close()
}

package connmgr

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/coinbasechain/cbcd/peer"
	"github.com/coinbasechain/cbcd/transport"
)

// addrConn wraps a net.Conn to report a fixed host:port RemoteAddr, since
// net.Pipe's own RemoteAddr carries no host/port for peer.Addr()/
// net.SplitHostPort to parse.
type addrConn struct {
	net.Conn
	remote string
}

func (c addrConn) RemoteAddr() net.Addr { return fakeAddr(c.remote) }

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

func netPipe(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	return local, addrConn{Conn: remote, remote: "203.0.113.100:9590"}
}

func newTestManager(t *testing.T, net *transport.InMemoryNetwork, listenAddr string) (*Manager, transport.Listener) {
	t.Helper()
	var ln transport.Listener
	if listenAddr != "" {
		l, err := net.Listen(listenAddr)
		if err != nil {
			t.Fatalf("Listen: %v", err)
		}
		ln = l
	}
	m := New(Config{
		Dialer:   net.Dialer(),
		Listener: ln,
		DataDir:  t.TempDir(),
	})
	return m, ln
}

func waitForPeerCount(t *testing.T, m *Manager, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(m.Peers()) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("peer count never reached %d, stuck at %d", want, len(m.Peers()))
}

func TestConnectOutboundRegistersPeer(t *testing.T) {
	net := transport.NewInMemoryNetwork()
	server, _ := newTestManager(t, net, "server:9590")
	defer server.Shutdown()
	go server.Serve(context.Background())

	client, _ := newTestManager(t, net, "")
	defer client.Shutdown()

	p, err := client.ConnectOutbound(context.Background(), "server:9590")
	if err != nil {
		t.Fatalf("ConnectOutbound: %v", err)
	}
	if p == nil {
		t.Fatal("expected a non-nil peer")
	}

	waitForPeerCount(t, client, 1)
	waitForPeerCount(t, server, 1)
}

func TestConnectOutboundRejectsWhenDiscouraged(t *testing.T) {
	net := transport.NewInMemoryNetwork()
	m, _ := newTestManager(t, net, "")
	defer m.Shutdown()

	m.Discourage("203.0.113.7", "test")

	_, err := m.ConnectOutbound(context.Background(), "203.0.113.7:9590")
	if err == nil {
		t.Fatal("expected ConnectOutbound to a discouraged address to fail")
	}
}

func TestConnectOutboundRejectsOverCap(t *testing.T) {
	net := transport.NewInMemoryNetwork()
	m, _ := newTestManager(t, net, "")
	defer m.Shutdown()

	// Fill the outbound table directly without a real dial, since only
	// the cap check (not the handshake) is under test.
	for i := 0; i < MaxOutboundPeers; i++ {
		m.outbound[int64(i)] = nil
	}

	_, err := m.ConnectOutbound(context.Background(), "203.0.113.9:9590")
	if err != errTooManyOutbound {
		t.Fatalf("got err %v, want errTooManyOutbound", err)
	}
}

func TestDiscourageExpiresAfterTTL(t *testing.T) {
	net := transport.NewInMemoryNetwork()
	m, _ := newTestManager(t, net, "")
	defer m.Shutdown()

	m.mtx.Lock()
	m.discourage["203.0.113.50"] = banRecord{
		reason:    "test",
		createdAt: time.Now().Add(-2 * DiscourageTTL),
		expiresAt: time.Now().Add(-DiscourageTTL),
	}
	m.mtx.Unlock()

	if m.IsDiscouraged("203.0.113.50") {
		t.Fatal("expected an expired discourage entry to no longer apply")
	}
}

func TestDiscouragePersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	net := transport.NewInMemoryNetwork()

	m1 := New(Config{Dialer: net.Dialer(), DataDir: dir})
	m1.Discourage("198.51.100.20", "too many orphans")

	m2 := New(Config{Dialer: net.Dialer(), DataDir: dir})
	if !m2.IsDiscouraged("198.51.100.20") {
		t.Fatal("expected discourage entry to persist across restart")
	}
}

func TestWorstInboundLockedPicksHighestMisbehavior(t *testing.T) {
	net := transport.NewInMemoryNetwork()
	m, _ := newTestManager(t, net, "")
	defer m.Shutdown()

	local1, remote1 := netPipe(t)
	local2, remote2 := netPipe(t)
	defer local1.Close()
	defer local2.Close()

	low := peer.New(1, remote1, peer.Config{}, nil)
	high := peer.New(2, remote2, peer.Config{}, nil)
	high.AddMisbehavior(50, "test")

	m.mtx.Lock()
	m.inbound[1] = low
	m.inbound[2] = high
	victim := m.worstInboundLocked()
	m.mtx.Unlock()

	if victim != high {
		t.Fatalf("expected the higher-misbehavior peer to be picked for eviction")
	}
}

func TestPersistAnchorsRoundTrips(t *testing.T) {
	dir := t.TempDir()
	net := transport.NewInMemoryNetwork()
	m := New(Config{Dialer: net.Dialer(), DataDir: dir})

	local, remote := netPipe(t)
	defer local.Close()
	p := peer.New(1, remote, peer.Config{}, nil)

	m.mtx.Lock()
	m.outbound[1] = p
	m.mtx.Unlock()

	m.PersistAnchors()

	m2 := New(Config{Dialer: net.Dialer(), DataDir: dir})
	if len(m2.Anchors()) != 1 {
		t.Fatalf("expected one persisted anchor, got %d", len(m2.Anchors()))
	}
}

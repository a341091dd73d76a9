package peer

import (
	"net"
	"testing"
	"time"

	"github.com/coinbasechain/cbcd/wire"
)

const testMagic = wire.Network(0xfeedface)

// harness drives one side of a net.Pipe while a Peer under test owns the
// other end, so the handshake can be exercised message-by-message without a
// real socket.
type harness struct {
	t    *testing.T
	conn net.Conn
	p    *Peer
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	cfg.Magic = testMagic
	local, remote := net.Pipe()
	p := New(1, remote, cfg, nil)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return &harness{t: t, conn: local, p: p}
}

func (h *harness) send(msg wire.Message) {
	h.t.Helper()
	if err := wire.WriteMessage(h.conn, testMagic, msg); err != nil {
		h.t.Fatalf("send %s: %v", msg.Command(), err)
	}
}

func (h *harness) recv() wire.Message {
	h.t.Helper()
	h.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := wire.ReadMessage(h.conn, testMagic)
	if err != nil {
		h.t.Fatalf("recv: %v", err)
	}
	return msg
}

func (h *harness) expectClosed() {
	h.t.Helper()
	h.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := h.conn.Read(buf); err == nil {
		h.t.Fatalf("expected connection to be closed, but read succeeded")
	}
}

func waitForState(t *testing.T, p *Peer, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("peer never reached state %s, stuck at %s", want, p.State())
}

// TestInboundHandshakeCompletesReady drives a full inbound handshake
// (remote sends VERSION, we reply VERACK+VERSION, remote replies VERACK)
// and checks the peer reaches StateReady and fires OnVersionAck.
func TestInboundHandshakeCompletesReady(t *testing.T) {
	acked := make(chan struct{}, 1)
	h := newHarness(t, Config{
		Inbound: true,
		OnVersionAck: func(p *Peer) {
			select {
			case acked <- struct{}{}:
			default:
			}
		},
	})
	defer h.p.Disconnect()

	h.send(&wire.MsgVersion{ProtocolVersion: 1, Nonce: 0xaaaa})

	// Server replies with its own VERACK then VERSION for an inbound peer.
	first := h.recv()
	if first.Command() != wire.CmdVerAck {
		t.Fatalf("expected verack first, got %s", first.Command())
	}
	second := h.recv()
	if second.Command() != wire.CmdVersion {
		t.Fatalf("expected version second, got %s", second.Command())
	}

	h.send(&wire.MsgVerAck{})

	select {
	case <-acked:
	case <-time.After(2 * time.Second):
		t.Fatal("OnVersionAck never fired")
	}
	waitForState(t, h.p, StateReady)
}

// TestOutboundHandshakeSendsVersionFirst checks an outbound peer sends its
// VERSION immediately on Start without waiting for the remote.
func TestOutboundHandshakeSendsVersionFirst(t *testing.T) {
	h := newHarness(t, Config{Inbound: false})
	defer h.p.Disconnect()

	msg := h.recv()
	if msg.Command() != wire.CmdVersion {
		t.Fatalf("expected version, got %s", msg.Command())
	}

	h.send(&wire.MsgVerAck{})
	h.send(&wire.MsgVersion{ProtocolVersion: 1, Nonce: 0xbbbb})

	ack := h.recv()
	if ack.Command() != wire.CmdVerAck {
		t.Fatalf("expected verack reply, got %s", ack.Command())
	}
	waitForState(t, h.p, StateReady)
}

// TestDuplicateVersionIgnoredNotScored exercises spec.md §4.7: a second
// VERSION after the first is ignored (logged, not penalized or
// disconnected), contrary to treating it as a protocol violation.
func TestDuplicateVersionIgnoredNotScored(t *testing.T) {
	h := newHarness(t, Config{Inbound: true})
	defer h.p.Disconnect()

	h.send(&wire.MsgVersion{ProtocolVersion: 1, Nonce: 0xaaaa})
	h.recv() // verack
	h.recv() // version

	h.send(&wire.MsgVersion{ProtocolVersion: 1, Nonce: 0xcccc})

	// The peer should still be alive and able to complete the handshake.
	h.send(&wire.MsgVerAck{})
	waitForState(t, h.p, StateReady)
	if got := h.p.Misbehavior(); got != 0 {
		t.Fatalf("duplicate version should not be scored, got misbehavior=%d", got)
	}
}

// TestDuplicateVerAckIgnored exercises the VERACK half of the same rule:
// a second VERACK is ignored rather than disconnecting the peer.
func TestDuplicateVerAckIgnored(t *testing.T) {
	h := newHarness(t, Config{Inbound: true})
	defer h.p.Disconnect()

	h.send(&wire.MsgVersion{ProtocolVersion: 1, Nonce: 0xaaaa})
	h.recv()
	h.recv()
	h.send(&wire.MsgVerAck{})
	waitForState(t, h.p, StateReady)

	h.send(&wire.MsgVerAck{})

	// Give the read loop a moment to process the duplicate, then confirm
	// the peer is still in StateReady.
	time.Sleep(20 * time.Millisecond)
	if h.p.State() != StateReady {
		t.Fatalf("peer should remain ready after duplicate verack, got %s", h.p.State())
	}
}

// TestVerAckBeforeVersionDisconnects exercises the other half of spec.md
// §4.7: a VERACK arriving before VERSION is a protocol violation, unlike a
// duplicate VERACK, and disconnects the peer.
func TestVerAckBeforeVersionDisconnects(t *testing.T) {
	h := newHarness(t, Config{Inbound: true})

	h.send(&wire.MsgVerAck{})

	h.expectClosed()
	waitForState(t, h.p, StateDisconnected)
}

// TestMisbehaviorScoresMatchSpec confirms the exported Score* constants
// carry spec.md §4.7's exact point values and that AddMisbehavior reports
// discouragement once the total reaches the threshold.
func TestMisbehaviorScoresMatchSpec(t *testing.T) {
	cases := []struct {
		name  string
		score int
		want  int
	}{
		{"InvalidPoW", ScoreInvalidPoW, 100},
		{"InvalidHeader", ScoreInvalidHeader, 100},
		{"Oversized", ScoreOversized, 20},
		{"NonContinuousHeaders", ScoreNonContinuousHeaders, 20},
		{"TooManyUnconnecting", ScoreTooManyUnconnecting, 100},
		{"TooManyOrphans", ScoreTooManyOrphans, 100},
		{"LowWork", ScoreLowWork, 10},
	}
	for _, c := range cases {
		if c.score != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.score, c.want)
		}
	}

	h := newHarness(t, Config{Inbound: true})
	defer h.p.Disconnect()

	if discouraged := h.p.AddMisbehavior(ScoreLowWork, "test"); discouraged {
		t.Fatalf("10 points should not cross the %d threshold", MisbehaviorDiscourageThreshold)
	}
	if discouraged := h.p.AddMisbehavior(ScoreOversized, "test"); discouraged {
		t.Fatalf("30 points should not cross the %d threshold", MisbehaviorDiscourageThreshold)
	}
	if discouraged := h.p.AddMisbehavior(ScoreTooManyOrphans, "test"); !discouraged {
		t.Fatalf("130 points should cross the %d threshold", MisbehaviorDiscourageThreshold)
	}
}

// TestReadyForGatesMessagesBeforeHandshake confirms a post-handshake
// message (headers) arriving before StateReady disconnects the peer
// without touching its misbehavior score.
func TestReadyForGatesMessagesBeforeHandshake(t *testing.T) {
	h := newHarness(t, Config{Inbound: true})

	h.send(&wire.MsgHeaders{})

	h.expectClosed()
	if got := h.p.Misbehavior(); got != 0 {
		t.Fatalf("pre-handshake message should not be scored, got misbehavior=%d", got)
	}
}

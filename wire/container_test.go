package wire

import (
	"bytes"
	"net"
	"testing"

	"github.com/coinbasechain/cbcd/primitives"
)

func TestMsgAddrRoundTrip(t *testing.T) {
	msg := &MsgAddr{
		AddrList: []NetAddress{
			{Time: 1, Services: 1, IP: net.ParseIP("192.0.2.1"), Port: 8333},
			{Time: 2, Services: 0, IP: net.ParseIP("::1"), Port: 8334},
		},
	}

	var buf bytes.Buffer
	if err := msg.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var back MsgAddr
	if err := back.Decode(&buf); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(back.AddrList) != len(msg.AddrList) {
		t.Fatalf("got %d addresses, want %d", len(back.AddrList), len(msg.AddrList))
	}
	for i := range msg.AddrList {
		if back.AddrList[i].Port != msg.AddrList[i].Port {
			t.Errorf("entry %d: port = %d, want %d", i, back.AddrList[i].Port, msg.AddrList[i].Port)
		}
		if !back.AddrList[i].IP.Equal(msg.AddrList[i].IP) {
			t.Errorf("entry %d: ip = %s, want %s", i, back.AddrList[i].IP, msg.AddrList[i].IP)
		}
	}
}

func TestMsgAddrEncodeRejectsOversizedList(t *testing.T) {
	msg := &MsgAddr{AddrList: make([]NetAddress, MaxAddrPerMsg+1)}
	if err := msg.Encode(&bytes.Buffer{}); err == nil {
		t.Fatal("expected Encode to reject an addr list above MaxAddrPerMsg")
	}
}

func TestMsgAddrDecodeRejectsOversizedCount(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVarInt(&buf, MaxAddrPerMsg+1); err != nil {
		t.Fatalf("WriteVarInt: %v", err)
	}
	var msg MsgAddr
	if err := msg.Decode(&buf); err == nil {
		t.Fatal("expected Decode to reject a declared count above MaxAddrPerMsg")
	}
}

func TestMsgHeadersRoundTrip(t *testing.T) {
	h1 := sampleHeader()
	h2 := sampleHeader()
	h2.Nonce = 99

	msg := &MsgHeaders{Headers: []BlockHeader{h1, h2}}

	var buf bytes.Buffer
	if err := msg.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var back MsgHeaders
	if err := back.Decode(&buf); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(back.Headers) != 2 {
		t.Fatalf("got %d headers, want 2", len(back.Headers))
	}
	if back.Headers[0] != h1 || back.Headers[1] != h2 {
		t.Fatal("decoded headers do not match what was encoded")
	}
}

func TestMsgHeadersEncodeRejectsOversizedBatch(t *testing.T) {
	msg := &MsgHeaders{Headers: make([]BlockHeader, MaxHeadersPerMsg+1)}
	if err := msg.Encode(&bytes.Buffer{}); err == nil {
		t.Fatal("expected Encode to reject a headers batch above MaxHeadersPerMsg")
	}
}

func TestMsgGetHeadersRoundTrip(t *testing.T) {
	msg := &MsgGetHeaders{
		ProtocolVersion:    1,
		BlockLocatorHashes: []primitives.Hash256{{1}, {2}, {3}},
	}
	msg.HashStop[0] = 0xff

	var buf bytes.Buffer
	if err := msg.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var back MsgGetHeaders
	if err := back.Decode(&buf); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if back.ProtocolVersion != msg.ProtocolVersion {
		t.Errorf("ProtocolVersion = %d, want %d", back.ProtocolVersion, msg.ProtocolVersion)
	}
	if len(back.BlockLocatorHashes) != len(msg.BlockLocatorHashes) {
		t.Fatalf("got %d locator hashes, want %d", len(back.BlockLocatorHashes), len(msg.BlockLocatorHashes))
	}
	for i := range msg.BlockLocatorHashes {
		if back.BlockLocatorHashes[i] != msg.BlockLocatorHashes[i] {
			t.Errorf("locator hash %d mismatch", i)
		}
	}
	if back.HashStop != msg.HashStop {
		t.Error("HashStop mismatch")
	}
}

func TestMsgGetHeadersEncodeRejectsOversizedLocator(t *testing.T) {
	msg := &MsgGetHeaders{
		BlockLocatorHashes: make([]primitives.Hash256, MaxLocatorHashes+1),
	}
	if err := msg.Encode(&bytes.Buffer{}); err == nil {
		t.Fatal("expected Encode to reject a locator above MaxLocatorHashes")
	}
}

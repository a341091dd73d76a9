// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package transport abstracts the byte pipe a peer connection runs
// over, so netsync and peer can be exercised against an in-memory pipe
// in tests without opening real sockets. exccd/connmgr carries no
// source in this tree to point to for this split; it is the standard
// Dialer/Listener-interface idiom for making a net.Conn user testable
// without a real socket.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound connections. TCPDialer is the production
// implementation; tests use an in-memory pipe dialer instead.
type Dialer interface {
	Dial(ctx context.Context, address string) (net.Conn, error)
}

// Listener accepts inbound connections.
type Listener interface {
	Accept() (net.Conn, error)
	Close() error
	Addr() net.Addr
}

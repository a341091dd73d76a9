// Copyright (c) 2025 The CoinbaseChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"net"
)

// TCPDialer dials real TCP connections with a net.Dialer underneath,
// so a context cancellation aborts an in-progress dial.
type TCPDialer struct {
	dialer net.Dialer
}

// NewTCPDialer constructs a TCPDialer.
func NewTCPDialer() *TCPDialer {
	return &TCPDialer{}
}

func (d *TCPDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	return d.dialer.DialContext(ctx, "tcp", address)
}

// TCPListener wraps a net.Listener bound with Listen.
type TCPListener struct {
	ln net.Listener
}

// Listen binds a TCP listener on addr (e.g. ":9590").
func Listen(addr string) (*TCPListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPListener{ln: ln}, nil
}

func (l *TCPListener) Accept() (net.Conn, error) { return l.ln.Accept() }
func (l *TCPListener) Close() error              { return l.ln.Close() }
func (l *TCPListener) Addr() net.Addr            { return l.ln.Addr() }

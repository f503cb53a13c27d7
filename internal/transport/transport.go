// Package transport provides the datagram socket layer used by the message
// transport: a Transport abstraction, the IPv4 UDP implementation, an
// in-memory implementation for tests, and the port-fallback Acquirer.
package transport

import (
	"context"
	"net"
)

// Transport abstracts one bound datagram socket.
//
// Implementations:
//   - UDPv4Transport: IPv4 UDP socket
//   - MemoryTransport: in-process loopback for tests
type Transport interface {
	// Send writes packet as one datagram to every destination.
	//
	// Returns the number of datagrams written and a NetworkError on the
	// first failure. Datagrams already written are not recalled.
	Send(ctx context.Context, packet []byte, dests ...net.Addr) (int, error)

	// Receive waits for one datagram, respecting context cancellation and deadline.
	//
	// The returned slice is owned by the caller.
	Receive(ctx context.Context) (packet []byte, src net.Addr, err error)

	// LocalAddr returns the bound address.
	LocalAddr() net.Addr

	// Close releases the socket. Blocked Receive calls return an error.
	Close() error
}

// Binder creates a Transport bound to exactly addr.
//
// Bind must fail (not pick another port) when addr is taken; port fallback is
// the Acquirer's job.
type Binder interface {
	Bind(ctx context.Context, addr *net.UDPAddr) (Transport, error)
}

// BinderFunc adapts a function to the Binder interface.
type BinderFunc func(ctx context.Context, addr *net.UDPAddr) (Transport, error)

func (f BinderFunc) Bind(ctx context.Context, addr *net.UDPAddr) (Transport, error) {
	return f(ctx, addr)
}

package udp

import (
	"context"
	"net"
)

// Handler reacts to decoded inbound messages.
//
// OnMessage is called at most once per decoded datagram and never
// concurrently with itself by one Transport. from is the sender endpoint and
// n the datagram length on the wire. A returned error is reported to the Poll
// caller as *errors.HandlerError.
type Handler[M any] interface {
	OnMessage(ctx context.Context, from net.Addr, msg *M, n int) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc[M any] func(ctx context.Context, from net.Addr, msg *M, n int) error

func (f HandlerFunc[M]) OnMessage(ctx context.Context, from net.Addr, msg *M, n int) error {
	return f(ctx, from, msg, n)
}

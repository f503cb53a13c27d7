package transport

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/joshuafuller/lockstep/internal/errors"
)

// Default socket buffer sizes.
const (
	DefaultReadBuffer  = 65536
	DefaultWriteBuffer = 65536
)

// SocketOptions tunes a UDP socket before it is bound.
//
// Zero values leave the operating system defaults in place.
type SocketOptions struct {
	ReadBuffer  int // SO_RCVBUF in bytes
	WriteBuffer int // SO_SNDBUF in bytes
	TOS         int // IPv4 TOS byte, e.g. 0xb8 for DSCP EF; best effort
}

// UDPBinder binds UDPv4Transports with the given socket options.
type UDPBinder struct {
	Options SocketOptions
}

// Bind implements Binder.
func (b UDPBinder) Bind(ctx context.Context, addr *net.UDPAddr) (Transport, error) {
	return NewUDPv4Transport(ctx, addr, b.Options)
}

// UDPv4Transport implements Transport over an IPv4 UDP socket.
//
// The ipv4.PacketConn wrapper gives access to batched writes (sendmmsg on
// Linux) and to the TOS field.
//
// One goroutine owns the read side of the socket and hands each datagram to
// exactly one Receive caller, so a caller's context only ever interrupts its
// own call. Writes are serialized so that a send deadline applies to that
// send alone.
type UDPv4Transport struct {
	conn     net.PacketConn
	ipv4Conn *ipv4.PacketConn

	writeMu sync.Mutex

	readOnce sync.Once
	reads    chan readResult
	readDone chan struct{}
	readErr  error // written before readDone is closed

	closeOnce sync.Once
	closing   chan struct{}
}

type readResult struct {
	data []byte
	src  net.Addr
	err  error
}

// NewUDPv4Transport binds a UDP socket to exactly addr.
//
// Returns:
//   - *UDPv4Transport: bound transport ready for Send/Receive
//   - error: ValidationError for a non-IPv4 address, NetworkError if the bind fails
func NewUDPv4Transport(ctx context.Context, addr *net.UDPAddr, opts SocketOptions) (*UDPv4Transport, error) {
	if addr == nil {
		return nil, &errors.ValidationError{Field: "address", Value: nil, Message: "must not be nil"}
	}
	if addr.IP != nil && addr.IP.To4() == nil {
		return nil, &errors.ValidationError{Field: "address", Value: addr.String(), Message: "must be an IPv4 address"}
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var optErr error
			err := c.Control(func(fd uintptr) {
				optErr = setSocketOptions(fd, opts)
			})
			if err != nil {
				return err
			}
			return optErr
		},
	}

	// Connection ownership transferred to UDPv4Transport, closed via t.Close()
	conn, err := lc.ListenPacket(ctx, "udp4", addr.String())
	if err != nil {
		return nil, &errors.NetworkError{
			Operation: "bind socket",
			Err:       err,
			Details:   fmt.Sprintf("failed to bind %s", addr),
		}
	}

	ipv4Conn := ipv4.NewPacketConn(conn)
	if opts.TOS > 0 {
		// Not every platform lets unprivileged sockets set TOS; traffic
		// still flows unmarked when this fails.
		_ = ipv4Conn.SetTOS(opts.TOS)
	}

	return &UDPv4Transport{
		conn:     conn,
		ipv4Conn: ipv4Conn,
		reads:    make(chan readResult),
		readDone: make(chan struct{}),
		closing:  make(chan struct{}),
	}, nil
}

// Send transmits packet as one datagram to each destination.
//
// A context deadline bounds the write; cancelling ctx interrupts a blocked
// write. Concurrent sends are serialized.
func (t *UDPv4Transport) Send(ctx context.Context, packet []byte, dests ...net.Addr) (int, error) {
	select {
	case <-ctx.Done():
		return 0, &errors.NetworkError{
			Operation: "send datagram",
			Err:       ctx.Err(),
			Details:   "context canceled before send",
		}
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return 0, &errors.NetworkError{
			Operation: "set write deadline",
			Err:       err,
			Details:   fmt.Sprintf("failed to set deadline %v", deadline),
		}
	}
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetWriteDeadline(time.Now())
		close(interrupted)
	})
	defer func() {
		if !stop() {
			<-interrupted
		}
	}()

	sent, err := t.writeTo(packet, dests)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return sent, &errors.NetworkError{
			Operation: "send datagram",
			Err:       err,
			Details:   fmt.Sprintf("sent %d/%d datagrams of %d bytes", sent, len(dests), len(packet)),
		}
	}
	return sent, nil
}

// Receive waits for one datagram.
//
// Each datagram is delivered to exactly one caller. Cancelling ctx, or its
// deadline passing, interrupts this call only.
func (t *UDPv4Transport) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	select {
	case <-ctx.Done():
		return nil, nil, &errors.NetworkError{
			Operation: "receive datagram",
			Err:       ctx.Err(),
			Details:   "context canceled before receive",
		}
	default:
	}

	t.readOnce.Do(func() { go t.readLoop() })

	select {
	case r := <-t.reads:
		if r.err != nil {
			return nil, nil, &errors.NetworkError{
				Operation: "receive datagram",
				Err:       r.err,
				Details:   "failed to read from socket",
			}
		}
		return r.data, r.src, nil
	case <-t.readDone:
		return nil, nil, &errors.NetworkError{
			Operation: "receive datagram",
			Err:       t.readErr,
			Details:   "socket closed",
		}
	case <-ctx.Done():
		return nil, nil, &errors.NetworkError{
			Operation: "receive datagram",
			Err:       ctx.Err(),
			Details:   "context done during receive",
		}
	}
}

// readLoop reads datagrams until the socket is closed. It holds at most one
// datagram while no caller is waiting; the rest stay in the kernel buffer.
func (t *UDPv4Transport) readLoop() {
	defer close(t.readDone)

	for {
		bufPtr := GetBuffer()
		n, _, src, err := t.ipv4Conn.ReadFrom(*bufPtr)
		r := readResult{src: src, err: err}
		if err == nil {
			// Pool owns buffer, caller owns result.
			r.data = make([]byte, n)
			copy(r.data, (*bufPtr)[:n])
		}
		PutBuffer(bufPtr)

		if goerrors.Is(err, net.ErrClosed) {
			t.readErr = err
			return
		}

		select {
		case t.reads <- r:
		case <-t.closing:
			t.readErr = net.ErrClosed
			return
		}
	}
}

// LocalAddr returns the bound address.
func (t *UDPv4Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Close releases the socket.
func (t *UDPv4Transport) Close() error {
	if t.conn == nil {
		return nil
	}

	t.closeOnce.Do(func() { close(t.closing) })
	if err := t.conn.Close(); err != nil {
		return &errors.NetworkError{
			Operation: "close socket",
			Err:       err,
			Details:   "failed to close UDP connection",
		}
	}
	return nil
}

// Package udp implements a point-to-point message transport for real-time
// peer-to-peer protocols such as lockstep and rollback netcode.
//
// A Transport hands discrete application messages to a datagram socket and
// delivers each inbound message to one registered Handler. Every message
// travels as a single datagram:
//
//	wire frame = zstd(level, msgpack(message))
//
// Serialization runs on a small worker pool. Compression runs under one
// mutex shared by sends and receives. Neither step holds a lock across
// socket I/O.
//
// The transport does not guarantee delivery, ordering or deduplication and
// does no congestion control; the protocol built on top owns those concerns.
//
// ## LIFECYCLE
//
// A Transport starts Unbound. Init binds a socket (falling back to adjacent
// ports if the requested one is taken) and registers the handler, moving it
// to Bound. Bound is terminal until Close. Send, Receive and Poll return
// errors.ErrSocketUninit while Unbound.
//
// ## EXAMPLE USAGE
//
//	type Ping struct {
//	    Seq uint32 `msgpack:"seq"`
//	}
//
//	t, err := udp.New[Ping](udp.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer t.Close()
//
//	handler := udp.HandlerFunc[Ping](func(ctx context.Context, from net.Addr, msg *Ping, n int) error {
//	    log.Printf("ping %d from %s", msg.Seq, from)
//	    return nil
//	})
//	if err := t.Init(ctx, 9000, handler); err != nil {
//	    return err
//	}
//
//	go t.Serve(ctx)
//	err = t.SendTo(ctx, &Ping{Seq: 1}, peerAddr)
package udp

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/joshuafuller/lockstep/internal/codec"
	"github.com/joshuafuller/lockstep/internal/errors"
	"github.com/joshuafuller/lockstep/internal/transport"
	"github.com/joshuafuller/lockstep/internal/workpool"
)

// binding is the Bound state: a socket and the handler registered with it.
type binding[M any] struct {
	conn    transport.Transport
	handler Handler[M]
}

// Transport sends and receives messages of type M over one datagram socket.
//
// All methods are safe for concurrent use.
type Transport[M any] struct {
	cfg        Config
	logger     *zap.Logger
	binder     transport.Binder
	serializer codec.Serializer

	zstd *codec.Holder
	pool *workpool.Pool

	// initMu serializes Init and Close; readers use bound without locking.
	initMu sync.Mutex
	bound  atomic.Pointer[binding[M]]
	closed bool

	dispatchMu sync.Mutex

	stats counters
}

// New creates an Unbound transport.
//
// Returns:
//   - *Transport[M]: transport ready for Init
//   - error: ValidationError for invalid options or configuration
func New[M any](opts ...Option) (*Transport[M], error) {
	s := &settings{
		cfg:        DefaultConfig(),
		logger:     zap.NewNop(),
		serializer: codec.Msgpack{},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	if s.binder == nil {
		s.binder = transport.UDPBinder{Options: s.cfg.socketOptions()}
	}

	holder, err := codec.NewHolder(s.cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}

	return &Transport[M]{
		cfg:        s.cfg,
		logger:     s.logger,
		binder:     s.binder,
		serializer: s.serializer,
		zstd:       holder,
		pool:       workpool.New(s.cfg.Workers),
	}, nil
}

// Init binds the socket on the configured host at port (or one of the next
// BindRetries ports) and registers handler. handler may be nil, in which case
// Poll reports errors.ErrCallbacksUninit.
//
// Returns:
//   - error: *errors.BindError if no port could be bound,
//     errors.ErrAlreadyBound if Init already succeeded or the transport was closed
func (t *Transport[M]) Init(ctx context.Context, port uint16, handler Handler[M]) error {
	t.initMu.Lock()
	defer t.initMu.Unlock()

	if t.bound.Load() != nil || t.closed {
		return errors.ErrAlreadyBound
	}

	t.logger.Info("binding udp socket", zap.String("host", t.cfg.Host), zap.Uint16("port", port))
	addr := &net.UDPAddr{IP: net.ParseIP(t.cfg.Host), Port: int(port)}
	conn, err := transport.Acquire(ctx, t.binder, addr, t.cfg.BindRetries, t.logger)
	if err != nil {
		return err
	}

	t.bound.Store(&binding[M]{conn: conn, handler: handler})
	return nil
}

// SendTo serializes, compresses and writes msg as one datagram to each
// destination. msg is only read, so one value can be sent many times.
//
// Returns:
//   - error: errors.ErrSocketUninit before Init, *errors.ValidationError for a
//     nil message or no destinations, *errors.EncodingError,
//     *errors.CodecError or *errors.NetworkError from the pipeline stages
func (t *Transport[M]) SendTo(ctx context.Context, msg *M, dests ...net.Addr) error {
	b := t.bound.Load()
	if b == nil {
		return errors.ErrSocketUninit
	}
	if msg == nil {
		return &errors.ValidationError{Field: "message", Value: nil, Message: "must not be nil"}
	}
	if len(dests) == 0 {
		return &errors.ValidationError{Field: "destinations", Value: 0, Message: "at least one destination required"}
	}

	frame, err := t.encode(ctx, msg)
	if err != nil {
		return err
	}

	sent, err := b.conn.Send(ctx, frame, dests...)
	t.stats.packetsSent.Add(uint64(sent))
	t.stats.bytesSent.Add(uint64(sent * len(frame)))
	if err != nil {
		return err
	}

	t.logger.Debug("sent packet",
		zap.Int("len", len(frame)),
		zap.Stringer("from", b.conn.LocalAddr()),
		zap.Stringers("to", dests))
	return nil
}

// Receive blocks until one datagram arrives and decodes it.
//
// Returns:
//   - *M: the decoded message
//   - int: datagram length in bytes
//   - net.Addr: sender endpoint
//   - error: errors.ErrSocketUninit before Init, *errors.NetworkError,
//     *errors.CodecError or *errors.EncodingError
func (t *Transport[M]) Receive(ctx context.Context) (*M, int, net.Addr, error) {
	b := t.bound.Load()
	if b == nil {
		return nil, 0, nil, errors.ErrSocketUninit
	}

	packet, from, err := b.conn.Receive(ctx)
	if err != nil {
		return nil, 0, nil, err
	}
	t.stats.packetsReceived.Add(1)
	t.stats.bytesReceived.Add(uint64(len(packet)))

	msg, err := t.decode(ctx, packet)
	if err != nil {
		return nil, len(packet), from, err
	}

	t.logger.Debug("received packet", zap.Int("len", len(packet)), zap.Stringer("from", from))
	return msg, len(packet), from, nil
}

// Poll receives one message and dispatches it to the handler.
//
// A handler failure is returned as *errors.HandlerError; the transport stays
// usable. The bool result is true whenever the message was dispatched
// successfully.
//
// Returns:
//   - error: errors.ErrSocketUninit before Init, errors.ErrCallbacksUninit if
//     no handler was registered (checked before any datagram is consumed),
//     any Receive error, or *errors.HandlerError
func (t *Transport[M]) Poll(ctx context.Context) (bool, error) {
	b := t.bound.Load()
	if b == nil {
		return false, errors.ErrSocketUninit
	}
	if b.handler == nil {
		return false, errors.ErrCallbacksUninit
	}

	msg, n, from, err := t.Receive(ctx)
	if err != nil {
		return false, err
	}

	t.dispatchMu.Lock()
	err = b.handler.OnMessage(ctx, from, msg, n)
	t.dispatchMu.Unlock()
	if err != nil {
		return false, &errors.HandlerError{From: from.String(), Err: err}
	}
	return true, nil
}

// Serve polls until ctx is done or the socket fails.
//
// Handler, codec and encoding failures concern a single datagram: they are
// logged and skipped. Socket failures end the loop.
//
// Returns:
//   - error: ctx.Err() when ctx ends, otherwise the failure that stopped the loop
func (t *Transport[M]) Serve(ctx context.Context) error {
	for {
		_, err := t.Poll(ctx)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		var (
			handlerErr  *errors.HandlerError
			codecErr    *errors.CodecError
			encodingErr *errors.EncodingError
		)
		switch {
		case goerrors.As(err, &handlerErr):
			t.logger.Warn("message handler failed", zap.String("from", handlerErr.From), zap.Error(handlerErr.Err))
		case goerrors.As(err, &codecErr), goerrors.As(err, &encodingErr):
			t.logger.Warn("dropped undecodable datagram", zap.Error(err))
		default:
			return err
		}
	}
}

// LocalAddr returns the bound address, or nil while Unbound.
func (t *Transport[M]) LocalAddr() net.Addr {
	b := t.bound.Load()
	if b == nil {
		return nil
	}
	return b.conn.LocalAddr()
}

// Close releases the socket, the worker pool and the codec.
//
// Calls blocked in Receive or Poll return an error. Close is idempotent.
func (t *Transport[M]) Close() error {
	t.initMu.Lock()
	defer t.initMu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	var err error
	if b := t.bound.Load(); b != nil {
		err = b.conn.Close()
	}
	t.pool.Close()
	if cerr := t.zstd.Close(); err == nil {
		err = cerr
	}
	return err
}

func (t *Transport[M]) encode(ctx context.Context, msg *M) ([]byte, error) {
	payload, err := workpool.Do(ctx, t.pool, func() ([]byte, error) {
		data, err := t.serializer.Marshal(msg)
		if err != nil {
			return nil, &errors.EncodingError{Operation: "serialize", Err: err}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if len(payload) > t.cfg.MaxMessageSize {
		return nil, &errors.EncodingError{
			Operation: "serialize",
			Err:       fmt.Errorf("message size %d exceeds limit %d", len(payload), t.cfg.MaxMessageSize),
		}
	}

	return t.zstd.Compress(payload)
}

func (t *Transport[M]) decode(ctx context.Context, frame []byte) (*M, error) {
	payload, err := t.zstd.Decompress(frame, t.cfg.MaxMessageSize)
	if err != nil {
		return nil, err
	}

	return workpool.Do(ctx, t.pool, func() (*M, error) {
		msg := new(M)
		if err := t.serializer.Unmarshal(payload, msg); err != nil {
			return nil, &errors.EncodingError{Operation: "deserialize", Err: err}
		}
		return msg, nil
	})
}

package transport

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"sync"

	"github.com/joshuafuller/lockstep/internal/errors"
)

const (
	memoryInboxSize     = 1024
	memoryEphemeralBase = 49152
)

var errMemoryClosed = goerrors.New("use of closed memory transport")

type memoryPacket struct {
	data []byte
	src  net.Addr
}

// MemoryNetwork is an in-process datagram network.
//
// Endpoints bound on the same MemoryNetwork exchange packets through
// buffered queues. Like UDP, a packet to an unknown endpoint or a full inbox is
// dropped silently. Binding a taken address fails, so the Acquirer's port
// fallback behaves as it does on a real host.
type MemoryNetwork struct {
	mu        sync.Mutex
	endpoints map[string]*MemoryTransport
	nextPort  int
}

// NewMemoryNetwork creates an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		endpoints: make(map[string]*MemoryTransport),
		nextPort:  memoryEphemeralBase,
	}
}

// Bind implements Binder.
func (n *MemoryNetwork) Bind(ctx context.Context, addr *net.UDPAddr) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, &errors.NetworkError{Operation: "bind socket", Err: err}
	}
	if addr == nil {
		return nil, &errors.ValidationError{Field: "address", Value: nil, Message: "must not be nil"}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	ip := addr.IP
	if ip == nil {
		ip = net.IPv4(127, 0, 0, 1)
	}
	local := &net.UDPAddr{IP: ip, Port: addr.Port}
	if local.Port == 0 {
		for {
			local.Port = n.nextPort
			n.nextPort++
			if _, taken := n.endpoints[local.String()]; !taken {
				break
			}
		}
	}

	key := local.String()
	if _, taken := n.endpoints[key]; taken {
		return nil, &errors.NetworkError{
			Operation: "bind socket",
			Err:       fmt.Errorf("address %s already in use", key),
		}
	}

	t := &MemoryTransport{
		network: n,
		addr:    local,
		inbox:   make(chan memoryPacket, memoryInboxSize),
		done:    make(chan struct{}),
	}
	n.endpoints[key] = t
	return t, nil
}

func (n *MemoryNetwork) lookup(addr net.Addr) *MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.endpoints[addr.String()]
}

func (n *MemoryNetwork) remove(t *MemoryTransport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.endpoints[t.addr.String()] == t {
		delete(n.endpoints, t.addr.String())
	}
}

// MemoryTransport is one endpoint on a MemoryNetwork.
type MemoryTransport struct {
	network   *MemoryNetwork
	addr      *net.UDPAddr
	inbox     chan memoryPacket
	done      chan struct{}
	closeOnce sync.Once
}

// Send implements Transport. Every destination gets its own copy of packet.
func (t *MemoryTransport) Send(ctx context.Context, packet []byte, dests ...net.Addr) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, &errors.NetworkError{Operation: "send datagram", Err: err, Details: "context canceled before send"}
	}
	select {
	case <-t.done:
		return 0, &errors.NetworkError{Operation: "send datagram", Err: errMemoryClosed}
	default:
	}

	for _, dest := range dests {
		peer := t.network.lookup(dest)
		if peer == nil {
			continue
		}
		data := make([]byte, len(packet))
		copy(data, packet)
		select {
		case peer.inbox <- memoryPacket{data: data, src: t.addr}:
		case <-peer.done:
		default:
		}
	}
	return len(dests), nil
}

// Receive implements Transport.
func (t *MemoryTransport) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	select {
	case p := <-t.inbox:
		return p.data, p.src, nil
	case <-t.done:
		return nil, nil, &errors.NetworkError{Operation: "receive datagram", Err: errMemoryClosed}
	case <-ctx.Done():
		return nil, nil, &errors.NetworkError{Operation: "receive datagram", Err: ctx.Err(), Details: "context done during receive"}
	}
}

// LocalAddr implements Transport.
func (t *MemoryTransport) LocalAddr() net.Addr { return t.addr }

// Close implements Transport.
func (t *MemoryTransport) Close() error {
	t.closeOnce.Do(func() {
		t.network.remove(t)
		close(t.done)
	})
	return nil
}

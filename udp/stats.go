package udp

import "sync/atomic"

// Stats is a snapshot of the transport's traffic counters.
//
// Received counters include datagrams that later failed to decode.
type Stats struct {
	PacketsSent     uint64
	BytesSent       uint64
	PacketsReceived uint64
	BytesReceived   uint64
}

type counters struct {
	packetsSent     atomic.Uint64
	bytesSent       atomic.Uint64
	packetsReceived atomic.Uint64
	bytesReceived   atomic.Uint64
}

// Stats returns the current traffic counters.
func (t *Transport[M]) Stats() Stats {
	return Stats{
		PacketsSent:     t.stats.packetsSent.Load(),
		BytesSent:       t.stats.bytesSent.Load(),
		PacketsReceived: t.stats.packetsReceived.Load(),
		BytesReceived:   t.stats.bytesReceived.Load(),
	}
}

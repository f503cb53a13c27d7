//go:build linux

package transport

import (
	"fmt"
	"io"
	"net"

	"golang.org/x/net/ipv4"
)

// writeTo sends packet to every destination with as few sendmmsg calls as
// the kernel allows.
func (t *UDPv4Transport) writeTo(packet []byte, dests []net.Addr) (int, error) {
	msgs := make([]ipv4.Message, len(dests))
	for i, dest := range dests {
		msgs[i] = ipv4.Message{Buffers: [][]byte{packet}, Addr: dest}
	}

	sent := 0
	for sent < len(msgs) {
		n, err := t.ipv4Conn.WriteBatch(msgs[sent:], 0)
		if err != nil {
			return sent, err
		}
		if n == 0 {
			return sent, io.ErrShortWrite
		}
		for _, m := range msgs[sent : sent+n] {
			if m.N != len(packet) {
				return sent, fmt.Errorf("partial write to %s: %d/%d bytes", m.Addr, m.N, len(packet))
			}
		}
		sent += n
	}
	return sent, nil
}

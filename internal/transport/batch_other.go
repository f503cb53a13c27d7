//go:build !linux

package transport

import (
	"fmt"
	"net"
)

func (t *UDPv4Transport) writeTo(packet []byte, dests []net.Addr) (int, error) {
	for i, dest := range dests {
		n, err := t.ipv4Conn.WriteTo(packet, nil, dest)
		if err != nil {
			return i, err
		}
		if n != len(packet) {
			return i, fmt.Errorf("partial write to %s: %d/%d bytes", dest, n, len(packet))
		}
	}
	return len(dests), nil
}

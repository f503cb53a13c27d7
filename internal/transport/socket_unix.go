//go:build unix

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// setSocketOptions applies buffer sizes before bind.
//
// SO_REUSEADDR and SO_REUSEPORT are deliberately left unset: two peers must
// never share a port, otherwise the Acquirer's fallback could not detect
// contention.
func setSocketOptions(fd uintptr, opts SocketOptions) error {
	if opts.ReadBuffer > 0 {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, opts.ReadBuffer); err != nil {
			return fmt.Errorf("set SO_RCVBUF: %w", err)
		}
	}
	if opts.WriteBuffer > 0 {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, opts.WriteBuffer); err != nil {
			return fmt.Errorf("set SO_SNDBUF: %w", err)
		}
	}
	return nil
}

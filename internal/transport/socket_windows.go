//go:build windows

package transport

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// setSocketOptions applies buffer sizes before bind.
func setSocketOptions(fd uintptr, opts SocketOptions) error {
	if opts.ReadBuffer > 0 {
		if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_RCVBUF, opts.ReadBuffer); err != nil {
			return fmt.Errorf("set SO_RCVBUF: %w", err)
		}
	}
	if opts.WriteBuffer > 0 {
		if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_SNDBUF, opts.WriteBuffer); err != nil {
			return fmt.Errorf("set SO_SNDBUF: %w", err)
		}
	}
	return nil
}

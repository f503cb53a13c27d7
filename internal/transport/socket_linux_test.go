//go:build linux

package transport

import (
	"testing"

	"golang.org/x/sys/unix"
)

// TestSetSocketOptions_Linux verifies SO_RCVBUF/SO_SNDBUF are applied and
// that address reuse stays disabled.
func TestSetSocketOptions_Linux(t *testing.T) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		t.Fatalf("Failed to create socket: %v", err)
	}
	defer func() { _ = unix.Close(fd) }()

	opts := SocketOptions{ReadBuffer: 32768, WriteBuffer: 32768}
	if err := setSocketOptions(uintptr(fd), opts); err != nil {
		t.Fatalf("setSocketOptions() failed: %v", err)
	}

	// Linux doubles the requested value to account for bookkeeping overhead.
	rcv, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF)
	if err != nil {
		t.Fatalf("GetsockoptInt(SO_RCVBUF) failed: %v", err)
	}
	if rcv < opts.ReadBuffer {
		t.Errorf("SO_RCVBUF = %d, want >= %d", rcv, opts.ReadBuffer)
	}

	snd, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF)
	if err != nil {
		t.Fatalf("GetsockoptInt(SO_SNDBUF) failed: %v", err)
	}
	if snd < opts.WriteBuffer {
		t.Errorf("SO_SNDBUF = %d, want >= %d", snd, opts.WriteBuffer)
	}

	for _, opt := range []int{unix.SO_REUSEADDR, unix.SO_REUSEPORT} {
		v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, opt)
		if err != nil {
			t.Fatalf("GetsockoptInt(%d) failed: %v", opt, err)
		}
		if v != 0 {
			t.Errorf("socket option %d = %d, want 0", opt, v)
		}
	}
}

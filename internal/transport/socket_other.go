//go:build !unix && !windows

package transport

// setSocketOptions is a no-op where buffer sizes cannot be set.
func setSocketOptions(fd uintptr, opts SocketOptions) error {
	return nil
}

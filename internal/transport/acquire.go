package transport

import (
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/joshuafuller/lockstep/internal/errors"
)

const maxPort = 65535

// Acquire binds a socket at addr, falling back to the next ports on failure.
//
// Attempts addr.Port, addr.Port+1, ... addr.Port+retries and returns the first
// transport that binds. Several peers on one host would otherwise collide on a
// single fixed port. Each failed attempt is logged at warn level and is not
// fatal. Port 0 lets the OS pick, so it is tried once.
//
// Returns:
//   - Transport: the first successfully bound transport
//   - error: *errors.BindError once every attempt failed, or a NetworkError
//     wrapping ctx.Err() if ctx ends between attempts
func Acquire(ctx context.Context, binder Binder, addr *net.UDPAddr, retries int, logger *zap.Logger) (Transport, error) {
	if addr == nil {
		return nil, &errors.ValidationError{Field: "address", Value: nil, Message: "must not be nil"}
	}
	if retries < 0 {
		return nil, &errors.ValidationError{Field: "retries", Value: retries, Message: "must not be negative"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if addr.Port == 0 {
		retries = 0
	}

	var lastErr error
	attempts := 0
	for port := addr.Port; port <= addr.Port+retries && port <= maxPort; port++ {
		if err := ctx.Err(); err != nil {
			return nil, &errors.NetworkError{
				Operation: "bind socket",
				Err:       err,
				Details:   "context done before bind attempt",
			}
		}

		candidate := &net.UDPAddr{IP: addr.IP, Port: port, Zone: addr.Zone}
		attempts++

		t, err := binder.Bind(ctx, candidate)
		if err == nil {
			logger.Info("udp socket bound",
				zap.Stringer("addr", t.LocalAddr()),
				zap.Int("attempt", attempts))
			return t, nil
		}

		lastErr = err
		logger.Warn("failed to bind udp socket",
			zap.Stringer("addr", candidate),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", retries+1),
			zap.Error(err))
	}

	return nil, &errors.BindError{
		Addr:     addr.String(),
		Attempts: attempts,
		Err:      lastErr,
	}
}

package udp

import (
	"go.uber.org/zap"

	"github.com/joshuafuller/lockstep/internal/codec"
	"github.com/joshuafuller/lockstep/internal/errors"
	"github.com/joshuafuller/lockstep/internal/transport"
)

type settings struct {
	cfg        Config
	logger     *zap.Logger
	binder     transport.Binder
	serializer codec.Serializer
}

// Option is a functional option for configuring a Transport.
//
// Options are applied in order by New, before the configuration is validated.
//
// Example:
//
//	t, err := udp.New[Input](
//	    udp.WithLogger(logger),
//	    udp.WithBindRetries(5),
//	)
type Option func(*settings) error

// WithConfig replaces the whole configuration. Options after it still apply.
func WithConfig(cfg Config) Option {
	return func(s *settings) error {
		s.cfg = cfg
		return nil
	}
}

// WithLogger sets the structured logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			return &errors.ValidationError{Field: "logger", Value: nil, Message: "must not be nil"}
		}
		s.logger = logger
		return nil
	}
}

// WithHost sets the local IPv4 address to bind (default 127.0.0.1).
func WithHost(host string) Option {
	return func(s *settings) error {
		s.cfg.Host = host
		return nil
	}
}

// WithBindRetries sets how many adjacent ports Init tries after the requested one.
func WithBindRetries(retries int) Option {
	return func(s *settings) error {
		s.cfg.BindRetries = retries
		return nil
	}
}

// WithCompressionLevel sets the fixed zstd level.
func WithCompressionLevel(level int) Option {
	return func(s *settings) error {
		s.cfg.CompressionLevel = level
		return nil
	}
}

// WithMaxMessageSize sets the largest serialized message size.
func WithMaxMessageSize(size int) Option {
	return func(s *settings) error {
		s.cfg.MaxMessageSize = size
		return nil
	}
}

// WithWorkers sets the number of encode/decode goroutines.
func WithWorkers(workers int) Option {
	return func(s *settings) error {
		s.cfg.Workers = workers
		return nil
	}
}

// WithSocketBuffers sets SO_RCVBUF and SO_SNDBUF.
func WithSocketBuffers(read, write int) Option {
	return func(s *settings) error {
		s.cfg.ReadBuffer = read
		s.cfg.WriteBuffer = write
		return nil
	}
}

// WithTOS sets the IPv4 TOS byte for outgoing datagrams.
func WithTOS(tos int) Option {
	return func(s *settings) error {
		s.cfg.TOS = tos
		return nil
	}
}

// WithBinder replaces the socket factory used by Init.
//
// Tests use transport.MemoryNetwork to run many peers in one process.
func WithBinder(binder transport.Binder) Option {
	return func(s *settings) error {
		if binder == nil {
			return &errors.ValidationError{Field: "binder", Value: nil, Message: "must not be nil"}
		}
		s.binder = binder
		return nil
	}
}

// WithSerializer replaces the msgpack message encoding. Both peers must use
// the same serializer.
func WithSerializer(serializer codec.Serializer) Option {
	return func(s *settings) error {
		if serializer == nil {
			return &errors.ValidationError{Field: "serializer", Value: nil, Message: "must not be nil"}
		}
		s.serializer = serializer
		return nil
	}
}

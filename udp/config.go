package udp

import (
	"bytes"
	goerrors "errors"
	"fmt"
	"io"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joshuafuller/lockstep/internal/codec"
	"github.com/joshuafuller/lockstep/internal/errors"
	"github.com/joshuafuller/lockstep/internal/transport"
)

// Defaults applied by DefaultConfig.
const (
	DefaultHost           = "127.0.0.1"
	DefaultBindRetries    = 3
	DefaultMaxMessageSize = 4096
	DefaultWorkers        = 2
)

// maxMessageSizeLimit is the largest payload a single IPv4 UDP datagram can carry.
const maxMessageSizeLimit = 65507

// Config holds the transport settings.
//
// The zero value is not usable; start from DefaultConfig or LoadConfig.
type Config struct {
	// Host is the local IPv4 address to bind.
	Host string `yaml:"host"`

	// BindRetries is the number of adjacent ports tried after the requested one.
	BindRetries int `yaml:"bind_retries"`

	// CompressionLevel is the fixed zstd level (1-22).
	CompressionLevel int `yaml:"compression_level"`

	// MaxMessageSize bounds the serialized size of a message. Senders reject
	// larger messages and receivers refuse to decompress past it.
	MaxMessageSize int `yaml:"max_message_size"`

	// Workers is the number of goroutines encoding and decoding messages.
	Workers int `yaml:"workers"`

	// ReadBuffer and WriteBuffer set SO_RCVBUF/SO_SNDBUF (0 = OS default).
	ReadBuffer  int `yaml:"read_buffer"`
	WriteBuffer int `yaml:"write_buffer"`

	// TOS marks outgoing datagrams (0 = unmarked, 0xb8 = DSCP EF).
	TOS int `yaml:"tos"`
}

// DefaultConfig returns the default transport settings.
func DefaultConfig() Config {
	return Config{
		Host:             DefaultHost,
		BindRetries:      DefaultBindRetries,
		CompressionLevel: codec.DefaultLevel,
		MaxMessageSize:   DefaultMaxMessageSize,
		Workers:          DefaultWorkers,
		ReadBuffer:       transport.DefaultReadBuffer,
		WriteBuffer:      transport.DefaultWriteBuffer,
	}
}

// LoadConfig reads settings from a YAML file on top of DefaultConfig.
// If the file does not exist or is empty, it returns the defaults with no
// error. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !goerrors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports the first invalid field as a *errors.ValidationError.
func (c Config) Validate() error {
	ip := net.ParseIP(c.Host)
	if ip == nil || ip.To4() == nil {
		return &errors.ValidationError{Field: "host", Value: c.Host, Message: "must be an IPv4 address"}
	}
	if c.BindRetries < 0 {
		return &errors.ValidationError{Field: "bind_retries", Value: c.BindRetries, Message: "must not be negative"}
	}
	if c.CompressionLevel < 1 || c.CompressionLevel > 22 {
		return &errors.ValidationError{Field: "compression_level", Value: c.CompressionLevel, Message: "must be between 1 and 22"}
	}
	if c.MaxMessageSize < 1 || c.MaxMessageSize > maxMessageSizeLimit {
		return &errors.ValidationError{
			Field:   "max_message_size",
			Value:   c.MaxMessageSize,
			Message: fmt.Sprintf("must be between 1 and %d", maxMessageSizeLimit),
		}
	}
	if c.Workers < 1 {
		return &errors.ValidationError{Field: "workers", Value: c.Workers, Message: "must be at least 1"}
	}
	if c.ReadBuffer < 0 || c.WriteBuffer < 0 {
		return &errors.ValidationError{Field: "socket buffers", Value: [2]int{c.ReadBuffer, c.WriteBuffer}, Message: "must not be negative"}
	}
	if c.TOS < 0 || c.TOS > 255 {
		return &errors.ValidationError{Field: "tos", Value: c.TOS, Message: "must be between 0 and 255"}
	}
	return nil
}

func (c Config) socketOptions() transport.SocketOptions {
	return transport.SocketOptions{
		ReadBuffer:  c.ReadBuffer,
		WriteBuffer: c.WriteBuffer,
		TOS:         c.TOS,
	}
}

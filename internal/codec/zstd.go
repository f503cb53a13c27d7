// Package codec provides the two halves of the wire frame: a serializer that
// turns messages into bytes, and a zstd holder that compresses those bytes.
//
// Wire frame: zstd(level, serialize(message)).
package codec

import (
	goerrors "errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/joshuafuller/lockstep/internal/errors"
)

// DefaultLevel is the zstd level used when none is configured.
const DefaultLevel = 7

var errHolderClosed = goerrors.New("codec holder closed")

// Holder owns one zstd encoder and one zstd decoder.
//
// The encoder and decoder are costly to build and cheap to reuse, so a
// transport creates one Holder and routes every send and receive through it.
// Compress and Decompress share a single mutex: they never run at the same
// time on one Holder, and the lock covers exactly one call.
type Holder struct {
	mu     sync.Mutex
	level  int
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	closed bool
}

// NewHolder creates a Holder compressing at the given zstd level (1-22).
func NewHolder(level int) (*Holder, error) {
	if level < 1 || level > 22 {
		return nil, &errors.ValidationError{
			Field:   "compression_level",
			Value:   level,
			Message: "must be between 1 and 22",
		}
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecodeAllCapLimit(true),
	)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Holder{level: level, enc: enc, dec: dec}, nil
}

// Level returns the fixed compression level.
func (h *Holder) Level() int { return h.level }

// Compress returns src as one complete zstd frame.
func (h *Holder) Compress(src []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, &errors.CodecError{Operation: "compress", Err: errHolderClosed}
	}
	return h.enc.EncodeAll(src, make([]byte, 0, len(src)/2+64)), nil
}

// Decompress decodes one zstd frame. The output may not exceed sizeHint bytes;
// larger, corrupt or truncated frames are rejected.
func (h *Holder) Decompress(src []byte, sizeHint int) ([]byte, error) {
	if len(src) == 0 {
		return nil, &errors.CodecError{Operation: "decompress", Err: goerrors.New("empty frame")}
	}
	if sizeHint <= 0 {
		return nil, &errors.CodecError{
			Operation: "decompress",
			Err:       fmt.Errorf("invalid size hint %d", sizeHint),
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, &errors.CodecError{Operation: "decompress", Err: errHolderClosed}
	}
	out, err := h.dec.DecodeAll(src, make([]byte, 0, sizeHint))
	if err != nil {
		return nil, &errors.CodecError{
			Operation: "decompress",
			Err:       err,
			Details:   fmt.Sprintf("%d byte frame, limit %d", len(src), sizeHint),
		}
	}
	return out, nil
}

// Close releases the encoder and decoder. Later calls fail with a CodecError.
func (h *Holder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.dec.Close()
	return h.enc.Close()
}

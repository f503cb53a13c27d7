package codec

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Serializer converts messages to bytes and back.
//
// Unmarshal must be the exact inverse of Marshal.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Msgpack is the default Serializer.
//
// Decoding is strict: unknown struct fields and trailing bytes are errors, so a
// datagram carrying a different message encoding is rejected instead of being
// half-decoded.
type Msgpack struct{}

func (Msgpack) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack) Unmarshal(data []byte, v any) error {
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	dec.DisallowUnknownFields(true)

	if err := dec.Decode(v); err != nil {
		return err
	}
	if r.Len() != 0 {
		return fmt.Errorf("msgpack: %d trailing bytes", r.Len())
	}
	return nil
}

package codec

import (
	"bytes"
	goerrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/joshuafuller/lockstep/internal/errors"
)

type input struct {
	Frame   uint32 `msgpack:"frame"`
	Player  uint8  `msgpack:"player"`
	Buttons []byte `msgpack:"buttons"`
}

func newHolder(t *testing.T) *Holder {
	t.Helper()
	h, err := NewHolder(DefaultLevel)
	if err != nil {
		t.Fatalf("NewHolder() error = %v, want nil", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestNewHolder_Level(t *testing.T) {
	tests := []struct {
		level   int
		wantErr bool
	}{
		{level: 1},
		{level: DefaultLevel},
		{level: 22},
		{level: 0, wantErr: true},
		{level: 23, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("level %d", tt.level), func(t *testing.T) {
			h, err := NewHolder(tt.level)
			if tt.wantErr {
				var valErr *errors.ValidationError
				if !goerrors.As(err, &valErr) {
					t.Fatalf("NewHolder(%d) error = %v, want *errors.ValidationError", tt.level, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewHolder(%d) error = %v, want nil", tt.level, err)
			}
			defer func() { _ = h.Close() }()
			if h.Level() != tt.level {
				t.Errorf("Level() = %d, want %d", h.Level(), tt.level)
			}
		})
	}
}

func TestHolder_RoundTrip(t *testing.T) {
	h := newHolder(t)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "single byte", data: []byte{0x42}},
		{name: "repetitive", data: bytes.Repeat([]byte("ab"), 600)},
		{name: "binary", data: []byte{0x00, 0xff, 0x10, 0x80, 0x7f, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := h.Compress(tt.data)
			if err != nil {
				t.Fatalf("Compress() error = %v, want nil", err)
			}
			if len(frame) == 0 {
				t.Fatal("Compress() returned empty frame")
			}

			got, err := h.Decompress(frame, 4096)
			if err != nil {
				t.Fatalf("Decompress() error = %v, want nil", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("Decompress() = %x, want %x", got, tt.data)
			}
		})
	}
}

func TestHolder_DecompressRejectsBadInput(t *testing.T) {
	h := newHolder(t)

	valid, err := h.Compress(bytes.Repeat([]byte("lockstep"), 64))
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	tests := []struct {
		name  string
		frame []byte
		hint  int
	}{
		{name: "empty", frame: nil, hint: 1024},
		{name: "not zstd", frame: []byte("definitely not a zstd frame"), hint: 1024},
		{name: "truncated", frame: valid[:len(valid)/2], hint: 1024},
		{name: "exceeds size hint", frame: valid, hint: 16},
		{name: "zero size hint", frame: valid, hint: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Decompress(tt.frame, tt.hint)
			var codecErr *errors.CodecError
			if !goerrors.As(err, &codecErr) {
				t.Fatalf("Decompress() error = %v (%T), want *errors.CodecError", err, err)
			}
			if codecErr.Operation != "decompress" {
				t.Errorf("CodecError.Operation = %q, want %q", codecErr.Operation, "decompress")
			}
		})
	}
}

func TestHolder_Closed(t *testing.T) {
	h, err := NewHolder(DefaultLevel)
	if err != nil {
		t.Fatalf("NewHolder() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v, want nil", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}

	var codecErr *errors.CodecError
	if _, err := h.Compress([]byte("x")); !goerrors.As(err, &codecErr) {
		t.Errorf("Compress() after Close error = %v, want *errors.CodecError", err)
	}
	if _, err := h.Decompress([]byte("x"), 16); !goerrors.As(err, &codecErr) {
		t.Errorf("Decompress() after Close error = %v, want *errors.CodecError", err)
	}
}

// Interleaved compress/decompress from many goroutines must never corrupt
// codec state.
func TestHolder_Concurrent(t *testing.T) {
	h := newHolder(t)

	const goroutines = 16
	const iterations = 50

	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				want := bytes.Repeat([]byte{byte(g), byte(i)}, 32+i)
				frame, err := h.Compress(want)
				if err != nil {
					errs <- err
					return
				}
				got, err := h.Decompress(frame, 4096)
				if err != nil {
					errs <- err
					return
				}
				if !bytes.Equal(got, want) {
					errs <- fmt.Errorf("goroutine %d iteration %d: payload mismatch", g, i)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestMsgpack_RoundTrip(t *testing.T) {
	s := Msgpack{}
	want := input{Frame: 1234, Player: 2, Buttons: []byte{1, 0, 1}}

	data, err := s.Marshal(&want)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got input
	if err := s.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Frame != want.Frame || got.Player != want.Player || !bytes.Equal(got.Buttons, want.Buttons) {
		t.Errorf("Unmarshal() = %+v, want %+v", got, want)
	}
}

func TestMsgpack_UnmarshalStrict(t *testing.T) {
	s := Msgpack{}

	valid, err := s.Marshal(&input{Frame: 1})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	extra, err := s.Marshal(&struct {
		Frame uint32 `msgpack:"frame"`
		Chat  string `msgpack:"chat"`
	}{Frame: 1, Chat: "gg"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "reserved byte", data: []byte{0xc1}},
		{name: "truncated", data: valid[:len(valid)-1]},
		{name: "trailing bytes", data: append(append([]byte{}, valid...), 0x00)},
		{name: "unknown field", data: extra},
		{name: "empty", data: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got input
			if err := s.Unmarshal(tt.data, &got); err == nil {
				t.Errorf("Unmarshal(%x) error = nil, want error", tt.data)
			}
		})
	}
}

// Full wire frame: deserialize(decompress(compress(serialize(m)))) == m.
func TestWireFrame_RoundTrip(t *testing.T) {
	h := newHolder(t)
	s := Msgpack{}

	for frame := uint32(0); frame < 64; frame++ {
		want := input{Frame: frame, Player: uint8(frame % 4), Buttons: bytes.Repeat([]byte{byte(frame)}, int(frame))}

		payload, err := s.Marshal(&want)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		wire, err := h.Compress(payload)
		if err != nil {
			t.Fatalf("Compress() error = %v", err)
		}
		decoded, err := h.Decompress(wire, 4096)
		if err != nil {
			t.Fatalf("Decompress() error = %v", err)
		}
		var got input
		if err := s.Unmarshal(decoded, &got); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if got.Frame != want.Frame || got.Player != want.Player || !bytes.Equal(got.Buttons, want.Buttons) {
			t.Fatalf("round trip = %+v, want %+v", got, want)
		}
	}
}

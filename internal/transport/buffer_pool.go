package transport

import "sync"

// maxDatagramSize is the largest UDP payload over IPv4.
const maxDatagramSize = 65507

var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, maxDatagramSize)
		return &buf
	},
}

// GetBuffer returns a receive buffer large enough for any datagram.
//
// Callers must return it with PutBuffer and must not keep references to it.
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer returns a buffer obtained from GetBuffer.
func PutBuffer(buf *[]byte) {
	bufferPool.Put(buf)
}

// Package bufpool pools the scratch regions the reactor's read paths
// borrow for a single readiness burst: the Buffer's bounded "one extra
// read" scratch (§4.1) and a UDPSocket's receive scratch (§4.6). Grounded
// on the teacher's use of github.com/valyala/bytebufferpool to avoid a
// fresh allocation per burst.
package bufpool

import "github.com/valyala/bytebufferpool"

// ExtraReadSize is the bounded size of Buffer's one-shot extra read.
const ExtraReadSize = 64 * 1024

// DatagramScratchSize is the default UDP receive scratch size, used unless
// a UDPSocket is configured with a different udp_scratch_cap.
const DatagramScratchSize = 64 * 1024

var pool bytebufferpool.Pool

// GetScratch borrows a scratch []byte sized to exactly size bytes.
func GetScratch(size int) *bytebufferpool.ByteBuffer {
	b := pool.Get()
	if cap(b.B) < size {
		b.B = make([]byte, size)
	} else {
		b.B = b.B[:size]
	}
	return b
}

// Put returns a scratch buffer to the pool.
func Put(b *bytebufferpool.ByteBuffer) {
	pool.Put(b)
}

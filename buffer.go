package reactor

import (
	"bytes"

	"golang.org/x/sys/unix"

	"github.com/walkon/reactor/internal/bufpool"
)

const (
	prependSize = 8
	initialSize = 1024
)

// Buffer is a growable byte window with a fixed prepend reserve and
// reader/writer cursors: P <= R <= W <= cap(buf). Readable is [R,W);
// writable is [W,cap). Grounded on original_source/src/buffer.rs.
type Buffer struct {
	buf    []byte
	reader int
	writer int
}

// NewBuffer returns a Buffer with the default initial capacity.
func NewBuffer() *Buffer {
	return NewBufferSize(initialSize)
}

// NewBufferSize returns a Buffer with at least initial bytes of capacity
// beyond the prepend reserve.
func NewBufferSize(initial int) *Buffer {
	return &Buffer{
		buf:    make([]byte, prependSize+initial),
		reader: prependSize,
		writer: prependSize,
	}
}

// ReadableBytes is the number of bytes available to Peek/Retrieve.
func (b *Buffer) ReadableBytes() int { return b.writer - b.reader }

// WritableBytes is the remaining space in the writable tail.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writer }

// PrependBytes is the current size of the leading reserve, i.e. the reader
// cursor's offset from the start of the underlying array.
func (b *Buffer) PrependBytes() int { return b.reader }

// Peek borrows the first n readable bytes, failing if fewer exist.
func (b *Buffer) Peek(n int) ([]byte, bool) {
	if b.ReadableBytes() < n {
		return nil, false
	}
	return b.buf[b.reader : b.reader+n], true
}

// Retrieve advances the reader cursor by n, n <= ReadableBytes(). When the
// buffer empties, both cursors reset to the prepend reserve to reclaim
// space.
func (b *Buffer) Retrieve(n int) {
	if n > b.ReadableBytes() {
		return
	}
	b.reader += n
	if b.reader == b.writer {
		b.reader = prependSize
		b.writer = prependSize
	}
}

// RetrieveAll discards all readable bytes.
func (b *Buffer) RetrieveAll() {
	b.reader = prependSize
	b.writer = prependSize
}

// RetrieveString retrieves n bytes as a string, or reports false if fewer
// than n bytes are readable.
func (b *Buffer) RetrieveString(n int) (string, bool) {
	data, ok := b.Peek(n)
	if !ok {
		return "", false
	}
	s := string(data)
	b.Retrieve(n)
	return s, true
}

// RetrieveAllString drains the whole readable region as a string.
func (b *Buffer) RetrieveAllString() string {
	s, _ := b.RetrieveString(b.ReadableBytes())
	return s
}

// Append writes data to the tail, growing or compacting as needed.
func (b *Buffer) Append(data []byte) {
	b.ensureWritable(len(data))
	n := copy(b.buf[b.writer:], data)
	b.writer += n
}

// AppendString is Append(([]byte)(s)).
func (b *Buffer) AppendString(s string) { b.Append([]byte(s)) }

// ensureWritable grows/compacts so that WritableBytes() >= n.
func (b *Buffer) ensureWritable(n int) {
	if b.WritableBytes() < n {
		b.makeSpace(n)
	}
}

// makeSpace implements the growth policy of §4.1: if the tail plus the
// reclaimable prepend slack already covers n, compact [R,W) to the
// prepend boundary; otherwise grow.
func (b *Buffer) makeSpace(n int) {
	readable := b.ReadableBytes()
	if b.WritableBytes()+b.PrependBytes()-prependSize >= n {
		copy(b.buf[prependSize:], b.buf[b.reader:b.writer])
		b.reader = prependSize
		b.writer = prependSize + readable
		return
	}
	grown := make([]byte, len(b.buf)+n)
	copy(grown, b.buf[:b.writer])
	b.buf = grown
}

// AsSlice returns the readable region [R,W).
func (b *Buffer) AsSlice() []byte { return b.buf[b.reader:b.writer] }

// WritableSlice returns the writable tail [W,cap), for direct writes
// followed by HasWritten.
func (b *Buffer) WritableSlice() []byte { return b.buf[b.writer:] }

// HasWritten advances W after a direct write into WritableSlice.
func (b *Buffer) HasWritten(n int) { b.writer += n }

// Find returns the offset of pattern within [R,W), relative to R.
func (b *Buffer) Find(pattern []byte) (int, bool) {
	if len(pattern) == 0 || b.ReadableBytes() < len(pattern) {
		return 0, false
	}
	idx := bytes.Index(b.buf[b.reader:b.writer], pattern)
	if idx < 0 {
		return 0, false
	}
	return idx, true
}

// FindCRLF locates the next "\r\n".
func (b *Buffer) FindCRLF() (int, bool) { return b.Find([]byte("\r\n")) }

// FindLF locates the next "\n".
func (b *Buffer) FindLF() (int, bool) { return b.Find([]byte("\n")) }

// ReadUntil retrieves and returns the bytes up to (excluding) delimiter,
// consuming the delimiter too. Returns false if delimiter is not present.
func (b *Buffer) ReadUntil(delimiter []byte) ([]byte, bool) {
	pos, ok := b.Find(delimiter)
	if !ok {
		return nil, false
	}
	result := make([]byte, pos)
	copy(result, b.buf[b.reader:b.reader+pos])
	b.Retrieve(pos + len(delimiter))
	return result, true
}

// ReadLine retrieves the next line, accepting both "\n" and "\r\n" endings.
func (b *Buffer) ReadLine() (string, bool) {
	pos, ok := b.FindLF()
	if !ok {
		return "", false
	}
	end := b.reader + pos
	if pos > 0 && b.buf[end-1] == '\r' {
		end--
	}
	line := string(b.buf[b.reader:end])
	b.Retrieve(pos + 1)
	return line, true
}

// ReadFromTCP performs one nonblocking read from fd into the writable
// tail. If that read completely fills the tail, one additional bounded
// (64 KiB) read is attempted into pooled scratch and appended, so a single
// wakeup can drain more than the buffer's current capacity. Returns total
// bytes read, or the first read's error (including EAGAIN/EWOULDBLOCK); a
// 0-byte, nil-error result signals orderly peer close.
func (b *Buffer) ReadFromTCP(fd int) (int, error) {
	if b.WritableBytes() == 0 {
		b.ensureWritable(initialSize)
	}
	n, err := unix.Read(fd, b.buf[b.writer:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	b.writer += n
	if b.WritableBytes() == 0 {
		scratch := bufpool.GetScratch(bufpool.ExtraReadSize)
		extra, extraErr := unix.Read(fd, scratch.B)
		if extraErr == nil && extra > 0 {
			b.Append(scratch.B[:extra])
			n += extra
		}
		bufpool.Put(scratch)
	}
	return n, nil
}

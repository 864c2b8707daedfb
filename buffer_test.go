package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferCreation(t *testing.T) {
	b := NewBuffer()
	assert.Equal(t, 0, b.ReadableBytes())
	assert.Greater(t, b.WritableBytes(), 0)
}

func TestBufferAppendAndPeek(t *testing.T) {
	b := NewBuffer()
	data := []byte("Hello, World!")

	b.Append(data)
	assert.Equal(t, len(data), b.ReadableBytes())

	peeked, ok := b.Peek(len(data))
	require.True(t, ok)
	assert.Equal(t, data, peeked)

	b.Retrieve(5)
	assert.Equal(t, len(data)-5, b.ReadableBytes())

	rest, ok := b.Peek(b.ReadableBytes())
	require.True(t, ok)
	assert.Equal(t, []byte(", World!"), rest)
}

func TestBufferStringOperations(t *testing.T) {
	b := NewBuffer()
	b.AppendString("Hello, 世界!")

	assert.Equal(t, "Hello, 世界!", b.RetrieveAllString())
	assert.Equal(t, 0, b.ReadableBytes())
}

func TestBufferReadLine(t *testing.T) {
	b := NewBuffer()
	b.AppendString("Line 1\r\nLine 2\nLine 3\r\n")

	line1, ok := b.ReadLine()
	require.True(t, ok)
	assert.Equal(t, "Line 1", line1)

	line2, ok := b.ReadLine()
	require.True(t, ok)
	assert.Equal(t, "Line 2", line2)

	line3, ok := b.ReadLine()
	require.True(t, ok)
	assert.Equal(t, "Line 3", line3)

	_, ok = b.ReadLine()
	assert.False(t, ok)
}

func TestBufferFind(t *testing.T) {
	b := NewBuffer()
	b.AppendString("Hello, World! How are you?")

	pos, ok := b.Find([]byte("World"))
	require.True(t, ok)
	assert.Equal(t, 7, pos)

	_, ok = b.Find([]byte("xyz"))
	assert.False(t, ok)
}

func TestBufferReadUntil(t *testing.T) {
	b := NewBuffer()
	b.AppendString("GET /path HTTP/1.1\r\nHost: example.com\r\n")

	first, ok := b.ReadUntil([]byte("\r\n"))
	require.True(t, ok)
	assert.Equal(t, "GET /path HTTP/1.1", string(first))

	second, ok := b.ReadUntil([]byte("\r\n"))
	require.True(t, ok)
	assert.Equal(t, "Host: example.com", string(second))
}

func TestBufferGrowth(t *testing.T) {
	b := NewBufferSize(10)
	large := make([]byte, 2000)
	for i := range large {
		large[i] = 'x'
	}

	b.Append(large)
	assert.Equal(t, 2000, b.ReadableBytes())

	back, ok := b.Peek(2000)
	require.True(t, ok)
	assert.Equal(t, large, back)
}

func TestBufferSpaceOptimization(t *testing.T) {
	b := NewBuffer()

	b.AppendString("0123456789")
	assert.Equal(t, 10, b.ReadableBytes())

	b.Retrieve(5)
	assert.Equal(t, 5, b.ReadableBytes())

	b.Retrieve(5)
	assert.Equal(t, 0, b.ReadableBytes())
	assert.Equal(t, prependSize, b.reader)
	assert.Equal(t, prependSize, b.writer)
}

func TestBufferRetrieveString(t *testing.T) {
	b := NewBuffer()
	b.AppendString("Hello, World!")

	hello, ok := b.RetrieveString(5)
	require.True(t, ok)
	assert.Equal(t, "Hello", hello)
	assert.Equal(t, 8, b.ReadableBytes())

	_, ok = b.RetrieveString(100)
	assert.False(t, ok)

	world, ok := b.RetrieveString(8)
	require.True(t, ok)
	assert.Equal(t, ", World!", world)
	assert.Equal(t, 0, b.ReadableBytes())
}

func TestBufferWritableSliceRoundTrip(t *testing.T) {
	b := NewBuffer()
	n := copy(b.WritableSlice(), []byte("direct write"))
	b.HasWritten(n)
	assert.Equal(t, "direct write", b.RetrieveAllString())
}

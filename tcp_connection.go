package reactor

import (
	"net"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/walkon/reactor/internal/logging"
	"github.com/walkon/reactor/internal/sigchan"
)

// maxStash bounds how much unsent output a connection will hold in memory
// while waiting for writability; a slow or stalled peer beyond this is
// treated as fatal rather than let the stash grow without bound (an open
// question in the original design, resolved here at 16 MiB).
const maxStash = 16 << 20

// TCPConnection is one established TCP connection's read/write state
// machine (§4.5), registered on exactly one worker reactor for its
// lifetime. Grounded on original_source/src/tcp_connection.rs.
type TCPConnection struct {
	fd       int
	token    int
	interest Interest

	localAddr net.Addr
	peerAddr  net.Addr

	input  *Buffer
	output *Buffer

	onConnection ConnectionCallback
	onMessage    MessageCallback

	established *atomic.Bool
	sender      sigchan.Sender[signal[*TCPConnection]]
	handle      *TCPConnectionHandle
}

// newTCPConnection wraps an already-connected or already-accepted
// nonblocking socket fd. sender must be the Sender half of the signal
// channel belonging to the reactor this connection is about to be
// registered on (obtained from that reactor's Handle().Sender()) — the
// connection needs it immediately to enqueue its own Shutdown signal from
// inside the read/write path, before SetToken runs. readBufferCap sizes the
// input buffer's initial capacity (the [reactor].read_buffer_cap config
// knob); callers with no configured value should pass initialSize.
func newTCPConnection(fd int, local, peer net.Addr, sender sigchan.Sender[signal[*TCPConnection]], readBufferCap int, onConnection ConnectionCallback, onMessage MessageCallback) *TCPConnection {
	return &TCPConnection{
		fd:           fd,
		token:        -1,
		interest:     Readable,
		localAddr:    local,
		peerAddr:     peer,
		input:        NewBufferSize(readBufferCap),
		output:       NewBuffer(),
		onConnection: onConnection,
		onMessage:    onMessage,
		established:  atomic.NewBool(false),
		sender:       sender,
	}
}

// FD returns the connection's underlying socket fd.
func (c *TCPConnection) FD() int { return c.fd }

// Token returns the slab token assigned at registration, or -1 before
// that.
func (c *TCPConnection) Token() int { return c.token }

// SetToken is called once by the owning reactor at registration.
func (c *TCPConnection) SetToken(token int) {
	c.token = token
	c.handle = newTCPConnectionHandle(c.localAddr, c.peerAddr, token, c.sender, c.established)
}

// Interest returns the connection's current readiness subscription.
func (c *TCPConnection) Interest() Interest { return c.interest }

// SetInterest updates the connection's declared interest.
func (c *TCPConnection) SetInterest(i Interest) { c.interest = i }

// HandleEstablish flips the established flag and invokes the connection
// callback (§6); called by the owning reactor on Register and on
// Shutdown/teardown.
func (c *TCPConnection) HandleEstablish(established bool) {
	c.established.Store(established)
	if c.onConnection != nil {
		c.onConnection(c.handle, established)
	}
}

// Handle returns this connection's thread-safe external view.
func (c *TCPConnection) Handle() *TCPConnectionHandle { return c.handle }

// HandleEvent runs the read path on readable readiness and the write path
// on writable readiness (§4.5).
func (c *TCPConnection) HandleEvent(event PollEvent, receiveTime time.Time) {
	if event.Readable {
		c.handleRead(receiveTime)
	}
	if event.Writable {
		c.handleWritable()
	}
}

// handleRead repeatedly calls ReadFromTCP until would-block, delivering
// the message callback once per dispatch over whatever was accumulated,
// and delivering a final callback before shutdown on orderly close so the
// last bytes are not dropped (§4.5).
func (c *TCPConnection) handleRead(receiveTime time.Time) {
	totalRead := 0
	for {
		n, err := c.input.ReadFromTCP(c.fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			logging.L().Warn("tcp: read failed",
				zap.Int("token", c.token), zap.Stringer("peer", c.peerAddr), zap.Error(err))
			if totalRead > 0 && c.onMessage != nil {
				c.onMessage(c.handle, c.input, receiveTime)
			}
			c.shutdownSelf()
			return
		}
		if n == 0 {
			if totalRead > 0 && c.onMessage != nil {
				c.onMessage(c.handle, c.input, receiveTime)
			}
			c.shutdownSelf()
			return
		}
		totalRead += n
	}
	if totalRead > 0 && c.onMessage != nil {
		c.onMessage(c.handle, c.input, receiveTime)
	}
}

// handleWritable drains the output buffer directly into the socket,
// dropping the Writable interest once fully drained (§4.5).
func (c *TCPConnection) handleWritable() {
	for c.output.ReadableBytes() > 0 {
		data, _ := c.output.Peek(c.output.ReadableBytes())
		n, err := unix.Write(c.fd, data)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			logging.L().Warn("tcp: write failed",
				zap.Int("token", c.token), zap.Stringer("peer", c.peerAddr), zap.Error(err))
			c.shutdownSelf()
			return
		}
		c.output.Retrieve(n)
	}
	c.interest = c.interest.Remove(Writable)
}

// Write performs a direct nonblocking write attempt, for internal callers
// that already hold the fd (not part of the cross-thread handle path).
func (c *TCPConnection) Write(data []byte) (int, error) {
	return unix.Write(c.fd, data)
}

// StashOutput is the Write-signal handler (§4.4): when no output is already
// pending, attempt an immediate write; then buffer whatever remains and subscribe to Writable so the
// reactor's poller wakes this connection once space opens up. A stash
// that would exceed maxStash is treated as fatal backpressure.
func (c *TCPConnection) StashOutput(data []byte) {
	if c.output.ReadableBytes() == 0 {
		n, err := unix.Write(c.fd, data)
		if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			logging.L().Warn("tcp: write failed",
				zap.Int("token", c.token), zap.Stringer("peer", c.peerAddr), zap.Error(err))
			c.shutdownSelf()
			return
		}
		if err == nil {
			data = data[n:]
		}
		if len(data) == 0 {
			return
		}
	}
	if c.output.ReadableBytes()+len(data) > maxStash {
		logging.L().Error("tcp: output stash exceeded bound, closing",
			zap.Int("token", c.token), zap.Stringer("peer", c.peerAddr), zap.Int("bound", maxStash))
		c.shutdownSelf()
		return
	}
	c.output.Append(data)
	c.interest = c.interest.Add(Writable)
}

// Send panics: UDP-only operation.
func (c *TCPConnection) Send(net.Addr, []byte) (int, error) {
	panic("reactor: Send is not supported on a TCP connection")
}

// shutdownSelf enqueues a Shutdown signal for this connection's own
// token, the same path an external caller would use via the handle.
func (c *TCPConnection) shutdownSelf() {
	if c.token < 0 {
		return
	}
	c.sender.Send(shutdownSignal[*TCPConnection](c.token))
}

package reactor

import (
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/walkon/reactor/internal/logging"
	"github.com/walkon/reactor/internal/rawsock"
)

// Acceptor owns a listening TCP socket and round-robins freshly accepted
// connections across a worker reactor pool (§4.7). It never holds output
// state of its own, so Write/StashOutput/Send are unsupported operations.
// Grounded on original_source/src/acceptor.rs.
type Acceptor struct {
	fd       int
	token    int
	interest Interest

	localAddr net.Addr

	workers       *ReactorPool[*TCPConnection]
	readBufferCap int
	onConnection  ConnectionCallback
	onMessage     MessageCallback

	next int
}

// newAcceptor wraps an already-listening nonblocking TCP socket fd and the
// worker pool new connections are dispatched to. readBufferCap is passed
// through to every accepted TCPConnection (the [reactor].read_buffer_cap
// config knob).
func newAcceptor(fd int, local net.Addr, workers *ReactorPool[*TCPConnection], readBufferCap int, onConnection ConnectionCallback, onMessage MessageCallback) *Acceptor {
	return &Acceptor{
		fd:            fd,
		token:         -1,
		interest:      Readable,
		localAddr:     local,
		workers:       workers,
		readBufferCap: readBufferCap,
		onConnection:  onConnection,
		onMessage:     onMessage,
	}
}

// FD returns the listener's fd.
func (a *Acceptor) FD() int { return a.fd }

// Token returns the slab token assigned at registration, or -1 before
// that.
func (a *Acceptor) Token() int { return a.token }

// SetToken is called once by the owning reactor at registration.
func (a *Acceptor) SetToken(token int) { a.token = token }

// Interest returns the acceptor's current readiness subscription.
func (a *Acceptor) Interest() Interest { return a.interest }

// SetInterest updates the acceptor's declared interest.
func (a *Acceptor) SetInterest(i Interest) { a.interest = i }

// HandleEstablish is a no-op: an acceptor has no connection callback of
// its own.
func (a *Acceptor) HandleEstablish(bool) {}

// HandleEvent accepts every pending connection, one at a time, until
// accept4 returns would-block, dispatching each to the next worker
// reactor in round-robin order (§4.7, §8 scenario 3).
func (a *Acceptor) HandleEvent(event PollEvent, _ time.Time) {
	if !event.Readable {
		return
	}
	for {
		fd, remote, err := rawsock.Accept(a.fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if isTransientAcceptError(err) {
				// A brief backoff avoids a tight CPU-spinning retry loop on
				// transient per-connection accept failures (EMFILE/ENFILE/
				// ECONNABORTED) without tearing the listener down.
				time.Sleep(time.Millisecond)
				return
			}
			logging.L().Error("acceptor: accept failed", zap.Error(err))
			return
		}
		localSA, lerr := unix.Getsockname(fd)
		var local net.Addr = a.localAddr
		if lerr == nil {
			local = rawsock.TCPAddr(localSA)
		}
		worker := a.workers.Next()
		conn := newTCPConnection(fd, local, remote, worker.Handle().Sender(), a.readBufferCap, a.onConnection, a.onMessage)
		worker.Handle().Register(conn)
	}
}

func isTransientAcceptError(err error) bool {
	switch err {
	case unix.EMFILE, unix.ENFILE, unix.ECONNABORTED, unix.EINTR:
		return true
	default:
		return false
	}
}

// Write panics: an acceptor performs no socket I/O of its own.
func (a *Acceptor) Write([]byte) (int, error) {
	panic("reactor: Write is not supported on an acceptor")
}

// StashOutput panics: an acceptor performs no socket I/O of its own.
func (a *Acceptor) StashOutput([]byte) {
	panic("reactor: StashOutput is not supported on an acceptor")
}

// Send panics: an acceptor performs no socket I/O of its own.
func (a *Acceptor) Send(net.Addr, []byte) (int, error) {
	panic("reactor: Send is not supported on an acceptor")
}

package reactor

import (
	"net"
	"time"
)

// Interest is the set of readiness conditions a socket currently wants to
// be woken for (§4.3).
type Interest uint8

const (
	// Readable subscribes to read readiness.
	Readable Interest = 1 << iota
	// Writable subscribes to write readiness.
	Writable
)

// IsReadable reports whether i includes Readable.
func (i Interest) IsReadable() bool { return i&Readable != 0 }

// IsWritable reports whether i includes Writable.
func (i Interest) IsWritable() bool { return i&Writable != 0 }

// Add returns i with o's bits set.
func (i Interest) Add(o Interest) Interest { return i | o }

// Remove returns i with o's bits cleared.
func (i Interest) Remove(o Interest) Interest { return i &^ o }

// PollEvent describes one ready socket as delivered by the reactor's
// poller for a single dispatch.
type PollEvent struct {
	Readable bool
	Writable bool
}

// ReactorSocket is the polymorphic contract every socket variant registered
// with a Reactor implements (§4.3): TCP listener (Acceptor), TCP connection
// (TCPConnection), and UDP socket (UDPSocket). Variants reject operations
// they do not support by panicking — the reactor only ever invokes
// operations valid for the variant it holds (§9 "Design Notes").
type ReactorSocket interface {
	// FD returns the underlying OS socket handle.
	FD() int
	// Interest returns the socket's current readiness interest.
	Interest() Interest
	// SetInterest updates the socket's declared interest (the reactor also
	// reregisters with the poller separately).
	SetInterest(Interest)
	// HandleEvent is invoked with a readiness event and the batch receive
	// timestamp.
	HandleEvent(event PollEvent, receiveTime time.Time)
	// Write performs a direct nonblocking write, returning bytes written
	// or an I/O error. TCP only; other variants panic.
	Write(data []byte) (int, error)
	// StashOutput appends to the socket's pending-output buffer. TCP only;
	// other variants panic.
	StashOutput(data []byte)
	// Send performs a single nonblocking datagram send to addr. UDP only;
	// other variants panic.
	Send(addr net.Addr, data []byte) (int, error)
	// HandleEstablish is invoked with true on successful registration and
	// false just before destruction.
	HandleEstablish(established bool)
	// Token returns the token assigned at registration, or -1 before that.
	Token() int
	// SetToken is called by the reactor once, at registration.
	SetToken(token int)
}

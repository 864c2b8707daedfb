package reactor

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/walkon/reactor/internal/bufpool"
	"github.com/walkon/reactor/internal/logging"
	"github.com/walkon/reactor/internal/rawsock"
	"github.com/walkon/reactor/internal/sigchan"
)

// UDPSocket is one bound UDP socket (§4.6), reading datagrams into a
// scratch region of scratchCap bytes (64 KiB by default) and dispatching
// one callback invocation per datagram. Grounded on original_source/src/udp_socket.rs.
type UDPSocket struct {
	fd       int
	token    int
	interest Interest

	localAddr net.Addr

	onDatagram DatagramCallback
	scratchCap int

	established *atomic.Bool
	sender      sigchan.Sender[signal[*UDPSocket]]
	handle      *UDPSocketHandle
}

// newUDPSocket wraps an already-bound nonblocking UDP socket fd. sender is
// the Sender half of the signal channel belonging to the reactor this
// socket is about to be registered on. scratchCap sizes the per-burst
// receive scratch (the [reactor].udp_scratch_cap config knob); callers with
// no configured value should pass bufpool.DatagramScratchSize.
func newUDPSocket(fd int, local net.Addr, sender sigchan.Sender[signal[*UDPSocket]], scratchCap int, onDatagram DatagramCallback) *UDPSocket {
	return &UDPSocket{
		fd:          fd,
		token:       -1,
		interest:    Readable,
		localAddr:   local,
		onDatagram:  onDatagram,
		scratchCap:  scratchCap,
		established: atomic.NewBool(false),
		sender:      sender,
	}
}

// FD returns the socket's underlying fd.
func (u *UDPSocket) FD() int { return u.fd }

// Token returns the slab token assigned at registration, or -1 before that.
func (u *UDPSocket) Token() int { return u.token }

// SetToken is called once by the owning reactor at registration.
func (u *UDPSocket) SetToken(token int) {
	u.token = token
	u.handle = newUDPSocketHandle(u.localAddr, token, u.sender, u.established)
}

// Interest returns the socket's current readiness subscription.
func (u *UDPSocket) Interest() Interest { return u.interest }

// SetInterest updates the socket's declared interest.
func (u *UDPSocket) SetInterest(i Interest) { u.interest = i }

// HandleEstablish flips the established flag; UDP has no connection
// callback, only the datagram callback (§6).
func (u *UDPSocket) HandleEstablish(established bool) {
	u.established.Store(established)
}

// Handle returns this socket's thread-safe external view.
func (u *UDPSocket) Handle() *UDPSocketHandle { return u.handle }

// HandleEvent loops recvfrom until would-block, invoking the datagram
// callback once per received datagram (§4.6).
func (u *UDPSocket) HandleEvent(event PollEvent, receiveTime time.Time) {
	if !event.Readable {
		return
	}
	scratch := bufpool.GetScratch(u.scratchCap)
	defer bufpool.Put(scratch)
	for {
		n, from, err := unix.Recvfrom(u.fd, scratch.B, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			logging.L().Warn("udp: recvfrom failed", zap.Int("token", u.token), zap.Error(err))
			u.shutdownSelf()
			return
		}
		if u.onDatagram != nil {
			peer := sockaddrToUDPAddr(from)
			u.onDatagram(u.handle, scratch.B[:n], peer, receiveTime)
		}
	}
}

func sockaddrToUDPAddr(sa unix.Sockaddr) net.Addr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, s.Addr[:])
		return &net.UDPAddr{IP: ip, Port: s.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, s.Addr[:])
		return &net.UDPAddr{IP: ip, Port: s.Port}
	default:
		return &net.UDPAddr{IP: net.IPv4zero, Port: 0}
	}
}

// Write panics: TCP-only operation.
func (u *UDPSocket) Write([]byte) (int, error) {
	panic("reactor: Write is not supported on a UDP socket")
}

// StashOutput panics: TCP-only operation.
func (u *UDPSocket) StashOutput([]byte) {
	panic("reactor: StashOutput is not supported on a UDP socket")
}

// Send performs a single nonblocking sendto. Per the resolved open
// question on UDP send-error handling (SPEC_FULL.md §12), any error is
// logged and swallowed rather than shutting the socket down: UDP delivery
// is inherently unreliable, and one peer's unreachable address should not
// take the whole socket offline.
func (u *UDPSocket) Send(addr net.Addr, data []byte) (int, error) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return 0, fmt.Errorf("reactor: unsupported address type %T for UDP send", addr)
	}
	sa, _ := rawsock.SockaddrFromUDPAddr(udpAddr)
	if err := unix.Sendto(u.fd, data, 0, sa); err != nil {
		logging.L().Warn("udp: sendto failed",
			zap.Int("token", u.token), zap.Stringer("peer", udpAddr), zap.Error(err))
		return 0, err
	}
	return len(data), nil
}

func (u *UDPSocket) shutdownSelf() {
	if u.token < 0 {
		return
	}
	u.sender.Send(shutdownSignal[*UDPSocket](u.token))
}

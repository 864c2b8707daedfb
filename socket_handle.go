package reactor

import (
	"net"

	"go.uber.org/atomic"

	"github.com/walkon/reactor/internal/sigchan"
)

// TCPConnectionHandle is the thread-safe external view of one registered
// TCP connection (§3 "Socket handle"). It is created once a connection's
// registration completes, is reference-counted simply by Go's GC (multiple
// goroutines may hold the same pointer), and remains valid but inert after
// the connection is destroyed: operations silently no-op once established
// goes false.
type TCPConnectionHandle struct {
	localAddr   net.Addr
	peerAddr    net.Addr
	token       int
	sender      sigchan.Sender[signal[*TCPConnection]]
	established *atomic.Bool
}

func newTCPConnectionHandle(local, peer net.Addr, token int, sender sigchan.Sender[signal[*TCPConnection]], established *atomic.Bool) *TCPConnectionHandle {
	return &TCPConnectionHandle{localAddr: local, peerAddr: peer, token: token, sender: sender, established: established}
}

// LocalAddr returns the connection's local address.
func (h *TCPConnectionHandle) LocalAddr() net.Addr { return h.localAddr }

// PeerAddr returns the connection's peer address.
func (h *TCPConnectionHandle) PeerAddr() net.Addr { return h.peerAddr }

// IsEstablished reports whether the connection is currently registered.
func (h *TCPConnectionHandle) IsEstablished() bool { return h.established.Load() }

// Shutdown enqueues a Shutdown signal for this connection's token.
func (h *TCPConnectionHandle) Shutdown() {
	if !h.IsEstablished() {
		return
	}
	h.sender.Send(shutdownSignal[*TCPConnection](h.token))
}

// Reregister enqueues an interest change for this connection's token.
func (h *TCPConnectionHandle) Reregister(interest Interest) {
	if !h.IsEstablished() {
		return
	}
	h.sender.Send(reregisterSignal[*TCPConnection](h.token, interest))
}

// Write enqueues data to be written to the connection, returning whether
// the connection was established at call time (§6). Dropped silently if
// not established.
func (h *TCPConnectionHandle) Write(data []byte) bool {
	if !h.IsEstablished() {
		return false
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	h.sender.Send(writeSignal[*TCPConnection](h.token, cp))
	return true
}

// UDPSocketHandle is the thread-safe external view of one registered UDP
// socket. PeerAddr is always the zero address for UDP (§3).
type UDPSocketHandle struct {
	localAddr   net.Addr
	token       int
	sender      sigchan.Sender[signal[*UDPSocket]]
	established *atomic.Bool
}

func newUDPSocketHandle(local net.Addr, token int, sender sigchan.Sender[signal[*UDPSocket]], established *atomic.Bool) *UDPSocketHandle {
	return &UDPSocketHandle{localAddr: local, token: token, sender: sender, established: established}
}

// LocalAddr returns the socket's bound local address.
func (h *UDPSocketHandle) LocalAddr() net.Addr { return h.localAddr }

// PeerAddr is always the zero address for UDP sockets (§3).
func (h *UDPSocketHandle) PeerAddr() net.Addr { return &net.UDPAddr{IP: net.IPv4zero, Port: 0} }

// IsEstablished reports whether the socket is currently registered.
func (h *UDPSocketHandle) IsEstablished() bool { return h.established.Load() }

// Shutdown enqueues a Shutdown signal for this socket's token.
func (h *UDPSocketHandle) Shutdown() {
	h.sender.Send(shutdownSignal[*UDPSocket](h.token))
}

// Reregister is a no-op for UDP sockets (interest is fixed at Readable),
// kept for interface symmetry with TCPConnectionHandle.
func (h *UDPSocketHandle) Reregister(interest Interest) {}

// Send enqueues a datagram to addr, returning whether the socket was
// established at call time. Dropped silently if not established.
func (h *UDPSocketHandle) Send(addr net.Addr, data []byte) bool {
	if !h.IsEstablished() {
		return false
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	h.sender.Send(sendSignal[*UDPSocket](h.token, addr, cp))
	return true
}

package reactor

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/walkon/reactor/internal/logging"
)

// ConnectionCallback is invoked once a TCP connection is established and
// again, with established=false, just before it is torn down (§6).
type ConnectionCallback func(conn *TCPConnectionHandle, established bool)

// MessageCallback is invoked after a TCP connection's read path has
// appended newly received bytes to its input buffer; the callback consumes
// from buf through the borrowed reference (§6).
type MessageCallback func(conn *TCPConnectionHandle, buf *Buffer, receiveTime time.Time)

// DatagramCallback is invoked once per datagram read from a UDP socket,
// with a view of that datagram's payload (§6).
type DatagramCallback func(sock *UDPSocketHandle, payload []byte, peerAddr net.Addr, receiveTime time.Time)

// DefaultConnectionCallback logs the connection's addresses and whether it
// just came up or went down.
func DefaultConnectionCallback(conn *TCPConnectionHandle, established bool) {
	state := "OFF"
	if established {
		state = "ON"
	}
	logging.L().Info("connection",
		zap.Stringer("local", conn.LocalAddr()), zap.Stringer("peer", conn.PeerAddr()), zap.String("state", state))
}

// DefaultMessageCallback logs and discards the connection's entire
// readable buffer as a string.
func DefaultMessageCallback(conn *TCPConnectionHandle, buf *Buffer, _ time.Time) {
	logging.L().Info("message",
		zap.Stringer("local", conn.LocalAddr()), zap.Stringer("peer", conn.PeerAddr()),
		zap.String("content", buf.RetrieveAllString()))
}

// DefaultDatagramCallback logs the datagram's peer and size without
// consuming it (UDP datagrams are not buffer-backed).
func DefaultDatagramCallback(sock *UDPSocketHandle, payload []byte, peerAddr net.Addr, _ time.Time) {
	logging.L().Info("datagram",
		zap.Stringer("local", sock.LocalAddr()), zap.Stringer("peer", peerAddr), zap.Int("bytes", len(payload)))
}

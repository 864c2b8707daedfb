package reactor

import (
	"fmt"
	"net"

	"github.com/walkon/reactor/config"
	"github.com/walkon/reactor/internal/bufpool"
	"github.com/walkon/reactor/internal/rawsock"
)

type clientKind uint8

const (
	clientTCP clientKind = iota
	clientUDP
)

// Client hosts a single reactor thread owning one socket: a TCP stream
// connected at construction, or a UDP socket that NewUDPClient binds at
// construction from an address; an already-bound socket cannot be passed
// in (§4.10). Grounded on original_source/src/tuclient.rs (its Client::new for
// TcpConnection and for UdpSocket) and src/bin/echo_tcp_client.rs.
type Client struct {
	kind clientKind

	tcpThread *EventLoopThread[*TCPConnection]
	tcpConn   *TCPConnection

	udpThread *EventLoopThread[*UDPSocket]
	udpSock   *UDPSocket
}

// NewTCPClient dials address synchronously (blocking until connected or
// failed), then registers the resulting connection on its own reactor
// thread synchronously too — before that thread's Run loop ever starts —
// so the returned Client's Write never races SetToken the way an
// asynchronously-processed Register signal would (mirrors tuclient.rs's
// Client::new, which calls reactor.register directly and builds its
// SocketRemote from the token it returns).
func NewTCPClient(address string, onConnection ConnectionCallback, onMessage MessageCallback) (*Client, error) {
	return newTCPClient(address, initialSize, onConnection, onMessage)
}

// NewTCPClientFromConfig is NewTCPClient sourcing its read-buffer capacity
// from cfg.Reactor.ReadBufferCap, dialing cfg.Server.Address.
func NewTCPClientFromConfig(cfg *config.Config, onConnection ConnectionCallback, onMessage MessageCallback) (*Client, error) {
	return newTCPClient(cfg.Server.Address, tuningFromConfig(cfg.Reactor).readBufferCap, onConnection, onMessage)
}

func newTCPClient(address string, readBufferCap int, onConnection ConnectionCallback, onMessage MessageCallback) (*Client, error) {
	thread, err := newEventLoopThread[*TCPConnection]("client-tcp")
	if err != nil {
		return nil, err
	}
	fd, local, remote, err := rawsock.DialTCP(address)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	conn := newTCPConnection(fd, local, remote, thread.Handle().Sender(), readBufferCap, onConnection, onMessage)
	if err := thread.RegisterSync(conn); err != nil {
		return nil, fmt.Errorf("client: register: %w", err)
	}
	return &Client{kind: clientTCP, tcpThread: thread, tcpConn: conn}, nil
}

// NewUDPClient binds a UDP socket at address and registers it on its own
// reactor thread synchronously, for the same reason NewTCPClient does.
func NewUDPClient(address string, onDatagram DatagramCallback) (*Client, error) {
	return newUDPClient(address, bufpool.DatagramScratchSize, onDatagram)
}

// NewUDPClientFromConfig is NewUDPClient sourcing its receive scratch
// capacity from cfg.Reactor.UDPScratchCap, binding cfg.Server.Address.
func NewUDPClientFromConfig(cfg *config.Config, onDatagram DatagramCallback) (*Client, error) {
	return newUDPClient(cfg.Server.Address, tuningFromConfig(cfg.Reactor).scratchCap, onDatagram)
}

func newUDPClient(address string, scratchCap int, onDatagram DatagramCallback) (*Client, error) {
	thread, err := newEventLoopThread[*UDPSocket]("client-udp")
	if err != nil {
		return nil, err
	}
	fd, local, err := rawsock.ListenUDP(address)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	sock := newUDPSocket(fd, local, thread.Handle().Sender(), scratchCap, onDatagram)
	if err := thread.RegisterSync(sock); err != nil {
		return nil, fmt.Errorf("client: register: %w", err)
	}
	return &Client{kind: clientUDP, udpThread: thread, udpSock: sock}, nil
}

// Listen starts the client's reactor thread. Must be called before
// Write/Send can take effect.
func (c *Client) Listen() {
	switch c.kind {
	case clientTCP:
		c.tcpThread.Start()
	case clientUDP:
		c.udpThread.Start()
	}
}

// Write enqueues data for the client's TCP connection, returning whether
// it was established at call time. Panics if the client is UDP-backed.
func (c *Client) Write(data []byte) bool {
	if c.kind != clientTCP {
		panic("reactor: Write is only valid on a TCP client")
	}
	return c.tcpConn.Handle().Write(data)
}

// Send enqueues a datagram to addr for the client's UDP socket, returning
// whether it was established at call time. Panics if the client is
// TCP-backed.
func (c *Client) Send(addr net.Addr, data []byte) bool {
	if c.kind != clientUDP {
		panic("reactor: Send is only valid on a UDP client")
	}
	return c.udpSock.Handle().Send(addr, data)
}

// Shutdown enqueues Quit on the client's reactor.
func (c *Client) Shutdown() {
	switch c.kind {
	case clientTCP:
		c.tcpThread.Quit()
	case clientUDP:
		c.udpThread.Quit()
	}
}

// Wait blocks until the client's reactor thread has returned.
func (c *Client) Wait() error {
	switch c.kind {
	case clientTCP:
		return c.tcpThread.Join()
	case clientUDP:
		return c.udpThread.Join()
	default:
		return nil
	}
}

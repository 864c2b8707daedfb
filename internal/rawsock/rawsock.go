// Package rawsock creates and manipulates nonblocking raw sockets bound or
// connected outside of the Go runtime's own netpoller, so that this
// module's own internal/netpoll can own readiness polling exclusively (the
// same reason github.com/walkon/gnet's server_unix.go drives sockets
// through its own internal/socket + internal/netpoll rather than net.Conn).
package rawsock

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

func sockaddr(ip net.IP, port int) (unix.Sockaddr, int) {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return sa, unix.AF_INET6
}

func ipPort(sa unix.Sockaddr) (net.IP, int) {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, s.Addr[:])
		return ip, s.Port
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, s.Addr[:])
		return ip, s.Port
	default:
		return net.IPv4zero, 0
	}
}

// SockaddrFromUDPAddr converts a *net.UDPAddr into a syscall sockaddr
// suitable for sendto, for a UDP socket's outgoing Send path.
func SockaddrFromUDPAddr(addr *net.UDPAddr) (unix.Sockaddr, int) {
	return sockaddr(addr.IP, addr.Port)
}

// TCPAddr converts a syscall sockaddr into a *net.TCPAddr.
func TCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	ip, port := ipPort(sa)
	return &net.TCPAddr{IP: ip, Port: port}
}

// UDPAddr converts a syscall sockaddr into a *net.UDPAddr.
func UDPAddr(sa unix.Sockaddr) *net.UDPAddr {
	ip, port := ipPort(sa)
	return &net.UDPAddr{IP: ip, Port: port}
}

// ListenTCP creates a nonblocking, listening TCP socket bound to address
// ("host:port"), returning its fd and the address it actually bound to.
func ListenTCP(address string) (fd int, local *net.TCPAddr, err error) {
	resolved, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return 0, nil, fmt.Errorf("rawsock: resolve %q: %w", address, err)
	}
	sa, domain := sockaddr(resolved.IP, resolved.Port)
	fd, err = unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return 0, nil, fmt.Errorf("rawsock: socket: %w", err)
	}
	if err = prepare(fd); err != nil {
		_ = unix.Close(fd)
		return 0, nil, err
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err = unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return 0, nil, fmt.Errorf("rawsock: bind %s: %w", address, err)
	}
	if err = unix.Listen(fd, 1024); err != nil {
		_ = unix.Close(fd)
		return 0, nil, fmt.Errorf("rawsock: listen %s: %w", address, err)
	}
	boundSA, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return 0, nil, fmt.Errorf("rawsock: getsockname: %w", err)
	}
	return fd, TCPAddr(boundSA), nil
}

// Accept accepts one pending nonblocking connection from listenFD.
func Accept(listenFD int) (fd int, remote *net.TCPAddr, err error) {
	nfd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return 0, nil, err
	}
	return nfd, TCPAddr(sa), nil
}

// DialTCP connects a nonblocking TCP socket to address, blocking the
// calling goroutine (via a dedicated poll(2) wait, not the Go runtime
// poller) until the connection completes or fails.
func DialTCP(address string) (fd int, local, remote *net.TCPAddr, err error) {
	resolved, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("rawsock: resolve %q: %w", address, err)
	}
	sa, domain := sockaddr(resolved.IP, resolved.Port)
	fd, err = unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("rawsock: socket: %w", err)
	}
	if err = prepare(fd); err != nil {
		_ = unix.Close(fd)
		return 0, nil, nil, err
	}
	connErr := unix.Connect(fd, sa)
	if connErr != nil && connErr != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return 0, nil, nil, fmt.Errorf("rawsock: connect %s: %w", address, connErr)
	}
	if connErr == unix.EINPROGRESS {
		if err = waitWritable(fd); err != nil {
			_ = unix.Close(fd)
			return 0, nil, nil, err
		}
		// Per the mdlayher/socket "ready" pattern: after a writable wakeup
		// following EINPROGRESS, SO_ERROR tells us whether connect actually
		// succeeded.
		if soErr, serr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); serr == nil && soErr != 0 {
			_ = unix.Close(fd)
			return 0, nil, nil, fmt.Errorf("rawsock: connect %s: %w", address, unix.Errno(soErr))
		}
	}
	localSA, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return 0, nil, nil, fmt.Errorf("rawsock: getsockname: %w", err)
	}
	remoteSA, err := unix.Getpeername(fd)
	if err != nil {
		_ = unix.Close(fd)
		return 0, nil, nil, fmt.Errorf("rawsock: getpeername: %w", err)
	}
	return fd, TCPAddr(localSA), TCPAddr(remoteSA), nil
}

// ListenUDP creates a nonblocking UDP socket bound to address.
func ListenUDP(address string) (fd int, local *net.UDPAddr, err error) {
	resolved, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return 0, nil, fmt.Errorf("rawsock: resolve %q: %w", address, err)
	}
	sa, domain := sockaddr(resolved.IP, resolved.Port)
	fd, err = unix.Socket(domain, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return 0, nil, fmt.Errorf("rawsock: socket: %w", err)
	}
	if err = prepare(fd); err != nil {
		_ = unix.Close(fd)
		return 0, nil, err
	}
	if err = unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return 0, nil, fmt.Errorf("rawsock: bind %s: %w", address, err)
	}
	boundSA, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return 0, nil, fmt.Errorf("rawsock: getsockname: %w", err)
	}
	return fd, UDPAddr(boundSA), nil
}

func prepare(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("rawsock: set nonblocking: %w", err)
	}
	return nil
}

func waitWritable(fd int) error {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(pfd, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("rawsock: poll: %w", err)
		}
		return nil
	}
}

package reactor

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freeTCPPort asks the kernel for an unused TCP port by briefly binding to
// it with the standard library, then releasing it before the reactor's own
// raw-socket listener binds the same address.
func freeTCPPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	port := c.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, c.Close())
	return port
}

func TestTCPEchoRoundTrip(t *testing.T) {
	port := freeTCPPort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	onMessage := func(conn *TCPConnectionHandle, buf *Buffer, _ time.Time) {
		content := buf.RetrieveAllString()
		conn.Write([]byte(content))
	}
	srv, err := NewTCPServer(addr, 1, DefaultConnectionCallback, onMessage)
	require.NoError(t, err)
	go func() { _ = srv.Run() }()
	defer func() {
		srv.Quitter().Quit()
	}()
	waitListening(t, addr)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 4)
	_, err = readFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestUDPEchoRoundTrip(t *testing.T) {
	port := freeUDPPort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	onDatagram := func(sock *UDPSocketHandle, payload []byte, peer net.Addr, _ time.Time) {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		sock.Send(peer, cp)
	}
	srv, err := NewUDPServer(addr, onDatagram)
	require.NoError(t, err)
	go func() { _ = srv.Run() }()
	defer srv.Quitter().Quit()
	waitUDPBound(t, addr)

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("pong"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 4)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:n]))
}

func TestWorkerRoundRobinDispatch(t *testing.T) {
	port := freeTCPPort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 4)

	onConnection := func(conn *TCPConnectionHandle, established bool) {
		if !established {
			return
		}
		mu.Lock()
		order = append(order, conn.PeerAddr().String())
		mu.Unlock()
		done <- struct{}{}
	}

	srv, err := NewTCPServer(addr, 4, onConnection, DefaultMessageCallback)
	require.NoError(t, err)
	go func() { _ = srv.Run() }()
	defer srv.Quitter().Quit()
	waitListening(t, addr)

	conns := make([]net.Conn, 4)
	for i := 0; i < 4; i++ {
		c, derr := net.Dial("tcp", addr)
		require.NoError(t, derr)
		conns[i] = c
		defer c.Close()
		<-done
	}

	mu.Lock()
	observed := append([]string(nil), order...)
	mu.Unlock()
	require.Len(t, observed, 4)

	workerIdx := make([]int, len(observed))
	for i, peer := range observed {
		workerIdx[i] = workerIndexOf(t, srv.workers, peer)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, workerIdx,
		"connections must land on workers 0,1,2,3 in round-robin acceptance order")
}

// workerIndexOf finds which worker in the pool currently holds the live
// connection whose peer address is peerAddr, identifying it by pool
// position rather than by any exported identity (ReactorPool hands out
// *EventLoopThread values, not indices).
func workerIndexOf(t *testing.T, workers *ReactorPool[*TCPConnection], peerAddr string) int {
	t.Helper()
	for i, th := range workers.threads {
		for token := 0; token < th.reactor.sockets.Cap(); token++ {
			conn, ok := th.reactor.sockets.Get(token)
			if ok && conn.peerAddr.String() == peerAddr {
				return i
			}
		}
	}
	t.Fatalf("connection from %s not found on any worker", peerAddr)
	return -1
}

func TestBackpressurePreservesOrder(t *testing.T) {
	port := freeTCPPort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	connectedCh := make(chan *TCPConnectionHandle, 1)
	onConnection := func(conn *TCPConnectionHandle, established bool) {
		if established {
			connectedCh <- conn
		}
	}
	srv, err := NewTCPServer(addr, 1, onConnection, DefaultMessageCallback)
	require.NoError(t, err)
	go func() { _ = srv.Run() }()
	defer srv.Quitter().Quit()
	waitListening(t, addr)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	var handle *TCPConnectionHandle
	select {
	case handle = <-connectedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("connection callback never fired")
	}

	const chunkSize = 256 * 1024
	const chunks = 10
	expected := make([]byte, 0, chunkSize*chunks)
	for i := 0; i < chunks; i++ {
		chunk := make([]byte, chunkSize)
		for j := range chunk {
			chunk[j] = byte(i)
		}
		expected = append(expected, chunk...)
		ok := handle.Write(chunk)
		require.True(t, ok)
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	got := make([]byte, len(expected))
	_, err = readFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, expected, got)
}

func TestOrderlyCloseDeliversFinalBytes(t *testing.T) {
	port := freeTCPPort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	received := make(chan string, 1)
	closed := make(chan struct{}, 1)

	onMessage := func(_ *TCPConnectionHandle, buf *Buffer, _ time.Time) {
		received <- buf.RetrieveAllString()
	}
	onConnection := func(_ *TCPConnectionHandle, established bool) {
		if !established {
			closed <- struct{}{}
		}
	}
	srv, err := NewTCPServer(addr, 1, onConnection, onMessage)
	require.NoError(t, err)
	go func() { _ = srv.Run() }()
	defer srv.Quitter().Quit()
	waitListening(t, addr)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	_, err = conn.Write([]byte("last words"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	select {
	case msg := <-received:
		assert.Equal(t, "last words", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("message callback never fired before close")
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection callback never reported established=false")
	}
}

func TestQuitWithManyIdleConnections(t *testing.T) {
	port := freeTCPPort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	srv, err := NewTCPServer(addr, 4, DefaultConnectionCallback, DefaultMessageCallback)
	require.NoError(t, err)
	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run() }()
	waitListening(t, addr)

	const n = 100
	conns := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		c, derr := net.Dial("tcp", addr)
		require.NoError(t, derr)
		conns = append(conns, c)
	}
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()

	srv.Quitter().Quit()

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not quit within bound")
	}
}

func waitListening(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = c.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server never started listening on %s", addr)
}

func waitUDPBound(t *testing.T, addr string) {
	t.Helper()
	// UDP has no connect-time handshake to probe; a short settle delay is
	// sufficient since registration happens before Run's first poll.
	time.Sleep(50 * time.Millisecond)
	_ = addr
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

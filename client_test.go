package reactor

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTCPClientWriteBeforeListenDoesNotPanic guards against the race fixed
// by RegisterSync: Write must be safe to call the instant NewTCPClient
// returns, before Listen has ever started the client's reactor thread.
func TestTCPClientWriteBeforeListenDoesNotPanic(t *testing.T) {
	port := freeTCPPort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	srv, err := NewTCPServer(addr, 1, DefaultConnectionCallback, DefaultMessageCallback)
	require.NoError(t, err)
	go func() { _ = srv.Run() }()
	defer srv.Quitter().Quit()
	waitListening(t, addr)

	client, err := NewTCPClient(addr, DefaultConnectionCallback, DefaultMessageCallback)
	require.NoError(t, err)
	defer client.Shutdown()

	assert.NotPanics(t, func() {
		ok := client.Write([]byte("hello"))
		assert.True(t, ok, "Write must report established before Listen starts the reactor goroutine")
	})
}

func TestTCPClientEchoRoundTrip(t *testing.T) {
	port := freeTCPPort(t)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	onMessage := func(conn *TCPConnectionHandle, buf *Buffer, _ time.Time) {
		content := buf.RetrieveAllString()
		conn.Write([]byte(content))
	}
	srv, err := NewTCPServer(addr, 1, DefaultConnectionCallback, onMessage)
	require.NoError(t, err)
	go func() { _ = srv.Run() }()
	defer srv.Quitter().Quit()
	waitListening(t, addr)

	received := make(chan string, 1)
	client, err := NewTCPClient(addr, DefaultConnectionCallback, func(_ *TCPConnectionHandle, buf *Buffer, _ time.Time) {
		received <- buf.RetrieveAllString()
	})
	require.NoError(t, err)
	client.Listen()
	defer func() {
		client.Shutdown()
		_ = client.Wait()
	}()

	require.True(t, client.Write([]byte("echo me")))

	select {
	case msg := <-received:
		assert.Equal(t, "echo me", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("client never received the echoed message")
	}
}

func TestUDPClientWriteBeforeListenDoesNotPanic(t *testing.T) {
	clientPort := freeUDPPort(t)
	clientAddr := fmt.Sprintf("127.0.0.1:%d", clientPort)

	client, err := NewUDPClient(clientAddr, DefaultDatagramCallback)
	require.NoError(t, err)
	defer client.Shutdown()

	assert.NotPanics(t, func() {
		ok := client.Send(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}, []byte("hi"))
		assert.True(t, ok, "Send must report established before Listen starts the reactor goroutine")
	})
}

func TestUDPClientEchoRoundTrip(t *testing.T) {
	serverPort := freeUDPPort(t)
	serverAddr := fmt.Sprintf("127.0.0.1:%d", serverPort)

	onDatagram := func(sock *UDPSocketHandle, payload []byte, peer net.Addr, _ time.Time) {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		sock.Send(peer, cp)
	}
	srv, err := NewUDPServer(serverAddr, onDatagram)
	require.NoError(t, err)
	go func() { _ = srv.Run() }()
	defer srv.Quitter().Quit()
	waitUDPBound(t, serverAddr)

	clientPort := freeUDPPort(t)
	clientAddr := fmt.Sprintf("127.0.0.1:%d", clientPort)

	received := make(chan string, 1)
	client, err := NewUDPClient(clientAddr, func(_ *UDPSocketHandle, payload []byte, _ net.Addr, _ time.Time) {
		received <- string(payload)
	})
	require.NoError(t, err)
	client.Listen()
	defer func() {
		client.Shutdown()
		_ = client.Wait()
	}()

	serverUDPAddr, err := net.ResolveUDPAddr("udp", serverAddr)
	require.NoError(t, err)
	require.True(t, client.Send(serverUDPAddr, []byte("ping")))

	select {
	case msg := <-received:
		assert.Equal(t, "ping", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("client never received the echoed datagram")
	}
}

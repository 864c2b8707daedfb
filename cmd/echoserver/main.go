// Command echoserver runs a combined TCP+UDP echo server: every TCP
// message and every UDP datagram is written straight back to its sender.
package main

import (
	"flag"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/walkon/reactor"
	"github.com/walkon/reactor/config"
	"github.com/walkon/reactor/internal/logging"
)

func messageCallback(conn *reactor.TCPConnectionHandle, buf *reactor.Buffer, _ time.Time) {
	content := buf.RetrieveAllString()
	logging.L().Info("tcp message", zap.Stringer("peer", conn.PeerAddr()), zap.String("content", content))
	conn.Write([]byte(content))
}

func connectionCallback(conn *reactor.TCPConnectionHandle, established bool) {
	if established {
		logging.L().Info("connection established", zap.Stringer("peer", conn.PeerAddr()))
	} else {
		logging.L().Info("connection closed", zap.Stringer("peer", conn.PeerAddr()))
	}
}

func datagramCallback(sock *reactor.UDPSocketHandle, payload []byte, peer net.Addr, _ time.Time) {
	logging.L().Info("udp datagram", zap.Stringer("peer", peer), zap.Int("bytes", len(payload)))
	sock.Send(peer, payload)
}

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (see config.Config); if omitted, listens on 127.0.0.1:8888 with 4 workers")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logging.L().Fatal("echoserver: config load failed", zap.String("path", *configPath), zap.Error(err))
		}
		cfg = *loaded
	} else {
		cfg.Server.Address = "127.0.0.1:8888"
		cfg.Server.Workers = 4
	}

	srv, err := reactor.NewCombinedServerFromConfig(&cfg, connectionCallback, messageCallback, datagramCallback)
	if err != nil {
		logging.L().Fatal("echoserver: start failed", zap.Error(err))
	}
	if err := srv.Run(); err != nil {
		logging.L().Error("echoserver: exited with error", zap.Error(err))
	}
}

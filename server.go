package reactor

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/walkon/reactor/config"
	"github.com/walkon/reactor/internal/bufpool"
	"github.com/walkon/reactor/internal/rawsock"
)

// tuning collects the per-socket/per-reactor sizing knobs that config.Config
// exposes under [reactor], so every construction path — literal-argument or
// config-driven — funnels through the same set of defaults.
type tuning struct {
	readBufferCap int
	scratchCap    int
	eventCapacity int
}

func defaultTuning() tuning {
	return tuning{
		readBufferCap: initialSize,
		scratchCap:    bufpool.DatagramScratchSize,
		eventCapacity: maxPollEvents,
	}
}

func tuningFromConfig(rc config.ReactorConfig) tuning {
	t := defaultTuning()
	if rc.ReadBufferCap > 0 {
		t.readBufferCap = rc.ReadBufferCap
	}
	if rc.EventCapacity > 0 {
		t.eventCapacity = rc.EventCapacity
	}
	if rc.UDPScratchCap > 0 {
		t.scratchCap = rc.UDPScratchCap
	}
	return t
}

type serverMode uint8

const (
	modeTCP serverMode = iota
	modeUDP
	modeCombined
)

// Server composes an acceptor reactor, an optional UDP reactor, and a
// worker pool, per §4.9's three configurations. Grounded on
// original_source/src/server.rs.
type Server struct {
	mode serverMode

	workers         *ReactorPool[*TCPConnection]
	acceptorReactor *Reactor[*Acceptor]
	udpThread       *EventLoopThread[*UDPSocket]
}

// NewTCPServer listens on address and dispatches accepted connections
// round-robin across workerCount reactor threads.
func NewTCPServer(address string, workerCount int, onConnection ConnectionCallback, onMessage MessageCallback) (*Server, error) {
	workers, acceptorReactor, err := buildTCPSide(address, workerCount, defaultTuning(), onConnection, onMessage)
	if err != nil {
		return nil, err
	}
	return &Server{mode: modeTCP, workers: workers, acceptorReactor: acceptorReactor}, nil
}

// NewUDPServer binds address on a single dedicated UDP reactor.
func NewUDPServer(address string, onDatagram DatagramCallback) (*Server, error) {
	udpThread, err := buildUDPSide(address, defaultTuning(), onDatagram)
	if err != nil {
		return nil, err
	}
	return &Server{mode: modeUDP, udpThread: udpThread}, nil
}

// NewCombinedServer runs a TCP acceptor/worker pool and a UDP reactor side
// by side, sharing one logical server lifecycle.
func NewCombinedServer(tcpAddress string, workerCount int, onConnection ConnectionCallback, onMessage MessageCallback, udpAddress string, onDatagram DatagramCallback) (*Server, error) {
	t := defaultTuning()
	workers, acceptorReactor, err := buildTCPSide(tcpAddress, workerCount, t, onConnection, onMessage)
	if err != nil {
		return nil, err
	}
	udpThread, err := buildUDPSide(udpAddress, t, onDatagram)
	if err != nil {
		workers.Quit()
		_ = workers.Join()
		return nil, err
	}
	return &Server{mode: modeCombined, workers: workers, acceptorReactor: acceptorReactor, udpThread: udpThread}, nil
}

// NewTCPServerFromConfig is NewTCPServer with every sizing knob — worker
// count, read-buffer capacity, epoll batch size — sourced from cfg instead
// of literal arguments (SPEC_FULL.md §9/§10).
func NewTCPServerFromConfig(cfg *config.Config, onConnection ConnectionCallback, onMessage MessageCallback) (*Server, error) {
	workers, acceptorReactor, err := buildTCPSide(cfg.Server.Address, cfg.Server.Workers, tuningFromConfig(cfg.Reactor), onConnection, onMessage)
	if err != nil {
		return nil, err
	}
	return &Server{mode: modeTCP, workers: workers, acceptorReactor: acceptorReactor}, nil
}

// NewUDPServerFromConfig is NewUDPServer sourcing its UDP scratch capacity
// and epoll batch size from cfg.
func NewUDPServerFromConfig(cfg *config.Config, onDatagram DatagramCallback) (*Server, error) {
	udpThread, err := buildUDPSide(cfg.Server.Address, tuningFromConfig(cfg.Reactor), onDatagram)
	if err != nil {
		return nil, err
	}
	return &Server{mode: modeUDP, udpThread: udpThread}, nil
}

// NewCombinedServerFromConfig is NewCombinedServer sourcing every tuning
// knob from cfg; both sides bind cfg.Server.Address.
func NewCombinedServerFromConfig(cfg *config.Config, onConnection ConnectionCallback, onMessage MessageCallback, onDatagram DatagramCallback) (*Server, error) {
	t := tuningFromConfig(cfg.Reactor)
	workers, acceptorReactor, err := buildTCPSide(cfg.Server.Address, cfg.Server.Workers, t, onConnection, onMessage)
	if err != nil {
		return nil, err
	}
	udpThread, err := buildUDPSide(cfg.Server.Address, t, onDatagram)
	if err != nil {
		workers.Quit()
		_ = workers.Join()
		return nil, err
	}
	return &Server{mode: modeCombined, workers: workers, acceptorReactor: acceptorReactor, udpThread: udpThread}, nil
}

func buildTCPSide(address string, workerCount int, t tuning, onConnection ConnectionCallback, onMessage MessageCallback) (*ReactorPool[*TCPConnection], *Reactor[*Acceptor], error) {
	workers, err := NewReactorPool[*TCPConnection]("worker", workerCount, WithEventCapacity(t.eventCapacity))
	if err != nil {
		return nil, nil, err
	}
	fd, local, err := rawsock.ListenTCP(address)
	if err != nil {
		workers.Quit()
		_ = workers.Join()
		return nil, nil, fmt.Errorf("server: %w", err)
	}
	acceptorReactor, err := New[*Acceptor]("acceptor", WithEventCapacity(t.eventCapacity))
	if err != nil {
		workers.Quit()
		_ = workers.Join()
		return nil, nil, err
	}
	acceptor := newAcceptor(fd, local, workers, t.readBufferCap, onConnection, onMessage)
	acceptorReactor.Handle().Register(acceptor)
	return workers, acceptorReactor, nil
}

func buildUDPSide(address string, t tuning, onDatagram DatagramCallback) (*EventLoopThread[*UDPSocket], error) {
	udpThread, err := newEventLoopThread[*UDPSocket]("udp", WithEventCapacity(t.eventCapacity))
	if err != nil {
		return nil, err
	}
	fd, local, err := rawsock.ListenUDP(address)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	sock := newUDPSocket(fd, local, udpThread.Handle().Sender(), t.scratchCap, onDatagram)
	udpThread.Handle().Register(sock)
	return udpThread, nil
}

// Quitter is a thread-safe, cloneable handle that tells every reactor
// belonging to a Server to quit.
type Quitter struct {
	acceptor *ReactorHandle[*Acceptor]
	udp      *ReactorHandle[*UDPSocket]
	workers  *ReactorPool[*TCPConnection]
}

// Quit requests every reactor owned by the server quit at the end of its
// current poll iteration. Safe to call from any goroutine, any number of
// times.
func (q *Quitter) Quit() {
	if q.workers != nil {
		q.workers.Quit()
	}
	if q.acceptor != nil {
		q.acceptor.Quit()
	}
	if q.udp != nil {
		q.udp.Quit()
	}
}

// Quitter returns a handle for stopping this server from any goroutine.
func (s *Server) Quitter() *Quitter {
	q := &Quitter{workers: s.workers}
	if s.acceptorReactor != nil {
		h := s.acceptorReactor.Handle()
		q.acceptor = &h
	}
	if s.udpThread != nil {
		h := s.udpThread.Handle()
		q.udp = &h
	}
	return q
}

// Run starts the UDP reactor thread (if any), runs the acceptor reactor (if
// any) on the calling goroutine, and blocks until every reactor owned by the
// server has quit, aggregating any errors they exited with (§4.9). The
// worker pool's threads are started when the server is constructed, not by
// Run.
func (s *Server) Run() error {
	var err error
	switch s.mode {
	case modeTCP:
		err = s.acceptorReactor.Run()
		err = multierr.Append(err, s.workers.Join())
	case modeUDP:
		s.udpThread.Start()
		err = s.udpThread.Join()
	case modeCombined:
		s.udpThread.Start()
		err = s.acceptorReactor.Run()
		err = multierr.Append(err, s.workers.Join())
		err = multierr.Append(err, s.udpThread.Join())
	}
	return err
}

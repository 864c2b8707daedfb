package reactor

import (
	"fmt"
	"net"
	"runtime"
	"time"

	"github.com/walkon/reactor/internal/logging"
	"github.com/walkon/reactor/internal/netpoll"
	"github.com/walkon/reactor/internal/sigchan"
	"github.com/walkon/reactor/internal/slab"
	"go.uber.org/zap"
)

// maxPollEvents bounds a single epoll_wait batch; sized well above any
// single worker's expected live-connection count.
const maxPollEvents = 1024

// Reactor owns one epoll instance, the sockets registered on it, and the
// signal queue other goroutines use to reach it (§4.4 "Reactor"). A Reactor
// must only ever be driven by the single goroutine that calls Run; every
// other interaction happens through a ReactorHandle or a socket handle,
// both of which only ever enqueue signals.
type Reactor[S ReactorSocket] struct {
	poller  *netpoll.Poller
	sockets *slab.Slab[S]
	sigCh   *sigchan.Channel[signal[S]]
	handle  ReactorHandle[S]
	name    string

	eventCapacity int
}

// Option tunes a Reactor (or anything built on top of one, such as an
// EventLoopThread or ReactorPool) at construction time. Of the [reactor]
// config table (config.ReactorConfig), event_capacity maps onto
// WithEventCapacity; the buffer sizes are passed to the sockets directly.
type Option func(*reactorOptions)

type reactorOptions struct {
	eventCapacity int
}

func defaultReactorOptions() reactorOptions {
	return reactorOptions{eventCapacity: maxPollEvents}
}

// WithEventCapacity overrides the epoll_wait batch size a reactor requests
// per call (the [reactor].event_capacity config knob). Values <= 0 are
// ignored, leaving the default.
func WithEventCapacity(capacity int) Option {
	return func(o *reactorOptions) {
		if capacity > 0 {
			o.eventCapacity = capacity
		}
	}
}

// New opens a fresh epoll instance and returns a Reactor ready to Run. name
// is used only for log attribution.
func New[S ReactorSocket](name string, opts ...Option) (*Reactor[S], error) {
	o := defaultReactorOptions()
	for _, opt := range opts {
		opt(&o)
	}
	poller, err := netpoll.Open()
	if err != nil {
		return nil, fmt.Errorf("reactor %s: %w", name, err)
	}
	r := &Reactor[S]{
		poller:        poller,
		sockets:       slab.New[S](64),
		name:          name,
		eventCapacity: o.eventCapacity,
	}
	r.sigCh = sigchan.New[signal[S]](poller)
	r.handle = newReactorHandle(r.sigCh.Sender())
	return r, nil
}

// Handle returns a cloneable handle other goroutines use to Register
// sockets onto this reactor or request it Quit.
func (r *Reactor[S]) Handle() ReactorHandle[S] {
	return r.handle
}

// Run pins the calling goroutine to its OS thread (§4.2's identity gate
// depends on this) and drives the poll/dispatch/drain-signals loop until a
// Quit signal is processed or the poller fails. It is the single-threaded
// body of one event-loop-thread (§4.8).
func (r *Reactor[S]) Run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	r.sigCh.SetOwner()

	events := make([]netpoll.Event, r.eventCapacity)
	for {
		n, err := r.poller.Wait(events)
		if err != nil {
			return fmt.Errorf("reactor %s: %w", r.name, err)
		}
		// The whole batch shares one receive timestamp (§9 design note):
		// cheaper than a syscall per event, and the skew within one
		// epoll_wait return is not observable to callbacks.
		receiveTime := time.Now()
		for i := 0; i < n; i++ {
			r.dispatch(events[i], receiveTime)
		}
		if quit := r.drainSignals(); quit {
			return nil
		}
	}
}

func (r *Reactor[S]) dispatch(ev netpoll.Event, receiveTime time.Time) {
	socket, ok := r.sockets.Get(ev.Token)
	if !ok {
		return
	}
	before := socket.Interest()
	socket.HandleEvent(PollEvent{Readable: ev.Readable, Writable: ev.Writable}, receiveTime)
	r.syncInterest(socket, before)
}

// syncInterest reregisters with the poller if a callback invoked during
// dispatch changed the socket's declared interest (e.g. a TCP connection
// dropping Writable once its stashed output drains).
func (r *Reactor[S]) syncInterest(socket S, before Interest) {
	after := socket.Interest()
	if after == before {
		return
	}
	var err error
	if after.IsWritable() {
		err = r.poller.ModReadWrite(socket.FD(), socket.Token())
	} else {
		err = r.poller.ModRead(socket.FD(), socket.Token())
	}
	if err != nil {
		logging.L().Warn("reactor: reregister after dispatch failed",
			zap.String("reactor", r.name), zap.Int("token", socket.Token()), zap.Error(err))
	}
}

// drainSignals processes every signal enqueued since the last iteration,
// returning true once a Quit has been handled.
func (r *Reactor[S]) drainSignals() bool {
	for _, sig := range r.sigCh.TakeAll() {
		switch sig.kind {
		case sigQuit:
			r.shutdownAll()
			_ = r.poller.Close()
			return true
		case sigRegister:
			r.handleRegister(sig.socket)
		case sigShutdown:
			r.handleShutdown(sig.token)
		case sigReregister:
			r.handleReregister(sig.token, sig.interest)
		case sigWrite:
			r.handleWrite(sig.token, sig.data)
		case sigSend:
			r.handleSend(sig.token, sig.addr, sig.data)
		}
	}
	return false
}

func (r *Reactor[S]) handleRegister(socket S) {
	if err := r.registerSocket(socket); err != nil {
		logging.L().Error("reactor: register failed",
			zap.String("reactor", r.name), zap.Int("token", socket.Token()), zap.Error(err))
	}
}

// RegisterSync registers socket on this reactor immediately, bypassing the
// signal queue entirely. Only safe before Run has started: with no goroutine
// yet driving the poll loop, there is no concurrent reader of the slab or
// writer of socket.handle to race against. This is what lets a synchronous
// caller (Client) get back a socket whose Handle() already has its token and
// established flag wired before it ever touches another goroutine — mirrors
// original_source/src/tuclient.rs's Client::new, which calls
// reactor.register(socket) directly and builds its SocketRemote from the
// returned token before the event loop thread is started.
func (r *Reactor[S]) RegisterSync(socket S) error {
	return r.registerSocket(socket)
}

func (r *Reactor[S]) registerSocket(socket S) error {
	token := r.sockets.Insert(socket)
	socket.SetToken(token)
	var err error
	if socket.Interest().IsWritable() {
		err = r.poller.AddReadWrite(socket.FD(), token)
	} else {
		err = r.poller.AddRead(socket.FD(), token)
	}
	if err != nil {
		r.sockets.Remove(token)
		return err
	}
	socket.HandleEstablish(true)
	return nil
}

func (r *Reactor[S]) handleShutdown(token int) {
	socket, ok := r.sockets.Get(token)
	if !ok {
		return
	}
	if err := r.poller.Delete(socket.FD()); err != nil {
		logging.L().Warn("reactor: deregister failed",
			zap.String("reactor", r.name), zap.Int("token", token), zap.Error(err))
	}
	r.sockets.Remove(token)
	socket.HandleEstablish(false)
}

func (r *Reactor[S]) handleReregister(token int, interest Interest) {
	socket, ok := r.sockets.Get(token)
	if !ok {
		return
	}
	socket.SetInterest(interest)
	var err error
	if interest.IsWritable() {
		err = r.poller.ModReadWrite(socket.FD(), token)
	} else {
		err = r.poller.ModRead(socket.FD(), token)
	}
	if err != nil {
		logging.L().Warn("reactor: reregister failed",
			zap.String("reactor", r.name), zap.Int("token", token), zap.Error(err))
	}
}

func (r *Reactor[S]) handleWrite(token int, data []byte) {
	socket, ok := r.sockets.Get(token)
	if !ok {
		return
	}
	before := socket.Interest()
	socket.StashOutput(data)
	r.syncInterest(socket, before)
}

func (r *Reactor[S]) handleSend(token int, addr net.Addr, data []byte) {
	socket, ok := r.sockets.Get(token)
	if !ok {
		return
	}
	if _, err := socket.Send(addr, data); err != nil {
		logging.L().Warn("reactor: datagram send failed",
			zap.String("reactor", r.name), zap.Int("token", token), zap.Error(err))
	}
}

// shutdownAll tears down every still-registered socket in token order, so
// Quit delivers a HandleEstablish(false) to each before the reactor exits.
func (r *Reactor[S]) shutdownAll() {
	for token := 0; token < r.sockets.Cap(); token++ {
		if socket, ok := r.sockets.Get(token); ok {
			_ = r.poller.Delete(socket.FD())
			socket.HandleEstablish(false)
		}
	}
}

package reactor

import (
	"sync"
)

// EventLoopThread pairs a Reactor with the goroutine that drives it,
// exposing Start/Quit/Join so a ReactorPool can manage a fixed set of
// workers without each caller touching goroutines directly. Grounded on
// original_source/src/event_loop_thread.rs.
type EventLoopThread[S ReactorSocket] struct {
	reactor *Reactor[S]
	done    chan struct{}
	once    sync.Once
	runErr  error
}

// newEventLoopThread opens a fresh reactor under name and wraps it.
func newEventLoopThread[S ReactorSocket](name string, opts ...Option) (*EventLoopThread[S], error) {
	r, err := New[S](name, opts...)
	if err != nil {
		return nil, err
	}
	return &EventLoopThread[S]{reactor: r, done: make(chan struct{})}, nil
}

// Start launches the reactor's run loop on a new goroutine.
func (t *EventLoopThread[S]) Start() {
	go func() {
		defer close(t.done)
		t.runErr = t.reactor.Run()
	}()
}

// Handle returns a cloneable handle for registering sockets onto this
// thread's reactor or requesting it quit.
func (t *EventLoopThread[S]) Handle() ReactorHandle[S] {
	return t.reactor.Handle()
}

// RegisterSync registers socket on this thread's reactor directly, without
// going through the signal queue. Callers must invoke this before Start.
func (t *EventLoopThread[S]) RegisterSync(socket S) error {
	return t.reactor.RegisterSync(socket)
}

// Quit requests the reactor exit at the end of its current poll
// iteration; idempotent.
func (t *EventLoopThread[S]) Quit() {
	t.once.Do(func() {
		t.reactor.Handle().Quit()
	})
}

// Join blocks until the reactor's run loop has returned, and reports any
// error it exited with.
func (t *EventLoopThread[S]) Join() error {
	<-t.done
	return t.runErr
}

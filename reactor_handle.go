package reactor

import "github.com/walkon/reactor/internal/sigchan"

// ReactorHandle is a thread-safe view carrying only a cloneable sender into
// a reactor's signal queue (§3); used by external code (the acceptor, a
// reactor pool, a server quitter) to enqueue Register and Quit without
// touching the reactor's socket table directly.
type ReactorHandle[S ReactorSocket] struct {
	sender sigchan.Sender[signal[S]]
}

func newReactorHandle[S ReactorSocket](sender sigchan.Sender[signal[S]]) ReactorHandle[S] {
	return ReactorHandle[S]{sender: sender}
}

// Register enqueues socket to be added to the owning reactor's table.
func (h ReactorHandle[S]) Register(socket S) {
	h.sender.Send(registerSignal(socket))
}

// Quit enqueues a Quit signal; the reactor exits at the end of its current
// poll iteration.
func (h ReactorHandle[S]) Quit() {
	h.sender.Send(quitSignal[S]())
}

// Sender returns the underlying cloneable signal sender, for constructing
// socket handles bound to this reactor.
func (h ReactorHandle[S]) Sender() sigchan.Sender[signal[S]] {
	return h.sender
}

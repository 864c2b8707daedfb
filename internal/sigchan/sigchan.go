// Package sigchan implements the unbounded MPSC signal queue every reactor
// drains once per poll iteration, coupled to a poller wakeup and a
// thread-identity cell so reentrant sends from the reactor's own goroutine
// can skip the wakeup syscall.
package sigchan

import (
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// Waker is the minimal wakeup contract a Channel needs from a poller.
type Waker interface {
	Wake() error
}

// Channel is a mutex-protected FIFO paired with a waker and an owner-thread
// cell. The owner cell holds the OS thread id of the reactor goroutine that
// owns this channel (set once, on entry to its run loop, after
// runtime.LockOSThread); since that goroutine never migrates threads while
// locked, comparing the caller's current thread id against the cell
// reliably answers "is this send reentrant from the owning reactor itself".
type Channel[T any] struct {
	mu       sync.Mutex
	queue    []T
	waker    Waker
	ownerTID atomic.Int32
}

// New returns a Channel that wakes waker on sends from foreign threads.
func New[T any](waker Waker) *Channel[T] {
	return &Channel[T]{waker: waker}
}

// SetOwner records the calling OS thread as this channel's owner. Must be
// called by the reactor goroutine, after pinning itself with
// runtime.LockOSThread, on entry to its run loop.
func (c *Channel[T]) SetOwner() {
	c.ownerTID.Store(int32(unix.Gettid()))
}

// Send appends item and wakes the owning reactor unless the calling thread
// is the reactor's own (a reentrant send from inside a callback dispatched
// by that very reactor), in which case the next drain pass already pending
// this iteration will observe it without a syscall.
func (c *Channel[T]) Send(item T) {
	c.mu.Lock()
	c.queue = append(c.queue, item)
	c.mu.Unlock()
	if int32(unix.Gettid()) != c.ownerTID.Load() {
		_ = c.waker.Wake()
	}
}

// TakeAll atomically empties the queue and returns its former contents.
func (c *Channel[T]) TakeAll() []T {
	c.mu.Lock()
	items := c.queue
	c.queue = nil
	c.mu.Unlock()
	return items
}

// Sender is a cloneable (copy-by-value), thread-safe handle for enqueuing
// onto a Channel from any goroutine.
type Sender[T any] struct {
	ch *Channel[T]
}

// Sender returns a cloneable sender bound to this channel.
func (c *Channel[T]) Sender() Sender[T] {
	return Sender[T]{ch: c}
}

// Send enqueues item, per Channel.Send's semantics.
func (s Sender[T]) Send(item T) {
	s.ch.Send(item)
}

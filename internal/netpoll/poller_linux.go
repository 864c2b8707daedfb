// Package netpoll is this module's stand-in for mio's Poll/Waker pair: a
// thin epoll(7) wrapper plus an eventfd-backed wakeup primitive, grounded on
// the role github.com/walkon/gnet's internal/netpoll plays in
// server_unix.go (OpenPoller, poller.AddRead, poller.Trigger, poller.Close).
//
// Registration stores the caller's token (not the raw fd) in the epoll
// event's user-data field, mirroring mio's Token(usize) tagging — so a
// ready event maps straight back to a reactor's slab index without an
// extra fd->token lookup.
package netpoll

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// wakeToken is the reserved sentinel identifying the wakeup eventfd among
// epoll_wait's results, analogous to mio's Token(usize::MAX) for its Waker.
const wakeToken = -1

// Event reports one ready socket, keyed by the token it was registered
// with.
type Event struct {
	Token    int
	Readable bool
	Writable bool
}

// Poller wraps a single epoll instance and the eventfd used to wake a
// goroutine blocked in Wait.
type Poller struct {
	epfd   int
	wakeFD int
	raw    []unix.EpollEvent
}

// Open creates a new epoll instance and registers its wakeup eventfd under
// wakeToken.
func Open() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("netpoll: epoll_create1: %w", err)
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("netpoll: eventfd: %w", err)
	}
	p := &Poller{epfd: epfd, wakeFD: wakeFD}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeToken)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &ev); err != nil {
		_ = unix.Close(wakeFD)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("netpoll: register wakeup: %w", err)
	}
	return p, nil
}

// AddRead registers fd under token for read readiness only.
func (p *Poller) AddRead(fd, token int) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, token, unix.EPOLLIN)
}

// AddReadWrite registers fd under token for read and write readiness.
func (p *Poller) AddReadWrite(fd, token int) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, token, unix.EPOLLIN|unix.EPOLLOUT)
}

// ModRead reregisters fd under token for read readiness only.
func (p *Poller) ModRead(fd, token int) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, token, unix.EPOLLIN)
}

// ModReadWrite reregisters fd under token for read and write readiness.
func (p *Poller) ModReadWrite(fd, token int) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, token, unix.EPOLLIN|unix.EPOLLOUT)
}

// Delete deregisters fd.
func (p *Poller) Delete(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("netpoll: epoll_ctl(del, %d): %w", fd, err)
	}
	return nil
}

func (p *Poller) ctl(op, fd, token int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(token)}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("netpoll: epoll_ctl(op=%d, fd=%d, token=%d): %w", op, fd, token, err)
	}
	return nil
}

// Wake triggers one readiness edge on the wakeup eventfd. Multiple calls
// before the next drain coalesce into a single wakeup, since the eventfd
// counter simply accumulates and is drained with one read.
func (p *Poller) Wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakeFD, buf[:])
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("netpoll: wake: %w", err)
	}
	return nil
}

func (p *Poller) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakeFD, buf[:])
		if err == nil {
			continue
		}
		break
	}
}

// Wait blocks until at least one registered socket is ready (or the
// wakeup fires), filling events with up to len(events) ready entries and
// returning the count. Wakeup-only iterations return with n == 0.
func (p *Poller) Wait(events []Event) (int, error) {
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	raw := p.raw[:len(events)]
	n, err := unix.EpollWait(p.epfd, raw, -1)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("netpoll: epoll_wait: %w", err)
	}
	count := 0
	for i := 0; i < n; i++ {
		token := int(raw[i].Fd)
		if token == wakeToken {
			p.drainWake()
			continue
		}
		events[count] = Event{
			Token:    token,
			Readable: raw[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			Writable: raw[i].Events&unix.EPOLLOUT != 0,
		}
		count++
	}
	return count, nil
}

// Close releases the epoll instance and its wakeup eventfd.
func (p *Poller) Close() error {
	err1 := unix.Close(p.wakeFD)
	err2 := unix.Close(p.epfd)
	if err1 != nil {
		return err1
	}
	return err2
}

package reactor

import (
	"fmt"

	"go.uber.org/multierr"
)

// ReactorPool is a fixed-size set of event-loop-threads with round-robin
// next-worker selection (§4.8). A requested thread count of zero or less
// is coerced to one, so a pool is never degenerate. Grounded on
// original_source/src/event_loop_thread_pool.rs.
type ReactorPool[S ReactorSocket] struct {
	threads []*EventLoopThread[S]
	next    int
}

// NewReactorPool opens count reactors (coerced to at least 1) named
// namePrefix-0, namePrefix-1, ... and starts their run loops. opts is
// forwarded to every underlying reactor, so a single WithEventCapacity
// tunes the whole pool uniformly.
func NewReactorPool[S ReactorSocket](namePrefix string, count int, opts ...Option) (*ReactorPool[S], error) {
	if count < 1 {
		count = 1
	}
	threads := make([]*EventLoopThread[S], 0, count)
	for i := 0; i < count; i++ {
		t, err := newEventLoopThread[S](fmt.Sprintf("%s-%d", namePrefix, i), opts...)
		if err != nil {
			for _, started := range threads {
				started.Quit()
				_ = started.Join()
			}
			return nil, fmt.Errorf("reactor pool %s: %w", namePrefix, err)
		}
		t.Start()
		threads = append(threads, t)
	}
	return &ReactorPool[S]{threads: threads}, nil
}

// Next returns the next worker in round-robin order (§8 scenario 3: four
// connections in a row land on workers 0,1,2,3).
func (p *ReactorPool[S]) Next() *EventLoopThread[S] {
	t := p.threads[p.next]
	p.next = (p.next + 1) % len(p.threads)
	return t
}

// Len reports the number of worker threads in the pool.
func (p *ReactorPool[S]) Len() int { return len(p.threads) }

// Quit requests every worker thread quit; it does not wait for them.
func (p *ReactorPool[S]) Quit() {
	for _, t := range p.threads {
		t.Quit()
	}
}

// Join waits for every worker thread to return, aggregating any errors
// via multierr so a single failing reactor does not hide the others'.
func (p *ReactorPool[S]) Join() error {
	var err error
	for _, t := range p.threads {
		err = multierr.Append(err, t.Join())
	}
	return err
}

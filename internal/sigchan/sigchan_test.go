package sigchan

import (
	"runtime"
	"sync/atomic"
	"testing"
)

type countingWaker struct {
	calls atomic.Int32
}

func (w *countingWaker) Wake() error {
	w.calls.Add(1)
	return nil
}

func TestSendForeignThreadWakes(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	w := &countingWaker{}
	ch := New[int](w)
	ch.SetOwner() // owner is this goroutine's thread, pinned above, so the
	// goroutine below cannot run on it and its Send is a foreign send.

	done := make(chan struct{})
	go func() {
		ch.Send(1)
		close(done)
	}()
	<-done

	items := ch.TakeAll()
	if len(items) != 1 || items[0] != 1 {
		t.Fatalf("TakeAll() = %v; want [1]", items)
	}
	if got := w.calls.Load(); got != 1 {
		t.Fatalf("Wake() called %d times; want 1", got)
	}
}

func TestTakeAllDrainsQueue(t *testing.T) {
	w := &countingWaker{}
	ch := New[int](w)

	ch.Send(1)
	ch.Send(2)
	ch.Send(3)

	items := ch.TakeAll()
	if len(items) != 3 {
		t.Fatalf("TakeAll() len = %d; want 3", len(items))
	}

	if more := ch.TakeAll(); len(more) != 0 {
		t.Fatalf("second TakeAll() = %v; want empty", more)
	}
}

func TestSenderIsCloneable(t *testing.T) {
	w := &countingWaker{}
	ch := New[string](w)
	sender := ch.Sender()

	sender.Send("hello")
	items := ch.TakeAll()
	if len(items) != 1 || items[0] != "hello" {
		t.Fatalf("TakeAll() = %v; want [\"hello\"]", items)
	}
}

package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestLoopDispatchesReadEvent(t *testing.T) {
	loop, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	rfd, wfd := socketpair(t)

	var mu sync.Mutex
	var fired EventMask
	var mode EventMode
	done := make(chan struct{})
	var once sync.Once

	// The loop is level-triggered: the unread byte keeps rfd readable, so
	// the callback may fire more than once before the test returns.
	if _, err := loop.Register(rfd, Read, func(w *FDWatcher, events EventMask, m EventMode) {
		mu.Lock()
		fired = events
		mode = m
		mu.Unlock()
		once.Do(func() { close(done) })
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go loop.Run(ctx)

	if _, err := unix.Write(wfd, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for read dispatch")
	}

	mu.Lock()
	defer mu.Unlock()
	if !fired.has(Read) {
		t.Fatalf("expected Read bit set, got %v", fired)
	}
	if mode != ModeNormal {
		t.Fatalf("expected ModeNormal, got %v", mode)
	}
}

func TestFDWatcherSetEventsBackpressure(t *testing.T) {
	loop, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	rfd, _ := socketpair(t)
	w, err := loop.Register(rfd, Read, func(*FDWatcher, EventMask, EventMode) {})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Enqueue: raise the Write bit as a RemoteUI/RemoteClient would after
	// buffering an outbound frame.
	if err := w.SetEvents(w.Events() | Write); err != nil {
		t.Fatalf("SetEvents: %v", err)
	}
	if !w.Events().has(Write) {
		t.Fatal("expected Write bit set after enqueue")
	}

	// Simulated full drain: clear the bit.
	if err := w.SetEvents(w.Events() &^ Write); err != nil {
		t.Fatalf("SetEvents: %v", err)
	}
	if w.Events().has(Write) {
		t.Fatal("expected Write bit cleared after drain")
	}
}

func TestFDReadable(t *testing.T) {
	rfd, wfd := socketpair(t)
	if FDReadable(rfd) {
		t.Fatal("expected not readable before any write")
	}
	if _, err := unix.Write(wfd, []byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !FDReadable(rfd) {
		t.Fatal("expected readable after write")
	}
}

func TestCloseFDDetaches(t *testing.T) {
	loop, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer loop.Close()

	rfd, wfd := socketpair(t)
	defer unix.Close(wfd)

	calls := 0
	w, err := loop.Register(rfd, Read, func(*FDWatcher, EventMask, EventMode) {
		calls++
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := w.CloseFD(); err != nil {
		t.Fatalf("CloseFD: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	if calls != 0 {
		t.Fatalf("expected no callbacks after CloseFD, got %d", calls)
	}
}

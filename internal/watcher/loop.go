// Package watcher implements the single readiness-notification loop that
// every socket-facing component in this repo registers against: an
// epoll(7)-backed reactor exposing FDWatcher handles with a mutable
// interest mask and an EventMode tag passed to every callback.
package watcher

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// EventMask is a subset of {Read, Write} describing which readiness
// notifications a watcher is interested in.
type EventMask uint8

const (
	Read EventMask = 1 << iota
	Write
)

func (m EventMask) has(bit EventMask) bool { return m&bit != 0 }

// Has reports whether m includes bit, for callers outside this package
// inspecting the mask a Callback or FDWatcher.Events reports.
func (m EventMask) Has(bit EventMask) bool { return m.has(bit) }

func (m EventMask) toEpoll() uint32 {
	var e uint32
	if m.has(Read) {
		e |= unix.EPOLLIN
	}
	if m.has(Write) {
		e |= unix.EPOLLOUT
	}
	return e
}

func fromEpoll(events uint32) EventMask {
	var m EventMask
	if events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		m |= Read
	}
	if events&unix.EPOLLOUT != 0 {
		m |= Write
	}
	return m
}

// EventMode tags how a watcher fire was dispatched. Loop.Run dispatches
// every fire as ModeNormal; nothing in this package delivers ModeUrgent,
// which exists so callbacks such as the Accepter's can ignore any fire that
// is not ModeNormal.
type EventMode int

const (
	ModeNormal EventMode = iota
	ModeUrgent
)

// Callback is invoked with the events that fired and the mode of dispatch.
// The events passed reflect what actually fired, intersected with the
// watcher's current interest mask at dispatch time.
type Callback func(w *FDWatcher, events EventMask, mode EventMode)

// FDWatcher associates a file descriptor, an event mask, and a callback
// with a Loop. Mutating the mask via SetEvents takes effect on the next
// poll cycle; it is meant to be called only from within the watcher's own
// callback or from methods invoked on the same goroutine, matching the
// single-threaded cooperative scheduling model this reactor assumes.
type FDWatcher struct {
	fd   int
	mask EventMask
	cb   Callback
	loop *Loop
}

// FD returns the underlying file descriptor.
func (w *FDWatcher) FD() int { return w.fd }

// Events returns the watcher's current interest mask.
func (w *FDWatcher) Events() EventMask { return w.mask }

// SetEvents replaces the watcher's interest mask and updates the
// underlying epoll registration.
func (w *FDWatcher) SetEvents(mask EventMask) error {
	if w.mask == mask {
		return nil
	}
	w.mask = mask
	return w.loop.modify(w)
}

// CloseFD closes the underlying descriptor and detaches the watcher from
// its loop. After CloseFD, the watcher fires no further callbacks.
func (w *FDWatcher) CloseFD() error {
	w.loop.unregister(w)
	return unix.Close(w.fd)
}

// Detach removes the watcher's epoll registration without closing its
// file descriptor, for handing the fd off to a new watcher — as the
// Accepter does when promoting a connection to a RemoteUI.
func (w *FDWatcher) Detach() {
	w.loop.unregister(w)
}

// Loop is a single epoll instance multiplexing every registered FDWatcher.
// It is not safe for concurrent use from multiple goroutines: like the
// source it's modeled on, exactly one goroutine drives Run and all
// watcher callbacks execute on that goroutine.
type Loop struct {
	epfd int

	mu       sync.Mutex // guards watchers; Run reads it only between epoll_wait calls
	watchers map[int]*FDWatcher
}

// New creates an epoll instance.
func New() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("watcher: epoll_create1: %w", err)
	}
	return &Loop{epfd: epfd, watchers: make(map[int]*FDWatcher)}, nil
}

// Register creates a watcher for fd with the given initial mask and
// callback, and adds it to the epoll set. fd is set nonblocking, matching
// the nonblocking read/write state machines this reactor drives.
func (l *Loop) Register(fd int, mask EventMask, cb Callback) (*FDWatcher, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("watcher: set nonblocking: %w", err)
	}
	w := &FDWatcher{fd: fd, mask: mask, cb: cb, loop: l}

	event := unix.EpollEvent{Events: mask.toEpoll(), Fd: int32(fd)}
	l.mu.Lock()
	l.watchers[fd] = w
	l.mu.Unlock()

	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		l.mu.Lock()
		delete(l.watchers, fd)
		l.mu.Unlock()
		return nil, fmt.Errorf("watcher: epoll_ctl add: %w", err)
	}
	return w, nil
}

func (l *Loop) modify(w *FDWatcher) error {
	event := unix.EpollEvent{Events: w.mask.toEpoll(), Fd: int32(w.fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, w.fd, &event); err != nil {
		return fmt.Errorf("watcher: epoll_ctl mod: %w", err)
	}
	return nil
}

func (l *Loop) unregister(w *FDWatcher) {
	l.mu.Lock()
	delete(l.watchers, w.fd)
	l.mu.Unlock()
	unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, w.fd, nil)
}

// pollTimeoutMillis bounds each epoll_wait call so Run can observe context
// cancellation promptly without a dedicated wakeup pipe.
const pollTimeoutMillis = 200

// Run drives the loop until ctx is cancelled. Each fired watcher is
// dispatched with EventMode Normal.
func (l *Loop) Run(ctx context.Context) error {
	events := make([]unix.EpollEvent, 64)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.EpollWait(l.epfd, events, pollTimeoutMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("watcher: epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			l.dispatch(events[i], ModeNormal)
		}
	}
}

func (l *Loop) dispatch(ev unix.EpollEvent, mode EventMode) {
	l.mu.Lock()
	w, ok := l.watchers[int(ev.Fd)]
	l.mu.Unlock()
	if !ok {
		return
	}
	fired := fromEpoll(ev.Events) & w.mask
	if fired == 0 {
		return
	}
	w.cb(w, fired, mode)
}

// Close releases the underlying epoll instance. Registered watchers are
// not closed; callers are responsible for calling CloseFD on each.
func (l *Loop) Close() error {
	return unix.Close(l.epfd)
}

// FDReadable performs a zero-timeout poll(2) on fd and reports whether it
// currently has data available to read. Used to drain every queued
// message from a single watcher fire without waiting for the next
// readiness notification, matching the source's fd_readable helper.
func FDReadable(fd int) bool {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	return err == nil && n > 0 && fds[0].Revents&unix.POLLIN != 0
}

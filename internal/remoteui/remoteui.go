// Package remoteui implements the server side of the wire protocol: a
// UserInterface that serializes every call into framed messages on a
// socket, and deserializes Key frames coming back from the client.
package remoteui

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/loom-editor/loom/internal/uicap"
	"github.com/loom-editor/loom/internal/watcher"
	"github.com/loom-editor/loom/internal/wire"
)

// RemoteUI drives a single connected client: it renders by writing framed
// messages, and reports keys by decoding Key frames the client sends back.
// It owns its socket watcher and registers itself for Read readiness to
// learn about incoming keys, and toggles Write interest to drain its
// outbound buffer under backpressure.
type RemoteUI struct {
	watcher    *watcher.FDWatcher
	dimensions wire.DisplayCoord
	onKey      func(wire.Key)

	out     bytes.Buffer // frames not yet fully written to the socket
	reader  *wire.FrameReader
	log     *slog.Logger
	onEvict func(reason string, graceful bool)
}

// New registers fd with loop and returns a RemoteUI ready to serve a
// freshly-accepted client connection. onEvict is invoked exactly once, from
// within a watcher callback, when the client disconnects or sends a
// malformed frame; the caller is responsible for tearing down any
// associated client state.
func New(loop *watcher.Loop, fd int, dimensions wire.DisplayCoord, log *slog.Logger, onEvict func(reason string, graceful bool)) (*RemoteUI, error) {
	if log == nil {
		log = slog.New(discardHandler{})
	}
	ui := &RemoteUI{
		dimensions: dimensions,
		reader:     wire.NewFrameReader(),
		log:        log,
		onEvict:    onEvict,
	}
	w, err := loop.Register(fd, watcher.Read, ui.handleEvent)
	if err != nil {
		return nil, fmt.Errorf("remoteui: register: %w", err)
	}
	ui.watcher = w
	ui.log.Info("remote client connected", "fd", fd)
	return ui, nil
}

func (u *RemoteUI) handleEvent(w *watcher.FDWatcher, events watcher.EventMask, mode watcher.EventMode) {
	if events.Has(watcher.Write) {
		u.drainOutbound()
	}
	if events.Has(watcher.Read) {
		u.handleAvailableInput()
	}
}

// drainOutbound writes as much of the buffered outbound bytes as the socket
// will currently accept, clearing Write interest once fully drained and
// leaving it set (for the next readiness notification) otherwise.
func (u *RemoteUI) drainOutbound() {
	for u.out.Len() > 0 {
		n, err := unix.Write(u.watcher.FD(), u.out.Bytes())
		if n > 0 {
			u.out.Next(n)
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			u.evict(err.Error(), false)
			return
		}
		if n == 0 {
			break
		}
	}
	wantWrite := u.out.Len() > 0
	if wantWrite != u.watcher.Events().Has(watcher.Write) {
		mask := u.watcher.Events()
		if wantWrite {
			mask |= watcher.Write
		} else {
			mask &^= watcher.Write
		}
		u.watcher.SetEvents(mask)
	}
}

// send appends a framed message to the outbound buffer and attempts an
// immediate write; anything that doesn't fit is left for drainOutbound to
// flush once the socket signals writability.
func (u *RemoteUI) send(msgType wire.MessageType, fn func(*wire.Encoder)) {
	frame := wire.OpenFrame(&u.out, msgType)
	fn(frame.Encoder())
	frame.Close()
	u.drainOutbound()
}

func (u *RemoteUI) evict(reason string, graceful bool) {
	u.log.Info("remote client disconnected", "fd", u.watcher.FD(), "graceful", graceful, "reason", reason)
	u.watcher.CloseFD()
	if u.onEvict != nil {
		u.onEvict(reason, graceful)
	}
}

func (u *RemoteUI) handleAvailableInput() {
	for watcher.FDReadable(u.watcher.FD()) {
		if err := u.reader.ReadAvailable(u.watcher.FD()); err != nil {
			de, ok := err.(*wire.DisconnectedError)
			if ok {
				u.evict(de.Reason, de.Graceful)
			} else {
				u.evict(err.Error(), false)
			}
			return
		}
		if !u.reader.Ready() {
			continue
		}
		u.handleKeyFrame()
		u.reader.Reset()
	}
}

func (u *RemoteUI) handleKeyFrame() {
	if u.reader.Type() != wire.KeyEvent {
		u.evict(fmt.Sprintf("unexpected message type %v on control channel", u.reader.Type()), false)
		return
	}
	key, err := u.reader.Cursor().Key()
	if err != nil {
		u.evict(err.Error(), false)
		return
	}
	if key.IsResize() {
		u.dimensions = key.Resize
	}
	if u.onKey != nil {
		u.onKey(key)
	}
}

// The uicap.UserInterface implementation: each method frames and queues a
// message of the matching wire.MessageType.

func (u *RemoteUI) MenuShow(items []wire.DisplayLine, anchor wire.DisplayCoord, fg, bg wire.Face, style wire.MenuStyle) {
	u.send(wire.MenuShow, func(e *wire.Encoder) {
		e.DisplayLineSlice(items)
		e.DisplayCoord(anchor)
		e.Face(fg)
		e.Face(bg)
		e.Uint8(uint8(style))
	})
}

func (u *RemoteUI) MenuSelect(selected int) {
	u.send(wire.MenuSelect, func(e *wire.Encoder) { e.Int32(int32(selected)) })
}

func (u *RemoteUI) MenuHide() {
	u.send(wire.MenuHide, func(*wire.Encoder) {})
}

func (u *RemoteUI) InfoShow(title, content string, anchor wire.DisplayCoord, face wire.Face, style wire.InfoStyle) {
	u.send(wire.InfoShow, func(e *wire.Encoder) {
		e.String(title)
		e.String(content)
		e.DisplayCoord(anchor)
		e.Face(face)
		e.Uint8(uint8(style))
	})
}

func (u *RemoteUI) InfoHide() {
	u.send(wire.InfoHide, func(*wire.Encoder) {})
}

func (u *RemoteUI) Draw(buffer wire.DisplayBuffer, defaultFace, paddingFace wire.Face) {
	u.send(wire.Draw, func(e *wire.Encoder) {
		e.DisplayBuffer(buffer)
		e.Face(defaultFace)
		e.Face(paddingFace)
	})
}

func (u *RemoteUI) DrawStatus(statusLine, modeLine wire.DisplayLine, defaultFace wire.Face) {
	u.send(wire.DrawStatus, func(e *wire.Encoder) {
		e.DisplayLine(statusLine)
		e.DisplayLine(modeLine)
		e.Face(defaultFace)
	})
}

func (u *RemoteUI) Refresh(forceClear bool) {
	u.send(wire.Refresh, func(e *wire.Encoder) { e.Bool(forceClear) })
}

func (u *RemoteUI) Dimensions() wire.DisplayCoord { return u.dimensions }

func (u *RemoteUI) SetOnKey(fn func(wire.Key)) { u.onKey = fn }

func (u *RemoteUI) SetUIOptions(options *wire.StringMap) {
	u.send(wire.SetOptions, func(e *wire.Encoder) { e.StringMap(options) })
}

var _ uicap.UserInterface = (*RemoteUI)(nil)

// discardHandler is a no-op slog handler, used when no logger is supplied.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

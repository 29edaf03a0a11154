// Package remoteclient implements the client side of the wire protocol: it
// connects to a running session's socket, sends the introduction frame,
// and then dispatches inbound rendering frames onto a local uicap.UserInterface
// while forwarding keys back to the server.
package remoteclient

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/loom-editor/loom/internal/sessionaddr"
	"github.com/loom-editor/loom/internal/uicap"
	"github.com/loom-editor/loom/internal/watcher"
	"github.com/loom-editor/loom/internal/wire"
)

// Client owns the connection to a remote session and pumps frames between
// the socket and a local uicap.UserInterface. It owns its socket watcher and
// toggles Write interest to drain its outbound buffer under backpressure,
// symmetric to remoteui.RemoteUI on the server side.
type Client struct {
	watcher *watcher.FDWatcher
	ui      uicap.UserInterface
	reader  *wire.FrameReader
	out     bytes.Buffer
	log     *slog.Logger
	onError func(error)
}

// Connect dials the named session's socket, sends the Connect introduction
// frame (initCommand, the UI's current dimensions, and envVars), registers
// the connection with loop for Read|Write readiness, and wires ui's key
// callback to write Key frames back. onError is invoked at most once, from
// within a watcher callback, when a dispatch error or disconnect occurs; the
// caller is responsible for reacting (e.g. stopping the loop).
func Connect(loop *watcher.Loop, session string, ui uicap.UserInterface, envVars *wire.StringMap, initCommand string, log *slog.Logger, onError func(error)) (*Client, error) {
	fd, path, err := sessionaddr.Connect(session)
	if err != nil {
		return nil, &wire.ConnectionFailedError{Path: path, Err: err}
	}
	if log == nil {
		log = slog.New(discardHandler{})
	}

	c := &Client{ui: ui, reader: wire.NewFrameReader(), log: log, onError: onError}

	frame := wire.OpenFrame(&c.out, wire.Connect)
	e := frame.Encoder()
	e.String(initCommand)
	e.DisplayCoord(ui.Dimensions())
	e.StringMap(envVars)
	frame.Close()
	if err := c.flushAll(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}

	w, err := loop.Register(fd, watcher.Read|watcher.Write, c.handleEvent)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("remoteclient: register: %w", err)
	}
	c.watcher = w

	ui.SetOnKey(c.writeKey)
	return c, nil
}

// flushAll blocks (short of EINTR handling, retrying) until the entire
// outbound buffer has been written, used for the initial Connect frame
// where there is no reactor registration yet to defer to.
func (c *Client) flushAll(fd int) error {
	for c.out.Len() > 0 {
		n, err := unix.Write(fd, c.out.Bytes())
		if n > 0 {
			c.out.Next(n)
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				continue
			}
			return fmt.Errorf("remoteclient: write connect frame: %w", err)
		}
	}
	return nil
}

// FD returns the connection's file descriptor.
func (c *Client) FD() int { return c.watcher.FD() }

func (c *Client) handleEvent(w *watcher.FDWatcher, events watcher.EventMask, mode watcher.EventMode) {
	if events.Has(watcher.Write) {
		c.drainOutbound()
	}
	if events.Has(watcher.Read) {
		if err := c.processAvailable(); err != nil && c.onError != nil {
			onError := c.onError
			c.onError = nil
			onError(err)
		}
	}
}

// writeKey frames and enqueues a single Key message, called from the UI's
// installed key callback.
func (c *Client) writeKey(k wire.Key) {
	frame := wire.OpenFrame(&c.out, wire.KeyEvent)
	frame.Encoder().Key(k)
	frame.Close()
	c.drainOutbound()
}

// drainOutbound writes as much of the buffered outbound bytes as the socket
// will currently accept, setting Write interest when anything remains
// unwritten and clearing it once fully drained, mirroring remoteui.RemoteUI.
func (c *Client) drainOutbound() {
	for c.out.Len() > 0 {
		n, err := unix.Write(c.watcher.FD(), c.out.Bytes())
		if n > 0 {
			c.out.Next(n)
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			c.log.Error("remoteclient: write failed", "error", err)
			break
		}
		if n == 0 {
			break
		}
	}
	wantWrite := c.out.Len() > 0
	if wantWrite != c.watcher.Events().Has(watcher.Write) {
		mask := c.watcher.Events()
		if wantWrite {
			mask |= watcher.Write
		} else {
			mask &^= watcher.Write
		}
		c.watcher.SetEvents(mask)
	}
}

// processAvailable decodes and dispatches every complete frame currently
// readable on the connection, matching the source's drain-while-readable
// loop. It returns a *wire.DisconnectedError when the server goes away.
func (c *Client) processAvailable() error {
	for {
		if err := c.reader.ReadAvailable(c.watcher.FD()); err != nil {
			return err
		}
		if c.reader.Ready() {
			if err := c.dispatch(); err != nil {
				return err
			}
			c.reader.Reset()
		}
		if !watcher.FDReadable(c.watcher.FD()) {
			return nil
		}
	}
}

// dispatch decodes one ready frame and calls the matching uicap.UserInterface
// method. Any message type other than the ones the server may legitimately
// send (Key, Connect, Command are introduction/client-to-server only, and
// are protocol violations here) is a fatal error.
func (c *Client) dispatch() error {
	cur := c.reader.Cursor()
	switch c.reader.Type() {
	case wire.MenuShow:
		items, err := cur.DisplayLineSlice()
		if err != nil {
			return err
		}
		anchor, err := cur.DisplayCoord()
		if err != nil {
			return err
		}
		fg, err := cur.Face()
		if err != nil {
			return err
		}
		bg, err := cur.Face()
		if err != nil {
			return err
		}
		style, err := cur.Uint8()
		if err != nil {
			return err
		}
		c.ui.MenuShow(items, anchor, fg, bg, wire.MenuStyle(style))

	case wire.MenuSelect:
		selected, err := cur.Int32()
		if err != nil {
			return err
		}
		c.ui.MenuSelect(int(selected))

	case wire.MenuHide:
		c.ui.MenuHide()

	case wire.InfoShow:
		title, err := cur.String()
		if err != nil {
			return err
		}
		content, err := cur.String()
		if err != nil {
			return err
		}
		anchor, err := cur.DisplayCoord()
		if err != nil {
			return err
		}
		face, err := cur.Face()
		if err != nil {
			return err
		}
		style, err := cur.Uint8()
		if err != nil {
			return err
		}
		c.ui.InfoShow(title, content, anchor, face, wire.InfoStyle(style))

	case wire.InfoHide:
		c.ui.InfoHide()

	case wire.Draw:
		buf, err := cur.DisplayBuffer()
		if err != nil {
			return err
		}
		def, err := cur.Face()
		if err != nil {
			return err
		}
		pad, err := cur.Face()
		if err != nil {
			return err
		}
		c.ui.Draw(buf, def, pad)

	case wire.DrawStatus:
		status, err := cur.DisplayLine()
		if err != nil {
			return err
		}
		mode, err := cur.DisplayLine()
		if err != nil {
			return err
		}
		def, err := cur.Face()
		if err != nil {
			return err
		}
		c.ui.DrawStatus(status, mode, def)

	case wire.Refresh:
		force, err := cur.Bool()
		if err != nil {
			return err
		}
		c.ui.Refresh(force)

	case wire.SetOptions:
		opts, err := cur.StringMap()
		if err != nil {
			return err
		}
		c.ui.SetUIOptions(opts)

	default:
		return wire.Disconnected(fmt.Sprintf("unexpected message type %v from server", c.reader.Type()), false)
	}
	return nil
}

// Close releases the connection's socket.
func (c *Client) Close() error {
	return c.watcher.CloseFD()
}

// discardHandler is a no-op slog handler, used when no logger is supplied.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

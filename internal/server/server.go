// Package server implements the listening side of a session: accepting
// connections, running the Accepter introduction handshake on each, and
// promoting successful Connect handshakes to a RemoteUI-backed client.
package server

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"github.com/loom-editor/loom/internal/editctx"
	"github.com/loom-editor/loom/internal/remoteui"
	"github.com/loom-editor/loom/internal/sessionaddr"
	"github.com/loom-editor/loom/internal/watcher"
	"github.com/loom-editor/loom/internal/wire"
)

// Server owns a session's listening socket and every in-flight Accepter.
type Server struct {
	session string
	path    string
	loop    *watcher.Loop
	listen  *watcher.FDWatcher

	clients editctx.ClientManager
	cmds    editctx.CommandManager
	log     *slog.Logger
}

// New binds session's socket, starts listening with the protocol's backlog
// of 4, and registers the accept callback with loop.
func New(loop *watcher.Loop, session string, clients editctx.ClientManager, cmds editctx.CommandManager, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	fd, path, err := sessionaddr.Bind(session)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{session: session, path: path, loop: loop, clients: clients, cmds: cmds, log: log}
	w, err := loop.Register(fd, watcher.Read, s.accept)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("server: register listener: %w", err)
	}
	s.listen = w
	return s, nil
}

func (s *Server) accept(w *watcher.FDWatcher, events watcher.EventMask, mode watcher.EventMode) {
	for {
		fd, _, err := unix.Accept(w.FD())
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			s.log.Error("accept failed", "error", err)
			return
		}
		unix.CloseOnExec(fd)
		newAccepter(s, fd)
	}
}

// accepter consumes exactly one introduction frame from a freshly accepted
// socket before either promoting it to a client or running a one-shot
// command and closing it.
type accepter struct {
	server *Server
	watch  *watcher.FDWatcher
	reader *wire.FrameReader
}

func newAccepter(s *Server, fd int) {
	a := &accepter{server: s, reader: wire.NewFrameReader()}
	w, err := s.loop.Register(fd, watcher.Read, a.handleEvent)
	if err != nil {
		s.log.Error("register accepter", "error", err)
		unix.Close(fd)
		return
	}
	a.watch = w
}

func (a *accepter) handleEvent(w *watcher.FDWatcher, events watcher.EventMask, mode watcher.EventMode) {
	if mode != watcher.ModeNormal {
		return
	}
	if err := a.reader.ReadAvailable(w.FD()); err != nil {
		a.reject(err.Error())
		return
	}
	if !a.reader.Ready() {
		return
	}
	a.handleIntroduction()
}

func (a *accepter) handleIntroduction() {
	fd := a.watch.FD()
	cur := a.reader.Cursor()
	switch a.reader.Type() {
	case wire.Connect:
		initCommand, err := cur.String()
		if err != nil {
			a.reject(err.Error())
			return
		}
		dims, err := cur.DisplayCoord()
		if err != nil {
			a.reject(err.Error())
			return
		}
		envVars, err := cur.StringMap()
		if err != nil {
			a.reject(err.Error())
			return
		}

		a.watch.Detach()

		ui, err := remoteui.New(a.server.loop, fd, dims, a.server.log, nil)
		if err != nil {
			a.server.log.Error("promote to remote UI failed", "error", err)
			unix.Close(fd)
			return
		}
		if err := a.server.clients.CreateClient(ui, envVars, initCommand); err != nil {
			a.server.log.Error("create client failed", "error", err)
		}

	case wire.Command:
		command, err := cur.String()
		if err != nil {
			a.reject(err.Error())
			return
		}
		a.watch.Detach()
		if command != "" {
			if err := a.server.cmds.Execute(editctx.Empty(), command); err != nil {
				a.server.log.Error("one-shot command failed", "command", command, "error", err)
			}
		}
		unix.Close(fd)

	default:
		a.reject(fmt.Sprintf("invalid introduction message type %v", a.reader.Type()))
	}
}

func (a *accepter) reject(reason string) {
	a.server.log.Info("rejecting connection", "reason", reason)
	a.watch.CloseFD()
}

// RenameSession renames the session's socket file on disk and updates the
// in-memory session name. Returns false on failure (e.g. the socket file
// is missing or the destination directory does not exist), leaving the
// server's session unchanged. An existing file at the destination is
// replaced, as rename(2) does.
func (s *Server) RenameSession(newName string) bool {
	if !sessionaddr.RenameSession(s.session, newName) {
		return false
	}
	s.session = newName
	return true
}

// CloseSession stops accepting new connections and optionally unlinks the
// session's socket file.
func (s *Server) CloseSession(unlink bool) error {
	s.listen.CloseFD()
	return sessionaddr.CloseSession(s.session, unlink)
}

// SendCommand connects to session, sends a one-shot Command introduction
// frame carrying command, and closes the connection.
func SendCommand(session, command string) error {
	fd, path, err := sessionaddr.Connect(session)
	if err != nil {
		return &wire.ConnectionFailedError{Path: path, Err: err}
	}
	defer unix.Close(fd)

	var out bytes.Buffer
	frame := wire.OpenFrame(&out, wire.Command)
	frame.Encoder().String(command)
	frame.Close()

	raw := out.Bytes()
	for len(raw) > 0 {
		n, err := unix.Write(fd, raw)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("server: send command: %w", err)
		}
		raw = raw[n:]
	}
	return nil
}

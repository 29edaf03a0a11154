// Package localui renders directly to the controlling terminal, for a
// client attached locally rather than over a remote socket. It is a
// minimal capability implementation, enough to drive a session — not a
// full-featured terminal renderer.
package localui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/loom-editor/loom/internal/uicap"
	"github.com/loom-editor/loom/internal/wire"
)

// TerminalUI implements uicap.UserInterface against the process's own
// stdin/stdout, putting the terminal in raw mode for the session's
// duration.
type TerminalUI struct {
	in       *os.File
	out      *bufio.Writer
	oldState *term.State
	onKey    func(wire.Key)

	statusHeight int // lines reserved at the bottom for status/mode
}

// New puts stdin into raw mode and returns a TerminalUI. Close must be
// called to restore the terminal.
func New() (*TerminalUI, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("localui: stdin is not a terminal")
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("localui: make raw: %w", err)
	}
	return &TerminalUI{
		in:           os.Stdin,
		out:          bufio.NewWriter(os.Stdout),
		oldState:     oldState,
		statusHeight: 1,
	}, nil
}

// Close restores the terminal's prior mode.
func (t *TerminalUI) Close() error {
	t.out.Flush()
	return term.Restore(int(t.in.Fd()), t.oldState)
}

// Dimensions reports the terminal's current size.
func (t *TerminalUI) Dimensions() wire.DisplayCoord {
	cols, rows, err := term.GetSize(int(t.in.Fd()))
	if err != nil {
		return wire.DisplayCoord{Line: 24, Column: 80}
	}
	return wire.DisplayCoord{Line: int32(rows), Column: int32(cols)}
}

const (
	escClear     = "\x1b[2J"
	escHome      = "\x1b[H"
	escClearLine = "\x1b[2K"
	escSGRReset  = "\x1b[0m"
)

func (t *TerminalUI) Draw(buffer wire.DisplayBuffer, defaultFace, paddingFace wire.Face) {
	io.WriteString(t.out, escHome)
	for _, line := range buffer.Lines {
		io.WriteString(t.out, escClearLine)
		for _, atom := range line.Atoms {
			writeFace(t.out, atom.Face)
			io.WriteString(t.out, atom.Content)
			io.WriteString(t.out, escSGRReset)
		}
		io.WriteString(t.out, "\r\n")
	}
	t.out.Flush()
}

func (t *TerminalUI) DrawStatus(statusLine, modeLine wire.DisplayLine, defaultFace wire.Face) {
	dims := t.Dimensions()
	fmt.Fprintf(t.out, "\x1b[%d;1H", dims.Line)
	io.WriteString(t.out, escClearLine)
	for _, atom := range statusLine.Atoms {
		io.WriteString(t.out, atom.Content)
	}
	io.WriteString(t.out, escSGRReset)
	t.out.Flush()
}

func (t *TerminalUI) Refresh(forceClear bool) {
	if forceClear {
		io.WriteString(t.out, escClear)
	}
	t.out.Flush()
}

func (t *TerminalUI) MenuShow(items []wire.DisplayLine, anchor wire.DisplayCoord, fg, bg wire.Face, style wire.MenuStyle) {
	for _, line := range items {
		for _, atom := range line.Atoms {
			io.WriteString(t.out, atom.Content)
		}
		io.WriteString(t.out, "\r\n")
	}
	t.out.Flush()
}

func (t *TerminalUI) MenuSelect(selected int) {}

func (t *TerminalUI) MenuHide() {}

func (t *TerminalUI) InfoShow(title, content string, anchor wire.DisplayCoord, face wire.Face, style wire.InfoStyle) {
	fmt.Fprintf(t.out, "-- %s --\r\n", title)
	for _, line := range strings.Split(content, "\n") {
		io.WriteString(t.out, line)
		io.WriteString(t.out, "\r\n")
	}
	t.out.Flush()
}

func (t *TerminalUI) InfoHide() {}

func (t *TerminalUI) SetUIOptions(options *wire.StringMap) {}

// SetOnKey installs the key callback. ReadLoop invokes it for every decoded
// key.
func (t *TerminalUI) SetOnKey(fn func(wire.Key)) { t.onKey = fn }

// ReadLoop blocks reading raw bytes from stdin, decoding them into keys and
// invoking the installed callback, until stdin is closed or a read error
// occurs.
func (t *TerminalUI) ReadLoop() error {
	buf := make([]byte, 1)
	for {
		n, err := t.in.Read(buf)
		if n > 0 && t.onKey != nil {
			t.onKey(wire.Key{Modifiers: wire.ModNone, Code: wire.KeyCode(buf[0])})
		}
		if err != nil {
			return err
		}
	}
}

var _ uicap.UserInterface = (*TerminalUI)(nil)

func writeFace(w io.Writer, f wire.Face) {
	fmt.Fprintf(w, "\x1b[%sm", sgrParams(f))
}

func sgrParams(f wire.Face) string {
	params := "0"
	if f.Attributes&wire.AttrBold != 0 {
		params += ";1"
	}
	if f.Attributes&wire.AttrUnderline != 0 {
		params += ";4"
	}
	if f.FG.Named != wire.ColorDefault {
		params += fmt.Sprintf(";%d", 30+int(f.FG.Named))
	}
	return params
}

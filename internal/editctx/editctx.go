// Package editctx stands in for the editing engine this repo's transport
// layer is built to carry: a Context passed to commands, and the two
// manager interfaces (CommandManager, ClientManager) the server and
// Accepter depend on. The demo implementation here understands just enough
// of a command language to exercise the client/server plumbing end to end;
// a real editing engine would implement these same interfaces.
package editctx

import (
	"fmt"
	"strings"
	"time"

	"github.com/loom-editor/loom/internal/shellexec"
	"github.com/loom-editor/loom/internal/uicap"
	"github.com/loom-editor/loom/internal/wire"
)

// Context carries whatever state a command needs. The demo manager only
// needs a client's UI and its Connect-supplied environment (for commands
// issued from within a connected session); a one-shot command run by
// Accepter gets an Empty Context.
type Context struct {
	UI      uicap.UserInterface
	EnvVars *wire.StringMap
}

// Empty returns a Context with no attached client, for one-shot commands
// that arrive as a Command introduction rather than from a connected
// client.
func Empty() Context { return Context{} }

// CommandManager executes a single command line against a Context.
type CommandManager interface {
	Execute(ctx Context, command string) error
}

// ClientManager creates a new client bound to ui, seeded with envVars and
// running initCommand (if non-empty) once attached.
type ClientManager interface {
	CreateClient(ui uicap.UserInterface, envVars *wire.StringMap, initCommand string) error
}

// DemoManager is a minimal CommandManager + ClientManager understanding a
// handful of verbs: echo (writes its argument to the client's status line),
// sh (runs a shell command via shellexec.RunOnce and shows its output as an
// info box), and terminal (spawns a PTY-backed shell via shellexec.Spawn and
// shows whatever it prints in its first moments). It exists to let the
// server and client run end to end without a real editing engine behind
// them.
type DemoManager struct{}

// NewDemoManager returns a DemoManager.
func NewDemoManager() *DemoManager { return &DemoManager{} }

// CreateClient satisfies ClientManager. It draws an initial empty buffer
// and, if initCommand is non-empty, executes it immediately.
func (m *DemoManager) CreateClient(ui uicap.UserInterface, envVars *wire.StringMap, initCommand string) error {
	dims := ui.Dimensions()
	ui.Draw(wire.DisplayBuffer{}, wire.Face{}, wire.Face{})
	status := wire.DisplayLine{Atoms: []wire.DisplayAtom{{Content: "loom"}}}
	mode := wire.DisplayLine{Atoms: []wire.DisplayAtom{{Content: fmt.Sprintf("%dx%d", dims.Column, dims.Line)}}}
	ui.DrawStatus(status, mode, wire.Face{})

	if initCommand == "" {
		return nil
	}
	return m.Execute(Context{UI: ui, EnvVars: envVars}, initCommand)
}

// Execute satisfies CommandManager.
func (m *DemoManager) Execute(ctx Context, command string) error {
	verb, rest, _ := strings.Cut(strings.TrimSpace(command), " ")
	switch verb {
	case "":
		return nil
	case "echo":
		if ctx.UI != nil {
			line := wire.DisplayLine{Atoms: []wire.DisplayAtom{{Content: rest}}}
			ctx.UI.DrawStatus(line, wire.DisplayLine{}, wire.Face{})
		}
		return nil
	case "sh":
		out, err := shellexec.RunOnce(ctx.EnvVars, rest)
		if ctx.UI != nil {
			ctx.UI.InfoShow("sh", out, wire.DisplayCoord{}, wire.Face{}, wire.InfoPrompt)
		}
		return err
	case "terminal":
		if ctx.UI == nil {
			return fmt.Errorf("editctx: terminal requires an attached client")
		}
		dims := ctx.UI.Dimensions()
		shell, err := shellexec.Spawn(ctx.EnvVars, uint16(dims.Line), uint16(dims.Column))
		if err != nil {
			return fmt.Errorf("editctx: spawn terminal: %w", err)
		}
		defer shell.Close()
		shell.PTY.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		buf := make([]byte, 4096)
		n, _ := shell.PTY.Read(buf)
		ctx.UI.InfoShow("terminal", string(buf[:n]), wire.DisplayCoord{}, wire.Face{}, wire.InfoPrompt)
		return nil
	default:
		return &wire.RuntimeError{Message: fmt.Sprintf("editctx: unknown command %q", verb)}
	}
}

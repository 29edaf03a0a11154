// Package shellexec spawns subshells for the "sh" and "terminal" command
// verbs, propagating the environment a remote client sent at connect time
// rather than the server process's own environment.
package shellexec

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/creack/pty"

	"github.com/loom-editor/loom/internal/wire"
)

// Shell is a running subshell attached to a PTY.
type Shell struct {
	PTY *os.File
	Cmd *exec.Cmd
}

// Spawn starts the user's shell ($SHELL, falling back to /bin/sh) under a
// new PTY of the given size, with its environment built from envVars (the
// client's propagated environment, per the Connect message) rather than the
// server process's own. TERM is sanitized and always present.
func Spawn(envVars *wire.StringMap, rows, cols uint16) (*Shell, error) {
	shellPath := lookup(envVars, "SHELL")
	if shellPath == "" {
		shellPath = "/bin/sh"
	}

	cmd := exec.Command(shellPath)
	cmd.Args[0] = "-" + filepath.Base(shellPath)
	cmd.Env = buildEnv(envVars)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, fmt.Errorf("shellexec: start pty: %w", err)
	}
	return &Shell{PTY: ptmx, Cmd: cmd}, nil
}

// Resize adjusts the PTY's window size, typically in response to a Resize
// key arriving from the client.
func (s *Shell) Resize(rows, cols uint16) error {
	return pty.Setsize(s.PTY, &pty.Winsize{Rows: rows, Cols: cols})
}

// Close releases the PTY master; the shell process is left to exit on its
// own (normally triggered by the resulting EOF/SIGHUP on the slave side).
func (s *Shell) Close() error {
	return s.PTY.Close()
}

func lookup(envVars *wire.StringMap, key string) string {
	if envVars == nil {
		return ""
	}
	v, _ := envVars.Get(key)
	return v
}

// buildEnv constructs a subshell environment from the client's propagated
// variables, injecting a sanitized TERM and dropping any TERM the client
// sent directly so sanitizeTerm's fallback always wins over a malformed
// value.
func buildEnv(envVars *wire.StringMap) []string {
	var env []string
	var term string
	if envVars != nil {
		envVars.Range(func(k, v string) bool {
			if k == "TERM" {
				term = v
				return true
			}
			env = append(env, k+"="+v)
			return true
		})
	}
	return append(env, "TERM="+sanitizeTerm(term))
}

// sanitizeTerm rejects anything that doesn't look like a terminfo entry
// name, falling back to a safe default.
func sanitizeTerm(term string) string {
	if term == "" || len(term) > 128 {
		return "xterm-256color"
	}
	for _, c := range term {
		if c <= 0x20 || c == '=' || c > 0x7e {
			return "xterm-256color"
		}
	}
	return term
}

// RunOnce runs command to completion with envVars propagated, returning its
// combined output. Used by the "sh" command verb for a fire-and-forget
// shell invocation with no PTY attached.
func RunOnce(envVars *wire.StringMap, command string) (string, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Env = buildEnv(envVars)
	out, err := cmd.CombinedOutput()
	return strings.TrimRight(string(out), "\n"), err
}

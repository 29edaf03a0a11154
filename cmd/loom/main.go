// Command loom connects to a running Loom session as a local terminal
// client, or sends a one-shot command to one.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loom-editor/loom/internal/localui"
	"github.com/loom-editor/loom/internal/remoteclient"
	"github.com/loom-editor/loom/internal/server"
	"github.com/loom-editor/loom/internal/version"
	"github.com/loom-editor/loom/internal/watcher"
	"github.com/loom-editor/loom/internal/wire"
)

func main() {
	fs := flag.NewFlagSet("loom", flag.ExitOnError)
	session := fs.String("session", "", "session name to connect to (required)")
	command := fs.String("e", "", "send this command as a one-shot and exit, without attaching a UI")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("loom %s (%s)\n", version.VERSION, version.Commit)
		os.Exit(0)
	}

	if *session == "" {
		fmt.Fprintln(os.Stderr, "error: -session <name> is required")
		fs.Usage()
		os.Exit(1)
	}

	if *command != "" {
		if err := server.SendCommand(*session, *command); err != nil {
			fmt.Fprintf(os.Stderr, "loom: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := attach(*session); err != nil {
		fmt.Fprintf(os.Stderr, "loom: %v\n", err)
		os.Exit(1)
	}
}

func attach(session string) error {
	ui, err := localui.New()
	if err != nil {
		return fmt.Errorf("create terminal UI: %w", err)
	}
	defer ui.Close()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loop, err := watcher.New()
	if err != nil {
		return fmt.Errorf("create watcher loop: %w", err)
	}
	defer loop.Close()

	var loopErr error
	envVars := wire.StringMapFromEnv(os.Environ())
	client, err := remoteclient.Connect(loop, session, ui, envVars, "", log, func(err error) {
		loopErr = err
		stop()
	})
	if err != nil {
		return fmt.Errorf("connect to session %q: %w", session, err)
	}
	defer client.Close()

	go ui.ReadLoop()

	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	if de, ok := loopErr.(*wire.DisconnectedError); ok && de.Graceful {
		return nil
	}
	return loopErr
}

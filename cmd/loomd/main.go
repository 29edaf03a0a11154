// Command loomd runs a Loom session server: it binds a session's socket,
// accepts client connections, and serves them until the session is closed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loom-editor/loom/internal/editctx"
	"github.com/loom-editor/loom/internal/server"
	"github.com/loom-editor/loom/internal/version"
	"github.com/loom-editor/loom/internal/watcher"
)

func main() {
	fs := flag.NewFlagSet("loomd", flag.ExitOnError)
	session := fs.String("session", "", "session name (required)")
	showVersion := fs.Bool("version", false, "print version and exit")
	command := fs.String("e", "", "send this command as a one-shot to the running session and exit")
	fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("loomd %s (%s)\n", version.VERSION, version.Commit)
		os.Exit(0)
	}

	if *session == "" {
		fmt.Fprintln(os.Stderr, "error: -session <name> is required")
		fs.Usage()
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *command != "" {
		if err := server.SendCommand(*session, *command); err != nil {
			fmt.Fprintf(os.Stderr, "loomd: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*session, log); err != nil {
		fmt.Fprintf(os.Stderr, "loomd: %v\n", err)
		os.Exit(1)
	}
}

func run(session string, log *slog.Logger) error {
	loop, err := watcher.New()
	if err != nil {
		return fmt.Errorf("create watcher loop: %w", err)
	}
	defer loop.Close()

	mgr := editctx.NewDemoManager()
	srv, err := server.New(loop, session, mgr, mgr, log)
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("listening", "session", session)
	err = loop.Run(ctx)
	srv.CloseSession(true)
	if err == context.Canceled {
		return nil
	}
	return err
}

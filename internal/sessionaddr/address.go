// Package sessionaddr maps a session name to its rendezvous socket path on
// disk, creates the directory tree that path lives under with the
// permissions this protocol's access control depends on, and offers a
// lightweight probe for whether a session is currently listening.
package sessionaddr

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// tmpDir returns TMPDIR, or /tmp if it is unset.
func tmpDir() string {
	if v := os.Getenv("TMPDIR"); v != "" {
		return v
	}
	return "/tmp"
}

// AddressFor returns the socket path for session. A session name
// containing a path separator bypasses the per-user subdirectory and is
// joined directly under <tmp>/loom/, so an absolute or relative path
// segment in the name determines the final location.
func AddressFor(session string) (string, error) {
	if strings.Contains(session, "/") {
		return filepath.Join(tmpDir(), "loom", session), nil
	}
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("sessionaddr: resolve current user: %w", err)
	}
	return filepath.Join(tmpDir(), "loom", u.Username, session), nil
}

// MakeParents creates the directory tree containing socketPath:
// <tmp>/loom with the sticky bit set (01777, shared across users), and its
// immediate parent directory with mode 0711. Existing directories are
// tolerated. Permission failures are returned as-is; callers treat them as
// fatal.
func MakeParents(socketPath string) error {
	root := filepath.Join(tmpDir(), "loom")
	if err := mkdirTolerant(root, 0777|os.ModeSticky); err != nil {
		return fmt.Errorf("sessionaddr: create %s: %w", root, err)
	}

	parent := filepath.Dir(socketPath)
	if parent != root {
		if err := mkdirTolerant(parent, 0711); err != nil {
			return fmt.Errorf("sessionaddr: create %s: %w", parent, err)
		}
	}
	return nil
}

func mkdirTolerant(path string, mode os.FileMode) error {
	err := os.Mkdir(path, mode)
	if err == nil {
		// mkdir(2) applies the umask; set the exact mode on a directory
		// created here.
		return os.Chmod(path, mode)
	}
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	return err
}

// CheckSession attempts a nonblocking connect to session's socket and
// reports whether it succeeded. The probing socket is always closed.
func CheckSession(session string) (bool, error) {
	path, err := AddressFor(session)
	if err != nil {
		return false, err
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return false, fmt.Errorf("sessionaddr: socket: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.SetNonblock(fd, true); err != nil {
		return false, fmt.Errorf("sessionaddr: set nonblocking: %w", err)
	}

	addr := &unix.SockaddrUnix{Name: path}
	err = unix.Connect(fd, addr)
	if err == nil || err == unix.EINPROGRESS {
		return true, nil
	}
	return false, nil
}

// Bind creates a listening socket at session's address: the directory tree
// is created first, then bind(2) runs under a temporarily narrowed umask
// (0177) so the socket file itself lands at mode 0600. The returned fd is still in its default blocking
// mode; callers that register it with a watcher.Loop get nonblocking
// behavior from Loop.Register. Returns the listening fd and the resolved
// path.
func Bind(session string) (fd int, path string, err error) {
	path, err = AddressFor(session)
	if err != nil {
		return -1, "", err
	}
	if err := MakeParents(path); err != nil {
		return -1, "", err
	}

	fd, err = unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, "", fmt.Errorf("sessionaddr: socket: %w", err)
	}

	// A stale socket file from a crashed prior server would make bind
	// fail with EADDRINUSE; remove it first the way the source's
	// make_directory + bind sequence tolerates a missing file but not a
	// stale one.
	os.Remove(path)

	oldUmask := unix.Umask(0177)
	bindErr := unix.Bind(fd, &unix.SockaddrUnix{Name: path})
	unix.Umask(oldUmask)
	if bindErr != nil {
		unix.Close(fd)
		return -1, "", fmt.Errorf("sessionaddr: bind %s: %w", path, bindErr)
	}

	const listenBacklog = 4
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, "", fmt.Errorf("sessionaddr: listen %s: %w", path, err)
	}

	return fd, path, nil
}

// Connect opens a blocking, CLOEXEC connection to session's socket. On
// failure it returns the socket or connect error as-is, together with the
// resolved path once it is known; callers wrap it in
// wire.ConnectionFailedError.
func Connect(session string) (fd int, path string, err error) {
	path, err = AddressFor(session)
	if err != nil {
		return -1, "", err
	}
	fd, err = unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, "", fmt.Errorf("sessionaddr: socket: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, "", err
	}
	return fd, path, nil
}

// RenameSession moves the socket file for oldName to newName's address.
// Atomicity is whatever the underlying filesystem's rename(2) provides.
// Returns false without error on failure, matching the source's
// tolerant behavior — a failed rename is not fatal to the running server.
func RenameSession(oldName, newName string) bool {
	oldPath, err := AddressFor(oldName)
	if err != nil {
		return false
	}
	newPath, err := AddressFor(newName)
	if err != nil {
		return false
	}
	return os.Rename(oldPath, newPath) == nil
}

// CloseSession unlinks the socket file for session iff unlink is true.
func CloseSession(session string, unlink bool) error {
	if !unlink {
		return nil
	}
	path, err := AddressFor(session)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

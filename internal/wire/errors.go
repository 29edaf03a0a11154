package wire

import "fmt"

// DisconnectedError reports a socket-level failure on either peer. Graceful
// is true when the peer closed its end cleanly (a zero-byte read); false
// for any other I/O failure, including a protocol violation, which is
// modeled as a non-graceful disconnect with a descriptive reason.
type DisconnectedError struct {
	Reason   string
	Graceful bool
}

func (e *DisconnectedError) Error() string {
	return e.Reason
}

// Disconnected constructs a DisconnectedError.
func Disconnected(reason string, graceful bool) *DisconnectedError {
	return &DisconnectedError{Reason: reason, Graceful: graceful}
}

// ErrTruncated is returned by decode operations that run past the end of
// the available bytes.
var ErrTruncated = Disconnected("tried to read after message end", false)

// ConnectionFailedError reports a connect-time failure when joining a
// session.
type ConnectionFailedError struct {
	Path string
	Err  error
}

func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Path, e.Err)
}

func (e *ConnectionFailedError) Unwrap() error {
	return e.Err
}

// RuntimeError reports a failure surfaced by a collaborator (command
// execution, an invariant check) that is not itself a transport failure.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string {
	return e.Message
}

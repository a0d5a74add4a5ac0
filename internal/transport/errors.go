// internal/transport/errors.go
package transport

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"syscall"
)

// ErrNotOpen is returned for requests issued while the link is closed.
var ErrNotOpen = errors.New("transport: port not open")

// Kind tells the caller how far a failure reaches.
type Kind int

const (
	// KindDevice is scoped to one slave: timeout, exception, short reply.
	KindDevice Kind = iota
	// KindPort means the serial link itself is unusable.
	KindPort
	// KindOpen is a failed connect attempt.
	KindOpen
)

func (k Kind) String() string {
	switch k {
	case KindPort:
		return "port"
	case KindOpen:
		return "open"
	default:
		return "device"
	}
}

// Error is the only error type returned across the transport boundary.
type Error struct {
	Kind  Kind
	Op    string
	Slave byte
	Err   error
}

func (e *Error) Error() string {
	if e.Slave != 0 {
		return fmt.Sprintf("transport: %s slave=%d (%s): %v", e.Op, e.Slave, e.Kind, e.Err)
	}
	return fmt.Sprintf("transport: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err. Unknown errors are device-scoped.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return classify(err)
}

// IsPortError reports whether err means the whole link is down.
func IsPortError(err error) bool {
	return err != nil && KindOf(err) == KindPort
}

// classify maps raw library errors onto Kind.
// The serial library surfaces a dead adapter as errno values or closed-file errors;
// everything else (timeouts, modbus exceptions, CRC) is charged to the slave.
func classify(err error) Kind {
	switch {
	case errors.Is(err, ErrNotOpen),
		errors.Is(err, os.ErrClosed),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, syscall.EIO),
		errors.Is(err, syscall.ENODEV),
		errors.Is(err, syscall.ENXIO),
		errors.Is(err, syscall.EBADF):
		return KindPort
	}
	return KindDevice
}

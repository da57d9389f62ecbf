// Package bterr holds the error categories shared by the socket, hci and sdp
// packages. Callers test categories with errors.Is.
package bterr

import (
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var (
	ErrInvalidAddress      = errors.New("invalid address")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrInvalidUUID         = errors.New("invalid uuid")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrTimedOut            = errors.New("timed out")
	ErrWouldBlock          = errors.New("operation would block")
	ErrClosed              = errors.New("socket closed")

	ErrNotListening      = errors.New("socket is not listening")
	ErrAlreadyRegistered = errors.New("service already advertised")
	ErrNotAdvertising    = errors.New("service not advertised")
	ErrNotAdvertisable   = errors.New("no advertisable device")
	ErrMissingName       = errors.New("service name required")
)

// SystemError carries the code reported by the kernel or the controller.
type SystemError struct {
	Op   string
	Code int
	Err  error
}

func (e *SystemError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *SystemError) Unwrap() error {
	return e.Err
}

// Is reports EAGAIN as ErrWouldBlock so non-blocking callers need not know errno.
func (e *SystemError) Is(target error) bool {
	if target != ErrWouldBlock {
		return false
	}
	errno, ok := e.Err.(unix.Errno)
	return ok && (errno == unix.EAGAIN || errno == unix.EWOULDBLOCK)
}

// Sys wraps an OS error for op. A nil err stays nil.
func Sys(op string, err error) error {
	if err == nil {
		return nil
	}
	if errno, ok := err.(unix.Errno); ok {
		return &SystemError{Op: op, Code: int(errno), Err: errno}
	}
	return &SystemError{Op: op, Code: -1, Err: err}
}

// Status wraps a non-zero HCI status code returned by a controller.
func Status(op string, status uint8) error {
	if status == 0 {
		return nil
	}
	return &SystemError{Op: op, Code: int(status), Err: StatusError(status)}
}

type StatusError uint8

func (s StatusError) Error() string {
	return fmt.Sprintf("controller status 0x%02x", uint8(s))
}

// Errno extracts the OS error number from err, or 0 if err carries none.
func Errno(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}

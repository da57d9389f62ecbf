package socket

import "time"

type Direction int

const (
	DirRead Direction = iota
	DirWrite
)

// Sys is the set of descriptor primitives a Socket is built on. Socket
// addresses are passed as encoded sockaddr records.
type Sys interface {
	Socket(domain, typ, proto int) (int, error)
	Bind(fd int, sa []byte) error
	Connect(fd int, sa []byte) error
	Listen(fd, backlog int) error
	// Accept fills sa with the peer address and returns its length.
	Accept(fd int, sa []byte) (nfd, salen int, err error)
	Getsockname(fd int, sa []byte) (int, error)
	Getpeername(fd int, sa []byte) (int, error)
	Recvfrom(fd int, p []byte, flags int, sa []byte) (n, salen int, err error)
	Sendto(fd int, p []byte, flags int, sa []byte) (int, error)
	Shutdown(fd, how int) error
	Close(fd int) error
	Dup(fd int) (int, error)
	SetNonblock(fd int, nonblocking bool) error
	// Poll waits up to timeout for fd to become ready in dir.
	Poll(fd int, dir Direction, timeout time.Duration) (bool, error)
	GetsockoptInt(fd, level, opt int) (int, error)
	SetsockoptInt(fd, level, opt, value int) error
	GetsockoptBytes(fd, level, opt int, buf []byte) (int, error)
	SetsockoptBytes(fd, level, opt int, buf []byte) error
}

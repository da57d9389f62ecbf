package socket

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// linuxSys issues the socket calls directly so that sockaddr records the
// unix package has no type for (sockaddr_sco, sockaddr_l2 with cid) pass
// through unchanged.
type linuxSys struct{}

var defaultSys Sys = linuxSys{}

func ptr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func errnoErr(e unix.Errno) error {
	if e != 0 {
		return e
	}
	return nil
}

func (linuxSys) Socket(domain, typ, proto int) (int, error) {
	return unix.Socket(domain, typ, proto)
}

func (linuxSys) Bind(fd int, sa []byte) error {
	_, _, e := unix.Syscall(unix.SYS_BIND, uintptr(fd), ptr(sa), uintptr(len(sa)))
	return errnoErr(e)
}

func (linuxSys) Connect(fd int, sa []byte) error {
	_, _, e := unix.Syscall(unix.SYS_CONNECT, uintptr(fd), ptr(sa), uintptr(len(sa)))
	return errnoErr(e)
}

func (linuxSys) Listen(fd, backlog int) error {
	return unix.Listen(fd, backlog)
}

func (linuxSys) Accept(fd int, sa []byte) (int, int, error) {
	l := uint32(len(sa))
	nfd, _, e := unix.Syscall6(unix.SYS_ACCEPT4, uintptr(fd), ptr(sa), uintptr(unsafe.Pointer(&l)), unix.SOCK_CLOEXEC, 0, 0)
	if e != 0 {
		return -1, 0, e
	}
	return int(nfd), int(l), nil
}

func (linuxSys) Getsockname(fd int, sa []byte) (int, error) {
	l := uint32(len(sa))
	_, _, e := unix.Syscall(unix.SYS_GETSOCKNAME, uintptr(fd), ptr(sa), uintptr(unsafe.Pointer(&l)))
	if e != 0 {
		return 0, e
	}
	return int(l), nil
}

func (linuxSys) Getpeername(fd int, sa []byte) (int, error) {
	l := uint32(len(sa))
	_, _, e := unix.Syscall(unix.SYS_GETPEERNAME, uintptr(fd), ptr(sa), uintptr(unsafe.Pointer(&l)))
	if e != 0 {
		return 0, e
	}
	return int(l), nil
}

func (linuxSys) Recvfrom(fd int, p []byte, flags int, sa []byte) (int, int, error) {
	l := uint32(len(sa))
	lp := uintptr(0)
	if len(sa) > 0 {
		lp = uintptr(unsafe.Pointer(&l))
	}
	n, _, e := unix.Syscall6(unix.SYS_RECVFROM, uintptr(fd), ptr(p), uintptr(len(p)), uintptr(flags), ptr(sa), lp)
	if e != 0 {
		return 0, 0, e
	}
	return int(n), int(l), nil
}

func (linuxSys) Sendto(fd int, p []byte, flags int, sa []byte) (int, error) {
	n, _, e := unix.Syscall6(unix.SYS_SENDTO, uintptr(fd), ptr(p), uintptr(len(p)), uintptr(flags), ptr(sa), uintptr(len(sa)))
	if e != 0 {
		return 0, e
	}
	return int(n), nil
}

func (linuxSys) Shutdown(fd, how int) error {
	return unix.Shutdown(fd, how)
}

func (linuxSys) Close(fd int) error {
	return unix.Close(fd)
}

func (linuxSys) Dup(fd int) (int, error) {
	return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
}

func (linuxSys) SetNonblock(fd int, nonblocking bool) error {
	return unix.SetNonblock(fd, nonblocking)
}

func (linuxSys) Poll(fd int, dir Direction, timeout time.Duration) (bool, error) {
	events := int16(unix.POLLIN)
	if dir == DirWrite {
		events = unix.POLLOUT
	}
	ms := int((timeout + time.Millisecond - 1) / time.Millisecond)
	pfds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	n, err := unix.Poll(pfds, ms)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (linuxSys) GetsockoptInt(fd, level, opt int) (int, error) {
	return unix.GetsockoptInt(fd, level, opt)
}

func (linuxSys) SetsockoptInt(fd, level, opt, value int) error {
	return unix.SetsockoptInt(fd, level, opt, value)
}

func (linuxSys) GetsockoptBytes(fd, level, opt int, buf []byte) (int, error) {
	l := uint32(len(buf))
	_, _, e := unix.Syscall6(unix.SYS_GETSOCKOPT, uintptr(fd), uintptr(level), uintptr(opt), ptr(buf), uintptr(unsafe.Pointer(&l)), 0)
	if e != 0 {
		return 0, e
	}
	return int(l), nil
}

func (linuxSys) SetsockoptBytes(fd, level, opt int, buf []byte) error {
	_, _, e := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(fd), uintptr(level), uintptr(opt), ptr(buf), uintptr(len(buf)), 0)
	return errnoErr(e)
}

// Package socket implements Bluetooth sockets for the HCI, L2CAP, RFCOMM and
// SCO protocols with uniform blocking, non-blocking and timed operation.
package socket

import (
	"io"
	"sync"
	"time"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type Socket struct {
	mu    sync.Mutex
	fd    int
	proto btaddr.Protocol
	codec btaddr.Codec
	cfg   Config
	sys   Sys
	log   *zap.Logger

	// timeout and blocking only change together, see setTimeoutLocked.
	timeout  time.Duration
	blocking bool

	listening bool

	state AdvertiseState
	reg   Registration
}

func socketType(p btaddr.Protocol) int {
	switch p {
	case btaddr.ProtocolHCI:
		return unix.SOCK_RAW
	case btaddr.ProtocolRFCOMM:
		return unix.SOCK_STREAM
	}
	return unix.SOCK_SEQPACKET
}

// New opens a socket for proto.
func New(proto btaddr.Protocol, opts ...Option) (*Socket, error) {
	codec, err := btaddr.CodecFor(proto)
	if err != nil {
		return nil, err
	}
	cfg := newConfig(opts)
	typ := cfg.Type
	if typ < 0 {
		typ = socketType(proto)
	}
	fd, err := cfg.Sys.Socket(unix.AF_BLUETOOTH, typ|unix.SOCK_CLOEXEC, int(proto))
	if err != nil {
		return nil, bterr.Sys("socket", err)
	}
	return wrap(fd, proto, codec, cfg)
}

// FromFD takes ownership of an already open descriptor.
func FromFD(fd int, proto btaddr.Protocol, opts ...Option) (*Socket, error) {
	codec, err := btaddr.CodecFor(proto)
	if err != nil {
		return nil, err
	}
	if fd < 0 {
		return nil, errors.Wrapf(bterr.ErrInvalidArgument, "descriptor %d", fd)
	}
	return wrap(fd, proto, codec, newConfig(opts))
}

func wrap(fd int, proto btaddr.Protocol, codec btaddr.Codec, cfg Config) (*Socket, error) {
	s := &Socket{
		fd:    fd,
		proto: proto,
		codec: codec,
		cfg:   cfg,
		sys:   cfg.Sys,
		log:   cfg.logger().With(zap.Stringer("proto", proto), zap.Int("fd", fd)),
	}
	if err := s.setTimeoutLocked(cfg.Timeout); err != nil {
		cfg.Sys.Close(fd)
		return nil, err
	}
	return s, nil
}

func (s *Socket) Protocol() btaddr.Protocol {
	return s.proto
}

// Fileno returns the descriptor, or -1 once closed.
func (s *Socket) Fileno() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd
}

func (s *Socket) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

func (s *Socket) snapshot() (int, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return -1, 0, bterr.ErrClosed
	}
	return s.fd, s.timeout, nil
}

func (s *Socket) Bind(addr btaddr.Address) error {
	sa, err := s.codec.Encode(addr)
	if err != nil {
		return err
	}
	fd, _, err := s.snapshot()
	if err != nil {
		return err
	}
	if err := s.sys.Bind(fd, sa); err != nil {
		return bterr.Sys("bind", err)
	}
	s.log.Debug("bound", zap.Stringer("addr", addr))
	return nil
}

func (s *Socket) Connect(addr btaddr.Address) error {
	sa, err := s.codec.Encode(addr)
	if err != nil {
		return err
	}
	fd, timeout, err := s.snapshot()
	if err != nil {
		return err
	}
	if timeout <= 0 {
		return bterr.Sys("connect", s.sys.Connect(fd, sa))
	}
	return s.connectTimeout(fd, sa, timeout)
}

// connectTimeout starts a non-blocking connect and waits for writability,
// then puts the descriptor back into blocking mode.
func (s *Socket) connectTimeout(fd int, sa []byte, timeout time.Duration) (err error) {
	deadline := time.Now().Add(timeout)
	if err := s.sys.SetNonblock(fd, true); err != nil {
		return bterr.Sys("setblocking", err)
	}
	defer func() {
		if rerr := s.sys.SetNonblock(fd, false); rerr != nil && err == nil {
			err = bterr.Sys("setblocking", rerr)
		}
	}()

	err = s.sys.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if err != unix.EINPROGRESS && err != unix.EAGAIN {
		return bterr.Sys("connect", err)
	}
	if err := s.waitUntil("connect", fd, DirWrite, deadline); err != nil {
		return err
	}
	code, err := s.sys.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return bterr.Sys("getsockopt", err)
	}
	if code != 0 {
		return bterr.Sys("connect", unix.Errno(code))
	}
	return nil
}

// ConnectEx is Connect that reports OS failures as an errno rather than an
// error. Validation failures and timeouts are still returned as errors.
func (s *Socket) ConnectEx(addr btaddr.Address) (unix.Errno, error) {
	err := s.Connect(addr)
	if err == nil {
		return 0, nil
	}
	if errno := bterr.Errno(err); errno != 0 {
		return errno, nil
	}
	return 0, err
}

// Listen marks the socket as accepting connections. backlog is at least 1.
func (s *Socket) Listen(backlog int) error {
	if backlog < 1 {
		backlog = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return bterr.ErrClosed
	}
	if err := s.sys.Listen(s.fd, backlog); err != nil {
		return bterr.Sys("listen", err)
	}
	s.listening = true
	return nil
}

// Accept waits for a connection. The new socket shares the protocol and the
// configured default timeout but is neither listening nor advertised.
func (s *Socket) Accept() (*Socket, btaddr.Address, error) {
	fd, timeout, err := s.snapshot()
	if err != nil {
		return nil, nil, err
	}
	if err := s.pollBefore("accept", fd, timeout, DirRead); err != nil {
		return nil, nil, err
	}
	sa := make([]byte, s.codec.Len())
	var nfd, n int
	for {
		nfd, n, err = s.sys.Accept(fd, sa)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return nil, nil, bterr.Sys("accept", err)
	}
	child, err := wrap(nfd, s.proto, s.codec, s.cfg)
	if err != nil {
		return nil, nil, err
	}
	addr, err := s.codec.Decode(sa[:min(n, len(sa))])
	if err != nil {
		child.Close()
		return nil, nil, err
	}
	s.log.Debug("accepted", zap.Int("child", nfd))
	return child, addr, nil
}

func (s *Socket) recvfrom(op string, p []byte, flags int, sa []byte) (int, int, error) {
	fd, timeout, err := s.snapshot()
	if err != nil {
		return 0, 0, err
	}
	if err := s.pollBefore(op, fd, timeout, DirRead); err != nil {
		return 0, 0, err
	}
	for {
		n, salen, err := s.sys.Recvfrom(fd, p, flags, sa)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, 0, bterr.Sys(op, err)
		}
		return n, salen, nil
	}
}

func (s *Socket) Recv(p []byte, flags int) (int, error) {
	n, _, err := s.recvfrom("recv", p, flags, nil)
	return n, err
}

// RecvFrom returns a nil address when the kernel reports none, as it does
// for connected stream sockets.
func (s *Socket) RecvFrom(p []byte, flags int) (int, btaddr.Address, error) {
	sa := make([]byte, s.codec.Len())
	n, salen, err := s.recvfrom("recvfrom", p, flags, sa)
	if err != nil {
		return 0, nil, err
	}
	addr, err := s.codec.Decode(sa[:min(salen, len(sa))])
	if err != nil {
		return n, nil, err
	}
	return n, addr, nil
}

func (s *Socket) sendto(op string, p []byte, flags int, sa []byte) (int, error) {
	fd, timeout, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	if err := s.pollBefore(op, fd, timeout, DirWrite); err != nil {
		return 0, err
	}
	for {
		n, err := s.sys.Sendto(fd, p, flags, sa)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, bterr.Sys(op, err)
		}
		return n, nil
	}
}

func (s *Socket) Send(p []byte, flags int) (int, error) {
	return s.sendto("send", p, flags, nil)
}

func (s *Socket) SendTo(p []byte, flags int, addr btaddr.Address) (int, error) {
	sa, err := s.codec.Encode(addr)
	if err != nil {
		return 0, err
	}
	return s.sendto("sendto", p, flags, sa)
}

// SendAll sends until p is exhausted. The timeout applies to each send.
func (s *Socket) SendAll(p []byte, flags int) error {
	_, err := s.sendAll(p, flags)
	return err
}

func (s *Socket) sendAll(p []byte, flags int) (int, error) {
	total := 0
	for total < len(p) {
		n, err := s.Send(p[total:], flags)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *Socket) Read(p []byte) (int, error) {
	n, err := s.Recv(p, 0)
	if err == nil && n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, err
}

func (s *Socket) Write(p []byte) (int, error) {
	return s.sendAll(p, 0)
}

// Shutdown takes unix.SHUT_RD, unix.SHUT_WR or unix.SHUT_RDWR.
func (s *Socket) Shutdown(how int) error {
	fd, _, err := s.snapshot()
	if err != nil {
		return err
	}
	return bterr.Sys("shutdown", s.sys.Shutdown(fd, how))
}

// Close stops any advertisement and releases the descriptor. Both are
// attempted even if one fails. Closing twice is a no-op.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.state == Registered {
		if derr := s.deregisterLocked(); derr != nil {
			s.log.Warn("failed to stop advertising on close", zap.Error(derr))
			err = multierr.Append(err, derr)
		}
	}
	if s.fd >= 0 {
		if cerr := s.sys.Close(s.fd); cerr != nil {
			err = multierr.Append(err, bterr.Sys("close", cerr))
		}
		s.fd = -1
	}
	s.listening = false
	return err
}

// Dup returns a socket on a duplicate descriptor. Advertisements stay with s.
func (s *Socket) Dup() (*Socket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return nil, bterr.ErrClosed
	}
	nfd, err := s.sys.Dup(s.fd)
	if err != nil {
		return nil, bterr.Sys("dup", err)
	}
	cfg := s.cfg
	cfg.Timeout = s.timeout
	d, err := wrap(nfd, s.proto, s.codec, cfg)
	if err != nil {
		return nil, err
	}
	d.listening = s.listening
	return d, nil
}

// LocalAddr returns the address the socket is bound to.
func (s *Socket) LocalAddr() (btaddr.Address, error) {
	fd, _, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	sa := make([]byte, s.codec.Len())
	n, err := s.sys.Getsockname(fd, sa)
	if err != nil {
		return nil, bterr.Sys("getsockname", err)
	}
	return s.codec.Decode(sa[:min(n, len(sa))])
}

// RemoteAddr returns the connected peer.
func (s *Socket) RemoteAddr() (btaddr.Address, error) {
	fd, _, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	sa := make([]byte, s.codec.Len())
	n, err := s.sys.Getpeername(fd, sa)
	if err != nil {
		return nil, bterr.Sys("getpeername", err)
	}
	return s.codec.Decode(sa[:min(n, len(sa))])
}

func (s *Socket) GetsockoptInt(level, opt int) (int, error) {
	fd, _, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	v, err := s.sys.GetsockoptInt(fd, level, opt)
	return v, bterr.Sys("getsockopt", err)
}

func (s *Socket) SetsockoptInt(level, opt, value int) error {
	fd, _, err := s.snapshot()
	if err != nil {
		return err
	}
	return bterr.Sys("setsockopt", s.sys.SetsockoptInt(fd, level, opt, value))
}

// GetsockoptBytes reads up to size bytes of option data, 1 <= size <= 1024.
func (s *Socket) GetsockoptBytes(level, opt, size int) ([]byte, error) {
	if size < 1 || size > 1024 {
		return nil, errors.Wrapf(bterr.ErrInvalidArgument, "option size %d", size)
	}
	fd, _, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := s.sys.GetsockoptBytes(fd, level, opt, buf)
	if err != nil {
		return nil, bterr.Sys("getsockopt", err)
	}
	return buf[:min(n, size)], nil
}

func (s *Socket) SetsockoptBytes(level, opt int, value []byte) error {
	fd, _, err := s.snapshot()
	if err != nil {
		return err
	}
	return bterr.Sys("setsockopt", s.sys.SetsockoptBytes(fd, level, opt, value))
}

// Package fakesys is an in-memory socket.Sys for tests.
package fakesys

import (
	"bytes"
	"sync"
	"time"

	"github.com/muxable/btsocket/pkg/socket"
	"golang.org/x/sys/unix"
)

type FD struct {
	Domain, Type, Proto int

	Nonblock  bool
	Bound     []byte
	Peer      []byte
	Listening bool
	Backlog   int
	Closed    bool
	// Shut is set by Shutdown. Accept on a shut listener fails like Linux.
	Shut bool

	// Inbox holds datagrams returned by Recvfrom, with From as the source.
	Inbox [][]byte
	From  [][]byte
	// Pending holds peer sockaddrs waiting to be accepted.
	Pending [][]byte
	Sent    [][]byte

	IntOpts   map[[2]int]int
	BytesOpts map[[2]int][]byte
}

type Sys struct {
	mu   sync.Mutex
	next int

	FDs map[int]*FD

	// Errs injects a failure for the named operation ("bind", "close", ...).
	Errs map[string]error
	// ConnectErr is returned by Connect in place of success.
	ConnectErr error
	// NotWritable makes Poll report write readiness as false.
	NotWritable bool
	// SendLimit caps the bytes accepted per Sendto when positive.
	SendLimit int
	// InUse lists sockaddrs that Bind refuses with EADDRINUSE.
	InUse [][]byte

	Polls    int
	Connects int
}

var _ socket.Sys = (*Sys)(nil)

func New() *Sys {
	return &Sys{next: 3, FDs: make(map[int]*FD), Errs: make(map[string]error)}
}

func (s *Sys) FD(fd int) *FD {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FDs[fd]
}

// Deliver queues data for fd as if it arrived from the peer sockaddr from.
func (s *Sys) Deliver(fd int, data, from []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.FDs[fd]
	f.Inbox = append(f.Inbox, data)
	f.From = append(f.From, from)
}

// Incoming queues a connection from peer on the listening fd.
func (s *Sys) Incoming(fd int, peer []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.FDs[fd]
	f.Pending = append(f.Pending, peer)
}

func (s *Sys) get(op string, fd int) (*FD, error) {
	if err := s.Errs[op]; err != nil {
		return nil, err
	}
	f, ok := s.FDs[fd]
	if !ok || f.Closed {
		return nil, unix.EBADF
	}
	return f, nil
}

func (s *Sys) alloc(f *FD) int {
	fd := s.next
	s.next++
	f.IntOpts = make(map[[2]int]int)
	f.BytesOpts = make(map[[2]int][]byte)
	s.FDs[fd] = f
	return fd
}

func (s *Sys) Socket(domain, typ, proto int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Errs["socket"]; err != nil {
		return -1, err
	}
	return s.alloc(&FD{Domain: domain, Type: typ &^ unix.SOCK_CLOEXEC, Proto: proto}), nil
}

func (s *Sys) Bind(fd int, sa []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.get("bind", fd)
	if err != nil {
		return err
	}
	for _, in := range s.InUse {
		if bytes.Equal(in, sa) {
			return unix.EADDRINUSE
		}
	}
	f.Bound = append([]byte(nil), sa...)
	return nil
}

func (s *Sys) Connect(fd int, sa []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Connects++
	f, err := s.get("connect", fd)
	if err != nil {
		return err
	}
	if s.ConnectErr != nil {
		return s.ConnectErr
	}
	f.Peer = append([]byte(nil), sa...)
	return nil
}

func (s *Sys) Listen(fd, backlog int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.get("listen", fd)
	if err != nil {
		return err
	}
	f.Listening = true
	f.Backlog = backlog
	return nil
}

func (s *Sys) Accept(fd int, sa []byte) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.get("accept", fd)
	if err != nil {
		return -1, 0, err
	}
	if f.Shut {
		return -1, 0, unix.EINVAL
	}
	if len(f.Pending) == 0 {
		if f.Nonblock {
			return -1, 0, unix.EAGAIN
		}
		return -1, 0, unix.ECONNABORTED
	}
	peer := f.Pending[0]
	f.Pending = f.Pending[1:]
	nfd := s.alloc(&FD{Domain: f.Domain, Type: f.Type, Proto: f.Proto, Bound: f.Bound, Peer: peer})
	return nfd, copy(sa, peer), nil
}

func (s *Sys) Getsockname(fd int, sa []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.get("getsockname", fd)
	if err != nil {
		return 0, err
	}
	return copy(sa, f.Bound), nil
}

func (s *Sys) Getpeername(fd int, sa []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.get("getpeername", fd)
	if err != nil {
		return 0, err
	}
	if f.Peer == nil {
		return 0, unix.ENOTCONN
	}
	return copy(sa, f.Peer), nil
}

// Recvfrom on an empty inbox fails with EAGAIN when non-blocking and reports
// end of stream when blocking.
func (s *Sys) Recvfrom(fd int, p []byte, flags int, sa []byte) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.get("recv", fd)
	if err != nil {
		return 0, 0, err
	}
	if len(f.Inbox) == 0 {
		if f.Nonblock {
			return 0, 0, unix.EAGAIN
		}
		return 0, 0, nil
	}
	data, from := f.Inbox[0], f.From[0]
	f.Inbox, f.From = f.Inbox[1:], f.From[1:]
	n := copy(p, data)
	salen := 0
	if sa != nil {
		salen = copy(sa, from)
	}
	return n, salen, nil
}

func (s *Sys) Sendto(fd int, p []byte, flags int, sa []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.get("send", fd)
	if err != nil {
		return 0, err
	}
	n := len(p)
	if s.SendLimit > 0 && n > s.SendLimit {
		n = s.SendLimit
	}
	f.Sent = append(f.Sent, append([]byte(nil), p[:n]...))
	return n, nil
}

func (s *Sys) Shutdown(fd, how int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.get("shutdown", fd)
	if err != nil {
		return err
	}
	f.Shut = true
	return nil
}

func (s *Sys) Close(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.FDs[fd]
	if !ok || f.Closed {
		return unix.EBADF
	}
	f.Closed = true
	return s.Errs["close"]
}

func (s *Sys) Dup(fd int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.get("dup", fd)
	if err != nil {
		return -1, err
	}
	d := *f
	return s.alloc(&d), nil
}

func (s *Sys) SetNonblock(fd int, nonblocking bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.get("setnonblock", fd)
	if err != nil {
		return err
	}
	f.Nonblock = nonblocking
	return nil
}

// Poll reports read readiness when data or connections are queued and write
// readiness unless NotWritable is set. It never sleeps.
func (s *Sys) Poll(fd int, dir socket.Direction, timeout time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Polls++
	f, err := s.get("poll", fd)
	if err != nil {
		return false, err
	}
	if dir == socket.DirWrite {
		return !s.NotWritable, nil
	}
	return len(f.Inbox) > 0 || len(f.Pending) > 0, nil
}

func (s *Sys) GetsockoptInt(fd, level, opt int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.get("getsockopt", fd)
	if err != nil {
		return 0, err
	}
	return f.IntOpts[[2]int{level, opt}], nil
}

func (s *Sys) SetsockoptInt(fd, level, opt, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.get("setsockopt", fd)
	if err != nil {
		return err
	}
	f.IntOpts[[2]int{level, opt}] = value
	return nil
}

func (s *Sys) GetsockoptBytes(fd, level, opt int, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.get("getsockopt", fd)
	if err != nil {
		return 0, err
	}
	v, ok := f.BytesOpts[[2]int{level, opt}]
	if !ok {
		return 0, unix.ENOPROTOOPT
	}
	return copy(buf, v), nil
}

func (s *Sys) SetsockoptBytes(fd, level, opt int, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Errs["setsockopt-bytes"]; err != nil {
		return err
	}
	f, err := s.get("setsockopt", fd)
	if err != nil {
		return err
	}
	f.BytesOpts[[2]int{level, opt}] = append([]byte(nil), buf...)
	return nil
}

package socket

import (
	"time"

	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// SetTimeout sets the timeout for subsequent operations. A negative value
// blocks indefinitely and zero makes the socket non-blocking. A positive value
// keeps the descriptor blocking and polls for readiness before each call.
func (s *Socket) SetTimeout(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return bterr.ErrClosed
	}
	return s.setTimeoutLocked(d)
}

func (s *Socket) setTimeoutLocked(d time.Duration) error {
	if d < 0 {
		d = Blocking
	}
	blocking := d != 0
	if err := s.sys.SetNonblock(s.fd, !blocking); err != nil {
		return bterr.Sys("setblocking", err)
	}
	s.timeout = d
	s.blocking = blocking
	return nil
}

func (s *Socket) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

// SetBlocking(true) is SetTimeout(Blocking) and SetBlocking(false) is
// SetTimeout(0).
func (s *Socket) SetBlocking(blocking bool) error {
	if blocking {
		return s.SetTimeout(Blocking)
	}
	return s.SetTimeout(0)
}

func (s *Socket) Blocking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocking
}

func (s *Socket) pollBefore(op string, fd int, timeout time.Duration, dir Direction) error {
	if timeout <= 0 {
		return nil
	}
	return s.waitUntil(op, fd, dir, time.Now().Add(timeout))
}

func (s *Socket) waitUntil(op string, fd int, dir Direction, deadline time.Time) error {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errors.Wrap(bterr.ErrTimedOut, op)
		}
		ready, err := s.sys.Poll(fd, dir, remaining)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return bterr.Sys("poll", err)
		}
		if !ready {
			return errors.Wrap(bterr.ErrTimedOut, op)
		}
		return nil
	}
}

package socket

import (
	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Registration is a service record held in a service database.
type Registration interface {
	Handle() uint32
	// Close removes the record and releases the session that holds it.
	Close() error
}

type AdvertiseState int

const (
	Unregistered AdvertiseState = iota
	Registering
	Registered
	Deregistering
)

func (s AdvertiseState) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registering:
		return "registering"
	case Registered:
		return "registered"
	case Deregistering:
		return "deregistering"
	}
	return "unknown"
}

func (s *Socket) AdvertiseState() AdvertiseState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RecordHandle returns the handle of the advertised record.
func (s *Socket) RecordHandle() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Registered {
		return 0, false
	}
	return s.reg.Handle(), true
}

// CheckAdvertise reports why the socket cannot be advertised.
func (s *Socket) CheckAdvertise() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkAdvertiseLocked()
}

func (s *Socket) checkAdvertiseLocked() error {
	if s.fd < 0 {
		return bterr.ErrClosed
	}
	if !s.listening {
		return bterr.ErrNotListening
	}
	if s.proto != btaddr.ProtocolL2CAP && s.proto != btaddr.ProtocolRFCOMM {
		return errors.Wrapf(bterr.ErrUnsupportedProtocol, "advertising %v", s.proto)
	}
	if s.state != Unregistered {
		return bterr.ErrAlreadyRegistered
	}
	return nil
}

// Advertise runs register and ties the returned registration to the socket.
// If register fails the socket stays unregistered.
func (s *Socket) Advertise(register func() (Registration, error)) error {
	s.mu.Lock()
	if err := s.checkAdvertiseLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = Registering
	s.mu.Unlock()

	reg, err := register()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = Unregistered
		return err
	}
	if s.fd < 0 {
		// closed while registering
		s.state = Unregistered
		return multierr.Append(bterr.ErrClosed, reg.Close())
	}
	s.reg = reg
	s.state = Registered
	s.log.Info("advertising", zap.Uint32("handle", reg.Handle()))
	return nil
}

func (s *Socket) StopAdvertising() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Registered {
		return bterr.ErrNotAdvertising
	}
	return s.deregisterLocked()
}

func (s *Socket) deregisterLocked() error {
	s.state = Deregistering
	handle := s.reg.Handle()
	err := s.reg.Close()
	s.reg = nil
	s.state = Unregistered
	if err != nil {
		return errors.Wrap(err, "stop advertising")
	}
	s.log.Info("stopped advertising", zap.Uint32("handle", handle))
	return nil
}

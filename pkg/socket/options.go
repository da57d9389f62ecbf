package socket

import (
	"encoding/binary"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	solBluetooth = 274
	btSecurity   = 4

	solL2CAP     = 6
	l2capOptions = 1
	l2capLM      = 3

	solRFCOMM = 18
	rfcommLM  = 3
)

// Link mode bits shared by L2CAP_LM and RFCOMM_LM.
const (
	LinkModeMaster   = 0x0001
	LinkModeAuth     = 0x0002
	LinkModeEncrypt  = 0x0004
	LinkModeTrusted  = 0x0008
	LinkModeReliable = 0x0010
	LinkModeSecure   = 0x0020
)

type SecurityLevel uint8

const (
	SecuritySDP    SecurityLevel = 0
	SecurityLow    SecurityLevel = 1
	SecurityMedium SecurityLevel = 2
	SecurityHigh   SecurityLevel = 3
	SecurityFIPS   SecurityLevel = 4
)

func (l SecurityLevel) linkMode() int {
	switch l {
	case SecuritySDP:
		return 0
	case SecurityLow:
		return LinkModeAuth
	case SecurityMedium:
		return LinkModeAuth | LinkModeEncrypt
	}
	return LinkModeAuth | LinkModeEncrypt | LinkModeSecure
}

func (s *Socket) linkModeOpt() (int, int, error) {
	switch s.proto {
	case btaddr.ProtocolL2CAP:
		return solL2CAP, l2capLM, nil
	case btaddr.ProtocolRFCOMM:
		return solRFCOMM, rfcommLM, nil
	}
	return 0, 0, errors.Wrapf(bterr.ErrUnsupportedProtocol, "security on %v", s.proto)
}

// SetSecurity sets BT_SECURITY, falling back to the link mode option on
// kernels that lack it.
func (s *Socket) SetSecurity(level SecurityLevel) error {
	lvl, opt, err := s.linkModeOpt()
	if err != nil {
		return err
	}
	fd, _, err := s.snapshot()
	if err != nil {
		return err
	}
	err = s.sys.SetsockoptBytes(fd, solBluetooth, btSecurity, []byte{byte(level), 0})
	if err == nil {
		return nil
	}
	if err != unix.ENOPROTOOPT {
		return bterr.Sys("setsockopt", err)
	}
	s.log.Debug("BT_SECURITY unsupported, using link mode")
	return bterr.Sys("setsockopt", s.sys.SetsockoptInt(fd, lvl, opt, level.linkMode()))
}

func (s *Socket) Security() (SecurityLevel, error) {
	if _, _, err := s.linkModeOpt(); err != nil {
		return 0, err
	}
	b, err := s.GetsockoptBytes(solBluetooth, btSecurity, 2)
	if err != nil {
		return 0, err
	}
	return SecurityLevel(b[0]), nil
}

// L2CAPOptions mirrors struct l2cap_options.
type L2CAPOptions struct {
	OutMTU       uint16
	InMTU        uint16
	FlushTimeout uint16
	Mode         uint8
	FCS          uint8
	MaxTX        uint8
	TxWindowSize uint16
}

const l2capOptionsLen = 12

func (o *L2CAPOptions) marshal() []byte {
	buf := make([]byte, l2capOptionsLen)
	binary.NativeEndian.PutUint16(buf[0:], o.OutMTU)
	binary.NativeEndian.PutUint16(buf[2:], o.InMTU)
	binary.NativeEndian.PutUint16(buf[4:], o.FlushTimeout)
	buf[6] = o.Mode
	buf[7] = o.FCS
	buf[8] = o.MaxTX
	binary.NativeEndian.PutUint16(buf[10:], o.TxWindowSize)
	return buf
}

func (o *L2CAPOptions) unmarshal(buf []byte) error {
	if len(buf) < l2capOptionsLen {
		return errors.Errorf("short l2cap options (%d bytes)", len(buf))
	}
	o.OutMTU = binary.NativeEndian.Uint16(buf[0:])
	o.InMTU = binary.NativeEndian.Uint16(buf[2:])
	o.FlushTimeout = binary.NativeEndian.Uint16(buf[4:])
	o.Mode = buf[6]
	o.FCS = buf[7]
	o.MaxTX = buf[8]
	o.TxWindowSize = binary.NativeEndian.Uint16(buf[10:])
	return nil
}

func (s *Socket) L2CAPOptions() (L2CAPOptions, error) {
	var o L2CAPOptions
	if s.proto != btaddr.ProtocolL2CAP {
		return o, errors.Wrapf(bterr.ErrUnsupportedProtocol, "l2cap options on %v", s.proto)
	}
	b, err := s.GetsockoptBytes(solL2CAP, l2capOptions, l2capOptionsLen)
	if err != nil {
		return o, err
	}
	err = o.unmarshal(b)
	return o, err
}

func (s *Socket) SetL2CAPOptions(o L2CAPOptions) error {
	if s.proto != btaddr.ProtocolL2CAP {
		return errors.Wrapf(bterr.ErrUnsupportedProtocol, "l2cap options on %v", s.proto)
	}
	return s.SetsockoptBytes(solL2CAP, l2capOptions, o.marshal())
}

// SetL2CAPMTU sets both the incoming and outgoing MTU.
func (s *Socket) SetL2CAPMTU(mtu uint16) error {
	o, err := s.L2CAPOptions()
	if err != nil {
		return err
	}
	o.InMTU = mtu
	o.OutMTU = mtu
	return s.SetL2CAPOptions(o)
}

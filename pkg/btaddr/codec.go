package btaddr

import (
	"encoding/binary"

	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Codec translates one protocol's addresses to and from the kernel sockaddr.
type Codec interface {
	Protocol() Protocol
	// Len is the size of the sockaddr record.
	Len() int
	Encode(Address) ([]byte, error)
	// Decode returns a nil Address for empty input.
	Decode([]byte) (Address, error)
}

var codecs = map[Protocol]Codec{
	ProtocolHCI:    hciCodec{},
	ProtocolL2CAP:  l2capCodec{},
	ProtocolRFCOMM: rfcommCodec{},
	ProtocolSCO:    scoCodec{},
}

func CodecFor(p Protocol) (Codec, error) {
	c, ok := codecs[p]
	if !ok {
		return nil, errors.Wrapf(bterr.ErrUnsupportedProtocol, "%v", p)
	}
	return c, nil
}

func Encode(p Protocol, a Address) ([]byte, error) {
	c, err := CodecFor(p)
	if err != nil {
		return nil, err
	}
	return c.Encode(a)
}

func Decode(p Protocol, b []byte) (Address, error) {
	c, err := CodecFor(p)
	if err != nil {
		return nil, err
	}
	return c.Decode(b)
}

func WireLen(p Protocol) (int, error) {
	c, err := CodecFor(p)
	if err != nil {
		return 0, err
	}
	return c.Len(), nil
}

func newSockaddr(n int) []byte {
	buf := make([]byte, n)
	binary.NativeEndian.PutUint16(buf, unix.AF_BLUETOOTH)
	return buf
}

func checkSockaddr(b []byte, n int) error {
	if len(b) < n {
		return errors.Wrapf(bterr.ErrInvalidAddress, "short sockaddr (%d < %d)", len(b), n)
	}
	if binary.NativeEndian.Uint16(b) != unix.AF_BLUETOOTH {
		return errors.Wrapf(bterr.ErrInvalidAddress, "address family %d", binary.NativeEndian.Uint16(b))
	}
	return nil
}

func mismatch(p Protocol, a Address) error {
	return errors.Wrapf(bterr.ErrInvalidAddress, "%T is not a %v address", a, p)
}

// sockaddr_hci: family, dev, channel.
type hciCodec struct{}

func (hciCodec) Protocol() Protocol { return ProtocolHCI }
func (hciCodec) Len() int           { return 6 }

func (c hciCodec) Encode(a Address) ([]byte, error) {
	h, ok := a.(HCIAddr)
	if !ok {
		return nil, mismatch(ProtocolHCI, a)
	}
	if h.Dev < DevNone || h.Dev >= 0xffff {
		return nil, errors.Wrapf(bterr.ErrInvalidAddress, "device %d", h.Dev)
	}
	buf := newSockaddr(c.Len())
	binary.NativeEndian.PutUint16(buf[2:], uint16(h.Dev))
	binary.NativeEndian.PutUint16(buf[4:], h.Channel)
	return buf, nil
}

func (c hciCodec) Decode(b []byte) (Address, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if err := checkSockaddr(b, c.Len()); err != nil {
		return nil, err
	}
	dev := int(binary.NativeEndian.Uint16(b[2:]))
	if dev == 0xffff {
		dev = DevNone
	}
	return HCIAddr{Dev: dev, Channel: binary.NativeEndian.Uint16(b[4:])}, nil
}

// sockaddr_l2: family, psm (le), bdaddr, cid (le), bdaddr_type.
type l2capCodec struct{}

func (l2capCodec) Protocol() Protocol { return ProtocolL2CAP }
func (l2capCodec) Len() int           { return 14 }

func (c l2capCodec) Encode(a Address) ([]byte, error) {
	l, ok := a.(L2CAPAddr)
	if !ok {
		return nil, mismatch(ProtocolL2CAP, a)
	}
	if l.PSM&1 == 0 {
		return nil, errors.Wrapf(bterr.ErrInvalidAddress, "psm 0x%04x must be odd", l.PSM)
	}
	bd, err := ParseBDAddr(l.Host)
	if err != nil {
		return nil, err
	}
	buf := newSockaddr(c.Len())
	binary.LittleEndian.PutUint16(buf[2:], l.PSM)
	copy(buf[4:10], bd[:])
	return buf, nil
}

func (c l2capCodec) Decode(b []byte) (Address, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if err := checkSockaddr(b, c.Len()); err != nil {
		return nil, err
	}
	var bd BDAddr
	copy(bd[:], b[4:10])
	return L2CAPAddr{Host: bd.String(), PSM: binary.LittleEndian.Uint16(b[2:])}, nil
}

// sockaddr_rc: family, bdaddr, channel.
type rfcommCodec struct{}

func (rfcommCodec) Protocol() Protocol { return ProtocolRFCOMM }
func (rfcommCodec) Len() int           { return 10 }

func (c rfcommCodec) Encode(a Address) ([]byte, error) {
	r, ok := a.(RFCOMMAddr)
	if !ok {
		return nil, mismatch(ProtocolRFCOMM, a)
	}
	bd, err := ParseBDAddr(r.Host)
	if err != nil {
		return nil, err
	}
	buf := newSockaddr(c.Len())
	copy(buf[2:8], bd[:])
	buf[8] = r.Channel
	return buf, nil
}

func (c rfcommCodec) Decode(b []byte) (Address, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if err := checkSockaddr(b, c.Len()); err != nil {
		return nil, err
	}
	var bd BDAddr
	copy(bd[:], b[2:8])
	return RFCOMMAddr{Host: bd.String(), Channel: b[8]}, nil
}

// sockaddr_sco: family, bdaddr.
type scoCodec struct{}

func (scoCodec) Protocol() Protocol { return ProtocolSCO }
func (scoCodec) Len() int           { return 8 }

func (c scoCodec) Encode(a Address) ([]byte, error) {
	s, ok := a.(SCOAddr)
	if !ok {
		return nil, mismatch(ProtocolSCO, a)
	}
	bd, err := ParseBDAddr(s.Host)
	if err != nil {
		return nil, err
	}
	buf := newSockaddr(c.Len())
	copy(buf[2:8], bd[:])
	return buf, nil
}

func (c scoCodec) Decode(b []byte) (Address, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if err := checkSockaddr(b, c.Len()); err != nil {
		return nil, err
	}
	var bd BDAddr
	copy(bd[:], b[2:8])
	return SCOAddr{Host: bd.String()}, nil
}

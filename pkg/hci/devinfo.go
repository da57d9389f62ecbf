package hci

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/muxable/btsocket/pkg/btaddr"
)

// DevFlags are the HCI_* device state bits reported by HCIGETDEVINFO.
type DevFlags uint32

const (
	DevUp      DevFlags = 1 << 0
	DevInit    DevFlags = 1 << 1
	DevRunning DevFlags = 1 << 2
	DevPScan   DevFlags = 1 << 3
	DevIScan   DevFlags = 1 << 4
	DevAuth    DevFlags = 1 << 5
	DevEncrypt DevFlags = 1 << 6
	DevInquiry DevFlags = 1 << 7
	DevRaw     DevFlags = 1 << 8
)

// Has reports whether every flag in want is set.
func (f DevFlags) Has(want DevFlags) bool {
	return f&want == want
}

var devFlagNames = []struct {
	f    DevFlags
	name string
}{
	{DevUp, "UP"},
	{DevInit, "INIT"},
	{DevRunning, "RUNNING"},
	{DevPScan, "PSCAN"},
	{DevIScan, "ISCAN"},
	{DevAuth, "AUTH"},
	{DevEncrypt, "ENCRYPT"},
	{DevInquiry, "INQUIRY"},
	{DevRaw, "RAW"},
}

func (f DevFlags) String() string {
	var names []string
	for _, n := range devFlagNames {
		if f&n.f != 0 {
			names = append(names, n.name)
		}
	}
	if f&DevUp == 0 {
		names = append([]string{"DOWN"}, names...)
	}
	return strings.Join(names, " ")
}

type DevStats struct {
	ErrRx, ErrTx               uint32
	CmdTx, EvtRx               uint32
	ACLTx, ACLRx, SCOTx, SCORx uint32
	ByteRx, ByteTx             uint32
}

// DevInfo mirrors struct hci_dev_info.
type DevInfo struct {
	ID         uint16
	Name       string
	Addr       btaddr.BDAddr
	Flags      DevFlags
	Type       uint8
	Features   [8]byte
	PacketType uint32
	LinkPolicy uint32
	LinkMode   uint32
	ACLMTU     uint16
	ACLPackets uint16
	SCOMTU     uint16
	SCOPackets uint16
	Stats      DevStats
}

const devInfoSize = 92

func (d *DevInfo) MarshalBinary() ([]byte, error) {
	buf := make([]byte, devInfoSize)
	binary.NativeEndian.PutUint16(buf[0:], d.ID)
	copy(buf[2:10], d.Name)
	copy(buf[10:16], d.Addr[:])
	binary.NativeEndian.PutUint32(buf[16:], uint32(d.Flags))
	buf[20] = d.Type
	copy(buf[21:29], d.Features[:])
	binary.NativeEndian.PutUint32(buf[32:], d.PacketType)
	binary.NativeEndian.PutUint32(buf[36:], d.LinkPolicy)
	binary.NativeEndian.PutUint32(buf[40:], d.LinkMode)
	binary.NativeEndian.PutUint16(buf[44:], d.ACLMTU)
	binary.NativeEndian.PutUint16(buf[46:], d.ACLPackets)
	binary.NativeEndian.PutUint16(buf[48:], d.SCOMTU)
	binary.NativeEndian.PutUint16(buf[50:], d.SCOPackets)
	for i, v := range d.Stats.slice() {
		binary.NativeEndian.PutUint32(buf[52+i*4:], v)
	}
	return buf, nil
}

func (d *DevInfo) UnmarshalBinary(buf []byte) error {
	if len(buf) < devInfoSize {
		return io.ErrShortBuffer
	}
	d.ID = binary.NativeEndian.Uint16(buf[0:])
	d.Name = cString(buf[2:10])
	copy(d.Addr[:], buf[10:16])
	d.Flags = DevFlags(binary.NativeEndian.Uint32(buf[16:]))
	d.Type = buf[20]
	copy(d.Features[:], buf[21:29])
	d.PacketType = binary.NativeEndian.Uint32(buf[32:])
	d.LinkPolicy = binary.NativeEndian.Uint32(buf[36:])
	d.LinkMode = binary.NativeEndian.Uint32(buf[40:])
	d.ACLMTU = binary.NativeEndian.Uint16(buf[44:])
	d.ACLPackets = binary.NativeEndian.Uint16(buf[46:])
	d.SCOMTU = binary.NativeEndian.Uint16(buf[48:])
	d.SCOPackets = binary.NativeEndian.Uint16(buf[50:])
	var s [10]uint32
	for i := range s {
		s[i] = binary.NativeEndian.Uint32(buf[52+i*4:])
	}
	d.Stats = DevStats{s[0], s[1], s[2], s[3], s[4], s[5], s[6], s[7], s[8], s[9]}
	return nil
}

func (s DevStats) slice() []uint32 {
	return []uint32{s.ErrRx, s.ErrTx, s.CmdTx, s.EvtRx, s.ACLTx, s.ACLRx, s.SCOTx, s.SCORx, s.ByteRx, s.ByteTx}
}

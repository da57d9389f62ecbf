package hci

import "encoding/binary"

// Filter mirrors struct hci_filter: which packet types and events a raw
// socket receives.
type Filter struct {
	TypeMask  uint32
	EventMask [2]uint32
	Opcode    Opcode
}

const filterSize = 16

func (f *Filter) SetPacketType(t PacketType) {
	f.TypeMask |= 1 << (uint32(t) & 31)
}

func (f *Filter) SetEvent(e EventCode) {
	f.EventMask[e>>5] |= 1 << (uint32(e) & 31)
}

func (f *Filter) SetAllEvents() {
	f.EventMask = [2]uint32{0xffffffff, 0xffffffff}
}

func (f *Filter) Marshal() []byte {
	buf := make([]byte, filterSize)
	binary.NativeEndian.PutUint32(buf[0:], f.TypeMask)
	binary.NativeEndian.PutUint32(buf[4:], f.EventMask[0])
	binary.NativeEndian.PutUint32(buf[8:], f.EventMask[1])
	binary.NativeEndian.PutUint16(buf[12:], uint16(f.Opcode))
	return buf
}

func (f *Filter) Unmarshal(buf []byte) error {
	if len(buf) < filterSize {
		return errIncorrectPacket
	}
	f.TypeMask = binary.NativeEndian.Uint32(buf[0:])
	f.EventMask[0] = binary.NativeEndian.Uint32(buf[4:])
	f.EventMask[1] = binary.NativeEndian.Uint32(buf[8:])
	f.Opcode = Opcode(binary.NativeEndian.Uint16(buf[12:]))
	return nil
}

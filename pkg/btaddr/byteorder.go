package btaddr

import "encoding/binary"

// Bluetooth multi-byte fields are little endian on the wire. These convert
// between host order and wire order the same way htons and friends do for IP.

func Htobs(v uint16) uint16 {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return binary.NativeEndian.Uint16(b[:])
}

func Btohs(v uint16) uint16 {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], v)
	return binary.LittleEndian.Uint16(b[:])
}

func Htobl(v uint32) uint32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return binary.NativeEndian.Uint32(b[:])
}

func Btohl(v uint32) uint32 {
	var b [4]byte
	binary.NativeEndian.PutUint32(b[:], v)
	return binary.LittleEndian.Uint32(b[:])
}

// Package btuuid parses and formats Bluetooth UUIDs in their 16, 32 and
// 128-bit forms.
package btuuid

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
)

type Width uint8

const (
	Width16  Width = 16
	Width32  Width = 32
	Width128 Width = 128
)

// Base is the Bluetooth base UUID that short forms are aliases into.
var Base = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// UUID keeps the width it was written with. The zero value is invalid.
type UUID struct {
	width Width
	short uint32
	long  uuid.UUID
}

func From16(v uint16) UUID { return UUID{width: Width16, short: uint32(v)} }

func From32(v uint32) UUID { return UUID{width: Width32, short: v} }

func From128(u uuid.UUID) UUID { return UUID{width: Width128, long: u} }

// Parse dispatches on length: 4 and 8 hex digits, or the 36 character dashed form.
func Parse(s string) (UUID, error) {
	switch len(s) {
	case 4:
		v, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return UUID{}, errors.Wrapf(bterr.ErrInvalidUUID, "%q", s)
		}
		return From16(uint16(v)), nil
	case 8:
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return UUID{}, errors.Wrapf(bterr.ErrInvalidUUID, "%q", s)
		}
		return From32(uint32(v)), nil
	case 36:
		if s[8] != '-' || s[13] != '-' || s[18] != '-' || s[23] != '-' {
			return UUID{}, errors.Wrapf(bterr.ErrInvalidUUID, "%q", s)
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return UUID{}, errors.Wrapf(bterr.ErrInvalidUUID, "%q", s)
		}
		return From128(u), nil
	}
	return UUID{}, errors.Wrapf(bterr.ErrInvalidUUID, "%q has length %d", s, len(s))
}

func MustParse(s string) UUID {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

func (u UUID) Width() Width { return u.width }

func (u UUID) IsZero() bool { return u.width == 0 }

func (u UUID) String() string {
	switch u.width {
	case Width16:
		return fmt.Sprintf("%04X", u.short)
	case Width32:
		return fmt.Sprintf("%08X", u.short)
	case Width128:
		return strings.ToUpper(u.long.String())
	}
	return ""
}

// Short returns the 16 or 32-bit value. It is 0 for 128-bit UUIDs.
func (u UUID) Short() uint32 { return u.short }

// Long expands short forms into the base UUID.
func (u UUID) Long() uuid.UUID {
	if u.width == Width128 {
		return u.long
	}
	l := Base
	binary.BigEndian.PutUint32(l[:4], u.short)
	return l
}

// Bytes is the network order encoding at the UUID's own width.
func (u UUID) Bytes() []byte {
	switch u.width {
	case Width16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(u.short))
		return b
	case Width32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, u.short)
		return b
	case Width128:
		b := make([]byte, 16)
		copy(b, u.long[:])
		return b
	}
	return nil
}

// FromBytes is the inverse of Bytes.
func FromBytes(b []byte) (UUID, error) {
	switch len(b) {
	case 2:
		return From16(binary.BigEndian.Uint16(b)), nil
	case 4:
		return From32(binary.BigEndian.Uint32(b)), nil
	case 16:
		var u uuid.UUID
		copy(u[:], b)
		return From128(u), nil
	}
	return UUID{}, errors.Wrapf(bterr.ErrInvalidUUID, "%d bytes", len(b))
}

// Equivalent compares UUIDs after expanding them into the base UUID.
func (u UUID) Equivalent(v UUID) bool {
	return u.Long() == v.Long()
}

func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *UUID) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

package btaddr

import (
	"fmt"

	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
)

// BDAddr is a device address in wire order, least significant byte first.
type BDAddr [6]byte

var (
	BDAddrAny   = BDAddr{}
	BDAddrLocal = BDAddr{0, 0, 0, 0xff, 0xff, 0xff}
)

// ParseBDAddr parses the colon separated form "01:23:45:67:89:AB".
func ParseBDAddr(s string) (BDAddr, error) {
	var a BDAddr
	if len(s) != 17 {
		return a, errors.Wrapf(bterr.ErrInvalidAddress, "%q", s)
	}
	for i := 0; i < 6; i++ {
		if i > 0 && s[i*3-1] != ':' {
			return a, errors.Wrapf(bterr.ErrInvalidAddress, "%q", s)
		}
		hi, ok1 := unhex(s[i*3])
		lo, ok2 := unhex(s[i*3+1])
		if !ok1 || !ok2 {
			return a, errors.Wrapf(bterr.ErrInvalidAddress, "%q", s)
		}
		a[5-i] = hi<<4 | lo
	}
	return a, nil
}

func MustParseBDAddr(s string) BDAddr {
	a, err := ParseBDAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a BDAddr) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[5], a[4], a[3], a[2], a[1], a[0])
}

func (a BDAddr) IsAny() bool {
	return a == BDAddrAny
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

package hci

import (
	"encoding/binary"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
)

// Link types of hci_conn_info.
const (
	LinkSCO  uint8 = 0x00
	LinkACL  uint8 = 0x01
	LinkESCO uint8 = 0x02
)

// hci_conn_info_req: bdaddr, type, padding, then hci_conn_info.
const (
	connInfoOffset  = 8
	connInfoSize    = 16
	connInfoReqSize = connInfoOffset + connInfoSize
)

// ConnInfo describes one baseband connection the kernel tracks.
type ConnInfo struct {
	Handle   uint16
	Addr     btaddr.BDAddr
	Type     uint8
	Out      bool
	State    uint16
	LinkMode uint32
}

func (c *ConnInfo) UnmarshalBinary(buf []byte) error {
	if len(buf) < connInfoSize {
		return errIncorrectPacket
	}
	c.Handle = binary.NativeEndian.Uint16(buf[0:])
	copy(c.Addr[:], buf[2:8])
	c.Type = buf[8]
	c.Out = buf[9] != 0
	c.State = binary.NativeEndian.Uint16(buf[10:])
	c.LinkMode = binary.NativeEndian.Uint32(buf[12:])
	return nil
}

// GetConnInfo looks up the connection of the given link type to addr. ctl
// must be bound to the controller carrying the link, such as a *Socket.
func GetConnInfo(ctl Ioctler, addr btaddr.BDAddr, linkType uint8) (*ConnInfo, error) {
	buf := make([]byte, connInfoReqSize)
	copy(buf, addr[:])
	buf[6] = linkType
	if err := ctl.IoctlBuffer(hciGetConnInfo, buf); err != nil {
		return nil, bterr.Sys("HCIGETCONNINFO "+addr.String(), err)
	}
	c := &ConnInfo{}
	if err := c.UnmarshalBinary(buf[connInfoOffset:]); err != nil {
		return nil, err
	}
	return c, nil
}

// ConnHandle returns the handle of the ACL connection to addr.
func ConnHandle(ctl Ioctler, addr btaddr.BDAddr) (uint16, error) {
	c, err := GetConnInfo(ctl, addr, LinkACL)
	if err != nil {
		return 0, err
	}
	return c.Handle, nil
}

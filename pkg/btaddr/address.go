// Package btaddr converts Bluetooth socket addresses between their Go form and
// the sockaddr records the kernel expects for each protocol.
package btaddr

import (
	"fmt"
)

type Protocol int

// Values match the kernel BTPROTO_* numbers.
const (
	ProtocolL2CAP  Protocol = 0
	ProtocolHCI    Protocol = 1
	ProtocolSCO    Protocol = 2
	ProtocolRFCOMM Protocol = 3
)

func (p Protocol) String() string {
	switch p {
	case ProtocolL2CAP:
		return "l2cap"
	case ProtocolHCI:
		return "hci"
	case ProtocolSCO:
		return "sco"
	case ProtocolRFCOMM:
		return "rfcomm"
	}
	return fmt.Sprintf("protocol(%d)", int(p))
}

// ParseProtocol accepts the names returned by Protocol.String.
func ParseProtocol(s string) (Protocol, bool) {
	for _, p := range []Protocol{ProtocolL2CAP, ProtocolHCI, ProtocolSCO, ProtocolRFCOMM} {
		if p.String() == s {
			return p, true
		}
	}
	return 0, false
}

// Address is one of HCIAddr, L2CAPAddr, RFCOMMAddr or SCOAddr.
type Address interface {
	Protocol() Protocol
	String() string
}

// DevNone selects no particular controller.
const DevNone = -1

const (
	HCIChannelRaw     uint16 = 0
	HCIChannelUser    uint16 = 1
	HCIChannelMonitor uint16 = 2
	HCIChannelControl uint16 = 3
)

type HCIAddr struct {
	Dev     int
	Channel uint16
}

func (a HCIAddr) Protocol() Protocol { return ProtocolHCI }

func (a HCIAddr) String() string {
	if a.Dev == DevNone {
		return fmt.Sprintf("hci-any/%d", a.Channel)
	}
	return fmt.Sprintf("hci%d/%d", a.Dev, a.Channel)
}

type L2CAPAddr struct {
	Host string
	PSM  uint16
}

func (a L2CAPAddr) Protocol() Protocol { return ProtocolL2CAP }

func (a L2CAPAddr) String() string {
	return fmt.Sprintf("%s/0x%04x", a.Host, a.PSM)
}

type RFCOMMAddr struct {
	Host    string
	Channel uint8
}

func (a RFCOMMAddr) Protocol() Protocol { return ProtocolRFCOMM }

func (a RFCOMMAddr) String() string {
	return fmt.Sprintf("%s/%d", a.Host, a.Channel)
}

type SCOAddr struct {
	Host string
}

func (a SCOAddr) Protocol() Protocol { return ProtocolSCO }

func (a SCOAddr) String() string {
	return a.Host
}

// Host returns the device address carried by a, if any.
func Host(a Address) (string, bool) {
	switch a := a.(type) {
	case L2CAPAddr:
		return a.Host, true
	case RFCOMMAddr:
		return a.Host, true
	case SCOAddr:
		return a.Host, true
	}
	return "", false
}

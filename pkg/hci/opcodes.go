package hci

import "fmt"

// Bluetooth Core Specification, Vol 4, Part E, Section 5.4 and 7.

type PacketType uint8

const (
	PacketTypeCommand         PacketType = 0x01
	PacketTypeACLData         PacketType = 0x02
	PacketTypeSynchronousData PacketType = 0x03
	PacketTypeEvent           PacketType = 0x04
	PacketTypeExtendedCommand PacketType = 0x09
)

// Opcode packs a 6 bit group (OGF) and a 10 bit command (OCF).
type Opcode uint16

const (
	OGFLinkControl    uint16 = 0x01
	OGFLinkPolicy     uint16 = 0x02
	OGFHostController uint16 = 0x03
	OGFInfoParam      uint16 = 0x04
	OGFStatusParam    uint16 = 0x05
)

const (
	OpcodeInquiry           Opcode = 0x0401
	OpcodeInquiryCancel     Opcode = 0x0402
	OpcodeRemoteNameRequest Opcode = 0x0419
	OpcodeReset             Opcode = 0x0C03
	OpcodeReadLocalName     Opcode = 0x0C14
	OpcodeReadClassOfDevice Opcode = 0x0C23
	OpcodeReadFlushTimeout  Opcode = 0x0C27
	OpcodeWriteFlushTimeout Opcode = 0x0C28
	OpcodeReadInquiryMode   Opcode = 0x0C44
	OpcodeWriteInquiryMode  Opcode = 0x0C45
	OpcodeReadLocalVersion  Opcode = 0x1001
	OpcodeReadBDAddr        Opcode = 0x1009
)

var opcodeNames = map[Opcode]string{
	OpcodeInquiry:           "Inquiry",
	OpcodeInquiryCancel:     "Inquiry Cancel",
	OpcodeRemoteNameRequest: "Remote Name Request",
	OpcodeReset:             "Reset",
	OpcodeReadLocalName:     "Read Local Name",
	OpcodeReadClassOfDevice: "Read Class of Device",
	OpcodeReadFlushTimeout:  "Read Automatic Flush Timeout",
	OpcodeWriteFlushTimeout: "Write Automatic Flush Timeout",
	OpcodeReadInquiryMode:   "Read Inquiry Mode",
	OpcodeWriteInquiryMode:  "Write Inquiry Mode",
	OpcodeReadLocalVersion:  "Read Local Version Information",
	OpcodeReadBDAddr:        "Read BD_ADDR",
}

func NewOpcode(ogf, ocf uint16) Opcode {
	return Opcode(ogf<<10 | ocf&0x03ff)
}

func (o Opcode) OGF() uint16 {
	return uint16(o) >> 10
}

func (o Opcode) OCF() uint16 {
	return uint16(o) & 0x03ff
}

func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("opcode 0x%04x", uint16(o))
}

type EventCode uint8

const (
	EventCodeInquiryComplete                      EventCode = 0x01
	EventCodeInquiryResult                        EventCode = 0x02
	EventCodeConnectionComplete                   EventCode = 0x03
	EventCodeConnectionRequest                    EventCode = 0x04
	EventCodeDisconnectionComplete                EventCode = 0x05
	EventCodeRemoteNameRequestComplete            EventCode = 0x07
	EventCodeEncryptionChange                     EventCode = 0x08
	EventCodeReadRemoteVersionInformationComplete EventCode = 0x0C
	EventCodeCommandComplete                      EventCode = 0x0E
	EventCodeCommandStatus                        EventCode = 0x0F
	EventCodeHardwareError                        EventCode = 0x10
	EventCodeNumberOfCompletedPackets             EventCode = 0x13
	EventCodeDataBufferOverflow                   EventCode = 0x1A
	EventCodeInquiryResultWithRSSI                EventCode = 0x22
	EventCodeExtendedInquiryResult                EventCode = 0x2F
	EventCodeEncryptionKeyRefreshComplete         EventCode = 0x30
	EventCodeLEMeta                               EventCode = 0x3E
)

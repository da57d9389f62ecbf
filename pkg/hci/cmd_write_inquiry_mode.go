package hci

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Section 7.3.50
type WriteInquiryModeCommandPacket struct {
	Mode InquiryMode
}

func (p *WriteInquiryModeCommandPacket) Marshal() ([]byte, error) {
	buf := make([]byte, 5)
	buf[0] = byte(PacketTypeCommand)
	binary.LittleEndian.PutUint16(buf[1:], uint16(OpcodeWriteInquiryMode))
	buf[3] = 1
	buf[4] = byte(p.Mode)
	return buf, nil
}

func (p *WriteInquiryModeCommandPacket) Unmarshal(buf []byte) error {
	if len(buf) < 4 || buf[0] != byte(PacketTypeCommand) || binary.LittleEndian.Uint16(buf[1:]) != uint16(OpcodeWriteInquiryMode) {
		return errIncorrectPacket
	}
	if buf[3] != 1 || len(buf) != 5 {
		return io.ErrShortBuffer
	}
	p.Mode = InquiryMode(buf[4])
	return nil
}

func (p *WriteInquiryModeCommandPacket) Opcode() Opcode {
	return OpcodeWriteInquiryMode
}

func (a *Adapter) WriteInquiryMode(mode InquiryMode) error {
	ctx, cancel := a.commandContext()
	defer cancel()
	_, err := a.exec(ctx, &WriteInquiryModeCommandPacket{Mode: mode})
	return err
}

func (a *Adapter) ReadInquiryMode() (InquiryMode, error) {
	ctx, cancel := a.commandContext()
	defer cancel()
	buf, err := a.exec(ctx, NewGenericCommandPacket(OpcodeReadInquiryMode))
	if err != nil {
		return 0, err
	}
	if len(buf) < 1 {
		return 0, errors.Wrap(errIncorrectPacket, "short inquiry mode")
	}
	return InquiryMode(buf[0]), nil
}

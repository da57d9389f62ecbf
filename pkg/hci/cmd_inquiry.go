package hci

import (
	"context"
	"encoding/binary"
	"io"
)

// Section 7.1.1
type InquiryCommandPacket struct {
	LAP          uint32
	Length       uint8
	NumResponses uint8
}

func (p *InquiryCommandPacket) Marshal() ([]byte, error) {
	buf := make([]byte, 9)
	buf[0] = byte(PacketTypeCommand)
	binary.LittleEndian.PutUint16(buf[1:], uint16(OpcodeInquiry))
	buf[3] = 5
	buf[4], buf[5], buf[6] = byte(p.LAP), byte(p.LAP>>8), byte(p.LAP>>16)
	buf[7] = p.Length
	buf[8] = p.NumResponses
	return buf, nil
}

func (p *InquiryCommandPacket) Unmarshal(buf []byte) error {
	if len(buf) < 4 || buf[0] != byte(PacketTypeCommand) || binary.LittleEndian.Uint16(buf[1:]) != uint16(OpcodeInquiry) {
		return errIncorrectPacket
	}
	if buf[3] != 5 || len(buf) != 9 {
		return io.ErrShortBuffer
	}
	p.LAP = uint32(buf[6])<<16 | uint32(buf[5])<<8 | uint32(buf[4])
	p.Length = buf[7]
	p.NumResponses = buf[8]
	return nil
}

func (p *InquiryCommandPacket) Opcode() Opcode {
	return OpcodeInquiry
}

// startInquiry begins an inquiry. Results arrive as events until Inquiry
// Complete.
func (a *Adapter) startInquiry(ctx context.Context, lap uint32, length, num uint8) error {
	return a.opStatus(ctx, &InquiryCommandPacket{LAP: lap, Length: length, NumResponses: num})
}

package hci

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Section 7.3.29
type ReadFlushTimeoutCommandPacket struct {
	Handle uint16
}

func (p *ReadFlushTimeoutCommandPacket) Marshal() ([]byte, error) {
	buf := make([]byte, 6)
	buf[0] = byte(PacketTypeCommand)
	binary.LittleEndian.PutUint16(buf[1:], uint16(OpcodeReadFlushTimeout))
	buf[3] = 2
	binary.LittleEndian.PutUint16(buf[4:], p.Handle)
	return buf, nil
}

func (p *ReadFlushTimeoutCommandPacket) Unmarshal(buf []byte) error {
	if len(buf) < 4 || buf[0] != byte(PacketTypeCommand) || binary.LittleEndian.Uint16(buf[1:]) != uint16(OpcodeReadFlushTimeout) {
		return errIncorrectPacket
	}
	if buf[3] != 2 || len(buf) != 6 {
		return io.ErrShortBuffer
	}
	p.Handle = binary.LittleEndian.Uint16(buf[4:])
	return nil
}

func (p *ReadFlushTimeoutCommandPacket) Opcode() Opcode {
	return OpcodeReadFlushTimeout
}

// ReadFlushTimeout returns the automatic flush timeout of an ACL connection,
// in units of 0.625ms. Zero means packets are never flushed.
func (a *Adapter) ReadFlushTimeout(handle uint16) (uint16, error) {
	ctx, cancel := a.commandContext()
	defer cancel()
	buf, err := a.exec(ctx, &ReadFlushTimeoutCommandPacket{Handle: handle})
	if err != nil {
		return 0, err
	}
	if len(buf) < 4 {
		return 0, errors.Wrap(errIncorrectPacket, "short flush timeout")
	}
	if h := binary.LittleEndian.Uint16(buf); h != handle {
		return 0, errors.Wrapf(errIncorrectPacket, "flush timeout for handle %d, want %d", h, handle)
	}
	return binary.LittleEndian.Uint16(buf[2:]), nil
}

package hci

import (
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FlushTimeoutUnit is the granularity of the automatic flush timeout.
const FlushTimeoutUnit = 625 * time.Microsecond

// MaxFlushTimeout is the largest value Write Automatic Flush Timeout accepts.
const MaxFlushTimeout = 0x07ff

// Section 7.3.30
type WriteFlushTimeoutCommandPacket struct {
	Handle  uint16
	Timeout uint16
}

func (p *WriteFlushTimeoutCommandPacket) Marshal() ([]byte, error) {
	buf := make([]byte, 8)
	buf[0] = byte(PacketTypeCommand)
	binary.LittleEndian.PutUint16(buf[1:], uint16(OpcodeWriteFlushTimeout))
	buf[3] = 4
	binary.LittleEndian.PutUint16(buf[4:], p.Handle)
	binary.LittleEndian.PutUint16(buf[6:], p.Timeout)
	return buf, nil
}

func (p *WriteFlushTimeoutCommandPacket) Unmarshal(buf []byte) error {
	if len(buf) < 4 || buf[0] != byte(PacketTypeCommand) || binary.LittleEndian.Uint16(buf[1:]) != uint16(OpcodeWriteFlushTimeout) {
		return errIncorrectPacket
	}
	if buf[3] != 4 || len(buf) != 8 {
		return io.ErrShortBuffer
	}
	p.Handle = binary.LittleEndian.Uint16(buf[4:])
	p.Timeout = binary.LittleEndian.Uint16(buf[6:])
	return nil
}

func (p *WriteFlushTimeoutCommandPacket) Opcode() Opcode {
	return OpcodeWriteFlushTimeout
}

func (a *Adapter) WriteFlushTimeout(handle, timeout uint16) error {
	if timeout > MaxFlushTimeout {
		return errors.Wrapf(bterr.ErrInvalidArgument, "flush timeout %d exceeds %d", timeout, MaxFlushTimeout)
	}
	ctx, cancel := a.commandContext()
	defer cancel()
	buf, err := a.exec(ctx, &WriteFlushTimeoutCommandPacket{Handle: handle, Timeout: timeout})
	if err != nil {
		return err
	}
	if len(buf) < 2 {
		return errors.Wrap(errIncorrectPacket, "short flush timeout reply")
	}
	if h := binary.LittleEndian.Uint16(buf); h != handle {
		return errors.Wrapf(errIncorrectPacket, "flush timeout written for handle %d, want %d", h, handle)
	}
	return nil
}

// SetPacketTimeout makes the controller drop data to addr that is not
// acknowledged within d. Zero keeps packets until they are delivered. The
// timeout applies to every L2CAP and RFCOMM channel to addr and needs an
// existing ACL connection. ctl must be bound to the same controller.
func (a *Adapter) SetPacketTimeout(ctl Ioctler, addr btaddr.BDAddr, d time.Duration) error {
	if d < 0 {
		return errors.Wrapf(bterr.ErrInvalidArgument, "packet timeout %v", d)
	}
	n := math.Round(float64(d) / float64(FlushTimeoutUnit))
	if n > MaxFlushTimeout {
		return errors.Wrapf(bterr.ErrInvalidArgument, "packet timeout %v exceeds %v", d, MaxFlushTimeout*FlushTimeoutUnit)
	}
	handle, err := ConnHandle(ctl, addr)
	if err != nil {
		return err
	}
	a.log.Debug("set packet timeout", zap.Stringer("addr", addr), zap.Uint16("handle", handle), zap.Float64("slots", n))
	return a.WriteFlushTimeout(handle, uint16(n))
}

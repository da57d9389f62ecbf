package hci

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
)

// Section 7.1.19
type RemoteNameRequestCommandPacket struct {
	Addr                   btaddr.BDAddr
	PageScanRepetitionMode PageScanRepetitionMode
	ClockOffset            uint16
}

func (p *RemoteNameRequestCommandPacket) Marshal() ([]byte, error) {
	buf := make([]byte, 14)
	buf[0] = byte(PacketTypeCommand)
	binary.LittleEndian.PutUint16(buf[1:], uint16(OpcodeRemoteNameRequest))
	buf[3] = 10
	copy(buf[4:10], p.Addr[:])
	buf[10] = byte(p.PageScanRepetitionMode)
	binary.LittleEndian.PutUint16(buf[12:], p.ClockOffset)
	return buf, nil
}

func (p *RemoteNameRequestCommandPacket) Unmarshal(buf []byte) error {
	if len(buf) < 4 || buf[0] != byte(PacketTypeCommand) || binary.LittleEndian.Uint16(buf[1:]) != uint16(OpcodeRemoteNameRequest) {
		return errIncorrectPacket
	}
	if buf[3] != 10 || len(buf) != 14 {
		return io.ErrShortBuffer
	}
	copy(p.Addr[:], buf[4:10])
	p.PageScanRepetitionMode = PageScanRepetitionMode(buf[10])
	p.ClockOffset = binary.LittleEndian.Uint16(buf[12:])
	return nil
}

func (p *RemoteNameRequestCommandPacket) Opcode() Opcode {
	return OpcodeRemoteNameRequest
}

// ReadRemoteName pages addr and returns its user friendly name. The mode and
// clock offset from an inquiry response speed up paging; zero values work.
func (a *Adapter) ReadRemoteName(ctx context.Context, addr btaddr.BDAddr, mode PageScanRepetitionMode, clockOffset uint16) (string, error) {
	type result struct {
		status uint8
		name   string
	}
	res := make(chan result, 1)
	cancel := a.subscribe(func(q Packet, err error) {
		if q, ok := q.(*RemoteNameRequestCompleteEventPacket); ok && q.Addr == addr {
			select {
			case res <- result{q.Status, q.Name}:
			default:
			}
		}
	})
	defer cancel()

	if clockOffset != 0 {
		// bit 15 marks the offset as valid
		clockOffset |= 0x8000
	}
	req := &RemoteNameRequestCommandPacket{
		Addr:                   addr,
		PageScanRepetitionMode: mode,
		ClockOffset:            clockOffset,
	}
	if err := a.opStatus(ctx, req); err != nil {
		return "", err
	}
	select {
	case r := <-res:
		if err := bterr.Status(OpcodeRemoteNameRequest.String(), r.status); err != nil {
			return "", errors.Wrapf(err, "%v", addr)
		}
		return r.name, nil
	case <-a.done:
		return "", a.closedErr()
	case <-ctx.Done():
		return "", ctxErr(ctx, OpcodeRemoteNameRequest.String())
	}
}

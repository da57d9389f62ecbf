package hci

import (
	"encoding/binary"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeCtl answers controller ioctls from canned state.
type fakeCtl struct {
	devs    []*DevInfo
	results []InquiryInfo
	upErr   error
	conns   []ConnInfo
	// reported overrides the response count written back by HCIINQUIRY.
	reported int

	reqs     []uintptr
	inquiry  []byte
	upCalled []int
}

func (f *fakeCtl) Ioctl(req, arg uintptr) error {
	f.reqs = append(f.reqs, req)
	if req == hciUpDevice {
		f.upCalled = append(f.upCalled, int(arg))
		return f.upErr
	}
	return nil
}

func (f *fakeCtl) IoctlBuffer(req uintptr, buf []byte) error {
	f.reqs = append(f.reqs, req)
	switch req {
	case hciGetDeviceList:
		binary.NativeEndian.PutUint16(buf, uint16(len(f.devs)))
		for i, d := range f.devs {
			binary.NativeEndian.PutUint16(buf[4+i*8:], d.ID)
			binary.NativeEndian.PutUint32(buf[4+i*8+4:], uint32(d.Flags))
		}
	case hciGetDeviceInfo:
		id := binary.NativeEndian.Uint16(buf)
		for _, d := range f.devs {
			if d.ID == id {
				b, err := d.MarshalBinary()
				if err != nil {
					return err
				}
				copy(buf, b)
				return nil
			}
		}
		return unix.ENODEV
	case hciInquiry:
		f.inquiry = append([]byte(nil), buf[:inquiryReqSize]...)
		n := min(len(f.results), int(buf[8]))
		buf[8] = byte(n)
		for i := 0; i < n; i++ {
			b, err := f.results[i].MarshalBinary()
			if err != nil {
				return err
			}
			copy(buf[inquiryReqSize+i*inquiryInfoSize:], b)
		}
		if f.reported > 0 {
			buf[8] = byte(f.reported)
		}
	case hciGetConnInfo:
		for _, c := range f.conns {
			if string(c.Addr[:]) != string(buf[:6]) || c.Type != buf[6] {
				continue
			}
			info := buf[connInfoOffset:]
			binary.NativeEndian.PutUint16(info[0:], c.Handle)
			copy(info[2:8], c.Addr[:])
			info[8] = c.Type
			if c.Out {
				info[9] = 1
			}
			binary.NativeEndian.PutUint16(info[10:], c.State)
			binary.NativeEndian.PutUint32(info[12:], c.LinkMode)
			return nil
		}
		return unix.ENOENT
	default:
		return unix.EINVAL
	}
	return nil
}

func (f *fakeCtl) count(req uintptr) int {
	n := 0
	for _, r := range f.reqs {
		if r == req {
			n++
		}
	}
	return n
}

// fakeController is a PacketConn that answers commands through handle.
// Replies are marshalled and decoded again as a real socket would.
type fakeController struct {
	t      *testing.T
	handle func(c *fakeController, cmd *GenericCommandPacket)

	mu      sync.Mutex
	written []Opcode

	events    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeController(t *testing.T, handle func(c *fakeController, cmd *GenericCommandPacket)) *fakeController {
	c := &fakeController{
		t:      t,
		handle: handle,
		events: make(chan []byte, 256),
		closed: make(chan struct{}),
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func (c *fakeController) ReadPacket() (Packet, error) {
	select {
	case b := <-c.events:
		return Unmarshal(b)
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeController) WritePacket(p Packet) error {
	buf, err := p.Marshal()
	require.NoError(c.t, err)
	cmd := &GenericCommandPacket{}
	require.NoError(c.t, cmd.Unmarshal(buf))
	c.mu.Lock()
	c.written = append(c.written, cmd.Opcode())
	c.mu.Unlock()
	if c.handle != nil {
		c.handle(c, cmd)
	}
	return nil
}

func (c *fakeController) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeController) send(p Packet) {
	buf, err := p.Marshal()
	require.NoError(c.t, err)
	c.events <- buf
}

func (c *fakeController) complete(op Opcode, params ...byte) {
	c.send(&CommandCompleteEventPacket{NumCommandPackets: 1, CommandOpcode: op, ReturnParameters: params})
}

func (c *fakeController) status(op Opcode, status uint8) {
	c.send(&CommandStatusEventPacket{Status: status, NumCommandPackets: 1, CommandOpcode: op})
}

func (c *fakeController) sent() []Opcode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Opcode(nil), c.written...)
}

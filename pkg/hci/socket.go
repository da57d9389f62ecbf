package hci

import (
	"fmt"
	"io"
	"math"
	"sync"
	"unsafe"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func ioR(t, nr, size uintptr) uintptr {
	return (2 << 30) | (t << 8) | nr | (size << 16)
}

func ioW(t, nr, size uintptr) uintptr {
	return (1 << 30) | (t << 8) | nr | (size << 16)
}

func ioctl(fd, op, arg uintptr) error {
	if _, _, ep := unix.Syscall(unix.SYS_IOCTL, fd, op, arg); ep != 0 {
		return ep
	}
	return nil
}

const (
	ioctlSize     = 4
	hciMaxDevices = 16
	typHCI        = 72 // 'H'

	solHCI    = 0
	hciFilter = 2
)

var (
	hciUpDevice      = ioW(typHCI, 201, ioctlSize) // HCIDEVUP
	hciDownDevice    = ioW(typHCI, 202, ioctlSize) // HCIDEVDOWN
	hciResetDevice   = ioW(typHCI, 203, ioctlSize) // HCIDEVRESET
	hciGetDeviceList = ioR(typHCI, 210, ioctlSize) // HCIGETDEVLIST
	hciGetDeviceInfo = ioR(typHCI, 211, ioctlSize) // HCIGETDEVINFO
	hciGetConnInfo   = ioR(typHCI, 213, ioctlSize) // HCIGETCONNINFO
	hciInquiry       = ioR(typHCI, 240, ioctlSize) // HCIINQUIRY
)

// Ioctler issues HCI control requests. arg is passed by value; buf by address.
type Ioctler interface {
	Ioctl(req uintptr, arg uintptr) error
	IoctlBuffer(req uintptr, buf []byte) error
}

// Ctl is an unbound raw HCI socket used for device control requests.
type Ctl struct {
	fd int
}

func OpenCtl() (*Ctl, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return nil, bterr.Sys("socket", err)
	}
	return &Ctl{fd: fd}, nil
}

func (c *Ctl) Ioctl(req uintptr, arg uintptr) error {
	return ioctl(uintptr(c.fd), req, arg)
}

func (c *Ctl) IoctlBuffer(req uintptr, buf []byte) error {
	return ioctl(uintptr(c.fd), req, uintptr(unsafe.Pointer(&buf[0])))
}

func (c *Ctl) Close() error {
	return unix.Close(c.fd)
}

// Socket is a raw HCI channel bound to one device. It sees every event the
// device reports, alongside the kernel.
type Socket struct {
	fd        int
	dev       int
	closed    chan struct{}
	closeOnce sync.Once
	rmu       sync.Mutex
	wmu       sync.Mutex
}

// NewSocket returns a raw channel on the specified device.
// If dev is btaddr.DevNone, the first device that is up is used.
func NewSocket(dev int) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return nil, bterr.Sys("socket", err)
	}

	if dev == btaddr.DevNone {
		if dev, err = Route(&Ctl{fd: fd}); err != nil {
			unix.Close(fd)
			return nil, err
		}
	}

	sa := unix.SockaddrHCI{Dev: uint16(dev), Channel: unix.HCI_CHANNEL_RAW}
	if err := unix.Bind(fd, &sa); err != nil {
		unix.Close(fd)
		return nil, bterr.Sys(fmt.Sprintf("bind hci%d", dev), err)
	}

	s := &Socket{fd: fd, dev: dev, closed: make(chan struct{})}

	var f Filter
	f.SetPacketType(PacketTypeEvent)
	f.SetAllEvents()
	if err := s.SetFilter(&f); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return s, nil
}

func (s *Socket) Dev() int {
	return s.dev
}

func (s *Socket) Ioctl(req uintptr, arg uintptr) error {
	return ioctl(uintptr(s.fd), req, arg)
}

// IoctlBuffer issues a request against the bound device, as HCIGETCONNINFO
// requires.
func (s *Socket) IoctlBuffer(req uintptr, buf []byte) error {
	return ioctl(uintptr(s.fd), req, uintptr(unsafe.Pointer(&buf[0])))
}

func (s *Socket) SetFilter(f *Filter) error {
	buf := f.Marshal()
	return bterr.Sys("setsockopt HCI_FILTER", unix.SetsockoptString(s.fd, solHCI, hciFilter, string(buf)))
}

// Read polls in short intervals so that Close can interrupt it.
func (s *Socket) Read(p []byte) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	for {
		select {
		case <-s.closed:
			return 0, io.EOF
		default:
		}
		pfds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pfds, 100)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, bterr.Sys("poll", err)
		}
		if n == 0 {
			continue
		}
		n, err = unix.Read(s.fd, p)
		return n, bterr.Sys("read", err)
	}
}

func (s *Socket) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	n, err := unix.Write(s.fd, p)
	return n, bterr.Sys("write", err)
}

// ReadPacket returns the next packet that decodes. Malformed packets are
// logged and skipped.
func (s *Socket) ReadPacket() (Packet, error) {
	buf := make([]byte, math.MaxUint16)
	for {
		n, err := s.Read(buf)
		if err != nil {
			return nil, err
		}
		zap.L().Debug("bluetooth reading", zap.String("packet", fmt.Sprintf("%x", buf[:n])))
		p, err := Unmarshal(append([]byte(nil), buf[:n]...))
		if err != nil {
			zap.L().Warn("dropping packet", zap.String("packet", fmt.Sprintf("%x", buf[:n])), zap.Error(err))
			continue
		}
		return p, nil
	}
}

func (s *Socket) WritePacket(p Packet) error {
	buf, err := p.Marshal()
	if err != nil {
		return err
	}
	zap.L().Debug("bluetooth writing", zap.String("packet", fmt.Sprintf("%x", buf)))
	_, err = s.Write(buf)
	return err
}

func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.rmu.Lock()
		defer s.rmu.Unlock()
		err = bterr.Sys("close", unix.Close(s.fd))
	})
	return err
}

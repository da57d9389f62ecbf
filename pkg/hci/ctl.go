package hci

import (
	"encoding/binary"
	"fmt"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DevReq is one entry of the HCIGETDEVLIST reply.
type DevReq struct {
	ID  uint16
	Opt uint32
}

// DeviceList returns the registered controllers.
func DeviceList(ctl Ioctler) ([]DevReq, error) {
	buf := make([]byte, 4+hciMaxDevices*8)
	binary.NativeEndian.PutUint16(buf, hciMaxDevices)
	if err := ctl.IoctlBuffer(hciGetDeviceList, buf); err != nil {
		return nil, bterr.Sys("HCIGETDEVLIST", err)
	}
	n := int(binary.NativeEndian.Uint16(buf))
	if n > hciMaxDevices {
		n = hciMaxDevices
	}
	devs := make([]DevReq, n)
	for i := range devs {
		e := buf[4+i*8:]
		devs[i] = DevReq{
			ID:  binary.NativeEndian.Uint16(e),
			Opt: binary.NativeEndian.Uint32(e[4:]),
		}
	}
	return devs, nil
}

func DeviceInfo(ctl Ioctler, dev int) (*DevInfo, error) {
	buf := make([]byte, devInfoSize)
	binary.NativeEndian.PutUint16(buf, uint16(dev))
	if err := ctl.IoctlBuffer(hciGetDeviceInfo, buf); err != nil {
		return nil, bterr.Sys(fmt.Sprintf("HCIGETDEVINFO hci%d", dev), err)
	}
	d := &DevInfo{}
	if err := d.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return d, nil
}

// Devices returns the info of every registered controller.
func Devices(ctl Ioctler) ([]*DevInfo, error) {
	list, err := DeviceList(ctl)
	if err != nil {
		return nil, err
	}
	infos := make([]*DevInfo, 0, len(list))
	for _, d := range list {
		info, err := DeviceInfo(ctl, int(d.ID))
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Up brings the controller up. A controller that is already up is not an error.
func Up(ctl Ioctler, dev int) error {
	err := ctl.Ioctl(hciUpDevice, uintptr(dev))
	if bterr.Errno(err) == unix.EALREADY {
		return nil
	}
	return bterr.Sys(fmt.Sprintf("HCIDEVUP hci%d", dev), err)
}

func Down(ctl Ioctler, dev int) error {
	return bterr.Sys(fmt.Sprintf("HCIDEVDOWN hci%d", dev), ctl.Ioctl(hciDownDevice, uintptr(dev)))
}

func Reset(ctl Ioctler, dev int) error {
	return bterr.Sys(fmt.Sprintf("HCIDEVRESET hci%d", dev), ctl.Ioctl(hciResetDevice, uintptr(dev)))
}

// Route returns the first controller that is up.
func Route(ctl Ioctler) (int, error) {
	list, err := DeviceList(ctl)
	if err != nil {
		return btaddr.DevNone, err
	}
	for _, d := range list {
		if DevFlags(d.Opt).Has(DevUp) {
			return int(d.ID), nil
		}
	}
	return btaddr.DevNone, bterr.Sys("route", unix.ENODEV)
}

// DevID returns the controller with the given address.
func DevID(ctl Ioctler, addr btaddr.BDAddr) (int, error) {
	list, err := DeviceList(ctl)
	if err != nil {
		return btaddr.DevNone, err
	}
	for _, d := range list {
		info, err := DeviceInfo(ctl, int(d.ID))
		if err != nil {
			continue
		}
		if info.Addr == addr {
			return int(d.ID), nil
		}
	}
	return btaddr.DevNone, errors.Wrapf(bterr.Sys("devid", unix.ENODEV), "%v", addr)
}

package hci

import (
	"encoding/binary"
	"fmt"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	inquiryReqSize  = 10
	inquiryInfoSize = 14
	ireqCacheFlush  = 0x0001

	// MaxInquiryResponses caps the responses collected by one inquiry.
	MaxInquiryResponses = 250
	// MaxInquiryDuration is the longest inquiry, in units of 1.28 s.
	MaxInquiryDuration = 48
)

// InquiryInfo mirrors struct inquiry_info.
type InquiryInfo struct {
	Addr                   btaddr.BDAddr
	PageScanRepetitionMode PageScanRepetitionMode
	PageScanPeriodMode     uint8
	PageScanMode           uint8
	Class                  uint32
	ClockOffset            uint16
}

func (i *InquiryInfo) UnmarshalBinary(b []byte) error {
	if len(b) < inquiryInfoSize {
		return errIncorrectPacket
	}
	copy(i.Addr[:], b[0:6])
	i.PageScanRepetitionMode = PageScanRepetitionMode(b[6])
	i.PageScanPeriodMode = b[7]
	i.PageScanMode = b[8]
	i.Class = uint32(b[11])<<16 | uint32(b[10])<<8 | uint32(b[9])
	i.ClockOffset = binary.LittleEndian.Uint16(b[12:14])
	return nil
}

func (i *InquiryInfo) MarshalBinary() ([]byte, error) {
	b := make([]byte, inquiryInfoSize)
	copy(b, i.Addr[:])
	b[6] = byte(i.PageScanRepetitionMode)
	b[7] = i.PageScanPeriodMode
	b[8] = i.PageScanMode
	b[9], b[10], b[11] = byte(i.Class), byte(i.Class>>8), byte(i.Class>>16)
	binary.LittleEndian.PutUint16(b[12:], i.ClockOffset)
	return b, nil
}

type InquiryOptions struct {
	// Dev is the controller to scan with, or btaddr.DevNone for the default.
	Dev int
	// Duration is the scan length in units of 1.28 s, 1 to 48.
	Duration int
	// FlushCache discards peers cached by earlier inquiries.
	FlushCache bool
	// LookupClass reports the class of device of each peer.
	LookupClass bool
	// AccessCode is the inquiry access code LAP.
	AccessCode uint32
	// LookupName, if set, is asked for the name of each peer.
	LookupName func(InquiryInfo) (string, error)
}

func DefaultInquiryOptions() InquiryOptions {
	return InquiryOptions{
		Dev:        btaddr.DevNone,
		Duration:   8,
		FlushCache: true,
		AccessCode: LAPGeneral,
	}
}

// Device is a peer found by an inquiry. Fields that were not requested are nil.
type Device struct {
	Addr  string  `json:"addr"`
	Class *uint32 `json:"class,omitempty"`
	RSSI  *int8   `json:"rssi,omitempty"`
	Name  string  `json:"name,omitempty"`
}

func checkDuration(d int) error {
	if d < 1 || d > MaxInquiryDuration {
		return errors.Wrapf(bterr.ErrInvalidArgument, "inquiry duration %d not in 1..%d", d, MaxInquiryDuration)
	}
	return nil
}

// Scan runs an inquiry through the HCIINQUIRY ioctl. It blocks for the
// whole scan and returns the responses in the order the kernel reports them.
func Scan(ctl Ioctler, opts InquiryOptions) ([]InquiryInfo, error) {
	if err := checkDuration(opts.Duration); err != nil {
		return nil, err
	}
	dev := opts.Dev
	if dev == btaddr.DevNone {
		var err error
		if dev, err = Route(ctl); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, inquiryReqSize+MaxInquiryResponses*inquiryInfoSize)
	binary.NativeEndian.PutUint16(buf[0:], uint16(dev))
	if opts.FlushCache {
		binary.NativeEndian.PutUint16(buf[2:], ireqCacheFlush)
	}
	buf[4], buf[5], buf[6] = byte(opts.AccessCode), byte(opts.AccessCode>>8), byte(opts.AccessCode>>16)
	buf[7] = byte(opts.Duration)
	buf[8] = MaxInquiryResponses

	zap.L().Debug("inquiry", zap.Int("dev", dev), zap.Int("duration", opts.Duration), zap.Bool("flush", opts.FlushCache))
	if err := ctl.IoctlBuffer(hciInquiry, buf); err != nil {
		return nil, bterr.Sys(fmt.Sprintf("HCIINQUIRY hci%d", dev), err)
	}

	n := min(int(buf[8]), MaxInquiryResponses)
	infos := make([]InquiryInfo, n)
	for i := range infos {
		off := inquiryReqSize + i*inquiryInfoSize
		if err := infos[i].UnmarshalBinary(buf[off : off+inquiryInfoSize]); err != nil {
			return nil, err
		}
	}
	return infos, nil
}

// Inquire runs Scan and formats the responses. Names that cannot be looked
// up are left empty.
func Inquire(ctl Ioctler, opts InquiryOptions) ([]Device, error) {
	infos, err := Scan(ctl, opts)
	if err != nil {
		return nil, err
	}
	devs := make([]Device, len(infos))
	for i, info := range infos {
		devs[i].Addr = info.Addr.String()
		if opts.LookupClass {
			c := info.Class
			devs[i].Class = &c
		}
		if opts.LookupName != nil {
			name, err := opts.LookupName(info)
			if err != nil {
				zap.L().Warn("name lookup failed", zap.Stringer("addr", info.Addr), zap.Error(err))
				continue
			}
			devs[i].Name = name
		}
	}
	return devs, nil
}

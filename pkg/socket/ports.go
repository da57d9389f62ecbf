package socket

import (
	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Port ranges searched by AvailablePort. Dynamic L2CAP PSMs are odd.
const (
	MinRFCOMMChannel = 1
	MaxRFCOMMChannel = 30
	MinDynamicPSM    = 0x1001
	MaxDynamicPSM    = 0x7fff
)

// Ports lists the candidate ports of proto in search order.
func Ports(proto btaddr.Protocol) ([]int, error) {
	var ports []int
	switch proto {
	case btaddr.ProtocolRFCOMM:
		for ch := MinRFCOMMChannel; ch <= MaxRFCOMMChannel; ch++ {
			ports = append(ports, ch)
		}
	case btaddr.ProtocolL2CAP:
		for psm := MinDynamicPSM; psm <= MaxDynamicPSM; psm += 2 {
			ports = append(ports, psm)
		}
	default:
		return nil, errors.Wrapf(bterr.ErrUnsupportedProtocol, "no ports for %v", proto)
	}
	return ports, nil
}

func portAddr(proto btaddr.Protocol, port int) btaddr.Address {
	if proto == btaddr.ProtocolL2CAP {
		return btaddr.L2CAPAddr{Host: btaddr.BDAddrAny.String(), PSM: uint16(port)}
	}
	return btaddr.RFCOMMAddr{Host: btaddr.BDAddrAny.String(), Channel: uint8(port)}
}

// AvailablePort returns the first RFCOMM channel or L2CAP PSM that a socket
// can bind on every local controller. The port is released again, so another
// process may take it before the caller binds.
func AvailablePort(proto btaddr.Protocol, opts ...Option) (int, error) {
	ports, err := Ports(proto)
	if err != nil {
		return 0, err
	}
	log := newConfig(opts).logger()
	for _, port := range ports {
		free, err := tryBind(proto, port, opts)
		if err != nil {
			return 0, err
		}
		if free {
			log.Debug("found free port", zap.Stringer("proto", proto), zap.Int("port", port))
			return port, nil
		}
	}
	return 0, bterr.Sys("no free "+proto.String()+" port", unix.EADDRINUSE)
}

func tryBind(proto btaddr.Protocol, port int, opts []Option) (free bool, err error) {
	s, err := New(proto, opts...)
	if err != nil {
		return false, err
	}
	defer func() { err = multierr.Append(err, s.Close()) }()
	err = s.Bind(portAddr(proto, port))
	if bterr.Errno(err) == unix.EADDRINUSE {
		return false, nil
	}
	return err == nil, err
}

package hci

import (
	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AdvertisableFlags must all be set on a controller that can be found and
// connected to.
const AdvertisableFlags = DevUp | DevRunning | DevPScan | DevIScan

// Prober decides whether a local address is reachable by remote devices.
// The answer is advisory: controller state can change right after.
type Prober struct {
	ctl         Ioctler
	openAdapter func(dev int) (*Adapter, error)
	log         *zap.Logger
}

func NewProber(opts ...Option) *Prober {
	cfg := newConfig(opts)
	p := &Prober{ctl: cfg.ctl, openAdapter: cfg.openAdapter, log: cfg.logger}
	if p.openAdapter == nil {
		p.openAdapter = func(dev int) (*Adapter, error) {
			return OpenAdapter(dev, WithLogger(cfg.logger), WithCommandTimeout(cfg.commandTimeout))
		}
	}
	return p
}

// Advertisable checks the controller behind a bound local address. The any
// address matches every controller; a specific address only the controller
// that owns it. Addresses of protocols without a local controller address
// are always advertisable.
func (p *Prober) Advertisable(local btaddr.Address) (ok bool, err error) {
	host, has := btaddr.Host(local)
	if !has || (local.Protocol() != btaddr.ProtocolL2CAP && local.Protocol() != btaddr.ProtocolRFCOMM) {
		return true, nil
	}
	want, err := btaddr.ParseBDAddr(host)
	if err != nil {
		return false, err
	}

	ctl := p.ctl
	if ctl == nil {
		var c *Ctl
		if c, err = OpenCtl(); err != nil {
			return false, err
		}
		defer func() { err = multierr.Append(err, c.Close()) }()
		ctl = c
	}

	infos, err := Devices(ctl)
	if err != nil {
		return false, err
	}
	for _, info := range infos {
		addr := info.Addr
		if info.Flags.Has(DevRaw) && addr.IsAny() {
			if addr, err = p.readAddr(int(info.ID)); err != nil {
				p.log.Warn("can't read address of raw device", zap.Uint16("dev", info.ID), zap.Error(err))
				continue
			}
		}
		if !want.IsAny() && addr != want {
			continue
		}
		if info.Flags.Has(AdvertisableFlags) {
			return true, nil
		}
		p.log.Debug("device not advertisable", zap.Uint16("dev", info.ID), zap.Stringer("flags", info.Flags))
		if !want.IsAny() {
			return false, nil
		}
	}
	return false, nil
}

func (p *Prober) readAddr(dev int) (btaddr.BDAddr, error) {
	a, err := p.openAdapter(dev)
	if err != nil {
		return btaddr.BDAddr{}, err
	}
	addr, err := a.ReadBDAddr()
	if cerr := a.Close(); cerr != nil {
		p.log.Debug("close raw channel", zap.Error(cerr))
	}
	return addr, errors.Wrapf(err, "hci%d", dev)
}

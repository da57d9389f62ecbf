package sdp

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/muxable/btsocket/pkg/btuuid"
	"github.com/muxable/btsocket/pkg/socket"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	bluezService        = "org.bluez"
	bluezPath           = dbus.ObjectPath("/org/bluez")
	profileManagerIface = "org.bluez.ProfileManager1"
	profileIface        = "org.bluez.Profile1"

	profilePathPrefix = "/org/bluez/btsocket/p"
)

// Bus is the part of a D-Bus connection the profile manager needs.
// *dbus.Conn implements it.
type Bus interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

// ProfileManager registers records through bluetoothd's ProfileManager1 on
// D-Bus, for daemons that run without the local SDP socket.
//
// The record is handed over as the ServiceRecord option and no Channel or
// PSM option is set, so bluetoothd only publishes the record and leaves
// accepting connections to the caller's socket.
type ProfileManager struct {
	// Bus defaults to the system bus.
	Bus    Bus
	Logger *zap.Logger

	once   sync.Once
	busErr error
}

var profileHandles uint32 = 0x10000

func (p *ProfileManager) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.L()
	}
	return p.Logger
}

func (p *ProfileManager) bus() (Bus, error) {
	p.once.Do(func() {
		if p.Bus != nil {
			return
		}
		conn, err := dbus.SystemBus()
		if err != nil {
			p.busErr = errors.Wrap(err, "connect system bus")
			return
		}
		p.Bus = conn
	})
	return p.Bus, p.busErr
}

// profileUUID picks the UUID the profile is registered under.
func profileUUID(rec *Record) btuuid.UUID {
	if !rec.ServiceID.IsZero() {
		return rec.ServiceID
	}
	if len(rec.ServiceClasses) > 0 {
		return rec.ServiceClasses[0]
	}
	return btuuid.SerialPort
}

func (p *ProfileManager) Register(ctx context.Context, rec *Record) (socket.Registration, error) {
	bus, err := p.bus()
	if err != nil {
		return nil, err
	}
	// bluetoothd assigns the real handle and does not report it back.
	handle := atomic.AddUint32(&profileHandles, 1)
	withHandle := *rec
	withHandle.Handle = handle
	record, err := withHandle.ServiceRecordXML()
	if err != nil {
		return nil, errors.Wrap(err, "render record")
	}

	path := dbus.ObjectPath(profilePathPrefix + strings.ReplaceAll(uuid.NewString(), "-", "_"))
	log := p.logger().With(zap.String("path", string(path)))
	if err := bus.Export(&profile{log: log}, path, profileIface); err != nil {
		return nil, errors.Wrap(err, "export profile")
	}

	opts := map[string]dbus.Variant{
		"Name":          dbus.MakeVariant(rec.Name),
		"Role":          dbus.MakeVariant("server"),
		"ServiceRecord": dbus.MakeVariant(string(record)),
	}
	u := profileUUID(rec).Long().String()
	pm := bus.Object(bluezService, bluezPath)
	if call := pm.CallWithContext(ctx, profileManagerIface+".RegisterProfile", 0, path, u, opts); call.Err != nil {
		return nil, multierr.Append(
			errors.Wrapf(call.Err, "register profile %s", u),
			bus.Export(nil, path, profileIface),
		)
	}
	log.Debug("registered profile", zap.String("uuid", u), zap.Uint32("handle", handle))
	return &profileRegistration{bus: bus, pm: pm, path: path, handle: handle}, nil
}

type profileRegistration struct {
	bus    Bus
	pm     dbus.BusObject
	path   dbus.ObjectPath
	handle uint32
	closed bool
}

func (r *profileRegistration) Handle() uint32 {
	return r.handle
}

func (r *profileRegistration) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.pm.Call(profileManagerIface+".UnregisterProfile", 0, r.path).Err
	if err != nil {
		err = errors.Wrap(err, "unregister profile")
	}
	return multierr.Append(err, r.bus.Export(nil, r.path, profileIface))
}

// profile is the org.bluez.Profile1 object bluetoothd calls back into.
type profile struct {
	log *zap.Logger
}

func (p *profile) Release() *dbus.Error {
	p.log.Debug("profile released")
	return nil
}

func (p *profile) Cancel() *dbus.Error { return nil }

func (p *profile) RequestDisconnection(dev dbus.ObjectPath) *dbus.Error { return nil }

// NewConnection only fires if bluetoothd listens on the profile's behalf,
// which it does not without a Channel or PSM option.
func (p *profile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	p.log.Warn("rejecting connection delivered over d-bus", zap.String("device", string(dev)))
	unix.Close(int(fd))
	return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"connections are accepted on the socket"}}
}

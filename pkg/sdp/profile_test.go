package sdp

import (
	"context"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/muxable/btsocket/pkg/btuuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeCall struct {
	method string
	args   []interface{}
}

// fakeObject records method calls. Other BusObject methods are not used.
type fakeObject struct {
	dbus.BusObject
	calls []fakeCall
	err   error
}

func (o *fakeObject) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	return o.CallWithContext(context.Background(), method, flags, args...)
}

func (o *fakeObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	o.calls = append(o.calls, fakeCall{method: method, args: args})
	return &dbus.Call{Method: method, Args: args, Err: o.err}
}

type fakeBus struct {
	exported map[dbus.ObjectPath]interface{}
	obj      *fakeObject
	dest     string
	path     dbus.ObjectPath
}

func newFakeBus() *fakeBus {
	return &fakeBus{exported: make(map[dbus.ObjectPath]interface{}), obj: &fakeObject{}}
}

func (b *fakeBus) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	if iface != profileIface {
		return errors.Errorf("unexpected interface %s", iface)
	}
	if v == nil {
		delete(b.exported, path)
		return nil
	}
	b.exported[path] = v
	return nil
}

func (b *fakeBus) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	b.dest, b.path = dest, path
	return b.obj
}

func TestProfileManagerRegister(t *testing.T) {
	bus := newFakeBus()
	pm := &ProfileManager{Bus: bus, Logger: zaptest.NewLogger(t)}

	reg, err := pm.Register(context.Background(), serialRecord())
	require.NoError(t, err)
	assert.NotZero(t, reg.Handle())
	assert.Equal(t, "org.bluez", bus.dest)
	assert.Equal(t, dbus.ObjectPath("/org/bluez"), bus.path)

	require.Len(t, bus.obj.calls, 1)
	call := bus.obj.calls[0]
	assert.Equal(t, "org.bluez.ProfileManager1.RegisterProfile", call.method)
	require.Len(t, call.args, 3)
	path := call.args[0].(dbus.ObjectPath)
	assert.True(t, path.IsValid())
	assert.Contains(t, bus.exported, path)
	assert.Equal(t, "00001101-0000-1000-8000-00805f9b34fb", call.args[1])

	opts := call.args[2].(map[string]dbus.Variant)
	assert.Equal(t, "test", opts["Name"].Value())
	assert.Equal(t, "server", opts["Role"].Value())
	assert.NotContains(t, opts, "Channel")
	record := opts["ServiceRecord"].Value().(string)
	assert.Contains(t, record, `<uuid value="0x1101">`)
	assert.Contains(t, record, `<uint8 value="0x03">`)

	require.NoError(t, reg.Close())
	require.Len(t, bus.obj.calls, 2)
	assert.Equal(t, "org.bluez.ProfileManager1.UnregisterProfile", bus.obj.calls[1].method)
	assert.Equal(t, []interface{}{path}, bus.obj.calls[1].args)
	assert.Empty(t, bus.exported)

	require.NoError(t, reg.Close())
	assert.Len(t, bus.obj.calls, 2)
}

func TestProfileManagerRejected(t *testing.T) {
	bus := newFakeBus()
	bus.obj.err = dbus.MakeFailedError(errors.New("not permitted"))
	pm := &ProfileManager{Bus: bus, Logger: zaptest.NewLogger(t)}

	_, err := pm.Register(context.Background(), serialRecord())
	assert.Error(t, err)
	assert.Empty(t, bus.exported)
}

func TestProfileUUID(t *testing.T) {
	rec := &Record{}
	assert.Equal(t, btuuid.SerialPort, profileUUID(rec))

	rec.ServiceClasses = []btuuid.UUID{btuuid.Headset, btuuid.GenericAudio}
	assert.Equal(t, btuuid.Headset, profileUUID(rec))

	id := btuuid.MustParse("6e4b2b8a-10c1-4a6b-8f1d-2b3c4d5e6f70")
	rec.ServiceID = id
	assert.Equal(t, id, profileUUID(rec))
}

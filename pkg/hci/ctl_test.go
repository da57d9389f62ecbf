package hci

import (
	"testing"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func testDevs() []*DevInfo {
	return []*DevInfo{
		{ID: 0, Name: "hci0", Addr: btaddr.MustParseBDAddr("00:11:22:33:44:55"), Flags: DevRunning},
		{ID: 1, Name: "hci1", Addr: btaddr.MustParseBDAddr("66:77:88:99:AA:BB"), Flags: DevUp | DevRunning | DevPScan, ACLMTU: 1021},
	}
}

func TestDeviceList(t *testing.T) {
	ctl := &fakeCtl{devs: testDevs()}

	list, err := DeviceList(ctl)
	require.NoError(t, err)
	assert.Equal(t, []DevReq{{ID: 0, Opt: uint32(DevRunning)}, {ID: 1, Opt: uint32(DevUp | DevRunning | DevPScan)}}, list)
}

func TestDeviceInfo(t *testing.T) {
	ctl := &fakeCtl{devs: testDevs()}

	info, err := DeviceInfo(ctl, 1)
	require.NoError(t, err)
	assert.Equal(t, "hci1", info.Name)
	assert.Equal(t, "66:77:88:99:AA:BB", info.Addr.String())
	assert.Equal(t, uint16(1021), info.ACLMTU)
	assert.True(t, info.Flags.Has(DevUp|DevPScan))
	assert.False(t, info.Flags.Has(DevIScan))

	_, err = DeviceInfo(ctl, 7)
	assert.True(t, errors.Is(err, unix.ENODEV))
}

func TestRoute(t *testing.T) {
	dev, err := Route(&fakeCtl{devs: testDevs()})
	require.NoError(t, err)
	assert.Equal(t, 1, dev)

	dev, err = Route(&fakeCtl{devs: testDevs()[:1]})
	assert.True(t, errors.Is(err, unix.ENODEV))
	assert.Equal(t, btaddr.DevNone, dev)
}

func TestDevID(t *testing.T) {
	ctl := &fakeCtl{devs: testDevs()}

	dev, err := DevID(ctl, btaddr.MustParseBDAddr("00:11:22:33:44:55"))
	require.NoError(t, err)
	assert.Equal(t, 0, dev)

	_, err = DevID(ctl, btaddr.MustParseBDAddr("00:00:00:00:00:01"))
	assert.True(t, errors.Is(err, unix.ENODEV))
}

func TestUpAlreadyUp(t *testing.T) {
	ctl := &fakeCtl{upErr: unix.EALREADY}
	assert.NoError(t, Up(ctl, 2))
	assert.Equal(t, []int{2}, ctl.upCalled)

	ctl.upErr = unix.EPERM
	err := Up(ctl, 2)
	assert.True(t, errors.Is(err, unix.EPERM))
}

func TestDevFlagsString(t *testing.T) {
	assert.Equal(t, "UP RUNNING PSCAN ISCAN", AdvertisableFlags.String())
	assert.Equal(t, "DOWN RAW", DevRaw.String())
}

func TestFilter(t *testing.T) {
	var f Filter
	f.SetPacketType(PacketTypeEvent)
	f.SetEvent(EventCodeInquiryComplete)
	f.SetEvent(EventCodeLEMeta)
	assert.Equal(t, uint32(1<<4), f.TypeMask)
	assert.Equal(t, [2]uint32{1 << 1, 1 << 30}, f.EventMask)

	buf := f.Marshal()
	require.Len(t, buf, 16)
	var g Filter
	require.NoError(t, g.Unmarshal(buf))
	assert.Equal(t, f, g)
}

func TestOpcode(t *testing.T) {
	assert.Equal(t, OpcodeInquiry, NewOpcode(OGFLinkControl, 0x0001))
	assert.Equal(t, OpcodeReadBDAddr, NewOpcode(OGFInfoParam, 0x0009))
	assert.Equal(t, OGFHostController, OpcodeReset.OGF())
	assert.Equal(t, uint16(0x0003), OpcodeReset.OCF())
	assert.Equal(t, "opcode 0xfc01", Opcode(0xfc01).String())
}

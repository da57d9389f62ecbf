package hci

import (
	"testing"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestProberWildcard(t *testing.T) {
	ctl := &fakeCtl{devs: []*DevInfo{
		{ID: 0, Addr: peer1, Flags: DevUp | DevRunning},
		{ID: 1, Addr: peer2, Flags: AdvertisableFlags | DevAuth},
	}}
	p := NewProber(WithIoctler(ctl), WithLogger(zaptest.NewLogger(t)))

	ok, err := p.Advertisable(btaddr.RFCOMMAddr{Host: btaddr.BDAddrAny.String(), Channel: 3})
	require.NoError(t, err)
	assert.True(t, ok)

	ctl.devs = ctl.devs[:1]
	ok, err = p.Advertisable(btaddr.L2CAPAddr{Host: btaddr.BDAddrAny.String(), PSM: 0x1001})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProberSpecificAddress(t *testing.T) {
	ctl := &fakeCtl{devs: []*DevInfo{
		{ID: 0, Addr: peer1, Flags: AdvertisableFlags},
		{ID: 1, Addr: peer2, Flags: DevUp | DevRunning | DevPScan},
	}}
	p := NewProber(WithIoctler(ctl), WithLogger(zaptest.NewLogger(t)))

	ok, err := p.Advertisable(btaddr.RFCOMMAddr{Host: peer1.String(), Channel: 1})
	require.NoError(t, err)
	assert.True(t, ok)

	// only the named controller counts, even though hci0 qualifies
	ok, err = p.Advertisable(btaddr.RFCOMMAddr{Host: peer2.String(), Channel: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Advertisable(btaddr.RFCOMMAddr{Host: peer3.String(), Channel: 1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProberUnaddressableProtocols(t *testing.T) {
	ctl := &fakeCtl{}
	p := NewProber(WithIoctler(ctl), WithLogger(zaptest.NewLogger(t)))

	for _, addr := range []btaddr.Address{
		btaddr.SCOAddr{Host: peer1.String()},
		btaddr.HCIAddr{Dev: 0},
	} {
		ok, err := p.Advertisable(addr)
		require.NoError(t, err)
		assert.True(t, ok, "%v", addr)
	}
	assert.Empty(t, ctl.reqs)
}

func TestProberRawDevice(t *testing.T) {
	ctl := &fakeCtl{devs: []*DevInfo{
		{ID: 4, Flags: AdvertisableFlags | DevRaw},
	}}
	opened := 0
	open := func(dev int) (*Adapter, error) {
		opened++
		assert.Equal(t, 4, dev)
		c := newFakeController(t, func(c *fakeController, cmd *GenericCommandPacket) {
			c.complete(OpcodeReadBDAddr, append([]byte{0}, peer3[:]...)...)
		})
		return NewAdapter(c, WithLogger(zaptest.NewLogger(t))), nil
	}
	p := NewProber(WithIoctler(ctl), WithAdapterOpener(open), WithLogger(zaptest.NewLogger(t)))

	ok, err := p.Advertisable(btaddr.RFCOMMAddr{Host: peer3.String(), Channel: 1})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, opened)
}

func TestProberInvalidHost(t *testing.T) {
	p := NewProber(WithIoctler(&fakeCtl{}), WithLogger(zaptest.NewLogger(t)))
	_, err := p.Advertisable(btaddr.RFCOMMAddr{Host: "nope", Channel: 1})
	assert.Error(t, err)
}

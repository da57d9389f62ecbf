package hci

import (
	"testing"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestConnHandle(t *testing.T) {
	peer := btaddr.MustParseBDAddr("00:11:22:33:44:55")
	ctl := &fakeCtl{conns: []ConnInfo{
		{Handle: 0x0040, Addr: peer, Type: LinkSCO},
		{Handle: 0x002a, Addr: peer, Type: LinkACL, Out: true, State: 1, LinkMode: 0x8000},
	}}

	handle, err := ConnHandle(ctl, peer)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x002a), handle)

	info, err := GetConnInfo(ctl, peer, LinkACL)
	require.NoError(t, err)
	assert.Equal(t, &ConnInfo{Handle: 0x002a, Addr: peer, Type: LinkACL, Out: true, State: 1, LinkMode: 0x8000}, info)
}

func TestConnHandleNoConnection(t *testing.T) {
	ctl := &fakeCtl{}

	_, err := ConnHandle(ctl, btaddr.MustParseBDAddr("AA:BB:CC:DD:EE:FF"))
	assert.Equal(t, unix.ENOENT, bterr.Errno(err))
	assert.Contains(t, err.Error(), "AA:BB:CC:DD:EE:FF")
	assert.Equal(t, 1, ctl.count(hciGetConnInfo))
}

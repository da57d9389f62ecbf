package hci

import (
	"context"
	"testing"
	"time"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAdapterReadBDAddr(t *testing.T) {
	addr := btaddr.MustParseBDAddr("00:1A:7D:DA:71:13")
	c := newFakeController(t, func(c *fakeController, cmd *GenericCommandPacket) {
		if cmd.Opcode() == OpcodeReadBDAddr {
			c.complete(OpcodeReadBDAddr, append([]byte{0}, addr[:]...)...)
		}
	})
	a := NewAdapter(c, WithLogger(zaptest.NewLogger(t)))

	got, err := a.ReadBDAddr()
	require.NoError(t, err)
	assert.Equal(t, addr, got)
}

func TestAdapterIgnoresOtherOpcodes(t *testing.T) {
	c := newFakeController(t, func(c *fakeController, cmd *GenericCommandPacket) {
		c.complete(OpcodeReset, 0)
		c.complete(OpcodeReadLocalName, append([]byte{0}, "hci0-name\x00\x00"...)...)
	})
	a := NewAdapter(c, WithLogger(zaptest.NewLogger(t)))

	name, err := a.ReadLocalName()
	require.NoError(t, err)
	assert.Equal(t, "hci0-name", name)
}

func TestAdapterStatusErrors(t *testing.T) {
	c := newFakeController(t, func(c *fakeController, cmd *GenericCommandPacket) {
		switch cmd.Opcode() {
		case OpcodeReadClassOfDevice:
			c.status(OpcodeReadClassOfDevice, 0x0c)
		case OpcodeReset:
			c.complete(OpcodeReset, 0x01)
		}
	})
	a := NewAdapter(c, WithLogger(zaptest.NewLogger(t)))

	_, err := a.ReadClassOfDevice()
	var serr *bterr.SystemError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 0x0c, serr.Code)

	err = a.Reset()
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 0x01, serr.Code)
}

func TestAdapterClassOfDevice(t *testing.T) {
	c := newFakeController(t, func(c *fakeController, cmd *GenericCommandPacket) {
		c.complete(OpcodeReadClassOfDevice, 0, 0x0c, 0x02, 0x5a)
	})
	a := NewAdapter(c, WithLogger(zaptest.NewLogger(t)))

	class, err := a.ReadClassOfDevice()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x5a020c), class)
}

func TestAdapterCommandTimeout(t *testing.T) {
	c := newFakeController(t, nil)
	a := NewAdapter(c, WithLogger(zaptest.NewLogger(t)), WithCommandTimeout(10*time.Millisecond))

	err := a.Reset()
	assert.True(t, errors.Is(err, bterr.ErrTimedOut))
}

func TestAdapterClosed(t *testing.T) {
	c := newFakeController(t, nil)
	a := NewAdapter(c, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, a.Close())

	select {
	case <-a.Done():
	default:
		t.Fatal("read loop still running")
	}
	_, err := a.Command(context.Background(), OpcodeReadLocalVersion)
	assert.Error(t, err)
}

func TestAdapterRawCommand(t *testing.T) {
	c := newFakeController(t, func(c *fakeController, cmd *GenericCommandPacket) {
		assert.Equal(t, []byte{0xaa, 0xbb}, cmd.Params)
		c.complete(cmd.Opcode(), 0, 0x42)
	})
	a := NewAdapter(c, WithLogger(zaptest.NewLogger(t)))

	buf, err := a.Command(context.Background(), NewOpcode(0x3f, 0x0001), 0xaa, 0xbb)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0x42}, buf)
}

func TestReadRemoteName(t *testing.T) {
	peer := btaddr.MustParseBDAddr("00:11:22:33:44:55")
	other := btaddr.MustParseBDAddr("66:77:88:99:AA:BB")
	c := newFakeController(t, func(c *fakeController, cmd *GenericCommandPacket) {
		var req RemoteNameRequestCommandPacket
		buf, _ := cmd.Marshal()
		require.NoError(t, req.Unmarshal(buf))
		assert.Equal(t, peer, req.Addr)
		assert.Equal(t, uint16(0x8123), req.ClockOffset)
		c.status(OpcodeRemoteNameRequest, 0)
		c.send(&RemoteNameRequestCompleteEventPacket{Addr: other, Name: "wrong"})
		c.send(&RemoteNameRequestCompleteEventPacket{Addr: peer, Name: "headset"})
	})
	a := NewAdapter(c, WithLogger(zaptest.NewLogger(t)))

	name, err := a.ReadRemoteName(context.Background(), peer, PageScanRepetitionModeR1, 0x0123)
	require.NoError(t, err)
	assert.Equal(t, "headset", name)
}

func TestReadRemoteNameFailure(t *testing.T) {
	peer := btaddr.MustParseBDAddr("00:11:22:33:44:55")
	c := newFakeController(t, func(c *fakeController, cmd *GenericCommandPacket) {
		c.status(OpcodeRemoteNameRequest, 0)
		c.send(&RemoteNameRequestCompleteEventPacket{Status: 0x04, Addr: peer})
	})
	a := NewAdapter(c, WithLogger(zaptest.NewLogger(t)))

	_, err := a.ReadRemoteName(context.Background(), peer, 0, 0)
	var serr *bterr.SystemError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 0x04, serr.Code)
}

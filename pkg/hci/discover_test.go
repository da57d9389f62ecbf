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

var (
	peer1 = btaddr.MustParseBDAddr("00:11:22:33:44:55")
	peer2 = btaddr.MustParseBDAddr("66:77:88:99:AA:BB")
	peer3 = btaddr.MustParseBDAddr("01:02:03:04:05:06")
)

func TestDiscover(t *testing.T) {
	eir, err := MarshalEIR(ShortLocalName("kb"), CompleteLocalName("keyboard"))
	require.NoError(t, err)

	c := newFakeController(t, func(c *fakeController, cmd *GenericCommandPacket) {
		switch cmd.Opcode() {
		case OpcodeWriteInquiryMode:
			var req WriteInquiryModeCommandPacket
			buf, _ := cmd.Marshal()
			require.NoError(t, req.Unmarshal(buf))
			assert.Equal(t, InquiryModeExtended, req.Mode)
			c.complete(OpcodeWriteInquiryMode, 0)
		case OpcodeInquiry:
			var req InquiryCommandPacket
			buf, _ := cmd.Marshal()
			require.NoError(t, req.Unmarshal(buf))
			assert.Equal(t, LAPGeneral, req.LAP)
			assert.Equal(t, uint8(3), req.Length)
			c.status(OpcodeInquiry, 0)
			c.send(&InquiryResultEventPacket{Code: EventCodeInquiryResultWithRSSI, Responses: []InquiryResponse{
				{Addr: peer1, Class: 0x5a020c, RSSI: -60, ClockOffset: 0x10},
				{Addr: peer2, Class: 0x240404, RSSI: -70},
			}})
			c.send(&InquiryResultEventPacket{Code: EventCodeExtendedInquiryResult, Responses: []InquiryResponse{
				{Addr: peer3, Class: 0x002540, RSSI: -50, EIR: eir},
			}})
			c.send(&InquiryResultEventPacket{Code: EventCodeInquiryResultWithRSSI, Responses: []InquiryResponse{
				{Addr: peer1, Class: 0x5a020c, RSSI: -40},
			}})
			c.send(&InquiryCompleteEventPacket{})
		case OpcodeRemoteNameRequest:
			var req RemoteNameRequestCommandPacket
			buf, _ := cmd.Marshal()
			require.NoError(t, req.Unmarshal(buf))
			c.status(OpcodeRemoteNameRequest, 0)
			if req.Addr == peer2 {
				c.send(&RemoteNameRequestCompleteEventPacket{Status: 0x04, Addr: peer2})
				return
			}
			c.send(&RemoteNameRequestCompleteEventPacket{Addr: req.Addr, Name: "phone"})
		}
	})
	a := NewAdapter(c, WithLogger(zaptest.NewLogger(t)))

	opts := DefaultDiscoverOptions()
	opts.Duration = 3
	opts.LookupNames = true
	var seen []btaddr.BDAddr
	opts.OnFound = func(d Discovery) { seen = append(seen, d.Addr) }

	found, err := a.Discover(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, []btaddr.BDAddr{peer1, peer2, peer3}, seen)

	assert.Equal(t, peer1, found[0].Addr)
	assert.Equal(t, int8(-40), found[0].RSSI)
	assert.Equal(t, "phone", found[0].Name)
	assert.Equal(t, uint16(0x10), found[0].ClockOffset)

	assert.Equal(t, "", found[1].Name)
	assert.Equal(t, uint32(0x240404), found[1].Class)

	assert.Equal(t, "keyboard", found[2].Name)
	assert.True(t, found[2].HasRSSI)

	// peer3 named itself, so only two lookups
	n := 0
	for _, op := range c.sent() {
		if op == OpcodeRemoteNameRequest {
			n++
		}
	}
	assert.Equal(t, 2, n)

	d := found[0].Device()
	assert.Equal(t, "00:11:22:33:44:55", d.Addr)
	require.NotNil(t, d.RSSI)
	assert.Equal(t, int8(-40), *d.RSSI)
}

func TestDiscoverStandardResults(t *testing.T) {
	c := newFakeController(t, func(c *fakeController, cmd *GenericCommandPacket) {
		switch cmd.Opcode() {
		case OpcodeWriteInquiryMode:
			c.complete(OpcodeWriteInquiryMode, 0)
		case OpcodeInquiry:
			c.status(OpcodeInquiry, 0)
			c.send(&InquiryResultEventPacket{Code: EventCodeInquiryResult, Responses: []InquiryResponse{
				{Addr: peer1, Class: 0x5a020c, PageScanRepetitionMode: PageScanRepetitionModeR2},
				{Addr: peer2, Class: 0x240404},
			}})
			c.send(&InquiryCompleteEventPacket{})
		}
	})
	a := NewAdapter(c, WithLogger(zaptest.NewLogger(t)))

	opts := DefaultDiscoverOptions()
	opts.Mode = InquiryModeStandard
	found, err := a.Discover(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.False(t, found[0].HasRSSI)
	assert.Equal(t, PageScanRepetitionModeR2, found[0].PageScanRepetitionMode)
	assert.Equal(t, uint32(0x240404), found[1].Class)
	assert.Nil(t, found[1].Device().RSSI)
}

func TestDiscoverCancel(t *testing.T) {
	c := newFakeController(t, func(c *fakeController, cmd *GenericCommandPacket) {
		switch cmd.Opcode() {
		case OpcodeWriteInquiryMode, OpcodeInquiryCancel:
			c.complete(cmd.Opcode(), 0)
		case OpcodeInquiry:
			c.status(OpcodeInquiry, 0)
			c.send(&InquiryResultEventPacket{Code: EventCodeInquiryResultWithRSSI, Responses: []InquiryResponse{
				{Addr: peer1, RSSI: -60},
			}})
		}
	})
	a := NewAdapter(c, WithLogger(zaptest.NewLogger(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	found, err := a.Discover(ctx, DefaultDiscoverOptions())
	assert.True(t, errors.Is(err, bterr.ErrTimedOut))
	require.Len(t, found, 1)
	assert.Equal(t, peer1, found[0].Addr)
	assert.Contains(t, c.sent(), OpcodeInquiryCancel)
}

func TestDiscoverInquiryRejected(t *testing.T) {
	c := newFakeController(t, func(c *fakeController, cmd *GenericCommandPacket) {
		switch cmd.Opcode() {
		case OpcodeWriteInquiryMode:
			c.complete(OpcodeWriteInquiryMode, 0)
		case OpcodeInquiry:
			c.status(OpcodeInquiry, 0x0c)
		}
	})
	a := NewAdapter(c, WithLogger(zaptest.NewLogger(t)))

	_, err := a.Discover(context.Background(), DefaultDiscoverOptions())
	var serr *bterr.SystemError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 0x0c, serr.Code)
}

func TestDiscoverInvalidDuration(t *testing.T) {
	c := newFakeController(t, nil)
	a := NewAdapter(c, WithLogger(zaptest.NewLogger(t)))

	opts := DefaultDiscoverOptions()
	opts.Duration = 49
	_, err := a.Discover(context.Background(), opts)
	assert.True(t, errors.Is(err, bterr.ErrInvalidArgument))
	assert.Empty(t, c.sent())
}

func TestEIRName(t *testing.T) {
	short, err := MarshalEIR(ShortLocalName("kb"))
	require.NoError(t, err)
	assert.Equal(t, "kb", EIRName(short))
	assert.Equal(t, "", EIRName(nil))
	// zero length field ends the data
	assert.Equal(t, "", EIRName([]byte{0, 0x09, 'x'}))
}

package sdp

import (
	"context"
	"testing"
	"time"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/muxable/btsocket/pkg/btuuid"
	"github.com/muxable/btsocket/pkg/socket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var anyRFCOMM = btaddr.RFCOMMAddr{Host: btaddr.BDAddrAny.String(), Channel: 3}

func TestBuildPreconditionOrder(t *testing.T) {
	prober := &fakeProber{ok: true}

	// not listening wins over a missing name
	_, err := Build(listener(t, anyRFCOMM, false), Service{}, prober)
	assert.True(t, errors.Is(err, bterr.ErrNotListening))

	sco := listener(t, btaddr.SCOAddr{Host: btaddr.BDAddrAny.String()}, true)
	_, err = Build(sco, Service{}, prober)
	assert.True(t, errors.Is(err, bterr.ErrUnsupportedProtocol))

	sock := listener(t, anyRFCOMM, true)
	_, err = Build(sock, Service{ServiceClasses: []string{"zz"}}, prober)
	assert.True(t, errors.Is(err, bterr.ErrMissingName))

	for _, svc := range []Service{
		{Name: "x", ServiceClasses: []string{"1101", "11"}},
		{Name: "x", Protocols: []string{"0008", "not-a-uuid"}},
		{Name: "x", Profiles: []ProfileSpec{{UUID: "1101x", Version: 0x0100}}},
		{Name: "x", ServiceID: "1234567"},
	} {
		_, err = Build(sock, svc, prober)
		assert.True(t, errors.Is(err, bterr.ErrInvalidUUID), "%+v", svc)
	}
	assert.Empty(t, prober.calls)

	prober.ok = false
	_, err = Build(sock, Service{Name: "x"}, prober)
	assert.True(t, errors.Is(err, bterr.ErrNotAdvertisable))
	require.Len(t, prober.calls, 1)
	assert.Equal(t, anyRFCOMM, prober.calls[0])

	closed := listener(t, anyRFCOMM, true)
	require.NoError(t, closed.Close())
	_, err = Build(closed, Service{Name: "x"}, prober)
	assert.True(t, errors.Is(err, bterr.ErrClosed))
}

func TestBuildRFCOMM(t *testing.T) {
	sock := listener(t, anyRFCOMM, true)
	rec, err := Build(sock, Service{
		Name:           "chat",
		Provider:       "muxable",
		ServiceClasses: []string{"1101"},
		Profiles:       []ProfileSpec{{UUID: "1101", Version: 0x0102}},
		Protocols:      []string{"0008"},
	}, &fakeProber{ok: true})
	require.NoError(t, err)

	require.Len(t, rec.Protocols, 3)
	assert.Equal(t, btuuid.L2CAP, rec.Protocols[0].UUID)
	assert.Empty(t, rec.Protocols[0].Params)
	assert.Equal(t, btuuid.RFCOMM, rec.Protocols[1].UUID)
	assert.Equal(t, []Element{Uint8(3)}, rec.Protocols[1].Params)
	assert.Equal(t, btuuid.OBEX, rec.Protocols[2].UUID)

	assert.Equal(t, []btuuid.UUID{btuuid.PublicBrowseGroup}, rec.BrowseGroups)
	assert.Equal(t, []Profile{{UUID: btuuid.SerialPort, Version: 0x0102}}, rec.Profiles)
	assert.Equal(t, uint32(0), rec.Handle)
	assert.Equal(t, socket.Unregistered, sock.AdvertiseState())
}

func TestBuildL2CAP(t *testing.T) {
	sock := listener(t, btaddr.L2CAPAddr{Host: btaddr.BDAddrAny.String(), PSM: 0x1001}, true)
	rec, err := Build(sock, Service{Name: "l2"}, &fakeProber{ok: true})
	require.NoError(t, err)

	require.Len(t, rec.Protocols, 1)
	psm, ok := rec.PSM()
	assert.True(t, ok)
	assert.Equal(t, uint16(0x1001), psm)
}

func newTestAdvertiser(t *testing.T, srv *fakeServer) *Advertiser {
	log := zaptest.NewLogger(t)
	return NewAdvertiser(
		WithRegistrar(&LocalServer{Path: srv.path, Logger: log}),
		WithProber(&fakeProber{ok: true}),
		WithLogger(log),
	)
}

func TestAdvertiseSerialPort(t *testing.T) {
	srv := newFakeServer(t)
	adv := newTestAdvertiser(t, srv)
	sock := listener(t, anyRFCOMM, true)

	rec, err := adv.Advertise(context.Background(), sock, Service{Name: "test", ServiceClasses: []string{"1101"}})
	require.NoError(t, err)
	assert.NotZero(t, rec.Handle)

	inner := rec.Protocols[len(rec.Protocols)-1]
	assert.Equal(t, btuuid.RFCOMM, inner.UUID)
	assert.Equal(t, []Element{Uint8(3)}, inner.Params)

	h, ok := sock.RecordHandle()
	require.True(t, ok)
	assert.Equal(t, rec.Handle, h)
	assert.Equal(t, socket.Registered, sock.AdvertiseState())

	body, ok := srv.record(h)
	require.True(t, ok)
	attrs, err := ParseAttributes(body)
	require.NoError(t, err)
	require.NotEmpty(t, attrs)
	assert.Equal(t, AttrServiceClassIDList, attrs[0].ID)
}

func TestAdvertiseTwice(t *testing.T) {
	srv := newFakeServer(t)
	adv := newTestAdvertiser(t, srv)
	sock := listener(t, anyRFCOMM, true)
	svc := Service{Name: "test", ServiceClasses: []string{"1101"}}

	first, err := adv.Advertise(context.Background(), sock, svc)
	require.NoError(t, err)

	_, err = adv.Advertise(context.Background(), sock, svc)
	assert.True(t, errors.Is(err, bterr.ErrAlreadyRegistered))
	assert.Equal(t, 1, srv.connCount())

	require.NoError(t, adv.StopAdvertising(sock))
	assert.Equal(t, []uint32{first.Handle}, srv.removedHandles())
	_, ok := sock.RecordHandle()
	assert.False(t, ok)

	second, err := adv.Advertise(context.Background(), sock, svc)
	require.NoError(t, err)
	assert.NotEqual(t, first.Handle, second.Handle)

	// closing the socket withdraws the record
	require.NoError(t, sock.Close())
	assert.Equal(t, []uint32{first.Handle, second.Handle}, srv.removedHandles())
}

func TestAdvertiseNotListening(t *testing.T) {
	srv := newFakeServer(t)
	adv := newTestAdvertiser(t, srv)
	sock := listener(t, anyRFCOMM, false)

	_, err := adv.Advertise(context.Background(), sock, Service{Name: "test"})
	assert.True(t, errors.Is(err, bterr.ErrNotListening))
	assert.Equal(t, 0, srv.connCount())
}

func TestStopAdvertisingUnregistered(t *testing.T) {
	sock := listener(t, anyRFCOMM, true)
	assert.True(t, errors.Is(StopAdvertising(sock), bterr.ErrNotAdvertising))
}

func TestAdvertiseServerError(t *testing.T) {
	srv := newFakeServer(t)
	srv.mu.Lock()
	srv.errCode = 0x0003
	srv.mu.Unlock()
	adv := newTestAdvertiser(t, srv)
	sock := listener(t, anyRFCOMM, true)

	_, err := adv.Advertise(context.Background(), sock, Service{Name: "test"})
	var serr *bterr.SystemError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 3, serr.Code)
	assert.Equal(t, socket.Unregistered, sock.AdvertiseState())
	assert.Equal(t, 1, srv.connCount())
	assert.Eventually(t, func() bool { return srv.closedCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestAdvertiseNoServer(t *testing.T) {
	adv := NewAdvertiser(
		WithRegistrar(&LocalServer{Path: "/nonexistent/sdp"}),
		WithProber(&fakeProber{ok: true}),
		WithLogger(zaptest.NewLogger(t)),
	)
	sock := listener(t, anyRFCOMM, true)

	_, err := adv.Advertise(context.Background(), sock, Service{Name: "test"})
	assert.Error(t, err)
	assert.Equal(t, socket.Unregistered, sock.AdvertiseState())
}

package sdp

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/muxable/btsocket/pkg/socket"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// DefaultLocalPath is where bluetoothd listens when started with --compat.
const DefaultLocalPath = "/var/run/sdp"

// DefaultRequestTimeout bounds requests to the local server when
// LocalServer.Timeout is unset.
const DefaultRequestTimeout = 5 * time.Second

// PDU ids used against the local server.
const (
	pduErrorRsp    = 0x01
	pduRegisterReq = 0x75
	pduRegisterRsp = 0x76
	pduRemoveReq   = 0x79
	pduRemoveRsp   = 0x7a

	pduHeaderSize = 5

	flagDeviceRecord = 0x02
)

// Registrar places a record in a service database.
type Registrar interface {
	Register(ctx context.Context, rec *Record) (socket.Registration, error)
}

// LocalServer registers records with the local SDP server over its unix
// socket. Each registration holds its own connection, and the server drops
// the record if that connection goes away.
type LocalServer struct {
	Path string
	// Device restricts the record to one controller. The zero value means
	// every controller.
	Device btaddr.BDAddr
	// Timeout bounds each request when ctx has no deadline, including the
	// remove request sent by Session.Close. Zero means DefaultRequestTimeout.
	Timeout time.Duration

	Logger *zap.Logger
}

func (l *LocalServer) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.L()
	}
	return l.Logger
}

func (l *LocalServer) timeout() time.Duration {
	if l.Timeout <= 0 {
		return DefaultRequestTimeout
	}
	return l.Timeout
}

func (l *LocalServer) path() string {
	if l.Path == "" {
		return DefaultLocalPath
	}
	return l.Path
}

func (l *LocalServer) Register(ctx context.Context, rec *Record) (socket.Registration, error) {
	body, err := rec.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "encode record")
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", l.path())
	if err != nil {
		return nil, bterr.Sys("connect sdp server", err)
	}
	s := &Session{conn: conn, timeout: l.timeout(), log: l.logger()}

	req := make([]byte, 0, 1+len(l.Device)+len(body))
	if l.Device.IsAny() {
		req = append(req, 0)
	} else {
		req = append(req, flagDeviceRecord)
		req = append(req, l.Device[:]...)
	}
	req = append(req, body...)

	rsp, err := s.request(ctx, pduRegisterReq, pduRegisterRsp, req)
	if err != nil {
		return nil, multierr.Append(errors.Wrap(err, "register record"), conn.Close())
	}
	if len(rsp) < 4 {
		return nil, multierr.Append(bterr.Sys("register record", unix.EPROTO), conn.Close())
	}
	s.handle = binary.BigEndian.Uint32(rsp)
	if s.handle == 0 {
		return nil, multierr.Append(bterr.Sys("register record", unix.EPROTO), conn.Close())
	}
	s.log.Debug("registered record", zap.Uint32("handle", s.handle))
	return s, nil
}

// Session is a record held by the local server.
type Session struct {
	mu      sync.Mutex
	conn    net.Conn
	tid     uint16
	timeout time.Duration
	handle  uint32
	log     *zap.Logger
}

func (s *Session) Handle() uint32 {
	return s.handle
}

// Close removes the record and closes the connection. Closing twice is a
// no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}

	var err error
	req := binary.BigEndian.AppendUint32(nil, s.handle)
	rsp, rerr := s.request(context.Background(), pduRemoveReq, pduRemoveRsp, req)
	switch {
	case rerr != nil:
		err = errors.Wrapf(rerr, "remove record 0x%08x", s.handle)
	case len(rsp) >= 2 && binary.BigEndian.Uint16(rsp) != 0:
		err = &bterr.SystemError{Op: "remove record", Code: int(binary.BigEndian.Uint16(rsp)), Err: unix.EINVAL}
	}
	err = multierr.Append(err, s.conn.Close())
	s.conn = nil
	return err
}

// request sends one PDU and returns the parameters of the reply.
func (s *Session) request(ctx context.Context, id, want byte, params []byte) ([]byte, error) {
	deadline, ok := ctx.Deadline()
	if !ok && s.timeout > 0 {
		deadline = time.Now().Add(s.timeout)
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	s.tid++
	tid := s.tid
	buf := make([]byte, pduHeaderSize, pduHeaderSize+len(params))
	buf[0] = id
	binary.BigEndian.PutUint16(buf[1:], tid)
	binary.BigEndian.PutUint16(buf[3:], uint16(len(params)))
	buf = append(buf, params...)
	s.log.Debug("sdp request", zap.Uint8("pdu", id), zap.String("packet", fmt.Sprintf("%x", buf)))
	if _, err := s.conn.Write(buf); err != nil {
		return nil, s.ioErr(err)
	}

	hdr := make([]byte, pduHeaderSize)
	if _, err := io.ReadFull(s.conn, hdr); err != nil {
		return nil, s.ioErr(err)
	}
	rsp := make([]byte, binary.BigEndian.Uint16(hdr[3:]))
	if _, err := io.ReadFull(s.conn, rsp); err != nil {
		return nil, s.ioErr(err)
	}
	s.log.Debug("sdp response", zap.Uint8("pdu", hdr[0]), zap.String("params", fmt.Sprintf("%x", rsp)))

	switch {
	case binary.BigEndian.Uint16(hdr[1:]) != tid:
		return nil, bterr.Sys("sdp transaction id", unix.EPROTO)
	case hdr[0] == pduErrorRsp:
		code := 0
		if len(rsp) >= 2 {
			code = int(binary.BigEndian.Uint16(rsp))
		}
		return nil, &bterr.SystemError{Op: "sdp", Code: code, Err: unix.EINVAL}
	case hdr[0] != want:
		return nil, bterr.Sys("sdp response", unix.EPROTO)
	}
	return rsp, nil
}

func (s *Session) ioErr(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return errors.Wrap(bterr.ErrTimedOut, "sdp server")
	}
	return bterr.Sys("sdp server", err)
}

package sdp

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/muxable/btsocket/internal/fakesys"
	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/socket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeServer speaks the register and remove PDUs of the local SDP server.
type fakeServer struct {
	path string
	ln   net.Listener

	mu      sync.Mutex
	next    uint32
	conns   int
	closed  int
	records map[uint32][]byte
	removed []uint32
	// errCode makes every request fail with an error response.
	errCode uint16
	// silent reads requests and never answers them.
	silent bool
}

func newFakeServer(t *testing.T) *fakeServer {
	// unix socket paths are short, t.TempDir can exceed the limit
	dir, err := os.MkdirTemp("", "sdpd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "sdp")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	s := &fakeServer{path: path, ln: ln, next: 0x10000, records: make(map[uint32][]byte)}
	go s.serve()
	return s
}

func (s *fakeServer) serve() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()
		go s.handle(c)
	}
}

func (s *fakeServer) handle(c net.Conn) {
	defer func() {
		c.Close()
		s.mu.Lock()
		s.closed++
		s.mu.Unlock()
	}()
	for {
		hdr := make([]byte, pduHeaderSize)
		if _, err := io.ReadFull(c, hdr); err != nil {
			return
		}
		params := make([]byte, binary.BigEndian.Uint16(hdr[3:]))
		if _, err := io.ReadFull(c, params); err != nil {
			return
		}

		var id byte
		var rsp []byte
		s.mu.Lock()
		if s.silent {
			s.mu.Unlock()
			continue
		}
		switch {
		case s.errCode != 0:
			id, rsp = pduErrorRsp, binary.BigEndian.AppendUint16(nil, s.errCode)
		case hdr[0] == pduRegisterReq:
			s.next++
			s.records[s.next] = params[1:]
			id, rsp = pduRegisterRsp, binary.BigEndian.AppendUint32(nil, s.next)
		case hdr[0] == pduRemoveReq:
			h := binary.BigEndian.Uint32(params)
			delete(s.records, h)
			s.removed = append(s.removed, h)
			id, rsp = pduRemoveRsp, []byte{0, 0}
		}
		s.mu.Unlock()

		out := append([]byte{id, hdr[1], hdr[2], 0, byte(len(rsp))}, rsp...)
		if _, err := c.Write(out); err != nil {
			return
		}
	}
}

func (s *fakeServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// closedCount reports connections that the client has hung up.
func (s *fakeServer) closedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeServer) record(h uint32) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.records[h]
	return b, ok
}

func (s *fakeServer) removedHandles() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.removed...)
}

type fakeProber struct {
	ok    bool
	err   error
	calls []btaddr.Address
}

func (p *fakeProber) Advertisable(local btaddr.Address) (bool, error) {
	p.calls = append(p.calls, local)
	return p.ok, p.err
}

// listener returns a socket bound to addr, listening unless listen is false.
func listener(t *testing.T, addr btaddr.Address, listen bool) *socket.Socket {
	sock, err := socket.New(addr.Protocol(), socket.WithSys(fakesys.New()), socket.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })
	require.NoError(t, sock.Bind(addr))
	if listen {
		require.NoError(t, sock.Listen(1))
	}
	return sock
}

// Package sdp builds service discovery records for listening sockets and
// registers them with the local service database.
package sdp

import (
	"context"

	"github.com/muxable/btsocket/pkg/hci"
	"github.com/muxable/btsocket/pkg/socket"
	"go.uber.org/zap"
)

type config struct {
	registrar Registrar
	prober    Prober
	logger    *zap.Logger
}

// Option configures an Advertiser.
type Option func(*config)

// WithRegistrar picks the service database backend. The default is the
// local SDP server.
func WithRegistrar(r Registrar) Option {
	return func(c *config) {
		c.registrar = r
	}
}

// WithProber replaces the controller check run before registering.
func WithProber(p Prober) Option {
	return func(c *config) {
		c.prober = p
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Advertiser publishes records for listening sockets.
type Advertiser struct {
	registrar Registrar
	prober    Prober
	log       *zap.Logger
}

func NewAdvertiser(opts ...Option) *Advertiser {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.L()
	}
	if c.registrar == nil {
		c.registrar = &LocalServer{Logger: c.logger}
	}
	if c.prober == nil {
		c.prober = hci.NewProber(hci.WithLogger(c.logger))
	}
	return &Advertiser{registrar: c.registrar, prober: c.prober, log: c.logger}
}

// Advertise builds a record for svc and registers it on behalf of sock. The
// record stays published until StopAdvertising or sock is closed. On failure
// sock is left unregistered.
func (a *Advertiser) Advertise(ctx context.Context, sock *socket.Socket, svc Service) (*Record, error) {
	rec, err := Build(sock, svc, a.prober)
	if err != nil {
		return nil, err
	}
	err = sock.Advertise(func() (socket.Registration, error) {
		reg, err := a.registrar.Register(ctx, rec)
		if err != nil {
			return nil, err
		}
		rec.Handle = reg.Handle()
		return reg, nil
	})
	if err != nil {
		a.log.Debug("advertise failed", zap.String("name", svc.Name), zap.Error(err))
		return nil, err
	}
	return rec, nil
}

// StopAdvertising withdraws the record published for sock.
func (a *Advertiser) StopAdvertising(sock *socket.Socket) error {
	return sock.StopAdvertising()
}

// Advertise publishes svc with the local SDP server.
func Advertise(ctx context.Context, sock *socket.Socket, svc Service) (*Record, error) {
	return NewAdvertiser().Advertise(ctx, sock, svc)
}

func StopAdvertising(sock *socket.Socket) error {
	return sock.StopAdvertising()
}

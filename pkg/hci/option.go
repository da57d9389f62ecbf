package hci

import (
	"time"

	"go.uber.org/zap"
)

type config struct {
	logger         *zap.Logger
	commandTimeout time.Duration
	ctl            Ioctler
	openAdapter    func(dev int) (*Adapter, error)
}

// Option configures an Adapter or a Prober.
type Option func(*config)

func newConfig(opts []Option) *config {
	c := &config{commandTimeout: 2 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.L()
	}
	return c
}

func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithCommandTimeout bounds how long an Adapter waits for a command reply.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *config) {
		c.commandTimeout = d
	}
}

// WithIoctler makes a Prober query ctl instead of opening a control socket.
func WithIoctler(ctl Ioctler) Option {
	return func(c *config) {
		c.ctl = ctl
	}
}

// WithAdapterOpener replaces how a Prober opens a raw channel to read the
// address of a controller in raw mode.
func WithAdapterOpener(open func(dev int) (*Adapter, error)) Option {
	return func(c *config) {
		c.openAdapter = open
	}
}

package socket

import (
	"time"

	"go.uber.org/zap"
)

// Blocking is the timeout value for sockets that wait indefinitely.
const Blocking time.Duration = -1

// Config holds the defaults applied to every socket it creates, including
// sockets returned by Accept.
type Config struct {
	Timeout time.Duration
	Type    int
	Sys     Sys
	Logger  *zap.Logger
}

type Option func(*Config)

// WithTimeout sets the initial timeout: negative blocks, zero is
// non-blocking and positive bounds each operation.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithType overrides the socket type chosen for the protocol.
func WithType(typ int) Option {
	return func(c *Config) {
		c.Type = typ
	}
}

func WithSys(s Sys) Option {
	return func(c *Config) {
		c.Sys = s
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func newConfig(opts []Option) Config {
	c := Config{Timeout: Blocking, Type: -1, Sys: defaultSys}
	for _, o := range opts {
		o(&c)
	}
	if c.Timeout < 0 {
		c.Timeout = Blocking
	}
	return c
}

func (c Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.L()
}

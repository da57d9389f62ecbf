// Command btctl lists local controllers, scans for peers and serves an
// advertised RFCOMM echo service.
package main

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/hci"
	"github.com/muxable/btsocket/pkg/socket"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	app := cli.NewApp()
	app.Name = "btctl"
	app.Usage = "inspect Bluetooth controllers and advertise services"
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:   "device, i",
			Usage:  "controller index, -1 for the first one that is up",
			EnvVar: "BTCTL_DEVICE",
			Value:  btaddr.DevNone,
		},
		cli.DurationFlag{
			Name:   "timeout",
			Usage:  "socket timeout, negative to block",
			EnvVar: "BTCTL_TIMEOUT",
			Value:  socket.Blocking,
		},
		cli.StringFlag{
			Name:   "sdp-backend",
			Usage:  "service database to register with: local or dbus",
			EnvVar: "BTCTL_SDP_BACKEND",
			Value:  "local",
		},
		cli.BoolFlag{
			Name:   "debug",
			Usage:  "log packets and state changes",
			EnvVar: "BTCTL_DEBUG",
		},
		cli.BoolFlag{
			Name:  "json",
			Usage: "print results as JSON",
		},
	}
	app.Before = func(c *cli.Context) error {
		var logger *zap.Logger
		var err error
		if c.GlobalBool("debug") {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(logger)
		return nil
	}
	app.After = func(c *cli.Context) error {
		// syncing a terminal stderr fails with EINVAL on linux
		_ = zap.L().Sync()
		return nil
	}
	app.Commands = []cli.Command{
		devicesCommand,
		upCommand,
		downCommand,
		resetCommand,
		inquireCommand,
		discoverCommand,
		lookupCommand,
		flushCommand,
		uuidCommand,
		serveCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "btctl:", err)
		os.Exit(1)
	}
}

// output prints v as JSON when --json is set, and text otherwise.
func output(c *cli.Context, v interface{}, text func()) error {
	if !c.GlobalBool("json") {
		text()
		return nil
	}
	b, err := jsoniter.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(b))
	return err
}

// withCtl runs fn with an open control socket.
func withCtl(fn func(ctl *hci.Ctl) error) (err error) {
	ctl, err := hci.OpenCtl()
	if err != nil {
		return errors.Wrap(err, "open hci control socket")
	}
	defer func() { err = multierr.Append(err, ctl.Close()) }()
	return fn(ctl)
}

// device resolves --device, picking the default route when it is negative.
func device(c *cli.Context) (int, error) {
	dev := c.GlobalInt("device")
	if dev >= 0 {
		return dev, nil
	}
	err := withCtl(func(ctl *hci.Ctl) error {
		var err error
		dev, err = hci.Route(ctl)
		return err
	})
	return dev, err
}

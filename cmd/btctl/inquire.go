package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/hci"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var scanFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "duration, d",
		Usage: "scan length in units of 1.28s",
		Value: 8,
	},
	cli.BoolFlag{
		Name:  "limited",
		Usage: "use the limited inquiry access code",
	},
	cli.BoolFlag{
		Name:  "names, n",
		Usage: "look up the name of every peer",
	},
	cli.DurationFlag{
		Name:  "name-timeout",
		Usage: "how long to page each peer for its name",
		Value: 10 * time.Second,
	},
}

func accessCode(c *cli.Context) uint32 {
	if c.Bool("limited") {
		return hci.LAPLimited
	}
	return hci.LAPGeneral
}

func printDevices(devs []hci.Device) {
	for _, d := range devs {
		line := d.Addr
		if d.Class != nil {
			line += fmt.Sprintf("\t0x%06x", *d.Class)
		}
		if d.RSSI != nil {
			line += fmt.Sprintf("\t%ddBm", *d.RSSI)
		}
		if d.Name != "" {
			line += "\t" + d.Name
		}
		fmt.Println(line)
	}
}

// withAdapter runs fn with a raw channel to the controller named by --device.
func withAdapter(c *cli.Context, fn func(a *hci.Adapter, dev int) error) (err error) {
	dev, err := device(c)
	if err != nil {
		return err
	}
	a, err := hci.OpenAdapter(dev, hci.WithLogger(zap.L()))
	if err != nil {
		return errors.Wrapf(err, "open hci%d", dev)
	}
	defer func() { err = multierr.Append(err, a.Close()) }()
	return fn(a, dev)
}

var inquireCommand = cli.Command{
	Name:  "inquire",
	Usage: "scan for peers through the kernel inquiry ioctl",
	Flags: append([]cli.Flag{
		cli.BoolTFlag{
			Name:  "flush",
			Usage: "discard peers cached by earlier scans",
		},
		cli.BoolFlag{
			Name:  "class",
			Usage: "report the class of device",
		},
	}, scanFlags...),
	Action: func(c *cli.Context) error {
		opts := hci.DefaultInquiryOptions()
		opts.Duration = c.Int("duration")
		opts.FlushCache = c.BoolT("flush")
		opts.LookupClass = c.Bool("class")
		opts.AccessCode = accessCode(c)

		run := func() error {
			return withCtl(func(ctl *hci.Ctl) error {
				devs, err := hci.Inquire(ctl, opts)
				if err != nil {
					return err
				}
				return output(c, devs, func() { printDevices(devs) })
			})
		}
		if !c.Bool("names") {
			opts.Dev = c.GlobalInt("device")
			return run()
		}
		return withAdapter(c, func(a *hci.Adapter, dev int) error {
			opts.Dev = dev
			opts.LookupName = a.LookupName(c.Duration("name-timeout"))
			return run()
		})
	},
}

var discoverCommand = cli.Command{
	Name:  "discover",
	Usage: "scan for peers over a raw channel, reporting signal strength",
	Flags: append([]cli.Flag{
		cli.StringFlag{
			Name:  "mode",
			Usage: "result format: standard, rssi or extended",
			Value: "extended",
		},
	}, scanFlags...),
	Action: func(c *cli.Context) error {
		opts := hci.DefaultDiscoverOptions()
		opts.Duration = c.Int("duration")
		opts.AccessCode = accessCode(c)
		opts.LookupNames = c.Bool("names")
		opts.NameTimeout = c.Duration("name-timeout")
		switch c.String("mode") {
		case "standard":
			opts.Mode = hci.InquiryModeStandard
		case "rssi":
			opts.Mode = hci.InquiryModeRSSI
		case "extended":
			opts.Mode = hci.InquiryModeExtended
		default:
			return cli.NewExitError("unknown mode "+c.String("mode"), 2)
		}
		if !c.GlobalBool("json") {
			opts.OnFound = func(d hci.Discovery) {
				fmt.Fprintln(os.Stderr, "found", d.Addr)
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return withAdapter(c, func(a *hci.Adapter, _ int) error {
			found, err := a.Discover(ctx, opts)
			if err != nil && ctx.Err() == nil {
				return err
			}
			devs := make([]hci.Device, len(found))
			for i, d := range found {
				devs[i] = d.Device()
			}
			return output(c, devs, func() { printDevices(devs) })
		})
	},
}

var lookupCommand = cli.Command{
	Name:      "lookup",
	Usage:     "read the name of a peer",
	ArgsUsage: "ADDR",
	Flags: []cli.Flag{
		cli.DurationFlag{
			Name:  "timeout",
			Value: 10 * time.Second,
		},
	},
	Action: func(c *cli.Context) error {
		addr, err := btaddr.ParseBDAddr(c.Args().First())
		if err != nil {
			return cli.NewExitError(err.Error(), 2)
		}
		return withAdapter(c, func(a *hci.Adapter, _ int) error {
			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()
			name, err := a.ReadRemoteName(ctx, addr, hci.PageScanRepetitionModeR2, 0)
			if err != nil {
				return err
			}
			return output(c, hci.Device{Addr: addr.String(), Name: name}, func() { fmt.Println(name) })
		})
	},
}

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/hci"
	"github.com/urfave/cli"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type flushJSON struct {
	Addr    string `json:"addr"`
	Handle  uint16 `json:"handle"`
	Timeout string `json:"timeout"`
}

var flushCommand = cli.Command{
	Name:      "flush-timeout",
	Usage:     "read the ACL flush timeout of a connected peer, or set it in milliseconds",
	ArgsUsage: "ADDR [MS]",
	Action: func(c *cli.Context) (err error) {
		addr, err := btaddr.ParseBDAddr(c.Args().First())
		if err != nil {
			return cli.NewExitError(err.Error(), 2)
		}
		dev, err := device(c)
		if err != nil {
			return err
		}
		// the connection info ioctl needs a socket bound to the controller
		sock, err := hci.NewSocket(dev)
		if err != nil {
			return err
		}
		a := hci.NewAdapter(sock, hci.WithLogger(zap.L()))
		defer func() { err = multierr.Append(err, a.Close()) }()

		if c.NArg() > 1 {
			ms, err := strconv.ParseFloat(c.Args().Get(1), 64)
			if err != nil {
				return cli.NewExitError("bad timeout "+c.Args().Get(1), 2)
			}
			if err := a.SetPacketTimeout(sock, addr, time.Duration(ms*float64(time.Millisecond))); err != nil {
				return err
			}
		}
		handle, err := hci.ConnHandle(sock, addr)
		if err != nil {
			return err
		}
		n, err := a.ReadFlushTimeout(handle)
		if err != nil {
			return err
		}
		out := flushJSON{Addr: addr.String(), Handle: handle, Timeout: "infinite"}
		if n != 0 {
			out.Timeout = (time.Duration(n) * hci.FlushTimeoutUnit).String()
		}
		return output(c, out, func() { fmt.Printf("%s\thandle %d\t%s\n", out.Addr, out.Handle, out.Timeout) })
	},
}

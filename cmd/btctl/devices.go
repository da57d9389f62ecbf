package main

import (
	"fmt"

	"github.com/muxable/btsocket/pkg/hci"
	"github.com/urfave/cli"
)

type deviceJSON struct {
	ID     uint16 `json:"id"`
	Name   string `json:"name"`
	Addr   string `json:"addr"`
	Flags  string `json:"flags"`
	ACLMTU uint16 `json:"acl_mtu"`
	SCOMTU uint16 `json:"sco_mtu"`
}

var devicesCommand = cli.Command{
	Name:  "devices",
	Usage: "list local controllers",
	Action: func(c *cli.Context) error {
		return withCtl(func(ctl *hci.Ctl) error {
			infos, err := hci.Devices(ctl)
			if err != nil {
				return err
			}
			out := make([]deviceJSON, len(infos))
			for i, info := range infos {
				out[i] = deviceJSON{
					ID:     info.ID,
					Name:   info.Name,
					Addr:   info.Addr.String(),
					Flags:  info.Flags.String(),
					ACLMTU: info.ACLMTU,
					SCOMTU: info.SCOMTU,
				}
			}
			return output(c, out, func() {
				for _, d := range out {
					fmt.Printf("%s\t%s\t%s\n", d.Name, d.Addr, d.Flags)
				}
			})
		})
	},
}

func ctlCommand(name, usage string, fn func(ctl hci.Ioctler, dev int) error) cli.Command {
	return cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			dev := c.GlobalInt("device")
			if dev < 0 {
				return cli.NewExitError(name+" needs --device", 2)
			}
			return withCtl(func(ctl *hci.Ctl) error {
				return fn(ctl, dev)
			})
		},
	}
}

var (
	upCommand    = ctlCommand("up", "bring a controller up", hci.Up)
	downCommand  = ctlCommand("down", "take a controller down", hci.Down)
	resetCommand = ctlCommand("reset", "reset a controller", hci.Reset)
)

package main

import (
	"fmt"

	"github.com/muxable/btsocket/pkg/btuuid"
	"github.com/urfave/cli"
)

type uuidJSON struct {
	Input string `json:"input"`
	UUID  string `json:"uuid"`
	Long  string `json:"long"`
	Name  string `json:"name,omitempty"`
}

var uuidCommand = cli.Command{
	Name:      "uuid",
	Usage:     "normalize UUIDs and name the well known ones",
	ArgsUsage: "UUID...",
	Action: func(c *cli.Context) error {
		var out []uuidJSON
		for _, arg := range c.Args() {
			u, err := btuuid.Parse(arg)
			if err != nil {
				return cli.NewExitError(err.Error(), 2)
			}
			name, _ := btuuid.Name(u)
			out = append(out, uuidJSON{Input: arg, UUID: u.String(), Long: u.Long().String(), Name: name})
		}
		return output(c, out, func() {
			for _, u := range out {
				fmt.Printf("%s\t%s\t%s\n", u.UUID, u.Long, u.Name)
			}
		})
	},
}

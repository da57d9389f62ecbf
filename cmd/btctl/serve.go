package main

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/muxable/btsocket/pkg/btaddr"
	"github.com/muxable/btsocket/pkg/bterr"
	"github.com/muxable/btsocket/pkg/sdp"
	"github.com/muxable/btsocket/pkg/socket"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func registrar(c *cli.Context) (sdp.Registrar, error) {
	switch backend := c.GlobalString("sdp-backend"); backend {
	case "local":
		return &sdp.LocalServer{Logger: zap.L()}, nil
	case "dbus":
		return &sdp.ProfileManager{Logger: zap.L()}, nil
	default:
		return nil, cli.NewExitError("unknown sdp backend "+backend, 2)
	}
}

var serveCommand = cli.Command{
	Name:  "serve",
	Usage: "accept RFCOMM connections and echo what peers send",
	Flags: []cli.Flag{
		cli.IntFlag{
			Name:  "channel, c",
			Usage: "RFCOMM channel to listen on, 0 for the first free one",
			Value: 1,
		},
		cli.StringFlag{
			Name:  "name",
			Value: "btctl echo",
		},
		cli.StringFlag{
			Name:  "provider",
			Value: "btctl",
		},
		cli.StringSliceFlag{
			Name:  "class",
			Usage: "service class UUIDs, Serial Port when none are given",
		},
	},
	Action: func(c *cli.Context) error {
		reg, err := registrar(c)
		if err != nil {
			return err
		}
		classes := c.StringSlice("class")
		if len(classes) == 0 {
			classes = []string{"1101"}
		}

		channel := c.Int("channel")
		if channel == 0 {
			if channel, err = socket.AvailablePort(btaddr.ProtocolRFCOMM, socket.WithLogger(zap.L())); err != nil {
				return err
			}
		}
		sock, err := socket.New(btaddr.ProtocolRFCOMM, socket.WithTimeout(c.GlobalDuration("timeout")), socket.WithLogger(zap.L()))
		if err != nil {
			return err
		}
		defer sock.Close()
		addr := btaddr.RFCOMMAddr{Host: btaddr.BDAddrAny.String(), Channel: uint8(channel)}
		if err := sock.Bind(addr); err != nil {
			return errors.Wrapf(err, "bind %v", addr)
		}
		if err := sock.Listen(1); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		rec, err := sdp.NewAdvertiser(sdp.WithRegistrar(reg), sdp.WithLogger(zap.L())).Advertise(ctx, sock, sdp.Service{
			Name:           c.String("name"),
			Provider:       c.String("provider"),
			ServiceClasses: classes,
			Profiles:       []sdp.ProfileSpec{{UUID: "1101", Version: 0x0102}},
		})
		if err != nil {
			return err
		}
		zap.L().Info("serving", zap.Stringer("addr", addr), zap.Uint32("handle", rec.Handle))

		go func() {
			<-ctx.Done()
			// closing alone does not wake a blocked accept
			sock.Shutdown(unix.SHUT_RDWR)
			sock.Close()
		}()
		for {
			conn, peer, err := sock.Accept()
			if errors.Is(err, bterr.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			go echo(conn, peer)
		}
	},
}

func echo(conn *socket.Socket, peer btaddr.Address) {
	defer conn.Close()
	log := zap.L().With(zap.Stringer("peer", peer))
	log.Info("connected")
	n, err := io.Copy(conn, conn)
	log.Info("disconnected", zap.Int64("bytes", n), zap.Error(err))
}

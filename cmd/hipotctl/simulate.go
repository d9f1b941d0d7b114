package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/hipotlink/internal/instrument"
	"github.com/danmuck/hipotlink/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// device answers requests the way the instrument would.
type device struct {
	reading instrument.Reading
	// split sends each reply as two datagrams this far apart.
	split  time.Duration
	silent bool
}

func (d device) serveData(ctx context.Context, conn *net.UDPConn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	buf := make([]byte, 2048)
	for {
		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		req := append([]byte(nil), buf[:n]...)
		reply := instrument.Respond(req, d.reading)
		log.Info().Str("peer", peer.String()).Hex("request", req).Hex("reply", reply).Msg("hipotctl.device request")
		if d.silent || len(reply) == 0 {
			continue
		}
		if d.split > 0 && len(reply) > 2 {
			half := len(reply) / 2
			if _, err := conn.WriteToUDP(reply[:half], peer); err != nil {
				return err
			}
			time.Sleep(d.split)
			reply = reply[half:]
		}
		if _, err := conn.WriteToUDP(reply, peer); err != nil {
			return err
		}
	}
}

func serveSettings(ctx context.Context, conn *net.UDPConn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	buf := make([]byte, 256)
	for {
		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		log.Info().Str("peer", peer.String()).Str("command", string(buf[:n])).Msg("hipotctl.device line command")
	}
}

func (c *cli) simulateCmd() *cobra.Command {
	var (
		listen string
		d      device
		status struct {
			running, pass, fail, arc, breakdown bool
		}
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Act as the gateway and instrument on the channel's port pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := transport.MapPorts(c.cfg.Channel, c.cfg.BasePort)
			if err != nil {
				return err
			}
			ip := net.ParseIP(listen)
			if ip == nil {
				return fmt.Errorf("listen address %q is not an IP", listen)
			}
			data, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip, Port: ports.DataPort})
			if err != nil {
				return err
			}
			settings, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip, Port: ports.SettingsPort})
			if err != nil {
				_ = data.Close()
				return err
			}

			d.reading = d.reading.
				Flag(instrument.StatusRunning, status.running).
				Flag(instrument.StatusPass, status.pass).
				Flag(instrument.StatusFail, status.fail).
				Flag(instrument.StatusArc, status.arc).
				Flag(instrument.StatusBreakdown, status.breakdown)

			log.Info().
				Str("listen", listen).
				Int("data_port", ports.DataPort).
				Int("settings_port", ports.SettingsPort).
				Msg("hipotctl.simulate ready")

			errCh := make(chan error, 1)
			go func() { errCh <- serveSettings(cmd.Context(), settings) }()
			err = d.serveData(cmd.Context(), data)
			if serr := <-errCh; err == nil {
				err = serr
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&listen, "listen", "127.0.0.1", "address to listen on")
	flags.Uint16Var(&d.reading.VoltageV, "voltage", 1500, "reported output voltage in V")
	flags.Uint32Var(&d.reading.CurrentUA, "current", 120, "reported leakage current in uA")
	flags.Uint16Var(&d.reading.ElapsedDS, "elapsed", 35, "reported elapsed time in tenths of a second")
	flags.BoolVar(&status.running, "running", true, "report the test as running")
	flags.BoolVar(&status.pass, "pass", false, "report a pass")
	flags.BoolVar(&status.fail, "fail", false, "report a fail")
	flags.BoolVar(&status.arc, "arc", false, "report an arc")
	flags.BoolVar(&status.breakdown, "breakdown", false, "report a breakdown")
	flags.DurationVar(&d.split, "split", 0, "split each reply into two datagrams this far apart")
	flags.BoolVar(&d.silent, "silent", false, "never reply")
	return cmd
}

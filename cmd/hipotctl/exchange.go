package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/hipotlink/internal/instrument"
	"github.com/danmuck/hipotlink/internal/link"
	"github.com/danmuck/hipotlink/internal/protocol"
	"github.com/danmuck/hipotlink/internal/protocol/frame"
	"github.com/danmuck/hipotlink/internal/recorder"
	"github.com/danmuck/hipotlink/internal/transport"
	"github.com/spf13/cobra"
)

type exchangeResult struct {
	Channel  string          `json:"channel" yaml:"channel"`
	Packet   string          `json:"packet" yaml:"packet"`
	OK       bool            `json:"ok" yaml:"ok"`
	Attempts int             `json:"attempts" yaml:"attempts"`
	Outcome  string          `json:"outcome" yaml:"outcome"`
	Sent     recorder.Hex    `json:"sent" yaml:"sent"`
	Received recorder.Hex    `json:"received" yaml:"received"`
	Values   protocol.Values `json:"values,omitempty" yaml:"values,omitempty"`
}

type valued interface {
	Values() protocol.Values
}

// exchange runs sp with retries, prints the result and fails the command
// when the exchange did not succeed.
func (c *cli) exchange(cmd *cobra.Command, name string, sp protocol.SendPacket, newReply func() protocol.RecvPacket) error {
	s, err := c.open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	var last protocol.RecvPacket
	wrapped := newReply
	if newReply != nil {
		wrapped = func() protocol.RecvPacket {
			last = newReply()
			return last
		}
	}
	rec, attempts, xerr := link.ExchangeWithRetry(cmd.Context(), s.conn, sp, wrapped, "", c.retryPolicy())

	res := exchangeResult{
		Channel:  rec.Channel,
		Packet:   name,
		OK:       xerr == nil,
		Attempts: attempts,
		Outcome:  rec.Outcome,
		Sent:     rec.Sent,
		Received: rec.Received,
	}
	if v, ok := last.(valued); ok && xerr == nil {
		res.Values = v.Values()
	}
	if err := c.print(cmd, res); err != nil {
		return err
	}
	if xerr != nil {
		return fmt.Errorf("%s: %w", name, xerr)
	}
	return nil
}

func (c *cli) portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "Show the gateway port pair and local bind address of the channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			udp, err := transport.NewUDP(c.cfg.Transport())
			if err != nil {
				return err
			}
			p := udp.Ports()
			return c.print(cmd, struct {
				Remote       string `json:"remote" yaml:"remote"`
				Local        string `json:"local" yaml:"local"`
				Channel      int    `json:"channel" yaml:"channel"`
				DataPort     int    `json:"data_port" yaml:"data_port"`
				SettingsPort int    `json:"settings_port" yaml:"settings_port"`
			}{
				Remote:       c.cfg.RemoteIP,
				Local:        udp.LocalIP().String(),
				Channel:      p.Channel,
				DataPort:     p.DataPort,
				SettingsPort: p.SettingsPort,
			})
		},
	}
}

// rawPacket sends caller-supplied bytes as they are.
type rawPacket struct {
	data   []byte
	reply  bool
	settle time.Duration
}

func (p rawPacket) Encode() ([]byte, error)   { return p.data, nil }
func (p rawPacket) ExpectsReply() bool        { return p.reply }
func (p rawPacket) SettleTime() time.Duration { return p.settle }
func (rawPacket) PacketName() string          { return "raw" }

func layoutByName(name string) (frame.Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "short", "clt-short":
		return frame.Short, nil
	case "zh":
		return frame.ZH, nil
	case "clt":
		return frame.CLT, nil
	default:
		return frame.Layout{}, fmt.Errorf("unknown layout %q (want short, zh or clt)", name)
	}
}

func (c *cli) sendCmd() *cobra.Command {
	var (
		noReply bool
		settle  time.Duration
		decode  string
	)
	cmd := &cobra.Command{
		Use:   "send <hex bytes>...",
		Short: "Send raw bytes and show the reply",
		Example: `  hipotctl send 7B 09 13 01 01 01 01 1A 7D
  hipotctl send 7b091301010101 1a7d --decode short`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := hex.DecodeString(strings.Join(strings.Fields(strings.Join(args, " ")), ""))
			if err != nil {
				return fmt.Errorf("bytes must be hex: %w", err)
			}
			var newReply func() protocol.RecvPacket
			if decode != "" {
				layout, err := layoutByName(decode)
				if err != nil {
					return err
				}
				opts := c.cfg.FrameOptions()
				newReply = func() protocol.RecvPacket { return instrument.NewRaw(layout, opts) }
			}
			return c.exchange(cmd, "raw", rawPacket{data: data, reply: !noReply, settle: settle}, newReply)
		},
	}
	cmd.Flags().BoolVar(&noReply, "no-reply", false, "do not wait for a reply")
	cmd.Flags().DurationVar(&settle, "settle", instrument.DefaultSettle, "wait before polling for the reply")
	cmd.Flags().StringVar(&decode, "decode", "", "decode the reply as short, zh or clt")
	return cmd
}

func (c *cli) gateCmd(use, short string, closeGate bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <address> <gate>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseByte("address", args[0])
			if err != nil {
				return err
			}
			gate, err := parseByte("gate", args[1])
			if err != nil {
				return err
			}
			pkt := instrument.GateOpen(addr, gate)
			if closeGate {
				pkt = instrument.GateClose(addr, gate)
			}
			return c.exchange(cmd, pkt.Name, pkt, c.ackFor(pkt))
		},
	}
}

func (c *cli) linkCmd() *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "link <address>",
		Short: "Put the instrument under remote control (or release it with --off)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseByte("address", args[0])
			if err != nil {
				return err
			}
			pkt := instrument.Link(addr)
			if off {
				pkt = instrument.Unlink(addr)
			}
			return c.exchange(cmd, pkt.Name, pkt, c.ackFor(pkt))
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "release remote control")
	return cmd
}

func (c *cli) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <address>",
		Short: "Abort the running test (no reply)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseByte("address", args[0])
			if err != nil {
				return err
			}
			pkt := instrument.Stop(addr)
			return c.exchange(cmd, pkt.Name, pkt, nil)
		},
	}
}

func (c *cli) measureCmd() *cobra.Command {
	var zh bool
	cmd := &cobra.Command{
		Use:   "measure <address> [step]",
		Short: "Read the live measurement of a test step",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseByte("address", args[0])
			if err != nil {
				return err
			}
			var step byte
			if len(args) == 2 {
				if step, err = parseByte("step", args[1]); err != nil {
					return err
				}
			}
			pkt := instrument.ReadMeasurement(addr, step)
			return c.exchange(cmd, pkt.Name, pkt, c.measurementReply(zh))
		},
	}
	cmd.Flags().BoolVar(&zh, "zh", false, "expect the 0x4F headed long frame")
	return cmd
}

func (c *cli) reconfigureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconfigure [baud,parity,databits,stopbits]",
		Short: "Push serial line settings to the gateway channel",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setting := c.cfg.LineSettings
			if len(args) == 1 {
				setting = args[0]
			}
			s, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.conn.ReconfigureLine(cmd.Context(), setting); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: sent %q\n", s.udp.Label(), transport.InitCommand(setting))
			return err
		},
	}
}

func (c *cli) ackFor(cmd instrument.Command) func() protocol.RecvPacket {
	opts := c.cfg.FrameOptions()
	return func() protocol.RecvPacket { return instrument.NewAck(cmd, opts) }
}

func (c *cli) measurementReply(zh bool) func() protocol.RecvPacket {
	opts := c.cfg.FrameOptions()
	if zh {
		return func() protocol.RecvPacket { return instrument.NewZHMeasurement(opts) }
	}
	return func() protocol.RecvPacket { return instrument.NewMeasurement(opts) }
}
